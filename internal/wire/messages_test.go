package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHello_RoundTrip(t *testing.T) {
	m := Hello{Name: []byte("alice-laptop")}
	got := UnmarshalHello(m.Marshal())
	require.Equal(t, m.Name, got.Name)
}

func TestPingPong_RoundTrip(t *testing.T) {
	p := Ping{Data: []byte("keepalive")}
	got := UnmarshalPing(p.Marshal())
	require.Equal(t, p.Data, got.Data)

	pong := Pong{Data: []byte("pong")}
	gotPong := UnmarshalPong(pong.Marshal())
	require.Equal(t, pong.Data, gotPong.Data)
}

func TestRegisterReqResp_RoundTrip(t *testing.T) {
	req := RegisterReq{Username: "alice", Email: "alice@example.com", Password: "s3cret"}
	gotReq, err := UnmarshalRegisterReq(req.Marshal())
	require.NoError(t, err)
	require.Equal(t, req, gotReq)

	resp := RegisterResp{OK: true, Message: "registered"}
	gotResp, err := UnmarshalRegisterResp(resp.Marshal())
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)

	fail := RegisterResp{OK: false, Message: "username taken"}
	gotFail, err := UnmarshalRegisterResp(fail.Marshal())
	require.NoError(t, err)
	require.Equal(t, fail, gotFail)
}

func TestLoginReq_RoundTrip(t *testing.T) {
	req := LoginReq{Username: "alice", Password: "s3cret"}
	got, err := UnmarshalLoginReq(req.Marshal())
	require.NoError(t, err)
	require.Equal(t, req, got)
}

func TestLoginResp_OK_RoundTrip(t *testing.T) {
	resp := LoginResp{
		OK:       true,
		Token:    "deadbeefcafef00d",
		UserID:   42,
		Username: "alice",
		Message:  "welcome back",
	}
	got, err := UnmarshalLoginResp(resp.Marshal())
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestLoginResp_Fail_OmitsConditionalFields(t *testing.T) {
	resp := LoginResp{OK: false, Message: "invalid credentials"}
	payload := resp.Marshal()

	// ok byte + u16 len + message bytes, nothing else.
	require.Equal(t, 1+2+len(resp.Message), len(payload))

	got, err := UnmarshalLoginResp(payload)
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestOnlineListResp_RoundTrip(t *testing.T) {
	resp := OnlineListResp{Usernames: []string{"alice", "bob", "carol"}}
	got, err := UnmarshalOnlineListResp(resp.Marshal())
	require.NoError(t, err)
	require.Equal(t, resp, got)
}

func TestOnlineListResp_Empty_RoundTrip(t *testing.T) {
	resp := OnlineListResp{}
	got, err := UnmarshalOnlineListResp(resp.Marshal())
	require.NoError(t, err)
	require.Len(t, got.Usernames, 0)
}

func TestFileOfferReqResp_RoundTrip(t *testing.T) {
	req := FileOfferReq{
		ClientID:         7,
		ReceiverUsername: "bob",
		Filename:         "report.pdf",
		FileSize:         1 << 20,
		ChunkSize:        65536,
	}
	gotReq, err := UnmarshalFileOfferReq(req.Marshal())
	require.NoError(t, err)
	require.Equal(t, req, gotReq)

	resp := FileOfferResp{OK: true, TransferID: 99}
	gotResp, err := UnmarshalFileOfferResp(resp.Marshal())
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)

	fail := FileOfferResp{OK: false, TransferID: 0, Reason: "receiver offline"}
	gotFail, err := UnmarshalFileOfferResp(fail.Marshal())
	require.NoError(t, err)
	require.Equal(t, fail, gotFail)
}

func TestFileAcceptReqResp_RoundTrip(t *testing.T) {
	req := FileAcceptReq{TransferID: 5, Accept: true}
	gotReq, err := UnmarshalFileAcceptReq(req.Marshal())
	require.NoError(t, err)
	require.Equal(t, req, gotReq)

	decline := FileAcceptReq{TransferID: 5, Accept: false}
	gotDecline, err := UnmarshalFileAcceptReq(decline.Marshal())
	require.NoError(t, err)
	require.Equal(t, decline, gotDecline)

	resp := FileAcceptResp{OK: true}
	gotResp, err := UnmarshalFileAcceptResp(resp.Marshal())
	require.NoError(t, err)
	require.Equal(t, resp, gotResp)

	fail := FileAcceptResp{OK: false, Reason: "transfer not found"}
	gotFail, err := UnmarshalFileAcceptResp(fail.Marshal())
	require.NoError(t, err)
	require.Equal(t, fail, gotFail)
}

func TestFileChunk_RoundTrip(t *testing.T) {
	chunk := FileChunk{TransferID: 5, ChunkIndex: 3, Data: []byte("some bytes of a file")}
	got, err := UnmarshalFileChunk(chunk.Marshal())
	require.NoError(t, err)
	require.Equal(t, chunk, got)
}

func TestFileChunk_EmptyData_RoundTrip(t *testing.T) {
	chunk := FileChunk{TransferID: 1, ChunkIndex: 0, Data: nil}
	got, err := UnmarshalFileChunk(chunk.Marshal())
	require.NoError(t, err)
	require.Equal(t, uint64(1), got.TransferID)
	require.Equal(t, uint32(0), got.ChunkIndex)
	require.Len(t, got.Data, 0)
}

func TestFileChunk_MaxPayload_RoundTrip(t *testing.T) {
	// The u64 transfer id and u32 chunk index take 12 bytes, leaving
	// MaxPayloadSize-12 bytes of data room within a single frame's payload;
	// verify the codec doesn't choke on a large raw tail.
	data := make([]byte, MaxPayloadSize-12)
	for i := range data {
		data[i] = byte(i)
	}
	chunk := FileChunk{TransferID: 1, ChunkIndex: 9, Data: data}
	got, err := UnmarshalFileChunk(chunk.Marshal())
	require.NoError(t, err)
	require.Equal(t, chunk.TransferID, got.TransferID)
	require.Equal(t, chunk.ChunkIndex, got.ChunkIndex)
	require.Equal(t, chunk.Data, got.Data)
}

func TestFileDone_RoundTrip(t *testing.T) {
	done := FileDone{TransferID: 5, TotalChunks: 16, FileSize: 1 << 20}
	got, err := UnmarshalFileDone(done.Marshal())
	require.NoError(t, err)
	require.Equal(t, done, got)
}

func TestFileDone_ZeroLengthFile_RoundTrip(t *testing.T) {
	done := FileDone{TransferID: 5, TotalChunks: 0, FileSize: 0}
	got, err := UnmarshalFileDone(done.Marshal())
	require.NoError(t, err)
	require.Equal(t, done, got)
}

func TestFileResult_RoundTrip(t *testing.T) {
	ok := FileResult{TransferID: 5, OK: true, PathOrErr: "bob/report.pdf"}
	gotOK, err := UnmarshalFileResult(ok.Marshal())
	require.NoError(t, err)
	require.Equal(t, ok, gotOK)

	fail := FileResult{TransferID: 5, OK: false, PathOrErr: "disk full"}
	gotFail, err := UnmarshalFileResult(fail.Marshal())
	require.NoError(t, err)
	require.Equal(t, fail, gotFail)
}

func TestUnmarshal_TruncatedPayloads_Error(t *testing.T) {
	_, err := UnmarshalRegisterReq(nil)
	require.Error(t, err)

	_, err = UnmarshalLoginResp([]byte{1})
	require.Error(t, err)

	_, err = UnmarshalFileOfferReq([]byte{0, 0, 0, 0, 0, 0, 0, 1})
	require.Error(t, err)

	_, err = UnmarshalFileChunk([]byte{0, 0, 0, 0, 0, 0, 0, 1})
	require.Error(t, err)
}
