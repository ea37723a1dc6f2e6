package wire

// Hello carries the client-declared name sent right after connecting.
// It is log-only: the server neither validates it nor replies.
type Hello struct {
	Name []byte
}

func (m Hello) Marshal() []byte { return NewEncoder().Raw(m.Name).Bytes() }

func UnmarshalHello(payload []byte) Hello {
	return Hello{Name: payload}
}

// Ping/Pong carry an arbitrary payload; the server always replies with the
// literal bytes "pong" regardless of what the client sent.
type Ping struct {
	Data []byte
}

func (m Ping) Marshal() []byte { return NewEncoder().Raw(m.Data).Bytes() }

func UnmarshalPing(payload []byte) Ping { return Ping{Data: payload} }

type Pong struct {
	Data []byte
}

func (m Pong) Marshal() []byte { return NewEncoder().Raw(m.Data).Bytes() }

func UnmarshalPong(payload []byte) Pong { return Pong{Data: payload} }

// RegisterReq is REGISTER_REQ: str username, str email, str password.
type RegisterReq struct {
	Username string
	Email    string
	Password string
}

func (m RegisterReq) Marshal() []byte {
	return NewEncoder().String(m.Username).String(m.Email).String(m.Password).Bytes()
}

func UnmarshalRegisterReq(payload []byte) (RegisterReq, error) {
	d := NewDecoder(payload)
	username, err := d.String()
	if err != nil {
		return RegisterReq{}, err
	}
	email, err := d.String()
	if err != nil {
		return RegisterReq{}, err
	}
	password, err := d.String()
	if err != nil {
		return RegisterReq{}, err
	}
	return RegisterReq{Username: username, Email: email, Password: password}, nil
}

// RegisterResp is REGISTER_RESP: u8 ok, str message.
type RegisterResp struct {
	OK      bool
	Message string
}

func (m RegisterResp) Marshal() []byte {
	return NewEncoder().Uint8(boolByte(m.OK)).String(m.Message).Bytes()
}

func UnmarshalRegisterResp(payload []byte) (RegisterResp, error) {
	d := NewDecoder(payload)
	ok, err := d.Uint8()
	if err != nil {
		return RegisterResp{}, err
	}
	msg, err := d.String()
	if err != nil {
		return RegisterResp{}, err
	}
	return RegisterResp{OK: ok != 0, Message: msg}, nil
}

// LoginReq is LOGIN_REQ: str username, str password.
type LoginReq struct {
	Username string
	Password string
}

func (m LoginReq) Marshal() []byte {
	return NewEncoder().String(m.Username).String(m.Password).Bytes()
}

func UnmarshalLoginReq(payload []byte) (LoginReq, error) {
	d := NewDecoder(payload)
	username, err := d.String()
	if err != nil {
		return LoginReq{}, err
	}
	password, err := d.String()
	if err != nil {
		return LoginReq{}, err
	}
	return LoginReq{Username: username, Password: password}, nil
}

// LoginResp is LOGIN_RESP: u8 ok; if ok: str token, i64 user_id,
// str username; then str message.
type LoginResp struct {
	OK       bool
	Token    string
	UserID   int64
	Username string
	Message  string
}

func (m LoginResp) Marshal() []byte {
	e := NewEncoder().Uint8(boolByte(m.OK))
	if m.OK {
		e.String(m.Token).Uint64(uint64(m.UserID)).String(m.Username)
	}
	e.String(m.Message)
	return e.Bytes()
}

func UnmarshalLoginResp(payload []byte) (LoginResp, error) {
	d := NewDecoder(payload)
	okByte, err := d.Uint8()
	if err != nil {
		return LoginResp{}, err
	}
	m := LoginResp{OK: okByte != 0}
	if m.OK {
		if m.Token, err = d.String(); err != nil {
			return LoginResp{}, err
		}
		uid, err := d.Uint64()
		if err != nil {
			return LoginResp{}, err
		}
		m.UserID = int64(uid)
		if m.Username, err = d.String(); err != nil {
			return LoginResp{}, err
		}
	}
	if m.Message, err = d.String(); err != nil {
		return LoginResp{}, err
	}
	return m, nil
}

// OnlineListReq is ONLINE_LIST_REQ: empty payload.
type OnlineListReq struct{}

func (m OnlineListReq) Marshal() []byte { return nil }

// OnlineListResp is ONLINE_LIST_RESP: u16 count, then count x str username.
type OnlineListResp struct {
	Usernames []string
}

func (m OnlineListResp) Marshal() []byte {
	e := NewEncoder().Uint16(uint16(len(m.Usernames)))
	for _, u := range m.Usernames {
		e.String(u)
	}
	return e.Bytes()
}

func UnmarshalOnlineListResp(payload []byte) (OnlineListResp, error) {
	d := NewDecoder(payload)
	count, err := d.Uint16()
	if err != nil {
		return OnlineListResp{}, err
	}
	usernames := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		u, err := d.String()
		if err != nil {
			return OnlineListResp{}, err
		}
		usernames = append(usernames, u)
	}
	return OnlineListResp{Usernames: usernames}, nil
}

// FileOfferReq is FILE_OFFER_REQ: u64 client_id, str receiver_username,
// str filename, u64 file_size, u32 chunk_size.
type FileOfferReq struct {
	ClientID         uint64
	ReceiverUsername string
	Filename         string
	FileSize         uint64
	ChunkSize        uint32
}

func (m FileOfferReq) Marshal() []byte {
	return NewEncoder().
		Uint64(m.ClientID).
		String(m.ReceiverUsername).
		String(m.Filename).
		Uint64(m.FileSize).
		Uint32(m.ChunkSize).
		Bytes()
}

func UnmarshalFileOfferReq(payload []byte) (FileOfferReq, error) {
	d := NewDecoder(payload)
	var m FileOfferReq
	var err error
	if m.ClientID, err = d.Uint64(); err != nil {
		return FileOfferReq{}, err
	}
	if m.ReceiverUsername, err = d.String(); err != nil {
		return FileOfferReq{}, err
	}
	if m.Filename, err = d.String(); err != nil {
		return FileOfferReq{}, err
	}
	if m.FileSize, err = d.Uint64(); err != nil {
		return FileOfferReq{}, err
	}
	if m.ChunkSize, err = d.Uint32(); err != nil {
		return FileOfferReq{}, err
	}
	return m, nil
}

// FileOfferResp is FILE_OFFER_RESP: u8 status, u64 transfer_id; if FAIL:
// str reason. TransferID is carried as 0 on failure.
type FileOfferResp struct {
	OK         bool
	TransferID uint64
	Reason     string
}

func (m FileOfferResp) Marshal() []byte {
	e := NewEncoder().Uint8(statusByte(m.OK)).Uint64(m.TransferID)
	if !m.OK {
		e.String(m.Reason)
	}
	return e.Bytes()
}

func UnmarshalFileOfferResp(payload []byte) (FileOfferResp, error) {
	d := NewDecoder(payload)
	status, err := d.Uint8()
	if err != nil {
		return FileOfferResp{}, err
	}
	m := FileOfferResp{OK: status == StatusOK}
	if m.TransferID, err = d.Uint64(); err != nil {
		return FileOfferResp{}, err
	}
	if !m.OK {
		if m.Reason, err = d.String(); err != nil {
			return FileOfferResp{}, err
		}
	}
	return m, nil
}

// FileAcceptReq is FILE_ACCEPT_REQ: u64 transfer_id, u8 accept.
type FileAcceptReq struct {
	TransferID uint64
	Accept     bool
}

func (m FileAcceptReq) Marshal() []byte {
	return NewEncoder().Uint64(m.TransferID).Uint8(boolByte(m.Accept)).Bytes()
}

func UnmarshalFileAcceptReq(payload []byte) (FileAcceptReq, error) {
	d := NewDecoder(payload)
	var m FileAcceptReq
	var err error
	if m.TransferID, err = d.Uint64(); err != nil {
		return FileAcceptReq{}, err
	}
	accept, err := d.Uint8()
	if err != nil {
		return FileAcceptReq{}, err
	}
	m.Accept = accept != 0
	return m, nil
}

// FileAcceptResp is FILE_ACCEPT_RESP: u8 status; if FAIL: str reason.
type FileAcceptResp struct {
	OK     bool
	Reason string
}

func (m FileAcceptResp) Marshal() []byte {
	e := NewEncoder().Uint8(statusByte(m.OK))
	if !m.OK {
		e.String(m.Reason)
	}
	return e.Bytes()
}

func UnmarshalFileAcceptResp(payload []byte) (FileAcceptResp, error) {
	d := NewDecoder(payload)
	status, err := d.Uint8()
	if err != nil {
		return FileAcceptResp{}, err
	}
	m := FileAcceptResp{OK: status == StatusOK}
	if !m.OK {
		if m.Reason, err = d.String(); err != nil {
			return FileAcceptResp{}, err
		}
	}
	return m, nil
}

// FileChunk is FILE_CHUNK: u64 transfer_id, u32 chunk_index, raw bytes.
type FileChunk struct {
	TransferID uint64
	ChunkIndex uint32
	Data       []byte
}

func (m FileChunk) Marshal() []byte {
	return NewEncoder().Uint64(m.TransferID).Uint32(m.ChunkIndex).Raw(m.Data).Bytes()
}

func UnmarshalFileChunk(payload []byte) (FileChunk, error) {
	d := NewDecoder(payload)
	var m FileChunk
	var err error
	if m.TransferID, err = d.Uint64(); err != nil {
		return FileChunk{}, err
	}
	if m.ChunkIndex, err = d.Uint32(); err != nil {
		return FileChunk{}, err
	}
	m.Data = d.Rest()
	return m, nil
}

// FileDone is FILE_DONE: u64 transfer_id, u32 total_chunks, u64 file_size.
type FileDone struct {
	TransferID  uint64
	TotalChunks uint32
	FileSize    uint64
}

func (m FileDone) Marshal() []byte {
	return NewEncoder().Uint64(m.TransferID).Uint32(m.TotalChunks).Uint64(m.FileSize).Bytes()
}

func UnmarshalFileDone(payload []byte) (FileDone, error) {
	d := NewDecoder(payload)
	var m FileDone
	var err error
	if m.TransferID, err = d.Uint64(); err != nil {
		return FileDone{}, err
	}
	if m.TotalChunks, err = d.Uint32(); err != nil {
		return FileDone{}, err
	}
	if m.FileSize, err = d.Uint64(); err != nil {
		return FileDone{}, err
	}
	return m, nil
}

// FileResult is FILE_RESULT: u64 transfer_id, u8 status, str
// path_or_reason.
type FileResult struct {
	TransferID uint64
	OK         bool
	PathOrErr  string
}

func (m FileResult) Marshal() []byte {
	return NewEncoder().Uint64(m.TransferID).Uint8(statusByte(m.OK)).String(m.PathOrErr).Bytes()
}

func UnmarshalFileResult(payload []byte) (FileResult, error) {
	d := NewDecoder(payload)
	var m FileResult
	var err error
	if m.TransferID, err = d.Uint64(); err != nil {
		return FileResult{}, err
	}
	status, err := d.Uint8()
	if err != nil {
		return FileResult{}, err
	}
	m.OK = status == StatusOK
	if m.PathOrErr, err = d.String(); err != nil {
		return FileResult{}, err
	}
	return m, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
