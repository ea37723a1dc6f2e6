package conn

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/fsxbroker/fsx/internal/common"
	"github.com/fsxbroker/fsx/internal/dbx"
	"github.com/fsxbroker/fsx/internal/filex"
	"github.com/fsxbroker/fsx/internal/logging"
	"github.com/fsxbroker/fsx/internal/server/credential"
	"github.com/fsxbroker/fsx/internal/server/models"
	"github.com/fsxbroker/fsx/internal/server/registry"
	sessionsrepo "github.com/fsxbroker/fsx/internal/server/repositories/sessions"
	usersrepo "github.com/fsxbroker/fsx/internal/server/repositories/users"
	"github.com/fsxbroker/fsx/internal/server/transfer"
	"github.com/fsxbroker/fsx/internal/wire"
	"github.com/stretchr/testify/require"
)

type fakeUsersRepo struct {
	nextID     int64
	byUsername map[string]*models.User
	byID       map[int64]*models.User
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byUsername: map[string]*models.User{}, byID: map[int64]*models.User{}}
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if _, exists := f.byUsername[u.Username]; exists {
		return nil, common.ErrAlreadyExists
	}
	f.nextID++
	u.ID = f.nextID
	f.byUsername[u.Username] = u
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsersRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

type fakeSessionsRepo struct {
	nextID  int64
	byToken map[string]*models.Session
}

func newFakeSessionsRepo() *fakeSessionsRepo {
	return &fakeSessionsRepo{byToken: map[string]*models.Session{}}
}

func (f *fakeSessionsRepo) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.Session, error) {
	f.nextID++
	s := &models.Session{ID: f.nextID, UserID: userID, Token: token, ExpiresAt: expiresAt}
	f.byToken[token] = s
	return s, nil
}

func (f *fakeSessionsRepo) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	s, ok := f.byToken[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	return s, nil
}

func (f *fakeSessionsRepo) TouchLastSeen(ctx context.Context, token string) error {
	if _, ok := f.byToken[token]; !ok {
		return common.ErrNotFound
	}
	return nil
}

func (f *fakeSessionsRepo) Delete(ctx context.Context, token string) error {
	delete(f.byToken, token)
	return nil
}

func (f *fakeSessionsRepo) DeleteExpired(ctx context.Context) (int64, error) { return 0, nil }

type fakeRepoManager struct {
	u *fakeUsersRepo
	s *fakeSessionsRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository       { return m.u }
func (m *fakeRepoManager) Sessions(db dbx.DBTX) sessionsrepo.Repository { return m.s }

// harness wires one Conn to an in-memory net.Pipe, backed by fake
// repositories and a temp-dir staging store, and returns the client end
// of the pipe plus helpers to drive it.
type harness struct {
	t      *testing.T
	client net.Conn
	reg    *registry.Registry[Conn]
	broker *transfer.Broker
	repos  *fakeRepoManager
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	client, server := net.Pipe()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos := &fakeRepoManager{u: newFakeUsersRepo(), s: newFakeSessionsRepo()}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cred := credential.New(db, repos, time.Hour, log)

	store, err := filex.NewStore(t.TempDir())
	require.NoError(t, err)

	reg := registry.New[Conn]()
	broker := transfer.NewBroker()
	ups := NewUploadTracker(store)

	c := New(server, cred, reg, broker, ups, log)
	go c.Serve(context.Background())
	t.Cleanup(func() { client.Close() })

	return &harness{t: t, client: client, reg: reg, broker: broker, repos: repos}
}

func (h *harness) send(msgType byte, payload []byte) {
	require.NoError(h.t, wire.WriteFrame(h.client, msgType, payload))
}

func (h *harness) recv() (byte, []byte) {
	h.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, payload, err := wire.ReadFrame(h.client)
	require.NoError(h.t, err)
	return msgType, payload
}

func (h *harness) register(username, email, password string) wire.RegisterResp {
	h.send(wire.TypeRegisterReq, wire.RegisterReq{Username: username, Email: email, Password: password}.Marshal())
	_, payload := h.recv()
	resp, err := wire.UnmarshalRegisterResp(payload)
	require.NoError(h.t, err)
	return resp
}

func (h *harness) login(username, password string) wire.LoginResp {
	h.send(wire.TypeLoginReq, wire.LoginReq{Username: username, Password: password}.Marshal())
	_, payload := h.recv()
	resp, err := wire.UnmarshalLoginResp(payload)
	require.NoError(h.t, err)
	return resp
}

func TestRegisterThenLogin(t *testing.T) {
	h := newHarness(t)

	reg := h.register("alice", "alice@example.com", "pw12345")
	require.True(t, reg.OK)
	require.Equal(t, "user created successfully", reg.Message)

	login := h.login("alice", "pw12345")
	require.True(t, login.OK)
	require.Equal(t, "alice", login.Username)
	require.NotEmpty(t, login.Token)
}

func TestRegister_Duplicate(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.register("alice", "a@x.com", "pw12345").OK)
	dup := h.register("alice", "a@x.com", "pw12345")
	require.False(t, dup.OK)
	require.Equal(t, "username already exists", dup.Message)
}

func TestLogin_WrongPassword(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.register("alice", "a@x.com", "pw12345").OK)

	resp := h.login("alice", "wrong")
	require.False(t, resp.OK)
	require.Equal(t, "invalid username or password", resp.Message)
}

func TestPing_AlwaysRepliesPong(t *testing.T) {
	h := newHarness(t)
	h.send(wire.TypePing, []byte("whatever"))

	msgType, payload := h.recv()
	require.Equal(t, byte(wire.TypePong), msgType)
	pong := wire.UnmarshalPong(payload)
	require.Equal(t, []byte("pong"), pong.Data)
}

func TestFileOffer_BeforeLogin_NotAuthenticated(t *testing.T) {
	h := newHarness(t)

	h.send(wire.TypeFileOfferReq, wire.FileOfferReq{ReceiverUsername: "bob", Filename: "f.bin", FileSize: 1, ChunkSize: 65536}.Marshal())
	_, payload := h.recv()
	resp, err := wire.UnmarshalFileOfferResp(payload)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "Not authenticated", resp.Reason)
}

func TestFileOffer_UnknownReceiver(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.register("alice", "a@x.com", "pw12345").OK)
	require.True(t, h.login("alice", "pw12345").OK)

	h.send(wire.TypeFileOfferReq, wire.FileOfferReq{ReceiverUsername: "ghost", Filename: "f.bin", FileSize: 1, ChunkSize: 65536}.Marshal())
	_, payload := h.recv()
	resp, err := wire.UnmarshalFileOfferResp(payload)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "Receiver not found", resp.Reason)
}

func TestFileOffer_TraversalFilename_Rejected(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.register("alice", "a@x.com", "pw12345").OK)
	require.True(t, h.register("bob", "b@x.com", "pw12345").OK)
	require.True(t, h.login("alice", "pw12345").OK)

	h.send(wire.TypeFileOfferReq, wire.FileOfferReq{ReceiverUsername: "bob", Filename: "../../etc/passwd", FileSize: 1, ChunkSize: 65536}.Marshal())
	_, payload := h.recv()
	resp, err := wire.UnmarshalFileOfferResp(payload)
	require.NoError(t, err)
	require.False(t, resp.OK)
	require.Equal(t, "Invalid filename", resp.Reason)
}

func TestOnlineList_ServedBeforeLogin(t *testing.T) {
	h := newHarness(t)
	h.send(wire.TypeOnlineListReq, nil)

	_, payload := h.recv()
	resp, err := wire.UnmarshalOnlineListResp(payload)
	require.NoError(t, err)
	require.Empty(t, resp.Usernames)
}

// TestHappyPathTransfer drives two connections through a full offer,
// accept, chunk, and completion cycle and checks the finalized bytes on
// disk.
func TestHappyPathTransfer(t *testing.T) {
	clientA, serverA := net.Pipe()
	clientB, serverB := net.Pipe()
	defer clientA.Close()
	defer clientB.Close()

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repos := &fakeRepoManager{u: newFakeUsersRepo(), s: newFakeSessionsRepo()}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cred := credential.New(db, repos, time.Hour, log)

	dir := t.TempDir()
	store, err := filex.NewStore(dir)
	require.NoError(t, err)

	reg := registry.New[Conn]()
	broker := transfer.NewBroker()
	ups := NewUploadTracker(store)

	connA := New(serverA, cred, reg, broker, ups, log)
	connB := New(serverB, cred, reg, broker, ups, log)
	go connA.Serve(context.Background())
	go connB.Serve(context.Background())

	hA := &harness{t: t, client: clientA}
	hB := &harness{t: t, client: clientB}

	require.True(t, hA.register("alice", "a@x.com", "pw12345").OK)
	require.True(t, hB.register("bob", "b@x.com", "pw12345").OK)
	require.True(t, hA.login("alice", "pw12345").OK)
	require.True(t, hB.login("bob", "pw12345").OK)

	hA.send(wire.TypeFileOfferReq, wire.FileOfferReq{ReceiverUsername: "bob", Filename: "g.txt", FileSize: 6, ChunkSize: 262144}.Marshal())
	_, offerPayload := hA.recv()
	offerResp, err := wire.UnmarshalFileOfferResp(offerPayload)
	require.NoError(t, err)
	require.True(t, offerResp.OK)
	transferID := offerResp.TransferID

	hB.send(wire.TypeFileAcceptReq, wire.FileAcceptReq{TransferID: transferID, Accept: true}.Marshal())

	// B's own reply and A's pushed notification can interleave; read one
	// frame from each socket.
	_, acceptReplyPayload := hB.recv()
	acceptReply, err := wire.UnmarshalFileAcceptResp(acceptReplyPayload)
	require.NoError(t, err)
	require.True(t, acceptReply.OK)

	_, pushPayload := hA.recv()
	push, err := wire.UnmarshalFileAcceptResp(pushPayload)
	require.NoError(t, err)
	require.True(t, push.OK)

	hA.send(wire.TypeFileChunk, wire.FileChunk{TransferID: transferID, ChunkIndex: 0, Data: []byte("hello\n")}.Marshal())
	hA.send(wire.TypeFileDone, wire.FileDone{TransferID: transferID, TotalChunks: 1, FileSize: 6}.Marshal())

	_, resultPayload := hA.recv()
	result, err := wire.UnmarshalFileResult(resultPayload)
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, transferID, result.TransferID)

	data, err := os.ReadFile(result.PathOrErr)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(data))
}
