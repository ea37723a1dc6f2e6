// Package conn implements the per-connection state machine (component
// C6): the read loop and outbound write queue for one TCP client, and the
// dispatch of every inbound message type to the credential, registry, and
// transfer services it shares with the rest of the server.
package conn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/fsxbroker/fsx/internal/common"
	"github.com/fsxbroker/fsx/internal/logging"
	"github.com/fsxbroker/fsx/internal/server/credential"
	"github.com/fsxbroker/fsx/internal/server/registry"
	"github.com/fsxbroker/fsx/internal/server/transfer"
	"github.com/fsxbroker/fsx/internal/wire"
	"github.com/google/uuid"
)

const outboxSize = 64

// outboundFrame is one queued write: a message type and its already
// encoded payload.
type outboundFrame struct {
	msgType byte
	payload []byte
}

// Conn owns one client's socket: a reader goroutine that dispatches
// inbound frames and a writer goroutine draining an outbound queue, so a
// slow or stalled peer on one side never blocks the other.
type Conn struct {
	id  string
	nc  net.Conn
	log logging.Logger

	cred     *credential.Service
	registry *registry.Registry[Conn]
	broker   *transfer.Broker
	uploads  *UploadTracker

	outbox chan outboundFrame
	done   chan struct{}
	once   sync.Once

	mu            sync.Mutex
	authenticated bool
	userID        int64
	username      string
	token         string
}

// New wraps nc as a Conn backed by the given services. It does not start
// the connection's goroutines; call Serve for that.
func New(nc net.Conn, cred *credential.Service, reg *registry.Registry[Conn], broker *transfer.Broker, up *UploadTracker, log logging.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:       id,
		nc:       nc,
		log:      log.With("conn_id", id, "remote_addr", nc.RemoteAddr().String()),
		cred:     cred,
		registry: reg,
		broker:   broker,
		uploads:  up,
		outbox:   make(chan outboundFrame, outboxSize),
		done:     make(chan struct{}),
	}
}

// Username returns the authenticated username, or "" before login.
func (c *Conn) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Send queues a message for the writer goroutine. It blocks while the
// outbound queue is full and returns immediately if the connection has
// already closed.
func (c *Conn) Send(msgType byte, payload []byte) error {
	select {
	case c.outbox <- outboundFrame{msgType: msgType, payload: payload}:
		return nil
	case <-c.done:
		return fmt.Errorf("conn: closed")
	}
}

// Serve runs the write loop in a new goroutine and the read loop on the
// calling goroutine, blocking until the connection closes for any reason.
func (c *Conn) Serve(ctx context.Context) {
	go c.writeLoop()
	c.readLoop(ctx)
	c.Close()
}

// Close tears the connection down exactly once: closes the socket, stops
// the writer goroutine, and, if an identity was ever set on it, evicts
// this connection from the registry and revokes its session so a reused
// token cannot be resurrected by a race with a late registry lookup.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.nc.Close()
		if token := c.authToken(); token != "" {
			c.registry.Remove(token, c)
			if err := c.cred.Logout(context.Background(), token); err != nil {
				c.log.Warn(context.Background(), "revoke session on close failed", "err", err)
			}
		}
	})
}

func (c *Conn) writeLoop() {
	for {
		select {
		case frame := <-c.outbox:
			if err := wire.WriteFrame(c.nc, frame.msgType, frame.payload); err != nil {
				c.log.Warn(context.Background(), "write failed", "err", err)
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		msgType, payload, err := wire.ReadFrame(c.nc)
		if err != nil {
			c.log.Info(ctx, "connection closed", "err", err)
			return
		}
		c.dispatch(ctx, msgType, payload)
	}
}

// allowedUnauth reports whether msgType may be processed before login.
// ONLINE_LIST_REQ is served regardless of authentication state, so it is
// included here alongside the unauthenticated-only handshake messages.
func allowedUnauth(msgType byte) bool {
	switch msgType {
	case wire.TypeHello, wire.TypePing, wire.TypeRegisterReq, wire.TypeLoginReq, wire.TypeOnlineListReq, wire.TypeFileOfferReq:
		return true
	}
	return false
}

// allowedAuth reports whether msgType may be processed once logged in.
func allowedAuth(msgType byte) bool {
	switch msgType {
	case wire.TypePing, wire.TypeOnlineListReq, wire.TypeFileOfferReq, wire.TypeFileAcceptReq, wire.TypeFileChunk, wire.TypeFileDone:
		return true
	}
	return false
}

// dispatch routes one decoded frame to its handler. A message type not
// permitted in the connection's current authentication state is logged
// and discarded rather than closing the connection; only a framing error
// surfaced by wire.ReadFrame is fatal to the socket.
func (c *Conn) dispatch(ctx context.Context, msgType byte, payload []byte) {
	_, _, authenticated := c.authInfo()
	permitted := allowedUnauth(msgType)
	if authenticated {
		permitted = allowedAuth(msgType)
	}
	if !permitted {
		c.log.Info(ctx, "message not permitted in current state", "msg_type", msgType, "authenticated", authenticated)
		return
	}

	switch msgType {
	case wire.TypeHello:
		hello := wire.UnmarshalHello(payload)
		c.log.Info(ctx, "hello", "name", string(hello.Name))

	case wire.TypePing:
		wire.UnmarshalPing(payload)
		c.sendOrLog(ctx, wire.TypePong, wire.Pong{Data: []byte("pong")}.Marshal())

	case wire.TypeRegisterReq:
		c.handleRegister(ctx, payload)

	case wire.TypeLoginReq:
		c.handleLogin(ctx, payload)

	case wire.TypeOnlineListReq:
		c.handleOnlineList(ctx)

	case wire.TypeFileOfferReq:
		c.handleFileOffer(ctx, payload)

	case wire.TypeFileAcceptReq:
		c.handleFileAccept(ctx, payload)

	case wire.TypeFileChunk:
		c.handleFileChunk(ctx, payload)

	case wire.TypeFileDone:
		c.handleFileDone(ctx, payload)
	}
}

func (c *Conn) sendOrLog(ctx context.Context, msgType byte, payload []byte) {
	if err := c.Send(msgType, payload); err != nil {
		c.log.Warn(ctx, "send failed", "msg_type", msgType, "err", err)
	}
}

func (c *Conn) setAuthenticated(userID int64, username, token string) {
	c.mu.Lock()
	c.authenticated = true
	c.userID = userID
	c.username = username
	c.token = token
	c.mu.Unlock()
}

func (c *Conn) authInfo() (int64, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.username, c.authenticated
}

func (c *Conn) authToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Conn) handleRegister(ctx context.Context, payload []byte) {
	req, err := wire.UnmarshalRegisterReq(payload)
	if err != nil {
		c.sendOrLog(ctx, wire.TypeRegisterResp, wire.RegisterResp{OK: false, Message: "malformed request"}.Marshal())
		return
	}

	_, regErr := c.cred.Register(ctx, req.Username, req.Email, req.Password)
	resp := wire.RegisterResp{OK: regErr == nil}
	switch {
	case regErr == nil:
		resp.Message = "user created successfully"
	case errors.Is(regErr, common.ErrAlreadyExists):
		resp.Message = "username already exists"
	default:
		resp.Message = "internal error"
	}
	c.sendOrLog(ctx, wire.TypeRegisterResp, resp.Marshal())
}

func (c *Conn) handleLogin(ctx context.Context, payload []byte) {
	req, err := wire.UnmarshalLoginReq(payload)
	if err != nil {
		c.sendOrLog(ctx, wire.TypeLoginResp, wire.LoginResp{OK: false, Message: "malformed request"}.Marshal())
		return
	}

	session, user, loginErr := c.cred.Login(ctx, req.Username, req.Password)
	if loginErr != nil {
		resp := wire.LoginResp{OK: false, Message: "invalid username or password"}
		c.sendOrLog(ctx, wire.TypeLoginResp, resp.Marshal())
		return
	}

	// The connection's identity must be visible to the registry before
	// the success reply is handed to the writer goroutine, so a peer
	// notification racing this login never misses it.
	c.setAuthenticated(user.ID, user.Username, session.Token)
	c.registry.Add(session.Token, user.Username, c)

	resp := wire.LoginResp{
		OK:       true,
		Token:    session.Token,
		UserID:   user.ID,
		Username: user.Username,
		Message:  "login successful",
	}
	c.sendOrLog(ctx, wire.TypeLoginResp, resp.Marshal())
}

// handleOnlineList serves ONLINE_LIST_RESP regardless of authentication
// state; the registry does not gate read access to who is online.
func (c *Conn) handleOnlineList(ctx context.Context) {
	resp := wire.OnlineListResp{Usernames: c.registry.OnlineUsernames()}
	c.sendOrLog(ctx, wire.TypeOnlineListResp, resp.Marshal())
}

// clampChunkSize enforces the server-side floor and ceiling on a
// sender-proposed chunk size, independent of whatever the client asked
// for: too small wastes round trips, too large risks a single write
// blowing past a frame's maximum payload.
func clampChunkSize(requested uint32) uint32 {
	const (
		min     = 1024
		max     = 1048576
		lowDef  = 65536
		highDef = 262144
	)
	if requested < min {
		return lowDef
	}
	if requested > max {
		return highDef
	}
	return requested
}

func (c *Conn) handleFileOffer(ctx context.Context, payload []byte) {
	_, sender, authenticated := c.authInfo()
	if !authenticated {
		c.sendOrLog(ctx, wire.TypeFileOfferResp, wire.FileOfferResp{OK: false, Reason: "Not authenticated"}.Marshal())
		return
	}

	req, err := wire.UnmarshalFileOfferReq(payload)
	if err != nil {
		c.sendOrLog(ctx, wire.TypeFileOfferResp, wire.FileOfferResp{OK: false, Reason: "malformed request"}.Marshal())
		return
	}

	if _, err := c.cred.LookupUsername(ctx, req.ReceiverUsername); err != nil {
		reason := "internal error"
		if errors.Is(err, common.ErrNotFound) {
			reason = "Receiver not found"
		}
		c.sendOrLog(ctx, wire.TypeFileOfferResp, wire.FileOfferResp{OK: false, Reason: reason}.Marshal())
		return
	}

	filename, ok := sanitizeFilename(req.Filename)
	if !ok {
		c.sendOrLog(ctx, wire.TypeFileOfferResp, wire.FileOfferResp{OK: false, Reason: "Invalid filename"}.Marshal())
		return
	}

	chunkSize := clampChunkSize(req.ChunkSize)
	token := c.authToken()
	t := c.broker.Create(sender, token, req.ReceiverUsername, filename, req.FileSize, chunkSize)

	c.sendOrLog(ctx, wire.TypeFileOfferResp, wire.FileOfferResp{OK: true, TransferID: t.ID}.Marshal())
}

func (c *Conn) handleFileAccept(ctx context.Context, payload []byte) {
	_, receiver, _ := c.authInfo()
	receiverToken := c.authToken()

	req, err := wire.UnmarshalFileAcceptReq(payload)
	if err != nil {
		c.sendOrLog(ctx, wire.TypeFileAcceptResp, wire.FileAcceptResp{OK: false, Reason: "malformed request"}.Marshal())
		return
	}

	t, err := c.broker.Get(req.TransferID)
	if err != nil {
		c.sendOrLog(ctx, wire.TypeFileAcceptResp, wire.FileAcceptResp{OK: false, Reason: "Transfer not found"}.Marshal())
		return
	}
	if t.ReceiverUsername != receiver {
		c.sendOrLog(ctx, wire.TypeFileAcceptResp, wire.FileAcceptResp{OK: false, Reason: "Not the receiver"}.Marshal())
		return
	}

	if !req.Accept {
		if _, err := c.broker.Accept(t.ID, receiver, receiverToken, false); err != nil {
			c.log.Warn(ctx, "reject transfer failed", "transfer_id", t.ID, "err", err)
		}
		c.pushToSender(ctx, t, wire.FileAcceptResp{OK: false, Reason: "Receiver rejected"})
		c.sendOrLog(ctx, wire.TypeFileAcceptResp, wire.FileAcceptResp{OK: true}.Marshal())
		return
	}

	if _, err := c.uploads.open(t.ID, t.Filename); err != nil {
		c.log.Error(ctx, "open staging file failed", "transfer_id", t.ID, "err", err)
		if _, ferr := c.broker.Fail(t.ID, receiver); ferr != nil {
			c.log.Warn(ctx, "mark transfer failed failed", "transfer_id", t.ID, "err", ferr)
		}
		c.sendOrLog(ctx, wire.TypeFileAcceptResp, wire.FileAcceptResp{OK: false, Reason: "Failed to open file"}.Marshal())
		return
	}

	if _, err := c.broker.Accept(t.ID, receiver, receiverToken, true); err != nil {
		c.log.Warn(ctx, "accept transfer failed", "transfer_id", t.ID, "err", err)
		c.sendOrLog(ctx, wire.TypeFileAcceptResp, wire.FileAcceptResp{OK: false, Reason: "Transfer in wrong state"}.Marshal())
		return
	}

	c.pushToSender(ctx, t, wire.FileAcceptResp{OK: true})
	c.sendOrLog(ctx, wire.TypeFileAcceptResp, wire.FileAcceptResp{OK: true}.Marshal())
}

// pushToSender delivers notice onto the sender's connection via the
// token captured when the transfer was created. A dead or absent sender
// connection drops the push silently — the sender will eventually notice
// through its own failed FILE_CHUNK writes or a closed socket.
func (c *Conn) pushToSender(ctx context.Context, t *transfer.Transfer, notice wire.FileAcceptResp) {
	senderConn, online := c.registry.Get(t.SenderToken)
	if !online {
		return
	}
	if err := senderConn.Send(wire.TypeFileAcceptResp, notice.Marshal()); err != nil {
		c.log.Warn(ctx, "push accept result to sender failed", "sender", t.SenderUsername, "err", err)
	}
}

func (c *Conn) handleFileChunk(ctx context.Context, payload []byte) {
	_, sender, _ := c.authInfo()

	chunk, err := wire.UnmarshalFileChunk(payload)
	if err != nil {
		c.log.Warn(ctx, "malformed file chunk", "err", err)
		return
	}

	t, err := c.broker.Get(chunk.TransferID)
	if err != nil {
		c.log.Warn(ctx, "file chunk for unknown transfer", "transfer_id", chunk.TransferID)
		return
	}
	if t.SenderUsername != sender {
		c.log.Warn(ctx, "file chunk from wrong sender", "transfer_id", t.ID, "sender", sender)
		c.failTransfer(ctx, t)
		return
	}

	if _, err := c.uploads.write(t.ID, t.Filename, chunk.Data); err != nil {
		c.log.Error(ctx, "staging write failed", "transfer_id", t.ID, "err", err)
		c.failTransfer(ctx, t)
		return
	}

	if _, err := c.broker.MarkChunkReceived(t.ID, t.ReceiverUsername, chunk.ChunkIndex, len(chunk.Data)); err != nil {
		c.log.Warn(ctx, "chunk rejected", "transfer_id", t.ID, "err", err)
		c.failTransfer(ctx, t)
		return
	}
}

// failTransfer moves t to Failed and discards its partial staging data.
// Per the wire contract, no reply is sent for a failed FILE_CHUNK — the
// sender learns the outcome from FILE_RESULT after FILE_DONE, or from
// its socket closing.
func (c *Conn) failTransfer(ctx context.Context, t *transfer.Transfer) {
	if _, err := c.broker.Fail(t.ID, t.ReceiverUsername); err != nil {
		c.log.Warn(ctx, "mark transfer failed failed", "transfer_id", t.ID, "err", err)
	}
	if err := c.uploads.Abort(t.ID); err != nil {
		c.log.Warn(ctx, "abort staging failed", "transfer_id", t.ID, "err", err)
	}
}

func (c *Conn) handleFileDone(ctx context.Context, payload []byte) {
	_, sender, _ := c.authInfo()

	done, err := wire.UnmarshalFileDone(payload)
	if err != nil {
		c.log.Warn(ctx, "malformed file done", "err", err)
		return
	}

	t, err := c.broker.Get(done.TransferID)
	if err != nil {
		c.log.Warn(ctx, "file done for unknown transfer", "transfer_id", done.TransferID)
		return
	}
	if t.SenderUsername != sender {
		c.log.Warn(ctx, "file done from wrong sender", "transfer_id", t.ID, "sender", sender)
		return
	}

	finalizeErr := c.uploads.finalize(t.ID, t.Filename)

	result := wire.FileResult{TransferID: t.ID}
	if finalizeErr != nil {
		c.log.Error(ctx, "finalize failed", "transfer_id", t.ID, "err", finalizeErr)
		if _, err := c.broker.Fail(t.ID, t.ReceiverUsername); err != nil {
			c.log.Warn(ctx, "mark transfer failed failed", "transfer_id", t.ID, "err", err)
		}
		result.OK = false
		result.PathOrErr = "server storage error"
	} else {
		if _, err := c.broker.Complete(t.ID, t.ReceiverUsername); err != nil {
			c.log.Warn(ctx, "mark transfer complete failed", "transfer_id", t.ID, "err", err)
		}
		result.OK = true
		result.PathOrErr = c.uploads.finalPath(t.ID, t.Filename)
	}

	c.sendOrLog(ctx, wire.TypeFileResult, result.Marshal())
}
