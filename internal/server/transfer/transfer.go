// Package transfer implements the in-memory transfer broker: the state
// machine a file offer moves through from the moment a sender proposes it
// to the moment the receiver's copy is confirmed complete or the transfer
// fails.
package transfer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsxbroker/fsx/internal/common"
)

// State is a transfer's position in its state machine. The only legal
// forward moves are Offered->Accepted->Receiving->Completed; Failed is
// reachable from any non-terminal state.
type State int

const (
	Offered State = iota
	Accepted
	Receiving
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Offered:
		return "offered"
	case Accepted:
		return "accepted"
	case Receiving:
		return "receiving"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) terminal() bool {
	return s == Completed || s == Failed
}

// Transfer is one file offer tracked by the broker, from FILE_OFFER_REQ
// through its terminal outcome.
type Transfer struct {
	ID               uint64
	SenderUsername   string
	SenderToken      string
	ReceiverUsername string
	ReceiverToken    string
	Filename         string
	FileSize         uint64
	ChunkSize        uint32
	State            State
	NextChunkIndex   uint32
	BytesReceived    uint64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Broker tracks every in-flight transfer by id, guarding concurrent access
// from the many connection goroutines that can touch the same transfer
// (sender streaming chunks, receiver accepting, a sweep reaping it for
// inactivity).
type Broker struct {
	mu        sync.Mutex
	transfers map[uint64]*Transfer
	nextID    atomic.Uint64
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{transfers: make(map[uint64]*Transfer)}
}

// Create records a new Offered transfer and returns it with a freshly
// allocated id. senderToken is captured so a later handler can push a
// notification onto the sender's connection without needing its own
// authenticated request in flight.
func (b *Broker) Create(sender, senderToken, receiver, filename string, fileSize uint64, chunkSize uint32) *Transfer {
	now := time.Now()
	t := &Transfer{
		ID:               b.nextID.Add(1),
		SenderUsername:   sender,
		SenderToken:      senderToken,
		ReceiverUsername: receiver,
		Filename:         filename,
		FileSize:         fileSize,
		ChunkSize:        chunkSize,
		State:            Offered,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	b.mu.Lock()
	b.transfers[t.ID] = t
	b.mu.Unlock()

	return t
}

// Get returns the transfer with the given id, or common.ErrNotFound.
func (b *Broker) Get(id uint64) (*Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.transfers[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return t, nil
}

// Accept moves id from Offered to Accepted on behalf of receiver, or to
// Failed if the receiver declined. It rejects a caller who is not the
// transfer's receiver and a transfer not currently Offered. receiverToken
// is stashed on the transfer (mirroring SenderToken) so a later sweep can
// tell whether the receiver's connection is still present in the online
// registry without needing a live request from it.
func (b *Broker) Accept(id uint64, receiver, receiverToken string, accept bool) (*Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if t.ReceiverUsername != receiver {
		return nil, common.ErrWrongUser
	}
	if t.State != Offered {
		return nil, common.ErrBadState
	}

	if !accept {
		t.State = Failed
	} else {
		t.State = Accepted
		t.ReceiverToken = receiverToken
	}
	t.UpdatedAt = time.Now()
	return t, nil
}

// MarkChunkReceived validates that chunkIndex is the transfer's expected
// next index, advances it, moves the transfer to Receiving on its first
// chunk, and accumulates the byte count.
func (b *Broker) MarkChunkReceived(id uint64, receiver string, chunkIndex uint32, n int) (*Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if t.ReceiverUsername != receiver {
		return nil, common.ErrWrongUser
	}
	if t.State != Accepted && t.State != Receiving {
		return nil, common.ErrBadState
	}
	if chunkIndex != t.NextChunkIndex {
		return nil, common.ErrOutOfOrder
	}

	t.State = Receiving
	t.NextChunkIndex++
	t.BytesReceived += uint64(n)
	t.UpdatedAt = time.Now()
	return t, nil
}

// Complete moves id to Completed. It rejects a transfer still Offered or
// already terminal; a transfer in Accepted counts as receiving, since
// FILE_DONE with zero chunks for a zero-length file never calls
// MarkChunkReceived.
func (b *Broker) Complete(id uint64, receiver string) (*Transfer, error) {
	return b.finish(id, receiver, Completed)
}

// Fail moves id to Failed from any non-terminal state.
func (b *Broker) Fail(id uint64, receiver string) (*Transfer, error) {
	return b.finish(id, receiver, Failed)
}

func (b *Broker) finish(id uint64, receiver string, to State) (*Transfer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.transfers[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	if t.ReceiverUsername != receiver {
		return nil, common.ErrWrongUser
	}
	if t.State.terminal() {
		return nil, common.ErrBadState
	}
	if to == Completed && t.State == Offered {
		return nil, common.ErrBadState
	}

	t.State = to
	t.UpdatedAt = time.Now()
	return t, nil
}

// Remove deletes a transfer from the broker outright, used once a terminal
// transfer's staging files have been finalized or cleaned up and there is
// nothing left to look up.
func (b *Broker) Remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.transfers, id)
}

// SweepOfferTTL fails every Offered transfer whose last update is older
// than maxAge, returning the transfers it moved to Failed so the caller
// can clean up their staging files. An offer nobody ever accepted or
// rejected would otherwise sit forever, since nothing else moves it out
// of Offered.
func (b *Broker) SweepOfferTTL(maxAge time.Duration) []*Transfer {
	cutoff := time.Now().Add(-maxAge)

	b.mu.Lock()
	defer b.mu.Unlock()

	var reaped []*Transfer
	for _, t := range b.transfers {
		if t.State == Offered && t.UpdatedAt.Before(cutoff) {
			t.State = Failed
			t.UpdatedAt = time.Now()
			reaped = append(reaped, t)
		}
	}
	return reaped
}

// SweepAbandoned fails every Accepted or Receiving transfer whose sender
// or receiver connection has dropped out of the online registry, per
// online. Either side disconnecting mid-transfer leaves it unable to
// finish: the sender can no longer stream FILE_CHUNK/FILE_DONE, and a
// receiver that vanished mid-stream has no connection left to deliver the
// finished file to.
func (b *Broker) SweepAbandoned(online func(token string) bool) []*Transfer {
	b.mu.Lock()
	defer b.mu.Unlock()

	var reaped []*Transfer
	for _, t := range b.transfers {
		if t.State != Accepted && t.State != Receiving {
			continue
		}
		if online(t.SenderToken) && online(t.ReceiverToken) {
			continue
		}
		t.State = Failed
		t.UpdatedAt = time.Now()
		reaped = append(reaped, t)
	}
	return reaped
}
