package conn

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsxbroker/fsx/internal/filex"
)

// UploadTracker tracks the open staging-file handle for every transfer currently
// receiving chunks. A transfer's handle outlives any single connection: the
// sender that streams FILE_CHUNK can reconnect mid-upload in principle, so
// the handle is keyed by transfer id in a structure shared across every
// Conn rather than held on the Conn that happened to accept the offer.
type UploadTracker struct {
	store *filex.Store

	mu      sync.Mutex
	handles map[uint64]*os.File
}

// NewUploadTracker returns an upload tracker backed by store, shared
// across every Conn the server accepts.
func NewUploadTracker(store *filex.Store) *UploadTracker {
	return &UploadTracker{store: store, handles: make(map[uint64]*os.File)}
}

// open creates (or reuses) the staging handle for transferID.
func (u *UploadTracker) open(transferID uint64, filename string) (*os.File, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if f, ok := u.handles[transferID]; ok {
		return f, nil
	}
	f, err := u.store.OpenForWrite(transferID, filename)
	if err != nil {
		return nil, err
	}
	u.handles[transferID] = f
	return f, nil
}

// write appends payload to transferID's staging handle, opening it first if
// this is the first chunk received.
func (u *UploadTracker) write(transferID uint64, filename string, payload []byte) (int, error) {
	f, err := u.open(transferID, filename)
	if err != nil {
		return 0, err
	}
	return u.store.WriteChunk(f, payload)
}

// finalize closes and renames transferID's staging handle to its final
// path, removing it from the tracker either way.
func (u *UploadTracker) finalize(transferID uint64, filename string) error {
	u.mu.Lock()
	f, ok := u.handles[transferID]
	delete(u.handles, transferID)
	u.mu.Unlock()

	if !ok {
		return fmt.Errorf("uploads: no open handle for transfer %d", transferID)
	}
	return u.store.Finalize(transferID, filename, f)
}

// finalPath returns the filesystem path a finalized transfer's file will
// be renamed to.
func (u *UploadTracker) finalPath(transferID uint64, filename string) string {
	return u.store.FinalPath(transferID, filename)
}

// Abort closes transferID's staging handle (if any) and removes its
// partial data from disk.
func (u *UploadTracker) Abort(transferID uint64) error {
	u.mu.Lock()
	f, ok := u.handles[transferID]
	delete(u.handles, transferID)
	u.mu.Unlock()

	if ok {
		_ = f.Close()
	}
	return u.store.Cleanup(transferID)
}

// CloseAll aborts every transfer with a currently open staging handle,
// discarding its partial data. Used on shutdown so a transfer caught
// mid-write never leaves a `.part` file behind for the next run to trip
// over.
func (u *UploadTracker) CloseAll() {
	u.mu.Lock()
	ids := make([]uint64, 0, len(u.handles))
	for id := range u.handles {
		ids = append(ids, id)
	}
	u.mu.Unlock()

	for _, id := range ids {
		_ = u.Abort(id)
	}
}
