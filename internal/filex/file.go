// Package filex implements on-disk staging for in-flight transfers:
// per-transfer directories holding a ".part" file while a sender streams
// chunks, renamed to the final filename once the sender's FILE_DONE
// arrives.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Store roots every transfer's staging directory under baseDir, using the
// layout <base>/<transfer_id>/<filename>[.part].
type Store struct {
	baseDir string
}

// NewStore creates (if missing) baseDir and returns a Store rooted there.
func NewStore(baseDir string) (*Store, error) {
	if err := ensureDir(baseDir); err != nil {
		return nil, err
	}
	return &Store{baseDir: baseDir}, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return nil
}

func (s *Store) transferDir(transferID uint64) string {
	return filepath.Join(s.baseDir, strconv.FormatUint(transferID, 10))
}

// TempPath returns <base>/<transferID>/<filename>.part.
func (s *Store) TempPath(transferID uint64, filename string) string {
	return filepath.Join(s.transferDir(transferID), filename+".part")
}

// FinalPath returns <base>/<transferID>/<filename>.
func (s *Store) FinalPath(transferID uint64, filename string) string {
	return filepath.Join(s.transferDir(transferID), filename)
}

// OpenForWrite creates the transfer's directory if needed and opens its
// ".part" file in truncate-write mode, returning the handle the caller must
// pass to WriteChunk and Finalize.
func (s *Store) OpenForWrite(transferID uint64, filename string) (*os.File, error) {
	dir := s.transferDir(transferID)
	if err := ensureDir(dir); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(s.TempPath(transferID, filename), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o660)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.TempPath(transferID, filename), err)
	}
	return f, nil
}

// WriteChunk appends payload to the open ".part" handle and flushes it, so
// durability is visible to anything else in this process reading the file.
func (s *Store) WriteChunk(f *os.File, payload []byte) (int, error) {
	n, err := f.Write(payload)
	if err != nil {
		return n, fmt.Errorf("write chunk: %w", err)
	}
	if err := f.Sync(); err != nil {
		return n, fmt.Errorf("flush chunk: %w", err)
	}
	return n, nil
}

// Finalize closes the ".part" handle and renames it to the final filename.
// Either step failing is a failure of Finalize as a whole.
func (s *Store) Finalize(transferID uint64, filename string, f *os.File) error {
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.TempPath(transferID, filename), err)
	}
	if err := os.Rename(s.TempPath(transferID, filename), s.FinalPath(transferID, filename)); err != nil {
		return fmt.Errorf("rename %s: %w", s.TempPath(transferID, filename), err)
	}
	return nil
}

// Cleanup recursively removes the transfer's staging directory, including
// any partially written ".part" file.
func (s *Store) Cleanup(transferID uint64) error {
	if err := os.RemoveAll(s.transferDir(transferID)); err != nil {
		return fmt.Errorf("cleanup %d: %w", transferID, err)
	}
	return nil
}
