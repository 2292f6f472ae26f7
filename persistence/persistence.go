// Package persistence provides a small Store abstraction for saving and
// loading the Miner's serialized state blob.
package persistence

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store is the persistence contract a Miner snapshots through. Save must be
// atomic from the caller's point of view: a crash mid-Save must never leave
// a Load-able but truncated blob on disk.
type Store interface {
	Save(data []byte) error
	Load() ([]byte, error)
}

// FileStore is a Store backed by a single file on local disk. Save writes to
// a sibling temp file and renames it over the target, so a reader never
// observes a partially-written snapshot.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes data to a temp file in the same directory as path and renames
// it into place. The same-directory requirement keeps the rename on one
// filesystem, where POSIX and Windows both guarantee it's atomic.
func (f *FileStore) Save(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "persistence: create state directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "persistence: create temp state file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "persistence: write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "persistence: sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "persistence: close temp state file")
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "persistence: rename into %s", f.path)
	}
	return nil
}

// Load reads the whole state file. A missing file is not an error: it is
// the expected state on first run, and callers should treat (nil, nil) as
// "start from an empty Miner".
func (f *FileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "persistence: read %s", f.path)
	}
	return data, nil
}
