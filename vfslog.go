// Package vfslog provides a crash-safe, single-file, log-structured virtual filesystem.
//
// Every mutation (creating a file, writing data, renaming an entry, truncating a file) is appended
// as a framed, checksummed record to a single backing file; nothing is ever mutated in place. A
// fresh Mount replays that file from just after its 24-byte header to rebuild the directory tree and
// file contents in memory, stopping cleanly at whatever the most recent complete, checksummed record
// was — a crash mid-write leaves at most one unsynced tail record, never corrupted state.
//
// Create makes a new, empty filesystem; Mount opens one already on disk. Both return a
// *logvfs.Mount, which satisfies filesystem.FileSystem the same way the rest of this module's
// sibling filesystem types would.
package vfslog

import (
	"fmt"

	"github.com/vfslog/vfslog/backend/file"
	"github.com/vfslog/vfslog/filesystem/logvfs"
)

// Create creates a new backing file at path and fresh-initializes a log-structured filesystem on it.
// The file must not already exist. The returned Mount holds an advisory exclusive lock on path for
// as long as the process keeps it open (see Close), enforcing the single-owner-per-mount model.
func Create(path string, opts ...logvfs.Option) (*logvfs.Mount, error) {
	storage, err := file.CreateFromPath(path, headerReserveSize)
	if err != nil {
		return nil, fmt.Errorf("creating backing file %s: %w", path, err)
	}
	if err := lockExclusive(storage); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("locking backing file %s: %w", path, err)
	}
	m, err := logvfs.Create(storage, opts...)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	return m, nil
}

// Mount opens an existing backing file at path and replays it to mount the log-structured filesystem
// it contains. The returned Mount holds an advisory exclusive lock on path for as long as the process
// keeps it open.
func Mount(path string, opts ...logvfs.Option) (*logvfs.Mount, error) {
	storage, err := file.OpenFromPath(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening backing file %s: %w", path, err)
	}
	if err := lockExclusive(storage); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("locking backing file %s: %w", path, err)
	}
	m, err := logvfs.Read(storage, opts...)
	if err != nil {
		_ = storage.Close()
		return nil, err
	}
	return m, nil
}

// headerReserveSize is the minimum nonzero size CreateFromPath needs up front; the backing file
// grows past it automatically as records are appended beyond the current end of file.
const headerReserveSize = 24
