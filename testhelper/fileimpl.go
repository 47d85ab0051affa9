// Package testhelper provides a fault-injecting backend.Storage double for exercising crash-recovery
// paths without needing a real, physically truncatable host file.
package testhelper

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/vfslog/vfslog/backend"
)

type reader func(b []byte, offset int64) (int, error)
type writer func(b []byte, offset int64) (int, error)

// FileImpl is an in-memory backend.Storage double. It behaves like a plain growable buffer by
// default; tests override Reader/Writer to inject torn writes, short reads, or I/O errors at a
// chosen offset without touching the real filesystem.
type FileImpl struct {
	buf []byte

	// Reader and Writer, when set, replace the default buffer-backed behavior. Callers building one
	// of these normally close over a *FileImpl's default so they can inject a fault only at a
	// specific offset or call count and fall back to the real buffer otherwise.
	Reader reader
	Writer writer
}

var _ backend.Storage = (*FileImpl)(nil)

// NewFileImpl returns an empty FileImpl backed by a growable in-memory buffer.
func NewFileImpl() *FileImpl {
	return &FileImpl{}
}

// DefaultReadAt is the plain buffer-backed read, exposed so fault-injecting Reader funcs can fall
// back to it for the offsets they don't want to corrupt.
func (f *FileImpl) DefaultReadAt(b []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.New("negative offset")
	}
	if offset >= int64(len(f.buf)) {
		return 0, errors.New("short read")
	}
	n := copy(b, f.buf[offset:])
	if n < len(b) {
		return n, errors.New("short read")
	}
	return n, nil
}

// DefaultWriteAt is the plain buffer-backed write, growing the buffer as needed.
func (f *FileImpl) DefaultWriteAt(b []byte, offset int64) (int, error) {
	if offset < 0 {
		return 0, errors.New("negative offset")
	}
	end := offset + int64(len(b))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[offset:end], b)
	return len(b), nil
}

func (f *FileImpl) Stat() (fs.FileInfo, error) {
	return &fileImplInfo{size: int64(len(f.buf))}, nil
}

func (f *FileImpl) Read(b []byte) (int, error) {
	return f.ReadAt(b, 0)
}

func (f *FileImpl) Close() error {
	return nil
}

// ReadAt reads at a particular offset, going through Reader if one is set.
func (f *FileImpl) ReadAt(b []byte, offset int64) (int, error) {
	if f.Reader != nil {
		return f.Reader(b, offset)
	}
	return f.DefaultReadAt(b, offset)
}

// WriteAt writes at a particular offset, going through Writer if one is set.
func (f *FileImpl) WriteAt(b []byte, offset int64) (int, error) {
	if f.Writer != nil {
		return f.Writer(b, offset)
	}
	return f.DefaultWriteAt(b, offset)
}

// Truncate cuts the buffer down to size, discarding anything past it. It simulates a crash that left
// only a prefix of the log durable, the in-memory equivalent of os.Truncate on a real backing file.
func (f *FileImpl) Truncate(size int64) {
	if size < int64(len(f.buf)) {
		f.buf = f.buf[:size]
	}
}

// Seek is not meaningful for an offset-addressed in-memory double; every logvfs access goes through
// ReadAt/WriteAt instead.
//
//nolint:unused,revive // to implement the interface
func (f *FileImpl) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("FileImpl does not implement Seek()")
}

// Sys reports that there is no real *os.File backing this double. Nothing in logvfs itself calls
// Sys() (only the top-level vfslog.Create/Mount's advisory-lock step does, which fault-injection
// tests bypass by driving logvfs.Create/logvfs.Read directly), so this is never exercised in anger.
func (f *FileImpl) Sys() (*os.File, error) {
	return nil, errors.New("testhelper.FileImpl is not backed by a real os.File")
}

// Writable returns f itself: FileImpl always implements backend.WritableFile.
func (f *FileImpl) Writable() (backend.WritableFile, error) {
	return f, nil
}

type fileImplInfo struct {
	size int64
}

func (i *fileImplInfo) Name() string       { return "fileimpl" }
func (i *fileImplInfo) Size() int64        { return i.size }
func (i *fileImplInfo) Mode() fs.FileMode  { return 0o600 }
func (i *fileImplInfo) ModTime() time.Time { return time.Time{} }
func (i *fileImplInfo) IsDir() bool        { return false }
func (i *fileImplInfo) Sys() interface{}   { return nil }
