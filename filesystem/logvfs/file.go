package logvfs

import (
	"io"
	"io/fs"
	"time"
)

// readExtentsAt resolves a logical byte range [offset, offset+len(buf)) against an append-ordered
// extent list plus the inode's logical size, last-writer-wins. Later extents in the slice were
// written more recently and take priority over anything an earlier extent also covers.
//
// Walks extents newest-first, and for each one satisfies whatever part of the requested range it
// still covers that a newer extent hasn't already claimed. Anything nothing ever covers is a hole
// and reads as zero.
func readExtentsAt(readerAt io.ReaderAt, extents []Extent, size uint64, offset uint64, buf []byte) (int, error) {
	want := uint64(len(buf))
	end := offset + want
	if end > size {
		end = size
	}
	if offset >= end {
		return 0, nil
	}
	for i := range buf[:end-offset] {
		buf[i] = 0
	}

	type gap struct{ start, end uint64 }
	gaps := []gap{{offset, end}}

	for i := len(extents) - 1; i >= 0 && len(gaps) > 0; i-- {
		ex := extents[i]
		var next []gap
		for _, g := range gaps {
			overlapStart := max64(g.start, ex.LogicalOffset)
			overlapEnd := min64(g.end, ex.logicalEnd())
			if overlapStart >= overlapEnd {
				next = append(next, g)
				continue
			}
			srcOff := ex.FileOffset + (overlapStart - ex.LogicalOffset)
			dst := buf[overlapStart-offset : overlapEnd-offset]
			if _, err := readerAt.ReadAt(dst, int64(srcOff)); err != nil && err != io.EOF {
				return 0, ioErr("read", "", err)
			}
			if g.start < overlapStart {
				next = append(next, gap{g.start, overlapStart})
			}
			if overlapEnd < g.end {
				next = append(next, gap{overlapEnd, g.end})
			}
		}
		gaps = next
	}
	// Remaining gaps are holes; buf was zeroed over the whole returned range before the walk.
	return int(end - offset), nil
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// File is an open handle onto one inode: a regular file for read/write/seek, or a directory for
// ReadDir. It satisfies filesystem.File.
type File struct {
	mount  *Mount
	inode  InodeId
	path   string
	pos    int64
	dirIt  *dirIterator
	closed bool
}

var _ fs.File = (*File)(nil)

// Read implements io.Reader, reading from the current seek position and advancing it.
func (f *File) Read(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	f.mount.mu.RLock()
	defer f.mount.mu.RUnlock()
	st, ok := f.mount.ns.get(f.inode)
	if !ok {
		return 0, fs.ErrClosed
	}
	if st.Kind != KindFileNode {
		return 0, notAFileErr("read", f.path)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if uint64(f.pos) >= st.Metadata.Size {
		return 0, io.EOF
	}
	read, err := readExtentsAt(f.mount.log.storage, st.Extents, st.Metadata.Size, uint64(f.pos), p)
	if err != nil {
		return 0, err
	}
	f.pos += int64(read)
	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

// ReadAt implements io.ReaderAt without disturbing the handle's seek position.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	f.mount.mu.RLock()
	defer f.mount.mu.RUnlock()
	st, ok := f.mount.ns.get(f.inode)
	if !ok {
		return 0, fs.ErrClosed
	}
	if st.Kind != KindFileNode {
		return 0, notAFileErr("read", f.path)
	}
	if off < 0 {
		return 0, ioErr("read", f.path, errNegativeOffset)
	}
	if uint64(off) >= st.Metadata.Size {
		return 0, io.EOF
	}
	read, err := readExtentsAt(f.mount.log.storage, st.Extents, st.Metadata.Size, uint64(off), p)
	if err != nil {
		return 0, err
	}
	if read < len(p) {
		return read, io.EOF
	}
	return read, nil
}

var errNegativeOffset = simpleErr("negative offset")

// Write appends a DataWrite record at the handle's current position, always growing the file's
// extent list rather than mutating bytes already on disk (Non-goal: no in-place mutation), then a
// trailing SetTimes record so modified_at only ever advances through the log, never implicitly during
// a later replay.
func (f *File) Write(p []byte) (int, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	f.mount.mu.Lock()
	defer f.mount.mu.Unlock()
	st, ok := f.mount.ns.get(f.inode)
	if !ok {
		return 0, fs.ErrClosed
	}
	if st.Kind != KindFileNode {
		return 0, notAFileErr("write", f.path)
	}
	if len(p) == 0 {
		return 0, nil
	}
	hdr := recDataWrite{Inode: f.inode, LogicalOffset: uint64(f.pos), Len: uint64(len(p))}
	frameOff, err := f.mount.log.appendData(hdr, p)
	if err != nil {
		return 0, err
	}
	// appendData returns the offset where the frame starts; the data itself begins after the frame
	// header, the 24-byte DataWrite header body (inode, offset, length) and the header CRC.
	dataStart := frameOff + frameHeaderLen + (8 + 8 + 8) + frameTrailerLen
	if err := f.mount.ns.applyDataWrite(hdr, p, dataStart); err != nil {
		return 0, err
	}
	if err := f.mount.touchModifiedAt(f.inode); err != nil {
		return 0, err
	}
	f.pos += int64(len(p))
	return len(p), nil
}

// Seek implements io.Seeker with saturating arithmetic: seeking before 0 clamps to 0 rather than
// erroring.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	f.mount.mu.RLock()
	st, ok := f.mount.ns.get(f.inode)
	f.mount.mu.RUnlock()
	if !ok {
		return 0, fs.ErrClosed
	}
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = f.pos
	case io.SeekEnd:
		base = int64(st.Metadata.Size)
	default:
		return 0, ioErr("seek", f.path, simpleErr("invalid whence"))
	}
	next := base + offset
	if next < 0 {
		next = 0
	}
	f.pos = next
	return f.pos, nil
}

// Len reports the file's current logical size.
func (f *File) Len() (int64, error) {
	if f.closed {
		return 0, fs.ErrClosed
	}
	f.mount.mu.RLock()
	defer f.mount.mu.RUnlock()
	st, ok := f.mount.ns.get(f.inode)
	if !ok {
		return 0, fs.ErrClosed
	}
	return int64(st.Metadata.Size), nil
}

// IsEmpty reports whether the file's logical size is zero.
func (f *File) IsEmpty() (bool, error) {
	n, err := f.Len()
	return n == 0, err
}

// SetLen shrinks-or-holds the file's logical size by appending a Truncate record, then a trailing
// SetTimes record bumping modified_at. Growing past the current size is rejected: this filesystem
// never materializes implicit trailing holes via truncate, only via writes past EOF.
func (f *File) SetLen(size int64) error {
	if f.closed {
		return fs.ErrClosed
	}
	f.mount.mu.Lock()
	defer f.mount.mu.Unlock()
	st, ok := f.mount.ns.get(f.inode)
	if !ok {
		return fs.ErrClosed
	}
	if st.Kind != KindFileNode {
		return notAFileErr("truncate", f.path)
	}
	if size < 0 {
		return ioErr("truncate", f.path, errNegativeOffset)
	}
	if uint64(size) > st.Metadata.Size {
		return newErr(KindOther, "truncate", f.path, simpleErr("SetLen cannot grow a file"))
	}
	if _, err := f.mount.log.append(recTruncate{Inode: f.inode, Len: uint64(size)}); err != nil {
		return err
	}
	if err := f.mount.ns.applyTruncate(f.inode, uint64(size)); err != nil {
		return err
	}
	return f.mount.touchModifiedAt(f.inode)
}

// Close releases the handle. Every write has already been handed to the backing store by the time
// Write returns, so Close has no buffered state to flush.
func (f *File) Close() error {
	if f.closed {
		return fs.ErrClosed
	}
	f.closed = true
	return nil
}

// Stat implements fs.File.
func (f *File) Stat() (fs.FileInfo, error) {
	if f.closed {
		return nil, fs.ErrClosed
	}
	f.mount.mu.RLock()
	defer f.mount.mu.RUnlock()
	st, ok := f.mount.ns.get(f.inode)
	if !ok {
		return nil, fs.ErrClosed
	}
	return &fileInfo{name: st.Name, size: int64(st.Metadata.Size), isDir: st.Kind == KindDirNode, modTime: st.Metadata.ModifiedAt.Time()}, nil
}

// ReadDir implements fs.ReadDirFile for directory handles.
func (f *File) ReadDir(n int) ([]fs.DirEntry, error) {
	if f.closed {
		return nil, fs.ErrClosed
	}
	f.mount.mu.RLock()
	st, ok := f.mount.ns.get(f.inode)
	if ok && st.Kind != KindDirNode {
		f.mount.mu.RUnlock()
		return nil, notADirErr("readdir", f.path)
	}
	if f.dirIt == nil {
		f.dirIt = newDirIterator(f.mount.ns, f.inode)
	}
	f.mount.mu.RUnlock()
	return f.dirIt.next(n)
}

// fileInfo is a minimal fs.FileInfo for Stat results.
type fileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return fi.isDir }
func (fi *fileInfo) Sys() interface{}   { return nil }
func (fi *fileInfo) Mode() fs.FileMode {
	if fi.isDir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}
