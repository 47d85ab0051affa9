package logvfs

import (
	"os"
	"strings"

	"github.com/vfslog/vfslog/filesystem"
)

// splitPath normalizes an absolute, "/"-separated pathname into its non-empty components, rejecting
// "." and ".." segments: this format has no notion of the current directory or of walking upward,
// every path is resolved from the root every time.
func splitPath(path string) ([]string, error) {
	if path == "" || path[0] != '/' {
		return nil, invalidPathErr("path", path, "path must be absolute")
	}
	var parts []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if seg == "." || seg == ".." {
			return nil, invalidPathErr("path", path, "relative path segments are not supported")
		}
		parts = append(parts, seg)
	}
	return parts, nil
}

// resolve walks path from the root, returning the inode it names.
func (m *Mount) resolve(path string) (InodeId, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, err
	}
	cur := m.header.Root
	for _, name := range parts {
		child, ok := m.ns.childOf(cur, name)
		if !ok {
			return 0, notFoundErr("open", path)
		}
		cur = child
	}
	return cur, nil
}

// resolveParent splits path into its parent directory's inode and the final component's name,
// without requiring the final component to already exist.
func (m *Mount) resolveParent(path string) (InodeId, string, error) {
	parts, err := splitPath(path)
	if err != nil {
		return 0, "", err
	}
	if len(parts) == 0 {
		return 0, "", invalidPathErr("path", path, "cannot operate on the root directory itself")
	}
	cur := m.header.Root
	for _, name := range parts[:len(parts)-1] {
		child, ok := m.ns.childOf(cur, name)
		if !ok {
			return 0, "", notFoundErr("open", path)
		}
		n, err := m.ns.mustGet(child)
		if err != nil {
			return 0, "", err
		}
		if n.Kind != KindDirNode {
			return 0, "", notADirErr("open", path)
		}
		cur = child
	}
	return cur, parts[len(parts)-1], nil
}

// allocInode reserves the next inode id and appends its InodeAlloc + DirEntryAdd records, applying
// both to the live namespace. Both records land in the log atomically from the caller's point of
// view (back-to-back appends, nothing else can interleave since Mount serializes writers under mu).
func (m *Mount) allocInode(parent InodeId, name string, kind NodeKind) (InodeId, error) {
	id := m.ns.nextInode
	now := m.clock()
	snap := InodeSnapshot{
		ID:     id,
		Parent: &parent,
		Name:   name,
		Kind:   kind,
		Metadata: Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
		},
	}
	if _, err := m.log.append(recInodeAlloc{Snapshot: snap}); err != nil {
		return 0, err
	}
	if err := m.ns.applyInodeAlloc(snap); err != nil {
		return 0, err
	}
	entry := DirEntry{Parent: parent, Inode: id, Name: name, Kind: kind}
	if _, err := m.log.append(recDirEntryAdd{Entry: entry}); err != nil {
		return 0, err
	}
	if err := m.ns.applyDirEntryAdd(entry); err != nil {
		return 0, err
	}
	return id, nil
}

// Mkdir implements filesystem.FileSystem.
func (m *Mount) Mkdir(pathname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, name, err := m.resolveParent(pathname)
	if err != nil {
		return err
	}
	if _, exists := m.ns.childOf(parent, name); exists {
		return alreadyExistsErr("mkdir", pathname)
	}
	_, err = m.allocInode(parent, name, KindDirNode)
	return err
}

// OpenFile implements filesystem.FileSystem. flag uses the os.OpenFile bits os.O_CREATE, os.O_EXCL,
// os.O_TRUNC and os.O_APPEND. The access mode (os.O_RDONLY/O_WRONLY/O_RDWR) is only checked when
// opening a directory, which must be read-only; a regular-file handle opened with os.O_RDONLY still
// accepts Write and SetLen. os.O_APPEND only places the handle at the end of the file when it is
// opened; later writes go to the handle's current position.
func (m *Mount) OpenFile(pathname string, flag int) (filesystem.File, error) {
	m.mu.Lock()
	id, err := m.openOrCreate(pathname, flag)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	f := &File{mount: m, inode: id, path: pathname}
	if flag&os.O_APPEND != 0 {
		m.mu.RLock()
		st, _ := m.ns.get(id)
		f.pos = int64(st.Metadata.Size)
		m.mu.RUnlock()
	}
	return f, nil
}

func (m *Mount) openOrCreate(pathname string, flag int) (InodeId, error) {
	id, err := m.resolve(pathname)
	if err != nil {
		if !isNotFound(err) || flag&os.O_CREATE == 0 {
			return 0, err
		}
		parent, name, perr := m.resolveParent(pathname)
		if perr != nil {
			return 0, perr
		}
		return m.allocInode(parent, name, KindFileNode)
	}
	if flag&os.O_CREATE != 0 && flag&os.O_EXCL != 0 {
		return 0, alreadyExistsErr("open", pathname)
	}
	n, gerr := m.ns.mustGet(id)
	if gerr != nil {
		return 0, gerr
	}
	if n.Kind != KindFileNode {
		// Directories open read-only, as handles for File.ReadDir.
		if flag&(os.O_WRONLY|os.O_RDWR|os.O_TRUNC) != 0 {
			return 0, notAFileErr("open", pathname)
		}
		return id, nil
	}
	if flag&os.O_TRUNC != 0 {
		if _, aerr := m.log.append(recTruncate{Inode: id, Len: 0}); aerr != nil {
			return 0, aerr
		}
		if aerr := m.ns.applyTruncate(id, 0); aerr != nil {
			return 0, aerr
		}
		if aerr := m.touchModifiedAt(id); aerr != nil {
			return 0, aerr
		}
	}
	return id, nil
}

func isNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == KindNotFound
}

// ReadDir implements filesystem.FileSystem: a one-shot, full directory listing (distinct from
// File.ReadDir's incremental fs.ReadDirFile contract used once a handle is already open).
func (m *Mount) ReadDir(pathname string) ([]os.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, err := m.resolve(pathname)
	if err != nil {
		return nil, err
	}
	dir, err := m.ns.mustGet(id)
	if err != nil {
		return nil, err
	}
	if dir.Kind != KindDirNode {
		return nil, notADirErr("readdir", pathname)
	}
	it := newDirIterator(m.ns, id)
	out := make([]os.FileInfo, 0, len(it.entries))
	for _, e := range it.entries {
		child, ok := m.ns.get(e.Inode)
		if !ok {
			continue
		}
		out = append(out, &fileInfo{
			name:    e.Name,
			size:    int64(child.Metadata.Size),
			isDir:   child.Kind == KindDirNode,
			modTime: child.Metadata.ModifiedAt.Time(),
		})
	}
	return out, nil
}

// Rename implements filesystem.FileSystem. Rename never overwrites an existing destination: if
// newpath already names an entry, Rename fails rather than replacing it (a deliberate departure from
// POSIX rename(2)).
func (m *Mount) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldParent, oldName, err := m.resolveParent(oldpath)
	if err != nil {
		return err
	}
	inode, ok := m.ns.childOf(oldParent, oldName)
	if !ok {
		return notFoundErr("rename", oldpath)
	}
	newParent, newName, err := m.resolveParent(newpath)
	if err != nil {
		return err
	}
	if _, exists := m.ns.childOf(newParent, newName); exists {
		return alreadyExistsErr("rename", newpath)
	}
	r := recRename{Inode: inode, OldParent: oldParent, NewParent: newParent, OldName: oldName, NewName: newName}
	if _, err := m.log.append(r); err != nil {
		return err
	}
	if err := m.ns.applyRename(r); err != nil {
		return err
	}
	return m.touchModifiedAt(inode)
}

// Remove implements filesystem.FileSystem: removes a file, or an empty directory.
func (m *Mount) Remove(pathname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	parent, name, err := m.resolveParent(pathname)
	if err != nil {
		return err
	}
	inode, ok := m.ns.childOf(parent, name)
	if !ok {
		return notFoundErr("remove", pathname)
	}
	n, err := m.ns.mustGet(inode)
	if err != nil {
		return err
	}
	if n.Kind == KindDirNode {
		it := newDirIterator(m.ns, inode)
		if len(it.entries) > 0 {
			return newErr(KindInvalidPath, "remove", pathname, simpleErr("directory not empty"))
		}
	}
	if _, err := m.log.append(recDirEntryRemove{Parent: parent, Name: name, Inode: inode}); err != nil {
		return err
	}
	return m.ns.applyDirEntryRemove(parent, name, inode)
}
