package logvfs

// inodeState is the live, mutable in-memory projection of one inode. Unlike InodeSnapshot (the wire
// form), Parent is never nil here: the root uses InvalidInodeId as its own "no parent" marker.
type inodeState struct {
	ID       InodeId
	Parent   InodeId
	Name     string
	Kind     NodeKind
	Metadata Metadata
	Extents  []Extent
}

type childKey struct {
	parent InodeId
	name   string
}

// namespace is the replayed, queryable state of the whole filesystem: every known inode plus the
// directory-entry graph over them. It holds no reference to the log; callers apply frames to it in
// order (namespace.go) and then drive reads/writes against the result (dirops.go, file.go).
type namespace struct {
	inodes    map[InodeId]*inodeState
	children  map[childKey]InodeId
	nextInode InodeId
}

func newNamespace() *namespace {
	return &namespace{
		inodes:    make(map[InodeId]*inodeState),
		children:  make(map[childKey]InodeId),
		nextInode: RootInodeId + 1,
	}
}

func (ns *namespace) get(id InodeId) (*inodeState, bool) {
	n, ok := ns.inodes[id]
	return n, ok
}

func (ns *namespace) mustGet(id InodeId) (*inodeState, error) {
	n, ok := ns.inodes[id]
	if !ok {
		return nil, corruptLogf("reference to unknown inode %d", id)
	}
	return n, nil
}

func (ns *namespace) childOf(parent InodeId, name string) (InodeId, bool) {
	id, ok := ns.children[childKey{parent, name}]
	return id, ok
}

// apply folds one decoded frame into the namespace. Any violation of the structural invariants below
// is reported as CorruptLog: a well-formed log never contains these, so seeing one means either a
// bug upstream or a hand-tampered file, and replay must not silently paper over it.
func (ns *namespace) apply(f decodedFrame) error {
	switch f.tag {
	case tagInodeAlloc:
		r := f.rec.(recInodeAlloc)
		return ns.applyInodeAlloc(r.Snapshot)
	case tagDirEntryAdd:
		r := f.rec.(recDirEntryAdd)
		return ns.applyDirEntryAdd(r.Entry)
	case tagDataWrite:
		return ns.applyDataWrite(f.dataWrite, f.data, f.dataOffset)
	case tagTruncate:
		r := f.rec.(recTruncate)
		return ns.applyTruncate(r.Inode, r.Len)
	case tagSetTimes:
		r := f.rec.(recSetTimes)
		return ns.applySetTimes(r.Inode, r.CreatedAt, r.ModifiedAt)
	case tagDirEntryRemove:
		r := f.rec.(recDirEntryRemove)
		return ns.applyDirEntryRemove(r.Parent, r.Name, r.Inode)
	case tagRename:
		r := f.rec.(recRename)
		return ns.applyRename(r)
	case tagCheckpoint:
		r := f.rec.(recCheckpoint)
		ns.applyCheckpoint(r.Checkpoint)
		return nil
	default:
		return corruptLogf("unhandled record tag %d during replay", f.tag)
	}
}

func (ns *namespace) applyInodeAlloc(snap InodeSnapshot) error {
	if _, exists := ns.inodes[snap.ID]; exists {
		return corruptLogf("InodeAlloc for already-allocated inode %d", snap.ID)
	}
	parent := InvalidInodeId
	if snap.Parent != nil {
		parent = *snap.Parent
		if _, ok := ns.inodes[parent]; !ok && snap.ID != RootInodeId {
			return corruptLogf("InodeAlloc %d references unknown parent %d", snap.ID, parent)
		}
	}
	ns.inodes[snap.ID] = &inodeState{
		ID:       snap.ID,
		Parent:   parent,
		Name:     snap.Name,
		Kind:     snap.Kind,
		Metadata: snap.Metadata,
		Extents:  cloneExtents(snap.Extents),
	}
	if snap.ID >= ns.nextInode {
		ns.nextInode = snap.ID + 1
	}
	return nil
}

func (ns *namespace) applyDirEntryAdd(entry DirEntry) error {
	parent, err := ns.mustGet(entry.Parent)
	if err != nil {
		return err
	}
	if parent.Kind != KindDirNode {
		return corruptLogf("DirEntryAdd parent %d is not a directory", entry.Parent)
	}
	if _, exists := ns.children[childKey{entry.Parent, entry.Name}]; exists {
		return corruptLogf("DirEntryAdd duplicate name %q under inode %d", entry.Name, entry.Parent)
	}
	child, err := ns.mustGet(entry.Inode)
	if err != nil {
		return err
	}
	if child.Kind != entry.Kind {
		return corruptLogf("DirEntryAdd kind mismatch for inode %d", entry.Inode)
	}
	ns.children[childKey{entry.Parent, entry.Name}] = entry.Inode
	child.Parent = entry.Parent
	child.Name = entry.Name
	return nil
}

func (ns *namespace) applyDataWrite(hdr recDataWrite, data []byte, dataOffset int64) error {
	n, err := ns.mustGet(hdr.Inode)
	if err != nil {
		return err
	}
	if n.Kind != KindFileNode {
		return corruptLogf("DataWrite to non-file inode %d", hdr.Inode)
	}
	if uint64(len(data)) != hdr.Len {
		return corruptLogf("DataWrite length mismatch for inode %d", hdr.Inode)
	}
	n.Extents = append(n.Extents, Extent{LogicalOffset: hdr.LogicalOffset, FileOffset: uint64(dataOffset), Len: hdr.Len})
	end := hdr.LogicalOffset + hdr.Len
	if end > n.Metadata.Size {
		n.Metadata.Size = end
	}
	return nil
}

func (ns *namespace) applyTruncate(id InodeId, length uint64) error {
	n, err := ns.mustGet(id)
	if err != nil {
		return err
	}
	if n.Kind != KindFileNode {
		return corruptLogf("Truncate of non-file inode %d", id)
	}
	n.Metadata.Size = length
	return nil
}

func (ns *namespace) applySetTimes(id InodeId, createdAt, modifiedAt *Timestamp) error {
	n, err := ns.mustGet(id)
	if err != nil {
		return err
	}
	if createdAt != nil {
		n.Metadata.CreatedAt = *createdAt
	}
	if modifiedAt != nil {
		n.Metadata.ModifiedAt = *modifiedAt
	}
	return nil
}

func (ns *namespace) applyDirEntryRemove(parent InodeId, name string, inode InodeId) error {
	key := childKey{parent, name}
	got, ok := ns.children[key]
	if !ok || got != inode {
		return corruptLogf("DirEntryRemove for nonexistent entry %q under inode %d", name, parent)
	}
	delete(ns.children, key)
	return nil
}

func (ns *namespace) applyRename(r recRename) error {
	oldKey := childKey{r.OldParent, r.OldName}
	got, ok := ns.children[oldKey]
	if !ok || got != r.Inode {
		return corruptLogf("Rename source %q under inode %d does not match", r.OldName, r.OldParent)
	}
	newKey := childKey{r.NewParent, r.NewName}
	if _, exists := ns.children[newKey]; exists {
		return corruptLogf("Rename destination %q under inode %d already occupied", r.NewName, r.NewParent)
	}
	if _, err := ns.mustGet(r.NewParent); err != nil {
		return err
	}
	n, err := ns.mustGet(r.Inode)
	if err != nil {
		return err
	}
	delete(ns.children, oldKey)
	ns.children[newKey] = r.Inode
	n.Parent = r.NewParent
	n.Name = r.NewName
	return nil
}

// applyCheckpoint discards all replayed state and replaces it with the checkpoint's folded snapshot.
// Checkpoints are idempotent: applying the same one twice, or applying one whose state is a superset
// of the current in-memory state, always yields the same result.
func (ns *namespace) applyCheckpoint(cp Checkpoint) {
	ns.inodes = make(map[InodeId]*inodeState, len(cp.Inodes))
	ns.children = make(map[childKey]InodeId, len(cp.Inodes))
	for _, snap := range cp.Inodes {
		parent := InvalidInodeId
		if snap.Parent != nil {
			parent = *snap.Parent
		}
		ns.inodes[snap.ID] = &inodeState{
			ID:       snap.ID,
			Parent:   parent,
			Name:     snap.Name,
			Kind:     snap.Kind,
			Metadata: snap.Metadata,
			Extents:  cloneExtents(snap.Extents),
		}
		if snap.Parent != nil {
			ns.children[childKey{*snap.Parent, snap.Name}] = snap.ID
		}
	}
	ns.nextInode = cp.NextInode
}

// snapshot folds the live namespace into a Checkpoint payload. free_extents is always empty: this
// filesystem never reuses backing-file bytes once written (no in-place mutation of already-written
// extents), so there is never a reclaimed range to report.
func (ns *namespace) snapshot() Checkpoint {
	cp := Checkpoint{NextInode: ns.nextInode, FreeExtents: nil}
	cp.Inodes = make([]InodeSnapshot, 0, len(ns.inodes))
	for _, n := range ns.inodes {
		var parent *InodeId
		if n.ID != RootInodeId {
			p := n.Parent
			parent = &p
		}
		cp.Inodes = append(cp.Inodes, InodeSnapshot{
			ID:       n.ID,
			Parent:   parent,
			Name:     n.Name,
			Kind:     n.Kind,
			Metadata: n.Metadata,
			Extents:  cloneExtents(n.Extents),
		})
	}
	return cp
}
