package logvfs

// InodeId is an opaque handle into the inode table. Id 0 is reserved/invalid, id 1 is always the
// root directory.
type InodeId uint64

// RootInodeId is always the root directory's id, fresh-initialized or replayed.
const RootInodeId InodeId = 1

// InvalidInodeId is the reserved, never-allocated id.
const InvalidInodeId InodeId = 0

// NodeKind tags whether an inode is a directory or a regular file.
type NodeKind uint8

const (
	KindFileNode NodeKind = 1
	KindDirNode  NodeKind = 2
)

func (k NodeKind) String() string {
	if k == KindDirNode {
		return "dir"
	}
	return "file"
}

// Metadata is the persisted size + timestamp triple carried per inode. Size is the logical file
// length, not the sum of extent lengths.
type Metadata struct {
	Size       uint64
	CreatedAt  Timestamp
	ModifiedAt Timestamp
}

// Extent maps a contiguous logical byte range within a file to a contiguous byte range in the
// backing store.
type Extent struct {
	LogicalOffset uint64
	FileOffset    uint64
	Len           uint64
}

func (e Extent) logicalEnd() uint64 { return e.LogicalOffset + e.Len }

// DirEntry is a single (parent, name) -> inode mapping, as returned by ReadDir.
type DirEntry struct {
	Parent InodeId
	Inode  InodeId
	Name   string
	Kind   NodeKind
}

// InodeSnapshot is the persistable projection of an inode, used both by InodeAlloc records and by
// Checkpoint records.
type InodeSnapshot struct {
	ID       InodeId
	Parent   *InodeId
	Name     string
	Kind     NodeKind
	Metadata Metadata
	Extents  []Extent
}

func cloneExtents(src []Extent) []Extent {
	if src == nil {
		return nil
	}
	out := make([]Extent, len(src))
	copy(out, src)
	return out
}

// Header is the 24-byte structure persisted at the very start of the backing file.
type Header struct {
	Magic     [8]byte
	Version   uint32
	BlockSize uint32
	Root      InodeId
}

// magicByte is the single byte repeated eight times to form the header magic.
const magicByte = 0x43

// headerMagic is the byte-exact 8-byte magic sequence.
var headerMagic = [8]byte{magicByte, magicByte, magicByte, magicByte, magicByte, magicByte, magicByte, magicByte}

// DefaultBlockSize is the advisory block size used when a caller does not override it.
const DefaultBlockSize uint32 = 4096

// currentVersion is the only on-disk format version this package understands.
const currentVersion uint32 = 1

// headerSize is the fixed byte length of the persisted Header.
const headerSize = 24

// Checkpoint folds the live inode table and allocator state into a single record so a later mount
// can skip replaying everything before it.
type Checkpoint struct {
	NextInode   InodeId
	FreeExtents []Extent
	Inodes      []InodeSnapshot
}

// recordTag is the stable, persisted numeric tag for each record kind.
type recordTag uint8

const (
	tagInodeAlloc     recordTag = 1
	tagDirEntryAdd    recordTag = 2
	tagDataWrite      recordTag = 3
	tagTruncate       recordTag = 4
	tagSetTimes       recordTag = 5
	tagDirEntryRemove recordTag = 6
	tagRename         recordTag = 7
	tagCheckpoint     recordTag = 8
)

// record is the sum type of everything that can be framed into the log. Concrete payload types
// below each implement it; decode(tag, body) produces the right concrete type for a given tag.
type record interface {
	recordTag() recordTag
}

type recInodeAlloc struct {
	Snapshot InodeSnapshot
}

func (recInodeAlloc) recordTag() recordTag { return tagInodeAlloc }

type recDirEntryAdd struct {
	Entry DirEntry
}

func (recDirEntryAdd) recordTag() recordTag { return tagDirEntryAdd }

// recDataWrite is the typed header of a DataWrite record; the raw data bytes that follow it in the
// frame are handled directly by frame.go/log.go and are not part of this struct.
type recDataWrite struct {
	Inode         InodeId
	LogicalOffset uint64
	Len           uint64
	DataChecksum  uint32
}

func (recDataWrite) recordTag() recordTag { return tagDataWrite }

type recTruncate struct {
	Inode InodeId
	Len   uint64
}

func (recTruncate) recordTag() recordTag { return tagTruncate }

type recSetTimes struct {
	Inode      InodeId
	CreatedAt  *Timestamp
	ModifiedAt *Timestamp
}

func (recSetTimes) recordTag() recordTag { return tagSetTimes }

type recDirEntryRemove struct {
	Parent InodeId
	Name   string
	Inode  InodeId
}

func (recDirEntryRemove) recordTag() recordTag { return tagDirEntryRemove }

type recRename struct {
	Inode     InodeId
	OldParent InodeId
	NewParent InodeId
	OldName   string
	NewName   string
}

func (recRename) recordTag() recordTag { return tagRename }

type recCheckpoint struct {
	Checkpoint Checkpoint
}

func (recCheckpoint) recordTag() recordTag { return tagCheckpoint }

// encodeSnapshot/decodeSnapshot serialize an InodeSnapshot body, shared by InodeAlloc and Checkpoint.
func encodeSnapshot(e *encoder, s InodeSnapshot) {
	e.putU64(uint64(s.ID))
	e.putOptionalInode(s.Parent)
	e.putString(s.Name)
	e.putU8(uint8(s.Kind))
	e.putU64(s.Metadata.Size)
	e.putI128(s.Metadata.CreatedAt)
	e.putI128(s.Metadata.ModifiedAt)
	e.putU64(uint64(len(s.Extents)))
	for _, ex := range s.Extents {
		e.putU64(ex.LogicalOffset)
		e.putU64(ex.FileOffset)
		e.putU64(ex.Len)
	}
}

func decodeSnapshot(d *decoder) (InodeSnapshot, error) {
	var s InodeSnapshot
	id, err := d.getU64()
	if err != nil {
		return s, err
	}
	s.ID = InodeId(id)
	parent, err := d.getOptionalInode()
	if err != nil {
		return s, err
	}
	s.Parent = parent
	s.Name, err = d.getString()
	if err != nil {
		return s, err
	}
	kindByte, err := d.getU8()
	if err != nil {
		return s, err
	}
	s.Kind = NodeKind(kindByte)
	if s.Kind != KindFileNode && s.Kind != KindDirNode {
		return s, corruptLogf("invalid node kind tag %d", kindByte)
	}
	s.Metadata.Size, err = d.getU64()
	if err != nil {
		return s, err
	}
	s.Metadata.CreatedAt, err = d.getI128()
	if err != nil {
		return s, err
	}
	s.Metadata.ModifiedAt, err = d.getI128()
	if err != nil {
		return s, err
	}
	n, err := d.getU64()
	if err != nil {
		return s, err
	}
	s.Extents = make([]Extent, 0, n)
	for i := uint64(0); i < n; i++ {
		lo, err := d.getU64()
		if err != nil {
			return s, err
		}
		fo, err := d.getU64()
		if err != nil {
			return s, err
		}
		l, err := d.getU64()
		if err != nil {
			return s, err
		}
		s.Extents = append(s.Extents, Extent{LogicalOffset: lo, FileOffset: fo, Len: l})
	}
	return s, nil
}

// encodeBody encodes everything after the tag byte for self-contained records (shapes used by
// frame.go for tags 1,2,4,5,6,7,8). DataWrite (tag 3) has its own encoder in frame.go since it
// carries a trailing raw data block.
func encodeBody(r record) []byte {
	e := newEncoder()
	switch v := r.(type) {
	case recInodeAlloc:
		encodeSnapshot(e, v.Snapshot)
	case recDirEntryAdd:
		e.putU64(uint64(v.Entry.Parent))
		e.putU64(uint64(v.Entry.Inode))
		e.putString(v.Entry.Name)
		e.putU8(uint8(v.Entry.Kind))
	case recTruncate:
		e.putU64(uint64(v.Inode))
		e.putU64(v.Len)
	case recSetTimes:
		e.putU64(uint64(v.Inode))
		e.putOptionalTimestamp(v.CreatedAt)
		e.putOptionalTimestamp(v.ModifiedAt)
	case recDirEntryRemove:
		e.putU64(uint64(v.Parent))
		e.putString(v.Name)
		e.putU64(uint64(v.Inode))
	case recRename:
		e.putU64(uint64(v.Inode))
		e.putU64(uint64(v.OldParent))
		e.putU64(uint64(v.NewParent))
		e.putString(v.OldName)
		e.putString(v.NewName)
	case recCheckpoint:
		e.putU64(uint64(v.Checkpoint.NextInode))
		e.putU64(uint64(len(v.Checkpoint.FreeExtents)))
		for _, ex := range v.Checkpoint.FreeExtents {
			e.putU64(ex.LogicalOffset)
			e.putU64(ex.FileOffset)
			e.putU64(ex.Len)
		}
		e.putU64(uint64(len(v.Checkpoint.Inodes)))
		for _, s := range v.Checkpoint.Inodes {
			encodeSnapshot(e, s)
		}
	default:
		panic("logvfs: encodeBody: unhandled record type")
	}
	return e.bytes()
}

// decodeBody decodes everything after the tag byte for self-contained records. DataWrite (tag 3) is
// decoded directly by frame.go since its body has a variable-length raw data suffix read separately.
func decodeBody(tag recordTag, body []byte) (record, error) {
	d := newDecoder(body)
	var out record
	switch tag {
	case tagInodeAlloc:
		snap, err := decodeSnapshot(d)
		if err != nil {
			return nil, err
		}
		out = recInodeAlloc{Snapshot: snap}
	case tagDirEntryAdd:
		parent, err := d.getU64()
		if err != nil {
			return nil, err
		}
		inode, err := d.getU64()
		if err != nil {
			return nil, err
		}
		name, err := d.getString()
		if err != nil {
			return nil, err
		}
		kindByte, err := d.getU8()
		if err != nil {
			return nil, err
		}
		kind := NodeKind(kindByte)
		if kind != KindFileNode && kind != KindDirNode {
			return nil, corruptLogf("invalid node kind tag %d", kindByte)
		}
		out = recDirEntryAdd{Entry: DirEntry{Parent: InodeId(parent), Inode: InodeId(inode), Name: name, Kind: kind}}
	case tagTruncate:
		inode, err := d.getU64()
		if err != nil {
			return nil, err
		}
		ln, err := d.getU64()
		if err != nil {
			return nil, err
		}
		out = recTruncate{Inode: InodeId(inode), Len: ln}
	case tagSetTimes:
		inode, err := d.getU64()
		if err != nil {
			return nil, err
		}
		created, err := d.getOptionalTimestamp()
		if err != nil {
			return nil, err
		}
		modified, err := d.getOptionalTimestamp()
		if err != nil {
			return nil, err
		}
		out = recSetTimes{Inode: InodeId(inode), CreatedAt: created, ModifiedAt: modified}
	case tagDirEntryRemove:
		parent, err := d.getU64()
		if err != nil {
			return nil, err
		}
		name, err := d.getString()
		if err != nil {
			return nil, err
		}
		inode, err := d.getU64()
		if err != nil {
			return nil, err
		}
		out = recDirEntryRemove{Parent: InodeId(parent), Name: name, Inode: InodeId(inode)}
	case tagRename:
		inode, err := d.getU64()
		if err != nil {
			return nil, err
		}
		oldParent, err := d.getU64()
		if err != nil {
			return nil, err
		}
		newParent, err := d.getU64()
		if err != nil {
			return nil, err
		}
		oldName, err := d.getString()
		if err != nil {
			return nil, err
		}
		newName, err := d.getString()
		if err != nil {
			return nil, err
		}
		out = recRename{Inode: InodeId(inode), OldParent: InodeId(oldParent), NewParent: InodeId(newParent), OldName: oldName, NewName: newName}
	case tagCheckpoint:
		nextInode, err := d.getU64()
		if err != nil {
			return nil, err
		}
		nFree, err := d.getU64()
		if err != nil {
			return nil, err
		}
		free := make([]Extent, 0, nFree)
		for i := uint64(0); i < nFree; i++ {
			lo, err := d.getU64()
			if err != nil {
				return nil, err
			}
			fo, err := d.getU64()
			if err != nil {
				return nil, err
			}
			l, err := d.getU64()
			if err != nil {
				return nil, err
			}
			free = append(free, Extent{LogicalOffset: lo, FileOffset: fo, Len: l})
		}
		nInodes, err := d.getU64()
		if err != nil {
			return nil, err
		}
		inodes := make([]InodeSnapshot, 0, nInodes)
		for i := uint64(0); i < nInodes; i++ {
			snap, err := decodeSnapshot(d)
			if err != nil {
				return nil, err
			}
			inodes = append(inodes, snap)
		}
		out = recCheckpoint{Checkpoint: Checkpoint{NextInode: InodeId(nextInode), FreeExtents: free, Inodes: inodes}}
	default:
		return nil, corruptLogf("unknown record tag %d", tag)
	}
	if !d.isEOF() {
		return nil, corruptLogf("trailing bytes after record tag %d body", tag)
	}
	return out, nil
}
