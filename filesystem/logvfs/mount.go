package logvfs

import (
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/vfslog/vfslog/backend"
	"github.com/vfslog/vfslog/filesystem"
)

// Mount is one open log-structured virtual filesystem. It satisfies filesystem.FileSystem.
type Mount struct {
	log       *logEngine
	ns        *namespace
	mu        sync.RWMutex
	header    Header
	clock     func() Timestamp
	sessionID uuid.UUID
	label     string
}

var _ filesystem.FileSystem = (*Mount)(nil)

// Create fresh-initializes a new, empty log-structured filesystem on storage: writes the 24-byte
// Header at byte 0, then appends the root directory's own InodeAlloc record, so the root is never a
// special case during replay.
func Create(storage backend.Storage, opts ...Option) (*Mount, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	sessionID := uuid.New()
	log := cfg.logger.WithField("mount_session", sessionID).WithField("mode", "create")

	engine, err := openLogEngine(storage, log)
	if err != nil {
		return nil, err
	}
	blank, err := isBlankStorage(storage, engine.fileSize())
	if err != nil {
		return nil, ioErr("create", "", err)
	}
	if !blank {
		return nil, ioErr("create", "", simpleErr("storage already holds a filesystem"))
	}

	header := Header{Magic: headerMagic, Version: currentVersion, BlockSize: cfg.blockSize, Root: RootInodeId}
	if err := writeHeader(engine.writer, header); err != nil {
		return nil, err
	}
	engine.size = headerSize

	now := cfg.clock()
	ns := newNamespace()
	root := InodeSnapshot{
		ID:     RootInodeId,
		Parent: nil,
		Name:   "",
		Kind:   KindDirNode,
		Metadata: Metadata{
			Size:       0,
			CreatedAt:  now,
			ModifiedAt: now,
		},
	}
	if _, err := engine.append(recInodeAlloc{Snapshot: root}); err != nil {
		return nil, err
	}
	if err := ns.applyInodeAlloc(root); err != nil {
		return nil, err
	}

	log.Info("fresh-initialized log-structured filesystem")
	return &Mount{log: engine, ns: ns, header: header, clock: cfg.clock, sessionID: sessionID}, nil
}

// isBlankStorage reports whether storage holds no filesystem yet. CreateFromPath pre-sizes a fresh
// backing file to its reserved header length and zero-fills it via os.Truncate before Create ever
// runs, so a literal size of 0 isn't the only acceptable starting shape: any storage that is either
// truly empty or entirely zero bytes counts as blank.
func isBlankStorage(storage backend.Storage, size int64) (bool, error) {
	if size == 0 {
		return true, nil
	}
	buf := make([]byte, size)
	if _, err := storage.ReadAt(buf, 0); err != nil {
		return false, err
	}
	for _, b := range buf {
		if b != 0 {
			return false, nil
		}
	}
	return true, nil
}

// Read mounts an existing log-structured filesystem: validates the Header, then replays every frame
// from byte 24 onward (accelerated by the latest Checkpoint record, if any) to rebuild the namespace.
func Read(storage backend.Storage, opts ...Option) (*Mount, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	sessionID := uuid.New()
	log := cfg.logger.WithField("mount_session", sessionID).WithField("mode", "read")

	fi, err := storage.Stat()
	if err != nil {
		return nil, ioErr("mount", "", err)
	}
	if fi.Size() < headerSize {
		return nil, newErr(KindCorruptLog, "mount", "", simpleErr("backing file shorter than header"))
	}

	header, err := readHeader(storage)
	if err != nil {
		return nil, err
	}

	engine, err := openLogEngine(storage, log)
	if err != nil {
		return nil, err
	}

	ns := newNamespace()
	if err := replayInto(engine, ns); err != nil {
		log.WithError(err).Error("replay failed, backing file is corrupt")
		return nil, err
	}
	if _, ok := ns.get(header.Root); !ok {
		return nil, corruptLogf("root inode %d missing after replay", header.Root)
	}

	log.WithField("inode_count", len(ns.inodes)).Info("mounted log-structured filesystem")
	return &Mount{log: engine, ns: ns, header: header, clock: cfg.clock, sessionID: sessionID}, nil
}

// touchModifiedAt appends and applies a SetTimes record bumping inode's modified_at to the current
// reading of m.clock, leaving created_at untouched. Every operation that changes an inode's content or
// position in the namespace (write, truncate, rename) goes through this instead of updating the live
// inodeState directly, so a replay of the same log always lands on the same modified_at a live mount
// would have produced. Callers must already hold m.mu for writing.
func (m *Mount) touchModifiedAt(inode InodeId) error {
	now := m.clock()
	if _, err := m.log.append(recSetTimes{Inode: inode, ModifiedAt: &now}); err != nil {
		return err
	}
	return m.ns.applySetTimes(inode, nil, &now)
}

// Checkpoint folds the current namespace state into a Checkpoint record, letting a future mount skip
// replaying everything before it.
func (m *Mount) Checkpoint() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return writeCheckpoint(m.log, m.ns)
}

// Close releases the backing storage, including any advisory lock the caller (e.g. vfslog.Mount)
// took on it.
func (m *Mount) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.log.storage.Close()
}

// Type implements filesystem.FileSystem.
func (m *Mount) Type() filesystem.Type { return filesystem.TypeLogVFS }

// Label implements filesystem.FileSystem. This format has no persisted label slot (the Header is
// fixed at 24 bytes and must never grow); the label lives only in memory for the life of the Mount.
func (m *Mount) Label() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.label
}

// SetLabel implements filesystem.FileSystem.
func (m *Mount) SetLabel(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.label = label
	return nil
}

// Mknod, Link, Symlink, Chmod, and Chown are outside this format's scope: it has no POSIX permission,
// ownership, or hard/soft link model, so these return the same unsupported sentinel as any other
// FileSystem implementation that doesn't carry those semantics.
func (m *Mount) Mknod(pathname string, mode uint32, dev int) error        { return filesystem.ErrNotSupported }
func (m *Mount) Link(oldpath, newpath string) error                       { return filesystem.ErrNotSupported }
func (m *Mount) Symlink(oldpath, newpath string) error                    { return filesystem.ErrNotSupported }
func (m *Mount) Chmod(name string, mode os.FileMode) error                { return filesystem.ErrNotSupported }
func (m *Mount) Chown(name string, uid, gid int) error                    { return filesystem.ErrNotSupported }
