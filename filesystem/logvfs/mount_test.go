package logvfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vfslog/vfslog/backend/file"
)

func createTempMount(t *testing.T, opts ...Option) (*Mount, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vfs.img")
	storage, err := file.CreateFromPath(path, headerSize)
	require.NoError(t, err)
	m, err := Create(storage, opts...)
	require.NoError(t, err)
	return m, path
}

func reopenMount(t *testing.T, path string, opts ...Option) *Mount {
	t.Helper()
	storage, err := file.OpenFromPath(path, false)
	require.NoError(t, err)
	m, err := Read(storage, opts...)
	require.NoError(t, err)
	return m
}

func TestCreateFreshFilesystemHasEmptyRoot(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	entries, err := m.ReadDir("/")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestWriteReadFileRoundTrip(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	f, err := m.OpenFile("/hello.txt", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	n, err := f.Write([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.NoError(t, f.Close())

	f2, err := m.OpenFile("/hello.txt", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(f2)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
	require.NoError(t, f2.Close())
}

func TestOverlappingWritesLastWriterWins(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	f, err := m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("aaaaaaaaaa"))
	require.NoError(t, err)
	_, err = f.Seek(3, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte("bbb"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := m.OpenFile("/f", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(f2)
	require.NoError(t, err)
	require.Equal(t, "aaabbbaaaa", string(got))
	require.NoError(t, f2.Close())
}

func TestReadPastEOFIsEmpty(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	f, err := m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)

	_, err = f.Seek(3, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.Equal(t, 0, n)
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, f.Close())
}

func TestHoleReadsAsZero(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	f, err := m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Seek(5, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte("xyz"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	f2, err := m.OpenFile("/f", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(f2)
	require.NoError(t, err)
	require.Equal(t, append(make([]byte, 5), []byte("xyz")...), got)
	require.NoError(t, f2.Close())
}

func TestMkdirAndNestedFile(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	require.NoError(t, m.Mkdir("/sub"))
	_, err := m.OpenFile("/sub/inner.txt", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)

	entries, err := m.ReadDir("/sub")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "inner.txt", entries[0].Name())
}

func TestMkdirRejectsDuplicate(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	require.NoError(t, m.Mkdir("/sub"))
	err := m.Mkdir("/sub")
	require.Error(t, err)
}

func TestRenameNeverOverwrites(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	_, err := m.OpenFile("/a", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = m.OpenFile("/b", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)

	err = m.Rename("/a", "/b")
	require.Error(t, err)
}

func TestRemoveRejectsNonEmptyDirectory(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	require.NoError(t, m.Mkdir("/sub"))
	_, err := m.OpenFile("/sub/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)

	err = m.Remove("/sub")
	require.Error(t, err)
}

func TestTruncateShrinksLogicalSize(t *testing.T) {
	m, _ := createTempMount(t)
	defer m.Close()

	f, err := m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)

	require.NoError(t, f.(*File).SetLen(4))
	n, err := f.(*File).Len()
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
	require.NoError(t, f.Close())
}

func TestMountSurvivesCloseAndReopen(t *testing.T) {
	m, path := createTempMount(t)
	require.NoError(t, m.Mkdir("/sub"))
	f, err := m.OpenFile("/sub/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("durable"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, m.Close())

	m2 := reopenMount(t, path)
	defer m2.Close()

	f2, err := m2.OpenFile("/sub/f", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(f2)
	require.NoError(t, err)
	require.Equal(t, "durable", string(got))
}

func TestCheckpointAcceleratesReplay(t *testing.T) {
	m, path := createTempMount(t)
	_, err := m.OpenFile("/a", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	require.NoError(t, m.Checkpoint())
	f, err := m.OpenFile("/b", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("post-checkpoint"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, m.Close())

	m2 := reopenMount(t, path)
	defer m2.Close()

	entries, err := m2.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	fb, err := m2.OpenFile("/b", os.O_RDONLY)
	require.NoError(t, err)
	got, err := io.ReadAll(fb)
	require.NoError(t, err)
	require.Equal(t, "post-checkpoint", string(got))
}

func TestReplayToleratesTruncatedTail(t *testing.T) {
	m, path := createTempMount(t)
	f, err := m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("complete"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	fi, err := m.log.storage.Stat()
	require.NoError(t, err)
	fullSize := fi.Size()
	require.NoError(t, m.Close())

	// Simulate a crash mid-append: drop the last few bytes of the log, as if the process died before
	// the final record's trailing CRC made it to disk. Write appends a DataWrite and then a SetTimes,
	// so the record cut off is that trailing SetTimes.
	require.NoError(t, os.Truncate(path, fullSize-3))

	m2 := reopenMount(t, path)
	defer m2.Close()

	// The InodeAlloc, DirEntryAdd and DataWrite for "/f" were fully written before the SetTimes that
	// got cut off; only the modified_at update is lost, not the file or its data.
	entries, err := m2.ReadDir("/")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "f", entries[0].Name())
	require.Equal(t, int64(len("complete")), entries[0].Size())
}

func TestWithClockGovernsWriteTruncateAndRenameTimestamps(t *testing.T) {
	var current int64 = 1000
	clock := func() Timestamp { return NewTimestamp(current) }

	m, _ := createTempMount(t, WithClock(clock))
	defer m.Close()

	f, err := m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)

	current = 2000
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	st, err := f.Stat()
	require.NoError(t, err)
	require.True(t, st.ModTime().Equal(NewTimestamp(2000).Time()), "Write must stamp modified_at from WithClock, not the package clock")

	current = 3000
	require.NoError(t, f.(*File).SetLen(1))
	st, err = f.Stat()
	require.NoError(t, err)
	require.True(t, st.ModTime().Equal(NewTimestamp(3000).Time()), "SetLen must stamp modified_at from WithClock")
	require.NoError(t, f.Close())

	current = 4000
	require.NoError(t, m.Rename("/f", "/g"))
	f2, err := m.OpenFile("/g", os.O_RDONLY)
	require.NoError(t, err)
	st, err = f2.Stat()
	require.NoError(t, err)
	require.True(t, st.ModTime().Equal(NewTimestamp(4000).Time()), "Rename must stamp modified_at from WithClock")
	require.NoError(t, f2.Close())
}

func TestReplayNeverDerivesModifiedAtImplicitly(t *testing.T) {
	m, path := createTempMount(t, WithClock(func() Timestamp { return NewTimestamp(1000) }))

	f, err := m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)
	_, err = f.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, m.Close())

	// Replaying with a different clock must not change an already-logged modified_at: it is only ever
	// set by a logged SetTimes record, never recomputed from the replay-time clock.
	m2 := reopenMount(t, path, WithClock(func() Timestamp { return NewTimestamp(99999) }))
	defer m2.Close()

	f2, err := m2.OpenFile("/f", os.O_RDONLY)
	require.NoError(t, err)
	st, err := f2.Stat()
	require.NoError(t, err)
	require.True(t, st.ModTime().Equal(NewTimestamp(1000).Time()))
	require.NoError(t, f2.Close())
}

func TestMountRejectsCorruptMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vfs.img")
	storage, err := file.CreateFromPath(path, headerSize)
	require.NoError(t, err)
	m, err := Create(storage, WithBlockSize(DefaultBlockSize))
	require.NoError(t, err)
	require.NoError(t, m.Close())

	raw, err := os.OpenFile(path, os.O_RDWR, 0o600)
	require.NoError(t, err)
	_, err = raw.WriteAt([]byte{0, 0}, 0)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	storage2, err := file.OpenFromPath(path, false)
	require.NoError(t, err)
	_, err = Read(storage2)
	require.Error(t, err)
	var vfsErr *Error
	require.ErrorAs(t, err, &vfsErr)
	require.Equal(t, KindCorruptLog, vfsErr.Kind)
}
