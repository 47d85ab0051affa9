package logvfs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vfslog/vfslog/testhelper"
)

func TestFaultInjectedTruncatedTailStopsReplayCleanly(t *testing.T) {
	store := testhelper.NewFileImpl()
	m, err := Create(store)
	require.NoError(t, err)

	_, err = m.OpenFile("/f", os.O_CREATE|os.O_RDWR)
	require.NoError(t, err)

	fi, err := store.Stat()
	require.NoError(t, err)
	fullSize := fi.Size()

	// Simulate a crash two bytes short of everything written so far: the final record's trailing CRC
	// never made it to disk.
	store.Truncate(fullSize - 2)

	ns := newNamespace()
	log := &logEngine{storage: store, size: fullSize - 2}
	err = log.forEachFrame(headerSize, ns.apply)
	require.NoError(t, err, "a truncated tail must stop replay cleanly, never return an error")

	_, ok := ns.childOf(RootInodeId, "f")
	require.False(t, ok, "the final record describing /f never fully landed, so it must not appear after replay")
}

func TestFaultInjectedReadErrorPropagatesFromExtentOverlay(t *testing.T) {
	store := testhelper.NewFileImpl()
	_, err := store.WriteAt([]byte("abc"), 0)
	require.NoError(t, err)

	store.Reader = func(b []byte, offset int64) (int, error) {
		return 0, errInjectedReadFailure
	}

	extents := []Extent{{LogicalOffset: 0, FileOffset: 0, Len: 3}}
	buf := make([]byte, 3)
	_, err = readExtentsAt(store, extents, 3, 0, buf)
	require.Error(t, err)
}

var errInjectedReadFailure = simpleErr("injected read failure")
