package logvfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadExtentsAtOverlay(t *testing.T) {
	backing := &memStore{buf: []byte("AAAAAAAAAABBBCCCCCCC")}
	extents := []Extent{
		{LogicalOffset: 0, FileOffset: 0, Len: 10},  // "AAAAAAAAAA"
		{LogicalOffset: 3, FileOffset: 10, Len: 3},  // "BBB" overwrites [3,6)
		{LogicalOffset: 16, FileOffset: 13, Len: 7}, // "CCCCCCC" extends past first extent
	}
	buf := make([]byte, 23)
	n, err := readExtentsAt(backing, extents, 23, 0, buf)
	require.NoError(t, err)
	require.Equal(t, 23, n)
	require.Equal(t, "AAABBBAAAA\x00\x00\x00\x00\x00\x00CCCCCCC", string(buf))
}

func TestReadExtentsAtClipsToSize(t *testing.T) {
	backing := &memStore{buf: []byte("hello world")}
	extents := []Extent{{LogicalOffset: 0, FileOffset: 0, Len: 11}}
	buf := make([]byte, 20)
	n, err := readExtentsAt(backing, extents, 5, 0, buf)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf[:5]))
}

func TestReadExtentsAtPastSizeReadsNothing(t *testing.T) {
	backing := &memStore{buf: []byte("hi")}
	extents := []Extent{{LogicalOffset: 0, FileOffset: 0, Len: 2}}
	buf := make([]byte, 4)
	n, err := readExtentsAt(backing, extents, 2, 2, buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestReadExtentsAtPureHoleIsZero(t *testing.T) {
	backing := &memStore{}
	buf := make([]byte, 4)
	for i := range buf {
		buf[i] = 0xff
	}
	n, err := readExtentsAt(backing, nil, 10, 2, buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{0, 0, 0, 0}, buf)
}
