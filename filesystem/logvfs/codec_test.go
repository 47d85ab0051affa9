package logvfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := newEncoder()
	e.putU8(7)
	e.putU32(1234)
	e.putU64(9876543210)
	ts := NewTimestamp(-42)
	e.putI128(ts)
	e.putString("hello/world")
	e.putOptionalTimestamp(nil)
	e.putOptionalTimestamp(&ts)
	id := InodeId(5)
	e.putOptionalInode(nil)
	e.putOptionalInode(&id)

	d := newDecoder(e.bytes())

	u8, err := d.getU8()
	require.NoError(t, err)
	require.Equal(t, uint8(7), u8)

	u32, err := d.getU32()
	require.NoError(t, err)
	require.Equal(t, uint32(1234), u32)

	u64, err := d.getU64()
	require.NoError(t, err)
	require.Equal(t, uint64(9876543210), u64)

	gotTS, err := d.getI128()
	require.NoError(t, err)
	require.True(t, gotTS.Equal(ts))

	s, err := d.getString()
	require.NoError(t, err)
	require.Equal(t, "hello/world", s)

	optTS, err := d.getOptionalTimestamp()
	require.NoError(t, err)
	require.Nil(t, optTS)

	optTS2, err := d.getOptionalTimestamp()
	require.NoError(t, err)
	require.NotNil(t, optTS2)
	require.True(t, optTS2.Equal(ts))

	optID, err := d.getOptionalInode()
	require.NoError(t, err)
	require.Nil(t, optID)

	optID2, err := d.getOptionalInode()
	require.NoError(t, err)
	require.NotNil(t, optID2)
	require.Equal(t, id, *optID2)

	require.True(t, d.isEOF())
}

func TestDecoderUnexpectedEOF(t *testing.T) {
	d := newDecoder([]byte{1, 2, 3})
	_, err := d.getU64()
	require.Error(t, err)
	var vfsErr *Error
	require.ErrorAs(t, err, &vfsErr)
	require.Equal(t, KindCorruptLog, vfsErr.Kind)
}

func TestDecoderRejectsInvalidUTF8(t *testing.T) {
	e := newEncoder()
	e.putBytes([]byte{0xff, 0xfe, 0xfd})
	d := newDecoder(e.bytes())
	_, err := d.getString()
	require.Error(t, err)
}

func TestDecoderRejectsInvalidOptionTag(t *testing.T) {
	d := newDecoder([]byte{2})
	_, err := d.getOptionalInode()
	require.Error(t, err)
}
