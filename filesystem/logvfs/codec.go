package logvfs

import (
	"encoding/binary"
	"unicode/utf8"
)

// encoder builds a little-endian, length-prefixed byte buffer for a single record payload.
// Every put is a flat append; there is no backpatching.
type encoder struct {
	buf []byte
}

func newEncoder() *encoder {
	return &encoder{buf: make([]byte, 0, 64)}
}

func (e *encoder) bytes() []byte { return e.buf }

func (e *encoder) putU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) putU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) putI128(v Timestamp) {
	e.buf = append(e.buf, v.leBytes()...)
}

func (e *encoder) putBytes(b []byte) {
	e.putU64(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) putString(s string) {
	e.putBytes([]byte(s))
}

func (e *encoder) putOptionalTimestamp(v *Timestamp) {
	if v == nil {
		e.putU8(0)
		return
	}
	e.putU8(1)
	e.putI128(*v)
}

func (e *encoder) putOptionalInode(v *InodeId) {
	if v == nil {
		e.putU8(0)
		return
	}
	e.putU8(1)
	e.putU64(uint64(*v))
}

// decoder reads a byte buffer left to right, bounds-checked, failing with CorruptLog on overrun,
// and validating that decoded strings are well-formed UTF-8.
type decoder struct {
	input []byte
	pos   int
}

func newDecoder(input []byte) *decoder {
	return &decoder{input: input}
}

func (d *decoder) take(n int) ([]byte, error) {
	end := d.pos + n
	if n < 0 || end < d.pos || end > len(d.input) {
		return nil, corruptLogf("unexpected EOF while decoding")
	}
	out := d.input[d.pos:end]
	d.pos = end
	return out, nil
}

func (d *decoder) getU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) getU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *decoder) getU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *decoder) getI128() (Timestamp, error) {
	b, err := d.take(16)
	if err != nil {
		return Timestamp{}, err
	}
	return timestampFromLEBytes(b), nil
}

func (d *decoder) getBytes() ([]byte, error) {
	n, err := d.getU64()
	if err != nil {
		return nil, err
	}
	return d.take(int(n))
}

func (d *decoder) getString() (string, error) {
	b, err := d.getBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", corruptLogf("invalid utf-8 string in record")
	}
	return string(b), nil
}

func (d *decoder) getOptionalTimestamp() (*Timestamp, error) {
	tag, err := d.getU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		ts, err := d.getI128()
		if err != nil {
			return nil, err
		}
		return &ts, nil
	default:
		return nil, corruptLogf("invalid option tag %d", tag)
	}
}

func (d *decoder) getOptionalInode() (*InodeId, error) {
	tag, err := d.getU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		return nil, nil
	case 1:
		v, err := d.getU64()
		if err != nil {
			return nil, err
		}
		id := InodeId(v)
		return &id, nil
	default:
		return nil, corruptLogf("invalid option tag %d", tag)
	}
}

// isEOF reports whether the decoder has consumed the entire buffer.
func (d *decoder) isEOF() bool {
	return d.pos == len(d.input)
}
