package logvfs

import (
	"fmt"
	"math"
	"time"

	"github.com/vfslog/vfslog/util/timestamp"
)

// Timestamp is a signed 128-bit count of nanoseconds since the Unix epoch, stored bit-exact on the
// wire. Negative values are pre-epoch times.
//
// Two's complement 128 bits are represented as (hi, lo): hi holds the sign-extended upper 64 bits,
// lo the lower 64 bits. Every timestamp this package produces fits comfortably within an int64 of
// nanoseconds (±292 years around 1970), so hi is always a sign-extension of lo's top bit in practice;
// the wider representation exists purely so the wire format round-trips bit-exactly.
type Timestamp struct {
	hi int64
	lo uint64
}

// NewTimestamp builds a Timestamp from a count of nanoseconds since the Unix epoch that fits in an
// int64 (the only range this package ever constructs internally).
func NewTimestamp(nanos int64) Timestamp {
	hi := int64(0)
	if nanos < 0 {
		hi = -1
	}
	return Timestamp{hi: hi, lo: uint64(nanos)}
}

// Now returns the current time as a Timestamp, honoring SOURCE_DATE_EPOCH like util/timestamp does
// for reproducible builds/tests.
func Now() Timestamp {
	return NewTimestamp(timestamp.GetTime().UnixNano())
}

// Time converts back to a time.Time. Values whose magnitude would overflow an int64 nanosecond count
// saturate to the nearest representable time rather than wrapping.
func (t Timestamp) Time() time.Time {
	return time.Unix(0, t.asInt64Saturating())
}

func (t Timestamp) asInt64Saturating() int64 {
	// in range iff hi is the sign-extension of lo's top bit
	var signExt int64
	if t.lo&(1<<63) != 0 {
		signExt = -1
	}
	if t.hi == signExt {
		return int64(t.lo)
	}
	if t.hi < 0 {
		return math.MinInt64
	}
	return math.MaxInt64
}

// Before reports whether t occurred strictly before o.
func (t Timestamp) Before(o Timestamp) bool {
	if t.hi != o.hi {
		return t.hi < o.hi
	}
	return t.lo < o.lo
}

// Equal reports bytewise equality.
func (t Timestamp) Equal(o Timestamp) bool {
	return t.hi == o.hi && t.lo == o.lo
}

func (t Timestamp) String() string {
	return fmt.Sprintf("Timestamp(%s)", t.Time().UTC().Format(time.RFC3339Nano))
}

// leBytes renders the full 16-byte little-endian two's complement representation.
func (t Timestamp) leBytes() []byte {
	out := make([]byte, 16)
	lo := t.lo
	hi := uint64(t.hi)
	for i := 0; i < 8; i++ {
		out[i] = byte(lo)
		lo >>= 8
	}
	for i := 8; i < 16; i++ {
		out[i] = byte(hi)
		hi >>= 8
	}
	return out
}

// timestampFromLEBytes parses a 16-byte little-endian two's complement buffer. Caller guarantees len==16.
func timestampFromLEBytes(b []byte) Timestamp {
	var lo, hi uint64
	for i := 7; i >= 0; i-- {
		lo = lo<<8 | uint64(b[i])
	}
	for i := 15; i >= 8; i-- {
		hi = hi<<8 | uint64(b[i])
	}
	return Timestamp{hi: int64(hi), lo: lo}
}
