package wire

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	require := require.New(t)

	p := NewPacker(8)
	p.PackByte(0xab)
	p.PackU16(0x0102)
	p.PackI32(-5)
	p.PackU32(0xdeadbeef)
	p.PackI64(-1 << 40)
	p.PackU64(1 << 60)
	p.PackBytes([]byte{9, 8, 7})
	require.NoError(p.Err)

	u := NewUnpacker(p.Bytes)
	require.Equal(byte(0xab), u.UnpackByte())
	require.Equal(uint16(0x0102), u.UnpackU16())
	require.Equal(int32(-5), u.UnpackI32())
	require.Equal(uint32(0xdeadbeef), u.UnpackU32())
	require.Equal(int64(-1<<40), u.UnpackI64())
	require.Equal(uint64(1<<60), u.UnpackU64())
	require.Equal([]byte{9, 8, 7}, u.UnpackBytes(3))
	require.NoError(u.Err)
	require.True(u.Done())
}

func TestLittleEndianLayout(t *testing.T) {
	require := require.New(t)

	p := NewPacker(4)
	p.PackU32(0x01020304)
	require.Equal([]byte{0x04, 0x03, 0x02, 0x01}, p.Bytes)
}

func TestFloatPackingIsBitExact(t *testing.T) {
	require := require.New(t)

	for _, v := range []float64{0, 1.5, -math.Pi, math.Inf(1), math.SmallestNonzeroFloat64} {
		p := NewPacker(8)
		p.PackF64(v)
		u := NewUnpacker(p.Bytes)
		got := u.UnpackF64()
		require.Equal(math.Float64bits(v), math.Float64bits(got))
	}

	// NaN payload bits survive too: the packer moves bit patterns, not
	// float values.
	nan := math.Float64frombits(0x7ff8000000000123)
	p := NewPacker(8)
	p.PackF64(nan)
	u := NewUnpacker(p.Bytes)
	require.Equal(uint64(0x7ff8000000000123), math.Float64bits(u.UnpackF64()))
}

func TestUnpackerShortBufferSetsErrOnce(t *testing.T) {
	require := require.New(t)

	u := NewUnpacker([]byte{1, 2})
	require.Equal(int32(0), u.UnpackI32())
	require.Error(u.Err)
	first := u.Err

	require.Equal(byte(0), u.UnpackByte())
	require.Same(first, u.Err, "later reads must not overwrite the first error")
	require.False(u.Done())
}

func TestPackerErrShortCircuits(t *testing.T) {
	require := require.New(t)

	p := NewPacker(0)
	p.Err = errTest
	p.PackI32(1)
	p.PackU64(2)
	require.Empty(p.Bytes)
}

var errTest = errFixed("boom")

type errFixed string

func (e errFixed) Error() string { return string(e) }
