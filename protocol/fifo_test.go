package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFifoFramingRoundTrip exercises spec.md §8 scenario 5: a 31-register
// window exhausted after five records, decoded back in order, trailing
// bytes zero.
func TestFifoFramingRoundTrip(t *testing.T) {
	// 31 registers of 16 bits each = 62 bytes.
	enc := NewFifoEncoder(31 * 2)

	require.True(t, enc.EncodeLog(1, "Hello Wo"))
	require.True(t, enc.EncodeLoadcell(2, 0x12345678))
	require.True(t, enc.EncodeLog(3, "Hello Wo"))
	require.True(t, enc.EncodeLoadcell(4, 0x12345678))
	require.True(t, enc.EncodeLog(5, "Hello Wo"))

	// Capacity is exhausted: one more log record needs 13 bytes and
	// there are only a handful of bytes left.
	assert.False(t, enc.CanEncode(FifoTypeLog))
	enc.Padd()

	buf := enc.Bytes()
	assert.Len(t, buf, 62)

	var got []FifoRecord
	n, err := DecodeFifo(buf, func(r FifoRecord) { got = append(got, r) })
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Len(t, got, 5)

	assert.Equal(t, FifoTypeLog, got[0].Type)
	assert.Equal(t, uint32(1), got[0].TimestampUS)
	assert.Equal(t, "Hello Wo", string(got[0].LogText[:]))

	assert.Equal(t, FifoTypeLoadcell, got[1].Type)
	assert.Equal(t, uint32(2), got[1].TimestampUS)
	assert.Equal(t, int32(0x12345678), got[1].LoadcellRaw)

	assert.Equal(t, FifoTypeLog, got[2].Type)
	assert.Equal(t, uint32(3), got[2].TimestampUS)

	assert.Equal(t, FifoTypeLoadcell, got[3].Type)
	assert.Equal(t, uint32(4), got[3].TimestampUS)

	assert.Equal(t, FifoTypeLog, got[4].Type)
	assert.Equal(t, uint32(5), got[4].TimestampUS)

	// Trailing bytes (after the 5th record) are all zero.
	used := 5*fifoHeaderSize + 3*fifoLogPayloadSize + 2*4
	tail := buf[used:]
	assert.Len(t, tail, 62-used)
	for _, b := range tail {
		assert.Zero(t, b)
	}
}

// TestFifoPaddIdempotent checks Padd() can be called repeatedly without
// changing the already-padded window (spec.md §8 "encoder.padd() is
// idempotent").
func TestFifoPaddIdempotent(t *testing.T) {
	enc := NewFifoEncoder(16)
	require.True(t, enc.EncodeLoadcell(0, 42))
	enc.Padd()
	first := append([]byte(nil), enc.Bytes()...)
	enc.Padd()
	assert.Equal(t, first, enc.Bytes())
}

// TestFifoDecodeEmptyOnPadding checks an all-pad window decodes to zero
// records without error.
func TestFifoDecodeEmptyOnPadding(t *testing.T) {
	enc := NewFifoEncoder(20)
	enc.Padd()
	n, err := DecodeFifo(enc.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAccelWordPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		x, y, z           int16
		overflow, overrun bool
	}{
		{0, 0, 0, false, false},
		{511, -512, 100, true, false},
		{-1, 1, -1, false, true},
		{300, -300, 511, true, true},
	}
	for _, c := range cases {
		w := PackAccelWord(c.x, c.y, c.z, c.overflow, c.overrun)
		x, y, z, of, ou := UnpackAccelWord(w)
		assert.Equal(t, c.x, x)
		assert.Equal(t, c.y, y)
		assert.Equal(t, c.z, z)
		assert.Equal(t, c.overflow, of)
		assert.Equal(t, c.overrun, ou)
	}
}

func TestAccelCountsToMPS2(t *testing.T) {
	// A count of 0x7FFF maps to 2g.
	v := AccelCountsToMPS2(32767)
	assert.InDelta(t, 2*gravityMPS2, v, 1e-6)
	assert.Equal(t, 0.0, AccelCountsToMPS2(0))
}

func TestRemapAxisSwapped(t *testing.T) {
	rx, ry, rz := RemapAxisSwapped(1, 2, 3)
	assert.Equal(t, 2.0, rx)
	assert.Equal(t, 1.0, ry)
	assert.Equal(t, -3.0, rz)
}
