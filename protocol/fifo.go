// Accelerometer/loadcell FIFO transport (spec.md §3 "Accelerometer FIFO
// message", §4.10, §6 "Wire format — FIFO records"). Distinct from this
// package's Klipper command/response channel (protocol.go, vlq.go,
// transport.go): this is the framed record stream a satellite board packs
// into its 16-bit register window and the host (or a relaying main board)
// unpacks.
package protocol

import (
	"errors"
	"math"
)

// FifoRecordType is the one-byte type tag of a FIFO record.
type FifoRecordType uint8

const (
	FifoTypePad             FifoRecordType = 0
	FifoTypeLog             FifoRecordType = 1
	FifoTypeLoadcell        FifoRecordType = 2
	FifoTypeAccelFast       FifoRecordType = 3
	FifoTypeAccelSampleRate FifoRecordType = 4
)

// fifoHeaderSize is the 4-byte timestamp plus 1-byte type that precedes
// every record's payload.
const fifoHeaderSize = 5

// fifoLogPayloadSize is the fixed size of a log-fragment payload (8 ASCII
// bytes, NUL-padded).
const fifoLogPayloadSize = 8

// payloadSize returns the fixed payload length for a record type, or -1 if
// the type is unknown (decoder treats unknown types as undecodable and
// stops, per "frames do not cross transfer boundaries").
func payloadSize(t FifoRecordType) int {
	switch t {
	case FifoTypePad:
		return 0
	case FifoTypeLog:
		return fifoLogPayloadSize
	case FifoTypeLoadcell:
		return 4
	case FifoTypeAccelFast:
		return 4
	case FifoTypeAccelSampleRate:
		return 4
	default:
		return -1
	}
}

// FifoRecord is one decoded accelerometer-transport frame.
type FifoRecord struct {
	TimestampUS uint32
	Type        FifoRecordType

	LogText       [fifoLogPayloadSize]byte // FifoTypeLog
	LoadcellRaw   int32                    // FifoTypeLoadcell
	AccelWord     uint32                   // FifoTypeAccelFast, packed per §4.10
	SampleRateHz  float32                  // FifoTypeAccelSampleRate
}

// FifoEncoder packs records back-to-back into a fixed-size register window,
// padding the remainder with zero bytes so stray trailing bytes decode as
// FifoTypePad (spec.md §4.10).
type FifoEncoder struct {
	buf []byte
	pos int
}

// NewFifoEncoder creates an encoder over a window of the given byte
// capacity (a whole number of 16-bit registers, per spec.md §6).
func NewFifoEncoder(capacity int) *FifoEncoder {
	return &FifoEncoder{buf: make([]byte, capacity)}
}

// CanEncode reports whether a record of type t still fits in the
// remaining window space (the source's can_encode<T> check, spec.md
// §4.10).
func (e *FifoEncoder) CanEncode(t FifoRecordType) bool {
	sz := payloadSize(t)
	if sz < 0 {
		return false
	}
	return e.pos+fifoHeaderSize+sz <= len(e.buf)
}

// Remaining returns the number of bytes still free in the window.
func (e *FifoEncoder) Remaining() int { return len(e.buf) - e.pos }

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func (e *FifoEncoder) writeHeader(ts uint32, t FifoRecordType) {
	putU32LE(e.buf[e.pos:], ts)
	e.buf[e.pos+4] = byte(t)
	e.pos += fifoHeaderSize
}

// EncodeLog appends a log-fragment record. Text longer than 8 bytes is
// truncated; shorter text is NUL-padded.
func (e *FifoEncoder) EncodeLog(ts uint32, text string) bool {
	if !e.CanEncode(FifoTypeLog) {
		return false
	}
	e.writeHeader(ts, FifoTypeLog)
	var payload [fifoLogPayloadSize]byte
	copy(payload[:], text)
	copy(e.buf[e.pos:], payload[:])
	e.pos += fifoLogPayloadSize
	return true
}

// EncodeLoadcell appends a loadcell sample record (raw signed counts).
func (e *FifoEncoder) EncodeLoadcell(ts uint32, raw int32) bool {
	if !e.CanEncode(FifoTypeLoadcell) {
		return false
	}
	e.writeHeader(ts, FifoTypeLoadcell)
	putU32LE(e.buf[e.pos:], uint32(raw))
	e.pos += 4
	return true
}

// EncodeAccelFast appends a fast-accelerometer sample: three signed 10-bit
// axes packed per spec.md §4.10/§6 (bits 0-9 X, 10-19 Y, 20-29 Z, bit 30
// overflow-at-source, bit 31 sample-overrun).
func (e *FifoEncoder) EncodeAccelFast(ts uint32, x, y, z int16, overflow, overrun bool) bool {
	if !e.CanEncode(FifoTypeAccelFast) {
		return false
	}
	e.writeHeader(ts, FifoTypeAccelFast)
	word := PackAccelWord(x, y, z, overflow, overrun)
	putU32LE(e.buf[e.pos:], word)
	e.pos += 4
	return true
}

// EncodeSampleRate appends a sampling-rate announcement record.
func (e *FifoEncoder) EncodeSampleRate(ts uint32, hz float32) bool {
	if !e.CanEncode(FifoTypeAccelSampleRate) {
		return false
	}
	e.writeHeader(ts, FifoTypeAccelSampleRate)
	putU32LE(e.buf[e.pos:], float32bits(hz))
	e.pos += 4
	return true
}

// Padd zero-fills the remainder of the window. Idempotent: calling it
// again when already fully padded is a no-op (spec.md §8 round-trip
// property).
func (e *FifoEncoder) Padd() {
	for i := e.pos; i < len(e.buf); i++ {
		e.buf[i] = 0
	}
}

// Bytes returns the whole encoded window, including any zero padding written
// by Padd. Without Padd, the bytes after the last record are still zero,
// since the window starts zeroed.
func (e *FifoEncoder) Bytes() []byte { return e.buf }

// tenBitSigned packs v (assumed within [-512, 511]) into the low 10 bits.
func tenBitSigned(v int16) uint32 {
	if v < -512 {
		v = -512
	}
	if v > 511 {
		v = 511
	}
	return uint32(v) & 0x3FF
}

// PackAccelWord packs three signed 10-bit axes plus the two status bits
// into the 32-bit word described in spec.md §4.10/§6.
func PackAccelWord(x, y, z int16, overflowAtSource, sampleOverrun bool) uint32 {
	w := tenBitSigned(x) | (tenBitSigned(y) << 10) | (tenBitSigned(z) << 20)
	if overflowAtSource {
		w |= 1 << 30
	}
	if sampleOverrun {
		w |= 1 << 31
	}
	return w
}

func signExtend10(v uint32) int16 {
	v &= 0x3FF
	if v&0x200 != 0 {
		v |= 0xFFFFFC00
	}
	return int16(int32(v))
}

// UnpackAccelWord is the inverse of PackAccelWord.
func UnpackAccelWord(w uint32) (x, y, z int16, overflowAtSource, sampleOverrun bool) {
	x = signExtend10(w)
	y = signExtend10(w >> 10)
	z = signExtend10(w >> 20)
	overflowAtSource = w&(1<<30) != 0
	sampleOverrun = w&(1<<31) != 0
	return
}

// AccelCountsToMPS2 converts a raw 10-bit signed count to m/s^2 assuming a
// +/-2g full-scale range, per spec.md §4.10: raw * (2g) / 0x7FFF.
const gravityMPS2 = 9.80665

func AccelCountsToMPS2(raw int16) float64 {
	return float64(raw) * (2 * gravityMPS2) / 32767.0
}

// RemapAxisSwapped remaps (x, y, z) for the axis-swapped satellite topology
// named in spec.md §4.10: the downstream semantics swap X and Y and negate
// Z.
func RemapAxisSwapped(x, y, z float64) (rx, ry, rz float64) {
	return y, x, -z
}

var errFifoUnderrun = errors.New("fifo: record payload truncated")

// DecodeFifo walks buf, invoking onRecord for each decoded record, and
// stops when fewer than fifoHeaderSize bytes remain (spec.md §4.10: "while
// >= 5 bytes remain"). It returns the number of records decoded. A
// FifoTypePad record (including one with a non-zero stray timestamp from
// padding truncation) is not reported to onRecord; decoding simply
// continues past it.
func DecodeFifo(buf []byte, onRecord func(FifoRecord)) (int, error) {
	n := 0
	for len(buf) >= fifoHeaderSize {
		ts := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		t := FifoRecordType(buf[4])
		buf = buf[fifoHeaderSize:]

		sz := payloadSize(t)
		if sz < 0 {
			// Unknown type: can't know its payload length, treat the rest
			// of the window as unreadable and stop (never silently
			// misframe the remaining records).
			return n, errors.New("fifo: unknown record type")
		}
		if t == FifoTypePad {
			continue
		}
		if len(buf) < sz {
			return n, errFifoUnderrun
		}
		rec := FifoRecord{TimestampUS: ts, Type: t}
		switch t {
		case FifoTypeLog:
			copy(rec.LogText[:], buf[:sz])
		case FifoTypeLoadcell:
			rec.LoadcellRaw = int32(uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24)
		case FifoTypeAccelFast:
			rec.AccelWord = uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
		case FifoTypeAccelSampleRate:
			bits := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
			rec.SampleRateHz = float32frombits(bits)
		}
		buf = buf[sz:]
		n++
		if onRecord != nil {
			onRecord(rec)
		}
	}
	return n, nil
}

func float32bits(f float32) uint32     { return math.Float32bits(f) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }
