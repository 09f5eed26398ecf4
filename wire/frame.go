// Package wire provides the bounds-checked cursors every HCI and L2CAP
// structure is built from and parsed with.
//
// Multi-byte accessors without a suffix use little-endian order, which is the
// order of every HCI and L2CAP field. The BE variants exist for the few fields
// framed big-endian (SDP lengths); callers pick the order per field.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrOverflow is the panic value raised when a write would exceed the
// capacity of a Frame. Frames never perform partial writes.
var ErrOverflow = errors.New("wire: frame is not large enough")

// Frame is a write cursor over a fixed buffer.
type Frame struct {
	buf []byte
	n   int
}

// NewFrame returns a Frame writing into b, with capacity len(b).
func NewFrame(b []byte) *Frame {
	return &Frame{buf: b}
}

// Len returns the number of bytes written so far.
func (f *Frame) Len() int { return f.n }

// Unused returns the number of bytes that can still be written.
func (f *Frame) Unused() int { return len(f.buf) - f.n }

// Bytes returns the written portion of the buffer.
func (f *Frame) Bytes() []byte { return f.buf[:f.n] }

// Reset rewinds the cursor to the start of the buffer.
func (f *Frame) Reset() { f.n = 0 }

// Advance reserves n bytes and returns them for later patch-up, e.g. a length
// field that is only known once the payload has been written.
func (f *Frame) Advance(n int) []byte {
	if n < 0 || f.Unused() < n {
		panic(ErrOverflow)
	}
	b := f.buf[f.n : f.n+n : f.n+n]
	f.n += n
	return b
}

// Write appends p.
func (f *Frame) Write(p []byte) {
	copy(f.Advance(len(p)), p)
}

// Fill appends n copies of v.
func (f *Frame) Fill(v byte, n int) {
	b := f.Advance(n)
	for i := range b {
		b[i] = v
	}
}

// WriteU8 appends v.
func (f *Frame) WriteU8(v uint8) { f.Advance(1)[0] = v }

// WriteU16 appends v in little-endian order.
func (f *Frame) WriteU16(v uint16) { binary.LittleEndian.PutUint16(f.Advance(2), v) }

// WriteU32 appends v in little-endian order.
func (f *Frame) WriteU32(v uint32) { binary.LittleEndian.PutUint32(f.Advance(4), v) }

// WriteU64 appends v in little-endian order.
func (f *Frame) WriteU64(v uint64) { binary.LittleEndian.PutUint64(f.Advance(8), v) }

// WriteU16BE appends v in big-endian order.
func (f *Frame) WriteU16BE(v uint16) { binary.BigEndian.PutUint16(f.Advance(2), v) }

// WriteU32BE appends v in big-endian order.
func (f *Frame) WriteU32BE(v uint32) { binary.BigEndian.PutUint32(f.Advance(4), v) }

// WriteU64BE appends v in big-endian order.
func (f *Frame) WriteU64BE(v uint64) { binary.BigEndian.PutUint64(f.Advance(8), v) }

func (f *Frame) WriteI8(v int8)   { f.WriteU8(uint8(v)) }
func (f *Frame) WriteI16(v int16) { f.WriteU16(uint16(v)) }
func (f *Frame) WriteI32(v int32) { f.WriteU32(uint32(v)) }
func (f *Frame) WriteI64(v int64) { f.WriteU64(uint64(v)) }

// PutU16 patches a reserved 2-byte slot, as returned by Advance, in
// little-endian order.
func PutU16(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
