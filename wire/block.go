package wire

import "encoding/binary"

// Block is a read cursor over a borrowed buffer.
//
// Reads are best effort: a read that would underflow consumes nothing and
// yields zero (or nil for byte views). Sub-views share the underlying array.
type Block []byte

// Len returns the number of unread bytes.
func (b Block) Len() int { return len(b) }

// Advance consumes n bytes and returns a view of them, or nil if fewer than n
// bytes remain.
func (b *Block) Advance(n int) []byte {
	if n < 0 || len(*b) < n {
		return nil
	}
	p := (*b)[:n:n]
	*b = (*b)[n:]
	return p
}

// Skip discards up to n bytes.
func (b *Block) Skip(n int) {
	if n > len(*b) {
		n = len(*b)
	}
	if n > 0 {
		*b = (*b)[n:]
	}
}

// Take splits off the next n bytes (or all that remain) as a new Block.
func (b *Block) Take(n int) Block {
	if n > len(*b) {
		n = len(*b)
	}
	if n < 0 {
		n = 0
	}
	p := (*b)[:n:n]
	*b = (*b)[n:]
	return p
}

func (b *Block) ReadU8() uint8 {
	p := b.Advance(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (b *Block) ReadU16() uint16 {
	p := b.Advance(2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (b *Block) ReadU32() uint32 {
	p := b.Advance(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

func (b *Block) ReadU64() uint64 {
	p := b.Advance(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

func (b *Block) ReadU16BE() uint16 {
	p := b.Advance(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (b *Block) ReadU32BE() uint32 {
	p := b.Advance(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

func (b *Block) ReadI8() int8   { return int8(b.ReadU8()) }
func (b *Block) ReadI16() int16 { return int16(b.ReadU16()) }
func (b *Block) ReadI32() int32 { return int32(b.ReadU32()) }
func (b *Block) ReadI64() int64 { return int64(b.ReadU64()) }
