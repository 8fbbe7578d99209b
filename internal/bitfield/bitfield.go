// Package bitfield implements the BitTorrent piece bitfield.
// Bit 0 is the most significant bit of the first byte, as on the wire.
package bitfield

import "math/bits"

type Bitfield struct {
	b      []byte
	length uint32
}

// New creates an empty Bitfield of length bits.
func New(length uint32) *Bitfield {
	return &Bitfield{b: make([]byte, (length+7)/8), length: length}
}

// NewBytes returns a Bitfield reading its bits from b without copying.
// Unused bits in the last byte are cleared.
// Panics if b cannot hold length bits.
func NewBytes(b []byte, length uint32) *Bitfield {
	n := (length + 7) / 8
	if uint32(len(b)) < n {
		panic("bitfield: byte slice too short")
	}
	if mod := length % 8; mod != 0 {
		b[n-1] &= ^byte(0xff >> mod)
	}
	return &Bitfield{b: b[:n], length: length}
}

// Len returns the number of bits.
func (b *Bitfield) Len() uint32 { return b.length }

// Bytes returns the backing bytes. Mutating them mutates the Bitfield.
func (b *Bitfield) Bytes() []byte { return b.b }

// Set sets bit i. Panics if i >= Len.
func (b *Bitfield) Set(i uint32) {
	b.check(i)
	b.b[i/8] |= 0x80 >> (i % 8)
}

// Clear clears bit i. Panics if i >= Len.
func (b *Bitfield) Clear(i uint32) {
	b.check(i)
	b.b[i/8] &^= 0x80 >> (i % 8)
}

// Test returns bit i. Panics if i >= Len.
func (b *Bitfield) Test(i uint32) bool {
	b.check(i)
	return b.b[i/8]&(0x80>>(i%8)) != 0
}

// Count returns the number of set bits.
func (b *Bitfield) Count() uint32 {
	var n int
	for _, v := range b.b {
		n += bits.OnesCount8(v)
	}
	return uint32(n)
}

// All returns true if every bit is set.
func (b *Bitfield) All() bool { return b.Count() == b.length }

// Copy returns an independent copy of b.
func (b *Bitfield) Copy() *Bitfield {
	c := New(b.length)
	copy(c.b, b.b)
	return c
}

func (b *Bitfield) check(i uint32) {
	if i >= b.length {
		panic("bitfield: index out of range")
	}
}
