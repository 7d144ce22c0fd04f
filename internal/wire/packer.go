// Package wire implements the little-endian byte packer and unpacker that
// backs the planner's message codec (see internal/message). A Packer
// accumulates an error once and lets every subsequent call become a
// no-op, so callers can chain a whole message encode and check Err a
// single time at the end.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Packer accumulates bytes for a single encoded message.
type Packer struct {
	Bytes []byte
	Err   error
}

// NewPacker returns a Packer with a pre-sized backing array.
func NewPacker(size int) *Packer {
	return &Packer{Bytes: make([]byte, 0, size)}
}

func (p *Packer) PackByte(b byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b)
}

func (p *Packer) PackBytes(b []byte) {
	if p.Err != nil {
		return
	}
	p.Bytes = append(p.Bytes, b...)
}

func (p *Packer) PackI32(v int32) {
	if p.Err != nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	p.Bytes = append(p.Bytes, buf[:]...)
}

func (p *Packer) PackU32(v uint32) {
	if p.Err != nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	p.Bytes = append(p.Bytes, buf[:]...)
}

func (p *Packer) PackI64(v int64) {
	if p.Err != nil {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	p.Bytes = append(p.Bytes, buf[:]...)
}

func (p *Packer) PackU64(v uint64) {
	if p.Err != nil {
		return
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	p.Bytes = append(p.Bytes, buf[:]...)
}

func (p *Packer) PackU16(v uint16) {
	if p.Err != nil {
		return
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	p.Bytes = append(p.Bytes, buf[:]...)
}

// PackF64 packs a float64's IEEE-754 bit pattern as a little-endian u64,
// deliberately not relying on host memory layout.
func (p *Packer) PackF64(v float64) {
	p.PackU64(math.Float64bits(v))
}

// Unpacker reads sequentially from a fixed byte slice.
type Unpacker struct {
	Buf []byte
	Pos int
	Err error
}

func NewUnpacker(buf []byte) *Unpacker {
	return &Unpacker{Buf: buf}
}

func (u *Unpacker) need(n int) bool {
	if u.Err != nil {
		return false
	}
	if u.Pos+n > len(u.Buf) {
		u.Err = fmt.Errorf("wire: short buffer: need %d bytes at offset %d, have %d", n, u.Pos, len(u.Buf))
		return false
	}
	return true
}

func (u *Unpacker) UnpackByte() byte {
	if !u.need(1) {
		return 0
	}
	b := u.Buf[u.Pos]
	u.Pos++
	return b
}

func (u *Unpacker) UnpackBytes(n int) []byte {
	if !u.need(n) {
		return nil
	}
	out := make([]byte, n)
	copy(out, u.Buf[u.Pos:u.Pos+n])
	u.Pos += n
	return out
}

func (u *Unpacker) UnpackI32() int32 {
	if !u.need(4) {
		return 0
	}
	v := int32(binary.LittleEndian.Uint32(u.Buf[u.Pos:]))
	u.Pos += 4
	return v
}

func (u *Unpacker) UnpackU32() uint32 {
	if !u.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(u.Buf[u.Pos:])
	u.Pos += 4
	return v
}

func (u *Unpacker) UnpackI64() int64 {
	if !u.need(8) {
		return 0
	}
	v := int64(binary.LittleEndian.Uint64(u.Buf[u.Pos:]))
	u.Pos += 8
	return v
}

func (u *Unpacker) UnpackU64() uint64 {
	if !u.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(u.Buf[u.Pos:])
	u.Pos += 8
	return v
}

func (u *Unpacker) UnpackU16() uint16 {
	if !u.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(u.Buf[u.Pos:])
	u.Pos += 2
	return v
}

func (u *Unpacker) UnpackF64() float64 {
	return math.Float64frombits(u.UnpackU64())
}

// Done reports whether every byte of the buffer has been consumed.
func (u *Unpacker) Done() bool {
	return u.Err == nil && u.Pos == len(u.Buf)
}
