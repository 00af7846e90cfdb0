// Package codec implements the little-endian, length-prefixed,
// append-only binary format shared by every state-machine entity in
// economy. New trailing fields are optional on read and always
// written, so older persisted state loads without migration.
package codec

import (
	"encoding/binary"
	"fmt"
)

// Writer accumulates a forward-compatible encoding. Every Put* call
// appends unconditionally; callers never omit a field.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with buf pre-sized to size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) PutU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// PutU128 writes v as two little-endian u64 limbs (low, high), the
// fixed-width representation used for every x18-scaled accumulator.
func (w *Writer) PutU128(v U128) {
	w.PutU64(v.Lo)
	w.PutU64(v.Hi)
}

// PutI128 writes a signed 128-bit value as sign byte + magnitude
// limbs; used only for HouseState.NetPNL which can go negative.
func (w *Writer) PutI128(v I128) {
	if v.Neg {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
	w.PutU128(v.Mag)
}

func (w *Writer) PutBytes(b []byte) {
	w.PutU64(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) PutBytesFixed(b []byte) {
	w.buf = append(w.buf, b...)
}

// Reader consumes a forward-compatible encoding. Any Get* call past
// the end of buf returns the field's zero value instead of erroring,
// implementing the "if remaining >= size { read } else { default }"
// truncation rule.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left to consume.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) GetU16() uint16 {
	if r.Remaining() < 2 {
		r.pos = len(r.buf)
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}

func (r *Reader) GetU64() uint64 {
	if r.Remaining() < 8 {
		r.pos = len(r.buf)
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}

func (r *Reader) GetU128() U128 {
	if r.Remaining() < 16 {
		r.pos = len(r.buf)
		return U128{}
	}
	lo := r.GetU64()
	hi := r.GetU64()
	return U128{Lo: lo, Hi: hi}
}

func (r *Reader) GetI128() I128 {
	if r.Remaining() < 1 {
		r.pos = len(r.buf)
		return I128{}
	}
	neg := r.buf[r.pos] != 0
	r.pos++
	return I128{Neg: neg, Mag: r.GetU128()}
}

// GetBytes reads a length-prefixed byte slice, defaulting to nil if
// the length prefix or the payload is truncated.
func (r *Reader) GetBytes() []byte {
	if r.Remaining() < 8 {
		r.pos = len(r.buf)
		return nil
	}
	n := r.GetU64()
	if uint64(r.Remaining()) < n {
		r.pos = len(r.buf)
		return nil
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return out
}

func (r *Reader) GetBytesFixed(n int) []byte {
	if r.Remaining() < n {
		r.pos = len(r.buf)
		return nil
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return out
}

// ErrMalformedPrefix is returned when the leading, mandatory portion
// of an encoding cannot be parsed. Unlike a truncated tail this is
// class-5 fatal per the engine's error taxonomy: the caller never
// silently defaults a malformed prefix.
var ErrMalformedPrefix = fmt.Errorf("codec: malformed prefix")
