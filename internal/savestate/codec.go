// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package savestate

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/exp/constraints"
)

// Encoder appends little-endian fields to a section buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the encoded section.
func (e *Encoder) Bytes() []byte { return e.buf }

// Len returns the number of encoded bytes.
func (e *Encoder) Len() int { return len(e.buf) }

// Bool encodes v as one byte.
func (e *Encoder) Bool(v bool) {
	if v {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// Float32 encodes the IEEE-754 bits of v.
func (e *Encoder) Float32(v float32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, math.Float32bits(v))
}

// Blob encodes a length-prefixed byte slice.
func (e *Encoder) Blob(p []byte) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(p))) //nolint:gosec // section sizes fit uint32
	e.buf = append(e.buf, p...)
}

// PutUint encodes v with the width of T.
func PutUint[T constraints.Unsigned](e *Encoder, v T) {
	switch unsafe.Sizeof(v) {
	case 1:
		e.buf = append(e.buf, byte(v))
	case 2:
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(v))
	case 4:
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(v))
	default:
		e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v))
	}
}

// PutUints encodes every element of vs. The count is not encoded; array
// lengths are fixed by the subsystem layout.
func PutUints[T constraints.Unsigned](e *Encoder, vs []T) {
	for _, v := range vs {
		PutUint(e, v)
	}
}

// Decoder reads fields written by Encoder. The first error is sticky:
// once a read fails every later read returns zero values and Err reports
// the original failure.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder returns a decoder over section data.
func NewDecoder(p []byte) *Decoder { return &Decoder{buf: p} }

// Err returns the first decoding error.
func (d *Decoder) Err() error { return d.err }

// Finish returns the sticky error, or an error if unread bytes remain.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.buf) {
		return fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(d.buf)-d.off)
	}
	return nil
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w: short read of %d bytes at offset %d", ErrCorrupt, n, d.off)
		return nil
	}
	p := d.buf[d.off : d.off+n]
	d.off += n
	return p
}

// Bool decodes one byte as a boolean. Values other than 0 and 1 are corrupt.
func (d *Decoder) Bool() bool {
	p := d.take(1)
	if p == nil {
		return false
	}
	switch p[0] {
	case 0:
		return false
	case 1:
		return true
	}
	d.err = fmt.Errorf("%w: invalid bool byte %#x", ErrCorrupt, p[0])
	return false
}

// Float32 decodes IEEE-754 bits.
func (d *Decoder) Float32() float32 {
	p := d.take(4)
	if p == nil {
		return 0
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(p))
}

// Blob decodes a length-prefixed byte slice. The result is a copy.
func (d *Decoder) Blob() []byte {
	n := Uint[uint32](d)
	p := d.take(int(n))
	if p == nil {
		return nil
	}
	out := make([]byte, len(p))
	copy(out, p)
	return out
}

// Uint decodes a value with the width of T.
func Uint[T constraints.Unsigned](d *Decoder) T {
	var zero T
	p := d.take(int(unsafe.Sizeof(zero)))
	if p == nil {
		return zero
	}
	switch len(p) {
	case 1:
		return T(p[0])
	case 2:
		return T(binary.LittleEndian.Uint16(p))
	case 4:
		return T(binary.LittleEndian.Uint32(p))
	default:
		return T(binary.LittleEndian.Uint64(p))
	}
}

// Uints fills dst with consecutive values.
func Uints[T constraints.Unsigned](d *Decoder, dst []T) {
	for i := range dst {
		dst[i] = Uint[T](d)
	}
}
