// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package opcode

import (
	"encoding/binary"
	"fmt"
)

// Command is one decoded command. Fields not used by Op are zero.
type Command struct {
	Op Op

	// LOAD_BP_REG, LOAD_CP_REG
	Reg   uint8
	Value uint32

	// LOAD_XF_REG
	Addr   uint16
	Values []uint32

	// CALL_DL
	ListAddr uint32
	ListSize uint32

	// DRAW
	Count uint16
}

// Reader walks the commands of a packet.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a reader over p.
func NewReader(p []byte) *Reader { return &Reader{buf: p} }

// More reports whether unread bytes remain.
func (r *Reader) More() bool { return r.off < len(r.buf) }

// Offset returns the read position.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) need(n int, op Op) error {
	if len(r.buf)-r.off < n {
		return fmt.Errorf("%w: %s needs %d bytes, %d left", ErrTruncated, op, n, len(r.buf)-r.off)
	}
	return nil
}

// Next decodes the next command. For draws only the header is consumed;
// the caller must take the vertex data with VertexData once it knows the
// vertex stride.
func (r *Reader) Next() (Command, error) {
	if err := r.need(1, OpNop); err != nil {
		return Command{}, err
	}
	op := Op(r.buf[r.off])
	r.off++

	switch {
	case op == OpNop, op == OpInvalidateVtx:
		return Command{Op: op}, nil

	case op == OpLoadBPReg:
		if err := r.need(4, op); err != nil {
			return Command{}, err
		}
		v := binary.BigEndian.Uint32(r.buf[r.off:])
		r.off += 4
		return Command{Op: op, Reg: uint8(v >> 24), Value: v & 0xFFFFFF}, nil

	case op == OpLoadCPReg:
		if err := r.need(5, op); err != nil {
			return Command{}, err
		}
		reg := r.buf[r.off]
		v := binary.BigEndian.Uint32(r.buf[r.off+1:])
		r.off += 5
		return Command{Op: op, Reg: reg, Value: v}, nil

	case op == OpLoadXFReg:
		if err := r.need(4, op); err != nil {
			return Command{}, err
		}
		hdr := binary.BigEndian.Uint32(r.buf[r.off:])
		r.off += 4
		count := int(hdr>>16)&0xF + 1
		if err := r.need(4*count, op); err != nil {
			return Command{}, err
		}
		vals := make([]uint32, count)
		for i := range vals {
			vals[i] = binary.BigEndian.Uint32(r.buf[r.off:])
			r.off += 4
		}
		return Command{Op: op, Addr: uint16(hdr), Values: vals}, nil

	case op == OpCallDL:
		if err := r.need(8, op); err != nil {
			return Command{}, err
		}
		addr := binary.BigEndian.Uint32(r.buf[r.off:])
		size := binary.BigEndian.Uint32(r.buf[r.off+4:])
		r.off += 8
		return Command{Op: op, ListAddr: addr, ListSize: size}, nil

	case op.IsDraw():
		if err := r.need(2, op); err != nil {
			return Command{}, err
		}
		n := binary.BigEndian.Uint16(r.buf[r.off:])
		r.off += 2
		return Command{Op: op, Count: n}, nil
	}
	return Command{}, fmt.Errorf("%w: %#02x at offset %d", ErrUnknown, uint8(op), r.off-1)
}

// VertexData consumes n bytes of vertex data following a draw header.
func (r *Reader) VertexData(n int, op Op) ([]byte, error) {
	if err := r.need(n, op); err != nil {
		return nil, err
	}
	p := r.buf[r.off : r.off+n]
	r.off += n
	return p, nil
}
