// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package opcode defines the captured graphics command stream: opcode
// values, big-endian packet encoders for producers, and a Reader used by the
// decoder on the consumer goroutine.
//
// A packet is a byte slice holding one or more whole commands:
//
//	LOAD_BP_REG  0x61  u32 (reg<<24 | value&0xFFFFFF)
//	LOAD_CP_REG  0x08  u8 reg, u32 value
//	LOAD_XF_REG  0x10  u32 ((count-1)<<16 | addr), count*u32
//	CALL_DL      0x40  u32 addr, u32 size
//	INVALIDATE   0x48
//	NOP          0x00
//	DRAW         0x80 | prim<<3 | vat, u16 count, vertex data
//
// Draw vertex data length depends on the vertex format registers, so the
// Reader hands draws back to the caller to size.
package opcode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated reports a command cut short by the end of its packet.
var ErrTruncated = errors.New("opcode: truncated command")

// ErrUnknown reports an opcode the decoder does not understand.
var ErrUnknown = errors.New("opcode: unknown opcode")

// Op is the first byte of a command.
type Op uint8

const (
	OpNop            Op = 0x00
	OpLoadCPReg      Op = 0x08
	OpLoadXFReg      Op = 0x10
	OpCallDL         Op = 0x40
	OpInvalidateVtx  Op = 0x48
	OpLoadBPReg      Op = 0x61
	OpDraw           Op = 0x80
	drawMask         Op = 0xC0
	drawPrimMask     Op = 0x38
	drawVATMask      Op = 0x07
	maxXFTransferLen    = 16
)

var opNames = map[Op]string{
	OpNop:           "NOP",
	OpLoadCPReg:     "LOAD_CP_REG",
	OpLoadXFReg:     "LOAD_XF_REG",
	OpCallDL:        "CALL_DL",
	OpInvalidateVtx: "INVALIDATE_VTX_CACHE",
	OpLoadBPReg:     "LOAD_BP_REG",
}

// IsDraw reports whether op is one of the draw opcodes.
func (op Op) IsDraw() bool { return op&drawMask == OpDraw }

// Primitive returns the primitive of a draw opcode.
func (op Op) Primitive() Primitive { return Primitive((op & drawPrimMask) >> 3) }

// VAT returns the vertex attribute table index of a draw opcode.
func (op Op) VAT() uint8 { return uint8(op & drawVATMask) }

// String returns the opcode mnemonic.
func (op Op) String() string {
	if op.IsDraw() {
		return fmt.Sprintf("DRAW_%s[%d]", op.Primitive(), op.VAT())
	}
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("Op(%#02x)", uint8(op))
}

// Primitive is the topology of a draw.
type Primitive uint8

const (
	PrimQuads Primitive = iota
	PrimQuads2
	PrimTriangles
	PrimTriangleStrip
	PrimTriangleFan
	PrimLines
	PrimLineStrip
	PrimPoints
)

var primNames = [...]string{
	PrimQuads:         "QUADS",
	PrimQuads2:        "QUADS_2",
	PrimTriangles:     "TRIANGLES",
	PrimTriangleStrip: "TRIANGLE_STRIP",
	PrimTriangleFan:   "TRIANGLE_FAN",
	PrimLines:         "LINES",
	PrimLineStrip:     "LINE_STRIP",
	PrimPoints:        "POINTS",
}

// String returns the primitive name.
func (p Primitive) String() string {
	if int(p) < len(primNames) {
		return primNames[p]
	}
	return "UNKNOWN"
}

// DrawOp returns the opcode for a draw of prim using vertex format vat.
func DrawOp(prim Primitive, vat uint8) Op {
	return OpDraw | Op(prim&7)<<3 | Op(vat&7)
}

// Packet builds a command packet.
type Packet struct {
	buf []byte
}

// Bytes returns the encoded packet.
func (p *Packet) Bytes() []byte { return p.buf }

// Nop appends a NOP.
func (p *Packet) Nop() *Packet {
	p.buf = append(p.buf, byte(OpNop))
	return p
}

// LoadBP appends a BP register write. Only the low 24 bits of value are
// carried.
func (p *Packet) LoadBP(reg uint8, value uint32) *Packet {
	p.buf = append(p.buf, byte(OpLoadBPReg))
	p.buf = binary.BigEndian.AppendUint32(p.buf, uint32(reg)<<24|value&0xFFFFFF)
	return p
}

// LoadCP appends a CP register write.
func (p *Packet) LoadCP(reg uint8, value uint32) *Packet {
	p.buf = append(p.buf, byte(OpLoadCPReg), reg)
	p.buf = binary.BigEndian.AppendUint32(p.buf, value)
	return p
}

// LoadXF appends a transfer of values into XF memory starting at addr.
// At most 16 values are sent per command; longer transfers are split.
func (p *Packet) LoadXF(addr uint16, values ...uint32) *Packet {
	for len(values) > 0 {
		n := min(len(values), maxXFTransferLen)
		p.buf = append(p.buf, byte(OpLoadXFReg))
		p.buf = binary.BigEndian.AppendUint32(p.buf, uint32(n-1)<<16|uint32(addr))
		for _, v := range values[:n] {
			p.buf = binary.BigEndian.AppendUint32(p.buf, v)
		}
		values = values[n:]
		addr += uint16(n) //nolint:gosec // n <= 16
	}
	return p
}

// CallDL appends a display list call.
func (p *Packet) CallDL(addr, size uint32) *Packet {
	p.buf = append(p.buf, byte(OpCallDL))
	p.buf = binary.BigEndian.AppendUint32(p.buf, addr)
	p.buf = binary.BigEndian.AppendUint32(p.buf, size)
	return p
}

// InvalidateVertexCache appends an INVALIDATE_VTX_CACHE.
func (p *Packet) InvalidateVertexCache() *Packet {
	p.buf = append(p.buf, byte(OpInvalidateVtx))
	return p
}

// Draw appends a draw of count vertices. data must already be laid out in
// the vertex format selected by vat.
func (p *Packet) Draw(prim Primitive, vat uint8, count uint16, data []byte) *Packet {
	p.buf = append(p.buf, byte(DrawOp(prim, vat)))
	p.buf = binary.BigEndian.AppendUint16(p.buf, count)
	p.buf = append(p.buf, data...)
	return p
}
