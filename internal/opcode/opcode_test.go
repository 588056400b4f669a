// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package opcode

import (
	"errors"
	"testing"
)

func TestReaderDecodesPacket(t *testing.T) {
	var p Packet
	p.Nop().
		LoadBP(0x45, 0x1234567). // value truncated to 24 bits
		LoadCP(0x50, 0xCAFEBABE).
		LoadXF(0x1000, 1, 2, 3).
		CallDL(0x8000, 64).
		InvalidateVertexCache().
		Draw(PrimTriangles, 2, 3, []byte{1, 2, 3})

	r := NewReader(p.Bytes())
	want := []Op{OpNop, OpLoadBPReg, OpLoadCPReg, OpLoadXFReg, OpCallDL, OpInvalidateVtx, DrawOp(PrimTriangles, 2)}
	for i, op := range want {
		cmd, err := r.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if cmd.Op != op {
			t.Fatalf("Next() #%d op = %s, want %s", i, cmd.Op, op)
		}
		switch cmd.Op {
		case OpLoadBPReg:
			if cmd.Reg != 0x45 || cmd.Value != 0x234567 {
				t.Errorf("BP = (%#x, %#x), want (0x45, 0x234567)", cmd.Reg, cmd.Value)
			}
		case OpLoadCPReg:
			if cmd.Reg != 0x50 || cmd.Value != 0xCAFEBABE {
				t.Errorf("CP = (%#x, %#x), want (0x50, 0xcafebabe)", cmd.Reg, cmd.Value)
			}
		case OpLoadXFReg:
			if cmd.Addr != 0x1000 || len(cmd.Values) != 3 || cmd.Values[2] != 3 {
				t.Errorf("XF = (%#x, %v), want (0x1000, [1 2 3])", cmd.Addr, cmd.Values)
			}
		case OpCallDL:
			if cmd.ListAddr != 0x8000 || cmd.ListSize != 64 {
				t.Errorf("CALL_DL = (%#x, %d), want (0x8000, 64)", cmd.ListAddr, cmd.ListSize)
			}
		}
		if cmd.Op.IsDraw() {
			if cmd.Count != 3 || cmd.Op.Primitive() != PrimTriangles || cmd.Op.VAT() != 2 {
				t.Errorf("draw = %s count %d, want TRIANGLES[2] count 3", cmd.Op, cmd.Count)
			}
			if _, err := r.VertexData(3, cmd.Op); err != nil {
				t.Fatalf("VertexData() error = %v", err)
			}
		}
	}
	if r.More() {
		t.Errorf("More() = true after last command, offset %d", r.Offset())
	}
}

func TestLoadXFSplitsLongTransfers(t *testing.T) {
	vals := make([]uint32, 20)
	for i := range vals {
		vals[i] = uint32(i)
	}
	var p Packet
	p.LoadXF(0x100, vals...)

	r := NewReader(p.Bytes())
	first, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Values) != 16 || len(second.Values) != 4 {
		t.Fatalf("split = %d+%d, want 16+4", len(first.Values), len(second.Values))
	}
	if second.Addr != 0x110 || second.Values[0] != 16 {
		t.Errorf("second transfer = (%#x, %d), want (0x110, 16)", second.Addr, second.Values[0])
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"short bp", []byte{byte(OpLoadBPReg), 0, 0}, ErrTruncated},
		{"short xf values", []byte{byte(OpLoadXFReg), 0, 1, 0, 0, 0, 0, 0, 1}, ErrTruncated},
		{"short draw header", []byte{byte(OpDraw)}, ErrTruncated},
		{"unknown", []byte{0x20}, ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(tt.in).Next()
			if !errors.Is(err, tt.want) {
				t.Errorf("Next() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpLoadBPReg, "LOAD_BP_REG"},
		{DrawOp(PrimQuads, 0), "DRAW_QUADS[0]"},
		{DrawOp(PrimPoints, 7), "DRAW_POINTS[7]"},
		{Op(0x20), "Op(0x20)"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%#x).String() = %q, want %q", uint8(tt.op), got, tt.want)
		}
	}
}
