// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package savestate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func TestCursorWriteGrows(t *testing.T) {
	c := NewCursor(nil)
	c.Write([]byte{1, 2, 3})
	c.Write([]byte{4})
	if c.Offset() != 4 {
		t.Fatalf("Offset() = %d, want 4", c.Offset())
	}
	if !bytes.Equal(c.Bytes(), []byte{1, 2, 3, 4}) {
		t.Errorf("Bytes() = %v, want [1 2 3 4]", c.Bytes())
	}
}

func TestCursorWriteAtOffsetKeepsPrefix(t *testing.T) {
	c := NewCursor([]byte{9, 9})
	c.Skip(2)
	c.Write([]byte{7})
	if !bytes.Equal(c.Bytes(), []byte{9, 9, 7}) {
		t.Errorf("Bytes() = %v, want [9 9 7]", c.Bytes())
	}
}

func TestCursorAdvancePastEnd(t *testing.T) {
	c := NewCursor([]byte{1, 2})
	if err := c.Advance(3); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Advance(3) error = %v, want ErrCorrupt", err)
	}
	if err := c.Advance(2); err != nil {
		t.Fatalf("Advance(2) error = %v", err)
	}
	if c.Remaining() != nil {
		t.Errorf("Remaining() = %v, want nil", c.Remaining())
	}
}

func TestEncoderDecoderFields(t *testing.T) {
	e := NewEncoder()
	PutUint(e, uint8(0xAB))
	PutUint(e, uint16(0xBEEF))
	PutUint(e, uint32(0xDEADBEEF))
	PutUint(e, uint64(1<<40))
	e.Bool(true)
	e.Float32(1.5)
	e.Blob([]byte("xfb"))
	PutUints(e, []uint32{1, 2, 3})

	d := NewDecoder(e.Bytes())
	if got := Uint[uint8](d); got != 0xAB {
		t.Errorf("Uint[uint8] = %#x, want 0xab", got)
	}
	if got := Uint[uint16](d); got != 0xBEEF {
		t.Errorf("Uint[uint16] = %#x, want 0xbeef", got)
	}
	if got := Uint[uint32](d); got != 0xDEADBEEF {
		t.Errorf("Uint[uint32] = %#x, want 0xdeadbeef", got)
	}
	if got := Uint[uint64](d); got != 1<<40 {
		t.Errorf("Uint[uint64] = %d, want %d", got, uint64(1<<40))
	}
	if !d.Bool() {
		t.Error("Bool() = false, want true")
	}
	if got := d.Float32(); got != 1.5 {
		t.Errorf("Float32() = %v, want 1.5", got)
	}
	if got := d.Blob(); string(got) != "xfb" {
		t.Errorf("Blob() = %q, want %q", got, "xfb")
	}
	arr := make([]uint32, 3)
	Uints(d, arr)
	if arr[0] != 1 || arr[1] != 2 || arr[2] != 3 {
		t.Errorf("Uints() = %v, want [1 2 3]", arr)
	}
	if err := d.Finish(); err != nil {
		t.Errorf("Finish() = %v, want nil", err)
	}
}

func TestDecoderStickyError(t *testing.T) {
	d := NewDecoder([]byte{1})
	_ = Uint[uint32](d)
	if d.Err() == nil {
		t.Fatal("expected short read error")
	}
	if got := Uint[uint8](d); got != 0 {
		t.Errorf("read after error = %d, want 0", got)
	}
	if err := d.Finish(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Finish() = %v, want ErrCorrupt", err)
	}
}

func TestDecoderTrailingBytes(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	_ = Uint[uint8](d)
	if err := d.Finish(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Finish() = %v, want ErrCorrupt", err)
	}
}

func TestDecoderInvalidBool(t *testing.T) {
	d := NewDecoder([]byte{2})
	d.Bool()
	if !errors.Is(d.Err(), ErrCorrupt) {
		t.Errorf("Err() = %v, want ErrCorrupt", d.Err())
	}
}

func TestPackUnpack(t *testing.T) {
	sections := []Section{
		{ID: 3, Data: []byte("bp registers")},
		{ID: 7, Data: nil},
		{ID: 9, Data: bytes.Repeat([]byte{0x5A}, 300)},
	}
	for _, compress := range []bool{false, true} {
		blob := Pack(sections, compress)
		blob = append(blob, 0xFF) // trailing host data

		h, got, n, err := Unpack(blob)
		if err != nil {
			t.Fatalf("Unpack(compress=%v) error = %v", compress, err)
		}
		if n != len(blob)-1 {
			t.Errorf("Unpack(compress=%v) consumed %d, want %d", compress, n, len(blob)-1)
		}
		if h.Version != Version || h.Sections != 3 {
			t.Errorf("header = %+v, want version %d and 3 sections", h, Version)
		}
		if (h.Flags&FlagCompressed != 0) != compress {
			t.Errorf("compressed flag = %v, want %v", h.Flags&FlagCompressed != 0, compress)
		}
		for i := range sections {
			if got[i].ID != sections[i].ID || !bytes.Equal(got[i].Data, sections[i].Data) {
				t.Errorf("section %d = {%d %q}, want {%d %q}", i, got[i].ID, got[i].Data, sections[i].ID, sections[i].Data)
			}
		}
	}
}

func TestUnpackRejectsCorruption(t *testing.T) {
	good := Pack([]Section{{ID: 1, Data: []byte("state")}}, false)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"short header", func(b []byte) []byte { return b[:HeaderSize-1] }},
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"version mismatch", func(b []byte) []byte { b[4]++; return b }},
		{"unknown flag", func(b []byte) []byte { b[8] = 0x80; return b }},
		{"checksum", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }},
		{"truncated payload", func(b []byte) []byte { return b[:len(b)-2] }},
		{"section count", func(b []byte) []byte { b[6] = 2; return b }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			if _, _, _, err := Unpack(b); !errors.Is(err, ErrCorrupt) {
				t.Errorf("Unpack() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestUnpackRejectsOversizedCompressedPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"claims 1 GiB", binary.AppendUvarint(nil, 1<<30)},
		{"just over the limit", binary.AppendUvarint(nil, MaxPayload+1)},
		{"bad length prefix", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := append(tt.payload, 0x00, 0x00)
			blob := make([]byte, HeaderSize, HeaderSize+len(payload))
			copy(blob, Magic)
			binary.LittleEndian.PutUint16(blob[4:6], Version)
			binary.LittleEndian.PutUint16(blob[6:8], 1)
			blob[8] = FlagCompressed
			blob[9] = checksum(payload)
			binary.LittleEndian.PutUint32(blob[10:14], uint32(len(payload))) //nolint:gosec // small test payload
			blob = append(blob, payload...)

			if _, _, _, err := Unpack(blob); !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Unpack() error = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestModeString(t *testing.T) {
	if ModeWrite.String() != "write" {
		t.Errorf("ModeWrite.String() = %q, want %q", ModeWrite.String(), "write")
	}
	if Mode(42).String() != "Mode(42)" {
		t.Errorf("Mode(42).String() = %q", Mode(42).String())
	}
}
