// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/savestate"
)

type interruptLog struct {
	lines map[env.Interrupt]bool
}

// newTestContext returns a context with 1 MiB of RAM and default config.
func newTestContext(t *testing.T) (*env.Context, env.RAM, *interruptLog) {
	t.Helper()
	ram := env.NewRAM(1 << 20)
	ctx := env.New(nil, ram, nil)
	log := &interruptLog{lines: make(map[env.Interrupt]bool)}
	ctx.Interrupt = func(line env.Interrupt, asserted bool) { log.lines[line] = asserted }
	return ctx, ram, log
}

func appendF32(b []byte, vs ...float32) []byte {
	for _, v := range vs {
		b = binary.BigEndian.AppendUint32(b, math.Float32bits(v))
	}
	return b
}

func TestVertexFormatEncodeRoundTrip(t *testing.T) {
	f := VertexFormat{
		Pos: AttrIndex16, PosXYZ: true, PosFmt: CompS16, PosFrac: 4,
		Color: AttrDirect, ColorFmt: ColorRGBA4444,
		Tex: AttrIndex8, TexST: true, TexFmt: CompU8, TexFrac: 7,
	}
	lo, hi := f.EncodeVCD()
	if got := DecodeVertexFormat(lo, hi, f.EncodeVATA()); got != f {
		t.Fatalf("DecodeVertexFormat() = %+v, want %+v", got, f)
	}
}

func TestVertexLoaderStride(t *testing.T) {
	tests := []struct {
		name string
		f    VertexFormat
		want int
	}{
		{"pos xy u8", VertexFormat{Pos: AttrDirect, PosFmt: CompU8}, 2},
		{"pos xyz f32", VertexFormat{Pos: AttrDirect, PosXYZ: true, PosFmt: CompF32}, 12},
		{"pos idx16 + rgb888", VertexFormat{Pos: AttrIndex16, PosFmt: CompF32, Color: AttrDirect, ColorFmt: ColorRGB888}, 5},
		{"pos idx8 + color idx8 + tex st s16", VertexFormat{
			Pos: AttrIndex8, Color: AttrIndex8, Tex: AttrDirect, TexST: true, TexFmt: CompS16,
		}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewVertexLoader(tt.f)
			if err != nil {
				t.Fatalf("NewVertexLoader() error = %v", err)
			}
			if l.Stride != tt.want {
				t.Errorf("Stride = %d, want %d", l.Stride, tt.want)
			}
		})
	}
}

func TestVertexLoaderRejectsBadFormats(t *testing.T) {
	for _, f := range []VertexFormat{
		{},
		{Pos: AttrDirect, PosFmt: 6},
		{Pos: AttrDirect, Color: AttrDirect, ColorFmt: 7},
	} {
		if _, err := NewVertexLoader(f); !errors.Is(err, ErrVertexFormat) {
			t.Errorf("NewVertexLoader(%+v) error = %v, want ErrVertexFormat", f, err)
		}
	}
}

func TestVertexLoaderDecodeDirect(t *testing.T) {
	l, err := NewVertexLoader(VertexFormat{
		Pos: AttrDirect, PosXYZ: true, PosFmt: CompF32,
		Color: AttrDirect, ColorFmt: ColorRGB565,
		Tex: AttrDirect, TexST: true, TexFmt: CompS16, TexFrac: 8,
	})
	if err != nil {
		t.Fatal(err)
	}
	src := appendF32(nil, 1, -2, 0.5)
	src = binary.BigEndian.AppendUint16(src, 0xF800) // red
	src = binary.BigEndian.AppendUint16(src, 0x0180) // 1.5
	src = binary.BigEndian.AppendUint16(src, 0xFF00) // -1

	got, err := l.Decode(src, 1, nil)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := Vertex{Pos: [3]float32{1, -2, 0.5}, Color: 0xFF0000FF, UV: [2]float32{1.5, -1}}
	if got[0] != want {
		t.Fatalf("Decode() = %+v, want %+v", got[0], want)
	}
}

func TestVertexLoaderDecodeShortInput(t *testing.T) {
	l, err := NewVertexLoader(VertexFormat{Pos: AttrDirect, PosFmt: CompF32})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Decode(make([]byte, 12), 2, nil); !errors.Is(err, ErrVertexFormat) {
		t.Fatalf("Decode() error = %v, want ErrVertexFormat", err)
	}
}

func TestReadColor(t *testing.T) {
	tests := []struct {
		name string
		f    ColorFormat
		p    []byte
		want uint32
	}{
		{"565 green", ColorRGB565, []byte{0x07, 0xE0}, 0x00FF00FF},
		{"888", ColorRGB888, []byte{1, 2, 3}, 0x010203FF},
		{"888x", ColorRGB888x, []byte{1, 2, 3, 9}, 0x010203FF},
		{"4444", ColorRGBA4444, []byte{0xF0, 0x8F}, 0xFF0088FF},
		{"6666 white", ColorRGBA6666, []byte{0xFF, 0xFF, 0xFF}, 0xFFFFFFFF},
		{"8888", ColorRGBA8888, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0xDEADBEEF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := readColor(tt.p, tt.f); got != tt.want {
				t.Errorf("readColor() = %#08x, want %#08x", got, tt.want)
			}
		})
	}
}

func TestVertexLoaderManagerIndexed(t *testing.T) {
	ctx, ram, _ := newTestContext(t)
	m := NewVertexLoaderManager(ctx)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}

	f := VertexFormat{Pos: AttrIndex8, PosXYZ: true, PosFmt: CompF32}
	lo, hi := f.EncodeVCD()
	m.LoadCPReg(CPVCDLo, lo)
	m.LoadCPReg(CPVCDHi, hi)
	m.LoadCPReg(CPVATA+3, f.EncodeVATA())
	m.LoadCPReg(CPArrayBase+ArrayPosition, 0x100)
	m.LoadCPReg(CPArrayStride+ArrayPosition, 16)
	copy(ram[0x100+2*16:], appendF32(nil, 4, 5, 6))

	l, err := m.Loader(3)
	if err != nil {
		t.Fatalf("Loader() error = %v", err)
	}
	got, err := l.Decode([]byte{2}, 1, m.ReadArray)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got[0].Pos != [3]float32{4, 5, 6} {
		t.Fatalf("Pos = %v, want [4 5 6]", got[0].Pos)
	}
	if _, err := m.Loader(3); err != nil || m.CachedLoaders() != 1 {
		t.Fatalf("CachedLoaders() = %d (err %v), want 1", m.CachedLoaders(), err)
	}
}

func TestVertexLoaderManagerLoadPurgesLoaders(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	m := NewVertexLoaderManager(ctx)
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}
	f := VertexFormat{Pos: AttrDirect, PosFmt: CompU8}
	lo, _ := f.EncodeVCD()
	m.LoadCPReg(CPVCDLo, lo)
	if _, err := m.Loader(0); err != nil {
		t.Fatal(err)
	}

	e := savestate.NewEncoder()
	m.Save(e)
	m.LoadCPReg(CPVCDLo, 0)

	commit, err := m.Load(savestate.NewDecoder(e.Bytes()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if m.regs.VCDLo != 0 {
		t.Fatalf("Load() applied registers before commit")
	}
	commit()
	if m.regs.VCDLo != lo {
		t.Errorf("VCDLo = %#x, want %#x", m.regs.VCDLo, lo)
	}
	if n := m.CachedLoaders(); n != 0 {
		t.Errorf("CachedLoaders() = %d after load, want 0", n)
	}
}
