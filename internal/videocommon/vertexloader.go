// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gpuvideo/internal/cache"
	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/savestate"
)

// ErrVertexFormat is returned for draws whose vertex format cannot be
// decoded.
var ErrVertexFormat = errors.New("videocommon: bad vertex format")

// CP register addresses.
const (
	CPVCDLo       = 0x50
	CPVCDHi       = 0x60
	CPVATA        = 0x70 // + vat
	CPVATB        = 0x80
	CPVATC        = 0x90
	CPArrayBase   = 0xA0 // + array
	CPArrayStride = 0xB0
)

// Vertex arrays used for indexed attributes.
const (
	ArrayPosition = 0
	ArrayColor0   = 2
	ArrayTex0     = 4

	numArrays = 16
	numVATs   = 8

	loaderCacheSize = 64
)

// AttrType says how an attribute appears in the vertex stream.
type AttrType uint8

const (
	AttrNone AttrType = iota
	AttrDirect
	AttrIndex8
	AttrIndex16
)

// CompFormat is the component format of positions and texture coordinates.
type CompFormat uint8

const (
	CompU8 CompFormat = iota
	CompS8
	CompU16
	CompS16
	CompF32
)

var compSizes = [...]int{CompU8: 1, CompS8: 1, CompU16: 2, CompS16: 2, CompF32: 4}

// ColorFormat is the encoding of a vertex color.
type ColorFormat uint8

const (
	ColorRGB565 ColorFormat = iota
	ColorRGB888
	ColorRGB888x
	ColorRGBA4444
	ColorRGBA6666
	ColorRGBA8888
)

var colorSizes = [...]int{
	ColorRGB565:   2,
	ColorRGB888:   3,
	ColorRGB888x:  4,
	ColorRGBA4444: 2,
	ColorRGBA6666: 3,
	ColorRGBA8888: 4,
}

// Vertex is a decoded vertex. Color is RGBA8 packed as 0xRRGGBBAA.
type Vertex struct {
	Pos   [3]float32
	Color uint32
	UV    [2]float32
}

// VertexFormat is the decoded VCD/VAT pair for one draw.
type VertexFormat struct {
	Pos     AttrType
	PosXYZ  bool
	PosFmt  CompFormat
	PosFrac uint8

	Color    AttrType
	ColorFmt ColorFormat

	Tex     AttrType
	TexST   bool
	TexFmt  CompFormat
	TexFrac uint8
}

// DecodeVertexFormat unpacks the VCD registers and VAT group A.
func DecodeVertexFormat(vcdLo, vcdHi, vatA uint32) VertexFormat {
	return VertexFormat{
		Pos:      AttrType(vcdLo >> 9 & 3),
		PosXYZ:   vatA&1 != 0,
		PosFmt:   CompFormat(vatA >> 1 & 7),
		PosFrac:  uint8(vatA >> 4 & 0x1F),
		Color:    AttrType(vcdLo >> 13 & 3),
		ColorFmt: ColorFormat(vatA >> 14 & 7),
		Tex:      AttrType(vcdHi & 3),
		TexST:    vatA>>21&1 != 0,
		TexFmt:   CompFormat(vatA >> 22 & 7),
		TexFrac:  uint8(vatA >> 25 & 0x1F),
	}
}

// EncodeVATA is the inverse of DecodeVertexFormat for VAT group A.
func (f VertexFormat) EncodeVATA() uint32 {
	v := uint32(f.PosFmt&7)<<1 | uint32(f.PosFrac&0x1F)<<4 |
		uint32(f.ColorFmt&7)<<14 | uint32(f.TexFmt&7)<<22 | uint32(f.TexFrac&0x1F)<<25
	if f.PosXYZ {
		v |= 1
	}
	if f.TexST {
		v |= 1 << 21
	}
	return v
}

// EncodeVCD is the inverse of DecodeVertexFormat for the VCD registers.
func (f VertexFormat) EncodeVCD() (lo, hi uint32) {
	return uint32(f.Pos&3)<<9 | uint32(f.Color&3)<<13, uint32(f.Tex & 3)
}

func (f VertexFormat) posComps() int {
	if f.PosXYZ {
		return 3
	}
	return 2
}

func (f VertexFormat) texComps() int {
	if f.TexST {
		return 2
	}
	return 1
}

func (f VertexFormat) validate() error {
	if f.Pos == AttrNone {
		return fmt.Errorf("%w: no position", ErrVertexFormat)
	}
	if int(f.PosFmt) >= len(compSizes) {
		return fmt.Errorf("%w: position format %d", ErrVertexFormat, f.PosFmt)
	}
	if f.Color != AttrNone && int(f.ColorFmt) >= len(colorSizes) {
		return fmt.Errorf("%w: color format %d", ErrVertexFormat, f.ColorFmt)
	}
	if f.Tex != AttrNone && int(f.TexFmt) >= len(compSizes) {
		return fmt.Errorf("%w: texcoord format %d", ErrVertexFormat, f.TexFmt)
	}
	return nil
}

// attrSize is the stream size of an attribute whose direct form is direct
// bytes long.
func attrSize(t AttrType, direct int) int {
	switch t {
	case AttrDirect:
		return direct
	case AttrIndex8:
		return 1
	case AttrIndex16:
		return 2
	}
	return 0
}

// ArrayReader fetches size bytes of element idx of an indexed array.
type ArrayReader func(array int, idx uint32, size int) ([]byte, error)

// VertexLoader decodes vertices of one format.
type VertexLoader struct {
	Format VertexFormat
	// Stride is the size of one vertex in the command stream.
	Stride int

	posSize, colorSize, texSize int
}

// NewVertexLoader builds a loader for f.
func NewVertexLoader(f VertexFormat) (*VertexLoader, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	l := &VertexLoader{
		Format:  f,
		posSize: f.posComps() * compSizes[f.PosFmt],
	}
	if f.Color != AttrNone {
		l.colorSize = colorSizes[f.ColorFmt]
	}
	if f.Tex != AttrNone {
		l.texSize = f.texComps() * compSizes[f.TexFmt]
	}
	l.Stride = attrSize(f.Pos, l.posSize) + attrSize(f.Color, l.colorSize) + attrSize(f.Tex, l.texSize)
	return l, nil
}

// Decode converts count vertices from src. arrays is consulted for indexed
// attributes and may be nil when none are used.
func (l *VertexLoader) Decode(src []byte, count int, arrays ArrayReader) ([]Vertex, error) {
	if len(src) < count*l.Stride {
		return nil, fmt.Errorf("%w: %d bytes for %d vertices of stride %d", ErrVertexFormat, len(src), count, l.Stride)
	}
	f := l.Format
	out := make([]Vertex, count)
	for i := range out {
		v := &out[i]
		v.Color = 0xFFFFFFFF
		p := src[i*l.Stride : (i+1)*l.Stride]

		raw, n, err := l.fetch(p, f.Pos, ArrayPosition, l.posSize, arrays)
		if err != nil {
			return nil, err
		}
		p = p[n:]
		for c := range f.posComps() {
			v.Pos[c] = readComp(raw[c*compSizes[f.PosFmt]:], f.PosFmt, f.PosFrac)
		}

		if f.Color != AttrNone {
			raw, n, err = l.fetch(p, f.Color, ArrayColor0, l.colorSize, arrays)
			if err != nil {
				return nil, err
			}
			p = p[n:]
			v.Color = readColor(raw, f.ColorFmt)
		}

		if f.Tex != AttrNone {
			raw, _, err = l.fetch(p, f.Tex, ArrayTex0, l.texSize, arrays)
			if err != nil {
				return nil, err
			}
			for c := range f.texComps() {
				v.UV[c] = readComp(raw[c*compSizes[f.TexFmt]:], f.TexFmt, f.TexFrac)
			}
		}
	}
	return out, nil
}

// fetch returns the direct bytes of an attribute and how many stream bytes
// it used.
func (l *VertexLoader) fetch(p []byte, t AttrType, array, size int, arrays ArrayReader) ([]byte, int, error) {
	var idx uint32
	switch t {
	case AttrDirect:
		return p[:size], size, nil
	case AttrIndex8:
		idx = uint32(p[0])
	case AttrIndex16:
		idx = uint32(binary.BigEndian.Uint16(p))
	default:
		return nil, 0, nil
	}
	if arrays == nil {
		return nil, 0, fmt.Errorf("%w: indexed attribute without arrays", ErrVertexFormat)
	}
	raw, err := arrays(array, idx, size)
	if err != nil {
		return nil, 0, err
	}
	return raw, attrSize(t, size), nil
}

func readComp(p []byte, f CompFormat, frac uint8) float32 {
	scale := float32(1) / float32(uint32(1)<<frac)
	switch f {
	case CompU8:
		return float32(p[0]) * scale
	case CompS8:
		return float32(int8(p[0])) * scale
	case CompU16:
		return float32(binary.BigEndian.Uint16(p)) * scale
	case CompS16:
		return float32(int16(binary.BigEndian.Uint16(p))) * scale
	case CompF32:
		return math.Float32frombits(binary.BigEndian.Uint32(p))
	}
	return 0
}

func readColor(p []byte, f ColorFormat) uint32 {
	expand := func(v, bits uint32) uint32 { return v << (8 - bits) | v >> (2*bits - 8) }
	switch f {
	case ColorRGB565:
		v := uint32(binary.BigEndian.Uint16(p))
		return expand(v>>11&0x1F, 5)<<24 | expand(v>>5&0x3F, 6)<<16 | expand(v&0x1F, 5)<<8 | 0xFF
	case ColorRGB888, ColorRGB888x:
		return uint32(p[0])<<24 | uint32(p[1])<<16 | uint32(p[2])<<8 | 0xFF
	case ColorRGBA4444:
		v := uint32(binary.BigEndian.Uint16(p))
		return (v>>12&0xF)*0x11<<24 | (v>>8&0xF)*0x11<<16 | (v>>4&0xF)*0x11<<8 | (v&0xF)*0x11
	case ColorRGBA6666:
		v := uint32(p[0])<<16 | uint32(p[1])<<8 | uint32(p[2])
		return expand(v>>18&0x3F, 6)<<24 | expand(v>>12&0x3F, 6)<<16 | expand(v>>6&0x3F, 6)<<8 | expand(v&0x3F, 6)
	case ColorRGBA8888:
		return binary.BigEndian.Uint32(p)
	}
	return 0xFFFFFFFF
}

// cpRegs is the CP register state owned by the vertex loader manager.
type cpRegs struct {
	VCDLo, VCDHi uint32
	VAT          [numVATs][3]uint32
	ArrayBase    [numArrays]uint32
	ArrayStride  [numArrays]uint32
}

type loaderKey struct {
	vcdLo, vcdHi, vatA uint32
}

// VertexLoaderManager owns the CP vertex registers and a cache of loaders
// keyed by vertex format.
type VertexLoaderManager struct {
	ctx     *env.Context
	regs    cpRegs
	loaders *cache.Cache[loaderKey, *VertexLoader]
}

// NewVertexLoaderManager returns a manager with no cached loaders.
func NewVertexLoaderManager(ctx *env.Context) *VertexLoaderManager {
	return &VertexLoaderManager{ctx: ctx}
}

// Init clears the registers and creates the loader cache.
func (m *VertexLoaderManager) Init() error {
	m.regs = cpRegs{}
	m.loaders = cache.New[loaderKey, *VertexLoader](loaderCacheSize, nil)
	return nil
}

// Shutdown drops every cached loader.
func (m *VertexLoaderManager) Shutdown() error {
	if m.loaders != nil {
		m.loaders.Purge()
	}
	return nil
}

// LoadCPReg handles LOAD_CP_REG.
func (m *VertexLoaderManager) LoadCPReg(reg uint8, v uint32) {
	switch {
	case reg == CPVCDLo:
		m.regs.VCDLo = v
	case reg == CPVCDHi:
		m.regs.VCDHi = v
	case reg >= CPVATA && reg < CPVATA+numVATs:
		m.regs.VAT[reg-CPVATA][0] = v
	case reg >= CPVATB && reg < CPVATB+numVATs:
		m.regs.VAT[reg-CPVATB][1] = v
	case reg >= CPVATC && reg < CPVATC+numVATs:
		m.regs.VAT[reg-CPVATC][2] = v
	case reg >= CPArrayBase && reg < CPArrayBase+numArrays:
		m.regs.ArrayBase[reg-CPArrayBase] = v
	case reg >= CPArrayStride && reg < CPArrayStride+numArrays:
		m.regs.ArrayStride[reg-CPArrayStride] = v
	default:
		m.ctx.Logger.Debug("vertexloader: ignored CP register", "reg", reg, "value", v)
	}
}

// Loader returns the loader for the current VCD and the given VAT.
func (m *VertexLoaderManager) Loader(vat uint8) (*VertexLoader, error) {
	k := loaderKey{m.regs.VCDLo, m.regs.VCDHi, m.regs.VAT[vat&7][0]}
	return m.loaders.GetOrCreate(k, func() (*VertexLoader, error) {
		return NewVertexLoader(DecodeVertexFormat(k.vcdLo, k.vcdHi, k.vatA))
	})
}

// ReadArray reads element idx of array from emulated memory.
func (m *VertexLoaderManager) ReadArray(array int, idx uint32, size int) ([]byte, error) {
	addr := m.regs.ArrayBase[array] + idx*m.regs.ArrayStride[array]
	buf := make([]byte, size)
	if err := m.ctx.ReadMem(buf, addr); err != nil {
		return nil, err
	}
	return buf, nil
}

// InvalidateVertexCache handles INVALIDATE_VTX_CACHE. Arrays are read from
// memory on every draw, so there is nothing to drop.
func (m *VertexLoaderManager) InvalidateVertexCache() {}

// CachedLoaders returns the number of cached loaders.
func (m *VertexLoaderManager) CachedLoaders() int { return m.loaders.Len() }

// Save writes the CP registers.
func (m *VertexLoaderManager) Save(e *savestate.Encoder) {
	r := &m.regs
	savestate.PutUint(e, r.VCDLo)
	savestate.PutUint(e, r.VCDHi)
	for i := range r.VAT {
		savestate.PutUints(e, r.VAT[i][:])
	}
	savestate.PutUints(e, r.ArrayBase[:])
	savestate.PutUints(e, r.ArrayStride[:])
}

// Load stages the CP registers. The loader cache is derived and is purged
// on commit.
func (m *VertexLoaderManager) Load(d *savestate.Decoder) (func(), error) {
	var r cpRegs
	r.VCDLo = savestate.Uint[uint32](d)
	r.VCDHi = savestate.Uint[uint32](d)
	for i := range r.VAT {
		savestate.Uints(d, r.VAT[i][:])
	}
	savestate.Uints(d, r.ArrayBase[:])
	savestate.Uints(d, r.ArrayStride[:])
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return func() {
		m.regs = r
		m.loaders.Purge()
	}, nil
}
