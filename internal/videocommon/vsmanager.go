// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"math"

	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/savestate"
)

// XF memory layout.
const (
	XFMemSize      = 0x1058
	XFPosMatrix    = 0x0000 // 3x4 position matrix 0
	XFViewport     = 0x101A // wd, ht, zRange, xOrig, yOrig, farZ
	XFProjection   = 0x1020 // six parameters then type
	XFProjType     = 0x1026
	xfViewportLen  = 6
	xfProjParamLen = 6
)

// VSUid identifies a generated vertex shader.
type VSUid struct {
	Perspective bool
	Color       bool
	Tex         bool
}

// VSConstants are the uniform values derived from XF memory.
type VSConstants struct {
	PosMatrix  [12]float32
	Projection [16]float32 // column-major
	Viewport   [6]float32
}

// VertexShaderManager owns XF memory and derives vertex shader constants
// and uids from it.
type VertexShaderManager struct {
	ctx *env.Context
	mem [XFMemSize]uint32

	// dirty range of XF memory, [dirtyLo, dirtyHi)
	dirtyLo, dirtyHi uint32
	constants        VSConstants
}

// NewVertexShaderManager returns a manager with zeroed XF memory.
func NewVertexShaderManager(ctx *env.Context) *VertexShaderManager {
	return &VertexShaderManager{ctx: ctx}
}

// Init clears XF memory and marks everything dirty.
func (m *VertexShaderManager) Init() error {
	m.mem = [XFMemSize]uint32{}
	m.markAllDirty()
	return nil
}

// Shutdown is a no-op.
func (m *VertexShaderManager) Shutdown() error { return nil }

func (m *VertexShaderManager) markAllDirty() {
	m.dirtyLo, m.dirtyHi = 0, XFMemSize
}

// LoadXF handles LOAD_XF_REG. Writes beyond XF memory are dropped.
func (m *VertexShaderManager) LoadXF(addr uint16, values []uint32) {
	start := uint32(addr)
	if start >= XFMemSize {
		m.ctx.Logger.Debug("vsmanager: XF write out of range", "addr", addr)
		return
	}
	end := min(start+uint32(len(values)), XFMemSize) //nolint:gosec // at most 16 values
	changed := false
	for i := start; i < end; i++ {
		if v := values[i-start]; m.mem[i] != v {
			m.mem[i] = v
			changed = true
		}
	}
	if !changed {
		return
	}
	if m.dirtyLo == m.dirtyHi {
		m.dirtyLo, m.dirtyHi = start, end
		return
	}
	m.dirtyLo = min(m.dirtyLo, start)
	m.dirtyHi = max(m.dirtyHi, end)
}

// XF returns one word of XF memory.
func (m *VertexShaderManager) XF(addr uint32) uint32 {
	if addr >= XFMemSize {
		return 0
	}
	return m.mem[addr]
}

// Dirty reports the pending dirty range.
func (m *VertexShaderManager) Dirty() (lo, hi uint32, ok bool) {
	return m.dirtyLo, m.dirtyHi, m.dirtyLo != m.dirtyHi
}

func (m *VertexShaderManager) float(addr uint32) float32 {
	return math.Float32frombits(m.mem[addr])
}

func overlaps(lo, hi, start, n uint32) bool {
	return lo < start+n && start < hi
}

// Constants returns the shader constants, recomputing the parts covered
// by the dirty range.
func (m *VertexShaderManager) Constants() VSConstants {
	lo, hi, ok := m.Dirty()
	if !ok {
		return m.constants
	}
	c := &m.constants
	if overlaps(lo, hi, XFPosMatrix, 12) {
		for i := range c.PosMatrix {
			c.PosMatrix[i] = m.float(XFPosMatrix + uint32(i)) //nolint:gosec // i < 12
		}
	}
	if overlaps(lo, hi, XFViewport, xfViewportLen) {
		for i := range c.Viewport {
			c.Viewport[i] = m.float(XFViewport + uint32(i)) //nolint:gosec // i < 6
		}
	}
	if overlaps(lo, hi, XFProjection, xfProjParamLen+1) {
		c.Projection = m.projection()
	}
	m.dirtyLo, m.dirtyHi = 0, 0
	return *c
}

// projection builds the matrix from the six XF parameters. Perspective
// uses p0 p1 p2 p3 for x and y, orthographic uses them for scale and
// offset; both use p4 p5 for z.
func (m *VertexShaderManager) projection() [16]float32 {
	var p [xfProjParamLen]float32
	for i := range p {
		p[i] = m.float(XFProjection + uint32(i)) //nolint:gosec // i < 6
	}
	var r [16]float32
	if m.perspective() {
		r[0], r[8] = p[0], p[1]
		r[5], r[9] = p[2], p[3]
		r[10], r[14] = p[4], p[5]
		r[11] = -1
		return r
	}
	r[0], r[12] = p[0], p[1]
	r[5], r[13] = p[2], p[3]
	r[10], r[14] = p[4], p[5]
	r[15] = 1
	return r
}

func (m *VertexShaderManager) perspective() bool {
	return m.mem[XFProjType] == 0
}

// Uid returns the vertex shader uid for a draw with format f.
func (m *VertexShaderManager) Uid(f VertexFormat) VSUid {
	return VSUid{
		Perspective: m.perspective(),
		Color:       f.Color != AttrNone,
		Tex:         f.Tex != AttrNone,
	}
}

// Save writes XF memory.
func (m *VertexShaderManager) Save(e *savestate.Encoder) {
	savestate.PutUints(e, m.mem[:])
}

// Load stages XF memory; constants are recomputed after commit.
func (m *VertexShaderManager) Load(d *savestate.Decoder) (func(), error) {
	mem := new([XFMemSize]uint32)
	savestate.Uints(d, mem[:])
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return func() {
		m.mem = *mem
		m.markAllDirty()
	}, nil
}
