// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/opcode"
	"github.com/gogpu/gpuvideo/internal/videocommon"
)

// VertexStride is the size of one vertex in the GPU vertex buffer:
// position (3×f32), color (RGBA8) and texcoord (2×f32).
const VertexStride = 24

const (
	initialBufferSize = 64 << 10
	// maxBatchVertices keeps indices within uint16.
	maxBatchVertices = math.MaxUint16
)

// Topology is the GPU primitive class a draw expands to.
type Topology uint8

const (
	TopologyTriangles Topology = iota
	TopologyLines
	TopologyPoints
)

func (t Topology) String() string {
	switch t {
	case TopologyTriangles:
		return "triangles"
	case TopologyLines:
		return "lines"
	case TopologyPoints:
		return "points"
	}
	return fmt.Sprintf("Topology(%d)", uint8(t))
}

// Batch is a run of indices with one topology and shader pair.
type Batch struct {
	Topology   Topology
	FirstIndex int
	IndexCount int
	VS         videocommon.VSUid
	PS         videocommon.PSUid
}

// FrameStats counts the work of one frame.
type FrameStats struct {
	Draws    int
	Vertices int
	Indices  int
	Batches  int
	Flushes  int
}

// VertexManager stages decoded vertices, expands primitives to indexed
// triangles, lines or points, and uploads them to GPU buffers on Flush.
type VertexManager struct {
	ctx *env.Context

	vbuf, ibuf hal.Buffer
	vcap, icap uint64

	verts   []videocommon.Vertex
	indices []uint16
	batches []Batch

	// Last flushed batches, kept for inspection until the next flush.
	flushed []Batch
	frame   FrameStats
}

// NewVertexManager returns a manager with no GPU buffers.
func NewVertexManager(ctx *env.Context) *VertexManager {
	return &VertexManager{ctx: ctx}
}

// Init creates the vertex and index buffers.
func (m *VertexManager) Init() error {
	if m.ctx.Device == nil {
		return ErrNoDevice
	}
	m.reset()
	m.frame = FrameStats{}
	if err := m.ensure(&m.vbuf, &m.vcap, initialBufferSize, gputypes.BufferUsageVertex, "vertex_buffer"); err != nil {
		return err
	}
	return m.ensure(&m.ibuf, &m.icap, initialBufferSize, gputypes.BufferUsageIndex, "index_buffer")
}

// Shutdown destroys the buffers.
func (m *VertexManager) Shutdown() error {
	if d := m.ctx.Device; d != nil {
		if m.vbuf != nil {
			d.Device.DestroyBuffer(m.vbuf)
		}
		if m.ibuf != nil {
			d.Device.DestroyBuffer(m.ibuf)
		}
	}
	m.vbuf, m.ibuf = nil, nil
	m.vcap, m.icap = 0, 0
	m.reset()
	return nil
}

func (m *VertexManager) reset() {
	m.verts = m.verts[:0]
	m.indices = m.indices[:0]
	m.batches = m.batches[:0]
}

// ensure grows *buf to at least size bytes, rounding up to a power of two.
func (m *VertexManager) ensure(buf *hal.Buffer, capacity *uint64, size uint64, usage gputypes.BufferUsage, label string) error {
	if *buf != nil && *capacity >= size {
		return nil
	}
	n := uint64(initialBufferSize)
	for n < size {
		n <<= 1
	}
	d := m.ctx.Device.Device
	b, err := d.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  n,
		Usage: usage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create %s (%d bytes): %w", label, n, err)
	}
	if *buf != nil {
		d.DestroyBuffer(*buf)
	}
	*buf, *capacity = b, n
	return nil
}

// Add stages a draw call.
func (m *VertexManager) Add(dc videocommon.DrawCall) error {
	if len(m.verts)+len(dc.Vertices) > maxBatchVertices {
		if err := m.Flush(); err != nil {
			return err
		}
	}
	topo, idx := expand(dc.Prim, len(dc.Vertices))
	m.frame.Draws++
	if len(idx) == 0 {
		return nil
	}

	base := uint16(len(m.verts)) //nolint:gosec // bounded by maxBatchVertices
	m.verts = append(m.verts, dc.Vertices...)
	first := len(m.indices)
	for _, i := range idx {
		m.indices = append(m.indices, base+i)
	}

	if n := len(m.batches); n > 0 {
		if b := &m.batches[n-1]; b.Topology == topo && b.VS == dc.VS && b.PS == dc.PS {
			b.IndexCount += len(idx)
			return nil
		}
	}
	m.batches = append(m.batches, Batch{
		Topology:   topo,
		FirstIndex: first,
		IndexCount: len(idx),
		VS:         dc.VS,
		PS:         dc.PS,
	})
	return nil
}

// expand returns the index list for n vertices of prim, relative to the
// first vertex. Incomplete trailing primitives are dropped.
func expand(prim opcode.Primitive, n int) (Topology, []uint16) {
	var idx []uint16
	add := func(v ...int) {
		for _, i := range v {
			idx = append(idx, uint16(i)) //nolint:gosec // n <= maxBatchVertices
		}
	}
	switch prim {
	case opcode.PrimTriangles:
		for i := 0; i+2 < n; i += 3 {
			add(i, i+1, i+2)
		}
	case opcode.PrimTriangleStrip:
		for i := 2; i < n; i++ {
			if i%2 == 0 {
				add(i-2, i-1, i)
			} else {
				add(i-1, i-2, i)
			}
		}
	case opcode.PrimTriangleFan:
		for i := 2; i < n; i++ {
			add(0, i-1, i)
		}
	case opcode.PrimQuads, opcode.PrimQuads2:
		for i := 0; i+3 < n; i += 4 {
			add(i, i+1, i+2, i, i+2, i+3)
		}
	case opcode.PrimLines:
		for i := 0; i+1 < n; i += 2 {
			add(i, i+1)
		}
		return TopologyLines, idx
	case opcode.PrimLineStrip:
		for i := 1; i < n; i++ {
			add(i-1, i)
		}
		return TopologyLines, idx
	case opcode.PrimPoints:
		for i := range n {
			add(i)
		}
		return TopologyPoints, idx
	}
	return TopologyTriangles, idx
}

// Flush uploads the staged vertices and indices.
func (m *VertexManager) Flush() error {
	if len(m.indices) == 0 {
		m.reset()
		return nil
	}
	vdata := encodeVertices(m.verts)
	idata := make([]byte, 0, (len(m.indices)*2+3)&^3)
	for _, i := range m.indices {
		idata = binary.LittleEndian.AppendUint16(idata, i)
	}
	if len(idata)%4 != 0 {
		idata = append(idata, 0, 0)
	}

	if err := m.ensure(&m.vbuf, &m.vcap, uint64(len(vdata)), gputypes.BufferUsageVertex, "vertex_buffer"); err != nil {
		return err
	}
	if err := m.ensure(&m.ibuf, &m.icap, uint64(len(idata)), gputypes.BufferUsageIndex, "index_buffer"); err != nil {
		return err
	}
	q := m.ctx.Device.Queue
	if err := q.WriteBuffer(m.vbuf, 0, vdata); err != nil {
		return fmt.Errorf("gpu: upload vertices: %w", err)
	}
	if err := q.WriteBuffer(m.ibuf, 0, idata); err != nil {
		return fmt.Errorf("gpu: upload indices: %w", err)
	}

	m.frame.Vertices += len(m.verts)
	m.frame.Indices += len(m.indices)
	m.frame.Batches += len(m.batches)
	m.frame.Flushes++
	m.flushed = append(m.flushed[:0], m.batches...)
	m.reset()
	return nil
}

// Pending returns the number of staged vertices.
func (m *VertexManager) Pending() int { return len(m.verts) }

// Flushed returns the batches of the last flush.
func (m *VertexManager) Flushed() []Batch { return m.flushed }

// EndFrame returns the statistics of the frame and starts a new one.
func (m *VertexManager) EndFrame() FrameStats {
	s := m.frame
	m.frame = FrameStats{}
	return s
}

func encodeVertices(vs []videocommon.Vertex) []byte {
	b := make([]byte, 0, len(vs)*VertexStride)
	for _, v := range vs {
		for _, f := range v.Pos {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
		b = binary.BigEndian.AppendUint32(b, v.Color) // R G B A in memory order
		for _, f := range v.UV {
			b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
		}
	}
	return b
}
