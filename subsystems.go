// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"bytes"
	"fmt"

	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/fifo"
	"github.com/gogpu/gpuvideo/internal/gpu"
	"github.com/gogpu/gpuvideo/internal/osd"
	"github.com/gogpu/gpuvideo/internal/savestate"
	"github.com/gogpu/gpuvideo/internal/videocommon"
)

// subsystems holds the objects Prepare builds for one run.
type subsystems struct {
	renderer *gpu.Renderer
	textures *gpu.TextureCache
	vertices *gpu.VertexManager
	vsCache  *gpu.ShaderCache[videocommon.VSUid]
	psCache  *gpu.ShaderCache[videocommon.PSUid]
	utils    *gpu.Utils

	bp      *videocommon.BPMemory
	queue   *commandQueue
	loader  *videocommon.VertexLoaderManager
	decoder *videocommon.OpcodeDecoder
	vs      *videocommon.VertexShaderManager
	ps      *videocommon.PixelShaderManager
	cp      *videocommon.CommandProcessor
	pe      *videocommon.PixelEngine
	dl      *videocommon.DLCache
}

func newSubsystems(ctx *env.Context, o *osd.OSD, presenter gpu.Presenter, status func(string)) *subsystems {
	s := &subsystems{
		textures: gpu.NewTextureCache(ctx),
		vertices: gpu.NewVertexManager(ctx),
		vsCache:  gpu.NewShaderCache(ctx, "vs", gpu.VertexShaderSource),
		psCache:  gpu.NewShaderCache(ctx, "ps", gpu.PixelShaderSource),
		utils:    gpu.NewUtils(ctx),

		bp:     videocommon.NewBPMemory(ctx),
		queue:  &commandQueue{ctx: ctx},
		loader: videocommon.NewVertexLoaderManager(ctx),
		vs:     videocommon.NewVertexShaderManager(ctx),
		cp:     videocommon.NewCommandProcessor(ctx),
		pe:     videocommon.NewPixelEngine(ctx),
		dl:     videocommon.NewDLCache(ctx),
	}
	s.ps = videocommon.NewPixelShaderManager(s.bp)
	s.renderer = gpu.NewRenderer(ctx, gpu.RendererDeps{
		Vertices:  s.vertices,
		Textures:  s.textures,
		VSCache:   s.vsCache,
		PSCache:   s.psCache,
		Utils:     s.utils,
		OSD:       o,
		Presenter: presenter,
		Status:    status,
	})
	s.decoder = videocommon.NewOpcodeDecoder(ctx, videocommon.DecoderDeps{
		BP:     s.bp,
		Loader: s.loader,
		VS:     s.vs,
		PS:     s.ps,
		CP:     s.cp,
		PE:     s.pe,
		DL:     s.dl,
		Sink:   s.renderer,
	})
	return s
}

// table returns the registry entries. The renderer and its caches come
// first since every later subsystem may touch GPU resources; shader caches
// are derived state and stay out of blobs.
func (s *subsystems) table() []subsystem {
	return []subsystem{
		{ID: SubRenderer, Rank: 0, Init: s.renderer.Init, Shutdown: s.renderer.Shutdown},
		{ID: SubTextureCache, Rank: 1, Init: s.textures.Init, Shutdown: s.textures.Shutdown},
		{ID: SubVertexManager, Rank: 2, Init: s.vertices.Init, Shutdown: s.vertices.Shutdown},
		{ID: SubVSCache, Rank: 3, Init: s.vsCache.Init, Shutdown: s.vsCache.Shutdown},
		{ID: SubPSCache, Rank: 4, Init: s.psCache.Init, Shutdown: s.psCache.Shutdown},
		{ID: SubUtils, Rank: 5, Init: s.utils.Init, Shutdown: s.utils.Shutdown},
		{ID: SubBP, Rank: 6, Init: s.bp.Init, Shutdown: s.bp.Shutdown, State: s.bp},
		{ID: SubFifo, Rank: 7, Init: s.queue.Init, Shutdown: s.queue.Shutdown, State: s.queue},
		{ID: SubVertexLoader, Rank: 8, Init: s.loader.Init, Shutdown: s.loader.Shutdown, State: s.loader},
		{ID: SubOpcodeDecoder, Rank: 9, Init: s.decoder.Init, Shutdown: s.decoder.Shutdown},
		{ID: SubVSManager, Rank: 10, Init: s.vs.Init, Shutdown: s.vs.Shutdown, State: s.vs},
		{ID: SubPSManager, Rank: 11, Init: s.ps.Init, Shutdown: s.ps.Shutdown},
		{ID: SubCommandProcessor, Rank: 12, Init: s.cp.Init, Shutdown: s.cp.Shutdown, State: s.cp},
		{ID: SubPixelEngine, Rank: 13, Init: s.pe.Init, Shutdown: s.pe.Shutdown, State: s.pe},
		{ID: SubDLCache, Rank: 14, Init: s.dl.Init, Shutdown: s.dl.Shutdown},
	}
}

// maxQueuedPackets bounds the packet count accepted from a blob.
const maxQueuedPackets = 1 << 16

// commandQueue is the Fifo registry entry. It owns the queue between Init
// and Shutdown and stores the queued packets in state blobs, since they
// belong to the consistent cut.
type commandQueue struct {
	ctx *env.Context
	q   *fifo.Queue
}

func (c *commandQueue) Init() error {
	c.q = fifo.New(c.ctx.Config().Settings.QueueDepth, c.ctx.Logger)
	return nil
}

// Shutdown stops the queue. Packets still queued are dropped with it.
func (c *commandQueue) Shutdown() error {
	if c.q != nil {
		c.q.Stop()
	}
	return nil
}

func (c *commandQueue) Save(e *savestate.Encoder) {
	pending := c.q.Pending()
	savestate.PutUint(e, uint32(len(pending))) //nolint:gosec // bounded by queue capacity
	for _, p := range pending {
		e.Blob(p)
	}
}

func (c *commandQueue) Load(d *savestate.Decoder) (func(), error) {
	n := savestate.Uint[uint32](d)
	if n > maxQueuedPackets {
		return nil, fmt.Errorf("%w: %d queued packets", savestate.ErrCorrupt, n)
	}
	packets := make([][]byte, 0, n)
	for range n {
		p := d.Blob()
		if d.Err() != nil {
			break
		}
		packets = append(packets, bytes.Clone(p))
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return func() { c.q.Replace(packets) }, nil
}
