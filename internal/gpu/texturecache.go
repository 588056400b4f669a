// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"hash/maphash"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuvideo/internal/cache"
	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/videocommon"
)

// ErrTextureSize is returned for zero-sized or oversized textures.
var ErrTextureSize = errors.New("gpu: invalid texture size")

const maxTextureDim = 1024

// TextureEntry is one cached texture. Textures are RGBA8 in emulated
// memory.
type TextureEntry struct {
	Addr          uint32
	Width, Height int

	// FromEFB marks entries produced by an EFB copy. Dirty EFB copies hold
	// pixels that have not reached emulated memory yet.
	FromEFB bool
	Dirty   bool

	hash   uint64
	pixels []byte
	tex    hal.Texture
	view   hal.TextureView
}

// Pixels returns the RGBA8 contents.
func (e *TextureEntry) Pixels() []byte { return e.pixels }

// TextureCache maps emulated memory addresses to GPU textures. Its entries
// alias emulated memory, so it must be invalidated around snapshots.
type TextureCache struct {
	ctx     *env.Context
	seed    maphash.Seed
	entries *cache.Cache[uint32, *TextureEntry]

	uploads    int
	writeBacks int

	// discard is set while entries are dropped on purpose; evictions
	// otherwise write dirty EFB copies back.
	discard bool
}

// NewTextureCache returns an empty cache.
func NewTextureCache(ctx *env.Context) *TextureCache {
	return &TextureCache{ctx: ctx, seed: maphash.MakeSeed()}
}

// Init creates the entry table, bounded by Settings.TextureCacheSize.
func (c *TextureCache) Init() error {
	if c.ctx.Device == nil {
		return ErrNoDevice
	}
	c.entries = cache.New[uint32, *TextureEntry](c.ctx.Config().Settings.TextureCacheSize, c.destroy)
	c.uploads, c.writeBacks = 0, 0
	return nil
}

// Shutdown drops every entry without writing anything back.
func (c *TextureCache) Shutdown() error {
	if c.entries != nil {
		c.drop()
	}
	return nil
}

func (c *TextureCache) drop() {
	c.discard = true
	defer func() { c.discard = false }()
	c.entries.Purge()
}

// destroy runs for every entry leaving the cache. An evicted dirty EFB copy
// is written to emulated memory first so it is not lost.
func (c *TextureCache) destroy(_ uint32, e *TextureEntry) {
	if e.Dirty && !c.discard {
		if err := c.writeBack(e); err != nil {
			c.ctx.Logger.Warn("gpu: evicted EFB copy lost", "err", err)
		}
	}
	d := c.ctx.Device
	if d == nil {
		return
	}
	if e.view != nil {
		d.Device.DestroyTextureView(e.view)
	}
	if e.tex != nil {
		d.Device.DestroyTexture(e.tex)
	}
}

// Load returns the texture described by img, uploading it when memory
// changed since the last load. Dirty EFB copies are returned as they are.
func (c *TextureCache) Load(img videocommon.TextureImage) (*TextureEntry, error) {
	if img.Width <= 0 || img.Height <= 0 || img.Width > maxTextureDim || img.Height > maxTextureDim {
		return nil, fmt.Errorf("%w: %dx%d", ErrTextureSize, img.Width, img.Height)
	}
	e, ok := c.entries.Get(img.Addr)
	if ok && e.Dirty && e.Width == img.Width && e.Height == img.Height {
		return e, nil
	}

	pixels := make([]byte, img.Width*img.Height*4)
	if err := c.ctx.ReadMem(pixels, img.Addr); err != nil {
		return nil, err
	}
	h := maphash.Bytes(c.seed, pixels)
	if ok && e.hash == h && e.Width == img.Width && e.Height == img.Height {
		return e, nil
	}

	e = &TextureEntry{Addr: img.Addr, Width: img.Width, Height: img.Height, hash: h, pixels: pixels}
	if err := c.upload(e); err != nil {
		return nil, err
	}
	c.entries.Put(img.Addr, e)
	return e, nil
}

// CopyFromEFB stores an EFB copy of w×h RGBA8 pixels destined for addr.
// The entry stays dirty until Invalidate writes it back.
func (c *TextureCache) CopyFromEFB(addr uint32, w, h int, pixels []byte) (*TextureEntry, error) {
	if w <= 0 || h <= 0 || len(pixels) != w*h*4 {
		return nil, fmt.Errorf("%w: EFB copy %dx%d with %d bytes", ErrTextureSize, w, h, len(pixels))
	}
	e := &TextureEntry{
		Addr: addr, Width: w, Height: h,
		FromEFB: true, Dirty: true,
		hash:   maphash.Bytes(c.seed, pixels),
		pixels: pixels,
	}
	if err := c.upload(e); err != nil {
		return nil, err
	}
	c.entries.Put(addr, e)
	return e, nil
}

func (c *TextureCache) upload(e *TextureEntry) error {
	d := c.ctx.Device
	size := hal.Extent3D{Width: uint32(e.Width), Height: uint32(e.Height), DepthOrArrayLayers: 1} //nolint:gosec // <= maxTextureDim
	tex, err := d.Device.CreateTexture(&hal.TextureDescriptor{
		Label:         fmt.Sprintf("texcache_%08x", e.Addr),
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create texture: %w", err)
	}
	view, err := d.Device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: fmt.Sprintf("texcache_%08x_view", e.Addr),
	})
	if err != nil {
		d.Device.DestroyTexture(tex)
		return fmt.Errorf("gpu: create texture view: %w", err)
	}
	err = d.Queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: tex},
		e.pixels,
		&hal.ImageDataLayout{BytesPerRow: uint32(e.Width * 4), RowsPerImage: uint32(e.Height)}, //nolint:gosec // <= maxTextureDim
		&size,
	)
	if err != nil {
		d.Device.DestroyTextureView(view)
		d.Device.DestroyTexture(tex)
		return fmt.Errorf("gpu: upload texture: %w", err)
	}
	e.tex, e.view = tex, view
	c.uploads++
	return nil
}

// Invalidate drops every entry. With writeBack set, dirty EFB copies are
// first written to emulated memory; the first write error stops the
// invalidation with every entry still cached.
func (c *TextureCache) Invalidate(writeBack bool) error {
	if writeBack {
		var err error
		c.entries.Range(func(_ uint32, e *TextureEntry) bool {
			if !e.Dirty {
				return true
			}
			err = c.writeBack(e)
			return err == nil
		})
		if err != nil {
			return err
		}
	}
	c.drop()
	return nil
}

func (c *TextureCache) writeBack(e *TextureEntry) error {
	if err := c.ctx.WriteMem(e.pixels, e.Addr); err != nil {
		return fmt.Errorf("gpu: write back EFB copy at %#x: %w", e.Addr, err)
	}
	e.Dirty = false
	c.writeBacks++
	return nil
}

// Len returns the number of cached textures.
func (c *TextureCache) Len() int { return c.entries.Len() }

// Uploads returns how many textures were uploaded since Init.
func (c *TextureCache) Uploads() int { return c.uploads }

// WriteBacks returns how many EFB copies were written to memory since Init.
func (c *TextureCache) WriteBacks() int { return c.writeBacks }
