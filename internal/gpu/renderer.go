// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/gpuvideo/backend"
	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/osd"
	"github.com/gogpu/gpuvideo/internal/videocommon"
)

// Native EFB size in pixels.
const (
	EFBWidth  = 640
	EFBHeight = 528
)

// ErrEFBAccess is returned for EFB peeks and pokes outside the EFB.
var ErrEFBAccess = errors.New("gpu: EFB access out of range")

// EFBAccess selects an EFB peek or poke.
type EFBAccess uint8

const (
	PeekColor EFBAccess = iota
	PokeColor
	PeekZ
	PokeZ
)

func (a EFBAccess) String() string {
	switch a {
	case PeekColor:
		return "PeekColor"
	case PokeColor:
		return "PokeColor"
	case PeekZ:
		return "PeekZ"
	case PokeZ:
		return "PokeZ"
	}
	return fmt.Sprintf("EFBAccess(%d)", uint8(a))
}

// Presenter displays finished frames.
type Presenter interface {
	Present(frame image.Image, overlay []osd.Line) error
}

// RendererDeps are the components the renderer drives.
type RendererDeps struct {
	Vertices  *VertexManager
	Textures  *TextureCache
	VSCache   *ShaderCache[videocommon.VSUid]
	PSCache   *ShaderCache[videocommon.PSUid]
	Utils     *Utils
	OSD       *osd.OSD
	Presenter Presenter
	// Status receives the per-second statistics line. May be nil.
	Status func(text string)
}

// Renderer owns the GPU device and the EFB. It receives draws and EFB
// copies from the opcode decoder and presents frames on swap.
type Renderer struct {
	ctx  *env.Context
	deps RendererDeps

	printer    *message.Printer
	ownsDevice bool

	efbTex  hal.Texture
	efbView hal.TextureView
	scale   int

	// CPU copy of the EFB at native resolution; peeks and pokes use it.
	efb   *image.RGBA
	depth []uint32

	frames    uint64
	fpsFrames int
	fpsStart  time.Time
	fps       float64
	last      FrameStats
}

// NewRenderer returns a renderer that opens its device on Init.
func NewRenderer(ctx *env.Context, deps RendererDeps) *Renderer {
	return &Renderer{ctx: ctx, deps: deps, printer: message.NewPrinter(language.English)}
}

// Init opens the device unless the host provided one, then creates the EFB.
func (r *Renderer) Init() error {
	if r.ctx.Device == nil {
		cfg := r.ctx.Config()
		dev, err := backend.Open(cfg.Hardware.Backend, cfg.Hardware.Adapter)
		if err != nil {
			return err
		}
		r.ctx.Device = dev
		r.ownsDevice = true
		r.ctx.Logger.Info("gpu: device opened", "api", dev.API, "adapter", dev.Adapter.String())
	}
	if err := r.createEFB(r.ctx.Config().Settings.EFBScale); err != nil {
		r.closeDevice()
		return err
	}
	r.efb = image.NewRGBA(image.Rect(0, 0, EFBWidth, EFBHeight))
	r.depth = make([]uint32, EFBWidth*EFBHeight)
	r.frames, r.fpsFrames, r.fps = 0, 0, 0
	r.fpsStart = time.Now()
	r.last = FrameStats{}
	return nil
}

// Shutdown destroys the EFB and closes the device if the renderer opened it.
func (r *Renderer) Shutdown() error {
	r.destroyEFB()
	r.closeDevice()
	return nil
}

func (r *Renderer) closeDevice() {
	if !r.ownsDevice || r.ctx.Device == nil {
		return
	}
	r.ctx.Device.Close()
	r.ctx.Device = nil
	r.ownsDevice = false
}

func (r *Renderer) createEFB(scale int) error {
	d := r.ctx.Device.Device
	tex, err := d.CreateTexture(&hal.TextureDescriptor{
		Label:         "efb_color",
		Size:          hal.Extent3D{Width: uint32(EFBWidth * scale), Height: uint32(EFBHeight * scale), DepthOrArrayLayers: 1}, //nolint:gosec // scale is validated by config
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create EFB: %w", err)
	}
	view, err := d.CreateTextureView(tex, &hal.TextureViewDescriptor{Label: "efb_color_view"})
	if err != nil {
		d.DestroyTexture(tex)
		return fmt.Errorf("gpu: create EFB view: %w", err)
	}
	r.efbTex, r.efbView, r.scale = tex, view, scale
	return nil
}

func (r *Renderer) destroyEFB() {
	if r.ctx.Device == nil {
		return
	}
	d := r.ctx.Device.Device
	if r.efbView != nil {
		d.DestroyTextureView(r.efbView)
	}
	if r.efbTex != nil {
		d.DestroyTexture(r.efbTex)
	}
	r.efbTex, r.efbView = nil, nil
}

// Draw implements videocommon.Sink.
func (r *Renderer) Draw(dc videocommon.DrawCall) error {
	if dc.Textured {
		if _, err := r.deps.Textures.Load(dc.Texture); err != nil {
			return err
		}
	}
	if _, err := r.deps.VSCache.Get(dc.VS); err != nil {
		return err
	}
	if _, err := r.deps.PSCache.Get(dc.PS); err != nil {
		return err
	}
	return r.deps.Vertices.Add(dc)
}

// CopyEFB implements videocommon.Sink. XFB copies present a frame, or
// with Settings.UseXFB land in emulated memory for SwapXFB; other copies
// become EFB-copy textures.
func (r *Renderer) CopyEFB(c videocommon.EFBCopy) error {
	if err := r.deps.Vertices.Flush(); err != nil {
		return err
	}
	rect := image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height).Intersect(r.efb.Bounds())
	if rect.Empty() {
		return nil
	}

	var err error
	switch {
	case c.ToXFB && r.ctx.Config().Settings.UseXFB:
		err = r.ctx.WriteMem(r.efbPixels(rect), c.DstAddr)
	case c.ToXFB:
		err = r.Swap(r.efb.SubImage(rect))
	case r.ctx.Config().Hacks.EFBCopyEnable:
		_, err = r.deps.Textures.CopyFromEFB(c.DstAddr, rect.Dx(), rect.Dy(), r.efbPixels(rect))
	}
	if err != nil {
		return err
	}
	if c.Clear {
		return r.clear(rect, c.ClearColor, c.ClearZ)
	}
	return nil
}

func (r *Renderer) efbPixels(rect image.Rectangle) []byte {
	out := make([]byte, 0, rect.Dx()*rect.Dy()*4)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		i := r.efb.PixOffset(rect.Min.X, y)
		out = append(out, r.efb.Pix[i:i+rect.Dx()*4]...)
	}
	return out
}

func (r *Renderer) clear(rect image.Rectangle, argb, z uint32) error {
	c := argbToRGBA(argb)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r.efb.SetRGBA(x, y, c)
			r.depth[y*EFBWidth+x] = z & 0xFFFFFF
		}
	}
	return r.deps.Utils.SetClear(argb, z)
}

// SwapXFB presents a w×h RGBA8 frame buffer stored at addr in emulated
// memory.
func (r *Renderer) SwapXFB(addr uint32, w, h int) error {
	if w <= 0 || h <= 0 || w > EFBWidth || h > EFBHeight {
		return fmt.Errorf("%w: XFB %dx%d", ErrEFBAccess, w, h)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := r.ctx.ReadMem(img.Pix, addr); err != nil {
		return err
	}
	return r.Swap(img)
}

// Swap flushes pending geometry, uploads the EFB and presents frame.
// It is the frame boundary: OSD messages expire and a pending
// configuration becomes active here.
func (r *Renderer) Swap(frame image.Image) error {
	if err := r.deps.Vertices.Flush(); err != nil {
		return err
	}
	r.last = r.deps.Vertices.EndFrame()

	native := hal.Extent3D{Width: EFBWidth, Height: EFBHeight, DepthOrArrayLayers: 1}
	err := r.ctx.Device.Queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: r.efbTex},
		r.efb.Pix,
		&hal.ImageDataLayout{BytesPerRow: uint32(r.efb.Stride), RowsPerImage: EFBHeight}, //nolint:gosec // fixed EFB stride
		&native,
	)
	if err != nil {
		return fmt.Errorf("gpu: upload EFB: %w", err)
	}

	now := time.Now()
	if r.deps.OSD != nil {
		r.deps.OSD.Expire(now)
	}
	if r.deps.Presenter != nil {
		var overlay []osd.Line
		if r.deps.OSD != nil {
			overlay = r.deps.OSD.Layout(8, 8)
		}
		if err := r.deps.Presenter.Present(frame, overlay); err != nil {
			return fmt.Errorf("gpu: present: %w", err)
		}
	}

	r.frames++
	r.fpsFrames++
	if elapsed := now.Sub(r.fpsStart); elapsed >= time.Second {
		r.fps = float64(r.fpsFrames) / elapsed.Seconds()
		r.fpsFrames, r.fpsStart = 0, now
		if r.deps.Status != nil && r.ctx.Config().Settings.ShowFPS {
			r.deps.Status(r.printer.Sprintf("FPS: %.0f | Frames: %d | Draws: %d", r.fps, r.frames, r.last.Draws))
		}
	}

	if r.ctx.UpdateActiveConfig() {
		if scale := r.ctx.Config().Settings.EFBScale; scale != r.scale {
			r.destroyEFB()
			if err := r.createEFB(scale); err != nil {
				return err
			}
			r.ctx.Logger.Info("gpu: EFB scale changed", "scale", scale)
		}
	}
	return nil
}

// AccessEFB peeks or pokes one EFB pixel. Colors are ARGB8, depth is 24
// bits. With Hacks.EFBAccessEnable off, peeks return 0 and pokes are
// dropped.
func (r *Renderer) AccessEFB(kind EFBAccess, x, y int, value uint32) (uint32, error) {
	if !r.ctx.Config().Hacks.EFBAccessEnable {
		return 0, nil
	}
	if !image.Pt(x, y).In(r.efb.Bounds()) {
		return 0, fmt.Errorf("%w: %s at (%d, %d)", ErrEFBAccess, kind, x, y)
	}
	switch kind {
	case PeekColor:
		c := r.efb.RGBAAt(x, y)
		return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B), nil
	case PokeColor:
		r.efb.SetRGBA(x, y, argbToRGBA(value))
	case PeekZ:
		return r.depth[y*EFBWidth+x], nil
	case PokeZ:
		r.depth[y*EFBWidth+x] = value & 0xFFFFFF
	default:
		return 0, fmt.Errorf("%w: unknown access %s", ErrEFBAccess, kind)
	}
	return 0, nil
}

func argbToRGBA(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: uint8(v >> 24)}
}

// Frames returns the number of frames presented since Init.
func (r *Renderer) Frames() uint64 { return r.frames }

// ResetFrameCount restarts the frame counter.
func (r *Renderer) ResetFrameCount() {
	r.frames, r.fpsFrames = 0, 0
	r.fpsStart = time.Now()
}

// FPS returns the frame rate measured over the last full second.
func (r *Renderer) FPS() float64 { return r.fps }

// LastFrame returns the statistics of the last presented frame.
func (r *Renderer) LastFrame() FrameStats { return r.last }

// Scale returns the current EFB scale.
func (r *Renderer) Scale() int { return r.scale }

// Device returns the device in use.
func (r *Renderer) Device() *backend.Device { return r.ctx.Device }
