// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"sync"

	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/savestate"
)

// Pixel engine MMIO offsets.
const (
	PEZConf     = 0x00
	PEAlphaConf = 0x02
	PEDstAlpha  = 0x04
	PEAlphaMode = 0x06
	PEAlphaRead = 0x08
	PECtrl      = 0x0A
	PEToken     = 0x0E

	peRegCount = 8
)

// PECtrl bits.
const (
	peTokenEnable  = 1 << 0
	peFinishEnable = 1 << 1
	peTokenStatus  = 1 << 2
	peFinishStatus = 1 << 3
)

// PixelEngine is the PE MMIO block. The host reads and writes it from its
// own thread while the consumer signals tokens and finishes, so every
// method locks.
type PixelEngine struct {
	ctx *env.Context

	mu    sync.Mutex
	regs  [peRegCount]uint16 // indexed by offset/2
	token uint16
}

// NewPixelEngine returns a pixel engine with cleared registers.
func NewPixelEngine(ctx *env.Context) *PixelEngine {
	return &PixelEngine{ctx: ctx}
}

// Init clears the registers.
func (pe *PixelEngine) Init() error {
	pe.mu.Lock()
	pe.regs = [peRegCount]uint16{}
	pe.token = 0
	pe.mu.Unlock()
	return nil
}

// Shutdown deasserts any pending interrupt.
func (pe *PixelEngine) Shutdown() error {
	pe.ctx.Raise(env.IntPEToken, false)
	pe.ctx.Raise(env.IntPEFinish, false)
	return nil
}

// Read16 handles a host MMIO read.
func (pe *PixelEngine) Read16(off uint32) uint16 {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	switch off {
	case PEToken:
		return pe.token
	default:
		if i := off / 2; i < peRegCount {
			return pe.regs[i]
		}
		return 0
	}
}

// Write16 handles a host MMIO write. Writing 1 to a status bit in PECtrl
// acknowledges that interrupt.
func (pe *PixelEngine) Write16(off uint32, v uint16) {
	pe.mu.Lock()
	if off == PECtrl {
		ctrl := pe.regs[PECtrl/2]
		ctrl &^= v & (peTokenStatus | peFinishStatus)
		ctrl = ctrl&^(peTokenEnable|peFinishEnable) | v&(peTokenEnable|peFinishEnable)
		pe.regs[PECtrl/2] = ctrl
	} else if i := off / 2; i < peRegCount && off != PEToken {
		pe.regs[i] = v
	}
	ctrl := pe.regs[PECtrl/2]
	pe.mu.Unlock()

	pe.updateInterrupts(ctrl)
}

// SetToken records a token written through BP. With interrupt set, the
// token interrupt is raised if enabled.
func (pe *PixelEngine) SetToken(token uint16, interrupt bool) {
	pe.mu.Lock()
	pe.token = token
	if interrupt {
		pe.regs[PECtrl/2] |= peTokenStatus
	}
	ctrl := pe.regs[PECtrl/2]
	pe.mu.Unlock()

	if interrupt {
		pe.updateInterrupts(ctrl)
	}
}

// SetFinish signals draw-done.
func (pe *PixelEngine) SetFinish() {
	pe.mu.Lock()
	pe.regs[PECtrl/2] |= peFinishStatus
	ctrl := pe.regs[PECtrl/2]
	pe.mu.Unlock()

	pe.updateInterrupts(ctrl)
}

// Token returns the last token.
func (pe *PixelEngine) Token() uint16 {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.token
}

func (pe *PixelEngine) updateInterrupts(ctrl uint16) {
	pe.ctx.Raise(env.IntPEToken, ctrl&peTokenStatus != 0 && ctrl&peTokenEnable != 0)
	pe.ctx.Raise(env.IntPEFinish, ctrl&peFinishStatus != 0 && ctrl&peFinishEnable != 0)
}

// Save writes the registers and token.
func (pe *PixelEngine) Save(e *savestate.Encoder) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	savestate.PutUints(e, pe.regs[:])
	savestate.PutUint(e, pe.token)
}

// Load stages the registers from d.
func (pe *PixelEngine) Load(d *savestate.Decoder) (func(), error) {
	var regs [peRegCount]uint16
	savestate.Uints(d, regs[:])
	token := savestate.Uint[uint16](d)
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return func() {
		pe.mu.Lock()
		pe.regs = regs
		pe.token = token
		pe.mu.Unlock()
	}, nil
}
