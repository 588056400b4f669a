// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/savestate"
)

// BP register addresses.
const (
	BPGenMode       = 0x00
	BPPEFinish      = 0x45
	BPPEToken       = 0x47
	BPPETokenInt    = 0x48
	BPEFBSrcTL      = 0x49
	BPEFBSrcWH      = 0x4A
	BPEFBDstAddr    = 0x4B
	BPEFBDstStride  = 0x4D
	BPClearAR       = 0x4F
	BPClearGB       = 0x50
	BPClearZ        = 0x51
	BPTriggerCopy   = 0x52
	BPTexImage0     = 0x88
	BPTexImage3     = 0x94
	BPTevColorFirst = 0xE0
	BPTevColorLast  = 0xE7

	bpRegCount = 256
)

// Copy trigger bits.
const (
	copyClear = 1 << 11
	copyToXFB = 1 << 14
)

// EFBCopy describes one EFB copy requested through BPTriggerCopy.
type EFBCopy struct {
	X, Y          int
	Width, Height int
	DstAddr       uint32
	ToXFB         bool
	Clear         bool
	ClearColor    uint32 // ARGB8
	ClearZ        uint32
}

// TextureImage is the texture bound to stage 0.
type TextureImage struct {
	Addr          uint32
	Width, Height int
	Format        uint8
}

// BPMemory is the blitting processor register file.
type BPMemory struct {
	ctx  *env.Context
	regs [bpRegCount]uint32

	// tevDirty is set by writes that change pixel shader inputs and cleared
	// by the pixel shader manager.
	tevDirty bool
}

// NewBPMemory returns a zeroed register file.
func NewBPMemory(ctx *env.Context) *BPMemory {
	return &BPMemory{ctx: ctx}
}

// Init resets every register.
func (bp *BPMemory) Init() error {
	bp.regs = [bpRegCount]uint32{}
	bp.tevDirty = true
	return nil
}

// Shutdown is a no-op; BP memory owns no resources.
func (bp *BPMemory) Shutdown() error { return nil }

// Reg returns the value of register r.
func (bp *BPMemory) Reg(r uint8) uint32 { return bp.regs[r] }

// Write stores a 24-bit value.
func (bp *BPMemory) Write(r uint8, v uint32) {
	v &= 0xFFFFFF
	if bp.regs[r] != v && affectsPixelShader(r) {
		bp.tevDirty = true
	}
	bp.regs[r] = v
}

func affectsPixelShader(r uint8) bool {
	switch {
	case r == BPGenMode, r == BPTexImage0, r == BPTexImage3:
		return true
	case r >= BPTevColorFirst && r <= BPTevColorLast:
		return true
	}
	return false
}

// EFBCopy decodes the copy registers for a trigger value.
func (bp *BPMemory) EFBCopy(trigger uint32) EFBCopy {
	tl, wh := bp.regs[BPEFBSrcTL], bp.regs[BPEFBSrcWH]
	ar, gb := bp.regs[BPClearAR], bp.regs[BPClearGB]
	return EFBCopy{
		X:          int(tl & 0x3FF),
		Y:          int(tl >> 10 & 0x3FF),
		Width:      int(wh&0x3FF) + 1,
		Height:     int(wh>>10&0x3FF) + 1,
		DstAddr:    bp.regs[BPEFBDstAddr] << 5,
		ToXFB:      trigger&copyToXFB != 0,
		Clear:      trigger&copyClear != 0,
		ClearColor: (ar&0xFFFF)<<16 | gb&0xFFFF,
		ClearZ:     bp.regs[BPClearZ],
	}
}

// TextureImage decodes the stage 0 texture registers. ok is false when no
// texture address has been set.
func (bp *BPMemory) TextureImage() (img TextureImage, ok bool) {
	addr := bp.regs[BPTexImage3] << 5
	if addr == 0 {
		return TextureImage{}, false
	}
	v := bp.regs[BPTexImage0]
	return TextureImage{
		Addr:   addr,
		Width:  int(v&0x3FF) + 1,
		Height: int(v>>10&0x3FF) + 1,
		Format: uint8(v >> 20 & 0xF),
	}, true
}

// TakeTevDirty reports and clears the TEV dirty flag.
func (bp *BPMemory) TakeTevDirty() bool {
	d := bp.tevDirty
	bp.tevDirty = false
	return d
}

// Save writes every register.
func (bp *BPMemory) Save(e *savestate.Encoder) {
	savestate.PutUints(e, bp.regs[:])
}

// Load stages the registers from d.
func (bp *BPMemory) Load(d *savestate.Decoder) (func(), error) {
	var regs [bpRegCount]uint32
	savestate.Uints(d, regs[:])
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return func() {
		bp.regs = regs
		bp.tevDirty = true
	}, nil
}
