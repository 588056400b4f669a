// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"sync"

	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/savestate"
)

// Command processor MMIO offsets.
const (
	CPStatus      = 0x00
	CPCtrl        = 0x02
	CPClear       = 0x04
	CPToken       = 0x0E
	CPFifoBaseLo  = 0x20
	CPFifoBaseHi  = 0x22
	CPFifoEndLo   = 0x24
	CPFifoEndHi   = 0x26
	CPFifoWriteLo = 0x34
	CPFifoWriteHi = 0x36
	CPFifoReadLo  = 0x38
	CPFifoReadHi  = 0x3A
	CPFifoBPLo    = 0x3C
	CPFifoBPHi    = 0x3E
)

// CPStatus bits.
const (
	cpOverflow   = 1 << 0
	cpUnderflow  = 1 << 1
	cpReadIdle   = 1 << 2
	cpCmdIdle    = 1 << 3
	cpBreakpoint = 1 << 4
)

// CPCtrl bits.
const (
	cpBPEnable    = 1 << 1
	cpBPIntEnable = 1 << 5
)

// cpState is the register file, kept separate so Load can stage it.
type cpState struct {
	Status, Ctrl, Token uint16
	Base, End           uint32
	Write, Read, BP     uint32
}

// CommandProcessor is the CP MMIO block. It tracks the read and write
// pointers of the host's FIFO region and raises the breakpoint interrupt
// when the read pointer reaches the breakpoint.
type CommandProcessor struct {
	ctx *env.Context

	mu sync.Mutex
	s  cpState
}

// NewCommandProcessor returns an idle command processor.
func NewCommandProcessor(ctx *env.Context) *CommandProcessor {
	return &CommandProcessor{ctx: ctx}
}

// Init resets the registers to idle.
func (cp *CommandProcessor) Init() error {
	cp.mu.Lock()
	cp.s = cpState{Status: cpReadIdle | cpCmdIdle}
	cp.mu.Unlock()
	return nil
}

// Shutdown deasserts the CP interrupt.
func (cp *CommandProcessor) Shutdown() error {
	cp.ctx.Raise(env.IntCP, false)
	return nil
}

// Read16 handles a host MMIO read.
func (cp *CommandProcessor) Read16(off uint32) uint16 {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	s := &cp.s
	switch off {
	case CPStatus:
		return s.Status
	case CPCtrl:
		return s.Ctrl
	case CPToken:
		return s.Token
	case CPFifoBaseLo:
		return uint16(s.Base)
	case CPFifoBaseHi:
		return uint16(s.Base >> 16)
	case CPFifoEndLo:
		return uint16(s.End)
	case CPFifoEndHi:
		return uint16(s.End >> 16)
	case CPFifoWriteLo:
		return uint16(s.Write)
	case CPFifoWriteHi:
		return uint16(s.Write >> 16)
	case CPFifoReadLo:
		return uint16(s.Read)
	case CPFifoReadHi:
		return uint16(s.Read >> 16)
	case CPFifoBPLo:
		return uint16(s.BP)
	case CPFifoBPHi:
		return uint16(s.BP >> 16)
	}
	return 0
}

// Write16 handles a host MMIO write.
func (cp *CommandProcessor) Write16(off uint32, v uint16) {
	cp.mu.Lock()
	s := &cp.s
	switch off {
	case CPCtrl:
		s.Ctrl = v
		if v&cpBPEnable == 0 {
			s.Status &^= cpBreakpoint
		}
	case CPClear:
		if v&1 != 0 {
			s.Status &^= cpOverflow
		}
		if v&2 != 0 {
			s.Status &^= cpUnderflow
		}
	case CPToken:
		s.Token = v
	case CPFifoBaseLo:
		s.Base = setLo(s.Base, v)
	case CPFifoBaseHi:
		s.Base = setHi(s.Base, v)
	case CPFifoEndLo:
		s.End = setLo(s.End, v)
	case CPFifoEndHi:
		s.End = setHi(s.End, v)
	case CPFifoWriteLo:
		s.Write = setLo(s.Write, v)
	case CPFifoWriteHi:
		s.Write = setHi(s.Write, v)
	case CPFifoReadLo:
		s.Read = setLo(s.Read, v)
	case CPFifoReadHi:
		s.Read = setHi(s.Read, v)
	case CPFifoBPLo:
		s.BP = setLo(s.BP, v)
	case CPFifoBPHi:
		s.BP = setHi(s.BP, v)
	}
	raise := s.Status&cpBreakpoint != 0 && s.Ctrl&cpBPIntEnable != 0
	cp.mu.Unlock()

	cp.ctx.Raise(env.IntCP, raise)
}

// Gathered advances the write pointer by n bytes of queued commands.
func (cp *CommandProcessor) Gathered(n int) {
	cp.mu.Lock()
	s := &cp.s
	s.Write = cp.advance(s.Write, n)
	s.Status &^= cpReadIdle | cpCmdIdle
	cp.mu.Unlock()
}

// Consumed advances the read pointer by n bytes of executed commands and
// checks the breakpoint. It reports whether the breakpoint was hit.
func (cp *CommandProcessor) Consumed(n int) bool {
	cp.mu.Lock()
	s := &cp.s
	prev := s.Read
	s.Read = cp.advance(s.Read, n)
	if s.Read == s.Write {
		s.Status |= cpReadIdle | cpCmdIdle
	}
	hit := false
	if s.Ctrl&cpBPEnable != 0 && s.Status&cpBreakpoint == 0 && crossed(prev, s.Read, s.BP) {
		s.Status |= cpBreakpoint
		hit = true
	}
	raise := s.Status&cpBreakpoint != 0 && s.Ctrl&cpBPIntEnable != 0
	bp := s.BP
	cp.mu.Unlock()

	if hit {
		cp.ctx.Logger.Debug("cp: FIFO breakpoint", "addr", bp)
		cp.ctx.Raise(env.IntCP, raise)
	}
	return hit
}

// advance moves p by n bytes, wrapping inside [Base, End] when the region
// is configured. Caller must hold cp.mu.
func (cp *CommandProcessor) advance(p uint32, n int) uint32 {
	p += uint32(n) //nolint:gosec // packet sizes are far below 4 GiB
	if s := &cp.s; s.End > s.Base && p > s.End {
		p = s.Base + (p-s.Base)%(s.End-s.Base)
	}
	return p
}

func crossed(from, to, bp uint32) bool {
	if from <= to {
		return bp > from && bp <= to
	}
	return bp > from || bp <= to
}

func setLo(r uint32, v uint16) uint32 { return r&0xFFFF0000 | uint32(v) }
func setHi(r uint32, v uint16) uint32 { return r&0x0000FFFF | uint32(v)<<16 }

// Save writes the register file.
func (cp *CommandProcessor) Save(e *savestate.Encoder) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	s := cp.s
	savestate.PutUints(e, []uint16{s.Status, s.Ctrl, s.Token})
	savestate.PutUints(e, []uint32{s.Base, s.End, s.Write, s.Read, s.BP})
}

// Load stages the register file from d.
func (cp *CommandProcessor) Load(d *savestate.Decoder) (func(), error) {
	var h [3]uint16
	var w [5]uint32
	savestate.Uints(d, h[:])
	savestate.Uints(d, w[:])
	if err := d.Finish(); err != nil {
		return nil, err
	}
	s := cpState{
		Status: h[0], Ctrl: h[1], Token: h[2],
		Base: w[0], End: w[1], Write: w[2], Read: w[3], BP: w[4],
	}
	return func() {
		cp.mu.Lock()
		cp.s = s
		cp.mu.Unlock()
	}, nil
}
