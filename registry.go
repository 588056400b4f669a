// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/gogpu/gpuvideo/internal/savestate"
)

// SubsystemID identifies a registry entry. The value is also the section
// id in state blobs, so existing values must never change.
type SubsystemID uint8

const (
	SubRenderer SubsystemID = iota
	SubTextureCache
	SubVertexManager
	SubVSCache
	SubPSCache
	SubUtils
	SubBP
	SubFifo
	SubVertexLoader
	SubOpcodeDecoder
	SubVSManager
	SubPSManager
	SubCommandProcessor
	SubPixelEngine
	SubDLCache

	numSubsystems
)

var subsystemNames = [...]string{
	SubRenderer:         "Renderer",
	SubTextureCache:     "TextureCache",
	SubVertexManager:    "VertexManager",
	SubVSCache:          "VertexShaderCache",
	SubPSCache:          "PixelShaderCache",
	SubUtils:            "Utils",
	SubBP:               "BPMemory",
	SubFifo:             "Fifo",
	SubVertexLoader:     "VertexLoader",
	SubOpcodeDecoder:    "OpcodeDecoder",
	SubVSManager:        "VertexShaderManager",
	SubPSManager:        "PixelShaderManager",
	SubCommandProcessor: "CommandProcessor",
	SubPixelEngine:      "PixelEngine",
	SubDLCache:          "DLCache",
}

func (id SubsystemID) String() string {
	if id < numSubsystems {
		return subsystemNames[id]
	}
	return fmt.Sprintf("SubsystemID(%d)", uint8(id))
}

// Stateful is implemented by subsystems that take part in DoState. Load
// decodes into staging values and returns a commit func; it must not
// touch live state.
type Stateful interface {
	Save(e *savestate.Encoder)
	Load(d *savestate.Decoder) (commit func(), err error)
}

// subsystem is one registry entry.
type subsystem struct {
	ID       SubsystemID
	Rank     int
	Init     func() error
	Shutdown func() error
	// State is nil for subsystems excluded from state blobs.
	State Stateful

	up bool
}

// hookFunc observes registry actions before they run. A non-nil error
// from an "init" call fails that init.
type hookFunc func(op string, id SubsystemID) error

// registry brings subsystems up in ascending rank and down in strict
// reverse.
type registry struct {
	logger  *slog.Logger
	entries []subsystem
	hook    hookFunc
}

func newRegistry(logger *slog.Logger, entries []subsystem, hook hookFunc) *registry {
	slices.SortStableFunc(entries, func(a, b subsystem) int { return cmp.Compare(a.Rank, b.Rank) })
	return &registry{logger: logger, entries: entries, hook: hook}
}

// initAll runs every Init. On the first failure the entries already up are
// shut down in reverse and a *SubsystemError is returned.
func (r *registry) initAll() error {
	for i := range r.entries {
		s := &r.entries[i]
		if s.up {
			panic(fmt.Errorf("%w: %s initialized twice", ErrContract, s.ID))
		}
		err := r.call("init", s.ID, s.Init)
		if err != nil {
			r.logger.Error("gpuvideo: subsystem init failed, rolling back", "subsystem", s.ID, "err", err)
			r.shutdownAll()
			return &SubsystemError{ID: s.ID, Err: err}
		}
		s.up = true
		r.logger.Debug("gpuvideo: subsystem up", "subsystem", s.ID, "rank", s.Rank)
	}
	return nil
}

// shutdownAll runs Shutdown for every entry that is up, in reverse rank
// order. Failures are logged and teardown continues.
func (r *registry) shutdownAll() {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].up {
			r.shutdown(i)
		}
	}
}

func (r *registry) shutdown(i int) {
	s := &r.entries[i]
	if !s.up {
		panic(fmt.Errorf("%w: %s shut down without init", ErrContract, s.ID))
	}
	s.up = false
	if err := r.call("shutdown", s.ID, s.Shutdown); err != nil {
		r.logger.Warn("gpuvideo: subsystem shutdown failed", "subsystem", s.ID, "err", err)
	}
}

func (r *registry) call(op string, id SubsystemID, fn func() error) error {
	if r.hook != nil {
		if err := r.hook(op, id); err != nil {
			return err
		}
	}
	if fn == nil {
		return nil
	}
	return fn()
}

// stateful returns the entries that take part in DoState, in rank order.
func (r *registry) stateful() []*subsystem {
	var out []*subsystem
	for i := range r.entries {
		if r.entries[i].State != nil {
			out = append(out, &r.entries[i])
		}
	}
	return out
}
