// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package env carries the per-instance services every subsystem is built
// with: logger, emulated memory, GPU device, interrupt line and the active
// configuration. One Context belongs to one backend instance; nothing in it
// is package-global.
package env

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpuvideo/backend"
	"github.com/gogpu/gpuvideo/config"
)

// ErrMemoryRange is returned for accesses outside emulated memory.
var ErrMemoryRange = errors.New("env: memory access out of range")

// Memory is the emulated system memory shared with the host.
type Memory interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// Interrupt lines raised towards the host CPU.
type Interrupt uint8

const (
	IntCP Interrupt = iota
	IntPEToken
	IntPEFinish
)

// InterruptFunc delivers an interrupt line change to the host.
type InterruptFunc func(line Interrupt, asserted bool)

// Context is the backend context handed to every component constructor.
type Context struct {
	Logger    *slog.Logger
	Memory    Memory
	Device    *backend.Device
	Interrupt InterruptFunc

	active  atomic.Pointer[config.Config]
	pending atomic.Pointer[config.Config]
}

// New returns a context with cfg active. A nil logger discards output and a
// nil cfg means config.Default.
func New(logger *slog.Logger, mem Memory, cfg *config.Config) *Context {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	c := &Context{Logger: logger, Memory: mem}
	c.active.Store(cfg)
	return c
}

// Config returns the active configuration. Callers must not modify it.
func (c *Context) Config() *config.Config { return c.active.Load() }

// SetConfig schedules cfg to become active at the next frame boundary.
func (c *Context) SetConfig(cfg *config.Config) { c.pending.Store(cfg) }

// UpdateActiveConfig activates a scheduled configuration. It reports whether
// the active configuration changed.
func (c *Context) UpdateActiveConfig() bool {
	cfg := c.pending.Swap(nil)
	if cfg == nil {
		return false
	}
	c.active.Store(cfg)
	c.Logger.Debug("env: configuration applied")
	return true
}

// Raise delivers an interrupt change if the host registered a handler.
func (c *Context) Raise(line Interrupt, asserted bool) {
	if c.Interrupt != nil {
		c.Interrupt(line, asserted)
	}
}

// ReadMem reads len(p) bytes at addr, failing on out-of-range accesses.
func (c *Context) ReadMem(p []byte, addr uint32) error {
	if c.Memory == nil {
		return fmt.Errorf("%w: no memory attached", ErrMemoryRange)
	}
	if _, err := c.Memory.ReadAt(p, int64(addr)); err != nil {
		return fmt.Errorf("%w: read %d bytes at %#x: %w", ErrMemoryRange, len(p), addr, err)
	}
	return nil
}

// WriteMem writes p at addr, failing on out-of-range accesses.
func (c *Context) WriteMem(p []byte, addr uint32) error {
	if c.Memory == nil {
		return fmt.Errorf("%w: no memory attached", ErrMemoryRange)
	}
	if _, err := c.Memory.WriteAt(p, int64(addr)); err != nil {
		return fmt.Errorf("%w: write %d bytes at %#x: %w", ErrMemoryRange, len(p), addr, err)
	}
	return nil
}

// RAM is a flat byte slice implementing Memory.
type RAM []byte

// DefaultRAMSize is the size of main memory when the host supplies none.
const DefaultRAMSize = 24 << 20

// NewRAM allocates size bytes of RAM.
func NewRAM(size int) RAM { return make(RAM, size) }

// Size returns the RAM size in bytes.
func (r RAM) Size() int64 { return int64(len(r)) }

// ReadAt implements io.ReaderAt. Partial reads are errors.
func (r RAM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(r)) {
		return 0, io.EOF
	}
	return copy(p, r[off:]), nil
}

// WriteAt implements io.WriterAt. Writes past the end are rejected whole.
func (r RAM) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(r)) {
		return 0, io.ErrShortWrite
	}
	return copy(r[off:], p), nil
}
