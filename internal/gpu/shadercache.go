// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuvideo/internal/cache"
	"github.com/gogpu/gpuvideo/internal/env"
)

// ErrNoDevice is returned when a GPU resource is requested before the
// renderer opened a device.
var ErrNoDevice = errors.New("gpu: no device")

// Shader is a compiled shader module.
type Shader struct {
	Module hal.ShaderModule
	// SPIRV is false when naga rejected the source and the module was
	// created from WGSL instead.
	SPIRV bool
}

// ShaderCache maps shader uids to modules. Entries are derived from
// emulated state and never saved; the cache is bounded by
// Settings.ShaderCacheSize and destroys modules it evicts.
type ShaderCache[U comparable] struct {
	ctx    *env.Context
	name   string
	source func(U) string

	entries   *cache.Cache[U, *Shader]
	fallbacks int
}

// NewShaderCache returns a cache generating WGSL with source.
func NewShaderCache[U comparable](ctx *env.Context, name string, source func(U) string) *ShaderCache[U] {
	return &ShaderCache[U]{ctx: ctx, name: name, source: source}
}

// Init creates the entry table.
func (c *ShaderCache[U]) Init() error {
	c.entries = cache.New[U, *Shader](c.ctx.Config().Settings.ShaderCacheSize, c.destroy)
	c.fallbacks = 0
	return nil
}

// Shutdown destroys every module.
func (c *ShaderCache[U]) Shutdown() error {
	if c.entries != nil {
		c.entries.Purge()
	}
	return nil
}

func (c *ShaderCache[U]) destroy(_ U, s *Shader) {
	if d := c.ctx.Device; d != nil && s.Module != nil {
		d.Device.DestroyShaderModule(s.Module)
	}
}

// Get returns the shader for uid, compiling it on first use.
func (c *ShaderCache[U]) Get(uid U) (*Shader, error) {
	return c.entries.GetOrCreate(uid, func() (*Shader, error) { return c.compile(uid) })
}

func (c *ShaderCache[U]) compile(uid U) (*Shader, error) {
	d := c.ctx.Device
	if d == nil {
		return nil, ErrNoDevice
	}
	src := c.source(uid)
	label := fmt.Sprintf("%s_%v", c.name, uid)

	desc := &hal.ShaderModuleDescriptor{Label: label}
	spirv, err := compileSPIRV(src)
	if err != nil {
		c.fallbacks++
		c.ctx.Logger.Warn("gpu: shader compile failed, using WGSL module", "shader", label, "err", err)
		desc.Source.WGSL = src
	} else {
		desc.Source.SPIRV = spirv
	}
	m, err := d.Device.CreateShaderModule(desc)
	if err != nil {
		return nil, fmt.Errorf("gpu: create %s: %w", label, err)
	}
	return &Shader{Module: m, SPIRV: spirv != nil}, nil
}

// Len returns the number of cached modules.
func (c *ShaderCache[U]) Len() int { return c.entries.Len() }

// Fallbacks returns how many shaders were created from WGSL because
// compilation failed.
func (c *ShaderCache[U]) Fallbacks() int { return c.fallbacks }
