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
)

// clearUniformSize is vec4 color + f32 depth, padded to 16 bytes.
const clearUniformSize = 32

// Utils holds resources shared by several renderer paths: a full-screen
// quad, the clear shader and its uniform buffer.
type Utils struct {
	ctx *env.Context

	quad        hal.Buffer
	clearUnif   hal.Buffer
	clearShader hal.ShaderModule

	clears int
}

// NewUtils returns utils with no resources.
func NewUtils(ctx *env.Context) *Utils {
	return &Utils{ctx: ctx}
}

// Init creates the shared resources.
func (u *Utils) Init() error {
	d := u.ctx.Device
	if d == nil {
		return ErrNoDevice
	}
	u.clears = 0
	quad := appendFloats(nil, -1, -1, 1, -1, -1, 1, 1, 1)
	var err error
	u.quad, err = d.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: "utils_quad",
		Size:  uint64(len(quad)),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("gpu: create quad buffer: %w", err)
	}
	if err := d.Queue.WriteBuffer(u.quad, 0, quad); err != nil {
		u.release()
		return fmt.Errorf("gpu: upload quad: %w", err)
	}

	u.clearUnif, err = d.Device.CreateBuffer(&hal.BufferDescriptor{
		Label: "utils_clear_uniform",
		Size:  clearUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		u.release()
		return fmt.Errorf("gpu: create clear uniform: %w", err)
	}

	desc := &hal.ShaderModuleDescriptor{Label: "utils_clear"}
	if spirv, err := compileSPIRV(clearShaderSource); err != nil {
		u.ctx.Logger.Warn("gpu: clear shader compile failed, using WGSL module", "err", err)
		desc.Source.WGSL = clearShaderSource
	} else {
		desc.Source.SPIRV = spirv
	}
	u.clearShader, err = d.Device.CreateShaderModule(desc)
	if err != nil {
		u.release()
		return fmt.Errorf("gpu: create clear shader: %w", err)
	}
	return nil
}

// Shutdown destroys the shared resources.
func (u *Utils) Shutdown() error {
	u.release()
	return nil
}

func (u *Utils) release() {
	d := u.ctx.Device
	if d == nil {
		return
	}
	if u.clearShader != nil {
		d.Device.DestroyShaderModule(u.clearShader)
	}
	if u.clearUnif != nil {
		d.Device.DestroyBuffer(u.clearUnif)
	}
	if u.quad != nil {
		d.Device.DestroyBuffer(u.quad)
	}
	u.quad, u.clearUnif, u.clearShader = nil, nil, nil
}

// SetClear uploads the clear color (ARGB8) and 24-bit depth used by the
// next clear pass.
func (u *Utils) SetClear(argb, z uint32) error {
	if u.clearUnif == nil {
		return ErrNoDevice
	}
	ch := func(shift uint) float32 { return float32(argb>>shift&0xFF) / 255 }
	data := appendFloats(nil, ch(16), ch(8), ch(0), ch(24), float32(z&0xFFFFFF)/0xFFFFFF)
	data = append(data, make([]byte, clearUniformSize-len(data))...)
	if err := u.ctx.Device.Queue.WriteBuffer(u.clearUnif, 0, data); err != nil {
		return fmt.Errorf("gpu: upload clear uniform: %w", err)
	}
	u.clears++
	return nil
}

// Clears returns how many clears were issued since Init.
func (u *Utils) Clears() int { return u.clears }

func appendFloats(b []byte, fs ...float32) []byte {
	for _, f := range fs {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(f))
	}
	return b
}
