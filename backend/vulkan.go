// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package backend

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"
)

type vulkanAPI struct{}

func init() {
	Register(Vulkan, func() API { return vulkanAPI{} })
}

func (vulkanAPI) Name() string { return Vulkan }

func (vulkanAPI) CreateInstance() (hal.Instance, error) {
	b, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("vulkan backend not available")
	}
	return b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
}
