// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// noopAPI is the headless API. Every resource call succeeds and buffers keep
// their contents in memory, so it also serves as the test device.
type noopAPI struct{}

func init() {
	Register(Noop, func() API { return noopAPI{} })
}

func (noopAPI) Name() string { return Noop }

func (noopAPI) CreateInstance() (hal.Instance, error) {
	return noop.API{}.CreateInstance(nil)
}
