// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend selects the GPU API and opens the device the video backend
// renders with.
//
// # API Registration
//
// APIs register themselves from init functions. The headless "noop" API is
// always present; "vulkan" is registered unless the nogpu build tag is set.
//
// # API Selection
//
// Use Default to get the best available API, or Get to request one by name.
// Open with the name "auto" tries every API in priority order and keeps the
// first that yields a device:
//
//	dev, err := backend.Open(backend.Auto, 0)
//	if err != nil {
//		return err
//	}
//	defer dev.Close()
//
// # Shared Devices
//
// A host that already owns a device passes its gpucontext.DeviceProvider to
// Adopt. The provider must also expose HalDevice() and HalQueue(). Adopted
// devices are never destroyed by Close.
package backend
