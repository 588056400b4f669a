// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu is the GPU side of the video backend, built on the
// gogpu/wgpu HAL.
//
// Components:
//
//   - Renderer: opens or adopts the device, owns the EFB and presents frames
//   - TextureCache: textures loaded from emulated memory and EFB copies
//   - VertexManager: primitive expansion and vertex/index uploads
//   - ShaderCache: uid-keyed shader modules compiled with naga
//   - Utils: resources shared by several paths
//
// Every component has Init and Shutdown and reads the device from the
// backend context, so the Renderer must be initialized first and shut down
// last. None of the components are safe for concurrent use; they are
// driven from the consumer goroutine.
package gpu
