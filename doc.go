// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpuvideo is a GPU video backend for an emulator host, rendering
// through the gogpu/wgpu HAL.
//
// # Lifecycle
//
// The host drives a Backend through a fixed sequence of calls:
//
//	b := gpuvideo.New()
//	b.SetGlobals(gpuvideo.Globals{Logger: logger, ConfigDir: dir})
//	out, err := b.Initialize(gpuvideo.HostConfig{Bridge: host})
//	err = b.Prepare()
//	// ... b.Push(packet), b.DoState(cursor, mode) ...
//	b.Shutdown()
//
// Initialize creates the render window. Prepare brings the subsystems up
// in rank order, starts the goroutine that drains the command queue and
// calls HostBridge.CoreReady. Shutdown stops that goroutine, waits for it
// and shuts the subsystems down in reverse order. A Backend runs once;
// create a new one to run again.
//
// Lifecycle calls (SetGlobals, Initialize, Prepare, DoState, Shutdown,
// ShowConfigUI) must not overlap. An overlapping call panics with
// ErrOverlappingCall.
//
// # State blobs
//
// DoState writes a versioned blob holding one section per stateful
// subsystem, in rank order: BPMemory, Fifo, VertexLoader,
// VertexShaderManager, CommandProcessor and PixelEngine. Restores either
// apply the whole blob or nothing.
//
// # Logging
//
// gpuvideo logs through log/slog and is silent by default. See SetLogger.
package gpuvideo
