// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package videocommon contains the API-independent subsystems of the video
// backend: register files (BP, CP, XF), the vertex loader, the opcode
// decoder, the command processor and pixel engine MMIO blocks, and the
// display list cache.
//
// Each subsystem has Init and Shutdown. Subsystems that own emulated state
// also have Save and Load; Load decodes into staging values and returns a
// commit function, so a snapshot is applied only after every subsystem
// accepted its section.
//
// Apart from the MMIO blocks, subsystems are driven from the consumer
// goroutine only and are not safe for concurrent use.
package videocommon
