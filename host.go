// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/gpuvideo/config"
	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/window"
)

// ShortName names the backend in config file names and status text.
const ShortName = "wgpu"

// PluginVersion is the host plugin interface version implemented here.
const PluginVersion uint16 = 0x0100

// PluginKind is the kind of plugin reported to the host.
type PluginKind uint8

const (
	KindVideo PluginKind = iota + 1
)

// PluginInfo is the static descriptor returned by GetPluginInfo.
type PluginInfo struct {
	Version     uint16
	Kind        PluginKind
	DisplayName string
}

// GetPluginInfo describes the backend. It has no side effects.
func GetPluginInfo() PluginInfo {
	return PluginInfo{
		Version:     PluginVersion,
		Kind:        KindVideo,
		DisplayName: "gpuvideo WebGPU" + flavourSuffix,
	}
}

// Globals are the shared services wired by SetGlobals before any other
// call.
type Globals struct {
	// Logger replaces the package default logger for this backend.
	Logger *slog.Logger
	// ConfigDir holds gfx_wgpu.ini. Empty means settings are not persisted.
	ConfigDir string
}

// HostBridge is implemented by the host. The backend borrows it from
// Initialize until Shutdown and never calls it afterwards.
type HostBridge interface {
	// CoreReady is called once, after Prepare brought the backend up.
	CoreReady()
}

// StatusSink is an optional HostBridge extension receiving the status
// line, formatted as "R<revision>: <API>: <text>".
type StatusSink interface {
	StatusText(text string)
}

// DiagnosticSink is an optional HostBridge extension receiving the errors
// returned to the host, for display.
type DiagnosticSink interface {
	Diagnostic(err error)
}

// HostConfig is what the host passes to Initialize.
type HostConfig struct {
	// Parent is the host window the render window belongs to. Zero means a
	// top-level window.
	Parent window.Handle
	Title  string

	// Config is used as is when set. Otherwise settings are loaded from
	// Globals.ConfigDir with GameINI applied on top.
	Config  *config.Config
	GameINI string

	// Memory is emulated main memory. Nil allocates env.DefaultRAMSize.
	Memory    env.Memory
	Interrupt env.InterruptFunc

	// Provider shares the host's GPU device instead of opening one.
	Provider gpucontext.DeviceProvider

	Bridge HostBridge
}

// BridgeOut is what Initialize hands back to the host.
type BridgeOut struct {
	Window window.Handle
	// PumpMessages drains the render window's messages. It returns false
	// once the window was asked to quit.
	PumpMessages func() bool
	// UpdateStatusText shows text in the render window title.
	UpdateStatusText func(text string)
}

var revision = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value[:min(7, len(s.Value))]
		}
	}
	return "dev"
})
