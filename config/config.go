// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package config holds the video backend settings and their ini persistence.
//
// Settings live in gfx_<name>.ini under the host's config directory. A game
// ini may override any key for one title; overlays are applied on top of the
// base file and never written back.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// ErrInvalid is returned by Validate and Load for out-of-range settings.
var ErrInvalid = errors.New("config: invalid setting")

// Backend selection values.
const (
	BackendAuto   = "auto"
	BackendVulkan = "vulkan"
	BackendNoop   = "noop"
)

// Config is the full set of video settings.
type Config struct {
	Hardware     Hardware     `ini:"Hardware"`
	Settings     Settings     `ini:"Settings"`
	Enhancements Enhancements `ini:"Enhancements"`
	Hacks        Hacks        `ini:"Hacks"`
	Display      Display      `ini:"Display"`
}

// Hardware selects the GPU API and adapter.
type Hardware struct {
	Backend string `ini:"Backend"`
	Adapter int    `ini:"Adapter"`
	VSync   bool   `ini:"VSync"`
}

// Settings are the general rendering options.
type Settings struct {
	ShowFPS          bool `ini:"ShowFPS"`
	EFBScale         int  `ini:"EFBScale"`
	MSAA             int  `ini:"MSAA"`
	Wireframe        bool `ini:"Wireframe"`
	DLCache          bool `ini:"DLOptimize"`
	UseXFB           bool `ini:"UseXFB"`
	TextureCacheSize int  `ini:"TextureCacheSize"`
	ShaderCacheSize  int  `ini:"ShaderCacheSize"`
	QueueDepth       int  `ini:"QueueDepth"`
	CompressStates   bool `ini:"CompressStates"`
}

// Enhancements are quality options that do not affect emulation.
type Enhancements struct {
	MaxAnisotropy  int  `ini:"MaxAnisotropy"`
	ForceFiltering bool `ini:"ForceFiltering"`
}

// Hacks trade accuracy for speed.
type Hacks struct {
	EFBAccessEnable    bool `ini:"EFBAccessEnable"`
	EFBCopyEnable      bool `ini:"EFBCopyEnable"`
	EFBToTextureEnable bool `ini:"EFBToTextureEnable"`
}

// Display sizes the render window.
type Display struct {
	WindowWidth  int `ini:"RenderWindowWidth"`
	WindowHeight int `ini:"RenderWindowHeight"`
}

// Default returns the settings used when no file exists.
func Default() *Config {
	return &Config{
		Hardware: Hardware{Backend: BackendAuto, VSync: true},
		Settings: Settings{
			EFBScale:         1,
			MSAA:             1,
			DLCache:          true,
			TextureCacheSize: 512,
			ShaderCacheSize:  256,
			QueueDepth:       256,
			CompressStates:   true,
		},
		Enhancements: Enhancements{MaxAnisotropy: 1},
		Hacks: Hacks{
			EFBAccessEnable:    true,
			EFBCopyEnable:      true,
			EFBToTextureEnable: true,
		},
		Display: Display{WindowWidth: 640, WindowHeight: 480},
	}
}

// FileName returns the ini file name for a backend short name.
func FileName(name string) string {
	return "gfx_" + strings.ToLower(name) + ".ini"
}

// Load reads path over the defaults and then applies each overlay in order.
// Missing files are ignored; malformed ones are errors.
func Load(path string, overlays ...string) (*Config, error) {
	c := Default()
	sources := []any{path}
	for _, o := range overlays {
		if o != "" {
			sources = append(sources, o)
		}
	}
	f, err := ini.LooseLoad(sources[0], sources[1:]...)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	if err := f.MapTo(c); err != nil {
		return nil, fmt.Errorf("config: map %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c to path, creating the directory if needed.
func (c *Config) Save(path string) error {
	f := ini.Empty()
	if err := ini.ReflectFrom(f, c); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	if err := f.SaveTo(path); err != nil {
		return fmt.Errorf("config: save %s: %w", path, err)
	}
	return nil
}

// Clone returns a copy of c.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// Validate checks ranges.
func (c *Config) Validate() error {
	switch c.Hardware.Backend {
	case BackendAuto, BackendVulkan, BackendNoop:
	default:
		return fmt.Errorf("%w: Hardware.Backend %q", ErrInvalid, c.Hardware.Backend)
	}
	checks := []struct {
		name     string
		v, lo, hi int
	}{
		{"Hardware.Adapter", c.Hardware.Adapter, 0, 64},
		{"Settings.EFBScale", c.Settings.EFBScale, 1, 8},
		{"Settings.MSAA", c.Settings.MSAA, 1, 16},
		{"Settings.TextureCacheSize", c.Settings.TextureCacheSize, 0, 1 << 16},
		{"Settings.ShaderCacheSize", c.Settings.ShaderCacheSize, 0, 1 << 16},
		{"Settings.QueueDepth", c.Settings.QueueDepth, 1, 1 << 16},
		{"Enhancements.MaxAnisotropy", c.Enhancements.MaxAnisotropy, 1, 16},
		{"Display.RenderWindowWidth", c.Display.WindowWidth, 1, 1 << 14},
		{"Display.RenderWindowHeight", c.Display.WindowHeight, 1, 1 << 14},
	}
	for _, ch := range checks {
		if ch.v < ch.lo || ch.v > ch.hi {
			return fmt.Errorf("%w: %s = %d, want %d..%d", ErrInvalid, ch.name, ch.v, ch.lo, ch.hi)
		}
	}
	return nil
}
