// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *c != *Default() {
		t.Errorf("Load() = %+v, want defaults", c)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", FileName("Vulkan"))
	c := Default()
	c.Hardware.Backend = BackendNoop
	c.Hardware.Adapter = 2
	c.Settings.ShowFPS = true
	c.Settings.EFBScale = 3
	c.Hacks.EFBCopyEnable = false

	if err := c.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *got != *c {
		t.Errorf("Load() = %+v, want %+v", got, c)
	}
}

func TestGameOverlay(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "gfx_vulkan.ini")
	game := filepath.Join(dir, "GAME01.ini")
	writeFile(t, base, "[Settings]\nEFBScale = 2\nShowFPS = true\n")
	writeFile(t, game, "[Settings]\nEFBScale = 4\n[Hacks]\nEFBAccessEnable = false\n")

	c, err := Load(base, game)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Settings.EFBScale != 4 {
		t.Errorf("EFBScale = %d, want 4 from game ini", c.Settings.EFBScale)
	}
	if !c.Settings.ShowFPS {
		t.Error("ShowFPS from base ini was lost")
	}
	if c.Hacks.EFBAccessEnable {
		t.Error("EFBAccessEnable = true, want false from game ini")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"backend", "[Hardware]\nBackend = metal\n"},
		{"efb scale", "[Settings]\nEFBScale = 0\n"},
		{"queue depth", "[Settings]\nQueueDepth = 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gfx.ini")
			writeFile(t, path, tt.body)
			if _, err := Load(path); !errors.Is(err, ErrInvalid) {
				t.Errorf("Load() error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("DX11"); got != "gfx_dx11.ini" {
		t.Errorf("FileName(DX11) = %q, want gfx_dx11.ini", got)
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}
