// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"fmt"

	"github.com/gogpu/gpuvideo/backend"
	"github.com/gogpu/gpuvideo/config"
)

// ConfigDialog is the host's modal settings surface.
type ConfigDialog interface {
	// Run edits cfg in place. adapters lists the adapters of the selected
	// API. ok is false when the user cancelled.
	Run(cfg *config.Config, adapters []backend.AdapterInfo) (ok bool, err error)
}

// ShowConfigUI runs dialog over the current settings. Adapters are
// enumerated before the dialog opens. Accepted settings are saved to
// gfx_wgpu.ini in Globals.ConfigDir and, while running, applied at the
// next frame boundary. It must not overlap Prepare or Shutdown.
func (b *Backend) ShowConfigUI(dialog ConfigDialog) error {
	b.enter("ShowConfigUI")
	defer b.leave()

	var cfg *config.Config
	if b.ctx != nil {
		cfg = b.ctx.Config().Clone()
	} else if path := b.configPath(); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	adapters, err := backend.EnumerateAdapters(cfg.Hardware.Backend)
	if err != nil {
		b.logger.Warn("gpuvideo: adapter enumeration failed", "backend", cfg.Hardware.Backend, "err", err)
	}

	ok, err := dialog.Run(cfg, adapters)
	if err != nil {
		return fmt.Errorf("gpuvideo: config dialog: %w", err)
	}
	if !ok {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if path := b.configPath(); path != "" {
		if err := cfg.Save(path); err != nil {
			return err
		}
	}
	if b.ctx != nil {
		b.ctx.SetConfig(cfg)
	}
	return nil
}
