// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"fmt"

	"github.com/gogpu/gpuvideo/internal/savestate"
)

// DoState saves, measures or restores the backend state at c.
//
// The consumer is held at the critical-section gate for the whole call: a
// packet in flight finishes, no new one starts. Saving first writes dirty
// EFB copies back to emulated memory so the blob and memory agree.
// Restoring is transactional: every section is decoded into staging
// values, and only when the whole blob validated are the caches that
// alias memory dropped and the staged state committed. On error the
// backend keeps the state it had before the call.
//
// Shader caches, the texture cache and the display-list cache are derived
// state and never stored.
func (b *Backend) DoState(c *savestate.Cursor, mode savestate.Mode) error {
	b.enter("DoState")
	defer b.leave()

	if st := b.State(); st != StateRunning {
		return fmt.Errorf("%w: DoState in state %s", ErrNotRunning, st)
	}

	q := b.sys.queue.q
	q.EnterCritical()
	defer q.LeaveCritical()

	var err error
	switch mode {
	case savestate.ModeWrite:
		err = b.saveState(c)
	case savestate.ModeMeasure:
		c.Skip(len(b.packState()))
	case savestate.ModeRead:
		err = b.loadState(c)
	default:
		err = fmt.Errorf("gpuvideo: DoState: unknown mode %s", mode)
	}
	if err != nil {
		b.report(err)
		return err
	}
	b.logger.Debug("gpuvideo: DoState", "mode", mode, "offset", c.Offset())
	return nil
}

func (b *Backend) saveState(c *savestate.Cursor) error {
	if err := b.sys.textures.Invalidate(true); err != nil {
		return fmt.Errorf("gpuvideo: DoState: %w", err)
	}
	c.Write(b.packState())
	return nil
}

// packState serializes every stateful subsystem in rank order.
func (b *Backend) packState() []byte {
	entries := b.reg.stateful()
	sections := make([]savestate.Section, 0, len(entries))
	for _, s := range entries {
		e := savestate.NewEncoder()
		s.State.Save(e)
		sections = append(sections, savestate.Section{ID: uint8(s.ID), Data: e.Bytes()})
	}
	return savestate.Pack(sections, b.ctx.Config().Settings.CompressStates)
}

func (b *Backend) loadState(c *savestate.Cursor) error {
	_, sections, n, err := savestate.Unpack(c.Remaining())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStateCorruption, err)
	}
	entries := b.reg.stateful()
	if len(sections) != len(entries) {
		return fmt.Errorf("%w: %d sections, want %d", ErrStateCorruption, len(sections), len(entries))
	}

	commits := make([]func(), 0, len(entries))
	for i, s := range entries {
		sec := sections[i]
		if sec.ID != uint8(s.ID) {
			return fmt.Errorf("%w: section %d is %s, want %s", ErrStateCorruption, i, SubsystemID(sec.ID), s.ID)
		}
		commit, err := s.State.Load(savestate.NewDecoder(sec.Data))
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrStateCorruption, s.ID, err)
		}
		commits = append(commits, commit)
	}
	if err := c.Advance(n); err != nil {
		return fmt.Errorf("%w: %w", ErrStateCorruption, err)
	}

	if err := b.sys.textures.Invalidate(false); err != nil {
		return fmt.Errorf("gpuvideo: DoState: %w", err)
	}
	for _, commit := range commits {
		commit()
	}
	b.sys.dl.Clear()
	b.sys.ps.MarkDirty()
	return nil
}
