// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package env

import (
	"errors"
	"testing"

	"github.com/gogpu/gpuvideo/config"
)

func TestConfigAppliedAtBoundary(t *testing.T) {
	c := New(nil, nil, nil)
	before := c.Config()

	next := config.Default()
	next.Settings.ShowFPS = true
	c.SetConfig(next)

	if c.Config() != before {
		t.Fatal("SetConfig must not change the active config before UpdateActiveConfig")
	}
	if !c.UpdateActiveConfig() {
		t.Fatal("UpdateActiveConfig() = false, want true")
	}
	if !c.Config().Settings.ShowFPS {
		t.Error("pending config was not applied")
	}
	if c.UpdateActiveConfig() {
		t.Error("second UpdateActiveConfig() = true, want false")
	}
}

func TestRAMBounds(t *testing.T) {
	c := New(nil, NewRAM(16), nil)

	if err := c.WriteMem([]byte{1, 2, 3, 4}, 12); err != nil {
		t.Fatalf("WriteMem at end error = %v", err)
	}
	buf := make([]byte, 4)
	if err := c.ReadMem(buf, 12); err != nil || buf[3] != 4 {
		t.Fatalf("ReadMem() = %v, %v", buf, err)
	}
	if err := c.WriteMem([]byte{1, 2}, 15); !errors.Is(err, ErrMemoryRange) {
		t.Errorf("WriteMem past end error = %v, want ErrMemoryRange", err)
	}
	if err := c.ReadMem(buf, 14); !errors.Is(err, ErrMemoryRange) {
		t.Errorf("ReadMem past end error = %v, want ErrMemoryRange", err)
	}
}

func TestRaiseWithoutHandler(t *testing.T) {
	c := New(nil, nil, nil)
	c.Raise(IntPEToken, true) // must not panic

	var got []Interrupt
	c.Interrupt = func(line Interrupt, asserted bool) {
		if asserted {
			got = append(got, line)
		}
	}
	c.Raise(IntPEFinish, true)
	if len(got) != 1 || got[0] != IntPEFinish {
		t.Errorf("interrupts = %v, want [IntPEFinish]", got)
	}
}
