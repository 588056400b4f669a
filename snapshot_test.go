// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/gogpu/gpuvideo/backend"
	"github.com/gogpu/gpuvideo/config"
	"github.com/gogpu/gpuvideo/internal/gpu"
	"github.com/gogpu/gpuvideo/internal/opcode"
	"github.com/gogpu/gpuvideo/internal/savestate"
	"github.com/gogpu/gpuvideo/internal/videocommon"
)

func (b *testBackend) save(t *testing.T) []byte {
	t.Helper()
	c := savestate.NewCursor(nil)
	if err := b.DoState(c, savestate.ModeWrite); err != nil {
		t.Fatalf("DoState(write) error = %v", err)
	}
	return c.Bytes()
}

func TestDoStateRoundTrip(t *testing.T) {
	b := startTestBackend(t, nil)
	b.push(t, formatPacket())
	b.waitIdle(t)
	saved := b.save(t)

	var p opcode.Packet
	b.push(t, p.LoadBP(videocommon.BPEFBDstAddr, 0x123).LoadCP(videocommon.CPVATA, 0))
	b.waitIdle(t)
	if b.sys.bp.Reg(videocommon.BPEFBDstAddr) != 0x123 {
		t.Fatal("packet did not reach BP memory")
	}

	c := savestate.NewCursor(saved)
	if err := b.DoState(c, savestate.ModeRead); err != nil {
		t.Fatalf("DoState(read) error = %v", err)
	}
	if c.Offset() != len(saved) {
		t.Errorf("read offset = %d, want %d", c.Offset(), len(saved))
	}
	if got := b.sys.bp.Reg(videocommon.BPEFBDstAddr); got != 0 {
		t.Errorf("BP reg after restore = %#x, want 0", got)
	}
	if again := b.save(t); !bytes.Equal(again, saved) {
		t.Errorf("blob after restore differs from the restored blob")
	}

	// The restored vertex format still decodes draws.
	b.push(t, drawPacket(opcode.PrimTriangles, 3))
	b.waitIdle(t)
	if st := b.sys.decoder.Stats(); st.Draws != 1 {
		t.Errorf("draws after restore = %d, want 1", st.Draws)
	}
}

func TestDoStateCorruptBlob(t *testing.T) {
	b := startTestBackend(t, nil)
	saved := b.save(t)

	var p opcode.Packet
	b.push(t, p.LoadBP(videocommon.BPEFBDstAddr, 0x77))
	b.waitIdle(t)

	tests := []struct {
		name string
		blob func() []byte
	}{
		{"flipped payload", func() []byte {
			bad := bytes.Clone(saved)
			bad[savestate.HeaderSize+2] ^= 0xFF
			return bad
		}},
		{"truncated", func() []byte { return saved[:len(saved)-1] }},
		{"bad magic", func() []byte {
			bad := bytes.Clone(saved)
			bad[0] = 'X'
			return bad
		}},
		{"empty", func() []byte { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := savestate.NewCursor(tt.blob())
			err := b.DoState(c, savestate.ModeRead)
			if !errors.Is(err, ErrStateCorruption) {
				t.Fatalf("DoState(read) error = %v, want ErrStateCorruption", err)
			}
			if c.Offset() != 0 {
				t.Errorf("offset = %d, want 0", c.Offset())
			}
			if got := b.sys.bp.Reg(videocommon.BPEFBDstAddr); got != 0x77 {
				t.Errorf("BP reg = %#x, want live value 0x77", got)
			}
			if b.State() != StateRunning {
				t.Errorf("State() = %s, want Running", b.State())
			}
		})
	}
	if len(b.host.diags) != len(tests) {
		t.Errorf("diagnostics = %d, want %d", len(b.host.diags), len(tests))
	}
}

func TestDoStateMeasure(t *testing.T) {
	for _, compress := range []bool{false, true} {
		cfg := testConfig()
		cfg.Settings.CompressStates = compress
		b := startTestBackend(t, cfg)

		m := savestate.NewCursor(nil)
		if err := b.DoState(m, savestate.ModeMeasure); err != nil {
			t.Fatalf("DoState(measure) error = %v", err)
		}
		if n := len(b.save(t)); m.Offset() != n {
			t.Errorf("compress=%v: measured %d bytes, saved %d", compress, m.Offset(), n)
		}
		if len(m.Bytes()) != 0 {
			t.Errorf("measure wrote %d bytes", len(m.Bytes()))
		}
	}
}

func TestDoStateWritesBackEFBCopies(t *testing.T) {
	b := startTestBackend(t, nil)
	if _, err := b.AccessEFB(gpu.PokeColor, 0, 0, 0xFF112233); err != nil {
		t.Fatal(err)
	}
	const dst = 0x8000
	var p opcode.Packet
	b.push(t, p.LoadBP(videocommon.BPEFBSrcWH, 0).
		LoadBP(videocommon.BPEFBDstAddr, dst>>5).
		LoadBP(videocommon.BPTriggerCopy, 0))
	b.waitIdle(t)
	if b.sys.textures.Len() != 1 {
		t.Fatalf("texture cache holds %d entries, want the EFB copy", b.sys.textures.Len())
	}
	if !bytes.Equal(b.ram[dst:dst+4], make([]byte, 4)) {
		t.Fatal("EFB copy reached memory before the save")
	}

	b.save(t)
	if got, want := b.ram[dst:dst+4], []byte{0x11, 0x22, 0x33, 0xFF}; !bytes.Equal(got, want) {
		t.Errorf("memory at %#x = % x, want % x", dst, got, want)
	}
	if b.sys.textures.Len() != 0 {
		t.Errorf("texture cache holds %d entries after save, want 0", b.sys.textures.Len())
	}
}

func TestDoStateKeepsEvictedEFBCopies(t *testing.T) {
	cfg := testConfig()
	cfg.Settings.TextureCacheSize = 1
	b := startTestBackend(t, cfg)
	if _, err := b.AccessEFB(gpu.PokeColor, 0, 0, 0xFF112233); err != nil {
		t.Fatal(err)
	}
	copyTo := func(dst uint32) *opcode.Packet {
		var p opcode.Packet
		return p.LoadBP(videocommon.BPEFBSrcWH, 0).
			LoadBP(videocommon.BPEFBDstAddr, dst>>5).
			LoadBP(videocommon.BPTriggerCopy, 0)
	}
	b.push(t, copyTo(0x8000))
	b.push(t, copyTo(0x9000))
	b.waitIdle(t)

	b.save(t)
	want := []byte{0x11, 0x22, 0x33, 0xFF}
	for _, addr := range []int{0x8000, 0x9000} {
		if got := b.ram[addr : addr+4]; !bytes.Equal(got, want) {
			t.Errorf("memory at %#x = % x, want % x", addr, got, want)
		}
	}
}

func TestDoStateWaitsForCriticalSection(t *testing.T) {
	b := startTestBackend(t, nil)
	q := b.sys.queue.q
	q.EnterCritical()

	done := make(chan error, 1)
	go func() {
		done <- b.DoState(savestate.NewCursor(nil), savestate.ModeWrite)
	}()
	select {
	case err := <-done:
		q.LeaveCritical()
		t.Fatalf("DoState() returned %v while the consumer held the gate", err)
	case <-time.After(50 * time.Millisecond):
	}
	q.LeaveCritical()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DoState() error = %v", err)
		}
	case <-time.After(waitLimit):
		t.Fatal("DoState() did not finish after the gate opened")
	}
}

func TestDoStateNotRunning(t *testing.T) {
	b := newTestBackend(t, nil, nil)
	err := b.DoState(savestate.NewCursor(nil), savestate.ModeWrite)
	if !errors.Is(err, ErrNotRunning) {
		t.Errorf("DoState() before Prepare error = %v, want ErrNotRunning", err)
	}
}

type fakeDialog struct {
	ok       bool
	err      error
	adapters []backend.AdapterInfo
	edit     func(*config.Config)
}

func (d *fakeDialog) Run(cfg *config.Config, adapters []backend.AdapterInfo) (bool, error) {
	d.adapters = adapters
	if d.edit != nil {
		d.edit(cfg)
	}
	return d.ok, d.err
}

func TestShowConfigUI(t *testing.T) {
	dir := t.TempDir()
	b := New()
	b.SetGlobals(Globals{ConfigDir: dir})

	dialog := &fakeDialog{ok: true, edit: func(c *config.Config) {
		c.Hardware.Backend = config.BackendNoop
		c.Settings.EFBScale = 2
	}}
	if err := b.ShowConfigUI(dialog); err != nil {
		t.Fatalf("ShowConfigUI() error = %v", err)
	}

	path := b.configPath()
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Settings.EFBScale != 2 || cfg.Hardware.Backend != config.BackendNoop {
		t.Errorf("saved config = %+v, want EFBScale 2 on noop", cfg)
	}

	cancel := &fakeDialog{edit: func(c *config.Config) { c.Settings.EFBScale = 4 }}
	if err := b.ShowConfigUI(cancel); err != nil {
		t.Fatal(err)
	}
	if cfg, _ := config.Load(path); cfg.Settings.EFBScale != 2 {
		t.Errorf("cancelled dialog changed EFBScale to %d", cfg.Settings.EFBScale)
	}

	invalid := &fakeDialog{ok: true, edit: func(c *config.Config) { c.Settings.EFBScale = 0 }}
	if err := b.ShowConfigUI(invalid); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("ShowConfigUI(invalid) error = %v, want config.ErrInvalid", err)
	}
}

func TestShowConfigUIWhileRunning(t *testing.T) {
	b := startTestBackend(t, nil)
	dialog := &fakeDialog{ok: true, edit: func(c *config.Config) { c.Settings.ShowFPS = true }}
	if err := b.ShowConfigUI(dialog); err != nil {
		t.Fatalf("ShowConfigUI() error = %v", err)
	}
	var p opcode.Packet
	b.push(t, p.LoadBP(videocommon.BPTriggerCopy, copyToXFB))
	b.waitIdle(t)
	if !b.Config().Settings.ShowFPS {
		t.Errorf("ShowFPS not applied at the frame boundary")
	}
}
