// Command gpuvideo-host drives the gpuvideo backend the way an emulator host
// does: it brings the backend up, feeds it synthetic command packets, saves
// and restores a state blob and shuts it down again.
package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/gogpu/gpuvideo"
	"github.com/gogpu/gpuvideo/backend"
	"github.com/gogpu/gpuvideo/config"
	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/gpu"
	"github.com/gogpu/gpuvideo/internal/opcode"
	"github.com/gogpu/gpuvideo/internal/savestate"
	"github.com/gogpu/gpuvideo/internal/videocommon"
)

func main() {
	var (
		frames    = flag.Int("frames", 60, "frames to render")
		statePath = flag.String("state", "", "write the state blob to this file")
		configDir = flag.String("config", "", "directory holding gfx_wgpu.ini")
		api       = flag.String("backend", "", "GPU API (auto, vulkan or noop); overrides the config file")
		configure = flag.Bool("configure", false, "edit the settings before starting")
		verbose   = flag.Bool("v", false, "log debug output")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	gpuvideo.SetLogger(logger)

	if err := run(logger, *frames, *statePath, *configDir, *api, *configure); err != nil {
		log.Fatalf("gpuvideo-host: %v", err)
	}
}

func run(logger *slog.Logger, frames int, statePath, configDir, api string, configure bool) error {
	b := gpuvideo.New()
	b.SetGlobals(gpuvideo.Globals{Logger: logger, ConfigDir: configDir})

	if configure {
		if err := b.ShowConfigUI(&terminalDialog{in: bufio.NewReader(os.Stdin)}); err != nil {
			return err
		}
	}

	cfg, err := hostConfig(configDir, api)
	if err != nil {
		return err
	}
	h := &host{logger: logger}
	ram := env.NewRAM(env.DefaultRAMSize)
	out, err := b.Initialize(gpuvideo.HostConfig{
		Title:  "gpuvideo-host",
		Config: cfg,
		Memory: ram,
		Interrupt: func(line env.Interrupt, asserted bool) {
			logger.Debug("interrupt", "line", line, "asserted", asserted)
		},
		Bridge: h,
	})
	if err != nil {
		return err
	}
	defer b.Shutdown()

	if err := b.Prepare(); err != nil {
		return err
	}

	start := time.Now()
	if err := render(b, out, frames); err != nil {
		return err
	}
	logger.Info("rendered", "frames", b.Window().Presented(), "elapsed", time.Since(start))

	blob, err := roundTrip(b)
	if err != nil {
		return err
	}
	logger.Info("state restored", "bytes", len(blob))
	if statePath != "" {
		if err := os.WriteFile(statePath, blob, 0o644); err != nil { //nolint:gosec // state blobs are not secret
			return err
		}
	}
	return nil
}

// hostConfig returns nil when the backend should read its own config file.
func hostConfig(dir, api string) (*config.Config, error) {
	if api == "" {
		return nil, nil
	}
	cfg := config.Default()
	if dir != "" {
		loaded, err := config.Load(filepath.Join(dir, config.FileName(gpuvideo.ShortName)))
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.Hardware.Backend = api
	return cfg, cfg.Validate()
}

// render pushes frames on one goroutine while another refreshes the status
// line until the queue drains.
func render(b *gpuvideo.Backend, out gpuvideo.BridgeOut, frames int) error {
	g, ctx := errgroup.WithContext(context.Background())
	produced := make(chan struct{})

	g.Go(func() error {
		defer close(produced)
		if err := b.Push(formatPacket().Bytes()); err != nil {
			return err
		}
		for i := range frames {
			if err := b.Push(framePacket(i).Bytes()); err != nil {
				return err
			}
		}
		wctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		return b.WaitIdle(wctx)
	})
	g.Go(func() error {
		t := time.NewTicker(250 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-produced:
				return nil
			case <-ctx.Done():
				return nil
			case <-t.C:
				out.PumpMessages()
				out.UpdateStatusText(fmt.Sprintf("frames: %d", b.Window().Presented()))
			}
		}
	})
	return g.Wait()
}

// roundTrip saves the backend state and restores it from the saved blob.
func roundTrip(b *gpuvideo.Backend) ([]byte, error) {
	m := savestate.NewCursor(nil)
	if err := b.DoState(m, savestate.ModeMeasure); err != nil {
		return nil, err
	}
	w := savestate.NewCursor(make([]byte, 0, m.Offset()))
	if err := b.DoState(w, savestate.ModeWrite); err != nil {
		return nil, err
	}
	blob := w.Bytes()
	if err := b.DoState(savestate.NewCursor(blob), savestate.ModeRead); err != nil {
		return nil, err
	}
	return blob, nil
}

var triangleFormat = videocommon.VertexFormat{Pos: videocommon.AttrDirect, PosXYZ: true, PosFmt: videocommon.CompF32}

func formatPacket() *opcode.Packet {
	var p opcode.Packet
	lo, hi := triangleFormat.EncodeVCD()
	return p.LoadCP(videocommon.CPVCDLo, lo).
		LoadCP(videocommon.CPVCDHi, hi).
		LoadCP(videocommon.CPVATA, triangleFormat.EncodeVATA())
}

// framePacket draws a triangle rotated by frame and copies the EFB to the
// XFB, clearing it for the next frame.
func framePacket(frame int) *opcode.Packet {
	const (
		copyClear = 1 << 11
		copyToXFB = 1 << 14
	)
	var data []byte
	for k := range 3 {
		a := float64(frame)/30 + float64(k)*2*math.Pi/3
		for _, v := range []float32{float32(math.Cos(a)), float32(math.Sin(a)), 0} {
			data = binary.BigEndian.AppendUint32(data, math.Float32bits(v))
		}
	}
	var p opcode.Packet
	return p.Draw(opcode.PrimTriangles, 0, 3, data).
		LoadBP(videocommon.BPPEToken, uint32(frame)&0xFFFF). //nolint:gosec // masked
		LoadBP(videocommon.BPEFBSrcWH, (gpu.EFBWidth-1)|(gpu.EFBHeight-1)<<10).
		LoadBP(videocommon.BPTriggerCopy, copyToXFB|copyClear)
}

type host struct {
	logger *slog.Logger
}

func (h *host) CoreReady() { h.logger.Info("core ready") }

func (h *host) StatusText(text string) { h.logger.Info("status", "text", text) }

func (h *host) Diagnostic(err error) { h.logger.Error("backend diagnostic", "err", err) }

// terminalDialog edits a few settings interactively. Without a terminal on
// stdin it keeps the current settings.
type terminalDialog struct {
	in *bufio.Reader
}

func (d *terminalDialog) Run(cfg *config.Config, adapters []backend.AdapterInfo) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) { //nolint:gosec // fd fits int
		return true, nil
	}
	for _, a := range adapters {
		fmt.Println("  adapter", a)
	}
	var err error
	if cfg.Hardware.Backend, err = d.ask("backend", cfg.Hardware.Backend); err != nil {
		return false, err
	}
	scale, err := d.ask("EFB scale", strconv.Itoa(cfg.Settings.EFBScale))
	if err != nil {
		return false, err
	}
	if cfg.Settings.EFBScale, err = strconv.Atoi(scale); err != nil {
		return false, err
	}
	xfb, err := d.ask("use XFB (y/n)", yesNo(cfg.Settings.UseXFB))
	if err != nil {
		return false, err
	}
	cfg.Settings.UseXFB = xfb == "y"
	return true, nil
}

func (d *terminalDialog) ask(prompt, current string) (string, error) {
	fmt.Printf("%s [%s]: ", prompt, current)
	line, err := d.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	if line = strings.TrimSpace(line); line == "" {
		return current, nil
	}
	return line, nil
}

func yesNo(v bool) string {
	if v {
		return "y"
	}
	return "n"
}
