// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/gogpu/gpuvideo/backend"
	"github.com/gogpu/gpuvideo/config"
	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/osd"
	"github.com/gogpu/gpuvideo/internal/window"
)

const startupMessageDuration = 5000 * time.Millisecond

// Backend is one instance of the video backend. The host drives it through
// Initialize, Prepare, DoState and Shutdown; these calls must not overlap.
// Command submission (Push), EFB access and MMIO calls may come from the
// host's CPU goroutine while the backend is Running.
type Backend struct {
	// callMu detects overlapping lifecycle calls. It is never waited on.
	callMu sync.Mutex
	state  stateCell
	flags  PendingFlags

	logger    *slog.Logger
	configDir string

	ctx    *env.Context
	bridge HostBridge
	win    *window.Window
	osd    *osd.OSD

	sys *subsystems
	reg *registry

	// consumerDone is closed when the consumer goroutine exits. Nil until
	// Prepare starts it.
	consumerDone chan struct{}

	reqMu   sync.Mutex
	efbReq  *efbRequest
	swapReq swapRequest

	hook hookFunc
}

// New returns an uninitialized backend.
func New() *Backend {
	return &Backend{logger: Logger()}
}

// State returns the lifecycle state. It is safe to call from any
// goroutine.
func (b *Backend) State() State { return b.state.load() }

// Flags returns the cross-goroutine request flags.
func (b *Backend) Flags() *PendingFlags { return &b.flags }

// enter claims the lifecycle guard or panics when another call holds it.
func (b *Backend) enter(op string) {
	if !b.callMu.TryLock() {
		panic(fmt.Errorf("%w: %s during another call", ErrOverlappingCall, op))
	}
}

func (b *Backend) leave() { b.callMu.Unlock() }

func (b *Backend) setState(to State) {
	from := b.state.load()
	invariant(canTransition(from, to), "transition %s -> %s", from, to)
	b.state.store(to)
	b.logger.Debug("gpuvideo: state", "from", from, "to", to)
}

// SetGlobals wires the shared services. It must be called before
// Initialize, if at all.
func (b *Backend) SetGlobals(g Globals) {
	b.enter("SetGlobals")
	defer b.leave()

	if g.Logger != nil {
		b.logger = g.Logger
	}
	b.configDir = g.ConfigDir
}

func (b *Backend) configPath() string {
	if b.configDir == "" {
		return ""
	}
	return filepath.Join(b.configDir, config.FileName(ShortName))
}

func (b *Backend) loadConfig(hc HostConfig) (*config.Config, error) {
	if hc.Config != nil {
		if err := hc.Config.Validate(); err != nil {
			return nil, err
		}
		return hc.Config.Clone(), nil
	}
	path := b.configPath()
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path, hc.GameINI)
}

// Initialize loads the settings, stores the host bridge and creates the
// render window, or adopts the host's GPU device when hc.Provider is set.
// On failure nothing is retained and the backend stays Uninitialized.
func (b *Backend) Initialize(hc HostConfig) (BridgeOut, error) {
	b.enter("Initialize")
	defer b.leave()

	if st := b.State(); st != StateUninitialized {
		return BridgeOut{}, fmt.Errorf("%w: Initialize in state %s", ErrInitialization, st)
	}

	cfg, err := b.loadConfig(hc)
	if err != nil {
		return BridgeOut{}, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	mem := hc.Memory
	if mem == nil {
		mem = env.NewRAM(env.DefaultRAMSize)
	}
	ctx := env.New(b.logger, mem, cfg)
	ctx.Interrupt = hc.Interrupt

	if hc.Provider != nil {
		dev, err := backend.Adopt(hc.Provider)
		if err != nil {
			return BridgeOut{}, fmt.Errorf("%w: %w", ErrInitialization, err)
		}
		ctx.Device = dev
	}

	o, err := osd.New(osd.DefaultSize)
	if err != nil {
		return BridgeOut{}, fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	title := hc.Title
	if title == "" {
		title = GetPluginInfo().DisplayName
	}
	win, err := window.Create(hc.Parent, title, cfg.Display.WindowWidth, cfg.Display.WindowHeight)
	if err != nil {
		return BridgeOut{}, fmt.Errorf("%w: %w", ErrWindowCreation, err)
	}

	b.ctx, b.bridge, b.win, b.osd = ctx, hc.Bridge, win, o
	o.AddMessage(GetPluginInfo().DisplayName+" Video Backend.", startupMessageDuration)
	b.setState(StateWindowCreated)
	b.logger.Info("gpuvideo: initialized", "window", win.Handle(), "backend", cfg.Hardware.Backend)

	return BridgeOut{
		Window:           win.Handle(),
		PumpMessages:     b.PumpMessages,
		UpdateStatusText: b.UpdateStatusText,
	}, nil
}

// Prepare brings every subsystem up in rank order, starts the consumer
// goroutine and tells the host the core is ready. If a subsystem fails,
// the ones already up are shut down in reverse, the consumer is never
// started and the backend stays WindowCreated.
func (b *Backend) Prepare() error {
	b.enter("Prepare")
	defer b.leave()

	if st := b.State(); st != StateWindowCreated {
		return fmt.Errorf("%w: Prepare in state %s", ErrInitialization, st)
	}
	b.flags.reset()

	b.sys = newSubsystems(b.ctx, b.osd, b.win, b.UpdateStatusText)
	b.reg = newRegistry(b.logger, b.sys.table(), b.hook)
	if err := b.reg.initAll(); err != nil {
		b.report(err)
		b.sys, b.reg = nil, nil
		return err
	}
	b.setState(StatePrepared)

	done := make(chan struct{})
	b.consumerDone = done
	q := b.sys.queue.q
	h := &consumer{b: b, decoder: b.sys.decoder}
	go func() {
		defer close(done)
		if err := q.Run(h); err != nil {
			b.logger.Error("gpuvideo: consumer", "err", err)
		}
	}()
	b.setState(StateRunning)
	b.logger.Info("gpuvideo: prepared", "api", b.ctx.Device.API, "adapter", b.ctx.Device.Adapter.String())

	if b.bridge != nil {
		b.bridge.CoreReady()
	}
	return nil
}

// Shutdown stops and joins the consumer, shuts the subsystems down in
// reverse rank order and releases the window and the host bridge. It never
// fails: subsystem errors are logged and teardown continues. Calling it
// again, or while another Shutdown runs, does nothing.
func (b *Backend) Shutdown() {
	if !b.callMu.TryLock() {
		if b.State() == StateShuttingDown {
			return
		}
		panic(fmt.Errorf("%w: Shutdown during another call", ErrOverlappingCall))
	}
	defer b.leave()

	switch st := b.State(); st {
	case StateDestroyed:
		return
	case StateUninitialized:
		b.logger.Warn("gpuvideo: Shutdown before Initialize ignored")
		return
	case StateRunning:
		b.setState(StateShuttingDown)
		b.flags.queueShuttingDown.Store(true)
		b.sys.queue.q.Stop()
		<-b.consumerDone
		// sys stays set: Push and MMIO calls racing with Shutdown see a
		// stopped queue instead of nil subsystems.
		b.reg.shutdownAll()
	case StateWindowCreated:
		// Initialized but never prepared: only the window and bridge exist.
	default:
		panic(fmt.Errorf("%w: Shutdown in state %s", ErrContract, st))
	}

	if err := b.win.Close(); err != nil {
		b.logger.Warn("gpuvideo: close window", "err", err)
	}
	if b.ctx.Device != nil && b.ctx.Device.External() {
		b.ctx.Device = nil
	}
	b.bridge = nil
	b.setState(StateDestroyed)
	b.logger.Info("gpuvideo: shut down")
}

// PumpMessages drains the render window's messages. It returns false when
// the window was asked to quit or is gone.
func (b *Backend) PumpMessages() bool {
	if b.win == nil {
		return false
	}
	return b.win.PumpMessages()
}

// UpdateStatusText shows "R<revision>: <API>: <text>" in the window title
// and forwards it to the host when the bridge accepts status text.
func (b *Backend) UpdateStatusText(text string) {
	api := ShortName
	if b.ctx != nil && b.ctx.Device != nil {
		api = b.ctx.Device.API
	}
	line := fmt.Sprintf("R%s: %s: %s", revision(), api, text)
	if b.win != nil {
		b.win.SetTitle(line)
	}
	if s, ok := b.bridge.(StatusSink); ok {
		s.StatusText(line)
	}
}

// report surfaces an error returned to the host.
func (b *Backend) report(err error) {
	b.logger.Error("gpuvideo: error reported to host", "err", err)
	if b.osd != nil {
		b.osd.AddMessage(err.Error(), startupMessageDuration)
	}
	if d, ok := b.bridge.(DiagnosticSink); ok {
		d.Diagnostic(err)
	}
}

// SetConfig validates cfg and schedules it to take effect at the next
// frame boundary.
func (b *Backend) SetConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if b.ctx == nil {
		return fmt.Errorf("%w: SetConfig before Initialize", ErrInitialization)
	}
	b.ctx.SetConfig(cfg.Clone())
	return nil
}

// Config returns the active settings. Callers must not modify them.
func (b *Backend) Config() *config.Config {
	if b.ctx == nil {
		return nil
	}
	return b.ctx.Config()
}

// Window returns the render window, nil before Initialize.
func (b *Backend) Window() *window.Window { return b.win }
