// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gpuvideo/backend"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the package default logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger sets the default logger of gpuvideo and its sub-packages. A
// Backend uses it unless SetGlobals hands it a logger of its own.
//
// By default gpuvideo produces no log output. Pass nil to restore that.
//
// Log levels used by gpuvideo:
//   - [slog.LevelDebug]: per-command diagnostics (packets, cache misses)
//   - [slog.LevelInfo]: lifecycle milestones (device opened, prepared, shut down)
//   - [slog.LevelWarn]: non-fatal issues (subsystem shutdown errors, shader fallbacks)
//   - [slog.LevelError]: failures reported to the host (Prepare, DoState)
//
// Example:
//
//	gpuvideo.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	backend.SetLogger(l)
}

// Logger returns the package default logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
