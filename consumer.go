// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"context"
	"fmt"
	"time"

	"github.com/gogpu/gpuvideo/internal/gpu"
	"github.com/gogpu/gpuvideo/internal/videocommon"
)

// pumpInterval is how often a blocked request pumps host messages.
const pumpInterval = time.Millisecond

// consumer is the fifo handler run on the consumer goroutine.
type consumer struct {
	b       *Backend
	decoder *videocommon.OpcodeDecoder
}

func (c *consumer) Execute(packet []byte) error {
	return c.decoder.Execute(packet)
}

// Service answers the requests raised through PendingFlags.
func (c *consumer) Service() {
	b := c.b
	if b.flags.efbAccessRequested.Load() {
		req := b.efbReq
		req.value, req.err = b.sys.renderer.AccessEFB(req.kind, req.x, req.y, req.value)
		b.flags.efbAccessRequested.Store(false)
		close(req.done)
	}
	if b.flags.swapRequested.Load() {
		r := b.swapReq
		b.flags.swapRequested.Store(false)
		if err := b.sys.renderer.SwapXFB(r.addr, r.width, r.height); err != nil {
			b.logger.Warn("gpuvideo: XFB swap failed", "addr", r.addr, "err", err)
		}
	}
}

type efbRequest struct {
	kind  gpu.EFBAccess
	x, y  int
	value uint32
	err   error
	done  chan struct{}
}

type swapRequest struct {
	addr          uint32
	width, height int
}

// Push queues a command packet for the consumer. A packet must hold whole
// commands. Push blocks while the queue is full.
func (b *Backend) Push(packet []byte) error {
	if st := b.State(); st != StateRunning {
		return fmt.Errorf("%w: Push in state %s", ErrNotRunning, st)
	}
	gathered := func() { b.sys.cp.Gathered(len(packet)) }
	if err := b.sys.queue.q.PushFunc(packet, gathered); err != nil {
		return fmt.Errorf("%w: %w", ErrShuttingDown, err)
	}
	return nil
}

// WaitIdle blocks until every queued packet was executed, the backend
// shuts down, or ctx is done.
func (b *Backend) WaitIdle(ctx context.Context) error {
	if st := b.State(); st != StateRunning {
		return fmt.Errorf("%w: WaitIdle in state %s", ErrNotRunning, st)
	}
	return b.sys.queue.q.WaitIdle(ctx)
}

// AccessEFB peeks or pokes one EFB pixel on the consumer goroutine and
// waits for the result, pumping host messages meanwhile. It gives up with
// ErrShuttingDown once Shutdown has stopped the queue.
func (b *Backend) AccessEFB(kind gpu.EFBAccess, x, y int, value uint32) (uint32, error) {
	if st := b.State(); st != StateRunning {
		return 0, fmt.Errorf("%w: AccessEFB in state %s", ErrNotRunning, st)
	}
	b.reqMu.Lock()
	defer b.reqMu.Unlock()

	req := &efbRequest{kind: kind, x: x, y: y, value: value, done: make(chan struct{})}
	b.efbReq = req
	b.flags.efbAccessRequested.Store(true)
	b.sys.queue.q.Kick()
	if err := b.await(req.done); err != nil {
		return 0, err
	}
	return req.value, req.err
}

// BeginField asks the consumer to present the w×h XFB at addr. It only
// has an effect with Settings.UseXFB; otherwise frames are presented when
// the XFB copy executes. A field arriving while the previous one is still
// pending is dropped.
func (b *Backend) BeginField(addr uint32, w, h int) error {
	if st := b.State(); st != StateRunning {
		return fmt.Errorf("%w: BeginField in state %s", ErrNotRunning, st)
	}
	if !b.ctx.Config().Settings.UseXFB {
		return nil
	}
	b.reqMu.Lock()
	defer b.reqMu.Unlock()

	if b.flags.swapRequested.Load() {
		b.logger.Debug("gpuvideo: field dropped, previous swap pending", "addr", addr)
		return nil
	}
	b.swapReq = swapRequest{addr: addr, width: w, height: h}
	b.flags.swapRequested.Store(true)
	b.sys.queue.q.Kick()
	return nil
}

// await waits for done, pumping host messages every pumpInterval.
func (b *Backend) await(done <-chan struct{}) error {
	t := time.NewTicker(pumpInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return nil
		case <-b.consumerDone:
			return ErrShuttingDown
		case <-t.C:
			if b.flags.queueShuttingDown.Load() {
				return ErrShuttingDown
			}
			b.PumpMessages()
		}
	}
}

// ReadCP16 handles a host read of the command processor MMIO block.
func (b *Backend) ReadCP16(off uint32) uint16 {
	if b.State() != StateRunning {
		return 0
	}
	return b.sys.cp.Read16(off)
}

// WriteCP16 handles a host write to the command processor MMIO block.
func (b *Backend) WriteCP16(off uint32, v uint16) {
	if b.State() == StateRunning {
		b.sys.cp.Write16(off, v)
	}
}

// ReadPE16 handles a host read of the pixel engine MMIO block.
func (b *Backend) ReadPE16(off uint32) uint16 {
	if b.State() != StateRunning {
		return 0
	}
	return b.sys.pe.Read16(off)
}

// WritePE16 handles a host write to the pixel engine MMIO block.
func (b *Backend) WritePE16(off uint32, v uint16) {
	if b.State() == StateRunning {
		b.sys.pe.Write16(off, v)
	}
}
