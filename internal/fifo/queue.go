// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fifo implements the bounded command queue between the host and the
// backend, and the loop of the goroutine that drains it.
//
// Packets are executed strictly in push order. Each packet runs with the
// critical-section gate held, so a caller of EnterCritical waits for the
// packet in flight to finish and then keeps the consumer from starting a new
// one until LeaveCritical. Every blocking wait in this package also wakes on
// Stop.
package fifo

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrStopped is returned by Push after Stop.
	ErrStopped = errors.New("fifo: queue stopped")

	// ErrRunning is returned when Run is called twice.
	ErrRunning = errors.New("fifo: consumer already running")
)

// DefaultCapacity is the packet capacity used when New is given zero.
const DefaultCapacity = 256

// Handler receives the work drained by Run. Both methods are called on the
// consumer goroutine with the critical-section gate held.
type Handler interface {
	// Execute runs one packet. An error is logged and the loop continues.
	Execute(packet []byte) error

	// Service handles out-of-band requests raised through Kick. It runs
	// before every packet and on every wake-up.
	Service()
}

// Queue is a bounded FIFO of command packets.
type Queue struct {
	logger *slog.Logger

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	idle     *sync.Cond
	packets  [][]byte
	capacity int
	stopping bool
	kicked   bool
	busy     bool

	// gate is held by the consumer for each packet and by the snapshot
	// coordinator for the whole of a DoState. Lock order is gate, then mu.
	gate sync.Mutex

	started  atomic.Bool
	done     chan struct{}
	executed atomic.Uint64
	failed   atomic.Uint64
}

// New creates a queue holding at most capacity packets.
// A nil logger discards output.
func New(capacity int, logger *slog.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	q := &Queue{
		logger:   logger,
		capacity: capacity,
		done:     make(chan struct{}),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	q.idle = sync.NewCond(&q.mu)
	return q
}

// Push appends a copy of packet. It blocks while the queue is full and
// returns ErrStopped once Stop has been called.
func (q *Queue) Push(packet []byte) error {
	return q.PushFunc(packet, nil)
}

// PushFunc is Push with a callback that runs once the packet is accepted,
// before the consumer can see it. It does not run when Push fails.
func (q *Queue) PushFunc(packet []byte, queued func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.packets) >= q.capacity && !q.stopping {
		q.notFull.Wait()
	}
	if q.stopping {
		return ErrStopped
	}
	if queued != nil {
		queued()
	}
	q.packets = append(q.packets, bytes.Clone(packet))
	q.notEmpty.Signal()
	return nil
}

// Kick wakes the consumer so that Handler.Service runs even when no packet
// is queued.
func (q *Queue) Kick() {
	q.mu.Lock()
	q.kicked = true
	q.notEmpty.Signal()
	q.mu.Unlock()
}

// Stop raises the stop signal and wakes every waiter. Packets still queued
// are left in place. Stop is safe to call more than once.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopping = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	q.idle.Broadcast()
	q.mu.Unlock()
}

// Stopping reports whether Stop has been called.
func (q *Queue) Stopping() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopping
}

// Done is closed when Run returns.
func (q *Queue) Done() <-chan struct{} { return q.done }

// Len returns the number of queued packets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// Executed returns the number of packets run so far, failed ones included.
func (q *Queue) Executed() uint64 { return q.executed.Load() }

// Failed returns the number of packets whose Execute returned an error.
func (q *Queue) Failed() uint64 { return q.failed.Load() }

// EnterCritical waits for the packet in flight, if any, and then keeps the
// consumer from admitting new work until LeaveCritical.
func (q *Queue) EnterCritical() { q.gate.Lock() }

// LeaveCritical releases the gate taken by EnterCritical.
func (q *Queue) LeaveCritical() { q.gate.Unlock() }

// Pending returns copies of the queued packets in order. The caller must
// hold the critical section so the result is a consistent cut.
func (q *Queue) Pending() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([][]byte, len(q.packets))
	for i, p := range q.packets {
		out[i] = bytes.Clone(p)
	}
	return out
}

// Replace swaps the queued packets for packets. The caller must hold the
// critical section. Packets beyond capacity are kept; producers simply
// block until the consumer drains them.
func (q *Queue) Replace(packets [][]byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.packets = q.packets[:0]
	for _, p := range packets {
		q.packets = append(q.packets, bytes.Clone(p))
	}
	if len(q.packets) > 0 {
		q.notEmpty.Signal()
	}
	if len(q.packets) < q.capacity {
		q.notFull.Broadcast()
	}
}

// WaitIdle blocks until the queue is empty and the consumer is not running a
// packet, Stop is called, or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.idle.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for (len(q.packets) > 0 || q.busy) && !q.stopping {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.idle.Wait()
	}
	return nil
}

// Run drains the queue until Stop. It must be called from exactly one
// goroutine; Done is closed when it returns.
func (q *Queue) Run(h Handler) error {
	if !q.started.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(q.done)
	defer q.markIdle()

	q.logger.Debug("fifo: consumer started", "capacity", q.capacity)
	for {
		if !q.waitWork() {
			q.logger.Debug("fifo: consumer stopped", "executed", q.executed.Load(), "left", q.Len())
			return nil
		}

		q.gate.Lock()
		packet, ok := q.pop()
		if !ok {
			q.gate.Unlock()
			continue
		}
		h.Service()
		if packet != nil {
			if err := h.Execute(packet); err != nil {
				q.failed.Add(1)
				q.logger.Warn("fifo: packet failed", "size", len(packet), "err", err)
			}
			q.executed.Add(1)
		}
		q.gate.Unlock()
	}
}

// waitWork blocks until a packet or a kick arrives. It returns false on stop.
func (q *Queue) waitWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.packets) == 0 && !q.kicked && !q.stopping {
		q.busy = false
		q.idle.Broadcast()
		q.notEmpty.Wait()
	}
	return !q.stopping
}

// pop takes the head packet once the gate is held. The stop signal is
// checked again here since the gate may have been held across a Stop.
// ok is false on stop; packet is nil when the wake-up was a kick.
func (q *Queue) pop() (packet []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		return nil, false
	}
	q.kicked = false
	if len(q.packets) == 0 {
		return nil, true
	}
	packet = q.packets[0]
	q.packets[0] = nil
	q.packets = q.packets[1:]
	q.busy = true
	q.notFull.Signal()
	return packet, true
}

func (q *Queue) markIdle() {
	q.mu.Lock()
	q.busy = false
	q.idle.Broadcast()
	q.mu.Unlock()
}
