// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"fmt"
	"sync/atomic"
)

// State is the lifecycle state of a Backend.
type State int32

const (
	StateUninitialized State = iota
	StateWindowCreated
	StatePrepared
	StateRunning
	StateShuttingDown
	StateDestroyed
)

var stateNames = [...]string{
	StateUninitialized: "Uninitialized",
	StateWindowCreated: "WindowCreated",
	StatePrepared:      "Prepared",
	StateRunning:       "Running",
	StateShuttingDown:  "ShuttingDown",
	StateDestroyed:     "Destroyed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// transitions lists the legal successors of each state.
var transitions = map[State][]State{
	StateUninitialized: {StateWindowCreated, StateDestroyed},
	StateWindowCreated: {StatePrepared, StateDestroyed},
	StatePrepared:      {StateRunning},
	StateRunning:       {StateShuttingDown},
	StateShuttingDown:  {StateDestroyed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// stateCell holds the state. It is written only by the goroutine making
// lifecycle calls and may be read from anywhere.
type stateCell struct {
	v atomic.Int32
}

func (c *stateCell) load() State { return State(c.v.Load()) }

func (c *stateCell) store(s State) { c.v.Store(int32(s)) }

// PendingFlags are the signals between the control goroutine and the
// consumer goroutine. Each flag has one setter and one clearer:
//
//   - efbAccessRequested: set by AccessEFB, cleared by the consumer
//   - swapRequested: set by BeginField, cleared by the consumer
//   - queueShuttingDown: set by Shutdown, cleared only by Prepare's reset
type PendingFlags struct {
	efbAccessRequested atomic.Bool
	queueShuttingDown  atomic.Bool
	swapRequested      atomic.Bool
}

func (f *PendingFlags) reset() {
	f.efbAccessRequested.Store(false)
	f.queueShuttingDown.Store(false)
	f.swapRequested.Store(false)
}

// EFBAccessRequested reports whether an EFB access waits for the consumer.
func (f *PendingFlags) EFBAccessRequested() bool { return f.efbAccessRequested.Load() }

// QueueShuttingDown reports whether Shutdown has stopped the queue.
func (f *PendingFlags) QueueShuttingDown() bool { return f.queueShuttingDown.Load() }

// SwapRequested reports whether an XFB swap waits for the consumer.
func (f *PendingFlags) SwapRequested() bool { return f.swapRequested.Load() }
