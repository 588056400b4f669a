// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpuvideo

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization is returned when Initialize fails or a lifecycle call
	// arrives in the wrong state. A failed Initialize leaves the backend
	// Uninitialized.
	ErrInitialization = errors.New("gpuvideo: initialization failed")

	// ErrWindowCreation is returned when the render surface cannot be
	// created. It wraps ErrInitialization.
	ErrWindowCreation = fmt.Errorf("%w: window creation", ErrInitialization)

	// ErrSubsystemInit is matched by every *SubsystemError.
	ErrSubsystemInit = errors.New("gpuvideo: subsystem init failed")

	// ErrStateCorruption is returned by DoState for malformed, truncated or
	// mismatched blobs. The backend keeps its state from before the call.
	ErrStateCorruption = errors.New("gpuvideo: corrupt state")

	// ErrNotRunning is returned by calls that need a running backend.
	ErrNotRunning = errors.New("gpuvideo: backend not running")

	// ErrShuttingDown is returned to requests abandoned because the backend
	// is shutting down.
	ErrShuttingDown = errors.New("gpuvideo: shutting down")

	// ErrOverlappingCall is the panic value for lifecycle calls made while
	// another one is still running. Hosts must serialize these calls.
	ErrOverlappingCall = errors.New("gpuvideo: overlapping lifecycle call")

	// ErrContract is the panic value for other host contract violations,
	// such as initializing a subsystem twice.
	ErrContract = errors.New("gpuvideo: contract violation")
)

// SubsystemError reports which subsystem failed to initialize.
type SubsystemError struct {
	ID  SubsystemID
	Err error
}

func (e *SubsystemError) Error() string {
	return fmt.Sprintf("gpuvideo: init %s: %v", e.ID, e.Err)
}

func (e *SubsystemError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrSubsystemInit) hold for every SubsystemError.
func (e *SubsystemError) Is(target error) bool { return target == ErrSubsystemInit }
