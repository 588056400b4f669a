// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package window provides the render surface of the video backend. The
// window is headless: presented frames are scaled into a back buffer that
// hosts and tests can inspect, and host messages arrive through a queue
// drained by PumpMessages.
package window

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"golang.org/x/image/draw"

	"github.com/gogpu/gpuvideo/internal/osd"
)

var (
	// ErrClosed is returned by operations on a closed window.
	ErrClosed = errors.New("window: closed")

	// ErrInvalidSize is returned for non-positive window sizes.
	ErrInvalidSize = errors.New("window: invalid size")
)

// Handle is an opaque window handle handed back to the host.
type Handle uintptr

var nextHandle atomic.Uintptr

// Message is a host message delivered to the window.
type Message uint8

const (
	MsgNone Message = iota
	MsgPaint
	MsgResize
	MsgQuit
)

// Window is a headless render window. It is safe for concurrent use.
type Window struct {
	mu     sync.Mutex
	handle Handle
	parent Handle
	title  string

	back    *image.RGBA
	overlay []osd.Line
	queue   []Message
	pending struct{ w, h int }

	presented uint64
	quit      bool
	closed    bool
}

// Create makes a window of w×h pixels. parent is recorded and returned by
// Parent; a zero parent means a top-level window.
func Create(parent Handle, title string, w, h int) (*Window, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, w, h)
	}
	return &Window{
		handle: Handle(nextHandle.Add(1)),
		parent: parent,
		title:  title,
		back:   image.NewRGBA(image.Rect(0, 0, w, h)),
	}, nil
}

// Handle returns the window handle.
func (w *Window) Handle() Handle { return w.handle }

// Parent returns the parent handle given to Create.
func (w *Window) Parent() Handle { return w.parent }

// Title returns the window title.
func (w *Window) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}

// SetTitle changes the window title.
func (w *Window) SetTitle(title string) {
	w.mu.Lock()
	w.title = title
	w.mu.Unlock()
}

// Size returns the back buffer size.
func (w *Window) Size() (width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b := w.back.Bounds()
	return b.Dx(), b.Dy()
}

// Present scales frame into the back buffer and records the overlay.
func (w *Window) Present(frame image.Image, overlay []osd.Line) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	draw.ApproxBiLinear.Scale(w.back, w.back.Bounds(), frame, frame.Bounds(), draw.Src, nil)
	w.overlay = append(w.overlay[:0], overlay...)
	w.presented++
	return nil
}

// Presented returns the number of frames presented.
func (w *Window) Presented() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.presented
}

// Frame returns a copy of the back buffer.
func (w *Window) Frame() *image.RGBA {
	w.mu.Lock()
	defer w.mu.Unlock()
	img := image.NewRGBA(w.back.Bounds())
	copy(img.Pix, w.back.Pix)
	return img
}

// Overlay returns the OSD lines of the last presented frame.
func (w *Window) Overlay() []osd.Line {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]osd.Line(nil), w.overlay...)
}

// Post queues a host message.
func (w *Window) Post(m Message) {
	w.mu.Lock()
	w.queue = append(w.queue, m)
	w.mu.Unlock()
}

// Resize queues a resize to width×height, applied by PumpMessages.
func (w *Window) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	w.mu.Lock()
	w.pending.w, w.pending.h = width, height
	w.queue = append(w.queue, MsgResize)
	w.mu.Unlock()
	return nil
}

// PumpMessages drains the message queue. It returns false once a quit
// message was seen or the window was closed.
func (w *Window) PumpMessages() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range w.queue {
		switch m {
		case MsgQuit:
			w.quit = true
		case MsgResize:
			if p := w.pending; p.w > 0 {
				w.back = image.NewRGBA(image.Rect(0, 0, p.w, p.h))
			}
		}
	}
	w.queue = w.queue[:0]
	return !w.quit && !w.closed
}

// Close releases the back buffer. Closing twice is harmless.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.queue = nil
	w.overlay = nil
	return nil
}

// Closed reports whether Close was called.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
