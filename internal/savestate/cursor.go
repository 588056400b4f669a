// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package savestate provides the StateBlob format used by DoState: a cursor
// over a host-owned buffer, field encoders and decoders, and the versioned
// header that frames the per-subsystem sections.
package savestate

import "fmt"

// Mode selects the direction of a DoState call.
type Mode uint8

const (
	// ModeRead restores subsystem state from the blob at the cursor.
	ModeRead Mode = iota
	// ModeWrite appends a blob at the cursor.
	ModeWrite
	// ModeMeasure advances the cursor by the size a ModeWrite call would
	// produce, without writing anything.
	ModeMeasure
)

var modeNames = [...]string{
	ModeRead:    "read",
	ModeWrite:   "write",
	ModeMeasure: "measure",
}

// String returns the lowercase mode name.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Cursor is a read/write position over a byte buffer owned by the host.
// The backend never keeps a reference to the buffer after DoState returns.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
// For ModeWrite, buf may be nil; the cursor grows it as needed.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Bytes returns the whole underlying buffer, including bytes before the
// current offset.
func (c *Cursor) Bytes() []byte { return c.buf }

// Offset returns the current position.
func (c *Cursor) Offset() int { return c.off }

// Remaining returns the bytes between the current position and the end of
// the buffer.
func (c *Cursor) Remaining() []byte {
	if c.off >= len(c.buf) {
		return nil
	}
	return c.buf[c.off:]
}

// Write stores p at the current position, growing the buffer when needed,
// and advances past it.
func (c *Cursor) Write(p []byte) {
	end := c.off + len(p)
	if end > len(c.buf) {
		if end > cap(c.buf) {
			grown := make([]byte, end, max(end, 2*cap(c.buf)))
			copy(grown, c.buf)
			c.buf = grown
		} else {
			c.buf = c.buf[:end]
		}
	}
	copy(c.buf[c.off:end], p)
	c.off = end
}

// Skip advances the position by n bytes without touching the buffer.
// Used by ModeMeasure.
func (c *Cursor) Skip(n int) {
	c.off += n
}

// Advance moves the position forward by n bytes that were consumed from
// Remaining. It fails if fewer than n bytes remain.
func (c *Cursor) Advance(n int) error {
	if n < 0 || c.off+n > len(c.buf) {
		return fmt.Errorf("%w: advance %d past end (offset %d, length %d)", ErrCorrupt, n, c.off, len(c.buf))
	}
	c.off += n
	return nil
}
