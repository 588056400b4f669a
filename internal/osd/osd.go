// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package osd keeps the on-screen messages of the video backend and lays
// them out for presentation.
package osd

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// DefaultSize is the default font size in pixels.
const DefaultSize = 14

// Message is a queued on-screen message.
type Message struct {
	Text    string
	Expires time.Time
}

// Line is a message positioned for drawing. Y is the baseline.
type Line struct {
	Text          string
	X, Y          float64
	Width, Height float64
}

// OSD is a list of timed messages. It is safe for concurrent use: the host
// adds messages from its goroutine while the renderer expires and lays them
// out at frame boundaries.
type OSD struct {
	mu       sync.Mutex
	messages []Message

	face   *font.Face
	size   fixed.Int26_6
	shaper shaping.HarfbuzzShaper
}

// New returns an OSD using Go Regular at size pixels.
func New(size float64) (*OSD, error) {
	if size <= 0 {
		size = DefaultSize
	}
	face, err := font.ParseTTF(bytes.NewReader(goregular.TTF))
	if err != nil {
		return nil, fmt.Errorf("osd: parse font: %w", err)
	}
	return &OSD{face: face, size: fixed.Int26_6(size * 64)}, nil
}

// AddMessage shows text for d.
func (o *OSD) AddMessage(text string, d time.Duration) {
	o.mu.Lock()
	o.messages = append(o.messages, Message{Text: text, Expires: time.Now().Add(d)})
	o.mu.Unlock()
}

// Expire drops messages that expired at now and returns how many remain.
func (o *OSD) Expire(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.messages[:0]
	for _, m := range o.messages {
		if now.Before(m.Expires) {
			kept = append(kept, m)
		}
	}
	clear(o.messages[len(kept):])
	o.messages = kept
	return len(kept)
}

// Clear drops every message.
func (o *OSD) Clear() {
	o.mu.Lock()
	o.messages = nil
	o.mu.Unlock()
}

// Messages returns the queued messages, oldest first.
func (o *OSD) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// Measure returns the advance width of text in pixels.
func (o *OSD) Measure(text string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.shape(text)
	return float64(out.Advance) / 64
}

// Layout positions the queued messages top-down starting at (x, y).
func (o *OSD) Layout(x, y float64) []Line {
	o.mu.Lock()
	defer o.mu.Unlock()

	lines := make([]Line, 0, len(o.messages))
	for _, m := range o.messages {
		out := o.shape(m.Text)
		b := out.LineBounds
		height := float64(b.Ascent-b.Descent+b.Gap) / 64
		lines = append(lines, Line{
			Text:   m.Text,
			X:      x,
			Y:      y + float64(b.Ascent)/64,
			Width:  float64(out.Advance) / 64,
			Height: height,
		})
		y += height
	}
	return lines
}

// shape runs the shaper over text. Caller must hold o.mu.
func (o *OSD) shape(text string) shaping.Output {
	runes := []rune(text)
	return o.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      o.face,
		Size:      o.size,
		Script:    language.Latin,
		Language:  language.NewLanguage("en"),
	})
}
