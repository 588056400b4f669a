// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package osd

import (
	"testing"
	"time"
)

func newOSD(t *testing.T) *OSD {
	t.Helper()
	o, err := New(DefaultSize)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return o
}

func TestExpire(t *testing.T) {
	o := newOSD(t)
	o.AddMessage("short", time.Second)
	o.AddMessage("long", time.Hour)

	if n := o.Expire(time.Now()); n != 2 {
		t.Fatalf("Expire(now) = %d, want 2", n)
	}
	if n := o.Expire(time.Now().Add(time.Minute)); n != 1 {
		t.Fatalf("Expire(+1m) = %d, want 1", n)
	}
	if msgs := o.Messages(); len(msgs) != 1 || msgs[0].Text != "long" {
		t.Fatalf("Messages() = %+v, want [long]", msgs)
	}
	o.Clear()
	if n := len(o.Messages()); n != 0 {
		t.Errorf("len(Messages()) = %d after Clear, want 0", n)
	}
}

func TestMeasure(t *testing.T) {
	o := newOSD(t)
	if w := o.Measure(""); w != 0 {
		t.Errorf("Measure(\"\") = %v, want 0", w)
	}
	narrow, wide := o.Measure("iiii"), o.Measure("WWWW")
	if narrow <= 0 || wide <= narrow {
		t.Errorf("Measure(iiii) = %v, Measure(WWWW) = %v, want 0 < narrow < wide", narrow, wide)
	}
}

func TestLayout(t *testing.T) {
	o := newOSD(t)
	o.AddMessage("first", time.Hour)
	o.AddMessage("second message", time.Hour)

	lines := o.Layout(8, 8)
	if len(lines) != 2 {
		t.Fatalf("len(Layout()) = %d, want 2", len(lines))
	}
	if lines[0].X != 8 || lines[0].Y <= 8 {
		t.Errorf("line 0 at (%v, %v), want x = 8 and baseline below 8", lines[0].X, lines[0].Y)
	}
	if lines[1].Y <= lines[0].Y {
		t.Errorf("line 1 baseline %v not below line 0 baseline %v", lines[1].Y, lines[0].Y)
	}
	if lines[1].Width <= lines[0].Width {
		t.Errorf("line widths = %v, %v, want the longer message wider", lines[0].Width, lines[1].Width)
	}
	if lines[0].Height <= 0 {
		t.Errorf("line height = %v, want > 0", lines[0].Height)
	}
}
