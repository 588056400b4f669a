// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build debug

package gpuvideo

import "fmt"

const flavourSuffix = " (Debug)"

// invariant panics when ok is false.
func invariant(ok bool, format string, args ...any) {
	if !ok {
		panic(fmt.Errorf("%w: %s", ErrContract, fmt.Sprintf(format, args...)))
	}
}
