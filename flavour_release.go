// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !debug

package gpuvideo

const flavourSuffix = ""

// invariant is a no-op in release builds.
func invariant(bool, string, ...any) {}
