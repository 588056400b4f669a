// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	_ "embed"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gogpu/naga"

	"github.com/gogpu/gpuvideo/internal/videocommon"
)

//go:embed shaders/vertex.wgsl
var vertexShaderBody string

//go:embed shaders/pixel.wgsl
var pixelShaderBody string

//go:embed shaders/clear.wgsl
var clearShaderSource string

// VertexShaderSource returns the WGSL for a vertex shader uid. The uid is
// expressed as module-scope constants ahead of the shared body.
func VertexShaderSource(uid videocommon.VSUid) string {
	var b strings.Builder
	fmt.Fprintf(&b, "const PERSPECTIVE: bool = %t;\n", uid.Perspective)
	fmt.Fprintf(&b, "const USE_COLOR: bool = %t;\n", uid.Color)
	fmt.Fprintf(&b, "const USE_TEX: bool = %t;\n\n", uid.Tex)
	b.WriteString(vertexShaderBody)
	return b.String()
}

// PixelShaderSource returns the WGSL for a pixel shader uid.
func PixelShaderSource(uid videocommon.PSUid) string {
	var b strings.Builder
	fmt.Fprintf(&b, "const STAGES: u32 = %du;\n", uid.Stages)
	fmt.Fprintf(&b, "const USE_TEXTURE: bool = %t;\n", uid.Texture)
	fmt.Fprintf(&b, "const COMBINE: u32 = %du;\n\n", uid.Combine)
	b.WriteString(pixelShaderBody)
	return b.String()
}

// compileSPIRV compiles WGSL source to SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	spirv, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(spirv)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V length %d is not a multiple of 4", len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	return words, nil
}
