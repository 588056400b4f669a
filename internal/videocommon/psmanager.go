// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

// PSUid identifies a generated pixel shader.
type PSUid struct {
	Stages  uint8
	Texture bool
	// Combine selects how texture and rasterized color are combined.
	Combine uint8
}

// PSConstants are the TEV color registers as normalized RGBA.
type PSConstants struct {
	Colors [4][4]float32
}

// PixelShaderManager derives pixel shader constants and uids from BP
// memory. It holds no state of its own.
type PixelShaderManager struct {
	bp    *BPMemory
	dirty bool

	uid       PSUid
	constants PSConstants
}

// NewPixelShaderManager returns a manager reading bp.
func NewPixelShaderManager(bp *BPMemory) *PixelShaderManager {
	return &PixelShaderManager{bp: bp, dirty: true}
}

// Init marks everything dirty.
func (m *PixelShaderManager) Init() error {
	m.MarkDirty()
	return nil
}

// Shutdown is a no-op.
func (m *PixelShaderManager) Shutdown() error { return nil }

// MarkDirty forces the next Uid or Constants call to re-read BP memory.
func (m *PixelShaderManager) MarkDirty() { m.dirty = true }

func (m *PixelShaderManager) refresh() {
	if !m.bp.TakeTevDirty() && !m.dirty {
		return
	}
	m.dirty = false
	gen := m.bp.Reg(BPGenMode)
	_, tex := m.bp.TextureImage()
	m.uid = PSUid{
		Stages:  uint8(gen>>10&0xF) + 1,
		Texture: tex && gen&0xF != 0,
		Combine: uint8(gen >> 16 & 3),
	}
	for i := range m.constants.Colors {
		lo := m.bp.Reg(BPTevColorFirst + uint8(2*i))     //nolint:gosec // i < 4
		hi := m.bp.Reg(BPTevColorFirst + uint8(2*i) + 1) //nolint:gosec // i < 4
		m.constants.Colors[i] = [4]float32{
			unorm11(lo),       // R
			unorm11(hi >> 12), // G
			unorm11(hi),       // B
			unorm11(lo >> 12), // A
		}
	}
}

// unorm11 converts the low 11 bits of a signed TEV color component.
func unorm11(v uint32) float32 {
	s := int32(v<<21) >> 21 //nolint:gosec // sign extension
	return float32(s) / 255
}

// Uid returns the current pixel shader uid.
func (m *PixelShaderManager) Uid() PSUid {
	m.refresh()
	return m.uid
}

// Constants returns the current pixel shader constants.
func (m *PixelShaderManager) Constants() PSConstants {
	m.refresh()
	return m.constants
}
