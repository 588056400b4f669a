// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package videocommon

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpuvideo/internal/env"
	"github.com/gogpu/gpuvideo/internal/opcode"
)

// ErrNestedDisplayList is returned for CALL_DL inside a display list.
var ErrNestedDisplayList = errors.New("videocommon: nested display list")

// DrawCall is one decoded primitive batch handed to the renderer.
type DrawCall struct {
	Prim     opcode.Primitive
	Vertices []Vertex

	VS          VSUid
	VSConstants VSConstants
	PS          PSUid
	PSConstants PSConstants

	Texture  TextureImage
	Textured bool
}

// Sink receives the output of the opcode decoder.
type Sink interface {
	Draw(dc DrawCall) error
	CopyEFB(c EFBCopy) error
}

// DecoderStats counts decoded commands since Init.
type DecoderStats struct {
	Commands     uint64
	Draws        uint64
	Vertices     uint64
	DisplayLists uint64
}

// OpcodeDecoder executes command packets against the other subsystems.
type OpcodeDecoder struct {
	ctx    *env.Context
	bp     *BPMemory
	loader *VertexLoaderManager
	vs     *VertexShaderManager
	ps     *PixelShaderManager
	cp     *CommandProcessor
	pe     *PixelEngine
	dl     *DLCache
	sink   Sink

	stats DecoderStats
}

// DecoderDeps are the subsystems the decoder dispatches to.
type DecoderDeps struct {
	BP     *BPMemory
	Loader *VertexLoaderManager
	VS     *VertexShaderManager
	PS     *PixelShaderManager
	CP     *CommandProcessor
	PE     *PixelEngine
	DL     *DLCache
	Sink   Sink
}

// NewOpcodeDecoder wires a decoder to its subsystems.
func NewOpcodeDecoder(ctx *env.Context, deps DecoderDeps) *OpcodeDecoder {
	return &OpcodeDecoder{
		ctx:    ctx,
		bp:     deps.BP,
		loader: deps.Loader,
		vs:     deps.VS,
		ps:     deps.PS,
		cp:     deps.CP,
		pe:     deps.PE,
		dl:     deps.DL,
		sink:   deps.Sink,
	}
}

// Init resets the statistics.
func (d *OpcodeDecoder) Init() error {
	d.stats = DecoderStats{}
	return nil
}

// Shutdown is a no-op.
func (d *OpcodeDecoder) Shutdown() error { return nil }

// Stats returns the command counters.
func (d *OpcodeDecoder) Stats() DecoderStats { return d.stats }

// Execute runs every command in packet. A packet must hold whole
// commands; the first bad command aborts the rest of the packet.
func (d *OpcodeDecoder) Execute(packet []byte) error {
	err := d.run(packet, false)
	if d.cp != nil {
		d.cp.Consumed(len(packet))
	}
	return err
}

func (d *OpcodeDecoder) run(buf []byte, inList bool) error {
	r := opcode.NewReader(buf)
	for r.More() {
		at := r.Offset()
		cmd, err := r.Next()
		if err != nil {
			return fmt.Errorf("videocommon: at offset %d: %w", at, err)
		}
		d.stats.Commands++
		if err := d.dispatch(r, cmd, inList); err != nil {
			return fmt.Errorf("videocommon: %s at offset %d: %w", cmd.Op, at, err)
		}
	}
	return nil
}

func (d *OpcodeDecoder) dispatch(r *opcode.Reader, cmd opcode.Command, inList bool) error {
	switch {
	case cmd.Op == opcode.OpNop:
	case cmd.Op == opcode.OpInvalidateVtx:
		d.loader.InvalidateVertexCache()
	case cmd.Op == opcode.OpLoadCPReg:
		d.loader.LoadCPReg(cmd.Reg, cmd.Value)
	case cmd.Op == opcode.OpLoadXFReg:
		d.vs.LoadXF(cmd.Addr, cmd.Values)
	case cmd.Op == opcode.OpLoadBPReg:
		return d.writeBP(cmd.Reg, cmd.Value)
	case cmd.Op == opcode.OpCallDL:
		if inList {
			return ErrNestedDisplayList
		}
		list, err := d.dl.Fetch(cmd.ListAddr, cmd.ListSize)
		if err != nil {
			return err
		}
		d.stats.DisplayLists++
		return d.run(list, true)
	case cmd.Op.IsDraw():
		return d.draw(r, cmd)
	}
	return nil
}

func (d *OpcodeDecoder) writeBP(reg uint8, v uint32) error {
	d.bp.Write(reg, v)
	switch reg {
	case BPPEFinish:
		d.pe.SetFinish()
	case BPPEToken:
		d.pe.SetToken(uint16(v), false)
	case BPPETokenInt:
		d.pe.SetToken(uint16(v), true)
	case BPTriggerCopy:
		return d.sink.CopyEFB(d.bp.EFBCopy(v))
	}
	return nil
}

func (d *OpcodeDecoder) draw(r *opcode.Reader, cmd opcode.Command) error {
	l, err := d.loader.Loader(cmd.Op.VAT())
	if err != nil {
		return err
	}
	raw, err := r.VertexData(int(cmd.Count)*l.Stride, cmd.Op)
	if err != nil {
		return err
	}
	verts, err := l.Decode(raw, int(cmd.Count), d.loader.ReadArray)
	if err != nil {
		return err
	}
	d.stats.Draws++
	d.stats.Vertices += uint64(len(verts))

	dc := DrawCall{
		Prim:        cmd.Op.Primitive(),
		Vertices:    verts,
		VS:          d.vs.Uid(l.Format),
		VSConstants: d.vs.Constants(),
		PS:          d.ps.Uid(),
		PSConstants: d.ps.Constants(),
	}
	dc.Texture, dc.Textured = d.bp.TextureImage()
	return d.sink.Draw(dc)
}
