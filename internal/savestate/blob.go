// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package savestate

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/sigurn/crc8"
)

// ErrCorrupt reports a malformed, truncated or mismatched blob.
var ErrCorrupt = errors.New("savestate: corrupt state blob")

// Magic identifies a StateBlob.
const Magic = "GPVS"

// Version is the blob layout version written by this package. Loading a
// blob with a different version fails; section order and contents are a
// structural contract.
const Version uint16 = 1

// HeaderSize is the encoded size of Header.
const HeaderSize = 14

// MaxPayload bounds the decoded payload of a compressed blob.
const MaxPayload = 64 << 20

// Header flags.
const (
	// FlagCompressed marks a snappy-compressed payload.
	FlagCompressed uint8 = 1 << iota
)

var blobCRC8 = crc8.MakeTable(crc8.Params{Poly: 0x07, Init: 0x00, RefIn: false, RefOut: false, XorOut: 0x00, Check: 0xF4, Name: "CRC-8 GPVS"})

// Header precedes the payload of every blob.
//
// Layout (little endian):
//
//	[0:4]   magic "GPVS"
//	[4:6]   version
//	[6:8]   section count
//	[8]     flags
//	[9]     crc8 of the stored payload
//	[10:14] stored payload length
type Header struct {
	Version    uint16
	Sections   uint16
	Flags      uint8
	Checksum   uint8
	PayloadLen uint32
}

// Section is one subsystem's serialized state.
type Section struct {
	ID   uint8
	Data []byte
}

func checksum(p []byte) uint8 {
	c := crc8.Init(blobCRC8)
	c = crc8.Update(c, p, blobCRC8)
	return crc8.Complete(c, blobCRC8)
}

// Pack frames sections into a blob. Sections are stored in the given order.
func Pack(sections []Section, compress bool) []byte {
	var raw []byte
	for _, s := range sections {
		raw = append(raw, s.ID)
		raw = binary.LittleEndian.AppendUint32(raw, uint32(len(s.Data))) //nolint:gosec // section sizes fit uint32
		raw = append(raw, s.Data...)
	}

	var flags uint8
	payload := raw
	if compress {
		payload = snappy.Encode(nil, raw)
		flags |= FlagCompressed
	}

	blob := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(blob[0:4], Magic)
	binary.LittleEndian.PutUint16(blob[4:6], Version)
	binary.LittleEndian.PutUint16(blob[6:8], uint16(len(sections))) //nolint:gosec // subsystem count fits uint16
	blob[8] = flags
	blob[9] = checksum(payload)
	binary.LittleEndian.PutUint32(blob[10:14], uint32(len(payload))) //nolint:gosec // payload size fits uint32
	return append(blob, payload...)
}

// ParseHeader decodes and validates the blob header in b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", ErrCorrupt, HeaderSize, len(b))
	}
	if string(b[0:4]) != Magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, b[0:4])
	}
	h := Header{
		Version:    binary.LittleEndian.Uint16(b[4:6]),
		Sections:   binary.LittleEndian.Uint16(b[6:8]),
		Flags:      b[8],
		Checksum:   b[9],
		PayloadLen: binary.LittleEndian.Uint32(b[10:14]),
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: version %d, want %d", ErrCorrupt, h.Version, Version)
	}
	if h.Flags&^FlagCompressed != 0 {
		return h, fmt.Errorf("%w: unknown flags %#x", ErrCorrupt, h.Flags)
	}
	return h, nil
}

// Unpack validates a blob at the start of b and returns its sections and
// the number of bytes it occupies. Trailing bytes after the blob are left
// to the caller.
func Unpack(b []byte) (Header, []Section, int, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return h, nil, 0, err
	}
	end := HeaderSize + int(h.PayloadLen)
	if end > len(b) {
		return h, nil, 0, fmt.Errorf("%w: payload of %d bytes truncated to %d", ErrCorrupt, h.PayloadLen, len(b)-HeaderSize)
	}
	payload := b[HeaderSize:end]
	if got := checksum(payload); got != h.Checksum {
		return h, nil, 0, fmt.Errorf("%w: checksum %#02x, want %#02x", ErrCorrupt, got, h.Checksum)
	}

	raw := payload
	if h.Flags&FlagCompressed != 0 {
		var n int
		if n, err = snappy.DecodedLen(payload); err != nil {
			return h, nil, 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if n > MaxPayload {
			return h, nil, 0, fmt.Errorf("%w: decoded payload of %d bytes exceeds %d", ErrCorrupt, n, MaxPayload)
		}
		raw, err = snappy.Decode(nil, payload)
		if err != nil {
			return h, nil, 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
	}

	sections := make([]Section, 0, h.Sections)
	for off := 0; off < len(raw); {
		if len(raw)-off < 5 {
			return h, nil, 0, fmt.Errorf("%w: truncated section header at %d", ErrCorrupt, off)
		}
		id := raw[off]
		n := int(binary.LittleEndian.Uint32(raw[off+1 : off+5]))
		off += 5
		if n > len(raw)-off {
			return h, nil, 0, fmt.Errorf("%w: section %d claims %d bytes, %d left", ErrCorrupt, id, n, len(raw)-off)
		}
		sections = append(sections, Section{ID: id, Data: raw[off : off+n]})
		off += n
	}
	if len(sections) != int(h.Sections) {
		return h, nil, 0, fmt.Errorf("%w: %d sections, header says %d", ErrCorrupt, len(sections), h.Sections)
	}
	return h, sections, end, nil
}
