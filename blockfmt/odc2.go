// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package blockfmt implements the ODC2 indexed block
// container: groups of packets compressed together with
// a shared trained dictionary, addressed by a block
// table, with an optional trailing block-bloom footer
// for keyword pre-screening.
//
// A reader consults the block table to decode any
// packet sub-range without touching unrelated blocks.
package blockfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic is the container wire magic.
	Magic = "ODC2"
	// Version is the highest container version this
	// package can decode.
	Version = 1
	// FooterMagic tags the optional block-bloom footer.
	FooterMagic = "BB01"

	// DefaultGroupSize is the number of packets
	// compressed together per block.
	DefaultGroupSize = 4
)

var (
	// ErrFormat reports a structurally invalid container.
	ErrFormat = errors.New("blockfmt: format error")
	// ErrVersion reports a container version newer than
	// this package understands.
	ErrVersion = errors.New("blockfmt: unsupported version")
	// ErrRange reports a selective-decode range outside
	// the container's packet range. Caller-recoverable.
	ErrRange = errors.New("blockfmt: packet range out of bounds")
)

// Blockdesc describes one compressed block in the
// block table.
type Blockdesc struct {
	// Offset is the byte offset of the compressed block
	// within the block-bodies region.
	Offset uint64
	// Length is the compressed length in bytes.
	Length uint64
	// FirstPacket is the index of the first packet
	// stored in this block. FirstPacket values are
	// strictly monotonic and adjacent blocks cover
	// contiguous packet ranges.
	FirstPacket uint32
}

// frame concatenates a group of packets with u32-LE
// length prefixes; the inverse of splitGroup.
func frame(group [][]byte) []byte {
	n := 0
	for _, p := range group {
		n += 4 + len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range group {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}
	return out
}

func splitGroup(body []byte, want int) ([][]byte, error) {
	var out [][]byte
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, fmt.Errorf("%w: truncated packet length prefix", ErrFormat)
		}
		n := int(binary.LittleEndian.Uint32(body))
		body = body[4:]
		if n > len(body) {
			return nil, fmt.Errorf("%w: packet length %d exceeds block body", ErrFormat, n)
		}
		out = append(out, body[:n:n])
		body = body[n:]
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: block carries %d packets, table implies %d", ErrFormat, len(out), want)
	}
	return out, nil
}
