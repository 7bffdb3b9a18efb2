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

package archive

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/maddwiz/UnifiedStateCodec-sub001/compr"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// TPF3 container magic and version (hot-lite-full).
const (
	MagicTPF3   = "TPF3"
	VersionTPF3 = 1
)

// EncodeTPF3 builds the hot-lite-full container: the
// template CSV text embedded up front, followed by the
// H1M2 packets, each compressed plain. The container is
// fully self-describing; no sidecar is needed to decode.
func EncodeTPF3(lines []string, bank *tmpl.Bank, prof *Profile) ([]byte, error) {
	if prof == nil {
		prof = DefaultProfile()
	} else {
		prof.fill()
	}
	rows := tmpl.ParseLinesRows(lines, bank)
	csvText := bank.MarshalCSV()

	out := []byte(MagicTPF3)
	out = binary.LittleEndian.AppendUint32(out, VersionTPF3)
	out = packet.AppendUvarint(out, uint64(len(csvText)))
	out = append(out, csvText...)
	npackets := (len(rows) + prof.PacketEvents - 1) / prof.PacketEvents
	out = packet.AppendUvarint(out, uint64(npackets))
	chunks(len(rows), prof.PacketEvents, func(lo, hi int) error {
		comp := compr.Compress(packet.Encode(rows[lo:hi]), prof.ZstdLevel)
		out = packet.AppendUvarint(out, uint64(len(comp)))
		out = append(out, comp...)
		return nil
	})
	return out, nil
}

// DecodeTPF3 reconstructs the archive's lines from a
// TPF3 container.
func DecodeTPF3(blob []byte) ([]string, error) {
	off, err := readHeader(blob, MagicTPF3, VersionTPF3)
	if err != nil {
		return nil, err
	}
	clen, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	csvText, off, err := readBytes(blob, off, clen)
	if err != nil {
		return nil, err
	}
	bank, err := tmpl.FromCSV(strings.NewReader(string(csvText)))
	if err != nil {
		return nil, err
	}
	npackets, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	var lines []string
	for i := 0; i < npackets; i++ {
		var plen int
		plen, off, err = packet.UvarintLen(blob, off)
		if err != nil {
			return nil, err
		}
		var comp []byte
		comp, off, err = readBytes(blob, off, plen)
		if err != nil {
			return nil, err
		}
		raw, err := compr.Decompress(comp)
		if err != nil {
			return nil, err
		}
		d, err := packet.Decode(raw)
		if err != nil {
			return nil, err
		}
		rendered, err := d.RenderLines(bank)
		if err != nil {
			return nil, err
		}
		lines = append(lines, rendered...)
	}
	if off != len(blob) {
		return nil, fmt.Errorf("%w: %d trailing bytes after packets", ErrFormat, len(blob)-off)
	}
	return lines, nil
}
