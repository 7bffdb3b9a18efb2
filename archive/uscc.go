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
	"strings"

	"github.com/maddwiz/UnifiedStateCodec-sub001/blockfmt"
	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// USCC container magic and version (cold archival).
const (
	MagicUSCC   = "USCC"
	VersionUSCC = 1
)

// EncodeUSCC builds the cold container: the template
// CSV text (so cold archives decode with no sidecar),
// followed by an ODC2 block container holding the H1M2
// packets, with a block-bloom footer for keyword
// pre-screening.
func EncodeUSCC(lines []string, bank *tmpl.Bank, prof *Profile) ([]byte, error) {
	if prof == nil {
		prof = DefaultProfile()
	} else {
		prof.fill()
	}
	rows := tmpl.ParseLinesRows(lines, bank)
	var packets [][]byte
	var tokens [][]string
	chunks(len(rows), prof.PacketEvents, func(lo, hi int) error {
		packets = append(packets, packet.Encode(rows[lo:hi]))
		var toks []string
		for i := lo; i < hi; i++ {
			toks = append(toks, bloom.Tokenize(lines[i])...)
		}
		tokens = append(tokens, toks)
		return nil
	})
	w := &blockfmt.Writer{
		GroupSize:  prof.GroupSize,
		Level:      prof.ZstdLevel,
		DictTarget: prof.DictTarget,
		BloomBits:  prof.BloomBits,
		BloomK:     prof.BloomK,
	}
	odc2, err := w.Encode(packets, tokens)
	if err != nil {
		return nil, err
	}
	csvText := bank.MarshalCSV()
	out := []byte(MagicUSCC)
	out = binary.LittleEndian.AppendUint32(out, VersionUSCC)
	out = packet.AppendUvarint(out, uint64(len(csvText)))
	out = append(out, csvText...)
	out = append(out, odc2...)
	return out, nil
}

// ParseUSCC unwraps a cold container into its template
// bank and its ODC2 reader. Block bodies are not
// touched until decoded.
func ParseUSCC(blob []byte) (*tmpl.Bank, *blockfmt.Reader, error) {
	off, err := readHeader(blob, MagicUSCC, VersionUSCC)
	if err != nil {
		return nil, nil, err
	}
	n, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, nil, err
	}
	csvText, off, err := readBytes(blob, off, n)
	if err != nil {
		return nil, nil, err
	}
	bank, err := tmpl.FromCSV(strings.NewReader(string(csvText)))
	if err != nil {
		return nil, nil, err
	}
	r, err := blockfmt.Parse(blob[off:])
	if err != nil {
		return nil, nil, err
	}
	return bank, r, nil
}

// DecodeUSCC reconstructs the archive's lines from a
// cold container.
func DecodeUSCC(blob []byte) ([]string, error) {
	bank, r, err := ParseUSCC(blob)
	if err != nil {
		return nil, err
	}
	packets, err := r.DecodeAll()
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, pkt := range packets {
		d, err := packet.Decode(pkt)
		if err != nil {
			return nil, err
		}
		rendered, err := d.RenderLines(bank)
		if err != nil {
			return nil, err
		}
		lines = append(lines, rendered...)
	}
	return lines, nil
}
