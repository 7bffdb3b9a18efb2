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

	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// USCH container magic and version (hot, queryable).
const (
	MagicUSCH   = "USCH"
	VersionUSCH = 1
)

// USCH is a parsed hot container: the PF1 recall blob
// and the PFQ1 query blob. Both are read-only and may
// be shared between concurrent queries.
type USCH struct {
	PF1  *PF1
	PFQ1 *PFQ1
}

// EncodeUSCH builds the hot container from raw lines
// and a template bank: the PF1 and PFQ1 blobs
// concatenated with u32-LE length prefixes.
func EncodeUSCH(lines []string, bank *tmpl.Bank, prof *Profile) ([]byte, error) {
	if prof == nil {
		prof = DefaultProfile()
	} else {
		prof.fill()
	}
	rows := tmpl.ParseLinesRows(lines, bank)
	pf1, err := BuildPF1(rows, bank)
	if err != nil {
		return nil, err
	}
	pfq1, err := BuildPFQ1(lines, rows, prof)
	if err != nil {
		return nil, err
	}
	out := []byte(MagicUSCH)
	out = binary.LittleEndian.AppendUint32(out, VersionUSCH)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pf1)))
	out = append(out, pf1...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(pfq1)))
	out = append(out, pfq1...)
	return out, nil
}

// ParseUSCH validates and indexes a hot container.
func ParseUSCH(blob []byte) (*USCH, error) {
	off, err := readHeader(blob, MagicUSCH, VersionUSCH)
	if err != nil {
		return nil, err
	}
	n, off, err := readU32(blob, off)
	if err != nil {
		return nil, err
	}
	pf1Blob, off, err := readBytes(blob, off, n)
	if err != nil {
		return nil, err
	}
	n, off, err = readU32(blob, off)
	if err != nil {
		return nil, err
	}
	pfq1Blob, off, err := readBytes(blob, off, n)
	if err != nil {
		return nil, err
	}
	if off != len(blob) {
		return nil, fmt.Errorf("%w: %d trailing bytes after PFQ1 blob", ErrFormat, len(blob)-off)
	}
	pf1, err := ParsePF1(pf1Blob)
	if err != nil {
		return nil, err
	}
	pfq1, err := ParsePFQ1(pfq1Blob)
	if err != nil {
		return nil, err
	}
	return &USCH{PF1: pf1, PFQ1: pfq1}, nil
}

// DecodeUSCH reconstructs the archive's lines. The PFQ1
// blob carries every input line, so the hot container
// round-trips without a sidecar.
func DecodeUSCH(blob []byte) ([]string, error) {
	u, err := ParseUSCH(blob)
	if err != nil {
		return nil, err
	}
	return u.PFQ1.AllLines()
}
