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

	"golang.org/x/exp/slices"

	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/compr"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// PFQ1 blob magic and version (query-oriented).
const (
	MagicPFQ1   = "PFQ1"
	VersionPFQ1 = 1
)

type pfq1Packet struct {
	eids    []int
	filter  *bloom.Filter
	payload []byte // compressed line channel
}

// PFQ1 is the query-oriented blob: one packet per group
// of input lines, each carrying a bloom filter over the
// group's tokens, the set of event IDs observed in the
// group, and the group's lines themselves (compressed).
// Bloom parameters are fixed per archive in the blob
// header.
//
// Because every packet carries its group's raw lines,
// an archive with zero template coverage still yields
// line-carrying packets and stays queryable.
type PFQ1 struct {
	// Bits and K are the archive-wide bloom parameters.
	Bits int
	K    int

	packets []pfq1Packet
}

// BuildPFQ1 encodes the query blob. rows must be
// aligned with lines (one row per line).
func BuildPFQ1(lines []string, rows []tmpl.Row, prof *Profile) ([]byte, error) {
	if prof == nil {
		prof = DefaultProfile()
	} else {
		prof.fill()
	}
	out := []byte(MagicPFQ1)
	out = binary.LittleEndian.AppendUint32(out, VersionPFQ1)
	out = binary.LittleEndian.AppendUint32(out, uint32(prof.BloomBits))
	out = binary.LittleEndian.AppendUint32(out, uint32(prof.BloomK))
	npackets := (len(lines) + prof.ChunkLines - 1) / prof.ChunkLines
	out = packet.AppendUvarint(out, uint64(npackets))
	err := chunks(len(lines), prof.ChunkLines, func(lo, hi int) error {
		f, err := bloom.New(prof.BloomBits, prof.BloomK)
		if err != nil {
			return err
		}
		var eids []int
		for i := lo; i < hi; i++ {
			f.AddLine(lines[i])
			if rows[i].IsEvent() && !slices.Contains(eids, rows[i].ID) {
				eids = append(eids, rows[i].ID)
			}
		}
		slices.Sort(eids)
		var raw []byte
		raw = packet.AppendUvarint(raw, uint64(hi-lo))
		for i := lo; i < hi; i++ {
			raw = packet.AppendUvarint(raw, uint64(len(lines[i])))
			raw = append(raw, lines[i]...)
		}
		payload := compr.Compress(raw, prof.ZstdLevel)

		out = packet.AppendUvarint(out, uint64(len(eids)))
		for _, eid := range eids {
			out = packet.AppendUvarint(out, uint64(eid))
		}
		bm := f.Bitmap()
		out = packet.AppendUvarint(out, uint64(len(bm)))
		out = append(out, bm...)
		out = packet.AppendUvarint(out, uint64(len(payload)))
		out = append(out, payload...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParsePFQ1 indexes a query blob; packet payloads stay
// compressed until scanned.
func ParsePFQ1(blob []byte) (*PFQ1, error) {
	off, err := readHeader(blob, MagicPFQ1, VersionPFQ1)
	if err != nil {
		return nil, err
	}
	q := new(PFQ1)
	q.Bits, off, err = readU32(blob, off)
	if err != nil {
		return nil, err
	}
	q.K, off, err = readU32(blob, off)
	if err != nil {
		return nil, err
	}
	npackets, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	q.packets = make([]pfq1Packet, npackets)
	for i := 0; i < npackets; i++ {
		var ne int
		ne, off, err = packet.UvarintLen(blob, off)
		if err != nil {
			return nil, err
		}
		eids := make([]int, ne)
		for j := 0; j < ne; j++ {
			var e uint64
			e, off, err = packet.Uvarint(blob, off)
			if err != nil {
				return nil, err
			}
			eids[j] = int(e)
		}
		var blen int
		blen, off, err = packet.UvarintLen(blob, off)
		if err != nil {
			return nil, err
		}
		if blen*8 != q.Bits {
			return nil, fmt.Errorf("%w: PFQ1 packet %d bitmap is %d bytes, header wants %d bits",
				ErrFormat, i, blen, q.Bits)
		}
		var bm []byte
		bm, off, err = readBytes(blob, off, blen)
		if err != nil {
			return nil, err
		}
		f, err := bloom.FromBitmap(bm, q.K)
		if err != nil {
			return nil, fmt.Errorf("%w: PFQ1 packet %d: %s", ErrFormat, i, err)
		}
		var plen int
		plen, off, err = packet.UvarintLen(blob, off)
		if err != nil {
			return nil, err
		}
		var payload []byte
		payload, off, err = readBytes(blob, off, plen)
		if err != nil {
			return nil, err
		}
		q.packets[i] = pfq1Packet{eids: eids, filter: f, payload: payload}
	}
	if off != len(blob) {
		return nil, fmt.Errorf("%w: %d trailing bytes after PFQ1 packets", ErrFormat, len(blob)-off)
	}
	return q, nil
}

// Packets returns the number of packets in the blob.
func (q *PFQ1) Packets() int { return len(q.packets) }

// Probe reports whether every token may be present in
// packet i; a false return definitively excludes the
// packet.
func (q *PFQ1) Probe(i int, toks []string) bool {
	return q.packets[i].filter.HasAll(toks)
}

// EventIDs returns the sorted event-ID set of packet i.
func (q *PFQ1) EventIDs(i int) []int { return q.packets[i].eids }

// Lines decompresses and returns the lines of packet i
// in input order.
func (q *PFQ1) Lines(i int) ([]string, error) {
	raw, err := compr.Decompress(q.packets[i].payload)
	if err != nil {
		return nil, err
	}
	count, pos, err := packet.UvarintLen(raw, 0)
	if err != nil {
		return nil, err
	}
	lines := make([]string, count)
	for j := 0; j < count; j++ {
		var n int
		n, pos, err = packet.UvarintLen(raw, pos)
		if err != nil {
			return nil, err
		}
		var v []byte
		v, pos, err = readBytes(raw, pos, n)
		if err != nil {
			return nil, err
		}
		lines[j] = string(v)
	}
	if pos != len(raw) {
		return nil, fmt.Errorf("%w: trailing bytes in PFQ1 packet %d", ErrFormat, i)
	}
	return lines, nil
}

// AllLines concatenates every packet's lines, restoring
// the archive's full line sequence.
func (q *PFQ1) AllLines() ([]string, error) {
	var out []string
	for i := range q.packets {
		lines, err := q.Lines(i)
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}
