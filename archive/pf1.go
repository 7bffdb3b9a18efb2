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

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/maddwiz/UnifiedStateCodec-sub001/compr"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// PF1 blob magic and version (recall-oriented).
const (
	MagicPF1   = "TPF1"
	VersionPF1 = 0
)

// pf1Section locates one event's compressed occurrence
// section within the section region.
type pf1Section struct {
	off int
	n   int
}

// PF1 is the recall-oriented blob: per event ID, the
// compressed list of line positions and slot values,
// indexed so that recalling one event touches only that
// event's section. Sections are s2-compressed: recall
// is random-access and favors decompression speed over
// ratio.
type PF1 struct {
	templates map[int]string // event ID -> pattern
	order     []int          // event IDs in stored order
	sections  map[int]pf1Section
	region    []byte
}

// Line is one recalled line with its position in the
// original archive.
type Line struct {
	No   int
	Text string
}

// BuildPF1 encodes the recall blob from factored rows;
// a row's index is its line position.
func BuildPF1(rows []tmpl.Row, bank *tmpl.Bank) ([]byte, error) {
	type occ struct {
		line  int
		slots []string
	}
	occs := make(map[int][]occ)
	for i := range rows {
		if !rows[i].IsEvent() {
			continue
		}
		occs[rows[i].ID] = append(occs[rows[i].ID], occ{line: i, slots: rows[i].Slots})
	}

	out := []byte(MagicPF1)
	out = binary.LittleEndian.AppendUint32(out, VersionPF1)
	all := bank.All()
	out = packet.AppendUvarint(out, uint64(len(all)))
	for i := range all {
		out = packet.AppendUvarint(out, uint64(all[i].ID))
		out = packet.AppendUvarint(out, uint64(len(all[i].Pattern)))
		out = append(out, all[i].Pattern...)
	}

	eids := maps.Keys(occs)
	slices.Sort(eids)
	var region []byte
	type dirent struct{ eid, off, n int }
	dir := make([]dirent, 0, len(eids))
	for _, eid := range eids {
		var sec []byte
		sec = packet.AppendUvarint(sec, uint64(len(occs[eid])))
		prior := 0
		for _, o := range occs[eid] {
			sec = packet.AppendUvarint(sec, uint64(o.line-prior))
			prior = o.line
			for _, s := range o.slots {
				sec = packet.AppendUvarint(sec, uint64(len(s)))
				sec = append(sec, s...)
			}
		}
		comp := compr.Compression("s2", 0).Compress(sec, nil)
		dir = append(dir, dirent{eid: eid, off: len(region), n: len(comp)})
		region = append(region, comp...)
	}
	out = packet.AppendUvarint(out, uint64(len(dir)))
	for _, d := range dir {
		out = packet.AppendUvarint(out, uint64(d.eid))
		out = packet.AppendUvarint(out, uint64(d.off))
		out = packet.AppendUvarint(out, uint64(d.n))
	}
	out = append(out, region...)
	return out, nil
}

// ParsePF1 indexes a recall blob. Sections stay
// compressed until recalled.
func ParsePF1(blob []byte) (*PF1, error) {
	off, err := readHeader(blob, MagicPF1, VersionPF1)
	if err != nil {
		return nil, err
	}
	ntpl, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	p := &PF1{
		templates: make(map[int]string, ntpl),
		sections:  make(map[int]pf1Section),
	}
	for i := 0; i < ntpl; i++ {
		var eid64 uint64
		var n int
		eid64, off, err = packet.Uvarint(blob, off)
		if err != nil {
			return nil, err
		}
		eid := int(eid64)
		n, off, err = packet.UvarintLen(blob, off)
		if err != nil {
			return nil, err
		}
		var pat []byte
		pat, off, err = readBytes(blob, off, n)
		if err != nil {
			return nil, err
		}
		if _, dup := p.templates[eid]; dup {
			return nil, fmt.Errorf("%w: duplicate event ID %d in PF1", ErrFormat, eid)
		}
		p.templates[eid] = string(pat)
		p.order = append(p.order, eid)
	}
	nsec, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	type dirent struct{ eid, off, n int }
	dir := make([]dirent, nsec)
	for i := range dir {
		var eid64 uint64
		eid64, off, err = packet.Uvarint(blob, off)
		if err != nil {
			return nil, err
		}
		dir[i].eid = int(eid64)
		dir[i].off, off, err = packet.UvarintLen(blob, off)
		if err != nil {
			return nil, err
		}
		dir[i].n, off, err = packet.UvarintLen(blob, off)
		if err != nil {
			return nil, err
		}
	}
	p.region = blob[off:]
	for _, d := range dir {
		if d.off+d.n > len(p.region) {
			return nil, fmt.Errorf("%w: PF1 section for event %d out of range", ErrFormat, d.eid)
		}
		if _, ok := p.templates[d.eid]; !ok {
			return nil, fmt.Errorf("%w: PF1 section for undeclared event %d", ErrFormat, d.eid)
		}
		p.sections[d.eid] = pf1Section{off: d.off, n: d.n}
	}
	return p, nil
}

// Templates returns event ID -> pattern for every
// declared template. The map aliases the index.
func (p *PF1) Templates() map[int]string { return p.templates }

// Recall decodes up to limit occurrences of one event
// and renders them, in line order. An event with no
// occurrences (or an unknown event) recalls nothing.
func (p *PF1) Recall(eid, limit int) ([]Line, error) {
	sec, ok := p.sections[eid]
	if !ok {
		return nil, nil
	}
	pattern := p.templates[eid]
	arity := strings.Count(pattern, tmpl.Slot)
	raw, err := compr.Decompression("s2").Decompress(p.region[sec.off:sec.off+sec.n], nil)
	if err != nil {
		return nil, err
	}
	count, pos, err := packet.UvarintLen(raw, 0)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > count {
		limit = count
	}
	out := make([]Line, 0, limit)
	line := 0
	for i := 0; i < limit; i++ {
		var delta uint64
		delta, pos, err = packet.Uvarint(raw, pos)
		if err != nil {
			return nil, err
		}
		line += int(delta)
		slots := make([]string, arity)
		for j := 0; j < arity; j++ {
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
			slots[j] = string(v)
		}
		text, err := tmpl.RenderPattern(pattern, slots)
		if err != nil {
			return nil, err
		}
		out = append(out, Line{No: line, Text: text})
	}
	return out, nil
}
