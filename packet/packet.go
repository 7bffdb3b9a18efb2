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

// Package packet implements the H1M2 row-mask packet:
// the wire encoding of one group of factored rows.
//
// A packet carries an event row-mask (bit i set means
// row i is an event), the template-ID channel as
// zig-zag deltas, one value channel per slot position,
// and the embedded unknown lines. Decoding a packet and
// rendering its rows against the originating template
// bank reproduces the input lines byte-for-byte.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// Magic is the packet wire magic.
const Magic = "H1M2"

// Version is the highest packet version this package
// can decode.
const Version = 1

var (
	// ErrFormat reports a structurally invalid packet:
	// bad magic, truncated field, or channel lengths
	// inconsistent with the row count.
	ErrFormat = errors.New("packet: format error")
	// ErrVersion reports a packet version newer than
	// this package understands.
	ErrVersion = errors.New("packet: unsupported version")
)

func maskLen(rows int) int { return (rows + 7) / 8 }

func popcount(mask []byte) int {
	n := 0
	for _, b := range mask {
		n += bits.OnesCount8(b)
	}
	return n
}

// Encode encodes one group of factored rows into a
// packet byte string. Time is linear in the total
// number of payload bytes.
func Encode(rows []tmpl.Row) []byte {
	mask := make([]byte, maskLen(len(rows)))
	var events, unknowns int
	maxArity := 0
	for i := range rows {
		if rows[i].IsEvent() {
			mask[i>>3] |= 1 << (i & 7)
			events++
			if len(rows[i].Slots) > maxArity {
				maxArity = len(rows[i].Slots)
			}
		} else {
			unknowns++
		}
	}

	// inner payload: channels-mask encoding
	inner := AppendUvarint(nil, uint64(events))
	inner = AppendUvarint(inner, uint64(events))
	prior := int64(0)
	for i := range rows {
		if !rows[i].IsEvent() {
			continue
		}
		id := int64(rows[i].ID)
		inner = AppendZigzag(inner, id-prior)
		prior = id
	}
	inner = AppendUvarint(inner, uint64(maxArity))
	for j := 0; j < maxArity; j++ {
		var lens []byte
		var vals []byte
		count := 0
		for i := range rows {
			if !rows[i].IsEvent() || len(rows[i].Slots) <= j {
				continue
			}
			v := rows[i].Slots[j]
			lens = AppendUvarint(lens, uint64(len(v)))
			vals = append(vals, v...)
			count++
		}
		inner = AppendUvarint(inner, uint64(count))
		inner = append(inner, lens...)
		inner = append(inner, vals...)
	}
	inner = AppendUvarint(inner, uint64(unknowns))
	for i := range rows {
		if rows[i].IsEvent() {
			continue
		}
		inner = AppendUvarint(inner, uint64(len(rows[i].Line)))
		inner = append(inner, rows[i].Line...)
	}

	out := make([]byte, 0, len(Magic)+4+2*binary.MaxVarintLen64+len(mask)+len(inner))
	out = append(out, Magic...)
	out = binary.LittleEndian.AppendUint32(out, Version)
	out = AppendUvarint(out, uint64(len(rows)))
	out = AppendUvarint(out, uint64(len(mask)))
	out = append(out, mask...)
	out = AppendUvarint(out, uint64(len(inner)))
	out = append(out, inner...)
	return out
}

// Decoded is the structural decoding of one packet:
// the channels are split apart but slot values are not
// yet regrouped per event (that requires the bank,
// which knows each template's arity).
type Decoded struct {
	// RowCount is the number of input rows.
	RowCount int
	// Mask is the event row-mask, little-bit-endian.
	Mask []byte
	// TIDs is the template-ID channel, one entry per
	// event row, in row order.
	TIDs []int
	// Channels holds the per-slot value channels.
	// Channel j carries, in event order, the value of
	// slot j for every event with more than j slots.
	Channels [][]string
	// Unknown holds the embedded unknown lines in
	// row order.
	Unknown []string
}

// Decode parses and validates a packet produced by
// Encode. The channel structure is validated against
// the row count and the row mask.
func Decode(blob []byte) (*Decoded, error) {
	if len(blob) < len(Magic)+4 {
		return nil, fmt.Errorf("%w: short packet (%d bytes)", ErrFormat, len(blob))
	}
	if string(blob[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, blob[:4])
	}
	if v := binary.LittleEndian.Uint32(blob[4:8]); v > Version {
		return nil, fmt.Errorf("%w: packet version %d > %d", ErrVersion, v, Version)
	}
	off := 8
	rowCount, off, err := UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	mlen, off, err := UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	if mlen != maskLen(rowCount) {
		return nil, fmt.Errorf("%w: row-mask length %d for %d rows", ErrFormat, mlen, rowCount)
	}
	if off+mlen > len(blob) {
		return nil, fmt.Errorf("%w: truncated row-mask", ErrFormat)
	}
	mask := blob[off : off+mlen]
	off += mlen
	ilen, off, err := UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	if off+ilen != len(blob) {
		return nil, fmt.Errorf("%w: inner length %d does not cover packet tail", ErrFormat, ilen)
	}
	inner := blob[off : off+ilen]

	d := &Decoded{RowCount: rowCount, Mask: mask}
	events := popcount(mask)

	pos := 0
	ec, pos, err := UvarintLen(inner, pos)
	if err != nil {
		return nil, err
	}
	tc, pos, err := UvarintLen(inner, pos)
	if err != nil {
		return nil, err
	}
	if ec != events || tc != ec {
		return nil, fmt.Errorf("%w: channel counts (events=%d tids=%d) vs mask popcount %d",
			ErrFormat, ec, tc, events)
	}
	d.TIDs = make([]int, ec)
	prior := int64(0)
	for i := 0; i < ec; i++ {
		var delta int64
		delta, pos, err = Zigzag(inner, pos)
		if err != nil {
			return nil, err
		}
		prior += delta
		if prior < 0 {
			return nil, fmt.Errorf("%w: negative template ID %d", ErrFormat, prior)
		}
		d.TIDs[i] = int(prior)
	}
	nchan, pos, err := UvarintLen(inner, pos)
	if err != nil {
		return nil, err
	}
	d.Channels = make([][]string, nchan)
	for j := 0; j < nchan; j++ {
		var count int
		count, pos, err = UvarintLen(inner, pos)
		if err != nil {
			return nil, err
		}
		if count > ec {
			return nil, fmt.Errorf("%w: slot channel %d carries %d values for %d events",
				ErrFormat, j, count, ec)
		}
		lens := make([]int, count)
		for i := 0; i < count; i++ {
			lens[i], pos, err = UvarintLen(inner, pos)
			if err != nil {
				return nil, err
			}
		}
		vals := make([]string, count)
		for i := 0; i < count; i++ {
			if pos+lens[i] > len(inner) {
				return nil, fmt.Errorf("%w: truncated slot value", ErrFormat)
			}
			vals[i] = string(inner[pos : pos+lens[i]])
			pos += lens[i]
		}
		d.Channels[j] = vals
	}
	uc, pos, err := UvarintLen(inner, pos)
	if err != nil {
		return nil, err
	}
	if uc != rowCount-events {
		return nil, fmt.Errorf("%w: %d unknown lines for %d rows with %d events",
			ErrFormat, uc, rowCount, events)
	}
	d.Unknown = make([]string, uc)
	for i := 0; i < uc; i++ {
		var n int
		n, pos, err = UvarintLen(inner, pos)
		if err != nil {
			return nil, err
		}
		if pos+n > len(inner) {
			return nil, fmt.Errorf("%w: truncated unknown line", ErrFormat)
		}
		d.Unknown[i] = string(inner[pos : pos+n])
		pos += n
	}
	if pos != len(inner) {
		return nil, fmt.Errorf("%w: %d trailing bytes after channels", ErrFormat, len(inner)-pos)
	}
	return d, nil
}

// Rows reassembles the decoded channels into factored
// rows by walking the row-mask bit by bit, pulling from
// the event channels or the unknown channel accordingly.
// The bank supplies each template's arity.
func (d *Decoded) Rows(bank *tmpl.Bank) ([]tmpl.Row, error) {
	rows := make([]tmpl.Row, d.RowCount)
	cursors := make([]int, len(d.Channels))
	ev, un := 0, 0
	for i := 0; i < d.RowCount; i++ {
		if d.Mask[i>>3]&(1<<(i&7)) != 0 {
			id := d.TIDs[ev]
			t, ok := bank.Template(id)
			if !ok {
				return nil, fmt.Errorf("%w: packet references unknown event ID %d", ErrFormat, id)
			}
			if t.Arity > len(d.Channels) {
				return nil, fmt.Errorf("%w: event %d wants %d slots, packet has %d channels",
					ErrFormat, id, t.Arity, len(d.Channels))
			}
			slots := make([]string, t.Arity)
			for j := 0; j < t.Arity; j++ {
				if cursors[j] >= len(d.Channels[j]) {
					return nil, fmt.Errorf("%w: slot channel %d exhausted", ErrFormat, j)
				}
				slots[j] = d.Channels[j][cursors[j]]
				cursors[j]++
			}
			rows[i] = tmpl.Event(id, slots)
			ev++
		} else {
			rows[i] = tmpl.Unknown(d.Unknown[un])
			un++
		}
	}
	for j := range cursors {
		if cursors[j] != len(d.Channels[j]) {
			return nil, fmt.Errorf("%w: slot channel %d has %d unconsumed values",
				ErrFormat, j, len(d.Channels[j])-cursors[j])
		}
	}
	return rows, nil
}

// RenderLines decodes rows and renders them back into
// the original input lines.
func (d *Decoded) RenderLines(bank *tmpl.Bank) ([]string, error) {
	rows, err := d.Rows(bank)
	if err != nil {
		return nil, err
	}
	return tmpl.RenderRows(rows, bank)
}
