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

package blockfmt

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/compr"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
)

// Reader provides selective access to an ODC2
// container. Readers are read-only and may be shared
// freely between goroutines after Parse returns.
type Reader struct {
	// GroupSize is the packets-per-block grouping the
	// container was written with.
	GroupSize int
	// PacketCount is the total number of packets.
	PacketCount int

	dict   []byte
	table  []Blockdesc
	bodies []byte
	blooms []*bloom.Filter

	unmap func() error
}

// Parse validates the container header, block table,
// and optional footer. Block bodies are not touched.
func Parse(blob []byte) (*Reader, error) {
	if len(blob) < len(Magic)+4 {
		return nil, fmt.Errorf("%w: short container (%d bytes)", ErrFormat, len(blob))
	}
	if string(blob[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, blob[:4])
	}
	if v := binary.LittleEndian.Uint32(blob[4:8]); v > Version {
		return nil, fmt.Errorf("%w: container version %d > %d", ErrVersion, v, Version)
	}
	off := 8
	group, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	if group <= 0 {
		return nil, fmt.Errorf("%w: group size %d", ErrFormat, group)
	}
	npackets, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	nblocks, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	if want := (npackets + group - 1) / group; nblocks != want {
		return nil, fmt.Errorf("%w: %d blocks for %d packets at group size %d",
			ErrFormat, nblocks, npackets, group)
	}
	dlen, off, err := packet.UvarintLen(blob, off)
	if err != nil {
		return nil, err
	}
	if off+dlen > len(blob) {
		return nil, fmt.Errorf("%w: truncated dictionary", ErrFormat)
	}
	r := &Reader{
		GroupSize:   group,
		PacketCount: npackets,
		dict:        blob[off : off+dlen : off+dlen],
	}
	off += dlen

	const descSize = 8 + 8 + 4
	if off+nblocks*descSize > len(blob) {
		return nil, fmt.Errorf("%w: truncated block table", ErrFormat)
	}
	r.table = make([]Blockdesc, nblocks)
	next := uint64(0)
	for i := 0; i < nblocks; i++ {
		d := Blockdesc{
			Offset:      binary.LittleEndian.Uint64(blob[off:]),
			Length:      binary.LittleEndian.Uint64(blob[off+8:]),
			FirstPacket: binary.LittleEndian.Uint32(blob[off+16:]),
		}
		off += descSize
		if d.Offset != next {
			return nil, fmt.Errorf("%w: block %d at offset %d, expected %d",
				ErrFormat, i, d.Offset, next)
		}
		if int(d.FirstPacket) != i*group {
			return nil, fmt.Errorf("%w: block %d first packet %d, expected %d",
				ErrFormat, i, d.FirstPacket, i*group)
		}
		next = d.Offset + d.Length
		r.table[i] = d
	}
	if off+int(next) > len(blob) {
		return nil, fmt.Errorf("%w: block bodies truncated", ErrFormat)
	}
	r.bodies = blob[off : off+int(next)]
	tail := blob[off+int(next):]
	if len(tail) == 0 {
		return r, nil
	}
	return r, r.parseFooter(tail, nblocks)
}

func (r *Reader) parseFooter(tail []byte, nblocks int) error {
	if len(tail) < 4+12 || string(tail[:4]) != FooterMagic {
		return fmt.Errorf("%w: unrecognized container trailer", ErrFormat)
	}
	count := int(binary.LittleEndian.Uint32(tail[4:]))
	bits := int(binary.LittleEndian.Uint32(tail[8:]))
	k := int(binary.LittleEndian.Uint32(tail[12:]))
	if count != nblocks {
		return fmt.Errorf("%w: footer has %d filters for %d blocks", ErrFormat, count, nblocks)
	}
	if bits <= 0 || bits%8 != 0 || k <= 0 {
		return fmt.Errorf("%w: footer bloom params bits=%d k=%d", ErrFormat, bits, k)
	}
	body := tail[16:]
	if len(body) != count*(bits/8) {
		return fmt.Errorf("%w: footer bitmap region is %d bytes, want %d",
			ErrFormat, len(body), count*(bits/8))
	}
	r.blooms = make([]*bloom.Filter, count)
	for i := 0; i < count; i++ {
		bm := body[i*(bits/8) : (i+1)*(bits/8) : (i+1)*(bits/8)]
		f, err := bloom.FromBitmap(bm, k)
		if err != nil {
			return fmt.Errorf("%w: footer filter %d: %s", ErrFormat, i, err)
		}
		r.blooms[i] = f
	}
	return nil
}

// Blooms returns the footer filters, one per block, or
// nil when the container carries no footer.
func (r *Reader) Blooms() []*bloom.Filter { return r.blooms }

// Blocks returns the number of blocks.
func (r *Reader) Blocks() int { return len(r.table) }

// Close releases the backing mapping, if any. The
// reader must not be used afterwards.
func (r *Reader) Close() error {
	if r.unmap != nil {
		u := r.unmap
		r.unmap = nil
		return u()
	}
	return nil
}

// BlockOf returns the index of the block containing
// packet p.
func (r *Reader) BlockOf(p int) int {
	// binary search over FirstPacket
	return sort.Search(len(r.table), func(i int) bool {
		return int(r.table[i].FirstPacket) > p
	}) - 1
}

// DecodeBlock decompresses one block and splits it into
// its packets.
func (r *Reader) DecodeBlock(i int) ([][]byte, error) {
	if i < 0 || i >= len(r.table) {
		return nil, fmt.Errorf("%w: block %d of %d", ErrRange, i, len(r.table))
	}
	d := &r.table[i]
	body, err := compr.DecompressDict(r.bodies[d.Offset:d.Offset+d.Length], r.dict)
	if err != nil {
		return nil, err
	}
	want := r.GroupSize
	if i == len(r.table)-1 {
		want = r.PacketCount - int(d.FirstPacket)
	}
	return splitGroup(body, want)
}

// decodeBlocks decompresses blocks [lo, hi) in parallel
// and merges the results in block-table order, so the
// output is identical to a serial decode.
func (r *Reader) decodeBlocks(lo, hi int) ([][]byte, error) {
	parts := make([][][]byte, hi-lo)
	errs := make([]error, hi-lo)
	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for i := lo; i < hi; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			parts[i-lo], errs[i-lo] = r.DecodeBlock(i)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	var out [][]byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

// DecodeAll decompresses every block and returns the
// full packet sequence in order.
func (r *Reader) DecodeAll() ([][]byte, error) {
	if len(r.table) == 0 {
		return nil, nil
	}
	return r.decodeBlocks(0, len(r.table))
}

// DecodeRange returns packets [a, b), touching only the
// covering blocks. The result is byte-identical to
// DecodeAll()[a:b].
func (r *Reader) DecodeRange(a, b int) ([][]byte, error) {
	if a < 0 || b < a || b > r.PacketCount {
		return nil, fmt.Errorf("%w: [%d, %d) of %d packets", ErrRange, a, b, r.PacketCount)
	}
	if a == b {
		return nil, nil
	}
	lo := r.BlockOf(a)
	hi := r.BlockOf(b-1) + 1
	packets, err := r.decodeBlocks(lo, hi)
	if err != nil {
		return nil, err
	}
	base := int(r.table[lo].FirstPacket)
	return packets[a-base : b-base], nil
}
