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
	"runtime"
	"sync"

	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/compr"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
)

// Writer encodes a packet sequence into an ODC2
// container. The zero value is usable; zero fields take
// the documented defaults.
type Writer struct {
	// GroupSize is the number of packets per block
	// (DefaultGroupSize if zero).
	GroupSize int
	// Level is the compression level for block bodies
	// (compr.DefaultLevel if zero).
	Level int
	// DictTarget is the trained-dictionary target size
	// (compr.DefaultDictSize if zero).
	DictTarget int
	// BloomBits and BloomK are the footer filter
	// parameters (bloom defaults if zero). They are
	// consulted only when Encode receives tokens.
	BloomBits int
	BloomK    int
	// Logf, if set, receives progress diagnostics.
	Logf func(f string, args ...interface{})
}

func (w *Writer) logf(f string, args ...interface{}) {
	if w.Logf != nil {
		w.Logf(f, args...)
	}
}

func (w *Writer) groupSize() int {
	if w.GroupSize <= 0 {
		return DefaultGroupSize
	}
	return w.GroupSize
}

// Encode builds the container. tokens, when non-nil,
// must hold one token list per packet; the per-block
// union of those tokens populates the BB01 footer.
// A nil tokens slice omits the footer.
//
// The dictionary is trained on sampled packet payloads
// before any block compression starts and is immutable
// thereafter; block compression fans out to a worker
// pool, but table assembly is serial and preserves
// packet-index order.
func (w *Writer) Encode(packets [][]byte, tokens [][]string) ([]byte, error) {
	group := w.groupSize()
	dict, err := compr.Train(packets, w.DictTarget)
	if err != nil {
		return nil, err
	}
	w.logf("odc2: %d packets, group size %d, dictionary %d bytes", len(packets), group, len(dict))

	nblocks := (len(packets) + group - 1) / group
	bodies := make([][]byte, nblocks)
	errs := make([]error, nblocks)
	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for i := 0; i < nblocks; i++ {
		lo := i * group
		hi := lo + group
		if hi > len(packets) {
			hi = len(packets)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, grp [][]byte) {
			defer wg.Done()
			defer func() { <-sem }()
			bodies[i], errs[i] = compr.CompressDict(frame(grp), dict, w.Level)
		}(i, packets[lo:hi])
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	out := []byte(Magic)
	out = binary.LittleEndian.AppendUint32(out, Version)
	out = packet.AppendUvarint(out, uint64(group))
	out = packet.AppendUvarint(out, uint64(len(packets)))
	out = packet.AppendUvarint(out, uint64(nblocks))
	out = packet.AppendUvarint(out, uint64(len(dict)))
	out = append(out, dict...)
	off := uint64(0)
	for i, body := range bodies {
		out = binary.LittleEndian.AppendUint64(out, off)
		out = binary.LittleEndian.AppendUint64(out, uint64(len(body)))
		out = binary.LittleEndian.AppendUint32(out, uint32(i*group))
		off += uint64(len(body))
	}
	for _, body := range bodies {
		out = append(out, body...)
	}
	if tokens == nil {
		return out, nil
	}

	bits, k := w.BloomBits, w.BloomK
	if bits <= 0 {
		bits = bloom.DefaultBits
	}
	if k <= 0 {
		k = bloom.DefaultK
	}
	out = append(out, FooterMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(nblocks))
	out = binary.LittleEndian.AppendUint32(out, uint32(bits))
	out = binary.LittleEndian.AppendUint32(out, uint32(k))
	for i := 0; i < nblocks; i++ {
		f, err := bloom.New(bits, k)
		if err != nil {
			return nil, err
		}
		lo := i * group
		hi := lo + group
		if hi > len(tokens) {
			hi = len(tokens)
		}
		for _, toks := range tokens[lo:hi] {
			for _, t := range toks {
				f.Add(t)
			}
		}
		out = append(out, f.Bitmap()...)
	}
	return out, nil
}
