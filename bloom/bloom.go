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

// Package bloom implements the keyword bloom filters
// used by the PFQ1 query blob and the ODC2 block-bloom
// footer, plus the tokenizer shared between ingestion
// and queries. A filter may report a token it never saw
// (false positive) but never the reverse: line-level
// verification always runs after a probe.
package bloom

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dchest/siphash"
	"github.com/zeebo/xxh3"
)

// Default filter parameters; declared once per archive
// or footer, never per filter.
const (
	DefaultBits = 8192
	DefaultK    = 3
)

// ErrParams reports unusable filter parameters.
var ErrParams = errors.New("bloom: bad filter parameters")

// the second hash family is keyed siphash with a fixed
// key so filters are stable across processes
const (
	sipK0 = 0x7573632d626c6f6f // "usc-bloo"
	sipK1 = 0x6d2d76312d6b6579 // "m-v1-key"
)

var tokenRe = regexp.MustCompile(`[a-z0-9_./:-]{2,}`)

// Tokenize splits s into query tokens: case-folded,
// minimum two characters, drawn from the class
// [A-Za-z0-9_./:-]. The same tokenizer feeds filter
// construction and query probing.
func Tokenize(s string) []string {
	return tokenRe.FindAllString(strings.ToLower(s), -1)
}

// Filter is one bloom filter. Bits and K must match
// between the writer and the prober.
type Filter struct {
	bits uint64
	k    int
	bm   []byte
}

// New constructs an empty filter. bits must be a
// positive multiple of 8.
func New(bits, k int) (*Filter, error) {
	if bits <= 0 || bits%8 != 0 || k <= 0 {
		return nil, fmt.Errorf("%w: bits=%d k=%d", ErrParams, bits, k)
	}
	return &Filter{bits: uint64(bits), k: k, bm: make([]byte, bits/8)}, nil
}

// FromBitmap wraps an existing bitmap produced by
// Bitmap with the given parameters.
func FromBitmap(bm []byte, k int) (*Filter, error) {
	if len(bm) == 0 || k <= 0 {
		return nil, fmt.Errorf("%w: bitmap=%d bytes k=%d", ErrParams, len(bm), k)
	}
	return &Filter{bits: uint64(len(bm) * 8), k: k, bm: bm}, nil
}

func (f *Filter) hashes(tok string) (uint64, uint64) {
	h1 := xxh3.HashString(tok)
	h2 := siphash.Hash(sipK0, sipK1, []byte(tok))
	// force h2 odd so the probe sequence cannot collapse
	return h1, h2 | 1
}

// Add inserts a token.
func (f *Filter) Add(tok string) {
	h1, h2 := f.hashes(tok)
	for i := 0; i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.bits
		f.bm[bit>>3] |= 1 << (bit & 7)
	}
}

// Has reports whether tok may have been added.
// False negatives are impossible.
func (f *Filter) Has(tok string) bool {
	h1, h2 := f.hashes(tok)
	for i := 0; i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.bits
		if f.bm[bit>>3]&(1<<(bit&7)) == 0 {
			return false
		}
	}
	return true
}

// HasAll reports whether every token may be present.
// An empty token list is trivially present.
func (f *Filter) HasAll(toks []string) bool {
	for _, t := range toks {
		if !f.Has(t) {
			return false
		}
	}
	return true
}

// AddLine tokenizes one line and inserts every token.
func (f *Filter) AddLine(line string) {
	for _, t := range Tokenize(line) {
		f.Add(t)
	}
}

// Bitmap returns the filter's backing bitmap
// (length = bits/8). The slice aliases the filter.
func (f *Filter) Bitmap() []byte { return f.bm }

// Bits returns the filter size in bits.
func (f *Filter) Bits() int { return int(f.bits) }

// K returns the number of probe positions per token.
func (f *Filter) K() int { return f.k }
