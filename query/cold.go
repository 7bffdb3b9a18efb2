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

package query

import (
	"context"

	"github.com/maddwiz/UnifiedStateCodec-sub001/blockfmt"
	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// Cold scans an ODC2 block container. When the
// container carries a block-bloom footer and exhaustive
// is false, the footer pre-screens block IDs so only
// candidate blocks are materialized; the oracle mode
// (exhaustive=true) decodes every block and exists to
// cross-check the pre-screen. Cancellation is observed
// at block boundaries.
func Cold(ctx context.Context, bank *tmpl.Bank, r *blockfmt.Reader, q string, limit int, exhaustive bool) (*Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	res := &Result{Mode: "ODC2"}
	toks := bloom.Tokenize(q)
	if len(toks) == 0 {
		return res, nil
	}
	blooms := r.Blooms()
	for i := 0; i < r.Blocks(); i++ {
		if cancelled(ctx) {
			res.Cancelled = true
			return res, nil
		}
		if !exhaustive && blooms != nil && !blooms[i].HasAll(toks) {
			continue
		}
		pkts, err := r.DecodeBlock(i)
		if err != nil {
			return nil, err
		}
		for _, pkt := range pkts {
			d, err := packet.Decode(pkt)
			if err != nil {
				return nil, err
			}
			lines, err := d.RenderLines(bank)
			if err != nil {
				return nil, err
			}
			for _, ln := range lines {
				if matchAll(ln, toks) {
					res.Hits = append(res.Hits, ln)
					if len(res.Hits) >= limit {
						return res, nil
					}
				}
			}
		}
	}
	return res, nil
}
