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

// Package query implements the keyword query engine
// over USC archives: the FAST template-routed path over
// the PF1 recall blob, the PFQ1 bloom-scan fallback,
// and the router that picks between them. Containers
// are read-only; any number of queries may run over the
// same archive concurrently.
package query

import (
	"context"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/maddwiz/UnifiedStateCodec-sub001/archive"
	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
)

const (
	// DefaultLimit bounds hit counts when the caller
	// passes a non-positive limit.
	DefaultLimit = 50
	// MaxCandidates is the number of top-scoring
	// templates the FAST path will recall.
	MaxCandidates = 32
)

// Result is the outcome of one query.
type Result struct {
	// Hits are the matching lines. The PFQ1 and ODC2
	// scans emit them in archive order; FAST emits them
	// candidate by candidate, in line order within each.
	Hits []string
	// Mode names the path that produced the hits:
	// "FAST" (template-routed recall), "PFQ1" (bloom
	// scan), or "ODC2" (cold block scan).
	Mode string
	// Cancelled is set when the query was cancelled
	// between packets; Hits then holds the partial
	// result. Cancellation is not an error.
	Cancelled bool
}

// matchAll reports whether every query token appears in
// the line, case-folded: the AND-of-substrings check
// that verifies each candidate line.
func matchAll(line string, toks []string) bool {
	s := strings.ToLower(line)
	for _, t := range toks {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}

// candidates scores every template by the number of
// query tokens its case-folded text contains and
// returns the event IDs of the top max scorers, ties
// broken by ascending event ID so results are stable.
func candidates(templates map[int]string, toks []string, max int) []int {
	type scored struct{ score, eid int }
	var all []scored
	eids := maps.Keys(templates)
	slices.Sort(eids)
	for _, eid := range eids {
		s := strings.ToLower(templates[eid])
		score := 0
		for _, t := range toks {
			if strings.Contains(s, t) {
				score++
			}
		}
		if score > 0 {
			all = append(all, scored{score: score, eid: eid})
		}
	}
	slices.SortFunc(all, func(a, b scored) bool {
		if a.score != b.score {
			return a.score > b.score
		}
		return a.eid < b.eid
	})
	if len(all) > max {
		all = all[:max]
	}
	out := make([]int, len(all))
	for i := range all {
		out[i] = all[i].eid
	}
	return out
}

// Router routes queries over a hot (USCH) archive:
// FAST first, PFQ1 bloom scan when FAST comes back
// empty.
type Router struct {
	Hot *archive.USCH
	// Logf, if set, receives routing diagnostics.
	Logf func(f string, args ...interface{})
}

func (r *Router) logf(f string, args ...interface{}) {
	if r.Logf != nil {
		r.Logf(f, args...)
	}
}

func cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// fast is the template-routed path: score templates,
// recall the top candidates from PF1, verify each
// recalled line. The cancellation token is checked at
// recall boundaries only.
func (r *Router) fast(ctx context.Context, toks []string, limit int) (*Result, error) {
	res := &Result{Mode: "FAST"}
	cands := candidates(r.Hot.PF1.Templates(), toks, MaxCandidates)
	r.logf("query: %d candidate templates", len(cands))
	for _, eid := range cands {
		if cancelled(ctx) {
			res.Cancelled = true
			return res, nil
		}
		lines, err := r.Hot.PF1.Recall(eid, limit)
		if err != nil {
			return nil, err
		}
		for _, ln := range lines {
			if matchAll(ln.Text, toks) {
				res.Hits = append(res.Hits, ln.Text)
				if len(res.Hits) >= limit {
					return res, nil
				}
			}
		}
	}
	return res, nil
}

// scan is the exhaustive fallback: probe every PFQ1
// packet's bloom filter with every token, decode only
// the packets that may match, and verify line by line.
// Hits preserve line order within a packet and packet
// order across packets.
func (r *Router) scan(ctx context.Context, toks []string, limit int) (*Result, error) {
	res := &Result{Mode: "PFQ1"}
	q := r.Hot.PFQ1
	for i := 0; i < q.Packets(); i++ {
		if cancelled(ctx) {
			res.Cancelled = true
			return res, nil
		}
		if !q.Probe(i, toks) {
			continue
		}
		lines, err := q.Lines(i)
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
	return res, nil
}

// Query runs the router: FAST first, and the PFQ1 scan
// if FAST produced no hits. The result reports which
// path produced the hits. A query with no usable tokens
// returns no hits.
func (r *Router) Query(ctx context.Context, q string, limit int) (*Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	toks := bloom.Tokenize(q)
	if len(toks) == 0 {
		return &Result{Mode: "FAST"}, nil
	}
	res, err := r.fast(ctx, toks, limit)
	if err != nil {
		return nil, err
	}
	if len(res.Hits) > 0 || res.Cancelled {
		return res, nil
	}
	r.logf("query: FAST empty, falling back to PFQ1 scan")
	return r.scan(ctx, toks, limit)
}
