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

package tmpl

import (
	"regexp"
	"sort"
	"strings"
)

// Placeholder marks a masked high-entropy token in a
// canonicalized line.
const Placeholder = "<@>"

var canonRes = []*regexp.Regexp{
	// ISO-ish timestamps: 2026-01-18 05:50:12 or 2026-01-18T05:50:12Z
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?\b`),
	// UUIDs
	regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`),
	// long hex blobs / hashes
	regexp.MustCompile(`\b[0-9a-fA-F]{16,}\b`),
	// long integers, often IDs
	regexp.MustCompile(`\b\d{7,}\b`),
}

// Canonicalize replaces high-entropy spans (timestamps,
// UUIDs, long hex, long integers) with Placeholder and
// returns the removed tokens in position order, so
// Reinflate inverts it exactly. It is used only as a
// miner pre-pass: factorization always runs against the
// raw line, so the round-trip invariant never depends
// on this mapping.
func Canonicalize(line string) (string, []string) {
	type span struct{ lo, hi int }
	var spans []span
	for _, re := range canonRes {
		for _, m := range re.FindAllStringIndex(line, -1) {
			spans = append(spans, span{m[0], m[1]})
		}
	}
	if len(spans) == 0 {
		return line, nil
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].lo != spans[j].lo {
			return spans[i].lo < spans[j].lo
		}
		return spans[i].hi > spans[j].hi
	})
	var sb strings.Builder
	var tokens []string
	pos := 0
	for _, sp := range spans {
		if sp.lo < pos {
			// overlaps a span already masked
			continue
		}
		sb.WriteString(line[pos:sp.lo])
		sb.WriteString(Placeholder)
		tokens = append(tokens, line[sp.lo:sp.hi])
		pos = sp.hi
	}
	sb.WriteString(line[pos:])
	return sb.String(), tokens
}

// Reinflate substitutes Placeholder occurrences in order
// with the removed tokens, inverting Canonicalize.
func Reinflate(canon string, tokens []string) string {
	out := canon
	for _, t := range tokens {
		out = strings.Replace(out, Placeholder, t, 1)
	}
	return out
}
