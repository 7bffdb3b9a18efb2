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
	"fmt"
	"strings"
	"testing"

	"github.com/maddwiz/UnifiedStateCodec-sub001/archive"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

const testCSV = `1,Receiving block <*> src: <*> dest: <*>
2,PacketResponder <*> for block <*> terminating
3,Verification succeeded for <*>
`

func testCorpus(t *testing.T) ([]string, *tmpl.Bank) {
	t.Helper()
	bank, err := tmpl.FromCSV(strings.NewReader(testCSV))
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for i := 0; i < 150; i++ {
		switch i % 4 {
		case 0:
			lines = append(lines, fmt.Sprintf("Receiving block blk_%d src: /10.0.0.%d:54106 dest: /10.0.0.%d:50010", i, i%200, (i+1)%200))
		case 1:
			lines = append(lines, fmt.Sprintf("PacketResponder %d for block blk_%d terminating", i%3, i))
		case 2:
			lines = append(lines, fmt.Sprintf("Verification succeeded for blk_%d", i))
		default:
			lines = append(lines, fmt.Sprintf("java.io.IOException: socket closed unexpectedly attempt=%d", i))
		}
	}
	return lines, bank
}

func hotRouter(t *testing.T) (*Router, []string) {
	t.Helper()
	lines, bank := testCorpus(t)
	blob, err := archive.EncodeUSCH(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	u, err := archive.ParseUSCH(blob)
	if err != nil {
		t.Fatal(err)
	}
	return &Router{Hot: u, Logf: t.Logf}, lines
}

func TestFastPath(t *testing.T) {
	r, _ := hotRouter(t)
	res, err := r.Query(context.Background(), "Verification succeeded", 20)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != "FAST" {
		t.Fatalf("mode %q", res.Mode)
	}
	if len(res.Hits) == 0 || len(res.Hits) > 20 {
		t.Fatalf("%d hits", len(res.Hits))
	}
	for _, h := range res.Hits {
		if !strings.Contains(strings.ToLower(h), "verification") {
			t.Fatalf("hit %q lacks the query token", h)
		}
	}
}

func TestFallbackPath(t *testing.T) {
	// "unexpectedly" appears only in unknown lines,
	// never in a template, so FAST finds nothing
	r, _ := hotRouter(t)
	res, err := r.Query(context.Background(), "unexpectedly", 10)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != "PFQ1" {
		t.Fatalf("mode %q", res.Mode)
	}
	if len(res.Hits) == 0 {
		t.Fatal("no fallback hits")
	}
	for _, h := range res.Hits {
		if !strings.Contains(strings.ToLower(h), "unexpectedly") {
			t.Fatalf("hit %q lacks the query token", h)
		}
	}
}

func TestQueryCompleteness(t *testing.T) {
	// every line containing all tokens must be found by
	// the scan path (bloom never false-negatives), and
	// FAST hits must be a subset of the scan's hits
	r, lines := hotRouter(t)
	const q = "Receiving blk_100"
	toks := []string{"receiving", "blk_100"}
	var want []string
	for _, ln := range lines {
		if matchAll(ln, toks) {
			want = append(want, ln)
		}
	}
	if len(want) == 0 {
		t.Fatal("bad test corpus")
	}
	scan, err := r.scan(context.Background(), toks, 1<<30)
	if err != nil {
		t.Fatal(err)
	}
	have := make(map[string]bool, len(scan.Hits))
	for _, h := range scan.Hits {
		have[h] = true
	}
	for _, w := range want {
		if !have[w] {
			t.Fatalf("scan missed %q", w)
		}
	}
	fast, err := r.fast(context.Background(), toks, 1<<30)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range fast.Hits {
		if !have[h] {
			t.Fatalf("FAST hit %q absent from scan result", h)
		}
	}
}

func TestQueryNoTokens(t *testing.T) {
	r, _ := hotRouter(t)
	res, err := r.Query(context.Background(), "!!", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 0 || res.Cancelled {
		t.Fatalf("tokenless query: %+v", res)
	}
}

func TestQueryCancellation(t *testing.T) {
	r, _ := hotRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Query(ctx, "Verification", 10)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Cancelled {
		t.Fatal("pre-cancelled query did not report Cancelled")
	}
	if len(res.Hits) != 0 {
		t.Fatalf("cancelled before any packet, got %d hits", len(res.Hits))
	}
}

func TestCold(t *testing.T) {
	lines, bank := testCorpus(t)
	blob, err := archive.EncodeUSCC(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	cbank, rd, err := archive.ParseUSCC(blob)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Cold(context.Background(), cbank, rd, "unexpectedly attempt=103", 10, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Mode != "ODC2" || len(res.Hits) == 0 {
		t.Fatalf("cold: %+v", res)
	}
	for _, h := range res.Hits {
		if !strings.Contains(h, "attempt=103") {
			t.Fatalf("hit %q", h)
		}
	}
	// the oracle (exhaustive) scan must agree
	oracle, err := Cold(context.Background(), cbank, rd, "unexpectedly attempt=103", 10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(oracle.Hits) != len(res.Hits) {
		t.Fatalf("pre-screen %d hits, oracle %d", len(res.Hits), len(oracle.Hits))
	}
}

func TestCandidateOrdering(t *testing.T) {
	tpls := map[int]string{
		4: "alpha beta gamma",
		2: "alpha beta",
		9: "alpha",
		5: "unrelated",
	}
	got := candidates(tpls, []string{"alpha", "beta"}, 32)
	// two-token scorers first (ascending eid), then one-token
	want := []int{2, 4, 9}
	if len(got) != len(want) {
		t.Fatalf("candidates: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidates: %v, want %v", got, want)
		}
	}
	if n := len(candidates(tpls, []string{"zzz"}, 32)); n != 0 {
		t.Fatalf("no-score candidates: %d", n)
	}
}
