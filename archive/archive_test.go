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
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
	"golang.org/x/exp/slices"
)

const testCSV = `1,Receiving block <*> src: <*> dest: <*>
2,PacketResponder <*> for block <*> terminating
3,Verification succeeded for <*>
4,Served block <*> to <*>
`

func testBank(t *testing.T) *tmpl.Bank {
	t.Helper()
	b, err := tmpl.FromCSV(strings.NewReader(testCSV))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// testLines mixes templated lines with unknown ones,
// several packets worth.
func testLines(n int) []string {
	lines := make([]string, 0, n)
	for i := 0; len(lines) < n; i++ {
		switch i % 5 {
		case 0:
			lines = append(lines, fmt.Sprintf("Receiving block blk_%d src: /10.0.0.%d:54106 dest: /10.0.0.%d:50010", i*31, i%250, (i+1)%250))
		case 1:
			lines = append(lines, fmt.Sprintf("PacketResponder %d for block blk_%d terminating", i%3, i*31))
		case 2:
			lines = append(lines, fmt.Sprintf("Verification succeeded for blk_%d", i*31))
		case 3:
			lines = append(lines, fmt.Sprintf("Served block blk_%d to /10.0.1.%d", i*31, i%250))
		default:
			lines = append(lines, fmt.Sprintf("java.io.IOException: Connection reset by peer %d", i))
		}
	}
	return lines[:n]
}

func TestSplitJoinLines(t *testing.T) {
	data := []byte("a\nb\nc\n")
	lines := SplitLines(data)
	if !slices.Equal(lines, []string{"a", "b", "c"}) {
		t.Fatalf("split: %q", lines)
	}
	if !bytes.Equal(JoinLines(lines), data) {
		t.Fatalf("join: %q", JoinLines(lines))
	}
	// no trailing newline: the decoder adds exactly one
	lines = SplitLines([]byte("a\nb"))
	if !slices.Equal(lines, []string{"a", "b"}) {
		t.Fatalf("split: %q", lines)
	}
	if string(JoinLines(lines)) != "a\nb\n" {
		t.Fatalf("join: %q", JoinLines(lines))
	}
	if SplitLines(nil) != nil {
		t.Fatal("empty input should split to nil")
	}
}

func TestTPF3RoundTrip(t *testing.T) {
	bank := testBank(t)
	lines := testLines(237) // not a multiple of the packet size
	blob, err := EncodeTPF3(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeTPF3(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, lines) {
		t.Fatal("TPF3 round-trip mismatch")
	}
}

func TestTPF3Idempotent(t *testing.T) {
	// encode(decode(encode(L))) == encode(L) for the
	// canonical encoder
	bank := testBank(t)
	lines := testLines(100)
	blob, err := EncodeTPF3(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeTPF3(blob)
	if err != nil {
		t.Fatal(err)
	}
	again, err := EncodeTPF3(dec, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(blob, again) {
		t.Fatal("canonical encoder is not idempotent")
	}
}

func TestUSCHRoundTrip(t *testing.T) {
	bank := testBank(t)
	lines := testLines(180)
	blob, err := EncodeUSCH(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeUSCH(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, lines) {
		t.Fatal("USCH round-trip mismatch")
	}
}

func TestPF1Recall(t *testing.T) {
	bank := testBank(t)
	lines := testLines(180)
	u, err := ParseUSCH(mustEncodeUSCH(t, lines, bank))
	if err != nil {
		t.Fatal(err)
	}
	rec, err := u.PF1.Recall(3, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec) == 0 {
		t.Fatal("no recalls for event 3")
	}
	prev := -1
	for _, ln := range rec {
		if ln.No <= prev {
			t.Fatalf("recall out of order: %d after %d", ln.No, prev)
		}
		prev = ln.No
		if lines[ln.No] != ln.Text {
			t.Fatalf("line %d: %q != %q", ln.No, ln.Text, lines[ln.No])
		}
	}
	// limit honored
	rec2, err := u.PF1.Recall(3, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec2) != 2 {
		t.Fatalf("limit: got %d", len(rec2))
	}
	// unknown event recalls nothing
	rec3, err := u.PF1.Recall(777, 10)
	if err != nil || rec3 != nil {
		t.Fatalf("unknown event: %v %v", rec3, err)
	}
}

func TestPFQ1NoFalseNegatives(t *testing.T) {
	bank := testBank(t)
	lines := testLines(180)
	u, err := ParseUSCH(mustEncodeUSCH(t, lines, bank))
	if err != nil {
		t.Fatal(err)
	}
	q := u.PFQ1
	if q.Packets() == 0 {
		t.Fatal("no PFQ1 packets")
	}
	for i := 0; i < q.Packets(); i++ {
		pl, err := q.Lines(i)
		if err != nil {
			t.Fatal(err)
		}
		for _, ln := range pl {
			for _, tok := range tokenizeForTest(ln) {
				if !q.Probe(i, []string{tok}) {
					t.Fatalf("packet %d bloom lost %q", i, tok)
				}
			}
		}
	}
}

func TestPFQ1UnknownOnly(t *testing.T) {
	// zero template coverage must still produce
	// line-carrying, queryable packets
	bank, err := tmpl.FromCSV(strings.NewReader("1,never matches anything <*>\n"))
	if err != nil {
		t.Fatal(err)
	}
	var lines []string
	for i := 0; i < 1000; i++ {
		lines = append(lines, fmt.Sprintf("freeform chatter %d with zero structure", i))
	}
	u, err := ParseUSCH(mustEncodeUSCH(t, lines, bank))
	if err != nil {
		t.Fatal(err)
	}
	if u.PFQ1.Packets() == 0 {
		t.Fatal("unknown-only archive produced no PFQ1 packets")
	}
	got, err := u.PFQ1.AllLines()
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, lines) {
		t.Fatal("unknown-only archive lost lines")
	}
}

func TestUSCCRoundTrip(t *testing.T) {
	bank := testBank(t)
	lines := testLines(300)
	blob, err := EncodeUSCC(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeUSCC(blob)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, lines) {
		t.Fatal("USCC round-trip mismatch")
	}
	// the embedded ODC2 container has a bloom footer
	_, r, err := ParseUSCC(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Blooms()) != r.Blocks() {
		t.Fatalf("%d filters for %d blocks", len(r.Blooms()), r.Blocks())
	}
}

func TestDecodeAuto(t *testing.T) {
	bank := testBank(t)
	lines := testLines(120)
	type enc struct {
		mode string
		blob []byte
	}
	var cases []enc
	b1, err := EncodeTPF3(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	cases = append(cases, enc{"hot-lite-full", b1})
	b2, err := EncodeUSCH(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	cases = append(cases, enc{"hot", b2})
	b3, err := EncodeUSCC(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	cases = append(cases, enc{"cold", b3})
	for _, c := range cases {
		got, mode, err := DecodeAuto(c.blob)
		if err != nil {
			t.Fatalf("%s: %s", c.mode, err)
		}
		if mode != c.mode {
			t.Fatalf("mode %q, want %q", mode, c.mode)
		}
		if !slices.Equal(got, lines) {
			t.Fatalf("%s: auto decode differs", c.mode)
		}
	}
	// 4 random bytes matching no magic
	if _, _, err := DecodeAuto([]byte{0xde, 0xad, 0xbe, 0xef}); !errorsIsUnsupported(err) {
		t.Fatalf("unknown magic: %v", err)
	}
	if _, err := Detect([]byte("XY")); !errorsIsUnsupported(err) {
		t.Fatalf("short blob: %v", err)
	}
}
