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
	"errors"
	"strings"
	"testing"

	"golang.org/x/exp/slices"
)

const hdfsCSV = `EventId,EventTemplate
1,Receiving block <*> src: <*> dest: <*>
2,"PacketResponder <*> for block <*> terminating"
3,Verification succeeded for <*>
4,Served block <*> to <*>
5,Deleting block <*> file <*>
`

func testBank(t *testing.T) *Bank {
	t.Helper()
	b, err := FromCSV(strings.NewReader(hdfsCSV))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestFromCSV(t *testing.T) {
	b := testBank(t)
	if b.Len() != 5 {
		t.Fatalf("got %d templates", b.Len())
	}
	tp, ok := b.Template(1)
	if !ok || tp.Arity != 3 {
		t.Fatalf("template 1: ok=%v arity=%d", ok, tp.Arity)
	}
	if _, ok := b.Template(99); ok {
		t.Fatal("template 99 should not exist")
	}
}

func TestFromCSVErrors(t *testing.T) {
	cases := []string{
		"1\n",                     // too few columns
		"1,ok <*>\nbogus,also\n",  // non-numeric ID past the header
		"1,a <*>\n1,duplicate\n",  // duplicate ID
		"-4,negative template\n",  // negative ID
	}
	for _, c := range cases {
		if _, err := FromCSV(strings.NewReader(c)); !errors.Is(err, ErrTemplate) {
			t.Errorf("%q: expected ErrTemplate, got %v", c, err)
		}
	}
}

func TestMatchRender(t *testing.T) {
	b := testBank(t)
	line := "Receiving block blk_-1608999687919862906 src: /10.250.19.102:54106 dest: /10.250.19.102:50010"
	id, slots, ok := b.Match(line)
	if !ok || id != 1 {
		t.Fatalf("match: ok=%v id=%d", ok, id)
	}
	want := []string{"blk_-1608999687919862906", "/10.250.19.102:54106", "/10.250.19.102:50010"}
	if !slices.Equal(slots, want) {
		t.Fatalf("slots: %v", slots)
	}
	back, err := b.Render(id, slots)
	if err != nil {
		t.Fatal(err)
	}
	if back != line {
		t.Fatalf("render mismatch:\n%q\n%q", back, line)
	}
}

func TestMatchOrder(t *testing.T) {
	// first matching template in insertion order wins
	b, err := NewBank([]Template{
		{ID: 7, Pattern: "update <*>"},
		{ID: 3, Pattern: "update <*> now"},
	})
	if err != nil {
		t.Fatal(err)
	}
	id, slots, ok := b.Match("update everything now")
	if !ok || id != 7 {
		t.Fatalf("ok=%v id=%d", ok, id)
	}
	if len(slots) != 1 || slots[0] != "everything now" {
		t.Fatalf("slots: %v", slots)
	}
}

func TestRenderErrors(t *testing.T) {
	b := testBank(t)
	if _, err := b.Render(99, nil); !errors.Is(err, ErrTemplate) {
		t.Fatalf("unknown ID: %v", err)
	}
	if _, err := b.Render(1, []string{"just one"}); !errors.Is(err, ErrTemplate) {
		t.Fatalf("arity mismatch: %v", err)
	}
}

func TestParseLinesRows(t *testing.T) {
	b := testBank(t)
	lines := []string{
		"Verification succeeded for blk_1",
		"some line no template covers",
		"Served block blk_2 to /10.0.0.1",
	}
	rows := ParseLinesRows(lines, b)
	if len(rows) != 3 {
		t.Fatalf("got %d rows", len(rows))
	}
	if !rows[0].IsEvent() || rows[0].ID != 3 {
		t.Fatalf("row 0: %+v", rows[0])
	}
	if rows[1].IsEvent() || rows[1].Line != lines[1] {
		t.Fatalf("row 1: %+v", rows[1])
	}
	if !rows[2].IsEvent() || rows[2].ID != 4 {
		t.Fatalf("row 2: %+v", rows[2])
	}
	back, err := RenderRows(rows, b)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(back, lines) {
		t.Fatalf("round-trip: %v", back)
	}
	events, unknown := ParseLines(lines, b)
	if len(events) != 2 || len(unknown) != 1 {
		t.Fatalf("events=%d unknown=%d", len(events), len(unknown))
	}
	if unknown[0] != lines[1] {
		t.Fatalf("unknown order: %v", unknown)
	}
}

func TestDeterminism(t *testing.T) {
	b := testBank(t)
	lines := []string{
		"Deleting block blk_77 file /tmp/x",
		"garbage",
		"Served block blk_9 to /10.0.0.9",
	}
	a := ParseLinesRows(lines, b)
	c := ParseLinesRows(lines, b)
	for i := range a {
		if a[i].Kind != c[i].Kind || a[i].ID != c[i].ID ||
			!slices.Equal(a[i].Slots, c[i].Slots) || a[i].Line != c[i].Line {
			t.Fatalf("row %d differs between invocations", i)
		}
	}
}

func TestMarshalCSVRoundTrip(t *testing.T) {
	b := testBank(t)
	again, err := FromCSV(strings.NewReader(b.MarshalCSV()))
	if err != nil {
		t.Fatal(err)
	}
	if again.Len() != b.Len() {
		t.Fatalf("len %d != %d", again.Len(), b.Len())
	}
	for _, tp := range b.All() {
		tp2, ok := again.Template(tp.ID)
		if !ok || tp2.Pattern != tp.Pattern {
			t.Fatalf("template %d not preserved", tp.ID)
		}
	}
}
