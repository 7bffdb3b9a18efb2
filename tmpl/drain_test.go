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
	"fmt"
	"testing"
)

func minedLines() []string {
	var lines []string
	for i := 0; i < 50; i++ {
		lines = append(lines, fmt.Sprintf("worker %d started task %d", i%4, i))
		lines = append(lines, fmt.Sprintf("request from 10.0.0.%d completed in %d ms", i%8, i*13))
	}
	return lines
}

func TestMinerSnapshot(t *testing.T) {
	m := NewMiner(MinerConfig{})
	for _, ln := range minedLines() {
		m.Observe(ln)
	}
	bank, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if bank.Len() == 0 {
		t.Fatal("no templates mined")
	}
	// every observed line should factor against the snapshot
	matched := 0
	for _, ln := range minedLines() {
		if id, slots, ok := bank.Match(ln); ok {
			back, err := bank.Render(id, slots)
			if err != nil {
				t.Fatal(err)
			}
			if back != ln {
				t.Fatalf("render mismatch:\n%q\n%q", back, ln)
			}
			matched++
		}
	}
	if matched == 0 {
		t.Fatal("no mined template matches its own input")
	}
}

func TestMinerDeterminism(t *testing.T) {
	mine := func() string {
		m := NewMiner(MinerConfig{})
		for _, ln := range minedLines() {
			m.Observe(ln)
		}
		b, err := m.Snapshot()
		if err != nil {
			t.Fatal(err)
		}
		return b.MarshalCSV()
	}
	if mine() != mine() {
		t.Fatal("miner output differs between runs")
	}
}

func TestMinerBlankLines(t *testing.T) {
	m := NewMiner(MinerConfig{})
	m.Observe("")
	m.Observe("   ")
	b, err := m.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != 0 {
		t.Fatalf("blank lines mined %d templates", b.Len())
	}
}

func TestCanonicalize(t *testing.T) {
	line := "job 12345678 finished at 2026-01-18 05:50:12 with id 550e8400-e29b-41d4-a716-446655440000"
	canon, tokens := Canonicalize(line)
	if len(tokens) != 3 {
		t.Fatalf("tokens: %v", tokens)
	}
	if Reinflate(canon, tokens) != line {
		t.Fatalf("reinflate mismatch: %q", Reinflate(canon, tokens))
	}
	// stable lines pass through untouched
	canon, tokens = Canonicalize("short line 42")
	if canon != "short line 42" || tokens != nil {
		t.Fatalf("unexpected masking: %q %v", canon, tokens)
	}
}
