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

// Package tmpl implements the template bank and the
// row factorizer: recurring log-line patterns with <*>
// slots, mined in-process or loaded from CSV, and the
// routines that factor raw lines into (template, slots)
// rows or unknown passthrough lines.
package tmpl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// ErrTemplate is the error class for unreadable or
// malformed template input. Use errors.Is to test.
var ErrTemplate = errors.New("tmpl: bad template")

// Slot is the placeholder marking one variable
// position in a template pattern.
const Slot = "<*>"

// Template is one recurring log-line pattern.
// Templates are immutable for the lifetime of an archive.
type Template struct {
	// ID is the stable non-negative event ID.
	ID int
	// Pattern is the pattern text; Slot marks
	// each variable position.
	Pattern string
	// Arity is the number of slots in Pattern.
	Arity int

	re *regexp.Regexp
}

// Bank is an ordered sequence of templates plus the
// compiled matchers. Matching walks templates in
// insertion order; the anchor router only skips
// templates that cannot match a given line, so
// first-match-wins order is preserved.
type Bank struct {
	templates []Template
	byID      map[int]int // ID -> index into templates

	// anchor router: hash of the first literal token
	// -> template indices; wild collects templates whose
	// pattern starts with a slot (always candidates)
	anchored map[uint64][]int
	wild     []int
}

func compile(pattern string) (*regexp.Regexp, int, error) {
	parts := strings.Split(pattern, Slot)
	var b strings.Builder
	b.WriteString("^")
	for i, p := range parts {
		if i > 0 {
			b.WriteString("(.*?)")
		}
		b.WriteString(regexp.QuoteMeta(p))
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %q: %s", ErrTemplate, pattern, err)
	}
	return re, len(parts) - 1, nil
}

// anchorToken returns the first whitespace-delimited
// token of a pattern, provided it contains no slot.
func anchorToken(pattern string) (string, bool) {
	tok, _, _ := strings.Cut(pattern, " ")
	if tok == "" || strings.Contains(tok, Slot) {
		return "", false
	}
	return tok, true
}

func anchorHash(tok string) uint64 {
	return xxh3.HashString(tok)
}

// NewBank builds a bank from an ordered template list.
// IDs must be non-negative and unique.
func NewBank(templates []Template) (*Bank, error) {
	b := &Bank{
		byID:     make(map[int]int, len(templates)),
		anchored: make(map[uint64][]int),
	}
	for _, t := range templates {
		if t.ID < 0 {
			return nil, fmt.Errorf("%w: negative event ID %d", ErrTemplate, t.ID)
		}
		if _, ok := b.byID[t.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate event ID %d", ErrTemplate, t.ID)
		}
		re, arity, err := compile(t.Pattern)
		if err != nil {
			return nil, err
		}
		t.re = re
		t.Arity = arity
		idx := len(b.templates)
		b.byID[t.ID] = idx
		if tok, ok := anchorToken(t.Pattern); ok {
			h := anchorHash(tok)
			b.anchored[h] = append(b.anchored[h], idx)
		} else {
			b.wild = append(b.wild, idx)
		}
		b.templates = append(b.templates, t)
	}
	return b, nil
}

// FromCSV loads a bank from template CSV: first column
// integer event ID, second column template text, extra
// columns ignored. A leading non-numeric header row is
// skipped.
func FromCSV(r io.Reader) (*Bank, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var templates []Template
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrTemplate, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: row needs at least 2 columns, got %d", ErrTemplate, len(rec))
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			if first {
				// header row
				first = false
				continue
			}
			return nil, fmt.Errorf("%w: bad event ID %q", ErrTemplate, rec[0])
		}
		first = false
		templates = append(templates, Template{ID: id, Pattern: rec[1]})
	}
	return NewBank(templates)
}

// MarshalCSV renders the bank back into template CSV,
// the self-describing form embedded in containers.
func (b *Bank) MarshalCSV() string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	for i := range b.templates {
		t := &b.templates[i]
		w.Write([]string{strconv.Itoa(t.ID), t.Pattern})
	}
	w.Flush()
	return sb.String()
}

// Len returns the number of templates in the bank.
func (b *Bank) Len() int { return len(b.templates) }

// Template returns the template with the given event ID.
func (b *Bank) Template(id int) (*Template, bool) {
	idx, ok := b.byID[id]
	if !ok {
		return nil, false
	}
	return &b.templates[idx], true
}

// All returns the templates in insertion order.
// The returned slice must not be modified.
func (b *Bank) All() []Template { return b.templates }

// candidates returns the template indices that can
// possibly match line, in bank insertion order.
func (b *Bank) candidates(line string) []int {
	tok, _, _ := strings.Cut(line, " ")
	var anch []int
	if tok != "" {
		anch = b.anchored[anchorHash(tok)]
	}
	if len(anch) == 0 {
		return b.wild
	}
	if len(b.wild) == 0 {
		return anch
	}
	// merge the two index lists, preserving order
	out := make([]int, 0, len(anch)+len(b.wild))
	i, j := 0, 0
	for i < len(anch) && j < len(b.wild) {
		if anch[i] < b.wild[j] {
			out = append(out, anch[i])
			i++
		} else {
			out = append(out, b.wild[j])
			j++
		}
	}
	out = append(out, anch[i:]...)
	out = append(out, b.wild[j:]...)
	return out
}

// Match attempts to factor line against the bank.
// The first matching template in insertion order wins.
func (b *Bank) Match(line string) (id int, slots []string, ok bool) {
	for _, idx := range b.candidates(line) {
		t := &b.templates[idx]
		m := t.re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return t.ID, m[1:], true
	}
	return 0, nil, false
}

// Render is the inverse of Match: it substitutes slots
// into the template with the given event ID.
func (b *Bank) Render(id int, slots []string) (string, error) {
	t, ok := b.Template(id)
	if !ok {
		return "", fmt.Errorf("%w: unknown event ID %d", ErrTemplate, id)
	}
	return RenderPattern(t.Pattern, slots)
}

// RenderPattern substitutes slots into a bare pattern
// string without requiring a compiled bank.
func RenderPattern(pattern string, slots []string) (string, error) {
	arity := strings.Count(pattern, Slot)
	if len(slots) != arity {
		return "", fmt.Errorf("%w: pattern wants %d slots, got %d", ErrTemplate, arity, len(slots))
	}
	if arity == 0 {
		return pattern, nil
	}
	var sb strings.Builder
	rest := pattern
	for _, s := range slots {
		lit, tail, _ := strings.Cut(rest, Slot)
		sb.WriteString(lit)
		sb.WriteString(s)
		rest = tail
	}
	sb.WriteString(rest)
	return sb.String(), nil
}
