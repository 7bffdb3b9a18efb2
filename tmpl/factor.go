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

// RowKind tags a factored row.
type RowKind uint8

const (
	// RowEvent is a line matched by a template.
	RowEvent RowKind = iota
	// RowUnknown is a passthrough line no template matched.
	RowUnknown
)

// Row is one factored input line: a tagged variant of
// either an event (template ID plus slot captures) or
// an unknown passthrough line. The row's position is
// implicit in its index.
type Row struct {
	Kind RowKind
	// ID and Slots are valid when Kind == RowEvent.
	ID    int
	Slots []string
	// Line is valid when Kind == RowUnknown.
	Line string
}

// Event constructs an event row.
func Event(id int, slots []string) Row {
	return Row{Kind: RowEvent, ID: id, Slots: slots}
}

// Unknown constructs an unknown passthrough row.
func Unknown(line string) Row {
	return Row{Kind: RowUnknown, Line: line}
}

// IsEvent reports whether the row is an event.
func (r *Row) IsEvent() bool { return r.Kind == RowEvent }

// ParseLinesRows factors each raw line against the bank,
// returning one row per input line so callers can build
// the event row-mask without losing alignment.
//
// For identical (lines, bank) inputs the output is
// byte-identical regardless of invocation.
func ParseLinesRows(lines []string, b *Bank) []Row {
	rows := make([]Row, len(lines))
	for i, line := range lines {
		if id, slots, ok := b.Match(line); ok {
			rows[i] = Event(id, slots)
		} else {
			rows[i] = Unknown(line)
		}
	}
	return rows
}

// ParseLines factors raw lines against the bank and
// splits the result into events and unknown lines, both
// in input order.
func ParseLines(lines []string, b *Bank) (events []Row, unknown []string) {
	for _, r := range ParseLinesRows(lines, b) {
		if r.IsEvent() {
			events = append(events, r)
		} else {
			unknown = append(unknown, r.Line)
		}
	}
	return events, unknown
}

// RenderRows is the inverse of ParseLinesRows: it turns
// factored rows back into raw lines in order.
func RenderRows(rows []Row, b *Bank) ([]string, error) {
	out := make([]string, len(rows))
	for i := range rows {
		if rows[i].IsEvent() {
			s, err := b.Render(rows[i].ID, rows[i].Slots)
			if err != nil {
				return nil, err
			}
			out[i] = s
		} else {
			out[i] = rows[i].Line
		}
	}
	return out, nil
}
