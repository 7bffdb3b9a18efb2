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

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/maddwiz/UnifiedStateCodec-sub001/archive"
)

// entry point for 'usc validate ...': decode a
// container, fingerprint the result, and check it
// against (then record it in) the validation journal.
// A fingerprint that drifts from the journal is a data
// error.
func validate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	in := fs.String("in", "", "container file")
	journal := fs.String("journal", "usc-journal.jsonl", "validation journal")
	fs.Parse(args)
	if *in == "" {
		usagef("usc validate: -in is required")
	}
	blob, err := os.ReadFile(*in)
	if err != nil {
		dataf(err)
	}
	lines, mode, err := archive.DecodeAuto(blob)
	if err != nil {
		dataf(err)
	}
	out := archive.JoinLines(lines)
	fp := archive.Fingerprint(out)

	prev, err := archive.LastCommit(*journal, *in)
	if err != nil {
		dataf(err)
	}
	if prev != nil && prev.Fingerprint != fp {
		fmt.Fprintf(os.Stderr, "usc validate: %s drifted: %s, journal has %s\n", *in, fp, prev.Fingerprint)
		os.Exit(1)
	}
	err = archive.AppendCommit(*journal, archive.CommitRecord{
		Container:   *in,
		Mode:        mode,
		Fingerprint: fp,
		Bytes:       len(out),
	})
	if err != nil {
		dataf(err)
	}
	fmt.Printf("usc validate: %s ok (%s, %d lines, %s)\n", *in, mode, len(lines), fp)
}
