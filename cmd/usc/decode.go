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
	"os"

	"github.com/maddwiz/UnifiedStateCodec-sub001/archive"
)

// entry point for 'usc decode ...'
func decode(args []string) {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	mode := fs.String("mode", "", "container mode")
	input := fs.String("input", "", "container file")
	out := fs.String("out", "", "output log file")
	fs.Parse(args)
	if *mode == "" || *input == "" || *out == "" {
		usagef("usc decode: -mode, -input and -out are required")
	}
	blob, err := os.ReadFile(*input)
	if err != nil {
		dataf(err)
	}
	var lines []string
	switch *mode {
	case "hot":
		lines, err = archive.DecodeUSCH(blob)
	case "hot-lite", "hot-lite-full":
		lines, err = archive.DecodeTPF3(blob)
	case "cold", "cold-oracle":
		lines, err = archive.DecodeUSCC(blob)
	default:
		usagef("usc decode: unknown mode %q", *mode)
	}
	if err != nil {
		dataf(err)
	}
	if err := archive.WriteFileAtomic(*out, archive.JoinLines(lines)); err != nil {
		dataf(err)
	}
	logf("decode: %d lines to %s", len(lines), *out)
}

// entry point for 'usc decode-auto ...'
func decodeAuto(args []string) {
	fs := flag.NewFlagSet("decode-auto", flag.ExitOnError)
	in := fs.String("in", "", "container file")
	out := fs.String("out", "", "output log file")
	fs.Parse(args)
	if *in == "" || *out == "" {
		usagef("usc decode-auto: -in and -out are required")
	}
	blob, err := os.ReadFile(*in)
	if err != nil {
		dataf(err)
	}
	lines, mode, err := archive.DecodeAuto(blob)
	if err != nil {
		dataf(err)
	}
	if err := archive.WriteFileAtomic(*out, archive.JoinLines(lines)); err != nil {
		dataf(err)
	}
	logf("decode-auto: %s container, %d lines to %s", mode, len(lines), *out)
}
