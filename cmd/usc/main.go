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

// Command usc is the USC archive CLI: encode raw logs
// into USC containers, decode them back losslessly, and
// run keyword queries without full decompression.
//
// Exit codes: 0 on success, 1 on data errors (format,
// corruption, I/O), 2 on usage errors.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/maddwiz/UnifiedStateCodec-sub001/archive"
	"github.com/maddwiz/UnifiedStateCodec-sub001/blockfmt"
	"github.com/maddwiz/UnifiedStateCodec-sub001/compr"
	"github.com/maddwiz/UnifiedStateCodec-sub001/packet"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

var dashv bool

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
}

func logf(f string, args ...interface{}) {
	if dashv {
		fmt.Fprintf(os.Stderr, f+"\n", args...)
	}
}

// usagef reports a contract violation by the caller.
func usagef(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f+"\n", args...)
	os.Exit(2)
}

// dataf reports a data error: one line naming the kind,
// no internals.
func dataf(err error) {
	fmt.Fprintf(os.Stderr, "usc: %s\n", errKind(err))
	os.Exit(1)
}

func errKind(err error) string {
	switch {
	case errors.Is(err, archive.ErrUnsupportedMagic):
		return "UnsupportedMagic: " + err.Error()
	case errors.Is(err, archive.ErrVersion),
		errors.Is(err, packet.ErrVersion),
		errors.Is(err, blockfmt.ErrVersion):
		return "VersionError: " + err.Error()
	case errors.Is(err, archive.ErrFormat),
		errors.Is(err, packet.ErrFormat),
		errors.Is(err, blockfmt.ErrFormat):
		return "FormatError: " + err.Error()
	case errors.Is(err, compr.ErrDecompress):
		return "CodecFailure: " + err.Error()
	case errors.Is(err, tmpl.ErrTemplate):
		return "TemplateError: " + err.Error()
	case errors.Is(err, blockfmt.ErrRange):
		return "UsageError: " + err.Error()
	default:
		return "IOFailure: " + err.Error()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: usc [-v] <command> ...
commands:
  encode      -mode <m> -log <path> [-tpl <csv>] [-lines <N>] -out <bin>
              [-packet-events <N>] [-zstd <L>] [-chunk-lines <N>] [-profile <file>]
  decode      -mode <m> -input <bin> -out <log>
  decode-auto -in <bin> -out <log>
  query       -mode {hot|hot-lite-full|cold|cold-oracle} -hot <bin> -q <string> [-limit <N>]
  validate    -in <bin> [-journal <path>]
modes: hot, hot-lite, hot-lite-full, cold, cold-oracle`)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "encode":
		encode(args)
	case "decode":
		decode(args)
	case "decode-auto":
		decodeAuto(args)
	case "query":
		runQuery(args)
	case "validate":
		validate(args)
	default:
		usagef("usc: unknown command %q", cmd)
	}
}

// readLog loads a raw log and splits it into lines,
// truncated to n lines when n > 0.
func readLog(path string, n int) ([]string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := archive.SplitLines(buf)
	if n > 0 && n < len(lines) {
		lines = lines[:n]
	}
	return lines, nil
}

// loadBank loads the template bank from a CSV file, or
// mines one from the lines when no CSV is given.
func loadBank(tplPath string, lines []string) (*tmpl.Bank, error) {
	if tplPath != "" {
		f, err := os.Open(tplPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return tmpl.FromCSV(f)
	}
	m := tmpl.NewMiner(tmpl.MinerConfig{})
	for _, ln := range lines {
		m.Observe(ln)
	}
	return m.Snapshot()
}
