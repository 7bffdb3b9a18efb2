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

	"github.com/maddwiz/UnifiedStateCodec-sub001/archive"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

// entry point for 'usc encode ...'
func encode(args []string) {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	mode := fs.String("mode", "", "hot | hot-lite | hot-lite-full | cold | cold-oracle")
	logPath := fs.String("log", "", "raw log file")
	tplPath := fs.String("tpl", "", "template CSV (mined in-process when omitted)")
	out := fs.String("out", "", "output container")
	profPath := fs.String("profile", "", "JSON/YAML encode profile")
	// numeric options arrive as strings and coerce
	// leniently with documented defaults
	lines := fs.String("lines", "", "limit input to N lines (default: all)")
	pktEvents := fs.String("packet-events", "", "rows per packet (default 50)")
	zstdLevel := fs.String("zstd", "", "zstd level (default 10)")
	chunkLines := fs.String("chunk-lines", "", "lines per query packet (default: packet-events)")
	fs.Parse(args)
	if *mode == "" || *logPath == "" || *out == "" {
		usagef("usc encode: -mode, -log and -out are required")
	}

	prof := archive.DefaultProfile()
	if *profPath != "" {
		p, err := archive.LoadProfile(*profPath)
		if err != nil {
			dataf(err)
		}
		prof = p
	}
	prof.PacketEvents = archive.CoerceInt(*pktEvents, prof.PacketEvents)
	prof.ZstdLevel = archive.CoerceInt(*zstdLevel, prof.ZstdLevel)
	prof.ChunkLines = archive.CoerceInt(*chunkLines, prof.ChunkLines)

	raw, err := readLog(*logPath, archive.CoerceInt(*lines, 0))
	if err != nil {
		dataf(err)
	}
	bank, err := loadBank(*tplPath, raw)
	if err != nil {
		dataf(err)
	}
	logf("encode: %d lines, %d templates, mode %s", len(raw), bank.Len(), *mode)

	blob, err := encodeMode(*mode, raw, bank, prof)
	if err != nil {
		dataf(err)
	}
	if err := archive.WriteFileAtomic(*out, blob); err != nil {
		dataf(err)
	}
	logf("encode: wrote %d bytes to %s", len(blob), *out)
}

func encodeMode(mode string, lines []string, bank *tmpl.Bank, prof *archive.Profile) ([]byte, error) {
	switch mode {
	case "hot":
		return archive.EncodeUSCH(lines, bank, prof)
	case "hot-lite", "hot-lite-full":
		return archive.EncodeTPF3(lines, bank, prof)
	case "cold", "cold-oracle":
		return archive.EncodeUSCC(lines, bank, prof)
	default:
		usagef("usc encode: unknown mode %q", mode)
		return nil, nil
	}
}
