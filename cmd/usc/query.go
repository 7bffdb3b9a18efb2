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
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/maddwiz/UnifiedStateCodec-sub001/archive"
	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/query"
)

// entry point for 'usc query ...'
func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	mode := fs.String("mode", "hot", "hot | hot-lite-full | cold | cold-oracle")
	hot := fs.String("hot", "", "archive file")
	q := fs.String("q", "", "query string")
	limit := fs.String("limit", "", "maximum hits (default 50)")
	fs.Parse(args)
	if *hot == "" || *q == "" {
		usagef("usc query: -hot and -q are required")
	}
	n := archive.CoerceInt(*limit, query.DefaultLimit)

	blob, err := os.ReadFile(*hot)
	if err != nil {
		dataf(err)
	}
	var res *query.Result
	switch *mode {
	case "hot":
		u, err := archive.ParseUSCH(blob)
		if err != nil {
			dataf(err)
		}
		r := &query.Router{Hot: u}
		if dashv {
			r.Logf = logf
		}
		res, err = r.Query(context.Background(), *q, n)
		if err != nil {
			dataf(err)
		}
	case "hot-lite-full":
		res, err = queryFullScan(blob, *q, n)
		if err != nil {
			dataf(err)
		}
	case "cold", "cold-oracle":
		bank, rd, err := archive.ParseUSCC(blob)
		if err != nil {
			dataf(err)
		}
		res, err = query.Cold(context.Background(), bank, rd, *q, n, *mode == "cold-oracle")
		if err != nil {
			dataf(err)
		}
	default:
		usagef("usc query: unknown mode %q", *mode)
	}
	for _, h := range res.Hits {
		fmt.Println(h)
	}
	fmt.Fprintf(os.Stderr, "usc query: %d hits via %s\n", len(res.Hits), res.Mode)
}

// queryFullScan services queries over a hot-lite-full
// archive: decode everything, then the same
// AND-of-substrings filter the router applies.
func queryFullScan(blob []byte, q string, limit int) (*query.Result, error) {
	lines, err := archive.DecodeTPF3(blob)
	if err != nil {
		return nil, err
	}
	res := &query.Result{Mode: "SCAN"}
	toks := bloom.Tokenize(q)
	if len(toks) == 0 {
		return res, nil
	}
	for _, ln := range lines {
		lower := strings.ToLower(ln)
		all := true
		for _, t := range toks {
			if !strings.Contains(lower, t) {
				all = false
				break
			}
		}
		if all {
			res.Hits = append(res.Hits, ln)
			if len(res.Hits) >= limit {
				break
			}
		}
	}
	return res, nil
}
