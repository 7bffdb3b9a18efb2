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

package compr

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

func TestNames(t *testing.T) {
	for _, name := range []string{"zstd", "s2"} {
		c := Compression(name, 0)
		if c == nil || c.Name() != name {
			t.Fatalf("bad compressor for %q: %v", name, c)
		}
		d := Decompression(name)
		if d == nil || d.Name() != name {
			t.Fatalf("bad decompressor for %q: %v", name, d)
		}
	}
	if Compression("lzma", 0) != nil || Decompression("lzma") != nil {
		t.Fatal("unknown algorithm should yield nil")
	}
}

func TestRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)
	for _, name := range []string{"zstd", "s2"} {
		c := Compression(name, 5)
		d := Decompression(name)
		enc := c.Compress(src, nil)
		got, err := d.Decompress(enc, nil)
		if err != nil {
			t.Fatalf("%s: %s", name, err)
		}
		if !bytes.Equal(got, src) {
			t.Fatalf("%s: round-trip mismatch", name)
		}
	}
}

func TestIndependentStreams(t *testing.T) {
	// every call must produce a self-contained stream
	a := Compress([]byte("first block"), 3)
	b := Compress([]byte("second block"), 3)
	gb, err := Decompress(b)
	if err != nil {
		t.Fatal(err)
	}
	ga, err := Decompress(a)
	if err != nil {
		t.Fatal(err)
	}
	if string(ga) != "first block" || string(gb) != "second block" {
		t.Fatalf("got %q, %q", ga, gb)
	}
}

func TestCorrupt(t *testing.T) {
	_, err := Decompress([]byte("certainly not a zstd frame"))
	if !errors.Is(err, ErrDecompress) {
		t.Fatalf("expected ErrDecompress, got %v", err)
	}
	enc := Compress([]byte("some data worth keeping"), 3)
	enc[len(enc)-1] ^= 0xff
	if _, err := Decompress(enc); err == nil {
		t.Fatal("expected error on corrupted payload")
	}
}

func TestDictRoundTrip(t *testing.T) {
	samples := make([][]byte, 64)
	for i := range samples {
		samples[i] = []byte(fmt.Sprintf("GET /api/v1/users/%d HTTP/1.1 status=200 bytes=%d\n", i*17, i*311))
	}
	d, err := Train(samples, 4096)
	if err != nil {
		t.Fatal(err)
	}
	src := bytes.Join(samples[:16], nil)
	enc, err := CompressDict(src, d, 10)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecompressDict(enc, d)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, src) {
		t.Fatal("dict round-trip mismatch")
	}
}

func TestTrainEmpty(t *testing.T) {
	d, err := Train(nil, 0)
	if err != nil || len(d) != 0 {
		t.Fatalf("empty training set: dict=%d err=%v", len(d), err)
	}
	// empty dict degrades to the plain path
	enc, err := CompressDict([]byte("plain fallback"), d, 3)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecompressDict(enc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "plain fallback" {
		t.Fatalf("got %q", got)
	}
}
