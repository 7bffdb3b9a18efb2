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

// Package compr is the general byte compressor:
// a unified interface wrapping third-party compression
// libraries, with optional trained-dictionary streams.
package compr

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// ErrDecompress is the error class reported when the
// underlying codec rejects its input as corrupt.
// Use errors.Is to test.
var ErrDecompress = errors.New("compr: decompression failure")

// DefaultLevel is the zstd level used when a caller
// passes a non-positive level.
const DefaultLevel = 10

// Compressor compresses independent blocks of data.
type Compressor interface {
	// Name is the name of the compression algorithm.
	Name() string
	// Compress appends the compressed contents
	// of src to dst and returns the result.
	Compress(src, dst []byte) []byte
}

// Decompressor is the inverse of Compressor.
type Decompressor interface {
	// Name is the name of the compression algorithm.
	// See also Compressor.Name.
	Name() string
	// Decompress appends the decompressed contents
	// of src to dst and returns the result.
	//
	// It must be safe to make multiple calls to
	// Decompress simultaneously from different goroutines.
	Decompress(src, dst []byte) ([]byte, error)
}

type zstdCompressor struct {
	enc *zstd.Encoder
}

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc.EncodeAll(src, dst)
}

func (z zstdCompressor) Name() string { return "zstd" }

var zstdDecoder *zstd.Decoder

func init() {
	// by default, concurrency is set to min(4, GOMAXPROCS);
	// we'd like it to *always* be GOMAXPROCS
	z, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(runtime.GOMAXPROCS(0)))
	if err != nil {
		panic(err)
	}
	zstdDecoder = z
}

type zstdDecompressor struct{}

func (zstdDecompressor) Name() string { return "zstd" }

func (zstdDecompressor) Decompress(src, dst []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecompress, err)
	}
	return out, nil
}

type s2Compressor struct{}

func (s2Compressor) Name() string { return "s2" }

func (s2Compressor) Compress(src, dst []byte) []byte {
	got := s2.Encode(nil, src)
	if len(dst) == 0 {
		return got
	}
	return append(dst, got...)
}

func (s2Compressor) Decompress(src, dst []byte) ([]byte, error) {
	got, err := s2.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecompress, err)
	}
	if len(dst) == 0 {
		return got, nil
	}
	return append(dst, got...), nil
}

func level(l int) zstd.EOption {
	if l <= 0 {
		l = DefaultLevel
	}
	return zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(l))
}

// Compression selects a compression algorithm by name.
// The returned Compressor returns the same value
// for Compressor.Name as the specified name.
// Valid names are "zstd" and "s2"; an unknown
// name yields nil.
func Compression(name string, lvl int) Compressor {
	switch name {
	case "zstd":
		z, _ := zstd.NewWriter(nil, level(lvl), zstd.WithEncoderConcurrency(1))
		return zstdCompressor{z}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

// Decompression selects a decompressor by name.
// See Compression for the valid names.
func Decompression(name string) Decompressor {
	switch name {
	case "zstd":
		return zstdDecompressor{}
	case "s2":
		return s2Compressor{}
	default:
		return nil
	}
}

// Compress compresses src with plain (dictionary-less)
// zstd at the given level. Each call produces an
// independent stream.
func Compress(src []byte, lvl int) []byte {
	return Compression("zstd", lvl).Compress(src, nil)
}

// Decompress is the inverse of Compress.
func Decompress(src []byte) ([]byte, error) {
	return zstdDecompressor{}.Decompress(src, nil)
}

// CompressDict compresses src with a trained dictionary.
// An empty dictionary degrades to the plain path.
func CompressDict(src, dict []byte, lvl int) ([]byte, error) {
	if len(dict) == 0 {
		return Compress(src, lvl), nil
	}
	enc, err := zstd.NewWriter(nil, level(lvl),
		zstd.WithEncoderConcurrency(1),
		zstd.WithEncoderDict(dict))
	if err != nil {
		return nil, fmt.Errorf("compr: bad dictionary: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

// DecompressDict is the inverse of CompressDict.
// The same dictionary that produced src must be supplied;
// an empty dictionary degrades to the plain path.
func DecompressDict(src, dict []byte) ([]byte, error) {
	if len(dict) == 0 {
		return Decompress(src)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderDicts(dict))
	if err != nil {
		return nil, fmt.Errorf("compr: bad dictionary: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecompress, err)
	}
	return out, nil
}
