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
	"github.com/klauspost/compress/dict"
)

// MaxTrainSamples is the maximum number of sample
// blocks consumed by Train; extra samples are ignored.
const MaxTrainSamples = 256

// DefaultDictSize is the dictionary target size used
// when a caller passes a non-positive target to Train.
const DefaultDictSize = 8192

// Train builds a zstd dictionary from up to
// MaxTrainSamples sample blocks. target is the desired
// dictionary size in bytes (DefaultDictSize if <= 0).
//
// Training on an empty sample set returns an empty
// dictionary; compressing with an empty dictionary
// degrades to the plain path. A sample set too small
// for the builder also yields an empty dictionary
// rather than an error, so encoders can always proceed.
func Train(samples [][]byte, target int) ([]byte, error) {
	if target <= 0 {
		target = DefaultDictSize
	}
	in := make([][]byte, 0, len(samples))
	for _, s := range samples {
		if len(s) == 0 {
			continue
		}
		in = append(in, s)
		if len(in) >= MaxTrainSamples {
			break
		}
	}
	if len(in) == 0 {
		return nil, nil
	}
	d, err := dict.BuildZstdDict(in, dict.Options{
		MaxDictSize: target,
		HashBytes:   6,
	})
	if err != nil {
		// not enough distinct material to train on;
		// the empty dictionary keeps the caller lossless
		return nil, nil
	}
	return d, nil
}
