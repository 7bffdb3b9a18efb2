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

package packet

import (
	"encoding/binary"
	"fmt"
)

// AppendUvarint appends x to dst in LEB128 form.
func AppendUvarint(dst []byte, x uint64) []byte {
	return binary.AppendUvarint(dst, x)
}

// Uvarint decodes a LEB128 varint from b at off and
// returns the value and the new offset. Truncated or
// oversized varints are ErrFormat.
func Uvarint(b []byte, off int) (uint64, int, error) {
	if off > len(b) {
		return 0, 0, fmt.Errorf("%w: varint offset %d beyond %d", ErrFormat, off, len(b))
	}
	v, n := binary.Uvarint(b[off:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("%w: truncated varint at offset %d", ErrFormat, off)
	}
	return v, off + n, nil
}

// UvarintLen decodes a varint that is used as a length
// or count and bounds-checks it against the length of
// the whole buffer so a corrupt field cannot trigger a
// huge allocation.
func UvarintLen(b []byte, off int) (int, int, error) {
	v, off, err := Uvarint(b, off)
	if err != nil {
		return 0, 0, err
	}
	if v > uint64(len(b)) {
		return 0, 0, fmt.Errorf("%w: length %d exceeds buffer size %d", ErrFormat, v, len(b))
	}
	return int(v), off, nil
}

func zigzag(x int64) uint64 {
	return uint64((x << 1) ^ (x >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// AppendZigzag appends a signed value in zig-zag
// varint form.
func AppendZigzag(dst []byte, x int64) []byte {
	return AppendUvarint(dst, zigzag(x))
}

// Zigzag decodes a zig-zag varint from b at off.
func Zigzag(b []byte, off int) (int64, int, error) {
	u, off, err := Uvarint(b, off)
	if err != nil {
		return 0, 0, err
	}
	return unzigzag(u), off, nil
}
