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

// Package archive implements the USC container formats:
// TPF3 (hot-lite-full, self-describing), USCH with its
// PF1 recall and PFQ1 query blobs (hot, queryable), and
// USCC (cold, wrapping an ODC2 block container), plus
// magic auto-detection, atomic container commits,
// encode profiles, and the validation journal.
//
// Containers are written once and read-only thereafter.
// Every decoder renders the archive's lines joined with
// "\n" and exactly one trailing "\n"; an input that
// already ended in a newline therefore round-trips
// byte-exactly, and one that did not gains a single
// final newline.
package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedMagic reports a container whose
	// 4-byte magic matches no known format. Readers
	// never guess.
	ErrUnsupportedMagic = errors.New("archive: unsupported container magic")
	// ErrFormat reports a structurally invalid container.
	ErrFormat = errors.New("archive: format error")
	// ErrVersion reports a container version newer than
	// this package understands.
	ErrVersion = errors.New("archive: unsupported version")
)

// readHeader checks the 4-byte magic and u32-LE version
// at the head of blob and returns the offset past them.
func readHeader(blob []byte, magic string, maxVersion uint32) (int, error) {
	if len(blob) < len(magic)+4 {
		return 0, fmt.Errorf("%w: short container (%d bytes)", ErrFormat, len(blob))
	}
	if string(blob[:4]) != magic {
		return 0, fmt.Errorf("%w: bad magic %q, want %q", ErrFormat, blob[:4], magic)
	}
	if v := binary.LittleEndian.Uint32(blob[4:8]); v > maxVersion {
		return 0, fmt.Errorf("%w: %s version %d > %d", ErrVersion, magic, v, maxVersion)
	}
	return 8, nil
}

func readU32(blob []byte, off int) (int, int, error) {
	if off+4 > len(blob) {
		return 0, 0, fmt.Errorf("%w: truncated u32 field", ErrFormat)
	}
	return int(binary.LittleEndian.Uint32(blob[off:])), off + 4, nil
}

func readBytes(blob []byte, off, n int) ([]byte, int, error) {
	if n < 0 || off+n > len(blob) {
		return nil, 0, fmt.Errorf("%w: truncated field (%d bytes at %d)", ErrFormat, n, off)
	}
	return blob[off : off+n : off+n], off + n, nil
}

// SplitLines splits raw log bytes into lines. A final
// newline does not produce a trailing empty line.
func SplitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// JoinLines is the inverse of SplitLines: lines joined
// with "\n" plus the single trailing newline every
// decoder emits.
func JoinLines(lines []string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}

// chunks calls fn with [lo, hi) bounds covering [0, n)
// in groups of size per.
func chunks(n, per int, fn func(lo, hi int) error) error {
	for lo := 0; lo < n; lo += per {
		hi := lo + per
		if hi > n {
			hi = n
		}
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}
