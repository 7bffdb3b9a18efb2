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

package archive

import "fmt"

// Detect inspects the 4-byte magic at offset 0 and
// returns the mode label of the container. Detection
// never guesses: an unknown magic is
// ErrUnsupportedMagic.
func Detect(blob []byte) (string, error) {
	if len(blob) < 4 {
		return "", fmt.Errorf("%w: %d bytes", ErrUnsupportedMagic, len(blob))
	}
	switch string(blob[:4]) {
	case MagicTPF3:
		return "hot-lite-full", nil
	case MagicUSCH:
		return "hot", nil
	case MagicUSCC:
		return "cold", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMagic, blob[:4])
	}
}

// DecodeAuto routes a container to the decoder its
// magic selects and returns the reconstructed lines
// along with the detected mode label.
func DecodeAuto(blob []byte) (lines []string, mode string, err error) {
	mode, err = Detect(blob)
	if err != nil {
		return nil, "", err
	}
	switch mode {
	case "hot-lite-full":
		lines, err = DecodeTPF3(blob)
	case "hot":
		lines, err = DecodeUSCH(blob)
	case "cold":
		lines, err = DecodeUSCC(blob)
	}
	if err != nil {
		return nil, "", err
	}
	return lines, mode, nil
}
