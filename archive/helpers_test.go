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

import (
	"errors"
	"testing"

	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/tmpl"
)

func mustEncodeUSCH(t *testing.T, lines []string, bank *tmpl.Bank) []byte {
	t.Helper()
	blob, err := EncodeUSCH(lines, bank, nil)
	if err != nil {
		t.Fatal(err)
	}
	return blob
}

func tokenizeForTest(s string) []string {
	return bloom.Tokenize(s)
}

func errorsIsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupportedMagic)
}
