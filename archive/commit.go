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
	"bufio"
	"encoding/hex"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// WriteFileAtomic writes data to a unique temporary
// file in path's directory and renames it into place,
// so a failed encode never leaves a partial container.
func WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Fingerprint returns a short stable identity for a
// byte blob: the first 12 hex digits of its blake2b-256
// digest. Not a security boundary, just a drift check.
func Fingerprint(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])[:12]
}

// CommitRecord is one line of the validation journal:
// a known-good decode result for a container.
type CommitRecord struct {
	TS          string `json:"ts"`
	Container   string `json:"container"`
	Mode        string `json:"mode"`
	Fingerprint string `json:"fingerprint"`
	Bytes       int    `json:"bytes"`
}

// AppendCommit appends a record to the journal at path,
// creating it if needed.
func AppendCommit(path string, rec CommitRecord) error {
	if rec.TS == "" {
		rec.TS = time.Now().UTC().Format(time.RFC3339)
	}
	buf, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(buf, '\n'))
	return err
}

// LastCommit returns the most recent journal record for
// the given container path, or nil if none is recorded.
func LastCommit(path, container string) (*CommitRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	var last *CommitRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 1<<16), 1<<20)
	for sc.Scan() {
		var rec CommitRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue // tolerate a torn tail line
		}
		if rec.Container == container {
			r := rec
			last = &r
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return last, nil
}
