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
	"fmt"
	"os"
	"strconv"

	"sigs.k8s.io/yaml"

	"github.com/maddwiz/UnifiedStateCodec-sub001/bloom"
	"github.com/maddwiz/UnifiedStateCodec-sub001/blockfmt"
	"github.com/maddwiz/UnifiedStateCodec-sub001/compr"
)

// Profile is the encode tuning profile. Profiles decode
// from JSON or YAML; zero fields take the documented
// defaults, and CLI flags override profile values.
type Profile struct {
	// PacketEvents is the number of input rows grouped
	// into one packet (default 50).
	PacketEvents int `json:"packet_events,omitempty"`
	// ChunkLines is the number of raw lines carried by
	// one PFQ1 packet (defaults to PacketEvents).
	ChunkLines int `json:"chunk_lines,omitempty"`
	// GroupSize is the ODC2 packets-per-block grouping
	// (default 4).
	GroupSize int `json:"group_size,omitempty"`
	// ZstdLevel is the compression level for all zstd
	// streams (default 10).
	ZstdLevel int `json:"zstd_level,omitempty"`
	// DictTarget is the trained-dictionary target size
	// in bytes (default 8192).
	DictTarget int `json:"dict_target,omitempty"`
	// BloomBits and BloomK fix the bloom parameters for
	// PFQ1 packets and the ODC2 footer (defaults 8192/3).
	BloomBits int `json:"bloom_bits,omitempty"`
	BloomK    int `json:"bloom_k,omitempty"`
}

// DefaultProfile returns a profile with every field at
// its default.
func DefaultProfile() *Profile {
	p := &Profile{}
	p.fill()
	return p
}

func (p *Profile) fill() {
	if p.PacketEvents <= 0 {
		p.PacketEvents = 50
	}
	if p.ChunkLines <= 0 {
		p.ChunkLines = p.PacketEvents
	}
	if p.GroupSize <= 0 {
		p.GroupSize = blockfmt.DefaultGroupSize
	}
	if p.ZstdLevel <= 0 {
		p.ZstdLevel = compr.DefaultLevel
	}
	if p.DictTarget <= 0 {
		p.DictTarget = compr.DefaultDictSize
	}
	if p.BloomBits <= 0 {
		p.BloomBits = bloom.DefaultBits
	}
	if p.BloomK <= 0 {
		p.BloomK = bloom.DefaultK
	}
}

// LoadProfile reads a JSON or YAML profile from disk
// and fills in defaults.
func LoadProfile(path string) (*Profile, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p := new(Profile)
	if err := yaml.Unmarshal(buf, p); err != nil {
		return nil, fmt.Errorf("archive: profile %s: %w", path, err)
	}
	p.fill()
	return p, nil
}

// CoerceInt parses a numeric option that may arrive as
// a string from the CLI layer; a value that does not
// parse falls back to def.
func CoerceInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
