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

package tmpl

import (
	"strings"
)

// MinerConfig tunes the Drain-style template miner.
type MinerConfig struct {
	// Depth counts the length level plus the token
	// levels below it: lines are routed by their first
	// Depth-1 tokens (default 4).
	Depth int
	// MaxChildren bounds the fan-out of each internal
	// node; overflow tokens route to the wildcard child
	// (default 100).
	MaxChildren int
	// SimThreshold is the minimum token-level similarity
	// for a line to join an existing cluster (default 0.4).
	SimThreshold float64
}

func (c *MinerConfig) defaults() {
	if c.Depth <= 0 {
		c.Depth = 4
	}
	if c.MaxChildren <= 0 {
		c.MaxChildren = 100
	}
	if c.SimThreshold <= 0 {
		c.SimThreshold = 0.4
	}
}

type cluster struct {
	tokens []string
}

type minerNode struct {
	children map[string]*minerNode
	clusters []*cluster
}

// Miner mines line templates from observed lines.
// One miner per encode session; no global state.
// Observed lines are canonicalized (high-entropy spans
// masked) before clustering, which keeps volatile IDs
// from splintering clusters.
type Miner struct {
	cfg      MinerConfig
	byLength map[int]*minerNode
	clusters []*cluster // creation order
}

// NewMiner constructs a miner; zero-valued config
// fields take the documented defaults.
func NewMiner(cfg MinerConfig) *Miner {
	cfg.defaults()
	return &Miner{cfg: cfg, byLength: make(map[int]*minerNode)}
}

func hasDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}

func (m *Miner) childKey(n *minerNode, tok string) string {
	if tok == Placeholder || hasDigit(tok) {
		return Slot
	}
	if _, ok := n.children[tok]; ok {
		return tok
	}
	if len(n.children) >= m.cfg.MaxChildren {
		return Slot
	}
	return tok
}

func (m *Miner) leaf(toks []string) *minerNode {
	n := m.byLength[len(toks)]
	if n == nil {
		n = &minerNode{children: make(map[string]*minerNode)}
		m.byLength[len(toks)] = n
	}
	depth := m.cfg.Depth - 1
	if depth > len(toks) {
		depth = len(toks)
	}
	for i := 0; i < depth; i++ {
		key := m.childKey(n, toks[i])
		next := n.children[key]
		if next == nil {
			next = &minerNode{children: make(map[string]*minerNode)}
			n.children[key] = next
		}
		n = next
	}
	return n
}

func similarity(tpl, toks []string) float64 {
	if len(tpl) != len(toks) || len(tpl) == 0 {
		return 0
	}
	match := 0
	for i := range tpl {
		if tpl[i] == toks[i] || tpl[i] == Slot {
			match++
		}
	}
	return float64(match) / float64(len(tpl))
}

// Observe feeds one raw line to the miner.
func (m *Miner) Observe(line string) {
	canon, _ := Canonicalize(line)
	toks := strings.Fields(canon)
	if len(toks) == 0 {
		return
	}
	leaf := m.leaf(toks)
	var best *cluster
	bestSim := 0.0
	for _, c := range leaf.clusters {
		if s := similarity(c.tokens, toks); s > bestSim {
			best, bestSim = c, s
		}
	}
	if best != nil && bestSim >= m.cfg.SimThreshold {
		for i := range best.tokens {
			if best.tokens[i] != toks[i] {
				best.tokens[i] = Slot
			}
		}
		return
	}
	c := &cluster{tokens: append([]string(nil), toks...)}
	leaf.clusters = append(leaf.clusters, c)
	m.clusters = append(m.clusters, c)
}

// Snapshot freezes the mined clusters into a template
// bank. Cluster creation order determines event IDs, so
// identical inputs produce identical banks.
func (m *Miner) Snapshot() (*Bank, error) {
	var templates []Template
	seen := make(map[string]struct{})
	id := 0
	for _, c := range m.clusters {
		toks := make([]string, len(c.tokens))
		for i, t := range c.tokens {
			toks[i] = strings.ReplaceAll(t, Placeholder, Slot)
		}
		pattern := strings.Join(toks, " ")
		if _, dup := seen[pattern]; dup {
			continue
		}
		seen[pattern] = struct{}{}
		templates = append(templates, Template{ID: id, Pattern: pattern})
		id++
	}
	return NewBank(templates)
}
