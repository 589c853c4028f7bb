// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"encoding/binary"
	"log/slog"

	"lukechampine.com/blake3"

	"github.com/AleutianAI/asgstore/services/asg/schema"
	"github.com/AleutianAI/asgstore/services/asg/strtable"
)

// Hash returns the structural hash of the node.
//
// Description:
//
//	The hash covers the node kind, every attribute except source
//	positions (string attributes by their text), and the hashes of all
//	edge targets in edge order, references included. Two subtrees that
//	differ only in where they appear in the source hash equally.
//
//	Reference edges can close cycles. A node reached again while its own
//	hash is being computed contributes 0 and a debug record is logged.
//	Results are memoised until the next mutation of the factory, except
//	those that hit a cycle: they depend on where the walk started and
//	are recomputed on every call.
func (n *Node) Hash() uint64 {
	if n.factory == nil {
		return 0
	}
	h, _ := n.hashWith(make(map[NodeID]struct{}))
	return h
}

// hashWith reports whether the walk below n met a node still in progress.
func (n *Node) hashWith(inProgress map[NodeID]struct{}) (uint64, bool) {
	f := n.factory
	if n.hashEpoch == f.epoch {
		return n.hash, false
	}
	if _, ok := inProgress[n.id]; ok {
		f.logger.Debug("hash cycle, skip", slog.Uint64("id", uint64(n.id)))
		return 0, true
	}
	inProgress[n.id] = struct{}{}
	defer delete(inProgress, n.id)

	cycle := false
	h := blake3.New(8, nil)
	var buf [8]byte
	word := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	word(uint64(n.kind))
	for i, a := range n.layout.Attrs {
		d := a.Decl()
		if d.Class == schema.KindPositioned {
			continue
		}
		if d.Type == schema.AttrString {
			s := f.strings.Get(strtable.Key(n.attrs[i]))
			word(uint64(len(s)))
			h.Write([]byte(s))
			continue
		}
		word(n.attrs[i])
	}
	for i, e := range n.layout.Edges {
		s := &n.edges[i]
		var targets []NodeID
		if e.IsMulti() {
			targets = s.list.ids
		} else if s.single != NullID {
			targets = []NodeID{s.single}
		}
		word(uint64(e))
		word(uint64(len(targets)))
		for _, id := range targets {
			if t, ok := f.Lookup(id); ok {
				th, cyc := t.hashWith(inProgress)
				word(th)
				cycle = cycle || cyc
			}
		}
	}

	sum := binary.LittleEndian.Uint64(h.Sum(nil))
	if !cycle {
		n.hash = sum
		n.hashEpoch = f.epoch
	}
	return sum, cycle
}

// Similarity compares two nodes: 1 for nodes of the same kind, 0 otherwise.
func Similarity(a, b *Node) float64 {
	if a == nil || b == nil || a.kind != b.kind {
		return 0
	}
	return 1
}
