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
	"github.com/AleutianAI/asgstore/services/asg/schema"
)

// Stats summarises the visible part of a graph.
type Stats struct {
	// Nodes is the number of visible nodes.
	Nodes int

	// Filtered is the number of live nodes hidden by the filter.
	Filtered int

	// Roots is the number of visible nodes without an owner.
	Roots int

	// OwnershipEdges and ReferenceEdges count visible edge occurrences.
	OwnershipEdges int
	ReferenceEdges int

	// MaxDepth is the depth of the deepest ownership chain; roots are at 1.
	MaxDepth int

	// ByKind counts visible nodes per concrete kind.
	ByKind map[schema.NodeKind]int

	// ByEdge counts visible edge occurrences per edge kind.
	ByEdge map[schema.EdgeKind]int
}

type statsVisitor struct {
	BaseVisitor
	stats *Stats
	depth int
}

func (v *statsVisitor) Visit(n *Node) error {
	v.depth++
	v.stats.Nodes++
	v.stats.ByKind[n.kind]++
	if n.parent == NullID {
		v.stats.Roots++
	}
	v.stats.MaxDepth = max(v.stats.MaxDepth, v.depth)
	return nil
}

func (v *statsVisitor) VisitEnd(*Node) error {
	v.depth--
	return nil
}

func (v *statsVisitor) VisitEdge(_, _ *Node, e schema.EdgeKind) error {
	v.stats.ByEdge[e]++
	if e.IsOwnership() {
		v.stats.OwnershipEdges++
	} else {
		v.stats.ReferenceEdges++
	}
	return nil
}

// Stats walks the visible graph and returns its summary.
func (f *Factory) Stats() (Stats, error) {
	s := Stats{
		ByKind: make(map[schema.NodeKind]int),
		ByEdge: make(map[schema.EdgeKind]int),
	}
	if f.filterOn {
		s.Filtered = f.FilteredCount()
	}
	if err := NewPreorder().Run(f, &statsVisitor{stats: &s}); err != nil {
		return Stats{}, err
	}
	return s, nil
}
