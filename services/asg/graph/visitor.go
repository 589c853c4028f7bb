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
	"slices"

	"github.com/AleutianAI/asgstore/services/asg/schema"
)

// Visitor receives callbacks from a traversal. A non-nil error aborts the
// traversal and is returned by Run.
type Visitor interface {
	// Visit is called when a node is entered.
	Visit(n *Node) error

	// VisitEnd is called when a node is left, after all of its edges.
	VisitEnd(n *Node) error

	// VisitEdge is called for every visible target of every edge of a
	// node, before the target is entered (ownership edges only).
	VisitEdge(from, to *Node, e schema.EdgeKind) error

	// VisitEdgeEnd is called after VisitEdge and, for ownership edges,
	// after the target's subtree was walked.
	VisitEdgeEnd(from, to *Node, e schema.EdgeKind) error
}

// BaseVisitor implements Visitor with no-ops. Embed it and override the
// callbacks of interest.
type BaseVisitor struct{}

// Visit implements Visitor.
func (BaseVisitor) Visit(*Node) error { return nil }

// VisitEnd implements Visitor.
func (BaseVisitor) VisitEnd(*Node) error { return nil }

// VisitEdge implements Visitor.
func (BaseVisitor) VisitEdge(*Node, *Node, schema.EdgeKind) error { return nil }

// VisitEdgeEnd implements Visitor.
func (BaseVisitor) VisitEdgeEnd(*Node, *Node, schema.EdgeKind) error { return nil }

// KindVisitor dispatches callbacks by class. A handler registered for a
// class fires for every node whose class chain contains it, base classes
// first, each class once. Registering for schema.KindExpression therefore
// sees every expression node.
type KindVisitor struct {
	OnVisit    map[schema.NodeKind]func(*Node) error
	OnVisitEnd map[schema.NodeKind]func(*Node) error
	OnEdge     map[schema.EdgeKind]func(from, to *Node) error
	OnEdgeEnd  map[schema.EdgeKind]func(from, to *Node) error
}

func dispatchChain(handlers map[schema.NodeKind]func(*Node) error, n *Node) error {
	if len(handlers) == 0 {
		return nil
	}
	for _, c := range n.layout.Classes {
		if h := handlers[c]; h != nil {
			if err := h(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// Visit implements Visitor.
func (v *KindVisitor) Visit(n *Node) error {
	return dispatchChain(v.OnVisit, n)
}

// VisitEnd implements Visitor.
func (v *KindVisitor) VisitEnd(n *Node) error {
	return dispatchChain(v.OnVisitEnd, n)
}

// VisitEdge implements Visitor.
func (v *KindVisitor) VisitEdge(from, to *Node, e schema.EdgeKind) error {
	if h := v.OnEdge[e]; h != nil {
		return h(from, to)
	}
	return nil
}

// VisitEdgeEnd implements Visitor.
func (v *KindVisitor) VisitEdgeEnd(from, to *Node, e schema.EdgeKind) error {
	if h := v.OnEdgeEnd[e]; h != nil {
		return h(from, to)
	}
	return nil
}

// Preorder walks ownership trees depth first, reporting every edge.
//
// Nodes are entered in preorder through ownership edges. Reference edges
// are reported with VisitEdge/VisitEdgeEnd but not descended into.
// Filtered nodes (while the filter is on) are skipped together with their
// subtrees.
type Preorder struct {
	safeMode bool
}

// PreorderOption configures a Preorder.
type PreorderOption func(*Preorder)

// WithSafeMode controls whether each node is entered at most once per run.
// Safe mode is on by default.
func WithSafeMode(on bool) PreorderOption {
	return func(p *Preorder) {
		p.safeMode = on
	}
}

// NewPreorder returns a traversal with the given options.
func NewPreorder(opts ...PreorderOption) *Preorder {
	p := &Preorder{safeMode: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run walks every visible unowned node in id order.
func (p *Preorder) Run(f *Factory, v Visitor) error {
	var visited map[NodeID]struct{}
	if p.safeMode {
		visited = make(map[NodeID]struct{})
	}
	for id := 1; id < len(f.nodes); id++ {
		n := f.nodes[id]
		if n == nil || n.parent != NullID || f.IsFiltered(n.id) {
			continue
		}
		if err := p.walk(f, n, v, visited); err != nil {
			return err
		}
	}
	return nil
}

// RunFrom walks the subtree owned by id.
func (p *Preorder) RunFrom(f *Factory, v Visitor, id NodeID) error {
	n, err := f.Node(id)
	if err != nil {
		return err
	}
	if f.IsFiltered(id) {
		return nil
	}
	var visited map[NodeID]struct{}
	if p.safeMode {
		visited = make(map[NodeID]struct{})
	}
	return p.walk(f, n, v, visited)
}

func (p *Preorder) walk(f *Factory, n *Node, v Visitor, visited map[NodeID]struct{}) error {
	if visited != nil {
		if _, seen := visited[n.id]; seen {
			return nil
		}
		visited[n.id] = struct{}{}
	}
	if err := v.Visit(n); err != nil {
		return err
	}
	for i, e := range n.layout.Edges {
		s := &n.edges[i]
		var targets []NodeID
		if e.IsMulti() {
			targets = slices.Clone(s.list.ids)
		} else if s.single != NullID {
			targets = []NodeID{s.single}
		}
		for _, tid := range targets {
			t, ok := f.Lookup(tid)
			if !ok || f.IsFiltered(tid) {
				continue
			}
			if err := v.VisitEdge(n, t, e); err != nil {
				return err
			}
			if e.IsOwnership() {
				if err := p.walk(f, t, v, visited); err != nil {
					return err
				}
			}
			if err := v.VisitEdgeEnd(n, t, e); err != nil {
				return err
			}
		}
	}
	return v.VisitEnd(n)
}
