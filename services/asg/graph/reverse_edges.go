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
	"context"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/AleutianAI/asgstore/services/asg/schema"
)

// EdgeSelector decides whether the edge source --e--> target is recorded in
// the reverse index. Rejected edges are silently not indexed.
type EdgeSelector func(source *Node, e schema.EdgeKind) bool

// ReverseEdges indexes, for every node, which nodes point at it through
// which edge kind.
//
// Description:
//
//	The index is keyed by target id, then edge kind, and holds the
//	source ids in insertion order. A source appears once per forward
//	edge occurrence, so a multi edge holding the same target twice is
//	recorded twice. Buckets for (node, edge) pairs that the schema allows
//	but that were never used are created lazily on first access.
//
// Thread Safety:
//
//	Not safe for concurrent use; it is mutated by the owning factory.
type ReverseEdges struct {
	factory  *Factory
	selector EdgeSelector

	// buckets is indexed by NodeID. A nil map means the id has no entry.
	buckets []map[schema.EdgeKind]*idList
}

func newReverseEdges(f *Factory, selector EdgeSelector) *ReverseEdges {
	return &ReverseEdges{
		factory:  f,
		selector: selector,
		buckets:  make([]map[schema.EdgeKind]*idList, len(f.nodes)),
	}
}

// reverseEdgesVisitor fills the index from a preorder walk.
type reverseEdgesVisitor struct {
	BaseVisitor
	r *ReverseEdges
}

func (v *reverseEdgesVisitor) Visit(n *Node) error {
	v.r.insertNode(n.id)
	return nil
}

func (v *reverseEdgesVisitor) VisitEdge(from, to *Node, e schema.EdgeKind) error {
	v.r.insertEdge(to.id, from.id, e)
	return nil
}

func (r *ReverseEdges) build() error {
	f := r.factory
	restore := f.TurnFilterOffSafely()
	defer restore()
	return NewPreorder().Run(f, &reverseEdgesVisitor{r: r})
}

// EnableReverseEdges builds the reverse index and keeps it up to date from
// then on.
//
// Description:
//
//	Walks the whole graph with the filter turned off. When the index
//	already exists it is kept as is, unless a selector is given or the
//	existing index was built with one; in that case it is rebuilt.
//
// Inputs:
//
//	selector - Optional predicate restricting which edges are indexed.
func (f *Factory) EnableReverseEdges(selector EdgeSelector) error {
	if f.reverse != nil {
		if selector == nil && f.reverse.selector == nil {
			return nil
		}
		f.logger.Debug("reverse edge selector changed, rebuilding index")
	}
	start := time.Now()
	r := newReverseEdges(f, selector)
	if err := r.build(); err != nil {
		return err
	}
	f.reverse = r
	recordReverseBuildMetrics(context.Background(), time.Since(start), f.live)
	f.logger.Debug("reverse edges built",
		slog.Int("nodes", f.live),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// DisableReverseEdges drops the reverse index.
func (f *Factory) DisableReverseEdges() {
	f.reverse = nil
}

// HasReverseEdges reports whether the reverse index is enabled.
func (f *Factory) HasReverseEdges() bool {
	return f.reverse != nil
}

// ReverseEdges returns the reverse index.
func (f *Factory) ReverseEdges() (*ReverseEdges, error) {
	if f.reverse == nil {
		return nil, opError("Factory.ReverseEdges", NullID, ErrReverseEdgesDisabled)
	}
	return f.reverse, nil
}

func (r *ReverseEdges) insertNode(id NodeID) {
	for NodeID(len(r.buckets)) <= id {
		r.buckets = append(r.buckets, nil)
	}
	if r.buckets[id] == nil {
		r.buckets[id] = make(map[schema.EdgeKind]*idList)
	}
}

func (r *ReverseEdges) insertEdge(target, source NodeID, e schema.EdgeKind) {
	if r.selector != nil {
		src, ok := r.factory.Lookup(source)
		if !ok || !r.selector(src, e) {
			return
		}
	}
	r.insertNode(target)
	l := r.buckets[target][e]
	if l == nil {
		l = &idList{}
		r.buckets[target][e] = l
	}
	l.append(source)
}

// removeEdge forgets one occurrence of source --e--> target. Missing
// records are not an error: the edge may have been rejected by the
// selector.
func (r *ReverseEdges) removeEdge(target, source NodeID, e schema.EdgeKind) {
	if int(target) >= len(r.buckets) || r.buckets[target] == nil {
		return
	}
	l := r.buckets[target][e]
	if l == nil {
		return
	}
	if i := l.index(source); i >= 0 {
		l.removeAt(i)
	}
}

// removeNode asks every recorded source of id to drop its forward edge to
// id, then forgets the entry.
func (r *ReverseEdges) removeNode(id NodeID) error {
	if int(id) >= len(r.buckets) || r.buckets[id] == nil {
		return nil
	}
	bucket := r.buckets[id]
	for _, e := range slices.Sorted(maps.Keys(bucket)) {
		l := bucket[e]
		for len(l.ids) > 0 {
			source := l.ids[0]
			before := len(l.ids)
			src, ok := r.factory.Lookup(source)
			if ok && src.holds(e, id) {
				if _, err := src.RemoveEdge(e, id); err != nil {
					return err
				}
				r.factory.logger.Debug("forward edge removed",
					slog.Uint64("source", uint64(source)),
					slog.Uint64("target", uint64(id)),
					slog.String("edge", e.String()),
				)
			}
			if len(l.ids) == before {
				// The source no longer holds the edge; drop the stale record.
				l.removeAt(0)
			}
		}
	}
	r.buckets[id] = nil
	return nil
}

// bucket returns the source list of (id, e), creating an empty one when
// the schema allows e to point at id's kind.
func (r *ReverseEdges) bucket(op string, id NodeID, e schema.EdgeKind) (*idList, error) {
	if int(id) >= len(r.buckets) || r.buckets[id] == nil || !r.factory.Exists(id) {
		return nil, opError(op, id, ErrInvalidNodeID)
	}
	if l := r.buckets[id][e]; l != nil {
		return l, nil
	}
	kind := r.factory.nodes[id].kind
	if !schema.PossibleEdge(kind, e) {
		return nil, opErrorf(op, id, ErrInvalidEdgeKind, "%s cannot point at %s", e, kind)
	}
	l := &idList{}
	r.buckets[id][e] = l
	return l, nil
}

// Iterator returns an iterator over the visible sources pointing at id
// through e.
//
// Outputs:
//
//	ListIterator - Positioned at the first visible source.
//	error - ErrInvalidNodeID for ids without an entry, ErrInvalidEdgeKind
//	        when e can never point at id's kind.
func (r *ReverseEdges) Iterator(id NodeID, e schema.EdgeKind) (ListIterator[*Node], error) {
	l, err := r.bucket("ReverseEdges.Iterator", id, e)
	if err != nil {
		return ListIterator[*Node]{}, err
	}
	return newListIterator(r.factory, l, asNode), nil
}

// Begin is Iterator.
func (r *ReverseEdges) Begin(id NodeID, e schema.EdgeKind) (ListIterator[*Node], error) {
	return r.Iterator(id, e)
}

// End returns the end position of the (id, e) bucket.
func (r *ReverseEdges) End(id NodeID, e schema.EdgeKind) (ListIterator[*Node], error) {
	it, err := r.Iterator(id, e)
	if err != nil {
		return it, err
	}
	return it.End(), nil
}

// Sources returns the visible source ids pointing at id through e.
func (r *ReverseEdges) Sources(id NodeID, e schema.EdgeKind) ([]NodeID, error) {
	it, err := r.Iterator(id, e)
	if err != nil {
		return nil, err
	}
	var out []NodeID
	for n := range it.All() {
		out = append(out, n.id)
	}
	return out, nil
}

// ExistingEdges lists the edge kinds with at least one recorded source
// pointing at id.
func (r *ReverseEdges) ExistingEdges(id NodeID) ([]schema.EdgeKind, error) {
	if int(id) >= len(r.buckets) || r.buckets[id] == nil {
		return nil, opError("ReverseEdges.ExistingEdges", id, ErrInvalidNodeID)
	}
	var out []schema.EdgeKind
	for e, l := range r.buckets[id] {
		if len(l.ids) > 0 {
			out = append(out, e)
		}
	}
	slices.Sort(out)
	return out, nil
}

// PossibleEdges lists every edge kind that may point at a node of kind k.
func (r *ReverseEdges) PossibleEdges(k schema.NodeKind) []schema.EdgeKind {
	return schema.PossibleEdges(k)
}

// Contains reports whether id has an entry in the index.
func (r *ReverseEdges) Contains(id NodeID) bool {
	return int(id) < len(r.buckets) && r.buckets[id] != nil
}

// recorded returns the raw source ids of (id, e) without creating buckets.
func (r *ReverseEdges) recorded(id NodeID, e schema.EdgeKind) []NodeID {
	if int(id) >= len(r.buckets) || r.buckets[id] == nil {
		return nil
	}
	if l := r.buckets[id][e]; l != nil {
		return l.ids
	}
	return nil
}
