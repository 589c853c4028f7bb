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
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/asgstore/services/asg/schema"
)

type edgeRecord struct {
	source NodeID
	target NodeID
	edge   schema.EdgeKind
}

// forwardEdges collects every stored edge that the reverse index is
// expected to mirror, one record per occurrence.
func (f *Factory) forwardEdges(selector EdgeSelector) map[edgeRecord]int {
	out := make(map[edgeRecord]int)
	for _, n := range f.nodes {
		if n == nil {
			continue
		}
		for i, e := range n.layout.Edges {
			if selector != nil && !selector(n, e) {
				continue
			}
			s := &n.edges[i]
			if e.IsMulti() {
				for _, id := range s.list.ids {
					out[edgeRecord{n.id, id, e}]++
				}
			} else if s.single != NullID {
				out[edgeRecord{n.id, s.single, e}]++
			}
		}
	}
	return out
}

// VerifyReverseEdges checks that the reverse index records exactly the
// forward edges selected when it was built, counting duplicates.
//
// Outputs:
//
//	error - ErrReverseEdgesDisabled, or ErrReverseEdgesInconsistent joined
//	        with one error per mismatching (source, edge, target) triple.
func (f *Factory) VerifyReverseEdges() error {
	const op = "Factory.VerifyReverseEdges"
	r := f.reverse
	if r == nil {
		return opError(op, NullID, ErrReverseEdgesDisabled)
	}

	want := f.forwardEdges(r.selector)
	got := make(map[edgeRecord]int)
	for target, bucket := range r.buckets {
		if bucket == nil {
			continue
		}
		if !f.Exists(NodeID(target)) {
			return opErrorf(op, NodeID(target), ErrReverseEdgesInconsistent, "entry for a destroyed node")
		}
		for e, l := range bucket {
			for _, src := range l.ids {
				got[edgeRecord{src, NodeID(target), e}]++
			}
		}
	}

	var errs []error
	for rec, n := range want {
		if got[rec] != n {
			errs = append(errs, fmt.Errorf("%d --%s--> %d: forward %d, reverse %d", rec.source, rec.edge, rec.target, n, got[rec]))
		}
	}
	for rec, n := range got {
		if _, ok := want[rec]; !ok {
			errs = append(errs, fmt.Errorf("%d --%s--> %d: forward 0, reverse %d", rec.source, rec.edge, rec.target, n))
		}
	}
	for id, n := range f.nodes {
		if n != nil && !r.Contains(NodeID(id)) {
			errs = append(errs, fmt.Errorf("node %d has no entry", id))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	slices.SortFunc(errs, func(a, b error) int {
		return strings.Compare(a.Error(), b.Error())
	})
	return opError(op, NullID, errors.Join(append([]error{ErrReverseEdgesInconsistent}, errs...)...))
}

// Verify checks the structural invariants of the graph: every stored edge
// points at a live node of an accepted kind, every ownership target names
// its owner, every owner link is backed by exactly one ownership edge, and
// no owner chain loops. The reverse index is checked too when enabled.
func (f *Factory) Verify() error {
	const op = "Factory.Verify"
	owners := make(map[NodeID]int)
	for _, n := range f.nodes {
		if n == nil {
			continue
		}
		for i, e := range n.layout.Edges {
			s := &n.edges[i]
			var targets []NodeID
			if e.IsMulti() {
				targets = s.list.ids
			} else if s.single != NullID {
				targets = []NodeID{s.single}
			}
			for _, id := range targets {
				t, ok := f.Lookup(id)
				if !ok {
					return opErrorf(op, n.id, ErrEdgeEndpointMissing, "target %d of %s does not exist", id, e)
				}
				if !schema.AcceptsTarget(e, t.kind) {
					return opErrorf(op, n.id, ErrInvalidNodeKind, "%s holds %s", e, t.kind)
				}
				if !e.IsOwnership() {
					continue
				}
				if t.parent != n.id || t.parentEdge != e {
					return opErrorf(op, t.id, ErrNodeAlreadyOwned, "owned by %d through %s but records %d", n.id, e, t.parent)
				}
				owners[t.id]++
			}
		}
	}
	for _, n := range f.nodes {
		if n == nil || n.parent == NullID {
			continue
		}
		if owners[n.id] != 1 {
			return opErrorf(op, n.id, ErrNodeAlreadyOwned, "owner link to %d backed by %d edges", n.parent, owners[n.id])
		}
	}
	if err := f.checkOwnershipAcyclic(op); err != nil {
		return err
	}
	if f.reverse != nil {
		return f.VerifyReverseEdges()
	}
	return nil
}
