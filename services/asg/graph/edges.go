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
	"iter"
	"slices"

	"github.com/AleutianAI/asgstore/services/asg/schema"
)

// idList is an ordered id container. version changes on every mutation so
// iterators can detect that they went stale.
type idList struct {
	ids     []NodeID
	version uint64
}

func (l *idList) append(id NodeID) {
	l.ids = append(l.ids, id)
	l.version++
}

func (l *idList) index(id NodeID) int {
	return slices.Index(l.ids, id)
}

func (l *idList) removeAt(i int) {
	l.ids = slices.Delete(l.ids, i, i+1)
	l.version++
}

func (l *idList) clear() {
	l.ids = nil
	l.version++
}

// slot returns the storage of edge e, or an ErrInvalidEdgeKind error when
// no class in the node's chain declares e.
func (n *Node) slot(op string, e schema.EdgeKind) (*edgeSlot, error) {
	if err := n.check(op); err != nil {
		return nil, err
	}
	i, ok := n.layout.EdgeSlot(e)
	if !ok {
		return nil, opErrorf(op, n.id, ErrInvalidEdgeKind, "%s is not an edge of %s", e, n.kind)
	}
	return &n.edges[i], nil
}

func (n *Node) singleSlot(op string, e schema.EdgeKind) (*edgeSlot, error) {
	s, err := n.slot(op, e)
	if err != nil {
		return nil, err
	}
	if e.IsMulti() {
		return nil, opErrorf(op, n.id, ErrInvalidEdgeKind, "%s is a multi edge", e)
	}
	return s, nil
}

func (n *Node) multiSlot(op string, e schema.EdgeKind) (*edgeSlot, error) {
	s, err := n.slot(op, e)
	if err != nil {
		return nil, err
	}
	if !e.IsMulti() {
		return nil, opErrorf(op, n.id, ErrInvalidEdgeKind, "%s is a single edge", e)
	}
	return s, nil
}

// HasEdge reports whether the node's class chain declares e.
func (n *Node) HasEdge(e schema.EdgeKind) bool {
	_, ok := n.layout.EdgeSlot(e)
	return ok
}

// resolveTarget checks, in order, that the target exists, that its kind is
// accepted by e, and that it lives in the same factory.
func (n *Node) resolveTarget(op string, e schema.EdgeKind, t *Node) error {
	if t == nil || t.factory == nil || !t.factory.Exists(t.id) {
		var id NodeID
		if t != nil {
			id = t.id
		}
		return opErrorf(op, n.id, ErrEdgeEndpointMissing, "target %d of %s does not exist", id, e)
	}
	if !schema.AcceptsTarget(e, t.kind) {
		return opErrorf(op, n.id, ErrInvalidNodeKind, "%s cannot point at %s", e, t.kind)
	}
	if t.factory != n.factory {
		return opErrorf(op, n.id, ErrFactoryMismatch, "target %d of %s", t.id, e)
	}
	return nil
}

func (n *Node) lookupTarget(op string, e schema.EdgeKind, id NodeID) (*Node, error) {
	t, ok := n.factory.Lookup(id)
	if !ok {
		return nil, opErrorf(op, n.id, ErrEdgeEndpointMissing, "target %d of %s does not exist", id, e)
	}
	return t, nil
}

// checkOwnership rejects ownership edges that would give t a second owner
// or make n own one of its ancestors.
func (n *Node) checkOwnership(op string, e schema.EdgeKind, t *Node) error {
	if !e.IsOwnership() {
		return nil
	}
	if t.parent != NullID {
		return opErrorf(op, n.id, ErrNodeAlreadyOwned, "%d is owned by %d through %s", t.id, t.parent, t.parentEdge)
	}
	for cur := n; cur != nil; {
		if cur.id == t.id {
			return opErrorf(op, n.id, ErrOwnershipCycle, "%d is an ancestor of %d", t.id, n.id)
		}
		if cur.parent == NullID {
			break
		}
		cur, _ = n.factory.Lookup(cur.parent)
	}
	return nil
}

// attach records the derived state of a new edge n --e--> t: the owner
// link for ownership edges and the reverse index record.
func (n *Node) attach(e schema.EdgeKind, t *Node) {
	if e.IsOwnership() {
		t.parent = n.id
		t.parentEdge = e
	}
	if r := n.factory.reverse; r != nil {
		r.insertEdge(t.id, n.id, e)
	}
}

// detach undoes attach for one occurrence of n --e--> id.
func (n *Node) detach(e schema.EdgeKind, id NodeID) {
	f := n.factory
	if e.IsOwnership() {
		if t, ok := f.Lookup(id); ok && t.parent == n.id && t.parentEdge == e {
			t.parent = NullID
			t.parentEdge = schema.EdgeNone
		}
	}
	if f.reverse != nil {
		f.reverse.removeEdge(id, n.id, e)
	}
}

// SetEdge stores target in e, dispatching to SetSingle or Add.
//
// Outputs:
//
//	bool - False when no class in the node's chain declares e. Nothing
//	       is changed in that case.
//	error - Any error of SetSingle or Add.
func (n *Node) SetEdge(e schema.EdgeKind, target NodeID) (bool, error) {
	if !n.HasEdge(e) {
		return false, nil
	}
	if e.IsMulti() {
		return true, n.Add(e, target)
	}
	return true, n.SetSingle(e, target)
}

// RemoveEdge removes target from e, dispatching to ClearSingle or Remove.
// It returns false when no class in the node's chain declares e.
func (n *Node) RemoveEdge(e schema.EdgeKind, target NodeID) (bool, error) {
	if !n.HasEdge(e) {
		return false, nil
	}
	if e.IsMulti() {
		return true, n.Remove(e, target)
	}
	return true, n.ClearSingle(e)
}

// SetSingle points the single edge e at the node with the given id.
//
// Description:
//
//	Validates the target (existence, then kind, then factory, then
//	ownership constraints) before changing anything. On success the old
//	target is detached (owner link cleared, reverse record removed), the
//	new id is stored, and the new target is attached. Setting the current
//	value again is a no-op.
//
// Inputs:
//
//	e - A single edge declared by the node's class chain.
//	id - The target id. NullID is accepted only while the edge is unset.
//
// Outputs:
//
//	error - ErrInvalidEdgeKind, ErrEdgeEndpointMissing, ErrInvalidNodeKind,
//	        ErrFactoryMismatch, ErrNodeAlreadyOwned, ErrOwnershipCycle, or
//	        ErrCannotClearEdge.
func (n *Node) SetSingle(e schema.EdgeKind, id NodeID) error {
	const op = "Node.SetSingle"
	s, err := n.singleSlot(op, e)
	if err != nil {
		return err
	}
	if id == NullID {
		if s.single != NullID {
			return opErrorf(op, n.id, ErrCannotClearEdge, "%s holds %d", e, s.single)
		}
		return nil
	}
	t, err := n.lookupTarget(op, e, id)
	if err != nil {
		return err
	}
	return n.setSingle(op, e, s, t)
}

// SetSingleNode is SetSingle taking a node handle, which may belong to a
// different factory.
func (n *Node) SetSingleNode(e schema.EdgeKind, t *Node) error {
	const op = "Node.SetSingleNode"
	s, err := n.singleSlot(op, e)
	if err != nil {
		return err
	}
	return n.setSingle(op, e, s, t)
}

func (n *Node) setSingle(op string, e schema.EdgeKind, s *edgeSlot, t *Node) error {
	if err := n.resolveTarget(op, e, t); err != nil {
		return err
	}
	if s.single == t.id {
		return nil
	}
	if err := n.checkOwnership(op, e, t); err != nil {
		return err
	}
	if s.single != NullID {
		old := s.single
		s.single = NullID
		n.detach(e, old)
	}
	s.single = t.id
	n.attach(e, t)
	n.factory.touch()
	return nil
}

// ClearSingle detaches the current target of the single edge e, if any.
func (n *Node) ClearSingle(e schema.EdgeKind) error {
	s, err := n.singleSlot("Node.ClearSingle", e)
	if err != nil {
		return err
	}
	if s.single == NullID {
		return nil
	}
	old := s.single
	s.single = NullID
	n.detach(e, old)
	n.factory.touch()
	return nil
}

// Add appends the node with the given id to the multi edge e. Duplicates
// are kept; insertion order is preserved.
func (n *Node) Add(e schema.EdgeKind, id NodeID) error {
	const op = "Node.Add"
	s, err := n.multiSlot(op, e)
	if err != nil {
		return err
	}
	t, err := n.lookupTarget(op, e, id)
	if err != nil {
		return err
	}
	return n.add(op, e, s, t)
}

// AddNode is Add taking a node handle, which may belong to a different
// factory.
func (n *Node) AddNode(e schema.EdgeKind, t *Node) error {
	const op = "Node.AddNode"
	s, err := n.multiSlot(op, e)
	if err != nil {
		return err
	}
	return n.add(op, e, s, t)
}

func (n *Node) add(op string, e schema.EdgeKind, s *edgeSlot, t *Node) error {
	if err := n.resolveTarget(op, e, t); err != nil {
		return err
	}
	if err := n.checkOwnership(op, e, t); err != nil {
		return err
	}
	s.list.append(t.id)
	n.attach(e, t)
	n.factory.touch()
	return nil
}

// Remove erases the first occurrence of id from the multi edge e.
func (n *Node) Remove(e schema.EdgeKind, id NodeID) error {
	const op = "Node.Remove"
	s, err := n.multiSlot(op, e)
	if err != nil {
		return err
	}
	if !n.factory.Exists(id) {
		return opErrorf(op, n.id, ErrEdgeEndpointMissing, "target %d of %s does not exist", id, e)
	}
	i := s.list.index(id)
	if i < 0 {
		return opErrorf(op, n.id, ErrEdgeEndpointMissing, "%d is not in %s", id, e)
	}
	s.list.removeAt(i)
	n.detach(e, id)
	n.factory.touch()
	return nil
}

// Single returns the target of the single edge e, or nil when the edge is
// unset, undeclared, or its target is filtered.
func (n *Node) Single(e schema.EdgeKind) *Node {
	id := n.SingleID(e)
	if id == NullID || n.factory.IsFiltered(id) {
		return nil
	}
	t, _ := n.factory.Lookup(id)
	return t
}

// SingleID returns the raw id stored in the single edge e, ignoring the
// filter. Undeclared edges read as NullID.
func (n *Node) SingleID(e schema.EdgeKind) NodeID {
	if n.factory == nil || e.IsMulti() {
		return NullID
	}
	i, ok := n.layout.EdgeSlot(e)
	if !ok {
		return NullID
	}
	return n.edges[i].single
}

// Iterator returns an iterator positioned at the first visible target of
// the multi edge e.
func (n *Node) Iterator(e schema.EdgeKind) (ListIterator[*Node], error) {
	s, err := n.multiSlot("Node.Iterator", e)
	if err != nil {
		return ListIterator[*Node]{}, err
	}
	return newListIterator(n.factory, s.list, asNode), nil
}

// Targets iterates the visible targets of e in order. Single edges yield
// at most one node; undeclared edges yield nothing.
func (n *Node) Targets(e schema.EdgeKind) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		if n.factory == nil {
			return
		}
		if !e.IsMulti() {
			if t := n.Single(e); t != nil {
				yield(t)
			}
			return
		}
		it, err := n.Iterator(e)
		if err != nil {
			return
		}
		for t := range it.All() {
			if !yield(t) {
				return
			}
		}
	}
}

// IDs returns a copy of the raw ids stored in e, ignoring the filter.
func (n *Node) IDs(e schema.EdgeKind) []NodeID {
	if n.factory == nil {
		return nil
	}
	i, ok := n.layout.EdgeSlot(e)
	if !ok {
		return nil
	}
	s := &n.edges[i]
	if e.IsMulti() {
		return slices.Clone(s.list.ids)
	}
	if s.single == NullID {
		return nil
	}
	return []NodeID{s.single}
}

// Size returns the number of visible targets of e.
func (n *Node) Size(e schema.EdgeKind) int {
	count := 0
	for range n.Targets(e) {
		count++
	}
	return count
}

// IsEmpty reports whether e has no visible target.
func (n *Node) IsEmpty(e schema.EdgeKind) bool {
	for range n.Targets(e) {
		return false
	}
	return true
}

// holds reports whether e currently stores id.
func (n *Node) holds(e schema.EdgeKind, id NodeID) bool {
	i, ok := n.layout.EdgeSlot(e)
	if !ok {
		return false
	}
	if e.IsMulti() {
		return n.edges[i].list.index(id) >= 0
	}
	return n.edges[i].single == id
}
