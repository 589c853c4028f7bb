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

import "iter"

// ListIterator walks an ordered id list of a multi edge or a reverse edge
// bucket, skipping ids whose node is filtered or destroyed.
//
// T is the type targets are resolved to, e.g. *Node or a typed view such as
// VariableDeclarator. The zero value is an invalid iterator.
//
// Invalidation:
//
//	Any mutation of the backing list (add, remove, clear) invalidates
//	every iterator over it. Navigating or dereferencing an invalidated
//	iterator returns ErrIteratorInvalidated. Collect ids first when the
//	loop body mutates the same edge.
//
// Example:
//
//	it, err := decl.Iterator(schema.EdgeVariableDeclarationHasDeclarations)
//	for end := it.End(); !it.Equal(end); {
//	    n, err := it.Node()
//	    ...
//	    if err := it.Next(); err != nil { ... }
//	}
type ListIterator[T any] struct {
	factory *Factory
	list    *idList
	pos     int
	version uint64
	cast    func(*Node) (T, bool)
}

func asNode(n *Node) (*Node, bool) {
	return n, true
}

func newListIterator[T any](f *Factory, l *idList, cast func(*Node) (T, bool)) ListIterator[T] {
	it := ListIterator[T]{
		factory: f,
		list:    l,
		version: l.version,
		cast:    cast,
	}
	it.pos = it.seekForward(0)
	return it
}

func (it *ListIterator[T]) visible(id NodeID) bool {
	return it.factory.Exists(id) && !it.factory.IsFiltered(id)
}

func (it *ListIterator[T]) seekForward(from int) int {
	for i := from; i < len(it.list.ids); i++ {
		if it.visible(it.list.ids[i]) {
			return i
		}
	}
	return len(it.list.ids)
}

func (it *ListIterator[T]) seekBackward(from int) int {
	for i := min(from, len(it.list.ids)-1); i >= 0; i-- {
		if it.visible(it.list.ids[i]) {
			return i
		}
	}
	return -1
}

func (it *ListIterator[T]) check(op string) error {
	if it.list == nil || it.factory == nil {
		return opErrorf(op, NullID, ErrNoSuchElement, "iterator is not initialised")
	}
	if it.list.version != it.version {
		return opError(op, NullID, ErrIteratorInvalidated)
	}
	return nil
}

// Valid reports whether the iterator points at an element of an
// unmodified list.
func (it ListIterator[T]) Valid() bool {
	return it.check("ListIterator.Valid") == nil && it.pos < len(it.list.ids)
}

// Next advances to the next visible element, or to the end position.
func (it *ListIterator[T]) Next() error {
	const op = "ListIterator.Next"
	if err := it.check(op); err != nil {
		return err
	}
	if it.pos >= len(it.list.ids) {
		return opErrorf(op, NullID, ErrNoSuchElement, "already at end")
	}
	it.pos = it.seekForward(it.pos + 1)
	return nil
}

// Prev moves back to the previous visible element. At the first visible
// element it returns ErrNoSuchElement and stays in place.
func (it *ListIterator[T]) Prev() error {
	const op = "ListIterator.Prev"
	if err := it.check(op); err != nil {
		return err
	}
	p := it.seekBackward(it.pos - 1)
	if p < 0 {
		return opErrorf(op, NullID, ErrNoSuchElement, "already at first element")
	}
	it.pos = p
	return nil
}

// ID returns the id at the current position.
func (it ListIterator[T]) ID() (NodeID, error) {
	const op = "ListIterator.ID"
	if err := it.check(op); err != nil {
		return NullID, err
	}
	if it.pos >= len(it.list.ids) {
		return NullID, opErrorf(op, NullID, ErrNoSuchElement, "dereferencing end")
	}
	return it.list.ids[it.pos], nil
}

// Node resolves the current id to its node.
func (it ListIterator[T]) Node() (*Node, error) {
	id, err := it.ID()
	if err != nil {
		return nil, err
	}
	n, ok := it.factory.Lookup(id)
	if !ok {
		return nil, opError("ListIterator.Node", id, ErrInvalidNodeID)
	}
	return n, nil
}

// Value resolves the current id to T. A node that cannot be represented
// as T yields ErrInvalidNodeKind.
func (it ListIterator[T]) Value() (T, error) {
	var zero T
	n, err := it.Node()
	if err != nil {
		return zero, err
	}
	v, ok := it.cast(n)
	if !ok {
		return zero, opErrorf("ListIterator.Value", n.id, ErrInvalidNodeKind, "unexpected %s", n.kind)
	}
	return v, nil
}

// End returns the end position of the same list.
func (it ListIterator[T]) End() ListIterator[T] {
	end := it
	if it.list != nil {
		end.pos = len(it.list.ids)
	}
	return end
}

// Begin returns the first visible position of the same list, re-reading
// the list version.
func (it ListIterator[T]) Begin() ListIterator[T] {
	if it.list == nil {
		return it
	}
	return newListIterator(it.factory, it.list, it.cast)
}

// Equal reports whether both iterators point at the same position of the
// same list.
func (it ListIterator[T]) Equal(other ListIterator[T]) bool {
	return it.list == other.list && it.pos == other.pos
}

// All replays the visible elements from the beginning. Iteration stops
// early if the list is mutated or an element cannot be represented as T.
func (it ListIterator[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		if it.list == nil {
			return
		}
		cur := it.Begin()
		for cur.Valid() {
			v, err := cur.Value()
			if err != nil || !yield(v) {
				return
			}
			if cur.Next() != nil {
				return
			}
		}
	}
}

// Len counts the visible elements.
func (it ListIterator[T]) Len() int {
	count := 0
	for range it.All() {
		count++
	}
	return count
}
