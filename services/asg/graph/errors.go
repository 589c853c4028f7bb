// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph stores abstract semantic graphs: typed nodes connected by
// ownership and reference edges, with an optional reverse edge index, a
// per-node visibility filter, and a binary save/load codec.
//
// # Ownership Model
//
// A Factory owns every node it creates. Nodes are addressed by NodeID and
// are never moved; a *Node handle stays valid until the node is destroyed or
// the factory is cleared. Ownership edges form a forest: a node has at most
// one owner, and destroying a node destroys everything it owns. Reference
// edges never affect ownership.
//
// # Filtering
//
// While the filter is turned on, filtered nodes are invisible to getters,
// iterators, and traversals. Storage operations (save, reverse edge
// construction, destruction) suspend the filter for their duration with
// TurnFilterOffSafely, which restores it on every exit path.
//
// # Thread Safety
//
// Factory is NOT safe for concurrent use. Use one Factory per goroutine, or
// guard a shared Factory externally. A strtable.Table may be shared.
package graph

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/asgstore/services/asg/binio"
)

// Sentinel errors for graph operations.
var (
	// ErrInvalidNodeID is returned when an id does not name a live node.
	ErrInvalidNodeID = errors.New("invalid node id")

	// ErrInvalidNodeKind is returned when a node kind is abstract, out of
	// range, or not accepted by the edge or operation it is used with.
	ErrInvalidNodeKind = errors.New("invalid node kind")

	// ErrEdgeEndpointMissing is returned when an edge target does not exist
	// or is not present in the edge being removed from.
	ErrEdgeEndpointMissing = errors.New("edge endpoint missing")

	// ErrFactoryMismatch is returned when an edge would connect nodes of
	// two different factories.
	ErrFactoryMismatch = errors.New("node belongs to a different factory")

	// ErrCannotClearEdge is returned when a populated single edge is set to
	// the null id. Use ClearSingle to detach it.
	ErrCannotClearEdge = errors.New("single edge cannot be cleared by assigning the null id")

	// ErrInvalidEdgeKind is returned when an edge kind is not declared by a
	// node's class chain, or cannot point at the node in the reverse index.
	ErrInvalidEdgeKind = errors.New("invalid edge kind")

	// ErrIteratorInvalidated is returned when an iterator is used after its
	// backing list was mutated.
	ErrIteratorInvalidated = errors.New("iterator invalidated")

	// ErrNoSuchElement is returned when an iterator is moved or dereferenced
	// past either end of its list.
	ErrNoSuchElement = errors.New("no such element")

	// ErrNodeAlreadyOwned is returned when an ownership edge targets a node
	// that already has an owner.
	ErrNodeAlreadyOwned = errors.New("node already has an owner")

	// ErrOwnershipCycle is returned when an ownership edge would make a
	// node own one of its ancestors.
	ErrOwnershipCycle = errors.New("ownership edge would create a cycle")

	// ErrInvalidAttribute is returned when an attribute is not declared for
	// a node kind, is accessed with the wrong type, or holds an invalid value.
	ErrInvalidAttribute = errors.New("invalid attribute")

	// ErrMaxNodesExceeded is returned when the factory reached its
	// configured node capacity.
	ErrMaxNodesExceeded = errors.New("maximum node count exceeded")

	// ErrNodeExists is returned when loading a record for an id that is
	// already occupied.
	ErrNodeExists = errors.New("node id already in use")

	// ErrReverseEdgesDisabled is returned when the reverse edge index is
	// required but not enabled.
	ErrReverseEdgesDisabled = errors.New("reverse edges are not enabled")

	// ErrReverseEdgesInconsistent is returned by Verify when the reverse
	// index disagrees with the forward edges.
	ErrReverseEdgesInconsistent = errors.New("reverse edges inconsistent with forward edges")

	// ErrWrongFileType is returned when a file is not a graph file or was
	// written for another language.
	ErrWrongFileType = errors.New("wrong file type")

	// ErrVersionMismatch is returned when a file was written with an
	// incompatible API or binary version.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrChecksumMismatch is returned when a file's trailer digest does not
	// match its content.
	ErrChecksumMismatch = binio.ErrChecksumMismatch

	// ErrFilterMismatch is returned when a saved filter does not match the
	// factory's node table.
	ErrFilterMismatch = errors.New("filter does not match the factory")
)

// Error describes a failed graph operation.
//
// Op names the operation, e.g. "Node.SetSingle". ID is the node the
// operation was applied to, or 0. Err wraps one of the sentinel errors and
// can be matched with errors.Is.
type Error struct {
	Op  string
	ID  NodeID
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.ID != NullID {
		return fmt.Sprintf("%s: node %d: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, id NodeID, err error) error {
	return &Error{Op: op, ID: id, Err: err}
}

func opErrorf(op string, id NodeID, sentinel error, format string, args ...any) error {
	return &Error{Op: op, ID: id, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}
