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
	"iter"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/AleutianAI/asgstore/services/asg/schema"
	"github.com/AleutianAI/asgstore/services/asg/strtable"
)

// NodeID addresses a node within its factory.
type NodeID uint32

// NullID is the "no node" id. It is never assigned to a node and terminates
// id runs in the binary format.
const NullID NodeID = 0

// DefaultMaxNodes is the default maximum number of live nodes.
const DefaultMaxNodes = 10_000_000

// FactoryOptions configures Factory behaviour and limits.
type FactoryOptions struct {
	// MaxNodes is the maximum number of live nodes. It also bounds the
	// ids a loaded file may use; zero or less means DefaultMaxNodes there.
	// Default: 10,000,000
	MaxNodes int

	// Logger receives debug records about destruction and indexing.
	// Default: discard.
	Logger *slog.Logger
}

// DefaultFactoryOptions returns the default factory configuration.
func DefaultFactoryOptions() FactoryOptions {
	return FactoryOptions{
		MaxNodes: DefaultMaxNodes,
		Logger:   slog.New(slog.DiscardHandler),
	}
}

// FactoryOption is a functional option for configuring Factory.
type FactoryOption func(*FactoryOptions)

// WithMaxNodes sets the maximum number of live nodes and the largest
// node id Load accepts.
func WithMaxNodes(n int) FactoryOption {
	return func(o *FactoryOptions) {
		o.MaxNodes = n
	}
}

// WithLogger sets the logger for debug records.
func WithLogger(l *slog.Logger) FactoryOption {
	return func(o *FactoryOptions) {
		if l != nil {
			o.Logger = l
		}
	}
}

// Factory owns the nodes of one graph.
//
// Thread Safety:
//
//	Factory is NOT safe for concurrent use.
type Factory struct {
	graphID uuid.UUID
	strings *strtable.Table

	// nodes is indexed by NodeID. Slot 0 is always nil and destroyed nodes
	// leave a nil slot behind; ids are not reused until Clear.
	nodes []*Node
	live  int

	filter   []FilterState
	filterOn bool

	reverse *ReverseEdges

	// epoch advances on every mutation and invalidates cached hashes.
	epoch uint64

	// foreignHeaders holds header blocks of the last loaded file that this
	// package does not interpret. They are written back on save.
	foreignHeaders []rawHeader

	options FactoryOptions
	logger  *slog.Logger
}

// NewFactory creates an empty factory using table for string attributes.
//
// Description:
//
//	The factory starts with the filter turned on, no reverse edge index,
//	and a fresh random graph id. A nil table allocates a private one.
//
// Inputs:
//
//	table - String table for string attributes. May be shared.
//	opts - Optional configuration options.
//
// Example:
//
//	f := NewFactory(strtable.New(), WithLogger(logger))
//	prog, err := f.CreateNode(schema.KindProgram)
func NewFactory(table *strtable.Table, opts ...FactoryOption) *Factory {
	options := DefaultFactoryOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if table == nil {
		table = strtable.New()
	}
	return &Factory{
		graphID:  uuid.New(),
		strings:  table,
		nodes:    []*Node{nil},
		filter:   []FilterState{NotFiltered},
		filterOn: true,
		epoch:    1,
		options:  options,
		logger:   options.Logger,
	}
}

// GraphID returns the identity written into saved files.
func (f *Factory) GraphID() uuid.UUID {
	return f.graphID
}

// StringTable returns the table string attributes are interned in.
func (f *Factory) StringTable() *strtable.Table {
	return f.strings
}

// Logger returns the factory logger.
func (f *Factory) Logger() *slog.Logger {
	return f.logger
}

func (f *Factory) touch() {
	f.epoch++
}

// CreateNode creates a node of a concrete kind.
//
// Description:
//
//	Allocates the next unused id. Ids are never handed out twice within
//	the lifetime of a factory, except after Clear. The node starts with
//	zero attributes, empty edges, and no owner. When the reverse edge index
//	is enabled the node gets an (empty) entry in it.
//
// Outputs:
//
//	*Node - The new node.
//	error - ErrInvalidNodeKind for abstract or out of range kinds,
//	        ErrMaxNodesExceeded at capacity.
func (f *Factory) CreateNode(kind schema.NodeKind) (*Node, error) {
	const op = "Factory.CreateNode"
	if kind.IsAbstract() {
		return nil, opErrorf(op, NullID, ErrInvalidNodeKind, "%s cannot be instantiated", kind)
	}
	if f.options.MaxNodes > 0 && f.live >= f.options.MaxNodes {
		return nil, opErrorf(op, NullID, ErrMaxNodesExceeded, "limit %d", f.options.MaxNodes)
	}
	id := NodeID(len(f.nodes))
	return f.place(id, kind), nil
}

// createNodeWithID recreates a node under a fixed id while loading.
func (f *Factory) createNodeWithID(kind schema.NodeKind, id NodeID) (*Node, error) {
	const op = "Factory.createNodeWithID"
	if kind.IsAbstract() {
		return nil, opErrorf(op, id, ErrInvalidNodeKind, "%s cannot be instantiated", kind)
	}
	if id == NullID {
		return nil, opErrorf(op, id, ErrInvalidNodeID, "null id in node record")
	}
	if limit := f.idLimit(); int64(id) > int64(limit) {
		return nil, opErrorf(op, id, ErrInvalidNodeID, "id beyond limit %d", limit)
	}
	if f.Exists(id) {
		return nil, opError(op, id, ErrNodeExists)
	}
	if f.options.MaxNodes > 0 && f.live >= f.options.MaxNodes {
		return nil, opErrorf(op, id, ErrMaxNodesExceeded, "limit %d", f.options.MaxNodes)
	}
	for NodeID(len(f.nodes)) <= id {
		f.nodes = append(f.nodes, nil)
		f.filter = append(f.filter, NotFiltered)
	}
	return f.place(id, kind), nil
}

// idLimit is the largest id a node record may carry.
func (f *Factory) idLimit() int {
	if f.options.MaxNodes > 0 {
		return f.options.MaxNodes
	}
	return DefaultMaxNodes
}

func (f *Factory) place(id NodeID, kind schema.NodeKind) *Node {
	n := newNode(f, id, kind)
	if int(id) == len(f.nodes) {
		f.nodes = append(f.nodes, n)
		f.filter = append(f.filter, NotFiltered)
	} else {
		f.nodes[id] = n
		f.filter[id] = NotFiltered
	}
	f.live++
	recordNodeMetrics(context.Background(), 1, 0)
	if f.reverse != nil {
		f.reverse.insertNode(id)
	}
	f.touch()
	return n
}

// Exists reports whether id names a live node.
func (f *Factory) Exists(id NodeID) bool {
	return id != NullID && int(id) < len(f.nodes) && f.nodes[id] != nil
}

// Node returns the live node with the given id.
//
// Outputs:
//
//	*Node - The node. Never nil when error is nil.
//	error - ErrInvalidNodeID when id is null, out of range, or destroyed.
func (f *Factory) Node(id NodeID) (*Node, error) {
	if !f.Exists(id) {
		return nil, opError("Factory.Node", id, ErrInvalidNodeID)
	}
	return f.nodes[id], nil
}

// Lookup returns the node with the given id, or false if there is none.
// It ignores the filter.
func (f *Factory) Lookup(id NodeID) (*Node, bool) {
	if !f.Exists(id) {
		return nil, false
	}
	return f.nodes[id], true
}

// Kind returns the kind of the node with the given id.
func (f *Factory) Kind(id NodeID) (schema.NodeKind, error) {
	n, err := f.Node(id)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// NodeCount returns the number of live nodes, filtered or not.
func (f *Factory) NodeCount() int {
	return f.live
}

// IsEmpty reports whether the factory holds no live nodes.
func (f *Factory) IsEmpty() bool {
	return f.live == 0
}

// MaxID returns the largest id ever allocated since the last Clear.
func (f *Factory) MaxID() NodeID {
	return NodeID(len(f.nodes) - 1)
}

// Nodes iterates the live, visible nodes in id order.
//
// Example:
//
//	for n := range f.Nodes() {
//	    fmt.Println(n.ID(), n.Kind())
//	}
func (f *Factory) Nodes() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for id := 1; id < len(f.nodes); id++ {
			n := f.nodes[id]
			if n == nil || f.IsFiltered(NodeID(id)) {
				continue
			}
			if !yield(n) {
				return
			}
		}
	}
}

// NodesOfKind iterates the visible nodes that are instances of kind,
// including subkinds of an abstract kind.
func (f *Factory) NodesOfKind(kind schema.NodeKind) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for n := range f.Nodes() {
			if schema.IsA(n.kind, kind) && !yield(n) {
				return
			}
		}
	}
}

// Roots iterates the visible nodes without an owner, in id order.
func (f *Factory) Roots() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for n := range f.Nodes() {
			if n.parent == NullID && !yield(n) {
				return
			}
		}
	}
}

// DestroyNode destroys a node and the whole subtree it owns.
//
// Description:
//
//	Every node of the subtree first drops its outgoing edges (clearing its
//	children's ownership links and its reverse index records). Then every
//	edge pointing into the subtree from outside, including the owner's
//	edge to the subtree root, is removed from its source. Reference edges
//	that pointed at a destroyed node read as absent afterwards. The filter
//	is suspended for the duration and restored on return.
//
// Outputs:
//
//	error - ErrInvalidNodeID if id is not a live node.
func (f *Factory) DestroyNode(id NodeID) error {
	if !f.Exists(id) {
		return opError("Factory.DestroyNode", id, ErrInvalidNodeID)
	}
	restore := f.TurnFilterOffSafely()
	defer restore()
	return f.destroy(f.subtreeIDs(id))
}

// DestroyThisNodeOnly destroys a single node. The nodes it owned survive
// as unowned roots.
func (f *Factory) DestroyThisNodeOnly(id NodeID) error {
	if !f.Exists(id) {
		return opError("Factory.DestroyThisNodeOnly", id, ErrInvalidNodeID)
	}
	restore := f.TurnFilterOffSafely()
	defer restore()
	return f.destroy([]NodeID{id})
}

func (f *Factory) destroy(ids []NodeID) error {
	for _, id := range ids {
		f.nodes[id].prepareDelete()
	}
	for _, id := range ids {
		if f.reverse != nil {
			if err := f.reverse.removeNode(id); err != nil {
				return err
			}
		}
		// Without a complete index the incoming edges have to be found by
		// scanning.
		if f.reverse == nil || f.reverse.selector != nil {
			if err := f.detachIncoming(id); err != nil {
				return err
			}
		}
		n := f.nodes[id]
		n.factory = nil
		f.nodes[id] = nil
		f.filter[id] = NotFiltered
		f.live--
		f.logger.Debug("node destroyed",
			slog.Uint64("id", uint64(id)),
			slog.String("kind", n.kind.String()),
		)
	}
	recordNodeMetrics(context.Background(), 0, len(ids))
	f.touch()
	return nil
}

// detachIncoming removes every forward edge pointing at id by scanning the
// node table. Used when no reverse index is available.
func (f *Factory) detachIncoming(id NodeID) error {
	for _, src := range f.nodes {
		if src == nil || src.id == id {
			continue
		}
		for i, e := range src.layout.Edges {
			slot := &src.edges[i]
			if e.IsMulti() {
				for slot.list.index(id) >= 0 {
					if err := src.Remove(e, id); err != nil {
						return err
					}
				}
			} else if slot.single == id {
				src.ClearSingle(e)
			}
		}
	}
	return nil
}

// subtreeIDs returns id and everything it owns, in preorder.
func (f *Factory) subtreeIDs(id NodeID) []NodeID {
	var out []NodeID
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n, ok := f.Lookup(cur)
		if !ok {
			continue
		}
		out = append(out, cur)
		var children []NodeID
		n.ownedIDs(func(child NodeID) { children = append(children, child) })
		slices.Reverse(children)
		stack = append(stack, children...)
	}
	return out
}

// Clear destroys every node, disables the reverse edge index, and resets
// the id space and filter. Handles to old nodes report ErrInvalidNodeID.
func (f *Factory) Clear() {
	for _, n := range f.nodes {
		if n != nil {
			n.factory = nil
		}
	}
	f.nodes = []*Node{nil}
	f.filter = []FilterState{NotFiltered}
	f.live = 0
	f.reverse = nil
	f.foreignHeaders = nil
	f.touch()
}

// SwapStringTable moves every string attribute into table and makes it
// the factory's string table. Keys are re-interned through their text, so
// the old table is left untouched and may keep serving other factories.
func (f *Factory) SwapStringTable(table *strtable.Table) {
	if table == nil || table == f.strings {
		return
	}
	remap := make(map[strtable.Key]strtable.Key)
	for _, n := range f.nodes {
		if n == nil {
			continue
		}
		for i, a := range n.layout.Attrs {
			if a.Decl().Type != schema.AttrString {
				continue
			}
			old := strtable.Key(n.attrs[i])
			if old == strtable.Empty {
				continue
			}
			nk, ok := remap[old]
			if !ok {
				nk = table.Set(f.strings.Get(old))
				remap[old] = nk
			}
			n.attrs[i] = uint64(nk)
		}
	}
	f.strings = table
	f.touch()
}
