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
	"math"

	"github.com/AleutianAI/asgstore/services/asg/schema"
	"github.com/AleutianAI/asgstore/services/asg/strtable"
)

// edgeSlot stores one edge of a node. Single edges use single, multi edges
// use list (never nil for multi edges).
type edgeSlot struct {
	single NodeID
	list   *idList
}

// Node is one vertex of the graph.
//
// Attributes and edges are stored in slots laid out by schema.LayoutOf for
// the node's kind. Attribute values are kept as raw 64 bit words: bools as
// 0/1, signed ints sign extended, floats as IEEE bits, strings as string
// table keys, and enums as ordinals.
type Node struct {
	id      NodeID
	kind    schema.NodeKind
	layout  *schema.Layout
	factory *Factory

	parent     NodeID
	parentEdge schema.EdgeKind

	attrs []uint64
	edges []edgeSlot

	hash      uint64
	hashEpoch uint64
}

func newNode(f *Factory, id NodeID, kind schema.NodeKind) *Node {
	layout := schema.LayoutOf(kind)
	n := &Node{
		id:      id,
		kind:    kind,
		layout:  layout,
		factory: f,
		attrs:   make([]uint64, len(layout.Attrs)),
		edges:   make([]edgeSlot, len(layout.Edges)),
	}
	for i, e := range layout.Edges {
		if e.IsMulti() {
			n.edges[i].list = &idList{}
		}
	}
	return n
}

// ID returns the node id.
func (n *Node) ID() NodeID {
	return n.id
}

// Kind returns the concrete kind of the node.
func (n *Node) Kind() schema.NodeKind {
	return n.kind
}

// IsA reports whether the node is an instance of kind.
func (n *Node) IsA(kind schema.NodeKind) bool {
	return schema.IsA(n.kind, kind)
}

// Factory returns the owning factory, or nil once the node was destroyed.
func (n *Node) Factory() *Factory {
	return n.factory
}

// Alive reports whether the node still belongs to a factory.
func (n *Node) Alive() bool {
	return n.factory != nil
}

// ParentID returns the id of the owning node, or NullID.
func (n *Node) ParentID() NodeID {
	return n.parent
}

// ParentEdge returns the ownership edge through which the node is owned.
func (n *Node) ParentEdge() schema.EdgeKind {
	return n.parentEdge
}

// Parent returns the owning node, or nil if there is none or it is
// filtered.
func (n *Node) Parent() *Node {
	if n.factory == nil || n.parent == NullID || n.factory.IsFiltered(n.parent) {
		return nil
	}
	p, _ := n.factory.Lookup(n.parent)
	return p
}

func (n *Node) check(op string) error {
	if n == nil || n.factory == nil {
		var id NodeID
		if n != nil {
			id = n.id
		}
		return opErrorf(op, id, ErrInvalidNodeID, "node was destroyed")
	}
	return nil
}

// ownedIDs calls fn for every target of every ownership edge, in layout
// order. Filter state is ignored.
func (n *Node) ownedIDs(fn func(NodeID)) {
	for i, e := range n.layout.Edges {
		if !e.IsOwnership() {
			continue
		}
		s := &n.edges[i]
		if e.IsMulti() {
			for _, id := range s.list.ids {
				fn(id)
			}
		} else if s.single != NullID {
			fn(s.single)
		}
	}
}

// prepareDelete drops every outgoing edge: children lose their owner link
// and the reverse index forgets this node as a source.
func (n *Node) prepareDelete() {
	for i, e := range n.layout.Edges {
		s := &n.edges[i]
		if e.IsMulti() {
			ids := s.list.ids
			s.list.clear()
			for _, id := range ids {
				n.detach(e, id)
			}
		} else if s.single != NullID {
			id := s.single
			s.single = NullID
			n.detach(e, id)
		}
	}
}

func (n *Node) attrSlot(op string, a schema.AttrKind, typ schema.AttrType) (int, error) {
	if err := n.check(op); err != nil {
		return 0, err
	}
	slot, ok := n.layout.AttrSlot(a)
	if !ok {
		return 0, opErrorf(op, n.id, ErrInvalidAttribute, "%s is not an attribute of %s", a, n.kind)
	}
	if got := a.Decl().Type; got != typ {
		return 0, opErrorf(op, n.id, ErrInvalidAttribute, "%s is %s, not %s", a, got, typ)
	}
	return slot, nil
}

// Bool returns a boolean attribute.
func (n *Node) Bool(a schema.AttrKind) (bool, error) {
	slot, err := n.attrSlot("Node.Bool", a, schema.AttrBool)
	if err != nil {
		return false, err
	}
	return n.attrs[slot] != 0, nil
}

// SetBool sets a boolean attribute.
func (n *Node) SetBool(a schema.AttrKind, v bool) error {
	slot, err := n.attrSlot("Node.SetBool", a, schema.AttrBool)
	if err != nil {
		return err
	}
	var raw uint64
	if v {
		raw = 1
	}
	n.attrs[slot] = raw
	n.factory.touch()
	return nil
}

// Int returns a signed integer attribute.
func (n *Node) Int(a schema.AttrKind) (int32, error) {
	slot, err := n.attrSlot("Node.Int", a, schema.AttrInt)
	if err != nil {
		return 0, err
	}
	return int32(int64(n.attrs[slot])), nil
}

// SetInt sets a signed integer attribute.
func (n *Node) SetInt(a schema.AttrKind, v int32) error {
	slot, err := n.attrSlot("Node.SetInt", a, schema.AttrInt)
	if err != nil {
		return err
	}
	n.attrs[slot] = uint64(int64(v))
	n.factory.touch()
	return nil
}

// Uint returns an unsigned integer attribute.
func (n *Node) Uint(a schema.AttrKind) (uint32, error) {
	slot, err := n.attrSlot("Node.Uint", a, schema.AttrUint)
	if err != nil {
		return 0, err
	}
	return uint32(n.attrs[slot]), nil
}

// SetUint sets an unsigned integer attribute.
func (n *Node) SetUint(a schema.AttrKind, v uint32) error {
	slot, err := n.attrSlot("Node.SetUint", a, schema.AttrUint)
	if err != nil {
		return err
	}
	n.attrs[slot] = uint64(v)
	n.factory.touch()
	return nil
}

// Float returns a floating point attribute.
func (n *Node) Float(a schema.AttrKind) (float64, error) {
	slot, err := n.attrSlot("Node.Float", a, schema.AttrFloat)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(n.attrs[slot]), nil
}

// SetFloat sets a floating point attribute.
func (n *Node) SetFloat(a schema.AttrKind, v float64) error {
	slot, err := n.attrSlot("Node.SetFloat", a, schema.AttrFloat)
	if err != nil {
		return err
	}
	n.attrs[slot] = math.Float64bits(v)
	n.factory.touch()
	return nil
}

// String returns a string attribute resolved through the string table.
func (n *Node) String(a schema.AttrKind) (string, error) {
	key, err := n.StringKey(a)
	if err != nil {
		return "", err
	}
	return n.factory.strings.Get(key), nil
}

// StringKey returns the string table key of a string attribute.
func (n *Node) StringKey(a schema.AttrKind) (strtable.Key, error) {
	slot, err := n.attrSlot("Node.StringKey", a, schema.AttrString)
	if err != nil {
		return strtable.Empty, err
	}
	return strtable.Key(n.attrs[slot]), nil
}

// SetString interns s and stores its key.
func (n *Node) SetString(a schema.AttrKind, s string) error {
	slot, err := n.attrSlot("Node.SetString", a, schema.AttrString)
	if err != nil {
		return err
	}
	n.attrs[slot] = uint64(n.factory.strings.Set(s))
	n.factory.touch()
	return nil
}

// SetStringKey stores a key that must already exist in the string table.
func (n *Node) SetStringKey(a schema.AttrKind, k strtable.Key) error {
	const op = "Node.SetStringKey"
	slot, err := n.attrSlot(op, a, schema.AttrString)
	if err != nil {
		return err
	}
	if !n.factory.strings.Contains(k) {
		return opErrorf(op, n.id, ErrInvalidAttribute, "unknown string key %d", k)
	}
	n.attrs[slot] = uint64(k)
	n.factory.touch()
	return nil
}

// Enum returns the ordinal of an enum attribute.
func (n *Node) Enum(a schema.AttrKind) (uint8, error) {
	slot, err := n.attrSlot("Node.Enum", a, schema.AttrEnum)
	if err != nil {
		return 0, err
	}
	return uint8(n.attrs[slot]), nil
}

// EnumName returns the value name of an enum attribute.
func (n *Node) EnumName(a schema.AttrKind) (string, error) {
	v, err := n.Enum(a)
	if err != nil {
		return "", err
	}
	return a.Decl().Enum.Name(v), nil
}

// SetEnum sets an enum attribute to an ordinal of its enum.
func (n *Node) SetEnum(a schema.AttrKind, v uint8) error {
	const op = "Node.SetEnum"
	slot, err := n.attrSlot(op, a, schema.AttrEnum)
	if err != nil {
		return err
	}
	if int(v) >= len(a.Decl().Enum.Values()) {
		return opErrorf(op, n.id, ErrInvalidAttribute, "%d is not a value of %s", v, a)
	}
	n.attrs[slot] = uint64(v)
	n.factory.touch()
	return nil
}

// Name returns the Named.name attribute, or "" for kinds that are not
// Named.
func (n *Node) Name() string {
	s, err := n.String(schema.AttrNamedName)
	if err != nil {
		return ""
	}
	return s
}
