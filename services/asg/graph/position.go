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
	"cmp"
	"slices"
	"strings"

	"github.com/AleutianAI/asgstore/services/asg/schema"
	"github.com/AleutianAI/asgstore/services/asg/strtable"
)

// Range is the source position of a Positioned node. Wide coordinates
// count tabs as expanded columns.
type Range struct {
	Path        string
	Line        uint32
	Col         uint32
	EndLine     uint32
	EndCol      uint32
	WideLine    uint32
	WideCol     uint32
	WideEndLine uint32
	WideEndCol  uint32
}

var rangeAttrs = [...]schema.AttrKind{
	schema.AttrPositionedLine,
	schema.AttrPositionedCol,
	schema.AttrPositionedEndLine,
	schema.AttrPositionedEndCol,
	schema.AttrPositionedWideLine,
	schema.AttrPositionedWideCol,
	schema.AttrPositionedWideEndLine,
	schema.AttrPositionedWideEndCol,
}

func (r *Range) fields() [8]*uint32 {
	return [8]*uint32{&r.Line, &r.Col, &r.EndLine, &r.EndCol, &r.WideLine, &r.WideCol, &r.WideEndLine, &r.WideEndCol}
}

func strtableKey(n *Node, a schema.AttrKind) strtable.Key {
	slot, ok := n.layout.AttrSlot(a)
	if !ok {
		return strtable.Empty
	}
	return strtable.Key(n.attrs[slot])
}

// Position returns the source range of a Positioned node.
func (n *Node) Position() (Range, error) {
	const op = "Node.Position"
	if err := n.check(op); err != nil {
		return Range{}, err
	}
	if !n.IsA(schema.KindPositioned) {
		return Range{}, opErrorf(op, n.id, ErrInvalidNodeKind, "%s is not Positioned", n.kind)
	}
	r := Range{Path: n.factory.strings.Get(strtableKey(n, schema.AttrPositionedPath))}
	for i, p := range r.fields() {
		slot, _ := n.layout.AttrSlot(rangeAttrs[i])
		*p = uint32(n.attrs[slot])
	}
	return r, nil
}

// SetPosition stores the source range of a Positioned node.
func (n *Node) SetPosition(r Range) error {
	const op = "Node.SetPosition"
	if err := n.check(op); err != nil {
		return err
	}
	if !n.IsA(schema.KindPositioned) {
		return opErrorf(op, n.id, ErrInvalidNodeKind, "%s is not Positioned", n.kind)
	}
	slot, _ := n.layout.AttrSlot(schema.AttrPositionedPath)
	n.attrs[slot] = uint64(n.factory.strings.Set(r.Path))
	for i, p := range r.fields() {
		slot, _ := n.layout.AttrSlot(rangeAttrs[i])
		n.attrs[slot] = uint64(*p)
	}
	n.factory.touch()
	return nil
}

// ComparePosition orders two Positioned nodes by path, then wide start
// line and column ascending, then wide end line and column descending (so
// an enclosing node sorts before what it encloses), then node kind, and
// finally node id.
//
// Outputs:
//
//	int - Negative, zero, or positive, like cmp.Compare.
//	error - ErrInvalidNodeKind if either node is not Positioned.
func ComparePosition(a, b *Node) (int, error) {
	ra, err := a.Position()
	if err != nil {
		return 0, err
	}
	rb, err := b.Position()
	if err != nil {
		return 0, err
	}
	if c := strings.Compare(ra.Path, rb.Path); c != 0 {
		return c, nil
	}
	if c := cmp.Compare(ra.WideLine, rb.WideLine); c != 0 {
		return c, nil
	}
	if c := cmp.Compare(ra.WideCol, rb.WideCol); c != 0 {
		return c, nil
	}
	if c := cmp.Compare(rb.WideEndLine, ra.WideEndLine); c != 0 {
		return c, nil
	}
	if c := cmp.Compare(rb.WideEndCol, ra.WideEndCol); c != 0 {
		return c, nil
	}
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c, nil
	}
	return cmp.Compare(a.id, b.id), nil
}

// SortByPosition sorts Positioned nodes with ComparePosition.
func SortByPosition(nodes []*Node) error {
	for _, n := range nodes {
		if _, err := n.Position(); err != nil {
			return err
		}
	}
	slices.SortFunc(nodes, func(a, b *Node) int {
		c, _ := ComparePosition(a, b)
		return c
	})
	return nil
}
