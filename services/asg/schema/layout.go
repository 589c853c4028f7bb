// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import "fmt"

// Layout is the flattened view of one node kind: its class chain and the
// slot index of every attribute and edge it carries.
//
// Classes is ordered base first with every shared base listed once, which
// is also the order the binary codec writes the node body in.
type Layout struct {
	Kind    NodeKind
	Classes []NodeKind
	Attrs   []AttrKind
	Edges   []EdgeKind

	attrSlot [NumAttrKinds]int16
	edgeSlot [NumEdgeKinds]int16
}

// AttrSlot returns the slot of a within nodes of this layout.
func (l *Layout) AttrSlot(a AttrKind) (int, bool) {
	if !a.Valid() || l.attrSlot[a] < 0 {
		return 0, false
	}
	return int(l.attrSlot[a]), true
}

// EdgeSlot returns the slot of e within nodes of this layout.
func (l *Layout) EdgeSlot(e EdgeKind) (int, bool) {
	if !e.Valid() || l.edgeSlot[e] < 0 {
		return 0, false
	}
	return int(l.edgeSlot[e]), true
}

// HasClass reports whether c is part of the class chain.
func (l *Layout) HasClass(c NodeKind) bool {
	return IsA(l.Kind, c)
}

var (
	kindsByName   map[string]NodeKind
	isA           [NumNodeKinds][NumNodeKinds]bool
	acceptsTarget [NumEdgeKinds][NumNodeKinds]bool
	possibleEdges [NumNodeKinds][NumEdgeKinds]bool
	classAttrs    [NumNodeKinds][]AttrKind
	classEdges    [NumNodeKinds][]EdgeKind
	layouts       [NumNodeKinds]*Layout
)

func init() {
	kindsByName = make(map[string]NodeKind, NumNodeKinds)
	for k := NodeKind(0); k < NumNodeKinds; k++ {
		if classes[k].name == "" {
			panic(fmt.Sprintf("schema: node kind %d has no class declaration", k))
		}
		kindsByName[classes[k].name] = k
	}

	for k := NodeKind(0); k < NumNodeKinds; k++ {
		for _, c := range linearize(k) {
			isA[k][c] = true
		}
	}

	for a := AttrKind(0); a < NumAttrKinds; a++ {
		d := attrs[a]
		if d.Name == "" {
			panic(fmt.Sprintf("schema: attribute %d has no declaration", a))
		}
		if d.Type == AttrEnum && (d.Enum == EnumNone || d.Enum >= NumEnumKinds) {
			panic(fmt.Sprintf("schema: enum attribute %s has no enum", a))
		}
		classAttrs[d.Class] = append(classAttrs[d.Class], a)
	}

	for e := EdgeNone + 1; e < NumEdgeKinds; e++ {
		d := edges[e]
		if d.Name == "" || len(d.Targets) == 0 {
			panic(fmt.Sprintf("schema: edge %d has no declaration", e))
		}
		classEdges[d.Class] = append(classEdges[d.Class], e)
		for k := NodeKind(0); k < NumNodeKinds; k++ {
			for _, t := range d.Targets {
				if isA[k][t] {
					acceptsTarget[e][k] = true
					possibleEdges[k][e] = true
					break
				}
			}
		}
	}

	for k := NodeKind(0); k < NumNodeKinds; k++ {
		layouts[k] = buildLayout(k)
	}
}

// linearize returns the class chain of k, base first, every class once.
func linearize(k NodeKind) []NodeKind {
	seen := make(map[NodeKind]bool)
	var out []NodeKind
	var walk func(NodeKind)
	walk = func(c NodeKind) {
		if seen[c] {
			return
		}
		seen[c] = true
		for _, b := range classes[c].bases {
			walk(b)
		}
		out = append(out, c)
	}
	walk(k)
	return out
}

func buildLayout(k NodeKind) *Layout {
	l := &Layout{Kind: k, Classes: linearize(k)}
	for i := range l.attrSlot {
		l.attrSlot[i] = -1
	}
	for i := range l.edgeSlot {
		l.edgeSlot[i] = -1
	}
	for _, c := range l.Classes {
		for _, a := range classAttrs[c] {
			l.attrSlot[a] = int16(len(l.Attrs))
			l.Attrs = append(l.Attrs, a)
		}
		for _, e := range classEdges[c] {
			l.edgeSlot[e] = int16(len(l.Edges))
			l.Edges = append(l.Edges, e)
		}
	}
	return l
}

// LayoutOf returns the layout of k, or nil for out of range kinds.
func LayoutOf(k NodeKind) *Layout {
	if !k.Valid() {
		return nil
	}
	return layouts[k]
}

// IsA reports whether kind k is, or derives from, base.
func IsA(k, base NodeKind) bool {
	if !k.Valid() || !base.Valid() {
		return false
	}
	return isA[k][base]
}

// ClassAttrs returns the attributes declared directly on class c.
func ClassAttrs(c NodeKind) []AttrKind {
	if !c.Valid() {
		return nil
	}
	return classAttrs[c]
}

// ClassEdges returns the edges declared directly on class c.
func ClassEdges(c NodeKind) []EdgeKind {
	if !c.Valid() {
		return nil
	}
	return classEdges[c]
}

// PossibleEdge reports whether a node of kind k can ever be the target of
// edge e, i.e. whether k may carry a reverse edge bucket for e.
func PossibleEdge(k NodeKind, e EdgeKind) bool {
	if !k.Valid() || !e.Valid() {
		return false
	}
	return possibleEdges[k][e]
}

// PossibleEdges lists every edge kind that may point at a node of kind k.
func PossibleEdges(k NodeKind) []EdgeKind {
	if !k.Valid() {
		return nil
	}
	var out []EdgeKind
	for e := EdgeNone + 1; e < NumEdgeKinds; e++ {
		if possibleEdges[k][e] {
			out = append(out, e)
		}
	}
	return out
}
