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
	"fmt"
	"io"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/AleutianAI/asgstore/services/asg/binio"
	"github.com/AleutianAI/asgstore/services/asg/schema"
)

// FilterState is the visibility state of one node.
type FilterState uint8

const (
	// NotFiltered nodes are visible.
	NotFiltered FilterState = iota

	// Filtered nodes are hidden while the filter is turned on.
	Filtered
)

// String returns the string representation of the FilterState.
func (s FilterState) String() string {
	switch s {
	case NotFiltered:
		return "not_filtered"
	case Filtered:
		return "filtered"
	default:
		return "unknown"
	}
}

// filterMagic starts a saved filter file.
var filterMagic = [4]byte{'a', 's', 'g', 'f'}

// IsFiltered reports whether id is hidden. It is always false while the
// filter is turned off, and for ids without a node.
func (f *Factory) IsFiltered(id NodeID) bool {
	if !f.filterOn || int(id) >= len(f.filter) {
		return false
	}
	return f.filter[id] == Filtered
}

// FilterState returns the stored state of id regardless of whether the
// filter is turned on.
func (f *Factory) FilterState(id NodeID) FilterState {
	if int(id) >= len(f.filter) {
		return NotFiltered
	}
	return f.filter[id]
}

// IsFilterTurnedOn reports whether filtered nodes are currently hidden.
func (f *Factory) IsFilterTurnedOn() bool {
	return f.filterOn
}

// TurnFilterOn makes filtered nodes invisible.
func (f *Factory) TurnFilterOn() {
	f.filterOn = true
}

// TurnFilterOff makes every node visible without touching filter states.
func (f *Factory) TurnFilterOff() {
	f.filterOn = false
}

// TurnFilterOffSafely turns the filter off and returns a function that
// restores the previous on/off state. Call it with defer so the state is
// restored on every exit path, panics included.
//
// Example:
//
//	restore := f.TurnFilterOffSafely()
//	defer restore()
func (f *Factory) TurnFilterOffSafely() (restore func()) {
	prev := f.filterOn
	f.filterOn = false
	return func() {
		f.filterOn = prev
	}
}

// WithFilterOff runs fn with the filter turned off.
func (f *Factory) WithFilterOff(fn func() error) error {
	restore := f.TurnFilterOffSafely()
	defer restore()
	return fn()
}

// InitializeFilter marks every node as not filtered.
func (f *Factory) InitializeFilter() {
	for i := range f.filter {
		f.filter[i] = NotFiltered
	}
}

// FilteredCount returns the number of live nodes marked filtered.
func (f *Factory) FilteredCount() int {
	count := 0
	for id, n := range f.nodes {
		if n != nil && f.filter[id] == Filtered {
			count++
		}
	}
	return count
}

// SetFiltered marks id and the subtree it owns as filtered.
func (f *Factory) SetFiltered(id NodeID) error {
	return f.setSubtreeState("Factory.SetFiltered", id, Filtered)
}

// SetFilteredThisNodeOnly marks only id as filtered.
func (f *Factory) SetFilteredThisNodeOnly(id NodeID) error {
	if !f.Exists(id) {
		return opError("Factory.SetFilteredThisNodeOnly", id, ErrInvalidNodeID)
	}
	f.filter[id] = Filtered
	return nil
}

// SetNotFiltered makes id, its owned subtree, and its chain of owners
// visible, so the node is reachable from its root again.
func (f *Factory) SetNotFiltered(id NodeID) error {
	if err := f.setSubtreeState("Factory.SetNotFiltered", id, NotFiltered); err != nil {
		return err
	}
	for p := f.nodes[id].parent; p != NullID; {
		f.filter[p] = NotFiltered
		pn, ok := f.Lookup(p)
		if !ok {
			break
		}
		p = pn.parent
	}
	return nil
}

// SetNotFilteredThisNodeOnly makes only id visible.
func (f *Factory) SetNotFilteredThisNodeOnly(id NodeID) error {
	if !f.Exists(id) {
		return opError("Factory.SetNotFilteredThisNodeOnly", id, ErrInvalidNodeID)
	}
	f.filter[id] = NotFiltered
	return nil
}

// filterVisitor sets the filter state of every node it leaves.
type filterVisitor struct {
	BaseVisitor
	f     *Factory
	state FilterState
}

func (v *filterVisitor) VisitEnd(n *Node) error {
	v.f.filter[n.id] = v.state
	return nil
}

func (f *Factory) setSubtreeState(op string, id NodeID, state FilterState) error {
	if !f.Exists(id) {
		return opError(op, id, ErrInvalidNodeID)
	}
	restore := f.TurnFilterOffSafely()
	defer restore()
	return NewPreorder().RunFrom(f, &filterVisitor{f: f, state: state}, id)
}

// FilterByPath filters every Positioned node whose path matches one of the
// doublestar patterns, together with its subtree.
//
// Outputs:
//
//	int - Number of matching nodes.
//	error - doublestar.ErrBadPattern for malformed patterns.
func (f *Factory) FilterByPath(patterns ...string) (int, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return 0, fmt.Errorf("%w: %q", doublestar.ErrBadPattern, p)
		}
	}
	var matched []NodeID
	for id, n := range f.nodes {
		if n == nil || !n.IsA(schema.KindPositioned) {
			continue
		}
		path := f.strings.Get(strtableKey(n, schema.AttrPositionedPath))
		if path == "" {
			continue
		}
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, path); ok {
				matched = append(matched, NodeID(id))
				break
			}
		}
	}
	for _, id := range matched {
		if err := f.SetFiltered(id); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// SaveFilter writes the filter state of every id slot.
//
// Layout: "asgf", UInt4 slot count, states bit packed MSB first.
func (f *Factory) SaveFilter(w io.Writer) error {
	bw := binio.NewWriter(w)
	bw.Data(filterMagic[:])
	bw.UInt4(uint32(len(f.filter)))
	bits := binio.NewBitWriter(bw)
	for _, s := range f.filter {
		bits.Bool(s == Filtered)
	}
	bits.Flush()
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("saving filter: %w", err)
	}
	return nil
}

// LoadFilter restores states written by SaveFilter. The saved slot count
// must match the factory's id space.
func (f *Factory) LoadFilter(r io.Reader) error {
	const op = "Factory.LoadFilter"
	br := binio.NewReader(r)
	var magic [4]byte
	br.Data(magic[:])
	count := br.UInt4()
	if err := br.Err(); err != nil {
		return fmt.Errorf("loading filter: %w", err)
	}
	if magic != filterMagic {
		return opErrorf(op, NullID, ErrWrongFileType, "not a filter file")
	}
	if int(count) != len(f.filter) {
		return opErrorf(op, NullID, ErrFilterMismatch, "filter has %d slots, factory has %d", count, len(f.filter))
	}
	states := make([]FilterState, count)
	bits := binio.NewBitReader(br)
	for i := range states {
		if bits.Bool() {
			states[i] = Filtered
		}
	}
	if err := br.Err(); err != nil {
		return fmt.Errorf("loading filter: %w", err)
	}
	copy(f.filter, states)
	return nil
}
