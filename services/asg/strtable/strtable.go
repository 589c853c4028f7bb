// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strtable interns strings to stable integer keys.
//
// Graph nodes never hold string values directly; every string attribute is a
// Key into a Table. Key 0 is the empty string and is always present. A Table
// may be shared by several factories, so it is safe for concurrent use.
package strtable

import (
	"fmt"
	"sync"

	"github.com/AleutianAI/asgstore/services/asg/binio"
)

// Key identifies an interned string.
type Key uint32

// Empty is the key of the empty string.
const Empty Key = 0

// StrType classifies how a key is persisted.
type StrType uint8

const (
	// StrDefault keys are saved by a full save only.
	StrDefault StrType = iota

	// StrToSave keys are saved by both full and sparse saves.
	StrToSave

	// StrTemporary keys are never saved.
	StrTemporary
)

// String returns the string representation of the StrType.
func (t StrType) String() string {
	switch t {
	case StrDefault:
		return "default"
	case StrToSave:
		return "to_save"
	case StrTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// Remap maps keys of a loaded table to keys of the receiving table.
type Remap map[Key]Key

// Resolve returns the new key for old. Unknown keys map to Empty.
func (m Remap) Resolve(old Key) Key {
	if old == Empty {
		return Empty
	}
	return m[old]
}

type entry struct {
	s   string
	typ StrType
}

// Table is a string interning table.
type Table struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]Key
}

// New returns a table holding only the empty string.
func New() *Table {
	return &Table{
		entries: []entry{{s: "", typ: StrDefault}},
		index:   map[string]Key{"": Empty},
	}
}

// Set interns s and returns its key. Existing keys keep their type.
func (t *Table) Set(s string) Key {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.setLocked(s)
}

func (t *Table) setLocked(s string) Key {
	if k, ok := t.index[s]; ok {
		return k
	}
	k := Key(len(t.entries))
	t.entries = append(t.entries, entry{s: s})
	t.index[s] = k
	return k
}

// Get returns the string of k, or "" when k is unknown.
func (t *Table) Get(k Key) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(k) >= len(t.entries) {
		return ""
	}
	return t.entries[k].s
}

// Lookup returns the key of s without interning it.
func (t *Table) Lookup(s string) (Key, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	k, ok := t.index[s]
	return k, ok
}

// Contains reports whether k is a known key.
func (t *Table) Contains(k Key) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(k) < len(t.entries)
}

// SetType changes the persistence type of k. Unknown keys are ignored.
func (t *Table) SetType(k Key, typ StrType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if k == Empty || int(k) >= len(t.entries) {
		return
	}
	t.entries[k].typ = typ
}

// Type returns the persistence type of k.
func (t *Table) Type(k Key) StrType {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(k) >= len(t.entries) {
		return StrDefault
	}
	return t.entries[k].typ
}

// ResetTypes sets every key back to StrDefault.
func (t *Table) ResetTypes() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.entries {
		t.entries[i].typ = StrDefault
	}
}

// Len returns the number of keys including the empty string.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *Table) selected(k Key, filter StrType) bool {
	typ := t.entries[k].typ
	switch filter {
	case StrToSave:
		return typ == StrToSave
	default:
		return typ != StrTemporary
	}
}

// Save writes the table. With filter StrToSave only keys marked StrToSave
// are written; any other filter writes every key that is not temporary.
// The empty string is implicit and never written.
//
// Layout: UInt4 count, then count times (UInt4 key, string).
func (t *Table) Save(w *binio.Writer, filter StrType) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var count uint32
	for k := 1; k < len(t.entries); k++ {
		if t.selected(Key(k), filter) {
			count++
		}
	}
	w.UInt4(count)
	for k := 1; k < len(t.entries); k++ {
		if t.selected(Key(k), filter) {
			w.UInt4(uint32(k))
			w.String(t.entries[k].s)
		}
	}
}

// maxRemapHint caps the map size hint taken from a saved table's count.
const maxRemapHint = 1 << 16

// Merge interns every string of src into t and returns the mapping from
// src keys to keys of t. src is not modified; types in t are kept.
func (t *Table) Merge(src *Table) Remap {
	src.mu.RLock()
	strs := make([]string, len(src.entries))
	for i, e := range src.entries {
		strs[i] = e.s
	}
	src.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	remap := make(Remap, len(strs))
	for k := 1; k < len(strs); k++ {
		remap[Key(k)] = t.setLocked(strs[k])
	}
	return remap
}

// Load merges a saved table into t and returns the mapping from the saved
// keys to keys of t.
func (t *Table) Load(r *binio.Reader) (Remap, error) {
	count := r.UInt4()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("reading string table size: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// count comes from the input; the hint is capped so a corrupt size
	// fails on the first missing entry instead of allocating for it.
	remap := make(Remap, min(count, maxRemapHint))
	for i := uint32(0); i < count; i++ {
		old := Key(r.UInt4())
		s := r.String()
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("reading string table entry %d: %w", i, err)
		}
		if old == Empty {
			return nil, fmt.Errorf("string table entry %d uses reserved key 0", i)
		}
		remap[old] = t.setLocked(s)
	}
	return remap, nil
}
