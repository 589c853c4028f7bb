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
	"maps"
	"slices"

	"github.com/AleutianAI/asgstore/services/asg/binio"
)

// File identification written into every PropertyData header.
const (
	FileType      = "JavaScriptLanguage"
	APIVersion    = "1.0.0"
	BinaryVersion = "1.0.0"
)

// Property keys with a fixed meaning.
const (
	PropType          = "Type"
	PropAPIVersion    = "APIVersion"
	PropBinaryVersion = "BinaryVersion"
	PropGraphID       = "GraphID"
)

// HeaderKind identifies a header block in a graph file.
type HeaderKind uint16

const (
	// HeaderPropertyData holds string key/value properties.
	HeaderPropertyData HeaderKind = 1
)

// Header is a typed block stored ahead of the node records. Implementations
// passed to Load are filled from the block of the same kind.
type Header interface {
	Kind() HeaderKind
	Save(w *binio.Writer)
	Load(r *binio.Reader) error
}

// rawHeader is a header block kept verbatim.
type rawHeader struct {
	kind    HeaderKind
	payload []byte
}

// PropertyData is a string property header. The zero value is empty and
// ready to use.
type PropertyData struct {
	props map[string]string
}

// NewPropertyData returns an empty property header.
func NewPropertyData() *PropertyData {
	return &PropertyData{props: make(map[string]string)}
}

// Kind implements Header.
func (p *PropertyData) Kind() HeaderKind {
	return HeaderPropertyData
}

// Set stores a property.
func (p *PropertyData) Set(key, value string) {
	if p.props == nil {
		p.props = make(map[string]string)
	}
	p.props[key] = value
}

// Get returns a property.
func (p *PropertyData) Get(key string) (string, bool) {
	v, ok := p.props[key]
	return v, ok
}

// Keys returns the property keys in sorted order.
func (p *PropertyData) Keys() []string {
	return slices.Sorted(maps.Keys(p.props))
}

// Len returns the number of properties.
func (p *PropertyData) Len() int {
	return len(p.props)
}

// Save implements Header. Properties are written sorted by key so equal
// headers encode identically.
func (p *PropertyData) Save(w *binio.Writer) {
	keys := p.Keys()
	w.UInt4(uint32(len(keys)))
	for _, k := range keys {
		w.String(k)
		w.String(p.props[k])
	}
}

// Load implements Header. Loaded properties replace existing ones with the
// same key.
func (p *PropertyData) Load(r *binio.Reader) error {
	count := r.UInt4()
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		k := r.String()
		v := r.String()
		p.Set(k, v)
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("reading property data: %w", err)
	}
	return nil
}

// check validates the identification properties.
func (p *PropertyData) check() error {
	const op = "PropertyData.check"
	typ, ok := p.Get(PropType)
	if !ok || typ != FileType {
		return opErrorf(op, NullID, ErrWrongFileType, "type %q, want %q", typ, FileType)
	}
	if v, _ := p.Get(PropAPIVersion); v != APIVersion {
		return opErrorf(op, NullID, ErrVersionMismatch, "api version %q, want %q", v, APIVersion)
	}
	if v, _ := p.Get(PropBinaryVersion); v != BinaryVersion {
		return opErrorf(op, NullID, ErrVersionMismatch, "binary version %q, want %q", v, BinaryVersion)
	}
	return nil
}
