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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/asgstore/services/asg/binio"
	"github.com/AleutianAI/asgstore/services/asg/schema"
	"github.com/AleutianAI/asgstore/services/asg/strtable"
)

// File magics. The fourth byte pads the tag to a fixed width.
var (
	magicPlain = [4]byte{'c', 's', 'i', 0}
	magicZip   = [4]byte{'z', 's', 'i', 0}
)

// saveOptions configures Save.
type saveOptions struct {
	zip     bool
	headers []Header
}

// SaveOption is a functional option for configuring Save.
type SaveOption func(*saveOptions)

// WithZip compresses the file body with zstd.
func WithZip(on bool) SaveOption {
	return func(o *saveOptions) {
		o.zip = on
	}
}

// WithHeaders adds header blocks. A PropertyData given here is merged into
// the generated one; the identification properties always win.
func WithHeaders(h ...Header) SaveOption {
	return func(o *saveOptions) {
		o.headers = append(o.headers, h...)
	}
}

// Save writes the whole graph in the binary format.
//
// Description:
//
//	The filter is suspended for the duration. Every string referenced by
//	a node is marked strtable.StrToSave for the duration and only marked
//	strings are written. Node records are written in id order. The file ends with a
//	blake3 digest of everything before it.
//
// File layout:
//
//	magic        "csi\0" or "zsi\0"
//	UInt4        header count
//	per header   UShort2 kind, ULong8 size, payload
//	body         node records: UInt4 id, UShort2 kind, node payload
//	             end mark: UInt4 0, UShort2 0
//	             string table
//	trailer      32 byte blake3 digest
//
//	With "zsi" the body is a zstd stream.
//
// Inputs:
//
//	ctx - Context for tracing.
//	w - Destination.
//	opts - WithZip, WithHeaders.
func (f *Factory) Save(ctx context.Context, w io.Writer, opts ...SaveOption) (err error) {
	var o saveOptions
	for _, opt := range opts {
		opt(&o)
	}

	ctx, span := startPersistSpan(ctx, "Factory.Save", f.live)
	defer span.End()
	start := time.Now()
	defer func() {
		recordPersistMetrics(ctx, "save", time.Since(start), f.live, err == nil)
		setPersistSpanResult(span, err)
	}()

	restore := f.TurnFilterOffSafely()
	defer restore()

	unmark := f.markStrings()
	defer unmark()

	dw := binio.NewDigestWriter(w)
	hw := binio.NewWriter(dw)
	if o.zip {
		hw.Data(magicZip[:])
	} else {
		hw.Data(magicPlain[:])
	}
	f.saveHeaders(hw, o.headers)
	if err := hw.Flush(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	if o.zip {
		comp, err := binio.NewCompressor(dw)
		if err != nil {
			return err
		}
		bw := binio.NewWriter(comp)
		f.saveBody(bw)
		if err := bw.Flush(); err != nil {
			comp.Close()
			return fmt.Errorf("writing body: %w", err)
		}
		if err := comp.Close(); err != nil {
			return fmt.Errorf("closing compressor: %w", err)
		}
	} else {
		bw := binio.NewWriter(dw)
		f.saveBody(bw)
		if err := bw.Flush(); err != nil {
			return fmt.Errorf("writing body: %w", err)
		}
	}

	if err := dw.WriteTrailer(); err != nil {
		return fmt.Errorf("writing trailer: %w", err)
	}
	f.logger.Debug("graph saved",
		slog.Int("nodes", f.live),
		slog.Bool("zip", o.zip),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// SaveFile writes the graph to path through a temporary file that is
// renamed into place once complete.
func (f *Factory) SaveFile(ctx context.Context, path string, opts ...SaveOption) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Save(ctx, tmp, opts...); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// markStrings marks every string used by a live node StrToSave and returns
// a function that puts the previous types back, so saving one factory
// leaves no marks in a table shared with others.
func (f *Factory) markStrings() (restore func()) {
	prev := make(map[strtable.Key]strtable.StrType)
	for _, n := range f.nodes {
		if n == nil {
			continue
		}
		for i, a := range n.layout.Attrs {
			if a.Decl().Type != schema.AttrString || n.attrs[i] == 0 {
				continue
			}
			k := strtable.Key(n.attrs[i])
			if _, seen := prev[k]; seen {
				continue
			}
			prev[k] = f.strings.Type(k)
			f.strings.SetType(k, strtable.StrToSave)
		}
	}
	return func() {
		for k, typ := range prev {
			f.strings.SetType(k, typ)
		}
	}
}

func (f *Factory) propertyData(extra []Header) *PropertyData {
	props := NewPropertyData()
	for _, h := range extra {
		if pd, ok := h.(*PropertyData); ok {
			for _, k := range pd.Keys() {
				v, _ := pd.Get(k)
				props.Set(k, v)
			}
		}
	}
	props.Set(PropType, FileType)
	props.Set(PropAPIVersion, APIVersion)
	props.Set(PropBinaryVersion, BinaryVersion)
	props.Set(PropGraphID, f.graphID.String())
	return props
}

func (f *Factory) saveHeaders(w *binio.Writer, extra []Header) {
	headers := []Header{f.propertyData(extra)}
	seen := map[HeaderKind]bool{HeaderPropertyData: true}
	for _, h := range extra {
		if h.Kind() == HeaderPropertyData {
			continue
		}
		headers = append(headers, h)
		seen[h.Kind()] = true
	}
	var foreign []rawHeader
	for _, raw := range f.foreignHeaders {
		if !seen[raw.kind] {
			foreign = append(foreign, raw)
		}
	}

	w.UInt4(uint32(len(headers) + len(foreign)))
	for _, h := range headers {
		w.UShort2(uint16(h.Kind()))
		w.Block(h.Save)
	}
	for _, raw := range foreign {
		w.UShort2(uint16(raw.kind))
		w.Block(func(bw *binio.Writer) { bw.Data(raw.payload) })
	}
}

func (f *Factory) saveBody(w *binio.Writer) {
	for id := 1; id < len(f.nodes); id++ {
		n := f.nodes[id]
		if n == nil {
			continue
		}
		w.UInt4(uint32(id))
		w.UShort2(uint16(n.kind))
		n.save(w)
	}
	w.UInt4(0)
	w.UShort2(0)
	f.strings.Save(w, strtable.StrToSave)
}

// save writes the node payload class by class, base first: plain
// attributes, packed booleans, single edges, then multi edges as id runs
// terminated by 0.
func (n *Node) save(w *binio.Writer) {
	for _, c := range n.layout.Classes {
		var bools []bool
		for _, a := range schema.ClassAttrs(c) {
			slot, _ := n.layout.AttrSlot(a)
			v := n.attrs[slot]
			switch a.Decl().Type {
			case schema.AttrBool:
				bools = append(bools, v != 0)
			case schema.AttrInt:
				w.Int4(int32(int64(v)))
			case schema.AttrUint, schema.AttrString:
				w.UInt4(uint32(v))
			case schema.AttrFloat:
				w.ULong8(v)
			case schema.AttrEnum:
				w.UByte1(uint8(v))
			}
		}
		if len(bools) > 0 {
			bits := binio.NewBitWriter(w)
			for _, b := range bools {
				bits.Bool(b)
			}
			bits.Flush()
		}
		for _, e := range schema.ClassEdges(c) {
			slot, _ := n.layout.EdgeSlot(e)
			s := &n.edges[slot]
			if e.IsMulti() {
				for _, id := range s.list.ids {
					w.UInt4(uint32(id))
				}
				w.UInt4(0)
			} else {
				w.UInt4(uint32(s.single))
			}
		}
	}
}

// load mirrors save. String keys and edge targets are stored raw; they are
// resolved once every record and the string table have been read.
func (n *Node) load(r *binio.Reader) {
	for _, c := range n.layout.Classes {
		var bools []int
		for _, a := range schema.ClassAttrs(c) {
			slot, _ := n.layout.AttrSlot(a)
			switch a.Decl().Type {
			case schema.AttrBool:
				bools = append(bools, slot)
			case schema.AttrInt:
				n.attrs[slot] = uint64(int64(r.Int4()))
			case schema.AttrUint, schema.AttrString:
				n.attrs[slot] = uint64(r.UInt4())
			case schema.AttrFloat:
				n.attrs[slot] = r.ULong8()
			case schema.AttrEnum:
				v := r.UByte1()
				if int(v) >= len(a.Decl().Enum.Values()) {
					r.Fail(opErrorf("Node.load", n.id, ErrInvalidAttribute, "%d is not a value of %s", v, a))
				}
				n.attrs[slot] = uint64(v)
			}
		}
		if len(bools) > 0 {
			bits := binio.NewBitReader(r)
			for _, slot := range bools {
				if bits.Bool() {
					n.attrs[slot] = 1
				}
			}
		}
		for _, e := range schema.ClassEdges(c) {
			slot, _ := n.layout.EdgeSlot(e)
			s := &n.edges[slot]
			if !e.IsMulti() {
				s.single = NodeID(r.UInt4())
				continue
			}
			for r.Err() == nil {
				id := NodeID(r.UInt4())
				if id == NullID {
					break
				}
				s.list.ids = append(s.list.ids, id)
			}
		}
	}
}

// Load replaces the content of the factory with a saved graph.
//
// Description:
//
//	Verifies the trailer digest, validates the PropertyData header, then
//	recreates every node under its saved id. The saved string table is
//	read into a private table, edges are validated and linked (owner
//	links are established in this second phase), and only then are the
//	strings merged into the factory's table and keys remapped. Header blocks of kinds listed in headers are decoded into
//	them; unknown blocks are kept and written back by the next Save.
//	Reverse edges are not rebuilt; call EnableReverseEdges afterwards.
//
//	On error the factory is left empty and its string table unchanged.
//	Node ids beyond the id space limit (see WithMaxNodes) are rejected
//	with ErrInvalidNodeID before anything is allocated for them.
//
// Outputs:
//
//	error - ErrChecksumMismatch, ErrWrongFileType, ErrVersionMismatch,
//	        io.ErrUnexpectedEOF for truncated input, or a structural error
//	        for corrupt records.
func (f *Factory) Load(ctx context.Context, r io.Reader, headers ...Header) (err error) {
	ctx, span := startPersistSpan(ctx, "Factory.Load", 0)
	defer span.End()
	start := time.Now()
	defer func() {
		recordPersistMetrics(ctx, "load", time.Since(start), f.live, err == nil)
		setPersistSpanResult(span, err)
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading graph: %w", err)
	}
	f.Clear()
	body, err := binio.VerifyTrailer(data)
	if err != nil {
		return opError("Factory.Load", NullID, err)
	}
	if err := f.load(body, headers); err != nil {
		f.Clear()
		return err
	}
	f.logger.Debug("graph loaded",
		slog.Int("nodes", f.live),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// LoadFile loads a graph from path.
func (f *Factory) LoadFile(ctx context.Context, path string, headers ...Header) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening graph file: %w", err)
	}
	defer file.Close()
	return f.Load(ctx, file, headers...)
}

func (f *Factory) load(body []byte, headers []Header) error {
	hr := binio.NewReader(bytes.NewReader(body))
	zip, err := readMagic(hr)
	if err != nil {
		return err
	}
	props, foreign, err := readHeaders(hr, headers)
	if err != nil {
		return err
	}
	if id, ok := props.Get(PropGraphID); ok {
		if parsed, err := uuid.Parse(id); err == nil {
			f.graphID = parsed
		}
	}

	br := hr
	if zip {
		dec, err := binio.NewDecompressor(bytes.NewReader(body[hr.Consumed():]))
		if err != nil {
			return err
		}
		defer dec.Close()
		br = binio.NewReader(dec)
	}

	for {
		id := NodeID(br.UInt4())
		kind := schema.NodeKind(br.UShort2())
		if err := br.Err(); err != nil {
			return fmt.Errorf("reading node record: %w", err)
		}
		if id == NullID && kind == 0 {
			break
		}
		n, err := f.createNodeWithID(kind, id)
		if err != nil {
			return err
		}
		n.load(br)
		if err := br.Err(); err != nil {
			return fmt.Errorf("reading node %d: %w", id, err)
		}
	}

	// Strings are staged in a private table and reach the factory's table,
	// which other factories may share, only once the graph is valid.
	staged := strtable.New()
	remap, err := staged.Load(br)
	if err != nil {
		return err
	}
	if err := f.remapStrings(remap); err != nil {
		return err
	}
	if err := f.linkLoaded(); err != nil {
		return err
	}
	if err := f.remapStrings(f.strings.Merge(staged)); err != nil {
		return err
	}
	f.foreignHeaders = foreign
	return nil
}

func readMagic(r *binio.Reader) (zip bool, err error) {
	var magic [4]byte
	r.Data(magic[:])
	if err := r.Err(); err != nil {
		return false, fmt.Errorf("reading magic: %w", err)
	}
	switch magic {
	case magicPlain:
		return false, nil
	case magicZip:
		return true, nil
	default:
		return false, opErrorf("Factory.Load", NullID, ErrWrongFileType, "bad magic %q", magic[:])
	}
}

// readHeaders decodes the header blocks. The PropertyData block is
// mandatory and validated; blocks without a matching handler are returned
// verbatim.
func readHeaders(r *binio.Reader, handlers []Header) (*PropertyData, []rawHeader, error) {
	count := r.UInt4()
	if err := r.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading header count: %w", err)
	}
	byKind := make(map[HeaderKind]Header, len(handlers))
	for _, h := range handlers {
		byKind[h.Kind()] = h
	}

	var props *PropertyData
	var foreign []rawHeader
	for i := uint32(0); i < count; i++ {
		kind := HeaderKind(r.UShort2())
		payload := r.SkipBlock()
		if err := r.Err(); err != nil {
			return nil, nil, fmt.Errorf("reading header %d: %w", i, err)
		}
		if kind == HeaderPropertyData {
			props = NewPropertyData()
			if err := props.Load(binio.NewReader(bytes.NewReader(payload))); err != nil {
				return nil, nil, err
			}
		}
		h, ok := byKind[kind]
		if !ok {
			if kind != HeaderPropertyData {
				foreign = append(foreign, rawHeader{kind: kind, payload: payload})
			}
			continue
		}
		if err := h.Load(binio.NewReader(bytes.NewReader(payload))); err != nil {
			return nil, nil, fmt.Errorf("decoding header kind %d: %w", kind, err)
		}
	}
	if props == nil {
		return nil, nil, opErrorf("Factory.Load", NullID, ErrWrongFileType, "missing property data header")
	}
	if err := props.check(); err != nil {
		return nil, nil, err
	}
	return props, foreign, nil
}

// LoadHeader reads only the magic and the header blocks of a graph file.
// The trailer is not verified.
func LoadHeader(r io.Reader, headers ...Header) (props *PropertyData, zip bool, err error) {
	br := binio.NewReader(r)
	zip, err = readMagic(br)
	if err != nil {
		return nil, false, err
	}
	props, _, err = readHeaders(br, headers)
	if err != nil {
		return nil, false, err
	}
	return props, zip, nil
}

func (f *Factory) remapStrings(remap strtable.Remap) error {
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
				return opErrorf("Factory.Load", n.id, ErrInvalidAttribute, "%s refers to unsaved string key %d", a, old)
			}
			n.attrs[i] = uint64(nk)
		}
	}
	return nil
}

// linkLoaded validates every loaded edge and establishes owner links.
func (f *Factory) linkLoaded() error {
	const op = "Factory.Load"
	for _, n := range f.nodes {
		if n == nil {
			continue
		}
		for i, e := range n.layout.Edges {
			s := &n.edges[i]
			var targets []NodeID
			if e.IsMulti() {
				targets = s.list.ids
			} else if s.single != NullID {
				targets = []NodeID{s.single}
			}
			for _, id := range targets {
				t, ok := f.Lookup(id)
				if !ok {
					return opErrorf(op, n.id, ErrEdgeEndpointMissing, "target %d of %s does not exist", id, e)
				}
				if !schema.AcceptsTarget(e, t.kind) {
					return opErrorf(op, n.id, ErrInvalidNodeKind, "%s cannot point at %s", e, t.kind)
				}
				if !e.IsOwnership() {
					continue
				}
				if t.parent != NullID {
					return opErrorf(op, n.id, ErrNodeAlreadyOwned, "%d is owned by %d and %d", t.id, t.parent, n.id)
				}
				t.parent = n.id
				t.parentEdge = e
			}
		}
	}
	return f.checkOwnershipAcyclic(op)
}

// checkOwnershipAcyclic rejects loaded owner chains that loop.
func (f *Factory) checkOwnershipAcyclic(op string) error {
	state := make([]uint8, len(f.nodes))
	const (
		unseen = iota
		onPath
		done
	)
	for id := range f.nodes {
		if f.nodes[id] == nil || state[id] == done {
			continue
		}
		var path []NodeID
		cur := NodeID(id)
		for cur != NullID && state[cur] == unseen {
			state[cur] = onPath
			path = append(path, cur)
			cur = f.nodes[cur].parent
		}
		if cur != NullID && state[cur] == onPath {
			return opErrorf(op, cur, ErrOwnershipCycle, "owner chain loops")
		}
		for _, p := range path {
			state[p] = done
		}
	}
	return nil
}

// IsGraphFileError reports whether err means the input is not a readable
// graph file, as opposed to an I/O failure.
func IsGraphFileError(err error) bool {
	return errors.Is(err, ErrWrongFileType) ||
		errors.Is(err, ErrVersionMismatch) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
