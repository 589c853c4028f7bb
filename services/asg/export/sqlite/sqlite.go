// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sqlite dumps a graph into a SQLite database for ad hoc SQL
// queries.
//
// Tables:
//
//	nodes(id, kind, parent, parent_edge, hash, path, line, col, end_line, end_col)
//	attrs(node, name, type, value)
//	edges(source, edge, position, target, ownership)
//
// edges is indexed on target, so "who points at node N" is a single
// index lookup. Only the visible graph is dumped; filtered nodes and the
// edges that touch them are left out.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AleutianAI/asgstore/services/asg/graph"
	"github.com/AleutianAI/asgstore/services/asg/schema"
)

const ddl = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE nodes (
	id          INTEGER PRIMARY KEY,
	kind        TEXT NOT NULL,
	parent      INTEGER,
	parent_edge TEXT,
	hash        TEXT NOT NULL,
	path        TEXT,
	line        INTEGER,
	col         INTEGER,
	end_line    INTEGER,
	end_col     INTEGER
);
CREATE TABLE attrs (
	node  INTEGER NOT NULL,
	name  TEXT NOT NULL,
	type  TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (node, name)
);
CREATE TABLE edges (
	source    INTEGER NOT NULL,
	edge      TEXT NOT NULL,
	position  INTEGER NOT NULL,
	target    INTEGER NOT NULL,
	ownership INTEGER NOT NULL
);
CREATE INDEX edges_target ON edges(target, edge);
CREATE INDEX nodes_kind ON nodes(kind);
`

// Summary counts the rows written by Dump.
type Summary struct {
	Nodes int
	Attrs int
	Edges int
}

type options struct {
	logger *slog.Logger
}

// Option configures Dump.
type Option func(*options)

// WithLogger sets the logger for Dump.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Dump writes the visible graph of f into a new SQLite database at path.
//
// Description:
//
//	An existing file at path is replaced. Rows are written in one
//	transaction by a preorder traversal, so node rows appear in
//	traversal order and edge positions follow list order. Positioned
//	attributes become columns of nodes; every other attribute is a row
//	of attrs rendered as text (enums by name, strings by content).
//
// Inputs:
//
//	ctx - Context for cancellation.
//	f - The graph. Not modified.
//	path - Database file.
//
// Outputs:
//
//	Summary - Row counts.
//	error - Non-nil if the database cannot be written.
func Dump(ctx context.Context, f *graph.Factory, path string, opts ...Option) (Summary, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Summary{}, fmt.Errorf("removing old dump: %w", err)
	}
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return Summary{}, fmt.Errorf("opening database: %w", err)
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return Summary{}, fmt.Errorf("ping db: %w", err)
	}
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		return Summary{}, fmt.Errorf("applying schema: %w", err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	w, err := newDumper(ctx, tx)
	if err != nil {
		return Summary{}, err
	}
	defer w.close()

	for k, v := range map[string]string{
		"graph_id":       f.GraphID().String(),
		"binary_version": graph.BinaryVersion,
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return Summary{}, fmt.Errorf("writing meta: %w", err)
		}
	}

	if err := graph.NewPreorder().Run(f, w); err != nil {
		return Summary{}, fmt.Errorf("dumping graph: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit: %w", err)
	}
	o.logger.Info("graph dumped to sqlite",
		slog.String("path", path),
		slog.Int("nodes", w.sum.Nodes),
		slog.Int("edges", w.sum.Edges),
		slog.Duration("duration", time.Since(start)),
	)
	return w.sum, nil
}

// dumper is the traversal visitor that writes rows.
type dumper struct {
	graph.BaseVisitor
	ctx      context.Context
	node     *sql.Stmt
	attr     *sql.Stmt
	edge     *sql.Stmt
	position map[edgeKey]int
	sum      Summary
}

type edgeKey struct {
	source graph.NodeID
	edge   schema.EdgeKind
}

func newDumper(ctx context.Context, tx *sql.Tx) (*dumper, error) {
	d := &dumper{ctx: ctx, position: make(map[edgeKey]int)}
	var err error
	if d.node, err = tx.PrepareContext(ctx, `INSERT INTO nodes
		(id, kind, parent, parent_edge, hash, path, line, col, end_line, end_col)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`); err != nil {
		return nil, fmt.Errorf("prepare nodes: %w", err)
	}
	if d.attr, err = tx.PrepareContext(ctx, `INSERT INTO attrs (node, name, type, value) VALUES (?, ?, ?, ?)`); err != nil {
		d.close()
		return nil, fmt.Errorf("prepare attrs: %w", err)
	}
	if d.edge, err = tx.PrepareContext(ctx, `INSERT INTO edges (source, edge, position, target, ownership) VALUES (?, ?, ?, ?, ?)`); err != nil {
		d.close()
		return nil, fmt.Errorf("prepare edges: %w", err)
	}
	return d, nil
}

func (d *dumper) close() {
	for _, s := range []*sql.Stmt{d.node, d.attr, d.edge} {
		if s != nil {
			s.Close()
		}
	}
}

func (d *dumper) Visit(n *graph.Node) error {
	if err := d.ctx.Err(); err != nil {
		return err
	}
	var parent, parentEdge any
	if p := n.Parent(); p != nil {
		parent = int64(p.ID())
		parentEdge = n.ParentEdge().String()
	}
	var path, line, col, endLine, endCol any
	if n.IsA(schema.KindPositioned) {
		r, err := n.Position()
		if err != nil {
			return err
		}
		path, line, col, endLine, endCol = r.Path, r.Line, r.Col, r.EndLine, r.EndCol
	}
	_, err := d.node.ExecContext(d.ctx,
		int64(n.ID()), n.Kind().String(), parent, parentEdge,
		fmt.Sprintf("%016x", n.Hash()),
		path, line, col, endLine, endCol,
	)
	if err != nil {
		return fmt.Errorf("node %d: %w", n.ID(), err)
	}
	d.sum.Nodes++

	for _, a := range schema.LayoutOf(n.Kind()).Attrs {
		decl := a.Decl()
		if decl.Class == schema.KindPositioned {
			continue
		}
		v, err := attrText(n, a)
		if err != nil {
			return err
		}
		if _, err := d.attr.ExecContext(d.ctx, int64(n.ID()), a.String(), decl.Type.String(), v); err != nil {
			return fmt.Errorf("node %d attribute %s: %w", n.ID(), a, err)
		}
		d.sum.Attrs++
	}
	return nil
}

func (d *dumper) VisitEdge(from, to *graph.Node, e schema.EdgeKind) error {
	key := edgeKey{source: from.ID(), edge: e}
	pos := d.position[key]
	d.position[key] = pos + 1
	_, err := d.edge.ExecContext(d.ctx, int64(from.ID()), e.String(), pos, int64(to.ID()), e.IsOwnership())
	if err != nil {
		return fmt.Errorf("edge %s from %d: %w", e, from.ID(), err)
	}
	d.sum.Edges++
	return nil
}

// attrText renders one attribute value as text.
func attrText(n *graph.Node, a schema.AttrKind) (string, error) {
	switch a.Decl().Type {
	case schema.AttrBool:
		v, err := n.Bool(a)
		return strconv.FormatBool(v), err
	case schema.AttrInt:
		v, err := n.Int(a)
		return strconv.FormatInt(int64(v), 10), err
	case schema.AttrUint:
		v, err := n.Uint(a)
		return strconv.FormatUint(uint64(v), 10), err
	case schema.AttrFloat:
		v, err := n.Float(a)
		return strconv.FormatFloat(v, 'g', -1, 64), err
	case schema.AttrString:
		return n.String(a)
	case schema.AttrEnum:
		return n.EnumName(a)
	default:
		return "", fmt.Errorf("attribute %s has unknown type %s", a, a.Decl().Type)
	}
}
