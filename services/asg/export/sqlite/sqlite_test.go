// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/asgstore/services/asg/graph"
	"github.com/AleutianAI/asgstore/services/asg/schema"
)

type fixture struct {
	f      *graph.Factory
	prog   graph.Program
	fn     graph.FunctionDeclaration
	call   graph.CallExpression
	callee graph.Identifier
}

// newFixture builds:
//
//	function f() {}
//	f();
func newFixture(t *testing.T) fixture {
	t.Helper()
	f := graph.NewFactory(nil)
	prog, err := f.CreateProgram()
	require.NoError(t, err)
	require.NoError(t, prog.SetString(schema.AttrNamedName, "main.js"))
	require.NoError(t, prog.SetPosition(graph.Range{Path: "main.js", Line: 1, Col: 1, EndLine: 2, EndCol: 5}))
	require.NoError(t, prog.SetSourceType(schema.SourceTypeModule))

	fn, err := f.CreateFunctionDeclaration()
	require.NoError(t, err)
	name, err := f.CreateIdentifier("f")
	require.NoError(t, err)
	require.NoError(t, fn.SetIdentifier(name.ID()))
	require.NoError(t, prog.AddBody(fn.ID()))

	stmt, err := f.CreateNode(schema.KindExpressionStatement)
	require.NoError(t, err)
	call, err := f.CreateCallExpression()
	require.NoError(t, err)
	callee, err := f.CreateIdentifier("f")
	require.NoError(t, err)
	require.NoError(t, call.SetCallee(callee.ID()))
	require.NoError(t, callee.SetRefersTo(fn.ID()))
	require.NoError(t, call.AddCall(fn.ID()))
	require.NoError(t, stmt.SetSingle(schema.EdgeExpressionStatementHasExpression, call.ID()))
	require.NoError(t, prog.AddBody(stmt.ID()))

	return fixture{f: f, prog: prog, fn: fn, call: call, callee: callee}
}

func queryInt(t *testing.T, db *sql.DB, q string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(q, args...).Scan(&n))
	return n
}

func TestDump(t *testing.T) {
	fx := newFixture(t)
	path := filepath.Join(t.TempDir(), "graph.db")

	sum, err := Dump(context.Background(), fx.f, path)
	require.NoError(t, err)
	assert.Equal(t, fx.f.NodeCount(), sum.Nodes)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, sum.Nodes, queryInt(t, db, `SELECT COUNT(*) FROM nodes`))
	assert.Equal(t, sum.Edges, queryInt(t, db, `SELECT COUNT(*) FROM edges`))
	assert.Equal(t, sum.Attrs, queryInt(t, db, `SELECT COUNT(*) FROM attrs`))

	t.Run("node columns", func(t *testing.T) {
		var kind, path string
		var endLine int
		require.NoError(t, db.QueryRow(`SELECT kind, path, end_line FROM nodes WHERE id = ?`, fx.prog.ID()).
			Scan(&kind, &path, &endLine))
		assert.Equal(t, "Program", kind)
		assert.Equal(t, "main.js", path)
		assert.Equal(t, 2, endLine)

		var parent int64
		var parentEdge string
		require.NoError(t, db.QueryRow(`SELECT parent, parent_edge FROM nodes WHERE id = ?`, fx.fn.ID()).
			Scan(&parent, &parentEdge))
		assert.Equal(t, int64(fx.prog.ID()), parent)
		assert.Equal(t, "Program_hasBody", parentEdge)
	})

	t.Run("attributes as text", func(t *testing.T) {
		var v string
		require.NoError(t, db.QueryRow(`SELECT value FROM attrs WHERE node = ? AND name = ?`,
			fx.prog.ID(), schema.AttrProgramSourceType.String()).Scan(&v))
		assert.Equal(t, "module", v)
		require.NoError(t, db.QueryRow(`SELECT value FROM attrs WHERE node = ? AND name = ?`,
			fx.callee.ID(), schema.AttrNamedName.String()).Scan(&v))
		assert.Equal(t, "f", v)
	})

	t.Run("reverse lookup", func(t *testing.T) {
		rows, err := db.Query(`SELECT source, edge FROM edges WHERE target = ? AND ownership = 0 ORDER BY edge`, fx.fn.ID())
		require.NoError(t, err)
		defer rows.Close()
		var got []string
		for rows.Next() {
			var src int64
			var edge string
			require.NoError(t, rows.Scan(&src, &edge))
			got = append(got, edge)
		}
		require.NoError(t, rows.Err())
		assert.Equal(t, []string{"CallExpression_calls", "Identifier_refersTo"}, got)
	})

	t.Run("body positions follow list order", func(t *testing.T) {
		q := `SELECT position FROM edges WHERE source = ? AND target = ? AND edge = 'Program_hasBody'`
		assert.Equal(t, 0, queryInt(t, db, q, fx.prog.ID(), fx.fn.ID()))
		assert.Equal(t, 1, queryInt(t, db, q, fx.prog.ID(), fx.call.Parent().ID()))
	})
}

func TestDump_Filtered(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.f.SetFiltered(fx.call.ID()))
	path := filepath.Join(t.TempDir(), "graph.db")

	// A second dump replaces the first.
	_, err := Dump(context.Background(), fx.f, path)
	require.NoError(t, err)
	sum, err := Dump(context.Background(), fx.f, path)
	require.NoError(t, err)

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, fx.f.NodeCount()-2, sum.Nodes)
	assert.Equal(t, sum.Nodes, queryInt(t, db, `SELECT COUNT(*) FROM nodes`))
	assert.Zero(t, queryInt(t, db, `SELECT COUNT(*) FROM nodes WHERE id = ?`, fx.callee.ID()))
	assert.Equal(t, 1, queryInt(t, db, `SELECT COUNT(*) FROM edges WHERE target = ?`, fx.fn.ID()),
		"only the ownership edge from the program remains")
}

func TestDump_Cancelled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Dump(ctx, fx.f, filepath.Join(t.TempDir(), "graph.db"))
	assert.ErrorIs(t, err, context.Canceled)
}
