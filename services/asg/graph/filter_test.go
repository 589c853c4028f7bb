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
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/asgstore/services/asg/schema"
	"github.com/AleutianAI/asgstore/services/asg/strtable"
)

func visibleIDs(f *Factory) []NodeID {
	var out []NodeID
	for n := range f.Nodes() {
		out = append(out, n.ID())
	}
	return out
}

func TestFilter_Subtree(t *testing.T) {
	s := buildScenario(t)

	require.NoError(t, s.f.SetFiltered(s.declarator.ID()))

	for _, n := range []*Node{s.declarator.Node, s.x.Node, s.call.Node, s.callee.Node, s.arg.Node} {
		assert.True(t, s.f.IsFiltered(n.ID()), "node %d", n.ID())
	}
	assert.False(t, s.f.IsFiltered(s.decl.ID()))
	assert.Equal(t, 5, s.f.FilteredCount())
	assert.Zero(t, s.decl.Size(schema.EdgeVariableDeclarationHasDeclarations))
	assert.Nil(t, s.x.Parent(), "owner is filtered")

	t.Run("filter off shows everything", func(t *testing.T) {
		s.f.TurnFilterOff()
		defer s.f.TurnFilterOn()
		assert.False(t, s.f.IsFiltered(s.x.ID()))
		assert.Equal(t, 1, s.decl.Size(schema.EdgeVariableDeclarationHasDeclarations))
		assert.Equal(t, Filtered, s.f.FilterState(s.x.ID()))
	})

	t.Run("unfilter one node reconnects it to its root", func(t *testing.T) {
		require.NoError(t, s.f.SetNotFiltered(s.arg.ID()))
		assert.False(t, s.f.IsFiltered(s.arg.ID()))
		assert.False(t, s.f.IsFiltered(s.call.ID()))
		assert.False(t, s.f.IsFiltered(s.declarator.ID()))
		assert.True(t, s.f.IsFiltered(s.x.ID()))
		assert.True(t, s.f.IsFiltered(s.callee.ID()))
	})

	t.Run("this node only", func(t *testing.T) {
		require.NoError(t, s.f.SetFilteredThisNodeOnly(s.program.ID()))
		assert.True(t, s.f.IsFiltered(s.program.ID()))
		assert.False(t, s.f.IsFiltered(s.fn.ID()))
		require.NoError(t, s.f.SetNotFilteredThisNodeOnly(s.program.ID()))
		assert.ErrorIs(t, s.f.SetFilteredThisNodeOnly(500), ErrInvalidNodeID)
	})

	s.f.InitializeFilter()
	assert.Zero(t, s.f.FilteredCount())
}

func TestFilter_Transparency(t *testing.T) {
	s := buildScenario(t)
	before := visibleIDs(s.f)
	hash := s.program.Hash()

	require.NoError(t, s.f.SetFiltered(s.decl.ID()))
	assert.Less(t, len(visibleIDs(s.f)), len(before))
	require.NoError(t, s.f.SetNotFiltered(s.decl.ID()))

	assert.Equal(t, before, visibleIDs(s.f))
	assert.Equal(t, hash, s.program.Hash())
}

func TestFilter_SuspendedForStorage(t *testing.T) {
	s := buildScenario(t)
	require.NoError(t, s.f.SetFiltered(s.decl.ID()))
	require.NoError(t, s.f.EnableReverseEdges(nil))

	// The index covers filtered nodes.
	require.NoError(t, s.f.WithFilterOff(func() error {
		r, err := s.f.ReverseEdges()
		require.NoError(t, err)
		callers, err := r.Sources(s.fn.ID(), schema.EdgeCallExpressionCalls)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{s.call.ID()}, callers)
		return nil
	}))
	assert.True(t, s.f.IsFilterTurnedOn())

	var buf bytes.Buffer
	require.NoError(t, s.f.Save(context.Background(), &buf))
	assert.True(t, s.f.IsFilterTurnedOn())

	loaded := NewFactory(strtable.New())
	require.NoError(t, loaded.Load(context.Background(), &buf))
	assert.Equal(t, s.f.NodeCount(), loaded.NodeCount())
	assert.Zero(t, loaded.FilteredCount(), "filter state is not part of the graph file")
}

func TestFilter_TurnFilterOffSafely_Panic(t *testing.T) {
	f := NewFactory(nil)
	require.True(t, f.IsFilterTurnedOn())

	assert.Panics(t, func() {
		restore := f.TurnFilterOffSafely()
		defer restore()
		require.False(t, f.IsFilterTurnedOn())
		panic("boom")
	})
	assert.True(t, f.IsFilterTurnedOn())

	f.TurnFilterOff()
	restore := f.TurnFilterOffSafely()
	restore()
	assert.False(t, f.IsFilterTurnedOn(), "restores the previous state, not on")
}

func TestFilter_ByPath(t *testing.T) {
	f := NewFactory(nil)
	var files []*Node
	for _, path := range []string{"src/app/main.js", "src/vendor/lib.js", "test/app.test.js"} {
		p := mustCreate(t, f, schema.KindProgram)
		setRange(t, p, path, 1, 1, 10, 1)
		stmt := mustCreate(t, f, schema.KindEmptyStatement)
		require.NoError(t, p.Add(schema.EdgeProgramHasBody, stmt.ID()))
		files = append(files, p)
	}

	matched, err := f.FilterByPath("src/vendor/**", "test/**")
	require.NoError(t, err)
	assert.Equal(t, 2, matched)
	assert.False(t, f.IsFiltered(files[0].ID()))
	assert.True(t, f.IsFiltered(files[1].ID()))
	assert.True(t, f.IsFiltered(files[2].ID()))
	assert.Equal(t, 4, f.FilteredCount(), "programs and their statements")

	_, err = f.FilterByPath("src/[")
	assert.ErrorIs(t, err, doublestar.ErrBadPattern)
}

func TestFilter_SaveLoad(t *testing.T) {
	s := buildScenario(t)
	require.NoError(t, s.f.SetFiltered(s.call.ID()))

	var buf bytes.Buffer
	require.NoError(t, s.f.SaveFilter(&buf))
	saved := buf.Bytes()

	s.f.InitializeFilter()
	require.NoError(t, s.f.LoadFilter(bytes.NewReader(saved)))
	assert.True(t, s.f.IsFiltered(s.call.ID()))
	assert.True(t, s.f.IsFiltered(s.arg.ID()))
	assert.False(t, s.f.IsFiltered(s.x.ID()))

	t.Run("slot count mismatch", func(t *testing.T) {
		mustCreate(t, s.f, schema.KindIdentifier)
		err := s.f.LoadFilter(bytes.NewReader(saved))
		assert.ErrorIs(t, err, ErrFilterMismatch)
	})

	t.Run("not a filter file", func(t *testing.T) {
		err := s.f.LoadFilter(bytes.NewReader([]byte("nope\x00\x00\x00\x00")))
		assert.ErrorIs(t, err, ErrWrongFileType)
	})
}
