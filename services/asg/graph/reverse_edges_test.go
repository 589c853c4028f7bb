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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/asgstore/services/asg/schema"
)

func TestReverseEdges_Disabled(t *testing.T) {
	f := NewFactory(nil)
	assert.False(t, f.HasReverseEdges())
	_, err := f.ReverseEdges()
	assert.ErrorIs(t, err, ErrReverseEdgesDisabled)
	assert.ErrorIs(t, f.VerifyReverseEdges(), ErrReverseEdgesDisabled)
}

func TestReverseEdges_Sources(t *testing.T) {
	s := buildScenario(t)
	require.NoError(t, s.f.EnableReverseEdges(nil))
	r, err := s.f.ReverseEdges()
	require.NoError(t, err)

	callers, err := r.Sources(s.fn.ID(), schema.EdgeCallExpressionCalls)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{s.call.ID()}, callers)

	refs, err := r.Sources(s.fn.ID(), schema.EdgeIdentifierRefersTo)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{s.callee.ID()}, refs)

	existing, err := r.ExistingEdges(s.fn.ID())
	require.NoError(t, err)
	assert.ElementsMatch(t, []schema.EdgeKind{
		schema.EdgeProgramHasBody,
		schema.EdgeCallExpressionCalls,
		schema.EdgeIdentifierRefersTo,
	}, existing)

	t.Run("edge that cannot point at the kind", func(t *testing.T) {
		_, err := r.Iterator(s.fn.ID(), schema.EdgeVariableDeclaratorHasInit)
		assert.ErrorIs(t, err, ErrInvalidEdgeKind)
	})

	t.Run("possible but unused edge is empty", func(t *testing.T) {
		srcs, err := r.Sources(s.x.ID(), schema.EdgeCallExpressionHasArguments)
		require.NoError(t, err)
		assert.Empty(t, srcs)
	})

	t.Run("unknown node", func(t *testing.T) {
		_, err := r.Sources(999, schema.EdgeIdentifierRefersTo)
		assert.ErrorIs(t, err, ErrInvalidNodeID)
		assert.False(t, r.Contains(999))
	})

	t.Run("possible edges", func(t *testing.T) {
		possible := r.PossibleEdges(schema.KindFunctionDeclaration)
		assert.Contains(t, possible, schema.EdgeCallExpressionCalls)
		assert.NotContains(t, possible, schema.EdgeVariableDeclaratorHasInit)
	})

	t.Run("tracks later edits", func(t *testing.T) {
		other, err := s.f.CreateCallExpression()
		require.NoError(t, err)
		require.True(t, r.Contains(other.ID()))
		require.NoError(t, other.AddCall(s.fn.ID()))

		callers, err := r.Sources(s.fn.ID(), schema.EdgeCallExpressionCalls)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{s.call.ID(), other.ID()}, callers)

		require.NoError(t, other.Remove(schema.EdgeCallExpressionCalls, s.fn.ID()))
		callers, err = r.Sources(s.fn.ID(), schema.EdgeCallExpressionCalls)
		require.NoError(t, err)
		assert.Equal(t, []NodeID{s.call.ID()}, callers)
	})

	t.Run("filtered sources are hidden", func(t *testing.T) {
		require.NoError(t, s.f.SetFiltered(s.decl.ID()))
		defer func() { require.NoError(t, s.f.SetNotFiltered(s.decl.ID())) }()
		callers, err := r.Sources(s.fn.ID(), schema.EdgeCallExpressionCalls)
		require.NoError(t, err)
		assert.Empty(t, callers)
	})

	require.NoError(t, s.f.VerifyReverseEdges())
}

func TestReverseEdges_Selector(t *testing.T) {
	s := buildScenario(t)
	callsOnly := func(_ *Node, e schema.EdgeKind) bool { return e == schema.EdgeCallExpressionCalls }
	require.NoError(t, s.f.EnableReverseEdges(callsOnly))
	r, err := s.f.ReverseEdges()
	require.NoError(t, err)

	refs, err := r.Sources(s.fn.ID(), schema.EdgeIdentifierRefersTo)
	require.NoError(t, err)
	assert.Empty(t, refs)
	callers, err := r.Sources(s.fn.ID(), schema.EdgeCallExpressionCalls)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{s.call.ID()}, callers)
	require.NoError(t, s.f.VerifyReverseEdges())

	// Switching back to a full index rebuilds it.
	require.NoError(t, s.f.EnableReverseEdges(nil))
	r, err = s.f.ReverseEdges()
	require.NoError(t, err)
	refs, err = r.Sources(s.fn.ID(), schema.EdgeIdentifierRefersTo)
	require.NoError(t, err)
	assert.Equal(t, []NodeID{s.callee.ID()}, refs)
}

// randomGraph applies random edits and checks the index after each batch.
type randomGraph struct {
	t     *testing.T
	f     *Factory
	rng   *rand.Rand
	kinds []schema.NodeKind
}

func (g *randomGraph) pick(kind schema.NodeKind) *Node {
	var candidates []*Node
	for n := range g.f.NodesOfKind(kind) {
		candidates = append(candidates, n)
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[g.rng.IntN(len(candidates))]
}

func (g *randomGraph) step() {
	switch g.rng.IntN(7) {
	case 0, 1:
		_, err := g.f.CreateNode(g.kinds[g.rng.IntN(len(g.kinds))])
		require.NoError(g.t, err)
	case 2:
		call, fn := g.pick(schema.KindCallExpression), g.pick(schema.KindFunction)
		if call != nil && fn != nil {
			require.NoError(g.t, call.Add(schema.EdgeCallExpressionCalls, fn.ID()))
		}
	case 3:
		ident, target := g.pick(schema.KindIdentifier), g.pick(schema.KindPositioned)
		if ident != nil && target != nil {
			require.NoError(g.t, ident.SetSingle(schema.EdgeIdentifierRefersTo, target.ID()))
		}
	case 4:
		call, arg := g.pick(schema.KindCallExpression), g.pick(schema.KindExpression)
		if call == nil || arg == nil || arg.ParentID() != NullID {
			return
		}
		err := call.Add(schema.EdgeCallExpressionHasArguments, arg.ID())
		if err != nil {
			require.ErrorIs(g.t, err, ErrOwnershipCycle)
		}
	case 5:
		call := g.pick(schema.KindCallExpression)
		if call == nil {
			return
		}
		if ids := call.IDs(schema.EdgeCallExpressionCalls); len(ids) > 0 {
			require.NoError(g.t, call.Remove(schema.EdgeCallExpressionCalls, ids[g.rng.IntN(len(ids))]))
		}
	case 6:
		if n := g.pick(schema.KindPositioned); n != nil && g.rng.IntN(3) == 0 {
			if g.rng.IntN(2) == 0 {
				require.NoError(g.t, g.f.DestroyNode(n.ID()))
			} else {
				require.NoError(g.t, g.f.DestroyThisNodeOnly(n.ID()))
			}
		}
	}
}

func TestReverseEdges_RandomisedConsistency(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		g := &randomGraph{
			t:   t,
			f:   NewFactory(nil),
			rng: rand.New(rand.NewPCG(seed, seed*7919)),
			kinds: []schema.NodeKind{
				schema.KindCallExpression,
				schema.KindFunctionDeclaration,
				schema.KindArrowFunctionExpression,
				schema.KindIdentifier,
			},
		}
		require.NoError(t, g.f.EnableReverseEdges(nil))
		for batch := 0; batch < 20; batch++ {
			for range 25 {
				g.step()
			}
			require.NoError(t, g.f.Verify(), "seed %d batch %d", seed, batch)
		}

		// An index rebuilt from scratch agrees with the maintained one.
		r, err := g.f.ReverseEdges()
		require.NoError(t, err)
		maintained := make(map[NodeID][]NodeID)
		for n := range g.f.NodesOfKind(schema.KindFunction) {
			srcs, err := r.Sources(n.ID(), schema.EdgeCallExpressionCalls)
			require.NoError(t, err)
			maintained[n.ID()] = srcs
		}
		g.f.DisableReverseEdges()
		require.NoError(t, g.f.EnableReverseEdges(nil))
		r, err = g.f.ReverseEdges()
		require.NoError(t, err)
		for id, want := range maintained {
			got, err := r.Sources(id, schema.EdgeCallExpressionCalls)
			require.NoError(t, err)
			assert.ElementsMatch(t, want, got, "seed %d node %d", seed, id)
		}
	}
}
