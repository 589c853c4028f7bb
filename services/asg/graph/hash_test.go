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

func TestHash_Structural(t *testing.T) {
	a := buildScenario(t)
	b := buildScenario(t)
	assert.Equal(t, a.program.Hash(), b.program.Hash())

	t.Run("positions are ignored", func(t *testing.T) {
		setRange(t, b.call.Node, "other.js", 40, 2, 40, 9)
		assert.Equal(t, a.program.Hash(), b.program.Hash())
	})

	t.Run("names are not", func(t *testing.T) {
		require.NoError(t, b.arg.SetName("z"))
		assert.NotEqual(t, a.program.Hash(), b.program.Hash())
		assert.NotEqual(t, a.arg.Hash(), b.arg.Hash())
		require.NoError(t, b.arg.SetName("y"))
		assert.Equal(t, a.program.Hash(), b.program.Hash())
	})

	t.Run("enum values are not", func(t *testing.T) {
		require.NoError(t, b.decl.SetDeclarationKind(schema.DeclarationKindConst))
		assert.NotEqual(t, a.decl.Hash(), b.decl.Hash())
	})

	t.Run("edge order is not", func(t *testing.T) {
		f := NewFactory(nil)
		p1 := mustCreate(t, f, schema.KindProgram)
		p2 := mustCreate(t, f, schema.KindProgram)
		e1 := mustCreate(t, f, schema.KindEmptyStatement)
		b1 := mustCreate(t, f, schema.KindBreakStatement)
		e2 := mustCreate(t, f, schema.KindEmptyStatement)
		b2 := mustCreate(t, f, schema.KindBreakStatement)
		require.NoError(t, p1.Add(schema.EdgeProgramHasBody, e1.ID()))
		require.NoError(t, p1.Add(schema.EdgeProgramHasBody, b1.ID()))
		require.NoError(t, p2.Add(schema.EdgeProgramHasBody, b2.ID()))
		require.NoError(t, p2.Add(schema.EdgeProgramHasBody, e2.ID()))
		assert.NotEqual(t, p1.Hash(), p2.Hash())
		assert.Equal(t, e1.Hash(), e2.Hash())
	})
}

func TestHash_Cycle(t *testing.T) {
	f := NewFactory(nil)
	a := mustCreate(t, f, schema.KindIdentifier)
	b := mustCreate(t, f, schema.KindIdentifier)
	require.NoError(t, a.SetSingle(schema.EdgeIdentifierRefersTo, b.ID()))
	require.NoError(t, b.SetSingle(schema.EdgeIdentifierRefersTo, a.ID()))

	ha := a.Hash()
	hb := b.Hash()
	assert.NotZero(t, ha)
	assert.NotZero(t, hb)
	assert.Equal(t, ha, a.Hash(), "memoised")

	self := mustCreate(t, f, schema.KindIdentifier)
	require.NoError(t, self.SetSingle(schema.EdgeIdentifierRefersTo, self.ID()))
	assert.NotZero(t, self.Hash())
}

// cyclicFunction builds
//
//	function f() { f(); }
//
// where the call's calls edge points back at the declaration.
func cyclicFunction(t *testing.T) (fn, call *Node) {
	t.Helper()
	f := NewFactory(nil)
	fn = mustCreate(t, f, schema.KindFunctionDeclaration)
	block := mustCreate(t, f, schema.KindBlockStatement)
	stmt := mustCreate(t, f, schema.KindExpressionStatement)
	call = mustCreate(t, f, schema.KindCallExpression)
	require.NoError(t, fn.SetSingle(schema.EdgeFunctionHasBody, block.ID()))
	require.NoError(t, block.Add(schema.EdgeBlockStatementHasBody, stmt.ID()))
	require.NoError(t, stmt.SetSingle(schema.EdgeExpressionStatementHasExpression, call.ID()))
	require.NoError(t, call.Add(schema.EdgeCallExpressionCalls, fn.ID()))
	return fn, call
}

func TestHash_CycleIndependentOfOrder(t *testing.T) {
	fnA, callA := cyclicFunction(t)
	fnB, callB := cyclicFunction(t)

	// A hashes the declaration first, B the call first.
	fnHashA := fnA.Hash()
	callHashA := callA.Hash()
	callHashB := callB.Hash()
	fnHashB := fnB.Hash()

	assert.Equal(t, callHashB, callHashA)
	assert.Equal(t, fnHashB, fnHashA)
	assert.NotEqual(t, fnHashA, callHashA)

	// Repeated queries agree in any order.
	assert.Equal(t, callHashA, callA.Hash())
	assert.Equal(t, fnHashA, fnA.Hash())
	assert.Equal(t, fnHashB, fnB.Hash())
}

func TestHash_Invalidation(t *testing.T) {
	s := buildScenario(t)
	before := s.program.Hash()
	require.NoError(t, s.call.Remove(schema.EdgeCallExpressionCalls, s.fn.ID()))
	assert.NotEqual(t, before, s.program.Hash())
	require.NoError(t, s.call.AddCall(s.fn.ID()))
	assert.Equal(t, before, s.program.Hash())

	require.NoError(t, s.f.DestroyNode(s.fn.ID()))
	assert.Zero(t, s.fn.Hash(), "destroyed")
}

func TestSimilarity(t *testing.T) {
	f := NewFactory(nil)
	a := mustCreate(t, f, schema.KindIdentifier)
	b := mustCreate(t, f, schema.KindIdentifier)
	c := mustCreate(t, f, schema.KindThisExpression)
	assert.Equal(t, 1.0, Similarity(a, b))
	assert.Equal(t, 0.0, Similarity(a, c))
	assert.Equal(t, 0.0, Similarity(a, nil))
}

func TestComparePosition(t *testing.T) {
	f := NewFactory(nil)
	at := func(kind schema.NodeKind, path string, line, col, endLine, endCol uint32) *Node {
		n := mustCreate(t, f, kind)
		setRange(t, n, path, line, col, endLine, endCol)
		return n
	}
	outer := at(schema.KindCallExpression, "a.js", 1, 1, 1, 20)
	inner := at(schema.KindIdentifier, "a.js", 1, 1, 1, 5)
	later := at(schema.KindIdentifier, "a.js", 1, 7, 1, 8)
	nextLine := at(schema.KindIdentifier, "a.js", 2, 1, 2, 2)
	otherFile := at(schema.KindIdentifier, "b.js", 1, 1, 1, 2)
	twinKind := at(schema.KindCallExpression, "a.js", 1, 7, 1, 8)
	twinID := at(schema.KindIdentifier, "a.js", 1, 7, 1, 8)

	cmp := func(a, b *Node) int {
		c, err := ComparePosition(a, b)
		require.NoError(t, err)
		return c
	}
	assert.Negative(t, cmp(outer, inner), "enclosing node first")
	assert.Negative(t, cmp(inner, later))
	assert.Negative(t, cmp(later, nextLine))
	assert.Negative(t, cmp(nextLine, otherFile))
	assert.Positive(t, cmp(later, twinKind), "kind breaks ties: CallExpression before Identifier")
	assert.Negative(t, cmp(later, twinID), "id breaks ties")
	assert.Zero(t, cmp(later, later))
	assert.Positive(t, cmp(twinID, later))

	nodes := []*Node{otherFile, twinID, nextLine, later, inner, twinKind, outer}
	require.NoError(t, SortByPosition(nodes))
	assert.Equal(t, []*Node{outer, inner, twinKind, later, twinID, nextLine, otherFile}, nodes)

	t.Run("not positioned", func(t *testing.T) {
		sys := mustCreate(t, f, schema.KindSystem)
		_, err := ComparePosition(sys, outer)
		assert.ErrorIs(t, err, ErrInvalidNodeKind)
		assert.ErrorIs(t, SortByPosition([]*Node{outer, sys}), ErrInvalidNodeKind)
		assert.ErrorIs(t, sys.SetPosition(Range{}), ErrInvalidNodeKind)
	})

	t.Run("round trip", func(t *testing.T) {
		r, err := later.Position()
		require.NoError(t, err)
		assert.Equal(t, Range{
			Path: "a.js", Line: 1, Col: 7, EndLine: 1, EndCol: 8,
			WideLine: 1, WideCol: 7, WideEndLine: 1, WideEndCol: 8,
		}, r)
	})
}

func TestComparePosition_RandomisedTotalOrder(t *testing.T) {
	kinds := []schema.NodeKind{schema.KindIdentifier, schema.KindCallExpression}
	paths := []string{"a.js", "b.js"}
	for seed := uint64(1); seed <= 5; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*104729))
		f := NewFactory(nil)
		nodes := make([]*Node, 24)
		for i := range nodes {
			nodes[i] = mustCreate(t, f, kinds[rng.IntN(len(kinds))])
			bit := func() uint32 { return uint32(rng.IntN(2)) }
			require.NoError(t, nodes[i].SetPosition(Range{
				Path:        paths[rng.IntN(len(paths))],
				Line:        bit(),
				Col:         bit(),
				EndLine:     bit(),
				EndCol:      bit(),
				WideLine:    bit(),
				WideCol:     bit(),
				WideEndLine: bit(),
				WideEndCol:  bit(),
			}))
		}

		cmp := make([][]int, len(nodes))
		for i, a := range nodes {
			cmp[i] = make([]int, len(nodes))
			for j, b := range nodes {
				c, err := ComparePosition(a, b)
				require.NoError(t, err)
				cmp[i][j] = c
			}
		}

		for i := range nodes {
			require.Zero(t, cmp[i][i], "seed %d: node %d against itself", seed, i)
			for j := range nodes {
				if i == j {
					continue
				}
				require.NotZero(t, cmp[i][j], "seed %d: distinct nodes %d and %d tie", seed, i, j)
				require.Equal(t, sign(cmp[i][j]), -sign(cmp[j][i]), "seed %d: %d and %d not antisymmetric", seed, i, j)
				for k := range nodes {
					if cmp[i][j] < 0 && cmp[j][k] < 0 {
						require.Negative(t, cmp[i][k], "seed %d: %d < %d < %d not transitive", seed, i, j, k)
					}
				}
			}
		}
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}
