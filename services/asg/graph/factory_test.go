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
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/asgstore/services/asg/schema"
	"github.com/AleutianAI/asgstore/services/asg/strtable"
)

// scenario is the graph for `let x = f(y);` in one program, plus a
// function declaration f that the call resolves to.
type scenario struct {
	f          *Factory
	program    Program
	decl       VariableDeclaration
	declarator VariableDeclarator
	x          Identifier
	call       CallExpression
	callee     Identifier
	arg        Identifier
	fn         FunctionDeclaration
	fnName     Identifier
}

func buildScenario(t *testing.T, opts ...FactoryOption) *scenario {
	t.Helper()
	f := NewFactory(strtable.New(), opts...)
	s := &scenario{f: f}
	var err error

	s.program, err = f.CreateProgram()
	require.NoError(t, err)
	require.NoError(t, s.program.SetString(schema.AttrNamedName, "main.js"))
	require.NoError(t, s.program.SetSourceType(schema.SourceTypeModule))

	s.fn, err = f.CreateFunctionDeclaration()
	require.NoError(t, err)
	s.fnName, err = f.CreateIdentifier("f")
	require.NoError(t, err)
	require.NoError(t, s.fn.SetIdentifier(s.fnName.ID()))
	require.NoError(t, s.fn.SetAsync(true))

	s.decl, err = f.CreateVariableDeclaration(schema.DeclarationKindLet)
	require.NoError(t, err)
	s.declarator, err = f.CreateVariableDeclarator()
	require.NoError(t, err)
	s.x, err = f.CreateIdentifier("x")
	require.NoError(t, err)
	s.call, err = f.CreateCallExpression()
	require.NoError(t, err)
	s.callee, err = f.CreateIdentifier("f")
	require.NoError(t, err)
	s.arg, err = f.CreateIdentifier("y")
	require.NoError(t, err)

	require.NoError(t, s.program.AddBody(s.fn.ID()))
	require.NoError(t, s.program.AddBody(s.decl.ID()))
	require.NoError(t, s.decl.AddDeclaration(s.declarator.ID()))
	require.NoError(t, s.declarator.SetIdentifier(s.x.ID()))
	require.NoError(t, s.declarator.SetInit(s.call.ID()))
	require.NoError(t, s.call.SetCallee(s.callee.ID()))
	require.NoError(t, s.call.AddArgument(s.arg.ID()))
	require.NoError(t, s.call.AddCall(s.fn.ID()))
	require.NoError(t, s.callee.SetRefersTo(s.fn.ID()))

	setRange(t, s.program.Node, "src/main.js", 1, 1, 3, 1)
	setRange(t, s.fn.Node, "src/main.js", 1, 1, 1, 20)
	setRange(t, s.decl.Node, "src/main.js", 2, 1, 2, 15)
	setRange(t, s.declarator.Node, "src/main.js", 2, 5, 2, 14)
	setRange(t, s.x.Node, "src/main.js", 2, 5, 2, 6)
	setRange(t, s.call.Node, "src/main.js", 2, 9, 2, 14)
	return s
}

func setRange(t *testing.T, n *Node, path string, line, col, endLine, endCol uint32) {
	t.Helper()
	require.NoError(t, n.SetPosition(Range{
		Path: path, Line: line, Col: col, EndLine: endLine, EndCol: endCol,
		WideLine: line, WideCol: col, WideEndLine: endLine, WideEndCol: endCol,
	}))
}

func TestFactory_CreateNode(t *testing.T) {
	t.Run("ids are allocated in order", func(t *testing.T) {
		f := NewFactory(nil)
		a, err := f.CreateNode(schema.KindIdentifier)
		require.NoError(t, err)
		b, err := f.CreateNode(schema.KindProgram)
		require.NoError(t, err)

		assert.Equal(t, NodeID(1), a.ID())
		assert.Equal(t, NodeID(2), b.ID())
		assert.Equal(t, 2, f.NodeCount())
		assert.Equal(t, NodeID(2), f.MaxID())
		assert.Equal(t, schema.KindProgram, b.Kind())
		assert.True(t, a.Alive())
		assert.Same(t, f, a.Factory())
	})

	t.Run("abstract kind is rejected", func(t *testing.T) {
		f := NewFactory(nil)
		_, err := f.CreateNode(schema.KindExpression)
		require.ErrorIs(t, err, ErrInvalidNodeKind)
		assert.True(t, f.IsEmpty())
	})

	t.Run("out of range kind is rejected", func(t *testing.T) {
		f := NewFactory(nil)
		_, err := f.CreateNode(schema.NumNodeKinds)
		require.ErrorIs(t, err, ErrInvalidNodeKind)
	})

	t.Run("node limit", func(t *testing.T) {
		f := NewFactory(nil, WithMaxNodes(2))
		_, err := f.CreateNode(schema.KindIdentifier)
		require.NoError(t, err)
		_, err = f.CreateNode(schema.KindIdentifier)
		require.NoError(t, err)
		_, err = f.CreateNode(schema.KindIdentifier)
		require.ErrorIs(t, err, ErrMaxNodesExceeded)
	})
}

func TestFactory_Node(t *testing.T) {
	f := NewFactory(nil)
	n, err := f.CreateNode(schema.KindIdentifier)
	require.NoError(t, err)

	got, err := f.Node(n.ID())
	require.NoError(t, err)
	assert.Same(t, n, got)

	for _, id := range []NodeID{NullID, 2, 1000} {
		_, err := f.Node(id)
		assert.ErrorIs(t, err, ErrInvalidNodeID, "id %d", id)
		assert.False(t, f.Exists(id))
	}

	var gerr *Error
	_, err = f.Node(42)
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "Factory.Node", gerr.Op)
	assert.Equal(t, NodeID(42), gerr.ID)
}

func TestFactory_NodesOfKind(t *testing.T) {
	s := buildScenario(t)

	var idents []NodeID
	for n := range s.f.NodesOfKind(schema.KindIdentifier) {
		idents = append(idents, n.ID())
	}
	assert.Equal(t, []NodeID{s.fnName.ID(), s.x.ID(), s.callee.ID(), s.arg.ID()}, idents)

	exprs := 0
	for range s.f.NodesOfKind(schema.KindExpression) {
		exprs++
	}
	// Four identifiers and the call.
	assert.Equal(t, 5, exprs)

	var roots []NodeID
	for n := range s.f.Roots() {
		roots = append(roots, n.ID())
	}
	assert.Equal(t, []NodeID{s.program.ID()}, roots)
}

func TestFactory_DestroyNode(t *testing.T) {
	for _, reverse := range []bool{false, true} {
		name := "scan"
		if reverse {
			name = "reverse index"
		}
		t.Run(name, func(t *testing.T) {
			s := buildScenario(t)
			if reverse {
				require.NoError(t, s.f.EnableReverseEdges(nil))
			}
			before := s.f.NodeCount()

			require.NoError(t, s.f.DestroyNode(s.decl.ID()))

			assert.Equal(t, before-6, s.f.NodeCount())
			for _, n := range []*Node{s.decl.Node, s.declarator.Node, s.x.Node, s.call.Node, s.callee.Node, s.arg.Node} {
				assert.False(t, n.Alive(), "node %d", n.ID())
				assert.False(t, s.f.Exists(n.ID()))
			}
			assert.Equal(t, []NodeID{s.fn.ID()}, s.program.IDs(schema.EdgeProgramHasBody))
			assert.True(t, s.fn.Alive())
			require.NoError(t, s.f.Verify())

			next, err := s.f.CreateNode(schema.KindIdentifier)
			require.NoError(t, err)
			assert.Greater(t, next.ID(), s.arg.ID(), "ids are not reused")
		})
	}
}

func TestFactory_DestroyNode_ClearsReferences(t *testing.T) {
	for _, reverse := range []bool{false, true} {
		s := buildScenario(t)
		if reverse {
			require.NoError(t, s.f.EnableReverseEdges(nil))
		}

		require.NoError(t, s.f.DestroyNode(s.fn.ID()))

		assert.Nil(t, s.callee.RefersTo())
		assert.Equal(t, NullID, s.callee.SingleID(schema.EdgeIdentifierRefersTo))
		assert.Empty(t, s.call.IDs(schema.EdgeCallExpressionCalls))
		assert.False(t, s.fnName.Alive())
		require.NoError(t, s.f.Verify())
	}
}

func TestFactory_DestroyNode_SelectiveIndex(t *testing.T) {
	s := buildScenario(t)
	ownershipOnly := func(_ *Node, e schema.EdgeKind) bool { return e.IsOwnership() }
	require.NoError(t, s.f.EnableReverseEdges(ownershipOnly))

	require.NoError(t, s.f.DestroyNode(s.fn.ID()))

	assert.Equal(t, NullID, s.callee.SingleID(schema.EdgeIdentifierRefersTo))
	assert.Empty(t, s.call.IDs(schema.EdgeCallExpressionCalls))
	require.NoError(t, s.f.Verify())
}

func TestFactory_DestroyThisNodeOnly(t *testing.T) {
	s := buildScenario(t)

	require.NoError(t, s.f.DestroyThisNodeOnly(s.declarator.ID()))

	assert.False(t, s.declarator.Alive())
	assert.True(t, s.x.Alive())
	assert.True(t, s.call.Alive())
	assert.Equal(t, NullID, s.x.ParentID())
	assert.Equal(t, NullID, s.call.ParentID())
	assert.Empty(t, s.decl.IDs(schema.EdgeVariableDeclarationHasDeclarations))

	var roots []NodeID
	for n := range s.f.Roots() {
		roots = append(roots, n.ID())
	}
	assert.Equal(t, []NodeID{s.program.ID(), s.x.ID(), s.call.ID()}, roots)
	require.NoError(t, s.f.Verify())
}

func TestFactory_DestroyNode_RestoresFilter(t *testing.T) {
	s := buildScenario(t)
	require.NoError(t, s.f.SetFiltered(s.decl.ID()))
	require.True(t, s.f.IsFilterTurnedOn())

	require.NoError(t, s.f.DestroyNode(s.decl.ID()))

	assert.True(t, s.f.IsFilterTurnedOn())
	assert.Zero(t, s.f.FilteredCount())
}

func TestFactory_DestroyNode_InvalidID(t *testing.T) {
	f := NewFactory(nil)
	assert.ErrorIs(t, f.DestroyNode(7), ErrInvalidNodeID)
	assert.ErrorIs(t, f.DestroyThisNodeOnly(NullID), ErrInvalidNodeID)
}

func TestFactory_Clear(t *testing.T) {
	s := buildScenario(t)
	require.NoError(t, s.f.EnableReverseEdges(nil))

	s.f.Clear()

	assert.True(t, s.f.IsEmpty())
	assert.False(t, s.f.HasReverseEdges())
	assert.False(t, s.program.Alive())
	_, err := s.program.Enum(schema.AttrProgramSourceType)
	assert.ErrorIs(t, err, ErrInvalidNodeID)

	n, err := s.f.CreateNode(schema.KindProgram)
	require.NoError(t, err)
	assert.Equal(t, NodeID(1), n.ID())
}

func TestFactory_SwapStringTable(t *testing.T) {
	s := buildScenario(t)
	old := s.f.StringTable()
	hash := s.program.Hash()

	table := strtable.New()
	table.Set("padding")
	s.f.SwapStringTable(table)

	assert.Same(t, table, s.f.StringTable())
	assert.Equal(t, "x", s.x.Name())
	assert.Equal(t, "main.js", s.program.Name())
	key, err := s.x.StringKey(schema.AttrNamedName)
	require.NoError(t, err)
	got, ok := table.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, got, key)
	assert.Equal(t, hash, s.program.Hash())

	_, ok = old.Lookup("x")
	assert.True(t, ok, "old table is left untouched")
}

func TestNode_Attributes(t *testing.T) {
	f := NewFactory(nil)
	lit, err := f.CreateNode(schema.KindNumberLiteral)
	require.NoError(t, err)

	require.NoError(t, lit.SetFloat(schema.AttrNumberLiteralValue, 2.5))
	v, err := lit.Float(schema.AttrNumberLiteralValue)
	require.NoError(t, err)
	assert.Equal(t, 2.5, v)

	require.NoError(t, lit.SetString(schema.AttrLiteralRaw, "2.5"))
	raw, err := lit.String(schema.AttrLiteralRaw)
	require.NoError(t, err)
	assert.Equal(t, "2.5", raw)

	tests := []struct {
		name string
		err  error
	}{
		{"undeclared attribute", lit.SetBool(schema.AttrFunctionAsync, true)},
		{"wrong type", lit.SetBool(schema.AttrNumberLiteralValue, true)},
		{"unknown string key", lit.SetStringKey(schema.AttrLiteralRaw, 999)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, ErrInvalidAttribute)
		})
	}

	upd, err := f.CreateNode(schema.KindUpdateExpression)
	require.NoError(t, err)
	require.NoError(t, upd.SetEnum(schema.AttrUpdateExpressionOperator, 1))
	name, err := upd.EnumName(schema.AttrUpdateExpressionOperator)
	require.NoError(t, err)
	assert.Equal(t, "--", name)
	assert.ErrorIs(t, upd.SetEnum(schema.AttrUpdateExpressionOperator, 2), ErrInvalidAttribute)

	assert.Equal(t, "", upd.Name(), "not Named")
	assert.True(t, slices.Contains(schema.LayoutOf(upd.Kind()).Classes, schema.KindPositioned))
}
