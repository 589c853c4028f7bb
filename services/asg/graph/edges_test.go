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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/asgstore/services/asg/schema"
)

func mustCreate(t *testing.T, f *Factory, kind schema.NodeKind) *Node {
	t.Helper()
	n, err := f.CreateNode(kind)
	require.NoError(t, err)
	return n
}

func TestNode_SetSingle(t *testing.T) {
	f := NewFactory(nil)
	declarator := mustCreate(t, f, schema.KindVariableDeclarator)
	ident := mustCreate(t, f, schema.KindIdentifier)
	other := mustCreate(t, f, schema.KindIdentifier)
	program := mustCreate(t, f, schema.KindProgram)

	t.Run("sets owner link", func(t *testing.T) {
		require.NoError(t, declarator.SetSingle(schema.EdgeVariableDeclaratorHasIdentifier, ident.ID()))
		assert.Same(t, ident, declarator.Single(schema.EdgeVariableDeclaratorHasIdentifier))
		assert.Equal(t, declarator.ID(), ident.ParentID())
		assert.Equal(t, schema.EdgeVariableDeclaratorHasIdentifier, ident.ParentEdge())
		assert.Same(t, declarator, ident.Parent())
	})

	t.Run("same value is a no-op", func(t *testing.T) {
		require.NoError(t, declarator.SetSingle(schema.EdgeVariableDeclaratorHasIdentifier, ident.ID()))
		assert.Equal(t, declarator.ID(), ident.ParentID())
	})

	t.Run("replacing detaches the old target", func(t *testing.T) {
		require.NoError(t, declarator.SetSingle(schema.EdgeVariableDeclaratorHasIdentifier, other.ID()))
		assert.Equal(t, NullID, ident.ParentID())
		assert.Equal(t, declarator.ID(), other.ParentID())
	})

	t.Run("null id on a populated edge", func(t *testing.T) {
		err := declarator.SetSingle(schema.EdgeVariableDeclaratorHasIdentifier, NullID)
		require.ErrorIs(t, err, ErrCannotClearEdge)
		assert.Equal(t, other.ID(), declarator.SingleID(schema.EdgeVariableDeclaratorHasIdentifier))
	})

	t.Run("null id on an empty edge", func(t *testing.T) {
		require.NoError(t, declarator.SetSingle(schema.EdgeVariableDeclaratorHasInit, NullID))
	})

	t.Run("clear single", func(t *testing.T) {
		require.NoError(t, declarator.ClearSingle(schema.EdgeVariableDeclaratorHasIdentifier))
		assert.Equal(t, NullID, declarator.SingleID(schema.EdgeVariableDeclaratorHasIdentifier))
		assert.Equal(t, NullID, other.ParentID())
		require.NoError(t, declarator.ClearSingle(schema.EdgeVariableDeclaratorHasIdentifier))
	})

	errTests := []struct {
		name   string
		edge   schema.EdgeKind
		target NodeID
		want   error
	}{
		{"missing target", schema.EdgeVariableDeclaratorHasInit, 99, ErrEdgeEndpointMissing},
		{"target kind not accepted", schema.EdgeVariableDeclaratorHasInit, program.ID(), ErrInvalidNodeKind},
		{"edge not declared", schema.EdgeCallExpressionHasCallee, ident.ID(), ErrInvalidEdgeKind},
		{"multi edge", schema.EdgeVariableDeclarationHasDeclarations, ident.ID(), ErrInvalidEdgeKind},
	}
	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			err := declarator.SetSingle(tt.edge, tt.target)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, NullID, declarator.SingleID(schema.EdgeVariableDeclaratorHasInit))
		})
	}
}

func TestNode_SetEdge(t *testing.T) {
	f := NewFactory(nil)
	decl := mustCreate(t, f, schema.KindVariableDeclaration)
	declarator := mustCreate(t, f, schema.KindVariableDeclarator)
	ident := mustCreate(t, f, schema.KindIdentifier)

	ok, err := decl.SetEdge(schema.EdgeVariableDeclarationHasDeclarations, declarator.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []NodeID{declarator.ID()}, decl.IDs(schema.EdgeVariableDeclarationHasDeclarations))

	ok, err = declarator.SetEdge(schema.EdgeVariableDeclaratorHasIdentifier, ident.ID())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ident.SetEdge(schema.EdgeProgramHasBody, decl.ID())
	require.NoError(t, err)
	assert.False(t, ok, "Identifier has no such edge")

	ok, err = declarator.RemoveEdge(schema.EdgeVariableDeclaratorHasIdentifier, ident.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, NullID, ident.ParentID())

	ok, err = decl.RemoveEdge(schema.EdgeVariableDeclarationHasDeclarations, declarator.ID())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, decl.IDs(schema.EdgeVariableDeclarationHasDeclarations))
}

func TestNode_Ownership(t *testing.T) {
	f := NewFactory(nil)
	b1 := mustCreate(t, f, schema.KindBlockStatement)
	b2 := mustCreate(t, f, schema.KindBlockStatement)
	b3 := mustCreate(t, f, schema.KindBlockStatement)

	require.NoError(t, b1.Add(schema.EdgeBlockStatementHasBody, b2.ID()))
	require.NoError(t, b2.Add(schema.EdgeBlockStatementHasBody, b3.ID()))

	t.Run("second owner", func(t *testing.T) {
		err := b3.Add(schema.EdgeBlockStatementHasBody, b2.ID())
		require.ErrorIs(t, err, ErrNodeAlreadyOwned)
	})

	t.Run("own an ancestor", func(t *testing.T) {
		err := b3.Add(schema.EdgeBlockStatementHasBody, b1.ID())
		require.ErrorIs(t, err, ErrOwnershipCycle)
		assert.Empty(t, b3.IDs(schema.EdgeBlockStatementHasBody))
	})

	t.Run("own itself", func(t *testing.T) {
		err := b1.Add(schema.EdgeBlockStatementHasBody, b1.ID())
		require.ErrorIs(t, err, ErrOwnershipCycle)
	})

	t.Run("references do not own", func(t *testing.T) {
		ident := mustCreate(t, f, schema.KindIdentifier)
		require.NoError(t, ident.SetSingle(schema.EdgeIdentifierRefersTo, b2.ID()))
		assert.Equal(t, b1.ID(), b2.ParentID())
		require.NoError(t, ident.SetSingle(schema.EdgeIdentifierRefersTo, ident.ID()))
	})

	require.NoError(t, f.Verify())
}

func TestNode_AddRemove(t *testing.T) {
	f := NewFactory(nil)
	call := mustCreate(t, f, schema.KindCallExpression)
	fn := mustCreate(t, f, schema.KindFunctionDeclaration)
	arrow := mustCreate(t, f, schema.KindArrowFunctionExpression)

	require.NoError(t, call.Add(schema.EdgeCallExpressionCalls, fn.ID()))
	require.NoError(t, call.Add(schema.EdgeCallExpressionCalls, arrow.ID()))
	require.NoError(t, call.Add(schema.EdgeCallExpressionCalls, fn.ID()))
	assert.Equal(t, []NodeID{fn.ID(), arrow.ID(), fn.ID()}, call.IDs(schema.EdgeCallExpressionCalls))
	assert.Equal(t, 3, call.Size(schema.EdgeCallExpressionCalls))

	require.NoError(t, call.Remove(schema.EdgeCallExpressionCalls, fn.ID()))
	assert.Equal(t, []NodeID{arrow.ID(), fn.ID()}, call.IDs(schema.EdgeCallExpressionCalls))

	err := call.Remove(schema.EdgeCallExpressionCalls, call.ID())
	assert.ErrorIs(t, err, ErrEdgeEndpointMissing)
	err = call.Remove(schema.EdgeCallExpressionCalls, 500)
	assert.ErrorIs(t, err, ErrEdgeEndpointMissing)

	ident := mustCreate(t, f, schema.KindIdentifier)
	err = call.Add(schema.EdgeCallExpressionCalls, ident.ID())
	assert.ErrorIs(t, err, ErrInvalidNodeKind)
	assert.False(t, call.IsEmpty(schema.EdgeCallExpressionCalls))
}

func TestNode_CrossFactory(t *testing.T) {
	f1 := NewFactory(nil)
	f2 := NewFactory(nil)
	call := mustCreate(t, f1, schema.KindCallExpression)
	fn := mustCreate(t, f2, schema.KindFunctionDeclaration)
	callee := mustCreate(t, f2, schema.KindIdentifier)

	assert.ErrorIs(t, call.AddNode(schema.EdgeCallExpressionCalls, fn), ErrFactoryMismatch)
	assert.ErrorIs(t, call.SetSingleNode(schema.EdgeCallExpressionHasCallee, callee), ErrFactoryMismatch)
	assert.Empty(t, call.IDs(schema.EdgeCallExpressionCalls))
	assert.Equal(t, NullID, callee.ParentID())
}

func TestNode_DestroyedHandle(t *testing.T) {
	f := NewFactory(nil)
	call := mustCreate(t, f, schema.KindCallExpression)
	fn := mustCreate(t, f, schema.KindFunctionDeclaration)
	require.NoError(t, f.DestroyNode(call.ID()))

	assert.ErrorIs(t, call.Add(schema.EdgeCallExpressionCalls, fn.ID()), ErrInvalidNodeID)
	assert.ErrorIs(t, fn.AddNode(schema.EdgeFunctionHasParams, call), ErrEdgeEndpointMissing)
	assert.Nil(t, call.Single(schema.EdgeCallExpressionHasCallee))
	assert.Zero(t, call.Size(schema.EdgeCallExpressionCalls))
}

func TestListIterator(t *testing.T) {
	f := NewFactory(nil)
	decl := mustCreate(t, f, schema.KindVariableDeclaration)
	var ids []NodeID
	for range 3 {
		d := mustCreate(t, f, schema.KindVariableDeclarator)
		require.NoError(t, decl.Add(schema.EdgeVariableDeclarationHasDeclarations, d.ID()))
		ids = append(ids, d.ID())
	}

	t.Run("walks forward and back", func(t *testing.T) {
		it, err := decl.Iterator(schema.EdgeVariableDeclarationHasDeclarations)
		require.NoError(t, err)
		var got []NodeID
		for end := it.End(); !it.Equal(end); {
			id, err := it.ID()
			require.NoError(t, err)
			got = append(got, id)
			require.NoError(t, it.Next())
		}
		assert.Equal(t, ids, got)

		_, err = it.Node()
		assert.ErrorIs(t, err, ErrNoSuchElement, "dereferencing end")
		assert.ErrorIs(t, it.Next(), ErrNoSuchElement)

		require.NoError(t, it.Prev())
		id, err := it.ID()
		require.NoError(t, err)
		assert.Equal(t, ids[2], id)
	})

	t.Run("prev at begin", func(t *testing.T) {
		it, err := decl.Iterator(schema.EdgeVariableDeclarationHasDeclarations)
		require.NoError(t, err)
		assert.ErrorIs(t, it.Prev(), ErrNoSuchElement)
		id, err := it.ID()
		require.NoError(t, err)
		assert.Equal(t, ids[0], id)
	})

	t.Run("mutation invalidates", func(t *testing.T) {
		it, err := decl.Iterator(schema.EdgeVariableDeclarationHasDeclarations)
		require.NoError(t, err)
		extra := mustCreate(t, f, schema.KindVariableDeclarator)
		require.NoError(t, decl.Add(schema.EdgeVariableDeclarationHasDeclarations, extra.ID()))

		assert.False(t, it.Valid())
		assert.ErrorIs(t, it.Next(), ErrIteratorInvalidated)
		_, err = it.Node()
		assert.ErrorIs(t, err, ErrIteratorInvalidated)

		fresh := it.Begin()
		assert.Equal(t, 4, fresh.Len())
		require.NoError(t, decl.Remove(schema.EdgeVariableDeclarationHasDeclarations, extra.ID()))
		assert.ErrorIs(t, fresh.Next(), ErrIteratorInvalidated)
	})

	t.Run("zero value", func(t *testing.T) {
		var it ListIterator[*Node]
		assert.False(t, it.Valid())
		assert.ErrorIs(t, it.Next(), ErrNoSuchElement)
		assert.Zero(t, it.Len())
	})

	t.Run("typed value", func(t *testing.T) {
		view, ok := AsVariableDeclaration(decl)
		require.True(t, ok)
		it, err := view.Declarations()
		require.NoError(t, err)
		v, err := it.Value()
		require.NoError(t, err)
		assert.Equal(t, ids[0], v.ID())
		assert.Equal(t, 3, it.Len())
	})

	t.Run("single edge has no iterator", func(t *testing.T) {
		d, _ := f.Lookup(ids[0])
		_, err := d.Iterator(schema.EdgeVariableDeclaratorHasInit)
		assert.ErrorIs(t, err, ErrInvalidEdgeKind)
	})
}

func TestListIterator_Value_KindMismatch(t *testing.T) {
	f := NewFactory(nil)
	program := mustCreate(t, f, schema.KindProgram)
	empty := mustCreate(t, f, schema.KindEmptyStatement)
	require.NoError(t, program.Add(schema.EdgeProgramHasBody, empty.ID()))

	it, err := typedIterator(program, "test", schema.EdgeProgramHasBody, AsVariableDeclaration)
	require.NoError(t, err)
	_, err = it.Value()
	assert.ErrorIs(t, err, ErrInvalidNodeKind)
	id, err := it.ID()
	require.NoError(t, err)
	assert.Equal(t, empty.ID(), id)
}
