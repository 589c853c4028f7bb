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
	"github.com/AleutianAI/asgstore/services/asg/schema"
)

// Typed views wrap a *Node of a known kind. They add named accessors on
// top of the generic attribute and edge API; the embedded node stays fully
// usable.

// typedIterator returns an iterator over a multi edge whose targets are
// cast with cast.
func typedIterator[T any](n *Node, op string, e schema.EdgeKind, cast func(*Node) (T, bool)) (ListIterator[T], error) {
	s, err := n.multiSlot(op, e)
	if err != nil {
		return ListIterator[T]{}, err
	}
	return newListIterator(n.factory, s.list, cast), nil
}

func createAs[T any](f *Factory, kind schema.NodeKind, cast func(*Node) (T, bool)) (T, error) {
	n, err := f.CreateNode(kind)
	if err != nil {
		var zero T
		return zero, err
	}
	v, _ := cast(n)
	return v, nil
}

// Program is a view of a KindProgram node.
type Program struct{ *Node }

// AsProgram casts n to a Program.
func AsProgram(n *Node) (Program, bool) {
	if n == nil || n.kind != schema.KindProgram {
		return Program{}, false
	}
	return Program{n}, true
}

// CreateProgram creates a Program node.
func (f *Factory) CreateProgram() (Program, error) {
	return createAs(f, schema.KindProgram, AsProgram)
}

// SourceType returns the source type ordinal (schema.SourceTypeScript or
// schema.SourceTypeModule).
func (p Program) SourceType() (uint8, error) {
	return p.Enum(schema.AttrProgramSourceType)
}

// SetSourceType sets the source type ordinal.
func (p Program) SetSourceType(v uint8) error {
	return p.SetEnum(schema.AttrProgramSourceType, v)
}

// AddBody appends a top level statement.
func (p Program) AddBody(id NodeID) error {
	return p.Add(schema.EdgeProgramHasBody, id)
}

// Body returns an iterator over the top level statements.
func (p Program) Body() (ListIterator[*Node], error) {
	return p.Iterator(schema.EdgeProgramHasBody)
}

// VariableDeclaration is a view of a KindVariableDeclaration node.
type VariableDeclaration struct{ *Node }

// AsVariableDeclaration casts n to a VariableDeclaration.
func AsVariableDeclaration(n *Node) (VariableDeclaration, bool) {
	if n == nil || n.kind != schema.KindVariableDeclaration {
		return VariableDeclaration{}, false
	}
	return VariableDeclaration{n}, true
}

// CreateVariableDeclaration creates a VariableDeclaration node with the
// given declaration kind ordinal.
func (f *Factory) CreateVariableDeclaration(kind uint8) (VariableDeclaration, error) {
	d, err := createAs(f, schema.KindVariableDeclaration, AsVariableDeclaration)
	if err != nil {
		return d, err
	}
	if err := d.SetDeclarationKind(kind); err != nil {
		_ = f.DestroyNode(d.id)
		return VariableDeclaration{}, err
	}
	return d, nil
}

// DeclarationKind returns the var/let/const ordinal.
func (d VariableDeclaration) DeclarationKind() (uint8, error) {
	return d.Enum(schema.AttrVariableDeclarationKind)
}

// SetDeclarationKind sets the var/let/const ordinal.
func (d VariableDeclaration) SetDeclarationKind(v uint8) error {
	return d.SetEnum(schema.AttrVariableDeclarationKind, v)
}

// AddDeclaration appends a declarator.
func (d VariableDeclaration) AddDeclaration(id NodeID) error {
	return d.Add(schema.EdgeVariableDeclarationHasDeclarations, id)
}

// Declarations returns an iterator over the declarators.
func (d VariableDeclaration) Declarations() (ListIterator[VariableDeclarator], error) {
	return typedIterator(d.Node, "VariableDeclaration.Declarations", schema.EdgeVariableDeclarationHasDeclarations, AsVariableDeclarator)
}

// VariableDeclarator is a view of a KindVariableDeclarator node.
type VariableDeclarator struct{ *Node }

// AsVariableDeclarator casts n to a VariableDeclarator.
func AsVariableDeclarator(n *Node) (VariableDeclarator, bool) {
	if n == nil || n.kind != schema.KindVariableDeclarator {
		return VariableDeclarator{}, false
	}
	return VariableDeclarator{n}, true
}

// CreateVariableDeclarator creates a VariableDeclarator node.
func (f *Factory) CreateVariableDeclarator() (VariableDeclarator, error) {
	return createAs(f, schema.KindVariableDeclarator, AsVariableDeclarator)
}

// Identifier returns the declared pattern, or nil.
func (d VariableDeclarator) Identifier() *Node {
	return d.Single(schema.EdgeVariableDeclaratorHasIdentifier)
}

// SetIdentifier sets the declared pattern.
func (d VariableDeclarator) SetIdentifier(id NodeID) error {
	return d.SetSingle(schema.EdgeVariableDeclaratorHasIdentifier, id)
}

// Init returns the initializer expression, or nil.
func (d VariableDeclarator) Init() *Node {
	return d.Single(schema.EdgeVariableDeclaratorHasInit)
}

// SetInit sets the initializer expression.
func (d VariableDeclarator) SetInit(id NodeID) error {
	return d.SetSingle(schema.EdgeVariableDeclaratorHasInit, id)
}

// Identifier is a view of a KindIdentifier node.
type Identifier struct{ *Node }

// AsIdentifier casts n to an Identifier.
func AsIdentifier(n *Node) (Identifier, bool) {
	if n == nil || n.kind != schema.KindIdentifier {
		return Identifier{}, false
	}
	return Identifier{n}, true
}

// CreateIdentifier creates an Identifier node named name.
func (f *Factory) CreateIdentifier(name string) (Identifier, error) {
	id, err := createAs(f, schema.KindIdentifier, AsIdentifier)
	if err != nil {
		return id, err
	}
	if err := id.SetString(schema.AttrNamedName, name); err != nil {
		return Identifier{}, err
	}
	return id, nil
}

// SetName sets the identifier name.
func (i Identifier) SetName(name string) error {
	return i.SetString(schema.AttrNamedName, name)
}

// RefersTo returns the node the identifier resolves to, or nil.
func (i Identifier) RefersTo() *Node {
	return i.Single(schema.EdgeIdentifierRefersTo)
}

// SetRefersTo sets the resolution target.
func (i Identifier) SetRefersTo(id NodeID) error {
	return i.SetSingle(schema.EdgeIdentifierRefersTo, id)
}

// CallExpression is a view of a KindCallExpression node.
type CallExpression struct{ *Node }

// AsCallExpression casts n to a CallExpression.
func AsCallExpression(n *Node) (CallExpression, bool) {
	if n == nil || n.kind != schema.KindCallExpression {
		return CallExpression{}, false
	}
	return CallExpression{n}, true
}

// CreateCallExpression creates a CallExpression node.
func (f *Factory) CreateCallExpression() (CallExpression, error) {
	return createAs(f, schema.KindCallExpression, AsCallExpression)
}

// Callee returns the callee expression, or nil.
func (c CallExpression) Callee() *Node {
	return c.Single(schema.EdgeCallExpressionHasCallee)
}

// SetCallee sets the callee expression.
func (c CallExpression) SetCallee(id NodeID) error {
	return c.SetSingle(schema.EdgeCallExpressionHasCallee, id)
}

// AddArgument appends an argument.
func (c CallExpression) AddArgument(id NodeID) error {
	return c.Add(schema.EdgeCallExpressionHasArguments, id)
}

// Arguments returns an iterator over the arguments.
func (c CallExpression) Arguments() (ListIterator[*Node], error) {
	return c.Iterator(schema.EdgeCallExpressionHasArguments)
}

// AddCall records a function the call may invoke.
func (c CallExpression) AddCall(id NodeID) error {
	return c.Add(schema.EdgeCallExpressionCalls, id)
}

// Calls returns an iterator over the functions the call may invoke.
func (c CallExpression) Calls() (ListIterator[*Node], error) {
	return c.Iterator(schema.EdgeCallExpressionCalls)
}

// Optional reports whether the call is optional (a?.()).
func (c CallExpression) Optional() (bool, error) {
	return c.Bool(schema.AttrChainElementOptional)
}

// FunctionDeclaration is a view of a KindFunctionDeclaration node.
type FunctionDeclaration struct{ *Node }

// AsFunctionDeclaration casts n to a FunctionDeclaration.
func AsFunctionDeclaration(n *Node) (FunctionDeclaration, bool) {
	if n == nil || n.kind != schema.KindFunctionDeclaration {
		return FunctionDeclaration{}, false
	}
	return FunctionDeclaration{n}, true
}

// CreateFunctionDeclaration creates a FunctionDeclaration node.
func (f *Factory) CreateFunctionDeclaration() (FunctionDeclaration, error) {
	return createAs(f, schema.KindFunctionDeclaration, AsFunctionDeclaration)
}

// Identifier returns the function name, if set and visible.
func (d FunctionDeclaration) Identifier() (Identifier, bool) {
	return AsIdentifier(d.Single(schema.EdgeFunctionHasIdentifier))
}

// SetIdentifier sets the function name node.
func (d FunctionDeclaration) SetIdentifier(id NodeID) error {
	return d.SetSingle(schema.EdgeFunctionHasIdentifier, id)
}

// AddParam appends a parameter pattern.
func (d FunctionDeclaration) AddParam(id NodeID) error {
	return d.Add(schema.EdgeFunctionHasParams, id)
}

// Params returns an iterator over the parameters.
func (d FunctionDeclaration) Params() (ListIterator[*Node], error) {
	return d.Iterator(schema.EdgeFunctionHasParams)
}

// Body returns the function body, or nil.
func (d FunctionDeclaration) Body() *Node {
	return d.Single(schema.EdgeFunctionHasBody)
}

// SetBody sets the function body.
func (d FunctionDeclaration) SetBody(id NodeID) error {
	return d.SetSingle(schema.EdgeFunctionHasBody, id)
}

// Async reports whether the function is async.
func (d FunctionDeclaration) Async() (bool, error) {
	return d.Bool(schema.AttrFunctionAsync)
}

// SetAsync sets the async flag.
func (d FunctionDeclaration) SetAsync(v bool) error {
	return d.SetBool(schema.AttrFunctionAsync, v)
}

// Generator reports whether the function is a generator.
func (d FunctionDeclaration) Generator() (bool, error) {
	return d.Bool(schema.AttrFunctionGenerator)
}

// SetGenerator sets the generator flag.
func (d FunctionDeclaration) SetGenerator(v bool) error {
	return d.SetBool(schema.AttrFunctionGenerator, v)
}
