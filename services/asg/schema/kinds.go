// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema declares the node kinds, attributes, and edges of the
// JavaScript abstract semantic graph.
//
// The schema is a static table. Node kinds form a class hierarchy with
// shared bases (MemberExpression is an Expression, a Pattern, and a
// ChainElement, all of which derive from Positioned exactly once). Every
// derived table (kind predicates, class chains, attribute and edge slots,
// the possible reverse edge matrix) is computed once at package
// initialisation and is read-only afterwards.
//
// # Thread Safety
//
// All exported functions are safe for concurrent use.
package schema

// NodeKind identifies a node class. Abstract kinds are never instantiated;
// they only appear as bases and as edge target constraints.
//
// The numeric values are part of the binary format. Append new kinds before
// NumNodeKinds, never reorder.
type NodeKind uint16

const (
	KindBase NodeKind = iota
	KindPositioned
	KindNamed
	KindComment
	KindProgram
	KindSystem
	KindExpression
	KindPattern
	KindStatement
	KindDeclaration
	KindFunction
	KindClass
	KindLiteral
	KindChainElement

	KindClassDeclaration
	KindFunctionDeclaration
	KindVariableDeclaration
	KindVariableDeclarator
	KindImportDeclaration
	KindExportNamedDeclaration

	KindArrayExpression
	KindArrowFunctionExpression
	KindAssignmentExpression
	KindAwaitExpression
	KindBinaryExpression
	KindBooleanLiteral
	KindCallExpression
	KindClassExpression
	KindConditionalExpression
	KindFunctionExpression
	KindIdentifier
	KindLogicalExpression
	KindMemberExpression
	KindNewExpression
	KindNullLiteral
	KindNumberLiteral
	KindObjectExpression
	KindProperty
	KindSpreadElement
	KindStringLiteral
	KindSuper
	KindThisExpression
	KindUnaryExpression
	KindUpdateExpression
	KindSequenceExpression

	KindArrayPattern
	KindAssignmentPattern
	KindObjectPattern
	KindRestElement

	KindBlockStatement
	KindBreakStatement
	KindContinueStatement
	KindEmptyStatement
	KindExpressionStatement
	KindForStatement
	KindIfStatement
	KindReturnStatement
	KindSwitchStatement
	KindSwitchCase
	KindThrowStatement
	KindTryStatement
	KindCatchClause
	KindWhileStatement

	KindClassBody
	KindMethodDefinition
	KindImportSpecifier
	KindExportSpecifier

	// NumNodeKinds is the number of node kinds (for array sizing).
	NumNodeKinds
)

// classDecl describes one node class: whether it can be instantiated and
// its direct bases in declaration order.
type classDecl struct {
	name     string
	abstract bool
	bases    []NodeKind
}

func abstractClass(name string, bases ...NodeKind) classDecl {
	return classDecl{name: name, abstract: true, bases: bases}
}

func concreteClass(name string, bases ...NodeKind) classDecl {
	return classDecl{name: name, bases: bases}
}

var classes = [NumNodeKinds]classDecl{
	KindBase:         abstractClass("Base"),
	KindPositioned:   abstractClass("Positioned", KindBase),
	KindNamed:        abstractClass("Named", KindBase),
	KindComment:      concreteClass("Comment", KindPositioned),
	KindProgram:      concreteClass("Program", KindPositioned, KindNamed),
	KindSystem:       concreteClass("System", KindBase),
	KindExpression:   abstractClass("Expression", KindPositioned),
	KindPattern:      abstractClass("Pattern", KindPositioned),
	KindStatement:    abstractClass("Statement", KindPositioned),
	KindDeclaration:  abstractClass("Declaration", KindStatement),
	KindFunction:     abstractClass("Function", KindPositioned),
	KindClass:        abstractClass("Class", KindPositioned),
	KindLiteral:      abstractClass("Literal", KindExpression),
	KindChainElement: abstractClass("ChainElement", KindPositioned),

	KindClassDeclaration:       concreteClass("ClassDeclaration", KindDeclaration, KindClass),
	KindFunctionDeclaration:    concreteClass("FunctionDeclaration", KindDeclaration, KindFunction),
	KindVariableDeclaration:    concreteClass("VariableDeclaration", KindDeclaration),
	KindVariableDeclarator:     concreteClass("VariableDeclarator", KindPositioned),
	KindImportDeclaration:      concreteClass("ImportDeclaration", KindPositioned),
	KindExportNamedDeclaration: concreteClass("ExportNamedDeclaration", KindPositioned),

	KindArrayExpression:         concreteClass("ArrayExpression", KindExpression),
	KindArrowFunctionExpression: concreteClass("ArrowFunctionExpression", KindExpression, KindFunction),
	KindAssignmentExpression:    concreteClass("AssignmentExpression", KindExpression),
	KindAwaitExpression:         concreteClass("AwaitExpression", KindExpression),
	KindBinaryExpression:        concreteClass("BinaryExpression", KindExpression),
	KindBooleanLiteral:          concreteClass("BooleanLiteral", KindLiteral),
	KindCallExpression:          concreteClass("CallExpression", KindExpression, KindChainElement),
	KindClassExpression:         concreteClass("ClassExpression", KindExpression, KindClass),
	KindConditionalExpression:   concreteClass("ConditionalExpression", KindExpression),
	KindFunctionExpression:      concreteClass("FunctionExpression", KindExpression, KindFunction),
	KindIdentifier:              concreteClass("Identifier", KindExpression, KindPattern, KindNamed),
	KindLogicalExpression:       concreteClass("LogicalExpression", KindExpression),
	KindMemberExpression:        concreteClass("MemberExpression", KindExpression, KindPattern, KindChainElement),
	KindNewExpression:           concreteClass("NewExpression", KindExpression),
	KindNullLiteral:             concreteClass("NullLiteral", KindLiteral),
	KindNumberLiteral:           concreteClass("NumberLiteral", KindLiteral),
	KindObjectExpression:        concreteClass("ObjectExpression", KindExpression),
	KindProperty:                concreteClass("Property", KindPositioned),
	KindSpreadElement:           concreteClass("SpreadElement", KindPositioned),
	KindStringLiteral:           concreteClass("StringLiteral", KindLiteral),
	KindSuper:                   concreteClass("Super", KindPositioned),
	KindThisExpression:          concreteClass("ThisExpression", KindExpression),
	KindUnaryExpression:         concreteClass("UnaryExpression", KindExpression),
	KindUpdateExpression:        concreteClass("UpdateExpression", KindExpression),
	KindSequenceExpression:      concreteClass("SequenceExpression", KindExpression),

	KindArrayPattern:      concreteClass("ArrayPattern", KindPattern),
	KindAssignmentPattern: concreteClass("AssignmentPattern", KindPattern),
	KindObjectPattern:     concreteClass("ObjectPattern", KindPattern),
	KindRestElement:       concreteClass("RestElement", KindPattern),

	KindBlockStatement:      concreteClass("BlockStatement", KindStatement),
	KindBreakStatement:      concreteClass("BreakStatement", KindStatement),
	KindContinueStatement:   concreteClass("ContinueStatement", KindStatement),
	KindEmptyStatement:      concreteClass("EmptyStatement", KindStatement),
	KindExpressionStatement: concreteClass("ExpressionStatement", KindStatement),
	KindForStatement:        concreteClass("ForStatement", KindStatement),
	KindIfStatement:         concreteClass("IfStatement", KindStatement),
	KindReturnStatement:     concreteClass("ReturnStatement", KindStatement),
	KindSwitchStatement:     concreteClass("SwitchStatement", KindStatement),
	KindSwitchCase:          concreteClass("SwitchCase", KindPositioned),
	KindThrowStatement:      concreteClass("ThrowStatement", KindStatement),
	KindTryStatement:        concreteClass("TryStatement", KindStatement),
	KindCatchClause:         concreteClass("CatchClause", KindPositioned),
	KindWhileStatement:      concreteClass("WhileStatement", KindStatement),

	KindClassBody:        concreteClass("ClassBody", KindPositioned),
	KindMethodDefinition: concreteClass("MethodDefinition", KindPositioned),
	KindImportSpecifier:  concreteClass("ImportSpecifier", KindPositioned),
	KindExportSpecifier:  concreteClass("ExportSpecifier", KindPositioned),
}

// String returns the class name of the kind.
func (k NodeKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return classes[k].name
}

// Valid reports whether k is inside the declared kind range.
func (k NodeKind) Valid() bool {
	return k < NumNodeKinds
}

// IsAbstract reports whether k is an abstract class. Out of range kinds are
// reported as abstract since they cannot be instantiated either.
func (k NodeKind) IsAbstract() bool {
	return !k.Valid() || classes[k].abstract
}

// Bases returns the direct bases of k in declaration order.
func (k NodeKind) Bases() []NodeKind {
	if !k.Valid() {
		return nil
	}
	return classes[k].bases
}

// NodeKindByName resolves a class name such as "CallExpression".
func NodeKindByName(name string) (NodeKind, bool) {
	k, ok := kindsByName[name]
	return k, ok
}

// ConcreteKinds returns every instantiable kind in numeric order.
func ConcreteKinds() []NodeKind {
	out := make([]NodeKind, 0, NumNodeKinds)
	for k := NodeKind(0); k < NumNodeKinds; k++ {
		if !classes[k].abstract {
			out = append(out, k)
		}
	}
	return out
}
