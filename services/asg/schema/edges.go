// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

// EdgeKind identifies a named edge of a class. The numeric values are part
// of the binary format and index the possible edge matrix.
type EdgeKind uint16

const (
	EdgeNone EdgeKind = iota

	EdgeSystemHasPrograms
	EdgeProgramHasBody
	EdgeProgramHasComments

	EdgeFunctionHasParams
	EdgeFunctionHasBody
	EdgeFunctionHasIdentifier
	EdgeClassHasBody
	EdgeClassHasSuperClass
	EdgeClassHasIdentifier

	EdgeVariableDeclarationHasDeclarations
	EdgeVariableDeclaratorHasIdentifier
	EdgeVariableDeclaratorHasInit
	EdgeImportDeclarationHasSpecifiers
	EdgeImportDeclarationHasSource
	EdgeExportNamedDeclarationHasDeclaration
	EdgeExportNamedDeclarationHasSpecifiers
	EdgeExportNamedDeclarationHasSource

	EdgeArrayExpressionHasElements
	EdgeAssignmentExpressionHasLeft
	EdgeAssignmentExpressionHasRight
	EdgeAwaitExpressionHasArgument
	EdgeBinaryExpressionHasLeft
	EdgeBinaryExpressionHasRight
	EdgeCallExpressionHasCallee
	EdgeCallExpressionHasArguments
	EdgeCallExpressionCalls
	EdgeConditionalExpressionHasTest
	EdgeConditionalExpressionHasAlternate
	EdgeConditionalExpressionHasConsequent
	EdgeIdentifierRefersTo
	EdgeLogicalExpressionHasLeft
	EdgeLogicalExpressionHasRight
	EdgeMemberExpressionHasObject
	EdgeMemberExpressionHasProperty
	EdgeNewExpressionHasCallee
	EdgeNewExpressionHasArguments
	EdgeNewExpressionCalls
	EdgeObjectExpressionHasProperties
	EdgePropertyHasKey
	EdgePropertyHasValue
	EdgeSpreadElementHasArgument
	EdgeUnaryExpressionHasArgument
	EdgeUpdateExpressionHasArgument
	EdgeSequenceExpressionHasExpressions

	EdgeArrayPatternHasElements
	EdgeAssignmentPatternHasLeft
	EdgeAssignmentPatternHasRight
	EdgeObjectPatternHasProperties
	EdgeRestElementHasArgument

	EdgeBlockStatementHasBody
	EdgeBreakStatementHasLabel
	EdgeContinueStatementHasLabel
	EdgeExpressionStatementHasExpression
	EdgeForStatementHasInit
	EdgeForStatementHasTest
	EdgeForStatementHasUpdate
	EdgeForStatementHasBody
	EdgeIfStatementHasTest
	EdgeIfStatementHasConsequent
	EdgeIfStatementHasAlternate
	EdgeReturnStatementHasArgument
	EdgeSwitchStatementHasDiscriminant
	EdgeSwitchStatementHasCases
	EdgeSwitchCaseHasTest
	EdgeSwitchCaseHasConsequent
	EdgeThrowStatementHasArgument
	EdgeTryStatementHasBlock
	EdgeTryStatementHasHandler
	EdgeTryStatementHasFinalizer
	EdgeCatchClauseHasParam
	EdgeCatchClauseHasBody
	EdgeWhileStatementHasTest
	EdgeWhileStatementHasBody

	EdgeClassBodyHasBody
	EdgeMethodDefinitionHasKey
	EdgeMethodDefinitionHasValue
	EdgeImportSpecifierHasLocal
	EdgeImportSpecifierHasImported
	EdgeExportSpecifierHasLocal
	EdgeExportSpecifierHasExported

	// NumEdgeKinds is the number of edge kinds (for array sizing).
	NumEdgeKinds
)

// EdgeDecl describes one edge of one class.
type EdgeDecl struct {
	// Name is the edge label, e.g. "hasArguments".
	Name string

	// Class is the class that declares the edge.
	Class NodeKind

	// Multi edges hold an ordered list of targets, single edges one slot.
	Multi bool

	// Ownership edges form the containment tree. Every other edge is a
	// cross reference that never affects a target's parent.
	Ownership bool

	// Targets lists the kinds a target must be an instance of (any one).
	Targets []NodeKind
}

func ownsOne(class NodeKind, name string, targets ...NodeKind) EdgeDecl {
	return EdgeDecl{Name: name, Class: class, Ownership: true, Targets: targets}
}

func ownsMany(class NodeKind, name string, targets ...NodeKind) EdgeDecl {
	return EdgeDecl{Name: name, Class: class, Multi: true, Ownership: true, Targets: targets}
}

func refersOne(class NodeKind, name string, targets ...NodeKind) EdgeDecl {
	return EdgeDecl{Name: name, Class: class, Targets: targets}
}

func refersMany(class NodeKind, name string, targets ...NodeKind) EdgeDecl {
	return EdgeDecl{Name: name, Class: class, Multi: true, Targets: targets}
}

var edges = [NumEdgeKinds]EdgeDecl{
	EdgeNone: {Name: "none", Class: KindBase},

	EdgeSystemHasPrograms:  ownsMany(KindSystem, "hasPrograms", KindProgram),
	EdgeProgramHasBody:     ownsMany(KindProgram, "hasBody", KindStatement, KindImportDeclaration, KindExportNamedDeclaration),
	EdgeProgramHasComments: ownsMany(KindProgram, "hasComments", KindComment),

	EdgeFunctionHasParams:     ownsMany(KindFunction, "hasParams", KindPattern),
	EdgeFunctionHasBody:       ownsOne(KindFunction, "hasBody", KindBlockStatement, KindExpression),
	EdgeFunctionHasIdentifier: ownsOne(KindFunction, "hasIdentifier", KindIdentifier),
	EdgeClassHasBody:          ownsOne(KindClass, "hasBody", KindClassBody),
	EdgeClassHasSuperClass:    ownsOne(KindClass, "hasSuperClass", KindExpression),
	EdgeClassHasIdentifier:    ownsOne(KindClass, "hasIdentifier", KindIdentifier),

	EdgeVariableDeclarationHasDeclarations:   ownsMany(KindVariableDeclaration, "hasDeclarations", KindVariableDeclarator),
	EdgeVariableDeclaratorHasIdentifier:      ownsOne(KindVariableDeclarator, "hasIdentifier", KindPattern),
	EdgeVariableDeclaratorHasInit:            ownsOne(KindVariableDeclarator, "hasInit", KindExpression),
	EdgeImportDeclarationHasSpecifiers:       ownsMany(KindImportDeclaration, "hasSpecifiers", KindImportSpecifier),
	EdgeImportDeclarationHasSource:           ownsOne(KindImportDeclaration, "hasSource", KindStringLiteral),
	EdgeExportNamedDeclarationHasDeclaration: ownsOne(KindExportNamedDeclaration, "hasDeclaration", KindDeclaration),
	EdgeExportNamedDeclarationHasSpecifiers:  ownsMany(KindExportNamedDeclaration, "hasSpecifiers", KindExportSpecifier),
	EdgeExportNamedDeclarationHasSource:      ownsOne(KindExportNamedDeclaration, "hasSource", KindStringLiteral),

	EdgeArrayExpressionHasElements:         ownsMany(KindArrayExpression, "hasElements", KindExpression, KindSpreadElement),
	EdgeAssignmentExpressionHasLeft:        ownsOne(KindAssignmentExpression, "hasLeft", KindPattern, KindExpression),
	EdgeAssignmentExpressionHasRight:       ownsOne(KindAssignmentExpression, "hasRight", KindExpression),
	EdgeAwaitExpressionHasArgument:         ownsOne(KindAwaitExpression, "hasArgument", KindExpression),
	EdgeBinaryExpressionHasLeft:            ownsOne(KindBinaryExpression, "hasLeft", KindExpression),
	EdgeBinaryExpressionHasRight:           ownsOne(KindBinaryExpression, "hasRight", KindExpression),
	EdgeCallExpressionHasCallee:            ownsOne(KindCallExpression, "hasCallee", KindExpression, KindSuper),
	EdgeCallExpressionHasArguments:         ownsMany(KindCallExpression, "hasArguments", KindExpression, KindSpreadElement),
	EdgeCallExpressionCalls:                refersMany(KindCallExpression, "calls", KindFunction),
	EdgeConditionalExpressionHasTest:       ownsOne(KindConditionalExpression, "hasTest", KindExpression),
	EdgeConditionalExpressionHasAlternate:  ownsOne(KindConditionalExpression, "hasAlternate", KindExpression),
	EdgeConditionalExpressionHasConsequent: ownsOne(KindConditionalExpression, "hasConsequent", KindExpression),
	EdgeIdentifierRefersTo:                 refersOne(KindIdentifier, "refersTo", KindPositioned),
	EdgeLogicalExpressionHasLeft:           ownsOne(KindLogicalExpression, "hasLeft", KindExpression),
	EdgeLogicalExpressionHasRight:          ownsOne(KindLogicalExpression, "hasRight", KindExpression),
	EdgeMemberExpressionHasObject:          ownsOne(KindMemberExpression, "hasObject", KindExpression, KindSuper),
	EdgeMemberExpressionHasProperty:        ownsOne(KindMemberExpression, "hasProperty", KindExpression),
	EdgeNewExpressionHasCallee:             ownsOne(KindNewExpression, "hasCallee", KindExpression, KindSuper),
	EdgeNewExpressionHasArguments:          ownsMany(KindNewExpression, "hasArguments", KindExpression, KindSpreadElement),
	EdgeNewExpressionCalls:                 refersMany(KindNewExpression, "calls", KindFunction),
	EdgeObjectExpressionHasProperties:      ownsMany(KindObjectExpression, "hasProperties", KindProperty, KindSpreadElement),
	EdgePropertyHasKey:                     ownsOne(KindProperty, "hasKey", KindExpression),
	EdgePropertyHasValue:                   ownsOne(KindProperty, "hasValue", KindExpression, KindPattern),
	EdgeSpreadElementHasArgument:           ownsOne(KindSpreadElement, "hasArgument", KindExpression),
	EdgeUnaryExpressionHasArgument:         ownsOne(KindUnaryExpression, "hasArgument", KindExpression),
	EdgeUpdateExpressionHasArgument:        ownsOne(KindUpdateExpression, "hasArgument", KindExpression),
	EdgeSequenceExpressionHasExpressions:   ownsMany(KindSequenceExpression, "hasExpressions", KindExpression),

	EdgeArrayPatternHasElements:    ownsMany(KindArrayPattern, "hasElements", KindPattern),
	EdgeAssignmentPatternHasLeft:   ownsOne(KindAssignmentPattern, "hasLeft", KindPattern),
	EdgeAssignmentPatternHasRight:  ownsOne(KindAssignmentPattern, "hasRight", KindExpression),
	EdgeObjectPatternHasProperties: ownsMany(KindObjectPattern, "hasProperties", KindProperty, KindRestElement),
	EdgeRestElementHasArgument:     ownsOne(KindRestElement, "hasArgument", KindPattern),

	EdgeBlockStatementHasBody:            ownsMany(KindBlockStatement, "hasBody", KindStatement),
	EdgeBreakStatementHasLabel:           ownsOne(KindBreakStatement, "hasLabel", KindIdentifier),
	EdgeContinueStatementHasLabel:        ownsOne(KindContinueStatement, "hasLabel", KindIdentifier),
	EdgeExpressionStatementHasExpression: ownsOne(KindExpressionStatement, "hasExpression", KindExpression),
	EdgeForStatementHasInit:              ownsOne(KindForStatement, "hasInit", KindVariableDeclaration, KindExpression),
	EdgeForStatementHasTest:              ownsOne(KindForStatement, "hasTest", KindExpression),
	EdgeForStatementHasUpdate:            ownsOne(KindForStatement, "hasUpdate", KindExpression),
	EdgeForStatementHasBody:              ownsOne(KindForStatement, "hasBody", KindStatement),
	EdgeIfStatementHasTest:               ownsOne(KindIfStatement, "hasTest", KindExpression),
	EdgeIfStatementHasConsequent:         ownsOne(KindIfStatement, "hasConsequent", KindStatement),
	EdgeIfStatementHasAlternate:          ownsOne(KindIfStatement, "hasAlternate", KindStatement),
	EdgeReturnStatementHasArgument:       ownsOne(KindReturnStatement, "hasArgument", KindExpression),
	EdgeSwitchStatementHasDiscriminant:   ownsOne(KindSwitchStatement, "hasDiscriminant", KindExpression),
	EdgeSwitchStatementHasCases:          ownsMany(KindSwitchStatement, "hasCases", KindSwitchCase),
	EdgeSwitchCaseHasTest:                ownsOne(KindSwitchCase, "hasTest", KindExpression),
	EdgeSwitchCaseHasConsequent:          ownsMany(KindSwitchCase, "hasConsequent", KindStatement),
	EdgeThrowStatementHasArgument:        ownsOne(KindThrowStatement, "hasArgument", KindExpression),
	EdgeTryStatementHasBlock:             ownsOne(KindTryStatement, "hasBlock", KindBlockStatement),
	EdgeTryStatementHasHandler:           ownsOne(KindTryStatement, "hasHandler", KindCatchClause),
	EdgeTryStatementHasFinalizer:         ownsOne(KindTryStatement, "hasFinalizer", KindBlockStatement),
	EdgeCatchClauseHasParam:              ownsOne(KindCatchClause, "hasParam", KindPattern),
	EdgeCatchClauseHasBody:               ownsOne(KindCatchClause, "hasBody", KindBlockStatement),
	EdgeWhileStatementHasTest:            ownsOne(KindWhileStatement, "hasTest", KindExpression),
	EdgeWhileStatementHasBody:            ownsOne(KindWhileStatement, "hasBody", KindStatement),

	EdgeClassBodyHasBody:           ownsMany(KindClassBody, "hasBody", KindMethodDefinition),
	EdgeMethodDefinitionHasKey:     ownsOne(KindMethodDefinition, "hasKey", KindExpression),
	EdgeMethodDefinitionHasValue:   ownsOne(KindMethodDefinition, "hasValue", KindFunctionExpression),
	EdgeImportSpecifierHasLocal:    ownsOne(KindImportSpecifier, "hasLocal", KindIdentifier),
	EdgeImportSpecifierHasImported: ownsOne(KindImportSpecifier, "hasImported", KindIdentifier),
	EdgeExportSpecifierHasLocal:    ownsOne(KindExportSpecifier, "hasLocal", KindIdentifier),
	EdgeExportSpecifierHasExported: ownsOne(KindExportSpecifier, "hasExported", KindIdentifier),
}

// Valid reports whether e names a declared edge. EdgeNone is not valid.
func (e EdgeKind) Valid() bool {
	return e > EdgeNone && e < NumEdgeKinds
}

// Decl returns the declaration of e. It panics on out of range values.
func (e EdgeKind) Decl() EdgeDecl {
	return edges[e]
}

// String returns "Class_edgeName", e.g. "CallExpression_hasArguments".
func (e EdgeKind) String() string {
	if e >= NumEdgeKinds {
		return "unknown"
	}
	return edges[e].Class.String() + "_" + edges[e].Name
}

// IsOwnership reports whether e is a containment edge.
func (e EdgeKind) IsOwnership() bool {
	return e.Valid() && edges[e].Ownership
}

// IsMulti reports whether e holds an ordered list of targets.
func (e EdgeKind) IsMulti() bool {
	return e.Valid() && edges[e].Multi
}

// AcceptsTarget reports whether a node of kind target may be stored in e.
func AcceptsTarget(e EdgeKind, target NodeKind) bool {
	if !e.Valid() || !target.Valid() {
		return false
	}
	return acceptsTarget[e][target]
}
