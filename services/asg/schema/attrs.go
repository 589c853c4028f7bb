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

// AttrType is the storage type of an attribute.
type AttrType uint8

const (
	// AttrBool values are bit packed on save.
	AttrBool AttrType = iota
	AttrInt
	AttrUint
	AttrFloat
	// AttrString values are string table keys.
	AttrString
	// AttrEnum values are small ordinals of an EnumKind.
	AttrEnum
)

var attrTypeNames = map[AttrType]string{
	AttrBool:   "bool",
	AttrInt:    "int",
	AttrUint:   "uint",
	AttrFloat:  "float",
	AttrString: "string",
	AttrEnum:   "enum",
}

// String returns the string representation of the AttrType.
func (t AttrType) String() string {
	if name, ok := attrTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// AttrKind identifies one attribute of one class. The numeric values are
// part of the binary format.
type AttrKind uint16

const (
	AttrNamedName AttrKind = iota

	AttrPositionedPath
	AttrPositionedLine
	AttrPositionedCol
	AttrPositionedEndLine
	AttrPositionedEndCol
	AttrPositionedWideLine
	AttrPositionedWideCol
	AttrPositionedWideEndLine
	AttrPositionedWideEndCol

	AttrCommentText
	AttrCommentType
	AttrCommentLocation

	AttrProgramSourceType

	AttrFunctionGenerator
	AttrFunctionAsync

	AttrLiteralRaw
	AttrChainElementOptional

	AttrVariableDeclarationKind
	AttrArrowFunctionExpressionExpression
	AttrAssignmentExpressionOperator
	AttrBinaryExpressionOperator
	AttrBooleanLiteralValue
	AttrLogicalExpressionOperator
	AttrMemberExpressionComputed
	AttrNumberLiteralValue

	AttrPropertyKind
	AttrPropertyMethod
	AttrPropertyShorthand
	AttrPropertyComputed

	AttrStringLiteralValue
	AttrUnaryExpressionOperator
	AttrUnaryExpressionPrefix
	AttrUpdateExpressionOperator
	AttrUpdateExpressionPrefix

	AttrMethodDefinitionKind
	AttrMethodDefinitionComputed
	AttrMethodDefinitionStatic

	// NumAttrKinds is the number of attribute kinds (for array sizing).
	NumAttrKinds
)

// AttrDecl describes one attribute.
type AttrDecl struct {
	Name  string
	Class NodeKind
	Type  AttrType
	// Enum is only meaningful when Type is AttrEnum.
	Enum EnumKind
}

func boolAttr(class NodeKind, name string) AttrDecl {
	return AttrDecl{Name: name, Class: class, Type: AttrBool}
}

func uintAttr(class NodeKind, name string) AttrDecl {
	return AttrDecl{Name: name, Class: class, Type: AttrUint}
}

func stringAttr(class NodeKind, name string) AttrDecl {
	return AttrDecl{Name: name, Class: class, Type: AttrString}
}

func enumAttr(class NodeKind, name string, e EnumKind) AttrDecl {
	return AttrDecl{Name: name, Class: class, Type: AttrEnum, Enum: e}
}

var attrs = [NumAttrKinds]AttrDecl{
	AttrNamedName: stringAttr(KindNamed, "name"),

	AttrPositionedPath:        stringAttr(KindPositioned, "path"),
	AttrPositionedLine:        uintAttr(KindPositioned, "line"),
	AttrPositionedCol:         uintAttr(KindPositioned, "col"),
	AttrPositionedEndLine:     uintAttr(KindPositioned, "endLine"),
	AttrPositionedEndCol:      uintAttr(KindPositioned, "endCol"),
	AttrPositionedWideLine:    uintAttr(KindPositioned, "wideLine"),
	AttrPositionedWideCol:     uintAttr(KindPositioned, "wideCol"),
	AttrPositionedWideEndLine: uintAttr(KindPositioned, "wideEndLine"),
	AttrPositionedWideEndCol:  uintAttr(KindPositioned, "wideEndCol"),

	AttrCommentText:     stringAttr(KindComment, "text"),
	AttrCommentType:     enumAttr(KindComment, "type", EnumCommentType),
	AttrCommentLocation: enumAttr(KindComment, "location", EnumCommentLocation),

	AttrProgramSourceType: enumAttr(KindProgram, "sourceType", EnumSourceType),

	AttrFunctionGenerator: boolAttr(KindFunction, "generator"),
	AttrFunctionAsync:     boolAttr(KindFunction, "async"),

	AttrLiteralRaw:           stringAttr(KindLiteral, "raw"),
	AttrChainElementOptional: boolAttr(KindChainElement, "optional"),

	AttrVariableDeclarationKind:           enumAttr(KindVariableDeclaration, "kind", EnumDeclarationKind),
	AttrArrowFunctionExpressionExpression: boolAttr(KindArrowFunctionExpression, "expression"),
	AttrAssignmentExpressionOperator:      enumAttr(KindAssignmentExpression, "operator", EnumAssignmentOperator),
	AttrBinaryExpressionOperator:          enumAttr(KindBinaryExpression, "operator", EnumBinaryOperator),
	AttrBooleanLiteralValue:               boolAttr(KindBooleanLiteral, "value"),
	AttrLogicalExpressionOperator:         enumAttr(KindLogicalExpression, "operator", EnumLogicalOperator),
	AttrMemberExpressionComputed:          boolAttr(KindMemberExpression, "computed"),
	AttrNumberLiteralValue:                {Name: "value", Class: KindNumberLiteral, Type: AttrFloat},

	AttrPropertyKind:      enumAttr(KindProperty, "kind", EnumPropertyKind),
	AttrPropertyMethod:    boolAttr(KindProperty, "method"),
	AttrPropertyShorthand: boolAttr(KindProperty, "shorthand"),
	AttrPropertyComputed:  boolAttr(KindProperty, "computed"),

	AttrStringLiteralValue:       stringAttr(KindStringLiteral, "value"),
	AttrUnaryExpressionOperator:  enumAttr(KindUnaryExpression, "operator", EnumUnaryOperator),
	AttrUnaryExpressionPrefix:    boolAttr(KindUnaryExpression, "prefix"),
	AttrUpdateExpressionOperator: enumAttr(KindUpdateExpression, "operator", EnumUpdateOperator),
	AttrUpdateExpressionPrefix:   boolAttr(KindUpdateExpression, "prefix"),

	AttrMethodDefinitionKind:     enumAttr(KindMethodDefinition, "kind", EnumMethodDefinitionKind),
	AttrMethodDefinitionComputed: boolAttr(KindMethodDefinition, "computed"),
	AttrMethodDefinitionStatic:   boolAttr(KindMethodDefinition, "static"),
}

// Valid reports whether a is inside the declared attribute range.
func (a AttrKind) Valid() bool {
	return a < NumAttrKinds
}

// Decl returns the declaration of a. It panics on out of range values.
func (a AttrKind) Decl() AttrDecl {
	return attrs[a]
}

// String returns "Class.name", e.g. "Positioned.wideLine".
func (a AttrKind) String() string {
	if !a.Valid() {
		return "unknown"
	}
	return attrs[a].Class.String() + "." + attrs[a].Name
}

// EnumKind identifies an enumeration used by AttrEnum attributes.
type EnumKind uint8

const (
	EnumNone EnumKind = iota
	EnumCommentType
	EnumCommentLocation
	EnumSourceType
	EnumDeclarationKind
	EnumAssignmentOperator
	EnumBinaryOperator
	EnumLogicalOperator
	EnumPropertyKind
	EnumUnaryOperator
	EnumUpdateOperator
	EnumMethodDefinitionKind

	// NumEnumKinds is the number of enum kinds (for array sizing).
	NumEnumKinds
)

var enumValues = [NumEnumKinds][]string{
	EnumNone:                 nil,
	EnumCommentType:          {"line", "block", "hashbang", "html"},
	EnumCommentLocation:      {"leading", "trailing", "inner"},
	EnumSourceType:           {"script", "module"},
	EnumDeclarationKind:      {"var", "let", "const"},
	EnumAssignmentOperator:   {"=", "+=", "-=", "*=", "/=", "%=", "<<=", ">>=", ">>>=", "|=", "^=", "&=", "**=", "||=", "&&=", "??="},
	EnumBinaryOperator:       {"==", "!=", "===", "!==", "<", "<=", ">", ">=", "<<", ">>", ">>>", "+", "-", "*", "/", "%", "|", "^", "&", "in", "instanceof", "**"},
	EnumLogicalOperator:      {"||", "&&", "??"},
	EnumPropertyKind:         {"init", "get", "set"},
	EnumUnaryOperator:        {"-", "+", "!", "~", "typeof", "void", "delete"},
	EnumUpdateOperator:       {"++", "--"},
	EnumMethodDefinitionKind: {"constructor", "method", "get", "set"},
}

// Values returns the value names of e in ordinal order.
func (e EnumKind) Values() []string {
	if e >= NumEnumKinds {
		return nil
	}
	return enumValues[e]
}

// Name returns the name of ordinal v, or "" when v is out of range.
func (e EnumKind) Name(v uint8) string {
	vals := e.Values()
	if int(v) >= len(vals) {
		return ""
	}
	return vals[v]
}

// Ordinal resolves a value name of e.
func (e EnumKind) Ordinal(name string) (uint8, bool) {
	for i, v := range e.Values() {
		if v == name {
			return uint8(i), true
		}
	}
	return 0, false
}

// Typed ordinals for the enums the graph package exposes directly.
const (
	DeclarationKindVar uint8 = iota
	DeclarationKindLet
	DeclarationKindConst
)

const (
	SourceTypeScript uint8 = iota
	SourceTypeModule
)
