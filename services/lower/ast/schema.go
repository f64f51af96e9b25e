// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"bytes"
	"encoding/json"
)

// =============================================================================
// TAGGED ENCODING
// =============================================================================

// marshalTagged encodes v and prepends a "type" discriminant.
//
// Callers pass an alias of their own type so the alias has no MarshalJSON
// method and the call does not recurse.
func marshalTagged(tag string, v any) ([]byte, error) {
	body, err := encodeJSON(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 12)
	buf.WriteString(`{"type":`)
	tagJSON, _ := encodeJSON(tag)
	buf.Write(tagJSON)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// encodeJSON encodes v without HTML escaping, so type texts such as "<T>"
// stay readable, and without the encoder's trailing newline.
func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeJSON appends the encoding of v to buf.
func writeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Truncate(buf.Len() - 1)
	return nil
}

// =============================================================================
// MODULE ITEMS
// =============================================================================

// Item is one lowered top-level item.
//
// Implementations: *ImportDeclaration, *ExportDefaultDeclaration,
// *ExportNamedDeclaration, *ExportAllDeclaration, *ExportFunctionDeclaration,
// *ExportClassDeclaration, *CallExpression, *TypeAliasDeclaration,
// *InterfaceDeclaration, *VariableDeclaration, *FunctionDeclaration,
// *ClassDeclaration.
type Item interface {
	// ItemType returns the JSON discriminant.
	ItemType() string
	// Position returns the item's node position.
	Position() Node
}

// Module is the lowered form of a whole source.
type Module struct {
	Body []Item `json:"body"`
}

// ModuleExportName is an import or export name written either as an
// identifier or as a string literal.
type ModuleExportName struct {
	Kind  string `json:"type"`
	Value string `json:"value"`
}

const (
	// NameIdentifier marks a ModuleExportName written as an identifier.
	NameIdentifier = "Identifier"
	// NameString marks a ModuleExportName written as a string literal.
	NameString = "StringLiteral"
)

// ImportSpecifier is one imported binding.
//
// Implementations: *ImportDefaultSpecifier, *ImportNamespaceSpecifier,
// *ImportNamedSpecifier.
type ImportSpecifier interface {
	isImportSpecifier()
}

// ImportDefaultSpecifier is `import local from "m"`.
type ImportDefaultSpecifier struct {
	Local string `json:"local"`
}

// ImportNamespaceSpecifier is `import * as local from "m"`.
type ImportNamespaceSpecifier struct {
	Local string `json:"local"`
}

// ImportNamedSpecifier is `import { imported as local } from "m"`.
// Imported is nil when no alias was written.
type ImportNamedSpecifier struct {
	Local      string            `json:"local"`
	Imported   *ModuleExportName `json:"imported"`
	IsTypeOnly bool              `json:"is_type_only"`
}

func (*ImportDefaultSpecifier) isImportSpecifier()   {}
func (*ImportNamespaceSpecifier) isImportSpecifier() {}
func (*ImportNamedSpecifier) isImportSpecifier()     {}

func (s ImportDefaultSpecifier) MarshalJSON() ([]byte, error) {
	type alias ImportDefaultSpecifier
	return marshalTagged("ImportDefaultSpecifier", alias(s))
}

func (s ImportNamespaceSpecifier) MarshalJSON() ([]byte, error) {
	type alias ImportNamespaceSpecifier
	return marshalTagged("ImportNamespaceSpecifier", alias(s))
}

func (s ImportNamedSpecifier) MarshalJSON() ([]byte, error) {
	type alias ImportNamedSpecifier
	return marshalTagged("ImportSpecifier", alias(s))
}

// ExportSpecifier is one re-exported binding.
//
// Implementations: *ExportNamedSpecifier, *ExportNamespaceSpecifier.
type ExportSpecifier interface {
	isExportSpecifier()
}

// ExportNamedSpecifier is `export { local as exported }`. Local is nil when
// the original name is a string literal.
type ExportNamedSpecifier struct {
	Local      *string          `json:"local"`
	Exported   ModuleExportName `json:"exported"`
	IsTypeOnly bool             `json:"is_type_only"`
}

// ExportNamespaceSpecifier is `export * as exported from "m"`.
type ExportNamespaceSpecifier struct {
	Exported ModuleExportName `json:"exported"`
}

func (*ExportNamedSpecifier) isExportSpecifier()     {}
func (*ExportNamespaceSpecifier) isExportSpecifier() {}

func (s ExportNamedSpecifier) MarshalJSON() ([]byte, error) {
	type alias ExportNamedSpecifier
	return marshalTagged("ExportSpecifier", alias(s))
}

func (s ExportNamespaceSpecifier) MarshalJSON() ([]byte, error) {
	type alias ExportNamespaceSpecifier
	return marshalTagged("ExportNamespaceSpecifier", alias(s))
}

// ImportDeclaration is an import statement.
type ImportDeclaration struct {
	Node
	Src        string            `json:"src"`
	Specifiers []ImportSpecifier `json:"specifiers"`
	IsTypeOnly bool              `json:"is_type_only"`
}

// ExportDefaultDeclaration is `export default ...`. ObjSpan is set when the
// exported expression is an object literal.
type ExportDefaultDeclaration struct {
	Node
	ObjSpan *SubSpan `json:"obj_span"`
}

// ExportNamedDeclaration is `export { ... }`, optionally re-exported from Src.
type ExportNamedDeclaration struct {
	Node
	Specifiers []ExportSpecifier `json:"specifiers"`
	Src        *string           `json:"src"`
	IsTypeOnly bool              `json:"is_type_only"`
}

// ExportAllDeclaration is `export * from "m"`.
type ExportAllDeclaration struct {
	Node
	Src        string `json:"src"`
	IsTypeOnly bool   `json:"is_type_only"`
}

// ExportFunctionDeclaration is `export function name() {}`.
type ExportFunctionDeclaration struct {
	Node
	Name string `json:"name"`
}

// ExportClassDeclaration is `export class Name {}`.
type ExportClassDeclaration struct {
	Node
	Name string `json:"name"`
}

// CallExpression is a call found outside any summarized declaration.
type CallExpression struct {
	Node
	CalleeIdent       *string        `json:"callee_ident"`
	Args              []string       `json:"args"`
	TypeParameters    []string       `json:"type_parameters"`
	TypeArguments     []TypeArgument `json:"type_arguments,omitempty"`
	TypeArgumentsText *string        `json:"type_arguments_text,omitempty"`
	Text              *string        `json:"text"`
}

// PropertySignature is one property of an object type.
type PropertySignature struct {
	Key     string  `json:"key"`
	TypeAnn *string `json:"type_ann"`
	// Optional is true for `key?: T`.
	Optional bool `json:"optional"`
}

// TypeAliasDeclaration is `type Id = ...`.
type TypeAliasDeclaration struct {
	Node
	ID       string              `json:"id"`
	Members  []PropertySignature `json:"members"`
	Exported bool                `json:"exported,omitempty"`
}

// InterfaceDeclaration is `interface Id { ... }`.
type InterfaceDeclaration struct {
	Node
	ID       string              `json:"id"`
	Members  []PropertySignature `json:"members"`
	Exported bool                `json:"exported,omitempty"`
}

// VariableDeclaration describes one declarator of a var/let/const statement.
type VariableDeclaration struct {
	Node
	DeclKind          string                `json:"decl_kind"`
	Name              string                `json:"name"`
	NameSpan          SubSpan               `json:"name_span"`
	Names             []string              `json:"names"`
	Inited            bool                  `json:"inited"`
	InitText          *string               `json:"init_text"`
	InitCalleeIdent   *string               `json:"init_callee_ident"`
	InitSpan          *SubSpan              `json:"init_span"`
	TypeParameters    []string              `json:"type_parameters"`
	TypeArguments     []TypeArgument        `json:"type_arguments,omitempty"`
	TypeArgumentsText *string               `json:"type_arguments_text,omitempty"`
	TypeAnn           *string               `json:"type_ann,omitempty"`
	ArrayPattern      *ArrayBindingPattern  `json:"array_pattern"`
	ObjectPattern     *ObjectBindingPattern `json:"object_pattern"`
	Exported          bool                  `json:"exported,omitempty"`
}

// Param describes one function parameter. Destructured parameters carry
// their verbatim pattern text as Name.
type Param struct {
	Name        *string `json:"name"`
	DefaultText *string `json:"default_text"`
	IsRest      bool    `json:"is_rest"`
	Optional    bool    `json:"optional,omitempty"`
	TypeAnn     *string `json:"type_ann"`
}

// FunctionDeclaration is a top-level function declaration or overload.
type FunctionDeclaration struct {
	Node
	Name        string  `json:"name"`
	Text        *string `json:"text"`
	BodyText    *string `json:"body_text"`
	IsAsync     bool    `json:"is_async"`
	IsGenerator bool    `json:"is_generator"`
	Params      []Param `json:"params"`
	ReturnType  *string `json:"return_type"`
}

// ClassDeclaration is a top-level class declaration.
type ClassDeclaration struct {
	Node
	Name       string        `json:"name"`
	SuperClass *string       `json:"super_class"`
	Implements []string      `json:"implements"`
	Decorators []string      `json:"decorators"`
	IsAbstract bool          `json:"is_abstract,omitempty"`
	Members    []ClassMember `json:"members"`
}

func (*ImportDeclaration) ItemType() string         { return "ImportDeclaration" }
func (*ExportDefaultDeclaration) ItemType() string  { return "ExportDefaultDeclaration" }
func (*ExportNamedDeclaration) ItemType() string    { return "ExportNamedDeclaration" }
func (*ExportAllDeclaration) ItemType() string      { return "ExportAllDeclaration" }
func (*ExportFunctionDeclaration) ItemType() string { return "ExportFunctionDeclaration" }
func (*ExportClassDeclaration) ItemType() string    { return "ExportClassDeclaration" }
func (*CallExpression) ItemType() string            { return "CallExpression" }
func (*TypeAliasDeclaration) ItemType() string      { return "TSTypeAliasDeclaration" }
func (*InterfaceDeclaration) ItemType() string      { return "TSInterfaceDeclaration" }
func (*VariableDeclaration) ItemType() string       { return "VariableDeclaration" }
func (*FunctionDeclaration) ItemType() string       { return "FunctionDeclaration" }
func (*ClassDeclaration) ItemType() string          { return "ClassDeclaration" }

func (d *ImportDeclaration) MarshalJSON() ([]byte, error) {
	type alias ImportDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *ExportDefaultDeclaration) MarshalJSON() ([]byte, error) {
	type alias ExportDefaultDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *ExportNamedDeclaration) MarshalJSON() ([]byte, error) {
	type alias ExportNamedDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *ExportAllDeclaration) MarshalJSON() ([]byte, error) {
	type alias ExportAllDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *ExportFunctionDeclaration) MarshalJSON() ([]byte, error) {
	type alias ExportFunctionDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *ExportClassDeclaration) MarshalJSON() ([]byte, error) {
	type alias ExportClassDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *CallExpression) MarshalJSON() ([]byte, error) {
	type alias CallExpression
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *TypeAliasDeclaration) MarshalJSON() ([]byte, error) {
	type alias TypeAliasDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *InterfaceDeclaration) MarshalJSON() ([]byte, error) {
	type alias InterfaceDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *VariableDeclaration) MarshalJSON() ([]byte, error) {
	type alias VariableDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *FunctionDeclaration) MarshalJSON() ([]byte, error) {
	type alias FunctionDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

func (d *ClassDeclaration) MarshalJSON() ([]byte, error) {
	type alias ClassDeclaration
	return marshalTagged(d.ItemType(), (*alias)(d))
}

// =============================================================================
// CLASS MEMBERS
// =============================================================================

// ClassMember is one lowered class member.
//
// Implementations: *ConstructorMember, *MethodMember, *GetterMember,
// *SetterMember, *PropertyMember, *StaticBlockMember.
type ClassMember interface {
	MemberType() string
	Position() Node
}

// ConstructorMember is a class constructor.
type ConstructorMember struct {
	Node
}

// MethodMember is a class method.
type MethodMember struct {
	Node
	Key         string `json:"key"`
	IsStatic    bool   `json:"is_static"`
	IsAsync     bool   `json:"is_async"`
	IsGenerator bool   `json:"is_generator"`
}

// GetterMember is a `get` accessor.
type GetterMember struct {
	Node
	Key      string `json:"key"`
	IsStatic bool   `json:"is_static"`
}

// SetterMember is a `set` accessor.
type SetterMember struct {
	Node
	Key      string `json:"key"`
	IsStatic bool   `json:"is_static"`
}

// PropertyMember is a class field, or any member kind without its own variant.
type PropertyMember struct {
	Node
	Key      string `json:"key"`
	IsStatic bool   `json:"is_static"`
}

// StaticBlockMember is a `static { }` block.
type StaticBlockMember struct {
	Node
}

func (*ConstructorMember) MemberType() string { return "Constructor" }
func (*MethodMember) MemberType() string      { return "Method" }
func (*GetterMember) MemberType() string      { return "Getter" }
func (*SetterMember) MemberType() string      { return "Setter" }
func (*PropertyMember) MemberType() string    { return "Property" }
func (*StaticBlockMember) MemberType() string { return "StaticBlock" }

func (m *ConstructorMember) MarshalJSON() ([]byte, error) {
	type alias ConstructorMember
	return marshalTagged(m.MemberType(), (*alias)(m))
}

func (m *MethodMember) MarshalJSON() ([]byte, error) {
	type alias MethodMember
	return marshalTagged(m.MemberType(), (*alias)(m))
}

func (m *GetterMember) MarshalJSON() ([]byte, error) {
	type alias GetterMember
	return marshalTagged(m.MemberType(), (*alias)(m))
}

func (m *SetterMember) MarshalJSON() ([]byte, error) {
	type alias SetterMember
	return marshalTagged(m.MemberType(), (*alias)(m))
}

func (m *PropertyMember) MarshalJSON() ([]byte, error) {
	type alias PropertyMember
	return marshalTagged(m.MemberType(), (*alias)(m))
}

func (m *StaticBlockMember) MarshalJSON() ([]byte, error) {
	type alias StaticBlockMember
	return marshalTagged(m.MemberType(), (*alias)(m))
}

// =============================================================================
// TYPE ARGUMENTS
// =============================================================================

// TypeArgKind classifies an explicit type argument.
type TypeArgKind string

const (
	TypeArgReference TypeArgKind = "TypeReference"
	TypeArgLiteral   TypeArgKind = "TypeLiteral"
	TypeArgOther     TypeArgKind = "Other"
)

// TypeArgument describes one explicit type argument of a call.
type TypeArgument struct {
	SourceText     string              `json:"source_text"`
	Kind           TypeArgKind         `json:"kind"`
	ReferencedName *string             `json:"referenced_name"`
	LiteralMembers []PropertySignature `json:"literal_members"`
}

// =============================================================================
// EXPRESSIONS
// =============================================================================

// Expr is a lowered expression.
//
// Implementations: *NullLiteral, *BooleanLiteral, *NumericLiteral,
// *BigIntLiteral, *StringLiteral, *ArrayExpression, *ObjectExpression,
// *FunctionExpression, *ArrowFunctionExpression, *Identifier.
type Expr interface {
	ExprType() string
}

type NullLiteral struct{}

type BooleanLiteral struct {
	Value bool `json:"value"`
}

// NumericLiteral holds a number. Values that JSON cannot represent
// (infinities, NaN) fail serialization.
type NumericLiteral struct {
	Value float64 `json:"value"`
}

// BigIntLiteral holds the decimal text of a BigInt.
type BigIntLiteral struct {
	Value string `json:"value"`
}

type StringLiteral struct {
	Value string `json:"value"`
}

// ArrayExpression holds lowered elements. Holes are empty ArrayExpressions.
type ArrayExpression struct {
	Elements []Expr `json:"elements"`
}

type ObjectExpression struct {
	Properties []*Property `json:"properties"`
}

// Property is one object-literal property.
type Property struct {
	Key       string `json:"key"`
	Value     Expr   `json:"value"`
	Kind      string `json:"kind"`
	Method    bool   `json:"method"`
	Shorthand bool   `json:"shorthand"`
	Computed  bool   `json:"computed"`
}

// FunctionExpression keeps its source text; the body is not lowered.
type FunctionExpression struct {
	Raw       string `json:"raw"`
	Async     bool   `json:"async"`
	Generator bool   `json:"generator"`
}

// ArrowFunctionExpression keeps its source text. Expression is true for a
// single-expression body.
type ArrowFunctionExpression struct {
	Raw        string `json:"raw"`
	Async      bool   `json:"async"`
	Expression bool   `json:"expression"`
}

// Identifier is a name, or the raw source of an expression kind that is
// not modeled.
type Identifier struct {
	Name string `json:"name"`
}

func (*NullLiteral) ExprType() string             { return "NullLiteral" }
func (*BooleanLiteral) ExprType() string          { return "BooleanLiteral" }
func (*NumericLiteral) ExprType() string          { return "NumericLiteral" }
func (*BigIntLiteral) ExprType() string           { return "BigIntLiteral" }
func (*StringLiteral) ExprType() string           { return "StringLiteral" }
func (*ArrayExpression) ExprType() string         { return "ArrayExpression" }
func (*ObjectExpression) ExprType() string        { return "ObjectExpression" }
func (*FunctionExpression) ExprType() string      { return "FunctionExpression" }
func (*ArrowFunctionExpression) ExprType() string { return "ArrowFunctionExpression" }
func (*Identifier) ExprType() string              { return "Identifier" }

func (e *NullLiteral) MarshalJSON() ([]byte, error) {
	return marshalTagged(e.ExprType(), struct{}{})
}

func (e *BooleanLiteral) MarshalJSON() ([]byte, error) {
	type alias BooleanLiteral
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *NumericLiteral) MarshalJSON() ([]byte, error) {
	type alias NumericLiteral
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *BigIntLiteral) MarshalJSON() ([]byte, error) {
	type alias BigIntLiteral
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *StringLiteral) MarshalJSON() ([]byte, error) {
	type alias StringLiteral
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *ArrayExpression) MarshalJSON() ([]byte, error) {
	type alias ArrayExpression
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *ObjectExpression) MarshalJSON() ([]byte, error) {
	type alias ObjectExpression
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *FunctionExpression) MarshalJSON() ([]byte, error) {
	type alias FunctionExpression
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *ArrowFunctionExpression) MarshalJSON() ([]byte, error) {
	type alias ArrowFunctionExpression
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (e *Identifier) MarshalJSON() ([]byte, error) {
	type alias Identifier
	return marshalTagged(e.ExprType(), (*alias)(e))
}

func (p *Property) MarshalJSON() ([]byte, error) {
	type alias Property
	return marshalTagged("Property", (*alias)(p))
}
