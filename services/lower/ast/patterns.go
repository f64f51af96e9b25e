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
	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// BINDING PATTERNS
// =============================================================================

// Pattern is a binding pattern: the left-hand side of a declarator or a
// parameter.
//
// Implementations: *IdentPattern, *ArrayPattern, *ObjectPattern,
// *RestPattern, *AssignPattern, *OpaquePattern.
type Pattern interface {
	isPattern()
}

// IdentPattern binds a single name.
type IdentPattern struct {
	Name    string
	TypeAnn *string
}

// ArrayPattern destructures by position. Nil elements are holes.
type ArrayPattern struct {
	Elements []Pattern
	TypeAnn  *string
}

// ObjectPattern destructures by key.
type ObjectPattern struct {
	Props   []ObjectPatternProp
	TypeAnn *string
}

// RestPattern collects the remainder of an array or parameter list.
type RestPattern struct {
	Arg     Pattern
	TypeAnn *string
}

// AssignPattern is a pattern with a default value.
type AssignPattern struct {
	Left    Pattern
	Default string
	TypeAnn *string
}

// OpaquePattern is a pattern position holding something that binds no name,
// such as a member expression in an assignment target.
type OpaquePattern struct {
	Text string
}

// PropKind distinguishes the three object-pattern property forms.
type PropKind int

const (
	// PropKeyValue is `key: pattern`.
	PropKeyValue PropKind = iota
	// PropAssign is the shorthand `key` or `key = default`.
	PropAssign
	// PropRest is `...rest`.
	PropRest
)

// ObjectPatternProp is one property of an ObjectPattern.
//
// For PropRest, Key holds the verbatim rest text ("...rest") and Value the
// argument pattern. For PropAssign, Value is nil.
type ObjectPatternProp struct {
	Kind    PropKind
	Key     string
	Value   Pattern
	Default *string
}

func (*IdentPattern) isPattern()  {}
func (*ArrayPattern) isPattern()  {}
func (*ObjectPattern) isPattern() {}
func (*RestPattern) isPattern()   {}
func (*AssignPattern) isPattern() {}
func (*OpaquePattern) isPattern() {}

// buildPattern converts a tree-sitter pattern node. typeNode is the
// annotation attached by the enclosing declarator or parameter, or nil.
func (l *lowering) buildPattern(n *sitter.Node, typeNode *sitter.Node) Pattern {
	ann := l.typeAnnotationText(typeNode)

	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern", "undefined", "this":
		return &IdentPattern{Name: l.text(n), TypeAnn: ann}

	case "object_pattern":
		out := &ObjectPattern{TypeAnn: ann}
		for _, c := range namedChildren(n) {
			if prop, ok := l.buildObjectPatternProp(c); ok {
				out.Props = append(out.Props, prop)
			}
		}
		return out

	case "array_pattern":
		out := &ArrayPattern{TypeAnn: ann}
		expectElement := true
		for _, c := range children(n) {
			switch {
			case c.Type() == ",":
				if expectElement {
					out.Elements = append(out.Elements, nil)
				}
				expectElement = true
			case c.IsNamed():
				out.Elements = append(out.Elements, l.buildPattern(c, nil))
				expectElement = false
			}
		}
		return out

	case "rest_pattern":
		inner := namedChildren(n)
		if len(inner) == 0 {
			return &OpaquePattern{Text: l.text(n)}
		}
		return &RestPattern{Arg: l.buildPattern(inner[0], nil), TypeAnn: ann}

	case "assignment_pattern":
		left := n.ChildByFieldName("left")
		right := n.ChildByFieldName("right")
		if left == nil {
			return &OpaquePattern{Text: l.text(n)}
		}
		return &AssignPattern{Left: l.buildPattern(left, nil), Default: l.text(right), TypeAnn: ann}
	}

	return &OpaquePattern{Text: l.text(n)}
}

func (l *lowering) buildObjectPatternProp(c *sitter.Node) (ObjectPatternProp, bool) {
	switch c.Type() {
	case "shorthand_property_identifier_pattern":
		return ObjectPatternProp{Kind: PropAssign, Key: l.text(c)}, true

	case "object_assignment_pattern":
		left := c.ChildByFieldName("left")
		right := c.ChildByFieldName("right")
		if left == nil {
			return ObjectPatternProp{}, false
		}
		def := l.textPtr(right)
		if left.Type() == "shorthand_property_identifier_pattern" || left.Type() == "identifier" {
			return ObjectPatternProp{Kind: PropAssign, Key: l.text(left), Default: def}, true
		}
		return ObjectPatternProp{
			Kind:  PropKeyValue,
			Key:   l.text(left),
			Value: &AssignPattern{Left: l.buildPattern(left, nil), Default: l.text(right)},
		}, true

	case "pair_pattern":
		key := c.ChildByFieldName("key")
		value := c.ChildByFieldName("value")
		if key == nil || value == nil {
			return ObjectPatternProp{}, false
		}
		return ObjectPatternProp{
			Kind:  PropKeyValue,
			Key:   l.propertyKey(key).Text,
			Value: l.buildPattern(value, nil),
		}, true

	case "rest_pattern":
		inner := namedChildren(c)
		var arg Pattern = &OpaquePattern{Text: l.text(c)}
		if len(inner) > 0 {
			arg = l.buildPattern(inner[0], nil)
		}
		return ObjectPatternProp{Kind: PropRest, Key: l.text(c), Value: arg}, true
	}
	return ObjectPatternProp{}, false
}

// FlattenNames returns every identifier bound by p, depth-first and
// left-to-right. Shorthand properties contribute their key; defaults
// contribute nothing.
func FlattenNames(p Pattern) []string {
	var out []string
	appendNames(p, &out)
	return out
}

func appendNames(p Pattern, out *[]string) {
	switch v := p.(type) {
	case *IdentPattern:
		*out = append(*out, v.Name)
	case *ArrayPattern:
		for _, e := range v.Elements {
			if e != nil {
				appendNames(e, out)
			}
		}
	case *ObjectPattern:
		for _, prop := range v.Props {
			switch prop.Kind {
			case PropAssign:
				*out = append(*out, prop.Key)
			default:
				if prop.Value != nil {
					appendNames(prop.Value, out)
				}
			}
		}
	case *RestPattern:
		appendNames(v.Arg, out)
	case *AssignPattern:
		appendNames(v.Left, out)
	}
}

// =============================================================================
// STRUCTURED PATTERNS
// =============================================================================

// StructuredPattern is the position-preserving description of a top-level
// array or object pattern: *ArrayBindingPattern or *ObjectBindingPattern.
type StructuredPattern interface {
	isStructured()
}

// ArrayBindingElement describes one slot of an array pattern.
//
// Name is set for identifier slots (possibly behind a default or rest).
// Names carries the bound names of slots holding nested patterns, which are
// not described structurally. Holes have neither.
type ArrayBindingElement struct {
	Name        *string  `json:"name"`
	Names       []string `json:"names,omitempty"`
	DefaultText *string  `json:"default_text"`
	IsRest      bool     `json:"is_rest"`
	Index       int      `json:"index"`
}

// ArrayBindingPattern is the structured form of an array pattern.
type ArrayBindingPattern struct {
	Elements           []ArrayBindingElement `json:"elements"`
	PatternTypeAnnText *string               `json:"pattern_type_ann_text"`
}

// ObjectBindingProperty describes one property of an object pattern.
type ObjectBindingProperty struct {
	Key         string                `json:"key"`
	Alias       *string               `json:"alias"`
	Names       []string              `json:"names,omitempty"`
	DefaultText *string               `json:"default_text"`
	Nested      *ObjectBindingPattern `json:"nested,omitempty"`
}

// ObjectBindingPattern is the structured form of an object pattern.
type ObjectBindingPattern struct {
	Properties         []ObjectBindingProperty `json:"properties"`
	PatternTypeAnnText *string                 `json:"pattern_type_ann_text"`
}

func (*ArrayBindingPattern) isStructured()  {}
func (*ObjectBindingPattern) isStructured() {}

// ToStructured describes p structurally when it is an array or object
// pattern and returns nil otherwise.
//
// Object patterns nested in object patterns are described recursively.
// Array-in-object and object-in-array slots fall back to a name list.
func ToStructured(p Pattern) StructuredPattern {
	switch v := p.(type) {
	case *ArrayPattern:
		return structuredArray(v)
	case *ObjectPattern:
		return structuredObject(v)
	}
	return nil
}

func structuredArray(p *ArrayPattern) *ArrayBindingPattern {
	out := &ArrayBindingPattern{
		Elements:           make([]ArrayBindingElement, 0, len(p.Elements)),
		PatternTypeAnnText: p.TypeAnn,
	}
	for i, e := range p.Elements {
		el := ArrayBindingElement{Index: i}
		if r, ok := e.(*RestPattern); ok {
			el.IsRest = true
			e = r.Arg
		}
		if a, ok := e.(*AssignPattern); ok {
			def := a.Default
			el.DefaultText = &def
			e = a.Left
		}
		switch v := e.(type) {
		case nil:
		case *IdentPattern:
			name := v.Name
			el.Name = &name
		default:
			el.Names = FlattenNames(v)
		}
		out.Elements = append(out.Elements, el)
	}
	return out
}

func structuredObject(p *ObjectPattern) *ObjectBindingPattern {
	out := &ObjectBindingPattern{
		Properties:         make([]ObjectBindingProperty, 0, len(p.Props)),
		PatternTypeAnnText: p.TypeAnn,
	}
	for _, prop := range p.Props {
		bp := ObjectBindingProperty{Key: prop.Key}
		switch prop.Kind {
		case PropAssign:
			alias := prop.Key
			bp.Alias = &alias
			bp.DefaultText = prop.Default
		case PropRest:
			if id, ok := prop.Value.(*IdentPattern); ok {
				alias := id.Name
				bp.Alias = &alias
			} else {
				bp.Names = FlattenNames(prop.Value)
			}
		case PropKeyValue:
			value := prop.Value
			if a, ok := value.(*AssignPattern); ok {
				def := a.Default
				bp.DefaultText = &def
				value = a.Left
			}
			switch v := value.(type) {
			case *IdentPattern:
				alias := v.Name
				bp.Alias = &alias
			case *ObjectPattern:
				bp.Nested = structuredObject(v)
			case *ArrayPattern, *RestPattern:
				bp.Names = FlattenNames(v)
			}
		}
		out.Properties = append(out.Properties, bp)
	}
	return out
}

// StructuredNames returns the bound names of a structured pattern in order.
// It always equals FlattenNames of the pattern the description came from.
func StructuredNames(sp StructuredPattern) []string {
	var out []string
	switch v := sp.(type) {
	case *ArrayBindingPattern:
		for _, el := range v.Elements {
			if el.Name != nil {
				out = append(out, *el.Name)
			}
			out = append(out, el.Names...)
		}
	case *ObjectBindingPattern:
		for _, prop := range v.Properties {
			switch {
			case prop.Alias != nil:
				out = append(out, *prop.Alias)
			case prop.Nested != nil:
				out = append(out, StructuredNames(prop.Nested)...)
			default:
				out = append(out, prop.Names...)
			}
		}
	}
	return out
}
