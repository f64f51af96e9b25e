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

// lowerExpr lowers a single expression node.
//
// Description:
//
//	Literals, arrays, objects and function expressions are modeled. Every
//	other expression kind becomes an Identifier whose name is the verbatim
//	source of the expression. Function and arrow bodies are kept as text.
//
// Inputs:
//   - n: An expression node. Must not be nil.
//
// Outputs:
//   - Expr: Never nil.
func (l *lowering) lowerExpr(n *sitter.Node) Expr {
	switch n.Type() {
	case "null":
		return &NullLiteral{}

	case "true":
		return &BooleanLiteral{Value: true}

	case "false":
		return &BooleanLiteral{Value: false}

	case "number":
		lit := parseNumber(l.text(n))
		if lit.bigint {
			return &BigIntLiteral{Value: lit.bigText}
		}
		return &NumericLiteral{Value: lit.value}

	case "string":
		return &StringLiteral{Value: l.stringValue(n)}

	case "array":
		return l.lowerArray(n)

	case "object":
		return l.lowerObject(n)

	case "function", "function_expression", "generator_function":
		return &FunctionExpression{
			Raw:       l.text(n),
			Async:     hasToken(n, "async"),
			Generator: hasToken(n, "*"),
		}

	case "arrow_function":
		body := n.ChildByFieldName("body")
		return &ArrowFunctionExpression{
			Raw:        l.text(n),
			Async:      hasToken(n, "async"),
			Expression: body != nil && body.Type() != "statement_block",
		}

	case "identifier":
		return &Identifier{Name: l.text(n)}
	}

	return &Identifier{Name: l.text(n)}
}

// lowerArray keeps one element per index; holes become empty arrays.
func (l *lowering) lowerArray(n *sitter.Node) *ArrayExpression {
	out := &ArrayExpression{Elements: make([]Expr, 0, n.NamedChildCount())}
	expectElement := true
	for _, c := range children(n) {
		switch {
		case c.Type() == ",":
			if expectElement {
				out.Elements = append(out.Elements, &ArrayExpression{Elements: []Expr{}})
			}
			expectElement = true
		case c.IsNamed():
			out.Elements = append(out.Elements, l.lowerExpr(c))
			expectElement = false
		}
	}
	return out
}

func (l *lowering) lowerObject(n *sitter.Node) *ObjectExpression {
	out := &ObjectExpression{Properties: make([]*Property, 0, n.NamedChildCount())}
	for _, c := range namedChildren(n) {
		if prop := l.lowerProperty(c); prop != nil {
			out.Properties = append(out.Properties, prop)
		}
	}
	return out
}

// lowerProperty classifies an object-literal member before lowering its value.
func (l *lowering) lowerProperty(c *sitter.Node) *Property {
	switch c.Type() {
	case "pair":
		key := c.ChildByFieldName("key")
		value := c.ChildByFieldName("value")
		if key == nil || value == nil {
			return nil
		}
		k := l.propertyKey(key)
		return &Property{Key: k.Text, Value: l.lowerExpr(value), Kind: "init", Computed: k.Computed}

	case "shorthand_property_identifier", "shorthand_property_identifier_pattern":
		name := l.text(c)
		return &Property{Key: name, Value: &Identifier{Name: name}, Kind: "init", Shorthand: true}

	case "object_assignment_pattern":
		left := c.ChildByFieldName("left")
		right := c.ChildByFieldName("right")
		if left == nil || right == nil {
			return nil
		}
		return &Property{Key: l.text(left), Value: l.lowerExpr(right), Kind: "init", Shorthand: true}

	case "method_definition":
		name := c.ChildByFieldName("name")
		if name == nil {
			return nil
		}
		k := l.propertyKey(name)
		kind := "method"
		switch {
		case hasToken(c, "get"):
			kind = "get"
		case hasToken(c, "set"):
			kind = "set"
		}
		fn := &FunctionExpression{
			Raw:       l.text(c),
			Async:     hasToken(c, "async"),
			Generator: hasToken(c, "*"),
		}
		return &Property{Key: k.Text, Value: fn, Kind: kind, Method: kind == "method", Computed: k.Computed}

	case "spread_element":
		inner := namedChildren(c)
		if len(inner) == 0 {
			return nil
		}
		return &Property{Key: "...", Value: l.lowerExpr(inner[0]), Kind: "init"}
	}
	return nil
}
