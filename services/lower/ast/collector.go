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

// itemHandler lowers one top-level statement into zero or more items.
type itemHandler func(l *lowering, n *sitter.Node) []Item

// topLevelHandlers maps statement kinds to their lowerers.
//
// Kinds listed here are summarized and never searched for calls. Kinds in
// opaqueStatements produce nothing. Every other statement is searched for
// calls at any depth. Populated in init because lowerAmbient dispatches
// back through the table.
var topLevelHandlers map[string]itemHandler

func init() {
	topLevelHandlers = map[string]itemHandler{
		"import_statement": (*lowering).lowerImport,
		"export_statement": (*lowering).lowerExport,
		"lexical_declaration": func(l *lowering, n *sitter.Node) []Item {
			return l.lowerVariables(n, false)
		},
		"variable_declaration": func(l *lowering, n *sitter.Node) []Item {
			return l.lowerVariables(n, false)
		},
		"function_declaration":           lowerFunctionItem,
		"generator_function_declaration": lowerFunctionItem,
		"function_signature":             lowerFunctionItem,
		"class_declaration":              lowerClassItem,
		"abstract_class_declaration":     lowerClassItem,
		"type_alias_declaration": func(l *lowering, n *sitter.Node) []Item {
			return []Item{l.lowerTypeAlias(n)}
		},
		"interface_declaration": func(l *lowering, n *sitter.Node) []Item {
			return []Item{l.lowerInterface(n)}
		},
		"ambient_declaration": (*lowering).lowerAmbient,
	}
}

// opaqueStatements are declarations with no record and no call search.
var opaqueStatements = map[string]bool{
	"enum_declaration": true,
	"module":           true,
	"internal_module":  true,
	"import_alias":     true,
	"hash_bang_line":   true,
	"comment":          true,
}

func lowerFunctionItem(l *lowering, n *sitter.Node) []Item {
	return []Item{l.lowerFunction(n)}
}

func lowerClassItem(l *lowering, n *sitter.Node) []Item {
	return []Item{l.lowerClass(n)}
}

// lowerAmbient unwraps `declare <decl>`. `declare module` and
// `declare global` produce nothing.
func (l *lowering) lowerAmbient(n *sitter.Node) []Item {
	inner := namedChildren(n)
	if len(inner) == 0 {
		return nil
	}
	if h, ok := topLevelHandlers[inner[0].Type()]; ok {
		return h(l, inner[0])
	}
	return nil
}

// lowerProgram walks the top-level statements in document order.
func (l *lowering) lowerProgram(root *sitter.Node) []Item {
	items := make([]Item, 0, root.NamedChildCount())
	for _, stmt := range namedChildren(root) {
		kind := stmt.Type()
		if h, ok := topLevelHandlers[kind]; ok {
			items = append(items, h(l, stmt)...)
			continue
		}
		if opaqueStatements[kind] || isNamespaceStatement(stmt) {
			continue
		}
		l.collectCalls(stmt, &items)
	}
	return items
}

// isNamespaceStatement reports whether stmt is `namespace X {}`, which the
// grammar wraps in an expression statement.
func isNamespaceStatement(stmt *sitter.Node) bool {
	if stmt.Type() != "expression_statement" {
		return false
	}
	inner := namedChildren(stmt)
	return len(inner) == 1 && opaqueStatements[inner[0].Type()]
}

// collectCalls appends a record for every call under n in pre-order.
// A call's own arguments and callee are searched after the call itself.
func (l *lowering) collectCalls(n *sitter.Node, out *[]Item) {
	if isPlainCall(n) {
		*out = append(*out, l.lowerCall(n))
	}
	for _, c := range namedChildren(n) {
		l.collectCalls(c, out)
	}
}
