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
// IMPORTS
// =============================================================================

// lowerImport lowers an import statement. Statements without a source
// string (none are expected from the grammar) produce nothing.
func (l *lowering) lowerImport(n *sitter.Node) []Item {
	src := n.ChildByFieldName("source")
	if src == nil {
		src = firstNamedOfType(n, "string")
	}
	if src == nil {
		return nil
	}

	out := &ImportDeclaration{
		Node:       l.node(n),
		Src:        l.stringValue(src),
		Specifiers: []ImportSpecifier{},
		IsTypeOnly: hasToken(n, "type"),
	}

	clause := firstNamedOfType(n, "import_clause")
	for _, c := range namedChildren(clause) {
		switch c.Type() {
		case "identifier":
			out.Specifiers = append(out.Specifiers, &ImportDefaultSpecifier{Local: l.text(c)})

		case "namespace_import":
			if id := firstNamedOfType(c, "identifier"); id != nil {
				out.Specifiers = append(out.Specifiers, &ImportNamespaceSpecifier{Local: l.text(id)})
			}

		case "named_imports":
			for _, spec := range namedChildren(c) {
				if spec.Type() != "import_specifier" {
					continue
				}
				if s := l.lowerImportSpecifier(spec); s != nil {
					out.Specifiers = append(out.Specifiers, s)
				}
			}
		}
	}
	return []Item{out}
}

// lowerImportSpecifier handles `name`, `name as alias` and `"str" as alias`.
func (l *lowering) lowerImportSpecifier(spec *sitter.Node) *ImportNamedSpecifier {
	name := spec.ChildByFieldName("name")
	alias := spec.ChildByFieldName("alias")
	if name == nil {
		ids := namedChildren(spec)
		if len(ids) == 0 {
			return nil
		}
		name = ids[0]
		if len(ids) > 1 {
			alias = ids[1]
		}
	}

	out := &ImportNamedSpecifier{IsTypeOnly: hasToken(spec, "type")}
	if alias != nil {
		imported := l.moduleExportName(name)
		out.Local = l.text(alias)
		out.Imported = &imported
	} else {
		out.Local = l.text(name)
	}
	return out
}

func (l *lowering) moduleExportName(n *sitter.Node) ModuleExportName {
	if n.Type() == "string" {
		return ModuleExportName{Kind: NameString, Value: l.stringValue(n)}
	}
	return ModuleExportName{Kind: NameIdentifier, Value: l.text(n)}
}

// =============================================================================
// EXPORTS
// =============================================================================

// lowerExport lowers every form of export statement.
//
// Description:
//
//	Default exports record the statement and, for object literals, the
//	object's own span. Exported functions and classes record their name.
//	Exported variables, type aliases and interfaces go through the plain
//	declaration path flagged as exported. Re-export lists and namespace
//	re-exports become ExportNamedDeclaration; `export *` becomes
//	ExportAllDeclaration. `export =` and `export as namespace` produce nothing.
func (l *lowering) lowerExport(n *sitter.Node) []Item {
	if hasToken(n, "default") {
		out := &ExportDefaultDeclaration{Node: l.node(n)}
		if value := n.ChildByFieldName("value"); value != nil && value.Type() == "object" {
			span := l.subSpan(value)
			out.ObjSpan = &span
		}
		return []Item{out}
	}

	if decl := n.ChildByFieldName("declaration"); decl != nil {
		return l.lowerExportedDecl(n, decl)
	}

	var src *string
	if s := n.ChildByFieldName("source"); s != nil {
		v := l.stringValue(s)
		src = &v
	}
	typeOnly := hasToken(n, "type")

	if ns := firstNamedOfType(n, "namespace_export"); ns != nil {
		inner := namedChildren(ns)
		if len(inner) == 0 {
			return nil
		}
		return []Item{&ExportNamedDeclaration{
			Node:       l.node(n),
			Specifiers: []ExportSpecifier{&ExportNamespaceSpecifier{Exported: l.moduleExportName(inner[len(inner)-1])}},
			Src:        src,
			IsTypeOnly: typeOnly,
		}}
	}

	if clause := firstNamedOfType(n, "export_clause"); clause != nil {
		out := &ExportNamedDeclaration{
			Node:       l.node(n),
			Specifiers: []ExportSpecifier{},
			Src:        src,
			IsTypeOnly: typeOnly,
		}
		for _, spec := range namedChildren(clause) {
			if spec.Type() != "export_specifier" {
				continue
			}
			if s := l.lowerExportSpecifier(spec); s != nil {
				out.Specifiers = append(out.Specifiers, s)
			}
		}
		return []Item{out}
	}

	if hasToken(n, "*") && src != nil {
		return []Item{&ExportAllDeclaration{Node: l.node(n), Src: *src, IsTypeOnly: typeOnly}}
	}
	return nil
}

func (l *lowering) lowerExportSpecifier(spec *sitter.Node) *ExportNamedSpecifier {
	name := spec.ChildByFieldName("name")
	alias := spec.ChildByFieldName("alias")
	if name == nil {
		ids := namedChildren(spec)
		if len(ids) == 0 {
			return nil
		}
		name = ids[0]
		if len(ids) > 1 {
			alias = ids[1]
		}
	}

	out := &ExportNamedSpecifier{IsTypeOnly: hasToken(spec, "type")}
	if name.Type() != "string" {
		local := l.text(name)
		out.Local = &local
	}
	if alias != nil {
		out.Exported = l.moduleExportName(alias)
	} else {
		out.Exported = l.moduleExportName(name)
	}
	return out
}

// lowerExportedDecl handles `export <declaration>`.
func (l *lowering) lowerExportedDecl(stmt, decl *sitter.Node) []Item {
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration", "function_signature":
		return []Item{&ExportFunctionDeclaration{Node: l.node(stmt), Name: l.text(decl.ChildByFieldName("name"))}}

	case "class_declaration", "abstract_class_declaration":
		return []Item{&ExportClassDeclaration{Node: l.node(stmt), Name: l.text(decl.ChildByFieldName("name"))}}

	case "lexical_declaration", "variable_declaration":
		return l.lowerVariables(decl, true)

	case "type_alias_declaration":
		out := l.lowerTypeAlias(decl)
		out.Exported = true
		return []Item{out}

	case "interface_declaration":
		out := l.lowerInterface(decl)
		out.Exported = true
		return []Item{out}

	case "ambient_declaration":
		if inner := namedChildren(decl); len(inner) > 0 {
			return l.lowerExportedDecl(stmt, inner[0])
		}
	}
	return nil
}

// =============================================================================
// VARIABLES
// =============================================================================

// lowerVariables emits one record per declarator. The initializer is
// captured as text only; calls inside it are not emitted separately.
func (l *lowering) lowerVariables(n *sitter.Node, exported bool) []Item {
	kind := "var"
	if n.Type() == "lexical_declaration" {
		if k := n.ChildByFieldName("kind"); k != nil {
			kind = l.text(k)
		} else if cs := children(n); len(cs) > 0 {
			kind = l.text(cs[0])
		}
	}

	var items []Item
	for _, d := range namedChildren(n) {
		if d.Type() != "variable_declarator" {
			continue
		}
		if v := l.lowerDeclarator(n, d, kind); v != nil {
			v.Exported = exported
			items = append(items, v)
		}
	}
	return items
}

func (l *lowering) lowerDeclarator(stmt, d *sitter.Node, kind string) *VariableDeclaration {
	name := d.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	typ := d.ChildByFieldName("type")
	value := d.ChildByFieldName("value")

	pat := l.buildPattern(name, typ)
	names := FlattenNames(pat)
	if names == nil {
		names = []string{}
	}
	primary := ""
	if len(names) > 0 {
		primary = names[0]
	}

	out := &VariableDeclaration{
		Node:     l.node(stmt),
		DeclKind: kind,
		Name:     primary,
		NameSpan: l.subSpan(name),
		Names:    names,
		Inited:   value != nil,
		TypeAnn:  l.typeAnnotationText(typ),
	}

	if value != nil {
		span := l.subSpan(value)
		out.InitText = l.textPtr(value)
		out.InitSpan = &span
		// A rerooted call is really the await or unary expression around it.
		if _, rerooted := calleeOf(value); isPlainCall(value) && !rerooted {
			if fn := value.ChildByFieldName("function"); fn != nil && fn.Type() == "identifier" {
				out.InitCalleeIdent = l.textPtr(fn)
			}
			ta := l.classifyTypeArguments(value.ChildByFieldName("type_arguments"))
			out.TypeParameters = ta.texts
			out.TypeArguments = ta.args
			out.TypeArgumentsText = ta.rendered
		}
	}

	switch sp := ToStructured(pat).(type) {
	case *ArrayBindingPattern:
		out.ArrayPattern = sp
	case *ObjectBindingPattern:
		out.ObjectPattern = sp
	}
	return out
}

// =============================================================================
// FUNCTIONS
// =============================================================================

// lowerFunction summarizes a function declaration or overload signature.
// The body is captured as text and not traversed.
func (l *lowering) lowerFunction(n *sitter.Node) *FunctionDeclaration {
	body := n.ChildByFieldName("body")
	out := &FunctionDeclaration{
		Node:        l.node(n),
		Name:        l.text(n.ChildByFieldName("name")),
		Text:        l.textPtr(n),
		BodyText:    l.textPtr(body),
		IsAsync:     hasToken(n, "async"),
		IsGenerator: n.Type() == "generator_function_declaration" || hasToken(n, "*"),
		Params:      l.lowerParams(n.ChildByFieldName("parameters")),
		ReturnType:  l.typeAnnotationText(n.ChildByFieldName("return_type")),
	}
	return out
}

// lowerParams describes each formal parameter. Destructured parameters keep
// their pattern source as the name.
func (l *lowering) lowerParams(n *sitter.Node) []Param {
	params := []Param{}
	for _, p := range namedChildren(n) {
		switch p.Type() {
		case "required_parameter", "optional_parameter":
			pattern := p.ChildByFieldName("pattern")
			if pattern == nil {
				if inner := namedChildren(p); len(inner) > 0 {
					pattern = inner[0]
				}
			}
			param := l.describeParam(pattern)
			param.Optional = p.Type() == "optional_parameter"
			param.TypeAnn = l.typeAnnotationText(p.ChildByFieldName("type"))
			if value := p.ChildByFieldName("value"); value != nil {
				param.DefaultText = l.textPtr(value)
			}
			params = append(params, param)

		case "identifier", "rest_pattern", "object_pattern", "array_pattern":
			params = append(params, l.describeParam(p))

		case "assignment_pattern":
			param := l.describeParam(p.ChildByFieldName("left"))
			param.DefaultText = l.textPtr(p.ChildByFieldName("right"))
			params = append(params, param)
		}
	}
	return params
}

func (l *lowering) describeParam(pattern *sitter.Node) Param {
	if pattern == nil {
		return Param{}
	}
	if pattern.Type() == "rest_pattern" {
		inner := namedChildren(pattern)
		if len(inner) == 0 {
			return Param{IsRest: true}
		}
		return Param{Name: l.textPtr(inner[0]), IsRest: true}
	}
	return Param{Name: l.textPtr(pattern)}
}

// =============================================================================
// TYPE ALIASES AND INTERFACES
// =============================================================================

// lowerTypeAlias records members only for object-type right-hand sides.
func (l *lowering) lowerTypeAlias(n *sitter.Node) *TypeAliasDeclaration {
	out := &TypeAliasDeclaration{
		Node:    l.node(n),
		ID:      l.text(n.ChildByFieldName("name")),
		Members: []PropertySignature{},
	}
	if value := n.ChildByFieldName("value"); value != nil && value.Type() == "object_type" {
		out.Members = l.propertySignatures(value)
	}
	return out
}

func (l *lowering) lowerInterface(n *sitter.Node) *InterfaceDeclaration {
	out := &InterfaceDeclaration{
		Node:    l.node(n),
		ID:      l.text(n.ChildByFieldName("name")),
		Members: []PropertySignature{},
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		body = firstNamedOfType(n, "interface_body", "object_type")
	}
	if body != nil {
		out.Members = l.propertySignatures(body)
	}
	return out
}

// =============================================================================
// CALLS
// =============================================================================

// isPlainCall reports whether n is an ordinary call. Tagged templates and
// optional calls are distinct expression kinds and are not reported.
func isPlainCall(n *sitter.Node) bool {
	if n.Type() != "call_expression" {
		return false
	}
	if args := n.ChildByFieldName("arguments"); args == nil || args.Type() != "arguments" {
		return false
	}
	if n.ChildByFieldName("optional_chain") != nil {
		return false
	}
	fn, _ := calleeOf(n)
	return !inOptionalChain(fn)
}

// calleeOf returns the callee of a call_expression.
//
// With explicit type arguments the grammar binds a leading await or unary
// operator into the callee, so `await f<T>(x)` parses as a call of
// `await f`. The operand of such prefixes is the real callee and rerooted
// reports that the call starts at it rather than at the call node.
func calleeOf(n *sitter.Node) (fn *sitter.Node, rerooted bool) {
	fn = n.ChildByFieldName("function")
	if n.ChildByFieldName("type_arguments") == nil {
		return fn, false
	}
	for fn != nil {
		var operand *sitter.Node
		switch fn.Type() {
		case "await_expression":
			if inner := namedChildren(fn); len(inner) > 0 {
				operand = inner[len(inner)-1]
			}
		case "unary_expression":
			operand = fn.ChildByFieldName("argument")
		}
		if operand == nil {
			return fn, rerooted
		}
		fn, rerooted = operand, true
	}
	return fn, rerooted
}

// inOptionalChain reports whether a callee expression contains `?.` along
// its member-access spine.
func inOptionalChain(n *sitter.Node) bool {
	for n != nil {
		switch n.Type() {
		case "member_expression", "subscript_expression":
			if n.ChildByFieldName("optional_chain") != nil || firstNamedOfType(n, "optional_chain") != nil {
				return true
			}
			n = n.ChildByFieldName("object")
		case "call_expression":
			if n.ChildByFieldName("optional_chain") != nil {
				return true
			}
			n = n.ChildByFieldName("function")
		default:
			return false
		}
	}
	return false
}

func (l *lowering) lowerCall(n *sitter.Node) *CallExpression {
	out := &CallExpression{
		Node: l.node(n),
		Args: []string{},
		Text: l.textPtr(n),
	}
	fn, rerooted := calleeOf(n)
	if rerooted {
		text := string(l.src[fn.StartByte():n.EndByte()])
		out.Node = l.mapper.Node(spanBetween(fn, n))
		out.Text = &text
	}
	if fn != nil && fn.Type() == "identifier" {
		out.CalleeIdent = l.textPtr(fn)
	}
	for _, a := range namedChildren(n.ChildByFieldName("arguments")) {
		out.Args = append(out.Args, l.text(a))
	}
	ta := l.classifyTypeArguments(n.ChildByFieldName("type_arguments"))
	out.TypeParameters = ta.texts
	out.TypeArguments = ta.args
	out.TypeArgumentsText = ta.rendered
	return out
}
