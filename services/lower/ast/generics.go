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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// typeArgs is the lowered form of an explicit type-argument list.
type typeArgs struct {
	texts    []string
	args     []TypeArgument
	rendered *string
}

// classifyTypeArguments describes each argument of a type_arguments node.
// A nil node or an empty list yields the zero value.
func (l *lowering) classifyTypeArguments(n *sitter.Node) typeArgs {
	if n == nil {
		return typeArgs{}
	}
	params := namedChildren(n)
	if len(params) == 0 {
		return typeArgs{}
	}

	out := typeArgs{
		texts: make([]string, 0, len(params)),
		args:  make([]TypeArgument, 0, len(params)),
	}
	for _, p := range params {
		text := l.text(p)
		out.texts = append(out.texts, text)
		out.args = append(out.args, l.classifyTypeArgument(p, text))
	}
	rendered := RenderTypeArguments(out.texts)
	out.rendered = &rendered
	return out
}

func (l *lowering) classifyTypeArgument(p *sitter.Node, text string) TypeArgument {
	arg := TypeArgument{SourceText: text, Kind: TypeArgOther, LiteralMembers: []PropertySignature{}}

	switch p.Type() {
	case "type_identifier", "nested_type_identifier":
		name := l.qualifiedName(p)
		arg.Kind = TypeArgReference
		arg.ReferencedName = &name

	case "generic_type":
		if nameNode := p.ChildByFieldName("name"); nameNode != nil {
			name := l.qualifiedName(nameNode)
			arg.Kind = TypeArgReference
			arg.ReferencedName = &name
		}

	case "object_type":
		arg.Kind = TypeArgLiteral
		arg.LiteralMembers = l.propertySignatures(p)
	}
	return arg
}

// qualifiedName renders a possibly dotted type name as "A.B.C".
func (l *lowering) qualifiedName(n *sitter.Node) string {
	parts := namedChildren(n)
	if len(parts) == 0 {
		return l.text(n)
	}
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		names = append(names, l.qualifiedName(p))
	}
	return strings.Join(names, ".")
}

// RenderTypeArguments joins argument texts as "<A, B>". Zero arguments
// render as the empty string.
func RenderTypeArguments(texts []string) string {
	if len(texts) == 0 {
		return ""
	}
	return "<" + strings.Join(texts, ", ") + ">"
}

// propertySignatures extracts the property signatures of an object type or
// interface body. Other member kinds are skipped.
func (l *lowering) propertySignatures(body *sitter.Node) []PropertySignature {
	members := []PropertySignature{}
	for _, c := range namedChildren(body) {
		if c.Type() != "property_signature" {
			continue
		}
		members = append(members, PropertySignature{
			Key:      l.signatureKey(c),
			TypeAnn:  l.typeAnnotationText(c.ChildByFieldName("type")),
			Optional: hasToken(c, "?"),
		})
	}
	return members
}

// signatureKey resolves identifier and string keys; anything else falls
// back to the verbatim signature.
func (l *lowering) signatureKey(sig *sitter.Node) string {
	name := sig.ChildByFieldName("name")
	if name == nil {
		return l.text(sig)
	}
	switch name.Type() {
	case "property_identifier", "identifier":
		return l.text(name)
	case "string":
		return l.stringValue(name)
	}
	return l.text(sig)
}
