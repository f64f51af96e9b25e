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

// lowerClass summarizes a class declaration without descending into member
// bodies or field initializers.
func (l *lowering) lowerClass(n *sitter.Node) *ClassDeclaration {
	out := &ClassDeclaration{
		Node:       l.node(n),
		Name:       l.text(n.ChildByFieldName("name")),
		Implements: []string{},
		Decorators: l.decorators(n),
		IsAbstract: n.Type() == "abstract_class_declaration" || hasToken(n, "abstract"),
		Members:    []ClassMember{},
	}

	if heritage := firstNamedOfType(n, "class_heritage"); heritage != nil {
		l.lowerHeritage(heritage, out)
	}

	if body := n.ChildByFieldName("body"); body != nil {
		out.Members = l.lowerClassMembers(body)
	}
	return out
}

// lowerHeritage fills the superclass and implements list. Older grammars put
// the extends expression directly under class_heritage.
func (l *lowering) lowerHeritage(heritage *sitter.Node, out *ClassDeclaration) {
	for _, c := range namedChildren(heritage) {
		switch c.Type() {
		case "extends_clause":
			value := c.ChildByFieldName("value")
			if value == nil {
				if inner := namedChildren(c); len(inner) > 0 {
					value = inner[0]
				}
			}
			out.SuperClass = l.textPtr(value)
		case "implements_clause":
			for _, t := range namedChildren(c) {
				out.Implements = append(out.Implements, l.text(t))
			}
		default:
			if out.SuperClass == nil {
				out.SuperClass = l.textPtr(c)
			}
		}
	}
}

// decorators returns the decorator expressions attached directly to n,
// without the leading "@".
func (l *lowering) decorators(n *sitter.Node) []string {
	out := []string{}
	for _, c := range namedChildren(n) {
		if c.Type() != "decorator" {
			continue
		}
		if inner := namedChildren(c); len(inner) > 0 {
			out = append(out, l.text(inner[0]))
		}
	}
	return out
}

// lowerClassMembers lowers each member of a class body in order. Decorators
// are siblings of the member they decorate and are skipped.
func (l *lowering) lowerClassMembers(body *sitter.Node) []ClassMember {
	members := []ClassMember{}
	for _, c := range namedChildren(body) {
		if c.Type() == "decorator" {
			continue
		}
		members = append(members, l.lowerClassMember(c))
	}
	return members
}

func (l *lowering) lowerClassMember(c *sitter.Node) ClassMember {
	pos := l.node(c)
	isStatic := hasToken(c, "static")

	switch c.Type() {
	case "method_definition", "method_signature", "abstract_method_signature":
		name := c.ChildByFieldName("name")
		key := l.memberKey(c, name)
		switch {
		case !isStatic && isConstructorName(l, name):
			return &ConstructorMember{Node: pos}
		case hasToken(c, "get"):
			return &GetterMember{Node: pos, Key: key, IsStatic: isStatic}
		case hasToken(c, "set"):
			return &SetterMember{Node: pos, Key: key, IsStatic: isStatic}
		}
		return &MethodMember{
			Node:        pos,
			Key:         key,
			IsStatic:    isStatic,
			IsAsync:     hasToken(c, "async"),
			IsGenerator: hasToken(c, "*"),
		}

	case "public_field_definition", "field_definition", "property_signature":
		name := c.ChildByFieldName("name")
		if name == nil {
			name = c.ChildByFieldName("property")
		}
		return &PropertyMember{Node: pos, Key: l.memberKey(c, name), IsStatic: isStatic}

	case "class_static_block":
		return &StaticBlockMember{Node: pos}
	}

	return &PropertyMember{Node: pos}
}

// memberKey applies the shared key rule. Private names resolve to the whole
// member text.
func (l *lowering) memberKey(member, name *sitter.Node) string {
	if name == nil {
		return ""
	}
	key := l.propertyKey(name)
	if key.Private {
		return l.text(member)
	}
	return key.Text
}

func isConstructorName(l *lowering, name *sitter.Node) bool {
	if name == nil {
		return false
	}
	switch name.Type() {
	case "property_identifier":
		return l.text(name) == "constructor"
	case "string":
		return l.stringValue(name) == "constructor"
	}
	return false
}
