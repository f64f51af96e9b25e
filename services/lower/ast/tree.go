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
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// parseTree parses src with the TypeScript or TSX grammar.
//
// A tree whose root reports errors is rejected with ErrSyntax; the caller
// never sees a partially valid tree. The returned tree must be closed.
func parseTree(ctx context.Context, src []byte, isTsx bool) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()

	if isTsx {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}

	root := tree.RootNode()
	if root == nil || root.HasError() {
		tree.Close()
		return nil, ErrSyntax
	}
	return tree, nil
}

// lowering holds the per-call state shared by every lowerer.
//
// It is created for one source and discarded afterwards; nothing in it is
// shared between calls.
type lowering struct {
	src    []byte
	file   *SourceFile
	mapper Mapper
}

func newLowering(name string, src []byte) *lowering {
	file := NewSourceFile(name, string(src))
	return &lowering{src: src, file: file, mapper: NewMapper(file)}
}

// text returns the verbatim source of n.
func (l *lowering) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(l.src[n.StartByte():n.EndByte()])
}

// textPtr returns the verbatim source of n, or nil when n is nil.
func (l *lowering) textPtr(n *sitter.Node) *string {
	if n == nil {
		return nil
	}
	s := l.text(n)
	return &s
}

func (l *lowering) node(n *sitter.Node) Node {
	return l.mapper.Node(spanOf(n))
}

func (l *lowering) subSpan(n *sitter.Node) SubSpan {
	return l.mapper.Span(spanOf(n))
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		c := n.NamedChild(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// children returns every child of n, named or not, skipping comments.
func children(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.ChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		c := n.Child(i)
		if c == nil || c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// hasToken reports whether n has an anonymous child token of the given kind.
// Named children are ignored so a method called "get" is not mistaken for
// the getter keyword.
func hasToken(n *sitter.Node, tok string) bool {
	for _, c := range children(n) {
		if !c.IsNamed() && c.Type() == tok {
			return true
		}
	}
	return false
}

// firstNamedOfType returns the first named child of n with one of the given kinds.
func firstNamedOfType(n *sitter.Node, kinds ...string) *sitter.Node {
	for _, c := range namedChildren(n) {
		for _, k := range kinds {
			if c.Type() == k {
				return c
			}
		}
	}
	return nil
}

// typeAnnotationText returns the annotation text without its leading colon.
func (l *lowering) typeAnnotationText(n *sitter.Node) *string {
	if n == nil {
		return nil
	}
	if n.Type() == "type_annotation" {
		inner := namedChildren(n)
		if len(inner) == 0 {
			return nil
		}
		return l.textPtr(inner[0])
	}
	return l.textPtr(n)
}
