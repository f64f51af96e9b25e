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
	"testing"
)

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestFlattenNames(t *testing.T) {
	p := &ObjectPattern{Props: []ObjectPatternProp{
		{Kind: PropAssign, Key: "a"},
		{Kind: PropKeyValue, Key: "b", Value: &IdentPattern{Name: "c"}},
		{Kind: PropKeyValue, Key: "d", Value: &ArrayPattern{Elements: []Pattern{
			&IdentPattern{Name: "e"},
			nil,
			&AssignPattern{Left: &IdentPattern{Name: "f"}, Default: "1"},
		}}},
		{Kind: PropKeyValue, Key: "g", Value: &OpaquePattern{Text: "this.x"}},
		{Kind: PropRest, Key: "...h", Value: &IdentPattern{Name: "h"}},
	}}

	got := strings.Join(FlattenNames(p), ",")
	if got != "a,c,e,f,h" {
		t.Errorf("expected a,c,e,f,h, got %s", got)
	}

	if names := FlattenNames(&OpaquePattern{Text: "x.y"}); len(names) != 0 {
		t.Errorf("expected no names for opaque pattern, got %v", names)
	}
	if names := FlattenNames(&RestPattern{Arg: &IdentPattern{Name: "r"}}); len(names) != 1 || names[0] != "r" {
		t.Errorf("expected [r], got %v", names)
	}
}

func TestToStructured_NonDestructuring(t *testing.T) {
	if sp := ToStructured(&IdentPattern{Name: "x"}); sp != nil {
		t.Errorf("expected nil for identifier, got %#v", sp)
	}
	if sp := ToStructured(&AssignPattern{Left: &IdentPattern{Name: "x"}, Default: "1"}); sp != nil {
		t.Errorf("expected nil for assign pattern, got %#v", sp)
	}
}

func TestLowerer_ArrayPattern(t *testing.T) {
	mod := lowerModule(t, "const [a, , b = 2, [c, d], ...rest]: T = arr;")
	v := mod.Body[0].(*VariableDeclaration)

	if strings.Join(v.Names, ",") != "a,b,c,d,rest" {
		t.Errorf("unexpected names %v", v.Names)
	}
	if v.Name != "a" {
		t.Errorf("expected primary name a, got %q", v.Name)
	}
	if v.ObjectPattern != nil {
		t.Error("expected no object pattern")
	}
	ap := v.ArrayPattern
	if ap == nil {
		t.Fatal("expected array pattern")
	}
	if strOrEmpty(ap.PatternTypeAnnText) != "T" {
		t.Errorf("expected annotation T, got %q", strOrEmpty(ap.PatternTypeAnnText))
	}
	if len(ap.Elements) != 5 {
		t.Fatalf("expected 5 elements, got %d", len(ap.Elements))
	}

	tests := []struct {
		name    string
		names   string
		def     string
		isRest  bool
		isEmpty bool
	}{
		{name: "a"},
		{isEmpty: true},
		{name: "b", def: "2"},
		{names: "c,d"},
		{name: "rest", isRest: true},
	}
	for i, tt := range tests {
		el := ap.Elements[i]
		if el.Index != i {
			t.Errorf("element %d: index %d", i, el.Index)
		}
		if strOrEmpty(el.Name) != tt.name {
			t.Errorf("element %d: expected name %q, got %q", i, tt.name, strOrEmpty(el.Name))
		}
		if strings.Join(el.Names, ",") != tt.names {
			t.Errorf("element %d: expected names %q, got %v", i, tt.names, el.Names)
		}
		if strOrEmpty(el.DefaultText) != tt.def {
			t.Errorf("element %d: expected default %q, got %q", i, tt.def, strOrEmpty(el.DefaultText))
		}
		if el.IsRest != tt.isRest {
			t.Errorf("element %d: expected rest %v", i, tt.isRest)
		}
		if tt.isEmpty && (el.Name != nil || len(el.Names) != 0) {
			t.Errorf("element %d: expected hole", i)
		}
	}

	if strings.Join(StructuredNames(ap), ",") != strings.Join(v.Names, ",") {
		t.Errorf("structured names %v disagree with flattened names %v", StructuredNames(ap), v.Names)
	}
}

func TestLowerer_ObjectPattern(t *testing.T) {
	mod := lowerModule(t, "const { a, b: c, d = 1, e: { f, g: h = 2 }, i: [j], 'k': l, ...rest } = obj;")
	v := mod.Body[0].(*VariableDeclaration)

	if strings.Join(v.Names, ",") != "a,c,d,f,h,j,l,rest" {
		t.Errorf("unexpected names %v", v.Names)
	}
	op := v.ObjectPattern
	if op == nil {
		t.Fatal("expected object pattern")
	}
	if len(op.Properties) != 7 {
		t.Fatalf("expected 7 properties, got %d", len(op.Properties))
	}

	props := op.Properties
	if props[0].Key != "a" || strOrEmpty(props[0].Alias) != "a" {
		t.Errorf("unexpected shorthand %+v", props[0])
	}
	if props[1].Key != "b" || strOrEmpty(props[1].Alias) != "c" {
		t.Errorf("unexpected rename %+v", props[1])
	}
	if props[2].Key != "d" || strOrEmpty(props[2].DefaultText) != "1" {
		t.Errorf("unexpected default %+v", props[2])
	}
	if props[3].Nested == nil || len(props[3].Nested.Properties) != 2 {
		t.Fatalf("expected nested object pattern, got %+v", props[3])
	}
	inner := props[3].Nested.Properties[1]
	if inner.Key != "g" || strOrEmpty(inner.Alias) != "h" || strOrEmpty(inner.DefaultText) != "2" {
		t.Errorf("unexpected nested property %+v", inner)
	}
	if props[4].Alias != nil || strings.Join(props[4].Names, ",") != "j" {
		t.Errorf("expected array-in-object name fallback, got %+v", props[4])
	}
	if props[5].Key != "k" || strOrEmpty(props[5].Alias) != "l" {
		t.Errorf("expected string key resolved, got %+v", props[5])
	}
	if props[6].Key != "...rest" || strOrEmpty(props[6].Alias) != "rest" {
		t.Errorf("unexpected rest %+v", props[6])
	}

	if strings.Join(StructuredNames(op), ",") != strings.Join(v.Names, ",") {
		t.Errorf("structured names %v disagree with flattened names %v", StructuredNames(op), v.Names)
	}
}
