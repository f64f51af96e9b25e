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
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

// Test data: a component module exercising most top-level forms.
const componentSource = `import { ref, type Ref } from 'vue';
import * as utils from './utils';
import Default, { a as b } from "./mod";

interface Props {
    title: string;
    count?: number;
}

type Emits = { change: string };

const props = defineProps<Props>();
let [first, , third = 3] = list;

function setup(x: number, { y }: Opts, ...rest: string[]): void {
    ref(x);
}

class Widget extends Base implements A, B {
    constructor() { super(); }
    static count = 0;
    get size() { return 1; }
    set size(v) {}
    async *items() {}
}

if (ready) {
    mount(render());
}

export { setup as init };
export * from './all';
export default { name: 'Widget' };
`

func lowerModule(t *testing.T, src string) *Module {
	t.Helper()
	mod, err := NewLowerer().LowerModule(context.Background(), []byte(src), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mod == nil {
		t.Fatal("expected non-nil module")
	}
	return mod
}

func itemTypes(mod *Module) []string {
	out := make([]string, 0, len(mod.Body))
	for _, it := range mod.Body {
		out = append(out, it.ItemType())
	}
	return out
}

func TestLowerer_LowerModule_Empty(t *testing.T) {
	mod := lowerModule(t, "")
	if len(mod.Body) != 0 {
		t.Errorf("expected empty body, got %d items", len(mod.Body))
	}
}

func TestLowerer_LowerModule_ItemOrder(t *testing.T) {
	mod := lowerModule(t, componentSource)

	want := []string{
		"ImportDeclaration",
		"ImportDeclaration",
		"ImportDeclaration",
		"TSInterfaceDeclaration",
		"TSTypeAliasDeclaration",
		"VariableDeclaration",
		"VariableDeclaration",
		"FunctionDeclaration",
		"ClassDeclaration",
		"CallExpression",
		"CallExpression",
		"ExportNamedDeclaration",
		"ExportAllDeclaration",
		"ExportDefaultDeclaration",
	}
	got := itemTypes(mod)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("item order mismatch\n got: %v\nwant: %v", got, want)
	}
}

func TestLowerer_LowerModule_CallBoundary(t *testing.T) {
	t.Run("top-level call is emitted", func(t *testing.T) {
		mod := lowerModule(t, "foo(1);")
		if len(mod.Body) != 1 {
			t.Fatalf("expected 1 item, got %d", len(mod.Body))
		}
		call, ok := mod.Body[0].(*CallExpression)
		if !ok {
			t.Fatalf("expected *CallExpression, got %T", mod.Body[0])
		}
		if call.CalleeIdent == nil || *call.CalleeIdent != "foo" {
			t.Errorf("expected callee foo, got %v", call.CalleeIdent)
		}
		if len(call.Args) != 1 || call.Args[0] != "1" {
			t.Errorf("expected args [1], got %v", call.Args)
		}
	})

	t.Run("call inside function body is not emitted", func(t *testing.T) {
		mod := lowerModule(t, "function f(){ foo(1); }")
		got := itemTypes(mod)
		if len(got) != 1 || got[0] != "FunctionDeclaration" {
			t.Errorf("expected only FunctionDeclaration, got %v", got)
		}
	})

	t.Run("call inside initializer is not emitted", func(t *testing.T) {
		mod := lowerModule(t, "const x = outer(inner());")
		got := itemTypes(mod)
		if len(got) != 1 || got[0] != "VariableDeclaration" {
			t.Errorf("expected only VariableDeclaration, got %v", got)
		}
	})

	t.Run("nested calls in statements are emitted in document order", func(t *testing.T) {
		mod := lowerModule(t, "if (x) { for (;;) { a(b(), c()); } }")
		var callees []string
		for _, it := range mod.Body {
			call := it.(*CallExpression)
			callees = append(callees, *call.CalleeIdent)
		}
		if strings.Join(callees, ",") != "a,b,c" {
			t.Errorf("expected a,b,c, got %v", callees)
		}
	})

	t.Run("enums and namespaces are not searched", func(t *testing.T) {
		mod := lowerModule(t, "enum E { A = f() }\nnamespace N { g(); }\n")
		if len(mod.Body) != 0 {
			t.Errorf("expected no items, got %v", itemTypes(mod))
		}
	})

	t.Run("member callee has no identifier", func(t *testing.T) {
		mod := lowerModule(t, "console.log('x');")
		call := mod.Body[0].(*CallExpression)
		if call.CalleeIdent != nil {
			t.Errorf("expected nil callee ident, got %q", *call.CalleeIdent)
		}
	})
}

func TestLowerer_LowerModule_GenericClassification(t *testing.T) {
	mod := lowerModule(t, "useState<{a: number}>(0);")
	call := mod.Body[0].(*CallExpression)

	if len(call.TypeArguments) != 1 {
		t.Fatalf("expected 1 type argument, got %d", len(call.TypeArguments))
	}
	arg := call.TypeArguments[0]
	if arg.Kind != TypeArgLiteral {
		t.Errorf("expected TypeLiteral, got %s", arg.Kind)
	}
	if len(arg.LiteralMembers) != 1 {
		t.Fatalf("expected 1 literal member, got %d", len(arg.LiteralMembers))
	}
	m := arg.LiteralMembers[0]
	if m.Key != "a" || m.TypeAnn == nil || *m.TypeAnn != "number" || m.Optional {
		t.Errorf("unexpected member %+v", m)
	}
	if call.TypeArgumentsText == nil || *call.TypeArgumentsText != "<{a: number}>" {
		t.Errorf("unexpected rendered text %v", call.TypeArgumentsText)
	}
}

func TestLowerer_LowerModule_TypeReferences(t *testing.T) {
	mod := lowerModule(t, "f<Foo, NS.Bar, Map<K, V>, string>();")
	call := mod.Body[0].(*CallExpression)

	wantKinds := []TypeArgKind{TypeArgReference, TypeArgReference, TypeArgReference, TypeArgOther}
	wantNames := []string{"Foo", "NS.Bar", "Map", ""}
	if len(call.TypeArguments) != len(wantKinds) {
		t.Fatalf("expected %d type arguments, got %d", len(wantKinds), len(call.TypeArguments))
	}
	for i, arg := range call.TypeArguments {
		if arg.Kind != wantKinds[i] {
			t.Errorf("arg %d: expected kind %s, got %s", i, wantKinds[i], arg.Kind)
		}
		name := ""
		if arg.ReferencedName != nil {
			name = *arg.ReferencedName
		}
		if name != wantNames[i] {
			t.Errorf("arg %d: expected name %q, got %q", i, wantNames[i], name)
		}
	}
	if got := strings.Join(call.TypeParameters, "|"); got != "Foo|NS.Bar|Map<K, V>|string" {
		t.Errorf("unexpected type parameter texts %q", got)
	}
}

func TestLowerer_LowerModule_Variable(t *testing.T) {
	mod := lowerModule(t, "const props = defineProps<Props>();")
	v := mod.Body[0].(*VariableDeclaration)

	if v.DeclKind != "const" {
		t.Errorf("expected const, got %q", v.DeclKind)
	}
	if v.Name != "props" {
		t.Errorf("expected name props, got %q", v.Name)
	}
	if !v.Inited || v.InitText == nil || *v.InitText != "defineProps<Props>()" {
		t.Errorf("unexpected init text %v", v.InitText)
	}
	if v.InitCalleeIdent == nil || *v.InitCalleeIdent != "defineProps" {
		t.Errorf("unexpected init callee %v", v.InitCalleeIdent)
	}
	if len(v.TypeParameters) != 1 || v.TypeParameters[0] != "Props" {
		t.Errorf("unexpected type parameters %v", v.TypeParameters)
	}
	if v.NameSpan.Start != 6 || v.NameSpan.End != 11 {
		t.Errorf("unexpected name span %+v", v.NameSpan)
	}
	if v.InitSpan == nil || v.InitSpan.Start != 14 {
		t.Errorf("unexpected init span %+v", v.InitSpan)
	}
}

func TestLowerer_LowerModule_VariablePerDeclarator(t *testing.T) {
	mod := lowerModule(t, "let a = 1, b;")
	if len(mod.Body) != 2 {
		t.Fatalf("expected 2 items, got %d", len(mod.Body))
	}
	a := mod.Body[0].(*VariableDeclaration)
	b := mod.Body[1].(*VariableDeclaration)
	if a.Name != "a" || !a.Inited {
		t.Errorf("unexpected first declarator %+v", a)
	}
	if b.Name != "b" || b.Inited || b.InitText != nil {
		t.Errorf("unexpected second declarator %+v", b)
	}
}

func TestLowerer_LowerModule_Function(t *testing.T) {
	src := "async function* load(id: string, opt = 1, { a }: O, ...rest: T[]): Promise<void> { body(); }"
	mod := lowerModule(t, src)
	fn := mod.Body[0].(*FunctionDeclaration)

	if fn.Name != "load" || !fn.IsAsync || !fn.IsGenerator {
		t.Errorf("unexpected function header %+v", fn)
	}
	if fn.Text == nil || *fn.Text != src {
		t.Errorf("expected text to be whole function, got %v", fn.Text)
	}
	if fn.BodyText == nil || *fn.BodyText != "{ body(); }" {
		t.Errorf("unexpected body text %v", fn.BodyText)
	}
	if fn.ReturnType == nil || *fn.ReturnType != "Promise<void>" {
		t.Errorf("unexpected return type %v", fn.ReturnType)
	}
	if len(fn.Params) != 4 {
		t.Fatalf("expected 4 params, got %d", len(fn.Params))
	}
	if *fn.Params[0].Name != "id" || *fn.Params[0].TypeAnn != "string" {
		t.Errorf("unexpected param 0 %+v", fn.Params[0])
	}
	if *fn.Params[1].Name != "opt" || fn.Params[1].DefaultText == nil || *fn.Params[1].DefaultText != "1" {
		t.Errorf("unexpected param 1 %+v", fn.Params[1])
	}
	if *fn.Params[2].Name != "{ a }" {
		t.Errorf("expected destructured param to keep pattern text, got %q", *fn.Params[2].Name)
	}
	if !fn.Params[3].IsRest || *fn.Params[3].Name != "rest" {
		t.Errorf("unexpected rest param %+v", fn.Params[3])
	}
}

func TestLowerer_LowerModule_Class(t *testing.T) {
	src := `@Component({})
class Widget extends Base implements A, B {
    constructor() { super(); }
    static count = 0;
    get size() { return 1; }
    set size(v) {}
    async *items() {}
    #secret() {}
    [key]() {}
    'quoted'() {}
    0x10() {}
}`
	mod := lowerModule(t, src)
	if len(mod.Body) != 1 {
		t.Fatalf("expected 1 item, got %v", itemTypes(mod))
	}
	cls := mod.Body[0].(*ClassDeclaration)

	if cls.Name != "Widget" {
		t.Errorf("expected Widget, got %q", cls.Name)
	}
	if cls.SuperClass == nil || *cls.SuperClass != "Base" {
		t.Errorf("unexpected super class %v", cls.SuperClass)
	}
	if strings.Join(cls.Implements, ",") != "A,B" {
		t.Errorf("unexpected implements %v", cls.Implements)
	}
	if len(cls.Decorators) != 1 || cls.Decorators[0] != "Component({})" {
		t.Errorf("unexpected decorators %v", cls.Decorators)
	}

	wantTypes := []string{"Constructor", "Property", "Getter", "Setter", "Method", "Method", "Method", "Method", "Method"}
	if len(cls.Members) != len(wantTypes) {
		t.Fatalf("expected %d members, got %d", len(wantTypes), len(cls.Members))
	}
	for i, m := range cls.Members {
		if m.MemberType() != wantTypes[i] {
			t.Errorf("member %d: expected %s, got %s", i, wantTypes[i], m.MemberType())
		}
	}

	if p := cls.Members[1].(*PropertyMember); p.Key != "count" || !p.IsStatic {
		t.Errorf("unexpected property %+v", p)
	}
	if m := cls.Members[4].(*MethodMember); m.Key != "items" || !m.IsAsync || !m.IsGenerator {
		t.Errorf("unexpected method %+v", m)
	}
	if m := cls.Members[5].(*MethodMember); m.Key != "#secret() {}" {
		t.Errorf("expected private key to fall back to member text, got %q", m.Key)
	}
	if m := cls.Members[6].(*MethodMember); m.Key != "key" {
		t.Errorf("expected computed key text, got %q", m.Key)
	}
	if m := cls.Members[7].(*MethodMember); m.Key != "quoted" {
		t.Errorf("expected string key value, got %q", m.Key)
	}
	if m := cls.Members[8].(*MethodMember); m.Key != "16" {
		t.Errorf("expected decimal numeric key, got %q", m.Key)
	}
}

func TestLowerer_LowerModule_ImportsAndExports(t *testing.T) {
	src := `import Default, { a as b, c } from "./mod";
import type { T } from './types';
import './side-effect';
export { x as y, z };
export * as ns from './ns';
export * from './all';
export function f() {}
export class C {}
export const k = 1;
export default { name: 'x' };
`
	mod := lowerModule(t, src)

	imp := mod.Body[0].(*ImportDeclaration)
	if imp.Src != "./mod" || len(imp.Specifiers) != 3 {
		t.Fatalf("unexpected import %+v", imp)
	}
	if d, ok := imp.Specifiers[0].(*ImportDefaultSpecifier); !ok || d.Local != "Default" {
		t.Errorf("unexpected default specifier %#v", imp.Specifiers[0])
	}
	named := imp.Specifiers[1].(*ImportNamedSpecifier)
	if named.Local != "b" || named.Imported == nil || named.Imported.Value != "a" {
		t.Errorf("unexpected aliased specifier %+v", named)
	}
	if plain := imp.Specifiers[2].(*ImportNamedSpecifier); plain.Local != "c" || plain.Imported != nil {
		t.Errorf("unexpected plain specifier %+v", plain)
	}

	if typed := mod.Body[1].(*ImportDeclaration); !typed.IsTypeOnly {
		t.Error("expected type-only import")
	}
	if side := mod.Body[2].(*ImportDeclaration); len(side.Specifiers) != 0 || side.Src != "./side-effect" {
		t.Errorf("unexpected side-effect import %+v", side)
	}

	named2 := mod.Body[3].(*ExportNamedDeclaration)
	if named2.Src != nil || len(named2.Specifiers) != 2 {
		t.Fatalf("unexpected named export %+v", named2)
	}
	first := named2.Specifiers[0].(*ExportNamedSpecifier)
	if first.Local == nil || *first.Local != "x" || first.Exported.Value != "y" {
		t.Errorf("unexpected export specifier %+v", first)
	}

	nsExport := mod.Body[4].(*ExportNamedDeclaration)
	if nsExport.Src == nil || *nsExport.Src != "./ns" {
		t.Errorf("unexpected namespace export source %v", nsExport.Src)
	}
	if ns, ok := nsExport.Specifiers[0].(*ExportNamespaceSpecifier); !ok || ns.Exported.Value != "ns" {
		t.Errorf("unexpected namespace specifier %#v", nsExport.Specifiers[0])
	}

	if all := mod.Body[5].(*ExportAllDeclaration); all.Src != "./all" {
		t.Errorf("unexpected export all %+v", all)
	}
	if fn := mod.Body[6].(*ExportFunctionDeclaration); fn.Name != "f" {
		t.Errorf("unexpected exported function %+v", fn)
	}
	if cls := mod.Body[7].(*ExportClassDeclaration); cls.Name != "C" {
		t.Errorf("unexpected exported class %+v", cls)
	}
	if v := mod.Body[8].(*VariableDeclaration); v.Name != "k" || !v.Exported {
		t.Errorf("unexpected exported variable %+v", v)
	}

	def := mod.Body[9].(*ExportDefaultDeclaration)
	if def.ObjSpan == nil {
		t.Fatal("expected obj_span for object default export")
	}
	start, end := def.ObjSpan.Start, def.ObjSpan.End
	if got := src[start:end]; got != "{ name: 'x' }" {
		t.Errorf("obj_span slices to %q", got)
	}
}

func TestLowerer_LowerModule_TypeAliasAndInterface(t *testing.T) {
	src := `type A = { 'x-y': string; z?: number };
type B = string | number;
interface C { id: number; run(): void }
`
	mod := lowerModule(t, src)

	a := mod.Body[0].(*TypeAliasDeclaration)
	if a.ID != "A" || len(a.Members) != 2 {
		t.Fatalf("unexpected alias %+v", a)
	}
	if a.Members[0].Key != "x-y" || a.Members[1].Key != "z" || !a.Members[1].Optional {
		t.Errorf("unexpected alias members %+v", a.Members)
	}

	b := mod.Body[1].(*TypeAliasDeclaration)
	if b.ID != "B" || len(b.Members) != 0 || b.Members == nil {
		t.Errorf("expected empty non-nil members for union alias, got %+v", b.Members)
	}

	c := mod.Body[2].(*InterfaceDeclaration)
	if c.ID != "C" || len(c.Members) != 1 || c.Members[0].Key != "id" {
		t.Errorf("unexpected interface %+v", c)
	}
}

func TestLowerer_LowerModule_PositionsSliceSource(t *testing.T) {
	mod := lowerModule(t, componentSource)
	for _, it := range mod.Body {
		pos := it.Position()
		if pos.Start > pos.End || int(pos.End) > len(componentSource) {
			t.Fatalf("%s: invalid range [%d,%d)", it.ItemType(), pos.Start, pos.End)
		}
		if call, ok := it.(*CallExpression); ok {
			if got := componentSource[pos.Start:pos.End]; got != *call.Text {
				t.Errorf("call slice %q != text %q", got, *call.Text)
			}
		}
		if pos.Loc.Filename != DefaultSourceName {
			t.Errorf("expected filename %q, got %q", DefaultSourceName, pos.Loc.Filename)
		}
	}
}

func TestLowerer_LowerModule_NestedSpansInsideItem(t *testing.T) {
	src := componentSource + "export const { a, b: c = 2 } = await load<Cfg>('/x');\n"
	mod := lowerModule(t, src)

	inside := func(what string, item Node, start, end uint32) {
		t.Helper()
		if start > end || start < item.Start || end > item.End {
			t.Errorf("%s [%d,%d) outside item [%d,%d)", what, start, end, item.Start, item.End)
		}
	}

	var vars, funcs, classes, defaults int
	for _, it := range mod.Body {
		pos := it.Position()
		switch v := it.(type) {
		case *VariableDeclaration:
			vars++
			inside(v.Name+" name_span", pos, v.NameSpan.Start, v.NameSpan.End)
			if v.InitSpan == nil || v.InitText == nil {
				t.Errorf("%s: expected initializer span and text", v.Name)
				continue
			}
			inside(v.Name+" init_span", pos, v.InitSpan.Start, v.InitSpan.End)
			if got := src[v.InitSpan.Start:v.InitSpan.End]; got != *v.InitText {
				t.Errorf("%s: init slice %q != init_text %q", v.Name, got, *v.InitText)
			}
		case *FunctionDeclaration:
			funcs++
			if got := src[pos.Start:pos.End]; v.Text == nil || got != *v.Text {
				t.Errorf("%s: function slice %q != text %v", v.Name, got, v.Text)
			}
		case *ClassDeclaration:
			classes++
			for _, m := range v.Members {
				mp := m.Position()
				inside(v.Name+" "+m.MemberType(), pos, mp.Start, mp.End)
			}
		case *ExportDefaultDeclaration:
			defaults++
			if v.ObjSpan == nil {
				t.Error("expected obj_span on object default export")
				continue
			}
			inside("obj_span", pos, v.ObjSpan.Start, v.ObjSpan.End)
		}
	}
	if vars != 3 || funcs != 1 || classes != 1 || defaults != 1 {
		t.Errorf("unexpected item mix: %d vars, %d funcs, %d classes, %d defaults", vars, funcs, classes, defaults)
	}
}

func TestLowerer_LowerModule_PrefixedGenericCalls(t *testing.T) {
	tests := []struct {
		src        string
		callee     string
		text       string
		typeParams []string
	}{
		{"x = await fetch<T>(url);", "fetch", "fetch<T>(url)", []string{"T"}},
		{"void foo<T>(1);", "foo", "foo<T>(1)", []string{"T"}},
		{"typeof bar<A, B>();", "bar", "bar<A, B>()", []string{"A", "B"}},
		{"await fetch(url);", "fetch", "fetch(url)", nil},
	}
	for _, tt := range tests {
		mod := lowerModule(t, tt.src)
		if len(mod.Body) != 1 {
			t.Errorf("%s: expected one item, got %v", tt.src, itemTypes(mod))
			continue
		}
		call, ok := mod.Body[0].(*CallExpression)
		if !ok {
			t.Errorf("%s: expected CallExpression, got %s", tt.src, mod.Body[0].ItemType())
			continue
		}
		if call.CalleeIdent == nil || *call.CalleeIdent != tt.callee {
			t.Errorf("%s: expected callee %q, got %v", tt.src, tt.callee, call.CalleeIdent)
		}
		if call.Text == nil || *call.Text != tt.text {
			t.Errorf("%s: expected text %q, got %v", tt.src, tt.text, call.Text)
		}
		if got := tt.src[call.Start:call.End]; got != tt.text {
			t.Errorf("%s: position slices %q", tt.src, got)
		}
		if len(call.TypeParameters) != len(tt.typeParams) {
			t.Errorf("%s: expected type params %v, got %v", tt.src, tt.typeParams, call.TypeParameters)
			continue
		}
		for i := range tt.typeParams {
			if call.TypeParameters[i] != tt.typeParams[i] {
				t.Errorf("%s: expected type params %v, got %v", tt.src, tt.typeParams, call.TypeParameters)
			}
		}
	}

	src := "const d = await useFetch<D>('/a');\nconst e = useFetch<D>('/a');"
	mod := lowerModule(t, src)
	if len(mod.Body) != 2 {
		t.Fatalf("expected two declarations, got %v", itemTypes(mod))
	}

	d := mod.Body[0].(*VariableDeclaration)
	if d.InitCalleeIdent != nil {
		t.Errorf("awaited initializer should have no callee, got %q", *d.InitCalleeIdent)
	}
	if len(d.TypeParameters) != 0 {
		t.Errorf("awaited initializer should have no type params, got %v", d.TypeParameters)
	}
	if d.InitText == nil || *d.InitText != "await useFetch<D>('/a')" {
		t.Errorf("unexpected init text %v", d.InitText)
	}

	e := mod.Body[1].(*VariableDeclaration)
	if e.InitCalleeIdent == nil || *e.InitCalleeIdent != "useFetch" {
		t.Errorf("expected callee useFetch, got %v", e.InitCalleeIdent)
	}
	if len(e.TypeParameters) != 1 || e.TypeParameters[0] != "D" {
		t.Errorf("expected type params [D], got %v", e.TypeParameters)
	}
}

func TestLowerer_ParseExpression_NumericOverflow(t *testing.T) {
	lw := NewLowerer()
	for _, src := range []string{"1e400", "[1, 1e400]"} {
		out := lw.ParseExpression(context.Background(), &src, false)
		if out == nil {
			t.Fatalf("%s: expected sentinel, got nil", src)
		}
		if out.String() != `{"error":"parse failed"}` {
			t.Errorf("%s: expected parse failed sentinel, got %q", src, out.String())
		}
		out.Release()
	}
}

func TestLowerer_LowerModule_CharacterColumns(t *testing.T) {
	src := "const s = \"héllo\"; foo();\n  bar();"
	mod := lowerModule(t, src)

	foo := mod.Body[1].(*CallExpression)
	if foo.Loc.Start.Line != 1 || foo.Loc.Start.Column != 19 {
		t.Errorf("expected foo at 1:19, got %d:%d", foo.Loc.Start.Line, foo.Loc.Start.Column)
	}
	if int(foo.Start) != strings.Index(src, "foo") {
		t.Errorf("expected byte offset %d, got %d", strings.Index(src, "foo"), foo.Start)
	}

	bar := mod.Body[2].(*CallExpression)
	if bar.Loc.Start.Line != 2 || bar.Loc.Start.Column != 2 {
		t.Errorf("expected bar at 2:2, got %d:%d", bar.Loc.Start.Line, bar.Loc.Start.Column)
	}
}

func TestLowerer_LowerModule_Errors(t *testing.T) {
	lw := NewLowerer(WithMaxSourceSize(16))

	if _, err := lw.LowerModule(context.Background(), nil, Options{}); !errors.Is(err, ErrNilSource) {
		t.Errorf("expected ErrNilSource, got %v", err)
	}
	if _, err := lw.LowerModule(context.Background(), []byte{0xff, 0xfe}, Options{}); !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
	if _, err := lw.LowerModule(context.Background(), []byte(strings.Repeat("a", 17)), Options{}); !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("expected ErrSourceTooLarge, got %v", err)
	}
	if _, err := lw.LowerModule(context.Background(), []byte("const = ;"), Options{}); !errors.Is(err, ErrSyntax) {
		t.Errorf("expected ErrSyntax, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := lw.LowerModule(ctx, []byte("f()"), Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestLowerer_LowerModule_TSX(t *testing.T) {
	src := "render(<App title=\"x\" />);"
	mod, err := NewLowerer().LowerModule(context.Background(), []byte(src), Options{IsTsx: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mod.Body) != 1 || mod.Body[0].ItemType() != "CallExpression" {
		t.Errorf("expected a single call, got %v", itemTypes(mod))
	}
}

func TestLowerer_ParseModule_Boundary(t *testing.T) {
	lw := NewLowerer()
	ctx := context.Background()

	if out := lw.ParseModule(ctx, nil, false, false); out != nil {
		t.Errorf("expected nil for absent source, got %q", out.String())
	}

	invalid := string([]byte{0xc3, 0x28})
	if out := lw.ParseModule(ctx, &invalid, false, false); out != nil {
		t.Errorf("expected nil for invalid UTF-8, got %q", out.String())
	}

	broken := "function ("
	out := lw.ParseModule(ctx, &broken, false, false)
	if out == nil || !out.IsError() {
		t.Fatalf("expected error sentinel, got %v", out)
	}
	if out.String() != `{"error":"parse failed"}` {
		t.Errorf("unexpected sentinel %q", out.String())
	}
	out.Release()

	empty := ""
	out = lw.ParseModule(ctx, &empty, false, false)
	if out.String() != `{"body":[]}` {
		t.Errorf("expected empty body, got %q", out.String())
	}
	out.Release()
}

func TestLowerer_ParseModule_JSONShape(t *testing.T) {
	src := "foo<Bar>(1, 'two');"
	out := NewLowerer().ParseModule(context.Background(), &src, false, false)
	defer out.Release()

	var doc struct {
		Body []map[string]any `json:"body"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(doc.Body) != 1 {
		t.Fatalf("expected 1 item, got %d", len(doc.Body))
	}
	item := doc.Body[0]
	if item["type"] != "CallExpression" {
		t.Errorf("expected type CallExpression, got %v", item["type"])
	}
	if item["callee_ident"] != "foo" {
		t.Errorf("unexpected callee %v", item["callee_ident"])
	}
	loc, ok := item["loc"].(map[string]any)
	if !ok || loc["filename"] != "input.ts" {
		t.Errorf("unexpected loc %v", item["loc"])
	}
	if !bytes.Contains(out.Bytes(), []byte(`"type_arguments_text":"<Bar>"`)) {
		t.Errorf("expected unescaped type argument text in %s", out.Bytes())
	}
}

func TestLowerer_ParseModule_Deterministic(t *testing.T) {
	lw := NewLowerer()
	src := componentSource

	a := lw.ParseModule(context.Background(), &src, false, false)
	b := lw.ParseModule(context.Background(), &src, false, false)
	defer a.Release()
	defer b.Release()

	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("expected byte-identical output for identical input")
	}
}

func TestLowerer_ParseModule_Concurrent(t *testing.T) {
	lw := NewLowerer()
	src := componentSource

	want := lw.ParseModule(context.Background(), &src, false, false)
	defer want.Release()

	var wg sync.WaitGroup
	errs := make(chan string, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := lw.ParseModule(context.Background(), &src, false, false)
			defer got.Release()
			if !bytes.Equal(got.Bytes(), want.Bytes()) {
				errs <- "concurrent output differs"
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestBuffer_Release(t *testing.T) {
	src := "foo();"
	out := NewLowerer().ParseModule(context.Background(), &src, false, false)
	if len(out.Bytes()) == 0 {
		t.Fatal("expected payload")
	}

	out.Release()
	out.Release()
	if out.Bytes() != nil {
		t.Error("expected nil bytes after release")
	}

	var nilBuf *Buffer
	nilBuf.Release()
}

func TestLowerer_Lower_ReportsCause(t *testing.T) {
	lw := NewLowerer(WithMaxSourceSize(16))
	ctx := context.Background()

	if out, err := lw.Lower(ctx, ModeModule, nil, Options{}); out != nil || !errors.Is(err, ErrNilSource) {
		t.Errorf("nil source: got %v, %v", out, err)
	}

	big := strings.Repeat("a", 17)
	if out, err := lw.Lower(ctx, ModeModule, &big, Options{}); out != nil || !errors.Is(err, ErrSourceTooLarge) {
		t.Errorf("oversized source: got %v, %v", out, err)
	}

	bad := "let = ;"
	out, err := lw.Lower(ctx, ModeModule, &bad, Options{})
	if !errors.Is(err, ErrSyntax) || !out.IsError() {
		t.Errorf("syntax error: got %v, %v", out, err)
	}

	expr := "[1]"
	out, err = lw.Lower(ctx, ModeExpression, &expr, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer out.Release()
	if !strings.HasPrefix(out.String(), `{"expr":`) {
		t.Errorf("unexpected payload %s", out.String())
	}
}
