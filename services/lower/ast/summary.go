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

import "sort"

// ItemName returns the name a reader would use for item: the declared
// identifier, the module specifier of an import or re-export, or the callee
// of a call. Items without one return "".
func ItemName(item Item) string {
	switch it := item.(type) {
	case *ImportDeclaration:
		return it.Src
	case *ExportNamedDeclaration:
		if it.Src != nil {
			return *it.Src
		}
	case *ExportAllDeclaration:
		return it.Src
	case *ExportFunctionDeclaration:
		return it.Name
	case *ExportClassDeclaration:
		return it.Name
	case *CallExpression:
		if it.CalleeIdent != nil {
			return *it.CalleeIdent
		}
	case *TypeAliasDeclaration:
		return it.ID
	case *InterfaceDeclaration:
		return it.ID
	case *VariableDeclaration:
		return it.Name
	case *FunctionDeclaration:
		return it.Name
	case *ClassDeclaration:
		return it.Name
	}
	return ""
}

// Summary is a compact description of a lowered module.
type Summary struct {
	// Counts is the number of items per JSON type tag.
	Counts map[string]int `json:"counts"`

	// Imports lists imported module specifiers in document order.
	Imports []string `json:"imports"`

	// Declarations lists declared names in document order.
	Declarations []string `json:"declarations"`

	// Callees lists distinct identifier callees, sorted.
	Callees []string `json:"callees"`
}

// Summarize builds a Summary of m.
func Summarize(m *Module) Summary {
	s := Summary{
		Counts:       make(map[string]int),
		Imports:      []string{},
		Declarations: []string{},
		Callees:      []string{},
	}
	seen := make(map[string]bool)
	for _, item := range m.Body {
		s.Counts[item.ItemType()]++
		name := ItemName(item)
		switch item.(type) {
		case *ImportDeclaration:
			s.Imports = append(s.Imports, name)
		case *CallExpression:
			if name != "" && !seen[name] {
				seen[name] = true
				s.Callees = append(s.Callees, name)
			}
		case *VariableDeclaration, *FunctionDeclaration, *ClassDeclaration,
			*TypeAliasDeclaration, *InterfaceDeclaration:
			s.Declarations = append(s.Declarations, name)
		}
	}
	sort.Strings(s.Callees)
	return s
}
