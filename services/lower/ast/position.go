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
	"sort"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// DefaultSourceName is the virtual file name reported in every location.
const DefaultSourceName = "input.ts"

// =============================================================================
// RAW SPANS
// =============================================================================

// Span is a raw parser span.
//
// Lo is one past the zero-based start byte (the parser reserves position 0 as
// a sentinel), Hi is the zero-based exclusive end byte. For a node covering
// source[s:e], Lo == s+1 and Hi == e.
type Span struct {
	Lo uint32
	Hi uint32
}

// spanOf returns the raw span of a tree-sitter node.
func spanOf(n *sitter.Node) Span {
	return Span{Lo: n.StartByte() + 1, Hi: n.EndByte()}
}

// spanBetween returns the raw span from the start of a to the end of b.
func spanBetween(a, b *sitter.Node) Span {
	return Span{Lo: a.StartByte() + 1, Hi: b.EndByte()}
}

// Bytes returns the zero-based half-open byte range [start, end).
func (s Span) Bytes() (start, end uint32) {
	start = s.Lo
	if start > 0 {
		start--
	}
	return start, s.Hi
}

// =============================================================================
// SOURCE INDEX
// =============================================================================

// SourceFile answers line/column queries over a single source text.
//
// Description:
//
//	Line starts are computed once. Lines are 1-based; columns are 0-based
//	and counted in characters, not bytes.
//
// Thread Safety:
//
//	Immutable after construction; safe for concurrent use.
type SourceFile struct {
	name       string
	src        string
	lineStarts []uint32
}

// NewSourceFile indexes src under the given virtual name.
func NewSourceFile(name, src string) *SourceFile {
	starts := make([]uint32, 1, 64)
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			starts = append(starts, uint32(i+1))
		}
	}
	return &SourceFile{name: name, src: src, lineStarts: starts}
}

// Name returns the virtual source name.
func (f *SourceFile) Name() string { return f.name }

// Lookup returns the line (1-based) and character column (0-based) of a byte offset.
// Offsets past the end of the source clamp to the end.
func (f *SourceFile) Lookup(offset uint32) LineCol {
	if int(offset) > len(f.src) {
		offset = uint32(len(f.src))
	}
	line := sort.Search(len(f.lineStarts), func(i int) bool {
		return f.lineStarts[i] > offset
	}) - 1
	lineStart := f.lineStarts[line]
	return LineCol{
		Line:   line + 1,
		Column: utf8.RuneCountInString(f.src[lineStart:offset]),
	}
}

// Slice returns the verbatim text of a raw span.
func (f *SourceFile) Slice(s Span) string {
	start, end := s.Bytes()
	if int(end) > len(f.src) {
		end = uint32(len(f.src))
	}
	if start > end {
		return ""
	}
	return f.src[start:end]
}

// =============================================================================
// OUTPUT POSITIONS
// =============================================================================

// LineCol is a human position.
type LineCol struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SourceLocation is the "loc" block of a node position.
type SourceLocation struct {
	Start          LineCol `json:"start"`
	End            LineCol `json:"end"`
	Filename       string  `json:"filename"`
	IdentifierName *string `json:"identifierName"`
}

// Node is the position carried by every lowered item. It is embedded in
// item structs so its fields are flattened into their JSON objects.
type Node struct {
	Start uint32         `json:"start"`
	End   uint32         `json:"end"`
	Loc   SourceLocation `json:"loc"`
}

// Position returns the node position itself. Items embed Node, so this
// promotes to every item type.
func (n Node) Position() Node { return n }

// SubSpan is the position form used for nested spans such as name_span.
type SubSpan struct {
	Start    uint32  `json:"start"`
	End      uint32  `json:"end"`
	LocStart LineCol `json:"loc_start"`
	LocEnd   LineCol `json:"loc_end"`
}

// Mapper converts raw spans into output positions for one source.
type Mapper struct {
	file *SourceFile
}

// NewMapper creates a Mapper over an indexed source.
func NewMapper(file *SourceFile) Mapper {
	return Mapper{file: file}
}

// Node converts a raw span into a node position.
func (m Mapper) Node(s Span) Node {
	start, end := s.Bytes()
	return Node{
		Start: start,
		End:   end,
		Loc: SourceLocation{
			Start:    m.file.Lookup(start),
			End:      m.file.Lookup(end),
			Filename: m.file.Name(),
		},
	}
}

// Span converts a raw span into a sub-span position.
func (m Mapper) Span(s Span) SubSpan {
	start, end := s.Bytes()
	return SubSpan{
		Start:    start,
		End:      end,
		LocStart: m.file.Lookup(start),
		LocEnd:   m.file.Lookup(end),
	}
}
