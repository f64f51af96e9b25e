// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package changes maps unified diffs onto lowered module items.
//
// Given the post-change source of a file and the diff that produced it, the
// package reports which top-level items (imports, declarations, calls) the
// change touched. Line numbers refer to the new side of the diff, which is
// the side that was lowered.
package changes

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/tslower/services/lower/ast"
)

// ErrNoFileDiffs is returned when a diff contains no file sections.
var ErrNoFileDiffs = errors.New("diff contains no files")

// LineRange is an inclusive 1-based line range on the new side of a diff.
//
// A hunk that only deletes lines has no new-side lines; it is represented
// by the single line where the deletion happened.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps reports whether r and [start, end] share a line.
func (r LineRange) Overlaps(start, end int) bool {
	return r.Start <= end && start <= r.End
}

// FileChanges lists the changed ranges of one file.
type FileChanges struct {
	// Path is the new-side file name with any a/ or b/ prefix removed.
	Path   string      `json:"path"`
	Ranges []LineRange `json:"ranges"`

	// Deleted is true when the file no longer exists after the change.
	Deleted bool `json:"deleted,omitempty"`
}

// AffectedItem is one lowered item overlapping a changed range.
type AffectedItem struct {
	// Index is the position of the item in the module body.
	Index     int    `json:"index"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// ParseDiff parses a unified diff that may span several files.
func ParseDiff(data []byte) ([]FileChanges, error) {
	fds, err := diff.ParseMultiFileDiff(data)
	if err != nil {
		return nil, fmt.Errorf("parse diff: %w", err)
	}
	if len(fds) == 0 {
		return nil, ErrNoFileDiffs
	}

	out := make([]FileChanges, 0, len(fds))
	for _, fd := range fds {
		out = append(out, fileChanges(fd))
	}
	return out, nil
}

func fileChanges(fd *diff.FileDiff) FileChanges {
	fc := FileChanges{
		Path:    cleanPath(fd.NewName),
		Ranges:  []LineRange{},
		Deleted: fd.NewName == "/dev/null",
	}
	if fc.Deleted {
		fc.Path = cleanPath(fd.OrigName)
	}
	for _, h := range fd.Hunks {
		fc.Ranges = append(fc.Ranges, hunkRanges(h)...)
	}
	return fc
}

// hunkRanges narrows a hunk to the lines it actually adds, dropping context.
// Runs of deletions become a single-line range at the following new line.
func hunkRanges(h *diff.Hunk) []LineRange {
	var ranges []LineRange
	line := int(h.NewStartLine)
	add := func(start, end int) {
		if n := len(ranges); n > 0 && ranges[n-1].End >= start-1 {
			if end > ranges[n-1].End {
				ranges[n-1].End = end
			}
			return
		}
		ranges = append(ranges, LineRange{Start: start, End: end})
	}

	body := strings.TrimSuffix(string(h.Body), "\n")
	if body == "" {
		start := max(line, 1)
		return []LineRange{{Start: start, End: start}}
	}
	for _, l := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(l, "+"):
			add(line, line)
			line++
		case strings.HasPrefix(l, "-"):
			at := max(line, 1)
			add(at, at)
		case strings.HasPrefix(l, `\`):
			// "\ No newline at end of file"
		default:
			line++
		}
	}
	return ranges
}

func cleanPath(name string) string {
	for _, p := range []string{"a/", "b/"} {
		if strings.HasPrefix(name, p) {
			return name[len(p):]
		}
	}
	return name
}

// Affected returns the items of m that overlap any of ranges, in body order.
func Affected(m *ast.Module, ranges []LineRange) []AffectedItem {
	out := []AffectedItem{}
	if m == nil || len(ranges) == 0 {
		return out
	}
	sorted := append([]LineRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	for i, item := range m.Body {
		pos := item.Position()
		start, end := pos.Loc.Start.Line, pos.Loc.End.Line
		for _, r := range sorted {
			if r.Start > end {
				break
			}
			if r.Overlaps(start, end) {
				out = append(out, AffectedItem{
					Index:     i,
					Type:      item.ItemType(),
					Name:      ast.ItemName(item),
					StartLine: start,
					EndLine:   end,
				})
				break
			}
		}
	}
	return out
}
