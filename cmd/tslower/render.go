// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/AleutianAI/tslower/services/lower/ast"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(14)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderSummary(path string, size int, s ast.Summary) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(path))
	b.WriteString("  ")
	b.WriteString(labelStyle.UnsetWidth().Render(humanize.Bytes(uint64(size))))
	b.WriteString("\n")

	types := make([]string, 0, len(s.Counts))
	for t := range s.Counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "%s %d\n", labelStyle.Render(strings.TrimSuffix(strings.TrimPrefix(t, "TS"), "Declaration")), s.Counts[t])
	}

	row := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(label), strings.Join(values, ", "))
	}
	row("imports", s.Imports)
	row("declares", s.Declarations)
	row("calls", s.Callees)

	return boxStyle.Render(strings.TrimSuffix(b.String(), "\n")) + "\n"
}

// batchReport is the tally printed after a batch run.
type batchReport struct {
	files    int
	failed   int
	skipped  int
	bytes    int64
	duration time.Duration
}

func renderBatchReport(r batchReport) string {
	status := okStyle.Render("ok")
	if r.failed > 0 {
		status = errStyle.Render(fmt.Sprintf("%d failed", r.failed))
	}
	lines := []string{
		titleStyle.Render("tslower batch") + "  " + status,
		fmt.Sprintf("%s %s", labelStyle.Render("files"), humanize.Comma(int64(r.files))),
		fmt.Sprintf("%s %s", labelStyle.Render("source"), humanize.Bytes(uint64(r.bytes))),
		fmt.Sprintf("%s %s", labelStyle.Render("elapsed"), r.duration.Round(time.Millisecond)),
	}
	if r.skipped > 0 {
		lines = append(lines, fmt.Sprintf("%s %d", labelStyle.Render("skipped"), r.skipped))
	}
	return boxStyle.Render(strings.Join(lines, "\n")) + "\n"
}
