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
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

var (
	defaultInclude = []string{"**.ts", "**.tsx"}
	defaultExclude = []string{"{node_modules,**/node_modules}/**", "**.d.ts"}
)

// matcher selects source files by slash-separated path relative to a root.
type matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

func newMatcher(include, exclude []string) (*matcher, error) {
	m := &matcher{}
	for _, p := range include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", p, err)
		}
		m.include = append(m.include, g)
	}
	for _, p := range exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

func (m *matcher) excluded(rel string) bool {
	for _, g := range m.exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// excludedDir reports whether everything under a directory is excluded, so
// the walk can skip it.
func (m *matcher) excludedDir(rel string) bool {
	return rel != "." && m.excluded(rel+"/**")
}

func (m *matcher) match(rel string) bool {
	if m.excluded(rel) {
		return false
	}
	for _, g := range m.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// discover walks root and returns matching files in lexical order.
func (m *matcher) discover(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := relSlash(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if m.excludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && m.match(rel) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func relSlash(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// outputPath maps a source file to its JSON file under outDir.
func outputPath(root, outDir, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", path, root)
	}
	return filepath.Join(outDir, rel+".json"), nil
}
