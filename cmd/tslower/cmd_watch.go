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
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tslower/services/lower/ast"
)

const defaultDebounce = 200 * time.Millisecond

// watchLine is emitted for every lowered or removed file.
type watchLine struct {
	Path    string          `json:"path"`
	Removed bool            `json:"removed,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newWatchCmd(a *app) *cobra.Command {
	var (
		include  []string
		exclude  []string
		debounce time.Duration
		initial  bool
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Lower matching files whenever they change",
		Long: `Lower matching files whenever they change.

Each change is written to stdout as one {"path","result"} JSON line.
Removed files produce {"path","removed":true}. Runs until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := newMatcher(include, exclude)
			if err != nil {
				return err
			}
			w, err := newSourceWatcher(args[0], m, a, debounce)
			if err != nil {
				return err
			}
			defer w.Close()

			if initial {
				files, err := m.discover(args[0])
				if err != nil {
					return err
				}
				if err := w.flush(cmd.Context(), cmd.OutOrStdout(), files); err != nil {
					return err
				}
			}
			err = w.Run(cmd.Context(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&include, "include", defaultInclude, "Glob patterns of files to lower")
	cmd.Flags().StringSliceVar(&exclude, "exclude", defaultExclude, "Glob patterns of files and directories to skip")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "Quiet period before changed files are lowered")
	cmd.Flags().BoolVar(&initial, "initial", false, "Lower every matching file once before watching")
	return cmd
}

// sourceWatcher lowers files under a root as fsnotify reports changes.
type sourceWatcher struct {
	root     string
	m        *matcher
	a        *app
	lw       *ast.Lowerer
	debounce time.Duration
	fsw      *fsnotify.Watcher
	pending  map[string]struct{}

	// ready is closed once Run is receiving events.
	ready chan struct{}
}

func newSourceWatcher(root string, m *matcher, a *app, debounce time.Duration) (*sourceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &sourceWatcher{
		root:     root,
		m:        m,
		a:        a,
		lw:       a.lowerer(),
		debounce: debounce,
		fsw:      fsw,
		pending:  make(map[string]struct{}),
		ready:    make(chan struct{}),
	}
	if err := w.addTree(root); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// addTree registers dir and every non-excluded directory below it.
func (w *sourceWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.a.logger.Warn("watch: cannot access path", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, rerr := relSlash(w.root, path); rerr == nil && w.m.excludedDir(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.a.logger.Warn("watch: cannot watch directory", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

// Run processes events until ctx is done. Changed files are lowered once
// no event has arrived for the debounce period.
func (w *sourceWatcher) Run(ctx context.Context, out io.Writer) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	close(w.ready)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.track(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			files := make([]string, 0, len(w.pending))
			for p := range w.pending {
				files = append(files, p)
			}
			clear(w.pending)
			sort.Strings(files)
			if err := w.flush(ctx, out, files); err != nil {
				return err
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.a.logger.Warn("watch: fsnotify error", slog.String("error", err.Error()))
		}
	}
}

// track records a relevant event and reports whether it was one.
func (w *sourceWatcher) track(event fsnotify.Event) bool {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.a.logger.Warn("watch: cannot watch new directory", slog.String("path", event.Name), slog.String("error", err.Error()))
			}
			return false
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	rel, err := relSlash(w.root, event.Name)
	if err != nil || !w.m.match(rel) {
		return false
	}
	w.pending[event.Name] = struct{}{}
	return true
}

// flush lowers each file and writes one line per file.
func (w *sourceWatcher) flush(ctx context.Context, out io.Writer, files []string) error {
	for _, path := range files {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			if err := writeLine(out, watchLine{Path: filepath.ToSlash(path), Removed: true}); err != nil {
				return err
			}
			continue
		}
		r := w.a.lowerFile(ctx, w.lw, path)
		if isCanceled(r.err) {
			return r.err
		}
		line := watchLine{Path: filepath.ToSlash(path), Result: r.payload}
		if r.err != nil {
			line.Error = r.err.Error()
		}
		w.a.logger.Info("watch: lowered",
			slog.String("path", path),
			slog.Bool("failed", r.failed),
		)
		if err := writeLine(out, line); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the underlying fsnotify watcher.
func (w *sourceWatcher) Close() error {
	return w.fsw.Close()
}
