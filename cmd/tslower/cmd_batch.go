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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tslower/services/lower/ast"
)

// batchLine is one NDJSON record written by batch and watch.
type batchLine struct {
	Path   string          `json:"path"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// fileResult is the outcome of lowering one file.
type fileResult struct {
	path    string
	size    int64
	payload []byte
	failed  bool
	err     error
}

func newBatchCmd(a *app) *cobra.Command {
	var (
		include []string
		exclude []string
		jobs    int
		outDir  string
		quiet   bool
	)
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Lower every matching file under a directory",
		Long: `Lower every matching file under a directory.

Without --out, one {"path","result"} JSON object per file is written to
stdout in path order. With --out, each result is written to
<out>/<relative path>.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := args[0]
			m, err := newMatcher(include, exclude)
			if err != nil {
				return err
			}
			files, err := m.discover(root)
			if err != nil {
				return err
			}
			a.logger.Info("batch starting",
				slog.String("root", root),
				slog.Int("files", len(files)),
				slog.Int("jobs", jobs),
			)

			start := time.Now()
			results, err := a.lowerFiles(cmd.Context(), files, jobs)
			if err != nil {
				return err
			}

			report := batchReport{files: len(files)}
			for _, r := range results {
				report.bytes += r.size
				switch {
				case r.err != nil:
					report.skipped++
					a.logger.Warn("file skipped", slog.String("path", r.path), slog.String("error", r.err.Error()))
				case r.failed:
					report.failed++
				}
				if werr := a.emit(cmd.OutOrStdout(), root, outDir, r); werr != nil {
					return werr
				}
			}
			report.duration = time.Since(start)

			if !quiet {
				fmt.Fprint(cmd.ErrOrStderr(), renderBatchReport(report))
			}
			if report.failed > 0 {
				return errParseFailed
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&include, "include", defaultInclude, "Glob patterns of files to lower")
	cmd.Flags().StringSliceVar(&exclude, "exclude", defaultExclude, "Glob patterns of files and directories to skip")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Files lowered concurrently")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write one JSON file per source under this directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print the summary")
	return cmd
}

// lowerFiles lowers files with at most jobs in flight. Results keep the
// order of files. Only context cancellation aborts the run.
func (a *app) lowerFiles(ctx context.Context, files []string, jobs int) ([]fileResult, error) {
	if jobs < 1 {
		jobs = 1
	}
	lw := a.lowerer()
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.lowerFile(gctx, lw, path)
			if isCanceled(results[i].err) {
				return results[i].err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	return results, nil
}

func (a *app) lowerFile(ctx context.Context, lw *ast.Lowerer, path string) fileResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileResult{path: path, err: err}
	}
	src := string(data)
	out, err := lw.Lower(ctx, ast.ModeModule, &src, ast.Options{IsTsx: a.isTsx(path)})
	r := fileResult{path: path, size: int64(len(data))}
	if out == nil || isCanceled(err) {
		if out != nil {
			out.Release()
		}
		r.err = err
		return r
	}
	defer out.Release()
	r.payload = append([]byte(nil), out.Bytes()...)
	r.failed = out.IsError()
	if r.failed {
		a.logger.Debug("lowering failed", slog.String("path", path), slog.Any("error", err))
	}
	return r
}

// writeLine encodes v as one NDJSON line without HTML escaping, so lowered
// JSX text survives unchanged.
func writeLine(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// emit writes one result either as an NDJSON line or as a file under outDir.
func (a *app) emit(w io.Writer, root, outDir string, r fileResult) error {
	if outDir == "" {
		line := batchLine{Path: filepath.ToSlash(r.path), Result: r.payload}
		if r.err != nil {
			line.Error = r.err.Error()
		}
		return writeLine(w, line)
	}
	if r.err != nil {
		return nil
	}
	dest, err := outputPath(root, outDir, r.path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, append(r.payload, '\n'), 0o644)
}
