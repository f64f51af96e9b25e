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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tslower/services/lower"
	"github.com/AleutianAI/tslower/services/lower/ast"
	"github.com/AleutianAI/tslower/services/lower/config"
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

// errParseFailed is returned after the sentinel payload has been printed,
// so the process exits non-zero without a second message.
var errParseFailed = &exitError{code: 2, msg: "parse failed"}

// app holds state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	sourceName string
	forceTsx   bool
	pretty     string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "tslower",
		Short:         "Lower TypeScript and TSX sources into flat JSON records",
		Version:       lower.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Path to tslower.yaml (defaults are embedded)")
	flags.StringVar(&a.logLevel, "log-level", "", "Override log level: debug, info, warn, error")
	flags.StringVar(&a.sourceName, "source-name", "", "Filename reported in locations (default from config)")
	flags.BoolVar(&a.forceTsx, "tsx", false, "Use the TSX grammar regardless of file extension")
	flags.StringVar(&a.pretty, "pretty", "auto", "Indent JSON output: auto, always, never")

	root.AddCommand(
		newModuleCmd(a),
		newExprCmd(a),
		newSummaryCmd(a),
		newAffectedCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
	)
	return root
}

// init loads configuration and installs the default logger.
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(cmd.Context(), a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		switch a.logLevel {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = a.logLevel
		default:
			return fmt.Errorf("--log-level must be debug, info, warn or error, got %q", a.logLevel)
		}
	}
	if a.sourceName != "" {
		cfg.Lowering.SourceName = a.sourceName
	}
	switch a.pretty {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("--pretty must be auto, always or never, got %q", a.pretty)
	}
	a.cfg = cfg

	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(a.logger)
	return nil
}

// lowerer builds an engine configured from the loaded config.
func (a *app) lowerer() *ast.Lowerer {
	return ast.NewLowerer(
		ast.WithSourceName(a.cfg.Lowering.SourceName),
		ast.WithMaxSourceSize(a.cfg.MaxSourceBytes()),
		ast.WithLogger(a.logger),
	)
}

// isTsx decides the grammar for a path.
func (a *app) isTsx(path string) bool {
	return a.forceTsx || a.cfg.IsTsxPath(path)
}

// writeJSON writes payload followed by a newline, indented when requested
// or when out is a terminal.
func (a *app) writeJSON(out io.Writer, payload []byte) error {
	if a.indent(out) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, payload, "", "  "); err == nil {
			payload = buf.Bytes()
		}
	}
	if _, err := out.Write(payload); err != nil {
		return err
	}
	_, err := io.WriteString(out, "\n")
	return err
}

// marshalJSON encodes v without HTML escaping.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func (a *app) indent(out io.Writer) bool {
	switch a.pretty {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// readSource reads a file argument, "-" or no argument meaning stdin.
func readSource(cmd *cobra.Command, args []string) (string, string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "-", string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", "", err
	}
	return args[0], string(data), nil
}
