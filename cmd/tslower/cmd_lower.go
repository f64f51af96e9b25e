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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tslower/services/lower/ast"
	"github.com/AleutianAI/tslower/services/lower/changes"
)

func newModuleCmd(a *app) *cobra.Command {
	var keepComments bool
	cmd := &cobra.Command{
		Use:   "module [file|-]",
		Short: "Lower a module and print {\"body\":[...]}",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, src, err := readSource(cmd, args)
			if err != nil {
				return err
			}
			return a.printLowered(cmd, ast.ModeModule, &src, ast.Options{
				IsTsx:        a.isTsx(path),
				KeepComments: keepComments,
			})
		},
	}
	cmd.Flags().BoolVar(&keepComments, "keep-comments", false, "Accepted for compatibility; output is unchanged")
	return cmd
}

func newExprCmd(a *app) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "expr [file|-]",
		Short: "Lower a single expression and print {\"expr\":{...}}",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if cmd.Flags().Changed("source") {
				if len(args) > 0 {
					return fmt.Errorf("--source and a file argument are mutually exclusive")
				}
			} else {
				var err error
				if path, source, err = readSource(cmd, args); err != nil {
					return err
				}
			}
			return a.printLowered(cmd, ast.ModeExpression, &source, ast.Options{IsTsx: a.isTsx(path)})
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Expression text instead of a file")
	return cmd
}

// printLowered runs the engine boundary and prints its payload. A sentinel
// payload is printed too, then reported through the exit code.
func (a *app) printLowered(cmd *cobra.Command, mode ast.Mode, src *string, opts ast.Options) error {
	out, err := a.lowerer().Lower(cmd.Context(), mode, src, opts)
	if out == nil {
		return err
	}
	defer out.Release()
	if werr := a.writeJSON(cmd.OutOrStdout(), out.Bytes()); werr != nil {
		return werr
	}
	if out.IsError() {
		a.logger.Debug("lowering failed", slog.Any("error", err))
		return errParseFailed
	}
	return nil
}

func newSummaryCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "summary [file|-]",
		Short: "Print imports, declarations and callees of a module",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, src, err := readSource(cmd, args)
			if err != nil {
				return err
			}
			mod, err := a.lowerer().LowerModule(cmd.Context(), []byte(src), ast.Options{IsTsx: a.isTsx(path)})
			if err != nil {
				return err
			}
			s := ast.Summarize(mod)
			if asJSON {
				data, err := marshalJSON(s)
				if err != nil {
					return err
				}
				return a.writeJSON(cmd.OutOrStdout(), data)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), renderSummary(path, len(src), s))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	return cmd
}

func newAffectedCmd(a *app) *cobra.Command {
	var diffPath, filePath string
	cmd := &cobra.Command{
		Use:   "affected <file> --diff <patch>",
		Short: "List the items of a changed file that a unified diff touches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			patch, err := os.ReadFile(diffPath)
			if err != nil {
				return err
			}
			files, err := changes.ParseDiff(patch)
			if err != nil {
				return err
			}

			want := filePath
			var ranges []changes.LineRange
			found := false
			for _, f := range files {
				if (want == "" && len(files) == 1) || f.Path == want {
					ranges, found = f.Ranges, true
					break
				}
			}
			if !found {
				return fmt.Errorf("diff has no section for %q; pass --path", want)
			}

			mod, err := a.lowerer().LowerModule(cmd.Context(), src, ast.Options{IsTsx: a.isTsx(args[0])})
			if err != nil {
				return err
			}
			data, err := marshalJSON(changes.Affected(mod, ranges))
			if err != nil {
				return err
			}
			return a.writeJSON(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&diffPath, "diff", "", "Unified diff that produced the file")
	cmd.Flags().StringVar(&filePath, "path", "", "File section of the diff (required for multi-file diffs)")
	_ = cmd.MarkFlagRequired("diff")
	return cmd
}
