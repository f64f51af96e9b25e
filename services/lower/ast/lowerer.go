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
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// DefaultMaxSourceSize is the largest source accepted by default (10MB).
	DefaultMaxSourceSize = 10 * 1024 * 1024

	// WarnSourceSize is the size above which a warning is logged (1MB).
	WarnSourceSize = 1024 * 1024
)

// Mode selects what a source text is lowered as.
type Mode string

const (
	// ModeModule lowers a whole module into top-level items.
	ModeModule Mode = "module"

	// ModeExpression lowers exactly one expression.
	ModeExpression Mode = "expression"
)

// Options selects the grammar for one call.
type Options struct {
	// IsTsx selects the TSX grammar.
	IsTsx bool

	// KeepComments is accepted for compatibility and has no effect on output.
	KeepComments bool
}

// LowererOption configures a Lowerer.
type LowererOption func(*Lowerer)

// WithSourceName sets the virtual file name reported in every location.
//
// Example:
//
//	l := NewLowerer(WithSourceName("component.ts"))
func WithSourceName(name string) LowererOption {
	return func(l *Lowerer) {
		if name != "" {
			l.sourceName = name
		}
	}
}

// WithMaxSourceSize sets the largest source the lowerer accepts.
//
// Parameters:
//   - bytes: Maximum size in bytes. Non-positive values are ignored.
func WithMaxSourceSize(bytes int64) LowererOption {
	return func(l *Lowerer) {
		if bytes > 0 {
			l.maxSourceSize = bytes
		}
	}
}

// WithLogger sets the logger used for warnings.
func WithLogger(logger *slog.Logger) LowererOption {
	return func(l *Lowerer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Lowerer turns TypeScript and TSX source into flat lowered items.
//
// Description:
//
//	Each call parses the source with tree-sitter, walks the top-level
//	statements once through the dispatch table and discards every
//	intermediate structure before returning. Nothing is retained between
//	calls.
//
// Thread Safety:
//
//	Lowerer instances are safe for concurrent use. Each call creates its
//	own parser and per-call state.
//
// Example:
//
//	l := NewLowerer()
//	mod, err := l.LowerModule(ctx, []byte("foo(1);"), Options{})
//	if err != nil {
//	    return err
//	}
//	fmt.Println(mod.Body[0].ItemType()) // CallExpression
type Lowerer struct {
	sourceName    string
	maxSourceSize int64
	logger        *slog.Logger
}

// NewLowerer creates a Lowerer with the given options.
//
// Outputs:
//   - *Lowerer: Never nil.
func NewLowerer(opts ...LowererOption) *Lowerer {
	l := &Lowerer{
		sourceName:    DefaultSourceName,
		maxSourceSize: DefaultMaxSourceSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// validate applies the input checks shared by both modes.
func (lw *Lowerer) validate(ctx context.Context, src []byte) error {
	if src == nil {
		return ErrNilSource
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lower canceled before start: %w", err)
	}
	if int64(len(src)) > lw.maxSourceSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrSourceTooLarge, len(src), lw.maxSourceSize)
	}
	if len(src) > WarnSourceSize {
		lw.logger.Warn("lowering large source",
			slog.String("source", lw.sourceName),
			slog.Int("size_bytes", len(src)))
	}
	if !utf8.Valid(src) {
		return fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}
	return nil
}

// LowerModule lowers a whole source into items.
//
// Description:
//
//	Every import, export, variable, function, class, type alias and
//	interface at the top level yields its record. Other top-level
//	statements are searched for calls at any depth.
//
// Inputs:
//   - ctx: Checked before and after parsing.
//   - src: Source bytes. nil is an input error.
//   - opts: Grammar selection.
//
// Outputs:
//   - *Module: Items in document order. Never nil on success.
//   - error: ErrNilSource, ErrSourceTooLarge or ErrInvalidContent for input
//     errors; ErrSyntax when the parser rejects the source; context errors.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (lw *Lowerer) LowerModule(ctx context.Context, src []byte, opts Options) (*Module, error) {
	ctx, span := startLowerSpan(ctx, string(ModeModule), len(src), opts.IsTsx)
	defer span.End()
	start := time.Now()

	mod, err := lw.lowerModule(ctx, src, opts)

	var items []Item
	if mod != nil {
		items = mod.Body
	}
	finishLowerSpan(span, len(items), err)
	recordLowerMetrics(string(ModeModule), time.Since(start), len(src), items, err)
	return mod, err
}

func (lw *Lowerer) lowerModule(ctx context.Context, src []byte, opts Options) (*Module, error) {
	if err := lw.validate(ctx, src); err != nil {
		return nil, err
	}

	tree, err := parseTree(ctx, src, opts.IsTsx)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lower canceled after parse: %w", err)
	}

	l := newLowering(lw.sourceName, src)
	return &Module{Body: l.lowerProgram(tree.RootNode())}, nil
}

// LowerExpression lowers a source holding exactly one expression.
//
// Description:
//
//	The source is parsed as a parenthesized expression. Anything that does
//	not form exactly one expression filling the whole input is a syntax
//	error, so "1) + (2" is rejected rather than read as a binary expression.
//
// Outputs:
//   - Expr: Never nil on success.
//   - error: As for LowerModule.
func (lw *Lowerer) LowerExpression(ctx context.Context, src []byte, opts Options) (Expr, error) {
	ctx, span := startLowerSpan(ctx, string(ModeExpression), len(src), opts.IsTsx)
	defer span.End()
	start := time.Now()

	expr, err := lw.lowerExpression(ctx, src, opts)

	items := 0
	if expr != nil {
		items = 1
	}
	finishLowerSpan(span, items, err)
	recordLowerMetrics(string(ModeExpression), time.Since(start), len(src), nil, err)
	return expr, err
}

func (lw *Lowerer) lowerExpression(ctx context.Context, src []byte, opts Options) (Expr, error) {
	if err := lw.validate(ctx, src); err != nil {
		return nil, err
	}

	wrapped := make([]byte, 0, len(src)+3)
	wrapped = append(wrapped, '(')
	wrapped = append(wrapped, src...)
	wrapped = append(wrapped, '\n', ')')

	tree, err := parseTree(ctx, wrapped, opts.IsTsx)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	stmts := namedChildren(tree.RootNode())
	if len(stmts) != 1 || stmts[0].Type() != "expression_statement" {
		return nil, ErrSyntax
	}
	inner := namedChildren(stmts[0])
	if len(inner) != 1 {
		return nil, ErrSyntax
	}
	paren := inner[0]
	if paren.Type() != "parenthesized_expression" ||
		paren.StartByte() != 0 || int(paren.EndByte()) != len(wrapped) {
		return nil, ErrSyntax
	}
	exprs := namedChildren(paren)
	if len(exprs) != 1 {
		return nil, ErrSyntax
	}

	l := newLowering(lw.sourceName, wrapped)
	return l.lowerExpr(exprs[0]), nil
}

// =============================================================================
// SERIALIZED BOUNDARY
// =============================================================================

// errorSentinel is the payload returned for syntax and serialization errors.
var errorSentinel = []byte(`{"error":"parse failed"}`)

var bufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Buffer holds one serialized result.
//
// Description:
//
//	The caller owns the Buffer and must call Release exactly once when
//	done. Release on a nil Buffer and repeated releases are no-ops. Bytes
//	returns nil after release.
//
// Thread Safety:
//
//	Release may be called from any goroutine. Bytes must not race with
//	Release.
type Buffer struct {
	buf      *bytes.Buffer
	data     []byte
	released sync.Once
}

// Bytes returns the JSON payload.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// String returns the JSON payload as a string.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// IsError reports whether the payload is the error sentinel.
func (b *Buffer) IsError() bool {
	return IsErrorPayload(b.Bytes())
}

// IsErrorPayload reports whether payload is the error sentinel.
func IsErrorPayload(payload []byte) bool {
	return bytes.Equal(payload, errorSentinel)
}

// Release returns the buffer's storage. Calls after the first do nothing.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	b.released.Do(func() {
		b.data = nil
		if b.buf != nil {
			b.buf.Reset()
			bufferPool.Put(b.buf)
			b.buf = nil
		}
	})
}

func sentinelBuffer() *Buffer {
	return &Buffer{data: errorSentinel}
}

// encodeBuffer serializes v under a single top-level key into a pooled buffer.
func encodeBuffer(key string, v any) (*Buffer, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	buf.WriteString(`{"`)
	buf.WriteString(key)
	buf.WriteString(`":`)
	if err := writeJSON(buf, v); err != nil {
		buf.Reset()
		bufferPool.Put(buf)
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	buf.WriteByte('}')
	return &Buffer{buf: buf, data: buf.Bytes()}, nil
}

// ParseModule lowers src and returns the serialized result.
//
// Description:
//
//	Returns {"body":[...]} on success and {"error":"parse failed"} when the
//	source cannot be parsed or the result cannot be encoded. Returns nil
//	when src is nil, too large, or not valid UTF-8.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - src: Source text. nil means absent.
//   - isTsx: Selects the TSX grammar.
//   - keepComments: Accepted; has no effect on output.
//
// Outputs:
//   - *Buffer: Must be released by the caller. nil for input errors.
func (lw *Lowerer) ParseModule(ctx context.Context, src *string, isTsx, keepComments bool) *Buffer {
	out, _ := lw.Lower(ctx, ModeModule, src, Options{IsTsx: isTsx, KeepComments: keepComments})
	return out
}

// ParseExpression lowers a single expression and returns {"expr":{...}}.
// Errors follow ParseModule.
func (lw *Lowerer) ParseExpression(ctx context.Context, src *string, isTsx bool) *Buffer {
	out, _ := lw.Lower(ctx, ModeExpression, src, Options{IsTsx: isTsx})
	return out
}

// Lower is ParseModule or ParseExpression selected by mode, additionally
// returning the error behind a nil or sentinel result.
//
// Outputs:
//   - *Buffer: nil exactly when IsInputError(err); the sentinel for any
//     other non-nil err.
//   - error: nil on success.
func (lw *Lowerer) Lower(ctx context.Context, mode Mode, src *string, opts Options) (*Buffer, error) {
	if src == nil {
		return nil, ErrNilSource
	}

	var (
		key string
		v   any
		err error
	)
	switch mode {
	case ModeExpression:
		key = "expr"
		v, err = lw.LowerExpression(ctx, []byte(*src), opts)
	default:
		var mod *Module
		key = "body"
		mod, err = lw.LowerModule(ctx, []byte(*src), opts)
		if mod != nil {
			v = mod.Body
		}
	}
	if err != nil {
		return lw.failure(err), err
	}
	out, err := encodeBuffer(key, v)
	if err != nil {
		return lw.failure(err), err
	}
	return out, nil
}

// failure maps an error to the boundary result: nil for input errors, the
// sentinel otherwise.
func (lw *Lowerer) failure(err error) *Buffer {
	if IsInputError(err) {
		lw.logger.Debug("lower input rejected", slog.String("error", err.Error()))
		return nil
	}
	lw.logger.Debug("lower failed", slog.String("error", err.Error()))
	return sentinelBuffer()
}
