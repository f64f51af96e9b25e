// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lower serves the TypeScript lowering engine over HTTP.
package lower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/tslower/services/lower/ast"
	"github.com/AleutianAI/tslower/services/lower/cache"
	"github.com/AleutianAI/tslower/services/lower/changes"
)

// Version is the service version reported by the health endpoint.
const Version = "0.4.0"

var serviceTracer = otel.Tracer("tslower.service")

// ErrFileNotInDiff is returned when an affected-items request names a path
// the diff does not touch.
var ErrFileNotInDiff = errors.New("file not present in diff")

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// SourceName is the default filename reported in locations.
	SourceName string

	// MaxSourceSize bounds accepted sources in bytes. Zero uses the engine
	// default.
	MaxSourceSize int64
}

// DefaultServiceConfig returns the engine defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		SourceName:    ast.DefaultSourceName,
		MaxSourceSize: ast.DefaultMaxSourceSize,
	}
}

// Service lowers sources, caching serialized results.
//
// Description:
//
//	Results are keyed by (mode, grammar, source name, source). Concurrent
//	identical requests are collapsed into one lowering. Cache failures
//	never fail a request.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	cfg    ServiceConfig
	store  cache.Store
	logger *slog.Logger
	group  singleflight.Group

	started  time.Time
	requests atomic.Int64
	hits     atomic.Int64
}

// NewService creates a Service. store may be nil to disable caching.
func NewService(cfg ServiceConfig, store cache.Store, logger *slog.Logger) *Service {
	if cfg.SourceName == "" {
		cfg.SourceName = ast.DefaultSourceName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:     cfg,
		store:   store,
		logger:  logger,
		started: time.Now(),
	}
}

// Request is one lowering request.
type Request struct {
	Mode         ast.Mode
	Source       *string
	IsTsx        bool
	KeepComments bool

	// SourceName overrides the configured filename when non-empty.
	SourceName string
}

// Result is a serialized lowering result.
type Result struct {
	// Payload is {"body":[...]}, {"expr":{...}} or {"error":"parse failed"}.
	Payload []byte

	// Failed is true when Payload is the error sentinel.
	Failed bool

	// Cached is true when Payload was served from the cache.
	Cached bool
}

// Lower lowers req.Source.
//
// Outputs:
//
//	*Result - The payload. nil when err is an input error.
//	error - An input error (see ast.IsInputError), or nil. Syntax failures
//	        are reported through Result.Failed, not as errors.
func (s *Service) Lower(ctx context.Context, req Request) (*Result, error) {
	ctx, span := serviceTracer.Start(ctx, "lower.Service.Lower")
	defer span.End()
	s.requests.Add(1)

	if req.Source == nil {
		return nil, ast.ErrNilSource
	}
	if req.Mode == "" {
		req.Mode = ast.ModeModule
	}
	name := req.SourceName
	if name == "" {
		name = s.cfg.SourceName
	}
	key := cache.Key(string(req.Mode), req.IsTsx, name, *req.Source)

	span.SetAttributes(
		attribute.String("lower.mode", string(req.Mode)),
		attribute.Bool("lower.tsx", req.IsTsx),
		attribute.Int("lower.source_bytes", len(*req.Source)),
	)

	if payload, ok := s.lookup(ctx, key); ok {
		s.hits.Add(1)
		span.SetAttributes(attribute.Bool("lower.cached", true))
		return &Result{Payload: payload, Failed: ast.IsErrorPayload(payload), Cached: true}, nil
	}

	// The shared lowering outlives any one caller: a canceled caller stops
	// waiting, the others still get the result.
	work := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		lw := ast.NewLowerer(
			ast.WithSourceName(name),
			ast.WithMaxSourceSize(s.cfg.MaxSourceSize),
			ast.WithLogger(s.logger),
		)
		out, err := lw.Lower(work, req.Mode, req.Source, ast.Options{IsTsx: req.IsTsx, KeepComments: req.KeepComments})
		defer out.Release()
		if out == nil {
			return nil, err
		}
		// Cancellation yields the sentinel too, but it says nothing about
		// the source and must not be cached.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		payload := append([]byte(nil), out.Bytes()...)
		if err != nil {
			s.logger.Debug("lowering failed", slog.String("error", err.Error()))
		}
		s.remember(work, key, payload)
		return payload, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		err := ctx.Err()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case res = <-ch:
	}
	if err := res.Err; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	payload := res.Val.([]byte)
	span.SetAttributes(attribute.Bool("lower.shared", res.Shared))
	return &Result{Payload: payload, Failed: ast.IsErrorPayload(payload)}, nil
}

func (s *Service) lookup(ctx context.Context, key string) ([]byte, bool) {
	if s.store == nil {
		return nil, false
	}
	v, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("lower cache lookup failed", slog.String("error", err.Error()))
		return nil, false
	}
	return v, ok
}

func (s *Service) remember(ctx context.Context, key string, payload []byte) {
	if s.store == nil {
		return
	}
	if err := s.store.Put(ctx, key, payload); err != nil {
		s.logger.Warn("lower cache save failed", slog.String("error", err.Error()))
	}
}

// AffectedRequest asks which items of a changed file a diff touched.
type AffectedRequest struct {
	// Source is the post-change text of the file.
	Source *string
	IsTsx  bool

	// Diff is a unified diff that produced Source.
	Diff string

	// Path selects the file section of Diff. May be empty when the diff
	// touches exactly one file.
	Path string
}

// AffectedResult lists the touched items of one file.
type AffectedResult struct {
	Path   string                 `json:"path"`
	Ranges []changes.LineRange    `json:"ranges"`
	Items  []changes.AffectedItem `json:"items"`
}

// Affected lowers req.Source and maps the diff onto its items.
func (s *Service) Affected(ctx context.Context, req AffectedRequest) (*AffectedResult, error) {
	ctx, span := serviceTracer.Start(ctx, "lower.Service.Affected")
	defer span.End()
	s.requests.Add(1)

	if req.Source == nil {
		return nil, ast.ErrNilSource
	}

	files, err := changes.ParseDiff([]byte(req.Diff))
	if err != nil {
		return nil, err
	}
	fc, err := pickFile(files, req.Path)
	if err != nil {
		return nil, err
	}

	lw := ast.NewLowerer(
		ast.WithSourceName(s.cfg.SourceName),
		ast.WithMaxSourceSize(s.cfg.MaxSourceSize),
		ast.WithLogger(s.logger),
	)
	mod, err := lw.LowerModule(ctx, []byte(*req.Source), ast.Options{IsTsx: req.IsTsx})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	items := changes.Affected(mod, fc.Ranges)
	span.SetAttributes(
		attribute.String("lower.path", fc.Path),
		attribute.Int("lower.affected", len(items)),
	)
	return &AffectedResult{Path: fc.Path, Ranges: fc.Ranges, Items: items}, nil
}

func pickFile(files []changes.FileChanges, path string) (changes.FileChanges, error) {
	if path == "" {
		if len(files) == 1 {
			return files[0], nil
		}
		return changes.FileChanges{}, fmt.Errorf("%w: diff touches %d files, path required", ErrFileNotInDiff, len(files))
	}
	for _, f := range files {
		if f.Path == path {
			return f, nil
		}
	}
	return changes.FileChanges{}, fmt.Errorf("%w: %s", ErrFileNotInDiff, path)
}

// Stats is a snapshot of service counters.
type Stats struct {
	Requests  int64         `json:"requests"`
	CacheHits int64         `json:"cache_hits"`
	Uptime    time.Duration `json:"uptime_ns"`
	Cache     bool          `json:"cache_enabled"`
}

// Stats returns current counters.
func (s *Service) Stats() Stats {
	return Stats{
		Requests:  s.requests.Load(),
		CacheHits: s.hits.Load(),
		Uptime:    time.Since(s.started),
		Cache:     s.store != nil,
	}
}
