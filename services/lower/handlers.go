// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lower

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/tslower/services/lower/ast"
	"github.com/AleutianAI/tslower/services/lower/changes"
)

// cacheHeader reports whether a payload came from the cache.
const cacheHeader = "X-Tslower-Cache"

// ErrorResponse is the body of every non-lowering error.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ModuleRequest is the body of POST /v1/lower/module.
type ModuleRequest struct {
	// Source is required; a missing field is rejected, an empty string is
	// an empty module.
	Source       *string `json:"source"`
	IsTsx        bool    `json:"is_tsx"`
	KeepComments bool    `json:"keep_comments"`
	SourceName   string  `json:"source_name"`
}

// ExpressionRequest is the body of POST /v1/lower/expression.
type ExpressionRequest struct {
	Source     *string `json:"source"`
	IsTsx      bool    `json:"is_tsx"`
	SourceName string  `json:"source_name"`
}

// AffectedItemsRequest is the body of POST /v1/lower/affected.
type AffectedItemsRequest struct {
	Source *string `json:"source"`
	IsTsx  bool    `json:"is_tsx"`
	Diff   string  `json:"diff" binding:"required"`
	Path   string  `json:"path"`
}

// HealthResponse is the body of GET /v1/lower/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Stats   Stats  `json:"stats"`
}

// Handlers exposes a Service over HTTP.
//
// Thread Safety: Safe for concurrent use.
type Handlers struct {
	svc          *Service
	maxWSMessage int64
}

// HandlersOption configures Handlers.
type HandlersOption func(*Handlers)

// WithMaxWSMessageSize bounds one inbound websocket message.
func WithMaxWSMessageSize(n int64) HandlersOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxWSMessage = n
		}
	}
}

// NewHandlers creates handlers for svc.
func NewHandlers(svc *Service, opts ...HandlersOption) *Handlers {
	h := &Handlers{
		svc:          svc,
		maxWSMessage: ast.DefaultMaxSourceSize + 4096,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleLowerModule handles POST /v1/lower/module.
//
// Description:
//
//	Lowers the source as a module and returns the engine payload verbatim.
//
// Response:
//
//	200 OK: {"body":[...]}
//	400 Bad Request: Missing source, malformed body, invalid UTF-8
//	413 Payload Too Large: Source exceeds the configured limit
//	422 Unprocessable Entity: {"error":"parse failed"}
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleLowerModule(c *gin.Context) {
	var req ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	h.lower(c, "HandleLowerModule", Request{
		Mode:         ast.ModeModule,
		Source:       req.Source,
		IsTsx:        req.IsTsx,
		KeepComments: req.KeepComments,
		SourceName:   req.SourceName,
	})
}

// HandleLowerExpression handles POST /v1/lower/expression.
//
// Response codes follow HandleLowerModule; the success payload is
// {"expr":{...}}.
func (h *Handlers) HandleLowerExpression(c *gin.Context) {
	var req ExpressionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	h.lower(c, "HandleLowerExpression", Request{
		Mode:       ast.ModeExpression,
		Source:     req.Source,
		IsTsx:      req.IsTsx,
		SourceName: req.SourceName,
	})
}

func (h *Handlers) lower(c *gin.Context, handler string, req Request) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", handler)

	res, err := h.svc.Lower(c.Request.Context(), req)
	if err != nil {
		status, body := inputErrorResponse(err)
		logger.Debug("lower request rejected", slog.String("error", err.Error()))
		c.JSON(status, body)
		return
	}

	status := http.StatusOK
	if res.Failed {
		status = http.StatusUnprocessableEntity
	}
	cached := "miss"
	if res.Cached {
		cached = "hit"
	}
	c.Header(cacheHeader, cached)
	c.Data(status, "application/json", res.Payload)
}

// HandleAffected handles POST /v1/lower/affected.
//
// Description:
//
//	Lowers the post-change source and returns the items overlapping the
//	lines the diff added or removed.
//
// Response:
//
//	200 OK: AffectedResult
//	400 Bad Request: Missing source or diff, unparsable diff
//	404 Not Found: Path not present in the diff
//	413 Payload Too Large: Source exceeds the configured limit
//	422 Unprocessable Entity: Source does not parse
//
// Thread Safety: This method is safe for concurrent use.
func (h *Handlers) HandleAffected(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleAffected")

	var req AffectedItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	res, err := h.svc.Affected(c.Request.Context(), AffectedRequest{
		Source: req.Source,
		IsTsx:  req.IsTsx,
		Diff:   req.Diff,
		Path:   req.Path,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, res)
	case ast.IsInputError(err):
		status, body := inputErrorResponse(err)
		c.JSON(status, body)
	case errors.Is(err, ErrFileNotInDiff):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "FILE_NOT_IN_DIFF"})
	case errors.Is(err, changes.ErrNoFileDiffs):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_DIFF"})
	case errors.Is(err, ast.ErrSyntax), errors.Is(err, ast.ErrSerialize):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "parse failed", Code: "PARSE_FAILED"})
	default:
		logger.Warn("affected request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_DIFF"})
	}
}

// HandleHealth handles GET /v1/lower/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: Version,
		Stats:   h.svc.Stats(),
	})
}

// inputErrorResponse maps an engine input error, or a canceled request, to
// a status and body.
func inputErrorResponse(err error) (int, ErrorResponse) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, ErrorResponse{Error: err.Error(), Code: "CANCELED"}
	case errors.Is(err, ast.ErrSourceTooLarge):
		return http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Code: "SOURCE_TOO_LARGE"}
	case errors.Is(err, ast.ErrInvalidContent):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_CONTENT"}
	default:
		return http.StatusBadRequest, ErrorResponse{Error: "source is required", Code: "SOURCE_REQUIRED"}
	}
}
