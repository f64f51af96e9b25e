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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers all lowering routes with the router.
//
// Description:
//
//	Registers all /v1/lower/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/lower/module - Lower a module
//	POST /v1/lower/expression - Lower a single expression
//	POST /v1/lower/affected - Map a diff onto lowered items
//	GET  /v1/lower/ws - Streaming lowering over websocket
//	GET  /v1/lower/health - Health check
//
// Example:
//
//	service := lower.NewService(lower.DefaultServiceConfig(), nil, nil)
//	handlers := lower.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	lower.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	lower := rg.Group("/lower")
	{
		lower.POST("/module", handlers.HandleLowerModule)
		lower.POST("/expression", handlers.HandleLowerExpression)
		lower.POST("/affected", handlers.HandleAffected)
		lower.GET("/ws", handlers.HandleStream)

		lower.GET("/health", handlers.HandleHealth)
	}
}

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// ServiceName labels otelgin spans.
	ServiceName string

	// RateLimitRPS and RateLimitBurst configure RateLimitMiddleware.
	RateLimitRPS   float64
	RateLimitBurst int

	// MetricsHandler is mounted at GET /metrics when non-nil.
	MetricsHandler http.Handler

	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewRouter builds the HTTP engine: recovery, tracing, request IDs, request
// metrics and rate limiting, then the /v1 routes.
func NewRouter(handlers *Handlers, opts RouterOptions) *gin.Engine {
	if opts.ServiceName == "" {
		opts.ServiceName = "tslower"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(RequestIDMiddleware())
	router.Use(RequestMetricsMiddleware())
	if opts.AccessLog {
		router.Use(gin.Logger())
	}

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	v1 := router.Group("/v1")
	v1.Use(RateLimitMiddleware(opts.RateLimitRPS, opts.RateLimitBurst))
	RegisterRoutes(v1, handlers)
	return router
}
