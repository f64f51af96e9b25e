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
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tslower/services/lower"
	"github.com/AleutianAI/tslower/services/lower/cache"
	"github.com/AleutianAI/tslower/services/lower/config"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the lowering HTTP and websocket API",
		Long: `Run the lowering HTTP and websocket API.

Endpoints:

  POST /v1/lower/module
  POST /v1/lower/expression
  POST /v1/lower/affected
  GET  /v1/lower/ws
  GET  /v1/lower/health
  GET  /metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			ln, err := net.Listen("tcp", a.cfg.Server.Addr)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

// serve runs the API on ln until ctx is done, then drains in-flight
// requests within the configured shutdown timeout.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	cfg := a.cfg
	if cfg.SlogLevel() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	tel, err := lower.InitTelemetry(ctx, cfg.Telemetry, nil)
	if err != nil {
		ln.Close()
		return err
	}

	store := a.openCache(cfg.Cache)
	svc := lower.NewService(lower.ServiceConfig{
		SourceName:    cfg.Lowering.SourceName,
		MaxSourceSize: cfg.MaxSourceBytes(),
	}, store, a.logger)

	handlers := lower.NewHandlers(svc, lower.WithMaxWSMessageSize(cfg.MaxWSMessageBytes()))
	router := lower.NewRouter(handlers, lower.RouterOptions{
		ServiceName:    cfg.Telemetry.ServiceName,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		MetricsHandler: tel.MetricsHandler,
		AccessLog:      gin.Mode() == gin.DebugMode,
	})

	srv := &http.Server{
		Handler:     router,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting tslower server",
			slog.String("address", ln.Addr().String()),
			slog.String("version", lower.Version),
			slog.Bool("cache", store != nil),
		)
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down tslower server")
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("Server shutdown incomplete", slog.String("error", err.Error()))
	}
	if store != nil {
		if err := store.Close(); err != nil {
			a.logger.Warn("Failed to close result cache", slog.String("error", err.Error()))
		}
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("Telemetry shutdown incomplete", slog.String("error", err.Error()))
	}
	return serveErr
}

// openCache builds the result cache: an LRU in front of badger. When badger
// cannot be opened the LRU serves alone.
func (a *app) openCache(cfg config.CacheConfig) cache.Store {
	if !cfg.Enabled {
		return nil
	}
	mem, err := cache.NewMemoryStore(cfg.LRUSize)
	if err != nil {
		a.logger.Warn("Result cache disabled", slog.String("error", err.Error()))
		return nil
	}

	db, err := cache.OpenBadger(cfg.Path)
	if err != nil {
		a.logger.Warn("Result cache BadgerDB unavailable, using memory only",
			slog.String("path", cfg.Path),
			slog.String("error", err.Error()),
		)
		return mem
	}
	a.logger.Info("Result cache BadgerDB opened",
		slog.String("path", cfg.Path),
		slog.Duration("ttl", cfg.TTL),
	)
	return cache.NewTiered(mem, cache.NewBadgerStore(db, cfg.TTL, a.logger), a.logger)
}
