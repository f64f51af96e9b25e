// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the tslower configuration file.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed tslower.yaml
var defaultConfigYAML []byte

// MaxYAMLFileSize bounds the size of a configuration file (1MB).
const MaxYAMLFileSize = 1024 * 1024

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TSLOWER_"

var configTracer = otel.Tracer("tslower.config")

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the full tslower configuration.
//
// Description:
//
//	Loaded from YAML, then overridden by TSLOWER_* environment variables,
//	then validated. Durations use Go syntax ("30s"), sizes use humanized
//	byte strings ("10MB").
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" validate:"required,oneof=debug info warn error"`

	Lowering  LoweringConfig  `yaml:"lowering"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoweringConfig configures the lowering engine.
type LoweringConfig struct {
	// SourceName is the filename reported in every location.
	SourceName string `yaml:"source_name" validate:"required"`

	// MaxSourceSize is the largest accepted source, e.g. "10MB".
	MaxSourceSize string `yaml:"max_source_size" validate:"required"`

	// TsxExtensions lists file extensions lowered with the TSX grammar.
	TsxExtensions []string `yaml:"tsx_extensions" validate:"dive,startswith=."`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" validate:"gte=0"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`

	// MaxWSMessageSize bounds one websocket frame, e.g. "16MB".
	MaxWSMessageSize string `yaml:"max_ws_message_size" validate:"required"`
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the badger directory. Empty keeps the store in memory.
	Path string `yaml:"path"`

	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
	LRUSize int           `yaml:"lru_size" validate:"gte=0"`
}

// TelemetryConfig selects trace and metric exporters.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" validate:"required"`
	Traces       string `yaml:"traces" validate:"oneof=none stdout otlp"`
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=Traces otlp"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	Metrics      string `yaml:"metrics" validate:"oneof=none prometheus stdout"`
}

// MaxSourceBytes returns the parsed lowering size limit.
func (c *Config) MaxSourceBytes() int64 {
	n, err := humanize.ParseBytes(c.Lowering.MaxSourceSize)
	if err != nil {
		return 0
	}
	return int64(n)
}

// MaxWSMessageBytes returns the parsed websocket frame limit.
func (c *Config) MaxWSMessageBytes() int64 {
	n, err := humanize.ParseBytes(c.Server.MaxWSMessageSize)
	if err != nil {
		return 0
	}
	return int64(n)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsTsxPath reports whether path should be lowered with the TSX grammar.
func (c *Config) IsTsxPath(path string) bool {
	for _, ext := range c.Lowering.TsxExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// =============================================================================
// Singleton Default Config
// =============================================================================

var (
	defaultConfigMu      sync.RWMutex
	defaultConfigOnce    sync.Once
	cachedDefaultConfig  *Config
	defaultConfigLoadErr error
)

// Default returns the embedded default configuration with environment
// overrides applied.
//
// Description:
//
//	Loads the embedded defaults on first call and caches the result.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*Config - The loaded configuration. Never nil on success.
//	error - Non-nil if loading or validation failed.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func Default(ctx context.Context) (*Config, error) {
	if ctx == nil {
		return nil, fmt.Errorf("Default: ctx must not be nil")
	}

	defaultConfigMu.RLock()
	if cachedDefaultConfig != nil || defaultConfigLoadErr != nil {
		cfg, err := cachedDefaultConfig, defaultConfigLoadErr
		defaultConfigMu.RUnlock()
		return cfg, err
	}
	defaultConfigMu.RUnlock()

	defaultConfigMu.Lock()
	defer defaultConfigMu.Unlock()

	defaultConfigOnce.Do(func() {
		cachedDefaultConfig, defaultConfigLoadErr = Load(ctx, nil)
	})
	return cachedDefaultConfig, defaultConfigLoadErr
}

// ResetDefault clears the cached default config for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetDefault() {
	defaultConfigMu.Lock()
	defer defaultConfigMu.Unlock()
	cachedDefaultConfig = nil
	defaultConfigLoadErr = nil
	defaultConfigOnce = sync.Once{}
}

// =============================================================================
// Loading
// =============================================================================

// LoadFile reads path and loads it over the embedded defaults.
//
// An empty path loads the defaults alone.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Load(ctx, nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadFile: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: %w", err)
	}
	return Load(ctx, data)
}

// Load builds a Config from YAML bytes.
//
// Description:
//
//	Decodes the embedded defaults, then data on top of them (fields absent
//	from data keep their default), then applies TSLOWER_* environment
//	overrides, then validates.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes. May be empty.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil if parsing or validation fails.
func Load(ctx context.Context, data []byte) (*Config, error) {
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("Load: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("Load: parsing defaults: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("Load: parsing YAML: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}

	span.SetAttributes(
		attribute.String("log_level", cfg.LogLevel),
		attribute.String("addr", cfg.Server.Addr),
		attribute.Bool("cache_enabled", cfg.Cache.Enabled),
		attribute.String("traces", cfg.Telemetry.Traces),
		attribute.String("metrics", cfg.Telemetry.Metrics),
	)

	slog.Debug("tslower config loaded",
		slog.String("addr", cfg.Server.Addr),
		slog.Bool("cache_enabled", cfg.Cache.Enabled),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("traces", cfg.Telemetry.Traces),
	)

	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

// applyEnv overrides cfg with TSLOWER_* variables.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("LOG_LEVEL", &cfg.LogLevel)
	str("SOURCE_NAME", &cfg.Lowering.SourceName)
	str("MAX_SOURCE_SIZE", &cfg.Lowering.MaxSourceSize)
	str("ADDR", &cfg.Server.Addr)
	str("CACHE_PATH", &cfg.Cache.Path)
	str("TRACES", &cfg.Telemetry.Traces)
	str("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("METRICS", &cfg.Telemetry.Metrics)

	if v, ok := lookup(EnvPrefix + "CACHE_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_ENABLED: %w", EnvPrefix, err)
		}
		cfg.Cache.Enabled = b
	}
	if v, ok := lookup(EnvPrefix + "CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_TTL: %w", EnvPrefix, err)
		}
		cfg.Cache.TTL = d
	}
	if v, ok := lookup(EnvPrefix + "RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT_RPS: %w", EnvPrefix, err)
		}
		cfg.Server.RateLimitRPS = f
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateConfig checks struct tags, then the humanized sizes.
func validateConfig(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	sizes := []struct {
		field, value string
	}{
		{"lowering.max_source_size", cfg.Lowering.MaxSourceSize},
		{"server.max_ws_message_size", cfg.Server.MaxWSMessageSize},
	}
	for _, s := range sizes {
		n, err := humanize.ParseBytes(s.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, s.field, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, s.field)
		}
	}
	return nil
}
