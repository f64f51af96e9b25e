// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"log/slog"
)

// Tiered reads through a fast store to a slow one and promotes slow hits.
//
// Writes go to both tiers. A failing tier degrades to the other one: its
// errors are logged, never returned from Get.
type Tiered struct {
	fast   Store
	slow   Store
	logger *slog.Logger
}

// NewTiered combines fast and slow. Either may be nil.
func NewTiered(fast, slow Store, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{fast: fast, slow: slow, logger: logger}
}

// Get implements Store.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.fast != nil {
		v, ok, err := t.fast.Get(ctx, key)
		if err != nil {
			t.logger.Warn("lower cache: fast tier lookup failed",
				slog.String("key", shortKey(key)),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return v, true, nil
		}
	}
	if t.slow == nil {
		return nil, false, nil
	}

	v, ok, err := t.slow.Get(ctx, key)
	if err != nil {
		t.logger.Warn("lower cache: slow tier unavailable",
			slog.String("key", shortKey(key)),
			slog.String("error", err.Error()),
		)
		return nil, false, nil
	}
	if !ok {
		return nil, false, nil
	}
	if t.fast != nil {
		if err := t.fast.Put(ctx, key, v); err != nil {
			t.logger.Warn("lower cache: promotion to fast tier failed",
				slog.String("key", shortKey(key)),
				slog.String("error", err.Error()),
			)
		}
	}
	return v, true, nil
}

// Put implements Store.
func (t *Tiered) Put(ctx context.Context, key string, value []byte) error {
	var errs []error
	if t.fast != nil {
		errs = append(errs, t.fast.Put(ctx, key, value))
	}
	if t.slow != nil {
		errs = append(errs, t.slow.Put(ctx, key, value))
	}
	return errors.Join(errs...)
}

// Close closes both tiers.
func (t *Tiered) Close() error {
	var errs []error
	if t.fast != nil {
		errs = append(errs, t.fast.Close())
	}
	if t.slow != nil {
		errs = append(errs, t.slow.Close())
	}
	return errors.Join(errs...)
}
