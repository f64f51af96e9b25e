// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache stores serialized lowering results keyed by source content.
//
// Lowering is a pure function of (mode, grammar, source name, source), so a
// result computed once can be served again byte-for-byte. Two tiers are
// provided: a bounded in-process LRU and a badger store that survives
// restarts. Tiered combines them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store is a byte-value cache.
//
// Get returns (nil, false, nil) on a miss. A storage failure is reported as
// an error; callers treat it as a miss and keep serving.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Key derives the cache key for one lowering request.
//
// The key is the hex SHA-256 of the request fields, length-prefixed so that
// no two distinct requests can collide by concatenation.
func Key(mode string, isTsx bool, sourceName, src string) string {
	h := sha256.New()
	for _, part := range []string{mode, strconv.FormatBool(isTsx), sourceName, src} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tslower",
	Subsystem: "cache",
	Name:      "lookups_total",
	Help:      "Cache lookups by tier and result",
}, []string{"tier", "result"})

func recordLookup(tier string, hit bool, err error) {
	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case hit:
		result = "hit"
	}
	cacheLookups.WithLabelValues(tier, result).Inc()
}

func shortKey(k string) string {
	if len(k) > 8 {
		return k[:8] + "..."
	}
	return k
}
