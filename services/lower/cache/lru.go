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
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultLRUSize is the entry bound used when none is configured.
const DefaultLRUSize = 1024

// MemoryStore is a bounded in-process LRU.
//
// Values are copied on Put and returned as-is on Get; callers must not
// mutate returned slices.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
}

// NewMemoryStore creates an LRU holding at most size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryStore{cache: c}, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	recordLookup("memory", ok, nil)
	return v, ok, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.cache.Add(key, append([]byte(nil), value...))
	return nil
}

// Len reports the number of cached entries.
func (m *MemoryStore) Len() int { return m.cache.Len() }

// Close purges the cache.
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}
