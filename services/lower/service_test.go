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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tslower/services/lower/ast"
	"github.com/AleutianAI/tslower/services/lower/cache"
)

func strPtr(s string) *string { return &s }

// newTestService creates a Service backed by an in-memory LRU.
func newTestService(t *testing.T) (*Service, *cache.MemoryStore) {
	t.Helper()
	store, err := cache.NewMemoryStore(16)
	require.NoError(t, err)
	return NewService(DefaultServiceConfig(), store, nil), store
}

func TestService_Lower_CachesResult(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	req := Request{Source: strPtr("foo(1);")}

	first, err := svc.Lower(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.False(t, first.Failed)
	assert.True(t, strings.HasPrefix(string(first.Payload), `{"body":[{"type":"CallExpression"`))
	assert.Equal(t, 1, store.Len())

	second, err := svc.Lower(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Payload, second.Payload)

	stats := svc.Stats()
	assert.Equal(t, int64(2), stats.Requests)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.True(t, stats.Cache)
}

func TestService_Lower_KeyIncludesGrammarAndName(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	src := strPtr("foo(1);")

	_, err := svc.Lower(ctx, Request{Source: src})
	require.NoError(t, err)
	res, err := svc.Lower(ctx, Request{Source: src, IsTsx: true})
	require.NoError(t, err)
	assert.False(t, res.Cached)

	res, err = svc.Lower(ctx, Request{Source: src, SourceName: "other.ts"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Contains(t, string(res.Payload), `"filename":"other.ts"`)
	assert.Equal(t, 3, store.Len())
}

func TestService_Lower_SyntaxErrorIsPayload(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.Lower(context.Background(), Request{Source: strPtr("let = ;")})
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.JSONEq(t, `{"error":"parse failed"}`, string(res.Payload))

	again, err := svc.Lower(context.Background(), Request{Source: strPtr("let = ;")})
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.True(t, again.Failed)
}

func TestService_Lower_InputErrors(t *testing.T) {
	svc := NewService(ServiceConfig{MaxSourceSize: 8}, nil, nil)
	ctx := context.Background()

	_, err := svc.Lower(ctx, Request{})
	assert.ErrorIs(t, err, ast.ErrNilSource)

	_, err = svc.Lower(ctx, Request{Source: strPtr("foo(1234567890);")})
	assert.ErrorIs(t, err, ast.ErrSourceTooLarge)

	_, err = svc.Lower(ctx, Request{Source: strPtr("\xff")})
	assert.ErrorIs(t, err, ast.ErrInvalidContent)
}

func TestService_Lower_Expression(t *testing.T) {
	svc := NewService(DefaultServiceConfig(), nil, nil)

	res, err := svc.Lower(context.Background(), Request{Mode: ast.ModeExpression, Source: strPtr("[true]")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"expr":{"type":"ArrayExpression","elements":[{"type":"BooleanLiteral","value":true}]}}`, string(res.Payload))
	assert.False(t, svc.Stats().Cache)
}

func TestService_Lower_Concurrent(t *testing.T) {
	svc, _ := newTestService(t)
	src := strPtr("import { a } from 'a';\nconst x = a<T>(1);\n")

	var wg sync.WaitGroup
	payloads := make([]string, 16)
	for i := range payloads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Lower(context.Background(), Request{Source: src})
			if err == nil {
				payloads[i] = string(res.Payload)
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(payloads); i++ {
		assert.Equal(t, payloads[0], payloads[i])
	}
	assert.NotEmpty(t, payloads[0])
}

func TestService_Lower_CanceledCallerDoesNotFailSharedWaiters(t *testing.T) {
	svc, store := newTestService(t)
	src := strPtr(strings.Repeat("const x = a<T>(1);\nfoo(x, [1, 2], { k: 'v' });\n", 60000))

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	var (
		wg         sync.WaitGroup
		errA, errB error
		resB       *Result
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errA = svc.Lower(ctxA, Request{Source: src})
	}()
	go func() {
		defer wg.Done()
		resB, errB = svc.Lower(context.Background(), Request{Source: src})
	}()
	time.Sleep(5 * time.Millisecond)
	cancelA()
	wg.Wait()

	if errA != nil {
		assert.True(t, errors.Is(errA, context.Canceled), "unexpected error for canceled caller: %v", errA)
	}
	require.NoError(t, errB)
	require.NotNil(t, resB)
	assert.False(t, resB.Failed)
	assert.True(t, strings.HasPrefix(string(resB.Payload), `{"body":[`))
	assert.Equal(t, 1, store.Len())
}

func TestService_Affected(t *testing.T) {
	svc := NewService(DefaultServiceConfig(), nil, nil)
	src := "const a = 1;\nfunction f() {\n  return 2;\n}\ng();\n"
	diff := "--- a/x.ts\n+++ b/x.ts\n@@ -1,5 +1,5 @@\n const a = 1;\n function f() {\n-  return 1;\n+  return 2;\n }\n g();\n"

	res, err := svc.Affected(context.Background(), AffectedRequest{Source: &src, Diff: diff})
	require.NoError(t, err)
	assert.Equal(t, "x.ts", res.Path)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "f", res.Items[0].Name)
	assert.Equal(t, "FunctionDeclaration", res.Items[0].Type)

	_, err = svc.Affected(context.Background(), AffectedRequest{Source: &src, Diff: diff, Path: "y.ts"})
	assert.ErrorIs(t, err, ErrFileNotInDiff)

	_, err = svc.Affected(context.Background(), AffectedRequest{Diff: diff})
	assert.ErrorIs(t, err, ast.ErrNilSource)

	bad := "let = ;"
	_, err = svc.Affected(context.Background(), AffectedRequest{Source: &bad, Diff: diff})
	assert.ErrorIs(t, err, ast.ErrSyntax)
}

func TestPickFile_RequiresPathForMultiFileDiff(t *testing.T) {
	diff := "--- a/x.ts\n+++ b/x.ts\n@@ -1 +1 @@\n-a\n+b\n--- a/y.ts\n+++ b/y.ts\n@@ -1 +1 @@\n-a\n+b\n"
	svc := NewService(DefaultServiceConfig(), nil, nil)
	src := "b;"

	_, err := svc.Affected(context.Background(), AffectedRequest{Source: &src, Diff: diff})
	assert.ErrorIs(t, err, ErrFileNotInDiff)

	res, err := svc.Affected(context.Background(), AffectedRequest{Source: &src, Diff: diff, Path: "y.ts"})
	require.NoError(t, err)
	assert.Equal(t, "y.ts", res.Path)
}
