// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package changes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tslower/services/lower/ast"
)

const newSource = `import { ref } from 'vue';
const count = ref(0);
function inc() {
  count.value += 2;
}
watch(count, log);
`

const sampleDiff = `diff --git a/src/counter.ts b/src/counter.ts
--- a/src/counter.ts
+++ b/src/counter.ts
@@ -1,6 +1,6 @@
 import { ref } from 'vue';
 const count = ref(0);
 function inc() {
-  count.value++;
+  count.value += 2;
 }
 watch(count, log);
`

func lower(t *testing.T, src string) *ast.Module {
	t.Helper()
	mod, err := ast.NewLowerer().LowerModule(context.Background(), []byte(src), ast.Options{})
	require.NoError(t, err)
	return mod
}

func TestParseDiff_ModifiedLine(t *testing.T) {
	files, err := ParseDiff([]byte(sampleDiff))
	require.NoError(t, err)
	require.Len(t, files, 1)

	assert.Equal(t, "src/counter.ts", files[0].Path)
	assert.False(t, files[0].Deleted)
	assert.Equal(t, []LineRange{{Start: 4, End: 4}}, files[0].Ranges)
}

func TestParseDiff_AdditionsAndDeletions(t *testing.T) {
	d := `--- a/x.ts
+++ b/x.ts
@@ -1,5 +1,6 @@
 a();
+b();
+c();
 d();
-e();
 f();
@@ -20,2 +21,3 @@
 g();
+h();
 i();
`
	files, err := ParseDiff([]byte(d))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, []LineRange{
		{Start: 2, End: 3},
		{Start: 5, End: 5},
		{Start: 22, End: 22},
	}, files[0].Ranges)
}

func TestParseDiff_DeletedFile(t *testing.T) {
	d := `--- a/gone.ts
+++ /dev/null
@@ -1,2 +0,0 @@
-a();
-b();
`
	files, err := ParseDiff([]byte(d))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].Deleted)
	assert.Equal(t, "gone.ts", files[0].Path)
}

func TestParseDiff_Empty(t *testing.T) {
	_, err := ParseDiff(nil)
	assert.ErrorIs(t, err, ErrNoFileDiffs)
}

func TestAffected(t *testing.T) {
	mod := lower(t, newSource)
	files, err := ParseDiff([]byte(sampleDiff))
	require.NoError(t, err)

	got := Affected(mod, files[0].Ranges)
	require.Len(t, got, 1)
	assert.Equal(t, AffectedItem{
		Index:     2,
		Type:      "FunctionDeclaration",
		Name:      "inc",
		StartLine: 3,
		EndLine:   5,
	}, got[0])
}

func TestAffected_MultipleRanges(t *testing.T) {
	mod := lower(t, newSource)

	got := Affected(mod, []LineRange{{Start: 6, End: 6}, {Start: 1, End: 2}})
	names := make([]string, 0, len(got))
	for _, a := range got {
		names = append(names, a.Name)
	}
	assert.Equal(t, []string{"vue", "count", "watch"}, names)
}

func TestAffected_NoOverlap(t *testing.T) {
	mod := lower(t, newSource)
	assert.Empty(t, Affected(mod, []LineRange{{Start: 50, End: 60}}))
	assert.Empty(t, Affected(mod, nil))
	assert.Empty(t, Affected(nil, []LineRange{{Start: 1, End: 1}}))
}

func TestLineRange_Overlaps(t *testing.T) {
	r := LineRange{Start: 3, End: 5}
	assert.True(t, r.Overlaps(5, 9))
	assert.True(t, r.Overlaps(1, 3))
	assert.True(t, r.Overlaps(4, 4))
	assert.False(t, r.Overlaps(6, 9))
	assert.False(t, r.Overlaps(1, 2))
}
