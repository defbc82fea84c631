package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verdict/internal/models"
)

const sampleDiff = `diff --git a/pkg/api.py b/pkg/api.py
index 1111111..2222222 100644
--- a/pkg/api.py
+++ b/pkg/api.py
@@ -10,2 +10,3 @@ def handler():
-    old_a
-    old_b
+    new_a
+    new_b
+    new_c
diff --git a/docs/readme.md b/docs/readme.md
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/docs/readme.md
@@ -0,0 +1,2 @@
+hello
+world
diff --git a/legacy.py b/legacy.py
deleted file mode 100644
index 4444444..0000000
--- a/legacy.py
+++ /dev/null
@@ -1,2 +0,0 @@
-gone
-gone too
`

func TestParseTextMultiFile(t *testing.T) {
	result := ParseText(sampleDiff)
	require.Len(t, result.Files, 3)

	// File order mirrors the diff.
	assert.Equal(t, []string{"pkg/api.py", "docs/readme.md", "legacy.py"}, result.FilePaths())
	assert.Equal(t, []string{"pkg/api.py", "legacy.py"}, result.PythonFiles())

	modified := result.Files[0]
	assert.False(t, modified.IsNew)
	assert.False(t, modified.IsDeleted)
	if diff := cmp.Diff([]models.LineRange{{Start: 10, Length: 3}}, modified.AddedLines); diff != "" {
		t.Errorf("added lines mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]models.LineRange{{Start: 10, Length: 2}}, modified.DeletedLines); diff != "" {
		t.Errorf("deleted lines mismatch (-want +got):\n%s", diff)
	}

	added := result.Files[1]
	assert.True(t, added.IsNew)
	assert.False(t, added.IsDeleted)
	assert.Equal(t, []models.LineRange{{Start: 1, Length: 2}}, added.AddedLines)
	assert.Empty(t, added.DeletedLines)

	deleted := result.Files[2]
	assert.True(t, deleted.IsDeleted)
	assert.False(t, deleted.IsNew)
	assert.Equal(t, []models.LineRange{{Start: 1, Length: 2}}, deleted.DeletedLines)
	assert.Empty(t, deleted.AddedLines)
}

func TestParseTextEmpty(t *testing.T) {
	assert.Empty(t, ParseText("").Files)
	assert.Empty(t, ParseText("   \n").Files)
}

func TestParseTextGarbage(t *testing.T) {
	// Unparseable input degrades to an empty result, never a panic.
	result := ParseText("not a diff at all")
	assert.Empty(t, result.Files)
}
