package checksum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestScope(t *testing.T) {
	s := NewScope([]string{"css", ".JS"})

	assert.True(t, s.Contains("index.html"))
	assert.True(t, s.Contains("docs/page.htm"))
	assert.True(t, s.Contains("_api/v1/users.json"))
	assert.True(t, s.Contains("site/_api/nested/data.json"))
	assert.True(t, s.Contains("assets/site.css"))
	assert.True(t, s.Contains("app.js"))
	assert.False(t, s.Contains("misc/data.json"), "json outside the api tree is out of scope")
	assert.False(t, s.Contains("logo.png"))
}

func TestCompute(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "index.html", "<html>hi</html>")
	writeFile(t, root, "_api/data.json", `{"k":1}`)
	writeFile(t, root, "logo.png", "binary")

	sums, err := Compute(context.Background(), root, NewScope(nil), 2)
	require.NoError(t, err)
	require.Len(t, sums, 2)

	want := sha256.Sum256([]byte("<html>hi</html>"))
	assert.Equal(t, hex.EncodeToString(want[:]), sums["index.html"])
	assert.Contains(t, sums, "_api/data.json")
}

func TestVerifyFastSkipsMissing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", "aaa")
	sums, err := Compute(context.Background(), root, NewScope(nil), 1)
	require.NoError(t, err)

	sums["gone.html"] = "deadbeef"
	v, _, err := Verify(context.Background(), root, sums, false)
	require.NoError(t, err)

	assert.Equal(t, StatusPassed, v.Status)
	assert.Equal(t, 1, v.OK)
	assert.Equal(t, 1, v.Missing)
	assert.True(t, v.FastMissing)
}

func TestVerifyFastMissingEchoesMode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", "aaa")
	sums, err := Compute(context.Background(), root, NewScope(nil), 1)
	require.NoError(t, err)

	fast, _, err := Verify(context.Background(), root, sums, false)
	require.NoError(t, err)
	assert.True(t, fast.FastMissing, "fast mode is recorded even with nothing missing")

	deep, _, err := Verify(context.Background(), root, sums, true)
	require.NoError(t, err)
	assert.False(t, deep.FastMissing)
}

func TestVerifyDeepFailsOnMissingOrMismatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.html", "aaa")
	writeFile(t, root, "b.html", "bbb")
	sums, err := Compute(context.Background(), root, NewScope(nil), 1)
	require.NoError(t, err)

	writeFile(t, root, "b.html", "tampered")
	require.NoError(t, os.Remove(filepath.Join(root, "a.html")))

	v, _, err := Verify(context.Background(), root, sums, true)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, 1, v.Missing)
	assert.Equal(t, 1, v.Mismatched)
	assert.Equal(t, 0, v.OK)
	assert.Equal(t, 2, v.Total)
	assert.False(t, v.FastMissing)
}
