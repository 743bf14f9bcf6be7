package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest, "empty store has no snapshot")

	snap := &Snapshot{
		RunID:   "run-1",
		TakenAt: time.Now(),
		Files: map[string]FileInfo{
			"index.html":     {Size: 42, ModTimeNS: 1000, SHA256: "abc"},
			"_api/data.json": {Size: 7, ModTimeNS: 2000},
		},
	}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Latest(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "run-1", loaded.RunID)
	require.Len(t, loaded.Files, 2)
	assert.Equal(t, int64(42), loaded.Files["index.html"].Size)
	assert.Equal(t, "abc", loaded.Files["index.html"].SHA256)
	assert.Empty(t, loaded.Files["_api/data.json"].SHA256)
}

func TestLatestReturnsNewestSnapshot(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	first := &Snapshot{RunID: "run-1", TakenAt: time.Now(),
		Files: map[string]FileInfo{"a.html": {Size: 1}}}
	second := &Snapshot{RunID: "run-2", TakenAt: time.Now(),
		Files: map[string]FileInfo{"a.html": {Size: 2}, "b.html": {Size: 3}}}

	require.NoError(t, store.Save(ctx, first))
	require.NoError(t, store.Save(ctx, second))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
	assert.Len(t, latest.Files, 2)
}

func TestBuildSkipsBookkeeping(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "_state"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "_state", "incremental.db"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "clone_manifest.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html/>"), 0o644))

	snap, err := Build(root, "run-1", map[string]string{"index.html": "h1"})
	require.NoError(t, err)
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "h1", snap.Files["index.html"].SHA256)
	assert.Equal(t, int64(7), snap.Files["index.html"].Size)
}
