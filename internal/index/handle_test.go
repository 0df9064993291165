package index_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docuchat/internal/index"
)

func TestHandle_UnsetBehavesEmpty(t *testing.T) {
	h := index.NewHandle(t.TempDir())

	assert.Nil(t, h.Search([]float32{1, 0}, 5))
	assert.Zero(t, h.Count())
	assert.Zero(t, h.Dimension())
	assert.NoError(t, h.Clear())
}

func TestHandle_DelegatesToStore(t *testing.T) {
	dir := t.TempDir()
	h := index.NewHandle(dir)
	store := index.NewStore(dir, 2)
	require.NoError(t, store.Add(
		[][]float32{{1, 0}},
		[]index.Meta{{DocID: "d1", SourcePath: "/up/a.txt", Hash: "h1", Text: "alpha"}},
	))
	h.Set(store)

	assert.Equal(t, 1, h.Count())
	assert.Equal(t, 2, h.Dimension())

	hits := h.Search([]float32{1, 0}, 5)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1", hits[0].Meta.DocID)
}

func TestHandle_ClearDetaches(t *testing.T) {
	dir := t.TempDir()
	h := index.NewHandle(dir)
	store := index.NewStore(dir, 2)
	require.NoError(t, store.Add(
		[][]float32{{1, 0}},
		[]index.Meta{{DocID: "d1", Hash: "h1", Text: "alpha"}},
	))
	require.NoError(t, store.Save())
	h.Set(store)

	require.NoError(t, h.Clear())
	assert.Zero(t, h.Count())
	assert.Nil(t, h.Search([]float32{1, 0}, 5))
}

func TestHandle_ClearBeforeAttachRemovesArtifacts(t *testing.T) {
	dir := t.TempDir()
	store := index.NewStore(dir, 2)
	require.NoError(t, store.Add(
		[][]float32{{1, 0}},
		[]index.Meta{{DocID: "d1", Hash: "h1", Text: "alpha"}},
	))
	require.NoError(t, store.Save())

	// Fresh handle over the same cache dir, nothing attached yet. Clearing
	// must still discard what a previous run persisted.
	h := index.NewHandle(dir)
	require.NoError(t, h.Clear())

	for _, name := range []string{index.IndexFile, index.MetaFile} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s still on disk after clear", name)
	}

	reloaded := index.NewStore(dir, 2)
	require.NoError(t, reloaded.Load())
	assert.Zero(t, reloaded.Count())
}
