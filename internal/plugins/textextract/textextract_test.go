package textextract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/state"
)

func newDeps(t *testing.T) (plugin.Dependencies, state.Store, state.ArtifactStore) {
	t.Helper()
	store := state.NewMemoryStore()
	artifacts := state.NewMemoryArtifacts()
	return plugin.Dependencies{
		Store:     store,
		Artifacts: artifacts,
		Logger:    logger.NewTestLogger(),
	}, store, artifacts
}

func TestExecuteStoresFileContentAsArtifact(t *testing.T) {
	ctx := context.Background()
	deps, store, artifacts := newDeps(t)

	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("the quick brown fox"), 0o644))
	require.NoError(t, store.UpsertContentItems(ctx, "run-1", []model.ContentItem{
		{CanonicalID: "doc.txt", Name: "doc.txt", URL: path},
	}))

	plug, err := New(nil, deps)
	require.NoError(t, err)

	item := model.NewRunWorkItem("run-1", "extract", "", "doc.txt", "doc.txt")
	result, err := plug.Execute(ctx, item)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotEmpty(t, result.Value)

	stored, err := artifacts.Get(ctx, result.Value)
	require.NoError(t, err)
	require.Equal(t, "the quick brown fox", string(stored))
}

func TestExecuteMissingFileStopsProcessing(t *testing.T) {
	ctx := context.Background()
	deps, store, _ := newDeps(t)

	require.NoError(t, store.UpsertContentItems(ctx, "run-1", []model.ContentItem{
		{CanonicalID: "gone.txt", Name: "gone.txt", URL: filepath.Join(t.TempDir(), "gone.txt")},
	}))

	plug, err := New(nil, deps)
	require.NoError(t, err)

	item := model.NewRunWorkItem("run-1", "extract", "", "gone.txt", "gone.txt")
	result, err := plug.Execute(ctx, item)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.True(t, result.StopProcessing)
	require.Contains(t, result.ErrorMessage, "gone.txt")
}

func TestExecuteUnknownContentItemStopsProcessing(t *testing.T) {
	ctx := context.Background()
	deps, _, _ := newDeps(t)

	plug, err := New(nil, deps)
	require.NoError(t, err)

	item := model.NewRunWorkItem("run-1", "extract", "", "missing", "missing")
	result, err := plug.Execute(ctx, item)
	require.NoError(t, err)
	require.True(t, result.StopProcessing)
}
