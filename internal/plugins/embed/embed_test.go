package embed

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/state"
)

func TestVectorIsDeterministic(t *testing.T) {
	a := Vector("some content", 64)
	b := Vector("some content", 64)
	c := Vector("other content", 64)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)

	for _, v := range a {
		require.GreaterOrEqual(t, v, float32(-1))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestExecuteEmbedsEveryPart(t *testing.T) {
	ctx := context.Background()
	artifacts := state.NewMemoryArtifacts()
	deps := plugin.Dependencies{
		Store:     state.NewMemoryStore(),
		Artifacts: artifacts,
		Logger:    logger.NewTestLogger(),
	}

	parts := []model.ContentPart{
		{ContentItemCanonicalID: "doc", Position: 1, Content: "first", TokenCount: 1},
		{ContentItemCanonicalID: "doc", Position: 2, Content: "second", TokenCount: 1},
	}
	encoded, err := json.Marshal(parts)
	require.NoError(t, err)
	require.NoError(t, artifacts.Put(ctx, "run-1/partition/doc", encoded))

	plug, err := New(map[string]any{"dimensions": 8}, deps)
	require.NoError(t, err)

	item := model.NewRunWorkItem("run-1", "embed", "partition", "doc", "run-1/partition/doc")
	result, err := plug.Execute(ctx, item)
	require.NoError(t, err)
	require.True(t, result.Success)

	stored, err := artifacts.Get(ctx, result.Value)
	require.NoError(t, err)

	var embedded []EmbeddedPart
	require.NoError(t, json.Unmarshal(stored, &embedded))
	require.Len(t, embedded, 2)
	require.Equal(t, parts[0], embedded[0].Part)
	require.Len(t, embedded[0].Vector, 8)
	require.Equal(t, Vector("first", 8), embedded[0].Vector)
}

func TestExecuteRejectsMalformedInput(t *testing.T) {
	ctx := context.Background()
	artifacts := state.NewMemoryArtifacts()
	deps := plugin.Dependencies{
		Store:     state.NewMemoryStore(),
		Artifacts: artifacts,
		Logger:    logger.NewTestLogger(),
	}
	require.NoError(t, artifacts.Put(ctx, "run-1/partition/doc", []byte("not json")))

	plug, err := New(nil, deps)
	require.NoError(t, err)

	item := model.NewRunWorkItem("run-1", "embed", "partition", "doc", "run-1/partition/doc")
	result, err := plug.Execute(ctx, item)
	require.NoError(t, err)
	require.True(t, result.StopProcessing)
}
