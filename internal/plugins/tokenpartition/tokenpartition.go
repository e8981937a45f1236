// Package tokenpartition provides the stage plugin that splits extracted text
// into token-bounded, overlapping content parts.
package tokenpartition

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/partition"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// Defaults applied when the stage parameters do not override them.
const (
	DefaultPartitionSizeTokens    = 500
	DefaultPartitionOverlapTokens = 50
)

func init() {
	_ = plugin.RegisterStage("token-partition", New)
}

type tokenPartition struct {
	deps      plugin.Dependencies
	tokenizer partition.Tokenizer
	size      int
	overlap   int
}

// New builds the plugin from stage parameters: "partition_size_tokens",
// "partition_overlap_tokens" and "encoding" (a tiktoken encoding name).
func New(params map[string]any, deps plugin.Dependencies) (plugin.StagePlugin, error) {
	encoding := partition.CL100KBase
	if value, ok := params["encoding"].(string); ok && value != "" {
		encoding = value
	}
	tokenizer, err := partition.NewTikTokenizer(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %q: %w", encoding, err)
	}
	return NewWithTokenizer(params, deps, tokenizer)
}

// NewWithTokenizer builds the plugin around an explicit tokenizer.
func NewWithTokenizer(params map[string]any, deps plugin.Dependencies, tokenizer partition.Tokenizer) (plugin.StagePlugin, error) {
	size := intParam(params, "partition_size_tokens", DefaultPartitionSizeTokens)
	overlap := intParam(params, "partition_overlap_tokens", DefaultPartitionOverlapTokens)
	if size <= 0 {
		return nil, fmt.Errorf("partition_size_tokens must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("partition_overlap_tokens %d must be non-negative and smaller than partition_size_tokens %d", overlap, size)
	}

	return &tokenPartition{
		deps:      deps,
		tokenizer: tokenizer,
		size:      size,
		overlap:   overlap,
	}, nil
}

func (p *tokenPartition) Name() string { return "token-partition" }

func (p *tokenPartition) Execute(ctx context.Context, item *model.RunWorkItem) (plugin.Result, error) {
	data, err := p.deps.Artifacts.Get(ctx, item.InputArtifactID)
	if err != nil {
		return plugin.Result{}, fmt.Errorf("loading input artifact %s: %w", item.InputArtifactID, err)
	}

	parts, err := partition.Split(p.tokenizer, item.ContentItemCanonicalID, string(data), p.size, p.overlap)
	if err != nil {
		return plugin.Result{
			StopProcessing: true,
			ErrorMessage:   "the content could not be partitioned with the configured parameters",
		}, nil
	}

	encoded, err := json.Marshal(parts)
	if err != nil {
		return plugin.Result{}, fmt.Errorf("encoding content parts: %w", err)
	}

	artifactID := fmt.Sprintf("%s/%s/%s", item.RunID, item.Stage, item.ContentItemCanonicalID)
	if err := p.deps.Artifacts.Put(ctx, artifactID, encoded); err != nil {
		return plugin.Result{}, fmt.Errorf("storing content parts: %w", err)
	}

	return plugin.Result{Value: artifactID, Success: true}, nil
}

func intParam(params map[string]any, name string, fallback int) int {
	switch value := params[name].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	default:
		return fallback
	}
}
