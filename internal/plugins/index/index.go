// Package index provides the terminal stage plugin that collects a content
// item's embedded parts into the run's index artifact. It stands in for an
// external search index; deployments back it with their own plugin when they
// index into a real store.
package index

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/plugins/embed"
)

func init() {
	_ = plugin.RegisterStage("index", New)
}

// Entry is one indexed record.
type Entry struct {
	ContentItemCanonicalID string    `json:"content_item_canonical_id"`
	Position               int       `json:"position"`
	Content                string    `json:"content"`
	Vector                 []float32 `json:"vector"`
}

type indexStage struct {
	deps plugin.Dependencies
	name string
}

// New builds the plugin from stage parameters: "index_name" names the target
// index and defaults to "default".
func New(params map[string]any, deps plugin.Dependencies) (plugin.StagePlugin, error) {
	name, _ := params["index_name"].(string)
	if name == "" {
		name = "default"
	}
	return &indexStage{deps: deps, name: name}, nil
}

func (p *indexStage) Name() string { return "index" }

func (p *indexStage) Execute(ctx context.Context, item *model.RunWorkItem) (plugin.Result, error) {
	data, err := p.deps.Artifacts.Get(ctx, item.InputArtifactID)
	if err != nil {
		return plugin.Result{}, fmt.Errorf("loading input artifact %s: %w", item.InputArtifactID, err)
	}

	var embedded []embed.EmbeddedPart
	if err := json.Unmarshal(data, &embedded); err != nil {
		return plugin.Result{
			StopProcessing: true,
			ErrorMessage:   "the input artifact does not contain embedded parts",
		}, nil
	}

	entries := make([]Entry, 0, len(embedded))
	for _, part := range embedded {
		entries = append(entries, Entry{
			ContentItemCanonicalID: part.Part.ContentItemCanonicalID,
			Position:               part.Part.Position,
			Content:                part.Part.Content,
			Vector:                 part.Vector,
		})
	}

	encoded, err := json.Marshal(entries)
	if err != nil {
		return plugin.Result{}, fmt.Errorf("encoding index entries: %w", err)
	}

	// One artifact per content item keeps re-execution idempotent.
	artifactID := ArtifactID(p.name, item.RunID, item.ContentItemCanonicalID)
	if err := p.deps.Artifacts.Put(ctx, artifactID, encoded); err != nil {
		return plugin.Result{}, fmt.Errorf("storing index entries: %w", err)
	}

	return plugin.Result{Value: artifactID, Success: true}, nil
}

// ArtifactID addresses the index entries of one content item in one run.
func ArtifactID(indexName, runID, canonicalID string) string {
	return fmt.Sprintf("index/%s/%s/%s", indexName, runID, canonicalID)
}
