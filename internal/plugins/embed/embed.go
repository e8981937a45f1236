// Package embed provides the stage plugin that attaches an embedding vector
// to each content part. The built-in implementation derives deterministic
// vectors from the part content; a deployment that needs real semantic
// embeddings registers its own plugin under a different name.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

// DefaultDimensions is the vector width used when the stage parameters do not
// override it.
const DefaultDimensions = 32

func init() {
	_ = plugin.RegisterStage("embed", New)
}

// EmbeddedPart pairs a content part with its embedding vector.
type EmbeddedPart struct {
	Part   model.ContentPart `json:"part"`
	Vector []float32         `json:"vector"`
}

type embedStage struct {
	deps       plugin.Dependencies
	dimensions int
}

// New builds the plugin from stage parameters: "dimensions" sets the vector width.
func New(params map[string]any, deps plugin.Dependencies) (plugin.StagePlugin, error) {
	dimensions := DefaultDimensions
	switch value := params["dimensions"].(type) {
	case int:
		dimensions = value
	case float64:
		dimensions = int(value)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	return &embedStage{deps: deps, dimensions: dimensions}, nil
}

func (p *embedStage) Name() string { return "embed" }

func (p *embedStage) Execute(ctx context.Context, item *model.RunWorkItem) (plugin.Result, error) {
	data, err := p.deps.Artifacts.Get(ctx, item.InputArtifactID)
	if err != nil {
		return plugin.Result{}, fmt.Errorf("loading input artifact %s: %w", item.InputArtifactID, err)
	}

	var parts []model.ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return plugin.Result{
			StopProcessing: true,
			ErrorMessage:   "the input artifact does not contain content parts",
		}, nil
	}

	embedded := make([]EmbeddedPart, 0, len(parts))
	for _, part := range parts {
		embedded = append(embedded, EmbeddedPart{
			Part:   part,
			Vector: Vector(part.Content, p.dimensions),
		})
	}

	encoded, err := json.Marshal(embedded)
	if err != nil {
		return plugin.Result{}, fmt.Errorf("encoding embedded parts: %w", err)
	}

	artifactID := fmt.Sprintf("%s/%s/%s", item.RunID, item.Stage, item.ContentItemCanonicalID)
	if err := p.deps.Artifacts.Put(ctx, artifactID, encoded); err != nil {
		return plugin.Result{}, fmt.Errorf("storing embedded parts: %w", err)
	}

	return plugin.Result{Value: artifactID, Success: true}, nil
}

// Vector derives a deterministic unit-range vector from text. The same text
// always yields the same vector, keeping re-executions idempotent.
func Vector(text string, dimensions int) []float32 {
	vector := make([]float32, dimensions)
	block := sha256.Sum256([]byte(text))
	offset := 0

	for i := 0; i < dimensions; i++ {
		if offset+4 > len(block) {
			block = sha256.Sum256(block[:])
			offset = 0
		}
		raw := binary.BigEndian.Uint32(block[offset : offset+4])
		offset += 4
		vector[i] = float32(raw)/float32(1<<31) - 1
	}
	return vector
}
