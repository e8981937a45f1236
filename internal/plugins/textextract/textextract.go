// Package textextract provides the stage plugin that loads a content item's
// raw bytes and stores them as the item's extracted text artifact.
package textextract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
)

func init() {
	_ = plugin.RegisterStage("text-extract", New)
}

type textExtract struct {
	deps plugin.Dependencies
}

// New builds the plugin. It takes no parameters.
func New(_ map[string]any, deps plugin.Dependencies) (plugin.StagePlugin, error) {
	return &textExtract{deps: deps}, nil
}

func (p *textExtract) Name() string { return "text-extract" }

func (p *textExtract) Execute(ctx context.Context, item *model.RunWorkItem) (plugin.Result, error) {
	content, err := p.deps.Store.GetContentItem(ctx, item.RunID, item.ContentItemCanonicalID)
	if err != nil {
		return plugin.Result{
			StopProcessing: true,
			ErrorMessage:   "the content item is not part of this run",
		}, nil
	}

	data, err := os.ReadFile(content.URL)
	if errors.Is(err, fs.ErrNotExist) {
		// The file vanished between listing and processing; retrying will
		// not bring it back.
		return plugin.Result{
			StopProcessing: true,
			ErrorMessage:   fmt.Sprintf("the content item %s no longer exists at its source", item.ContentItemCanonicalID),
		}, nil
	}
	if err != nil {
		return plugin.Result{}, fmt.Errorf("reading %s: %w", content.URL, err)
	}

	artifactID := fmt.Sprintf("%s/%s/%s", item.RunID, item.Stage, item.ContentItemCanonicalID)
	if err := p.deps.Artifacts.Put(ctx, artifactID, data); err != nil {
		return plugin.Result{}, fmt.Errorf("storing extracted text: %w", err)
	}

	return plugin.Result{Value: artifactID, Success: true}, nil
}
