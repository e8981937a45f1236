// Package plugin defines the stage and data source plugin contracts and the
// static registry mapping plugin names to factories. Plugins are resolved by
// name at stage start; there is no runtime assembly loading.
package plugin

import (
	"context"

	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/state"
)

// Result is the outcome of one stage plugin invocation for one work item.
type Result struct {
	// Value is the output artifact id produced by the stage, if any.
	Value string

	// Success reports whether the work item was processed.
	Success bool

	// StopProcessing marks a failure as permanent: the item must not be
	// retried. It is the only signal that converts a failure into a
	// non-retried outcome.
	StopProcessing bool

	// ErrorMessage is the plugin-supplied message surfaced to the user on
	// failure. Internal error text is never surfaced directly.
	ErrorMessage string
}

// StagePlugin executes one pipeline stage's work for individual work items.
// Invocations must be idempotent: at-least-once queue delivery means the same
// work item may be executed more than once.
type StagePlugin interface {
	// Name identifies the plugin.
	Name() string

	// Execute processes one work item and returns the outcome. A returned
	// error is an infrastructure failure and is retried like a transient
	// plugin failure; expected processing failures belong in Result.
	Execute(ctx context.Context, item *model.RunWorkItem) (Result, error)
}

// DataSourcePlugin materializes the content items a run will process.
type DataSourcePlugin interface {
	Name() string
	List(ctx context.Context) ([]model.ContentItem, error)
}

// Dependencies carries the collaborators handed to plugin factories.
type Dependencies struct {
	Store     state.Store
	Artifacts state.ArtifactStore
	Logger    *logger.Logger
}

// StageFactory builds a stage plugin from stage parameters.
type StageFactory func(params map[string]any, deps Dependencies) (StagePlugin, error)

// DataSourceFactory builds a data source plugin from data source parameters.
type DataSourceFactory func(params map[string]any, deps Dependencies) (DataSourcePlugin, error)
