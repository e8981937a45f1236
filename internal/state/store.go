// Package state defines the pipeline state store port: persistence of runs,
// work items, content items, and per-stage counters. The engine only depends
// on this contract; the storage engine behind it is a collaborator.
package state

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
)

// RunFilter narrows ListRuns results. Zero values match everything.
type RunFilter struct {
	PipelineName string
	States       []model.RunState
}

// Store is the pipeline state store contract.
//
// All mutations the engine performs through this interface are idempotent or
// conditional, so at-least-once work item redelivery cannot corrupt counters.
type Store interface {
	// UpsertRun persists a run record.
	UpsertRun(ctx context.Context, run *model.Run) error

	// GetRun retrieves a run by id.
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// ListRuns returns runs matching the filter, most recent first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*model.Run, error)

	// HasActiveRunWithCanonicalID reports whether an unfinished run with the
	// given canonical run id exists.
	HasActiveRunWithCanonicalID(ctx context.Context, canonicalRunID string) (bool, error)

	// CancelRun marks a run cancelled. Stage runners observe the flag and
	// stop dequeuing new work for the run.
	CancelRun(ctx context.Context, runID string) error

	// AppendRunErrors records user-visible error messages against a run.
	AppendRunErrors(ctx context.Context, runID string, errs []string) error

	// UpsertContentItems persists the content items entering a run.
	UpsertContentItems(ctx context.Context, runID string, items []model.ContentItem) error

	// GetContentItem retrieves one content item of a run by canonical id.
	GetContentItem(ctx context.Context, runID, canonicalID string) (*model.ContentItem, error)

	// UpsertWorkItems persists work items. Re-upserting an existing id keeps
	// its completion status, so redelivered fan-out cannot reset progress.
	UpsertWorkItems(ctx context.Context, items []*model.RunWorkItem) error

	// GetWorkItem retrieves a work item by id within a run.
	GetWorkItem(ctx context.Context, runID, workItemID string) (*model.RunWorkItem, error)

	// UpdateWorkItem persists mutated work item fields.
	UpdateWorkItem(ctx context.Context, item *model.RunWorkItem) error

	// MarkWorkItemCompleted conditionally marks a work item resolved. The
	// first call wins and returns true; any repeat (redelivery) returns false
	// and must not change counters.
	MarkWorkItemCompleted(ctx context.Context, runID, workItemID string, successful bool) (bool, error)

	// StageMetrics derives the per-stage counters from the stage's work items.
	StageMetrics(ctx context.Context, runID, stage string) (model.StageMetrics, error)

	// CreateScheduledRunMarker conditionally records that a scheduled trigger
	// slot fired. Returns true only for the first caller of a given
	// (pipeline, trigger, slot) triple, de-duplicating concurrent scheduler
	// ticks and replicas.
	CreateScheduledRunMarker(ctx context.Context, pipeline, trigger string, slot time.Time) (bool, error)
}

// ArtifactStore is the object store collaborator holding content blobs
// produced and consumed by stage plugins.
type ArtifactStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
}
