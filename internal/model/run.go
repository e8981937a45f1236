package model

import (
	"time"
)

// RunState describes the derived processing state of a pipeline run.
type RunState string

const (
	RunStateNew        RunState = "new"
	RunStateInProgress RunState = "in_progress"
	RunStateCompleted  RunState = "completed"
	RunStateFailed     RunState = "failed"
)

// DeriveRunState computes the processing state from aggregate work item counters.
// The state is never stored independently; it is always recomputed from
// (total, succeeded, failed) so counters and displayed status cannot drift.
func DeriveRunState(total, succeeded, failed int) RunState {
	switch {
	case total == 0:
		return RunStateNew
	case succeeded+failed < total:
		return RunStateInProgress
	case failed > 0:
		return RunStateFailed
	default:
		return RunStateCompleted
	}
}

// StageMetrics holds the per-stage work item counters published on a run record.
type StageMetrics struct {
	WorkItems  int `json:"work_items"`
	Completed  int `json:"completed"`
	Successful int `json:"successful"`
}

// Failed returns the number of work items that completed unsuccessfully.
func (m StageMetrics) Failed() int {
	return m.Completed - m.Successful
}

// Done reports whether every work item of the stage has been resolved.
func (m StageMetrics) Done() bool {
	return m.WorkItems > 0 && m.Completed == m.WorkItems
}

// State derives the stage-level processing state from the counters.
func (m StageMetrics) State() RunState {
	return DeriveRunState(m.WorkItems, m.Successful, m.Failed())
}

// Run represents one triggered execution of a pipeline definition.
type Run struct {
	ID             string         `json:"id"`
	PipelineName   string         `json:"pipeline_name"`
	CanonicalRunID string         `json:"canonical_run_id"`
	TriggerName    string         `json:"trigger_name"`
	TriggerParams  map[string]any `json:"trigger_parameter_values,omitempty"`
	TriggeringUPN  string         `json:"triggering_upn"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	AllStages       []string `json:"all_stages"`
	ActiveStages    []string `json:"active_stages"`
	CompletedStages []string `json:"completed_stages"`
	FailedStages    []string `json:"failed_stages"`

	StageMetrics map[string]StageMetrics `json:"stage_metrics,omitempty"`
	Errors       []string                `json:"errors,omitempty"`
	Cancelled    bool                    `json:"cancelled,omitempty"`
}

// Totals sums the per-stage counters across every stage of the run.
func (r *Run) Totals() (total, succeeded, failed int) {
	for _, metrics := range r.StageMetrics {
		total += metrics.WorkItems
		succeeded += metrics.Successful
		failed += metrics.Failed()
	}
	return total, succeeded, failed
}

// State derives the run-level processing state. The run is completed only when
// every stage has resolved all of its work items and none failed; it is failed
// as soon as all items are resolved and at least one stage recorded a failure.
func (r *Run) State() RunState {
	if len(r.FailedStages) > 0 && len(r.ActiveStages) == 0 {
		return RunStateFailed
	}
	return DeriveRunState(r.Totals())
}

// Finished reports whether the run reached a terminal state.
func (r *Run) Finished() bool {
	state := r.State()
	return state == RunStateCompleted || state == RunStateFailed
}

// HasStage reports whether the named stage belongs to the run's definition snapshot.
func (r *Run) HasStage(stage string) bool {
	for _, name := range r.AllStages {
		if name == stage {
			return true
		}
	}
	return false
}

// Identity describes the principal on whose behalf an operation executes.
type Identity struct {
	Name string
	UPN  string
}

// SystemIdentity is used for scheduler-originated runs that have no user principal.
var SystemIdentity = Identity{
	Name: "System Scheduler",
	UPN:  "system-scheduler",
}
