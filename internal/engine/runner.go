package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/conveyor/internal/config"
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/queue"
	"github.com/alexisbeaulieu97/conveyor/internal/state"

	pkgerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// RunnerOptions tunes the pipeline runner service.
type RunnerOptions struct {
	Stage StageRunnerOptions
}

// Runner is the pipeline runner service. It owns the set of in-flight runs,
// seeds their starting-stage queues, and starts stage runners as the run's
// stage graph unlocks.
type Runner struct {
	store     state.Store
	artifacts state.ArtifactStore
	queues    queue.Provider[model.WorkItemRef]
	log       *logger.Logger
	opts      RunnerOptions

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]*activeRun
}

type activeRun struct {
	definition *config.Definition
	stages     map[string]*StageRunner
	wg         sync.WaitGroup
}

// RunStatus is a point-in-time view of one in-flight run.
type RunStatus struct {
	RunID        string
	PipelineName string
	State        model.RunState
	Stages       map[string]model.StageMetrics
}

// NewRunner builds the pipeline runner service. Call Close to stop all stage
// runners it started.
func NewRunner(
	store state.Store,
	artifacts state.ArtifactStore,
	queues queue.Provider[model.WorkItemRef],
	log *logger.Logger,
	opts RunnerOptions,
) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:     store,
		artifacts: artifacts,
		queues:    queues,
		log:       log,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		active:    make(map[string]*activeRun),
	}
}

// StartRun decomposes a triggered run into work items, seeds the starting
// stage queues, and starts a stage runner per starting stage.
func (r *Runner) StartRun(
	ctx context.Context,
	run *model.Run,
	contentItems []model.ContentItem,
	definition *config.Definition,
) error {
	if len(contentItems) == 0 {
		return pkgerrors.NewExecutionError(run.ID, "", fmt.Errorf("the data source produced no content items"))
	}

	run.AllStages = definition.AllStageNames()
	run.ActiveStages = append([]string(nil), definition.StartingStages...)
	now := time.Now().UTC()
	run.StartedAt = &now

	// Construct the starting stage runners up front. A stage whose plugin
	// cannot be built is folded into this run snapshot as failed before the
	// snapshot is persisted.
	runners := make(map[string]*StageRunner, len(definition.StartingStages))
	for _, stageName := range definition.StartingStages {
		if sr := r.buildStageRunner(run, definition, stageName); sr != nil {
			runners[stageName] = sr
		}
	}

	if err := r.store.UpsertContentItems(ctx, run.ID, contentItems); err != nil {
		return pkgerrors.NewExecutionError(run.ID, "", err)
	}

	// One work item per (starting stage, content item). The item's input is
	// the content item itself, addressed by canonical id.
	for _, stageName := range definition.StartingStages {
		items := make([]*model.RunWorkItem, 0, len(contentItems))
		for _, content := range contentItems {
			items = append(items, model.NewRunWorkItem(
				run.ID, stageName, "", content.CanonicalID, content.CanonicalID))
		}
		if err := r.store.UpsertWorkItems(ctx, items); err != nil {
			return pkgerrors.NewExecutionError(run.ID, stageName, err)
		}

		q := r.queues.StageQueue(run.ID, stageName)
		for _, item := range items {
			_, err := q.Enqueue(ctx, model.WorkItemRef{WorkItemID: item.ID, RunID: run.ID})
			if err == nil {
				continue
			}
			// An item that never reaches its queue counts as failed so the
			// run can still converge.
			r.log.WithRun(run.ID).WithStage(stageName).Error(err, "failed to enqueue work item")
			if _, markErr := r.store.MarkWorkItemCompleted(ctx, run.ID, item.ID, false); markErr == nil {
				item.Completed = true
				item.Errors = append(item.Errors, "the work item could not be enqueued")
				_ = r.store.UpdateWorkItem(ctx, item)
				run.Errors = append(run.Errors,
					fmt.Sprintf("[%s/%s] the work item could not be enqueued", stageName, item.ContentItemCanonicalID))
			}
		}
	}

	if len(run.ActiveStages) == 0 {
		r.mu.Lock()
		r.finalizeIfDone(run)
		r.mu.Unlock()
	}

	// Persist the complete snapshot before any stage runner starts. From here
	// on the run record is only updated through onStageComplete's locked
	// read-modify-write, so a finished stage can never be overwritten by a
	// stale startup write.
	if err := r.store.UpsertRun(ctx, run); err != nil {
		return pkgerrors.NewExecutionError(run.ID, "", err)
	}

	if len(run.ActiveStages) > 0 {
		ar := &activeRun{
			definition: definition,
			stages:     make(map[string]*StageRunner),
		}
		r.mu.Lock()
		r.active[run.ID] = ar
		for stageName, sr := range runners {
			r.spawnStageLocked(ar, run.ID, stageName, sr)
		}
		r.mu.Unlock()
	}

	r.log.WithRun(run.ID).WithFields(map[string]any{
		"pipeline":      run.PipelineName,
		"content_items": len(contentItems),
		"stages":        definition.StartingStages,
	}).Info("pipeline run started")

	return nil
}

// buildStageRunner constructs the runner for one stage. A stage whose plugin
// cannot be constructed is folded into the run as failed and nil is returned;
// the caller persists the run afterwards.
func (r *Runner) buildStageRunner(run *model.Run, def *config.Definition, stageName string) *StageRunner {
	stageDef := def.GetStage(stageName)
	if stageDef == nil {
		r.log.WithRun(run.ID).WithStage(stageName).Warn("unknown stage, cannot start runner")
		return nil
	}

	plug, err := plugin.NewStagePlugin(stageDef.Plugin, stageDef.Parameters, plugin.Dependencies{
		Store:     r.store,
		Artifacts: r.artifacts,
		Logger:    r.log,
	})
	if err != nil {
		r.log.WithRun(run.ID).WithStage(stageName).Error(err, "failed to construct stage plugin")
		run.ActiveStages = remove(run.ActiveStages, stageName)
		run.CompletedStages = appendUnique(run.CompletedStages, stageName)
		run.FailedStages = appendUnique(run.FailedStages, stageName)
		run.Errors = append(run.Errors, fmt.Sprintf("[%s] %s", stageName, err.Error()))
		return nil
	}

	return NewStageRunner(run.ID, *stageDef, plug, r.queues, r.store, r.log, r.opts.Stage)
}

// spawnStageLocked starts the stage runner goroutine. Caller holds r.mu.
func (r *Runner) spawnStageLocked(ar *activeRun, runID, stageName string, sr *StageRunner) {
	ar.stages[stageName] = sr
	ar.wg.Add(1)
	go func() {
		metrics, runErr := sr.Run(r.ctx)
		r.onStageComplete(runID, stageName, metrics, runErr)
		ar.wg.Done()
	}()
}

// startStageLocked builds and starts a stage runner unless one is already
// running for that stage. Caller holds r.mu.
func (r *Runner) startStageLocked(ar *activeRun, run *model.Run, stageName string) {
	if _, running := ar.stages[stageName]; running {
		return
	}
	sr := r.buildStageRunner(run, ar.definition, stageName)
	if sr == nil {
		return
	}
	r.spawnStageLocked(ar, run.ID, stageName, sr)
}

// onStageComplete folds a finished stage into the run record and starts any
// downstream stage whose feeding stages have all completed.
func (r *Runner) onStageComplete(runID, stageName string, metrics model.StageMetrics, runErr error) {
	// Run to completion even while the service context is shutting down, so
	// the stage outcome is not lost.
	ctx := context.WithoutCancel(r.ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	ar, tracked := r.active[runID]

	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		r.log.WithRun(runID).Error(err, "failed to load run after stage completion")
		return
	}

	run.ActiveStages = remove(run.ActiveStages, stageName)
	interrupted := errors.Is(runErr, context.Canceled) ||
		errors.Is(runErr, context.DeadlineExceeded) ||
		(run.Cancelled && !metrics.Done())
	if !interrupted {
		run.CompletedStages = appendUnique(run.CompletedStages, stageName)
		if metrics.Failed() > 0 || runErr != nil {
			run.FailedStages = appendUnique(run.FailedStages, stageName)
		}
	}
	if run.StageMetrics == nil {
		run.StageMetrics = make(map[string]model.StageMetrics)
	}
	run.StageMetrics[stageName] = metrics

	log := r.log.WithRun(runID).WithStage(stageName)
	if runErr != nil {
		log.Error(runErr, "stage runner exited with error")
	} else {
		log.WithFields(map[string]any{
			"successful": metrics.Successful,
			"failed":     metrics.Failed(),
		}).Info("stage completed")
	}

	if tracked && !run.Cancelled && runErr == nil {
		for _, next := range ar.definition.NextStages(stageName) {
			if !r.readyToStart(ctx, run, ar.definition, next.Name) {
				continue
			}
			run.ActiveStages = appendUnique(run.ActiveStages, next.Name)
			r.startStageLocked(ar, run, next.Name)
		}
	}

	r.refreshMetrics(ctx, run)
	r.finalizeIfDone(run)

	if err := r.store.UpsertRun(ctx, run); err != nil {
		r.log.WithRun(runID).Error(err, "failed to persist run after stage completion")
	}
}

// readyToStart reports whether a downstream stage can be started: every stage
// feeding into it has completed and at least one work item reached it. A
// stage no upstream item fanned out to never runs.
func (r *Runner) readyToStart(ctx context.Context, run *model.Run, def *config.Definition, stageName string) bool {
	if contains(run.ActiveStages, stageName) || contains(run.CompletedStages, stageName) {
		return false
	}
	for _, stage := range def.Stages {
		if !contains(stage.NextStages, stageName) {
			continue
		}
		if !contains(run.CompletedStages, stage.Name) {
			return false
		}
	}
	metrics, err := r.store.StageMetrics(ctx, run.ID, stageName)
	if err != nil {
		return false
	}
	return metrics.WorkItems > 0
}

func (r *Runner) refreshMetrics(ctx context.Context, run *model.Run) {
	if run.StageMetrics == nil {
		run.StageMetrics = make(map[string]model.StageMetrics)
	}
	for _, stageName := range run.AllStages {
		metrics, err := r.store.StageMetrics(ctx, run.ID, stageName)
		if err != nil {
			continue
		}
		if metrics.WorkItems > 0 {
			run.StageMetrics[stageName] = metrics
		}
	}
}

// finalizeIfDone stamps the completion time once no stage remains active.
// Caller holds r.mu.
func (r *Runner) finalizeIfDone(run *model.Run) {
	if len(run.ActiveStages) > 0 {
		return
	}
	if run.CompletedAt == nil {
		now := time.Now().UTC()
		run.CompletedAt = &now
	}
	delete(r.active, run.ID)

	r.log.WithRun(run.ID).WithFields(map[string]any{
		"state":  string(run.State()),
		"failed": len(run.FailedStages),
	}).Info("pipeline run finished")
}

// WaitForRun blocks until every stage runner of the run has exited. Waiting
// on an unknown or already-finished run returns immediately.
func (r *Runner) WaitForRun(runID string) {
	r.mu.Lock()
	ar, ok := r.active[runID]
	r.mu.Unlock()
	if !ok {
		return
	}
	ar.wg.Wait()
}

// CancelRun flags the run as cancelled. Stage runners observe the flag and
// stop dequeuing; in-flight items finish.
func (r *Runner) CancelRun(ctx context.Context, runID string) error {
	return r.store.CancelRun(ctx, runID)
}

// ServiceState reports the live status of every run the service tracks.
func (r *Runner) ServiceState(ctx context.Context) []RunStatus {
	r.mu.Lock()
	runIDs := make([]string, 0, len(r.active))
	for id := range r.active {
		runIDs = append(runIDs, id)
	}
	r.mu.Unlock()
	sort.Strings(runIDs)

	statuses := make([]RunStatus, 0, len(runIDs))
	for _, runID := range runIDs {
		run, err := r.store.GetRun(ctx, runID)
		if err != nil {
			continue
		}
		stages := make(map[string]model.StageMetrics)
		for _, stageName := range run.AllStages {
			metrics, err := r.store.StageMetrics(ctx, runID, stageName)
			if err != nil || metrics.WorkItems == 0 {
				continue
			}
			stages[stageName] = metrics
		}
		statuses = append(statuses, RunStatus{
			RunID:        runID,
			PipelineName: run.PipelineName,
			State:        run.State(),
			Stages:       stages,
		})
	}
	return statuses
}

// Close stops all stage runners and waits for them to exit.
func (r *Runner) Close() {
	r.cancel()

	r.mu.Lock()
	waiters := make([]*activeRun, 0, len(r.active))
	for _, ar := range r.active {
		waiters = append(waiters, ar)
	}
	r.mu.Unlock()

	for _, ar := range waiters {
		ar.wg.Wait()
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func appendUnique(values []string, target string) []string {
	if contains(values, target) {
		return values
	}
	return append(values, target)
}

func remove(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
