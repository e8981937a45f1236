package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/conveyor/internal/config"
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/queue"
	"github.com/alexisbeaulieu97/conveyor/internal/state"
)

// errLeaseLost signals that the queue lease for an in-flight item expired and
// the item was handed to another consumer. The losing side must not write
// results for it.
var errLeaseLost = errors.New("work item lease lost")

// StageRunnerOptions tunes a stage runner loop.
type StageRunnerOptions struct {
	BatchSize         int
	PollInterval      time.Duration
	VisibilityTimeout time.Duration
	ExecuteTimeout    time.Duration
	MaxFailedAttempts int
}

func (o StageRunnerOptions) withDefaults() StageRunnerOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = 8
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = queue.DefaultVisibilityTimeout
	}
	if o.ExecuteTimeout <= 0 {
		o.ExecuteTimeout = 5 * time.Minute
	}
	if o.MaxFailedAttempts <= 0 {
		o.MaxFailedAttempts = queue.DefaultMaxDeliveryCount
	}
	return o
}

// StageRunner drives one stage of one run to completion: it pulls work item
// references from the stage's queue, invokes the stage plugin, updates
// per-item status, and fans produced work out to downstream stage queues.
type StageRunner struct {
	runID      string
	stage      config.Stage
	plug       plugin.StagePlugin
	queue      queue.Queue[model.WorkItemRef]
	downstream map[string]queue.Queue[model.WorkItemRef]
	store      state.Store
	log        *logger.Logger
	opts       StageRunnerOptions
}

// NewStageRunner builds a runner for one (run, stage) pair.
func NewStageRunner(
	runID string,
	stage config.Stage,
	plug plugin.StagePlugin,
	provider queue.Provider[model.WorkItemRef],
	store state.Store,
	log *logger.Logger,
	opts StageRunnerOptions,
) *StageRunner {
	downstream := make(map[string]queue.Queue[model.WorkItemRef], len(stage.NextStages))
	for _, next := range stage.NextStages {
		downstream[next] = provider.StageQueue(runID, next)
	}

	return &StageRunner{
		runID:      runID,
		stage:      stage,
		plug:       plug,
		queue:      provider.StageQueue(runID, stage.Name),
		downstream: downstream,
		store:      store,
		log:        log.WithRun(runID).WithStage(stage.Name),
		opts:       opts.withDefaults(),
	}
}

// Run loops until every work item of the stage is resolved, the run is
// cancelled, or the context ends. It returns the final stage counters.
func (r *StageRunner) Run(ctx context.Context) (model.StageMetrics, error) {
	r.log.Info("stage runner starting")

	for {
		if err := ctx.Err(); err != nil {
			metrics, _ := r.store.StageMetrics(context.WithoutCancel(ctx), r.runID, r.stage.Name)
			return metrics, err
		}

		run, err := r.store.GetRun(ctx, r.runID)
		if err != nil {
			return model.StageMetrics{}, err
		}
		if run.Cancelled {
			// Stop dequeuing; already-leased items finish or expire naturally.
			r.log.Info("run cancelled, stage runner stopping")
			metrics, err := r.store.StageMetrics(ctx, r.runID, r.stage.Name)
			return metrics, err
		}

		r.reconcileDeadLetters(ctx)

		has, err := r.queue.HasMessages(ctx)
		if err != nil {
			r.log.Error(err, "failed to probe stage queue")
			sleepCtx(ctx, r.opts.PollInterval)
			continue
		}
		if !has {
			// The stage is finished only once the queue has also drained, so
			// redelivered duplicates of resolved items get cleaned up first.
			metrics, err := r.store.StageMetrics(ctx, r.runID, r.stage.Name)
			if err != nil {
				return model.StageMetrics{}, err
			}
			if metrics.Done() {
				r.log.WithFields(map[string]any{
					"work_items": metrics.WorkItems,
					"successful": metrics.Successful,
					"failed":     metrics.Failed(),
				}).Info("stage runner finished")
				return metrics, nil
			}
			sleepCtx(ctx, r.opts.PollInterval)
			continue
		}

		messages, err := r.queue.Receive(ctx, r.opts.BatchSize)
		if err != nil {
			r.log.Error(err, "failed to receive work item messages")
			sleepCtx(ctx, r.opts.PollInterval)
			continue
		}

		// Process the batch concurrently; sequential processing would let the
		// leases of later messages expire while earlier ones execute.
		var wg sync.WaitGroup
		for _, msg := range messages {
			wg.Add(1)
			go func(m *queue.Message[model.WorkItemRef]) {
				defer wg.Done()
				r.processMessage(ctx, m)
			}(msg)
		}
		wg.Wait()
	}
}

func (r *StageRunner) processMessage(ctx context.Context, msg *queue.Message[model.WorkItemRef]) {
	log := r.log.WithFields(map[string]any{"work_item_id": msg.Payload.WorkItemID})

	item, err := r.store.GetWorkItem(ctx, msg.Payload.RunID, msg.Payload.WorkItemID)
	if err != nil {
		// The message references a work item the store does not know; it can
		// never be processed, so drop it.
		log.Error(err, "dropping message with unknown work item")
		_, _ = r.queue.Delete(ctx, msg)
		return
	}

	if item.Completed {
		// Redelivery of an already-resolved item: delete without recounting.
		_, _ = r.queue.Delete(ctx, msg)
		return
	}

	if item.FailedProcessingAttempts >= r.opts.MaxFailedAttempts {
		item.Errors = append(item.Errors, "too many failed processing attempts")
		r.failPermanently(ctx, item, msg)
		return
	}

	item.ProcessingAttempts++

	result, current, err := r.execute(ctx, msg, item)
	if errors.Is(err, errLeaseLost) {
		log.Warn("lease lost while executing work item, discarding result")
		return
	}
	if err != nil {
		result = plugin.Result{ErrorMessage: "the stage plugin failed while processing the work item"}
		log.Error(err, "stage plugin invocation failed")
	}

	switch {
	case result.Success:
		item.OutputArtifactID = result.Value
		if err := r.fanOut(ctx, item); err != nil {
			// The downstream enqueue did not complete its unit of work: keep
			// the source item so no work is silently lost.
			log.Error(err, "failed to fan out to downstream stages, retrying later")
			r.retryLater(ctx, item, current)
			return
		}
		r.resolve(ctx, item, current, true)

	case result.StopProcessing:
		item.Errors = append(item.Errors, userMessage(result))
		item.FailedProcessingAttempts++
		r.failPermanently(ctx, item, current)

	default:
		item.Errors = append(item.Errors, userMessage(result))
		item.FailedProcessingAttempts++
		r.retryLater(ctx, item, current)
	}
}

// execute invokes the plugin under a per-item timeout, renewing the queue
// lease whenever execution runs past half the visibility window. It returns
// the message carrying the currently valid receipt.
func (r *StageRunner) execute(
	ctx context.Context,
	msg *queue.Message[model.WorkItemRef],
	item *model.RunWorkItem,
) (plugin.Result, *queue.Message[model.WorkItemRef], error) {
	execCtx, cancel := context.WithTimeout(ctx, r.opts.ExecuteTimeout)
	defer cancel()

	type outcome struct {
		result plugin.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := r.plug.Execute(execCtx, item)
		done <- outcome{result: result, err: err}
	}()

	ticker := time.NewTicker(r.opts.VisibilityTimeout / 2)
	defer ticker.Stop()

	current := msg
	for {
		select {
		case out := <-done:
			return out.result, current, out.err

		case <-ticker.C:
			renewed, err := r.queue.RenewLease(ctx, current, false)
			if err != nil {
				r.log.Error(err, "failed to renew work item lease")
				continue
			}
			if renewed == nil {
				cancel()
				return plugin.Result{}, current, errLeaseLost
			}
			current = renewed

		case <-execCtx.Done():
			return plugin.Result{}, current, execCtx.Err()
		}
	}
}

// fanOut enqueues one downstream work item per declared next stage. Work
// items use deterministic ids and are upserted before enqueueing, so a
// redelivered fan-out converges instead of duplicating.
func (r *StageRunner) fanOut(ctx context.Context, item *model.RunWorkItem) error {
	for _, next := range r.stage.NextStages {
		downstreamItem := model.NewRunWorkItem(
			r.runID, next, r.stage.Name,
			item.ContentItemCanonicalID, item.OutputArtifactID)

		if err := r.store.UpsertWorkItems(ctx, []*model.RunWorkItem{downstreamItem}); err != nil {
			return fmt.Errorf("persisting work item for stage %s: %w", next, err)
		}

		if _, err := r.downstream[next].Enqueue(ctx, model.WorkItemRef{
			WorkItemID: downstreamItem.ID,
			RunID:      r.runID,
		}); err != nil {
			return fmt.Errorf("enqueueing work item for stage %s: %w", next, err)
		}
	}
	return nil
}

func (r *StageRunner) resolve(ctx context.Context, item *model.RunWorkItem, msg *queue.Message[model.WorkItemRef], successful bool) {
	first, err := r.store.MarkWorkItemCompleted(ctx, r.runID, item.ID, successful)
	if err != nil {
		r.log.Error(err, "failed to mark work item completed")
		return
	}

	item.Completed = true
	item.Successful = successful
	if err := r.store.UpdateWorkItem(ctx, item); err != nil {
		r.log.Error(err, "failed to persist work item status")
	}

	if first && !successful {
		messages := make([]string, 0, len(item.Errors))
		for _, msg := range item.Errors {
			messages = append(messages,
				fmt.Sprintf("[%s/%s] %s", r.stage.Name, item.ContentItemCanonicalID, msg))
		}
		if err := r.store.AppendRunErrors(ctx, r.runID, messages); err != nil {
			r.log.Error(err, "failed to record run errors")
		}
	}

	if msg != nil {
		if _, err := r.queue.Delete(ctx, msg); err != nil {
			r.log.Error(err, "failed to delete work item message")
		}
	}
}

// failPermanently records a non-retryable outcome for the item. This is fatal
// per item, not per run.
func (r *StageRunner) failPermanently(ctx context.Context, item *model.RunWorkItem, msg *queue.Message[model.WorkItemRef]) {
	r.resolve(ctx, item, msg, false)
}

func (r *StageRunner) retryLater(ctx context.Context, item *model.RunWorkItem, msg *queue.Message[model.WorkItemRef]) {
	if err := r.store.UpdateWorkItem(ctx, item); err != nil {
		r.log.Error(err, "failed to persist work item attempt counters")
	}
	if _, err := r.queue.RenewLease(ctx, msg, true); err != nil {
		r.log.Error(err, "failed to schedule work item retry")
	}
}

// reconcileDeadLetters converts items the queue gave up on into permanent
// failures.
func (r *StageRunner) reconcileDeadLetters(ctx context.Context) {
	dl, ok := r.queue.(queue.DeadLetterer[model.WorkItemRef])
	if !ok {
		return
	}

	messages, err := dl.ReceiveDeadLetters(ctx)
	if err != nil {
		r.log.Error(err, "failed to receive dead-lettered messages")
		return
	}

	for _, msg := range messages {
		item, err := r.store.GetWorkItem(ctx, msg.Payload.RunID, msg.Payload.WorkItemID)
		if err != nil || item.Completed {
			continue
		}
		item.Errors = append(item.Errors, "the work item exceeded the maximum delivery count")
		// Dead-lettered messages are already off the queue.
		r.failPermanently(ctx, item, nil)
	}
}

func userMessage(result plugin.Result) string {
	if result.ErrorMessage != "" {
		return result.ErrorMessage
	}
	return "the stage plugin encountered an error while processing the work item"
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
