package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
)

// MemoryStore is an in-process Store implementation. It applies the same
// conditional-update discipline a document store would, so engine behavior
// under concurrent and redelivered updates is faithful.
type MemoryStore struct {
	mu sync.RWMutex

	runs         map[string]*model.Run
	contentItems map[string]map[string]model.ContentItem   // runID -> canonicalID
	workItems    map[string]map[string]*model.RunWorkItem  // runID -> workItemID
	markers      map[string]bool                           // pipeline|trigger|slot
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:         make(map[string]*model.Run),
		contentItems: make(map[string]map[string]model.ContentItem),
		workItems:    make(map[string]map[string]*model.RunWorkItem),
		markers:      make(map[string]bool),
	}
}

var _ Store = (*MemoryStore)(nil)

// UpsertRun persists a copy of the run record.
func (s *MemoryStore) UpsertRun(ctx context.Context, run *model.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cloneRun(run)
	return nil
}

// GetRun retrieves a copy of a run by id.
func (s *MemoryStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return cloneRun(run), nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*model.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*model.Run
	for _, run := range s.runs {
		if filter.PipelineName != "" && run.PipelineName != filter.PipelineName {
			continue
		}
		if len(filter.States) > 0 && !containsState(filter.States, run.State()) {
			continue
		}
		runs = append(runs, cloneRun(run))
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}

// HasActiveRunWithCanonicalID reports whether an unfinished run shares the
// canonical run id.
func (s *MemoryStore) HasActiveRunWithCanonicalID(ctx context.Context, canonicalRunID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, run := range s.runs {
		if run.CanonicalRunID == canonicalRunID && !run.Finished() && !run.Cancelled {
			return true, nil
		}
	}
	return false, nil
}

// CancelRun marks a run cancelled.
func (s *MemoryStore) CancelRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Cancelled = true
	return nil
}

// AppendRunErrors records error messages against a run.
func (s *MemoryStore) AppendRunErrors(ctx context.Context, runID string, errs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(errs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.Errors = append(run.Errors, errs...)
	return nil
}

// UpsertContentItems persists the content items of a run.
func (s *MemoryStore) UpsertContentItems(ctx context.Context, runID string, items []model.ContentItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.contentItems[runID]
	if !ok {
		byID = make(map[string]model.ContentItem, len(items))
		s.contentItems[runID] = byID
	}
	for _, item := range items {
		byID[item.CanonicalID] = item
	}
	return nil
}

// GetContentItem retrieves one content item of a run.
func (s *MemoryStore) GetContentItem(ctx context.Context, runID, canonicalID string) (*model.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.contentItems[runID][canonicalID]
	if !ok {
		return nil, fmt.Errorf("content item %s not found in run %s", canonicalID, runID)
	}
	return &item, nil
}

// UpsertWorkItems persists work items, preserving completion status of
// already-known ids.
func (s *MemoryStore) UpsertWorkItems(ctx context.Context, items []*model.RunWorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range items {
		byID, ok := s.workItems[item.RunID]
		if !ok {
			byID = make(map[string]*model.RunWorkItem)
			s.workItems[item.RunID] = byID
		}
		if existing, ok := byID[item.ID]; ok && existing.Completed {
			continue
		}
		clone := *item
		byID[item.ID] = &clone
	}
	return nil
}

// GetWorkItem retrieves a copy of a work item.
func (s *MemoryStore) GetWorkItem(ctx context.Context, runID, workItemID string) (*model.RunWorkItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.workItems[runID][workItemID]
	if !ok {
		return nil, fmt.Errorf("work item %s not found in run %s", workItemID, runID)
	}
	clone := *item
	return &clone, nil
}

// UpdateWorkItem persists mutated work item fields without downgrading a
// completed item back to pending.
func (s *MemoryStore) UpdateWorkItem(ctx context.Context, item *model.RunWorkItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workItems[item.RunID][item.ID]
	if !ok {
		return fmt.Errorf("work item %s not found in run %s", item.ID, item.RunID)
	}
	if existing.Completed && !item.Completed {
		return nil
	}
	clone := *item
	s.workItems[item.RunID][item.ID] = &clone
	return nil
}

// MarkWorkItemCompleted conditionally resolves a work item. First write wins.
func (s *MemoryStore) MarkWorkItemCompleted(ctx context.Context, runID, workItemID string, successful bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.workItems[runID][workItemID]
	if !ok {
		return false, fmt.Errorf("work item %s not found in run %s", workItemID, runID)
	}
	if item.Completed {
		return false, nil
	}
	item.Completed = true
	item.Successful = successful
	return true, nil
}

// StageMetrics derives counters from the stage's work items, never from a
// separately maintained tally, so they cannot drift.
func (s *MemoryStore) StageMetrics(ctx context.Context, runID, stage string) (model.StageMetrics, error) {
	if err := ctx.Err(); err != nil {
		return model.StageMetrics{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var metrics model.StageMetrics
	for _, item := range s.workItems[runID] {
		if item.Stage != stage {
			continue
		}
		metrics.WorkItems++
		if item.Completed {
			metrics.Completed++
		}
		if item.Completed && item.Successful {
			metrics.Successful++
		}
	}
	return metrics, nil
}

// CreateScheduledRunMarker conditionally records a scheduled firing.
func (s *MemoryStore) CreateScheduledRunMarker(ctx context.Context, pipeline, trigger string, slot time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := fmt.Sprintf("%s|%s|%d", pipeline, trigger, slot.UTC().Unix())
	if s.markers[key] {
		return false, nil
	}
	s.markers[key] = true
	return true, nil
}

func cloneRun(run *model.Run) *model.Run {
	clone := *run
	clone.AllStages = append([]string(nil), run.AllStages...)
	clone.ActiveStages = append([]string(nil), run.ActiveStages...)
	clone.CompletedStages = append([]string(nil), run.CompletedStages...)
	clone.FailedStages = append([]string(nil), run.FailedStages...)
	clone.Errors = append([]string(nil), run.Errors...)
	if run.StageMetrics != nil {
		clone.StageMetrics = make(map[string]model.StageMetrics, len(run.StageMetrics))
		for name, metrics := range run.StageMetrics {
			clone.StageMetrics[name] = metrics
		}
	}
	return &clone
}

func containsState(states []model.RunState, state model.RunState) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
