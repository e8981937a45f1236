// Package trigger turns trigger requests into running pipeline runs: it
// validates the request against the pipeline definition, detects duplicate
// concurrent runs, materializes the run's content items from the data source,
// and hands the run to the pipeline runner.
package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/conveyor/internal/config"
	"github.com/alexisbeaulieu97/conveyor/internal/engine"
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/plugin"
	"github.com/alexisbeaulieu97/conveyor/internal/state"

	pkgerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// Request asks for one run of a pipeline.
type Request struct {
	PipelineName string
	TriggerName  string
	Parameters   map[string]any
	Identity     model.Identity
}

// Service validates trigger requests and starts pipeline runs.
type Service struct {
	store     state.Store
	artifacts state.ArtifactStore
	runner    *engine.Runner
	log       *logger.Logger

	now func() time.Time
}

// NewService builds the trigger service.
func NewService(store state.Store, artifacts state.ArtifactStore, runner *engine.Runner, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		artifacts: artifacts,
		runner:    runner,
		log:       log,
		now:       time.Now,
	}
}

// TriggerRun starts a run of the definition for the named trigger. It returns
// the created run, already handed to the pipeline runner.
func (s *Service) TriggerRun(ctx context.Context, def *config.Definition, req Request) (*model.Run, error) {
	if err := config.ValidateDefinition(def); err != nil {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName,
			"the pipeline definition is invalid", err)
	}

	if !def.Active {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName,
			"the pipeline is not active", nil)
	}

	trig := def.GetTrigger(req.TriggerName)
	if trig == nil {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName,
			"the pipeline does not define this trigger", nil)
	}

	params, err := resolveParameters(trig, req.Parameters)
	if err != nil {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName, "invalid trigger parameters", err)
	}

	canonicalID := CanonicalRunID(def.Name, params, trig.CanonicalIDParameters)
	active, err := s.store.HasActiveRunWithCanonicalID(ctx, canonicalID)
	if err != nil {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName, "failed to check for duplicate runs", err)
	}
	if active {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName,
			"a run with the same input is already in progress", nil)
	}

	source, err := plugin.NewDataSourcePlugin(def.DataSource.Plugin, mergedSourceParams(def, params), plugin.Dependencies{
		Store:     s.store,
		Artifacts: s.artifacts,
		Logger:    s.log,
	})
	if err != nil {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName, "failed to construct the data source plugin", err)
	}

	contentItems, err := source.List(ctx)
	if err != nil {
		return nil, pkgerrors.NewTriggerError(def.Name, req.TriggerName, "the data source failed to list content items", err)
	}

	now := s.now().UTC()
	run := &model.Run{
		ID:             newRunID(now),
		PipelineName:   def.Name,
		CanonicalRunID: canonicalID,
		TriggerName:    trig.Name,
		TriggerParams:  params,
		TriggeringUPN:  req.Identity.UPN,
		CreatedAt:      now,
	}

	if err := s.runner.StartRun(ctx, run, contentItems, def); err != nil {
		return nil, err
	}

	s.log.WithRun(run.ID).WithFields(map[string]any{
		"pipeline": def.Name,
		"trigger":  trig.Name,
		"upn":      req.Identity.UPN,
	}).Info("pipeline run triggered")

	return run, nil
}

// resolveParameters fills trigger defaults, overlays request values, and
// enforces the trigger's required parameter list.
func resolveParameters(trig *config.Trigger, requested map[string]any) (map[string]any, error) {
	params := make(map[string]any, len(trig.ParameterValues)+len(requested))
	for key, value := range trig.ParameterValues {
		params[key] = value
	}
	for key, value := range requested {
		params[key] = value
	}

	for _, name := range trig.RequiredParameters {
		if _, ok := params[name]; !ok {
			return nil, fmt.Errorf("missing required parameter %q", name)
		}
	}
	return params, nil
}

// mergedSourceParams hands the resolved trigger parameters to the data source
// plugin alongside its own configuration; the data source's own values win.
func mergedSourceParams(def *config.Definition, triggerParams map[string]any) map[string]any {
	merged := make(map[string]any, len(def.DataSource.Parameters)+len(triggerParams))
	for key, value := range triggerParams {
		merged[key] = value
	}
	for key, value := range def.DataSource.Parameters {
		merged[key] = value
	}
	return merged
}

func newRunID(now time.Time) string {
	return fmt.Sprintf("run-%s-%s", now.Format("20060102-150405"), uuid.NewString()[:8])
}
