// Package scheduler fires schedule-type triggers on their cron expressions.
// Multiple scheduler replicas can run against the same state store: a
// conditional marker per (pipeline, trigger, slot) guarantees each due slot
// starts exactly one run.
package scheduler

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/conveyor/internal/config"
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/state"
	"github.com/alexisbeaulieu97/conveyor/internal/trigger"
)

// DefaultInterval is how often the scheduler evaluates trigger schedules.
const DefaultInterval = 20 * time.Second

// Options tunes the scheduler loop.
type Options struct {
	Interval time.Duration
}

// Scheduler evaluates the schedule triggers of a set of pipeline definitions.
type Scheduler struct {
	definitions []*config.Definition
	trigger     *trigger.Service
	store       state.Store
	log         *logger.Logger
	interval    time.Duration
}

// New builds a scheduler over the supplied definitions.
func New(definitions []*config.Definition, svc *trigger.Service, store state.Store, log *logger.Logger, opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		definitions: definitions,
		trigger:     svc,
		store:       store,
		log:         log,
		interval:    interval,
	}
}

// Run ticks at the configured interval until the context ends.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.WithFields(map[string]any{"interval": s.interval.String()}).Info("scheduler starting")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case now := <-ticker.C:
			s.Tick(ctx, now)
		}
	}
}

// Tick evaluates every schedule trigger once against the given instant. A
// trigger is due when its next cron occurrence after the previous tick falls
// at or before now. Due slots are claimed through the state store, so
// concurrent replicas ticking the same instant start a single run.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	for _, def := range s.definitions {
		if !def.Active {
			continue
		}
		for i := range def.Triggers {
			trig := &def.Triggers[i]
			if trig.Type != config.TriggerTypeSchedule {
				continue
			}
			s.evaluate(ctx, def, trig, now)
		}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, def *config.Definition, trig *config.Trigger, now time.Time) {
	log := s.log.WithFields(map[string]any{
		"pipeline": def.Name,
		"trigger":  trig.Name,
	})

	schedule, err := config.ParseCron(trig.Schedule)
	if err != nil {
		log.Error(err, "invalid trigger schedule")
		return
	}

	slot := schedule.Next(now.Add(-s.interval))
	if slot.After(now) {
		return
	}

	claimed, err := s.store.CreateScheduledRunMarker(ctx, def.Name, trig.Name, slot)
	if err != nil {
		log.Error(err, "failed to claim scheduled run slot")
		return
	}
	if !claimed {
		// Another replica owns this slot.
		return
	}

	run, err := s.trigger.TriggerRun(ctx, def, trigger.Request{
		PipelineName: def.Name,
		TriggerName:  trig.Name,
		Identity:     model.SystemIdentity,
	})
	if err != nil {
		log.Error(err, "failed to start scheduled run")
		return
	}

	log.WithRun(run.ID).WithFields(map[string]any{
		"slot": slot.UTC().Format(time.RFC3339),
	}).Info("scheduled run started")
}
