package main

import (
	"fmt"

	"github.com/alexisbeaulieu97/conveyor/internal/config"
	"github.com/alexisbeaulieu97/conveyor/internal/engine"
	"github.com/alexisbeaulieu97/conveyor/internal/logger"
	"github.com/alexisbeaulieu97/conveyor/internal/model"
	"github.com/alexisbeaulieu97/conveyor/internal/queue"
	"github.com/alexisbeaulieu97/conveyor/internal/state"
	"github.com/alexisbeaulieu97/conveyor/internal/trigger"
)

// appContext wires the in-process services a CLI invocation needs.
type appContext struct {
	log     *logger.Logger
	store   state.Store
	runner  *engine.Runner
	trigger *trigger.Service
}

func newAppContext(verbose bool) (*appContext, error) {
	level := "info"
	if verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store := state.NewMemoryStore()
	artifacts := state.NewMemoryArtifacts()
	runner := engine.NewRunner(
		store, artifacts,
		queue.NewMemoryProvider[model.WorkItemRef](queue.MemoryOptions{}),
		log,
		engine.RunnerOptions{},
	)

	return &appContext{
		log:     log,
		store:   store,
		runner:  runner,
		trigger: trigger.NewService(store, artifacts, runner, log),
	}, nil
}

func (a *appContext) Close() {
	a.runner.Close()
}

func loadDefinition(path string) (*config.Definition, error) {
	def, err := config.ParseDefinition(path)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateDefinition(def); err != nil {
		return nil, err
	}
	return def, nil
}
