package config

import (
	"time"
)

// TriggerTypeManual and TriggerTypeSchedule are the supported trigger kinds.
const (
	TriggerTypeManual   = "manual"
	TriggerTypeSchedule = "schedule"
)

// Definition represents a full pipeline definition document.
type Definition struct {
	Name        string `yaml:"name" validate:"required,pipeline_name"`
	Description string `yaml:"description,omitempty"`
	Active      bool   `yaml:"active,omitempty"`

	DataSource     DataSource `yaml:"data_source" validate:"required"`
	StartingStages []string   `yaml:"starting_stages" validate:"required,min=1"`
	Stages         []Stage    `yaml:"stages" validate:"required,min=1,dive"`
	Triggers       []Trigger  `yaml:"triggers,omitempty" validate:"omitempty,dive"`
}

// Stage describes one node in the pipeline's processing DAG.
type Stage struct {
	Name       string         `yaml:"name" validate:"required,stage_name"`
	Plugin     string         `yaml:"plugin" validate:"required"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
	NextStages []string       `yaml:"next_stages,omitempty"`
}

// DataSource references the plugin that materializes content items for a run.
type DataSource struct {
	Name       string         `yaml:"name" validate:"required"`
	Plugin     string         `yaml:"plugin" validate:"required"`
	Parameters map[string]any `yaml:"parameters,omitempty"`
}

// Trigger describes how a run of the pipeline can be started.
type Trigger struct {
	Name               string         `yaml:"name" validate:"required"`
	Type               string         `yaml:"type" validate:"required,oneof=manual schedule"`
	Schedule           string         `yaml:"schedule,omitempty" validate:"omitempty,cron"`
	ParameterValues    map[string]any `yaml:"parameter_values,omitempty"`
	RequiredParameters []string       `yaml:"required_parameters,omitempty"`
	// CanonicalIDParameters selects the trigger parameters that participate in
	// the canonical run id. Empty means all parameters participate.
	CanonicalIDParameters []string `yaml:"canonical_id_parameters,omitempty"`
}

// Snapshot is an immutable capture of a definition at trigger time, so
// in-flight runs are unaffected by later edits to the pipeline.
type Snapshot struct {
	Name       string
	CapturedAt time.Time
	Definition *Definition
}

// NewSnapshot captures the definition for a run.
func NewSnapshot(def *Definition, now time.Time) *Snapshot {
	return &Snapshot{
		Name:       def.Name,
		CapturedAt: now,
		Definition: def,
	}
}

// GetStage returns the named stage, or nil when the definition does not contain it.
func (d *Definition) GetStage(name string) *Stage {
	for i := range d.Stages {
		if d.Stages[i].Name == name {
			return &d.Stages[i]
		}
	}
	return nil
}

// GetTrigger returns the named trigger, or nil when the definition does not contain it.
func (d *Definition) GetTrigger(name string) *Trigger {
	for i := range d.Triggers {
		if d.Triggers[i].Name == name {
			return &d.Triggers[i]
		}
	}
	return nil
}

// AllStageNames lists every stage name in definition order.
func (d *Definition) AllStageNames() []string {
	names := make([]string, 0, len(d.Stages))
	for i := range d.Stages {
		names = append(names, d.Stages[i].Name)
	}
	return names
}

// NextStages returns the declared downstream stages of the named stage.
func (d *Definition) NextStages(name string) []*Stage {
	stage := d.GetStage(name)
	if stage == nil {
		return nil
	}
	next := make([]*Stage, 0, len(stage.NextStages))
	for _, nextName := range stage.NextStages {
		if nextStage := d.GetStage(nextName); nextStage != nil {
			next = append(next, nextStage)
		}
	}
	return next
}

// ReachableStages returns the set of stage names reachable from the starting
// stages, walking the parent to children adjacency with a visited guard.
func (d *Definition) ReachableStages() map[string]bool {
	reachable := make(map[string]bool, len(d.Stages))
	frontier := append([]string(nil), d.StartingStages...)

	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]
		if reachable[name] {
			continue
		}
		reachable[name] = true
		if stage := d.GetStage(name); stage != nil {
			frontier = append(frontier, stage.NextStages...)
		}
	}

	return reachable
}
