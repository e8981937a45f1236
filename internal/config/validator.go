package config

import (
	"fmt"
	"strings"

	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

// ValidateDefinition runs field-level and structural validation over a
// pipeline definition. The stage graph must be a DAG; a definition with a
// cycle is rejected here, before any run is created.
func ValidateDefinition(def *Definition) error {
	if def == nil {
		return conveyorerrors.NewValidationError("", "definition cannot be nil", nil)
	}

	if err := validatorInstance().Struct(def); err != nil {
		return conveyorerrors.NewValidationError("", err.Error(), err)
	}

	seen := make(map[string]bool, len(def.Stages))
	for _, stage := range def.Stages {
		if seen[stage.Name] {
			return conveyorerrors.NewValidationError("stages",
				fmt.Sprintf("duplicate stage name %q", stage.Name), nil)
		}
		seen[stage.Name] = true
	}

	for _, name := range def.StartingStages {
		if !seen[name] {
			return conveyorerrors.NewValidationError("starting_stages",
				fmt.Sprintf("unknown starting stage %q", name), nil)
		}
	}

	for _, stage := range def.Stages {
		for _, next := range stage.NextStages {
			if !seen[next] {
				return conveyorerrors.NewValidationError("stages",
					fmt.Sprintf("stage %q references unknown next stage %q", stage.Name, next), nil)
			}
			if next == stage.Name {
				return conveyorerrors.NewValidationError("stages",
					fmt.Sprintf("stage %q references itself", stage.Name), nil)
			}
		}
	}

	if cycle := detectCycle(def.Stages); len(cycle) > 0 {
		return conveyorerrors.NewValidationError("stages",
			fmt.Sprintf("stage graph contains a cycle: %s", strings.Join(cycle, " -> ")), nil)
	}

	reachable := def.ReachableStages()
	for _, stage := range def.Stages {
		if !reachable[stage.Name] {
			return conveyorerrors.NewValidationError("stages",
				fmt.Sprintf("stage %q is not reachable from any starting stage", stage.Name), nil)
		}
	}

	for _, trigger := range def.Triggers {
		if trigger.Type == TriggerTypeSchedule && trigger.Schedule == "" {
			return conveyorerrors.NewValidationError("triggers",
				fmt.Sprintf("schedule trigger %q has no cron schedule", trigger.Name), nil)
		}
	}

	return nil
}
