package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	conveyorerrors "github.com/alexisbeaulieu97/conveyor/pkg/errors"
)

const validDefinition = `
name: docs
description: Index documentation files
data_source:
  name: local-docs
  plugin: directory
  parameters:
    path: /tmp/docs
starting_stages: [extract]
stages:
  - name: extract
    plugin: text-extract
    next_stages: [partition]
  - name: partition
    plugin: token-partition
    parameters:
      partition_size_tokens: 500
      partition_overlap_tokens: 50
triggers:
  - name: manual
    type: manual
  - name: nightly
    type: schedule
    schedule: "0 2 * * *"
`

func TestParseDefinitionBytes(t *testing.T) {
	def, err := ParseDefinitionBytes([]byte(validDefinition))
	require.NoError(t, err)

	require.Equal(t, "docs", def.Name)
	require.True(t, def.Active)
	require.Equal(t, []string{"extract"}, def.StartingStages)
	require.Len(t, def.Stages, 2)
	require.NotNil(t, def.GetTrigger("nightly"))
	require.Nil(t, def.GetTrigger("weekly"))

	next := def.NextStages("extract")
	require.Len(t, next, 1)
	require.Equal(t, "partition", next[0].Name)
	require.Empty(t, def.NextStages("partition"))
}

func TestParseDefinitionFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validDefinition), 0o644))

	def, err := ParseDefinition(path)
	require.NoError(t, err)
	require.Equal(t, "docs", def.Name)
}

func TestParseDefinitionMissingFile(t *testing.T) {
	_, err := ParseDefinition(filepath.Join(t.TempDir(), "absent.yaml"))
	var parseErr *conveyorerrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestValidateDefinitionRejectsCycle(t *testing.T) {
	def := &Definition{
		Name:           "cyclic",
		Active:         true,
		DataSource:     DataSource{Name: "src", Plugin: "directory"},
		StartingStages: []string{"a"},
		Stages: []Stage{
			{Name: "a", Plugin: "p", NextStages: []string{"b"}},
			{Name: "b", Plugin: "p", NextStages: []string{"c"}},
			{Name: "c", Plugin: "p", NextStages: []string{"b"}},
		},
	}

	err := ValidateDefinition(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestValidateDefinitionRejectsUnknownReferences(t *testing.T) {
	def := &Definition{
		Name:           "docs",
		Active:         true,
		DataSource:     DataSource{Name: "src", Plugin: "directory"},
		StartingStages: []string{"extract"},
		Stages: []Stage{
			{Name: "extract", Plugin: "p", NextStages: []string{"missing"}},
		},
	}
	require.Error(t, ValidateDefinition(def))

	def.Stages[0].NextStages = nil
	def.StartingStages = []string{"missing"}
	require.Error(t, ValidateDefinition(def))
}

func TestValidateDefinitionRejectsDuplicateStages(t *testing.T) {
	def := &Definition{
		Name:           "docs",
		Active:         true,
		DataSource:     DataSource{Name: "src", Plugin: "directory"},
		StartingStages: []string{"extract"},
		Stages: []Stage{
			{Name: "extract", Plugin: "p"},
			{Name: "extract", Plugin: "p"},
		},
	}
	require.Error(t, ValidateDefinition(def))
}

func TestValidateDefinitionRejectsUnreachableStage(t *testing.T) {
	def := &Definition{
		Name:           "docs",
		Active:         true,
		DataSource:     DataSource{Name: "src", Plugin: "directory"},
		StartingStages: []string{"extract"},
		Stages: []Stage{
			{Name: "extract", Plugin: "p"},
			{Name: "orphan", Plugin: "p"},
		},
	}
	err := ValidateDefinition(def)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not reachable")
}

func TestValidateDefinitionRejectsBadCron(t *testing.T) {
	def, err := ParseDefinitionBytes([]byte(`
name: docs
data_source:
  name: src
  plugin: directory
starting_stages: [extract]
stages:
  - name: extract
    plugin: p
triggers:
  - name: broken
    type: schedule
    schedule: "not a cron"
`))
	require.Error(t, err)
	require.Nil(t, def)
}

func TestValidateDefinitionScheduleTriggerRequiresExpression(t *testing.T) {
	def := &Definition{
		Name:           "docs",
		Active:         true,
		DataSource:     DataSource{Name: "src", Plugin: "directory"},
		StartingStages: []string{"extract"},
		Stages:         []Stage{{Name: "extract", Plugin: "p"}},
		Triggers:       []Trigger{{Name: "nightly", Type: TriggerTypeSchedule}},
	}
	require.Error(t, ValidateDefinition(def))
}

func TestReachableStagesWithFanOutAndFanIn(t *testing.T) {
	def := &Definition{
		StartingStages: []string{"extract"},
		Stages: []Stage{
			{Name: "extract", NextStages: []string{"partition", "safety"}},
			{Name: "partition", NextStages: []string{"index"}},
			{Name: "safety", NextStages: []string{"index"}},
			{Name: "index"},
		},
	}

	reachable := def.ReachableStages()
	require.Len(t, reachable, 4)
	for _, name := range def.AllStageNames() {
		require.True(t, reachable[name])
	}
}
