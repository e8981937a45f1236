package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/conveyor/internal/model"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true)
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle       = lipgloss.NewStyle().Faint(true)
)

func stateStyle(state model.RunState) lipgloss.Style {
	switch state {
	case model.RunStateCompleted:
		return completedStyle
	case model.RunStateFailed:
		return failedStyle
	default:
		return pendingStyle
	}
}

// renderRunSummary formats a run's final status for the terminal.
func renderRunSummary(run *model.Run) string {
	var sb strings.Builder

	state := run.State()
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Run %s", run.ID)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%s  %s\n",
		dimStyle.Render(run.PipelineName),
		stateStyle(state).Render(string(state))))

	for _, stageName := range run.AllStages {
		metrics, ok := run.StageMetrics[stageName]
		if !ok {
			sb.WriteString(fmt.Sprintf("  %s %s\n", stageName, dimStyle.Render("no work items")))
			continue
		}
		line := fmt.Sprintf("  %s %d/%d succeeded", stageName, metrics.Successful, metrics.WorkItems)
		if failed := metrics.Failed(); failed > 0 {
			line += failedStyle.Render(fmt.Sprintf(" %d failed", failed))
		}
		sb.WriteString(line + "\n")
	}

	if len(run.Errors) > 0 {
		sb.WriteString(failedStyle.Render("Errors:") + "\n")
		for _, msg := range run.Errors {
			sb.WriteString("  " + msg + "\n")
		}
	}

	total, succeeded, failed := run.Totals()
	sb.WriteString(dimStyle.Render(
		fmt.Sprintf("%d work items, %d succeeded, %d failed", total, succeeded, failed)))

	return sb.String()
}
