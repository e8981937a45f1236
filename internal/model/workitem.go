package model

import (
	"fmt"

	"github.com/google/uuid"
)

// workItemNamespace seeds deterministic work item identifiers. Re-deriving the
// same id for the same (run, stage, content item) makes downstream fan-out
// idempotent under at-least-once queue delivery.
var workItemNamespace = uuid.MustParse("9db82c10-5a0e-4f8f-9a6b-58a3f64d21c7")

// RunWorkItem is one unit of stage work for one content item of a run.
type RunWorkItem struct {
	ID            string `json:"id"`
	RunID         string `json:"run_id"`
	Stage         string `json:"stage"`
	PreviousStage string `json:"previous_stage,omitempty"`

	ContentItemCanonicalID string `json:"content_item_canonical_id"`
	InputArtifactID        string `json:"input_artifact_id"`
	OutputArtifactID       string `json:"output_artifact_id,omitempty"`

	Completed  bool     `json:"completed"`
	Successful bool     `json:"successful"`
	Errors     []string `json:"errors,omitempty"`

	ProcessingAttempts       int `json:"processing_attempts"`
	FailedProcessingAttempts int `json:"failed_processing_attempts"`
}

// NewRunWorkItem builds a work item with a deterministic identifier.
func NewRunWorkItem(runID, stage, previousStage, canonicalID, inputArtifactID string) *RunWorkItem {
	return &RunWorkItem{
		ID:                     WorkItemID(runID, stage, canonicalID),
		RunID:                  runID,
		Stage:                  stage,
		PreviousStage:          previousStage,
		ContentItemCanonicalID: canonicalID,
		InputArtifactID:        inputArtifactID,
	}
}

// WorkItemID derives the stable identifier for a (run, stage, content item) triple.
func WorkItemID(runID, stage, canonicalID string) string {
	return uuid.NewSHA1(workItemNamespace,
		[]byte(fmt.Sprintf("%s|%s|%s", runID, stage, canonicalID))).String()
}

// WorkItemRef is the queue message payload referencing a persisted work item.
type WorkItemRef struct {
	WorkItemID string `json:"work_item_id"`
	RunID      string `json:"run_id"`
}
