package errors

import (
	"fmt"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures pipeline definition or trigger request validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExecutionError represents a runtime failure while running a pipeline stage.
type ExecutionError struct {
	RunID string
	Stage string
	Err   error
}

// NewExecutionError constructs an ExecutionError scoped to a run and stage.
func NewExecutionError(runID, stage string, err error) error {
	return &ExecutionError{RunID: runID, Stage: stage, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage != "" {
		return fmt.Sprintf("execution error on run %s stage %s: %v", e.RunID, e.Stage, e.Err)
	}
	return fmt.Sprintf("execution error on run %s: %v", e.RunID, e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// QueueError indicates a failure interacting with a work item queue.
type QueueError struct {
	Queue   string
	Op      string
	Message string
	Err     error
}

// NewQueueError constructs a QueueError for the given queue and operation.
func NewQueueError(queue, op string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &QueueError{Queue: queue, Op: op, Message: message, Err: err}
}

func (e *QueueError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("queue error: %s %s: %s", e.Queue, e.Op, e.Message)
}

// Unwrap exposes the underlying error.
func (e *QueueError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TriggerError indicates a trigger request that could not be materialized into a run.
type TriggerError struct {
	Pipeline string
	Trigger  string
	Message  string
	Err      error
}

// NewTriggerError constructs a TriggerError.
func NewTriggerError(pipeline, trigger, message string, err error) error {
	return &TriggerError{Pipeline: pipeline, Trigger: trigger, Message: message, Err: err}
}

func (e *TriggerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Trigger != "" {
		return fmt.Sprintf("trigger error: %s/%s: %s", e.Pipeline, e.Trigger, e.Message)
	}
	return fmt.Sprintf("trigger error: %s: %s", e.Pipeline, e.Message)
}

// Unwrap exposes the underlying error.
func (e *TriggerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PluginError indicates issues within plugin registration or construction.
type PluginError struct {
	Plugin  string
	Message string
	Err     error
}

// NewPluginError constructs a PluginError for the given plugin type.
func NewPluginError(plugin string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &PluginError{Plugin: plugin, Message: message, Err: err}
}

func (e *PluginError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("plugin error: %s: %s", e.Plugin, e.Message)
}

// Unwrap exposes the underlying error.
func (e *PluginError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
