package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus is the state of an orchestrator execution.
type ExecutionStatus string

// Execution states, named after the orchestrator's own.
const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionSucceeded ExecutionStatus = "SUCCEEDED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionTimedOut  ExecutionStatus = "TIMED_OUT"
)

// Execution records one run of the pipeline.
type Execution struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Status    ExecutionStatus `json:"status"`
	StartedAt time.Time       `json:"startedAt"`
	StoppedAt time.Time       `json:"stoppedAt,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Steps     []StepEvent     `json:"steps"`
}

// StepEvent records one step within an execution.
type StepEvent struct {
	Name      string          `json:"name"`
	StartedAt time.Time       `json:"startedAt"`
	StoppedAt time.Time       `json:"stoppedAt"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Done reports if the execution reached a terminal state.
func (e Execution) Done() bool {
	return e.Status != ExecutionRunning
}
