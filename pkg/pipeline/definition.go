package pipeline

import (
	"encoding/json"
)

// State types used by the rendered definition.
const (
	StatePass = "Pass"
	StateTask = "Task"
)

// LambdaInvokeResource is the optimised Lambda integration of the orchestrator.
const LambdaInvokeResource = "arn:aws:states:::lambda:invoke"

// StateMachine is an Amazon States Language document.
type StateMachine struct {
	Comment        string           `json:"Comment,omitempty"`
	StartAt        string           `json:"StartAt"`
	TimeoutSeconds int              `json:"TimeoutSeconds,omitempty"`
	States         map[string]State `json:"States"`
}

// State is a single state of a StateMachine.
type State struct {
	Type       string                 `json:"Type"`
	Comment    string                 `json:"Comment,omitempty"`
	Result     json.RawMessage        `json:"Result,omitempty"`
	Resource   string                 `json:"Resource,omitempty"`
	Parameters map[string]interface{} `json:"Parameters,omitempty"`
	ResultPath string                 `json:"ResultPath,omitempty"`
	OutputPath string                 `json:"OutputPath,omitempty"`
	Next       string                 `json:"Next,omitempty"`
	End        bool                   `json:"End,omitempty"`
}

// JSON encodes the definition as the orchestrator expects it.
func (s StateMachine) JSON() (string, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
