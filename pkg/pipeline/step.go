package pipeline

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/invoker"
	"github.com/trussle/expense/pkg/models"
)

// Step is one unit of work in a pipeline. Steps can be swapped for real
// integrations without changing how the pipeline sequences them.
type Step interface {

	// Name of the step, unique within a pipeline.
	Name() string

	// Execute the step with the state it receives and return its result.
	Execute(context.Context, json.RawMessage) (json.RawMessage, error)
}

// Describer is implemented by steps that can render themselves as a state of
// the orchestrator's definition.
type Describer interface {
	Describe() State
}

// Pass returns a fixed result and does no work.
type Pass struct {
	name    string
	comment string
	result  json.RawMessage
}

// NewPass creates a Pass step returning result, which must encode to JSON.
func NewPass(name, comment string, result interface{}) (*Pass, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Wrapf(err, "pass %s result", name)
	}
	return &Pass{
		name:    name,
		comment: comment,
		result:  b,
	}, nil
}

// Name of the step.
func (p *Pass) Name() string { return p.name }

// Execute returns the fixed result.
func (p *Pass) Execute(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.result, nil
}

// Describe renders the step as a Pass state.
func (p *Pass) Describe() State {
	return State{
		Type:    StatePass,
		Comment: p.comment,
		Result:  p.result,
	}
}

// Invoke calls the compute handler with the bucket name and object key of the
// triggering event, found at $.bucket.name and $.object.key of its input.
type Invoke struct {
	name     string
	comment  string
	function string
	invoker  invoker.Invoker
}

// NewInvoke creates an Invoke step. function names the handler in the
// rendered definition; invoker is what Execute calls.
func NewInvoke(name, comment, function string, invoker invoker.Invoker) *Invoke {
	return &Invoke{
		name:     name,
		comment:  comment,
		function: function,
		invoker:  invoker,
	}
}

// Name of the step.
func (i *Invoke) Name() string { return i.name }

// Execute forwards the storage location to the handler and returns the
// handler's response.
func (i *Invoke) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var detail models.ObjectCreated
	if err := json.Unmarshal(input, &detail); err != nil {
		return nil, errors.Wrap(err, "decoding input")
	}

	response, err := i.invoker.Invoke(ctx, detail.Input())
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(response)
	if err != nil {
		return nil, errors.Wrap(err, "encoding response")
	}
	return b, nil
}

// Describe renders the step as a Lambda invoke Task state.
func (i *Invoke) Describe() State {
	return State{
		Type:     StateTask,
		Comment:  i.comment,
		Resource: LambdaInvokeResource,
		Parameters: map[string]interface{}{
			"FunctionName": i.function,
			"Payload": map[string]interface{}{
				"bucket.$": "$.bucket.name",
				"key.$":    "$.object.key",
			},
		},
		OutputPath: "$.Payload",
	}
}
