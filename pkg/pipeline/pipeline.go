package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/models"
)

const defaultTimeout = 5 * time.Minute

type stage struct {
	step       Step
	resultPath string
}

// Pipeline runs its steps one after another. There is no branching, no
// looping and no retrying; the first failing step ends the execution.
type Pipeline struct {
	name    string
	comment string
	timeout time.Duration
	stages  []stage
	clock   func() time.Time
	logger  log.Logger
}

// New creates an empty pipeline.
func New(name, comment string, logger log.Logger) *Pipeline {
	return &Pipeline{
		name:    name,
		comment: comment,
		timeout: defaultTimeout,
		clock:   time.Now,
		logger:  logger,
	}
}

// WithTimeout bounds the whole execution.
func (p *Pipeline) WithTimeout(timeout time.Duration) *Pipeline {
	p.timeout = timeout
	return p
}

// Then appends a step whose result is placed at resultPath.
func (p *Pipeline) Then(step Step, resultPath string) error {
	if err := validPath(resultPath); err != nil {
		return errors.Wrapf(err, "step %s", step.Name())
	}
	for _, s := range p.stages {
		if s.step.Name() == step.Name() {
			return errors.Errorf("duplicate step %s", step.Name())
		}
	}
	p.stages = append(p.stages, stage{
		step:       step,
		resultPath: resultPath,
	})
	return nil
}

// Name of the pipeline.
func (p *Pipeline) Name() string { return p.name }

// Steps returns the names of the steps in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.stages))
	for k, s := range p.stages {
		names[k] = s.step.Name()
	}
	return names
}

// Run executes every step in order with input as the initial state. The
// returned execution is complete even when an error is returned.
func (p *Pipeline) Run(ctx context.Context, input json.RawMessage) (models.Execution, error) {
	id := uuid.New()
	execution := models.Execution{
		ID:        id,
		Name:      id.String(),
		Status:    models.ExecutionRunning,
		StartedAt: p.clock(),
		Input:     input,
		Steps:     make([]models.StepEvent, 0, len(p.stages)),
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logger := log.With(p.logger, "execution", execution.Name)
	level.Debug(logger).Log("state", "started", "pipeline", p.name)

	state := input
	for _, s := range p.stages {
		name := s.step.Name()
		event := models.StepEvent{
			Name:      name,
			StartedAt: p.clock(),
		}

		output, err := p.execute(ctx, s.step, state)
		if err == nil {
			state, err = applyResultPath(state, output, s.resultPath)
		}
		event.StoppedAt = p.clock()
		event.Output = output

		if err != nil {
			event.Error = err.Error()
			execution.Steps = append(execution.Steps, event)

			err = errors.Wrapf(err, "step %s", name)
			return p.fail(ctx, logger, execution, err), err
		}

		execution.Steps = append(execution.Steps, event)
		level.Debug(logger).Log("state", "step", "step", name)
	}

	execution.Status = models.ExecutionSucceeded
	execution.StoppedAt = p.clock()
	execution.Output = state

	level.Info(logger).Log("state", "succeeded", "duration", execution.StoppedAt.Sub(execution.StartedAt))
	return execution, nil
}

func (p *Pipeline) execute(ctx context.Context, step Step, state json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return step.Execute(ctx, state)
}

func (p *Pipeline) fail(ctx context.Context, logger log.Logger, execution models.Execution, err error) models.Execution {
	execution.Status = models.ExecutionFailed
	if ctx.Err() == context.DeadlineExceeded {
		execution.Status = models.ExecutionTimedOut
	}
	execution.StoppedAt = p.clock()
	execution.Error = err.Error()

	level.Error(logger).Log("state", execution.Status, "err", err)
	return execution
}

// Definition renders the pipeline as an Amazon States Language document.
func (p *Pipeline) Definition() (StateMachine, error) {
	if len(p.stages) == 0 {
		return StateMachine{}, errors.New("pipeline has no steps")
	}

	machine := StateMachine{
		Comment:        p.comment,
		StartAt:        p.stages[0].step.Name(),
		TimeoutSeconds: int(p.timeout / time.Second),
		States:         make(map[string]State, len(p.stages)),
	}
	for k, s := range p.stages {
		describer, ok := s.step.(Describer)
		if !ok {
			return StateMachine{}, errors.Errorf("step %s can not be described", s.step.Name())
		}

		state := describer.Describe()
		if s.resultPath != RootPath {
			state.ResultPath = s.resultPath
		}
		if k == len(p.stages)-1 {
			state.End = true
		} else {
			state.Next = p.stages[k+1].step.Name()
		}
		machine.States[s.step.Name()] = state
	}
	return machine, nil
}
