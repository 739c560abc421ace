package consumer

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/audit"
	"github.com/trussle/expense/pkg/metrics"
	"github.com/trussle/expense/pkg/models"
	"github.com/trussle/expense/pkg/queue"
	"github.com/trussle/expense/pkg/trigger"
)

const (
	defaultTargetSize = 10
	defaultStepTime   = 100 * time.Millisecond
)

// Runner executes a pipeline for one trigger input.
type Runner interface {
	Run(context.Context, json.RawMessage) (models.Execution, error)
}

type pending struct {
	record queue.Record
	event  events.CloudWatchEvent
}

// Consumer reads trigger events from the queue and starts one pipeline
// execution per matching event. It's implemented as a state machine: gather
// events, execute, commit or fail, and repeat. Executions are independent, so
// a failure only invalidates the records whose execution failed.
type Consumer struct {
	queue        queue.Queue
	runner       Runner
	pattern      trigger.Pattern
	audit        audit.Log
	pending      []pending
	succeeded    []queue.Record
	failed       []queue.Record
	gatherErrors int
	running      int32
	targetSize   int
	ctx          context.Context
	cancel       context.CancelFunc
	stop         chan chan struct{}
	consumed     metrics.Counter
	dropped      metrics.Counter
	successes    metrics.Counter
	failures     metrics.Counter
	logger       log.Logger
}

// New creates a consumer.
func New(
	queue queue.Queue,
	runner Runner,
	pattern trigger.Pattern,
	audit audit.Log,
	consumed, dropped metrics.Counter,
	successes, failures metrics.Counter,
	logger log.Logger,
) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		queue:      queue,
		runner:     runner,
		pattern:    pattern,
		audit:      audit,
		targetSize: defaultTargetSize,
		ctx:        ctx,
		cancel:     cancel,
		stop:       make(chan chan struct{}),
		consumed:   consumed,
		dropped:    dropped,
		successes:  successes,
		failures:   failures,
		logger:     logger,
	}
}

// Run consumes events from the queue and executes the pipeline for each.
// Run returns when Stop is invoked.
func (c *Consumer) Run() {
	step := time.NewTicker(defaultStepTime)
	defer step.Stop()

	atomic.StoreInt32(&c.running, 1)
	defer atomic.StoreInt32(&c.running, 0)

	state := c.gather
	for {
		select {
		case <-step.C:
			state = state()

		case q := <-c.stop:
			c.release()
			close(q)
			return
		}
	}
}

// Stop the consumer from consuming. Events that have not been executed are
// handed back to the queue.
func (c *Consumer) Stop() {
	c.cancel()

	q := make(chan struct{})
	c.stop <- q
	<-q
}

// Ready returns an error unless Run is consuming.
func (c *Consumer) Ready() error {
	if atomic.LoadInt32(&c.running) == 0 {
		return errors.New("consumer not running")
	}
	return nil
}

// stateFn is a lazy chaining mechism, similar to a trampoline, but via
// calls through Run.
type stateFn func() stateFn

func (c *Consumer) gather() stateFn {
	var (
		base = log.With(c.logger, "state", "gather")
		warn = level.Warn(base)
	)

	// A naïve way to break out of the gather loop in atypical conditions.
	if c.gatherErrors > 0 {
		c.gatherErrors = 0
		if len(c.pending) == 0 {
			// Nothing to do but reset and try again.
			return c.gather
		}
		// Press forward with what we have.
		return c.execute
	}

	// More typical exit clauses.
	if len(c.pending) >= c.targetSize {
		return c.execute
	}

	records, err := c.queue.Dequeue(c.ctx)
	if err != nil {
		warn.Log("reason", "dequeuing", "err", err)
		c.gatherErrors++
		return c.gather
	}
	if len(records) == 0 {
		if len(c.pending) > 0 {
			return c.execute
		}
		return c.gather
	}

	var dropped []queue.Record
	for _, record := range records {
		c.consumed.Inc()

		event, err := trigger.Decode(record.Body)
		if err != nil {
			warn.Log("reason", "decoding", "message", record.MessageID, "err", err)
			dropped = append(dropped, record)
			continue
		}
		if !c.pattern.Match(event) {
			level.Debug(base).Log("reason", "unmatched", "message", record.MessageID, "source", event.Source)
			dropped = append(dropped, record)
			continue
		}
		c.pending = append(c.pending, pending{
			record: record,
			event:  event,
		})
	}

	if num := len(dropped); num > 0 {
		c.dropped.Add(float64(num))
		if _, err := c.queue.Commit(c.ctx, dropped); err != nil {
			warn.Log("reason", "dropping", "err", err)
		}
	}

	return c.gather
}

func (c *Consumer) execute() stateFn {
	base := log.With(c.logger, "state", "execute")

	for _, p := range c.pending {
		execution, err := c.runner.Run(c.ctx, trigger.Input(p.event))
		if err != nil {
			level.Warn(base).Log("message", p.record.MessageID, "execution", execution.ID, "err", err)
			c.failures.Inc()
			c.failed = append(c.failed, p.record)
		} else {
			c.successes.Inc()
			c.succeeded = append(c.succeeded, p.record)
		}

		if err := c.audit.Append(c.ctx, execution); err != nil {
			level.Warn(base).Log("reason", "auditing", "execution", execution.ID, "err", err)
		}
	}
	c.pending = c.pending[:0]

	return c.commit
}

func (c *Consumer) commit() stateFn {
	warn := level.Warn(log.With(c.logger, "state", "commit"))

	if len(c.succeeded) > 0 {
		res, err := c.queue.Commit(c.ctx, c.succeeded)
		if err != nil {
			warn.Log("err", err)
		} else if res.Failure > 0 {
			warn.Log("failed", res.Failure)
		}
		c.succeeded = c.succeeded[:0]
	}

	if len(c.failed) > 0 {
		return c.failure
	}
	return c.gather
}

func (c *Consumer) failure() stateFn {
	warn := level.Warn(log.With(c.logger, "state", "failure"))

	if _, err := c.queue.Failed(c.ctx, c.failed); err != nil {
		warn.Log("err", err)
	}
	c.failed = c.failed[:0]

	return c.gather
}

// release commits executed records and hands every other record still held
// back to the queue.
func (c *Consumer) release() {
	if len(c.succeeded) > 0 {
		if _, err := c.queue.Commit(context.Background(), c.succeeded); err != nil {
			level.Warn(c.logger).Log("state", "stopping", "err", err)
		}
		c.succeeded = c.succeeded[:0]
	}

	records := c.failed
	for _, p := range c.pending {
		records = append(records, p.record)
	}
	if len(records) == 0 {
		return
	}

	if _, err := c.queue.Failed(context.Background(), records); err != nil {
		level.Warn(c.logger).Log("state", "stopping", "err", err)
	}
	c.pending = c.pending[:0]
	c.failed = c.failed[:0]
}
