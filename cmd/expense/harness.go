package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/queue"
	"github.com/trussle/expense/pkg/trigger"
)

const (
	defaultHarnessRate   = "1s"
	defaultHarnessCount  = 0
	defaultHarnessPrefix = "receipts/harness"
)

func runHarness(args []string) error {
	// flags for the harness command
	var (
		flagset = flag.NewFlagSet("harness", flag.ExitOnError)

		debug = flagset.Bool("debug", false, "debug logging")

		aws = registerAWSFlags(flagset)

		awsSQSQueue  = flagset.String("aws.sqs.queue", defaultAWSSQSQueue, "AWS configuration queue")
		ingestBucket = flagset.String("ingest.bucket", defaultIngestBucket, "bucket the synthetic receipts claim to be in")
		prefix       = flagset.String("key.prefix", defaultHarnessPrefix, "prefix of the synthetic object keys")
		rate         = flagset.String("rate", defaultHarnessRate, "how often to enqueue an event")
		count        = flagset.Int("count", defaultHarnessCount, "number of events to enqueue, 0 for no limit")
	)

	flagset.Usage = usageFor(flagset, "harness [flags]")
	if err := parseFlags(flagset, args); err != nil {
		return errors.Wrap(err, "flags")
	}

	logger := newLogger(*debug)

	rateDuration, err := time.ParseDuration(*rate)
	if err != nil {
		return err
	}

	// Configuration for the queue
	remoteConfig, err := queue.BuildRemoteConfig(
		queue.WithEC2Role(*aws.ec2Role),
		queue.WithID(*aws.id),
		queue.WithSecret(*aws.secret),
		queue.WithToken(*aws.token),
		queue.WithRegion(*aws.region),
		queue.WithEndpoint(*aws.endpoint),
		queue.WithQueue(*awsSQSQueue),
	)
	if err != nil {
		return errors.Wrap(err, "queue remote config")
	}

	queueConfig, err := queue.Build(
		queue.With(defaultQueue),
		queue.WithConfig(remoteConfig),
	)
	if err != nil {
		return errors.Wrap(err, "queue config")
	}

	q, err := queue.New(queueConfig, log.With(logger, "component", "queue"))
	if err != nil {
		return err
	}

	var g run.Group
	{
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return enqueueEvents(ctx, q, *ingestBucket, *prefix, rateDuration, *count, logger)
		}, func(error) {
			cancel()
		})
	}
	{
		cancel := make(chan struct{})
		g.Add(func() error {
			return interrupt(cancel)
		}, func(error) {
			close(cancel)
		})
	}
	return g.Run()
}

// enqueueEvents puts a synthetic object creation event on the queue every
// rate, until count events are sent or ctx is done.
func enqueueEvents(ctx context.Context, q queue.Queue, bucket, prefix string, rate time.Duration, count int, logger log.Logger) error {
	step := time.NewTicker(rate)
	defer step.Stop()

	for sent := 0; count <= 0 || sent < count; {
		select {
		case <-step.C:
			now := time.Now()
			key := fmt.Sprintf("%s/%d.pdf", prefix, now.UnixNano())

			event, err := trigger.NewObjectCreated(bucket, key, 0, now)
			if err != nil {
				return err
			}
			body, err := trigger.Encode(event)
			if err != nil {
				return err
			}
			if err := q.Enqueue(ctx, body); err != nil {
				level.Error(logger).Log("state", "enqueue failure", "err", err)
				return err
			}

			sent++
			level.Debug(logger).Log("state", "enqueued", "key", key)

		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
