package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/oklog/run"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trussle/expense/pkg/audit"
	"github.com/trussle/expense/pkg/consumer"
	"github.com/trussle/expense/pkg/invoker"
	"github.com/trussle/expense/pkg/pipeline"
	"github.com/trussle/expense/pkg/processor"
	"github.com/trussle/expense/pkg/queue"
	"github.com/trussle/expense/pkg/status"
	"github.com/trussle/expense/pkg/trigger"
)

const (
	defaultQueue               = "remote"
	defaultAuditLog            = "nop"
	defaultInvoker             = "local"
	defaultRunnerStore         = "virtual"
	defaultAWSSQSQueue         = ""
	defaultAWSFirehoseStream   = ""
	defaultAWSLambdaFunction   = "ExpenseProcessorFn"
	defaultMaxNumberOfMessages = 10
	defaultVisibilityTimeout   = "5m"
	defaultWaitTime            = "20s"
	defaultPipelineTimeout     = "5m"
	defaultMetricsRegistration = true
)

func runRunner(args []string) error {
	// flags for the runner command
	var (
		flagset = flag.NewFlagSet("runner", flag.ExitOnError)

		debug   = flagset.Bool("debug", false, "debug logging")
		apiAddr = flagset.String("api", defaultAPIAddr, "listen address for status API")

		aws = registerAWSFlags(flagset)

		awsSQSQueue       = flagset.String("aws.sqs.queue", defaultAWSSQSQueue, "AWS configuration queue")
		awsFirehoseStream = flagset.String("aws.firehose.stream", defaultAWSFirehoseStream, "AWS configuration stream")
		awsLambdaFunction = flagset.String("aws.lambda.function", defaultAWSLambdaFunction, "AWS Lambda function the persist step invokes")

		queueType    = flagset.String("queue", defaultQueue, "type of queue to use (remote, virtual, nop)")
		auditLogType = flagset.String("auditlog", defaultAuditLog, "type of audit log to use (remote, virtual, nop)")
		invokerType  = flagset.String("invoker", defaultInvoker, "how the persist step runs the handler (local, remote, nop)")
		storeType    = flagset.String("store", defaultRunnerStore, "type of store the local handler uses (remote, virtual, nop)")
		storeSize    = flagset.Int("store.size", defaultStoreSize, "number of records the virtual store holds")
		tableName    = flagset.String("table.name", defaultTableName, "table the receipt records are written to")
		ingestBucket = flagset.String("ingest.bucket", defaultIngestBucket, "bucket receipts are uploaded to")

		maxNumberOfMessages = flagset.Int("max.messages", defaultMaxNumberOfMessages, "max number of messages to dequeue at once")
		visibilityTimeout   = flagset.String("visibility.timeout", defaultVisibilityTimeout, "how long the visibility of a message should extended by")
		waitTime            = flagset.String("wait.time", defaultWaitTime, "how long to long poll the queue for")
		pipelineTimeout     = flagset.String("pipeline.timeout", defaultPipelineTimeout, "deadline of a single execution")

		metricsRegistration = flagset.Bool("metrics.registration", defaultMetricsRegistration, "Registration of metrics on launch")
	)

	flagset.Usage = usageFor(flagset, "runner [flags]")
	if err := parseFlags(flagset, args); err != nil {
		return errors.Wrap(err, "flags")
	}
	if *ingestBucket == "" {
		return errors.New("ingest.bucket is required, the trigger pattern matches on it")
	}

	logger := newLogger(*debug)

	// Instrumentation
	connectedClients := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "expense",
		Subsystem: "runner",
		Name:      "connected_clients",
		Help:      "Number of currently connected clients by modality.",
	}, []string{"modality"})
	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "expense",
		Subsystem: "runner",
		Name:      "api_request_duration_seconds",
		Help:      "API request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status_code"})
	processed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "expense",
		Subsystem: "processor",
		Name:      "records_processed_total",
		Help:      "Receipt records written.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "expense",
		Subsystem: "processor",
		Name:      "records_failed_total",
		Help:      "Receipt records that could not be written.",
	})
	consumedEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "expense",
		Subsystem: "runner",
		Name:      "events_consumed_total",
		Help:      "Events consumed from the queue.",
	})
	droppedEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "expense",
		Subsystem: "runner",
		Name:      "events_dropped_total",
		Help:      "Events that did not match the trigger pattern.",
	})
	succeededExecutions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "expense",
		Subsystem: "runner",
		Name:      "executions_succeeded_total",
		Help:      "Pipeline executions that succeeded.",
	})
	failedExecutions := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "expense",
		Subsystem: "runner",
		Name:      "executions_failed_total",
		Help:      "Pipeline executions that failed or timed out.",
	})

	if *metricsRegistration {
		prometheus.MustRegister(
			connectedClients,
			apiDuration,
			processed,
			failed,
			consumedEvents,
			droppedEvents,
			succeededExecutions,
			failedExecutions,
		)
	}

	apiNetwork, apiAddress, err := parseAddr(*apiAddr, defaultAPIPort)
	if err != nil {
		return err
	}
	apiListener, err := net.Listen(apiNetwork, apiAddress)
	if err != nil {
		return err
	}
	level.Debug(logger).Log("API", fmt.Sprintf("%s://%s", apiNetwork, apiAddress))

	// Timeout duration setup.
	visibilityTimeoutDuration, err := time.ParseDuration(*visibilityTimeout)
	if err != nil {
		return err
	}
	waitTimeDuration, err := time.ParseDuration(*waitTime)
	if err != nil {
		return err
	}
	pipelineTimeoutDuration, err := time.ParseDuration(*pipelineTimeout)
	if err != nil {
		return err
	}

	// Configuration for the queue
	queueRemoteConfig, err := queue.BuildRemoteConfig(
		queue.WithEC2Role(*aws.ec2Role),
		queue.WithID(*aws.id),
		queue.WithSecret(*aws.secret),
		queue.WithToken(*aws.token),
		queue.WithRegion(*aws.region),
		queue.WithEndpoint(*aws.endpoint),
		queue.WithQueue(*awsSQSQueue),
		queue.WithMaxNumberOfMessages(int64(*maxNumberOfMessages)),
		queue.WithVisibilityTimeout(visibilityTimeoutDuration),
		queue.WithWaitTime(waitTimeDuration),
	)
	if err != nil {
		return errors.Wrap(err, "queue remote config")
	}

	queueConfig, err := queue.Build(
		queue.With(*queueType),
		queue.WithConfig(queueRemoteConfig),
	)
	if err != nil {
		return errors.Wrap(err, "queue config")
	}

	q, err := queue.New(queueConfig, log.With(logger, "component", "queue"))
	if err != nil {
		return err
	}

	// Firehose setup.
	auditRemoteConfig, err := audit.BuildRemoteConfig(
		audit.WithEC2Role(*aws.ec2Role),
		audit.WithID(*aws.id),
		audit.WithSecret(*aws.secret),
		audit.WithToken(*aws.token),
		audit.WithRegion(*aws.region),
		audit.WithEndpoint(*aws.endpoint),
		audit.WithStream(*awsFirehoseStream),
	)
	if err != nil {
		return errors.Wrap(err, "audit remote config")
	}

	auditConfig, err := audit.Build(
		audit.With(*auditLogType),
		audit.WithRemoteConfig(auditRemoteConfig),
	)
	if err != nil {
		return errors.Wrap(err, "audit config")
	}

	history, err := audit.New(auditConfig, log.With(logger, "component", "audit"))
	if err != nil {
		return err
	}

	// The handler only runs in process for the local invoker.
	var handler invoker.Invoker
	if strings.EqualFold(*invokerType, "local") {
		s, err := newStore(*storeType, *storeSize, *tableName, aws, logger)
		if err != nil {
			return err
		}
		handler = invoker.Func(processor.New(s, processed, failed, log.With(logger, "component", "processor")).Handle)
	}

	invokerRemoteConfig, err := invoker.BuildRemoteConfig(
		invoker.WithEC2Role(*aws.ec2Role),
		invoker.WithID(*aws.id),
		invoker.WithSecret(*aws.secret),
		invoker.WithToken(*aws.token),
		invoker.WithRegion(*aws.region),
		invoker.WithEndpoint(*aws.endpoint),
		invoker.WithFunction(*awsLambdaFunction),
	)
	if err != nil {
		return errors.Wrap(err, "invoker remote config")
	}

	invokerConfig, err := invoker.Build(
		invoker.With(*invokerType),
		invoker.WithHandler(handler),
		invoker.WithConfig(invokerRemoteConfig),
	)
	if err != nil {
		return errors.Wrap(err, "invoker config")
	}

	inv, err := invoker.New(invokerConfig, log.With(logger, "component", "invoker"))
	if err != nil {
		return err
	}

	p, err := pipeline.NewExpense(*awsLambdaFunction, inv, log.With(logger, "component", "pipeline"))
	if err != nil {
		return errors.Wrap(err, "pipeline")
	}
	p.WithTimeout(pipelineTimeoutDuration)

	c := consumer.New(
		q,
		p,
		trigger.ObjectCreated(*ingestBucket),
		history,
		consumedEvents,
		droppedEvents,
		succeededExecutions,
		failedExecutions,
		log.With(logger, "component", "consumer"),
	)

	// Execution group.
	var g run.Group
	{
		g.Add(func() error {
			c.Run()
			return nil
		}, func(error) {
			c.Stop()
		})
	}
	{
		g.Add(func() error {
			mux := http.NewServeMux()
			mux.Handle("/status/", http.StripPrefix("/status", status.NewAPI(
				map[string]status.Check{
					"consumer": c.Ready,
				},
				log.With(logger, "component", "status_api"),
				connectedClients.WithLabelValues("status"),
				apiDuration,
			)))

			registerMetrics(mux)
			registerProfile(mux)

			return http.Serve(apiListener, mux)
		}, func(error) {
			apiListener.Close()
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

func interrupt(cancel <-chan struct{}) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)

	select {
	case sig := <-c:
		return errors.Errorf("received signal %s", sig)
	case <-cancel:
		return errors.New("canceled")
	}
}
