package main

import (
	"flag"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/trussle/expense/pkg/processor"
	"github.com/trussle/expense/pkg/store"
)

const (
	defaultStore        = "remote"
	defaultStoreSize    = 1000
	defaultTableName    = ""
	defaultIngestBucket = ""
)

func runProcessor(args []string) error {
	// flags for the processor command
	var (
		flagset = flag.NewFlagSet("processor", flag.ExitOnError)

		debug = flagset.Bool("debug", false, "debug logging")

		aws = registerAWSFlags(flagset)

		storeType    = flagset.String("store", defaultStore, "type of store to use (remote, virtual, nop)")
		storeSize    = flagset.Int("store.size", defaultStoreSize, "number of records the virtual store holds")
		tableName    = flagset.String("table.name", defaultTableName, "table the receipt records are written to")
		ingestBucket = flagset.String("ingest.bucket", defaultIngestBucket, "bucket receipts are uploaded to")
	)

	flagset.Usage = usageFor(flagset, "processor [flags]")
	if err := parseFlags(flagset, args); err != nil {
		return errors.Wrap(err, "flags")
	}

	logger := newLogger(*debug)

	// Instrumentation
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
	prometheus.MustRegister(processed, failed)

	s, err := newStore(*storeType, *storeSize, *tableName, aws, logger)
	if err != nil {
		return err
	}

	handler := processor.New(s, processed, failed, log.With(logger, "component", "processor"))

	level.Info(logger).Log("state", "starting", "table", *tableName, "ingest_bucket", *ingestBucket)

	// Start never returns.
	lambda.Start(handler.Handle)
	return nil
}

func newStore(storeType string, size int, table string, aws awsFlags, logger log.Logger) (store.Store, error) {
	remoteConfig, err := store.BuildRemoteConfig(
		store.WithEC2Role(*aws.ec2Role),
		store.WithID(*aws.id),
		store.WithSecret(*aws.secret),
		store.WithToken(*aws.token),
		store.WithRegion(*aws.region),
		store.WithEndpoint(*aws.endpoint),
		store.WithTable(table),
	)
	if err != nil {
		return nil, errors.Wrap(err, "store remote config")
	}

	config, err := store.Build(
		store.With(storeType),
		store.WithSize(size),
		store.WithConfig(remoteConfig),
	)
	if err != nil {
		return nil, errors.Wrap(err, "store config")
	}

	return store.New(config, log.With(logger, "component", "store"))
}
