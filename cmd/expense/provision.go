package main

import (
	"context"
	"flag"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/pipeline"
	"github.com/trussle/expense/pkg/provision"
	"github.com/trussle/expense/pkg/trigger"
)

const (
	defaultProvisionTimeout = "5m"
	defaultRuleName         = "ExpenseReceiptCreated"
	defaultStateMachineRole = ""
	defaultEventsRole       = ""
	defaultQueueARN         = ""
	defaultFunctionTimeout  = "30s"
)

func runProvision(args []string) error {
	// flags for the provision command
	var (
		flagset = flag.NewFlagSet("provision", flag.ExitOnError)

		debug   = flagset.Bool("debug", false, "debug logging")
		timeout = flagset.String("timeout", defaultProvisionTimeout, "deadline for provisioning every resource")

		aws = registerAWSFlags(flagset)

		tableName         = flagset.String("table.name", defaultTableName, "table the receipt records are written to")
		ingestBucket      = flagset.String("ingest.bucket", defaultIngestBucket, "bucket receipts are uploaded to")
		awsLambdaFunction = flagset.String("aws.lambda.function", defaultAWSLambdaFunction, "AWS Lambda function the persist step invokes")
		stateMachineRole  = flagset.String("state.machine.role", defaultStateMachineRole, "role ARN the state machine runs as")
		ruleName          = flagset.String("rule.name", defaultRuleName, "name of the trigger rule")
		eventsRole        = flagset.String("rule.role", defaultEventsRole, "role ARN the trigger rule starts executions with")
		queueARN          = flagset.String("rule.queue", defaultQueueARN, "queue ARN that also receives trigger events, for the runner")
		functionTimeout   = flagset.String("function.timeout", defaultFunctionTimeout, "timeout of a single handler invocation")
	)

	flagset.Usage = usageFor(flagset, "provision [flags]")
	if err := parseFlags(flagset, args); err != nil {
		return errors.Wrap(err, "flags")
	}

	logger := newLogger(*debug)

	timeoutDuration, err := time.ParseDuration(*timeout)
	if err != nil {
		return err
	}
	functionTimeoutDuration, err := time.ParseDuration(*functionTimeout)
	if err != nil {
		return err
	}

	machine, err := expenseDefinition(*awsLambdaFunction)
	if err != nil {
		return err
	}
	definition, err := machine.JSON()
	if err != nil {
		return errors.Wrap(err, "definition")
	}
	pattern, err := trigger.ObjectCreated(*ingestBucket).JSON()
	if err != nil {
		return errors.Wrap(err, "pattern")
	}

	p, err := provision.New(aws.config(), log.With(logger, "component", "provision"))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeoutDuration)
	defer cancel()

	if err := p.Apply(ctx, provision.Plan{
		Table:            *tableName,
		Bucket:           *ingestBucket,
		StateMachine:     pipeline.ExpensePipeline,
		Definition:       definition,
		StateMachineRole: *stateMachineRole,
		Rule:             *ruleName,
		Pattern:          pattern,
		EventsRole:       *eventsRole,
		Queue:            *queueARN,
		Function:         *awsLambdaFunction,
		FunctionTimeout:  functionTimeoutDuration,
	}); err != nil {
		return err
	}

	level.Info(logger).Log("state", "provisioned", "table", *tableName, "bucket", *ingestBucket)
	return nil
}
