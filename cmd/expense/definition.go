package main

import (
	"encoding/json"
	"flag"
	"io"
	"os"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/pipeline"
	"github.com/trussle/expense/pkg/trigger"
)

func runDefinition(args []string) error {
	// flags for the definition command
	var (
		flagset = flag.NewFlagSet("definition", flag.ExitOnError)

		awsLambdaFunction = flagset.String("aws.lambda.function", defaultAWSLambdaFunction, "AWS Lambda function the persist step invokes")
		ingestBucket      = flagset.String("ingest.bucket", defaultIngestBucket, "bucket receipts are uploaded to")
	)

	flagset.Usage = usageFor(flagset, "definition [flags]")
	if err := parseFlags(flagset, args); err != nil {
		return errors.Wrap(err, "flags")
	}

	return writeDefinition(os.Stdout, *awsLambdaFunction, *ingestBucket)
}

type definitionDocument struct {
	StateMachine pipeline.StateMachine `json:"stateMachine"`
	Pattern      trigger.Pattern       `json:"eventPattern"`
	InputPath    string                `json:"inputPath"`
}

func writeDefinition(w io.Writer, function, bucket string) error {
	machine, err := expenseDefinition(function)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(definitionDocument{
		StateMachine: machine,
		Pattern:      trigger.ObjectCreated(bucket),
		InputPath:    trigger.InputPath,
	}); err != nil {
		return errors.Wrap(err, "encoding definition")
	}
	return nil
}

func expenseDefinition(function string) (pipeline.StateMachine, error) {
	// Describing the steps never invokes anything.
	p, err := pipeline.NewExpense(function, nil, log.NewNopLogger())
	if err != nil {
		return pipeline.StateMachine{}, errors.Wrap(err, "pipeline")
	}
	machine, err := p.Definition()
	if err != nil {
		return pipeline.StateMachine{}, errors.Wrap(err, "definition")
	}
	return machine, nil
}
