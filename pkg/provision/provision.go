package provision

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/eventbridge"
	"github.com/aws/aws-sdk-go/service/eventbridge/eventbridgeiface"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/sfn"
	"github.com/aws/aws-sdk-go/service/sfn/sfniface"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/cloud"
	"github.com/trussle/expense/pkg/models"
	"github.com/trussle/expense/pkg/trigger"
)

// Target ids of the trigger rule.
const (
	PipelineTargetID = "ExpensePipeline"
	QueueTargetID    = "ExpenseRunnerQueue"
)

// DefaultFunctionTimeout bounds a single handler invocation.
const DefaultFunctionTimeout = 30 * time.Second

// Environment the handler reads its configuration from.
const (
	TableNameEnv    = "TABLE_NAME"
	IngestBucketEnv = "INGEST_BUCKET"
)

// Plan names the resources to create and how they are wired together.
type Plan struct {
	Table            string
	Bucket           string
	StateMachine     string
	Definition       string
	StateMachineRole string
	Rule             string
	Pattern          string
	EventsRole       string

	// Queue is the ARN of a queue that also receives the triggering events,
	// for the local runner. Optional.
	Queue string

	// Function is the deployed handler to configure. The function itself and
	// its code are deployed separately. Optional.
	Function        string
	FunctionTimeout time.Duration
}

// Provisioner creates the resources of a Plan. Every operation is idempotent.
type Provisioner struct {
	dynamodb dynamodbiface.DynamoDBAPI
	s3       s3iface.S3API
	sfn      sfniface.SFNAPI
	events   eventbridgeiface.EventBridgeAPI
	lambda   lambdaiface.LambdaAPI
	logger   log.Logger
}

// New creates a Provisioner for the account the config resolves to.
func New(config cloud.Config, logger log.Logger) (*Provisioner, error) {
	sess, err := cloud.NewSession(config)
	if err != nil {
		return nil, err
	}
	return NewWithClients(
		dynamodb.New(sess),
		s3.New(sess),
		sfn.New(sess),
		eventbridge.New(sess),
		lambda.New(sess),
		logger,
	), nil
}

// NewWithClients creates a Provisioner from service clients.
func NewWithClients(
	dynamodbClient dynamodbiface.DynamoDBAPI,
	s3Client s3iface.S3API,
	sfnClient sfniface.SFNAPI,
	eventsClient eventbridgeiface.EventBridgeAPI,
	lambdaClient lambdaiface.LambdaAPI,
	logger log.Logger,
) *Provisioner {
	return &Provisioner{
		dynamodb: dynamodbClient,
		s3:       s3Client,
		sfn:      sfnClient,
		events:   eventsClient,
		lambda:   lambdaClient,
		logger:   logger,
	}
}

// Apply creates every resource of the plan, in dependency order.
func (p *Provisioner) Apply(ctx context.Context, plan Plan) error {
	if err := p.EnsureTable(ctx, plan.Table); err != nil {
		return err
	}
	if err := p.SecureBucket(ctx, plan.Bucket); err != nil {
		return err
	}
	if err := p.EnableBucketEvents(ctx, plan.Bucket); err != nil {
		return err
	}
	if plan.Function != "" {
		if err := p.ConfigureFunction(ctx, plan.Function, plan.Table, plan.Bucket, plan.FunctionTimeout); err != nil {
			return err
		}
	}
	arn, err := p.EnsureStateMachine(ctx, plan.StateMachine, plan.Definition, plan.StateMachineRole)
	if err != nil {
		return err
	}
	return p.EnsureRule(ctx, plan.Rule, plan.Pattern, arn, plan.EventsRole, plan.Queue)
}

// EnsureTable creates the receipt table, keyed by the string attribute pk and
// billed per request. An existing table is left alone.
func (p *Provisioner) EnsureTable(ctx context.Context, table string) error {
	if table == "" {
		return errors.New("missing table name")
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(table),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(models.KeyAttribute),
				AttributeType: aws.String(dynamodb.ScalarAttributeTypeS),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(models.KeyAttribute),
				KeyType:       aws.String(dynamodb.KeyTypeHash),
			},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}
	if _, err := p.dynamodb.CreateTableWithContext(ctx, input); err != nil {
		if isCode(err, dynamodb.ErrCodeResourceInUseException) {
			level.Info(p.logger).Log("state", "table", "table", table, "exists", true)
			return nil
		}
		return errors.Wrapf(err, "create table %q", table)
	}

	if err := p.dynamodb.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	}); err != nil {
		return errors.Wrapf(err, "wait for table %q", table)
	}

	level.Info(p.logger).Log("state", "table", "table", table, "created", true)
	return nil
}

// SecureBucket encrypts new objects with S3 managed keys and blocks every
// form of public access to the bucket.
func (p *Provisioner) SecureBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		return errors.New("missing bucket name")
	}

	if _, err := p.s3.PutBucketEncryptionWithContext(ctx, &s3.PutBucketEncryptionInput{
		Bucket: aws.String(bucket),
		ServerSideEncryptionConfiguration: &s3.ServerSideEncryptionConfiguration{
			Rules: []*s3.ServerSideEncryptionRule{
				{
					ApplyServerSideEncryptionByDefault: &s3.ServerSideEncryptionByDefault{
						SSEAlgorithm: aws.String(s3.ServerSideEncryptionAes256),
					},
				},
			},
		},
	}); err != nil {
		return errors.Wrapf(err, "put bucket encryption %q", bucket)
	}

	if _, err := p.s3.PutPublicAccessBlockWithContext(ctx, &s3.PutPublicAccessBlockInput{
		Bucket: aws.String(bucket),
		PublicAccessBlockConfiguration: &s3.PublicAccessBlockConfiguration{
			BlockPublicAcls:       aws.Bool(true),
			BlockPublicPolicy:     aws.Bool(true),
			IgnorePublicAcls:      aws.Bool(true),
			RestrictPublicBuckets: aws.Bool(true),
		},
	}); err != nil {
		return errors.Wrapf(err, "put public access block %q", bucket)
	}

	level.Info(p.logger).Log("state", "bucket", "bucket", bucket, "secured", true)
	return nil
}

// ConfigureFunction points the handler at the table and bucket through its
// environment and sets its timeout, DefaultFunctionTimeout when zero.
func (p *Provisioner) ConfigureFunction(ctx context.Context, function, table, bucket string, timeout time.Duration) error {
	if function == "" {
		return errors.New("missing function name")
	}
	if timeout <= 0 {
		timeout = DefaultFunctionTimeout
	}

	if _, err := p.lambda.UpdateFunctionConfigurationWithContext(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(function),
		Timeout:      aws.Int64(int64(timeout / time.Second)),
		Environment: &lambda.Environment{
			Variables: map[string]*string{
				TableNameEnv:    aws.String(table),
				IngestBucketEnv: aws.String(bucket),
			},
		},
	}); err != nil {
		return errors.Wrapf(err, "update function configuration %q", function)
	}

	level.Info(p.logger).Log("state", "function", "function", function, "timeout", timeout)
	return nil
}

// EnableBucketEvents turns on EventBridge delivery for the bucket, keeping
// any existing notification configuration.
func (p *Provisioner) EnableBucketEvents(ctx context.Context, bucket string) error {
	if bucket == "" {
		return errors.New("missing bucket name")
	}

	current, err := p.s3.GetBucketNotificationConfigurationWithContext(ctx, &s3.GetBucketNotificationConfigurationRequest{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		return errors.Wrapf(err, "get bucket notifications %q", bucket)
	}
	if current.EventBridgeConfiguration != nil {
		level.Info(p.logger).Log("state", "bucket", "bucket", bucket, "exists", true)
		return nil
	}

	current.EventBridgeConfiguration = &s3.EventBridgeConfiguration{}
	if _, err := p.s3.PutBucketNotificationConfigurationWithContext(ctx, &s3.PutBucketNotificationConfigurationInput{
		Bucket:                    aws.String(bucket),
		NotificationConfiguration: current,
	}); err != nil {
		return errors.Wrapf(err, "put bucket notifications %q", bucket)
	}

	level.Info(p.logger).Log("state", "bucket", "bucket", bucket, "created", true)
	return nil
}

// EnsureStateMachine creates the state machine, or updates the definition of
// the existing one with the same name. It returns the state machine ARN.
func (p *Provisioner) EnsureStateMachine(ctx context.Context, name, definition, role string) (string, error) {
	if name == "" {
		return "", errors.New("missing state machine name")
	}

	output, err := p.sfn.CreateStateMachineWithContext(ctx, &sfn.CreateStateMachineInput{
		Name:       aws.String(name),
		Definition: aws.String(definition),
		RoleArn:    aws.String(role),
		Type:       aws.String(sfn.StateMachineTypeStandard),
	})
	if err == nil {
		level.Info(p.logger).Log("state", "state machine", "name", name, "created", true)
		return aws.StringValue(output.StateMachineArn), nil
	}
	if !isCode(err, sfn.ErrCodeStateMachineAlreadyExists) {
		return "", errors.Wrapf(err, "create state machine %q", name)
	}

	arn, err := p.stateMachineARN(ctx, name)
	if err != nil {
		return "", err
	}
	if _, err := p.sfn.UpdateStateMachineWithContext(ctx, &sfn.UpdateStateMachineInput{
		StateMachineArn: aws.String(arn),
		Definition:      aws.String(definition),
		RoleArn:         aws.String(role),
	}); err != nil {
		return "", errors.Wrapf(err, "update state machine %q", name)
	}

	level.Info(p.logger).Log("state", "state machine", "name", name, "updated", true)
	return arn, nil
}

func (p *Provisioner) stateMachineARN(ctx context.Context, name string) (string, error) {
	var arn string
	if err := p.sfn.ListStateMachinesPagesWithContext(ctx, &sfn.ListStateMachinesInput{},
		func(page *sfn.ListStateMachinesOutput, lastPage bool) bool {
			for _, item := range page.StateMachines {
				if aws.StringValue(item.Name) == name {
					arn = aws.StringValue(item.StateMachineArn)
					return false
				}
			}
			return true
		},
	); err != nil {
		return "", errors.Wrap(err, "list state machines")
	}
	if arn == "" {
		return "", errors.Errorf("state machine %q not found", name)
	}
	return arn, nil
}

// EnsureRule puts the trigger rule and points it at the state machine, which
// starts with the event detail. A non-empty queue receives whole events.
func (p *Provisioner) EnsureRule(ctx context.Context, rule, pattern, stateMachine, role, queue string) error {
	if rule == "" {
		return errors.New("missing rule name")
	}

	if _, err := p.events.PutRuleWithContext(ctx, &eventbridge.PutRuleInput{
		Name:         aws.String(rule),
		EventPattern: aws.String(pattern),
		State:        aws.String(eventbridge.RuleStateEnabled),
		Description:  aws.String("Start the expense pipeline for new receipts"),
	}); err != nil {
		return errors.Wrapf(err, "put rule %q", rule)
	}

	targets := []*eventbridge.Target{
		{
			Id:        aws.String(PipelineTargetID),
			Arn:       aws.String(stateMachine),
			RoleArn:   aws.String(role),
			InputPath: aws.String(trigger.InputPath),
		},
	}
	if queue != "" {
		targets = append(targets, &eventbridge.Target{
			Id:  aws.String(QueueTargetID),
			Arn: aws.String(queue),
		})
	}

	output, err := p.events.PutTargetsWithContext(ctx, &eventbridge.PutTargetsInput{
		Rule:    aws.String(rule),
		Targets: targets,
	})
	if err != nil {
		return errors.Wrapf(err, "put targets %q", rule)
	}
	if failed := aws.Int64Value(output.FailedEntryCount); failed > 0 {
		for _, entry := range output.FailedEntries {
			level.Warn(p.logger).Log("state", "rule", "target", aws.StringValue(entry.TargetId),
				"code", aws.StringValue(entry.ErrorCode),
				"err", aws.StringValue(entry.ErrorMessage),
			)
		}
		return errors.Errorf("put targets %q: %d failed", rule, failed)
	}

	level.Info(p.logger).Log("state", "rule", "rule", rule, "targets", len(targets))
	return nil
}

func isCode(err error, code string) bool {
	if aerr, ok := errors.Cause(err).(awserr.Error); ok {
		return aerr.Code() == code
	}
	return false
}
