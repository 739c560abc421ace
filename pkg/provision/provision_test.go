package provision

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
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
	"github.com/pkg/errors"
)

const stateMachineARN = "arn:aws:states:eu-west-1:123456789012:stateMachine:ExpensePipelineStateMachine"

type fakeDynamoDB struct {
	dynamodbiface.DynamoDBAPI
	created []*dynamodb.CreateTableInput
	waited  int
	err     error
}

func (f *fakeDynamoDB) CreateTableWithContext(ctx aws.Context, input *dynamodb.CreateTableInput, opts ...request.Option) (*dynamodb.CreateTableOutput, error) {
	f.created = append(f.created, input)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamoDB) WaitUntilTableExistsWithContext(ctx aws.Context, input *dynamodb.DescribeTableInput, opts ...request.WaiterOption) error {
	f.waited++
	return nil
}

type fakeS3 struct {
	s3iface.S3API
	current     *s3.NotificationConfiguration
	puts        []*s3.PutBucketNotificationConfigurationInput
	encryptions []*s3.PutBucketEncryptionInput
	blocks      []*s3.PutPublicAccessBlockInput
	err         error
}

func (f *fakeS3) PutBucketEncryptionWithContext(ctx aws.Context, input *s3.PutBucketEncryptionInput, opts ...request.Option) (*s3.PutBucketEncryptionOutput, error) {
	f.encryptions = append(f.encryptions, input)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutBucketEncryptionOutput{}, nil
}

func (f *fakeS3) PutPublicAccessBlockWithContext(ctx aws.Context, input *s3.PutPublicAccessBlockInput, opts ...request.Option) (*s3.PutPublicAccessBlockOutput, error) {
	f.blocks = append(f.blocks, input)
	return &s3.PutPublicAccessBlockOutput{}, nil
}

func (f *fakeS3) GetBucketNotificationConfigurationWithContext(ctx aws.Context, input *s3.GetBucketNotificationConfigurationRequest, opts ...request.Option) (*s3.NotificationConfiguration, error) {
	if f.current == nil {
		return &s3.NotificationConfiguration{}, nil
	}
	return f.current, nil
}

func (f *fakeS3) PutBucketNotificationConfigurationWithContext(ctx aws.Context, input *s3.PutBucketNotificationConfigurationInput, opts ...request.Option) (*s3.PutBucketNotificationConfigurationOutput, error) {
	f.puts = append(f.puts, input)
	return &s3.PutBucketNotificationConfigurationOutput{}, nil
}

type fakeSFN struct {
	sfniface.SFNAPI
	exists  bool
	created []*sfn.CreateStateMachineInput
	updated []*sfn.UpdateStateMachineInput
}

func (f *fakeSFN) CreateStateMachineWithContext(ctx aws.Context, input *sfn.CreateStateMachineInput, opts ...request.Option) (*sfn.CreateStateMachineOutput, error) {
	f.created = append(f.created, input)
	if f.exists {
		return nil, awserr.New(sfn.ErrCodeStateMachineAlreadyExists, "exists", nil)
	}
	return &sfn.CreateStateMachineOutput{StateMachineArn: aws.String(stateMachineARN)}, nil
}

func (f *fakeSFN) ListStateMachinesPagesWithContext(ctx aws.Context, input *sfn.ListStateMachinesInput, fn func(*sfn.ListStateMachinesOutput, bool) bool, opts ...request.Option) error {
	pages := []*sfn.ListStateMachinesOutput{
		{StateMachines: []*sfn.StateMachineListItem{
			{Name: aws.String("Other"), StateMachineArn: aws.String("arn:other")},
		}},
		{StateMachines: []*sfn.StateMachineListItem{
			{Name: aws.String("ExpensePipelineStateMachine"), StateMachineArn: aws.String(stateMachineARN)},
		}},
	}
	for k, page := range pages {
		if !fn(page, k == len(pages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeSFN) UpdateStateMachineWithContext(ctx aws.Context, input *sfn.UpdateStateMachineInput, opts ...request.Option) (*sfn.UpdateStateMachineOutput, error) {
	f.updated = append(f.updated, input)
	return &sfn.UpdateStateMachineOutput{}, nil
}

type fakeEventBridge struct {
	eventbridgeiface.EventBridgeAPI
	rules   []*eventbridge.PutRuleInput
	targets []*eventbridge.PutTargetsInput
	failed  int64
}

func (f *fakeEventBridge) PutRuleWithContext(ctx aws.Context, input *eventbridge.PutRuleInput, opts ...request.Option) (*eventbridge.PutRuleOutput, error) {
	f.rules = append(f.rules, input)
	return &eventbridge.PutRuleOutput{RuleArn: aws.String("arn:rule")}, nil
}

func (f *fakeEventBridge) PutTargetsWithContext(ctx aws.Context, input *eventbridge.PutTargetsInput, opts ...request.Option) (*eventbridge.PutTargetsOutput, error) {
	f.targets = append(f.targets, input)
	output := &eventbridge.PutTargetsOutput{FailedEntryCount: aws.Int64(f.failed)}
	if f.failed > 0 {
		output.FailedEntries = []*eventbridge.PutTargetsResultEntry{
			{TargetId: input.Targets[0].Id, ErrorCode: aws.String("ValidationException")},
		}
	}
	return output, nil
}

type fakeLambda struct {
	lambdaiface.LambdaAPI
	updated []*lambda.UpdateFunctionConfigurationInput
	err     error
}

func (f *fakeLambda) UpdateFunctionConfigurationWithContext(ctx aws.Context, input *lambda.UpdateFunctionConfigurationInput, opts ...request.Option) (*lambda.FunctionConfiguration, error) {
	f.updated = append(f.updated, input)
	if f.err != nil {
		return nil, f.err
	}
	return &lambda.FunctionConfiguration{FunctionName: input.FunctionName}, nil
}

type fakes struct {
	dynamodb *fakeDynamoDB
	s3       *fakeS3
	sfn      *fakeSFN
	events   *fakeEventBridge
	lambda   *fakeLambda
}

func newProvisioner() (*Provisioner, fakes) {
	f := fakes{
		dynamodb: &fakeDynamoDB{},
		s3:       &fakeS3{},
		sfn:      &fakeSFN{},
		events:   &fakeEventBridge{},
		lambda:   &fakeLambda{},
	}
	return NewWithClients(f.dynamodb, f.s3, f.sfn, f.events, f.lambda, log.NewNopLogger()), f
}

func TestEnsureTable(t *testing.T) {
	t.Parallel()

	t.Run("create", func(t *testing.T) {
		p, f := newProvisioner()
		if err := p.EnsureTable(context.Background(), "ExpenseTable"); err != nil {
			t.Fatal(err)
		}

		input := f.dynamodb.created[0]
		if expected, actual := "ExpenseTable", aws.StringValue(input.TableName); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := "pk", aws.StringValue(input.KeySchema[0].AttributeName); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := dynamodb.KeyTypeHash, aws.StringValue(input.KeySchema[0].KeyType); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := dynamodb.ScalarAttributeTypeS, aws.StringValue(input.AttributeDefinitions[0].AttributeType); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := dynamodb.BillingModePayPerRequest, aws.StringValue(input.BillingMode); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := 1, f.dynamodb.waited; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("exists", func(t *testing.T) {
		p, f := newProvisioner()
		f.dynamodb.err = awserr.New(dynamodb.ErrCodeResourceInUseException, "in use", nil)

		if err := p.EnsureTable(context.Background(), "ExpenseTable"); err != nil {
			t.Fatal(err)
		}
		if expected, actual := 0, f.dynamodb.waited; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("failure", func(t *testing.T) {
		p, f := newProvisioner()
		cause := awserr.New(dynamodb.ErrCodeLimitExceededException, "limit", nil)
		f.dynamodb.err = cause

		err := p.EnsureTable(context.Background(), "ExpenseTable")
		if expected, actual := error(cause), errors.Cause(err); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		p, _ := newProvisioner()
		if err := p.EnsureTable(context.Background(), ""); err == nil {
			t.Errorf("expected error")
		}
	})
}

func TestEnableBucketEvents(t *testing.T) {
	t.Parallel()

	t.Run("enable", func(t *testing.T) {
		p, f := newProvisioner()
		f.s3.current = &s3.NotificationConfiguration{
			QueueConfigurations: []*s3.QueueConfiguration{
				{QueueArn: aws.String("arn:queue")},
			},
		}

		if err := p.EnableBucketEvents(context.Background(), "ingest"); err != nil {
			t.Fatal(err)
		}

		input := f.s3.puts[0]
		if expected, actual := "ingest", aws.StringValue(input.Bucket); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if input.NotificationConfiguration.EventBridgeConfiguration == nil {
			t.Errorf("expected eventbridge configuration")
		}
		if expected, actual := 1, len(input.NotificationConfiguration.QueueConfigurations); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("already enabled", func(t *testing.T) {
		p, f := newProvisioner()
		f.s3.current = &s3.NotificationConfiguration{
			EventBridgeConfiguration: &s3.EventBridgeConfiguration{},
		}

		if err := p.EnableBucketEvents(context.Background(), "ingest"); err != nil {
			t.Fatal(err)
		}
		if expected, actual := 0, len(f.s3.puts); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})
}

func TestEnsureStateMachine(t *testing.T) {
	t.Parallel()

	t.Run("create", func(t *testing.T) {
		p, f := newProvisioner()

		arn, err := p.EnsureStateMachine(context.Background(), "ExpensePipelineStateMachine", "{}", "arn:role")
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := stateMachineARN, arn; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := sfn.StateMachineTypeStandard, aws.StringValue(f.sfn.created[0].Type); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := 0, len(f.sfn.updated); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("update", func(t *testing.T) {
		p, f := newProvisioner()
		f.sfn.exists = true

		arn, err := p.EnsureStateMachine(context.Background(), "ExpensePipelineStateMachine", `{"StartAt":"A"}`, "arn:role")
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := stateMachineARN, arn; expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := 1, len(f.sfn.updated); expected != actual {
			t.Fatalf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := `{"StartAt":"A"}`, aws.StringValue(f.sfn.updated[0].Definition); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		p, f := newProvisioner()
		f.sfn.exists = true

		if _, err := p.EnsureStateMachine(context.Background(), "Unknown", "{}", "arn:role"); err == nil {
			t.Errorf("expected error")
		}
	})
}

func TestEnsureRule(t *testing.T) {
	t.Parallel()

	t.Run("pipeline target", func(t *testing.T) {
		p, f := newProvisioner()

		if err := p.EnsureRule(context.Background(), "ExpenseTrigger", `{"source":["aws.s3"]}`, stateMachineARN, "arn:role", ""); err != nil {
			t.Fatal(err)
		}

		rule := f.events.rules[0]
		if expected, actual := `{"source":["aws.s3"]}`, aws.StringValue(rule.EventPattern); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := eventbridge.RuleStateEnabled, aws.StringValue(rule.State); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}

		targets := f.events.targets[0].Targets
		if expected, actual := 1, len(targets); expected != actual {
			t.Fatalf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := "$.detail", aws.StringValue(targets[0].InputPath); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := stateMachineARN, aws.StringValue(targets[0].Arn); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("queue target", func(t *testing.T) {
		p, f := newProvisioner()

		if err := p.EnsureRule(context.Background(), "ExpenseTrigger", "{}", stateMachineARN, "arn:role", "arn:queue"); err != nil {
			t.Fatal(err)
		}

		targets := f.events.targets[0].Targets
		if expected, actual := 2, len(targets); expected != actual {
			t.Fatalf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := QueueTargetID, aws.StringValue(targets[1].Id); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if targets[1].InputPath != nil {
			t.Errorf("expected whole event for the queue")
		}
	})

	t.Run("failed targets", func(t *testing.T) {
		p, f := newProvisioner()
		f.events.failed = 1

		if err := p.EnsureRule(context.Background(), "ExpenseTrigger", "{}", stateMachineARN, "arn:role", ""); err == nil {
			t.Errorf("expected error")
		}
	})
}

func TestSecureBucket(t *testing.T) {
	t.Parallel()

	t.Run("encrypts and blocks public access", func(t *testing.T) {
		p, f := newProvisioner()

		if err := p.SecureBucket(context.Background(), "ingest"); err != nil {
			t.Fatal(err)
		}

		if expected, actual := 1, len(f.s3.encryptions); expected != actual {
			t.Fatalf("expected: %d, actual: %d", expected, actual)
		}
		rule := f.s3.encryptions[0].ServerSideEncryptionConfiguration.Rules[0]
		if expected, actual := s3.ServerSideEncryptionAes256, aws.StringValue(rule.ApplyServerSideEncryptionByDefault.SSEAlgorithm); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}

		if expected, actual := 1, len(f.s3.blocks); expected != actual {
			t.Fatalf("expected: %d, actual: %d", expected, actual)
		}
		block := f.s3.blocks[0].PublicAccessBlockConfiguration
		for _, value := range []*bool{
			block.BlockPublicAcls,
			block.BlockPublicPolicy,
			block.IgnorePublicAcls,
			block.RestrictPublicBuckets,
		} {
			if expected, actual := true, aws.BoolValue(value); expected != actual {
				t.Errorf("expected: %t, actual: %t", expected, actual)
			}
		}
	})

	t.Run("missing bucket", func(t *testing.T) {
		p, _ := newProvisioner()

		if err := p.SecureBucket(context.Background(), ""); err == nil {
			t.Errorf("expected error")
		}
	})

	t.Run("encryption error", func(t *testing.T) {
		p, f := newProvisioner()
		f.s3.err = errors.New("access denied")

		if err := p.SecureBucket(context.Background(), "ingest"); err == nil {
			t.Errorf("expected error")
		}
		if expected, actual := 0, len(f.s3.blocks); expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}
	})
}

func TestConfigureFunction(t *testing.T) {
	t.Parallel()

	t.Run("environment and default timeout", func(t *testing.T) {
		p, f := newProvisioner()

		if err := p.ConfigureFunction(context.Background(), "ExpenseProcessorFn", "ExpenseTable", "ingest", 0); err != nil {
			t.Fatal(err)
		}

		if expected, actual := 1, len(f.lambda.updated); expected != actual {
			t.Fatalf("expected: %d, actual: %d", expected, actual)
		}
		input := f.lambda.updated[0]
		if expected, actual := "ExpenseProcessorFn", aws.StringValue(input.FunctionName); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := int64(30), aws.Int64Value(input.Timeout); expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}
		variables := input.Environment.Variables
		if expected, actual := "ExpenseTable", aws.StringValue(variables[TableNameEnv]); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := "ingest", aws.StringValue(variables[IngestBucketEnv]); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})

	t.Run("explicit timeout", func(t *testing.T) {
		p, f := newProvisioner()

		if err := p.ConfigureFunction(context.Background(), "ExpenseProcessorFn", "ExpenseTable", "ingest", time.Minute); err != nil {
			t.Fatal(err)
		}
		if expected, actual := int64(60), aws.Int64Value(f.lambda.updated[0].Timeout); expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}
	})

	t.Run("missing function", func(t *testing.T) {
		p, _ := newProvisioner()

		if err := p.ConfigureFunction(context.Background(), "", "ExpenseTable", "ingest", 0); err == nil {
			t.Errorf("expected error")
		}
	})

	t.Run("update error", func(t *testing.T) {
		p, f := newProvisioner()
		f.lambda.err = errors.New("function not found")

		if err := p.ConfigureFunction(context.Background(), "ExpenseProcessorFn", "ExpenseTable", "ingest", 0); err == nil {
			t.Errorf("expected error")
		}
	})
}

func TestApply(t *testing.T) {
	t.Parallel()

	t.Run("idempotent", func(t *testing.T) {
		p, f := newProvisioner()
		f.sfn.exists = true

		plan := Plan{
			Table:            "ExpenseTable",
			Bucket:           "ingest",
			StateMachine:     "ExpensePipelineStateMachine",
			Definition:       "{}",
			StateMachineRole: "arn:role",
			Rule:             "ExpenseTrigger",
			Pattern:          "{}",
			EventsRole:       "arn:events",
		}
		for i := 0; i < 2; i++ {
			if err := p.Apply(context.Background(), plan); err != nil {
				t.Fatal(err)
			}
		}

		if expected, actual := stateMachineARN, aws.StringValue(f.events.targets[1].Targets[0].Arn); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := "arn:events", aws.StringValue(f.events.targets[1].Targets[0].RoleArn); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
		if expected, actual := 2, len(f.s3.encryptions); expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}
		if expected, actual := 0, len(f.lambda.updated); expected != actual {
			t.Errorf("expected: %d, actual: %d", expected, actual)
		}
	})

	t.Run("with function", func(t *testing.T) {
		p, f := newProvisioner()

		if err := p.Apply(context.Background(), Plan{
			Table:        "ExpenseTable",
			Bucket:       "ingest",
			StateMachine: "ExpensePipelineStateMachine",
			Rule:         "ExpenseTrigger",
			Function:     "ExpenseProcessorFn",
		}); err != nil {
			t.Fatal(err)
		}

		if expected, actual := 1, len(f.lambda.updated); expected != actual {
			t.Fatalf("expected: %d, actual: %d", expected, actual)
		}
		if expected, actual := "ExpenseTable", aws.StringValue(f.lambda.updated[0].Environment.Variables[TableNameEnv]); expected != actual {
			t.Errorf("expected: %v, actual: %v", expected, actual)
		}
	})
}
