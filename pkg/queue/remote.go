package queue

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/cloud"
)

const (
	defaultMaxNumberOfMessages = 10
	defaultWaitTime            = 20 * time.Second
)

// RemoteConfig creates a configuration to create a RemoteQueue.
type RemoteConfig struct {
	EC2Role             bool
	ID, Secret, Token   string
	Region, Endpoint    string
	Queue               string
	MaxNumberOfMessages int64
	VisibilityTimeout   time.Duration
	WaitTime            time.Duration
}

type remoteQueue struct {
	client              sqsiface.SQSAPI
	queueURL            *string
	maxNumberOfMessages *int64
	waitTime            *int64
	visibilityTimeout   time.Duration
	logger              log.Logger
}

func newRemoteQueue(config *RemoteConfig, logger log.Logger) (Queue, error) {
	if config.Queue == "" {
		return nil, errors.New("missing queue name")
	}

	sess, err := cloud.NewSession(cloud.Config{
		EC2Role:  config.EC2Role,
		ID:       config.ID,
		Secret:   config.Secret,
		Token:    config.Token,
		Region:   config.Region,
		Endpoint: config.Endpoint,
	})
	if err != nil {
		return nil, err
	}

	client := sqs.New(sess)

	// Attempt to get the queueURL
	output, err := client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: aws.String(config.Queue),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "queue url %q", config.Queue)
	}

	return newRemoteQueueWithClient(client, aws.StringValue(output.QueueUrl), config, logger), nil
}

func newRemoteQueueWithClient(client sqsiface.SQSAPI, queueURL string, config *RemoteConfig, logger log.Logger) *remoteQueue {
	maxNumberOfMessages := config.MaxNumberOfMessages
	if maxNumberOfMessages <= 0 || maxNumberOfMessages > defaultMaxNumberOfMessages {
		maxNumberOfMessages = defaultMaxNumberOfMessages
	}
	waitTime := config.WaitTime
	if waitTime <= 0 || waitTime > defaultWaitTime {
		waitTime = defaultWaitTime
	}

	return &remoteQueue{
		client:              client,
		queueURL:            aws.String(queueURL),
		maxNumberOfMessages: aws.Int64(maxNumberOfMessages),
		waitTime:            aws.Int64(int64(waitTime / time.Second)),
		visibilityTimeout:   config.VisibilityTimeout,
		logger:              logger,
	}
}

func (q *remoteQueue) Enqueue(ctx context.Context, body []byte) error {
	input := &sqs.SendMessageInput{
		MessageBody: aws.String(string(body)),
		QueueUrl:    q.queueURL,
	}
	_, err := q.client.SendMessageWithContext(ctx, input)
	return errors.Wrap(err, "send message")
}

func (q *remoteQueue) Dequeue(ctx context.Context) ([]Record, error) {
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            q.queueURL,
		MaxNumberOfMessages: q.maxNumberOfMessages,
		MessageAttributeNames: []*string{
			aws.String("All"),
		},
		WaitTimeSeconds: q.waitTime,
	}

	resp, err := q.client.ReceiveMessageWithContext(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "receive message")
	}

	records := make([]Record, len(resp.Messages))
	for k, v := range resp.Messages {
		records[k] = NewRecord(
			aws.StringValue(v.MessageId),
			Receipt(aws.StringValue(v.ReceiptHandle)),
			[]byte(aws.StringValue(v.Body)),
		)
	}

	if err := q.changeMessageVisibility(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (q *remoteQueue) Commit(ctx context.Context, records []Record) (Result, error) {
	if len(records) == 0 {
		return Result{0, 0}, nil
	}

	entries := make([]*sqs.DeleteMessageBatchRequestEntry, len(records))
	for k, v := range records {
		entries[k] = &sqs.DeleteMessageBatchRequestEntry{
			Id:            aws.String(v.ID.String()),
			ReceiptHandle: aws.String(v.Receipt.String()),
		}
	}

	input := &sqs.DeleteMessageBatchInput{
		Entries:  entries,
		QueueUrl: q.queueURL,
	}
	output, err := q.client.DeleteMessageBatchWithContext(ctx, input)
	if err != nil {
		return Result{0, 0}, errors.Wrap(err, "delete message batch")
	}

	failed := len(output.Failed)
	if failed > 0 {
		// The queue will redeliver them once the visibility timeout expires.
		level.Warn(q.logger).Log("state", "commit", "failed", failed)
	}
	return Result{len(records) - failed, failed}, nil
}

// Failed leaves the records alone, SQS redelivers them once the visibility
// timeout expires.
func (q *remoteQueue) Failed(ctx context.Context, records []Record) (Result, error) {
	return Result{0, len(records)}, nil
}

func (q *remoteQueue) changeMessageVisibility(ctx context.Context, records []Record) error {
	// fast exit
	if len(records) == 0 {
		return nil
	}

	seconds := int64(q.visibilityTimeout / time.Second)
	if seconds <= 0 {
		return nil
	}

	entries := make([]*sqs.ChangeMessageVisibilityBatchRequestEntry, len(records))
	for k, v := range records {
		entries[k] = &sqs.ChangeMessageVisibilityBatchRequestEntry{
			Id:                aws.String(v.ID.String()),
			ReceiptHandle:     aws.String(v.Receipt.String()),
			VisibilityTimeout: aws.Int64(seconds),
		}
	}

	input := &sqs.ChangeMessageVisibilityBatchInput{
		Entries:  entries,
		QueueUrl: q.queueURL,
	}
	output, err := q.client.ChangeMessageVisibilityBatchWithContext(ctx, input)
	if err != nil {
		level.Warn(q.logger).Log("state", "visibility change", "err", err)
		return errors.Wrap(err, "change message visibility")
	}
	if num := len(output.Failed); num > 0 {
		level.Warn(q.logger).Log("state", "visibility change", "failed", num)
	}
	return nil
}

// RemoteOption defines a option for generating a RemoteConfig
type RemoteOption func(*RemoteConfig) error

// BuildRemoteConfig ingests configuration options to then yield a
// RemoteConfig, and return an error if it fails during configuring.
func BuildRemoteConfig(opts ...RemoteOption) (*RemoteConfig, error) {
	var config RemoteConfig
	for _, opt := range opts {
		err := opt(&config)
		if err != nil {
			return nil, err
		}
	}
	return &config, nil
}

// WithEC2Role adds an EC2Role option to the configuration
func WithEC2Role(ec2Role bool) RemoteOption {
	return func(config *RemoteConfig) error {
		config.EC2Role = ec2Role
		return nil
	}
}

// WithID adds an ID option to the configuration
func WithID(id string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.ID = id
		return nil
	}
}

// WithSecret adds an Secret option to the configuration
func WithSecret(secret string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Secret = secret
		return nil
	}
}

// WithToken adds an Token option to the configuration
func WithToken(token string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Token = token
		return nil
	}
}

// WithRegion adds an Region option to the configuration
func WithRegion(region string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Region = region
		return nil
	}
}

// WithEndpoint overrides the SQS endpoint.
func WithEndpoint(endpoint string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Endpoint = endpoint
		return nil
	}
}

// WithQueue adds an Queue option to the configuration
func WithQueue(queue string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Queue = queue
		return nil
	}
}

// WithMaxNumberOfMessages adds an MaxNumberOfMessages option to the
// configuration
func WithMaxNumberOfMessages(numOfMessages int64) RemoteOption {
	return func(config *RemoteConfig) error {
		if numOfMessages <= 0 {
			return errors.Errorf("invalid max number of messages %d", numOfMessages)
		}
		config.MaxNumberOfMessages = numOfMessages
		return nil
	}
}

// WithVisibilityTimeout adds an VisibilityTimeout option to the
// configuration
func WithVisibilityTimeout(visibilityTimeout time.Duration) RemoteOption {
	return func(config *RemoteConfig) error {
		config.VisibilityTimeout = visibilityTimeout
		return nil
	}
}

// WithWaitTime sets how long a Dequeue long polls for.
func WithWaitTime(waitTime time.Duration) RemoteOption {
	return func(config *RemoteConfig) error {
		config.WaitTime = waitTime
		return nil
	}
}
