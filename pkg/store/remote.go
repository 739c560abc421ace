package store

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/cloud"
	"github.com/trussle/expense/pkg/models"
)

// RemoteConfig creates a configuration to create a RemoteStore.
type RemoteConfig struct {
	EC2Role           bool
	ID, Secret, Token string
	Region, Endpoint  string
	Table             string
}

type remoteStore struct {
	client dynamodbiface.DynamoDBAPI
	table  *string
	logger log.Logger
}

func newRemoteStore(config *RemoteConfig, logger log.Logger) (Store, error) {
	if config.Table == "" {
		return nil, errors.New("missing table name")
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

	return newRemoteStoreWithClient(dynamodb.New(sess), config.Table, logger), nil
}

func newRemoteStoreWithClient(client dynamodbiface.DynamoDBAPI, table string, logger log.Logger) *remoteStore {
	return &remoteStore{
		client: client,
		table:  aws.String(table),
		logger: logger,
	}
}

// Put is an unconditional PutItem, so a second record with the same key
// replaces the first.
func (r *remoteStore) Put(ctx context.Context, record models.Record) error {
	item, err := dynamodbattribute.MarshalMap(record)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}

	input := &dynamodb.PutItemInput{
		TableName: r.table,
		Item:      item,
	}
	if _, err := r.client.PutItemWithContext(ctx, input); err != nil {
		level.Warn(r.logger).Log("state", "put item", "pk", record.PK, "err", err)
		return errors.Wrapf(err, "put item %q", record.PK)
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

// WithEndpoint overrides the DynamoDB endpoint, e.g. for DynamoDB Local.
func WithEndpoint(endpoint string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Endpoint = endpoint
		return nil
	}
}

// WithTable adds the table name to the configuration
func WithTable(table string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Table = table
		return nil
	}
}
