package audit

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/firehose"
	"github.com/aws/aws-sdk-go/service/firehose/firehoseiface"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/cloud"
	"github.com/trussle/expense/pkg/models"
)

// RemoteConfig creates a configuration to create a RemoteLog.
type RemoteConfig struct {
	EC2Role           bool
	ID, Secret, Token string
	Region, Endpoint  string
	Stream            string
}

// remoteLog writes one JSON line per execution to a Firehose delivery stream.
type remoteLog struct {
	client firehoseiface.FirehoseAPI
	stream *string
	logger log.Logger
}

func newRemoteLog(config *RemoteConfig, logger log.Logger) (Log, error) {
	if config.Stream == "" {
		return nil, errors.New("missing delivery stream name")
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

	return newRemoteLogWithClient(firehose.New(sess), config.Stream, logger), nil
}

func newRemoteLogWithClient(client firehoseiface.FirehoseAPI, stream string, logger log.Logger) *remoteLog {
	return &remoteLog{
		client: client,
		stream: aws.String(stream),
		logger: logger,
	}
}

func (r *remoteLog) Append(ctx context.Context, execution models.Execution) error {
	data, err := row(execution)
	if err != nil {
		return err
	}

	input := &firehose.PutRecordInput{
		DeliveryStreamName: r.stream,
		Record: &firehose.Record{
			Data: data,
		},
	}
	if _, err := r.client.PutRecordWithContext(ctx, input); err != nil {
		level.Warn(r.logger).Log("state", "remote-put", "execution", execution.ID, "err", err)
		return errors.Wrapf(err, "put record %s", execution.ID)
	}
	return nil
}

func row(execution models.Execution) ([]byte, error) {
	b, err := json.Marshal(execution)
	if err != nil {
		return nil, errors.Wrap(err, "marshal execution")
	}
	return append(b, '\n'), nil
}

// RemoteConfigOption defines a option for generating a RemoteConfig
type RemoteConfigOption func(*RemoteConfig) error

// BuildRemoteConfig ingests configuration options to then yield a
// RemoteConfig, and return an error if it fails during configuring.
func BuildRemoteConfig(opts ...RemoteConfigOption) (*RemoteConfig, error) {
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
func WithEC2Role(ec2Role bool) RemoteConfigOption {
	return func(config *RemoteConfig) error {
		config.EC2Role = ec2Role
		return nil
	}
}

// WithID adds an ID option to the configuration
func WithID(id string) RemoteConfigOption {
	return func(config *RemoteConfig) error {
		config.ID = id
		return nil
	}
}

// WithSecret adds an Secret option to the configuration
func WithSecret(secret string) RemoteConfigOption {
	return func(config *RemoteConfig) error {
		config.Secret = secret
		return nil
	}
}

// WithToken adds an Token option to the configuration
func WithToken(token string) RemoteConfigOption {
	return func(config *RemoteConfig) error {
		config.Token = token
		return nil
	}
}

// WithRegion adds an Region option to the configuration
func WithRegion(region string) RemoteConfigOption {
	return func(config *RemoteConfig) error {
		config.Region = region
		return nil
	}
}

// WithEndpoint overrides the Firehose endpoint.
func WithEndpoint(endpoint string) RemoteConfigOption {
	return func(config *RemoteConfig) error {
		config.Endpoint = endpoint
		return nil
	}
}

// WithStream adds an Stream option to the configuration
func WithStream(stream string) RemoteConfigOption {
	return func(config *RemoteConfig) error {
		config.Stream = stream
		return nil
	}
}
