package invoker

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/cloud"
	"github.com/trussle/expense/pkg/models"
)

// RemoteConfig creates a configuration to create a RemoteInvoker.
type RemoteConfig struct {
	EC2Role           bool
	ID, Secret, Token string
	Region, Endpoint  string
	Function          string
}

type remoteInvoker struct {
	client   lambdaiface.LambdaAPI
	function *string
	logger   log.Logger
}

func newRemoteInvoker(config *RemoteConfig, logger log.Logger) (Invoker, error) {
	if config.Function == "" {
		return nil, errors.New("missing function name")
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

	return newRemoteInvokerWithClient(lambda.New(sess), config.Function, logger), nil
}

func newRemoteInvokerWithClient(client lambdaiface.LambdaAPI, function string, logger log.Logger) *remoteInvoker {
	return &remoteInvoker{
		client:   client,
		function: aws.String(function),
		logger:   logger,
	}
}

// Invoke runs the function synchronously. A function error (the handler
// returned an error or panicked) is reported back as an error.
func (r *remoteInvoker) Invoke(ctx context.Context, input models.Input) (models.Response, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return models.Response{}, errors.Wrap(err, "encoding payload")
	}

	output, err := r.client.InvokeWithContext(ctx, &lambda.InvokeInput{
		FunctionName:   r.function,
		InvocationType: aws.String(lambda.InvocationTypeRequestResponse),
		Payload:        payload,
	})
	if err != nil {
		return models.Response{}, errors.Wrapf(err, "invoke %s", aws.StringValue(r.function))
	}

	if output.FunctionError != nil {
		level.Warn(r.logger).Log("state", "invoke", "function_error", aws.StringValue(output.FunctionError))
		return models.Response{}, newFunctionError(aws.StringValue(output.FunctionError), output.Payload)
	}

	var response models.Response
	if err := json.Unmarshal(output.Payload, &response); err != nil {
		return models.Response{}, errors.Wrap(err, "decoding response")
	}
	return response, nil
}

// FunctionError is returned when the invoked function itself failed.
type FunctionError struct {
	Kind    string `json:"-"`
	Type    string `json:"errorType"`
	Message string `json:"errorMessage"`
}

func newFunctionError(kind string, payload []byte) error {
	err := &FunctionError{Kind: kind}
	if e := json.Unmarshal(payload, err); e != nil {
		err.Message = string(payload)
	}
	return err
}

func (e *FunctionError) Error() string {
	if e.Type == "" {
		return e.Kind + ": " + e.Message
	}
	return e.Kind + ": " + e.Type + ": " + e.Message
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

// WithEndpoint overrides the Lambda endpoint.
func WithEndpoint(endpoint string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Endpoint = endpoint
		return nil
	}
}

// WithFunction adds the function name or ARN to the configuration
func WithFunction(function string) RemoteOption {
	return func(config *RemoteConfig) error {
		config.Function = function
		return nil
	}
}
