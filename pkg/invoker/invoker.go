package invoker

//go:generate mockgen -package=mocks -destination=mocks/invoker.go github.com/trussle/expense/pkg/invoker Invoker

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/models"
)

// Invoker calls the compute handler with an input and returns its response.
type Invoker interface {
	Invoke(context.Context, models.Input) (models.Response, error)
}

// Config encapsulates the requirements for generating an Invoker
type Config struct {
	name         string
	handler      Invoker
	remoteConfig *RemoteConfig
}

// Option defines a option for generating an invoker Config
type Option func(*Config) error

// Build ingests configuration options to then yield a Config and return an
// error if it fails during setup.
func Build(opts ...Option) (*Config, error) {
	var config Config
	for _, opt := range opts {
		err := opt(&config)
		if err != nil {
			return nil, err
		}
	}
	return &config, nil
}

// With adds a type of invoker to use for the configuration.
func With(name string) Option {
	return func(config *Config) error {
		config.name = name
		return nil
	}
}

// WithHandler sets the in-process handler used by the local invoker.
func WithHandler(handler Invoker) Option {
	return func(config *Config) error {
		config.handler = handler
		return nil
	}
}

// WithConfig adds a remote invoker config to the configuration
func WithConfig(remoteConfig *RemoteConfig) Option {
	return func(config *Config) error {
		config.remoteConfig = remoteConfig
		return nil
	}
}

// New creates an invoker from a configuration or returns error if on failure.
func New(config *Config, logger log.Logger) (invoker Invoker, err error) {
	switch strings.ToLower(config.name) {
	case "remote":
		if config.remoteConfig == nil {
			err = errors.New("remote invoker requires a remote config")
			return
		}
		invoker, err = newRemoteInvoker(config.remoteConfig, logger)
		if err != nil {
			err = errors.Wrap(err, "remote invoker")
			return
		}
	case "local":
		if config.handler == nil {
			err = errors.New("local invoker requires a handler")
			return
		}
		invoker = newLocalInvoker(config.handler, logger)
	case "nop":
		invoker = newNopInvoker()
	default:
		err = errors.Errorf("unexpected invoker type %q", config.name)
	}
	return
}
