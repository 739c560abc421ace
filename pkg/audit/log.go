package audit

//go:generate mockgen -package=mocks -destination=mocks/log.go github.com/trussle/expense/pkg/audit Log

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/models"
)

// Log represents an audit log of pipeline executions that have occurred.
type Log interface {

	// Append an execution to the log
	Append(context.Context, models.Execution) error
}

// Config encapsulates the requirements for generating a Log
type Config struct {
	name         string
	remoteConfig *RemoteConfig
}

// Option defines a option for generating a log Config
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

// With adds a type of log to use for the configuration.
func With(name string) Option {
	return func(config *Config) error {
		config.name = name
		return nil
	}
}

// WithRemoteConfig adds a remote log config to the configuration
func WithRemoteConfig(remoteConfig *RemoteConfig) Option {
	return func(config *Config) error {
		config.remoteConfig = remoteConfig
		return nil
	}
}

// New creates a log from a configuration or returns error if on failure.
func New(config *Config, logger log.Logger) (l Log, err error) {
	switch strings.ToLower(config.name) {
	case "remote":
		if config.remoteConfig == nil {
			err = errors.New("remote log requires a remote config")
			return
		}
		l, err = newRemoteLog(config.remoteConfig, logger)
		if err != nil {
			err = errors.Wrap(err, "remote log")
			return
		}
	case "virtual":
		l = NewVirtualLog()
	case "nop":
		l = newNopLog()
	default:
		err = errors.Errorf("unexpected log type %q", config.name)
	}
	return
}
