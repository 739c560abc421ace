package queue

//go:generate mockgen -package=mocks -destination=mocks/queue.go github.com/trussle/expense/pkg/queue Queue

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
)

// Queue delivers trigger events to the local runner. Records handed out by
// Dequeue stay reserved until they are committed or failed.
type Queue interface {
	// Enqueue a message body
	Enqueue(context.Context, []byte) error

	// Dequeue the next batch of records, which may be empty.
	Dequeue(context.Context) ([]Record, error)

	// Commit the records, so that they're acknowledged and never redelivered.
	Commit(context.Context, []Record) (Result, error)

	// Failed the records, leaving any redelivery to the queue.
	Failed(context.Context, []Record) (Result, error)
}

// Result returns the amount of successes and failures
type Result struct {
	Success, Failure int
}

// Config encapsulates the requirements for generating a Queue
type Config struct {
	name         string
	remoteConfig *RemoteConfig
}

// Option defines a option for generating a queue Config
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

// With adds a type of queue to use for the configuration.
func With(name string) Option {
	return func(config *Config) error {
		config.name = name
		return nil
	}
}

// WithConfig adds a remote queue config to the configuration
func WithConfig(remoteConfig *RemoteConfig) Option {
	return func(config *Config) error {
		config.remoteConfig = remoteConfig
		return nil
	}
}

// New creates a queue from a configuration or returns error if on failure.
func New(config *Config, logger log.Logger) (queue Queue, err error) {
	switch strings.ToLower(config.name) {
	case "remote":
		if config.remoteConfig == nil {
			err = errors.New("remote queue requires a remote config")
			return
		}
		queue, err = newRemoteQueue(config.remoteConfig, logger)
		if err != nil {
			err = errors.Wrap(err, "remote queue")
			return
		}
	case "virtual":
		queue = NewVirtualQueue()
	case "nop":
		queue = newNopQueue()
	default:
		err = errors.Errorf("unexpected queue type %q", config.name)
	}
	return
}
