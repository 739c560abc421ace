package store

//go:generate mockgen -package=mocks -destination=mocks/store.go github.com/trussle/expense/pkg/store Store

import (
	"context"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	"github.com/trussle/expense/pkg/models"
)

const defaultVirtualSize = 1000

// Store persists receipt records keyed by their partition key.
type Store interface {

	// Put writes the record, replacing any record held under the same key.
	Put(context.Context, models.Record) error
}

// Config encapsulates the requirements for generating a Store
type Config struct {
	name         string
	size         int
	remoteConfig *RemoteConfig
}

// Option defines a option for generating a store Config
type Option func(*Config) error

// Build ingests configuration options to then yield a Config and return an
// error if it fails during setup.
func Build(opts ...Option) (*Config, error) {
	config := Config{
		size: defaultVirtualSize,
	}
	for _, opt := range opts {
		err := opt(&config)
		if err != nil {
			return nil, err
		}
	}
	return &config, nil
}

// With adds a type of store to use for the configuration.
func With(name string) Option {
	return func(config *Config) error {
		config.name = name
		return nil
	}
}

// WithSize bounds the number of records a virtual store holds.
func WithSize(size int) Option {
	return func(config *Config) error {
		if size <= 0 {
			return errors.Errorf("invalid size %d", size)
		}
		config.size = size
		return nil
	}
}

// WithConfig adds a remote store config to the configuration
func WithConfig(remoteConfig *RemoteConfig) Option {
	return func(config *Config) error {
		config.remoteConfig = remoteConfig
		return nil
	}
}

// New creates a store from a configuration or returns error if on failure.
func New(config *Config, logger log.Logger) (store Store, err error) {
	switch strings.ToLower(config.name) {
	case "remote":
		if config.remoteConfig == nil {
			err = errors.New("remote store requires a remote config")
			return
		}
		store, err = newRemoteStore(config.remoteConfig, logger)
		if err != nil {
			err = errors.Wrap(err, "remote store")
			return
		}
	case "virtual":
		store = NewVirtualStore(config.size, logger)
	case "nop":
		store = newNopStore()
	default:
		err = errors.Errorf("unexpected store type %q", config.name)
	}
	return
}
