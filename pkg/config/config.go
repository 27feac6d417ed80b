package config

import (
	"time"

	"github.com/ajitpratap0/conduit/pkg/clients"
	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/logger"
)

// Config is the root configuration for every conduit component.
type Config struct {
	// Name identifies the connector instance
	Name string `yaml:"name" json:"name"`

	// Logging configures the zap logger
	Logging logger.Config `yaml:"logging" json:"logging"`

	// Extract configures bulk extraction runs
	Extract ExtractConfig `yaml:"extract" json:"extract"`

	// Batcher configures default accumulator thresholds
	Batcher BatcherConfig `yaml:"batcher" json:"batcher"`

	// HTTP configures the resource transport
	HTTP clients.HTTPConfig `yaml:"http" json:"http"`

	// Server configures the notification endpoint
	Server ServerConfig `yaml:"server" json:"server"`

	// Tracing configures OpenTelemetry spans
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
}

// ExtractConfig contains extraction pipeline settings.
type ExtractConfig struct {
	// BatchSize is the number of records handed to one handler call
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// Concurrency limits the number of handler calls in flight
	Concurrency int `yaml:"concurrency" json:"concurrency"`
	// Decompress enables transparent decompression of resource bodies
	Decompress bool `yaml:"decompress" json:"decompress"`
}

// BatcherConfig contains the default thresholds for accumulator queues.
type BatcherConfig struct {
	// MaxSize flushes a queue once it holds this many items
	MaxSize int `yaml:"max_size" json:"max_size"`
	// Throttle flushes a queue after this long without inserts
	Throttle time.Duration `yaml:"throttle" json:"throttle"`
}

// ServerConfig contains the HTTP boundary settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// MaxBodyBytes caps the size of an inbound notification
	MaxBodyBytes int64 `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// TracingConfig contains tracing settings.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	ServiceName    string  `yaml:"service_name" json:"service_name"`
	ServiceVersion string  `yaml:"service_version" json:"service_version"`
	SamplingRate   float64 `yaml:"sampling_rate" json:"sampling_rate"`
	PrettyPrint    bool    `yaml:"pretty_print" json:"pretty_print"`
}

// Default creates a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Name:    "conduit",
		Logging: logger.DefaultConfig(),
		Extract: ExtractConfig{
			BatchSize:   100,
			Concurrency: 2,
			Decompress:  true,
		},
		Batcher: BatcherConfig{
			MaxSize:  1000,
			Throttle: 10 * time.Second,
		},
		HTTP: *clients.DefaultHTTPConfig(),
		Server: ServerConfig{
			Addr:            ":8082",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    10 << 20,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "conduit",
			ServiceVersion: "0.1.0",
			SamplingRate:   0.1,
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	if c.Extract.BatchSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "extract.batch_size must be positive")
	}
	if c.Extract.Concurrency <= 0 {
		return errors.New(errors.ErrorTypeConfig, "extract.concurrency must be positive")
	}
	if c.Batcher.MaxSize < 1 {
		return errors.New(errors.ErrorTypeConfig, "batcher.max_size must be at least 1")
	}
	if c.Batcher.Throttle < 0 {
		return errors.New(errors.ErrorTypeConfig, "batcher.throttle cannot be negative")
	}
	if c.HTTP.RateLimit < 0 {
		return errors.New(errors.ErrorTypeConfig, "http.rate_limit cannot be negative")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.New(errors.ErrorTypeConfig, "tracing.sampling_rate must be within [0, 1]")
	}
	return nil
}
