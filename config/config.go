// Package config provides configuration management for coinsaga.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for coinsaga.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the persistence configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Broker is the event channel configuration.
	Broker BrokerConfig `mapstructure:"broker"`

	// Saga is the saga orchestration configuration.
	Saga SagaConfig `mapstructure:"saga"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// NodeID identifies this orchestrator instance on the event channel.
	NodeID string `mapstructure:"node_id" validate:"required"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json or text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the log destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds persistence settings for transaction and saga state.
type StorageConfig struct {
	// Type selects the backend (memory or badger). The memory backend loses
	// in-flight sagas on restart and is only suitable for development.
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger holds Badger-specific settings.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds Badger database settings.
type BadgerConfig struct {
	// Path is the database directory.
	Path string `mapstructure:"path"`

	// SyncWrites forces fsync on every write.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum value log file size in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"min=0"`
}

// BrokerConfig holds event channel settings.
type BrokerConfig struct {
	// Type selects the transport (memory or redis).
	Type string `mapstructure:"type" validate:"oneof=memory redis"`

	// Redis holds Redis Streams transport settings.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection and stream settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`

	// StreamPrefix is prepended to every stream key.
	StreamPrefix string `mapstructure:"stream_prefix"`

	// Group is the consumer group for point-to-point subjects.
	Group string `mapstructure:"group"`

	// BlockTimeout is how long a read blocks waiting for new entries.
	BlockTimeout time.Duration `mapstructure:"block_timeout"`

	// ClaimMinIdle is the pending-entry idle time before redelivery to
	// another consumer.
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

// SagaConfig holds orchestration settings.
type SagaConfig struct {
	// Deadline is how long a saga may stay in flight before the sweeper
	// force-fails it.
	Deadline time.Duration `mapstructure:"deadline"`

	// SweepInterval is how often the expiry sweeper scans active sagas.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// PublishMaxRetries bounds publish attempts per message.
	PublishMaxRetries int `mapstructure:"publish_max_retries" validate:"min=0"`

	// PublishInitialBackoff is the first retry delay.
	PublishInitialBackoff time.Duration `mapstructure:"publish_initial_backoff"`

	// PublishMaxBackoff caps the retry delay.
	PublishMaxBackoff time.Duration `mapstructure:"publish_max_backoff"`
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	// Enabled turns metrics collection on.
	Enabled bool `mapstructure:"enabled"`

	// Port is the metrics HTTP port.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`
}

// String returns a printable summary of the configuration without secrets.
func (c *Config) String() string {
	return fmt.Sprintf(
		"app=%s env=%s node=%s server=%s:%d storage=%s broker=%s saga_deadline=%s",
		c.App.Name, c.App.Environment, c.App.NodeID,
		c.Server.Host, c.Server.Port,
		c.Storage.Type, c.Broker.Type, c.Saga.Deadline,
	)
}
