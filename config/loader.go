package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "COINSAGA_"
	// Delimiter is the key delimiter for nested config.
	Delimiter = "."
)

// Loader handles configuration loading from various sources.
type Loader struct {
	k *koanf.Koanf
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New(Delimiter),
	}
}

// Load loads configuration with the following priority:
// 1. Explicit overrides (highest)
// 2. Environment variables
// 3. Configuration file
// 4. Defaults (lowest)
func Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	return NewLoader().Load(configPath, overrides)
}

// Load loads configuration from all sources.
func (l *Loader) Load(configPath string, overrides map[string]interface{}) (*Config, error) {
	if err := l.k.Load(confmap.Provider(defaultsMap(), Delimiter), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := l.loadFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		l.loadDefaultFiles()
	}

	if err := l.loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if len(overrides) > 0 {
		if err := l.k.Load(confmap.Provider(overrides, Delimiter), nil); err != nil {
			return nil, fmt.Errorf("failed to apply overrides: %w", err)
		}
	}

	var cfg Config
	if err := l.k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "mapstructure",
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ValidateWithDetails(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaultsMap flattens DefaultConfig into dotted koanf keys. Flat keys merge
// correctly with file/env layers; struct values would replace whole subtrees.
func defaultsMap() map[string]interface{} {
	d := DefaultConfig()
	return map[string]interface{}{
		"app.name":        d.App.Name,
		"app.version":     d.App.Version,
		"app.environment": d.App.Environment,
		"app.node_id":     d.App.NodeID,
		"app.debug":       d.App.Debug,

		"server.host":             d.Server.Host,
		"server.port":             d.Server.Port,
		"server.read_timeout":     d.Server.ReadTimeout,
		"server.write_timeout":    d.Server.WriteTimeout,
		"server.idle_timeout":     d.Server.IdleTimeout,
		"server.max_header_bytes": d.Server.MaxHeaderBytes,

		"log.level":  d.Log.Level,
		"log.format": d.Log.Format,
		"log.output": d.Log.Output,

		"storage.type":                       d.Storage.Type,
		"storage.badger.path":                d.Storage.Badger.Path,
		"storage.badger.sync_writes":         d.Storage.Badger.SyncWrites,
		"storage.badger.value_log_file_size": d.Storage.Badger.ValueLogFileSize,

		"broker.type":                 d.Broker.Type,
		"broker.redis.address":        d.Broker.Redis.Address,
		"broker.redis.password":       d.Broker.Redis.Password,
		"broker.redis.db":             d.Broker.Redis.DB,
		"broker.redis.stream_prefix":  d.Broker.Redis.StreamPrefix,
		"broker.redis.group":          d.Broker.Redis.Group,
		"broker.redis.block_timeout":  d.Broker.Redis.BlockTimeout,
		"broker.redis.claim_min_idle": d.Broker.Redis.ClaimMinIdle,

		"saga.deadline":                d.Saga.Deadline,
		"saga.sweep_interval":          d.Saga.SweepInterval,
		"saga.publish_max_retries":     d.Saga.PublishMaxRetries,
		"saga.publish_initial_backoff": d.Saga.PublishInitialBackoff,
		"saga.publish_max_backoff":     d.Saga.PublishMaxBackoff,

		"metrics.enabled": d.Metrics.Enabled,
		"metrics.port":    d.Metrics.Port,
		"metrics.path":    d.Metrics.Path,
	}
}

// loadFile loads configuration from a file.
func (l *Loader) loadFile(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser

	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", path)
	}

	return l.k.Load(file.Provider(path), parser)
}

// loadDefaultFiles tries to load config from standard locations.
func (l *Loader) loadDefaultFiles() {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"configs/config.yaml",
		"/etc/coinsaga/config.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = l.loadFile(path) // Ignore error, try next
			return
		}
	}
}

// loadEnv loads configuration from environment variables.
func (l *Loader) loadEnv() error {
	return l.k.Load(env.Provider(EnvPrefix, Delimiter, func(s string) string {
		// COINSAGA_SERVER_PORT -> server.port
		// COINSAGA_LOG_LEVEL -> log.level
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.Replace(key, "_", ".", 1)
	}), nil)
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString returns a string configuration value.
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value interface{}) error {
	return l.k.Set(key, value)
}
