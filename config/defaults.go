package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "coinsaga",
			Version:     "dev",
			Environment: "development",
			NodeID:      "coinsaga-1",
			Debug:       false,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20, // 1MB
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path:             "./data/badger",
				SyncWrites:       true,
				ValueLogFileSize: 1 << 30, // 1GB
			},
		},
		Broker: BrokerConfig{
			Type: "redis",
			Redis: RedisConfig{
				Address:      "localhost:6379",
				Password:     "",
				DB:           0,
				StreamPrefix: "coinsaga:",
				Group:        "transaction-service",
				BlockTimeout: 5 * time.Second,
				ClaimMinIdle: 30 * time.Second,
			},
		},
		Saga: SagaConfig{
			Deadline:              5 * time.Minute,
			SweepInterval:         30 * time.Second,
			PublishMaxRetries:     3,
			PublishInitialBackoff: 50 * time.Millisecond,
			PublishMaxBackoff:     2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9091,
			Path:    "/metrics",
		},
	}
}
