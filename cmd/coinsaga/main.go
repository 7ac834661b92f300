package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/redis/go-redis/v9"

	"github.com/coinsaga/coinsaga/config"
	"github.com/coinsaga/coinsaga/pkg/api"
	"github.com/coinsaga/coinsaga/pkg/api/handlers"
	"github.com/coinsaga/coinsaga/pkg/eventbus"
	"github.com/coinsaga/coinsaga/pkg/logger"
	"github.com/coinsaga/coinsaga/pkg/metrics"
	"github.com/coinsaga/coinsaga/pkg/saga"
	"github.com/coinsaga/coinsaga/pkg/service"
	"github.com/coinsaga/coinsaga/pkg/transaction"
	"github.com/coinsaga/coinsaga/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")

	// CLI overrides
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *versionFlag {
		info := version.Info()
		fmt.Printf("coinsaga %s (commit %s, built %s, %s)\n",
			info["version"], info["gitCommit"], info["buildTime"], info["goVersion"])
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, buildOverrides())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug || *debugMode {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	log.Info("Starting coinsaga",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)
	log.Debug("Configuration loaded", "config", cfg.String())

	if err := run(cfg, log); err != nil {
		log.Error("coinsaga exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Storage backend. Transaction rows and saga state share one Badger
	// handle so a crash cannot lose one without the other.
	var (
		txnStore  transaction.Store
		sagaStore saga.StateStore
		db        *badger.DB
	)
	switch cfg.Storage.Type {
	case "badger":
		opts := badger.DefaultOptions(cfg.Storage.Badger.Path).
			WithSyncWrites(cfg.Storage.Badger.SyncWrites).
			WithLogger(nil)
		if cfg.Storage.Badger.ValueLogFileSize > 0 {
			opts = opts.WithValueLogFileSize(cfg.Storage.Badger.ValueLogFileSize)
		}
		var err error
		db, err = badger.Open(opts)
		if err != nil {
			return fmt.Errorf("open badger: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Error("Error closing storage", "error", err)
			}
		}()

		txnStore, err = transaction.NewBadgerStore(db)
		if err != nil {
			return err
		}
		sagaStore, err = saga.NewBadgerStateStore(db)
		if err != nil {
			return err
		}
		log.Info("Initialized Badger storage", "path", cfg.Storage.Badger.Path)
	default:
		txnStore = transaction.NewMemoryStore()
		sagaStore = saga.NewMemoryStateStore()
		log.Warn("Using in-memory storage, in-flight sagas will not survive restarts")
	}

	// Metrics.
	metricsManager := metrics.NewManager(metrics.Config{
		Enabled:             cfg.Metrics.Enabled,
		Port:                cfg.Metrics.Port,
		Path:                cfg.Metrics.Path,
		HTTPDurationBuckets: metrics.DefaultConfig().HTTPDurationBuckets,
	})
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Event channel.
	var bus eventbus.Bus
	var redisClient *redis.Client
	switch cfg.Broker.Type {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Broker.Redis.Address,
			Password: cfg.Broker.Redis.Password,
			DB:       cfg.Broker.Redis.DB,
		})
		defer redisClient.Close()

		var err error
		bus, err = eventbus.NewRedisBus(redisClient, eventbus.RedisBusConfig{
			StreamPrefix: cfg.Broker.Redis.StreamPrefix,
			Group:        cfg.Broker.Redis.Group,
			Consumer:     cfg.App.NodeID,
			BlockTimeout: cfg.Broker.Redis.BlockTimeout,
			ClaimMinIdle: cfg.Broker.Redis.ClaimMinIdle,
		})
		if err != nil {
			return fmt.Errorf("create redis bus: %w", err)
		}
		log.Info("Initialized Redis event channel", "address", cfg.Broker.Redis.Address)
	default:
		bus = eventbus.NewMemoryBus()
		log.Warn("Using in-memory event channel, only suitable for development")
	}

	publisher, err := eventbus.NewPublisher(cfg.App.NodeID, bus, eventbus.RetryConfig{
		MaxRetries:     cfg.Saga.PublishMaxRetries,
		InitialBackoff: cfg.Saga.PublishInitialBackoff,
		MaxBackoff:     cfg.Saga.PublishMaxBackoff,
		BackoffFactor:  eventbus.DefaultRetryConfig().BackoffFactor,
	}, metricsManager)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}

	// Saga orchestration.
	orchestrator, err := saga.NewOrchestrator(sagaStore, txnStore, publisher, cfg.Saga.Deadline, log, metricsManager)
	if err != nil {
		return err
	}

	listener, err := saga.NewListener(bus, orchestrator, log, metricsManager)
	if err != nil {
		return err
	}
	listenerDone := make(chan error, 1)
	go func() {
		listenerDone <- listener.Run(ctx)
	}()

	sweeper, err := saga.NewSweeper(sagaStore, orchestrator, cfg.Saga.SweepInterval, log, metricsManager)
	if err != nil {
		return err
	}
	go sweeper.Run(ctx)

	// HTTP API.
	txnService, err := service.NewTransactionService(txnStore, orchestrator, log)
	if err != nil {
		return err
	}

	checks := []handlers.ReadinessCheck{
		{
			Name: "event-channel",
			Probe: func() error {
				if publisher.Degraded() {
					return fmt.Errorf("publisher degraded")
				}
				return nil
			},
		},
	}
	if redisClient != nil {
		checks = append(checks, handlers.ReadinessCheck{
			Name: "redis",
			Probe: func() error {
				pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer pingCancel()
				return redisClient.Ping(pingCtx).Err()
			},
		})
	}
	if db != nil {
		checks = append(checks, handlers.ReadinessCheck{
			Name: "storage",
			Probe: func() error {
				if db.IsClosed() {
					return fmt.Errorf("storage closed")
				}
				return nil
			},
		})
	}

	httpServer := api.NewHTTPServer(cfg, log, &api.Handlers{
		Transaction: handlers.NewTransactionHandler(txnService, log),
		Health:      handlers.NewHealthHandler(checks...),
		Metrics:     metricsManager,
	})
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- httpServer.Start()
	}()

	// Reload the log level when the config file changes on disk.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath)
		if err != nil {
			log.Warn("Config watcher unavailable", "error", err)
		} else {
			watcher.OnChange(func(updated *config.Config) {
				logger.SetLevel(logger.ParseLevel(updated.Log.Level))
				log.Info("Log level updated", "level", updated.Log.Level)
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
					log.Warn("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Close()
		}
	}

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverDone:
		runErr = err
		serverDone = nil
	case err := <-listenerDone:
		if err != nil {
			runErr = fmt.Errorf("listener stopped: %w", err)
		}
		listenerDone = nil
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown error", "error", err)
	}
	cancel()
	if listenerDone != nil {
		<-listenerDone
	}
	if serverDone != nil {
		<-serverDone
	}

	log.Info("coinsaga stopped")
	return runErr
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})
	if *serverPort > 0 {
		overrides["server.port"] = *serverPort
	}
	if *logLevel != "" {
		overrides["log.level"] = *logLevel
	}
	if *debugMode {
		overrides["app.debug"] = true
	}
	return overrides
}
