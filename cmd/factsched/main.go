package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/nbalepur/fact-repetition/config"
	"github.com/nbalepur/fact-repetition/pkg/api"
	"github.com/nbalepur/fact-repetition/pkg/api/events"
	"github.com/nbalepur/fact-repetition/pkg/api/handlers"
	"github.com/nbalepur/fact-repetition/pkg/logger"
	"github.com/nbalepur/fact-repetition/pkg/metrics"
	"github.com/nbalepur/fact-repetition/pkg/predict"
	"github.com/nbalepur/fact-repetition/pkg/replay"
	"github.com/nbalepur/fact-repetition/pkg/sched"
	"github.com/nbalepur/fact-repetition/pkg/stats"
	"github.com/nbalepur/fact-repetition/pkg/storage"
	"github.com/nbalepur/fact-repetition/pkg/storage/badger"
	"github.com/nbalepur/fact-repetition/pkg/storage/memory"
	"github.com/nbalepur/fact-repetition/pkg/telemetry/tracing"
	"github.com/nbalepur/fact-repetition/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	watchConfig = flag.Bool("watch-config", false, "Reload configuration on file changes")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName    = flag.String("app-name", "", "Override app name")
	serverPort = flag.Int("port", 0, "Override server port")
	logLevel   = flag.String("log-level", "", "Override log level")
	debugMode  = flag.Bool("debug", false, "Enable debug mode")
)

func main() {
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	overrides := buildOverrides()

	cfg, err := config.Load(*configPath, overrides)
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

	log.Info("Starting scheduler service",
		"version", version.Version,
		"buildTime", version.BuildTime,
		"gitCommit", version.GitCommit,
		"app", cfg.App.Name,
		"environment", cfg.App.Environment,
	)

	log.Debug("Configuration loaded", "config", cfg.String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, cfg.App.Name, version.Version)
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize storage backend
	var store storage.Storage
	switch cfg.Storage.Type {
	case "badger":
		badgerCfg := &badger.Config{
			Path:              cfg.Storage.Badger.Path,
			SyncWrites:        cfg.Storage.Badger.SyncWrites,
			ValueLogFileSize:  cfg.Storage.Badger.ValueLogFileSize,
			NumVersionsToKeep: cfg.Storage.Badger.NumVersionsToKeep,
		}
		store, err = badger.NewBadgerStorage(badgerCfg)
		if err != nil {
			log.Error("Failed to create Badger storage", "error", err)
			os.Exit(1)
		}
		log.Info("Initialized Badger storage", "path", badgerCfg.Path)
	case "memory":
		store = memory.NewMemoryStorage()
		log.Info("Initialized memory storage")
	default:
		store = memory.NewMemoryStorage()
		log.Warn("Unknown storage type, using memory storage", "type", cfg.Storage.Type)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()

	// Initialize metrics manager
	metricsCfg := metrics.Config{
		Enabled:                 cfg.Metrics.Enabled,
		Port:                    cfg.Metrics.Port,
		Path:                    cfg.Metrics.Path,
		ScheduleDurationBuckets: metrics.DefaultConfig().ScheduleDurationBuckets,
		UpdateDurationBuckets:   metrics.DefaultConfig().UpdateDurationBuckets,
		BatchSizeBuckets:        metrics.DefaultConfig().BatchSizeBuckets,
		HTTPDurationBuckets:     metrics.DefaultConfig().HTTPDurationBuckets,
	}
	metricsManager := metrics.NewManager(metricsCfg)

	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	// Build the recall predictor chain
	predictor, err := buildPredictor(cfg, log)
	if err != nil {
		log.Error("Failed to create predictor", "error", err)
		os.Exit(1)
	}

	engine := buildEngine(cfg, predictor, metricsManager.PredictorFallback)

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	scheduler := sched.NewScheduler(store, engine,
		sched.WithLogger(log),
		sched.WithMetrics(metricsManager),
		sched.WithEvents(broadcaster),
		sched.WithDefaultPolicy(cfg.Scheduler.DefaultPolicy),
	)

	replayer := replay.NewReplayer(store, engine)
	statsService := stats.NewService(store)

	// WebSocket fan-out: forward domain events to connected subscribers.
	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	defer wsHandler.Close()

	eventCh := broadcaster.Subscribe(64)
	go func() {
		for ev := range eventCh {
			if err := wsHandler.Broadcast(handlers.EventMessage{
				Type:      ev.Type,
				Timestamp: ev.Timestamp,
				Payload:   ev.Payload,
			}); err != nil {
				log.Warn("WebSocket broadcast failed", "error", err, "event_type", ev.Type)
			}
		}
	}()

	apiHandlers := &api.Handlers{
		Schedule:  handlers.NewScheduleHandler(scheduler, log),
		User:      handlers.NewUserHandler(scheduler, log),
		Stats:     handlers.NewStatsHandler(statsService, log),
		Records:   handlers.NewRecordsHandler(store, replayer, log),
		Health:    handlers.NewHealthHandler(store, version.Version),
		WebSocket: wsHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	// Optionally watch the config file and apply log-level changes live.
	var watcher *config.Watcher
	if *watchConfig && *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, config.NewLoader())
		if err != nil {
			log.Error("Failed to create config watcher", "error", err)
			os.Exit(1)
		}
		watcher.OnChange(func(updated *config.Config) {
			log.Info("Configuration reloaded", "log_level", updated.Log.Level)
			logger.SetLevel(logger.ParseLevel(updated.Log.Level))
		})
		go func() {
			if err := watcher.Watch(ctx); err != nil {
				log.Error("Config watcher error", "error", err)
			}
		}()
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	log.Info("Scheduler service is running",
		"http_port", cfg.Server.Port,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
		"predictor", cfg.Predictor.Type,
		"default_policy", cfg.Scheduler.DefaultPolicy,
	)
	log.Info("Press Ctrl+C to stop")

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("HTTP server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	log.Info("Shutting down HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			log.Error("Error stopping config watcher", "error", err)
		}
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error shutting down tracing", "error", err)
	}

	log.Info("Scheduler service stopped gracefully")
}

// buildPredictor assembles the recall predictor from configuration: the base
// implementation, an optional Redis read-through cache, and a deadline guard.
func buildEngine(cfg *config.Config, p predict.Predictor, fallback func()) *sched.Engine {
	return sched.NewEngine(p,
		sched.WithHorizonDays(float64(cfg.Scheduler.HorizonDays)),
		sched.WithAnswerSimilarityThreshold(cfg.Scheduler.AnswerSimilarityThreshold),
		sched.WithFallbackHook(fallback),
	)
}

func buildPredictor(cfg *config.Config, log logger.Logger) (predict.Predictor, error) {
	var p predict.Predictor
	switch cfg.Predictor.Type {
	case "http":
		p = predict.NewHTTPPredictor(predict.HTTPConfig{
			URL:     cfg.Predictor.URL,
			Timeout: cfg.Predictor.Timeout,
		})
		log.Info("Initialized HTTP predictor", "url", cfg.Predictor.URL)
	default:
		p = predict.NewEmpirical()
		log.Info("Initialized empirical predictor")
	}

	if cfg.Predictor.Cache.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Predictor.Cache.Redis.Address,
			Password: cfg.Predictor.Cache.Redis.Password,
			DB:       cfg.Predictor.Cache.Redis.DB,
		})
		cached, err := predict.NewCachedPredictor(p, client, predict.CacheConfig{
			KeyPrefix: cfg.Predictor.Cache.KeyPrefix,
			TTL:       cfg.Predictor.Cache.TTL,
		})
		if err != nil {
			return nil, err
		}
		p = cached
		log.Info("Enabled prediction cache", "address", cfg.Predictor.Cache.Redis.Address)
	}

	if cfg.Predictor.Timeout > 0 {
		p = predict.WithTimeout(p, cfg.Predictor.Timeout)
	}
	return p, nil
}

func buildOverrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if *appName != "" {
		overrides["app.name"] = *appName
	}
	if *serverPort != 0 {
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

func printVersion() {
	fmt.Printf("Factsched - Adaptive Fact Scheduling Service\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Factsched - Adaptive fact scheduling service for spaced repetition\n\n")
	fmt.Printf("Usage: factsched [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  factsched                                 # Run with default config\n")
	fmt.Printf("  factsched -config config.yaml             # Use specific config file\n")
	fmt.Printf("  factsched -port 9090 -log-level debug     # Override specific options\n")
	fmt.Printf("  factsched -version                        # Print version info\n")
}
