package main

// @title Offerforge API
// @version 1.0
// @description Step-driven composition of travel offers: hotels, flights, transfers and activities priced into one sellable offer.
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/offerforge/offerforge

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /
// @schemes http https

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/offerforge/offerforge/config"
	"github.com/offerforge/offerforge/pkg/api"
	"github.com/offerforge/offerforge/pkg/api/handlers"
	"github.com/offerforge/offerforge/pkg/engine"
	"github.com/offerforge/offerforge/pkg/events"
	grpcpkg "github.com/offerforge/offerforge/pkg/grpc"
	grpchandlers "github.com/offerforge/offerforge/pkg/grpc/handlers"
	"github.com/offerforge/offerforge/pkg/logger"
	"github.com/offerforge/offerforge/pkg/telemetry/tracing"
	"github.com/offerforge/offerforge/pkg/version"
)

var (
	configPath  = flag.String("config", "", "Path to configuration file")
	versionFlag = flag.Bool("version", false, "Print version information")
	helpFlag    = flag.Bool("help", false, "Print help information")

	// CLI overrides
	appName     = flag.String("app-name", "", "Override app name")
	serverPort  = flag.Int("port", 0, "Override server port")
	logLevel    = flag.String("log-level", "", "Override log level")
	storageType = flag.String("storage", "", "Override storage backend (memory, badger, redis)")
	debugMode   = flag.Bool("debug", false, "Enable debug mode")
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

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath, overrides)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration:\n%s\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg, *debugMode)
	logger.SetGlobal(log)

	log.Info("Starting Offerforge",
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

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        cfg.App.Name,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		log.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	var rdb redis.Cmdable
	if needsRedis(cfg) {
		client := newRedisClient(cfg.Storage.Redis)
		defer client.Close()
		rdb = client
	}

	store, err := openStorage(ctx, cfg.Storage, rdb, log)
	if err != nil {
		log.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing storage", "error", err)
		}
	}()

	metricsManager := newMetrics(cfg.Metrics)
	if metricsManager.Enabled() {
		go func() {
			log.Info("Starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
			if err := metricsManager.StartServer(ctx, cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
				log.Error("Metrics server error", "error", err)
			}
		}()
	}

	provider, err := newProvider(cfg.Inventory, rdb, metricsManager, log)
	if err != nil {
		log.Error("Failed to create inventory provider", "error", err)
		os.Exit(1)
	}

	broadcaster := events.NewBroadcaster()
	defer broadcaster.Close()

	eng, err := engine.New(engine.Config{
		Name:          cfg.App.Name,
		MaxSessions:   cfg.Engine.MaxSessions,
		Strict:        cfg.Engine.Strict || cfg.App.Environment == "development",
		RecoverDrafts: cfg.Engine.RecoverDrafts,
	}, provider,
		engine.WithStorage(store),
		engine.WithMetrics(metricsManager),
		engine.WithEventBroadcaster(broadcaster),
		engine.WithLogger(log),
	)
	if err != nil {
		log.Error("Failed to create engine", "error", err)
		os.Exit(1)
	}
	if err := eng.Start(ctx); err != nil {
		log.Error("Failed to start engine", "error", err)
		os.Exit(1)
	}

	// Hot reload of the config file.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, loader, config.WithWatcherLogger(log))
		if err != nil {
			log.Warn("Config hot reload disabled", "error", err)
		} else {
			current := config.ExtractHotReloadable(cfg)
			watcher.OnChange(func(next *config.Config) {
				reloaded := config.ExtractHotReloadable(next)
				if !current.Changed(reloaded) {
					return
				}
				applyHotReload(log, eng, current, reloaded)
				current = reloaded
			})
			go func() {
				if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
					log.Error("Config watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		}
	}

	wsHandler := handlers.NewWebSocketHandler(log, handlers.WebSocketConfig{
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
		MaxConnections: cfg.WebSocket.MaxConnections,
		PingInterval:   cfg.WebSocket.PingInterval,
		PongTimeout:    cfg.WebSocket.PongTimeout,
		SendBuffer:     cfg.WebSocket.Buffer,
	})
	go wsHandler.Forward(ctx, broadcaster.Subscribe(cfg.WebSocket.Buffer))

	apiHandlers := &api.Handlers{
		Journey: handlers.NewJourneyHandler(eng, log),
		Offer:   handlers.NewOfferHandler(eng, log),
		Health:  handlers.NewHealthHandler(eng),
		Events:  wsHandler,
	}
	if metricsManager.Enabled() {
		apiHandlers.Metrics = metricsManager
	}

	httpServer := api.NewHTTPServer(cfg, log, apiHandlers)

	serverErrChan := make(chan error, 2)
	go func() {
		if err := httpServer.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	var grpcServer *grpcpkg.Server
	if cfg.Server.GRPC.Enabled {
		grpcOpts := []grpcpkg.Option{grpcpkg.WithLogger(log)}
		if metricsManager.Enabled() {
			grpcOpts = append(grpcOpts, grpcpkg.WithRegisterer(metricsManager.Registry()))
		}
		grpcServer, err = grpcpkg.New(cfg.GRPCServerConfig(), grpcOpts...)
		if err != nil {
			log.Error("Failed to create gRPC server", "error", err)
			os.Exit(1)
		}
		grpcServer.RegisterService(&grpchandlers.JourneyServiceDesc, grpchandlers.NewJourneyServiceServer(eng))
		if err := grpcServer.Start(); err != nil {
			serverErrChan <- err
		} else if health := grpcServer.Health(); health != nil {
			go health.Track(ctx, grpchandlers.JourneyServiceName, eng.IsReady, 5*time.Second)
		}
	}

	log.Info("Offerforge is running",
		"http_port", cfg.Server.Port,
		"grpc_enabled", cfg.Server.GRPC.Enabled,
		"metrics_port", cfg.Metrics.Port,
		"storage", cfg.Storage.Type,
		"inventory", cfg.Inventory.Type,
	)

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErrChan:
		log.Error("Server error", "error", err)
	case <-ctx.Done():
		log.Info("Context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer shutdownCancel()

	// Stop intake first, then close open websocket streams.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", "error", err)
	}
	wsHandler.Close()

	if grpcServer != nil {
		log.Info("Shutting down gRPC server")
		if err := grpcServer.Stop(shutdownCtx); err != nil {
			log.Error("Error shutting down gRPC server", "error", err)
		}
	}

	log.Info("Stopping engine")
	if err := eng.Stop(shutdownCtx); err != nil {
		log.Error("Error during engine shutdown", "error", err)
	}

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error flushing traces", "error", err)
	}

	log.Info("Offerforge stopped gracefully")
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
	if *storageType != "" {
		overrides["storage.type"] = *storageType
	}
	if *debugMode {
		overrides["app.debug"] = true
	}

	return overrides
}

func printVersion() {
	fmt.Printf("Offerforge - Travel Offer Composer\n")
	fmt.Printf("Version:    %s\n", version.Version)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Printf("Git Commit: %s\n", version.GitCommit)
	fmt.Printf("Go Version: %s\n", version.GoVersion)
}

func printHelp() {
	fmt.Printf("Offerforge - step-driven composition of travel offers\n\n")
	fmt.Printf("Usage: offerforge [options]\n\n")
	fmt.Printf("Options:\n")
	flag.PrintDefaults()
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  offerforge                                # Run with default config\n")
	fmt.Printf("  offerforge -config config.yaml            # Use specific config file\n")
	fmt.Printf("  offerforge -port 9090 -log-level debug    # Override specific options\n")
	fmt.Printf("  offerforge -storage badger                # Persist drafts on disk\n")
	fmt.Printf("  offerforge -version                       # Print version info\n")
}
