package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/whereabouts/pkg/config"
	"github.com/ekaya-inc/whereabouts/pkg/database"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore/memstore"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore/neo4jstore"
	"github.com/ekaya-inc/whereabouts/pkg/graphstore/pgstore"
	"github.com/ekaya-inc/whereabouts/pkg/handlers"
	"github.com/ekaya-inc/whereabouts/pkg/locking"
	"github.com/ekaya-inc/whereabouts/pkg/logging"
	mcpserver "github.com/ekaya-inc/whereabouts/pkg/mcp"
	"github.com/ekaya-inc/whereabouts/pkg/mcp/tools"
	"github.com/ekaya-inc/whereabouts/pkg/metrics"
	"github.com/ekaya-inc/whereabouts/pkg/middleware"
	"github.com/ekaya-inc/whereabouts/pkg/retry"
	"github.com/ekaya-inc/whereabouts/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("store", cfg.Store.Backend),
		zap.String("locking", cfg.Locking.Backend),
		zap.Bool("mcp", cfg.MCP.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open graph store", zap.String("backend", cfg.Store.Backend), zap.String("error", logging.SanitizeError(err)))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("Failed to close graph store", zap.Error(err))
		}
	}()

	locker, closeLocker, err := newLocker(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create locker", zap.String("backend", cfg.Locking.Backend), zap.String("error", logging.SanitizeError(err)))
	}
	defer closeLocker()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Services
	registry := services.NewRegistryService(store, locker, m, logger)
	tracker := services.NewLocalityTracker(store, locker, m, logger)
	social := services.NewSocialGraphService(store, locker, m, logger)
	spatial := services.NewSpatialGraphService(store, locker, m, logger)
	query := services.NewProximityQueryService(store, tracker, social, spatial, services.QueryLimits{
		ContactLimit: cfg.Query.ContactLimit,
		HistoryLimit: cfg.Query.HistoryLimit,
		FanOut:       cfg.Query.FanOut,
	}, m, logger)

	mux := http.NewServeMux()

	// Register handlers
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewRegistryHandler(registry, logger).RegisterRoutes(mux)
	handlers.NewLocalityHandler(tracker, logger).RegisterRoutes(mux)
	handlers.NewSocialHandler(social, logger).RegisterRoutes(mux)
	handlers.NewSpatialHandler(spatial, logger).RegisterRoutes(mux)
	handlers.NewQueryHandler(query, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	if cfg.MCP.Enabled {
		mcpServer := mcpserver.NewServer(mcpserver.ServerName, cfg.Version, logger)
		mcpServer.RegisterTools(cfg.Version, cfg.Store.Backend, &tools.ToolDeps{
			Tracker: tracker,
			Social:  social,
			Spatial: spatial,
			Query:   query,
			Logger:  logger.Named("mcp"),
		})
		mux.Handle("/mcp", middleware.MCPRequestLogger(logger)(mcpServer.NewStreamableHTTPServer()))
	}

	handler := middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux))
	srv := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting whereabouts", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

// openStore dials the configured graph store backend, retrying while it boots.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (graphstore.Store, error) {
	retryCfg := retry.StartupConfig()
	retryCfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		logger.Warn("Backend not ready, retrying",
			zap.String("backend", cfg.Store.Backend),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("error", logging.SanitizeError(err)))
	}

	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := retry.DoWithResult(ctx, retryCfg, func() (*database.DB, error) {
			return database.NewConnection(ctx, &cfg.Database)
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.RunMigrations {
			if err := migrate(cfg, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		logger.Info("Connected to PostgreSQL", zap.String("url", logging.SanitizeConnectionString(cfg.Database.URL())))
		return pgstore.New(db.Pool, logger), nil

	case config.StoreNeo4j:
		driver, err := retry.DoWithResult(ctx, retryCfg, func() (neo4j.DriverWithContext, error) {
			return database.NewNeo4jDriver(ctx, &cfg.Neo4j)
		})
		if err != nil {
			return nil, err
		}
		store := neo4jstore.New(driver, cfg.Neo4j.Database, logger)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		logger.Info("Connected to Neo4j", zap.String("uri", logging.SanitizeConnectionString(cfg.Neo4j.URI)))
		return store, nil

	default:
		logger.Warn("Using in-memory graph store; data is lost on restart")
		return memstore.New(), nil
	}
}

func migrate(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.OpenSQL(cfg.Database.URL())
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.RunMigrations(db, logger); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// newLocker returns the configured Locker and a func releasing its resources.
func newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (locking.Locker, func(), error) {
	if cfg.Locking.Backend != config.LockRedis {
		return locking.NewKeyedMutex(), func() {}, nil
	}

	client, err := retry.DoWithResult(ctx, retry.StartupConfig(), func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
	locker := locking.NewRedisLocker(client, cfg.Locking.KeyPrefix, cfg.Locking.TTL, cfg.Locking.AcquireTimeout, logger)
	return locker, func() { _ = client.Close() }, nil
}
