// Package main is the entry point for the report builder server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pitabwire/reportbuilder/internal/capability"
	"github.com/pitabwire/reportbuilder/internal/catalog"
	"github.com/pitabwire/reportbuilder/internal/config"
	"github.com/pitabwire/reportbuilder/internal/layout"
	"github.com/pitabwire/reportbuilder/internal/observability"
	"github.com/pitabwire/reportbuilder/internal/preview"
	"github.com/pitabwire/reportbuilder/internal/report"
	"github.com/pitabwire/reportbuilder/internal/store"
	"github.com/pitabwire/reportbuilder/internal/transport"
	"github.com/pitabwire/reportbuilder/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Step 1: Parse CLI flags.
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Step 2: Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	// Step 3: Initialize telemetry (logger, tracer, metrics).
	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "reportd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Step 4: Load catalogs, validate, build registry.
	defs, err := catalog.NewLoader().LoadAll(cfg.Catalog.Directories)
	if err != nil {
		logger.Error("catalog loading failed", zap.Error(err))
		return 1
	}
	if verrs := catalog.NewValidator().Validate(defs); len(verrs) > 0 {
		for _, ve := range verrs {
			logger.Error("catalog validation error", zap.String("error", ve.Error()))
		}
		logger.Error("catalog validation failed", zap.Int("errors", len(verrs)))
		return 1
	}
	registry := catalog.NewRegistry(defs)
	metrics.SetCatalogSourcesLoaded(registry.Len())

	// Step 5: Layout templates.
	var extraTemplates []layout.Template
	if cfg.Layout.TemplatesFile != "" {
		extraTemplates, err = layout.LoadTemplates(cfg.Layout.TemplatesFile)
		if err != nil {
			logger.Error("layout template loading failed", zap.Error(err))
			return 1
		}
	}
	templates := layout.NewTemplateSet(extraTemplates...)

	// Step 6: Initialize capability resolver.
	capResolver, err := buildCapabilityResolver(cfg.Capability)
	if err != nil {
		logger.Error("capability resolver initialization failed", zap.Error(err))
		return 1
	}

	// Step 7: Initialize report store.
	reportStore, storeCloser, err := buildReportStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("report store initialization failed", zap.Error(err))
		return 1
	}

	// Step 8: Initialize preview cache (optional).
	previewCache, cacheCloser, err := buildPreviewCache(ctx, cfg.Preview.Cache, logger)
	if err != nil {
		logger.Error("preview cache initialization failed", zap.Error(err))
		return 1
	}

	// Step 9: Build the report service.
	svcOpts := []report.ServiceOption{
		report.WithRecorder(metrics),
		report.WithLogger(logger),
		report.WithLayoutTemplates(templates),
		report.WithCanvasDefaults(model.ReportLayout{
			Width:      cfg.Layout.CanvasWidth,
			Height:     cfg.Layout.CanvasHeight,
			GridSize:   cfg.Layout.GridSize,
			SnapToGrid: cfg.Layout.SnapToGrid,
		}),
		report.WithIdleTimeout(cfg.Sessions.IdleTimeout),
		report.WithMaxPreviewRows(cfg.Preview.MaxRows),
	}
	if previewCache != nil {
		svcOpts = append(svcOpts, report.WithPreviewCache(previewCache, cfg.Preview.Cache.TTL))
	}
	svc := report.NewService(reportStore, registry, svcOpts...)

	// Step 10: Build HTTP router.
	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL, transport.WithJWKSLogger(logger))

	readinessChecks := observability.ReadinessChecks{
		CatalogLoaded: func() bool { return registry.Len() > 0 },
		ReportStore:   reportStore,
	}
	if p, ok := previewCache.(observability.Pinger); ok {
		readinessChecks.PreviewCache = p
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Logger:             logger,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: capResolver,
		Service:            svc,
		Catalog:            registry,
		Templates:          templates,
		HealthHandler:      observability.HandleHealth(),
		ReadyHandler:       observability.HandleReady(readinessChecks),
		MetricsHandler:     observability.Handler(),
	})

	// Wrap router with metrics middleware.
	handler := metrics.MetricsMiddleware(observability.TracingMiddleware(router))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Step 11: Start background tasks.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()

	go runSessionSweeper(bgCtx, svc, cfg.Sessions.SweepInterval)
	if cfg.Catalog.HotReload {
		reloader := catalog.NewReloader(registry, cfg.Catalog.Directories, metrics, logger)
		go reloader.Run(bgCtx, cfg.Catalog.ReloadInterval)
	}

	// Step 12: Start HTTP server.
	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("data_sources", registry.Len()),
		zap.Int("templates", len(templates.All())),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	// Graceful shutdown sequence.
	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// Cancel background tasks.
	bgCancel()

	if storeCloser != nil {
		storeCloser()
	}
	if cacheCloser != nil {
		cacheCloser()
	}

	// Flush telemetry.
	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete", zap.Int("open_sessions_discarded", svc.Sessions()))
	return 0
}

// buildCapabilityResolver creates the static policy resolver.
func buildCapabilityResolver(cfg config.CapabilityConfig) (*capability.Resolver, error) {
	evaluator, err := capability.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
	if err != nil {
		return nil, fmt.Errorf("static policy: %w", err)
	}
	return capability.NewResolver(evaluator, cfg.Cache.TTL), nil
}

// buildReportStore creates the report store based on config.
func buildReportStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.ReportStore, func(), error) {
	switch cfg.Driver {
	case "memory", "":
		logger.Info("using in-memory report store")
		return store.NewMemoryReportStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, fmt.Errorf("report store: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("report store: parse DSN: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		}
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("report store: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("report store: ping: %w", err)
		}

		pg := store.NewPgReportStore(pool)
		if cfg.EnsureSchema {
			if err := pg.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("report store: schema: %w", err)
			}
		}
		logger.Info("using postgres report store")
		return pg, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported report store driver: %q", cfg.Driver)
	}
}

// buildPreviewCache creates the preview cache based on config. A nil cache
// disables preview caching.
func buildPreviewCache(ctx context.Context, cfg config.PreviewCacheConfig, logger *zap.Logger) (preview.Cache, func(), error) {
	switch cfg.Driver {
	case "none":
		logger.Info("preview cache disabled")
		return nil, nil, nil
	case "memory", "":
		logger.Info("using in-memory preview cache")
		return preview.NewMemoryCache(), nil, nil
	case "redis":
		addr := os.Getenv(cfg.AddrEnv)
		if addr == "" {
			return nil, nil, fmt.Errorf("preview cache: %s environment variable not set", cfg.AddrEnv)
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.DB})
		cache := preview.NewRedisCache(client)
		if err := cache.Ping(ctx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("preview cache: ping: %w", err)
		}
		logger.Info("using redis preview cache", zap.String("addr", addr))
		return cache, func() { client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported preview cache driver: %q", cfg.Driver)
	}
}

// runSessionSweeper periodically closes idle editing sessions.
func runSessionSweeper(ctx context.Context, svc *report.Service, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			svc.Sweep(now)
		}
	}
}
