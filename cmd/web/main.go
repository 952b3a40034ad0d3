package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"pandemic-dashboard/internal/backend"
	"pandemic-dashboard/internal/components"
	"pandemic-dashboard/internal/config"
	"pandemic-dashboard/internal/errors"
	"pandemic-dashboard/internal/middleware"
	"pandemic-dashboard/internal/observability"
	"pandemic-dashboard/internal/server"
	"pandemic-dashboard/internal/services"
)

const (
	renderTimeout      = 10 * time.Second
	initialLoadTimeout = 30 * time.Second
	componentTimeout   = 5 * time.Second
)

// dashboardHandler serves the assembled layout once every fragment has been
// injected.
func dashboardHandler(loader *components.Loader, title string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		layout, err := loader.Wait(ctx)
		if err != nil {
			errors.WriteError(w, r, logger, errors.ServiceUnavailable("Dashboard components are not ready"))
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if err := components.Page(title, layout).Render(ctx, w); err != nil {
			logger.Error("render dashboard", "error", err)
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func componentsFS(dir string) fs.FS {
	if dir == "" {
		return components.EmbeddedFS()
	}
	return os.DirFS(dir)
}

type app struct {
	handler   http.Handler
	dashboard *services.Dashboard
	loader    *components.Loader
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	backendMetrics, err := backend.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("register backend metrics: %w", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	client := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger, backend.WithMetrics(backendMetrics))
	snapshots := services.NewSnapshotCache(cfg.Dashboard.CacheDir)
	dashboard := services.NewDashboard(client, cfg.Dashboard.PageSize,
		services.WithSnapshots(snapshots),
		services.WithLogger(logger),
		services.WithReloadTimeout(cfg.Backend.Timeout),
	)

	loadCtx, cancel := context.WithTimeout(ctx, initialLoadTimeout)
	defer cancel()

	start := time.Now()
	if err := dashboard.LoadInitial(loadCtx); err != nil {
		// the page still renders; the reload button retries
		logger.Error("initial data load failed", "error", err, "backend_url", client.BaseURL())
	} else {
		logger.Info("data loaded", "duration", time.Since(start), "stats", dashboard.Stats())
	}

	loader := components.NewLoader(componentsFS(cfg.Dashboard.ComponentsDir), logger)
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), componentTimeout)
		defer cancel()
		if err := loader.Load(ctx); err != nil {
			logger.Error("failed to load components", "error", err)
		}
	}()

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(loader, cfg.Dashboard.Title, logger),
	}
	srv := server.NewServer(dashboard, client, reg, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.OTel(cfg.Tracing.ServiceName),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
		httpMetrics.Handler(),
	)

	return &app{
		handler:   middlewareChain(srv),
		dashboard: dashboard,
		loader:    loader,
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	shutdownTracing, err := observability.InitTracing(context.Background(), cfg.Tracing, logger)
	if err != nil {
		logger.Error("failed to initialise tracing", "error", err)
		os.Exit(1)
	}

	a, err := newApp(context.Background(), cfg, logger, reg)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook("snapshot", func(ctx context.Context) error {
		return a.dashboard.FlushSnapshot()
	})
	// last, so spans from the final requests are exported
	gracefulServer.RegisterShutdownHook("tracing", shutdownTracing)

	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
