// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/deploy-sentry/internal/agent"
	"github.com/bissquit/deploy-sentry/internal/approval"
	approvalpostgres "github.com/bissquit/deploy-sentry/internal/approval/postgres"
	"github.com/bissquit/deploy-sentry/internal/config"
	"github.com/bissquit/deploy-sentry/internal/diagnosis"
	"github.com/bissquit/deploy-sentry/internal/ingest"
	ingestpostgres "github.com/bissquit/deploy-sentry/internal/ingest/postgres"
	"github.com/bissquit/deploy-sentry/internal/lifecycle"
	lifecyclepostgres "github.com/bissquit/deploy-sentry/internal/lifecycle/postgres"
	"github.com/bissquit/deploy-sentry/internal/notify"
	"github.com/bissquit/deploy-sentry/internal/pkg/ctxlog"
	"github.com/bissquit/deploy-sentry/internal/pkg/httputil"
	"github.com/bissquit/deploy-sentry/internal/pkg/metrics"
	"github.com/bissquit/deploy-sentry/internal/pkg/postgres"
	"github.com/bissquit/deploy-sentry/internal/vercel"
	"github.com/bissquit/deploy-sentry/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	background    context.CancelFunc
	scheduler     *agent.Scheduler
	schedulerDone chan struct{}
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	backgroundCtx = ctxlog.WithLogger(backgroundCtx, logger)

	app := &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		background: backgroundCancel,
	}

	go app.collectDBMetrics(backgroundCtx)

	router, agentService, err := app.setupRouter()
	if err != nil {
		db.Close()
		backgroundCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	if cfg.Agent.PollInterval > 0 {
		app.scheduler = agent.NewScheduler(agentService, cfg.Agent.PollInterval)
		app.schedulerDone = make(chan struct{})
		go func() {
			defer close(app.schedulerDone)
			app.scheduler.Start(backgroundCtx)
		}()
	} else {
		logger.Info("agent scheduler disabled, runs only via POST /api/v1/poll")
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.background()
	if a.schedulerDone != nil {
		select {
		case <-a.schedulerDone:
		case <-ctx.Done():
		}
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

func (a *App) setupRouter() (*chi.Mux, *agent.Service, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	providerClient := vercel.NewHTTPClient(a.config.Vercel)

	analyzer, err := diagnosis.NewAnalyzer(a.config.Diagnosis)
	if err != nil {
		return nil, nil, fmt.Errorf("create analyzer: %w", err)
	}

	sender, err := notify.NewSender(a.config.Notifications)
	if err != nil {
		return nil, nil, fmt.Errorf("create email sender: %w", err)
	}
	if !a.config.Notifications.Enabled {
		a.logger.Warn("email sender is disabled: incident notifications will only be logged")
	}

	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, nil, fmt.Errorf("create renderer: %w", err)
	}

	ingestService := ingest.NewService(ingestpostgres.NewRepository(a.db))
	approvalService := approval.NewService(approvalpostgres.NewRepository(a.db), approval.DefaultTokenTTL)
	lifecycleService := lifecycle.NewService(
		lifecyclepostgres.NewRepository(a.db),
		approvalService,
		analyzer,
		renderer,
		sender,
		providerClient,
		a.config.Notifications.BaseURL,
	)
	agentService := agent.NewService(providerClient, ingestService, lifecycleService)

	lifecycleHandler := lifecycle.NewHandler(lifecycleService)
	agentHandler := agent.NewHandler(agentService)

	pollRate := rate.Limit(float64(a.config.Agent.ManualPollsPerMinute) / 60.0)

	r.Route("/api/v1", func(r chi.Router) {
		lifecycleHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.RateLimitMiddleware(pollRate, a.config.Agent.ManualPollsPerMinute))
			agentHandler.RegisterRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(httputil.OperatorAuthMiddleware(a.config.Operator.Token))
			lifecycleHandler.RegisterOperatorRoutes(r)
		})
	})

	return r, agentService, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
