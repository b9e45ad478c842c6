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

	"github.com/bissquit/status-garden/internal/access"
	accesspostgres "github.com/bissquit/status-garden/internal/access/postgres"
	"github.com/bissquit/status-garden/internal/audit"
	"github.com/bissquit/status-garden/internal/catalog"
	catalogpostgres "github.com/bissquit/status-garden/internal/catalog/postgres"
	"github.com/bissquit/status-garden/internal/config"
	"github.com/bissquit/status-garden/internal/identity"
	"github.com/bissquit/status-garden/internal/incidents"
	incidentspostgres "github.com/bissquit/status-garden/internal/incidents/postgres"
	"github.com/bissquit/status-garden/internal/maintenance"
	maintenancepostgres "github.com/bissquit/status-garden/internal/maintenance/postgres"
	"github.com/bissquit/status-garden/internal/notify"
	"github.com/bissquit/status-garden/internal/pkg/ctxlog"
	"github.com/bissquit/status-garden/internal/pkg/httputil"
	"github.com/bissquit/status-garden/internal/pkg/keyedmutex"
	"github.com/bissquit/status-garden/internal/pkg/metrics"
	"github.com/bissquit/status-garden/internal/pkg/postgres"
	"github.com/bissquit/status-garden/internal/status"
	statuspostgres "github.com/bissquit/status-garden/internal/status/postgres"
	"github.com/bissquit/status-garden/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	notifyWorker  *notify.Worker
	auditRecorder *audit.Recorder
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

	if err := postgres.Migrate(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router := app.setupRouter(metricsCtx)

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
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	// Start main server
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

	a.metricsCancel()

	// Stop background workers first so queued events drain
	if a.notifyWorker != nil {
		a.notifyWorker.Stop()
	}
	if a.auditRecorder != nil {
		a.auditRecorder.Stop()
	}

	// Shutdown both servers in parallel
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
	// Collect immediately on start
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

// NotifyWorker returns the notification worker instance. Used in tests
// to access worker state.
func (a *App) NotifyWorker() *notify.Worker {
	return a.notifyWorker
}

func (a *App) setupRouter(ctx context.Context) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(a.config.Server.RequestTimeout))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>StatusGarden API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	// Notifications: events queue on the notifier and a worker delivers
	// them to the webhook after the mutations commit.
	notifier := notify.NewNotifier(a.config.Notify.QueueSize)

	var sender notify.EventSender
	if a.config.Notify.Enabled {
		sender = notify.NewSender(notify.SenderConfig{
			WebhookURL: a.config.Notify.WebhookURL,
			Username:   a.config.Notify.Username,
			Timeout:    a.config.Notify.Timeout,
			RateLimit:  a.config.Notify.RateLimit,
		})
	} else {
		slog.Info("notifications disabled, events will be discarded")
		sender = discardSender{}
	}

	a.notifyWorker = notify.NewWorker(notifier, sender)
	a.notifyWorker.Start(ctx)

	a.auditRecorder = audit.NewRecorder(audit.Config{
		SinkURL:   a.config.Audit.SinkURL,
		Timeout:   a.config.Audit.Timeout,
		QueueSize: a.config.Audit.QueueSize,
	})
	a.auditRecorder.Start(ctx)

	gate := access.NewGate(access.NewResolver(accesspostgres.NewRepository(a.db)))
	recalc := status.NewRecalculator(statuspostgres.NewRepository())
	locks := keyedmutex.New()

	catalogRepo := catalogpostgres.NewRepository(a.db)
	catalogService := catalog.NewService(catalogRepo, gate, notifier, a.auditRecorder)
	catalogHandler := catalog.NewHandler(catalogService)

	incidentsRepo := incidentspostgres.NewRepository(a.db)
	incidentsService := incidents.NewService(incidentsRepo, catalogRepo, gate, recalc, locks, notifier, a.auditRecorder)
	incidentsHandler := incidents.NewHandler(incidentsService)

	maintenanceRepo := maintenancepostgres.NewRepository(a.db)
	maintenanceService := maintenance.NewService(maintenanceRepo, catalogRepo, gate, recalc, locks, notifier, a.auditRecorder)
	maintenanceHandler := maintenance.NewHandler(maintenanceService)

	verifier := identity.NewVerifier(a.config.Auth.JWTSecret)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(verifier))

		catalogHandler.RegisterRoutes(r)
		incidentsHandler.RegisterRoutes(r)
		maintenanceHandler.RegisterRoutes(r)

		// The service subtree is shared by all three modules.
		r.Route("/services/{serviceID}", func(r chi.Router) {
			catalogHandler.RegisterServiceRoutes(r)
			incidentsHandler.RegisterServiceRoutes(r)
			maintenanceHandler.RegisterServiceRoutes(r)
		})
	})

	return r
}

// discardSender swallows events when notifications are disabled so the
// notifier queue keeps draining.
type discardSender struct{}

func (discardSender) Send(context.Context, string, string) error { return nil }

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
