package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"mertoncli/internal/config"
	apierrors "mertoncli/internal/errors"
	"mertoncli/internal/files"
	"mertoncli/internal/infrastructure"
	customMiddleware "mertoncli/internal/middleware"
	"mertoncli/internal/operations"
	"mertoncli/internal/services"
	handlers "mertoncli/internal/transport/http"
	ws "mertoncli/internal/websocket"
)

var (
	// Version is overridden at link time with -ldflags "-X mertoncli/internal/app.Version=..."
	Version = config.AppVersion
	// BuildTime is set at link time
	BuildTime = ""
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.CalibrationMetrics
	SystemMetrics *infrastructure.SystemMetrics
	Errors        *apierrors.ErrorHandler
	Calibration   *services.CalibrationService
	Health        *services.HealthService
	JobQueue      *operations.JobQueue
	Streamer      *ws.Streamer
	Files         *files.Discovery
}

// NewApplication loads configuration, initializes the global logger and
// builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New builds the application from cfg. Relative paths resolve against the
// working directory.
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", Version))

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	paths := config.ResolvePaths(wd, cfg.Paths)
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		Errors:        apierrors.NewErrorHandler(logger, isDevelopment(cfg)),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices initializes all application services
func (a *Application) initializeServices() error {
	metrics, err := infrastructure.NewCalibrationMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create calibration metrics: %w", err)
	}
	a.Metrics = metrics

	system, err := infrastructure.NewSystemMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create system metrics: %w", err)
	}
	a.SystemMetrics = system

	a.Calibration = services.NewCalibrationService(
		a.Config.Calibration,
		a.Paths,
		a.OTelProviders.Tracer,
		a.Metrics,
		a.Logger,
	)

	a.JobQueue = operations.NewJobQueue(operations.QueueConfig{
		Workers:      a.Config.Jobs.Workers,
		QueueSize:    a.Config.Jobs.QueueSize,
		MaxBatchSize: a.Config.Jobs.MaxBatchSize,
		Retention:    a.Config.Jobs.Retention,
	}, operations.NewMemoryJobStore(), a.Calibration, a.Metrics, a.Logger)

	a.Files = files.NewDiscovery(a.Paths)

	a.Health = services.NewHealthService(Version, BuildTime, a.Paths, a.SystemMetrics, a.Logger)
	a.Health.AddCheck("jobs", a.JobQueue.Ready)

	a.Streamer = ws.NewStreamer(ws.StreamerConfig{
		Interval:       a.Config.Jobs.StreamInterval,
		PongWait:       config.StreamPongWait,
		PingPeriod:     config.StreamPingPeriod,
		AllowedOrigins: a.allowedOrigins(),
	}, a.Logger)

	return nil
}

// setupRouter configures the HTTP router with all routes.
// Middleware order: RequestID → RealIP → OTel → Logger → Recoverer → headers.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Errors))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.CORS(a.corsConfig()))

	r.NotFound(a.Errors.NotFound)
	r.MethodNotAllowed(a.Errors.MethodNotAllowed)

	metricsHandler := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.SystemMetrics, a.JobQueue)
	r.Get("/metrics", metricsHandler.Prometheus)

	a.setupAPIRoutes(r, metricsHandler)

	a.Router = r
}

// setupAPIRoutes configures API endpoints
func (a *Application) setupAPIRoutes(r chi.Router, metricsHandler *handlers.MetricsHandler) {
	timeout := customMiddleware.Timeout(a.Config.Server.RequestTimeout, a.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Probes stay outside the rate limiter
		r.Group(func(r chi.Router) {
			r.Use(timeout)

			handlers.NewHealthHandler(a.Health, a.Logger).Register(r)
			r.Get("/metrics", metricsHandler.Snapshot)
		})

		r.Group(func(r chi.Router) {
			if a.Config.Server.RateLimit.Enabled {
				r.Use(customMiddleware.NewRateLimiter(
					a.Config.Server.RateLimit.RPS,
					a.Config.Server.RateLimit.Burst,
					a.Logger,
					a.Errors,
				).Handler)
			}
			r.Use(customMiddleware.ContentTypeValidator(a.Errors, "application/json"))
			r.Use(customMiddleware.NewValidationMiddleware(a.Logger, a.Errors, customMiddleware.DefaultMaxBodySize).ValidateRequest)

			r.Group(func(r chi.Router) {
				r.Use(timeout)
				calibrationHandler := handlers.NewCalibrationHandler(a.Calibration, a.Errors, a.Logger)
				r.Mount("/calibrations", calibrationHandler.Routes())

				filesHandler := handlers.NewFilesHandler(a.Files, a.Errors, a.Logger)
				r.Mount("/datasets", filesHandler.DatasetRoutes())
				r.Mount("/reports", filesHandler.ReportRoutes())
			})

			jobsHandler := handlers.NewJobsHandler(a.JobQueue, a.Streamer, a.Errors, a.Logger)
			r.Mount("/jobs", jobsHandler.Routes(timeout))
		})
	})
}

// corsConfig returns CORS configuration based on environment
func (a *Application) corsConfig() customMiddleware.CORSConfig {
	cfg := customMiddleware.CORSConfig{
		AllowedOrigins: a.allowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
			"Location",
			"Retry-After",
		},
		MaxAge: 300,
		Logger: a.Logger,
	}

	a.Logger.Info("CORS configured",
		slog.String("environment", a.Config.Telemetry.Environment),
		slog.Any("allowed_origins", cfg.AllowedOrigins))

	return cfg
}

// allowedOrigins lists the local origins of the server, the dashboard dev
// server in development and any configured origins
func (a *Application) allowedOrigins() []string {
	port := a.Config.Server.Port
	origins := []string{
		fmt.Sprintf("http://localhost:%d", port),
		fmt.Sprintf("http://127.0.0.1:%d", port),
	}
	if isDevelopment(a.Config) {
		origins = append(origins, "http://localhost:3000", "http://127.0.0.1:3000")
	}
	return append(origins, a.Config.Server.AllowedOrigins...)
}

// isDevelopment detects if we're running in development mode
func isDevelopment(cfg *config.Config) bool {
	if env := os.Getenv("GO_ENV"); env == "development" {
		return true
	}
	return cfg.Telemetry.Environment == "development"
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the job queue and the HTTP server. A server failure cancels
// through cancel so Run can shut down.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	a.Logger.InfoContext(ctx, "Application paths",
		slog.String("base_dir", a.Paths.BaseDir),
		slog.String("data_dir", a.Paths.DataDir),
		slog.String("reports_dir", a.Paths.ReportsDir),
		slog.String("logs_dir", a.Paths.LogsDir))

	a.JobQueue.Start(context.WithoutCancel(ctx))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			// Signal shutdown through context instead of os.Exit
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}

	a.Logger.InfoContext(ctx, "Stopping job queue")
	if err := a.JobQueue.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully", slog.String("error", err.Error()))
	}

	if err := a.SystemMetrics.Stop(); err != nil {
		a.Logger.ErrorContext(ctx, "Error stopping system metrics", slog.String("error", err.Error()))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// Run runs the application until interrupted or the server fails
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	// The run context may already be cancelled; shutdown gets its own deadline
	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout+5*time.Second)
	defer stopCancel()
	return a.Stop(stopCtx)
}
