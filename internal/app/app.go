package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"diveops/internal/config"
	apierrors "diveops/internal/errors"
	"diveops/internal/infrastructure"
	"diveops/internal/middleware"
	"diveops/internal/operations"
	"diveops/internal/services"
	"diveops/internal/store"
	handlers "diveops/internal/transport/http"
	ws "diveops/internal/websocket"
	"diveops/pkg/contracts"
)

// Application wires the record store, wizard engine, websocket hub and HTTP
// server together
type Application struct {
	Config *config.Config
	Logger *slog.Logger
	Router *chi.Mux
	Server *http.Server

	Store   store.Store
	Hub     *ws.Hub
	Wizard  *services.WizardService
	Health  *services.HealthService
	OTel    *infrastructure.OTelProviders
	errors  *apierrors.ErrorHandler
	tracer  *operations.Tracer
	addr    net.Addr
	stopped sync.Once
}

// NewApplication builds every component from cfg. The store is opened, so
// a mysql backend must be reachable.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	logger.InfoContext(ctx, "application_starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("store_driver", cfg.Store.Driver))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	a := &Application{
		Config: cfg,
		Logger: logger,
		OTel:   otelProviders,
		errors: apierrors.NewErrorHandler(logger, cfg.Telemetry.Environment == "development"),
	}

	if err := a.initializeServices(ctx); err != nil {
		_ = otelProviders.Shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	a.setupRouter()
	a.createServer()
	return a, nil
}

func (a *Application) initializeServices(ctx context.Context) error {
	tracer, err := operations.NewTracer(a.OTel)
	if err != nil {
		return err
	}
	a.tracer = tracer

	st, err := store.Open(ctx, a.Config.Store, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	a.Store = st

	a.Hub = ws.NewHub(a.Logger, a.OTel.Meter)
	a.Hub.Start()

	wizard, err := services.NewWizardService(services.WizardDeps{
		Records:   st,
		Readiness: st,
		Hub:       a.Hub,
		Tracer:    tracer,
		Logger:    a.Logger,
	}, a.Config.Wizard)
	if err != nil {
		a.Hub.Stop()
		_ = st.Close()
		return fmt.Errorf("failed to initialize wizard service: %w", err)
	}
	a.Wizard = wizard

	a.Health = services.NewHealthService(services.HealthDeps{
		Store:     st,
		Hub:       a.Hub,
		Sessions:  wizard,
		Version:   contracts.Version,
		BuildTime: contracts.BuildTime,
		Logger:    a.Logger,
	})
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// these two do not wrap the ResponseWriter, so the websocket upgrade
	// can still hijack the connection
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	upgrader := ws.NewUpgrader(a.Config.WebSocket)
	r.With(middleware.WebSocketTrace(a.Logger)).
		Get("/ws", ws.ServeWS(a.Hub, upgrader, a.Config.WebSocket, a.Logger))

	if a.OTel.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTel.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		// RequestID → RealIP → OTel → Logger → Recoverer → Timeout
		otelMiddleware, err := middleware.NewOTelMiddleware(a.OTel)
		if err != nil {
			a.Logger.Error("otel_middleware_unavailable", slog.String("error", err.Error()))
		} else {
			r.Use(otelMiddleware.Handler)
		}
		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(middleware.Recoverer(a.errors))
		r.Use(middleware.SecurityHeaders)
		if a.Config.Security.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}
		r.Use(middleware.Timeout(a.Config.Server.RequestTimeout))

		a.setupAPIRoutes(r)
	})

	r.NotFound(a.errors.NotFound)
	r.MethodNotAllowed(a.errors.MethodNotAllowed)

	a.Router = r
}

func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.BodyLimit(middleware.DefaultMaxBodySize, a.errors))

		health := handlers.NewHealthHandler(a.Health, a.Logger)
		r.Get("/health", health.HealthCheck)
		r.Get("/health/live", health.LivenessCheck)
		r.Get("/version", health.Version)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ContentTypeJSON(a.errors))

			r.Mount("/wizard/sessions", handlers.NewWizardHandler(a.Wizard, a.errors, a.Logger).Routes())
			r.Mount("/records", handlers.NewRecordsHandler(a.Wizard, a.errors, a.Logger).Routes())
			r.Post("/logs", handlers.NewClientLogHandler(a.errors, a.Logger).Handle)
		})
	})
}

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

// Addr returns the address the server listens on once Start succeeded
func (a *Application) Addr() net.Addr {
	return a.addr
}

// Start binds the listener and serves in the background. The returned
// channel yields the serve error, if any, and is closed when serving ends.
func (a *Application) Start(ctx context.Context) (<-chan error, error) {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", a.Server.Addr, err)
	}
	a.addr = ln.Addr()

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "server_error", slog.String("error", err.Error()))
			errCh <- err
		}
	}()

	a.Logger.InfoContext(ctx, "application_started",
		slog.String("address", a.addr.String()),
		slog.String("store_driver", a.Config.Store.Driver),
		slog.Int("max_sessions", a.Config.Wizard.MaxSessions))
	return errCh, nil
}

// Stop shuts the server down and releases every component. It is safe to
// call more than once.
func (a *Application) Stop(ctx context.Context) error {
	var shutdownErr error
	a.stopped.Do(func() {
		a.Logger.InfoContext(ctx, "application_stopping")

		shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		// sessions announce their closure before the hub goes away
		a.Wizard.CloseAll(shutdownCtx)
		a.Hub.Stop()

		if err := a.Store.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "store_close_failed", slog.String("error", err.Error()))
		}
		if err := a.OTel.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "otel_shutdown_failed", slog.String("error", err.Error()))
		}

		a.Logger.InfoContext(ctx, "application_stopped")
	})
	return shutdownErr
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// server fails, then shuts down gracefully
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh, err := a.Start(ctx)
	if err != nil {
		_ = a.Stop(context.Background())
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown_signal_received")
	case serveErr = <-errCh:
	}

	if err := a.Stop(context.Background()); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
