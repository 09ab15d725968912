package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/akave-ai/scaffold/internal/accesslog"
	"github.com/akave-ai/scaffold/internal/config"
	"github.com/akave-ai/scaffold/internal/handler"
	"github.com/akave-ai/scaffold/internal/httpclient"
	"github.com/akave-ai/scaffold/internal/observability"
	"github.com/akave-ai/scaffold/internal/openapi"
	"github.com/akave-ai/scaffold/internal/response"
	"github.com/akave-ai/scaffold/internal/router"
	"github.com/akave-ai/scaffold/internal/validation"
)

// Server holds the Echo app and dependencies.
type Server struct {
	Echo       *echo.Echo
	Config     *config.Config
	Logger     zerolog.Logger
	HTTPClient *httpclient.Client
	Routes     []router.MountedRoute
	Docs       *openapi3.T

	requestLogger *accesslog.RequestLogger
	metrics       *observability.Metrics
	newRelic      *newrelic.Application
}

// Deps are the shared services a module may depend on.
type Deps struct {
	Config     *config.Config
	Logger     zerolog.Logger
	HTTPClient *httpclient.Client
}

// ModuleFunc builds a module from the shared services.
type ModuleFunc func(Deps) router.Module

func newDeps(cfg *config.Config, logger zerolog.Logger) Deps {
	return Deps{
		Config:     cfg,
		Logger:     logger,
		HTTPClient: httpclient.New(cfg.Server.UpstreamTimeoutDuration(), logger),
	}
}

// Modules returns the application modules mounted by New, followed by
// extra.
func Modules(deps Deps, extra ...ModuleFunc) []router.Module {
	mods := []router.Module{handler.NewIndexHandler(deps.Config.Messages)}
	for _, build := range extra {
		mods = append(mods, build(deps))
	}
	return mods
}

// Document builds and validates the OpenAPI document for the default
// modules without starting anything.
func Document(cfg *config.Config, extra ...ModuleFunc) (*openapi3.T, error) {
	reg := router.NewRegistry()
	for _, m := range Modules(newDeps(cfg, zerolog.Nop()), extra...) {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	routes, err := reg.Routes(cfg.Server.GlobalPrefix)
	if err != nil {
		return nil, err
	}
	doc := openapi.Build(cfg.Docs, routes)
	if err := openapi.Validate(context.Background(), doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// New builds the Echo server, installs the request pipeline and registers
// the routes of every module.
func New(cfg *config.Config, logger zerolog.Logger, extra ...ModuleFunc) (*Server, error) {
	obs := cfg.Observability
	if obs == nil {
		obs = config.DefaultObservabilityConfig()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetOutput(io.Discard)
	e.IPExtractor = echo.ExtractIPDirect()
	e.HTTPErrorHandler = response.NewErrorNormalizer(logger).Handle
	e.Validator = validation.NewStructValidator()
	e.Server.ReadTimeout = cfg.Server.ReadTimeoutDuration()
	e.Server.WriteTimeout = cfg.Server.WriteTimeoutDuration()
	e.Server.IdleTimeout = cfg.Server.IdleTimeoutDuration()

	nrApp, err := observability.NewRelicApp(obs, logger)
	if err != nil {
		// APM is optional; the server runs without it.
		logger.Error().Err(err).Msg("new relic unavailable")
		nrApp = nil
	}

	var metrics *observability.Metrics
	if obs.Metrics.Enabled {
		metrics = observability.NewMetrics(metricsNamespace(obs.ServiceName))
	}

	sink := accesslog.NewFileSink(cfg.Paths.LogsPath, logger)
	requestLogger := accesslog.NewRequestLogger(sink, logger)

	// RequestLogger resolves errors with the error handler, so everything
	// that can fail or panic is registered after it.
	e.Use(requestID())
	e.Use(observability.TransactionMiddleware(nrApp))
	e.Use(requestLogger.Middleware())
	if metrics != nil {
		e.Use(metrics.Middleware())
	}
	e.Use(recoverer(logger))
	e.Use(securityHeaders())
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		e.Use(cors(cfg.Server.CORSAllowedOrigins))
	}
	if cfg.Server.RateLimit > 0 {
		e.Use(rateLimiter(cfg.Server, metrics))
	}

	deps := newDeps(cfg, logger)
	reg := router.NewRegistry()
	for _, m := range Modules(deps, extra...) {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	routes, err := reg.Mount(e, validation.NewGate(logger), cfg.Server.GlobalPrefix)
	if err != nil {
		return nil, fmt.Errorf("mount routes: %w", err)
	}

	if metrics != nil {
		e.GET(obs.Metrics.Path, metrics.Handler())
	}

	var doc *openapi3.T
	if cfg.Docs.Enabled {
		doc = openapi.Build(cfg.Docs, routes)
		if err := openapi.Validate(context.Background(), doc); err != nil {
			return nil, err
		}
		if err := openapi.Register(e, doc, cfg.Docs.Path); err != nil {
			return nil, fmt.Errorf("register docs: %w", err)
		}
	}

	logger.Info().
		Strs("modules", reg.ListRegistered()).
		Int("routes", len(routes)).
		Str("global_prefix", cfg.Server.GlobalPrefix).
		Msg("routes mounted")

	return &Server{
		Echo:          e,
		Config:        cfg,
		Logger:        logger,
		HTTPClient:    deps.HTTPClient,
		Routes:        routes,
		Docs:          doc,
		requestLogger: requestLogger,
		metrics:       metrics,
		newRelic:      nrApp,
	}, nil
}

func metricsNamespace(service string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(service)
}

// Start listens on the configured port and blocks until the server stops.
// After Shutdown it returns http.ErrServerClosed.
func (s *Server) Start() error {
	addr := ":" + s.Config.Server.Port
	s.Logger.Info().Str("addr", addr).Msg("starting server")
	return s.Echo.Start(addr)
}

// Shutdown stops accepting requests, waits for in-flight ones, drains the
// pending access log writes and flushes the APM agent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info().Msg("shutting down server")
	err := s.Echo.Shutdown(ctx)
	s.requestLogger.Wait()
	observability.ShutdownNewRelic(s.newRelic, s.Config.Server.ShutdownTimeoutDuration())
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Run starts the server and shuts it down gracefully when ctx is cancelled
// or the process receives SIGINT or SIGTERM.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.Config.Server.ShutdownTimeoutDuration())
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.Logger.Info().Msg("server stopped gracefully")
	return nil
}
