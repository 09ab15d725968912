// Package observability wires the metrics and APM backends into echo.
package observability

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/akave-ai/scaffold/internal/config"
)

// NewRelicApp starts the agent when a license key is configured. It
// returns nil, nil otherwise; a nil app is safe to pass to
// TransactionMiddleware and Shutdown.
func NewRelicApp(cfg *config.ObservabilityConfig, logger zerolog.Logger) (*newrelic.Application, error) {
	if cfg == nil || !cfg.NewRelicEnabled() {
		logger.Debug().Msg("new relic disabled: no license key")
		return nil, nil
	}
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.ServiceName),
		newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(cfg.NewRelic.AppLogForwardingEnabled),
		newrelic.ConfigDistributedTracerEnabled(true),
		func(c *newrelic.Config) {
			c.Labels = map[string]string{"environment": cfg.Environment}
		},
	)
	if err != nil {
		return nil, fmt.Errorf("start new relic: %w", err)
	}
	logger.Info().Str("app", cfg.ServiceName).Msg("new relic enabled")
	return app, nil
}

// TransactionMiddleware starts one transaction per request and stores it in
// the request context, where the error handler finds it. With a nil app it
// passes requests through.
func TransactionMiddleware(app *newrelic.Application) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if app == nil {
			return next
		}
		return func(c echo.Context) error {
			req := c.Request()
			name := c.Path()
			if name == "" {
				name = req.URL.Path
			}
			txn := app.StartTransaction(req.Method + " " + name)
			defer txn.End()

			txn.SetWebRequestHTTP(req)
			c.Response().Writer = txn.SetWebResponse(c.Response().Writer)
			c.SetRequest(req.WithContext(newrelic.NewContext(req.Context(), txn)))
			if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
				txn.AddAttribute("request_id", id)
			}
			return next(c)
		}
	}
}

// ShutdownNewRelic flushes pending data. A nil app is a no-op.
func ShutdownNewRelic(app *newrelic.Application, timeout time.Duration) {
	if app != nil {
		app.Shutdown(timeout)
	}
}
