package accesslog

import (
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger observes every request and, once its response has been
// written, emits one Entry to the console logger and to the Sink.
type RequestLogger struct {
	sink   Sink
	logger zerolog.Logger
	wg     sync.WaitGroup
}

func NewRequestLogger(sink Sink, logger zerolog.Logger) *RequestLogger {
	return &RequestLogger{
		sink:   sink,
		logger: logger.With().Str("component", "RequestLogger").Logger(),
	}
}

// Middleware must be registered before the stages it measures. Errors
// returned by later stages are handed to the echo error handler here, so
// the logged status is the one the client received, and are not returned
// further up the chain.
func (l *RequestLogger) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			entry := Entry{
				Method:    req.Method,
				Path:      req.URL.RequestURI(),
				UserAgent: req.UserAgent(),
				IP:        c.RealIP(),
			}

			if err := next(c); err != nil {
				c.Error(err)
			}

			entry.Status = c.Response().Status
			entry.Duration = time.Since(start)
			l.emit(entry, c.Response().Header().Get(echo.HeaderXRequestID))
			return nil
		}
	}
}

func (l *RequestLogger) emit(e Entry, requestID string) {
	line := e.String()

	ev := l.logger.Info()
	if requestID != "" {
		ev = ev.Str("request_id", requestID)
	}
	ev.Msg(line)

	if l.sink == nil {
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.sink.Append(line); err != nil {
			l.logger.Error().Err(err).Msg("error logging request")
		}
	}()
}

// Wait blocks until every pending sink write has finished.
func (l *RequestLogger) Wait() {
	l.wg.Wait()
}
