package response

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"
)

const (
	internalErrorMessage = "Internal Server Error"
	timestampLayout      = "2006-01-02T15:04:05.000Z07:00"
)

// ErrorNormalizer is the echo.HTTPErrorHandler of the server. Every error
// that leaves a handler or middleware ends up here and is written as one
// ErrorEnvelope.
type ErrorNormalizer struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewErrorNormalizer(logger zerolog.Logger) *ErrorNormalizer {
	return &ErrorNormalizer{
		logger: logger.With().Str("component", "ErrorNormalizer").Logger(),
		now:    time.Now,
	}
}

// Handle implements echo.HTTPErrorHandler.
func (n *ErrorNormalizer) Handle(err error, c echo.Context) {
	status, message, structured := Classify(err)
	n.report(c, err, status, structured)

	if c.Response().Committed {
		return
	}

	body := ErrorEnvelope{
		Success: false,
		Data: ErrorDetails{
			StatusCode: status,
			Message:    message,
			Path:       pathFromContext(c),
			Timestamp:  n.now().UTC().Format(timestampLayout),
		},
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		n.logger.Error().Err(werr).Str("path", body.Data.Path).Msg("failed to write error response")
	}
}

// Classify maps err to the status and client message of its envelope.
// Only *echo.HTTPError is structured; anything else becomes a 500 whose
// message never includes the original error text.
func Classify(err error) (status int, message string, structured bool) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, httpErrorMessage(he), true
	}
	return http.StatusInternalServerError, internalErrorMessage, false
}

func httpErrorMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	default:
		return http.StatusText(he.Code)
	}
}

func (n *ErrorNormalizer) report(c echo.Context, err error, status int, structured bool) {
	req := c.Request()
	ev := n.logger.Debug()
	if !structured || status >= http.StatusInternalServerError {
		ev = n.logger.Error()
		newrelic.FromContext(req.Context()).NoticeError(err)
	}

	ev = ev.Err(err).
		Str("method", req.Method).
		Str("path", pathFromContext(c)).
		Int("status", status).
		Str("error_type", fmt.Sprintf("%T", err))
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		ev = ev.Str("request_id", id)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) && he.Internal != nil {
		ev = ev.AnErr("internal", he.Internal)
	}
	ev.Msg("request failed")
}
