package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// SuccessEnvelope is the body of every successful response.
// It intentionally carries no success flag.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorEnvelope is the body of every failed response.
type ErrorEnvelope struct {
	Success bool         `json:"success"`
	Data    ErrorDetails `json:"data"`
}

type ErrorDetails struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Path       string `json:"path"`
	Timestamp  string `json:"timestamp"`
}

// Handler is an application handler that returns its result instead of
// writing it. Wrap turns it into an echo.HandlerFunc.
type Handler func(c echo.Context) (any, error)

// Wrap runs h and writes its result as {"data": result}. Errors are
// returned untouched so the echo error handler produces the error
// envelope. A handler that already wrote its own response is left alone.
func Wrap(h Handler) echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := h(c)
		if err != nil {
			return err
		}
		if c.Response().Committed {
			return nil
		}
		return c.JSON(successStatus(c.Request().Method), SuccessEnvelope{Data: data})
	}
}

// successStatus is 201 for POST and 200 for everything else.
func successStatus(method string) int {
	if method == http.MethodPost {
		return http.StatusCreated
	}
	return http.StatusOK
}

// pathFromContext returns the request path and query from Echo context.
func pathFromContext(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.RequestURI()
}
