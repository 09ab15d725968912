package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/scaffold/internal/config"
	"github.com/akave-ai/scaffold/internal/router"
)

// IndexResponse is the payload of GET /.
type IndexResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// IndexHandler serves the informational root endpoint and the health probe.
// It does not depend on Echo beyond echo.Context.
type IndexHandler struct {
	Messages config.MessagesConfig
	Started  time.Time
}

func NewIndexHandler(messages config.MessagesConfig) *IndexHandler {
	return &IndexHandler{Messages: messages, Started: time.Now()}
}

// GetIndex returns the welcome message (GET /).
func (h *IndexHandler) GetIndex(c echo.Context) (any, error) {
	return IndexResponse{Success: true, Message: h.Messages.IndexWelcome}, nil
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// GetHealth reports liveness for probes (GET /health).
func (h *IndexHandler) GetHealth(c echo.Context) (any, error) {
	return HealthResponse{Status: "ok", Uptime: time.Since(h.Started).Seconds()}, nil
}

func (h *IndexHandler) Name() string { return "index" }

func (h *IndexHandler) Routes() []router.Route {
	return []router.Route{
		{
			Method:        http.MethodGet,
			Path:          "/",
			ExcludePrefix: true,
			Handler:       h.GetIndex,
			Summary:       "Get Index",
			Description:   "Retrieves the index information.",
			Tags:          []string{"Index"},
		},
		{
			Method:        http.MethodGet,
			Path:          "/health",
			ExcludePrefix: true,
			Handler:       h.GetHealth,
			Summary:       "Health check",
			Tags:          []string{"Index"},
		},
	}
}
