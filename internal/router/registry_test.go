package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akave-ai/scaffold/internal/response"
	"github.com/akave-ai/scaffold/internal/validation"
)

type fakeModule struct {
	name   string
	routes []Route
}

func (m fakeModule) Name() string    { return m.name }
func (m fakeModule) Routes() []Route { return m.routes }

func ok(v any) response.Handler {
	return func(echo.Context) (any, error) { return v, nil }
}

func TestFullPath(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		route  Route
		want   string
	}{
		{"root excluded", "api", Route{Path: "/", ExcludePrefix: true}, "/"},
		{"root prefixed", "api", Route{Path: "/"}, "/api"},
		{"prefixed", "api", Route{Path: "/cards"}, "/api/cards"},
		{"versioned", "api", Route{Path: "/cards/:id", Version: "1"}, "/api/v1/cards/:id"},
		{"version with v", "/api/", Route{Path: "cards", Version: "v2"}, "/api/v2/cards"},
		{"no prefix", "", Route{Path: "/health"}, "/health"},
		{"excluded versioned", "api", Route{Path: "/x", Version: "1", ExcludePrefix: true}, "/v1/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FullPath(tt.prefix, tt.route))
		})
	}
}

func TestRegistry_RegisterDuplicateModule(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeModule{name: "cards"}))
	require.NoError(t, r.Register(fakeModule{name: "alpha"}))
	assert.Error(t, r.Register(fakeModule{name: "cards"}))
	assert.Equal(t, []string{"alpha", "cards"}, r.ListRegistered())
}

func TestRegistry_RoutesRejectsConflicts(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeModule{name: "a", routes: []Route{{Method: "get", Path: "/x", Handler: ok(1)}}}))
	require.NoError(t, r.Register(fakeModule{name: "b", routes: []Route{{Path: "x", Handler: ok(2)}}}))

	_, err := r.Routes("api")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /api/x already registered by a")
}

func TestRegistry_RoutesRequireHandler(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeModule{name: "a", routes: []Route{{Path: "/x"}}}))
	_, err := r.Routes("api")
	assert.Error(t, err)
}

func TestRegistry_Mount(t *testing.T) {
	person := validation.Shape("Person",
		validation.Field{Name: "name", Type: validation.KindString, Required: true},
	)

	r := NewRegistry()
	require.NoError(t, r.Register(fakeModule{name: "index", routes: []Route{
		{Method: http.MethodGet, Path: "/", ExcludePrefix: true, Handler: ok("root")},
	}}))
	require.NoError(t, r.Register(fakeModule{name: "people", routes: []Route{
		{Method: http.MethodGet, Path: "/people", Version: "1", Handler: ok([]string{"ann"})},
		{Method: http.MethodPost, Path: "/people", Version: "1", Body: person, Handler: func(c echo.Context) (any, error) {
			return validation.Payload(c), nil
		}},
	}}))

	e := echo.New()
	routes, err := r.Mount(e, validation.NewGate(zerolog.Nop()), "api")
	require.NoError(t, err)
	require.Len(t, routes, 3)
	assert.Equal(t, "index", routes[0].Module)
	assert.Equal(t, "/api/v1/people", routes[1].FullPath)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		want   string
	}{
		{"index", http.MethodGet, "/", "", http.StatusOK, `{"data":"root"}`},
		{"versioned list", http.MethodGet, "/api/v1/people", "", http.StatusOK, `{"data":["ann"]}`},
		{"valid post", http.MethodPost, "/api/v1/people", `{"name":"Ann"}`, http.StatusCreated, `{"data":{"name":"Ann"}}`},
		{"unversioned is not mounted", http.MethodGet, "/api/people", "", http.StatusNotFound, ""},
		{"head on get route", http.MethodHead, "/api/v1/people", "", http.StatusOK, ""},
		{"head on excluded root", http.MethodHead, "/", "", http.StatusOK, ""},
		{"head on unknown path", http.MethodHead, "/api/v1/cards", "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.want != "" {
				assert.JSONEq(t, tt.want, rec.Body.String())
			}
		})
	}

	t.Run("invalid post", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/people", strings.NewReader(`{"name":1}`))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Payload validation failed", body["message"])
	})
}

func TestRegistry_MountKeepsDeclaredHead(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeModule{name: "files", routes: []Route{
		{Method: http.MethodGet, Path: "/files", Handler: ok("body")},
		{Method: http.MethodHead, Path: "/files", Handler: func(c echo.Context) (any, error) {
			c.Response().Header().Set("X-Files", "3")
			return nil, c.NoContent(http.StatusNoContent)
		}},
	}}))

	e := echo.New()
	routes, err := r.Mount(e, validation.NewGate(zerolog.Nop()), "")
	require.NoError(t, err)
	require.Len(t, routes, 2)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/files", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("X-Files"))
}
