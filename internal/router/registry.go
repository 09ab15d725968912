// Package router holds the application modules and mounts their routes on
// echo with the validation pipe and the response envelope.
package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/akave-ai/scaffold/internal/response"
	"github.com/akave-ai/scaffold/internal/validation"
)

// Route declares one endpoint of a module.
type Route struct {
	Method string
	// Path is relative to the global prefix and version, e.g. "/cards/:id".
	Path string
	// Version mounts the route under /v<Version>. Empty means unversioned.
	Version string
	// ExcludePrefix mounts the route outside the global prefix.
	ExcludePrefix bool
	// Body, when set, is checked by the validation gate before Handler runs.
	Body    *validation.Schema
	Handler response.Handler

	Summary     string
	Description string
	Tags        []string
}

// Module is a named group of routes.
type Module interface {
	Name() string
	Routes() []Route
}

// MountedRoute is a Route with the path it is served on.
type MountedRoute struct {
	Route
	Module   string
	FullPath string
}

// Registry holds registered modules in registration order.
type Registry struct {
	mu      sync.RWMutex
	modules []Module
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// Register adds a module. Module names are unique.
func (r *Registry) Register(m Module) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.names[m.Name()]; ok {
		return fmt.Errorf("module already registered: %s", m.Name())
	}
	r.names[m.Name()] = struct{}{}
	r.modules = append(r.modules, m)
	return nil
}

// ListRegistered returns the sorted module names.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for _, m := range r.modules {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}

// Routes resolves every route against prefix. Duplicate method and path
// pairs are an error.
func (r *Registry) Routes(prefix string) ([]MountedRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]string)
	var out []MountedRoute
	for _, m := range r.modules {
		for _, rt := range m.Routes() {
			if rt.Handler == nil {
				return nil, fmt.Errorf("module %s: %s %s has no handler", m.Name(), rt.Method, rt.Path)
			}
			method := strings.ToUpper(rt.Method)
			if method == "" {
				method = http.MethodGet
			}
			rt.Method = method
			full := FullPath(prefix, rt)
			key := method + " " + full
			if owner, ok := seen[key]; ok {
				return nil, fmt.Errorf("module %s: %s already registered by %s", m.Name(), key, owner)
			}
			seen[key] = m.Name()
			out = append(out, MountedRoute{Route: rt, Module: m.Name(), FullPath: full})
		}
	}
	return out, nil
}

// Mount registers every route on e. Routes with a Body schema get the
// gate's body pipe; every handler is wrapped in the success envelope.
// A GET route also answers HEAD unless its module declares HEAD for the
// same path.
func (r *Registry) Mount(e *echo.Echo, gate *validation.Gate, prefix string) ([]MountedRoute, error) {
	routes, err := r.Routes(prefix)
	if err != nil {
		return nil, err
	}
	explicitHead := make(map[string]bool)
	for _, rt := range routes {
		if rt.Method == http.MethodHead {
			explicitHead[rt.FullPath] = true
		}
	}
	for _, rt := range routes {
		var mw []echo.MiddlewareFunc
		if rt.Body != nil {
			mw = append(mw, gate.Body(rt.Body))
		}
		h := response.Wrap(rt.Handler)
		e.Add(rt.Method, rt.FullPath, h, mw...)
		if rt.Method == http.MethodGet && !explicitHead[rt.FullPath] {
			e.Add(http.MethodHead, rt.FullPath, h, mw...)
		}
	}
	return routes, nil
}

// FullPath joins the global prefix, the version segment and the route
// path. The prefix is skipped for routes that exclude it.
func FullPath(prefix string, rt Route) string {
	var parts []string
	if p := strings.Trim(prefix, "/"); p != "" && !rt.ExcludePrefix {
		parts = append(parts, p)
	}
	if rt.Version != "" {
		parts = append(parts, "v"+strings.TrimPrefix(rt.Version, "v"))
	}
	if p := strings.Trim(rt.Path, "/"); p != "" {
		parts = append(parts, p)
	}
	return "/" + strings.Join(parts, "/")
}
