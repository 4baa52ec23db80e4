// Package server provides HTTP handlers and server setup for the place
// search API.
package server

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"placemap/internal/core"
	"placemap/internal/favorites"
	"placemap/internal/filters"
	"placemap/internal/optimizer"
	"placemap/internal/routecache"
	"placemap/internal/routing"
	"placemap/internal/session"
	"placemap/internal/spatial"
)

// IPLocator resolves a client address to a geolocator.
type IPLocator interface {
	ForIP(ip net.IP) core.Geolocator
}

// CircuitReporter exposes the breaker state of an upstream collaborator.
type CircuitReporter interface {
	CircuitState() string
}

// Deps are the services the handlers delegate to. ResultCache, RouteCache
// and Locator may be nil.
type Deps struct {
	Sessions    *session.Manager
	Planner     *routing.Planner
	Favorites   *favorites.Service
	ResultCache *spatial.Cache
	RouteCache  *routecache.Cache
	Locator     IPLocator
	// LocateTimeout bounds location requests; zero uses the provider default
	LocateTimeout time.Duration
	// Upstreams are reported by the health endpoint, keyed by name
	Upstreams map[string]CircuitReporter
	Logger    *slog.Logger
}

// Handler holds the HTTP handlers
type Handler struct {
	sessions      *session.Manager
	planner       *routing.Planner
	favorites     *favorites.Service
	results       *spatial.Cache
	routes        *routecache.Cache
	locator       IPLocator
	locateTimeout time.Duration
	upstreams     map[string]CircuitReporter
	logger        *slog.Logger
}

// NewHandler creates a new handler with the given services
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handler{
		sessions:      deps.Sessions,
		planner:       deps.Planner,
		favorites:     deps.Favorites,
		results:       deps.ResultCache,
		routes:        deps.RouteCache,
		locator:       deps.Locator,
		locateTimeout: deps.LocateTimeout,
		upstreams:     deps.Upstreams,
		logger:        deps.Logger,
	}
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	status := "ok"
	upstreams := make(map[string]string, len(h.upstreams))
	for name, u := range h.upstreams {
		state := u.CircuitState()
		if state == "open" {
			status = "degraded"
		}
		upstreams[name] = state
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    status,
		"sessions":  h.sessions.Len(),
		"upstreams": upstreams,
	})
}

// NetworkProfile handles GET /v1/network-profile. It reports how the
// caller's client hints are classified and the routing limits that follow.
func (h *Handler) NetworkProfile(c echo.Context) error {
	opt := optimizer.New(optimizer.NewHintsProbe(c.Request().Header))
	return c.JSON(http.StatusOK, opt.Profile())
}

// CacheStats handles GET /v1/cache/stats
func (h *Handler) CacheStats(c echo.Context) error {
	resp := map[string]interface{}{
		"sessions": h.sessions.Len(),
	}
	if h.results != nil {
		resp["search"] = h.results.Metrics()
	}
	if h.routes != nil {
		resp["routes"] = map[string]int{"entries": h.routes.Len()}
	}
	return c.JSON(http.StatusOK, resp)
}

// InvalidateCache handles DELETE /v1/cache?pattern=&routes=true.
// An empty pattern clears the search cache.
func (h *Handler) InvalidateCache(c echo.Context) error {
	removed := 0
	if h.results != nil {
		removed = h.results.InvalidateCache(c.QueryParam("pattern"))
	}
	resp := map[string]int{"removed": removed}
	if h.routes != nil && c.QueryParam("routes") == "true" {
		resp["routes_removed"] = h.routes.Len()
		h.routes.Clear()
	}
	return c.JSON(http.StatusOK, resp)
}

// handleError converts service errors to the JSON error envelope.
func handleError(c echo.Context, err error) error {
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
	}

	var validationErr *filters.ValidationError
	switch {
	case errors.Is(err, session.ErrNotFound):
		apiErr = core.NewNotFoundError("session not found")
	case errors.Is(err, favorites.ErrNotFound):
		apiErr = core.NewNotFoundError(err.Error())
	case errors.Is(err, session.ErrInvalidID),
		errors.Is(err, favorites.ErrInvalid),
		errors.As(err, &validationErr):
		apiErr = core.NewInvalidRequestError(err.Error(), err)
	}
	if apiErr != nil {
		return c.JSON(apiErr.HTTPStatusCode(), apiErr.ToJSON())
	}

	slog.Error("unhandled request error", "error", err, "path", c.Path())
	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
