package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"placemap/internal/core"
	"placemap/internal/favorites"
	"placemap/internal/filters"
	"placemap/internal/geojson"
	"placemap/internal/optimizer"
	"placemap/internal/providers"
	"placemap/internal/session"
	"placemap/internal/urlsync"
)

const formatGeoJSON = "geojson"

type sessionResponse struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	URL       string             `json:"url"`
	Mount     *urlsync.MountInfo `json:"mount,omitempty"`
	State     filters.State      `json:"state"`
}

func newSessionResponse(s *session.Session, withMount bool) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		URL:       s.Sync.URL(),
		State:     s.Store.Snapshot(),
	}
	if withMount {
		info := s.Mount
		resp.Mount = &info
	}
	return resp
}

type createSessionRequest struct {
	ID string `json:"id"`
}

// CreateSession handles POST /v1/sessions. The query string is applied as
// search URL parameters; a body ID resumes an earlier session's state.
func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	s, err := h.sessions.Create(c.Request().Context(), session.CreateParams{
		ID:    req.ID,
		Query: c.QueryParams(),
	})
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, newSessionResponse(s, true))
}

// GetSession handles GET /v1/sessions/:id
func (h *Handler) GetSession(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, newSessionResponse(s, false))
}

// DeleteSession handles DELETE /v1/sessions/:id
func (h *Handler) DeleteSession(c echo.Context) error {
	if err := h.sessions.Delete(c.Param("id")); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpdateFilters handles PATCH /v1/sessions/:id/filters
func (h *Handler) UpdateFilters(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	var p filters.Partial
	if err := c.Bind(&p); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	if err := p.Validate(); err != nil {
		return handleError(c, err)
	}
	if p.IsEmpty() {
		return c.JSON(http.StatusOK, s.Store.Snapshot())
	}
	return c.JSON(http.StatusOK, s.Store.SetFilters(p))
}

// ResetFilters handles POST /v1/sessions/:id/filters/reset
func (h *Handler) ResetFilters(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, s.Store.ResetFilters())
}

type locationRequest struct {
	// Coordinates is [lng, lat]; null clears the location
	Coordinates *core.Coordinates `json:"coordinates"`
	// Source is gps, network, manual or ip
	Source string `json:"source"`
}

type locationResponse struct {
	Fix   *core.LocationFix `json:"fix,omitempty"`
	State filters.State     `json:"state"`
}

// SetLocation handles PUT /v1/sessions/:id/location. Clients report their
// own fix, or ask for source "ip" to be located from their address.
func (h *Handler) SetLocation(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	var req locationRequest
	if err := c.Bind(&req); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}

	var g core.Geolocator
	switch req.Source {
	case providers.SourceIP:
		if h.locator == nil {
			return handleError(c, core.NewInvalidRequestError("ip geolocation is not configured", nil))
		}
		g = h.locator.ForIP(net.ParseIP(c.RealIP()))
	case "", providers.SourceGPS, providers.SourceNetwork, providers.SourceManual:
		if req.Coordinates == nil {
			return c.JSON(http.StatusOK, locationResponse{State: s.Store.SetUserLocation(nil)})
		}
		g = providers.NewStaticGeolocator(*req.Coordinates, req.Source)
	default:
		return handleError(c, core.NewInvalidRequestError("unknown location source: "+req.Source, nil))
	}

	fix, err := providers.RequestLocation(c.Request().Context(), g, h.locateTimeout)
	if err != nil {
		return handleError(c, locationError(err))
	}
	st := s.Store.SetUserLocation(&fix.Coordinates)
	return c.JSON(http.StatusOK, locationResponse{Fix: &fix, State: st})
}

func locationError(err error) error {
	switch {
	case errors.Is(err, providers.ErrLocationUnavailable):
		apiErr := core.NewInvalidRequestError(err.Error(), err)
		apiErr.StatusCode = http.StatusUnprocessableEntity
		return apiErr
	case errors.Is(err, context.DeadlineExceeded):
		apiErr := core.NewUpstreamError("location request timed out", err)
		apiErr.StatusCode = http.StatusGatewayTimeout
		return apiErr
	default:
		return core.NewUpstreamError("location request failed", err)
	}
}

// Search handles POST /v1/sessions/:id/search. A failed place search is
// reported through the returned state's phase, not as an HTTP error.
// Callers identified by X-User-ID get the search added to their history.
func (h *Handler) Search(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	if s.Store.Snapshot().UserLocation == nil {
		return handleError(c, core.NewInvalidRequestError("a user location is required to search", nil))
	}

	ctx := c.Request().Context()
	st := s.Store.PerformSearch(ctx)

	if owner, ok := ownerFrom(c); ok && st.Phase == filters.PhaseSuccess && st.UserLocation != nil {
		err := h.favorites.RecordSearch(ctx, owner, favorites.RecentSearch{
			Query:    st.Filters.Query,
			Center:   *st.UserLocation,
			Category: st.Filters.CategoryValue(),
		})
		if err != nil {
			h.logger.Warn("failed to record recent search", "error", err, "session", s.ID)
		}
	}
	return c.JSON(http.StatusOK, st)
}

// Results handles GET /v1/sessions/:id/results?format=geojson
func (h *Handler) Results(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	st := s.Store.Snapshot()
	if c.QueryParam("format") == formatGeoJSON {
		return c.JSON(http.StatusOK, geojson.ResultsCollection(st.Results))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"phase":   st.Phase,
		"results": st.Results,
	})
}

// Routes handles GET /v1/sessions/:id/routes?mode=&format=geojson. Routes
// lead from the user location to the current results; the mode defaults to
// the session's transport filter.
func (h *Handler) Routes(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	st := s.Store.Snapshot()
	if st.UserLocation == nil {
		return handleError(c, core.NewInvalidRequestError("a user location is required for routes", nil))
	}

	mode := c.QueryParam("mode")
	if mode == "" {
		mode = string(st.Filters.Transport)
	}
	probe := optimizer.NewHintsProbe(c.Request().Header)

	routes, err := h.planner.Plan(c.Request().Context(), *st.UserLocation, st.Results, mode, probe)
	if err != nil && len(routes) == 0 {
		return handleError(c, core.NewUpstreamError("failed to plan routes", err))
	}
	if c.QueryParam("format") == formatGeoJSON {
		return c.JSON(http.StatusOK, geojson.RoutesCollection(routes))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"routes": routes})
}

// Navigate handles POST /v1/sessions/:id/navigate
func (h *Handler) Navigate(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}

	var p urlsync.NavigateParams
	if err := c.Bind(&p); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	target, err := s.Sync.NavigateToSearch(p)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError(err.Error(), err))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"url":   target,
		"state": s.Store.Snapshot(),
	})
}

// SessionURL handles GET /v1/sessions/:id/url
func (h *Handler) SessionURL(c echo.Context) error {
	s, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": s.Sync.URL()})
}
