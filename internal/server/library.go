package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"placemap/internal/core"
	"placemap/internal/favorites"
)

const (
	ownerHeader  = "X-User-ID"
	defaultOwner = "anonymous"
)

// ownerFrom returns the caller's owner ID and whether the caller named one.
func ownerFrom(c echo.Context) (string, bool) {
	owner := strings.TrimSpace(c.Request().Header.Get(ownerHeader))
	if owner == "" {
		return defaultOwner, false
	}
	return owner, true
}

func owner(c echo.Context) string {
	o, _ := ownerFrom(c)
	return o
}

// ListFavorites handles GET /v1/favorites
func (h *Handler) ListFavorites(c echo.Context) error {
	list, err := h.favorites.List(c.Request().Context(), owner(c))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"favorites": list})
}

// AddFavorite handles POST /v1/favorites. Adding a place twice returns the
// existing entry.
func (h *Handler) AddFavorite(c echo.Context) error {
	var f favorites.Favorite
	if err := c.Bind(&f); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	saved, err := h.favorites.Add(c.Request().Context(), owner(c), f)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// RemoveFavorite handles DELETE /v1/favorites/:fid
func (h *Handler) RemoveFavorite(c echo.Context) error {
	if err := h.favorites.Remove(c.Request().Context(), owner(c), c.Param("fid")); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListAddresses handles GET /v1/addresses
func (h *Handler) ListAddresses(c echo.Context) error {
	list, err := h.favorites.ListAddresses(c.Request().Context(), owner(c))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"addresses": list})
}

// SaveAddress handles POST /v1/addresses
func (h *Handler) SaveAddress(c echo.Context) error {
	var a favorites.SavedAddress
	if err := c.Bind(&a); err != nil {
		return handleError(c, core.NewInvalidRequestError("invalid request body: "+err.Error(), err))
	}
	saved, err := h.favorites.SaveAddress(c.Request().Context(), owner(c), a)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusCreated, saved)
}

// RemoveAddress handles DELETE /v1/addresses/:aid
func (h *Handler) RemoveAddress(c echo.Context) error {
	if err := h.favorites.RemoveAddress(c.Request().Context(), owner(c), c.Param("aid")); err != nil {
		return handleError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RecentSearches handles GET /v1/recent-searches
func (h *Handler) RecentSearches(c echo.Context) error {
	list, err := h.favorites.RecentSearches(c.Request().Context(), owner(c))
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"searches": list})
}
