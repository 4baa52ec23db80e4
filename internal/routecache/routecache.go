// Package routecache caches computed travel routes with a lifetime that
// depends on the route distance.
package routecache

import (
	"strings"
	"time"

	"placemap/internal/core"
	"placemap/internal/geo"
	"placemap/internal/observability"
	"placemap/internal/ttlcache"
)

const cacheName = "route"

// Distance tiers. Short local routes rarely change; long routes are more
// sensitive to live traffic and alternatives.
const (
	ShortDistanceMeters  = 5000
	MediumDistanceMeters = 20000

	ShortTTL  = time.Hour
	MediumTTL = 30 * time.Minute
	LongTTL   = 10 * time.Minute
)

// TTLFor returns the cache lifetime for a route of the given length.
// Unknown or degenerate distances (zero or negative) get the longest lifetime.
func TTLFor(distanceMeters float64) time.Duration {
	switch {
	case distanceMeters <= 0:
		return ShortTTL
	case distanceMeters < ShortDistanceMeters:
		return ShortTTL
	case distanceMeters < MediumDistanceMeters:
		return MediumTTL
	default:
		return LongTTL
	}
}

// Key builds the cache key: both endpoints rounded to 4 decimals plus the mode.
func Key(origin, destination core.Coordinates, mode string) string {
	return geo.PointKey(origin) + "|" + geo.PointKey(destination) + "|" + strings.ToLower(mode)
}

// Cache stores routes keyed by rounded endpoints and transport mode.
type Cache struct {
	entries *ttlcache.Cache[string, core.RouteData]
}

// New creates an empty route cache.
func New(opts ...ttlcache.Option) *Cache {
	return &Cache{entries: ttlcache.New[string, core.RouteData](opts...)}
}

// Set stores route under the key derived from origin, destination and mode.
func (c *Cache) Set(origin, destination core.Coordinates, mode string, route core.RouteData) {
	c.entries.Set(Key(origin, destination, mode), route, TTLFor(route.DistanceMeters))
	observability.CacheEntries.WithLabelValues(cacheName).Set(float64(c.entries.Len()))
}

// Get returns the cached route, if any. An entry that fails the shape check
// is dropped and reported as a miss.
func (c *Cache) Get(origin, destination core.Coordinates, mode string) (core.RouteData, bool) {
	key := Key(origin, destination, mode)
	route, ok := c.entries.Get(key)
	if ok && !route.Valid() {
		c.entries.Delete(key)
		ok = false
	}
	if !ok {
		observability.CacheMiss(cacheName)
		return core.RouteData{}, false
	}
	observability.CacheHit(cacheName)
	return route, true
}

// CleanExpired sweeps expired routes.
func (c *Cache) CleanExpired() int {
	removed := c.entries.CleanExpired()
	observability.CacheEntries.WithLabelValues(cacheName).Set(float64(c.entries.Len()))
	return removed
}

// Clear drops every cached route.
func (c *Cache) Clear() {
	c.entries.Clear()
	observability.CacheEntries.WithLabelValues(cacheName).Set(0)
}

// Len returns the number of stored routes.
func (c *Cache) Len() int {
	return c.entries.Len()
}
