// Package spatial caches place-search results by approximate location.
//
// Lookups are near-matches: the center is rounded to 4 decimal places
// (about 11m) so repeated searches from nearly the same spot share an
// entry. Keys also carry the normalized query text, a readable filter tag
// (category, subcategory and transport) and a fingerprint of every filter
// that changes what a search returns.
//
// Preloaded results are stored per geohash cell. A lookup that misses its
// exact key falls back to the preloaded entry of the cell containing it.
package spatial

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/semaphore"

	"placemap/internal/core"
	"placemap/internal/filters"
	"placemap/internal/geo"
	"placemap/internal/observability"
	"placemap/internal/ttlcache"
)

const cacheName = "spatial"

const (
	// DefaultTTL suits the volatility of place search results.
	DefaultTTL = 5 * time.Minute

	// DefaultPreloadPrecision is the geohash precision of preload cells (~1.2km x 0.6km).
	DefaultPreloadPrecision = 6

	// DefaultPreloadTimeout bounds a single preload search.
	DefaultPreloadTimeout = 10 * time.Second
)

// Config holds spatial cache settings.
type Config struct {
	TTL              time.Duration
	PreloadEnabled   bool
	PreloadPrecision int
	PreloadTimeout   time.Duration
	// PreloadConcurrency caps simultaneous preload searches
	PreloadConcurrency int
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		TTL:                DefaultTTL,
		PreloadEnabled:     true,
		PreloadPrecision:   DefaultPreloadPrecision,
		PreloadTimeout:     DefaultPreloadTimeout,
		PreloadConcurrency: 2,
	}
}

// Cache is the spatial result cache. It is safe for concurrent use.
type Cache struct {
	cfg      Config
	entries  *ttlcache.Cache[string, []core.SearchResult]
	searcher core.PlaceSearcher
	logger   *slog.Logger

	// preload bookkeeping
	inflight sync.Map
	sem      *semaphore.Weighted
	baseCtx  context.Context
	cancel   context.CancelFunc

	// mu orders wg.Add in schedulePreload against wg.Wait in Close
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	stats stats
}

// New creates a spatial cache. searcher is used only for preloading and may be nil.
func New(cfg Config, searcher core.PlaceSearcher, logger *slog.Logger, opts ...ttlcache.Option) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.PreloadPrecision <= 0 {
		cfg.PreloadPrecision = DefaultPreloadPrecision
	}
	if cfg.PreloadTimeout <= 0 {
		cfg.PreloadTimeout = DefaultPreloadTimeout
	}
	if cfg.PreloadConcurrency <= 0 {
		cfg.PreloadConcurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		cfg:      cfg,
		entries:  ttlcache.New[string, []core.SearchResult](opts...),
		searcher: searcher,
		logger:   logger,
		sem:      semaphore.NewWeighted(int64(cfg.PreloadConcurrency)),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// NormalizeQuery lowercases and trims the query and collapses inner whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Fingerprint hashes the filters that change what a search returns.
// Presentation-only fields (showMultiDirections) are left out.
func Fingerprint(f filters.Filters) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(f.CategoryValue()))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(f.SubcategoryValue()))
	b.WriteByte('|')
	b.WriteString(string(f.Transport))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(f.Distance, 'f', -1, 64))
	b.WriteString(string(f.Unit))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(f.AroundMeCount))
	b.WriteByte('|')
	b.WriteString(strconv.FormatFloat(f.MaxDuration, 'f', -1, 64))
	return strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// Tag is the readable filter segment of a key, "category/subcategory/transport".
func Tag(f filters.Filters) string {
	return strings.ToLower(f.CategoryValue()) + "/" + strings.ToLower(f.SubcategoryValue()) + "/" + string(f.Transport)
}

// Key builds the lookup key for a search.
func Key(query string, center core.Coordinates, f filters.Filters) string {
	return NormalizeQuery(query) + "|" + geo.PointKey(center) + "|" + Tag(f) + "|" + Fingerprint(f)
}

// CellKey builds the key of a preloaded entry for a geohash cell.
func CellKey(query string, cell geo.Cell, f filters.Filters) string {
	return NormalizeQuery(query) + "|gh:" + cell.Hash + "|" + Tag(f) + "|" + Fingerprint(f)
}

// GetCachedResults returns a copy of the cached results for the search, if
// any. When the rounded center has no entry of its own, the preloaded entry
// for the surrounding cell is used.
func (c *Cache) GetCachedResults(query string, center core.Coordinates, f filters.Filters) ([]core.SearchResult, bool) {
	results, ok := c.lookup(Key(query, center, f))
	if !ok {
		results, ok = c.lookup(CellKey(query, geo.CellAround(center, c.cfg.PreloadPrecision), f))
	}
	c.stats.record(ok)
	if !ok {
		observability.CacheMiss(cacheName)
		return nil, false
	}
	observability.CacheHit(cacheName)
	return core.CloneResults(results), true
}

func (c *Cache) lookup(key string) ([]core.SearchResult, bool) {
	results, ok := c.entries.Get(key)
	// shape check: a nil slice is never stored
	if ok && results == nil {
		return nil, false
	}
	return results, ok
}

// CacheResults stores a copy of results for the search.
func (c *Cache) CacheResults(query string, center core.Coordinates, f filters.Filters, results []core.SearchResult) {
	c.store(Key(query, center, f), results)
}

func (c *Cache) store(key string, results []core.SearchResult) {
	stored := core.CloneResults(results)
	if stored == nil {
		stored = []core.SearchResult{}
	}
	c.entries.Set(key, stored, c.cfg.TTL)
	observability.CacheEntries.WithLabelValues(cacheName).Set(float64(c.entries.Len()))
}

// InvalidateCache removes every entry whose query, location or filter tag
// contains pattern (case-insensitive). The fingerprint is not matched. An
// empty pattern clears the cache. It returns the number of entries removed.
func (c *Cache) InvalidateCache(pattern string) int {
	var removed int
	if pattern == "" {
		removed = c.entries.Len()
		c.entries.Clear()
	} else {
		p := strings.ToLower(pattern)
		removed = c.entries.DeleteFunc(func(k string) bool {
			if i := strings.LastIndexByte(k, '|'); i >= 0 {
				k = k[:i]
			}
			return strings.Contains(k, p)
		})
	}
	observability.CacheEntries.WithLabelValues(cacheName).Set(float64(c.entries.Len()))
	return removed
}

// CleanExpired sweeps expired entries.
func (c *Cache) CleanExpired() int {
	removed := c.entries.CleanExpired()
	observability.CacheEntries.WithLabelValues(cacheName).Set(float64(c.entries.Len()))
	return removed
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// RecordLatency adds a search latency sample to the metrics side channel.
func (c *Cache) RecordLatency(d time.Duration) {
	c.stats.addLatency(d)
}

// Metrics returns a consistent snapshot of the side-channel counters.
func (c *Cache) Metrics() Snapshot {
	snap := c.stats.snapshot()
	snap.Entries = c.entries.Len()
	return snap
}

// Close cancels in-flight preloads and waits for them to return. Preloads
// requested after Close are ignored.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

// Snapshot is a point-in-time view of the cache metrics.
type Snapshot struct {
	TotalRequests int64         `json:"total_requests"`
	Hits          int64         `json:"hits"`
	Misses        int64         `json:"misses"`
	HitRatio      float64       `json:"hit_ratio"`
	AvgLatency    time.Duration `json:"avg_latency_ns"`
	Preloads      int64         `json:"preloads"`
	Entries       int           `json:"entries"`
}

// stats guards the counters with a mutex so that a snapshot never shows
// more hits than requests.
type stats struct {
	mu           sync.Mutex
	requests     int64
	hits         int64
	latencyTotal time.Duration
	latencyCount int64
	// preloads is read without the mutex; it is not compared with requests
	preloads atomic.Int64
}

func (s *stats) record(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	if hit {
		s.hits++
	}
}

func (s *stats) addLatency(d time.Duration) {
	if d < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencyTotal += d
	s.latencyCount++
}

func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		TotalRequests: s.requests,
		Hits:          s.hits,
		Misses:        s.requests - s.hits,
		Preloads:      s.preloads.Load(),
	}
	if s.requests > 0 {
		snap.HitRatio = float64(s.hits) / float64(s.requests)
	}
	if s.latencyCount > 0 {
		snap.AvgLatency = s.latencyTotal / time.Duration(s.latencyCount)
	}
	return snap
}
