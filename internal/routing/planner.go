// Package routing plans routes from the user's location to search results,
// sized and paced by the optimizer and served from the route cache when
// possible.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"placemap/internal/core"
	"placemap/internal/observability"
	"placemap/internal/optimizer"
	"placemap/internal/routecache"
)

// DefaultMode is used when no transport mode is given.
const DefaultMode = "walking"

// maxParallelFetches caps concurrent routing calls for unthrottled clients.
const maxParallelFetches = 5

// fetchTimeout bounds a shared routing call. The call outlives the caller
// that started it, since other callers may be waiting on the same route.
const fetchTimeout = 15 * time.Second

var errInvalidRoute = errors.New("routing collaborator returned an empty route")

// PlannedRoute is one computed route and the destination it leads to.
// Destination carries the route's distance and duration.
type PlannedRoute struct {
	Destination core.SearchResult `json:"destination"`
	Mode        string            `json:"mode"`
	Route       core.RouteData    `json:"route"`
	Cached      bool              `json:"cached"`
}

// Planner computes routes to search results.
type Planner struct {
	router core.Router
	cache  *routecache.Cache
	logger *slog.Logger

	// collapses concurrent fetches of the same route
	group singleflight.Group
}

// NewPlanner creates a planner. cache may be nil to disable caching.
func NewPlanner(router core.Router, cache *routecache.Cache, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{router: router, cache: cache, logger: logger}
}

// Plan computes routes from origin to the leading destinations. How many
// destinations get a route, and whether fetches run in parallel or one at a
// time with a pause between them, is decided by the optimizer for probe.
//
// Individual route failures are logged and left out of the result. Plan
// only fails on an invalid origin, a missing router or a cancelled context;
// routes computed before a cancellation are still returned.
func (p *Planner) Plan(ctx context.Context, origin core.Coordinates, destinations []core.SearchResult, mode string, probe optimizer.CapabilityProbe) ([]PlannedRoute, error) {
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}
	if len(destinations) == 0 {
		return []PlannedRoute{}, nil
	}
	if p.router == nil {
		return nil, errors.New("no routing collaborator configured")
	}
	mode = NormalizeMode(mode)

	opt := optimizer.New(probe)
	targets := destinations[:opt.OptimalRouteCount(len(destinations))]
	planned := make([]*PlannedRoute, len(targets))

	var err error
	if opt.ShouldLimitConcurrentRequests() {
		err = p.planSerial(ctx, origin, targets, mode, opt.RequestDelay(), planned)
	} else {
		err = p.planParallel(ctx, origin, targets, mode, planned)
	}

	out := make([]PlannedRoute, 0, len(planned))
	for _, r := range planned {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, err
}

// NormalizeMode lowercases mode and falls back to DefaultMode.
func NormalizeMode(mode string) string {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		return DefaultMode
	}
	return mode
}

// planSerial fetches one route at a time. Cache hits are free; network
// fetches are spaced at least delay apart.
func (p *Planner) planSerial(ctx context.Context, origin core.Coordinates, targets []core.SearchResult, mode string, delay time.Duration, planned []*PlannedRoute) error {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	limiter := rate.NewLimiter(limit, 1)

	for i, dest := range targets {
		if r, ok := p.cached(origin, dest, mode); ok {
			planned[i] = r
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		planned[i] = p.fetch(ctx, origin, dest, mode)
	}
	return ctx.Err()
}

func (p *Planner) planParallel(ctx context.Context, origin core.Coordinates, targets []core.SearchResult, mode string, planned []*PlannedRoute) error {
	var g errgroup.Group
	g.SetLimit(maxParallelFetches)
	for i, dest := range targets {
		if r, ok := p.cached(origin, dest, mode); ok {
			planned[i] = r
			continue
		}
		g.Go(func() error {
			planned[i] = p.fetch(ctx, origin, dest, mode)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (p *Planner) cached(origin core.Coordinates, dest core.SearchResult, mode string) (*PlannedRoute, bool) {
	if p.cache == nil {
		return nil, false
	}
	route, ok := p.cache.Get(origin, dest.Coordinates, mode)
	if !ok {
		return nil, false
	}
	observability.RouteRequestsTotal.WithLabelValues(mode, "cached").Inc()
	return newPlanned(dest, mode, route, true), true
}

// fetch calls the router and caches a valid answer. It returns nil when the
// route could not be computed or ctx was cancelled first.
func (p *Planner) fetch(ctx context.Context, origin core.Coordinates, dest core.SearchResult, mode string) *PlannedRoute {
	key := routecache.Key(origin, dest.Coordinates, mode)
	ch := p.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		route, err := p.router.Route(fetchCtx, origin, dest.Coordinates, mode)
		if err != nil {
			return nil, err
		}
		if !route.Valid() {
			return nil, errInvalidRoute
		}
		if p.cache != nil {
			p.cache.Set(origin, dest.Coordinates, mode, route)
		}
		return route, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	if res.Err != nil {
		observability.RouteRequestsTotal.WithLabelValues(mode, "error").Inc()
		p.logger.Warn("route request failed", "destination", dest.ID, "mode", mode, "error", res.Err)
		return nil
	}
	observability.RouteRequestsTotal.WithLabelValues(mode, "success").Inc()
	return newPlanned(dest, mode, res.Val.(core.RouteData), false)
}

func newPlanned(dest core.SearchResult, mode string, route core.RouteData, cached bool) *PlannedRoute {
	d := core.CloneResults([]core.SearchResult{dest})[0]
	distance, duration := route.DistanceMeters, route.DurationSeconds
	d.Distance = &distance
	d.Duration = &duration
	return &PlannedRoute{Destination: d, Mode: mode, Route: route, Cached: cached}
}
