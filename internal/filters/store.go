package filters

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"placemap/internal/core"
	"placemap/internal/observability"
)

// Phase is the search lifecycle state of a Store.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseSearching Phase = "searching"
	PhaseSuccess   Phase = "success"
	PhaseError     Phase = "error"
)

// ResultCache is the near-match result cache consulted before searching.
type ResultCache interface {
	GetCachedResults(query string, center core.Coordinates, f Filters) ([]core.SearchResult, bool)
	CacheResults(query string, center core.Coordinates, f Filters, results []core.SearchResult)
	RecordLatency(d time.Duration)
}

// Preloader warms the result cache around a center. Implementations must not block.
type Preloader interface {
	PreloadNearbyAreas(center core.Coordinates, f Filters, categories []string)
}

// State is an immutable snapshot of a Store.
type State struct {
	Filters      Filters             `json:"filters"`
	UserLocation *core.Coordinates   `json:"userLocation"`
	IsLoading    bool                `json:"isLoading"`
	Results      []core.SearchResult `json:"results"`
	Phase        Phase               `json:"phase"`
	LastError    string              `json:"lastError,omitempty"`
	UpdatedAt    time.Time           `json:"updatedAt"`
}

func (s State) clone() State {
	out := s
	out.Filters = s.Filters.Clone()
	if s.UserLocation != nil {
		loc := *s.UserLocation
		out.UserLocation = &loc
	}
	out.Results = core.CloneResults(s.Results)
	return out
}

// Store is the single owner of a search intent and its outcome.
// All changes go through its actions, and every change is published to
// subscribers in the order the actions were applied.
//
// Subscribers are called synchronously with their own copy of the state and
// must not call back into the Store from inside the callback.
type Store struct {
	mu    sync.Mutex
	state State
	// token identifies the latest issued search; older completions are discarded
	token uint64

	notifyMu sync.Mutex
	subs     map[int]func(State)
	nextSub  int

	searcher  core.PlaceSearcher
	cache     ResultCache
	preloader Preloader
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithResultCache sets the cache consulted before calling the searcher.
func WithResultCache(c ResultCache) Option {
	return func(s *Store) { s.cache = c }
}

// WithPreloader sets the preloader triggered when the location or category changes.
func WithPreloader(p Preloader) Option {
	return func(s *Store) { s.preloader = p }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore creates a store in the idle phase with default filters.
func NewStore(searcher core.PlaceSearcher, opts ...Option) *Store {
	s := &Store{
		searcher: searcher,
		subs:     make(map[int]func(State)),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = State{
		Filters: DefaultFilters(),
		Phase:   PhaseIdle,
		Results: []core.SearchResult{},
	}
	s.state.UpdatedAt = s.now()
	return s
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn for every state change. The returned function unregisters it.
func (s *Store) Subscribe(fn func(State)) func() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.notifyMu.Lock()
		defer s.notifyMu.Unlock()
		delete(s.subs, id)
	}
}

// commit publishes the state held under s.mu. The caller must hold s.mu;
// commit releases it. Taking notifyMu before releasing mu keeps
// notifications in apply order.
func (s *Store) commit() State {
	s.state.UpdatedAt = s.now()
	snap := s.state.clone()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, fn := range s.subs {
		fn(snap.clone())
	}
	return snap
}

// SetFilters merges p into the current filters. It performs no I/O.
func (s *Store) SetFilters(p Partial) State {
	s.mu.Lock()
	prevCategory := s.state.Filters.CategoryValue()
	s.state.Filters = s.state.Filters.Merge(p)
	s.settle()
	snap := s.commit()

	if snap.Filters.CategoryValue() != prevCategory && snap.UserLocation != nil {
		s.preload(*snap.UserLocation, snap.Filters)
	}
	return snap
}

// ResetFilters restores the default filters.
func (s *Store) ResetFilters() State {
	s.mu.Lock()
	s.state.Filters = DefaultFilters()
	s.settle()
	return s.commit()
}

// SetUserLocation replaces the user location; nil clears it.
func (s *Store) SetUserLocation(loc *core.Coordinates) State {
	s.mu.Lock()
	prev := s.state.UserLocation
	if loc == nil {
		s.state.UserLocation = nil
	} else {
		l := *loc
		s.state.UserLocation = &l
	}
	s.settle()
	snap := s.commit()

	if loc != nil && (prev == nil || *prev != *loc) {
		s.preload(*loc, snap.Filters)
	}
	return snap
}

// SetResults replaces the results wholesale.
func (s *Store) SetResults(results []core.SearchResult) State {
	s.mu.Lock()
	if results == nil {
		results = []core.SearchResult{}
	}
	s.state.Results = core.CloneResults(results)
	return s.commit()
}

// Hydrate replaces filters and location in a single change, used when
// restoring persisted or shared state.
func (s *Store) Hydrate(f Filters, loc *core.Coordinates) State {
	s.mu.Lock()
	s.state.Filters = f.Clone()
	if loc != nil {
		l := *loc
		s.state.UserLocation = &l
	}
	s.settle()
	return s.commit()
}

// settle moves a finished search back to idle once the intent changes.
// The caller must hold s.mu.
func (s *Store) settle() {
	if s.state.Phase == PhaseSuccess || s.state.Phase == PhaseError {
		s.state.Phase = PhaseIdle
		s.state.LastError = ""
	}
}

// PerformSearch runs a search for the current intent.
//
// Without a user location it logs and returns without touching the state.
// Otherwise the result cache is consulted first; on a miss the searcher is
// called and its outcome applied only if no newer search was issued in the
// meantime. Searcher failures leave empty results and the error phase; they
// are logged, not returned.
func (s *Store) PerformSearch(ctx context.Context) State {
	s.mu.Lock()
	if s.state.UserLocation == nil {
		snap := s.state.clone()
		s.mu.Unlock()
		s.logger.Info("search skipped: no user location")
		observability.SearchesTotal.WithLabelValues("skipped").Inc()
		return snap
	}

	f := s.state.Filters.Clone()
	center := *s.state.UserLocation

	if s.cache != nil {
		if cached, ok := s.cache.GetCachedResults(f.Query, center, f); ok {
			s.token++
			s.state.Results = cached
			s.state.Phase = PhaseSuccess
			s.state.IsLoading = false
			s.state.LastError = ""
			observability.SearchesTotal.WithLabelValues("cached").Inc()
			return s.commit()
		}
	}

	s.token++
	token := s.token
	s.state.Phase = PhaseSearching
	s.state.IsLoading = true
	s.state.LastError = ""
	s.commit()

	start := s.now()
	results, err := s.search(ctx, f, center)
	elapsed := s.now().Sub(start)
	observability.SearchDurationMs.Observe(float64(elapsed.Milliseconds()))
	if s.cache != nil {
		s.cache.RecordLatency(elapsed)
	}

	s.mu.Lock()
	if token != s.token {
		snap := s.state.clone()
		s.mu.Unlock()
		s.logger.Debug("discarding stale search result", "token", token, "phase", snap.Phase)
		observability.SearchesTotal.WithLabelValues("stale").Inc()
		return snap
	}

	s.state.IsLoading = false
	if err != nil {
		s.state.Results = []core.SearchResult{}
		s.state.Phase = PhaseError
		s.state.LastError = err.Error()
		s.logger.Warn("place search failed", "error", err, "query", f.Query)
		observability.SearchesTotal.WithLabelValues("error").Inc()
		return s.commit()
	}

	if results == nil {
		results = []core.SearchResult{}
	}
	s.state.Results = core.CloneResults(results)
	s.state.Phase = PhaseSuccess
	observability.SearchesTotal.WithLabelValues("success").Inc()
	snap := s.commit()

	if s.cache != nil {
		s.cache.CacheResults(f.Query, center, f, results)
	}
	return snap
}

var errNoSearcher = errors.New("no place searcher configured")

func (s *Store) search(ctx context.Context, f Filters, center core.Coordinates) ([]core.SearchResult, error) {
	if s.searcher == nil {
		return nil, errNoSearcher
	}
	return s.searcher.Search(ctx, f.SearchQuery(center))
}

func (s *Store) preload(center core.Coordinates, f Filters) {
	if s.preloader == nil {
		return
	}
	var categories []string
	if c := f.CategoryValue(); c != "" {
		categories = append(categories, c)
	}
	s.preloader.PreloadNearbyAreas(center, f, categories)
}
