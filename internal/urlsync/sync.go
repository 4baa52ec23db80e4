package urlsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"placemap/internal/core"
	"placemap/internal/filters"
	"placemap/internal/kv"
)

// Persisted keys.
const (
	KeyFilters      = "filters"
	KeyUserLocation = "userLocation"
)

const (
	// DefaultAutoSearchDelay gives location and collaborators time to settle
	// before an autoSearch URL triggers a search.
	DefaultAutoSearchDelay = time.Second

	// DefaultSearchPath is the search view navigated to by NavigateToSearch.
	DefaultSearchPath = "/search"

	writeTimeout = 5 * time.Second
)

// ErrMounted is returned by Mount on an already mounted Synchronizer.
var ErrMounted = errors.New("urlsync: already mounted")

// Options configures a Synchronizer.
type Options struct {
	AutoSearchDelay time.Duration
	SearchPath      string
	// Navigator, when set, receives every URL produced by NavigateToSearch
	Navigator core.Navigator
	Logger    *slog.Logger
}

// Synchronizer binds a filter store to a query string and a kv repository.
type Synchronizer struct {
	store *filters.Store
	repo  kv.Repository
	opts  Options

	mu          sync.Mutex
	mounted     bool
	unsubscribe func()
	timer       *time.Timer
	ctx         context.Context
	cancel      context.CancelFunc

	// last written values; store notifications that only change results or
	// phase do not rewrite storage
	writeMu      sync.Mutex
	lastFilters  []byte
	lastLocation []byte
}

// New creates an unmounted Synchronizer.
func New(store *filters.Store, repo kv.Repository, opts Options) *Synchronizer {
	if opts.AutoSearchDelay <= 0 {
		opts.AutoSearchDelay = DefaultAutoSearchDelay
	}
	if opts.SearchPath == "" {
		opts.SearchPath = DefaultSearchPath
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Synchronizer{store: store, repo: repo, opts: opts}
}

// MountInfo describes what Mount applied.
type MountInfo struct {
	RestoredFilters  bool     `json:"restored_filters"`
	RestoredLocation bool     `json:"restored_location"`
	FromURL          bool     `json:"from_url"`
	AutoSearch       bool     `json:"auto_search"`
	Rejected         []string `json:"rejected,omitempty"`
}

// Mount restores persisted state, then applies the query parameters on top
// of it (the URL wins), then starts writing every change through to the
// repository. With autoSearch=true a search runs after the configured delay.
//
// Malformed persisted state and unusable parameters are logged and skipped;
// Mount only fails when called twice.
func (s *Synchronizer) Mount(ctx context.Context, query url.Values) (MountInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mounted {
		return MountInfo{}, ErrMounted
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	var info MountInfo
	current := s.store.Snapshot()
	f := current.Filters
	loc := current.UserLocation

	if persisted, ok := s.loadFilters(ctx, f); ok {
		f = persisted
		info.RestoredFilters = true
	}
	if persisted, ok := s.loadLocation(ctx); ok {
		loc = persisted
		info.RestoredLocation = true
	}

	decoded := Decode(query, f)
	if decoded.Present {
		info.FromURL = true
		f = decoded.Filters
		if decoded.Location != nil {
			loc = decoded.Location
		}
	}
	if len(decoded.Rejected) > 0 {
		info.Rejected = decoded.Rejected
		s.opts.Logger.Warn("ignoring malformed URL parameters", "params", decoded.Rejected)
	}

	st := s.store.Hydrate(f, loc)
	s.persist(st)
	s.unsubscribe = s.store.Subscribe(s.persist)
	s.mounted = true

	if decoded.AutoSearch {
		info.AutoSearch = true
		searchCtx := s.ctx
		s.timer = time.AfterFunc(s.opts.AutoSearchDelay, func() {
			if searchCtx.Err() != nil {
				return
			}
			s.store.PerformSearch(searchCtx)
		})
	}
	return info, nil
}

// Unmount stops write-through and cancels a pending auto search.
// It is safe to call more than once.
func (s *Synchronizer) Unmount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.mounted {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.cancel()
	s.unsubscribe()
	s.mounted = false
}

// NavigateParams is a search hand-off from another part of the application.
type NavigateParams struct {
	Filters filters.Partial `json:"filters"`
	// Location replaces the user location when set
	Location   *core.Coordinates `json:"location,omitempty"`
	AutoSearch bool              `json:"autoSearch,omitempty"`
}

// NavigateToSearch merges p into the store, builds the search view URL for
// the resulting intent and hands it to the Navigator.
func (s *Synchronizer) NavigateToSearch(p NavigateParams) (string, error) {
	if err := p.Filters.Validate(); err != nil {
		return "", err
	}
	if p.Location != nil {
		if err := p.Location.Validate(); err != nil {
			return "", fmt.Errorf("invalid location: %w", err)
		}
	}

	if !p.Filters.IsEmpty() {
		s.store.SetFilters(p.Filters)
	}
	if p.Location != nil {
		s.store.SetUserLocation(p.Location)
	}

	st := s.store.Snapshot()
	v := Encode(st.Filters, st.UserLocation)
	if p.AutoSearch {
		v.Set(ParamAutoSearch, "true")
	}
	target := s.opts.SearchPath + "?" + v.Encode()

	if s.opts.Navigator != nil {
		s.opts.Navigator.Navigate(target)
	}
	return target, nil
}

// URL returns the search view URL for the current intent.
func (s *Synchronizer) URL() string {
	st := s.store.Snapshot()
	return s.opts.SearchPath + "?" + Encode(st.Filters, st.UserLocation).Encode()
}

func (s *Synchronizer) loadFilters(ctx context.Context, base filters.Filters) (filters.Filters, bool) {
	raw, err := s.repo.GetRaw(ctx, KeyFilters)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.opts.Logger.Warn("failed to read persisted filters", "error", err)
		}
		return base, false
	}

	// decode over the current filters so absent fields keep their value
	candidate := base.Clone()
	if err := json.Unmarshal(raw, &candidate); err != nil {
		s.opts.Logger.Warn("ignoring malformed persisted filters", "error", err)
		return base, false
	}
	out, fixed := sanitize(candidate, base)
	if len(fixed) > 0 {
		s.opts.Logger.Warn("replaced invalid persisted filter values", "fields", fixed)
	}
	return out, true
}

func (s *Synchronizer) loadLocation(ctx context.Context) (*core.Coordinates, bool) {
	loc, err := kv.Get[*core.Coordinates](ctx, s.repo, KeyUserLocation)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.opts.Logger.Warn("ignoring persisted location", "error", err)
		}
		return nil, false
	}
	if loc == nil {
		return nil, false
	}
	if err := loc.Validate(); err != nil {
		s.opts.Logger.Warn("ignoring persisted location", "error", err)
		return nil, false
	}
	return loc, true
}

// persist writes filters and location when they differ from the last write.
// Failures are logged; the in-memory state stays authoritative.
func (s *Synchronizer) persist(st filters.State) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()

	fb, err := json.Marshal(st.Filters)
	if err == nil && string(fb) != string(s.lastFilters) {
		if err := s.repo.SetRaw(ctx, KeyFilters, fb); err != nil {
			s.opts.Logger.Warn("failed to persist filters", "error", err)
		} else {
			s.lastFilters = fb
		}
	}

	lb, err := json.Marshal(st.UserLocation)
	if err != nil || string(lb) == string(s.lastLocation) {
		return
	}
	if st.UserLocation == nil {
		err = s.repo.Delete(ctx, KeyUserLocation)
	} else {
		err = s.repo.SetRaw(ctx, KeyUserLocation, lb)
	}
	if err != nil {
		s.opts.Logger.Warn("failed to persist user location", "error", err)
		return
	}
	s.lastLocation = lb
}
