// Package session keeps per-client search sessions. A session pairs a filter
// store with a URL/storage synchronizer whose persisted state lives under the
// session's own key namespace, so a client that comes back with the same ID
// resumes where it left off.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"placemap/internal/core"
	"placemap/internal/filters"
	"placemap/internal/kv"
	"placemap/internal/observability"
	"placemap/internal/ttlcache"
	"placemap/internal/urlsync"
)

const (
	// DefaultIdleTTL is how long an untouched session stays in memory.
	DefaultIdleTTL = 30 * time.Minute

	// DefaultSweepInterval is how often idle sessions are swept.
	DefaultSweepInterval = time.Minute

	keyPrefix = "session:"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// ErrInvalidID is returned when a client-supplied session ID is not a UUID.
var ErrInvalidID = errors.New("invalid session id")

// Config holds session settings.
type Config struct {
	IdleTTL         time.Duration
	SweepInterval   time.Duration
	AutoSearchDelay time.Duration
	SearchPath      string
}

// Deps are the shared collaborators every session is wired to.
type Deps struct {
	Searcher    core.PlaceSearcher
	ResultCache filters.ResultCache
	Preloader   filters.Preloader
	// Repo holds persisted session state; nil keeps it in memory only
	Repo      kv.Repository
	Navigator core.Navigator
	Logger    *slog.Logger
}

// Session is one client's search state.
type Session struct {
	ID        string
	Store     *filters.Store
	Sync      *urlsync.Synchronizer
	CreatedAt time.Time
	Mount     urlsync.MountInfo
}

// Manager creates, looks up and expires sessions.
type Manager struct {
	cfg  Config
	deps Deps

	// serializes Create/Get/Delete so a touch never revives a deleted session
	mu       sync.Mutex
	sessions *ttlcache.Cache[string, *Session]
	now      func() time.Time

	stop      chan struct{}
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for idle expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager and starts its idle sweeper.
func NewManager(cfg Config, deps Deps, opts ...Option) *Manager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Repo == nil {
		deps.Repo = kv.NewMemory()
	}

	m := &Manager{
		cfg:  cfg,
		deps: deps,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.sessions = ttlcache.New[string, *Session](ttlcache.WithClock(m.now))
	m.sessions.OnEvict(func(id string, s *Session) {
		s.Sync.Unmount()
		observability.ActiveSessions.Dec()
		m.deps.Logger.Debug("session expired", "session", id)
	})

	go ttlcache.RunJanitor(m.stop, cfg.SweepInterval, m.sessions)
	return m
}

// CreateParams describes a new session.
type CreateParams struct {
	// ID resumes the persisted state of an earlier session when set
	ID string
	// Query holds the search URL parameters to apply on mount
	Query url.Values
}

// Create builds a session and mounts its synchronizer. Creating a session
// with the ID of a live one replaces it.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Session, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	logger := m.deps.Logger.With("session", id)

	store := filters.NewStore(m.deps.Searcher,
		filters.WithResultCache(m.deps.ResultCache),
		filters.WithPreloader(m.deps.Preloader),
		filters.WithLogger(logger),
		filters.WithClock(m.now),
	)
	syncer := urlsync.New(store, kv.Namespaced(m.deps.Repo, keyPrefix+id), urlsync.Options{
		AutoSearchDelay: m.cfg.AutoSearchDelay,
		SearchPath:      m.cfg.SearchPath,
		Navigator:       m.deps.Navigator,
		Logger:          logger,
	})
	info, err := syncer.Mount(ctx, p.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to mount session: %w", err)
	}

	s := &Session{ID: id, Store: store, Sync: syncer, CreatedAt: m.now(), Mount: info}

	m.mu.Lock()
	if prev, ok := m.sessions.Get(id); ok {
		prev.Sync.Unmount()
		observability.ActiveSessions.Dec()
	}
	m.sessions.Set(id, s, m.cfg.IdleTTL)
	m.mu.Unlock()

	observability.ActiveSessions.Inc()
	logger.Info("session created",
		"restored_filters", info.RestoredFilters,
		"restored_location", info.RestoredLocation,
		"from_url", info.FromURL,
		"auto_search", info.AutoSearch,
	)
	return s, nil
}

// Get returns a live session and restarts its idle timer.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	m.sessions.Set(id, s, m.cfg.IdleTTL)
	return s, nil
}

// Delete ends a session. Its persisted state is kept for a later resume.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions.Get(id)
	if ok {
		m.sessions.Delete(id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.Sync.Unmount()
	observability.ActiveSessions.Dec()
	return nil
}

// Len returns the number of sessions held, expired ones included until swept.
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// CleanExpired sweeps idle sessions and returns how many were dropped.
func (m *Manager) CleanExpired() int {
	return m.sessions.CleanExpired()
}

// Close stops the sweeper and unmounts every session.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stop)

		m.mu.Lock()
		defer m.mu.Unlock()
		for _, id := range m.sessions.Keys() {
			if s, ok := m.sessions.Get(id); ok {
				s.Sync.Unmount()
				observability.ActiveSessions.Dec()
			}
		}
		m.sessions.Clear()
	})
}
