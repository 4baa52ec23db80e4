package session

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placemap/internal/core"
	"placemap/internal/filters"
	"placemap/internal/kv"
	"placemap/internal/urlsync"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, q core.SearchQuery) ([]core.SearchResult, error) {
	return []core.SearchResult{{ID: "p1", Name: "Place", Coordinates: q.Center}}, nil
}

func newTestManager(t *testing.T, repo kv.Repository) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	m := NewManager(Config{IdleTTL: 30 * time.Minute, SweepInterval: time.Hour},
		Deps{Searcher: stubSearcher{}, Repo: repo},
		WithClock(clock.Now))
	t.Cleanup(m.Close)
	return m, clock
}

func TestManager_CreateAndGet(t *testing.T) {
	m, _ := newTestManager(t, kv.NewMemory())

	s, err := m.Create(context.Background(), CreateParams{
		Query: url.Values{"category": {"food"}, "lat": {"48.8566"}, "lng": {"2.3522"}},
	})
	require.NoError(t, err)
	_, err = uuid.Parse(s.ID)
	require.NoError(t, err, "generated IDs are UUIDs")
	assert.True(t, s.Mount.FromURL)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	st := got.Store.Snapshot()
	assert.Equal(t, "food", st.Filters.CategoryValue())
	require.NotNil(t, st.UserLocation)
	assert.Equal(t, core.NewCoordinates(2.3522, 48.8566), *st.UserLocation)
	assert.Equal(t, 1, m.Len())
}

func TestManager_StateIsPersistedPerSession(t *testing.T) {
	repo := kv.NewMemory()
	m, _ := newTestManager(t, repo)
	ctx := context.Background()

	a, err := m.Create(ctx, CreateParams{})
	require.NoError(t, err)
	b, err := m.Create(ctx, CreateParams{})
	require.NoError(t, err)

	a.Store.SetFilters(filters.Partial{Query: filters.String("ramen")})

	saved, err := kv.Get[filters.Filters](ctx, kv.Namespaced(repo, keyPrefix+a.ID), urlsync.KeyFilters)
	require.NoError(t, err)
	assert.Equal(t, "ramen", saved.Query)

	other, err := kv.Get[filters.Filters](ctx, kv.Namespaced(repo, keyPrefix+b.ID), urlsync.KeyFilters)
	require.NoError(t, err)
	assert.Empty(t, other.Query, "sessions do not share state")
}

func TestManager_ResumeByID(t *testing.T) {
	m, _ := newTestManager(t, kv.NewMemory())
	ctx := context.Background()

	first, err := m.Create(ctx, CreateParams{})
	require.NoError(t, err)
	first.Store.SetFilters(filters.Partial{Query: filters.String("tacos"), Distance: filters.Float(2)})
	require.NoError(t, m.Delete(first.ID))

	resumed, err := m.Create(ctx, CreateParams{ID: first.ID})
	require.NoError(t, err)
	assert.True(t, resumed.Mount.RestoredFilters)
	st := resumed.Store.Snapshot()
	assert.Equal(t, "tacos", st.Filters.Query)
	assert.Equal(t, 2.0, st.Filters.Distance)
}

func TestManager_InvalidID(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.Create(context.Background(), CreateParams{ID: "../../etc"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestManager_IdleExpiry(t *testing.T) {
	repo := kv.NewMemory()
	m, clock := newTestManager(t, repo)

	s, err := m.Create(context.Background(), CreateParams{})
	require.NoError(t, err)

	// each access restarts the idle timer
	clock.Advance(20 * time.Minute)
	_, err = m.Get(s.ID)
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	_, err = m.Get(s.ID)
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// expiry unmounted the synchronizer: later changes are not written
	s.Store.SetFilters(filters.Partial{Query: filters.String("after expiry")})
	saved, err := kv.Get[filters.Filters](context.Background(), kv.Namespaced(repo, keyPrefix+s.ID), urlsync.KeyFilters)
	require.NoError(t, err)
	assert.Empty(t, saved.Query)
}

func TestManager_CleanExpired(t *testing.T) {
	m, clock := newTestManager(t, nil)
	ctx := context.Background()
	for range 3 {
		_, err := m.Create(ctx, CreateParams{})
		require.NoError(t, err)
	}
	clock.Advance(10 * time.Minute)
	fresh, err := m.Create(ctx, CreateParams{})
	require.NoError(t, err)

	clock.Advance(25 * time.Minute)
	assert.Equal(t, 3, m.CleanExpired())
	assert.Equal(t, 1, m.Len())
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestManager_Delete(t *testing.T) {
	m, _ := newTestManager(t, nil)
	s, err := m.Create(context.Background(), CreateParams{})
	require.NoError(t, err)

	require.NoError(t, m.Delete(s.ID))
	assert.ErrorIs(t, m.Delete(s.ID), ErrNotFound)
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_AutoSearchOnCreate(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := NewManager(Config{AutoSearchDelay: 10 * time.Millisecond},
		Deps{Searcher: stubSearcher{}}, WithClock(clock.Now))
	defer m.Close()

	s, err := m.Create(context.Background(), CreateParams{
		Query: url.Values{"query": {"museum"}, "lat": {"48.86"}, "lng": {"2.34"}, "autoSearch": {"true"}},
	})
	require.NoError(t, err)
	assert.True(t, s.Mount.AutoSearch)

	require.Eventually(t, func() bool {
		return s.Store.Snapshot().Phase == filters.PhaseSuccess
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, s.Store.Snapshot().Results, 1)
}

func TestManager_CloseUnmountsAll(t *testing.T) {
	m, _ := newTestManager(t, nil)
	_, err := m.Create(context.Background(), CreateParams{})
	require.NoError(t, err)

	m.Close()
	m.Close()
	assert.Equal(t, 0, m.Len())
}
