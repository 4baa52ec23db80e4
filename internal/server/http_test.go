package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placemap/internal/core"
	"placemap/internal/favorites"
	"placemap/internal/kv"
	"placemap/internal/providers"
	"placemap/internal/routecache"
	"placemap/internal/routing"
	"placemap/internal/session"
	"placemap/internal/spatial"
)

type stubSearcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSearcher) Search(_ context.Context, q core.SearchQuery) ([]core.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	dest := core.NewCoordinates(q.Center.Lng()+0.01, q.Center.Lat())
	return []core.SearchResult{{ID: "p1", Name: "Boulangerie", Coordinates: dest, Category: "bakery"}}, nil
}

type stubRouter struct{}

func (stubRouter) Route(_ context.Context, origin, destination core.Coordinates, _ string) (core.RouteData, error) {
	return core.RouteData{
		Geometry:        []core.Coordinates{origin, destination},
		DistanceMeters:  740,
		DurationSeconds: 540,
	}, nil
}

type stubLocator struct {
	mu  sync.Mutex
	ips []string
}

func (l *stubLocator) ForIP(ip net.IP) core.Geolocator {
	l.mu.Lock()
	l.ips = append(l.ips, ip.String())
	l.mu.Unlock()
	return providers.NewStaticGeolocator(core.NewCoordinates(13.405, 52.52), providers.SourceIP)
}

type stubUpstream string

func (s stubUpstream) CircuitState() string { return string(s) }

type testEnv struct {
	srv      *Server
	searcher *stubSearcher
	sessions *session.Manager
	locator  *stubLocator
}

func newTestEnv(t *testing.T, cfg *Config, upstreams map[string]CircuitReporter) *testEnv {
	t.Helper()
	repo := kv.NewMemory()
	searcher := &stubSearcher{}
	results := spatial.New(spatial.Config{TTL: time.Minute}, searcher, nil)
	t.Cleanup(func() { _ = results.Close() })
	routes := routecache.New()

	sessions := session.NewManager(
		session.Config{IdleTTL: time.Hour, SweepInterval: time.Hour},
		session.Deps{Searcher: searcher, ResultCache: results, Repo: repo},
	)
	t.Cleanup(sessions.Close)

	locator := &stubLocator{}
	h := NewHandler(Deps{
		Sessions:    sessions,
		Planner:     routing.NewPlanner(stubRouter{}, routes, nil),
		Favorites:   favorites.NewService(repo),
		ResultCache: results,
		RouteCache:  routes,
		Locator:     locator,
		Upstreams:   upstreams,
	})
	return &testEnv{srv: New(h, cfg), searcher: searcher, sessions: sessions, locator: locator}
}

func (e *testEnv) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", rec.Body.String())
	return errObj["type"].(string)
}

func TestRequestIDMiddleware(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	t.Run("generates request ID when missing", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/health", nil)
		got := rec.Header().Get("X-Request-ID")
		// Validate UUID format (8-4-4-4-12 hex digits)
		assert.Len(t, got, 36)
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/health", nil, "X-Request-ID", "my-custom-id")
		assert.Equal(t, "my-custom-id", rec.Header().Get("X-Request-ID"))
	})
}

func TestMetricsEndpoint(t *testing.T) {
	tests := []struct {
		name           string
		config         *Config
		requestPath    string
		expectedStatus int
		expectBody     string
	}{
		{
			name:           "metrics enabled - default endpoint accessible",
			config:         &Config{MetricsEnabled: true, MetricsEndpoint: "/metrics"},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
		{
			name:           "metrics enabled - custom endpoint is cleaned",
			config:         &Config{MetricsEnabled: true, MetricsEndpoint: "/internal/../stats/"},
			requestPath:    "/stats",
			expectedStatus: http.StatusOK,
			expectBody:     "placemap_active_sessions",
		},
		{
			name:           "metrics disabled - endpoint not found",
			config:         &Config{MetricsEnabled: false},
			requestPath:    "/metrics",
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "metrics skip authentication",
			config:         &Config{MetricsEnabled: true, MasterKey: "secret"},
			requestPath:    "/metrics",
			expectedStatus: http.StatusOK,
			expectBody:     "go_goroutines",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.config, nil)
			rec := env.do(t, http.MethodGet, tt.requestPath, nil)
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectBody != "" {
				assert.Contains(t, rec.Body.String(), tt.expectBody)
			}
		})
	}
}

func TestAuthProtectsAPI(t *testing.T) {
	env := newTestEnv(t, &Config{MasterKey: "secret"}, nil)

	rec := env.do(t, http.MethodGet, "/v1/favorites", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "authentication_error", errorType(t, rec))

	rec = env.do(t, http.MethodGet, "/v1/favorites", nil, "Authorization", "Bearer secret")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, &Config{BodySizeLimit: 1024}, nil)
	big := `{"name":"` + strings.Repeat("x", 4096) + `","coordinates":[2.35,48.85]}`
	rec := env.do(t, http.MethodPost, "/v1/favorites", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, nil, map[string]CircuitReporter{"search": stubUpstream("closed")})
		rec := env.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, map[string]any{"search": "closed"}, body["upstreams"])
	})

	t.Run("degraded when a breaker is open", func(t *testing.T) {
		env := newTestEnv(t, nil, map[string]CircuitReporter{
			"search":  stubUpstream("closed"),
			"routing": stubUpstream("open"),
		})
		rec := env.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "degraded", decode(t, rec)["status"])
	})
}

func TestNetworkProfile(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(t, http.MethodGet, "/v1/network-profile", nil,
		"ECT", "2g", "Device-Memory", "1", "X-Hardware-Concurrency", "2")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "slow", body["network"])
	assert.Equal(t, "low", body["device"])
	assert.Equal(t, true, body["limit_concurrency"])

	rec = env.do(t, http.MethodGet, "/v1/network-profile", nil, "ECT", "4g", "Device-Memory", "8", "X-Hardware-Concurrency", "8")
	body = decode(t, rec)
	assert.Equal(t, "fast", body["network"])
	assert.Equal(t, "high", body["device"])
}
