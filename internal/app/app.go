// Package app provides the main application struct for centralized dependency management
// and lifecycle control of the placemap server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"placemap/config"
	"placemap/internal/favorites"
	"placemap/internal/httpclient"
	"placemap/internal/kv"
	"placemap/internal/providers"
	"placemap/internal/routecache"
	"placemap/internal/routing"
	"placemap/internal/server"
	"placemap/internal/session"
	"placemap/internal/spatial"
	"placemap/internal/storage"
	"placemap/internal/ttlcache"
)

// App represents the main application with all its dependencies.
// It provides centralized lifecycle management for all components.
type App struct {
	config *config.Config

	storage  storage.Storage
	repo     kv.Repository
	results  *spatial.Cache
	routes   *routecache.Cache
	geoip    *providers.GeoIP
	sessions *session.Manager
	server   *server.Server

	stopJanitors chan struct{}
	janitors     sync.WaitGroup

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}
	bodyLimit, err := cfg.Server.BodySizeLimitBytes()
	if err != nil {
		return nil, err
	}

	app := &App{
		config:       cfg,
		stopJanitors: make(chan struct{}),
	}

	store, err := storage.New(ctx, storageConfig(cfg.Storage))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	app.storage = store

	repo, err := kv.New(ctx, store, kv.Options{
		RedisPrefix: cfg.Storage.Redis.Prefix,
		RedisTTL:    seconds(cfg.Storage.Redis.TTL),
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to initialize repository: %w", err), app.closeStorage())
	}
	app.repo = repo

	// Upstream collaborators share one pooled HTTP client
	hc := httpclient.New(httpclient.Config{
		Timeout:               seconds(cfg.HTTP.Timeout),
		ResponseHeaderTimeout: seconds(cfg.HTTP.ResponseHeaderTimeout),
	})

	searchClient := providers.NewClient(clientConfig("nominatim", cfg.Providers.SearchURL, cfg.Providers), hc)
	routingClient := providers.NewClient(clientConfig("osrm", cfg.Providers.RoutingURL, cfg.Providers), hc)
	searcher := providers.NewNominatimSearcher(searchClient)
	router := providers.NewOSRMRouter(routingClient)

	var locator server.IPLocator
	if cfg.Providers.GeoIPDatabase != "" {
		geoip, err := providers.OpenGeoIP(cfg.Providers.GeoIPDatabase)
		if err != nil {
			slog.Warn("ip geolocation disabled", "error", err)
		} else {
			app.geoip = geoip
			locator = geoip
		}
	}

	app.results = spatial.New(spatial.Config{
		TTL:                seconds(cfg.Search.CacheTTL),
		PreloadEnabled:     cfg.Search.PreloadEnabled,
		PreloadPrecision:   cfg.Search.PreloadPrecision,
		PreloadTimeout:     seconds(cfg.Search.PreloadTimeout),
		PreloadConcurrency: cfg.Search.PreloadConcurrency,
	}, searcher, slog.Default())
	app.routes = routecache.New()
	app.startJanitor(seconds(cfg.Search.SweepInterval), app.results)
	app.startJanitor(seconds(cfg.Routes.SweepInterval), app.routes)

	deps := session.Deps{
		Searcher:    searcher,
		ResultCache: app.results,
		Repo:        repo,
		Logger:      slog.Default(),
	}
	if cfg.Search.PreloadEnabled {
		deps.Preloader = app.results
	}
	app.sessions = session.NewManager(session.Config{
		IdleTTL:         seconds(cfg.Sessions.IdleTTL),
		SweepInterval:   seconds(cfg.Sessions.SweepInterval),
		AutoSearchDelay: time.Duration(cfg.Sessions.AutoSearchDelayMs) * time.Millisecond,
		SearchPath:      cfg.Sessions.SearchPath,
	}, deps)

	handler := server.NewHandler(server.Deps{
		Sessions:    app.sessions,
		Planner:     routing.NewPlanner(router, app.routes, slog.Default()),
		Favorites:   favorites.NewService(kv.Namespaced(repo, "library")),
		ResultCache: app.results,
		RouteCache:  app.routes,
		Locator:     locator,
		Upstreams: map[string]server.CircuitReporter{
			"search":  searchClient,
			"routing": routingClient,
		},
		Logger: slog.Default(),
	})

	app.logStartupInfo()

	app.server = server.New(handler, &server.Config{
		MasterKey:       cfg.Server.MasterKey,
		MetricsEnabled:  cfg.Metrics.Enabled,
		MetricsEndpoint: cfg.Metrics.Endpoint,
		BodySizeLimit:   bodyLimit,
	})

	return app, nil
}

// Handler returns the HTTP handler of the application.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server on the given address.
// This is a blocking call that returns when the server stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully tears down app components in dependency order.
// Order:
// 1. HTTP server shutdown via server.Shutdown(ctx), honoring the passed context timeout/cancellation.
// 2. Session manager close (unmounts every synchronizer, cancels pending auto searches).
// 3. Cache janitors stop and in-flight preloads are cancelled.
// 4. GeoIP database close.
// 5. Repository and storage connection close.
//
// Shutdown is idempotent and safe for repeated calls; after the first call, subsequent calls are no-ops.
// It attempts every close step, aggregates failures, and returns a joined error if any step fails.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// 1. Shutdown HTTP server first (stop accepting new requests)
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	// 2. Close sessions
	if a.sessions != nil {
		a.sessions.Close()
	}

	// 3. Stop janitors and preloads
	close(a.stopJanitors)
	a.janitors.Wait()
	if a.results != nil {
		if err := a.results.Close(); err != nil {
			errs = append(errs, fmt.Errorf("spatial cache close: %w", err))
		}
	}

	// 4. Close GeoIP database
	if a.geoip != nil {
		if err := a.geoip.Close(); err != nil {
			slog.Error("geoip close error", "error", err)
			errs = append(errs, fmt.Errorf("geoip close: %w", err))
		}
	}

	// 5. Close persistence
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("repository close: %w", err))
		}
	}
	if err := a.closeStorage(); err != nil {
		slog.Error("storage close error", "error", err)
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) closeStorage() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

func (a *App) startJanitor(interval time.Duration, s ttlcache.Sweeper) {
	a.janitors.Add(1)
	go func() {
		defer a.janitors.Done()
		ttlcache.RunJanitor(a.stopJanitors, interval, s)
	}()
}

// logStartupInfo logs the application configuration on startup.
func (a *App) logStartupInfo() {
	cfg := a.config

	// Security warnings
	if cfg.Server.MasterKey == "" {
		slog.Warn("SECURITY WARNING: PLACEMAP_MASTER_KEY not set - API is open to unauthenticated clients",
			"recommendation", "set PLACEMAP_MASTER_KEY environment variable to require a bearer token")
	} else {
		slog.Info("authentication enabled", "mode", "master_key")
	}

	// Metrics configuration
	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	slog.Info("storage configured", "type", cfg.Storage.Type)
	slog.Info("upstreams configured",
		"search", cfg.Providers.SearchURL,
		"routing", cfg.Providers.RoutingURL,
		"ip_geolocation", a.geoip != nil,
	)
	slog.Info("search cache configured",
		"ttl_seconds", cfg.Search.CacheTTL,
		"preload", cfg.Search.PreloadEnabled,
		"preload_precision", cfg.Search.PreloadPrecision,
	)
}

func storageConfig(c config.StorageConfig) storage.Config {
	return storage.Config{
		Type:       c.Type,
		SQLite:     storage.SQLiteConfig{Path: c.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{URL: c.PostgreSQL.URL, MaxConns: c.PostgreSQL.MaxConns},
		MongoDB:    storage.MongoDBConfig{URL: c.MongoDB.URL, Database: c.MongoDB.Database},
		Redis:      storage.RedisConfig{URL: c.Redis.URL},
	}
}

func clientConfig(name, baseURL string, p config.ProvidersConfig) providers.ClientConfig {
	cc := providers.DefaultClientConfig(name, baseURL)
	if p.UserAgent != "" {
		cc.UserAgent = p.UserAgent
	}
	cc.MaxRetries = p.MaxRetries
	return cc
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
