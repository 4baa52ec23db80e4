// Package httpclient builds the pooled HTTP client shared by the upstream
// place-search and routing providers.
package httpclient

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"placemap/internal/observability"
)

// Config holds transport settings. Zero values take the defaults.
type Config struct {
	// Timeout bounds a whole request, body included
	Timeout               time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	IdleConnTimeout       time.Duration
	// Nominatim and OSRM are few hosts called often, so the per-host pool matters most
	MaxIdleConns        int
	MaxIdleConnsPerHost int
}

// DefaultConfig returns settings tuned for short geocoding and routing calls.
func DefaultConfig() Config {
	return Config{
		Timeout:               30 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.ResponseHeaderTimeout <= 0 {
		c.ResponseHeaderTimeout = d.ResponseHeaderTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.TLSHandshakeTimeout <= 0 {
		c.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = d.IdleConnTimeout
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = d.MaxIdleConns
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	return c
}

// New creates an HTTP client whose transport records every upstream call
// in the placemap_upstream_requests_total counter.
func New(cfg Config) *http.Client {
	cfg = cfg.withDefaults()
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport: &instrumented{next: transport},
		Timeout:   cfg.Timeout,
	}
}

// NewDefault is New(DefaultConfig()).
func NewDefault() *http.Client {
	return New(DefaultConfig())
}

type instrumented struct {
	next http.RoundTripper
}

func (t *instrumented) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	code := "error"
	if err == nil {
		code = strconv.Itoa(resp.StatusCode)
	}
	observability.UpstreamRequestsTotal.WithLabelValues(req.URL.Host, code).Inc()
	return resp, err
}
