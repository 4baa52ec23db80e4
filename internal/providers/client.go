// Package providers implements the place-search and routing collaborators
// over HTTP, plus the geolocation collaborator used when clients report their
// own position.
package providers

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sync"
	"time"

	"placemap/internal/core"
	"placemap/internal/httpclient"
)

// DefaultUserAgent identifies placemap to public geocoding services, which
// reject anonymous clients.
const DefaultUserAgent = "placemap/1.0"

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// ClientConfig holds configuration for an upstream client
type ClientConfig struct {
	// Name identifies the upstream in errors and logs
	Name string

	BaseURL   string
	UserAgent string

	// Retry configuration
	MaxRetries     int           // Maximum number of retry attempts (default: 2)
	InitialBackoff time.Duration // Initial backoff duration (default: 250ms)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 5s)
	BackoffFactor  float64       // Backoff multiplier (default: 2.0)

	// CircuitBreaker, when set, fails fast after repeated upstream failures
	CircuitBreaker *CircuitBreakerConfig
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of failures before opening the circuit
	FailureThreshold int
	// SuccessThreshold is the number of successes needed to close a half-open circuit
	SuccessThreshold int
	// Timeout is how long to wait before letting a probe request through
	Timeout time.Duration
}

// DefaultClientConfig returns the retry and circuit breaker defaults.
func DefaultClientConfig(name, baseURL string) ClientConfig {
	return ClientConfig{
		Name:           name,
		BaseURL:        baseURL,
		UserAgent:      DefaultUserAgent,
		MaxRetries:     2,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		CircuitBreaker: &CircuitBreakerConfig{
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
		},
	}
}

// Client performs GET requests against one upstream with retries and
// circuit breaking.
type Client struct {
	httpClient     *http.Client
	config         ClientConfig
	circuitBreaker *circuitBreaker
}

// NewClient creates a client. A nil httpClient uses the shared defaults.
func NewClient(config ClientConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewDefault()
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	c := &Client{httpClient: httpClient, config: config}
	if config.CircuitBreaker != nil {
		c.circuitBreaker = newCircuitBreaker(
			config.CircuitBreaker.FailureThreshold,
			config.CircuitBreaker.SuccessThreshold,
			config.CircuitBreaker.Timeout,
		)
	}
	return c
}

// BaseURL returns the upstream base URL
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Get fetches path with query and returns the body of a 200 response.
// Network errors, 429 and gateway errors are retried with exponential backoff.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
		return nil, core.NewUpstreamError(c.config.Name+" is temporarily unavailable (circuit open)", nil)
	}

	var lastErr error
	maxAttempts := max(c.config.MaxRetries+1, 1)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.calculateBackoff(attempt)):
			}
		}

		status, body, err := c.doRequest(ctx, path, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.recordFailure()
			lastErr = err
			continue
		}

		if isRetryable(status) {
			c.recordFailure()
			lastErr = c.statusError(status, body)
			continue
		}

		if status != http.StatusOK {
			if status >= 500 {
				c.recordFailure()
			}
			return nil, c.statusError(status, body)
		}

		if c.circuitBreaker != nil {
			c.circuitBreaker.RecordSuccess()
		}
		return body, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return nil, core.NewUpstreamError(c.config.Name+" request failed after retries", nil)
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	target := c.config.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, core.NewUpstreamError("failed to create "+c.config.Name+" request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, core.NewUpstreamError("failed to reach "+c.config.Name+": "+err.Error(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, core.NewUpstreamError("failed to read "+c.config.Name+" response", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) statusError(status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return core.NewUpstreamError(fmt.Sprintf("%s returned status %d: %s", c.config.Name, status, snippet), nil)
}

func (c *Client) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

// calculateBackoff calculates the backoff duration for a given attempt
func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.BackoffFactor, float64(attempt-1))
	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// isRetryable returns true if the status code indicates a transient failure
func isRetryable(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusBadGateway ||
		statusCode == http.StatusGatewayTimeout
}

// circuitBreaker implements a simple circuit breaker pattern
type circuitBreaker struct {
	mu               sync.Mutex
	state            circuitState
	failures         int
	successes        int
	failureThreshold int
	successThreshold int
	timeout          time.Duration
	lastFailure      time.Time
}

type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

func newCircuitBreaker(failureThreshold, successThreshold int, timeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		state:            circuitClosed,
		failureThreshold: max(failureThreshold, 1),
		successThreshold: max(successThreshold, 1),
		timeout:          timeout,
	}
}

// Allow checks if a request should be let through
func (cb *circuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen {
		if time.Since(cb.lastFailure) <= cb.timeout {
			return false
		}
		cb.state = circuitHalfOpen
		cb.successes = 0
	}
	return true
}

// RecordSuccess records a successful request
func (cb *circuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitHalfOpen:
		cb.successes++
		if cb.successes >= cb.successThreshold {
			cb.state = circuitClosed
			cb.failures = 0
		}
	case circuitClosed:
		cb.failures = 0
	}
}

// RecordFailure records a failed request
func (cb *circuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case circuitClosed:
		if cb.failures >= cb.failureThreshold {
			cb.state = circuitOpen
		}
	case circuitHalfOpen:
		cb.state = circuitOpen
		cb.successes = 0
	}
}

// State returns the current circuit state for health reporting
func (cb *circuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// CircuitState reports "closed", "open", "half-open", or "disabled" when the
// client has no circuit breaker.
func (c *Client) CircuitState() string {
	if c.circuitBreaker == nil {
		return "disabled"
	}
	return c.circuitBreaker.State()
}
