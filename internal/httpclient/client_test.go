package httpclient

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placemap/internal/observability"
)

func TestNew_FillsDefaults(t *testing.T) {
	client := New(Config{Timeout: 2 * time.Second})
	assert.Equal(t, 2*time.Second, client.Timeout)

	transport := client.Transport.(*instrumented).next.(*http.Transport)
	assert.Equal(t, 20*time.Second, transport.ResponseHeaderTimeout)
	assert.Equal(t, 10, transport.MaxIdleConnsPerHost)

	assert.Equal(t, 30*time.Second, NewDefault().Timeout)
}

func TestNew_CountsUpstreamRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	host := mustHost(t, srv.URL)
	okBefore := testutil.ToFloat64(observability.UpstreamRequestsTotal.WithLabelValues(host, "200"))
	missBefore := testutil.ToFloat64(observability.UpstreamRequestsTotal.WithLabelValues(host, "404"))

	client := NewDefault()
	for _, path := range []string{"/search", "/search", "/missing"} {
		resp, err := client.Get(srv.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	assert.Equal(t, okBefore+2, testutil.ToFloat64(observability.UpstreamRequestsTotal.WithLabelValues(host, "200")))
	assert.Equal(t, missBefore+1, testutil.ToFloat64(observability.UpstreamRequestsTotal.WithLabelValues(host, "404")))
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}
