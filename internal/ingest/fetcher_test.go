package ingest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hello " + r.Header.Get("X-Source") + "</body></html>"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPFetcher(t *testing.T) {
	srv := newTestServer(t)
	f := NewHTTPFetcher(HTTPFetcherConfig{})
	ctx := context.Background()

	doc, err := f.Fetch(ctx, srv.URL+"/ok", FetchOptions{Headers: map[string]string{"X-Source": "capetown"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Contains(t, string(doc.Body), "hello capetown")
	assert.Contains(t, doc.ContentType, "text/html")

	_, err = f.Fetch(ctx, srv.URL+"/missing", FetchOptions{})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)

	_, err = f.Fetch(ctx, srv.URL+"/slow", FetchOptions{Timeout: 50 * time.Millisecond})
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestHTTPFetcherBodyLimit(t *testing.T) {
	srv := newTestServer(t)
	f := NewHTTPFetcher(HTTPFetcherConfig{MaxBodyBytes: 10})

	_, err := f.Fetch(context.Background(), srv.URL+"/ok", FetchOptions{})
	assert.ErrorIs(t, err, errBodyTooLarge)
}

func TestHTTPFetcherBlocksPrivateNetworks(t *testing.T) {
	srv := newTestServer(t)
	f := NewHTTPFetcher(HTTPFetcherConfig{BlockPrivateNetworks: true})

	_, err := f.Fetch(context.Background(), srv.URL+"/ok", FetchOptions{})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "blocked private IP")
}

func TestCollyFetcher(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher(false)
	ctx := context.Background()

	doc, err := f.Fetch(ctx, srv.URL+"/ok", FetchOptions{Headers: map[string]string{"X-Source": "drakenstein"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Contains(t, string(doc.Body), "hello drakenstein")

	_, err = f.Fetch(ctx, srv.URL+"/missing", FetchOptions{})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestCollyFetcherPacesConcurrentFetches(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher(false)
	opts := FetchOptions{RateLimitRPS: 5}

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			_, err := f.Fetch(context.Background(), srv.URL+"/ok", opts)
			return err
		})
	}
	require.NoError(t, g.Wait())

	// One token up front, then one every 200ms.
	assert.GreaterOrEqual(t, time.Since(start), 350*time.Millisecond)
	assert.Same(t, f.limiters.get(srv.URL+"/ok", 5), f.limiters.get(srv.URL+"/missing", 5))
}

func TestCollyFetcherRateLimitHonoursContext(t *testing.T) {
	srv := newTestServer(t)
	f := NewCollyFetcher(false)
	opts := FetchOptions{RateLimitRPS: 0.1}

	_, err := f.Fetch(context.Background(), srv.URL+"/ok", opts)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL+"/ok", opts)
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"192.168.0.10", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"::1", true},
		{"196.21.45.10", false},
		{"8.8.8.8", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isPrivateIP(net.ParseIP(tt.ip)), tt.ip)
	}
}

func TestSafeCheckRedirect(t *testing.T) {
	req := func(raw string) *http.Request {
		r, err := http.NewRequest(http.MethodGet, raw, nil)
		require.NoError(t, err)
		return r
	}

	assert.NoError(t, safeCheckRedirect(req("https://www.capetown.gov.za/tenders"), nil))
	assert.Error(t, safeCheckRedirect(req("http://localhost/admin"), nil))
	assert.Error(t, safeCheckRedirect(req("http://10.0.0.5/"), nil))
	assert.Error(t, safeCheckRedirect(req("ftp://example.com/file"), nil))
	assert.Error(t, safeCheckRedirect(req("https://www.capetown.gov.za/"), make([]*http.Request, 10)))
}
