package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// newTestFetcher shrinks the retry backoff so transient-failure tests finish
// in milliseconds.
func newTestFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "test-agent"
	}
	f := NewHTTPFetcher(opts)
	f.retry.InitialBackoff = time.Millisecond
	f.retry.MaxBackoff = 5 * time.Millisecond
	return f
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("company,domain\nAcme,acme.com\n"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	body, err := f.Download(context.Background(), srv.URL+"/feed.csv")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "company,domain\nAcme,acme.com\n", string(data))
}

func TestDownloadRejectsUnexpectedStatus(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	_, err := f.Download(context.Background(), srv.URL+"/feed.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
	assert.Equal(t, int32(1), attempts.Load(), "client errors are not worth retrying")
}

func TestDownloadRetriesTransientStatus(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			_, _ = w.Write([]byte("recovered"))
		}
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 3})
	body, err := f.Download(context.Background(), srv.URL+"/feed.csv")
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(data))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDownloadRetriesAfterTooManyRequests(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	body, err := f.Download(context.Background(), srv.URL+"/feed.csv")
	require.NoError(t, err)
	body.Close()
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDownloadGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 2})
	_, err := f.Download(context.Background(), srv.URL+"/feed.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 500")
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDownloadRetriesConnectionErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	feedURL := srv.URL + "/feed.csv"
	srv.Close()

	f := newTestFetcher(HTTPOptions{MaxRetries: 2})
	_, err := f.Download(context.Background(), feedURL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: download")
}

func TestDownloadContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(HTTPOptions{})
	_, err := f.Download(ctx, srv.URL+"/feed.csv")
	require.Error(t, err)
}

func TestDownloadToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("file content here"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	path := filepath.Join(t.TempDir(), "feed.csv")

	n, err := f.DownloadToFile(context.Background(), srv.URL+"/feed.csv", path)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "file content here", string(data))
}

func TestDownloadToFileCreateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	path := filepath.Join(t.TempDir(), "missing", "feed.csv")

	_, err := f.DownloadToFile(context.Background(), srv.URL+"/feed.csv", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: create")
}

func TestDownloadIfChanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("company,domain\n"))
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	ctx := context.Background()

	t.Run("first fetch", func(t *testing.T) {
		body, etag, changed, err := f.DownloadIfChanged(ctx, srv.URL+"/feed.csv", "")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, `"v1"`, etag)

		data, err := io.ReadAll(body)
		body.Close()
		require.NoError(t, err)
		assert.Equal(t, "company,domain\n", string(data))
	})

	t.Run("not modified", func(t *testing.T) {
		body, etag, changed, err := f.DownloadIfChanged(ctx, srv.URL+"/feed.csv", `"v1"`)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Nil(t, body)
		assert.Equal(t, `"v1"`, etag, "the cached tag still identifies the content")
	})

	t.Run("stale tag refetches", func(t *testing.T) {
		body, etag, changed, err := f.DownloadIfChanged(ctx, srv.URL+"/feed.csv", `"v0"`)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, `"v1"`, etag)
		body.Close()
	})
}

func TestDownloadIfChangedUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newTestFetcher(HTTPOptions{})
	_, _, _, err := f.DownloadIfChanged(context.Background(), srv.URL+"/feed.csv", `"v1"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestRateLimiterPacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	host := srv.Listener.Addr().String()
	f := newTestFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{host: rate.NewLimiter(50, 1)},
	})

	start := time.Now()
	for range 3 {
		body, err := f.Download(context.Background(), srv.URL+"/feed.csv")
		require.NoError(t, err)
		body.Close()
	}

	// Burst 1 at 50 req/s forces two 20ms waits after the first request.
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRateLimiterIgnoresOtherHosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	// A zero-burst limiter fails any Wait, so the download only succeeds
	// if the fetcher never consults it for an unrelated host.
	f := newTestFetcher(HTTPOptions{
		RateLimiters: map[string]*rate.Limiter{
			"feeds.vendor.example.com": rate.NewLimiter(rate.Every(time.Hour), 0),
		},
	})

	body, err := f.Download(context.Background(), srv.URL+"/feed.csv")
	require.NoError(t, err)
	body.Close()
}

func TestNewHTTPFetcherDefaults(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, "outreach-cli/1.0", f.opts.UserAgent)
	assert.Equal(t, 30*time.Second, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxRetries)
	assert.Equal(t, 3, f.retry.MaxAttempts)

	transport, ok := f.client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, transport.MaxIdleConnsPerHost)
	assert.Equal(t, 20, transport.MaxConnsPerHost)
}
