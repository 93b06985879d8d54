package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastFetcher(t *testing.T, skips *SkipLog) *Fetcher {
	t.Helper()
	return NewFetcher(skips,
		WithRetry(3, time.Millisecond, 0),
		WithRateLimit(1000, 100))
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	body, err := fastFetcher(t, nil).Fetch(context.Background(), ts.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetcher_RetriesRequestTimeouts(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
	}))
	defer ts.Close()
	defer close(release)

	f := NewFetcher(nil,
		WithRetry(3, time.Millisecond, 0),
		WithRateLimit(1000, 100),
		WithHTTPClient(&http.Client{Timeout: 30 * time.Millisecond}))

	_, err := f.Fetch(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "request timeouts must use the full retry budget")
}

func TestFetcher_DoesNotRetryNotFound(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := fastFetcher(t, nil).Fetch(context.Background(), ts.URL)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "404 is permanent")
}

func TestFetcher_ExhaustionWritesSkipLog(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	skipPath := filepath.Join(t.TempDir(), "skips.log")
	_, err := fastFetcher(t, NewSkipLog(skipPath)).Fetch(context.Background(), ts.URL)
	require.Error(t, err)

	raw, err := os.ReadFile(skipPath)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	fields := strings.Split(line, "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, ts.URL, fields[0])
	assert.Equal(t, "rate_limit", fields[1])
}

func TestCachedFetcher_FallsBackToSnapshot(t *testing.T) {
	var down atomic.Bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("<html><body>live content</body></html>"))
	}))
	defer ts.Close()

	snapshots, err := NewSnapshotCache(t.TempDir())
	require.NoError(t, err)
	cf := NewCachedFetcher(fastFetcher(t, nil), snapshots)
	ctx := context.Background()

	// Live fetch populates the snapshot store.
	body, err := cf.Fetch(ctx, ts.URL+"/info/customs-office")
	require.NoError(t, err)
	assert.Contains(t, string(body), "live content")

	// With the site down the snapshot is served instead.
	down.Store(true)
	body, err = cf.Fetch(ctx, ts.URL+"/info/customs-office")
	require.NoError(t, err)
	assert.Contains(t, string(body), "live content")

	// No snapshot and no live site: the live error surfaces.
	_, err = cf.Fetch(ctx, ts.URL+"/info/never-fetched")
	assert.Error(t, err)
}

func TestURLSlug(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain path", "https://example.test/info/customs-office", "info-customs-office"},
		{"trailing slash", "https://example.test/info/customs-office/", "info-customs-office"},
		{"root", "https://example.test/", "root"},
		{"uppercase folded", "https://example.test/Info/Customs", "info-customs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, urlSlug(tt.url))
		})
	}
}
