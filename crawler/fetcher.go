// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/poiesic/termreg/retry"
	"golang.org/x/time/rate"
)

// FetchFunc is the page-retrieval contract shared by discovery and the
// crawl loop, so either can run against the plain or cache-backed fetcher.
type FetchFunc func(ctx context.Context, url string) ([]byte, error)

// statusError marks a non-2xx HTTP response so the retry predicate can
// distinguish server-side failures from client mistakes.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

// Fetcher retrieves pages with rate limiting and bounded retry. Timeouts,
// rate-limit responses, and 5xx statuses are retried with exponential
// backoff; on exhaustion the URL is appended to the skip log and the error
// returned, leaving the caller free to continue.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	retryOpts retry.Options
	skips     *SkipLog
	logger    *slog.Logger
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the underlying HTTP client.
// Default has a 15s timeout.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithRateLimit sets the request rate in requests per second.
// Default is 4 with a burst of 2.
func WithRateLimit(perSecond float64, burst int) FetcherOption {
	return func(f *Fetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithRetry sets the per-URL retry policy.
// Default is 3 attempts starting at 500ms with 250ms jitter.
func WithRetry(maxAttempts int, baseDelay, jitter time.Duration) FetcherOption {
	return func(f *Fetcher) {
		f.retryOpts.MaxAttempts = maxAttempts
		f.retryOpts.BaseDelay = baseDelay
		f.retryOpts.Jitter = jitter
	}
}

// WithFetchLogger sets a custom logger.
func WithFetchLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
	}
}

// NewFetcher creates a fetcher appending abandoned URLs to the skip log.
func NewFetcher(skips *SkipLog, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(4), 2),
		retryOpts: retry.Options{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			Jitter:      250 * time.Millisecond,
			Retryable:   retryableFetch,
		},
		skips:  skips,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With("component", "fetcher")
	return f
}

// Fetch retrieves one URL. On retry exhaustion it records the skip and
// returns the final error.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, func() error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		b, err := f.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		body = b
		return nil
	}, f.retryOpts)

	if err != nil {
		f.logger.Warn("fetch abandoned", "url", url, "err", err)
		if f.skips != nil {
			if logErr := f.skips.Record(url, classifyFetchError(err), err.Error()); logErr != nil {
				f.logger.Warn("failed to write skip log", "err", logErr)
			}
		}
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// retryableFetch retries rate limiting, server errors, and transport-level
// failures including request timeouts. Other HTTP statuses (404 and friends)
// are permanent. An expired caller deadline also surfaces as a timeout here;
// retry.Do notices the dead context before the next attempt and stops.
func retryableFetch(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// Anything else is a transport failure: timeout, refused, reset.
	return true
}

func classifyFetchError(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		if se.code == http.StatusTooManyRequests {
			return "rate_limit"
		}
		if se.code >= 500 {
			return "server_error"
		}
		return "client_error"
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return "timeout"
	}
	return "network"
}

// CachedFetcher tries the live site first and falls back to the offline
// snapshot store. Successful live fetches refresh the snapshot.
type CachedFetcher struct {
	fetcher   *Fetcher
	snapshots *SnapshotCache
	logger    *slog.Logger
}

// NewCachedFetcher combines a fetcher with a snapshot store.
func NewCachedFetcher(fetcher *Fetcher, snapshots *SnapshotCache) *CachedFetcher {
	return &CachedFetcher{
		fetcher:   fetcher,
		snapshots: snapshots,
		logger:    slog.Default().With("component", "fetcher"),
	}
}

// Fetch returns the live page when possible, the snapshot when not, and the
// live error when neither is available.
func (f *CachedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	body, liveErr := f.fetcher.Fetch(ctx, url)
	if liveErr == nil {
		if err := f.snapshots.Store(url, body); err != nil {
			f.logger.Warn("failed to store snapshot", "url", url, "err", err)
		}
		return body, nil
	}

	body, err := f.snapshots.Load(url)
	if err == nil {
		f.logger.Info("serving offline snapshot", "url", url)
		return body, nil
	}
	return nil, liveErr
}
