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


// Package retry provides a reusable retry-with-backoff primitive shared by
// the embedding client, the query-time embedder, and the crawler's fetcher.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Options controls the retry policy.
type Options struct {
	// MaxAttempts is the maximum number of attempts (must be > 0).
	MaxAttempts int

	// BaseDelay is the delay before the second attempt; it doubles on each
	// subsequent retry.
	BaseDelay time.Duration

	// Jitter, when > 0, adds uniform random sleep in [0, Jitter) to every
	// backoff to spread retries from concurrent callers.
	Jitter time.Duration

	// Retryable decides whether an error is worth retrying. A nil predicate
	// retries every error. A non-retryable error aborts immediately and is
	// returned as-is.
	Retryable func(error) bool
}

// Do runs the operation with exponential backoff until it succeeds, exhausts
// MaxAttempts, hits a non-retryable error, or the context is canceled.
// Returns the error from the last attempt on exhaustion.
func Do(ctx context.Context, operation func() error, opts Options) error {
	if opts.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if opts.Retryable != nil && !opts.Retryable(lastErr) {
			return lastErr
		}

		slog.Debug("operation failed, will retry",
			"attempt", attempt, "maxAttempts", opts.MaxAttempts, "error", lastErr)

		if attempt == opts.MaxAttempts {
			break
		}

		// base * 2^(attempt-1) + uniform(0, jitter)
		delay := opts.BaseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		if opts.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(opts.Jitter)))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
