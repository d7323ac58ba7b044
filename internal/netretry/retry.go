// SPDX-License-Identifier: MPL-2.0

// Package netretry bounds retries of network operations with exponential
// backoff. Deterministic failures (bad configuration, malformed input)
// must not be retried; only the dependency materializer's index and
// artifact fetches go through here.
package netretry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds a retried operation: how many attempts total and the
// backoff before the second attempt. Backoff doubles per attempt.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultPolicy is the materializer's default: three attempts starting
// at half a second.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Backoff: 500 * time.Millisecond}
}

// Do retries op up to p.Attempts times with exponential backoff. It
// checks ctx.Err() between attempts so cancellation is respected
// immediately instead of after a full backoff cycle.
//
// op returns (shouldRetry bool, err error). If shouldRetry is false, err
// is returned immediately (nil on success, non-nil on permanent
// failure). On retry exhaustion, the last error is returned.
func Do(ctx context.Context, p Policy, op func(attempt int) (retry bool, err error)) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
			time.Sleep(p.Backoff * time.Duration(1<<(attempt-1)))
		}

		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}
