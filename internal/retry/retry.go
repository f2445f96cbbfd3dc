// Package retry is a bounded retry loop shared by the summarizer and the
// messaging gateway.
package retry

import (
	"context"
	"fmt"
	"time"
)

type Config struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool // linear backoff: attempt N waits N*Delay

	// Permanent reports errors that retrying cannot fix, e.g. an expired
	// messaging session. WithRetry returns them unwrapped right away so
	// callers can match on the error value.
	Permanent func(error) bool
}

// WithRetry runs fn up to MaxAttempts times. Exhaustion wraps the last error;
// a permanent error or a cancelled context ends the loop early.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Permanent != nil && cfg.Permanent(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Delay
		if cfg.Backoff {
			delay = time.Duration(attempt) * cfg.Delay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
