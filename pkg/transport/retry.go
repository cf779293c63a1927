package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/TechitoonStudios/TechitoonGuardGo/pkg/logger"
)

// RetryAttempts is the bound for transient external calls
const RetryAttempts = 3

// RetryBaseDelay is the base of the linear backoff between attempts.
// A variable so timing-sensitive tests can shrink it.
var RetryBaseDelay = 2 * time.Second

// WithRetry runs fn up to RetryAttempts times with linear backoff.
// Permission failures are never retried; they are permanent until an external
// state change restores the bot's standing.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsPermission(lastErr) {
			return lastErr
		}
		if attempt == RetryAttempts {
			break
		}
		logger.Info(fmt.Sprintf("Reintentando %s (%d/%d)...", op, attempt, RetryAttempts), "Retry")
		select {
		case <-time.After(time.Duration(attempt) * RetryBaseDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrRetriesExhausted, op, lastErr)
}
