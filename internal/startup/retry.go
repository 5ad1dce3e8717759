package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/chatsync/internal/logger"
)

const (
	initialBackoff = 2 * time.Second
	maxBackoff     = 30 * time.Second
)

// withRetry повторяет connect с удвоением паузы, пока не истечёт maxWait.
// Бэкенд хранилища может подниматься позже сервиса, поэтому первая неудача не фатальна.
func withRetry[T any](ctx context.Context, what string, maxWait time.Duration, connect func(context.Context) (T, error)) (T, error) {
	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		v, err := connect(attemptCtx)
		cancel()
		if err == nil {
			return v, nil
		}
		if time.Now().After(deadline) {
			var zero T
			return zero, fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			var zero T
			return zero, fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
