package proxy

import (
	"context"
	"math"
	"math/rand"
	"time"
)

var idempotentMethods = map[string]bool{
	"GET":     true,
	"HEAD":    true,
	"OPTIONS": true,
	"PUT":     true,
	"DELETE":  true,
}

// isIdempotent reports whether method is safe to retry without risking a
// duplicated side effect upstream.
func isIdempotent(method string) bool {
	return idempotentMethods[method]
}

const (
	retryInitialDelay = 50 * time.Millisecond
	retryMaxDelay      = 2 * time.Second
	retryMultiplier    = 2.0
)

// withRetry runs attempt up to policy's MaxRetries additional times, but
// only when method is idempotent, backing off exponentially with jitter
// between attempts. attempt returns a boolean indicating whether the
// failure is worth retrying (e.g. false for a client-context cancellation).
func withRetry(ctx context.Context, method string, maxRetries int, attempt func(context.Context) (retryable bool, err error)) error {
	if !isIdempotent(method) {
		maxRetries = 0
	}

	var lastErr error
	for try := 0; try <= maxRetries; try++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		retryable, err := attempt(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if try >= maxRetries || !retryable {
			return lastErr
		}

		select {
		case <-time.After(backoffDelay(try)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func backoffDelay(attempt int) time.Duration {
	delay := float64(retryInitialDelay) * math.Pow(retryMultiplier, float64(attempt))
	if delay > float64(retryMaxDelay) {
		delay = float64(retryMaxDelay)
	}
	jitter := delay * 0.25
	delay += (rand.Float64()*2 - 1) * jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
