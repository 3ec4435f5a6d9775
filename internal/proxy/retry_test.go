package proxy

import (
	"context"
	"errors"
	"testing"
)

func TestIsIdempotent(t *testing.T) {
	tests := map[string]bool{
		"GET":    true,
		"HEAD":   true,
		"PUT":    true,
		"DELETE": true,
		"POST":   false,
		"PATCH":  false,
	}
	for method, want := range tests {
		if got := isIdempotent(method); got != want {
			t.Errorf("isIdempotent(%q) = %v, want %v", method, got, want)
		}
	}
}

func TestWithRetry_NonIdempotentMethodNeverRetries(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "POST", 5, func(context.Context) (bool, error) {
		attempts++
		return true, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected the final error to propagate")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a non-idempotent method regardless of MaxRetries", attempts)
	}
}

func TestWithRetry_IdempotentMethodRetriesUpToMaxRetries(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "GET", 2, func(context.Context) (bool, error) {
		attempts++
		return true, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected the final error to propagate")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
}

func TestWithRetry_StopsRetryingWhenNotRetryable(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "GET", 5, func(context.Context) (bool, error) {
		attempts++
		return false, errors.New("non-retryable")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 when attempt reports retryable=false", attempts)
	}
}

func TestWithRetry_SucceedsOnASubsequentAttempt(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), "GET", 3, func(context.Context) (bool, error) {
		attempts++
		if attempts < 2 {
			return true, errors.New("boom")
		}
		return false, nil
	})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestWithRetry_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := withRetry(ctx, "GET", 3, func(context.Context) (bool, error) {
		attempts++
		return true, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected an error from a pre-cancelled context")
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0 when the context is already cancelled", attempts)
	}
}
