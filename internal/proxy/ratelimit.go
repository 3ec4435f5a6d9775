package proxy

import (
	"container/list"
	"context"
	"sync"
	"time"

	"ingressgw/pkg/gwerrors"
)

const (
	defaultPermits    = 100
	defaultWindow     = 60 * time.Second
	maxWaitQueueDepth = 10
)

// WindowStore is the pluggable counter behind the fixed-window limiter.
// The in-memory implementation below is the default; RedisWindowStore
// swaps in a distributed counter for multi-process deployments.
type WindowStore interface {
	// Increment records one admission attempt for key and returns the
	// count observed within the current window, plus the window's
	// remaining duration.
	Increment(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// memoryWindowStore is a process-local fixed-window counter, one window
// per partition key, reset when the window elapses.
type memoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*windowState
}

type windowState struct {
	count int64
	start time.Time
}

func newMemoryWindowStore() *memoryWindowStore {
	return &memoryWindowStore{windows: make(map[string]*windowState)}
}

func (s *memoryWindowStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &windowState{count: 0, start: now}
		s.windows[key] = w
	}
	w.count++
	remaining := window - now.Sub(w.start)
	if remaining < 0 {
		remaining = 0
	}
	return w.count, remaining, nil
}

// waiter is one admission-queue entry; ready is closed when it is this
// waiter's turn to re-check admission.
type waiter struct {
	ready chan struct{}
}

// Limiter is the global fixed-window admission gate partitioned by
// correlation id: up to permits requests per window per partition, with a
// bounded wait queue processed oldest-first for requests that arrive over
// the limit.
type Limiter struct {
	store   WindowStore
	permits int64
	window  time.Duration

	mu    sync.Mutex
	queue *list.List // of *waiter, oldest-first
}

// NewLimiter creates a Limiter with the default 100 requests / 60 s
// admission policy and a 10-request wait queue. Pass a non-nil store to
// use a distributed counter (e.g. RedisWindowStore); nil uses an
// in-memory store.
func NewLimiter(store WindowStore) *Limiter {
	if store == nil {
		store = newMemoryWindowStore()
	}
	return &Limiter{
		store:   store,
		permits: defaultPermits,
		window:  defaultWindow,
		queue:   list.New(),
	}
}

// WithLimits overrides the default permits/window admission policy, for
// callers that load it from configuration.
func (l *Limiter) WithLimits(permits int64, window time.Duration) *Limiter {
	if permits > 0 {
		l.permits = permits
	}
	if window > 0 {
		l.window = window
	}
	return l
}

// Admit blocks until partition is admitted, the wait queue is full (in
// which case it returns a rate-limit error immediately), or ctx is
// cancelled. retryAfter, when non-zero, is the caller's suggested
// Retry-After in seconds.
func (l *Limiter) Admit(ctx context.Context, partition string) (retryAfter int, err error) {
	count, remaining, err := l.store.Increment(ctx, partition, l.window)
	if err != nil {
		return 0, gwerrors.New(gwerrors.KindFailure, "ratelimit.store_error", "rate limit store error").WithCause(err)
	}
	if count <= l.permits {
		return 0, nil
	}

	w, ok := l.enqueue()
	if !ok {
		return int(remaining.Seconds()) + 1, gwerrors.New(gwerrors.KindFailure, "ratelimit.rejected", "rate limit exceeded").
			WithMeta("partition", partition)
	}
	defer l.leave(w)

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-w.ready:
			count, remaining, err = l.store.Increment(ctx, partition, l.window)
			if err != nil {
				return 0, gwerrors.New(gwerrors.KindFailure, "ratelimit.store_error", "rate limit store error").WithCause(err)
			}
			if count <= l.permits {
				return 0, nil
			}
			// Still over the limit; rejoin the back of the queue so
			// requests ahead of us, if any, go first next time the
			// window rolls over.
			w = l.requeue(w)
		}
	}
}

// enqueue appends a waiter to the back of the queue, failing if the queue
// is already at capacity. It arms a timer on the new tail that wakes the
// waiter one full window after it was enqueued; nothing else signals a
// waiter.
func (l *Limiter) enqueue() (*waiter, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queue.Len() >= maxWaitQueueDepth {
		return nil, false
	}
	w := &waiter{ready: make(chan struct{}, 1)}
	l.queue.PushBack(w)
	go l.wakeAfter(w, l.window)
	return w, true
}

func (l *Limiter) requeue(w *waiter) *waiter {
	l.mu.Lock()
	l.removeLocked(w)
	l.mu.Unlock()
	next, ok := l.enqueue()
	if !ok {
		// Queue is full; keep waiting on the original channel rather
		// than dropping the caller.
		return w
	}
	return next
}

func (l *Limiter) wakeAfter(w *waiter, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	<-timer.C
	select {
	case w.ready <- struct{}{}:
	default:
	}
}

func (l *Limiter) leave(w *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(w)
}

func (l *Limiter) removeLocked(w *waiter) {
	for e := l.queue.Front(); e != nil; e = e.Next() {
		if e.Value.(*waiter) == w {
			l.queue.Remove(e)
			return
		}
	}
}
