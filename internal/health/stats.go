// Package health implements the per-destination health monitor and
// integrated circuit breaker: monotonic HealthStats counters, a three-state
// CircuitState machine, and the Monitor that drives both from proxy
// completion hooks and its own probe cadence.
package health

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds the monotonic per-destination counters. Counters are updated
// with atomic adds so RecordSuccess/RecordFailure never block on a lock;
// IsHealthy and LastHealthCheck are guarded by a small mutex since they
// must be observed together with a freshly computed success rate.
type Stats struct {
	total      atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64

	mu              sync.RWMutex
	lastHealthCheck time.Time
	isHealthy       bool
}

// newStats returns a Stats value that starts healthy (no observations yet
// means nothing has disqualified the destination).
func newStats() *Stats {
	return &Stats{isHealthy: true}
}

// RecordSuccess records a successful observation. IsHealthy becomes true
// immediately.
func (s *Stats) RecordSuccess() {
	s.total.Add(1)
	s.successful.Add(1)

	s.mu.Lock()
	s.lastHealthCheck = time.Now().UTC()
	s.isHealthy = true
	s.mu.Unlock()
}

// RecordFailure records a failed observation. IsHealthy becomes
// success_rate >= 0.5: a single success readmits a destination
// immediately, but a single failure only disqualifies it once the lifetime
// success rate drops below half.
func (s *Stats) RecordFailure() {
	s.total.Add(1)
	s.failed.Add(1)

	rate := s.successRate()

	s.mu.Lock()
	s.lastHealthCheck = time.Now().UTC()
	s.isHealthy = rate >= 0.5
	s.mu.Unlock()
}

// successRate computes successful/total, or 0 when total is 0.
func (s *Stats) successRate() float64 {
	total := s.total.Load()
	if total == 0 {
		return 0
	}
	return float64(s.successful.Load()) / float64(total)
}

// Total returns the lifetime observation count.
func (s *Stats) Total() int64 { return s.total.Load() }

// Successful returns the lifetime success count.
func (s *Stats) Successful() int64 { return s.successful.Load() }

// Failed returns the lifetime failure count.
func (s *Stats) Failed() int64 { return s.failed.Load() }

// SuccessRate returns successful/total, or 0 when total is 0.
func (s *Stats) SuccessRate() float64 { return s.successRate() }

// IsHealthy returns the current health flag.
func (s *Stats) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isHealthy
}

// LastHealthCheck returns the UTC timestamp of the last recorded
// observation.
func (s *Stats) LastHealthCheck() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHealthCheck
}

// Snapshot is an immutable, JSON-friendly copy of Stats for admin views
// and tests.
type Snapshot struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	SuccessRate        float64   `json:"success_rate"`
	LastHealthCheck    time.Time `json:"last_health_check"`
	IsHealthy          bool      `json:"is_healthy"`
}

// Snapshot captures a consistent point-in-time view of the stats. The
// counters are read independently (they are monotonic and only ever grow,
// so a torn read is at worst stale, never inconsistent), while
// isHealthy/lastHealthCheck are read together under the mutex.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	healthy := s.isHealthy
	last := s.lastHealthCheck
	s.mu.RUnlock()

	return Snapshot{
		TotalRequests:      s.total.Load(),
		SuccessfulRequests: s.successful.Load(),
		FailedRequests:     s.failed.Load(),
		SuccessRate:        s.successRate(),
		LastHealthCheck:    last,
		IsHealthy:          healthy,
	}
}
