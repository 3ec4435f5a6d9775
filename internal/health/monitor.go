package health

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// probeDeadline bounds each individual HTTP GET /health probe: 5s, linked
// to the caller's cancellation.
const probeDeadline = 5 * time.Second

// Monitor tracks a Stats and a Circuit per destination: IsHealthy (probes
// and updates state), RecordSuccess/RecordFailure (called from the proxy
// completion hook), and GetStats (read-only snapshot).
type Monitor struct {
	client   *http.Client
	grpcProb grpcProber
	logger   *slog.Logger

	mu    sync.RWMutex
	stats map[string]*Stats
	circs map[string]*Circuit
}

// grpcProber is the subset of GRPCChecker Monitor depends on, so tests can
// substitute a fake without dialing anything.
type grpcProber interface {
	Check(ctx context.Context, destination string) error
}

// NewMonitor creates a Monitor using client for probe requests. Pass nil to
// use a default client with keep-alives disabled, so probes to a dead
// destination don't pin a pooled connection. Destinations registered with a
// grpc:// scheme are probed with GRPCChecker instead of an HTTP GET.
func NewMonitor(client *http.Client, logger *slog.Logger) *Monitor {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		client:   client,
		grpcProb: GRPCChecker{},
		logger:   logger.With("component", "health_monitor"),
		stats:    make(map[string]*Stats),
		circs:    make(map[string]*Circuit),
	}
}

// entriesFor returns (creating if absent) the Stats and Circuit for
// destination. Entries are created on first use and never deleted for the
// life of the process: these maps only ever grow.
func (m *Monitor) entriesFor(destination string) (*Stats, *Circuit) {
	m.mu.RLock()
	s, sok := m.stats[destination]
	c, cok := m.circs[destination]
	m.mu.RUnlock()
	if sok && cok {
		return s, c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, sok = m.stats[destination]; !sok {
		s = newStats()
		m.stats[destination] = s
	}
	if c, cok = m.circs[destination]; !cok {
		c = newCircuit()
		m.circs[destination] = c
	}
	return s, c
}

// RecordSuccess records a successful completion for destination, called by
// the proxy pipeline's completion hook.
func (m *Monitor) RecordSuccess(destination string) {
	s, c := m.entriesFor(destination)
	s.RecordSuccess()
	c.onObservation(true, s.Total(), s.Successful())
}

// RecordFailure records a failed completion for destination.
func (m *Monitor) RecordFailure(destination string) {
	s, c := m.entriesFor(destination)
	s.RecordFailure()
	c.onObservation(false, s.Total(), s.Successful())
}

// GetStats returns a read-only snapshot of the destination's HealthStats.
func (m *Monitor) GetStats(destination string) Snapshot {
	s, _ := m.entriesFor(destination)
	return s.Snapshot()
}

// CircuitState returns the current (state, last_state_change) pair for a
// destination, for admin/metrics views.
func (m *Monitor) CircuitState(destination string) (State, time.Time) {
	_, c := m.entriesFor(destination)
	return c.Read()
}

// IsHealthy reads the circuit atomically, skips probing (returning false)
// while Open and within the break duration, transitions Open->HalfOpen and
// probes once the break has elapsed, and otherwise issues the probe (HTTP
// GET, or the gRPC check for grpc:// destinations).
func (m *Monitor) IsHealthy(ctx context.Context, destination string) bool {
	s, c := m.entriesFor(destination)

	if c.beginProbe() == probeSkip {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeDeadline)
	defer cancel()

	healthy := m.probe(probeCtx, destination)
	if healthy {
		s.RecordSuccess()
		c.onObservation(true, s.Total(), s.Successful())
		return true
	}

	s.RecordFailure()
	c.onObservation(false, s.Total(), s.Successful())
	return false
}

// probe dispatches to the HTTP GET <destination>/health call, or to
// GRPCChecker for destinations registered with a grpc:// scheme. Any 2xx (or
// SERVING, for gRPC) is healthy; any other response, a transport error, or a
// timeout is unhealthy.
func (m *Monitor) probe(ctx context.Context, destination string) bool {
	if strings.HasPrefix(destination, "grpc://") {
		return m.grpcProb.Check(ctx, destination) == nil
	}

	url := strings.TrimSuffix(destination, "/") + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		m.logger.Error("failed to build probe request", "destination", destination, "error", err)
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("probe transport error", "destination", destination, "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
