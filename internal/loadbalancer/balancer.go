package loadbalancer

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"ingressgw/internal/gateway"
	"ingressgw/internal/health"
	"ingressgw/pkg/gwerrors"
)

// HealthSource is the subset of the health Monitor the balancer needs to
// filter candidates to the healthy subset.
type HealthSource interface {
	GetStats(destination string) health.Snapshot
}

// ConnectionGaugeRecorder is the subset of metrics.Metrics the balancer
// reports the active-connection gauge into.
type ConnectionGaugeRecorder interface {
	SetActiveConnections(destination string, count int64)
}

type noopGaugeRecorder struct{}

func (noopGaugeRecorder) SetActiveConnections(string, int64) {}

// LoadBalancer filters a route's destinations to the healthy subset,
// applies the route's selection strategy, and accounts active connections.
// RoundRobin counters are keyed by route id, active-connection gauges by
// destination; both maps create entries on first use and never delete them.
type LoadBalancer struct {
	health  HealthSource
	metrics ConnectionGaugeRecorder

	mu       sync.RWMutex
	counters map[string]*connCounter // destination -> gauge
	rr       map[string]*atomic.Uint64 // route id -> round-robin cursor
}

// New creates a LoadBalancer backed by the given health source. metrics may
// be nil, in which case the gauge is tracked internally but not reported.
func New(health HealthSource, metrics ConnectionGaugeRecorder) *LoadBalancer {
	if metrics == nil {
		metrics = noopGaugeRecorder{}
	}
	return &LoadBalancer{
		health:   health,
		metrics:  metrics,
		counters: make(map[string]*connCounter),
		rr:       make(map[string]*atomic.Uint64),
	}
}

func (b *LoadBalancer) counterFor(destination string) *connCounter {
	b.mu.RLock()
	c, ok := b.counters[destination]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.counters[destination]; !ok {
		c = &connCounter{}
		b.counters[destination] = c
	}
	return c
}

func (b *LoadBalancer) cursorFor(routeID string) *atomic.Uint64 {
	b.mu.RLock()
	c, ok := b.rr[routeID]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok = b.rr[routeID]; !ok {
		c = &atomic.Uint64{}
		b.rr[routeID] = c
	}
	return c
}

// ActiveConnections returns the current gauge value for destination, for
// admin/metrics views.
func (b *LoadBalancer) ActiveConnections(destination string) int64 {
	return b.counterFor(destination).get()
}

// Select picks a destination for route and increments its connection
// gauge. Callers must call RecordCompletion exactly once per successful
// Select.
func (b *LoadBalancer) Select(route *gateway.Route) (string, error) {
	all := route.Destinations()
	if len(all) == 0 {
		return "", gwerrors.New(gwerrors.KindNotFound, gwerrors.CodeNoDestination, "route has no destinations").
			WithMeta("route_id", route.ID())
	}

	candidates := b.filterHealthy(all)
	if len(candidates) == 0 {
		// Fall back to the full list rather than refusing all traffic.
		candidates = all
	}

	chosen := b.pick(route, candidates)
	count := b.counterFor(chosen).increment()
	b.metrics.SetActiveConnections(chosen, count)
	return chosen, nil
}

// RecordCompletion decrements the chosen destination's connection gauge,
// clamped at zero.
func (b *LoadBalancer) RecordCompletion(destination string) {
	count := b.counterFor(destination).decrement()
	b.metrics.SetActiveConnections(destination, count)
}

func (b *LoadBalancer) filterHealthy(all []string) []string {
	healthy := make([]string, 0, len(all))
	for _, d := range all {
		if b.health.GetStats(d).IsHealthy {
			healthy = append(healthy, d)
		}
	}
	return healthy
}

// pick applies the route's configured strategy to the candidate set.
func (b *LoadBalancer) pick(route *gateway.Route, candidates []string) string {
	switch route.Policy().LoadBalancing {
	case gateway.LeastConnections:
		return b.pickLeastConnections(candidates)
	case gateway.Random:
		return candidates[rand.Intn(len(candidates))]
	case gateway.PowerOfTwoChoices:
		return b.pickPowerOfTwo(candidates)
	case gateway.WeightedRoundRobin:
		// Declared but not implemented; falls back to RoundRobin.
		fallthrough
	case gateway.RoundRobin:
		fallthrough
	default:
		return b.pickRoundRobin(route.ID(), candidates)
	}
}

// pickRoundRobin atomically advances the per-route cursor and indexes into
// the candidate set observed by this call. The modulo is computed against
// len(candidates) as observed right now, so a concurrent reload that
// shrinks the set never indexes out of range.
func (b *LoadBalancer) pickRoundRobin(routeID string, candidates []string) string {
	cursor := b.cursorFor(routeID)
	next := cursor.Add(1)
	return candidates[next%uint64(len(candidates))]
}

// pickLeastConnections returns the candidate with the minimal active
// connection count, ties broken by first occurrence.
func (b *LoadBalancer) pickLeastConnections(candidates []string) string {
	best := candidates[0]
	bestCount := b.counterFor(best).get()
	for _, d := range candidates[1:] {
		count := b.counterFor(d).get()
		if count < bestCount {
			best = d
			bestCount = count
		}
	}
	return best
}

// pickPowerOfTwo samples two indices uniformly with replacement and
// returns the one with fewer active connections, ties to the first pick.
func (b *LoadBalancer) pickPowerOfTwo(candidates []string) string {
	if len(candidates) == 1 {
		return candidates[0]
	}
	i := rand.Intn(len(candidates))
	j := rand.Intn(len(candidates))

	first, second := candidates[i], candidates[j]
	if b.counterFor(second).get() < b.counterFor(first).get() {
		return second
	}
	return first
}
