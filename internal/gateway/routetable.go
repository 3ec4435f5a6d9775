package gateway

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"ingressgw/pkg/gwerrors"
)

// ConfigSource re-reads the external configuration and returns the routes
// it currently declares. It is the collaborator behind RouteTable.Reload;
// internal/config's Loader implements it.
type ConfigSource interface {
	LoadRoutes(ctx context.Context) ([]*Route, error)
}

// RouteTable is a keyed store of routes: many concurrent readers, writers
// serialized through a single mutex. Entries are never torn: GetAll only
// ever observes a completed upsert/remove/reload.
type RouteTable struct {
	mu     sync.RWMutex
	routes map[string]*Route
	source ConfigSource
	logger *slog.Logger
}

// NewRouteTable creates an empty table. source may be nil if Reload is
// never called (e.g. in unit tests that only exercise upsert/remove).
func NewRouteTable(source ConfigSource, logger *slog.Logger) *RouteTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &RouteTable{
		routes: make(map[string]*Route),
		source: source,
		logger: logger.With("component", "route_table"),
	}
}

// GetAll returns a snapshot of routes ordered by ascending priority. Safe
// to call concurrently with mutation; the returned slice is never a
// partially-constructed view of an in-flight write.
func (t *RouteTable) GetAll() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Route, 0, len(t.routes))
	for _, r := range t.routes {
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() < out[j].Priority()
	})
	return out
}

// Get returns a single route by id, or a NotFound error.
func (t *RouteTable) Get(routeID string) (*Route, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.routes[routeID]
	if !ok {
		return nil, gwerrors.New(gwerrors.KindNotFound, gwerrors.CodeRouteNotFound, "route not found").
			WithMeta("route_id", routeID)
	}
	return r, nil
}

// Upsert inserts or replaces a route by id. Concurrent upserts are
// serialized by the table's write lock.
func (t *RouteTable) Upsert(route *Route) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.routes[route.ID()] = route
	t.logger.Debug("route upserted", "route_id", route.ID(), "prefix", route.Prefix())
}

// Remove deletes a route by id, or returns a NotFound error.
func (t *RouteTable) Remove(routeID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.routes[routeID]; !ok {
		return gwerrors.New(gwerrors.KindNotFound, gwerrors.CodeRouteNotFound, "route not found").
			WithMeta("route_id", routeID)
	}
	delete(t.routes, routeID)
	t.logger.Debug("route removed", "route_id", routeID)
	return nil
}

// Reload re-reads the external configuration source and atomically swaps
// the table's contents. Concurrent readers observe either the pre- or
// post-reload state, never a partial one, because the swap replaces the
// map reference under the write lock rather than mutating in place.
func (t *RouteTable) Reload(ctx context.Context) error {
	if t.source == nil {
		return gwerrors.New(gwerrors.KindFailure, "routetable.no_source", "route table has no configuration source")
	}

	routes, err := t.source.LoadRoutes(ctx)
	if err != nil {
		t.logger.Error("route table reload failed", "error", err)
		return gwerrors.New(gwerrors.KindFailure, "routetable.reload_failed", "failed to reload routes").WithCause(err)
	}

	next := make(map[string]*Route, len(routes))
	for _, r := range routes {
		next[r.ID()] = r
	}

	t.mu.Lock()
	t.routes = next
	t.mu.Unlock()

	t.logger.Info("route table reloaded", "routes", len(next))
	return nil
}

// Match returns the highest-priority (lowest priority value) route whose
// prefix matches path, or a NotFound error if none does.
func (t *RouteTable) Match(path string) (*Route, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Route
	for _, r := range t.routes {
		if !r.MatchesPath(path) {
			continue
		}
		if best == nil || r.Priority() < best.Priority() || (r.Priority() == best.Priority() && len(r.Prefix()) > len(best.Prefix())) {
			best = r
		}
	}
	if best == nil {
		return nil, gwerrors.New(gwerrors.KindNotFound, "routetable.no_match", "no route matches path").
			WithMeta("path", path)
	}
	return best, nil
}
