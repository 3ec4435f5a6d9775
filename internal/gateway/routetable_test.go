package gateway

import (
	"context"
	"sync"
	"testing"
)

type fakeSource struct {
	routes []*Route
	err    error
}

func (f *fakeSource) LoadRoutes(_ context.Context) ([]*Route, error) {
	return f.routes, f.err
}

func mustRoute(t *testing.T, id, prefix string, priority int) *Route {
	t.Helper()
	r, err := NewRoute(id, prefix, []string{"http://backend:8080"}, DefaultPolicy(), priority, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestRouteTable_UpsertGetRemove(t *testing.T) {
	table := NewRouteTable(nil, nil)
	route := mustRoute(t, "r1", "/api", 0)

	table.Upsert(route)

	got, err := table.Get("r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(route) {
		t.Error("Get returned a different route than was upserted")
	}

	if err := table.Remove("r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := table.Get("r1"); err == nil {
		t.Error("expected NotFound after Remove")
	}
}

func TestRouteTable_Remove_NotFound(t *testing.T) {
	table := NewRouteTable(nil, nil)
	if err := table.Remove("missing"); err == nil {
		t.Error("expected an error removing a route that does not exist")
	}
}

func TestRouteTable_GetAll_OrderedByPriority(t *testing.T) {
	table := NewRouteTable(nil, nil)
	table.Upsert(mustRoute(t, "low", "/low", 10))
	table.Upsert(mustRoute(t, "high", "/high", 1))
	table.Upsert(mustRoute(t, "mid", "/mid", 5))

	all := table.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 routes, got %d", len(all))
	}
	if all[0].ID() != "high" || all[1].ID() != "mid" || all[2].ID() != "low" {
		t.Errorf("routes not ordered by ascending priority: %v, %v, %v", all[0].ID(), all[1].ID(), all[2].ID())
	}
}

func TestRouteTable_Match_PrefersLongerPrefixAtEqualPriority(t *testing.T) {
	table := NewRouteTable(nil, nil)
	table.Upsert(mustRoute(t, "general", "/api", 0))
	table.Upsert(mustRoute(t, "specific", "/api/v2", 0))

	route, err := table.Match("/api/v2/users")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.ID() != "specific" {
		t.Errorf("Match() = %q, want %q", route.ID(), "specific")
	}
}

func TestRouteTable_Match_NoneMatches(t *testing.T) {
	table := NewRouteTable(nil, nil)
	table.Upsert(mustRoute(t, "r1", "/api", 0))

	if _, err := table.Match("/other"); err == nil {
		t.Error("expected an error when no route matches the path")
	}
}

func TestRouteTable_Reload_AtomicSwap(t *testing.T) {
	source := &fakeSource{routes: []*Route{mustRoute(t, "r1", "/api", 0)}}
	table := NewRouteTable(source, nil)

	if err := table.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.GetAll()) != 1 {
		t.Fatalf("expected 1 route after first reload")
	}

	source.routes = []*Route{mustRoute(t, "r2", "/other", 0)}
	if err := table.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := table.GetAll()
	if len(all) != 1 || all[0].ID() != "r2" {
		t.Errorf("expected reload to fully replace the table, got %v", all)
	}
}

func TestRouteTable_Reload_NoSource(t *testing.T) {
	table := NewRouteTable(nil, nil)
	if err := table.Reload(context.Background()); err == nil {
		t.Error("expected an error reloading a table with no configuration source")
	}
}

// TestRouteTable_ConcurrentUpsertAndGetAll exercises the table under
// concurrent writers and readers. A torn map read is caught only under race
// detection; the final count check fails if any upsert was lost.
func TestRouteTable_ConcurrentUpsertAndGetAll(t *testing.T) {
	table := NewRouteTable(nil, nil)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			route := mustRoute(t, string(rune('a'+i)), "/p", i)
			table.Upsert(route)
		}(i)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = table.GetAll()
		}()
	}
	wg.Wait()

	if len(table.GetAll()) != 20 {
		t.Errorf("expected 20 routes after concurrent upserts, got %d", len(table.GetAll()))
	}
}
