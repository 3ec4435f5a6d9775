package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ingressgw/internal/core"
	"ingressgw/internal/gateway"
)

type fakeBalancer struct {
	destination string
	err         error
	completed   []string
}

func (f *fakeBalancer) Select(_ *gateway.Route) (string, error) {
	return f.destination, f.err
}

func (f *fakeBalancer) RecordCompletion(destination string) {
	f.completed = append(f.completed, destination)
}

type fakeHealthRecorder struct {
	successes, failures []string
}

func (f *fakeHealthRecorder) RecordSuccess(destination string) { f.successes = append(f.successes, destination) }
func (f *fakeHealthRecorder) RecordFailure(destination string) { f.failures = append(f.failures, destination) }

func newTestPipeline(t *testing.T, routes *gateway.RouteTable, balancer Balancer, health HealthRecorder) *Pipeline {
	t.Helper()
	p := New(routes, nil, nil, NewLimiter(nil), nil, nil, nil)
	p.balancer = balancer
	p.health = health
	return p
}

func mustRoute(t *testing.T, id, prefix string, timeoutSeconds int) *gateway.Route {
	t.Helper()
	policy := gateway.DefaultPolicy()
	policy.TimeoutSeconds = timeoutSeconds
	r, err := gateway.NewRoute(id, prefix, []string{"http://placeholder"}, policy, 0, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return r
}

func TestPipeline_NoMatchingRoute_Returns404(t *testing.T) {
	routes := gateway.NewRouteTable(nil, nil)
	p := newTestPipeline(t, routes, &fakeBalancer{}, &fakeHealthRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestPipeline_NoDestination_Returns500(t *testing.T) {
	routes := gateway.NewRouteTable(nil, nil)
	routes.Upsert(mustRoute(t, "r1", "/api", 30))
	balancer := &fakeBalancer{err: errNoDestination{}}
	p := newTestPipeline(t, routes, balancer, &fakeHealthRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func TestPipeline_ForwardsSuccessfully(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-From-Upstream", "yes")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	routes := gateway.NewRouteTable(nil, nil)
	routes.Upsert(mustRoute(t, "r1", "/api", 30))
	balancer := &fakeBalancer{destination: upstream.URL}
	health := &fakeHealthRecorder{}
	p := newTestPipeline(t, routes, balancer, health)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want %q", rec.Body.String(), "ok")
	}
	if len(health.successes) != 1 {
		t.Errorf("expected one recorded success, got %d", len(health.successes))
	}
	if len(balancer.completed) != 1 {
		t.Errorf("expected RecordCompletion to be called once, got %d", len(balancer.completed))
	}
}

func TestPipeline_MirrorsCorrelationID(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	routes := gateway.NewRouteTable(nil, nil)
	routes.Upsert(mustRoute(t, "r1", "/api", 30))
	p := newTestPipeline(t, routes, &fakeBalancer{destination: upstream.URL}, &fakeHealthRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set(correlationHeader, "fixed-correlation-id")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if got := rec.Header().Get(correlationHeader); got != "fixed-correlation-id" {
		t.Errorf("correlation header = %q, want the inbound value to be mirrored back", got)
	}
}

func TestPipeline_GeneratesCorrelationIDWhenAbsent(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(correlationHeader) == "" {
			t.Error("expected the pipeline to set a correlation id on the forwarded request")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	routes := gateway.NewRouteTable(nil, nil)
	routes.Upsert(mustRoute(t, "r1", "/api", 30))
	p := newTestPipeline(t, routes, &fakeBalancer{destination: upstream.URL}, &fakeHealthRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Header().Get(correlationHeader) == "" {
		t.Error("expected a generated correlation id on the response when none was supplied")
	}
}

func TestPipeline_RouteTimeout_Returns504(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(1200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	routes := gateway.NewRouteTable(nil, nil)
	routes.Upsert(mustRoute(t, "r1", "/api", 1)) // route's own context deadline fires, not the client
	balancer := &fakeBalancer{destination: upstream.URL}
	health := &fakeHealthRecorder{}
	p := newTestPipeline(t, routes, balancer, health)

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set(correlationHeader, "timeout-correlation-id")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
	if got := rec.Header().Get(correlationHeader); got != "timeout-correlation-id" {
		t.Errorf("correlation header = %q, want it preserved on a timeout response", got)
	}
	if len(health.failures) != 1 {
		t.Errorf("expected one recorded failure, got %d", len(health.failures))
	}

	var body problemBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode problem+json body: %v", err)
	}
	if body.Timeout != 1 {
		t.Errorf("body.Timeout = %v, want 1 (seconds)", body.Timeout)
	}
	if body.Timestamp == "" {
		t.Error("expected a non-empty timestamp extension on the timeout body")
	}
}

func TestPipeline_ForwardsIdentityHeadersFromContextPrincipal(t *testing.T) {
	var gotUserID, gotTenantID string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = r.Header.Get("X-User-Id")
		gotTenantID = r.Header.Get("X-Tenant-Id")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	routes := gateway.NewRouteTable(nil, nil)
	routes.Upsert(mustRoute(t, "r1", "/api", 30))
	p := newTestPipeline(t, routes, &fakeBalancer{destination: upstream.URL}, &fakeHealthRecorder{})

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	principal := &core.Principal{UserID: "u1", TenantID: "t1"}
	req = req.WithContext(core.WithPrincipal(req.Context(), principal))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotUserID != "u1" {
		t.Errorf("upstream X-User-Id = %q, want %q", gotUserID, "u1")
	}
	if gotTenantID != "t1" {
		t.Errorf("upstream X-Tenant-Id = %q, want %q", gotTenantID, "t1")
	}
}

type errNoDestination struct{}

func (errNoDestination) Error() string { return "no destination available" }
