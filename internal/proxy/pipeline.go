// Package proxy implements the gateway's hot path: the http.Handler that
// ties the route table, load balancer, and health monitor together for
// every inbound request.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"ingressgw/internal/core"
	"ingressgw/internal/gateway"
	"ingressgw/internal/health"
	"ingressgw/internal/loadbalancer"
	"ingressgw/pkg/gwerrors"
)

const defaultTimeout = 30 * time.Second

var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailers":            true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// Balancer is the subset of loadbalancer.LoadBalancer the pipeline needs.
type Balancer interface {
	Select(route *gateway.Route) (string, error)
	RecordCompletion(destination string)
}

// HealthRecorder is the subset of health.Monitor the pipeline needs.
type HealthRecorder interface {
	RecordSuccess(destination string)
	RecordFailure(destination string)
}

// RejectionRecorder is the subset of metrics.Metrics the pipeline reports
// admission rejections into.
type RejectionRecorder interface {
	RecordRateLimitRejected()
}

type noopRejectionRecorder struct{}

func (noopRejectionRecorder) RecordRateLimitRejected() {}

// Pipeline is the http.Handler implementing the full request flow:
// correlation, rate-limit admission, route match, timeout (from the
// matched route's policy), destination selection, header transforms and
// forward, completion accounting.
type Pipeline struct {
	routes   *gateway.RouteTable
	balancer Balancer
	health   HealthRecorder
	limiter  *Limiter
	metrics  RejectionRecorder
	client   *http.Client
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New creates a Pipeline. client is the HTTP client used to reach
// upstreams; pass nil to use http.DefaultClient's transport with
// keep-alives enabled, since destinations are dialed repeatedly. metrics
// may be nil, in which case rejections are not reported.
func New(routes *gateway.RouteTable, balancer *loadbalancer.LoadBalancer, monitor *health.Monitor, limiter *Limiter, metrics RejectionRecorder, client *http.Client, logger *slog.Logger) *Pipeline {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = noopRejectionRecorder{}
	}
	return &Pipeline{
		routes:   routes,
		balancer: balancer,
		health:   monitor,
		limiter:  limiter,
		metrics:  metrics,
		client:   client,
		tracer:   otel.Tracer("ingressgw/proxy"),
		logger:   logger.With("component", "proxy_pipeline"),
	}
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := correlationIDFromHTTP(r)
	ctx, span := p.tracer.Start(r.Context(), "proxy.request")
	defer span.End()

	principal, _ := core.PrincipalFromContext(ctx)
	annotateSpan(span, id, principal)

	// Mirror the correlation id before any response headers are flushed.
	w.Header().Set(correlationHeader, id)

	retryAfter, err := p.limiter.Admit(ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		p.logger.Debug("admission rejected", "correlation_id", id, "error", err)
		p.metrics.RecordRateLimitRejected()
		writeRateLimitResponse(w, retryAfter)
		return
	}

	route, err := p.routes.Match(r.URL.Path)
	if err != nil {
		writeErrorResponse(w, http.StatusNotFound, "RouteTable.NotFound", "no route matches the requested path")
		return
	}

	policy := route.Policy()
	timeout := defaultTimeout
	if policy.TimeoutSeconds > 0 {
		timeout = time.Duration(policy.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := core.NewHTTPRequest(id, r.WithContext(ctx))

	destination, err := p.balancer.Select(route)
	if err != nil {
		writeErrorResponse(w, http.StatusInternalServerError, gwerrors.CodeNoDestination, "route has no available destinations")
		return
	}

	resp, forwardErr := p.forwardWithRetry(ctx, req, destination, policy.MaxRetries, principal)
	p.recordCompletion(destination, forwardErr)

	if forwardErr != nil {
		if ctx.Err() != nil && r.Context().Err() == nil {
			// The route timeout fired, not a client disconnect.
			writeTimeoutResponse(w, timeout)
			return
		}
		if r.Context().Err() != nil {
			// Client disconnected; nothing useful to send back.
			return
		}
		writeErrorResponse(w, http.StatusBadGateway, "Proxy.UpstreamError", forwardErr.Error())
		return
	}
	defer resp.Body.Close()

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func (p *Pipeline) recordCompletion(destination string, err error) {
	p.balancer.RecordCompletion(destination)
	if err != nil {
		p.health.RecordFailure(destination)
		return
	}
	p.health.RecordSuccess(destination)
}

// forwardWithRetry issues the upstream call, retrying idempotent methods
// up to maxRetries times on failure.
func (p *Pipeline) forwardWithRetry(ctx context.Context, req *core.HTTPRequest, destination string, maxRetries int, principal *core.Principal) (*http.Response, error) {
	var resp *http.Response
	err := withRetry(ctx, req.Method(), maxRetries, func(ctx context.Context) (bool, error) {
		r, err := p.forward(ctx, req, destination, principal)
		if err != nil {
			return true, err
		}
		resp = r
		return false, nil
	})
	return resp, err
}

// forward builds and issues the upstream HTTP request, grounded on the
// same responsibilities as a reverse proxy's backend connector: strip
// hop-by-hop headers, set X-Forwarded-*, overwrite identity headers, carry
// the correlation id.
func (p *Pipeline) forward(ctx context.Context, req *core.HTTPRequest, destination string, principal *core.Principal) (*http.Response, error) {
	target, err := buildUpstreamURL(destination, req.Unwrap().URL)
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindFailure, "proxy.bad_upstream_url", "failed to build upstream URL").WithCause(err)
	}

	outReq, err := http.NewRequestWithContext(ctx, req.Method(), target, req.Body())
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindFailure, "proxy.bad_request", "failed to build upstream request").WithCause(err)
	}

	for key, values := range req.Headers() {
		if hopByHopHeaders[key] {
			continue
		}
		for _, v := range values {
			outReq.Header.Add(key, v)
		}
	}
	outReq.Header.Set(correlationHeader, req.ID())
	outReq.Header.Set("X-Forwarded-For", req.RemoteAddr())
	outReq.Header.Set("X-Forwarded-Proto", "http")
	if host := req.Header("Host"); host != "" {
		outReq.Header.Set("X-Forwarded-Host", host)
	}

	identityHeaders := make(map[string][]string)
	applyIdentityHeaders(identityHeaders, principal)
	for k, v := range identityHeaders {
		outReq.Header[k] = v
	}

	resp, err := p.client.Do(outReq)
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindFailure, "proxy.upstream_unreachable", "upstream request failed").WithCause(err)
	}
	return resp, nil
}

func buildUpstreamURL(destination string, reqURL *url.URL) (string, error) {
	base, err := url.Parse(strings.TrimSuffix(destination, "/"))
	if err != nil {
		return "", err
	}
	base.Path = base.Path + reqURL.Path
	base.RawQuery = reqURL.RawQuery
	return base.String(), nil
}

func copyResponseHeaders(dst http.Header, src http.Header) {
	for key, values := range src {
		if hopByHopHeaders[key] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func correlationIDFromHTTP(r *http.Request) string {
	if id := r.Header.Get(correlationHeader); id != "" {
		return id
	}
	return uuid.NewString()
}
