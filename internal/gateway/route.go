// Package gateway holds the route table: the hot-reloadable, keyed store of
// Route definitions that the proxy pipeline matches inbound requests
// against.
package gateway

import (
	"net/url"
	"strings"

	"ingressgw/pkg/gwerrors"
)

// LoadBalanceStrategy selects how the load balancer picks among a route's
// healthy destinations.
type LoadBalanceStrategy string

const (
	RoundRobin         LoadBalanceStrategy = "round_robin"
	LeastConnections   LoadBalanceStrategy = "least_connections"
	Random             LoadBalanceStrategy = "random"
	WeightedRoundRobin LoadBalanceStrategy = "weighted_round_robin" // declared, falls back to RoundRobin
	PowerOfTwoChoices  LoadBalanceStrategy = "power_of_two_choices"
)

// Policy is the mutable set of tuning knobs owned by exactly one Route.
// Policy values are never shared between routes; NewRoute copies the value
// it is given.
type Policy struct {
	LoadBalancing LoadBalanceStrategy

	EnableRateLimiting     bool
	RateLimitPermits       int
	RateLimitWindowSeconds int

	EnableCircuitBreaker bool

	EnableCaching        bool
	CacheDurationSeconds int

	TimeoutSeconds int

	MaxRetries int
}

// DefaultPolicy returns a Policy with the documented defaults: 30s timeout,
// round robin, breaker and rate limiting off.
func DefaultPolicy() Policy {
	return Policy{
		LoadBalancing:  RoundRobin,
		TimeoutSeconds: 30,
	}
}

// Route is an immutable, validated mapping from a URL prefix to an ordered
// list of destinations plus a policy. The only way to obtain a Route is
// NewRoute; downstream components never revalidate one.
type Route struct {
	id                     string
	prefix                 string
	destinations           []string
	policy                 Policy
	priority               int
	requiresAuthentication bool
	allowedRoles           []string
}

// NewRoute is the sole validation chokepoint for Route construction. It
// fails with a *gwerrors.Error of Kind Validation and a stable Code for
// every malformed input; on success the returned Route is frozen (its
// exported accessors return copies of slice fields).
func NewRoute(id, prefix string, destinations []string, policy Policy, priority int, requiresAuth bool, allowedRoles []string) (*Route, error) {
	if strings.TrimSpace(id) == "" {
		return nil, gwerrors.New(gwerrors.KindValidation, gwerrors.CodeEmptyID, "route id must not be empty")
	}
	if strings.TrimSpace(prefix) == "" {
		return nil, gwerrors.New(gwerrors.KindValidation, gwerrors.CodeEmptyPrefix, "route prefix must not be empty")
	}
	if !strings.HasPrefix(prefix, "/") {
		return nil, gwerrors.New(gwerrors.KindValidation, gwerrors.CodeBadPrefix, "route prefix must start with /").
			WithMeta("prefix", prefix)
	}
	if len(destinations) == 0 {
		return nil, gwerrors.New(gwerrors.KindValidation, gwerrors.CodeNoDestinations, "route must declare at least one destination")
	}
	dests := make([]string, len(destinations))
	for i, d := range destinations {
		u, err := url.Parse(d)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, gwerrors.New(gwerrors.KindValidation, gwerrors.CodeBadDestination, "destination is not an absolute URL").
				WithMeta("destination", d).WithCause(err)
		}
		dests[i] = d
	}
	if priority < 0 {
		return nil, gwerrors.New(gwerrors.KindValidation, gwerrors.CodeNegativePriority, "priority must not be negative").
			WithMeta("priority", priority)
	}

	p := policy
	normalizePolicy(&p)

	roles := make([]string, len(allowedRoles))
	copy(roles, allowedRoles)

	return &Route{
		id:                     id,
		prefix:                 prefix,
		destinations:           dests,
		policy:                 p,
		priority:               priority,
		requiresAuthentication: requiresAuth,
		allowedRoles:           roles,
	}, nil
}

// normalizePolicy clamps TimeoutSeconds to [1,300], defaulting to 30, and
// fills in the other policy defaults.
func normalizePolicy(p *Policy) {
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = 30
	}
	if p.TimeoutSeconds > 300 {
		p.TimeoutSeconds = 300
	}
	if p.LoadBalancing == "" {
		p.LoadBalancing = RoundRobin
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
}

func (r *Route) ID() string       { return r.id }
func (r *Route) Prefix() string   { return r.prefix }
func (r *Route) Priority() int    { return r.priority }
func (r *Route) Policy() Policy   { return r.policy }
func (r *Route) RequiresAuthentication() bool { return r.requiresAuthentication }

// Destinations returns a copy of the destination list; callers must not be
// able to mutate the frozen Route through the returned slice.
func (r *Route) Destinations() []string {
	out := make([]string, len(r.destinations))
	copy(out, r.destinations)
	return out
}

// AllowedRoles returns a copy of the allowed-roles set.
func (r *Route) AllowedRoles() []string {
	out := make([]string, len(r.allowedRoles))
	copy(out, r.allowedRoles)
	return out
}

// Equal reports whether two routes share the same identity: their
// (route_id, route_prefix) pair matches, regardless of policy differences.
func (r *Route) Equal(other *Route) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.id == other.id && r.prefix == other.prefix
}

// MatchesPath reports whether p falls under this route's prefix.
func (r *Route) MatchesPath(p string) bool {
	return strings.HasPrefix(p, r.prefix)
}
