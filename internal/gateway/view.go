package gateway

// PolicyView is the admin-facing projection of a Policy: the load-balancing
// strategy is rendered as its string name rather than its internal type.
type PolicyView struct {
	LoadBalancing       string `json:"load_balancing"`
	EnableRateLimiting  bool   `json:"enable_rate_limiting"`
	RateLimitPermits    int    `json:"rate_limit_permits,omitempty"`
	EnableCircuitBreaker bool  `json:"enable_circuit_breaker"`
	EnableCaching       bool   `json:"enable_caching"`
	TimeoutSeconds      int    `json:"timeout_seconds"`
}

// RouteView is the field-for-field shape the admin/control-plane surface
// reads back for a route.
type RouteView struct {
	RouteID                string      `json:"route_id"`
	RoutePrefix            string      `json:"route_prefix"`
	Destinations           []string    `json:"destinations"`
	Priority               int         `json:"priority"`
	RequiresAuthentication bool        `json:"requires_authentication"`
	AllowedRoles           []string    `json:"allowed_roles,omitempty"`
	Policy                 PolicyView  `json:"policy"`
}

// NewRouteView projects a Route into its admin view.
func NewRouteView(r *Route) RouteView {
	p := r.Policy()
	return RouteView{
		RouteID:                r.ID(),
		RoutePrefix:            r.Prefix(),
		Destinations:           r.Destinations(),
		Priority:               r.Priority(),
		RequiresAuthentication: r.RequiresAuthentication(),
		AllowedRoles:           r.AllowedRoles(),
		Policy: PolicyView{
			LoadBalancing:        string(p.LoadBalancing),
			EnableRateLimiting:   p.EnableRateLimiting,
			RateLimitPermits:     p.RateLimitPermits,
			EnableCircuitBreaker: p.EnableCircuitBreaker,
			EnableCaching:        p.EnableCaching,
			TimeoutSeconds:       p.TimeoutSeconds,
		},
	}
}
