// Package config loads the gateway's YAML configuration, applies
// environment-variable overrides, validates the result, and drives
// RouteTable.Reload from a file watcher.
package config

import "ingressgw/internal/gateway"

// Config is the top-level configuration document.
type Config struct {
	Gateway Gateway       `yaml:"gateway"`
	Routes  []RouteConfig `yaml:"routes"`
}

// Gateway holds the process-wide options block.
type Gateway struct {
	EnableRateLimiting             bool `yaml:"enableRateLimiting"`
	EnableCircuitBreaker           bool `yaml:"enableCircuitBreaker"`
	EnableCaching                  bool `yaml:"enableCaching"`
	EnableLoadBalancing            bool `yaml:"enableLoadBalancing"`
	EnableAuthenticationForwarding bool `yaml:"enableAuthenticationForwarding"`

	DefaultTimeoutSeconds int `yaml:"defaultTimeoutSeconds"`
	MaxConcurrentRequests int `yaml:"maxConcurrentRequests"`

	RateLimit      RateLimit      `yaml:"rateLimit"`
	CircuitBreaker CircuitBreaker `yaml:"circuitBreaker"`
	Cache          Cache          `yaml:"cache"`
}

// RateLimit is the rate-limit sub-block.
type RateLimit struct {
	Permits       int `yaml:"permits"`
	WindowSeconds int `yaml:"windowSeconds"`
}

// CircuitBreaker is the circuit-breaker sub-block.
type CircuitBreaker struct {
	BreakDurationSeconds int `yaml:"breakDurationSeconds"`
	MinObservations      int `yaml:"minObservations"`
}

// Cache is the response-caching sub-block. Caching itself is not
// implemented by the core (it remains a collaborator's concern); this
// struct only carries the knobs a Policy needs to describe intent.
type Cache struct {
	DurationSeconds int `yaml:"durationSeconds"`
}

// RouteConfig is the on-disk shape of one route, unmarshaled by the
// loader and turned into a *gateway.Route by NewRoute (so the same
// validation chokepoint applies to config-sourced and admin-sourced
// routes alike).
type RouteConfig struct {
	ID                     string   `yaml:"id"`
	Prefix                 string   `yaml:"prefix"`
	Destinations           []string `yaml:"destinations"`
	Priority               int      `yaml:"priority"`
	RequiresAuthentication bool     `yaml:"requiresAuthentication"`
	AllowedRoles           []string `yaml:"allowedRoles"`

	LoadBalancing          string `yaml:"loadBalancing"`
	EnableRateLimiting     bool   `yaml:"enableRateLimiting"`
	RateLimitPermits       int    `yaml:"rateLimitPermits"`
	RateLimitWindowSeconds int    `yaml:"rateLimitWindowSeconds"`
	EnableCircuitBreaker   bool   `yaml:"enableCircuitBreaker"`
	EnableCaching          bool   `yaml:"enableCaching"`
	CacheDurationSeconds   int    `yaml:"cacheDurationSeconds"`
	TimeoutSeconds         int    `yaml:"timeoutSeconds"`
	MaxRetries             int    `yaml:"maxRetries"`
}

// toRoute converts a RouteConfig into a validated *gateway.Route.
func (rc RouteConfig) toRoute() (*gateway.Route, error) {
	policy := gateway.Policy{
		LoadBalancing:          gateway.LoadBalanceStrategy(rc.LoadBalancing),
		EnableRateLimiting:     rc.EnableRateLimiting,
		RateLimitPermits:       rc.RateLimitPermits,
		RateLimitWindowSeconds: rc.RateLimitWindowSeconds,
		EnableCircuitBreaker:   rc.EnableCircuitBreaker,
		EnableCaching:          rc.EnableCaching,
		CacheDurationSeconds:   rc.CacheDurationSeconds,
		TimeoutSeconds:         rc.TimeoutSeconds,
		MaxRetries:             rc.MaxRetries,
	}
	return gateway.NewRoute(rc.ID, rc.Prefix, rc.Destinations, policy, rc.Priority, rc.RequiresAuthentication, rc.AllowedRoles)
}

// DefaultGateway returns a Gateway options block with the documented
// defaults.
func DefaultGateway() Gateway {
	return Gateway{
		DefaultTimeoutSeconds: 30,
		MaxConcurrentRequests: 100,
		RateLimit:             RateLimit{Permits: 100, WindowSeconds: 60},
		CircuitBreaker:        CircuitBreaker{BreakDurationSeconds: 30, MinObservations: 10},
	}
}
