package config

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ingressgw/internal/gateway"
	"ingressgw/pkg/gwerrors"
)

// Loader reads the on-disk YAML document, applies environment overrides,
// validates it, and can produce the route list a gateway.RouteTable
// reloads from. It implements gateway.ConfigSource.
type Loader struct {
	path       string
	envEnabled bool
}

// NewLoader creates a Loader for the file at path with environment
// overrides enabled.
func NewLoader(path string) *Loader {
	return &Loader{path: path, envEnabled: true}
}

// WithEnvVars toggles environment-variable overrides.
func (l *Loader) WithEnvVars(enabled bool) *Loader {
	l.envEnabled = enabled
	return l
}

// Load reads, overrides, and validates the configuration document.
func (l *Loader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, gwerrors.New(gwerrors.KindFailure, "config.read_failed", "failed to read config file").WithCause(err)
	}

	cfg := &Config{Gateway: DefaultGateway()}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, gwerrors.New(gwerrors.KindFailure, "config.parse_failed", "failed to parse config").WithCause(err)
	}

	if l.envEnabled {
		if err := LoadEnv(cfg); err != nil {
			return nil, gwerrors.New(gwerrors.KindFailure, "config.env_failed", "failed to apply environment overrides").WithCause(err)
		}
	}

	if err := l.validate(cfg); err != nil {
		return nil, gwerrors.New(gwerrors.KindValidation, "config.invalid", "invalid configuration").WithCause(err)
	}

	return cfg, nil
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Gateway.DefaultTimeoutSeconds < 1 || cfg.Gateway.DefaultTimeoutSeconds > 300 {
		return fmt.Errorf("gateway.defaultTimeoutSeconds must be in [1,300], got %d", cfg.Gateway.DefaultTimeoutSeconds)
	}
	if cfg.Gateway.MaxConcurrentRequests < 1 || cfg.Gateway.MaxConcurrentRequests > 10000 {
		return fmt.Errorf("gateway.maxConcurrentRequests must be in [1,10000], got %d", cfg.Gateway.MaxConcurrentRequests)
	}
	seen := make(map[string]bool, len(cfg.Routes))
	for i, rc := range cfg.Routes {
		if rc.ID == "" {
			return fmt.Errorf("route %d: id is required", i)
		}
		if seen[rc.ID] {
			return fmt.Errorf("route %d: duplicate id %q", i, rc.ID)
		}
		seen[rc.ID] = true
	}
	return nil
}

// LoadRoutes implements gateway.ConfigSource by loading the file fresh and
// converting every RouteConfig into a validated *gateway.Route.
func (l *Loader) LoadRoutes(_ context.Context) ([]*gateway.Route, error) {
	cfg, err := l.Load()
	if err != nil {
		return nil, err
	}

	routes := make([]*gateway.Route, 0, len(cfg.Routes))
	for _, rc := range cfg.Routes {
		route, err := rc.toRoute()
		if err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, nil
}

var _ gateway.ConfigSource = (*Loader)(nil)
