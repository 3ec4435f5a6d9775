package config

import "testing"

func TestLoadEnv_OverridesTopLevelAndNestedFields(t *testing.T) {
	t.Setenv("GATEWAY_DEFAULTTIMEOUTSECONDS", "42")
	t.Setenv("GATEWAY_RATELIMIT_PERMITS", "200")
	t.Setenv("GATEWAY_ENABLERATELIMITING", "true")

	cfg := &Config{Gateway: DefaultGateway()}
	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Gateway.DefaultTimeoutSeconds != 42 {
		t.Errorf("DefaultTimeoutSeconds = %d, want 42", cfg.Gateway.DefaultTimeoutSeconds)
	}
	if cfg.Gateway.RateLimit.Permits != 200 {
		t.Errorf("RateLimit.Permits = %d, want 200", cfg.Gateway.RateLimit.Permits)
	}
	if !cfg.Gateway.EnableRateLimiting {
		t.Error("EnableRateLimiting = false, want true")
	}
}

func TestLoadEnv_LeavesFieldsUnsetWhenEnvAbsent(t *testing.T) {
	cfg := &Config{Gateway: DefaultGateway()}
	if err := LoadEnv(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.DefaultTimeoutSeconds != 30 {
		t.Errorf("expected the default to survive when no env var is set, got %d", cfg.Gateway.DefaultTimeoutSeconds)
	}
}

func TestLoadEnv_InvalidIntReturnsError(t *testing.T) {
	t.Setenv("GATEWAY_DEFAULTTIMEOUTSECONDS", "not-a-number")
	cfg := &Config{Gateway: DefaultGateway()}
	if err := LoadEnv(cfg); err == nil {
		t.Error("expected an error for a malformed integer env var")
	}
}
