package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ingressgw/internal/gateway"
)

func TestWatcher_ReloadsTableOnFileWrite(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "gateway.yaml")
	if err := os.WriteFile(configPath, []byte(minimalValidConfig), 0o644); err != nil {
		t.Fatalf("failed to write initial config: %v", err)
	}

	table := gateway.NewRouteTable(NewLoader(configPath).WithEnvVars(false), nil)
	if err := table.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error on initial load: %v", err)
	}

	watcher, err := NewWatcher(configPath, table, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	watcher.Start()
	defer watcher.Stop()

	updated := `
gateway:
  defaultTimeoutSeconds: 30
  maxConcurrentRequests: 100
routes:
  - id: r2
    prefix: /other
    destinations:
      - http://backend:9090
`
	if err := os.WriteFile(configPath, []byte(updated), 0o644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := table.Get("r2"); err == nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("expected the route table to reload the new route within the debounce window")
}
