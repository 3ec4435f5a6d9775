package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"ingressgw/internal/config"
	"ingressgw/internal/gateway"
	"ingressgw/internal/health"
	"ingressgw/internal/loadbalancer"
	"ingressgw/internal/metrics"
	"ingressgw/internal/proxy"
)

var (
	configFile = flag.String("config", "configs/gateway.yaml", "config file path")
	logLevel   = flag.String("log-level", "info", "log level")
	listenAddr = flag.String("listen", ":8080", "address the proxy listens on")
	adminAddr  = flag.String("admin-listen", ":8081", "address the admin/metrics surface listens on")
	redisAddr  = flag.String("redis-addr", "", "optional redis address for a distributed rate-limit window store")
)

func main() {
	flag.Parse()
	setupLogging(*logLevel)
	logger := slog.Default()

	loader := config.NewLoader(*configFile)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	routes := gateway.NewRouteTable(loader, logger)
	if err := routes.Reload(context.Background()); err != nil {
		logger.Error("failed to load initial routes", "error", err)
		os.Exit(1)
	}

	watcher, err := config.NewWatcher(*configFile, routes, logger)
	if err != nil {
		logger.Error("failed to start config watcher", "error", err)
		os.Exit(1)
	}
	watcher.Start()
	defer watcher.Stop()

	metricsHandle := metrics.New()

	monitor := health.NewMonitor(nil, logger)
	balancer := loadbalancer.New(monitor, metricsHandle)
	limiter := proxy.NewLimiter(windowStore(logger)).
		WithLimits(int64(cfg.Gateway.RateLimit.Permits), time.Duration(cfg.Gateway.RateLimit.WindowSeconds)*time.Second)

	pipeline := proxy.New(routes, balancer, monitor, limiter, metricsHandle, nil, logger)

	startHealthLoop(context.Background(), routes, monitor, metricsHandle, logger)

	proxyServer := &http.Server{
		Addr:    *listenAddr,
		Handler: pipeline,
	}
	adminServer := &http.Server{
		Addr:    *adminAddr,
		Handler: adminMux(routes, monitor, balancer),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		logger.Info("proxy listening", "addr", *listenAddr)
		if err := proxyServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("proxy server failed", "error", err)
		}
	}()
	go func() {
		logger.Info("admin surface listening", "addr", *adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	_ = proxyServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)
}

// windowStore builds the rate-limit counter backend: a Redis-backed store
// when -redis-addr is set, otherwise nil (Limiter defaults to in-memory).
func windowStore(logger *slog.Logger) proxy.WindowStore {
	if *redisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: *redisAddr})
	return proxy.NewRedisWindowStore(client, logger)
}

// startHealthLoop polls every destination across every route on a fixed
// interval, reporting each probe outcome into the metrics surface.
func startHealthLoop(ctx context.Context, routes *gateway.RouteTable, monitor *health.Monitor, m *metrics.Metrics, logger *slog.Logger) {
	const interval = 10 * time.Second
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, route := range routes.GetAll() {
					for _, destination := range route.Destinations() {
						healthy := monitor.IsHealthy(ctx, destination)
						m.RecordHealthCheck(destination, healthy)
						state, _ := monitor.CircuitState(destination)
						m.SetCircuitState(destination, int(state))
						logger.Debug("health probe", "destination", destination, "healthy", healthy)
					}
				}
			}
		}
	}()
}

// adminMux serves the read-only route/health views, Prometheus metrics, and
// the gateway process's own liveness endpoint. It is a thin wrapper: the
// CRUD control plane over routes is a collaborator's concern, not the
// core's.
func adminMux(routes *gateway.RouteTable, monitor *health.Monitor, balancer *loadbalancer.LoadBalancer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now(),
		})
	})

	mux.HandleFunc("/routes", func(w http.ResponseWriter, r *http.Request) {
		all := routes.GetAll()
		views := make([]gateway.RouteView, 0, len(all))
		for _, route := range all {
			views = append(views, gateway.NewRouteView(route))
		}
		writeJSON(w, views)
	})

	mux.HandleFunc("/routes/destinations/health", func(w http.ResponseWriter, r *http.Request) {
		seen := make(map[string]bool)
		views := make([]health.DestinationHealthView, 0)
		for _, route := range routes.GetAll() {
			for _, destination := range route.Destinations() {
				if seen[destination] {
					continue
				}
				seen[destination] = true
				views = append(views, monitor.View(destination))
			}
		}
		writeJSON(w, views)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func setupLogging(level string) {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	})))
}
