package health

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCChecker probes destinations registered with a grpc:// scheme using
// the standard gRPC health-checking protocol, as an alternate transport
// alongside Monitor's HTTP GET /health probe. NewMonitor installs it, and
// Monitor.probe dispatches to it for every destination with a grpc://
// scheme; all other destinations keep the HTTP path.
type GRPCChecker struct{}

// Check dials destination (host:port, grpc:// prefix stripped) and issues a
// standard health check RPC. A non-SERVING status or any RPC error is
// reported as unhealthy.
func (GRPCChecker) Check(ctx context.Context, destination string) error {
	addr := strings.TrimPrefix(destination, "grpc://")

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		return errUnhealthyGRPC(resp.Status.String())
	}
	return nil
}

type grpcStatusError string

func errUnhealthyGRPC(status string) error { return grpcStatusError(status) }

func (e grpcStatusError) Error() string { return "grpc health status: " + string(e) }
