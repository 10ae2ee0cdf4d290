package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/storykeeper/internal/logging"
)

// OutboxService is the health service name reporting whether the outbox is
// being drained.
const OutboxService = "outbox"

type healthServer struct {
	address string
	health  *health.Server
	logger  logging.Logger
}

func newHealthServer(addr string, l logging.Logger) *healthServer {
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(OutboxService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &healthServer{address: addr, health: h, logger: l.With("module", "grpc_health")}
}

func (s *healthServer) setOutboxServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(OutboxService, st)
}

// Run serves the gRPC health service until ctx is done. An empty address
// disables it.
func (s *healthServer) Run(ctx context.Context) error {
	if s.address == "" {
		<-ctx.Done()
		return nil
	}

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.address, err)
	}

	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, s.health)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC health server", "address", s.address)
	if err := srv.Serve(listen); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
