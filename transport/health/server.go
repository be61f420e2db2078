// Package health exposes the standard gRPC health service so orchestrators
// can check the gateway without speaking WebSocket.
package health

import (
	"chat-gateway/errors"
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"net"

	grpc3 "github.com/mama165/sdk-go/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the per-service entry reported next to the overall ("") status.
const ServiceName = "chat.gateway"

type Server struct {
	log    *slog.Logger
	grpc   *grpc.Server
	health *health.Server
}

func NewServer(log *slog.Logger) *Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc3.UnaryLoggingInterceptor(log)))
	h := health.NewServer()
	healthpb.RegisterHealthServer(s, h)
	reflection.Register(s)

	h.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return &Server{log: log, grpc: s, health: h}
}

// Serve blocks until the listener fails or Stop is called.
func (s *Server) Serve(listener net.Listener) error {
	s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
	for serviceName := range s.grpc.GetServiceInfo() {
		s.log.Debug("gRPC exposed service", "name", serviceName)
	}
	if err := s.grpc.Serve(listener); err != nil && !goerrors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("gRPC health server: %w", err)
	}
	return nil
}

// Draining flips every status to NOT_SERVING while sessions are being closed.
func (s *Server) Draining() {
	s.log.Info("Health switched to NOT_SERVING", "reason", errors.ErrShuttingDown)
	s.health.Shutdown()
}

// Stop waits for in-flight RPCs, or gives up when ctx expires.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}
