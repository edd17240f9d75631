// Package health serves the standard gRPC health protocol for the portal,
// reporting NOT_SERVING while the database is unreachable.
package health

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the service name reported alongside the overall status.
const ServiceName = "portal.core"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server wraps a gRPC server exposing grpc.health.v1.Health.
type Server struct {
	grpc     *grpc.Server
	health   *grpchealth.Server
	db       Pinger
	timeout  time.Duration
	logger   *slog.Logger
	mu       sync.Mutex
	lastGood *bool
}

// NewServer creates a health server. The status starts as NOT_SERVING until
// the first Check.
func NewServer(db Pinger, timeout time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &Server{
		grpc:    grpc.NewServer(),
		health:  grpchealth.NewServer(),
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	return s
}

// Check pings the database once and updates the served status.
func (s *Server) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.db.Ping(ctx)
	ok := err == nil

	s.mu.Lock()
	changed := s.lastGood == nil || *s.lastGood != ok
	s.lastGood = &ok
	s.mu.Unlock()

	if ok {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		if ok {
			s.logger.Info("Health status changed", "status", "serving")
		} else {
			s.logger.Warn("Health status changed", "status", "not_serving", "error", err)
		}
	}
	return ok
}

// Watch runs Check every interval until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Serve accepts gRPC connections on lis until Shutdown.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("gRPC health server starting", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Shutdown() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
