// Package health exposes the standard gRPC health service so supervisors
// can tell whether a relay is servicing I/O.
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
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// Service is the health service name reported alongside the overall status.
const Service = "simrelay.Relay"

type Config struct {
	ListenAddr string
	Logger     *slog.Logger
}

type Server struct {
	cfg Config

	grpcServer *grpc.Server
	health     *grpchealth.Server

	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
}

func New(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:7338"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		health: grpchealth.NewServer(),
		grpcServer: grpc.NewServer(
			grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
				MinTime:             20 * time.Second,
				PermitWithoutStream: true,
			}),
		),
	}
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)
	s.SetServing(false)
	return s
}

// Start listens on the configured address and serves until ctx is done or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.Serve(ctx, lis)
	return nil
}

// Serve serves on an existing listener in the background.
func (s *Server) Serve(ctx context.Context, lis net.Listener) {
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()
	s.cfg.Logger.Info("health endpoint listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			s.cfg.Logger.Warn("health endpoint stopped", "err", err)
		}
	}()
}

// SetServing flips both the overall and the relay service status.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop marks every service NOT_SERVING and shuts the server down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
	})
}
