// Package health exposes the REPL session state over the standard gRPC health
// protocol so a supervisor can probe a running carp-lsp.
package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/antonkrylov/carplsp/internal/repl"
)

// DefaultService is the service name reported next to the overall ("") status.
const DefaultService = "carp.repl"

type Config struct {
	ListenAddr string
	Service    string
	Logger     *slog.Logger
}

type Server struct {
	cfg Config

	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
}

func New(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(cfg.Service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{cfg: cfg, health: hs}
}

// Start listens and serves until ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = lis

	s.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    60 * time.Second,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	reflection.Register(s.grpcServer)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.cfg.Logger.Error("health server stopped", "err", err)
		}
	}()
	s.cfg.Logger.Info("health server listening", "addr", lis.Addr().String(), "service", s.cfg.Service)
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Observe maps a session state onto the health status. It has the shape of
// repl.Options.OnStateChange.
func (s *Server) Observe(state repl.State, reason error) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == repl.StateReady {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(s.cfg.Service, status)
	if reason != nil {
		s.cfg.Logger.Debug("health status changed", "state", state.String(), "status", status.String(), "reason", reason)
		return
	}
	s.cfg.Logger.Debug("health status changed", "state", state.String(), "status", status.String())
}

func (s *Server) Stop() {
	s.health.Shutdown()
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
