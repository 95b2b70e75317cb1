package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/miradorstack/mirador-ews/internal/config"
	ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"
)

var errNotInitialised = errors.New("grpc server not initialised")

// Server owns the gRPC listener for the EarlyWarning service together with its
// health and reflection endpoints.
type Server struct {
	cfg      config.ServerConfig
	srv      *grpc.Server
	health   *health.Server
	listener net.Listener
}

// NewServer listens on cfg.Address and registers service. Extra options are
// appended after the tracing and Prometheus instrumentation.
func NewServer(cfg config.ServerConfig, service ewsv1.EarlyWarningServer, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}

	srv := grpc.NewServer(append(instrumentation(), opts...)...)
	ewsv1.RegisterEarlyWarningServer(srv, service)
	grpc_prometheus.Register(srv)

	// Health answers for the whole server ("") and for the EarlyWarning
	// service by name, so grpc_health_probe and k8s probes can target either.
	hs := health.NewServer()
	for _, name := range []string{"", ewsv1.ServiceName} {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	healthpb.RegisterHealthServer(srv, hs)

	// Reflection lets grpcurl list the service; the JSON codec is negotiated
	// per call, so reflection and health keep using the proto codec.
	reflection.Register(srv)

	return &Server{cfg: cfg, srv: srv, health: hs, listener: lis}, nil
}

func instrumentation() []grpc.ServerOption {
	grpc_prometheus.EnableHandlingTimeHistogram()
	return []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.ChainStreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
}

// Start blocks serving requests. It returns nil once Shutdown has stopped the server.
func (s *Server) Start() error {
	if s.srv == nil || s.listener == nil {
		return errNotInitialised
	}
	return s.srv.Serve(s.listener)
}

// Shutdown flips health to NOT_SERVING so load balancers drain, then waits for
// in-flight RPCs until ctx expires and force-closes whatever remains.
func (s *Server) Shutdown(ctx context.Context) {
	if s.srv == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.srv.GracefulStop()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.srv.Stop()
		<-done
	}
}

// Address returns the bound address, which differs from the configured one
// when listening on port 0.
func (s *Server) Address() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GracefulTimeout is how long Shutdown should be given to drain.
func (s *Server) GracefulTimeout() time.Duration {
	return s.cfg.GracefulTimeout
}
