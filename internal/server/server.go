// Package server exposes a registrar node over gRPC. Requests and
// responses are structpb messages; callers authenticate by signing an
// envelope into the request metadata.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/common"
	registrarv1 "github.com/gezibash/arc-registrar/api/registrar/v1"
	"github.com/gezibash/arc-registrar/internal/envelope"
	"github.com/gezibash/arc-registrar/internal/middleware"
	"github.com/gezibash/arc-registrar/internal/node"
	"github.com/gezibash/arc-registrar/internal/observability"
	"github.com/gezibash/arc-registrar/internal/snapshot"
	"github.com/gezibash/arc-registrar/pkg/identity"
	"github.com/gezibash/arc-registrar/pkg/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// Options configures New.
type Options struct {
	Addr     string
	Listener net.Listener // used instead of Addr when set
	Node     *node.Node
	// Signer signs response envelopes; nil leaves responses unsigned.
	Signer identity.Signer
	// Operator may call Advance and Snapshot. Zero means the deployer.
	Operator  common.Address
	Snapshots snapshot.Target
	Obs       *observability.Observability
	MaxSkew   time.Duration

	EnableReflection bool
	ServerOptions    []grpc.ServerOption
}

type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	health     *health.Server
	operator   common.Address
	log        *logging.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Node == nil {
		return nil, errors.New("server: node is required")
	}
	lis := opts.Listener
	if lis == nil {
		var err error
		if lis, err = net.Listen("tcp", opts.Addr); err != nil {
			return nil, err
		}
	}

	var (
		metrics *observability.Metrics
		base    = logging.New(nil)
	)
	if opts.Obs != nil {
		metrics = opts.Obs.Metrics
		base = logging.New(opts.Obs.Logger)
	}
	log := base.WithComponent("server")

	operator := opts.Operator
	if operator == (common.Address{}) {
		operator = opts.Node.Manifest().Deployer
	}

	mw := &middleware.Chain{}
	mw.Pre = append(mw.Pre,
		middleware.Require(accessIs(registrarv1.Signed), requireCaller),
		middleware.Require(accessIs(registrarv1.Operator), requireOperator(operator)),
	)
	pre, post := middleware.Timing(log)
	mw.Pre = append(mw.Pre, pre)
	mw.Post = append(mw.Post, post)

	envOpts := envelope.ServerOptions{
		Signer:  opts.Signer,
		Chain:   mw,
		MaxSkew: opts.MaxSkew,
		Replay:  envelope.NewReplayGuard(opts.MaxSkew, 0),
	}
	serverOpts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			observability.UnaryServerInterceptor(metrics),
			envelope.UnaryServerInterceptor(envOpts),
		),
		grpc.ChainStreamInterceptor(
			observability.StreamServerInterceptor(metrics),
			envelope.StreamServerInterceptor(envOpts),
		),
	}
	serverOpts = append(serverOpts, opts.ServerOptions...)

	grpcServer := grpc.NewServer(serverOpts...)

	svc := &registrarService{
		node:      opts.Node,
		svc:       opts.Node.Service(),
		snapshots: opts.Snapshots,
		log:       log,
	}
	desc, err := registrarv1.ServiceDesc(svc.handlers(), svc.watch)
	if err != nil {
		_ = lis.Close()
		return nil, err
	}
	grpcServer.RegisterService(desc, svc)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(registrarv1.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if opts.EnableReflection {
		reflection.Register(grpcServer)
	}

	return &Server{
		grpcServer: grpcServer,
		listener:   lis,
		health:     hs,
		operator:   operator,
		log:        log,
	}, nil
}

func accessIs(level registrarv1.Access) middleware.Matcher {
	return func(m string) bool { return registrarv1.AccessOf(m) == level }
}

func requireCaller(ctx context.Context) error {
	_, err := sender(ctx)
	return err
}

func requireOperator(operator common.Address) func(context.Context) error {
	return func(ctx context.Context) error {
		from, err := sender(ctx)
		if err != nil {
			return err
		}
		if from != operator {
			return status.Errorf(codes.PermissionDenied, "%s is not the operator", from.Hex())
		}
		return nil
	}
}

func (s *Server) SetServingStatus(st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(registrarv1.ServiceName, st)
}

func (s *Server) Serve() error {
	s.log.Info("serving", "addr", s.Addr(), "operator", s.operator.Hex())
	if err := s.grpcServer.Serve(s.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Operator returns the address allowed to call operator methods.
func (s *Server) Operator() common.Address { return s.operator }

// Stop drains in-flight calls, forcing a stop when ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.SetServingStatus(grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("graceful stop timed out, forcing")
		s.grpcServer.Stop()
		<-done
	}
}

func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}
