package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/database"
)

// Module exposes the gRPC server and lifecycle hooks to Fx.
var Module = fx.Module("grpc_server",
	fx.Provide(health.NewServer, NewServer),
	fx.Invoke(Run),
)

// OrdersService is the health check name reported for the order API. It
// follows the reachability of the order store.
const OrdersService = "orderdesk.orders"

const storeCheckInterval = 15 * time.Second

// NewServer builds a gRPC server that logs every call and serves the standard
// health service.
func NewServer(logger *zap.Logger, hs *health.Server) *grpc.Server {
	logger = logger.Named("grpc")
	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			start := time.Now()
			resp, err := handler(ctx, req)
			logCall(logger, info.FullMethod, start, err)
			return resp, err
		}),
		grpc.ChainStreamInterceptor(func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
			start := time.Now()
			err := handler(srv, ss)
			logCall(logger, info.FullMethod, start, err)
			return err
		}),
	)
	healthpb.RegisterHealthServer(server, hs)
	return server
}

func logCall(logger *zap.Logger, method string, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.String("code", status.Code(err).String()),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		logger.Warn("grpc call failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Debug("grpc call", fields...)
}

// Pinger is a dependency whose reachability decides the order API's health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunParams are the dependencies of Run. Store is absent when the process
// does not own an order store.
type RunParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Server    *grpc.Server
	Health    *health.Server
	Logger    *zap.Logger
	Store     *database.Connections `optional:"true"`
}

// Run binds the gRPC server to the configured address and keeps the order
// API's health status current while it runs.
func Run(p RunParams) {
	addr := fmt.Sprintf("%s:%d", p.Config.GRPC.Host, p.Config.GRPC.Port)
	logger := p.Logger
	var (
		listener net.Listener
		stop     context.CancelFunc
		watching = make(chan struct{})
	)

	var store Pinger
	if p.Store != nil {
		store = p.Store
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen grpc: %w", err)
			}
			listener = ln
			p.Health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
			initial := checkStore(ctx, p.Health, store, logger)

			var watchCtx context.Context
			watchCtx, stop = context.WithCancel(context.Background())
			go func() {
				defer close(watching)
				watchStore(watchCtx, p.Health, store, initial, storeCheckInterval, logger)
			}()

			logger.Info("starting gRPC server", zap.String("addr", addr))
			go func() {
				if err := p.Server.Serve(listener); err != nil {
					logger.Fatal("grpc server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("stopping gRPC server")
			stop()
			<-watching
			p.Health.Shutdown()

			stopped := make(chan struct{})
			go func() {
				p.Server.GracefulStop()
				close(stopped)
			}()
			select {
			case <-ctx.Done():
				p.Server.Stop()
				return ctx.Err()
			case <-stopped:
				return nil
			}
		},
	})
}

// checkStore sets the order API's status from one ping and returns it.
func checkStore(ctx context.Context, hs *health.Server, store Pinger, logger *zap.Logger) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if store != nil {
		if err := store.Ping(ctx); err != nil {
			logger.Warn("order store unreachable", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	hs.SetServingStatus(OrdersService, st)
	return st
}

func watchStore(ctx context.Context, hs *health.Server, store Pinger, last healthpb.HealthCheckResponse_ServingStatus, interval time.Duration, logger *zap.Logger) {
	if store == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if st := checkStore(ctx, hs, store, logger); st != last {
				logger.Info("order API health changed", zap.Stringer("status", st))
				last = st
			}
		}
	}
}
