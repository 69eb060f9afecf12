package grpcapp

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"

	authgrpc "subtrack/internal/grpc/auth"
)

type App struct {
	logger     *slog.Logger
	gRPCServer *grpc.Server
	port       int
}

// AuthService is what the gRPC layer needs from the session authority.
type AuthService interface {
	authgrpc.Auth
	authgrpc.RequestVerifier
}

func New(
	logger *slog.Logger,
	authService AuthService,
	port int,
	timeout time.Duration,
) *App {
	gRPCServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		authgrpc.LoggingInterceptor(logger),
		authgrpc.TimeoutInterceptor(timeout),
		authgrpc.AuthInterceptor(authService),
	))
	authgrpc.Register(gRPCServer, authService)

	return &App{
		logger:     logger,
		gRPCServer: gRPCServer,
		port:       port,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "grpcapp.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.Int("port", a.port),
	)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.port))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("gRPC server is running", slog.String("address", listener.Addr().String()))

	if err := a.gRPCServer.Serve(listener); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop() {
	const op = "grpcapp.Stop"

	a.logger.With(slog.String("op", op)).
		Info("stopping gRPC server", slog.Int("port", a.port))

	a.gRPCServer.GracefulStop()
}
