package server

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-checked service besides the overall "" entry.
const ServiceName = "ocr-watcher"

// Health serves grpc.health.v1.Health and reflection for grpcurl.
type Health struct {
	grpc   *grpc.Server
	hs     *health.Server
	logger *slog.Logger
}

func NewHealth(logger *slog.Logger) *Health {
	if logger == nil {
		logger = slog.Default()
	}
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	h := &Health{grpc: grpcServer, hs: hs, logger: logger}
	h.SetServing(false)
	return h
}

// SetServing flips both the overall and the named service status.
func (h *Health) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", st)
	h.hs.SetServingStatus(ServiceName, st)
	h.logger.Debug("health status", "status", st.String())
}

// ListenAndServe serves on addr until ctx is done.
func (h *Health) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		h.logger.Error("health listen failed", "addr", addr, "error", err)
		return err
	}
	return h.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (h *Health) Serve(ctx context.Context, lis net.Listener) error {
	h.logger.Info("gRPC health serving", "addr", lis.Addr().String())
	errCh := make(chan error, 1)
	go func() { errCh <- h.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		h.SetServing(false)
		h.hs.Shutdown()
		h.grpc.GracefulStop()
		<-errCh
		h.logger.Info("gRPC health stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		h.logger.Error("grpc serve", "error", err)
		return err
	}
}
