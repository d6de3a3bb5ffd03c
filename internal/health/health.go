// Package health exposes the capture engine's state through the gRPC
// health checking protocol.
package health

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/GriffinCanCode/slidecapture/internal/capture"
	apperrors "github.com/GriffinCanCode/slidecapture/internal/errors"
	"github.com/GriffinCanCode/slidecapture/internal/trace"
)

// Service is the per-service name reported alongside the overall status.
const Service = "slidecapture.Capture"

// Reporter mirrors engine status changes into a health server. A timed-out
// search makes the service NOT_SERVING until the operator acknowledges it.
type Reporter struct {
	capture.NopObserver
	server *health.Server
}

func NewReporter() *Reporter {
	r := &Reporter{server: health.NewServer()}
	r.set(healthpb.HealthCheckResponse_SERVING)
	return r
}

// Register adds the health service to s.
func (r *Reporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Shutdown marks everything NOT_SERVING and ignores later updates.
func (r *Reporter) Shutdown() { r.server.Shutdown() }

func (r *Reporter) StatusChanged(sessionID string, _, to capture.Status) {
	st := ServingStatus(to)
	slog.Debug("health status", "session_id", sessionID, "capture_status", to, "health", st)
	r.set(st)
}

func (r *Reporter) set(st healthpb.HealthCheckResponse_ServingStatus) {
	r.server.SetServingStatus("", st)
	r.server.SetServingStatus(Service, st)
}

// ServingStatus maps a capture status to a health status.
func ServingStatus(s capture.Status) healthpb.HealthCheckResponse_ServingStatus {
	if s == capture.TimedOut {
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	return healthpb.HealthCheckResponse_SERVING
}

// Check dials addr and asks for the capture service's status.
func Check(ctx context.Context, addr string, timeout time.Duration) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	)
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, apperrors.Wrap(err, apperrors.Unavailable, "dial health")
	}
	defer conn.Close()

	ctx, _ = trace.EnsureContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: Service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, apperrors.FromGRPCError(err)
	}
	return resp.GetStatus(), nil
}
