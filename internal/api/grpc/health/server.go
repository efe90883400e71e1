// Package health exposes the agent state through the standard gRPC health
// checking protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/logger"
)

// PipelineService reports the outcome of the last pipeline run.
const PipelineService = "heat-sentinel.pipeline"

// Reporter translates loop events into health statuses.
type Reporter struct {
	server *health.Server
}

// NewReporter creates a reporter; every service is NOT_SERVING until Start.
func NewReporter() *Reporter {
	r := &Reporter{server: health.NewServer()}
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	r.server.SetServingStatus(PipelineService, healthpb.HealthCheckResponse_NOT_SERVING)

	return r
}

// Register adds the health service to s.
func (r *Reporter) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, r.server)
}

// Start marks the agent as serving.
func (r *Reporter) Start() {
	r.server.Resume()
	r.server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	r.server.SetServingStatus(PipelineService, healthpb.HealthCheckResponse_SERVING)
}

// Stop marks every service NOT_SERVING and ignores later updates.
func (r *Reporter) Stop() {
	r.server.Shutdown()
}

// ObserveReading does nothing; readings do not affect health.
func (r *Reporter) ObserveReading(sentinel.Reading) {}

// ObserveSensorFailure marks the pipeline NOT_SERVING.
func (r *Reporter) ObserveSensorFailure(error) {
	r.server.SetServingStatus(PipelineService, healthpb.HealthCheckResponse_NOT_SERVING)
}

// ObserveState does nothing; every state is healthy.
func (r *Reporter) ObserveState(sentinel.State) {}

// ObserveCycle reflects the cycle outcome in the pipeline status.
func (r *Reporter) ObserveCycle(report *sentinel.CycleReport) {
	status := healthpb.HealthCheckResponse_SERVING
	if !report.Succeeded() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}

	r.server.SetServingStatus(PipelineService, status)
}

// Serve runs a gRPC server with the health service on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, r *Reporter) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	return serve(ctx, lis, r)
}

func serve(ctx context.Context, lis net.Listener, r *Reporter) error {
	grpcServer := grpc.NewServer()
	r.Register(grpcServer)

	logger.InfoKV(ctx, "Health server listening", "listen_address", lis.Addr().String())

	// Done is closed after GracefulStop so Serve returns only once the
	// server has fully stopped.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
		close(done)
	}()

	if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health server stopped")

	return nil
}
