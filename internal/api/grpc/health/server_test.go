package health

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
)

const bufSize = 1 << 20

// startServer serves r over an in-memory listener and returns a health client.
func startServer(t *testing.T, r *Reporter) healthpb.HealthClient {
	t.Helper()

	var (
		lis         = bufconn.Listen(bufSize)
		ctx, cancel = context.WithCancel(context.Background())
		done        = make(chan error, 1)
	)

	go func() { done <- serve(ctx, lis, r) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, conn.Close())
		cancel()
		require.NoError(t, <-done)
	})

	return healthpb.NewHealthClient(conn)
}

func check(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()

	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)

	return resp.GetStatus()
}

// TestReporter_Lifecycle follows the overall status from start to stop.
func TestReporter_Lifecycle(t *testing.T) {
	t.Parallel()

	var (
		r      = NewReporter()
		client = startServer(t, r)
	)

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))

	r.Start()
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, PipelineService))

	r.Stop()
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, ""))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, PipelineService))

	// Updates after Stop are ignored.
	r.ObserveCycle(&sentinel.CycleReport{Sent: true})
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, PipelineService))
}

// TestReporter_PipelineFollowsCycles flips the pipeline service with each outcome.
func TestReporter_PipelineFollowsCycles(t *testing.T) {
	t.Parallel()

	var (
		r      = NewReporter()
		client = startServer(t, r)
	)

	r.Start()

	r.ObserveCycle(&sentinel.CycleReport{Err: sentinel.ErrTransport})
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, PipelineService))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, ""))

	// A render failure alone still delivers the alert.
	r.ObserveCycle(&sentinel.CycleReport{Sent: true, RenderErr: sentinel.ErrRender})
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, client, PipelineService))

	r.ObserveSensorFailure(sentinel.ErrSensorRead)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, PipelineService))

	r.ObserveReading(sentinel.Reading{TemperatureCelsius: 20})
	r.ObserveState(sentinel.StateIdle)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, client, PipelineService))
}
