//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultCallTimeout bounds a single health check.
const DefaultCallTimeout = 5 * time.Second

// HealthClient queries the agent's gRPC health service.
type HealthClient struct {
	// conn is the underlying gRPC connection to the agent.
	conn *grpc.ClientConn
	// api is the generated health client.
	api healthpb.HealthClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
	// dialOptions are appended to the default dial options.
	dialOptions []grpc.DialOption
}

// Option configures client behaviour.
type Option func(*HealthClient)

// WithCallTimeout sets a default timeout for health checks.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *HealthClient) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithDialOptions appends gRPC dial options.
func WithDialOptions(dialOptions ...grpc.DialOption) Option {
	return func(c *HealthClient) {
		c.dialOptions = append(c.dialOptions, dialOptions...)
	}
}

var errAddressRequired = errors.New("address must be provided")

// DialHealth creates a client for the health service at address.
// The connection uses insecure transport credentials; the health
// endpoint is meant for a trusted local network.
func DialHealth(address string, opts ...Option) (*HealthClient, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	client := &HealthClient{
		callTimeout: DefaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	dialOptions := append(
		[]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
		client.dialOptions...)

	conn, err := grpc.NewClient(address, dialOptions...)
	if err != nil {
		return nil, fmt.Errorf("dial health service: %w", err)
	}

	client.conn = conn
	client.api = healthpb.NewHealthClient(conn)

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *HealthClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Check returns the serving status of service, "" for the whole agent.
func (c *HealthClient) Check(
	ctx context.Context,
	service string,
) (healthpb.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("check %q: %w", service, err)
	}

	return resp.GetStatus(), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *HealthClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
