package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/heat-sentinel/internal/service/common"
)

var errNotServing = errors.New("not serving")

// attachHealthCommand adds a probe that queries a running agent's health service.
func attachHealthCommand(root *cobra.Command) {
	var (
		service string
		timeout time.Duration
	)

	healthCmd := &cobra.Command{
		Use:   "health <address>",
		Short: "Check the health of a running agent.",
		Long: `Queries the gRPC health service of a running agent (health_addr in the settings)
and exits with a non-zero status unless it is SERVING.

Use --service heat-sentinel.pipeline to check the outcome of the last pipeline run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := common.DialHealth(args[0], common.WithCallTimeout(timeout))
			if err != nil {
				return err
			}

			defer func() {
				_ = client.Close()
			}()

			status, err := client.Check(cmd.Context(), service)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), status.String())

			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("%s: %w", args[0], errNotServing)
			}

			return nil
		},
	}

	healthCmd.Flags().StringVarP(&service, "service", "s", "", "service to check, empty for the whole agent")
	healthCmd.Flags().DurationVarP(&timeout, "timeout", "t", common.DefaultCallTimeout, "timeout of the check")

	root.AddCommand(healthCmd)
}
