package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/heat-sentinel/internal/config"
	"github.com/oshokin/heat-sentinel/internal/service/monitor"
	"github.com/oshokin/heat-sentinel/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// logLevel overrides the level from the configuration file.
	logLevel string
	// dryRun logs alerts instead of forwarding them.
	dryRun bool

	// rootCmd represents the base command for running the agent.
	rootCmd = &cobra.Command{
		Use:   "heat-sentinel",
		Short: "Watch the temperature and report what the camera sees when it gets hot.",
		Long: `Polls the ambient sensor and, when the temperature reaches the trigger threshold,
captures an image, sends it to the object-detection service, saves an annotated copy
and forwards the confident detections to the cloud as a JSON alert.

After every triggered cycle the agent cools down before polling again.
The process runs until it receives SIGINT or SIGTERM.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		RunE: func(_ *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &monitor.Options{
				ConfigPath: configPath,
				LogLevel:   logLevel,
				DryRun:     dryRun,
			}

			return monitor.Run(ctx, options)
		},
	}
)

// Execute runs the heat-sentinel CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)
	attachHealthCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error), overrides the settings")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "log alerts instead of forwarding them to the cloud")

	_ = rootCmd.Flags().MarkHidden("dry-run")
}
