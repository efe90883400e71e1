package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/oshokin/heat-sentinel/internal/api/grpc/health"
	"github.com/oshokin/heat-sentinel/internal/config"
	"github.com/oshokin/heat-sentinel/internal/device"
	"github.com/oshokin/heat-sentinel/internal/inference"
	"github.com/oshokin/heat-sentinel/internal/logger"
	"github.com/oshokin/heat-sentinel/internal/metrics"
	"github.com/oshokin/heat-sentinel/internal/render"
	"github.com/oshokin/heat-sentinel/internal/repository/artifact"
	"github.com/oshokin/heat-sentinel/internal/service/common"
	"github.com/oshokin/heat-sentinel/internal/transport"
	"github.com/oshokin/heat-sentinel/internal/transport/mqtt"
	"github.com/oshokin/heat-sentinel/internal/version"
)

// ProcessName is the executable name guarded against a second instance.
const ProcessName = "heat-sentinel"

// Options controls the agent process.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// LogLevel overrides the level from the settings when set.
	LogLevel string
	// DryRun logs alerts instead of forwarding them.
	DryRun bool
}

// Run loads settings, wires the devices and services, and runs the monitor
// loop until ctx is cancelled.
//
//nolint:cyclop,funlen // Startup wiring is a flat sequence of steps.
func Run(ctx context.Context, opts *Options) error {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = applyLogLevel(settings.LogLevel, opts.LogLevel); err != nil {
		return err
	}

	if !logger.SetFormat(settings.LogFormat) {
		return fmt.Errorf("%w: %q", errUnknownLogFormat, settings.LogFormat)
	}

	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, ProcessName)

	if err = common.EnsureSingleInstance(ProcessName); err != nil {
		return err
	}

	host, err := common.DetectHost()
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Agent starting",
		"version", version.Short(),
		"hostname", host.Hostname,
		"pid", host.PID,
		"output_dir", settings.OutputDir,
		"inference_endpoint", settings.InferenceEndpoint,
		"dry_run", opts.DryRun)

	sensor, err := device.NewSensor(&settings.Sensor)
	if err != nil {
		return fmt.Errorf("initialise sensor: %w", err)
	}

	camera, err := device.NewCamera(&settings.Camera)
	if err != nil {
		return fmt.Errorf("initialise camera: %w", err)
	}

	gateway, err := inference.New(settings.InferenceEndpoint, inference.WithCallTimeout(settings.InferenceTimeout))
	if err != nil {
		return fmt.Errorf("initialise inference gateway: %w", err)
	}

	sink, err := newSink(ctx, settings, opts.DryRun)
	if err != nil {
		return err
	}

	sender := transport.New(sink)

	defer func() {
		if closeErr := sender.Close(); closeErr != nil {
			logger.Warnf(ctx, "Close transport: %v", closeErr)
		}
	}()

	var (
		repo     = artifact.NewFileRepository(settings.OutputDir)
		recorder = metrics.New()
		reporter = health.NewReporter()
	)

	loop, err := New(
		Dependencies{
			Sensor:    sensor,
			Camera:    camera,
			Artifacts: repo,
			Predictor: gateway,
			Annotator: render.New(repo, render.WithThreshold(settings.DetectionProbabilityThreshold)),
			Sender:    sender,
		},
		WithTriggerThreshold(settings.TriggerThresholdC),
		WithProbabilityThreshold(settings.DetectionProbabilityThreshold),
		WithIdlePoll(settings.IdlePoll()),
		WithCooldown(settings.Cooldown()),
		WithObserver(recorder),
		WithObserver(reporter),
	)
	if err != nil {
		return fmt.Errorf("initialise monitor loop: %w", err)
	}

	serversCtx, stopServers := context.WithCancel(ctx)
	defer stopServers()

	var servers sync.WaitGroup

	if settings.MetricsAddr != "" {
		servers.Go(func() {
			if serveErr := recorder.Serve(serversCtx, settings.MetricsAddr); serveErr != nil {
				logger.ErrorKV(ctx, "Metrics server failed", "error", serveErr)
			}
		})
	}

	if settings.HealthAddr != "" {
		servers.Go(func() {
			if serveErr := health.Serve(serversCtx, settings.HealthAddr, reporter); serveErr != nil {
				logger.ErrorKV(ctx, "Health server failed", "error", serveErr)
			}
		})
	}

	reporter.Start()

	err = loop.Run(ctx)

	reporter.Stop()
	stopServers()
	servers.Wait()

	return err
}

// applyLogLevel sets the global level from the flag or, when empty, the settings.
func applyLogLevel(fromSettings, override string) error {
	value := fromSettings
	if override != "" {
		value = override
	}

	level, ok := logger.ParseLogLevel(value)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogLevel, value)
	}

	logger.SetLevel(level)

	return nil
}

//nolint:ireturn // The sink depends on the run mode.
func newSink(ctx context.Context, settings *config.Config, dryRun bool) (transport.Sink, error) {
	if dryRun {
		logger.Info(ctx, "Dry run: alerts are logged, not forwarded")

		return transport.LogSink{}, nil
	}

	if settings.CloudConnectionString == "" {
		return nil, config.ErrCloudConnectionRequired
	}

	sink, err := mqtt.Dial(ctx, settings.CloudConnectionString)
	if err != nil {
		return nil, fmt.Errorf("connect cloud sink: %w", err)
	}

	return sink, nil
}
