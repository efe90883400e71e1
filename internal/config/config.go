package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the agent settings.
type Config struct {
	// TriggerThresholdC is the temperature at or above which the pipeline runs.
	TriggerThresholdC float64 `yaml:"trigger_threshold_c"`
	// DetectionProbabilityThreshold is the confidence a detection must exceed to be drawn and reported.
	DetectionProbabilityThreshold float64 `yaml:"detection_probability_threshold"`
	// IdlePollSeconds is the wait between polls while the threshold is not crossed.
	IdlePollSeconds int `yaml:"idle_poll_seconds"`
	// CooldownSeconds is the wait after a triggered cycle.
	CooldownSeconds int `yaml:"cooldown_seconds"`
	// InferenceEndpoint is the base URL of the object-detection service.
	InferenceEndpoint string `yaml:"inference_endpoint"`
	// InferenceTimeout bounds a single inference request.
	InferenceTimeout time.Duration `yaml:"inference_timeout"`
	// CloudConnectionString configures the cloud sink. It is a secret and never logged.
	CloudConnectionString string `yaml:"cloud_connection_string"`
	// OutputDir is where raw and annotated images are written.
	OutputDir string `yaml:"output_dir"`
	// LogLevel is the minimum level of emitted log messages.
	LogLevel string `yaml:"log_level"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format"`
	// MetricsAddr enables the Prometheus endpoint when set.
	MetricsAddr string `yaml:"metrics_addr"`
	// HealthAddr enables the gRPC health service when set.
	HealthAddr string `yaml:"health_addr"`
	// Sensor selects and configures the ambient sensor.
	Sensor SensorConfig `yaml:"sensor"`
	// Camera selects and configures the image source.
	Camera CameraConfig `yaml:"camera"`
}

// SensorConfig configures the ambient sensor adapter.
type SensorConfig struct {
	// Kind is "command" or "static".
	Kind string `yaml:"kind"`
	// Command prints "<humidity> <temperature>" on stdout. Built from DHTType and Pin when empty.
	Command []string `yaml:"command,omitempty"`
	// DHTType is the DHT sensor model passed to the default command.
	DHTType string `yaml:"dht_type"`
	// Pin is the digital port the sensor is connected to.
	Pin int `yaml:"pin"`
	// Humidity is returned by the static sensor.
	Humidity float64 `yaml:"humidity,omitempty"`
	// Temperature is returned by the static sensor.
	Temperature float64 `yaml:"temperature,omitempty"`
}

// CameraConfig configures the camera adapter.
type CameraConfig struct {
	// Kind is "command" or "file".
	Kind string `yaml:"kind"`
	// Command writes one JPEG to stdout. Built from the fields below when empty.
	Command []string `yaml:"command,omitempty"`
	// Path is the JPEG returned by the file camera.
	Path string `yaml:"path,omitempty"`
	// Width of the captured image in pixels.
	Width int `yaml:"width"`
	// Height of the captured image in pixels.
	Height int `yaml:"height"`
	// Rotation of the captured image in degrees.
	Rotation int `yaml:"rotation"`
	// Warmup is the delay before the first capture.
	Warmup time.Duration `yaml:"warmup"`
}

// Sensor and camera adapter kinds.
const (
	KindCommand = "command"
	KindStatic  = "static"
	KindFile    = "file"
)

const (
	// DefaultConfigFilename is the default filename for agent settings.
	DefaultConfigFilename = "heat-sentinel-settings.yaml"

	// DefaultTriggerThresholdC is the default trigger temperature.
	DefaultTriggerThresholdC = 32.0
	// DefaultDetectionProbabilityThreshold is the default detection confidence cut-off.
	DefaultDetectionProbabilityThreshold = 0.70
	// DefaultIdlePollSeconds is the default wait between polls.
	DefaultIdlePollSeconds = 5
	// DefaultCooldownSeconds is the default wait after a triggered cycle.
	DefaultCooldownSeconds = 30
	// DefaultInferenceTimeout bounds a single inference request.
	DefaultInferenceTimeout = 10 * time.Second
	// DefaultOutputDir keeps images in the working directory.
	DefaultOutputDir = "."

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600
	// DefaultDirPermissions is the default permission for created directories.
	DefaultDirPermissions = 0o750
)

var (
	// ErrCloudConnectionRequired is returned when alerts must be sent but no sink is configured.
	ErrCloudConnectionRequired = errors.New("cloud connection string must be provided")

	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInferenceEndpointRequired is returned when the inference endpoint is missing.
	errInferenceEndpointRequired = errors.New("inference endpoint must be provided")
	// errProbabilityOutOfRange is returned for a detection threshold outside [0,1).
	errProbabilityOutOfRange = errors.New("detection probability threshold must be in [0, 1)")
	// errUnknownKind is returned for an unsupported sensor or camera kind.
	errUnknownKind = errors.New("unknown kind")
	// errCameraFileRequired is returned when the file camera has no path.
	errCameraFileRequired = errors.New("camera path must be provided for the file camera")
)

// Default returns the settings used for keys absent from the file.
func Default() Config {
	return Config{
		TriggerThresholdC:             DefaultTriggerThresholdC,
		DetectionProbabilityThreshold: DefaultDetectionProbabilityThreshold,
		IdlePollSeconds:               DefaultIdlePollSeconds,
		CooldownSeconds:               DefaultCooldownSeconds,
		InferenceTimeout:              DefaultInferenceTimeout,
		OutputDir:                     DefaultOutputDir,
		LogLevel:                      "info",
		LogFormat:                     "console",
		Sensor: SensorConfig{
			Kind:    KindCommand,
			DHTType: "11",
			Pin:     5,
		},
		Camera: CameraConfig{
			Kind:   KindCommand,
			Width:  640,
			Height: 480,
			Warmup: 2 * time.Second,
		},
	}
}

// Load reads configuration from the provided path and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// The file carries the cloud secret, so restrict permissions.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the settings and fills zero intervals with defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.InferenceEndpoint == "" {
		return errInferenceEndpointRequired
	}

	if _, err := url.ParseRequestURI(cfg.InferenceEndpoint); err != nil {
		return fmt.Errorf("invalid inference endpoint: %w", err)
	}

	if cfg.DetectionProbabilityThreshold < 0 || cfg.DetectionProbabilityThreshold >= 1 {
		return errProbabilityOutOfRange
	}

	if cfg.IdlePollSeconds <= 0 {
		cfg.IdlePollSeconds = DefaultIdlePollSeconds
	}

	if cfg.CooldownSeconds <= 0 {
		cfg.CooldownSeconds = DefaultCooldownSeconds
	}

	if cfg.InferenceTimeout <= 0 {
		cfg.InferenceTimeout = DefaultInferenceTimeout
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	switch cfg.Sensor.Kind {
	case KindCommand, KindStatic:
	default:
		return fmt.Errorf("sensor %q: %w", cfg.Sensor.Kind, errUnknownKind)
	}

	switch cfg.Camera.Kind {
	case KindCommand:
	case KindFile:
		if cfg.Camera.Path == "" {
			return errCameraFileRequired
		}
	default:
		return fmt.Errorf("camera %q: %w", cfg.Camera.Kind, errUnknownKind)
	}

	return nil
}

// IdlePoll returns the wait between polls below the threshold.
func (c *Config) IdlePoll() time.Duration {
	return time.Duration(c.IdlePollSeconds) * time.Second
}

// Cooldown returns the wait after a triggered cycle.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}
