// Package device adapts the ambient sensor and the camera to the monitor loop.
//
// Hardware is reached through external helper commands so the agent itself
// stays free of cgo and GPIO bindings.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/heat-sentinel/internal/config"
	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
)

// readingFields is the number of values a sensor command prints.
const readingFields = 2

var (
	errEmptyCommand      = errors.New("empty command")
	errMalformedReading  = errors.New("malformed reading")
	errUnsupportedDevice = errors.New("unsupported device kind")
)

// Sensor reads ambient conditions.
type Sensor interface {
	Read(ctx context.Context) (sentinel.Reading, error)
}

// NewSensor builds the sensor selected by cfg.
//
//nolint:ireturn // The concrete adapter depends on configuration.
func NewSensor(cfg *config.SensorConfig) (Sensor, error) {
	switch cfg.Kind {
	case config.KindCommand:
		command := cfg.Command
		if len(command) == 0 {
			command = DHTCommand(cfg.DHTType, cfg.Pin)
		}

		return NewCommandSensor(command)
	case config.KindStatic:
		return NewStaticSensor(cfg.Humidity, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("sensor %q: %w", cfg.Kind, errUnsupportedDevice)
	}
}

// DHTCommand reads a Grove DHT sensor through the seeed_dht Python module.
func DHTCommand(dhtType string, pin int) []string {
	script := fmt.Sprintf(
		"from seeed_dht import DHT; h, t = DHT(%q, %d).read(); print(h, t)",
		dhtType, pin)

	return []string{"python3", "-c", script}
}

// CommandSensor runs a command that prints "<humidity> <temperature>".
type CommandSensor struct {
	// command is the program and its arguments.
	command []string
	// now stamps readings.
	now func() time.Time
}

// NewCommandSensor creates a sensor running command on every read.
func NewCommandSensor(command []string) (*CommandSensor, error) {
	if len(command) == 0 {
		return nil, errEmptyCommand
	}

	return &CommandSensor{
		command: command,
		now:     time.Now,
	}, nil
}

// Read runs the command once and parses its output.
func (s *CommandSensor) Read(ctx context.Context) (sentinel.Reading, error) {
	out, err := run(ctx, s.command)
	if err != nil {
		return sentinel.Reading{}, fmt.Errorf("%w: %w", sentinel.ErrSensorRead, err)
	}

	reading, err := parseReading(out)
	if err != nil {
		return sentinel.Reading{}, fmt.Errorf("%w: %w", sentinel.ErrSensorRead, err)
	}

	reading.ObservedAt = s.now()

	return reading, nil
}

func parseReading(out []byte) (sentinel.Reading, error) {
	fields := strings.Fields(string(out))
	if len(fields) != readingFields {
		return sentinel.Reading{}, fmt.Errorf("%w: %q", errMalformedReading, out)
	}

	humidity, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return sentinel.Reading{}, fmt.Errorf("%w: humidity %q", errMalformedReading, fields[0])
	}

	temperature, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return sentinel.Reading{}, fmt.Errorf("%w: temperature %q", errMalformedReading, fields[1])
	}

	return sentinel.Reading{
		Humidity:           humidity,
		TemperatureCelsius: temperature,
	}, nil
}

// StaticSensor always reports the same conditions.
type StaticSensor struct {
	// humidity is reported on every read.
	humidity float64
	// temperature is reported on every read.
	temperature float64
	// now stamps readings.
	now func() time.Time
}

// NewStaticSensor creates a sensor with fixed values.
func NewStaticSensor(humidity, temperature float64) *StaticSensor {
	return &StaticSensor{
		humidity:    humidity,
		temperature: temperature,
		now:         time.Now,
	}
}

// Read returns the fixed values.
func (s *StaticSensor) Read(ctx context.Context) (sentinel.Reading, error) {
	if err := ctx.Err(); err != nil {
		return sentinel.Reading{}, fmt.Errorf("%w: %w", sentinel.ErrSensorRead, err)
	}

	return sentinel.Reading{
		Humidity:           s.humidity,
		TemperatureCelsius: s.temperature,
		ObservedAt:         s.now(),
	}, nil
}

// run executes command and returns its standard output.
func run(ctx context.Context, command []string) ([]byte, error) {
	var stdout, stderr bytes.Buffer

	//nolint:gosec // The command comes from the operator's settings.
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("run %s: %w: %s", command[0], err, msg)
		}

		return nil, fmt.Errorf("run %s: %w", command[0], err)
	}

	return stdout.Bytes(), nil
}
