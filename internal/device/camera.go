package device

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/oshokin/heat-sentinel/internal/config"
	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/logger"
)

var errEmptyCapture = errors.New("camera returned no data")

// Camera takes still images.
type Camera interface {
	Capture(ctx context.Context) (sentinel.CaptureArtifact, error)
}

// NewCamera builds the camera selected by cfg.
//
//nolint:ireturn // The concrete adapter depends on configuration.
func NewCamera(cfg *config.CameraConfig) (Camera, error) {
	switch cfg.Kind {
	case config.KindCommand:
		command := cfg.Command
		if len(command) == 0 {
			command = StillCommand(cfg.Width, cfg.Height, cfg.Rotation)
		}

		return NewCommandCamera(command, cfg.Warmup)
	case config.KindFile:
		return NewFileCamera(cfg.Path, cfg.Warmup), nil
	default:
		return nil, fmt.Errorf("camera %q: %w", cfg.Kind, errUnsupportedDevice)
	}
}

// StillCommand captures one JPEG to stdout with libcamera-still.
func StillCommand(width, height, rotation int) []string {
	return []string{
		"libcamera-still",
		"--nopreview",
		"--immediate",
		"--encoding", "jpg",
		"--width", strconv.Itoa(width),
		"--height", strconv.Itoa(height),
		"--rotation", strconv.Itoa(rotation),
		"--output", "-",
	}
}

// shutter waits for the sensor to settle before the first capture and hands
// out strictly increasing capture times.
type shutter struct {
	// warmup is the delay before the first capture.
	warmup time.Duration
	// now reads the clock.
	now func() time.Time

	mu sync.Mutex
	// warm is set once the first capture has waited for warmup.
	warm bool
	// last is the previous capture time.
	last time.Time
}

func newShutter(warmup time.Duration) *shutter {
	return &shutter{
		warmup: warmup,
		now:    time.Now,
	}
}

// ready blocks for the warm-up on the first call.
func (s *shutter) ready(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.warm {
		return nil
	}

	if s.warmup > 0 {
		logger.Debugf(ctx, "Warming up camera for %s", s.warmup)

		timer := time.NewTimer(s.warmup)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	s.warm = true

	return nil
}

// next returns a capture time later than every previous one at microsecond
// resolution, so capture IDs never collide.
func (s *shutter) next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.now().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}

	s.last = t

	return t
}

func (s *shutter) artifact(data []byte) (sentinel.CaptureArtifact, error) {
	if len(data) == 0 {
		return sentinel.CaptureArtifact{}, fmt.Errorf("%w: %w", sentinel.ErrCapture, errEmptyCapture)
	}

	capturedAt := s.next()

	return sentinel.CaptureArtifact{
		ID:         sentinel.CaptureID(capturedAt),
		RawBytes:   data,
		CapturedAt: capturedAt,
	}, nil
}

// CommandCamera runs a command that writes one JPEG to stdout.
type CommandCamera struct {
	*shutter

	// command is the program and its arguments.
	command []string
}

// NewCommandCamera creates a camera running command on every capture.
func NewCommandCamera(command []string, warmup time.Duration) (*CommandCamera, error) {
	if len(command) == 0 {
		return nil, errEmptyCommand
	}

	return &CommandCamera{
		shutter: newShutter(warmup),
		command: command,
	}, nil
}

// Capture takes one image.
func (c *CommandCamera) Capture(ctx context.Context) (sentinel.CaptureArtifact, error) {
	if err := c.ready(ctx); err != nil {
		return sentinel.CaptureArtifact{}, fmt.Errorf("%w: %w", sentinel.ErrCapture, err)
	}

	data, err := run(ctx, c.command)
	if err != nil {
		return sentinel.CaptureArtifact{}, fmt.Errorf("%w: %w", sentinel.ErrCapture, err)
	}

	return c.artifact(data)
}

// FileCamera returns the contents of a JPEG file on every capture.
type FileCamera struct {
	*shutter

	// path is the image file.
	path string
}

// NewFileCamera creates a camera reading path.
func NewFileCamera(path string, warmup time.Duration) *FileCamera {
	return &FileCamera{
		shutter: newShutter(warmup),
		path:    path,
	}
}

// Capture reads the file.
func (c *FileCamera) Capture(ctx context.Context) (sentinel.CaptureArtifact, error) {
	if err := c.ready(ctx); err != nil {
		return sentinel.CaptureArtifact{}, fmt.Errorf("%w: %w", sentinel.ErrCapture, err)
	}

	data, err := os.ReadFile(filepath.Clean(c.path))
	if err != nil {
		return sentinel.CaptureArtifact{}, fmt.Errorf("%w: %w", sentinel.ErrCapture, err)
	}

	return c.artifact(data)
}
