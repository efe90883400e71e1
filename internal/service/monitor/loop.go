package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oshokin/heat-sentinel/internal/alert"
	"github.com/oshokin/heat-sentinel/internal/config"
	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/logger"
	"github.com/oshokin/heat-sentinel/internal/transport"
)

// Sensor reads ambient conditions.
type Sensor interface {
	Read(ctx context.Context) (sentinel.Reading, error)
}

// Camera takes still images.
type Camera interface {
	Capture(ctx context.Context) (sentinel.CaptureArtifact, error)
}

// Artifacts persists raw captures.
type Artifacts interface {
	SaveRaw(ctx context.Context, artifact *sentinel.CaptureArtifact) (string, error)
}

// Predictor asks the inference service for detections.
type Predictor interface {
	Predict(ctx context.Context, raw []byte) ([]sentinel.Detection, error)
}

// Annotator draws detections onto a capture.
type Annotator interface {
	Annotate(ctx context.Context, artifact *sentinel.CaptureArtifact, detections []sentinel.Detection) (string, error)
}

// Sender forwards alert records to the cloud.
type Sender interface {
	Send(ctx context.Context, record *sentinel.AlertRecord) (transport.Ack, error)
}

// Observer is notified about loop activity. Calls happen on the loop goroutine.
type Observer interface {
	ObserveReading(reading sentinel.Reading)
	ObserveSensorFailure(err error)
	ObserveState(state sentinel.State)
	ObserveCycle(report *sentinel.CycleReport)
}

// Dependencies are the devices and services the loop drives.
type Dependencies struct {
	Sensor    Sensor
	Camera    Camera
	Artifacts Artifacts
	Predictor Predictor
	Annotator Annotator
	Sender    Sender
}

// WaitFunc pauses for d and returns early with ctx.Err() when ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

var (
	errMissingDependency = errors.New("missing dependency")
	errUnknownLogLevel   = errors.New("unknown log level")
	errUnknownLogFormat  = errors.New("unknown log format")
)

// Loop is the IDLE → TRIGGERED → COOLDOWN state machine.
type Loop struct {
	deps Dependencies

	// triggerThreshold is the temperature at or above which a cycle runs.
	triggerThreshold float64
	// probabilityThreshold is the confidence a detection must exceed to be reported.
	probabilityThreshold float64
	// idlePoll is the wait between polls below the threshold.
	idlePoll time.Duration
	// cooldown is the wait after a triggered cycle.
	cooldown time.Duration

	observers []Observer
	wait      WaitFunc
	now       func() time.Time

	state atomic.Int32
}

// Option configures the loop.
type Option func(*Loop)

// WithTriggerThreshold sets the trigger temperature.
func WithTriggerThreshold(celsius float64) Option {
	return func(l *Loop) {
		l.triggerThreshold = celsius
	}
}

// WithProbabilityThreshold sets the detection confidence cut-off.
func WithProbabilityThreshold(threshold float64) Option {
	return func(l *Loop) {
		l.probabilityThreshold = threshold
	}
}

// WithIdlePoll sets the wait between polls.
func WithIdlePoll(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.idlePoll = d
		}
	}
}

// WithCooldown sets the wait after a triggered cycle.
func WithCooldown(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.cooldown = d
		}
	}
}

// WithObserver adds an observer.
func WithObserver(o Observer) Option {
	return func(l *Loop) {
		if o != nil {
			l.observers = append(l.observers, o)
		}
	}
}

// WithWait replaces the pause implementation.
func WithWait(wait WaitFunc) Option {
	return func(l *Loop) {
		if wait != nil {
			l.wait = wait
		}
	}
}

// New creates a loop in the IDLE state.
func New(deps Dependencies, opts ...Option) (*Loop, error) {
	required := []struct {
		name    string
		missing bool
	}{
		{"sensor", deps.Sensor == nil},
		{"camera", deps.Camera == nil},
		{"artifacts", deps.Artifacts == nil},
		{"predictor", deps.Predictor == nil},
		{"annotator", deps.Annotator == nil},
		{"sender", deps.Sender == nil},
	}

	for _, dep := range required {
		if dep.missing {
			return nil, fmt.Errorf("%w: %s", errMissingDependency, dep.name)
		}
	}

	l := &Loop{
		deps:                 deps,
		triggerThreshold:     config.DefaultTriggerThresholdC,
		probabilityThreshold: config.DefaultDetectionProbabilityThreshold,
		idlePoll:             config.DefaultIdlePollSeconds * time.Second,
		cooldown:             config.DefaultCooldownSeconds * time.Second,
		wait:                 Sleep,
		now:                  time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// State reports the current state. Safe for concurrent use.
func (l *Loop) State() sentinel.State {
	return sentinel.State(l.state.Load())
}

// Run polls until ctx is cancelled and then returns nil.
func (l *Loop) Run(ctx context.Context) error {
	logger.InfoKV(ctx, "Monitor loop started",
		"trigger_threshold_c", l.triggerThreshold,
		"idle_poll", l.idlePoll.String(),
		"cooldown", l.cooldown.String())

	for {
		if err := l.Step(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Monitor loop stopped")

				return nil
			}

			return err
		}
	}
}

// Step performs one poll: a reading, the pipeline when the threshold is
// crossed, and the wait that follows. It returns only context errors.
func (l *Loop) Step(ctx context.Context) error {
	reading, err := l.deps.Sensor.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.ErrorKV(ctx, "Sensor read failed", "kind", sentinel.Kind(err), "error", err)
		l.notify(func(o Observer) { o.ObserveSensorFailure(err) })

		return l.wait(ctx, l.idlePoll)
	}

	logger.InfoKV(ctx, "Sensor reading",
		"humidity", reading.Humidity,
		"temperature", reading.TemperatureCelsius)
	l.notify(func(o Observer) { o.ObserveReading(reading) })

	if reading.TemperatureCelsius < l.triggerThreshold {
		return l.wait(ctx, l.idlePoll)
	}

	logger.InfoKV(ctx, "Temperature threshold crossed",
		"temperature", reading.TemperatureCelsius,
		"threshold", l.triggerThreshold)

	l.setState(ctx, sentinel.StateTriggered)

	report := l.cycle(ctx, reading)
	l.notify(func(o Observer) { o.ObserveCycle(report) })

	l.setState(ctx, sentinel.StateCooldown)
	logger.Infof(ctx, "Sleeping for %s", l.cooldown)

	if err = l.wait(ctx, l.cooldown); err != nil {
		return err
	}

	l.setState(ctx, sentinel.StateIdle)

	return nil
}

// cycle runs capture, inference, annotation, merge and transport in order.
// Capture, inference and transport failures end the cycle early.
func (l *Loop) cycle(ctx context.Context, reading sentinel.Reading) *sentinel.CycleReport {
	var (
		report = new(sentinel.CycleReport)
		start  = l.now()
	)

	defer func() {
		report.Duration = l.now().Sub(start)
	}()

	artifact, err := l.deps.Camera.Capture(ctx)
	if err != nil {
		return l.fail(ctx, report, err)
	}

	report.ArtifactID = artifact.ID
	ctx = logger.WithKV(ctx, "capture_id", artifact.ID)

	rawPath, err := l.deps.Artifacts.SaveRaw(ctx, &artifact)
	if err != nil {
		return l.fail(ctx, report, fmt.Errorf("%w: save raw image: %w", sentinel.ErrCapture, err))
	}

	logger.InfoKV(ctx, "Image captured", "path", rawPath, "bytes", len(artifact.RawBytes))

	detections, err := l.deps.Predictor.Predict(ctx, artifact.RawBytes)
	if err != nil {
		return l.fail(ctx, report, err)
	}

	if _, err = l.deps.Annotator.Annotate(ctx, &artifact, detections); err != nil {
		report.RenderErr = err
		logger.ErrorKV(ctx, "Annotation failed, forwarding alert anyway",
			"kind", sentinel.Kind(err),
			"error", err)
	}

	record := alert.Merge(
		detections,
		reading.TemperatureCelsius,
		artifact.CapturedAt,
		artifact.ImageReference(),
		l.probabilityThreshold)
	report.Detections = len(record.Detections)

	ack, err := l.deps.Sender.Send(ctx, &record)
	if err != nil {
		return l.fail(ctx, report, err)
	}

	report.Sent = true

	logger.InfoKV(ctx, "Alert forwarded",
		"message_id", ack.MessageID,
		"detections", report.Detections)

	return report
}

func (l *Loop) fail(ctx context.Context, report *sentinel.CycleReport, err error) *sentinel.CycleReport {
	report.Err = err

	logger.ErrorKV(ctx, "Cycle aborted", "kind", sentinel.Kind(err), "error", err)

	return report
}

func (l *Loop) setState(ctx context.Context, state sentinel.State) {
	previous := sentinel.State(l.state.Swap(int32(state)))
	if previous == state {
		return
	}

	logger.DebugKV(ctx, "State changed", "from", previous.String(), "to", state.String())
	l.notify(func(o Observer) { o.ObserveState(state) })
}

func (l *Loop) notify(fn func(Observer)) {
	for _, o := range l.observers {
		fn(o)
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
