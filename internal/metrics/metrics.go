// Package metrics exposes the agent's Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/logger"
)

const (
	namespace = "heat_sentinel"

	// Path serves the metrics.
	Path = "/metrics"

	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Metrics records loop activity in its own registry.
type Metrics struct {
	registry *prometheus.Registry

	readings       prometheus.Counter
	temperature    prometheus.Gauge
	humidity       prometheus.Gauge
	cycles         prometheus.Counter
	failures       *prometheus.CounterVec
	alertsSent     prometheus.Counter
	state          *prometheus.GaugeVec
	cycleDurations prometheus.Histogram
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Total successful sensor readings.",
		}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_temperature_celsius",
			Help:      "Last measured temperature.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_humidity_percent",
			Help:      "Last measured relative humidity.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total triggered cycles.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failures_total",
			Help:      "Pipeline failures by kind.",
		}, []string{"kind"}),
		alertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_sent_total",
			Help:      "Total alerts delivered to the cloud.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current loop state, 1 for the active state.",
		}, []string{"state"}),
		cycleDurations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of triggered cycles from capture to transport.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	m.registry.MustRegister(
		m.readings,
		m.temperature,
		m.humidity,
		m.cycles,
		m.failures,
		m.alertsSent,
		m.state,
		m.cycleDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, kind := range sentinel.Kinds() {
		m.failures.WithLabelValues(kind)
	}

	m.ObserveState(sentinel.StateIdle)

	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveReading records a successful sensor poll.
func (m *Metrics) ObserveReading(reading sentinel.Reading) {
	m.readings.Inc()
	m.temperature.Set(reading.TemperatureCelsius)
	m.humidity.Set(reading.Humidity)
}

// ObserveSensorFailure records a failed sensor poll.
func (m *Metrics) ObserveSensorFailure(err error) {
	m.failures.WithLabelValues(sentinel.Kind(err)).Inc()
}

// ObserveState marks state as the active one.
func (m *Metrics) ObserveState(state sentinel.State) {
	for _, s := range sentinel.States() {
		value := 0.0
		if s == state {
			value = 1
		}

		m.state.WithLabelValues(s.String()).Set(value)
	}
}

// ObserveCycle records the outcome of a triggered cycle.
func (m *Metrics) ObserveCycle(report *sentinel.CycleReport) {
	m.cycles.Inc()
	m.cycleDurations.Observe(report.Duration.Seconds())

	if report.RenderErr != nil {
		m.failures.WithLabelValues(sentinel.Kind(report.RenderErr)).Inc()
	}

	if report.Err != nil {
		m.failures.WithLabelValues(sentinel.Kind(report.Err)).Inc()
	}

	if report.Sent {
		m.alertsSent.Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes the metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	listener, err := new(net.ListenConfig).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics on %s: %w", addr, err)
	}

	return m.serve(ctx, listener)
}

func (m *Metrics) serve(ctx context.Context, listener net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(Path, m.Handler())

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf(ctx, "Metrics server shutdown: %v", err)
		}
	}()

	logger.Infof(ctx, "Serving metrics on %s%s", listener.Addr(), Path)

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}

	return nil
}
