package integration

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/heat-sentinel/internal/alert"
	"github.com/oshokin/heat-sentinel/internal/api/grpc/health"
	"github.com/oshokin/heat-sentinel/internal/config"
	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/service/common"
	"github.com/oshokin/heat-sentinel/internal/service/monitor"
)

const (
	waitTimeout  = 10 * time.Second
	pollInterval = 50 * time.Millisecond

	predictions = `{"predictions": [
		{"tagName": "person", "probability": 0.92, "boundingBox": {"left": 0.1, "top": 0.2, "width": 0.5, "height": 0.6}},
		{"tagName": "noise", "probability": 0.55, "boundingBox": {"left": 0.5, "top": 0.5, "width": 0.1, "height": 0.1}},
		{"tagName": "cat", "probability": 0.81, "boundingBox": {"left": 0.6, "top": 0.1, "width": 0.2, "height": 0.2}}
	]}`
)

// reservePort returns a free local address.
func reservePort(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// startInference serves canned predictions on /image.
func startInference(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/image" || r.Header.Get("Content-Type") != "application/octet-stream" {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, predictions)
	}))

	t.Cleanup(srv.Close)

	return srv
}

// startBroker runs an in-process MQTT broker and forwards device messages.
func startBroker(t *testing.T) (string, <-chan packets.Packet) {
	t.Helper()

	var (
		addr     = reservePort(t)
		received = make(chan packets.Packet, 4)
		server   = mochi.New(&mochi.Options{InlineClient: true})
	)

	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Type: "tcp", Address: addr})))
	require.NoError(t, server.Subscribe("devices/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		received <- pk
	}))
	require.NoError(t, server.Serve())

	t.Cleanup(func() { _ = server.Close() })

	return addr, received
}

// writeFrame stores a black 320x240 JPEG for the file camera.
func writeFrame(t *testing.T, dir string) string {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 320, 240)), nil))

	path := filepath.Join(dir, "frame.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return path
}

// writeSettings saves agent settings for a hot static sensor and a file camera.
func writeSettings(t *testing.T, mutate func(*config.Config)) (string, *config.Config) {
	t.Helper()

	dir := t.TempDir()

	settings := config.Default()
	settings.LogLevel = "error"
	settings.OutputDir = filepath.Join(dir, "images")
	settings.Sensor = config.SensorConfig{Kind: config.KindStatic, Humidity: 40, Temperature: 35}
	settings.Camera = config.CameraConfig{Kind: config.KindFile, Path: writeFrame(t, dir)}
	mutate(&settings)

	path := filepath.Join(dir, "settings.yaml")
	require.NoError(t, config.Save(path, &settings))

	return path, &settings
}

// startAgent runs the agent until the test ends.
func startAgent(t *testing.T, opts *monitor.Options) {
	t.Helper()

	var (
		ctx, cancel = context.WithCancel(context.Background())
		done        = make(chan error, 1)
	)

	go func() { done <- monitor.Run(ctx, opts) }()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(waitTimeout):
			require.FailNow(t, "agent did not stop")
		}
	})
}

// TestAgent_ForwardsAlert drives one hot cycle from sensor to broker.
func TestAgent_ForwardsAlert(t *testing.T) {
	t.Parallel()

	var (
		inference          = startInference(t)
		brokerAddr, broker = startBroker(t)
		healthAddr         = reservePort(t)
		metricsAddr        = reservePort(t)
	)

	host, port, err := net.SplitHostPort(brokerAddr)
	require.NoError(t, err)

	settingsPath, settings := writeSettings(t, func(cfg *config.Config) {
		cfg.InferenceEndpoint = inference.URL
		cfg.CloudConnectionString = "HostName=" + host + ";TcpPort=" + port + ";ClientId=sensor-1"
		cfg.HealthAddr = healthAddr
		cfg.MetricsAddr = metricsAddr
	})

	startAgent(t, &monitor.Options{ConfigPath: settingsPath})

	var pk packets.Packet
	select {
	case pk = <-broker:
	case <-time.After(waitTimeout):
		require.FailNow(t, "no alert reached the broker")
	}

	require.True(t, strings.HasPrefix(pk.TopicName, "devices/sensor-1/messages/events/"))
	require.Equal(t, "application/json", pk.Properties.ContentType)

	record, err := alert.Unmarshal(pk.Payload)
	require.NoError(t, err)
	require.InDelta(t, 35.0, record.TemperatureCelsius, 1e-9)
	require.Equal(t, []sentinel.AlertDetection{
		{TagName: "person", Probability: 0.92},
		{TagName: "cat", Probability: 0.81},
	}, record.Detections)

	id := strings.TrimSuffix(record.ImageReference, sentinel.ImageExtension)
	require.FileExists(t, filepath.Join(settings.OutputDir, id+".jpg"))
	require.Eventually(t, func() bool {
		_, statErr := os.Stat(filepath.Join(settings.OutputDir, id+"-op.jpg"))

		return statErr == nil
	}, waitTimeout, pollInterval)

	client, err := common.DialHealth(healthAddr, common.WithCallTimeout(time.Second))
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	require.Eventually(t, func() bool {
		status, checkErr := client.Check(context.Background(), health.PipelineService)

		return checkErr == nil && status == healthpb.HealthCheckResponse_SERVING
	}, waitTimeout, pollInterval)

	require.Eventually(t, func() bool {
		return strings.Contains(scrape(t, metricsAddr), "heat_sentinel_alerts_sent_total 1")
	}, waitTimeout, pollInterval)
}

// TestAgent_DryRun keeps alerts local and still annotates captures.
func TestAgent_DryRun(t *testing.T) {
	t.Parallel()

	inference := startInference(t)

	settingsPath, settings := writeSettings(t, func(cfg *config.Config) {
		cfg.InferenceEndpoint = inference.URL
	})

	startAgent(t, &monitor.Options{ConfigPath: settingsPath, DryRun: true})

	require.Eventually(t, func() bool {
		matches, globErr := filepath.Glob(filepath.Join(settings.OutputDir, "img_*-op.jpg"))

		return globErr == nil && len(matches) == 1
	}, waitTimeout, pollInterval)
}

// TestAgent_RequiresCloudConnection refuses to start without a sink.
func TestAgent_RequiresCloudConnection(t *testing.T) {
	t.Parallel()

	settingsPath, _ := writeSettings(t, func(cfg *config.Config) {
		cfg.InferenceEndpoint = "http://127.0.0.1:1"
	})

	err := monitor.Run(context.Background(), &monitor.Options{ConfigPath: settingsPath})
	require.ErrorIs(t, err, config.ErrCloudConnectionRequired)
}

func scrape(t *testing.T, addr string) string {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+addr+"/metrics", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return ""
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}

	return string(body)
}
