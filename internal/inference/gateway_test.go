package inference

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
)

const sampleResponse = `{
  "created": "2026-10-14T10:00:00.000Z",
  "id": "",
  "iteration": "",
  "predictions": [
    {"boundingBox": {"height": 0.25, "left": 0.25, "top": 0.5, "width": 0.5}, "probability": 0.92, "tagName": "person"},
    {"boundingBox": {"height": 0.1, "left": 0.1, "top": 0.1, "width": 0.1}, "probability": 0.55, "tagName": "noise"},
    {"boundingBox": {"height": 1, "left": 0, "top": 0, "width": 1}, "probability": 0.81, "tagName": "cat"}
  ],
  "project": ""
}`

// receivedRequest is what the fake service saw.
type receivedRequest struct {
	method      string
	path        string
	contentType string
	body        string
}

// newService starts a fake prediction service answering with status and body.
func newService(t *testing.T, status int, body string, seen chan<- receivedRequest) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		if err == nil && seen != nil {
			seen <- receivedRequest{
				method:      r.Method,
				path:        r.URL.Path,
				contentType: r.Header.Get("Content-Type"),
				body:        string(payload),
			}
		}

		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	return srv
}

// TestPredict_ReturnsUnfilteredDetections parses a full response and checks the request contract.
func TestPredict_ReturnsUnfilteredDetections(t *testing.T) {
	t.Parallel()

	seen := make(chan receivedRequest, 1)
	srv := newService(t, http.StatusOK, sampleResponse, seen)

	g, err := New(srv.URL)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/image", g.Endpoint())

	detections, err := g.Predict(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	require.Len(t, detections, 3)
	require.Equal(t, sentinel.Detection{
		TagName:     "person",
		Probability: 0.92,
		BoundingBox: sentinel.BoundingBox{Left: 0.25, Top: 0.5, Width: 0.5, Height: 0.25},
	}, detections[0])
	require.Equal(t, "noise", detections[1].TagName)
	require.Equal(t, "cat", detections[2].TagName)

	req := <-seen
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "/image", req.path)
	require.Equal(t, "application/octet-stream", req.contentType)
	require.Equal(t, "jpeg-bytes", req.body)
}

// TestPredict_EmptyPredictions is a valid response without detections.
func TestPredict_EmptyPredictions(t *testing.T) {
	t.Parallel()

	srv := newService(t, http.StatusOK, `{"predictions": []}`, nil)

	g, err := New(srv.URL)
	require.NoError(t, err)

	detections, err := g.Predict(context.Background(), []byte("x"))
	require.NoError(t, err)
	require.Empty(t, detections)
}

// TestPredict_Malformed reports bodies that do not match the expected shape.
func TestPredict_Malformed(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`{"predictions": [`, `{"status": "ok"}`, `{"predictions": "none"}`, `<html/>`} {
		srv := newService(t, http.StatusOK, body, nil)

		g, err := New(srv.URL)
		require.NoError(t, err)

		_, err = g.Predict(context.Background(), []byte("x"))
		require.ErrorIs(t, err, sentinel.ErrInferenceMalformedResponse, body)
	}
}

// TestPredict_Unavailable covers refused connections, server errors and timeouts.
func TestPredict_Unavailable(t *testing.T) {
	t.Parallel()

	// Refused connection.
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g, err := New(url)
	require.NoError(t, err)

	_, err = g.Predict(context.Background(), []byte("x"))
	require.ErrorIs(t, err, sentinel.ErrInferenceUnavailable)

	// Server error.
	failing := newService(t, http.StatusInternalServerError, "boom", nil)

	g, err = New(failing.URL)
	require.NoError(t, err)

	_, err = g.Predict(context.Background(), []byte("x"))
	require.ErrorIs(t, err, sentinel.ErrInferenceUnavailable)

	// Timeout.
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(slow.Close)

	g, err = New(slow.URL, WithCallTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = g.Predict(context.Background(), []byte("x"))
	require.ErrorIs(t, err, sentinel.ErrInferenceUnavailable)
}

// TestNew_ValidatesEndpoint rejects an empty endpoint.
func TestNew_ValidatesEndpoint(t *testing.T) {
	t.Parallel()

	g, err := New("")
	require.Error(t, err)
	require.Nil(t, g)
}

// TestGateway_callContext checks timeout vs cancel-only behavior of callContext.
func TestGateway_callContext(t *testing.T) {
	t.Parallel()

	g := &Gateway{callTimeout: 0}

	ctx, cancel := g.callContext(context.Background())
	cancel()

	_, ok := ctx.Deadline()
	require.False(t, ok)

	g.callTimeout = 10 * time.Millisecond

	ctx, cancel = g.callContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(10*time.Millisecond), deadline, 30*time.Millisecond)
}
