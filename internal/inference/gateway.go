// Package inference talks to the remote object-detection service.
//
// The Gateway posts a raw JPEG to {endpoint}/image and normalizes the
// predictions of the response. It does not filter them.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/logger"
)

const (
	// imagePath is the prediction route of the service.
	imagePath = "image"
	// contentType is the media type of the request body.
	contentType = "application/octet-stream"
	// maxResponseBytes bounds the response body read into memory.
	maxResponseBytes = 8 << 20
	// DefaultCallTimeout bounds a single prediction request.
	DefaultCallTimeout = 10 * time.Second
)

// Gateway issues prediction requests.
type Gateway struct {
	// endpoint is the full URL of the prediction route.
	endpoint string
	// httpClient performs the requests.
	httpClient *http.Client

	// callTimeout is the default timeout for individual requests.
	callTimeout time.Duration
}

// Option configures gateway behaviour.
type Option func(*Gateway)

// WithCallTimeout sets a default timeout for prediction requests.
func WithCallTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.callTimeout = timeout
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// response is the body returned by the service.
type response struct {
	Predictions *[]sentinel.Detection `json:"predictions"`
}

var (
	// errEndpointRequired is returned when no endpoint is configured.
	errEndpointRequired = errors.New("inference endpoint must be provided")
	// errMissingPredictions is returned when the body has no predictions array.
	errMissingPredictions = errors.New("predictions array is missing")
)

// New creates a gateway for the service at endpoint, e.g. http://192.168.86.79.
func New(endpoint string, opts ...Option) (*Gateway, error) {
	if endpoint == "" {
		return nil, errEndpointRequired
	}

	route, err := url.JoinPath(endpoint, imagePath)
	if err != nil {
		return nil, fmt.Errorf("build prediction url: %w", err)
	}

	g := &Gateway{
		endpoint:    route,
		httpClient:  http.DefaultClient,
		callTimeout: DefaultCallTimeout,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Endpoint returns the prediction URL.
func (g *Gateway) Endpoint() string {
	return g.endpoint
}

// Predict submits the image and returns every detection of the response.
func (g *Gateway) Predict(ctx context.Context, raw []byte) ([]sentinel.Detection, error) {
	callCtx, cancel := g.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, g.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", sentinel.ErrInferenceUnavailable, err)
	}

	req.Header.Set("Content-Type", contentType)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrInferenceUnavailable, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: unexpected status %s", sentinel.ErrInferenceUnavailable, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", sentinel.ErrInferenceUnavailable, err)
	}

	detections, err := parse(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrInferenceMalformedResponse, err)
	}

	for _, detection := range detections {
		logger.InfoKV(ctx, "Prediction",
			"tag", detection.TagName,
			"probability", fmt.Sprintf("%.2f%%", detection.Probability*100))
	}

	return detections, nil
}

// parse decodes the predictions array of a response body.
func parse(body []byte) ([]sentinel.Detection, error) {
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if r.Predictions == nil {
		return nil, errMissingPredictions
	}

	return *r.Predictions, nil
}

// callContext returns a context with the gateway's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (g *Gateway) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, g.callTimeout)
}
