// Package render produces the annotated copy of a capture.
//
// Renderer holds no decision logic: it maps detections with the geometry
// package and asks a Canvas to draw one box and one label per survivor.
package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // Register the JPEG decoder for captures.

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
	"github.com/oshokin/heat-sentinel/internal/geometry"
	"github.com/oshokin/heat-sentinel/internal/logger"
)

// lineWidthDivisor makes the box outline proportional to the image width.
const lineWidthDivisor = 100

// Store persists the annotated image.
type Store interface {
	SaveAnnotated(ctx context.Context, artifact *sentinel.CaptureArtifact, data []byte) (string, error)
}

// Renderer draws detections onto captures.
type Renderer struct {
	// store receives the encoded annotated image.
	store Store
	// threshold is the confidence a detection must exceed to be drawn.
	threshold float64
	// newCanvas creates the drawing surface for a decoded capture.
	newCanvas CanvasFactory
}

// Option configures the renderer.
type Option func(*Renderer)

// WithThreshold sets the detection confidence cut-off.
func WithThreshold(threshold float64) Option {
	return func(r *Renderer) {
		r.threshold = threshold
	}
}

// WithCanvas replaces the drawing capability.
func WithCanvas(factory CanvasFactory) Option {
	return func(r *Renderer) {
		if factory != nil {
			r.newCanvas = factory
		}
	}
}

// New creates a renderer writing into store.
func New(store Store, opts ...Option) *Renderer {
	r := &Renderer{
		store:     store,
		threshold: geometry.DefaultProbabilityThreshold,
		newCanvas: NewImageCanvas,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Annotate draws the confident detections onto the capture and persists
// the result as <id>-op.jpg, returning its path.
func (r *Renderer) Annotate(
	ctx context.Context,
	artifact *sentinel.CaptureArtifact,
	detections []sentinel.Detection,
) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(artifact.RawBytes))
	if err != nil {
		return "", fmt.Errorf("%w: decode capture: %w", sentinel.ErrRender, err)
	}

	var (
		bounds = img.Bounds()
		height = bounds.Dy()
		width  = bounds.Dx()
	)

	logger.DebugKV(ctx, "Decoded capture",
		"height", height,
		"width", width,
		"channels", channels(img.ColorModel()))

	var (
		annotations = geometry.ToAbsolute(detections, height, width, r.threshold)
		lineWidth   = max(1, width/lineWidthDivisor)
		canvas      = r.newCanvas(img)
	)

	for _, annotation := range annotations {
		canvas.Rectangle(annotation.Box, lineWidth)
		canvas.Label(int(annotation.Box.Left), int(annotation.Box.Top), Label(annotation.Detection))
	}

	var buf bytes.Buffer
	if err = canvas.Encode(&buf); err != nil {
		return "", fmt.Errorf("%w: encode annotated image: %w", sentinel.ErrRender, err)
	}

	path, err := r.store.SaveAnnotated(ctx, artifact, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("%w: %w", sentinel.ErrRender, err)
	}

	logger.InfoKV(ctx, "Annotated image saved", "path", path, "boxes", len(annotations))

	return path, nil
}

// Label renders the caption of a detection, e.g. "person: 92.00%".
func Label(detection sentinel.Detection) string {
	return fmt.Sprintf("%s: %.2f%%", detection.TagName, detection.Probability*100)
}

// channels reports the number of color channels of a decoded image.
func channels(model color.Model) int {
	switch model {
	case color.GrayModel, color.Gray16Model:
		return 1
	case color.CMYKModel:
		return 4
	default:
		return 3
	}
}
