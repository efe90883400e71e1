package sentinel

import (
	"fmt"
	"time"
)

const (
	// CapturePrefix starts every capture identifier.
	CapturePrefix = "img_"
	// ImageExtension is appended to capture identifiers to build file names.
	ImageExtension = ".jpg"
	// AnnotatedSuffix marks the annotated copy of a capture.
	AnnotatedSuffix = "-op"

	microsPerSecond = int64(time.Second / time.Microsecond)
)

// Reading is a single ambient measurement taken by the sensor.
type Reading struct {
	// Humidity is the relative humidity in percent.
	Humidity float64
	// TemperatureCelsius is the ambient temperature.
	TemperatureCelsius float64
	// ObservedAt is when the measurement was taken.
	ObservedAt time.Time
}

// CaptureArtifact is one JPEG image taken by the camera.
type CaptureArtifact struct {
	// ID correlates the raw image, the annotated copy and the alert record.
	ID string
	// RawBytes holds the JPEG-encoded image.
	RawBytes []byte
	// CapturedAt is when the image was taken.
	CapturedAt time.Time
}

// ImageReference returns the file name of the raw image.
func (a *CaptureArtifact) ImageReference() string {
	return a.ID + ImageExtension
}

// AnnotatedReference returns the file name of the annotated image.
func (a *CaptureArtifact) AnnotatedReference() string {
	return a.ID + AnnotatedSuffix + ImageExtension
}

// CaptureID derives a capture identifier from the capture time,
// e.g. img_1791972000.500000.
func CaptureID(t time.Time) string {
	micros := t.UnixMicro()

	return fmt.Sprintf("%s%d.%06d", CapturePrefix, micros/microsPerSecond, micros%microsPerSecond)
}

// BoundingBox is a box relative to the image dimensions, every field in [0,1].
type BoundingBox struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Detection is one object proposal returned by the inference service.
type Detection struct {
	// TagName is the label of the detected object.
	TagName string `json:"tagName"`
	// Probability is the confidence in [0,1].
	Probability float64 `json:"probability"`
	// BoundingBox locates the object relative to the image.
	BoundingBox BoundingBox `json:"boundingBox"`
}

// AbsoluteBox is a bounding box in pixel coordinates.
type AbsoluteBox struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// Right returns the x coordinate of the right edge.
func (b AbsoluteBox) Right() float64 {
	return b.Left + b.Width
}

// Bottom returns the y coordinate of the bottom edge.
func (b AbsoluteBox) Bottom() float64 {
	return b.Top + b.Height
}

// Annotation pairs a detection that passed the confidence filter with its pixel box.
type Annotation struct {
	Detection Detection
	Box       AbsoluteBox
}

// AlertDetection is the part of a detection carried by the alert record.
type AlertDetection struct {
	TagName     string
	Probability float64
}

// AlertRecord is the canonical summary of one triggered cycle.
type AlertRecord struct {
	// CapturedAt is when the triggering image was taken.
	CapturedAt time.Time
	// TemperatureCelsius is the temperature that triggered the cycle.
	TemperatureCelsius float64
	// ImageReference names the raw image on local disk.
	ImageReference string
	// Detections holds the filtered detections in the order the service returned them.
	Detections []AlertDetection
}

// CycleReport summarizes one triggered cycle for observers.
type CycleReport struct {
	// ArtifactID is the capture of the cycle, empty when the capture failed.
	ArtifactID string
	// Duration is the wall time from capture to the end of the pipeline.
	Duration time.Duration
	// Detections is the number of detections in the forwarded alert.
	Detections int
	// Sent reports whether the alert reached the cloud.
	Sent bool
	// Err is the failure that aborted the cycle, nil on success.
	Err error
	// RenderErr is a cosmetic failure that did not abort the cycle.
	RenderErr error
}

// Succeeded reports whether the alert was delivered.
func (r *CycleReport) Succeeded() bool {
	return r.Err == nil && r.Sent
}
