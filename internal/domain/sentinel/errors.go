package sentinel

import "errors"

var (
	// ErrSensorRead is returned when the sensor cannot be read.
	ErrSensorRead = errors.New("sensor read failure")
	// ErrCapture is returned when the camera cannot produce an image.
	ErrCapture = errors.New("capture failure")
	// ErrInferenceUnavailable is returned when the inference service cannot be reached.
	ErrInferenceUnavailable = errors.New("inference unavailable")
	// ErrInferenceMalformedResponse is returned when the inference response has an unexpected shape.
	ErrInferenceMalformedResponse = errors.New("inference malformed response")
	// ErrRender is returned when the annotated image cannot be produced.
	ErrRender = errors.New("render failure")
	// ErrTransport is returned when the alert cannot be delivered.
	ErrTransport = errors.New("transport error")
)

// Error kinds reported in logs and metric labels.
const (
	KindSensorRead         = "sensor_read_failure"
	KindCapture            = "capture_failure"
	KindInferenceUnavail   = "inference_unavailable"
	KindInferenceMalformed = "inference_malformed_response"
	KindRender             = "render_failure"
	KindTransport          = "transport_error"
	KindUnknown            = "unknown"
)

// Kind classifies a (possibly wrapped) pipeline error.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrSensorRead):
		return KindSensorRead
	case errors.Is(err, ErrCapture):
		return KindCapture
	case errors.Is(err, ErrInferenceUnavailable):
		return KindInferenceUnavail
	case errors.Is(err, ErrInferenceMalformedResponse):
		return KindInferenceMalformed
	case errors.Is(err, ErrRender):
		return KindRender
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindUnknown
	}
}

// Kinds lists every error kind, used to pre-populate metric labels.
func Kinds() []string {
	return []string{
		KindSensorRead,
		KindCapture,
		KindInferenceUnavail,
		KindInferenceMalformed,
		KindRender,
		KindTransport,
	}
}
