package sentinel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCaptureID verifies identifiers are derived from capture time with microsecond precision.
func TestCaptureID(t *testing.T) {
	t.Parallel()

	ts := time.Unix(1791972000, 500000000)
	require.Equal(t, "img_1791972000.500000", CaptureID(ts))
	require.NotEqual(t, CaptureID(ts), CaptureID(ts.Add(time.Microsecond)))
}

// TestCaptureArtifactReferences checks raw and annotated file names.
func TestCaptureArtifactReferences(t *testing.T) {
	t.Parallel()

	a := &CaptureArtifact{ID: "img_1.000000"}
	require.Equal(t, "img_1.000000.jpg", a.ImageReference())
	require.Equal(t, "img_1.000000-op.jpg", a.AnnotatedReference())
}

// TestKind maps wrapped errors to their kinds.
func TestKind(t *testing.T) {
	t.Parallel()

	cases := map[error]string{
		ErrSensorRead:                 KindSensorRead,
		ErrCapture:                    KindCapture,
		ErrInferenceUnavailable:       KindInferenceUnavail,
		ErrInferenceMalformedResponse: KindInferenceMalformed,
		ErrRender:                     KindRender,
		ErrTransport:                  KindTransport,
	}
	for err, kind := range cases {
		wrapped := fmt.Errorf("cycle: %w", err)
		require.Equal(t, kind, Kind(wrapped))
	}

	require.Equal(t, KindUnknown, Kind(errors.New("boom")))
	require.Len(t, Kinds(), len(cases))
}

// TestStateString checks state names.
func TestStateString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "IDLE", StateIdle.String())
	require.Equal(t, "TRIGGERED", StateTriggered.String())
	require.Equal(t, "COOLDOWN", StateCooldown.String())
	require.Equal(t, "UNKNOWN", State(42).String())
}
