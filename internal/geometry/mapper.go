// Package geometry converts relative detection boxes into pixel coordinates.
package geometry

import (
	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
)

// DefaultProbabilityThreshold is the confidence a detection must exceed to be kept.
const DefaultProbabilityThreshold = 0.70

// ToAbsolute keeps detections with probability strictly above threshold and maps
// their relative boxes onto an image of the given dimensions.
// Input order is preserved, an empty input yields an empty result.
func ToAbsolute(
	detections []sentinel.Detection,
	imageHeight, imageWidth int,
	threshold float64,
) []sentinel.Annotation {
	result := make([]sentinel.Annotation, 0, len(detections))

	var (
		height = float64(imageHeight)
		width  = float64(imageWidth)
	)

	for _, detection := range detections {
		if detection.Probability <= threshold {
			continue
		}

		box := detection.BoundingBox

		result = append(result, sentinel.Annotation{
			Detection: detection,
			Box: sentinel.AbsoluteBox{
				Left:   box.Left * width,
				Top:    box.Top * height,
				Width:  box.Width * width,
				Height: box.Height * height,
			},
		})
	}

	return result
}
