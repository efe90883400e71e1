// Package alert builds the canonical alert record of a triggered cycle and
// serializes it to the JSON document forwarded to the cloud.
package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oshokin/heat-sentinel/internal/domain/sentinel"
)

// jsonIndent matches the indentation of the documents already stored in the cloud.
const jsonIndent = "    "

// document is the wire form of an AlertRecord.
// Fields are declared in key order so the output is sorted and stable.
type document struct {
	CapturedAt         string           `json:"capturedAt"`
	Detections         []detectionEntry `json:"detections"`
	ImageReference     string           `json:"imageReference"`
	TemperatureCelsius float64          `json:"temperatureCelsius"`
}

// detectionEntry is the wire form of an AlertDetection.
type detectionEntry struct {
	Probability float64 `json:"probability"`
	TagName     string  `json:"tagName"`
}

// Merge builds the alert record from the detections of one capture and the reading that triggered it.
// Only detections with probability above threshold and a non-empty tag are kept, in input order.
func Merge(
	detections []sentinel.Detection,
	temperature float64,
	capturedAt time.Time,
	imageReference string,
	threshold float64,
) sentinel.AlertRecord {
	kept := make([]sentinel.AlertDetection, 0, len(detections))

	for _, detection := range detections {
		if !keep(detection.TagName, detection.Probability, threshold) {
			continue
		}

		kept = append(kept, sentinel.AlertDetection{
			TagName:     detection.TagName,
			Probability: detection.Probability,
		})
	}

	return sentinel.AlertRecord{
		CapturedAt:         capturedAt,
		TemperatureCelsius: temperature,
		ImageReference:     imageReference,
		Detections:         kept,
	}
}

// keep reports whether a detection belongs in the alert.
func keep(tagName string, probability, threshold float64) bool {
	return probability > threshold && tagName != ""
}

// Marshal renders the record in its canonical form: sorted keys, fixed indentation,
// UTC timestamps. Equal records always produce identical bytes.
func Marshal(record *sentinel.AlertRecord) ([]byte, error) {
	doc := document{
		CapturedAt:         record.CapturedAt.UTC().Format(time.RFC3339Nano),
		Detections:         make([]detectionEntry, 0, len(record.Detections)),
		ImageReference:     record.ImageReference,
		TemperatureCelsius: record.TemperatureCelsius,
	}

	for _, detection := range record.Detections {
		doc.Detections = append(doc.Detections, detectionEntry{
			Probability: detection.Probability,
			TagName:     detection.TagName,
		})
	}

	data, err := json.MarshalIndent(doc, "", jsonIndent)
	if err != nil {
		return nil, fmt.Errorf("marshal alert: %w", err)
	}

	return data, nil
}

// Unmarshal parses a document produced by Marshal.
func Unmarshal(data []byte) (sentinel.AlertRecord, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return sentinel.AlertRecord{}, fmt.Errorf("unmarshal alert: %w", err)
	}

	capturedAt, err := time.Parse(time.RFC3339Nano, doc.CapturedAt)
	if err != nil {
		return sentinel.AlertRecord{}, fmt.Errorf("parse captured at: %w", err)
	}

	record := sentinel.AlertRecord{
		CapturedAt:         capturedAt,
		TemperatureCelsius: doc.TemperatureCelsius,
		ImageReference:     doc.ImageReference,
		Detections:         make([]sentinel.AlertDetection, 0, len(doc.Detections)),
	}

	for _, entry := range doc.Detections {
		record.Detections = append(record.Detections, sentinel.AlertDetection{
			TagName:     entry.TagName,
			Probability: entry.Probability,
		})
	}

	return record, nil
}
