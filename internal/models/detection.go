package models

import "time"

// Detection is a single labeled object reported by the inference engine.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0-1
}

// DetectionReport is the payload sent to the dashboard when a detection
// cycle observed one or more objects. Objects may contain duplicates when
// the same class is detected more than once in a frame; consumers treat it
// as a set.
type DetectionReport struct {
	GateID      string    `json:"gate_id"`
	Objects     []string  `json:"objects"`
	Confidences []float64 `json:"confidences,omitempty"` // parallel to Objects
	Timestamp   time.Time `json:"timestamp"`
}

// Labels extracts the object class names from a detection slice.
func Labels(detections []Detection) []string {
	labels := make([]string, len(detections))
	for i, d := range detections {
		labels[i] = d.Label
	}
	return labels
}

// Confidences extracts the per-object scores, parallel to Labels.
func Confidences(detections []Detection) []float64 {
	scores := make([]float64, len(detections))
	for i, d := range detections {
		scores[i] = d.Confidence
	}
	return scores
}
