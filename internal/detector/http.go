package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/models"
)

// HTTPDetector polls the inference sidecar for the latest detection set. The
// YOLO engine runs out of process (it owns the camera and the GPU); this
// client is the consumer boundary the detection loop blocks on.
type HTTPDetector struct {
	http          *http.Client
	url           string
	interval      time.Duration
	minConfidence float64
}

// Config holds inference sidecar polling configuration.
type Config struct {
	URL           string        // detections endpoint of the sidecar
	PollInterval  time.Duration // pause between polls, paces the loop
	Timeout       time.Duration // per-request bound
	MinConfidence float64       // detections scoring below are dropped
}

// DefaultConfig returns the default sidecar polling configuration.
func DefaultConfig() Config {
	return Config{
		URL:           "http://localhost:8090/detections",
		PollInterval:  200 * time.Millisecond,
		Timeout:       2 * time.Second,
		MinConfidence: 0.5,
	}
}

// detectionsResponse is the sidecar's wire shape.
type detectionsResponse struct {
	Detections []models.Detection `json:"detections"`
}

// New creates a sidecar polling detector.
func New(config Config) *HTTPDetector {
	if config.PollInterval <= 0 {
		config.PollInterval = 200 * time.Millisecond
	}
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	return &HTTPDetector{
		http:          &http.Client{Timeout: config.Timeout},
		url:           config.URL,
		interval:      config.PollInterval,
		minConfidence: config.MinConfidence,
	}
}

// NextDetections waits one poll interval, fetches the latest detection set
// and filters out low-confidence hits. Errors are transient: the caller logs
// them and calls again.
func (d *HTTPDetector) NextDetections(ctx context.Context) ([]models.Detection, error) {
	t := time.NewTimer(d.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.C:
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build detector request: %w", err)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch detections: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("detector returned %s", resp.Status)
	}

	var out detectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}

	return d.filter(out.Detections), nil
}

func (d *HTTPDetector) filter(detections []models.Detection) []models.Detection {
	if d.minConfidence <= 0 {
		return detections
	}
	kept := detections[:0]
	for _, det := range detections {
		if det.Confidence >= d.minConfidence {
			kept = append(kept, det)
		}
	}
	return kept
}
