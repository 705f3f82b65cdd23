package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/models"
	"github.com/Pope4464/SmartGateS10/internal/mqtt"
)

// Client forwards local events to the remote dashboard. Every outbound call
// is best-effort with a hard bound: failures are logged and swallowed so the
// detection loop never blocks on network state and never sees a relay error.
// No ordering is guaranteed across outbound calls.
type Client struct {
	http      *http.Client
	detectURL string
	gateID    string

	pub            mqtt.Publisher
	statusTopic    string
	heartbeatTopic string
	interval       time.Duration
}

// ClientConfig holds configuration for the outbound relay.
type ClientConfig struct {
	DashboardURL      string // base URL of the remote dashboard
	GateID            string
	Timeout           time.Duration // bound on the detection report call
	StatusTopic       string        // e.g. "gates/{gate_id}/status"
	HeartbeatTopic    string        // e.g. "gates/{gate_id}/heartbeat"
	HeartbeatInterval time.Duration
}

// DefaultClientConfig returns the default outbound relay configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		DashboardURL:      "http://localhost:5000",
		GateID:            "1",
		Timeout:           2 * time.Second,
		StatusTopic:       "gates/{gate_id}/status",
		HeartbeatTopic:    "gates/{gate_id}/heartbeat",
		HeartbeatInterval: 10 * time.Second,
	}
}

// NewClient creates an outbound relay. pub may be nil when the deployment
// has no broker; MQTT-side reporting then degrades to log lines.
func NewClient(pub mqtt.Publisher, config ClientConfig) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 10 * time.Second
	}
	return &Client{
		http:           &http.Client{Timeout: config.Timeout},
		detectURL:      config.DashboardURL + "/detection",
		gateID:         config.GateID,
		pub:            pub,
		statusTopic:    mqtt.FormatTopic(config.StatusTopic, config.GateID),
		heartbeatTopic: mqtt.FormatTopic(config.HeartbeatTopic, config.GateID),
		interval:       config.HeartbeatInterval,
	}
}

// ReportDetection posts the detection set to the dashboard. Any failure
// (timeout, refused connection, non-2xx, bad payload) is swallowed: the
// report is dropped with a log line and the caller continues untouched.
func (c *Client) ReportDetection(report models.DetectionReport) {
	report.GateID = c.gateID
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}

	body, err := json.Marshal(report)
	if err != nil {
		log.Printf("Relay: detection report dropped: %v", err)
		return
	}

	resp, err := c.http.Post(c.detectURL, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("Relay: detection report dropped: %v", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Relay: detection report rejected: %s", resp.Status)
		return
	}
}

// ReportStatus echoes a gate status change to the per-gate status topic,
// fire-and-forget. Used to ack applied remote commands and local transitions.
func (c *Client) ReportStatus(status string, detectionContext []string) {
	update := models.StatusUpdate{
		GateID:           c.gateID,
		Status:           status,
		Timestamp:        time.Now(),
		DetectionContext: detectionContext,
	}
	c.publish(c.statusTopic, update)
}

// RunHeartbeat publishes a liveness beacon every interval until ctx is
// cancelled, starting with one immediate beat so the dashboard discovers the
// gate right after startup.
func (c *Client) RunHeartbeat(ctx context.Context) {
	log.Printf("Relay: heartbeat every %v on %s", c.interval, c.heartbeatTopic)

	c.beat()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Relay: heartbeat stopped")
			return
		case <-ticker.C:
			c.beat()
		}
	}
}

func (c *Client) beat() {
	c.publish(c.heartbeatTopic, models.Heartbeat{
		GateID:    c.gateID,
		Timestamp: time.Now(),
	})
}

// publish marshals and publishes fire-and-forget. Errors are logged, never
// returned.
func (c *Client) publish(topic string, v interface{}) {
	if c.pub == nil {
		log.Printf("Relay: no broker configured, dropped message for %s", topic)
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("Relay: dropped message for %s: %v", topic, err)
		return
	}
	if err := c.pub.Publish(topic, payload); err != nil {
		log.Printf("Relay: dropped message for %s: %v", topic, err)
	}
}

// GateID returns the configured gate identity.
func (c *Client) GateID() string {
	return c.gateID
}
