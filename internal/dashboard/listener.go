package dashboard

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/models"
	"github.com/Pope4464/SmartGateS10/internal/mqtt"
)

// Listener consumes the per-gate MQTT topics. Each gate publishes under its
// own id; the listener subscribes with a wildcard and recovers the id from
// the topic when the payload omits it.
type Listener struct {
	recorder
	sub    mqtt.Subscriber
	config ListenerConfig
}

// ListenerConfig holds the wildcard topics the dashboard watches.
type ListenerConfig struct {
	DetectionTopic string
	StatusTopic    string
	HeartbeatTopic string
}

// DefaultListenerConfig returns the default topic set.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DetectionTopic: "gates/+/detection",
		StatusTopic:    "gates/+/status",
		HeartbeatTopic: "gates/+/heartbeat",
	}
}

// NewListener creates the dashboard's MQTT intake. store may be nil when no
// event history is configured.
func NewListener(
	sub mqtt.Subscriber,
	config ListenerConfig,
	registry *Registry,
	ledger *alerts.Ledger,
	store EventStore,
) *Listener {
	defaults := DefaultListenerConfig()
	if config.DetectionTopic == "" {
		config.DetectionTopic = defaults.DetectionTopic
	}
	if config.StatusTopic == "" {
		config.StatusTopic = defaults.StatusTopic
	}
	if config.HeartbeatTopic == "" {
		config.HeartbeatTopic = defaults.HeartbeatTopic
	}
	return &Listener{
		recorder: recorder{
			registry: registry,
			ledger:   ledger,
			store:    store,
		},
		sub:    sub,
		config: config,
	}
}

// SubscribeAll attaches every gate-topic handler.
func (l *Listener) SubscribeAll() error {
	subscriptions := map[string]func(topic string, payload []byte){
		l.config.DetectionTopic: l.handleDetection,
		l.config.StatusTopic:    l.handleStatus,
		l.config.HeartbeatTopic: l.handleHeartbeat,
	}

	for topic, handler := range subscriptions {
		if err := l.sub.Subscribe(topic, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	log.Printf("Dashboard: subscribed to %d gate topics", len(subscriptions))
	return nil
}

func (l *Listener) handleDetection(topic string, payload []byte) {
	var report models.DetectionReport
	if err := json.Unmarshal(payload, &report); err != nil {
		log.Printf("Dashboard: error unmarshaling detection from %s: %v", topic, err)
		return
	}
	if report.GateID == "" {
		report.GateID = mqtt.ExtractGateID(topic)
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}

	log.Printf("Dashboard: gate %s detected %v", report.GateID, report.Objects)
	l.recordDetection(report)
}

func (l *Listener) handleStatus(topic string, payload []byte) {
	var update models.StatusUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		log.Printf("Dashboard: error unmarshaling status from %s: %v", topic, err)
		return
	}
	if update.GateID == "" {
		update.GateID = mqtt.ExtractGateID(topic)
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}

	log.Printf("Dashboard: gate %s status %s", update.GateID, update.Status)
	l.recordStatus(update)
}

func (l *Listener) handleHeartbeat(topic string, payload []byte) {
	var beat models.Heartbeat
	if err := json.Unmarshal(payload, &beat); err != nil {
		log.Printf("Dashboard: error unmarshaling heartbeat from %s: %v", topic, err)
		return
	}
	if beat.GateID == "" {
		beat.GateID = mqtt.ExtractGateID(topic)
	}

	l.registry.MarkSeen(beat.GateID, beat.Timestamp)
}
