package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/gate"
	"github.com/Pope4464/SmartGateS10/internal/models"
	"github.com/Pope4464/SmartGateS10/internal/mqtt"
	"github.com/Pope4464/SmartGateS10/internal/rules"
)

// GateController applies remote gate actions. *gate.StateMachine implements it.
type GateController interface {
	Apply(action rules.Action) (bool, error)
	State() gate.State
}

// StreamController starts and stops the camera tunnel.
// *tunnel.Supervisor implements it.
type StreamController interface {
	Start()
	Stop()
}

// StatusReporter echoes applied commands back to the remote side.
// *Client implements it.
type StatusReporter interface {
	ReportStatus(status string, detectionContext []string)
}

// Listener receives remote commands from the per-gate command topic and
// applies them locally. All commands pass through one queue consumed by a
// single goroutine, so they apply in receipt order and serialize naturally
// against the gate state machine.
type Listener struct {
	sub      mqtt.Subscriber
	gate     GateController
	stream   StreamController
	reporter StatusReporter
	ledger   *alerts.Ledger

	// Command queue (written by the MQTT handler, read by Run)
	commands chan *models.Command

	topic string
}

// ListenerConfig holds configuration for the inbound command listener.
type ListenerConfig struct {
	CommandTopic string // e.g. "gates/{gate_id}/commands"
	GateID       string
	QueueSize    int
}

// DefaultListenerConfig returns the default inbound configuration.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		CommandTopic: "gates/{gate_id}/commands",
		GateID:       "1",
		QueueSize:    16,
	}
}

// NewListener creates the inbound command listener.
func NewListener(
	sub mqtt.Subscriber,
	config ListenerConfig,
	gateCtl GateController,
	stream StreamController,
	reporter StatusReporter,
	ledger *alerts.Ledger,
) *Listener {
	if config.QueueSize <= 0 {
		config.QueueSize = 16
	}
	return &Listener{
		sub:      sub,
		gate:     gateCtl,
		stream:   stream,
		reporter: reporter,
		ledger:   ledger,
		commands: make(chan *models.Command, config.QueueSize),
		topic:    mqtt.FormatTopic(config.CommandTopic, config.GateID),
	}
}

// Subscribe attaches the listener to its command topic.
func (l *Listener) Subscribe() error {
	if err := l.sub.Subscribe(l.topic, l.handleCommand); err != nil {
		return fmt.Errorf("failed to subscribe to command topic: %w", err)
	}
	log.Printf("Listener: subscribed to command topic: %s", l.topic)
	return nil
}

// Run consumes queued commands until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	log.Println("Listener: starting command dispatch...")

	for {
		select {
		case <-ctx.Done():
			log.Println("Listener: context cancelled, shutting down...")
			return
		case cmd := <-l.commands:
			l.dispatch(cmd)
		}
	}
}

// handleCommand decodes an inbound payload and queues it for dispatch.
func (l *Listener) handleCommand(topic string, payload []byte) {
	var cmd models.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		log.Printf("Listener: error unmarshaling command: %v", err)
		l.ledger.Add(fmt.Sprintf("malformed remote command: %v", err), alerts.LevelWarning)
		return
	}

	if cmd.GateID == "" {
		cmd.GateID = mqtt.ExtractGateID(topic)
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	log.Printf("Listener: received command %q for gate %s", cmd.Action, cmd.GateID)

	// Write to queue (non-blocking with timeout)
	select {
	case l.commands <- &cmd:
	case <-time.After(1 * time.Second):
		log.Printf("Listener: Warning - command queue full, dropping %q", cmd.Action)
		l.ledger.Add(fmt.Sprintf("command queue full, dropped %q", cmd.Action), alerts.LevelWarning)
	}
}

// dispatch applies one command. Door commands go to the gate state machine
// and are acked with the resulting status; stream commands go to the tunnel
// supervisor. Unknown actions are recorded and ignored so newer remote sides
// can send commands this build does not know yet.
func (l *Listener) dispatch(cmd *models.Command) {
	switch cmd.Action {
	case models.ActionOpenDoor:
		if _, err := l.gate.Apply(rules.ActionOpen); err != nil {
			log.Printf("Listener: open command failed: %v", err)
			return
		}
		l.reporter.ReportStatus(models.StatusDoorOpened, nil)

	case models.ActionCloseDoor:
		if _, err := l.gate.Apply(rules.ActionClose); err != nil {
			log.Printf("Listener: close command failed: %v", err)
			return
		}
		l.reporter.ReportStatus(models.StatusDoorClosed, nil)

	case models.ActionStartStream:
		log.Println("Listener: starting camera stream tunnel")
		l.stream.Start()

	case models.ActionStopStream:
		log.Println("Listener: stopping camera stream tunnel")
		l.stream.Stop()

	default:
		log.Printf("Listener: unknown command %q ignored", cmd.Action)
		l.ledger.Add(fmt.Sprintf("unknown remote command: %q", cmd.Action), alerts.LevelWarning)
	}
}
