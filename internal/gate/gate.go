package gate

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/rules"
)

// State is the authoritative gate position. There is exactly one value per
// physical gate, owned by the StateMachine.
type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Actuator is the physical gate driver boundary. Implementations are assumed
// synchronous and fast (motor control is external to this package).
type Actuator interface {
	Open() error
	Close() error
}

// LogActuator is the default actuator for deployments without motor
// hardware. It logs the request and reports success.
type LogActuator struct{}

func (LogActuator) Open() error {
	log.Println("Gate: actuator open")
	return nil
}

func (LogActuator) Close() error {
	log.Println("Gate: actuator close")
	return nil
}

// StateMachine owns the gate state and serializes every actuation request.
// The detection loop and the inbound command listener both call Apply; the
// mutex guarantees no two actuator calls ever run concurrently and that a
// caller always observes the latest state.
type StateMachine struct {
	mu         sync.Mutex
	state      State
	actuator   Actuator
	ledger     *alerts.Ledger
	lastChange time.Time
}

// NewStateMachine creates a state machine in the closed position, the safe
// default at process start.
func NewStateMachine(actuator Actuator, ledger *alerts.Ledger) *StateMachine {
	return &StateMachine{
		state:    StateClosed,
		actuator: actuator,
		ledger:   ledger,
	}
}

// Apply executes a gate action. Repeated same-direction requests are
// idempotent no-ops that skip the actuator. Every attempt, including no-ops,
// records exactly one info alert so the ledger is a full audit trail of
// actuation intents. On actuator failure the recorded state does not advance,
// one critical alert is recorded and the error returns to the caller.
// The returned bool reports whether the physical state changed.
func (m *StateMachine) Apply(action rules.Action) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch action {
	case rules.ActionOpen:
		if m.state == StateOpen {
			m.ledger.Add("door already open", alerts.LevelInfo)
			return false, nil
		}
		if err := m.actuator.Open(); err != nil {
			m.ledger.Add(fmt.Sprintf("failed to open door: %v", err), alerts.LevelCritical)
			return false, fmt.Errorf("failed to open door: %w", err)
		}
		m.state = StateOpen
		m.lastChange = time.Now()
		m.ledger.Add("door_opened", alerts.LevelInfo)
		return true, nil

	case rules.ActionClose:
		if m.state == StateClosed {
			m.ledger.Add("door already closed", alerts.LevelInfo)
			return false, nil
		}
		if err := m.actuator.Close(); err != nil {
			m.ledger.Add(fmt.Sprintf("failed to close door: %v", err), alerts.LevelCritical)
			return false, fmt.Errorf("failed to close door: %w", err)
		}
		m.state = StateClosed
		m.lastChange = time.Now()
		m.ledger.Add("door_closed", alerts.LevelInfo)
		return true, nil

	default:
		return false, fmt.Errorf("unknown gate action %q", action)
	}
}

// State returns the current gate position.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastChange returns when the gate last physically moved. Zero until the
// first transition.
func (m *StateMachine) LastChange() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChange
}
