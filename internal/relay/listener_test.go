package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/gate"
)

type nopActuator struct {
	openErr error
}

func (a *nopActuator) Open() error  { return a.openErr }
func (a *nopActuator) Close() error { return nil }

type fakeStream struct {
	starts int32
	stops  int32
}

func (s *fakeStream) Start() { atomic.AddInt32(&s.starts, 1) }
func (s *fakeStream) Stop()  { atomic.AddInt32(&s.stops, 1) }

type fakeReporter struct {
	mu       sync.Mutex
	statuses []string
}

func (r *fakeReporter) ReportStatus(status string, detectionContext []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *fakeReporter) acked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.statuses))
	copy(out, r.statuses)
	return out
}

type fakeSubscriber struct {
	topic   string
	handler func(topic string, payload []byte)
	err     error
}

func (s *fakeSubscriber) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	s.topic = topic
	s.handler = handler
	return s.err
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for " + msg)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

type listenerFixture struct {
	listener *Listener
	gate     *gate.StateMachine
	stream   *fakeStream
	reporter *fakeReporter
	ledger   *alerts.Ledger
	cancel   context.CancelFunc
}

func newListenerFixture(t *testing.T, actuator gate.Actuator) *listenerFixture {
	t.Helper()
	ledger := alerts.NewLedger()
	sm := gate.NewStateMachine(actuator, ledger)
	stream := &fakeStream{}
	reporter := &fakeReporter{}

	cfg := DefaultListenerConfig()
	cfg.GateID = "1"
	l := NewListener(&fakeSubscriber{}, cfg, sm, stream, reporter, ledger)

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(cancel)

	return &listenerFixture{
		listener: l,
		gate:     sm,
		stream:   stream,
		reporter: reporter,
		ledger:   ledger,
		cancel:   cancel,
	}
}

func (f *listenerFixture) deliver(payload string) {
	f.listener.handleCommand("gates/1/commands", []byte(payload))
}

func TestListenerAppliesOpenDoorCommand(t *testing.T) {
	f := newListenerFixture(t, &nopActuator{})

	// A remote open command must move the gate without the rule engine.
	f.deliver(`{"action": "OPEN_DOOR"}`)

	waitFor(t, func() bool { return f.gate.State() == gate.StateOpen }, "gate to open")
	waitFor(t, func() bool { return len(f.reporter.acked()) == 1 }, "status ack")

	if got := f.reporter.acked()[0]; got != "door_opened" {
		t.Fatalf("ack = %q, want door_opened", got)
	}
}

func TestListenerAppliesCommandsInReceiptOrder(t *testing.T) {
	f := newListenerFixture(t, &nopActuator{})

	f.deliver(`{"action": "OPEN_DOOR"}`)
	f.deliver(`{"action": "CLOSE_DOOR"}`)
	f.deliver(`{"action": "OPEN_DOOR"}`)

	waitFor(t, func() bool { return len(f.reporter.acked()) == 3 }, "all acks")

	want := []string{"door_opened", "door_closed", "door_opened"}
	got := f.reporter.acked()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ack order = %v, want %v", got, want)
		}
	}
	if f.gate.State() != gate.StateOpen {
		t.Fatalf("final state = %q, want open", f.gate.State())
	}
}

func TestListenerUnknownCommand(t *testing.T) {
	f := newListenerFixture(t, &nopActuator{})

	f.deliver(`{"action": "EJECT"}`)

	waitFor(t, func() bool {
		for _, a := range f.ledger.List(0) {
			if a.Level == alerts.LevelWarning && strings.Contains(a.Message, "unknown remote command") {
				return true
			}
		}
		return false
	}, "warning alert")

	if f.gate.State() != gate.StateClosed {
		t.Fatal("unknown command must not move the gate")
	}
	if len(f.reporter.acked()) != 0 {
		t.Fatal("unknown command must not be acked")
	}
}

func TestListenerMalformedPayload(t *testing.T) {
	f := newListenerFixture(t, &nopActuator{})

	f.deliver(`{"action": `)

	found := false
	for _, a := range f.ledger.List(0) {
		if a.Level == alerts.LevelWarning && strings.Contains(a.Message, "malformed remote command") {
			found = true
		}
	}
	if !found {
		t.Fatal("malformed payload must record a warning alert")
	}
}

func TestListenerStreamCommands(t *testing.T) {
	f := newListenerFixture(t, &nopActuator{})

	f.deliver(`{"action": "START_STREAM"}`)
	f.deliver(`{"action": "STOP_STREAM"}`)

	waitFor(t, func() bool {
		return atomic.LoadInt32(&f.stream.starts) == 1 && atomic.LoadInt32(&f.stream.stops) == 1
	}, "stream start and stop")
}

func TestListenerActuatorFailureNotAcked(t *testing.T) {
	f := newListenerFixture(t, &nopActuator{openErr: errors.New("motor stalled")})

	f.deliver(`{"action": "OPEN_DOOR"}`)

	waitFor(t, func() bool {
		for _, a := range f.ledger.List(0) {
			if a.Level == alerts.LevelCritical {
				return true
			}
		}
		return false
	}, "critical alert from failed actuation")

	if f.gate.State() != gate.StateClosed {
		t.Fatal("state must not advance on actuator failure")
	}
	if len(f.reporter.acked()) != 0 {
		t.Fatal("failed command must not be acked")
	}
}

func TestListenerSubscribeResolvesTopic(t *testing.T) {
	sub := &fakeSubscriber{}
	ledger := alerts.NewLedger()
	sm := gate.NewStateMachine(&nopActuator{}, ledger)

	cfg := DefaultListenerConfig()
	cfg.GateID = "7"
	l := NewListener(sub, cfg, sm, &fakeStream{}, &fakeReporter{}, ledger)

	if err := l.Subscribe(); err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if sub.topic != "gates/7/commands" {
		t.Fatalf("subscribed topic = %q, want gates/7/commands", sub.topic)
	}

	// Delivery through the subscription handler reaches dispatch.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	sub.handler("gates/7/commands", []byte(`{"action": "OPEN_DOOR"}`))
	waitFor(t, func() bool { return sm.State() == gate.StateOpen }, "gate to open via subscription")
}

func TestListenerSubscribeError(t *testing.T) {
	sub := &fakeSubscriber{err: errors.New("broker unreachable")}
	ledger := alerts.NewLedger()
	sm := gate.NewStateMachine(&nopActuator{}, ledger)

	l := NewListener(sub, DefaultListenerConfig(), sm, &fakeStream{}, &fakeReporter{}, ledger)
	if err := l.Subscribe(); err == nil {
		t.Fatal("expected subscribe error to propagate")
	}
}
