package controller

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/gate"
	"github.com/Pope4464/SmartGateS10/internal/models"
	"github.com/Pope4464/SmartGateS10/internal/rules"
)

type detectResult struct {
	detections []models.Detection
	err        error
}

type scriptedDetector struct {
	results chan detectResult
}

func newScriptedDetector() *scriptedDetector {
	return &scriptedDetector{results: make(chan detectResult, 16)}
}

func (d *scriptedDetector) NextDetections(ctx context.Context) ([]models.Detection, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-d.results:
		return r.detections, r.err
	}
}

func (d *scriptedDetector) feed(labels ...string) {
	detections := make([]models.Detection, len(labels))
	for i, label := range labels {
		detections[i] = models.Detection{Label: label, Confidence: 0.9}
	}
	d.results <- detectResult{detections: detections}
}

func (d *scriptedDetector) fail(err error) {
	d.results <- detectResult{err: err}
}

type statusAck struct {
	status  string
	context []string
}

type recordingReporter struct {
	mu       sync.Mutex
	reports  []models.DetectionReport
	statuses []statusAck
}

func (r *recordingReporter) ReportDetection(report models.DetectionReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
}

func (r *recordingReporter) ReportStatus(status string, detectionContext []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusAck{status: status, context: detectionContext})
}

func (r *recordingReporter) reportCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func (r *recordingReporter) lastReport() models.DetectionReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reports[len(r.reports)-1]
}

func (r *recordingReporter) acks() []statusAck {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]statusAck, len(r.statuses))
	copy(out, r.statuses)
	return out
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

type loopFixture struct {
	loop     *Loop
	gate     *gate.StateMachine
	ledger   *alerts.Ledger
	detector *scriptedDetector
	reporter *recordingReporter
	done     chan struct{}
	cancel   context.CancelFunc
}

func dogOpenCatClose() []rules.Rule {
	return []rules.Rule{
		{Name: "open-for-dogs", TriggerLabels: []string{"dog"}, Action: rules.ActionOpen},
		{Name: "close-for-cats", TriggerLabels: []string{"cat"}, Action: rules.ActionClose},
	}
}

func newLoopFixture(t *testing.T, ruleset []rules.Rule) *loopFixture {
	t.Helper()

	ledger := alerts.NewLedger()
	sm := gate.NewStateMachine(gate.LogActuator{}, ledger)
	detector := newScriptedDetector()
	reporter := &recordingReporter{}

	loop := NewLoop(detector, rules.New(ruleset), sm, reporter, ledger, LoopConfig{
		RetryDelay: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("detection loop did not stop on cancellation")
		}
	})

	return &loopFixture{
		loop:     loop,
		gate:     sm,
		ledger:   ledger,
		detector: detector,
		reporter: reporter,
		done:     done,
		cancel:   cancel,
	}
}

func TestDetectionOpensGate(t *testing.T) {
	f := newLoopFixture(t, dogOpenCatClose())

	f.detector.feed("dog")

	waitFor(t, func() bool { return f.gate.State() == gate.StateOpen }, "gate to open")
	waitFor(t, func() bool { return f.reporter.reportCount() == 1 }, "detection report")

	entries := f.ledger.List(0)
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(entries))
	}
	if entries[0].Message != "door_opened" || entries[0].Level != alerts.LevelInfo {
		t.Fatalf("unexpected alert: %+v", entries[0])
	}

	report := f.reporter.lastReport()
	if len(report.Objects) != 1 || report.Objects[0] != "dog" {
		t.Fatalf("report objects = %v, want [dog]", report.Objects)
	}

	acks := f.reporter.acks()
	if len(acks) != 1 || acks[0].status != models.StatusDoorOpened {
		t.Fatalf("status acks = %+v, want one door_opened", acks)
	}
	if len(acks[0].context) != 1 || acks[0].context[0] != "dog" {
		t.Fatalf("ack context = %v, want [dog]", acks[0].context)
	}
}

func TestTieBreakClosesGate(t *testing.T) {
	f := newLoopFixture(t, dogOpenCatClose())

	f.detector.feed("dog")
	waitFor(t, func() bool { return f.gate.State() == gate.StateOpen }, "gate to open")

	// Both animals present: CLOSE must win over OPEN.
	f.detector.feed("dog", "cat")
	waitFor(t, func() bool { return f.gate.State() == gate.StateClosed }, "tie-break close")

	entries := f.ledger.List(0)
	if entries[0].Message != "door_closed" {
		t.Fatalf("newest alert = %q, want door_closed", entries[0].Message)
	}
	waitFor(t, func() bool { return f.reporter.reportCount() == 2 }, "both detection reports")
}

func TestNoMatchLeavesGateUntouched(t *testing.T) {
	f := newLoopFixture(t, dogOpenCatClose())

	f.detector.feed("bird")
	waitFor(t, func() bool { return f.reporter.reportCount() == 1 }, "detection report")

	if f.gate.State() != gate.StateClosed {
		t.Fatalf("state = %q, want closed", f.gate.State())
	}
	if f.ledger.Len() != 0 {
		t.Fatalf("ledger entries = %d, want 0 (no actuation attempted)", f.ledger.Len())
	}
}

func TestEmptyDetectionSetNotReported(t *testing.T) {
	f := newLoopFixture(t, dogOpenCatClose())

	f.detector.feed()
	f.detector.feed("dog")

	waitFor(t, func() bool { return f.gate.State() == gate.StateOpen }, "gate to open")
	waitFor(t, func() bool { return f.reporter.reportCount() == 1 }, "single report")

	// Only the non-empty set was reported.
	if got := f.reporter.lastReport().Objects; len(got) != 1 || got[0] != "dog" {
		t.Fatalf("report objects = %v, want [dog]", got)
	}
}

func TestDetectorFailureIsTransient(t *testing.T) {
	f := newLoopFixture(t, dogOpenCatClose())

	f.detector.fail(errors.New("camera offline"))

	waitFor(t, func() bool {
		for _, a := range f.ledger.List(0) {
			if a.Level == alerts.LevelWarning && strings.Contains(a.Message, "detection failed") {
				return true
			}
		}
		return false
	}, "warning alert for failed cycle")

	// The loop keeps running after the failure.
	f.detector.feed("dog")
	waitFor(t, func() bool { return f.gate.State() == gate.StateOpen }, "gate to open after recovery")
}

func TestLatestCapture(t *testing.T) {
	f := newLoopFixture(t, dogOpenCatClose())

	if _, ok := f.loop.LatestCapture(); ok {
		t.Fatal("LatestCapture must report no data before the first detection")
	}

	f.detector.feed("dog")
	waitFor(t, func() bool {
		_, ok := f.loop.LatestCapture()
		return ok
	}, "latest capture")

	capture, _ := f.loop.LatestCapture()
	if len(capture.Objects) != 1 || capture.Objects[0] != "dog" {
		t.Fatalf("capture objects = %v", capture.Objects)
	}
	if len(capture.Confidences) != 1 || capture.Confidences[0] != 0.9 {
		t.Fatalf("capture confidences = %v", capture.Confidences)
	}
	if capture.Timestamp.IsZero() {
		t.Fatal("capture timestamp not set")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newLoopFixture(t, dogOpenCatClose())

	f.cancel()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
