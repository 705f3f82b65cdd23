package controller

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/models"
	"github.com/Pope4464/SmartGateS10/internal/rules"
)

// Detector produces the next detection set from the inference engine. The
// call may block until a frame has been processed; transient failures are
// returned as errors and never stop the loop.
type Detector interface {
	NextDetections(ctx context.Context) ([]models.Detection, error)
}

// Gate applies actions resolved by the rule engine.
// *gate.StateMachine implements it.
type Gate interface {
	Apply(action rules.Action) (bool, error)
}

// Reporter forwards detection sets and status changes to the remote side.
// *relay.Client implements it.
type Reporter interface {
	ReportDetection(report models.DetectionReport)
	ReportStatus(status string, detectionContext []string)
}

// Loop drives the detection cycle: pull detections, evaluate rules, apply
// the resolved action, push the raw detection set outward. It owns nothing
// but the latest-capture snapshot; gate state and alerts live in their own
// components.
type Loop struct {
	detector Detector
	engine   *rules.Engine
	gate     Gate
	reporter Reporter
	ledger   *alerts.Ledger

	retryDelay time.Duration

	mu        sync.RWMutex
	latest    models.DetectionReport
	hasLatest bool
}

// LoopConfig holds detection loop tuning.
type LoopConfig struct {
	// RetryDelay spaces out cycles after a detector failure so a dead
	// inference engine does not spin the loop.
	RetryDelay time.Duration
}

// DefaultLoopConfig returns the default loop tuning.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{RetryDelay: 1 * time.Second}
}

// NewLoop wires the detection loop to its collaborators.
func NewLoop(
	detector Detector,
	engine *rules.Engine,
	gateCtl Gate,
	reporter Reporter,
	ledger *alerts.Ledger,
	config LoopConfig,
) *Loop {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 1 * time.Second
	}
	return &Loop{
		detector:   detector,
		engine:     engine,
		gate:       gateCtl,
		reporter:   reporter,
		ledger:     ledger,
		retryDelay: config.RetryDelay,
	}
}

// Run executes detection cycles until ctx is cancelled. An in-flight cycle
// always finishes; cancellation is only observed between cycles and inside
// the blocking detector call. A detector failure records one warning alert
// and the loop moves on to the next frame.
func (l *Loop) Run(ctx context.Context) {
	log.Println("Controller: detection loop starting...")

	for {
		if ctx.Err() != nil {
			log.Println("Controller: context cancelled, shutting down...")
			return
		}

		detections, err := l.detector.NextDetections(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Println("Controller: context cancelled, shutting down...")
				return
			}
			log.Printf("Controller: detection cycle failed: %v", err)
			l.ledger.Add(fmt.Sprintf("detection failed: %v", err), alerts.LevelWarning)
			if !sleepCtx(ctx, l.retryDelay) {
				return
			}
			continue
		}

		l.cycle(detections)
	}
}

// cycle runs one evaluate/apply/report pass over a detection set.
func (l *Loop) cycle(detections []models.Detection) {
	labels := models.Labels(detections)

	if action, ok := l.engine.Evaluate(labels); ok {
		changed, err := l.gate.Apply(action)
		if err != nil {
			// The state machine already recorded the critical alert.
			log.Printf("Controller: actuation failed: %v", err)
		} else if changed {
			status := models.StatusDoorClosed
			if action == rules.ActionOpen {
				status = models.StatusDoorOpened
			}
			l.reporter.ReportStatus(status, labels)
		}
	}

	// The raw detection set goes out whenever it is non-empty, whether or
	// not an action was taken.
	if len(detections) == 0 {
		return
	}

	report := models.DetectionReport{
		Objects:     labels,
		Confidences: models.Confidences(detections),
		Timestamp:   time.Now(),
	}
	l.setLatest(report)
	l.reporter.ReportDetection(report)
}

func (l *Loop) setLatest(report models.DetectionReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.latest = report
	l.hasLatest = true
}

// LatestCapture returns the most recent non-empty detection snapshot. The
// bool is false until the first detection lands.
func (l *Loop) LatestCapture() (models.DetectionReport, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest, l.hasLatest
}

// sleepCtx waits for d and reports false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
