package dashboard

import (
	"fmt"
	"log"
	"strings"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/models"
)

// EventStore persists dashboard traffic for later analysis. Implementations
// may fail freely; the dashboard logs and moves on, the in-memory registry
// and ledger stay authoritative. *database.ClickHouseDB implements it.
type EventStore interface {
	SaveDetection(report models.DetectionReport) error
	SaveGateEvent(update models.StatusUpdate) error
	SaveAlert(alert alerts.Alert) error
}

// recorder is the shared event path behind both intake surfaces (MQTT
// listener and HTTP API), so a detection is handled the same way no matter
// how it arrived. store may be nil.
type recorder struct {
	registry *Registry
	ledger   *alerts.Ledger
	store    EventStore
}

func (r *recorder) recordDetection(report models.DetectionReport) {
	r.registry.MarkSeen(report.GateID, report.Timestamp)

	message := fmt.Sprintf("Gate %s: Animal detected: %s",
		report.GateID, strings.Join(report.Objects, ", "))
	alert := r.ledger.Add(message, alerts.LevelWarning)

	r.saveDetection(report)
	r.saveAlert(alert)
}

func (r *recorder) recordStatus(update models.StatusUpdate) {
	r.registry.SetStatus(update.GateID, update.Status, update.Timestamp)

	alert := r.ledger.Add(fmt.Sprintf("Gate %s status: %s", update.GateID, update.Status), alerts.LevelInfo)

	r.saveGateEvent(update)
	r.saveAlert(alert)
}

func (r *recorder) saveDetection(report models.DetectionReport) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveDetection(report); err != nil {
		log.Printf("Dashboard: failed to save detection event: %v", err)
	}
}

func (r *recorder) saveGateEvent(update models.StatusUpdate) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveGateEvent(update); err != nil {
		log.Printf("Dashboard: failed to save gate event: %v", err)
	}
}

func (r *recorder) saveAlert(alert alerts.Alert) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveAlert(alert); err != nil {
		log.Printf("Dashboard: failed to save alert: %v", err)
	}
}
