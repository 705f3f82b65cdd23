// Package dashboard is the cloud-side counterpart of the gate controller:
// it listens to per-gate MQTT traffic, tracks which gates exist and whether
// they are alive, and exposes the fleet over a JSON API.
package dashboard

import (
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Pope4464/SmartGateS10/internal/models"
)

// StatusUnknown is reported for gates that have been seen (heartbeat or
// detection) but have not yet sent a status update.
const StatusUnknown = "unknown"

const defaultOfflineAfter = 30 * time.Second

// Registry tracks every gate the dashboard has heard from. Gates are
// discovered implicitly: the first message on any per-gate topic creates an
// entry. A gate with no traffic for the offline window is reported offline
// but never removed.
type Registry struct {
	mu           sync.RWMutex
	gates        map[string]*gateEntry
	offlineAfter time.Duration
}

type gateEntry struct {
	status   string
	lastSeen time.Time
}

// NewRegistry creates a registry. offlineAfter <= 0 selects the default
// 30 second window.
func NewRegistry(offlineAfter time.Duration) *Registry {
	if offlineAfter <= 0 {
		offlineAfter = defaultOfflineAfter
	}
	return &Registry{
		gates:        make(map[string]*gateEntry),
		offlineAfter: offlineAfter,
	}
}

// MarkSeen records traffic from a gate, discovering it if needed. A zero
// time means "now". lastSeen never moves backwards, so late-arriving
// messages cannot push a live gate offline.
func (r *Registry) MarkSeen(gateID string, at time.Time) {
	if gateID == "" {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.gates[gateID]
	if entry == nil {
		entry = &gateEntry{status: StatusUnknown}
		r.gates[gateID] = entry
		log.Printf("Registry: discovered gate %s", gateID)
	}
	if at.After(entry.lastSeen) {
		entry.lastSeen = at
	}
}

// SetStatus records a gate's reported state and counts as traffic. Event
// names from the status topic are normalized to the state they imply.
func (r *Registry) SetStatus(gateID, status string, at time.Time) {
	if gateID == "" {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.gates[gateID]
	if entry == nil {
		entry = &gateEntry{}
		r.gates[gateID] = entry
		log.Printf("Registry: discovered gate %s", gateID)
	}
	entry.status = normalizeStatus(status)
	if at.After(entry.lastSeen) {
		entry.lastSeen = at
	}
}

// Gate returns the summary for one gate id.
func (r *Registry) Gate(gateID string) (models.GateSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry := r.gates[gateID]
	if entry == nil {
		return models.GateSummary{}, false
	}
	return r.summarize(gateID, entry, time.Now()), true
}

// Gates returns a summary of every known gate, ordered by id (numeric ids
// first, in numeric order, then the rest lexically).
func (r *Registry) Gates() []models.GateSummary {
	r.mu.RLock()
	now := time.Now()
	summaries := make([]models.GateSummary, 0, len(r.gates))
	for id, entry := range r.gates {
		summaries = append(summaries, r.summarize(id, entry, now))
	}
	r.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return lessGateID(summaries[i].ID, summaries[j].ID)
	})
	return summaries
}

// Len returns the number of known gates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.gates)
}

func (r *Registry) summarize(gateID string, entry *gateEntry, now time.Time) models.GateSummary {
	online := models.OnlineStatusOnline
	if now.Sub(entry.lastSeen) > r.offlineAfter {
		online = models.OnlineStatusOffline
	}
	return models.GateSummary{
		ID:           gateID,
		Status:       entry.status,
		OnlineStatus: online,
		LastSeen:     entry.lastSeen,
	}
}

// normalizeStatus maps status-topic event names onto gate states. Unknown
// event names are kept verbatim so newer gates stay visible.
func normalizeStatus(status string) string {
	switch status {
	case models.StatusDoorOpened, "open":
		return "open"
	case models.StatusDoorClosed, "closed":
		return "closed"
	case "":
		return StatusUnknown
	default:
		return status
	}
}

func lessGateID(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	default:
		return a < b
	}
}
