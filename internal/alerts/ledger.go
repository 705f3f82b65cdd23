// Package alerts keeps the bounded, newest-first record of system events
// that the dashboard polls. It is the only error surface the operator sees:
// actuation failures, tunnel deaths and rejected commands all end up here.
package alerts

import (
	"log"
	"sync"
	"time"
)

// Level classifies an alert for the dashboard.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Capacity is the maximum number of alerts retained. Inserting beyond it
// evicts the oldest entry.
const Capacity = 100

// Alert is a single immutable ledger entry.
type Alert struct {
	ID        uint64    `json:"id"`
	Message   string    `json:"message"`
	Level     Level     `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Ledger is a capacity-bounded, insertion-ordered alert log. One instance
// exists per process; all mutation and iteration go through its mutex so
// readers never observe a half-applied insert or eviction.
type Ledger struct {
	mu      sync.Mutex
	entries []Alert // newest first
	nextID  uint64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		entries: make([]Alert, 0, Capacity),
		nextID:  1,
	}
}

// Add records a new alert, assigns it the next id and evicts the oldest
// entry when the ledger is full. IDs strictly increase and are never reused.
func (l *Ledger) Add(message string, level Level) Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	alert := Alert{
		ID:        l.nextID,
		Message:   message,
		Level:     level,
		Timestamp: time.Now(),
	}
	l.nextID++

	l.entries = append(l.entries, Alert{})
	copy(l.entries[1:], l.entries)
	l.entries[0] = alert

	if len(l.entries) > Capacity {
		l.entries = l.entries[:Capacity]
	}

	log.Printf("Alert [%s]: %s", level, message)
	return alert
}

// List returns a snapshot of the newest alerts, newest first. A limit of
// zero or less returns everything retained.
func (l *Ledger) List(limit int) []Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Alert, n)
	copy(out, l.entries[:n])
	return out
}

// Len reports how many alerts are currently retained.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
