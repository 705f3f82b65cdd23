// Package database persists dashboard traffic to ClickHouse for later
// analysis. It is an optional event history: the dashboard's in-memory
// registry and ledger stay authoritative, and every write failure is
// tolerated by the caller.
package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/Pope4464/SmartGateS10/internal/alerts"
	"github.com/Pope4464/SmartGateS10/internal/models"
)

type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(addr, database, username, password string) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: username,
			Password: password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Printf("Connected to ClickHouse at %s", addr)

	db := &ClickHouseDB{conn: conn}

	// Initialize schema
	if err := db.InitSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema() error {
	ctx := context.Background()

	tables := AllTables()
	for _, tableSQL := range tables {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// SaveDetection records a detection report from a gate
func (db *ClickHouseDB) SaveDetection(report models.DetectionReport) error {
	ctx := context.Background()

	query := `
		INSERT INTO detection_events (timestamp, gate_id, objects, confidences)
		VALUES (?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		report.Timestamp,
		report.GateID,
		report.Objects,
		report.Confidences,
	)

	if err != nil {
		return fmt.Errorf("failed to insert detection event: %w", err)
	}

	return nil
}

// SaveGateEvent records a gate status transition
func (db *ClickHouseDB) SaveGateEvent(update models.StatusUpdate) error {
	ctx := context.Background()

	query := `
		INSERT INTO gate_events (timestamp, gate_id, status, detection_context)
		VALUES (?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		update.Timestamp,
		update.GateID,
		update.Status,
		update.DetectionContext,
	)

	if err != nil {
		return fmt.Errorf("failed to insert gate event: %w", err)
	}

	return nil
}

// SaveAlert records an alert in the history table
func (db *ClickHouseDB) SaveAlert(alert alerts.Alert) error {
	ctx := context.Background()

	query := `
		INSERT INTO alert_history (timestamp, alert_id, level, message)
		VALUES (?, ?, ?, ?)
	`

	err := db.conn.Exec(ctx, query,
		alert.Timestamp,
		alert.ID,
		string(alert.Level),
		alert.Message,
	)

	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		log.Println("ClickHouse connection closed")
	}
	return nil
}
