package database

// SQL schemas for all ClickHouse tables

const (
	// DetectionEventsTableSQL creates the detection_events table
	DetectionEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS detection_events (
			timestamp DateTime64(3),
			gate_id String,
			objects Array(String),
			confidences Array(Float64)
		) ENGINE = MergeTree()
		ORDER BY (gate_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// GateEventsTableSQL creates the gate_events table
	GateEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS gate_events (
			timestamp DateTime64(3),
			gate_id String,
			status String,
			detection_context Array(String)
		) ENGINE = MergeTree()
		ORDER BY (gate_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`

	// AlertHistoryTableSQL creates the alert_history table
	AlertHistoryTableSQL = `
		CREATE TABLE IF NOT EXISTS alert_history (
			timestamp DateTime64(3),
			alert_id UInt64,
			level String,
			message String
		) ENGINE = MergeTree()
		ORDER BY timestamp
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		DetectionEventsTableSQL,
		GateEventsTableSQL,
		AlertHistoryTableSQL,
	}
}
