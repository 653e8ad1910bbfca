package events

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log

// Log persists events in the shared SQLite database so the inspect
// tool can audit loop and restart history after a crash.
type Log struct {
	db *sql.DB
}

// NewLog creates the event_log table if needed and returns a Log.
func NewLog(db *sql.DB) (*Log, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS event_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		severity   TEXT NOT NULL,
		kind       TEXT NOT NULL,
		detail     TEXT,
		created_at TEXT NOT NULL
	)`)
	if err != nil {
		return nil, fmt.Errorf("create event_log table: %w", err)
	}
	return &Log{db: db}, nil
}

// Append writes one event row.
func (l *Log) Append(severity string, kind Kind, detail string) error {
	_, err := l.db.Exec(
		`INSERT INTO event_log (severity, kind, detail, created_at) VALUES (?, ?, ?, ?)`,
		severity, string(kind), detail, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns the most recent events, newest first.
func (l *Log) Recent(limit int) ([]Event, error) {
	rows, err := l.db.Query(
		`SELECT severity, kind, detail, created_at FROM event_log
		 ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var kind, createdStr string
		if err := rows.Scan(&e.Severity, &kind, &e.Detail, &createdStr); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = Kind(kind)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountKind returns how many persisted events carry the given kind.
func (l *Log) CountKind(kind Kind) (int, error) {
	var n int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM event_log WHERE kind = ?`, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// #endregion log

// #region log-sink

// Sink adapts the Log as an event Sink. Persistence failures are
// swallowed: the recovery path must not fail because auditing did.
func (l *Log) Sink() Sink { return logSink{log: l} }

type logSink struct {
	log *Log
}

func (s logSink) Warn(kind Kind, detail string) { _ = s.log.Append("warn", kind, detail) }
func (s logSink) Info(kind Kind, detail string) { _ = s.log.Append("info", kind, detail) }

// #endregion log-sink
