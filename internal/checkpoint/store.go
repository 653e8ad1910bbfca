// Package checkpoint persists recovery checkpoints in SQLite. The
// store keeps every checkpoint row plus an active pointer to the one
// a crash would resume from.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"github.com/kestrelops/mirrorcycle/internal/envelope"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	checkpoint_id       TEXT PRIMARY KEY,
	state_json          TEXT NOT NULL,
	mirror_cycle        INTEGER NOT NULL,
	section_progress    TEXT NOT NULL,
	recursion_stability REAL NOT NULL,
	section_flags       TEXT NOT NULL,
	created_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_checkpoint (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	checkpoint_id TEXT NOT NULL,
	FOREIGN KEY (checkpoint_id) REFERENCES checkpoints(checkpoint_id)
);
`

// #endregion schema

// #region errors

// ErrNoCheckpoint indicates the store holds no active checkpoint.
// Recovery treats this as a cold start, not a failure.
var ErrNoCheckpoint = errors.New("no checkpoint available")

// #endregion errors

// #region store-struct

// Store manages checkpoints in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing database handle. The caller owns
// the handle and its schema.
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g.
// the event log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region save

// Save inserts a checkpoint and moves the active pointer atomically.
// Transient SQLITE_BUSY failures are retried with bounded exponential
// backoff before giving up.
func (s *Store) Save(cp Checkpoint) error {
	op := func() error {
		err := s.save(cp)
		if err != nil && !isBusy(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4))
}

func (s *Store) save(cp Checkpoint) error {
	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	progressJSON, err := json.Marshal(cp.SectionProgress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	flagsJSON, err := json.Marshal(cp.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO checkpoints (checkpoint_id, state_json, mirror_cycle, section_progress, recursion_stability, section_flags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cp.ID, string(stateJSON), cp.MirrorCycle, string(progressJSON),
		cp.RecursionStability, string(flagsJSON), cp.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_checkpoint (id, checkpoint_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET checkpoint_id = excluded.checkpoint_id`,
		cp.ID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// #endregion save

// #region latest

// Latest reads the active checkpoint. Returns ErrNoCheckpoint when
// none has been saved.
func (s *Store) Latest() (Checkpoint, error) {
	var id string
	err := s.db.QueryRow(`SELECT checkpoint_id FROM active_checkpoint WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, ErrNoCheckpoint
	}
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get active: %w", err)
	}
	return s.Get(id)
}

// #endregion latest

// #region get

// Get retrieves a specific checkpoint by ID.
func (s *Store) Get(id string) (Checkpoint, error) {
	row := s.db.QueryRow(
		`SELECT checkpoint_id, state_json, mirror_cycle, section_progress, recursion_stability, section_flags, created_at
		 FROM checkpoints WHERE checkpoint_id = ?`, id,
	)
	cp, err := scanCheckpoint(row)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("get checkpoint %s: %w", id, err)
	}
	return cp, nil
}

// #endregion get

// #region list

// List returns the most recent checkpoints, newest first.
func (s *Store) List(limit int) ([]Checkpoint, error) {
	rows, err := s.db.Query(
		`SELECT checkpoint_id, state_json, mirror_cycle, section_progress, recursion_stability, section_flags, created_at
		 FROM checkpoints ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// #endregion list

// #region clear

// Clear removes every checkpoint and the active pointer.
func (s *Store) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM active_checkpoint`); err != nil {
		return fmt.Errorf("clear active: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM checkpoints`); err != nil {
		return fmt.Errorf("clear checkpoints: %w", err)
	}
	return tx.Commit()
}

// #endregion clear

// #region scan

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCheckpoint(row rowScanner) (Checkpoint, error) {
	var cp Checkpoint
	var stateJSON, progressJSON, flagsJSON, createdStr string

	err := row.Scan(&cp.ID, &stateJSON, &cp.MirrorCycle, &progressJSON,
		&cp.RecursionStability, &flagsJSON, &createdStr)
	if err != nil {
		return Checkpoint{}, err
	}

	state, err := envelope.FromJSON([]byte(stateJSON))
	if err != nil {
		return Checkpoint{}, fmt.Errorf("decode state: %w", err)
	}
	cp.State = state

	if err := json.Unmarshal([]byte(progressJSON), &cp.SectionProgress); err != nil {
		return Checkpoint{}, fmt.Errorf("decode progress: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &cp.Flags); err != nil {
		return Checkpoint{}, fmt.Errorf("decode flags: %w", err)
	}
	cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return cp, nil
}

// #endregion scan
