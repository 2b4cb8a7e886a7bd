// Package storage persists call records: one row per conversation and one
// per completed turn.
//
// Records are bookkeeping, not session state - a conversation is never
// resumable from them, and every write is best-effort from the caller's
// point of view. The store exists so an operator can ask what the bridge
// has been doing after the workers are gone.
package storage

import (
	"fmt"
	"log"
	"sync"
	"time"

	"database/sql"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is a pure-Go implementation, so no CGO.
	_ "modernc.org/sqlite"

	"github.com/voxbridge/host/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id         TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	port       INTEGER NOT NULL,
	started_at TIMESTAMP NOT NULL,
	ended_at   TIMESTAMP,
	outcome    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS turns (
	call_id TEXT NOT NULL REFERENCES calls(id),
	seq     INTEGER NOT NULL,
	kind    TEXT NOT NULL,
	prompt  TEXT NOT NULL,
	result  TEXT NOT NULL,
	at      TIMESTAMP NOT NULL,
	PRIMARY KEY (call_id, seq)
);
`

// Store holds call records in SQLite.
// Each worker process opens its own store; the busy timeout covers the
// CLI reading while workers write.
type Store struct {
	db *sql.DB
	mu sync.Mutex // Guards writes; workers are single-threaded but the CLI may share a store.
}

// Open opens or creates the call database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.StorageOpenFailed(err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StorageOpenFailed(err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.StorageOpenFailed(err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartCall records a conversation beginning.
func (s *Store) StartCall(id, mode string, port int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO calls (id, mode, port, started_at) VALUES (?, ?, ?, ?)`,
		id, mode, port, time.Now().UTC(),
	)
	if err != nil {
		return errors.StorageQueryFailed("insert", err)
	}
	return nil
}

// RecordTurn records one completed turn. Implements session.TurnRecorder.
func (s *Store) RecordTurn(callID string, seq int, kind, prompt, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO turns (call_id, seq, kind, prompt, result, at) VALUES (?, ?, ?, ?, ?, ?)`,
		callID, seq, kind, prompt, result, time.Now().UTC(),
	)
	if err != nil {
		return errors.StorageQueryFailed("insert", err)
	}
	return nil
}

// EndCall records how a conversation finished: completed, abandoned, or
// failed.
func (s *Store) EndCall(id, outcome string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE calls SET ended_at = ?, outcome = ? WHERE id = ?`,
		time.Now().UTC(), outcome, id,
	)
	if err != nil {
		return errors.StorageQueryFailed("update", err)
	}
	return nil
}

// CallRecord is one conversation's bookkeeping row.
type CallRecord struct {
	ID        string
	Mode      string
	Port      int
	StartedAt time.Time
	EndedAt   *time.Time
	Outcome   string
	Turns     int
}

// ListCalls returns the most recent calls, newest first, with their turn
// counts.
func (s *Store) ListCalls(limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT c.id, c.mode, c.port, c.started_at, c.ended_at, c.outcome,
		       (SELECT COUNT(*) FROM turns t WHERE t.call_id = c.id)
		FROM calls c
		ORDER BY c.started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errors.StorageQueryFailed("select", err)
	}
	defer rows.Close()

	var calls []CallRecord
	for rows.Next() {
		var c CallRecord
		var ended sql.NullTime
		if err := rows.Scan(&c.ID, &c.Mode, &c.Port, &c.StartedAt, &ended, &c.Outcome, &c.Turns); err != nil {
			return nil, errors.StorageQueryFailed("scan", err)
		}
		if ended.Valid {
			t := ended.Time
			c.EndedAt = &t
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageQueryFailed("select", err)
	}
	return calls, nil
}

// OpenBestEffort opens the store, logging and returning nil on failure.
// Call records must never stop a conversation from being served.
func OpenBestEffort(path string, logger *log.Logger) *Store {
	if path == "" {
		return nil
	}
	store, err := Open(path)
	if err != nil {
		if logger != nil {
			logger.Printf("storage: %v (continuing without call records)", err)
		}
		return nil
	}
	return store
}

// String renders a record for the CLI listing.
func (c CallRecord) String() string {
	end := "-"
	if c.EndedAt != nil {
		end = c.EndedAt.Format(time.TimeOnly)
	}
	outcome := c.Outcome
	if outcome == "" {
		outcome = "in-progress"
	}
	return fmt.Sprintf("%s  %-7s  %5d  %s  %s  %2d turns  %s",
		c.ID, c.Mode, c.Port, c.StartedAt.Format(time.DateTime), end, c.Turns, outcome)
}
