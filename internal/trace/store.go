// Package trace implements the diagnostic tracing surface: a durable,
// queryable record of what the strategy framework considered, fired,
// skipped (the Unsupported case, surfaced only here, never as an
// error), and any error a strategy returned while applying a pipeline.
package trace

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// EventKind tags why a rule was recorded: it fired, it declined to
// match (Unsupported, not an error), or its Apply returned an error.
// EventConfigurationError is used for every such error, whatever its
// errs.Kind; an ordering error that strategy.Apply reports before any
// strategy runs is not recorded.
type EventKind string

const (
	EventFired             EventKind = "fired"
	EventSkipped           EventKind = "skipped"
	EventConfigurationError EventKind = "configuration_error"
)

// Event is one row of the trace: one strategy's disposition during one
// apply run.
type Event struct {
	ID         string
	TraceID    string
	Timestamp  time.Time
	StrategyID string
	Kind       EventKind
	EngineTag  string
	StepID     int
	Reason     string
	DetailJSON string
}

// Store persists trace Events to a SQLite database. It is
// mutex-guarded and creates its schema on open.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates or opens the trace database at path, creating parent
// directories as needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("trace: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trace: open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: init schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		trace_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		strategy_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		engine_tag TEXT NOT NULL,
		step_id INTEGER NOT NULL,
		reason TEXT,
		detail_json TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_trace ON events(trace_id);
	CREATE INDEX IF NOT EXISTS idx_events_strategy ON events(strategy_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordEvent appends one event to the trace. ID/Timestamp are
// populated if unset.
func (s *Store) RecordEvent(ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%s-%s-%s", ev.TraceID, ev.StrategyID, uuid.NewString())
	}

	_, err := s.db.Exec(`
		INSERT INTO events (id, trace_id, timestamp, strategy_id, kind, engine_tag, step_id, reason, detail_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.TraceID, ev.Timestamp, ev.StrategyID, string(ev.Kind), ev.EngineTag, ev.StepID, ev.Reason, ev.DetailJSON)
	if err != nil {
		return fmt.Errorf("trace: record event: %w", err)
	}
	return nil
}

// EventsForTrace retrieves every event recorded under a given trace ID,
// ordered by insertion time, for the explain CLI surface.
func (s *Store) EventsForTrace(traceID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, trace_id, timestamp, strategy_id, kind, engine_tag, step_id, reason, detail_json
		FROM events WHERE trace_id = ? ORDER BY timestamp ASC
	`, traceID)
	if err != nil {
		return nil, fmt.Errorf("trace: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var kind string
		var reason, detail sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TraceID, &ev.Timestamp, &ev.StrategyID, &kind,
			&ev.EngineTag, &ev.StepID, &reason, &detail); err != nil {
			return nil, fmt.Errorf("trace: scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.Reason = reason.String
		ev.DetailJSON = detail.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Detail marshals an arbitrary diagnostic payload to the DetailJSON
// field's expected form.
func Detail(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
