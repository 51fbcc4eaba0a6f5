// Package store persists subagent lifecycle events in a local SQLite
// database for later inspection. Writes go through a buffered channel so
// producers never block on disk.
package store

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/devagent/internal/subagent"
)

const eventsSchema = `
CREATE TABLE IF NOT EXISTS subagent_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	subagent_id TEXT NOT NULL,
	parent_id   TEXT NOT NULL,
	event_type  TEXT NOT NULL,
	payload     TEXT,
	ts          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subagent_events_sid ON subagent_events(subagent_id);
`

// EventStore is a durable subagent.EventSink backed by SQLite.
type EventStore struct {
	db    *sql.DB
	queue chan subagent.Event
	once  sync.Once
	done  chan struct{}

	mu      sync.Mutex // guards closed and dropped; held across queue sends
	closed  bool
	dropped int
}

// OpenEventStore opens (creating if needed) the event database at path.
func OpenEventStore(path string) (*EventStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(eventsSchema); err != nil {
		db.Close()
		return nil, err
	}

	s := &EventStore{
		db:    db,
		queue: make(chan subagent.Event, 128),
		done:  make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Append queues an event for persistence. Never blocks; events are dropped
// with a warning when the writer falls behind, and silently once the store
// is closed (stragglers finishing during shutdown).
func (s *EventStore) Append(ev subagent.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped++
		slog.Warn("event store queue full, dropping event",
			"subagent", ev.SubagentID, "type", ev.Type, "dropped_total", s.dropped)
	}
}

func (s *EventStore) writer() {
	defer close(s.done)
	for ev := range s.queue {
		_, err := s.db.Exec(
			`INSERT INTO subagent_events (subagent_id, parent_id, event_type, payload, ts) VALUES (?, ?, ?, ?, ?)`,
			ev.SubagentID, ev.ParentID, string(ev.Type), ev.Payload, ev.Timestamp.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			slog.Warn("failed to persist subagent event", "error", err)
		}
	}
}

// Recent returns up to limit events, newest first.
func (s *EventStore) Recent(limit int) ([]subagent.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT subagent_id, parent_id, event_type, payload, ts
		 FROM subagent_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []subagent.Event
	for rows.Next() {
		var ev subagent.Event
		var evType, ts string
		if err := rows.Scan(&ev.SubagentID, &ev.ParentID, &evType, &ev.Payload, &ts); err != nil {
			return nil, err
		}
		ev.Type = subagent.EventType(evType)
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ByID returns the events of one subagent, oldest first.
func (s *EventStore) ByID(subagentID string) ([]subagent.Event, error) {
	rows, err := s.db.Query(
		`SELECT subagent_id, parent_id, event_type, payload, ts
		 FROM subagent_events WHERE subagent_id = ? ORDER BY id ASC`, subagentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []subagent.Event
	for rows.Next() {
		var ev subagent.Event
		var evType, ts string
		if err := rows.Scan(&ev.SubagentID, &ev.ParentID, &evType, &ev.Payload, &ts); err != nil {
			return nil, err
		}
		ev.Type = subagent.EventType(evType)
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Close flushes queued events and closes the database. Appends arriving
// after Close are discarded instead of hitting the closed queue.
func (s *EventStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.once.Do(func() {
		close(s.queue)
	})
	<-s.done
	return s.db.Close()
}
