package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/devagent/internal/subagent"
)

func openTestStore(t *testing.T) *EventStore {
	t.Helper()
	s, err := OpenEventStore(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func appendAndFlush(t *testing.T, s *EventStore, events ...subagent.Event) {
	t.Helper()
	for _, ev := range events {
		s.Append(ev)
	}
	// The writer is async; poll until everything landed.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got, err := s.Recent(len(events) + 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) >= len(events) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("events never reached the database")
}

func TestAppendAndRecent(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	appendAndFlush(t, s,
		subagent.Event{SubagentID: "aa11bb22", ParentID: "main", Type: subagent.EventSpawned, Payload: "task one", Timestamp: now},
		subagent.Event{SubagentID: "aa11bb22", ParentID: "main", Type: subagent.EventCompleted, Payload: "done", Timestamp: now.Add(time.Second)},
	)

	got, err := s.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent returned %d events", len(got))
	}
	// Newest first.
	if got[0].Type != subagent.EventCompleted || got[1].Type != subagent.EventSpawned {
		t.Errorf("order wrong: %s, %s", got[0].Type, got[1].Type)
	}
	if got[0].SubagentID != "aa11bb22" || got[0].ParentID != "main" {
		t.Errorf("identity lost: %+v", got[0])
	}
}

func TestByIDOldestFirst(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()
	appendAndFlush(t, s,
		subagent.Event{SubagentID: "one11111", Type: subagent.EventSpawned, Timestamp: now},
		subagent.Event{SubagentID: "two22222", Type: subagent.EventSpawned, Timestamp: now},
		subagent.Event{SubagentID: "one11111", Type: subagent.EventFailed, Payload: "oops", Timestamp: now},
	)

	got, err := s.ByID("one11111")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("ByID returned %d events, want 2", len(got))
	}
	if got[0].Type != subagent.EventSpawned || got[1].Type != subagent.EventFailed {
		t.Errorf("order wrong: %s, %s", got[0].Type, got[1].Type)
	}
	if got[1].Payload != "oops" {
		t.Errorf("payload lost: %q", got[1].Payload)
	}
}

func TestAppendAfterCloseIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := OpenEventStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Subagent workers can outlive the store during shutdown; a late
	// append must be a no-op, not a panic.
	s.Append(subagent.Event{SubagentID: "late0001", Type: subagent.EventCompleted, Timestamp: time.Now()})
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	s, err := OpenEventStore(path)
	if err != nil {
		t.Fatal(err)
	}
	appendAndFlush(t, s, subagent.Event{SubagentID: "persist1", Type: subagent.EventSpawned, Timestamp: time.Now()})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenEventStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.ByID("persist1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("reopened store has %d events, want 1", len(got))
	}
}
