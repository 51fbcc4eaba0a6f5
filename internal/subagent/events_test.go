package subagent

import (
	"fmt"
	"testing"
)

func TestEventLogRingWraps(t *testing.T) {
	l := NewEventLog(4)
	for i := 0; i < 6; i++ {
		l.Append(Event{SubagentID: fmt.Sprintf("id-%d", i), Type: EventProgress})
	}

	got := l.Recent(0)
	if len(got) != 4 {
		t.Fatalf("ring of 4 returned %d events", len(got))
	}
	// Oldest first, the two earliest overwritten.
	for i, ev := range got {
		want := fmt.Sprintf("id-%d", i+2)
		if ev.SubagentID != want {
			t.Errorf("event %d = %q, want %q", i, ev.SubagentID, want)
		}
	}
}

func TestEventLogRecentLimit(t *testing.T) {
	l := NewEventLog(8)
	for i := 0; i < 3; i++ {
		l.Append(Event{SubagentID: fmt.Sprintf("id-%d", i)})
	}

	if got := l.Recent(2); len(got) != 2 || got[1].SubagentID != "id-2" {
		t.Errorf("Recent(2) = %+v", got)
	}
	if got := l.Recent(100); len(got) != 3 {
		t.Errorf("oversized limit returned %d events", len(got))
	}
	if got := NewEventLog(4).Recent(0); len(got) != 0 {
		t.Errorf("empty log returned %d events", len(got))
	}
}

func TestCombineSinks(t *testing.T) {
	a := NewEventLog(4)
	b := NewEventLog(4)
	sink := CombineSinks(a, nil, b)

	sink.Append(Event{SubagentID: "x"})

	if len(a.Recent(0)) != 1 || len(b.Recent(0)) != 1 {
		t.Error("combined sink must reach every member")
	}
	// A single non-nil sink is returned as-is.
	if CombineSinks(nil, a) != EventSink(a) {
		t.Error("single-sink combine should unwrap")
	}
}
