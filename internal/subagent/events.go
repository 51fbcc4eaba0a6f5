package subagent

import (
	"sync"
	"time"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventSpawned   EventType = "spawned"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is an append-only observability record. Events never feed back into
// the conversation; result injection goes through the message bus only.
type Event struct {
	SubagentID string    `json:"subagent_id"`
	ParentID   string    `json:"parent_id"`
	Type       EventType `json:"event_type"`
	Payload    string    `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventSink receives lifecycle events. Append must not block; sinks that do
// slow work should buffer internally.
type EventSink interface {
	Append(ev Event)
}

// EventLog is an in-memory ring of recent events, the default sink.
type EventLog struct {
	mu    sync.Mutex
	buf   []Event
	next  int
	total int
}

const defaultEventLogSize = 256

func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = defaultEventLogSize
	}
	return &EventLog{buf: make([]Event, size)}
}

func (l *EventLog) Append(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf[l.next] = ev
	l.next = (l.next + 1) % len(l.buf)
	l.total++
}

// Recent returns up to n events, oldest first.
func (l *EventLog) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	have := l.total
	if have > len(l.buf) {
		have = len(l.buf)
	}
	if n <= 0 || n > have {
		n = have
	}

	out := make([]Event, 0, n)
	start := l.next - n
	if start < 0 {
		start += len(l.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, l.buf[(start+i)%len(l.buf)])
	}
	return out
}

// multiSink fans one event out to several sinks.
type multiSink []EventSink

func (m multiSink) Append(ev Event) {
	for _, s := range m {
		s.Append(ev)
	}
}

// CombineSinks merges sinks, skipping nils.
func CombineSinks(sinks ...EventSink) EventSink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
