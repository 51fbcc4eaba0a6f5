// Package bus carries out-of-band system messages from background workers
// (subagents, cron fires) to the agent driver. Single consumer, any number
// of producers, no persistence — messages do not survive a restart.
package bus

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// MessageType classifies a SystemMessage for the consumer.
type MessageType string

const (
	MessageSubagentResult MessageType = "subagent_result"
	MessageCronResult     MessageType = "cron_result"
	MessageOther          MessageType = "other"
)

// SystemMessage is the unit of auto-injection into the active conversation.
// Content is pre-formatted for the model by the producer.
type SystemMessage struct {
	Type      MessageType       `json:"type"`
	SenderID  string            `json:"sender_id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// MessageBus is a bounded FIFO queue of SystemMessages.
// Publish never blocks; when the queue is full the message is dropped and
// counted. Ordering within a single producer is preserved; across producers
// it is first-come-first-served.
type MessageBus struct {
	ch      chan SystemMessage
	dropped atomic.Int64
}

const DefaultCapacity = 64

func NewMessageBus(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageBus{ch: make(chan SystemMessage, capacity)}
}

// Publish enqueues a message without blocking. Returns false if the bus was
// full and the message was dropped.
func (b *MessageBus) Publish(msg SystemMessage) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case b.ch <- msg:
		return true
	default:
		b.dropped.Add(1)
		slog.Warn("message bus full, dropping system message",
			"sender", msg.SenderID, "type", msg.Type, "dropped_total", b.dropped.Load())
		return false
	}
}

// Consume waits up to timeout for the next message. The second return is
// false when the timeout elapsed or the context was cancelled.
// Only one goroutine may consume.
func (b *MessageBus) Consume(ctx context.Context, timeout time.Duration) (SystemMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-b.ch:
		return msg, true
	case <-timer.C:
		return SystemMessage{}, false
	case <-ctx.Done():
		return SystemMessage{}, false
	}
}

// TryConsume returns the next message if one is immediately available.
func (b *MessageBus) TryConsume() (SystemMessage, bool) {
	select {
	case msg := <-b.ch:
		return msg, true
	default:
		return SystemMessage{}, false
	}
}

// Len returns the number of queued messages.
func (b *MessageBus) Len() int { return len(b.ch) }

// Dropped returns how many messages have been discarded because the bus was full.
func (b *MessageBus) Dropped() int64 { return b.dropped.Load() }
