package subagent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/devagent/internal/bus"
	"github.com/nextlevelbuilder/devagent/internal/telemetry"
)

// run executes one subagent to completion. Setup failures (nil runner,
// panics before the task produces output) still reach a terminal state and
// still publish, so the parent conversation always hears back.
func (m *Manager) run(ctx context.Context, e *entry) {
	defer close(e.done)

	ctx, span := telemetry.StartSpan(ctx, "subagent.run",
		attribute.String("subagent.id", e.ID),
		attribute.String("subagent.parent", e.ParentID),
	)
	defer span.End()

	result, err := m.invokeRunner(ctx, e)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.finish(e, StateFailed, "", err.Error())
		return
	}
	m.finish(e, StateCompleted, result, "")
}

func (m *Manager) invokeRunner(ctx context.Context, e *entry) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subagent worker panicked: %v", r)
		}
	}()
	if m.runner == nil {
		return "", fmt.Errorf("no runner configured")
	}
	return m.runner(ctx, e.Task, m.workerRegistry(), e.MaxIterations)
}

// finish performs the single terminal transition, emits the lifecycle
// event, and publishes the result to the bus. The state write happens
// before the publication; a second call for the same subagent is a no-op.
func (m *Manager) finish(e *entry, state State, result, errText string) {
	m.mu.Lock()
	if e.State != StateRunning {
		m.mu.Unlock()
		return
	}
	e.State = state
	e.Result = result
	e.Error = errText
	e.CompletedAtMs = time.Now().UnixMilli()
	info := e.Info
	m.mu.Unlock()

	evType := EventCompleted
	payload := result
	if state == StateFailed {
		evType = EventFailed
		payload = errText
	}
	m.events.Append(Event{
		SubagentID: info.ID, ParentID: info.ParentID,
		Type: evType, Payload: payload, Timestamp: time.Now(),
	})

	if state == StateFailed {
		slog.Warn("subagent failed", "id", info.ID, "label", info.Label, "error", errText)
	} else {
		slog.Info("subagent completed", "id", info.ID, "label", info.Label)
	}

	if m.bus != nil {
		m.bus.Publish(bus.SystemMessage{
			Type:     bus.MessageSubagentResult,
			SenderID: "subagent:" + info.ID,
			Content:  formatResultMessage(info),
			Metadata: map[string]string{
				"subagent_id": info.ID,
				"label":       info.Label,
				"parent_id":   info.ParentID,
				"state":       string(info.State),
			},
		})
	}
}

// formatResultMessage renders the pre-formatted content the model sees when
// a background task finishes.
func formatResultMessage(info Info) string {
	header := fmt.Sprintf("[Background Task '%s' completed successfully]", info.Label)
	body := info.Result
	if info.State == StateFailed {
		header = fmt.Sprintf("[Background Task '%s' failed]", info.Label)
		body = info.Error
	}
	return fmt.Sprintf("%s\nTask: %s\nResult:\n%s\nPlease summarize this naturally for the user in 1–2 sentences. Do not mention \"subagent\" or task ids.",
		header, info.Task, body)
}
