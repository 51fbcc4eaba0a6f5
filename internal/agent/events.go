package agent

import (
	"strings"

	"github.com/nextlevelbuilder/devagent/internal/providers"
	"github.com/nextlevelbuilder/devagent/internal/tools"
)

// EventKind discriminates team stream events.
type EventKind string

const (
	// EventTextMessage is a complete textual message from one role.
	EventTextMessage EventKind = "text_message"
	// EventToolCallRequest is emitted when the coder requests a tool.
	EventToolCallRequest EventKind = "tool_call_request"
	// EventToolCallExecution carries a finished tool result.
	EventToolCallExecution EventKind = "tool_call_execution"
	// EventStreamChunk is an incremental piece of a streaming reply.
	EventStreamChunk EventKind = "stream_chunk"
	// EventError terminates the stream with a failure.
	EventError EventKind = "error"
)

// Event is one item of a team's output stream. Events are delivered in
// production order and never buffered until completion.
type Event struct {
	Kind    EventKind
	Agent   string
	Content string

	ToolCall providers.ToolCall // set for tool_call_request
	ToolName string             // set for tool_call_execution
	Result   *tools.Result      // set for tool_call_execution

	Err error // set for error
}

// reasoningPrefixes mark short coder messages that narrate upcoming work
// rather than answer the user. Rendering only; routing never depends on it.
var reasoningPrefixes = []string{
	"I'll ", "I will ", "Let me ", "Next ", "Next, ", "First ", "First, ", "Now ",
}

const reasoningMaxLen = 200

// IsReasoningPreview reports whether a coder text should render in the
// dimmer thinking style instead of as a final answer.
func IsReasoningPreview(text string) bool {
	t := strings.TrimSpace(text)
	if len(t) == 0 || len(t) > reasoningMaxLen {
		return false
	}
	for _, p := range reasoningPrefixes {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}
