package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nextlevelbuilder/devagent/internal/providers"
)

// Speaker names used in the transcript.
const (
	speakerUser    = "user"
	speakerPlanner = "planner"
	speakerCoder   = "coder"
	speakerTool    = "tool"
)

// nextSpeaker picks who acts next from the transcript tail:
//
//	start or user turn        -> planner
//	planner                   -> coder (planner never acts twice in a row)
//	coder with unresolved
//	tool-call request         -> coder (must receive its own tool results)
//	tool result               -> planner (review, possibly re-plan)
//	coder textual answer      -> planner (continue or terminate)
//
// The second return is false when no rule applied and the caller should fall
// back to the model-based selector.
func nextSpeaker(transcript []turn) (string, bool) {
	if len(transcript) == 0 {
		return speakerPlanner, true
	}
	last := transcript[len(transcript)-1]

	switch last.Speaker {
	case speakerUser:
		return speakerPlanner, true
	case speakerPlanner:
		return speakerCoder, true
	case speakerCoder:
		if pendingToolCalls(transcript) > 0 {
			return speakerCoder, true
		}
		return speakerPlanner, true
	case speakerTool:
		if pendingToolCalls(transcript) > 0 {
			return speakerCoder, true
		}
		return speakerPlanner, true
	}
	return "", false
}

// pendingToolCalls counts requests in the coder's latest tool-call message
// that have not yet received a matching tool result.
func pendingToolCalls(transcript []turn) int {
	// Walk back over trailing tool results to the requesting message.
	i := len(transcript) - 1
	answered := map[string]bool{}
	for i >= 0 && transcript[i].Speaker == speakerTool {
		answered[transcript[i].Msg.ToolCallID] = true
		i--
	}
	if i < 0 || transcript[i].Speaker != speakerCoder || len(transcript[i].Msg.ToolCalls) == 0 {
		return 0
	}
	pending := 0
	for _, tc := range transcript[i].Msg.ToolCalls {
		if !answered[tc.ID] {
			pending++
		}
	}
	return pending
}

// modelSelect asks the model which role should speak next. Only reached
// when the rules above do not apply.
func modelSelect(ctx context.Context, client providers.Provider, model string, transcript []turn) string {
	var sb strings.Builder
	start := len(transcript) - 6
	if start < 0 {
		start = 0
	}
	for _, t := range transcript[start:] {
		sb.WriteString("[" + t.Speaker + "]: ")
		content := t.Msg.Content
		if len(content) > 300 {
			content = content[:300] + "..."
		}
		sb.WriteString(content + "\n")
	}

	resp, err := client.Chat(ctx, providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "system", Content: "You route turns in a two-role team. Reply with exactly one word: planner or coder."},
			{Role: "user", Content: sb.String()},
		},
		Options: map[string]interface{}{
			providers.OptMaxTokens:   4,
			providers.OptTemperature: 0.0,
		},
	})
	if err != nil {
		slog.Warn("model selector failed, defaulting to planner", "error", err)
		return speakerPlanner
	}
	if strings.Contains(strings.ToLower(resp.Content), speakerCoder) {
		return speakerCoder
	}
	return speakerPlanner
}
