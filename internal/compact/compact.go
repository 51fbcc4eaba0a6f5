// Package compact shrinks conversation histories that approach the model's
// context window by replacing an older middle section with a model-generated
// summary. System prompts and the recent tail always survive intact.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/devagent/internal/providers"
	"github.com/nextlevelbuilder/devagent/internal/tokens"
)

const summarizerSystemPrompt = `You are a conversation summarizer for an AI coding assistant.
Produce a concise prose summary of the conversation excerpt you are given.
Preserve: decisions made, tools that were called and their important results,
file paths and code entities discussed, and the current state of the task.
Do not invent detail. Do not address the user.`

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 2000
	summaryTimeout     = 120 * time.Second
)

// SummaryPrefix starts every compaction summary message.
const SummaryPrefix = "[CONVERSATION SUMMARY"

// MaybeCompress returns the input unchanged when the history is below the
// compaction threshold or too short to compress, otherwise a strictly
// token-shorter history of the form: system prompts, one summary message,
// the keepRecent most recent non-system messages.
//
// Summarization failures never propagate: the old middle is replaced by a
// sentinel stub instead, so the caller's turn always proceeds.
func MaybeCompress(ctx context.Context, messages []providers.Message, model string, client providers.Provider, threshold float64, keepRecent int) []providers.Message {
	if !tokens.ShouldCompress(messages, model, threshold) {
		return messages
	}
	if keepRecent <= 0 {
		keepRecent = 20
	}

	var system, rest []providers.Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if len(rest) <= keepRecent {
		return messages
	}

	old := rest[:len(rest)-keepRecent]
	recent := rest[len(rest)-keepRecent:]

	summary := summarize(ctx, old, model, client)

	out := make([]providers.Message, 0, len(system)+1+len(recent))
	out = append(out, system...)
	out = append(out, summary)
	out = append(out, recent...)

	// Compression must be monotone: if the summary somehow outweighs what it
	// replaced, fall back to the removal stub. When even the stub is no
	// smaller (a tiny old middle), compression cannot run at all.
	if tokens.Count(out, model) >= tokens.Count(messages, model) {
		out[len(system)] = removedStub(len(old))
		if tokens.Count(out, model) >= tokens.Count(messages, model) {
			slog.Debug("compaction would not shrink the history, leaving it unchanged",
				"model", model, "candidates", len(old))
			return messages
		}
		slog.Warn("compaction produced no token savings, substituting stub",
			"model", model, "compressed", len(old))
	}

	slog.Info("history compacted",
		"model", model,
		"before", len(messages), "after", len(out),
		"compressed", len(old))

	return out
}

func summarize(ctx context.Context, old []providers.Message, model string, client providers.Provider) providers.Message {
	var sb strings.Builder
	for _, m := range old {
		content := m.Content
		if content == "" && len(m.ToolCalls) > 0 {
			names := make([]string, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				names[i] = tc.Name
			}
			content = "(requested tools: " + strings.Join(names, ", ") + ")"
		}
		fmt.Fprintf(&sb, "[%s]: %s\n", m.Role, content)
	}

	sctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	resp, err := client.Chat(sctx, providers.ChatRequest{
		Model: model,
		Messages: []providers.Message{
			{Role: "system", Content: summarizerSystemPrompt},
			{Role: "user", Content: sb.String()},
		},
		Options: map[string]interface{}{
			providers.OptTemperature: summaryTemperature,
			providers.OptMaxTokens:   summaryMaxTokens,
		},
	})
	if err != nil || strings.TrimSpace(resp.Content) == "" {
		slog.Warn("summarization failed, substituting removal stub",
			"compressed", len(old), "error", err)
		return removedStub(len(old))
	}

	return providers.Message{
		Role: "system",
		Content: fmt.Sprintf("%s — %d messages compressed]\n\n%s",
			SummaryPrefix, len(old), strings.TrimSpace(resp.Content)),
		Compressed: true,
	}
}

func removedStub(n int) providers.Message {
	return providers.Message{
		Role:       "system",
		Content:    fmt.Sprintf("[%d messages removed due to context limits]", n),
		Compressed: true,
	}
}
