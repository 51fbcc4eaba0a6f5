// Package tokens approximates model token usage for conversation histories.
//
// Counts are heuristic (no tokenizer dependency) but calibrated per model
// family, and are only used for compaction decisions — the provider's own
// usage numbers remain the source of truth for accounting.
package tokens

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/devagent/internal/providers"
)

// Per-message overhead and reply priming, matching the ChatML framing
// (<|im_start|>role ... <|im_end|> plus the assistant primer).
const (
	perMessageOverhead = 4
	replyPriming       = 2
)

// DefaultLimit is the conservative fallback for unknown models.
const DefaultLimit = 4096

// modelLimits maps known model names (by prefix) to context window sizes.
var modelLimits = []struct {
	prefix string
	limit  int
}{
	{"deepseek-chat", 131072},
	{"deepseek-reasoner", 131072},
	{"deepseek", 131072},
	{"gpt-4o", 128000},
	{"gpt-4.1", 1047576},
	{"gpt-4-turbo", 128000},
	{"gpt-4", 8192},
	{"gpt-3.5-turbo", 16385},
	{"o1", 200000},
	{"o3", 200000},
	{"o4", 200000},
	{"claude", 200000},
	{"qwen", 131072},
	{"kimi", 131072},
	{"glm", 131072},
	{"llama-3", 131072},
	{"mistral", 32768},
}

// charsPerToken is the per-family encoding density. English prose under
// cl100k-style encoders averages ~4 chars/token; code and CJK-heavy models
// run denser.
func charsPerToken(model string) float64 {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "deepseek"), strings.HasPrefix(m, "qwen"),
		strings.HasPrefix(m, "kimi"), strings.HasPrefix(m, "glm"):
		return 3.4
	case strings.HasPrefix(m, "claude"):
		return 3.7
	default:
		return 4.0
	}
}

// Limit returns the context window for a model, defaulting conservatively
// for unknown models.
func Limit(model string) int {
	m := strings.ToLower(model)
	for _, e := range modelLimits {
		if strings.HasPrefix(m, e.prefix) {
			return e.limit
		}
	}
	return DefaultLimit
}

// Count approximates the token usage of a message list for a model.
// Every message is charged a fixed framing overhead plus the encoded length
// of its role, content, stringified tool calls, and any opaque reasoning
// trace; a small reply-priming constant is added once.
func Count(messages []providers.Message, model string) int {
	cpt := charsPerToken(model)
	total := 0
	for i := range messages {
		m := &messages[i]
		total += perMessageOverhead
		total += encode(m.Role, cpt)
		total += encode(m.Content, cpt)
		total += encode(m.Reasoning, cpt)
		if len(m.ToolCalls) > 0 {
			raw, _ := json.Marshal(m.ToolCalls)
			total += encode(string(raw), cpt)
		}
	}
	return total + replyPriming
}

// ShouldCompress reports whether the history has crossed the compaction
// threshold (count/limit >= threshold).
func ShouldCompress(messages []providers.Message, model string, threshold float64) bool {
	if threshold <= 0 {
		threshold = 0.80
	}
	limit := Limit(model)
	return float64(Count(messages, model)) >= threshold*float64(limit)
}

func encode(s string, cpt float64) int {
	if s == "" {
		return 0
	}
	n := utf8.RuneCountInString(s)
	tokens := int(float64(n)/cpt + 0.5)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
