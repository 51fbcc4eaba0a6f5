package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/devagent/internal/providers"
	"github.com/nextlevelbuilder/devagent/internal/tools"
)

// turn is one transcript entry, attributed to its speaker.
type turn struct {
	Speaker string
	Msg     providers.Message
}

// TeamConfig configures a planner/coder team.
type TeamConfig struct {
	Client       providers.Provider // accounting-wrapped
	PlannerModel string             // empty = client default
	CoderModel   string             // empty = client default
	Registry     *tools.Registry

	PlannerPrompt string // empty = built-in
	CoderPrompt   string // empty = built-in

	MaxMessages       int  // transcript cap, default 1000
	MaxToolIterations int  // coder tool-call budget per run, default 300
	Stream            bool // emit chunk events from streaming calls
}

func (c TeamConfig) withDefaults() TeamConfig {
	if c.PlannerPrompt == "" {
		c.PlannerPrompt = plannerSystemPrompt
	}
	if c.CoderPrompt == "" {
		c.CoderPrompt = coderSystemPrompt
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = 1000
	}
	if c.MaxToolIterations <= 0 {
		c.MaxToolIterations = 300
	}
	return c
}

// Team runs a two-role conversation: the planner directs, the coder executes
// tools and answers. The transcript persists across Run calls, so injected
// system messages re-enter the same conversation.
type Team struct {
	// runMu serializes runs (and emergency truncation) so only one writer
	// walks the transcript at a time. mu guards the slice itself so
	// snapshot readers stay safe against appends mid-run.
	runMu      sync.Mutex
	mu         sync.RWMutex
	cfg        TeamConfig
	transcript []turn
	toolCalls  int
}

func NewTeam(cfg TeamConfig) *Team {
	return &Team{cfg: cfg.withDefaults()}
}

// Run feeds one user message into the team and returns the event stream.
// Events arrive as produced; the channel closes when the run ends. Runs on
// the same team are serialized.
func (t *Team) Run(ctx context.Context, userMessage string) <-chan Event {
	events := make(chan Event)
	go func() {
		t.runMu.Lock()
		defer t.runMu.Unlock()
		defer close(events)
		t.run(ctx, userMessage, events)
	}()
	return events
}

func (t *Team) appendTurn(tr turn) {
	if tr.Msg.ID == "" {
		tr.Msg.ID = uuid.NewString()
	}
	t.mu.Lock()
	t.transcript = append(t.transcript, tr)
	t.mu.Unlock()
}

func (t *Team) run(ctx context.Context, userMessage string, events chan<- Event) {
	// The tool budget guards against runaway loops within one run; a fresh
	// user turn starts with a full budget.
	t.toolCalls = 0

	t.appendTurn(turn{
		Speaker: speakerUser,
		Msg:     providers.Message{Role: "user", Content: userMessage},
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if len(t.transcript) >= t.cfg.MaxMessages {
			slog.Warn("team transcript cap reached, terminating run", "messages", len(t.transcript))
			return
		}

		speaker, ruled := nextSpeaker(t.transcript)
		if !ruled {
			speaker = modelSelect(ctx, t.cfg.Client, t.plannerModel(), t.transcript)
		}

		if speaker == speakerCoder && pendingToolCalls(t.transcript) > 0 {
			t.executeTools(ctx, events)
			continue
		}

		done := t.step(ctx, speaker, events)
		if done {
			return
		}
	}
}

// step makes one model call for the given role. Returns true when the run
// should end (termination sentinel or error).
func (t *Team) step(ctx context.Context, speaker string, events chan<- Event) bool {
	model := t.plannerModel()
	prompt := t.cfg.PlannerPrompt
	var defs []providers.ToolDefinition
	if speaker == speakerCoder {
		model = t.coderModel()
		prompt = t.cfg.CoderPrompt
		// Past the tool budget the coder is called without tools, forcing a
		// textual answer.
		if t.toolCalls < t.cfg.MaxToolIterations {
			defs = t.cfg.Registry.ProviderDefs()
		}
	}

	req := providers.ChatRequest{
		Messages: t.view(speaker, prompt),
		Tools:    defs,
		Model:    model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   8192,
			providers.OptTemperature: 0.7,
		},
	}

	var resp *providers.ChatResponse
	var err error
	if t.cfg.Stream {
		resp, err = t.cfg.Client.ChatStream(ctx, req, func(chunk providers.StreamChunk) {
			if chunk.Content == "" && chunk.Reasoning == "" {
				return
			}
			events <- Event{Kind: EventStreamChunk, Agent: speaker, Content: chunk.Content + chunk.Reasoning}
		})
	} else {
		resp, err = t.cfg.Client.Chat(ctx, req)
	}
	if err != nil {
		events <- Event{Kind: EventError, Agent: speaker, Err: err}
		return true
	}

	if speaker == speakerCoder && len(resp.ToolCalls) > 0 {
		t.appendTurn(turn{
			Speaker: speakerCoder,
			Msg: providers.Message{
				Role:      "assistant",
				Content:   resp.Content,
				Reasoning: resp.Reasoning,
				ToolCalls: resp.ToolCalls,
			},
		})
		t.toolCalls += len(resp.ToolCalls)
		for _, tc := range resp.ToolCalls {
			events <- Event{Kind: EventToolCallRequest, Agent: speakerCoder, ToolCall: tc}
		}
		return false
	}

	t.appendTurn(turn{
		Speaker: speaker,
		Msg: providers.Message{
			Role:      "assistant",
			Content:   resp.Content,
			Reasoning: resp.Reasoning,
		},
	})
	events <- Event{Kind: EventTextMessage, Agent: speaker, Content: resp.Content}

	return strings.Contains(resp.Content, Terminate)
}

// executeTools runs the coder's unanswered tool calls in request order,
// appending one tool result per call.
func (t *Team) executeTools(ctx context.Context, events chan<- Event) {
	i := len(t.transcript) - 1
	answered := map[string]bool{}
	for i >= 0 && t.transcript[i].Speaker == speakerTool {
		answered[t.transcript[i].Msg.ToolCallID] = true
		i--
	}
	if i < 0 || t.transcript[i].Speaker != speakerCoder {
		return
	}

	for _, tc := range t.transcript[i].Msg.ToolCalls {
		if answered[tc.ID] {
			continue
		}
		result := t.cfg.Registry.Execute(ctx, tc.Name, tc.Arguments)
		t.appendTurn(turn{
			Speaker: speakerTool,
			Msg: providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: tc.ID,
			},
		})
		events <- Event{Kind: EventToolCallExecution, Agent: speakerCoder, ToolName: tc.Name, ToolCall: tc, Result: result}
	}
}

// view renders the transcript from one role's perspective: own messages as
// assistant, tool results inline for the coder and as quoted user text for
// the planner, the other role's messages as quoted user text.
func (t *Team) view(speaker, prompt string) []providers.Message {
	msgs := make([]providers.Message, 0, len(t.transcript)+1)
	msgs = append(msgs, providers.Message{Role: "system", Content: prompt})

	for _, tr := range t.transcript {
		switch tr.Speaker {
		case speaker:
			m := tr.Msg
			m.Role = "assistant"
			msgs = append(msgs, m)
		case speakerUser:
			msgs = append(msgs, tr.Msg)
		case speakerTool:
			if speaker == speakerCoder {
				msgs = append(msgs, tr.Msg)
			} else {
				msgs = append(msgs, providers.Message{
					Role:    "user",
					Content: "[tool result] " + tr.Msg.Content,
				})
			}
		default:
			content := tr.Msg.Content
			if content == "" && len(tr.Msg.ToolCalls) > 0 {
				names := make([]string, len(tr.Msg.ToolCalls))
				for k, tc := range tr.Msg.ToolCalls {
					names[k] = tc.Name
				}
				content = "(requested tools: " + strings.Join(names, ", ") + ")"
			}
			msgs = append(msgs, providers.Message{
				Role:    "user",
				Content: "[" + tr.Speaker + "] " + content,
			})
		}
	}
	return msgs
}

func (t *Team) plannerModel() string {
	if t.cfg.PlannerModel != "" {
		return t.cfg.PlannerModel
	}
	return t.cfg.Client.DefaultModel()
}

func (t *Team) coderModel() string {
	if t.cfg.CoderModel != "" {
		return t.cfg.CoderModel
	}
	return t.cfg.Client.DefaultModel()
}

// MessageCount returns the transcript length.
func (t *Team) MessageCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.transcript)
}

// TruncateTo keeps only the most recent n transcript entries. Used for
// emergency cleanup after a context-length rejection; waits for any active
// run to finish first.
func (t *Team) TruncateTo(n int) int {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 || len(t.transcript) <= n {
		return 0
	}
	dropped := len(t.transcript) - n
	t.transcript = append([]turn(nil), t.transcript[dropped:]...)
	return dropped
}

// LastCoderText returns the coder's most recent textual message with the
// termination sentinel stripped. Empty when the coder never spoke.
func (t *Team) LastCoderText() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for i := len(t.transcript) - 1; i >= 0; i-- {
		tr := t.transcript[i]
		if tr.Speaker == speakerCoder && tr.Msg.Content != "" && len(tr.Msg.ToolCalls) == 0 {
			return StripTerminate(tr.Msg.Content)
		}
	}
	return ""
}

// Transcript returns a snapshot of the conversation as provider messages,
// for persistence.
func (t *Team) Transcript() []providers.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]providers.Message, 0, len(t.transcript))
	for _, tr := range t.transcript {
		out = append(out, tr.Msg)
	}
	return out
}

// StripTerminate removes the termination sentinel from a message.
func StripTerminate(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, Terminate, ""))
}
