// Package agent drives planner/coder teams through tool-using conversations:
// turn routing, streaming, background-result injection, and emergency
// context cleanup.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/devagent/internal/bus"
	"github.com/nextlevelbuilder/devagent/internal/pool"
	"github.com/nextlevelbuilder/devagent/internal/providers"
	"github.com/nextlevelbuilder/devagent/internal/ui"
)

// DriverConfig wires one driver instance.
type DriverConfig struct {
	Team *Team
	UI   ui.UI
	Bus  *bus.MessageBus  // nil in headless mode
	Pool *pool.Pool       // blocking side effects; nil = synchronous

	// Saver persists the transcript. Called from the pool after each tool
	// execution and at turn end.
	Saver func(messages []providers.Message)

	// EmergencyKeep is the transcript size after a context-length
	// rejection. Default 30.
	EmergencyKeep int

	// DetectorPoll is the bus consume timeout. Default 500ms.
	DetectorPoll time.Duration

	// Headless suppresses UI output and the detector (subagent mode).
	Headless bool
}

// Driver owns the interactive loop for one conversation: it runs user turns
// through the team, renders the event stream, and injects system messages
// from background work back into the same team.
type Driver struct {
	cfg DriverConfig
	ui  ui.UI

	turnMu       sync.Mutex // serializes user turns and injected messages
	teamStarted  bool
	detectorDone chan struct{}

	// pendMu guards pending, the FIFO of system messages pulled off the bus
	// but not yet injected. Bus consumption and the enqueue happen under the
	// same lock, so publish order survives having two consumers (the
	// detector and the end-of-turn drain).
	pendMu  sync.Mutex
	pending []bus.SystemMessage
}

func NewDriver(cfg DriverConfig) *Driver {
	if cfg.EmergencyKeep <= 0 {
		cfg.EmergencyKeep = 30
	}
	if cfg.DetectorPoll <= 0 {
		cfg.DetectorPoll = 500 * time.Millisecond
	}
	sink := cfg.UI
	if sink == nil || cfg.Headless {
		sink = ui.Silent{}
	}
	return &Driver{cfg: cfg, ui: sink}
}

// RunTurn feeds one user message through the team and renders every event
// as it is produced. Returns after the stream completes and any queued
// system messages have been drained.
func (d *Driver) RunTurn(ctx context.Context, input string) error {
	d.turnMu.Lock()
	defer d.turnMu.Unlock()

	d.teamStarted = true
	if err := d.streamRun(ctx, input); err != nil {
		return err
	}
	d.drainBusLocked(ctx)
	d.scheduleSave()
	return nil
}

// streamRun iterates one team run, rendering events. Only a context-length
// overrun is handled here; it triggers emergency truncation and ends the
// turn without retry.
func (d *Driver) streamRun(ctx context.Context, input string) error {
	for ev := range d.cfg.Team.Run(ctx, input) {
		switch ev.Kind {
		case EventTextMessage:
			d.renderText(ev)
		case EventToolCallRequest:
			d.ui.PrintInfo(fmt.Sprintf("calling tool: %s", ev.ToolCall.Name))
			d.ui.StartThinking(ev.ToolCall.Name)
		case EventToolCallExecution:
			d.ui.StopThinking()
			d.renderToolResult(ev)
			d.scheduleSave()
		case EventStreamChunk:
			d.ui.StartThinking("")
		case EventError:
			d.ui.StopThinking()
			return d.handleRunError(ev.Err)
		}
	}
	return nil
}

func (d *Driver) renderText(ev Event) {
	text := StripTerminate(ev.Content)
	if text == "" {
		return
	}
	if ev.Agent == speakerPlanner {
		d.ui.PrintThinking(text)
		return
	}
	if IsReasoningPreview(text) {
		d.ui.PrintThinking(text)
		return
	}
	d.ui.PrintAgentMessage(text, ev.Agent)
}

func (d *Driver) renderToolResult(ev Event) {
	// Async results mean background work started; announce the spawn
	// instead of previewing the acknowledgement text.
	if ev.Result.Async {
		label, _ := ev.ToolCall.Arguments["label"].(string)
		if label == "" {
			label = "background task"
		}
		d.ui.PrintSubagentSpawned(ev.Result.Ref, label)
		return
	}
	preview := ev.Result.ForLLM
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	if ev.Result.IsError {
		d.ui.PrintWarning(fmt.Sprintf("%s failed: %s", ev.ToolName, preview))
		return
	}
	d.ui.PrintInfo(fmt.Sprintf("%s: %s", ev.ToolName, preview))
}

func (d *Driver) handleRunError(err error) error {
	if errors.Is(err, providers.ErrContextLengthExceeded) {
		dropped := d.cfg.Team.TruncateTo(d.cfg.EmergencyKeep)
		d.ui.PrintWarning(fmt.Sprintf(
			"Context limit exceeded; dropped %d old messages. Please resend or rephrase your request.", dropped))
		slog.Warn("emergency context truncation",
			"dropped", dropped, "kept", d.cfg.EmergencyKeep)
		return nil
	}
	d.ui.PrintError("model call failed: " + err.Error())
	return err
}

// StartDetector launches the system-message detector. It polls the bus,
// queues what it finds, and injects strictly serially until the context is
// cancelled.
func (d *Driver) StartDetector(ctx context.Context) {
	if d.cfg.Bus == nil || d.cfg.Headless {
		return
	}
	d.detectorDone = make(chan struct{})
	go func() {
		defer close(d.detectorDone)
		for {
			if ctx.Err() != nil {
				return
			}
			if !d.ingestOne() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(d.cfg.DetectorPoll):
				}
				continue
			}
			d.turnMu.Lock()
			d.flushPendingLocked(ctx)
			d.turnMu.Unlock()
		}
	}()
}

// ingestOne moves one bus message onto the pending queue.
func (d *Driver) ingestOne() bool {
	d.pendMu.Lock()
	defer d.pendMu.Unlock()
	msg, ok := d.cfg.Bus.TryConsume()
	if !ok {
		return false
	}
	d.pending = append(d.pending, msg)
	return true
}

// WaitDetector blocks until the detector goroutine has exited.
func (d *Driver) WaitDetector() {
	if d.detectorDone != nil {
		<-d.detectorDone
	}
}

// ProcessSystemMessage injects one background result. With an active team
// the content re-enters the same team as a user-style turn; before the
// first turn it is only displayed. Messages already waiting in the pending
// queue are flushed first, so arrival order is preserved.
func (d *Driver) ProcessSystemMessage(ctx context.Context, msg bus.SystemMessage) {
	d.pendMu.Lock()
	d.pending = append(d.pending, msg)
	d.pendMu.Unlock()

	d.turnMu.Lock()
	defer d.turnMu.Unlock()
	d.flushPendingLocked(ctx)
}

// flushPendingLocked injects queued messages in arrival order. Caller holds
// turnMu.
func (d *Driver) flushPendingLocked(ctx context.Context) {
	for {
		d.pendMu.Lock()
		if len(d.pending) == 0 {
			d.pendMu.Unlock()
			return
		}
		msg := d.pending[0]
		d.pending = d.pending[1:]
		d.pendMu.Unlock()
		d.handleSystemMessageLocked(ctx, msg)
	}
}

func (d *Driver) handleSystemMessageLocked(ctx context.Context, msg bus.SystemMessage) {
	label := msg.Metadata["label"]
	switch msg.Type {
	case bus.MessageSubagentResult:
		if msg.Metadata["state"] == "failed" {
			d.ui.PrintSubagentFailed(msg.Metadata["subagent_id"], label, "")
		} else {
			d.ui.PrintSubagentCompleted(msg.Metadata["subagent_id"], label)
		}
	case bus.MessageCronResult:
		d.ui.PrintInfo("scheduled task finished: " + label)
	}

	if !d.teamStarted {
		d.ui.PrintInfo(msg.Content)
		return
	}

	if err := d.streamRun(ctx, msg.Content); err != nil {
		slog.Warn("failed to process system message", "sender", msg.SenderID, "error", err)
	}
	d.scheduleSave()
}

// drainBusLocked empties the bus and the pending queue so nothing queued
// during the turn is carried silently into the next one. Messages the
// detector pulled but could not inject yet go first. Caller holds turnMu.
func (d *Driver) drainBusLocked(ctx context.Context) {
	if d.cfg.Bus != nil {
		for d.ingestOne() {
		}
	}
	d.flushPendingLocked(ctx)
}

// RunTask is the headless single-shot variant used for subagents: feed the
// task, run to completion, return the coder's last textual message.
func (d *Driver) RunTask(ctx context.Context, task string) (string, error) {
	d.turnMu.Lock()
	defer d.turnMu.Unlock()
	d.teamStarted = true

	var runErr error
	for ev := range d.cfg.Team.Run(ctx, task) {
		if ev.Kind == EventError {
			runErr = ev.Err
		}
	}
	if runErr != nil {
		if errors.Is(runErr, providers.ErrContextLengthExceeded) {
			d.cfg.Team.TruncateTo(d.cfg.EmergencyKeep)
		}
		return "", runErr
	}

	out := d.cfg.Team.LastCoderText()
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("task produced no textual output")
	}
	return out, nil
}

// scheduleSave persists the transcript off the stream path.
func (d *Driver) scheduleSave() {
	if d.cfg.Saver == nil {
		return
	}
	save := func() { d.cfg.Saver(d.cfg.Team.Transcript()) }
	if d.cfg.Pool != nil {
		d.cfg.Pool.Submit(save)
		return
	}
	save()
}
