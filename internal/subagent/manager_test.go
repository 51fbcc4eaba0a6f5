package subagent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/devagent/internal/bus"
	"github.com/nextlevelbuilder/devagent/internal/tools"
)

type stubTool struct{ name string }

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.name }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *tools.Result {
	return tools.NewResult("ok")
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	for _, n := range []string{"shell", "read_file", SpawnToolName} {
		if err := r.Register(&stubTool{name: n}); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

func waitForState(t *testing.T, m *Manager, id string, want State) Info {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if info, ok := m.Status(id); ok && info.State == want {
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	info, _ := m.Status(id)
	t.Fatalf("subagent %s never reached %s, last: %+v", id, want, info)
	return Info{}
}

func TestSpawnRunsAndPublishes(t *testing.T) {
	msgBus := bus.NewMessageBus(8)
	runner := func(ctx context.Context, task string, reg *tools.Registry, maxIter int) (string, error) {
		return "42", nil
	}
	m := NewManager(Config{}, msgBus, testRegistry(t), runner, nil)

	id, err := m.Spawn(context.Background(), "count", "x", "main", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 8 {
		t.Errorf("id %q should be 8 hex chars", id)
	}

	msg, ok := msgBus.Consume(context.Background(), 2*time.Second)
	if !ok {
		t.Fatal("no system message published")
	}
	if msg.Type != bus.MessageSubagentResult {
		t.Errorf("message type = %q", msg.Type)
	}
	if msg.SenderID != "subagent:"+id {
		t.Errorf("sender = %q, want subagent:%s", msg.SenderID, id)
	}
	if !strings.HasPrefix(msg.Content, "[Background Task 'x' completed successfully]") {
		t.Errorf("content header wrong:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "Task: count") || !strings.Contains(msg.Content, "Result:\n42") {
		t.Errorf("content body wrong:\n%s", msg.Content)
	}

	info := waitForState(t, m, id, StateCompleted)
	if info.Result != "42" {
		t.Errorf("cached result = %q, want 42", info.Result)
	}
	if len(m.ListRunning()) != 0 {
		t.Error("running set should be empty after completion")
	}
	// Entry retained for status queries.
	if _, ok := m.Status(id); !ok {
		t.Error("finished subagent evicted from the result cache")
	}
}

func TestSpawnDefaultLabel(t *testing.T) {
	msgBus := bus.NewMessageBus(8)
	m := NewManager(Config{}, msgBus, testRegistry(t),
		func(ctx context.Context, task string, reg *tools.Registry, n int) (string, error) {
			return "done", nil
		}, nil)

	id, err := m.Spawn(context.Background(), "some work", "", "main", 0)
	if err != nil {
		t.Fatal(err)
	}
	info := waitForState(t, m, id, StateCompleted)
	if info.Label != "background task" {
		t.Errorf("label = %q, want %q", info.Label, "background task")
	}
}

func TestConcurrencyLimit(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	runner := func(ctx context.Context, task string, reg *tools.Registry, n int) (string, error) {
		started.Done()
		<-release
		return "done", nil
	}
	m := NewManager(Config{MaxConcurrent: 2}, bus.NewMessageBus(8), testRegistry(t), runner, nil)

	started.Add(2)
	for i := 0; i < 2; i++ {
		if _, err := m.Spawn(context.Background(), fmt.Sprintf("task %d", i), "", "main", 0); err != nil {
			t.Fatal(err)
		}
	}
	started.Wait()

	_, err := m.Spawn(context.Background(), "one too many", "", "main", 0)
	if !errors.Is(err, ErrLimitReached) {
		t.Fatalf("error = %v, want ErrLimitReached", err)
	}
	if n := m.RunningCount(); n != 2 {
		t.Errorf("rejected spawn changed the running count: %d", n)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for m.RunningCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Capacity freed: spawning works again.
	if _, err := m.Spawn(context.Background(), "after drain", "", "main", 0); err != nil {
		t.Fatalf("spawn after drain failed: %v", err)
	}
}

func TestFailurePublishesFailedMessage(t *testing.T) {
	msgBus := bus.NewMessageBus(8)
	runner := func(ctx context.Context, task string, reg *tools.Registry, n int) (string, error) {
		return "", fmt.Errorf("disk on fire")
	}
	m := NewManager(Config{}, msgBus, testRegistry(t), runner, nil)

	id, err := m.Spawn(context.Background(), "doomed", "bad", "main", 0)
	if err != nil {
		t.Fatal(err)
	}

	msg, ok := msgBus.Consume(context.Background(), 2*time.Second)
	if !ok {
		t.Fatal("failure must still publish")
	}
	if !strings.HasPrefix(msg.Content, "[Background Task 'bad' failed]") {
		t.Errorf("failed header wrong:\n%s", msg.Content)
	}
	if !strings.Contains(msg.Content, "disk on fire") {
		t.Errorf("error text missing:\n%s", msg.Content)
	}

	info := waitForState(t, m, id, StateFailed)
	if info.Error != "disk on fire" {
		t.Errorf("cached error = %q", info.Error)
	}
}

func TestSetupFailureStillPublishes(t *testing.T) {
	msgBus := bus.NewMessageBus(8)
	m := NewManager(Config{}, msgBus, testRegistry(t), nil, nil) // no runner: setup failure

	id, err := m.Spawn(context.Background(), "task", "", "main", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := msgBus.Consume(context.Background(), 2*time.Second); !ok {
		t.Fatal("setup failure must still publish a system message")
	}
	waitForState(t, m, id, StateFailed)
}

func TestTerminalTransitionHappensOnce(t *testing.T) {
	msgBus := bus.NewMessageBus(8)
	m := NewManager(Config{}, msgBus, testRegistry(t),
		func(ctx context.Context, task string, reg *tools.Registry, n int) (string, error) {
			return "first", nil
		}, nil)

	id, err := m.Spawn(context.Background(), "task", "", "main", 0)
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, m, id, StateCompleted)
	msgBus.TryConsume()

	// A late duplicate finish must be a no-op: no state change, no publish.
	m.mu.Lock()
	e := m.agents[id]
	m.mu.Unlock()
	m.finish(e, StateFailed, "", "late failure")

	info, _ := m.Status(id)
	if info.State != StateCompleted || info.Result != "first" {
		t.Errorf("terminal state overwritten: %+v", info)
	}
	if _, ok := msgBus.TryConsume(); ok {
		t.Error("duplicate finish published a second message")
	}
}

func TestWorkerRegistryExcludesSpawn(t *testing.T) {
	var gotNames []string
	runner := func(ctx context.Context, task string, reg *tools.Registry, n int) (string, error) {
		gotNames = reg.List()
		return "done", nil
	}
	reg := testRegistry(t)
	if err := reg.RegisterMainOnly(&stubTool{name: "admin_only"}); err != nil {
		t.Fatal(err)
	}
	m := NewManager(Config{}, bus.NewMessageBus(8), reg, runner, nil)

	id, err := m.Spawn(context.Background(), "task", "", "main", 0)
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, m, id, StateCompleted)

	for _, n := range gotNames {
		if n == SpawnToolName || n == "admin_only" {
			t.Errorf("subagent registry leaked %q (got %v)", n, gotNames)
		}
	}
	if len(gotNames) != 2 {
		t.Errorf("subagent registry = %v, want shell and read_file only", gotNames)
	}
}

func TestEventsEmitted(t *testing.T) {
	log := NewEventLog(0)
	m := NewManager(Config{}, bus.NewMessageBus(8), testRegistry(t),
		func(ctx context.Context, task string, reg *tools.Registry, n int) (string, error) {
			return "done", nil
		}, log)

	id, err := m.Spawn(context.Background(), "task", "lbl", "main", 0)
	if err != nil {
		t.Fatal(err)
	}
	waitForState(t, m, id, StateCompleted)

	events := log.Recent(0)
	if len(events) != 2 {
		t.Fatalf("got %d events, want spawned + completed", len(events))
	}
	if events[0].Type != EventSpawned || events[1].Type != EventCompleted {
		t.Errorf("event order = %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].SubagentID != id || events[0].ParentID != "main" {
		t.Errorf("event identity wrong: %+v", events[0])
	}
}

func TestCancelAll(t *testing.T) {
	release := make(chan struct{})
	runner := func(ctx context.Context, task string, reg *tools.Registry, n int) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-release:
			return "done", nil
		}
	}
	m := NewManager(Config{ShutdownTimeout: time.Second}, bus.NewMessageBus(8), testRegistry(t), runner, nil)

	id, err := m.Spawn(context.Background(), "task", "", "main", 0)
	if err != nil {
		t.Fatal(err)
	}

	if n := m.CancelAll(); n != 1 {
		t.Errorf("CancelAll = %d, want 1", n)
	}
	info := waitForState(t, m, id, StateFailed)
	if info.Error == "" {
		t.Error("cancelled subagent should record its error")
	}
}
