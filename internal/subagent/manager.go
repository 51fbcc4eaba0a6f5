// Package subagent spawns and tracks background agent tasks. Each spawn
// starts one goroutine running a headless driver over a restricted tool
// registry; completion publishes a system message to the bus for injection
// into the parent conversation.
package subagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/devagent/internal/bus"
	"github.com/nextlevelbuilder/devagent/internal/ids"
	"github.com/nextlevelbuilder/devagent/internal/tools"
)

// ErrLimitReached is returned by Spawn when the concurrency cap is hit.
// Spawns are never queued; the caller decides whether to wait or serialize.
var ErrLimitReached = errors.New("max concurrent subagents reached")

// State of one subagent. The transition out of running happens exactly once.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Runner executes a task headlessly over the given registry view and
// returns the final textual output. Injected by the caller so this package
// stays independent of the driver.
type Runner func(ctx context.Context, task string, registry *tools.Registry, maxIterations int) (string, error)

// Config bounds the manager.
type Config struct {
	MaxConcurrent        int           // default 10
	DefaultMaxIterations int           // default 15
	ShutdownTimeout      time.Duration // wait per CancelAll, default 2s
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 10
	}
	if c.DefaultMaxIterations <= 0 {
		c.DefaultMaxIterations = 15
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 2 * time.Second
	}
	return c
}

// Info is the externally visible snapshot of a subagent.
type Info struct {
	ID            string `json:"id"`
	Label         string `json:"label"`
	Task          string `json:"task"`
	ParentID      string `json:"parent_id"`
	State         State  `json:"state"`
	Result        string `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	CreatedAtMs   int64  `json:"created_at_ms"`
	CompletedAtMs int64  `json:"completed_at_ms,omitempty"`
	MaxIterations int    `json:"max_iterations"`
}

type entry struct {
	Info
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the running set and the result cache. Entries are kept after
// completion so status queries keep working until session end.
type Manager struct {
	mu       sync.RWMutex
	agents   map[string]*entry
	cfg      Config
	bus      *bus.MessageBus
	registry *tools.Registry
	runner   Runner
	events   EventSink
}

func NewManager(cfg Config, msgBus *bus.MessageBus, registry *tools.Registry, runner Runner, events EventSink) *Manager {
	if events == nil {
		events = NewEventLog(0)
	}
	return &Manager{
		agents:   make(map[string]*entry),
		cfg:      cfg.withDefaults(),
		bus:      msgBus,
		registry: registry,
		runner:   runner,
		events:   events,
	}
}

// Spawn starts a background task. It returns the new subagent id, or
// ErrLimitReached when the running set is at capacity.
func (m *Manager) Spawn(ctx context.Context, task, label, parentID string, maxIterations int) (string, error) {
	if label == "" {
		label = "background task"
	}
	if maxIterations <= 0 {
		maxIterations = m.cfg.DefaultMaxIterations
	}

	m.mu.Lock()
	running := 0
	for _, e := range m.agents {
		if e.State == StateRunning {
			running++
		}
	}
	if running >= m.cfg.MaxConcurrent {
		m.mu.Unlock()
		return "", fmt.Errorf("%w (%d/%d)", ErrLimitReached, running, m.cfg.MaxConcurrent)
	}

	id := ids.New()
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e := &entry{
		Info: Info{
			ID:            id,
			Label:         label,
			Task:          task,
			ParentID:      parentID,
			State:         StateRunning,
			CreatedAtMs:   time.Now().UnixMilli(),
			MaxIterations: maxIterations,
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	m.agents[id] = e
	m.mu.Unlock()

	m.events.Append(Event{
		SubagentID: id, ParentID: parentID,
		Type: EventSpawned, Payload: label, Timestamp: time.Now(),
	})
	slog.Info("subagent spawned", "id", id, "parent", parentID, "label", label)

	go m.run(workerCtx, e)
	return id, nil
}

// Status returns a snapshot of one subagent, running or finished.
func (m *Manager) Status(id string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.agents[id]
	if !ok {
		return Info{}, false
	}
	return e.Info, true
}

// ListRunning returns snapshots of the currently running subagents.
func (m *Manager) ListRunning() []Info {
	return m.list(true)
}

// ListAll returns snapshots of every known subagent, finished ones included.
func (m *Manager) ListAll() []Info {
	return m.list(false)
}

func (m *Manager) list(runningOnly bool) []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.agents))
	for _, e := range m.agents {
		if runningOnly && e.State != StateRunning {
			continue
		}
		out = append(out, e.Info)
	}
	sortInfos(out)
	return out
}

// RunningCount returns the size of the running set.
func (m *Manager) RunningCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.agents {
		if e.State == StateRunning {
			n++
		}
	}
	return n
}

// Progress records a progress event for a running subagent.
func (m *Manager) Progress(id, payload string) {
	m.mu.RLock()
	e, ok := m.agents[id]
	m.mu.RUnlock()
	if !ok || e.State != StateRunning {
		return
	}
	m.events.Append(Event{
		SubagentID: id, ParentID: e.ParentID,
		Type: EventProgress, Payload: payload, Timestamp: time.Now(),
	})
}

// CancelAll cancels every running worker and waits up to the shutdown
// timeout for each to finish. Returns the number of workers that were still
// running when called.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	var pending []*entry
	for _, e := range m.agents {
		if e.State == StateRunning {
			pending = append(pending, e)
		}
	}
	m.mu.Unlock()

	for _, e := range pending {
		e.cancel()
	}
	deadline := time.After(m.cfg.ShutdownTimeout)
	for _, e := range pending {
		select {
		case <-e.done:
		case <-deadline:
			slog.Warn("subagent did not stop within shutdown timeout", "id", e.ID)
		}
	}
	return len(pending)
}

// workerRegistry builds the restricted view a subagent executes against:
// the parent registry minus the spawn tool and anything main-only.
func (m *Manager) workerRegistry() *tools.Registry {
	exclude := append(m.registry.MainOnlyNames(), SpawnToolName)
	return m.registry.Subset(exclude...)
}

func sortInfos(infos []Info) {
	for i := 1; i < len(infos); i++ {
		for k := i; k > 0 && infos[k].CreatedAtMs < infos[k-1].CreatedAtMs; k-- {
			infos[k], infos[k-1] = infos[k-1], infos[k]
		}
	}
}
