// Package tools holds the name-keyed registry of callables the model may
// request, plus the built-in tool set (shell, filesystem).
//
// The registry is populated once at startup and read-only afterwards.
// Subset views borrow the parent registry and hide an explicit set of names
// without ever mutating it — subagents get a view that excludes the
// spawn tool and anything registered as main-only.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nextlevelbuilder/devagent/internal/providers"
)

// Tool is a named, schema-described callable the model may request.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry maps tool names to definitions. A Registry is either a root
// (owns its tool map) or a subset view (borrows a parent, hides names).
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	mainOnly map[string]struct{}

	parent *Registry
	hidden map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		tools:    make(map[string]Tool),
		mainOnly: make(map[string]struct{}),
	}
}

// Register adds a tool. Duplicate names and registration on subset views
// are rejected.
func (r *Registry) Register(t Tool) error {
	if r.parent != nil {
		return fmt.Errorf("cannot register %q on a subset view", t.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// RegisterMainOnly adds a tool that subset views for subagents must hide.
func (r *Registry) RegisterMainOnly(t Tool) error {
	if err := r.Register(t); err != nil {
		return err
	}
	r.mu.Lock()
	r.mainOnly[t.Name()] = struct{}{}
	r.mu.Unlock()
	return nil
}

// MainOnlyNames returns the names flagged as main-only.
func (r *Registry) MainOnlyNames() []string {
	root := r.root()
	root.mu.RLock()
	defer root.mu.RUnlock()
	names := make([]string, 0, len(root.mainOnly))
	for n := range root.mainOnly {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Subset returns a view hiding the named tools. The parent is never
// modified; the view is itself a Registry and may be subset further.
func (r *Registry) Subset(exclude ...string) *Registry {
	hidden := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		hidden[name] = struct{}{}
	}
	return &Registry{parent: r, hidden: hidden}
}

func (r *Registry) root() *Registry {
	cur := r
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

func (r *Registry) visible(name string) bool {
	for cur := r; cur.parent != nil; cur = cur.parent {
		if _, hit := cur.hidden[name]; hit {
			return false
		}
	}
	return true
}

// Get looks a tool up by name, honoring view exclusions.
func (r *Registry) Get(name string) (Tool, bool) {
	if !r.visible(name) {
		return nil, false
	}
	root := r.root()
	root.mu.RLock()
	defer root.mu.RUnlock()
	t, ok := root.tools[name]
	return t, ok
}

// List returns the visible tool names, sorted.
func (r *Registry) List() []string {
	root := r.root()
	root.mu.RLock()
	names := make([]string, 0, len(root.tools))
	for name := range root.tools {
		names = append(names, name)
	}
	root.mu.RUnlock()

	out := names[:0]
	for _, name := range names {
		if r.visible(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ProviderDefs returns the visible tools as provider tool definitions.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	names := r.List()
	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Execute resolves a tool by name and invokes it. An unknown or hidden name
// becomes an error result fed back to the model, never a Go error.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}

	start := time.Now()
	result := t.Execute(ctx, args)
	if result == nil {
		result = ErrorResult(fmt.Sprintf("tool %s returned no result", name))
	}

	slog.Debug("tool executed",
		"tool", name, "elapsed", time.Since(start), "is_error", result.IsError)
	return result
}
