package tools

import (
	"context"
	"strings"
	"testing"
)

// stubTool is a minimal tool for registry tests.
type stubTool struct {
	name  string
	reply string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }
func (s *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return NewResult(s.reply)
}

func newTestRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, n := range names {
		if err := r.Register(&stubTool{name: n, reply: n + " ran"}); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}
	return r
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t, "shell")
	if err := r.Register(&stubTool{name: "shell"}); err == nil {
		t.Fatal("duplicate registration must fail")
	}
}

func TestSubsetHidesTools(t *testing.T) {
	r := newTestRegistry(t, "shell", "read_file", "spawn_subagent")

	view := r.Subset("spawn_subagent")

	if _, ok := view.Get("spawn_subagent"); ok {
		t.Error("hidden tool resolvable through the view")
	}
	if _, ok := view.Get("shell"); !ok {
		t.Error("unhidden tool missing from the view")
	}
	for _, name := range view.List() {
		if name == "spawn_subagent" {
			t.Error("hidden tool listed by the view")
		}
	}
	for _, def := range view.ProviderDefs() {
		if def.Function.Name == "spawn_subagent" {
			t.Error("hidden tool exposed in provider definitions")
		}
	}

	// The parent registry is untouched.
	if _, ok := r.Get("spawn_subagent"); !ok {
		t.Error("subset must not mutate the parent registry")
	}
}

func TestSubsetOfSubset(t *testing.T) {
	r := newTestRegistry(t, "a", "b", "c")
	view := r.Subset("a").Subset("b")
	if got := view.List(); len(got) != 1 || got[0] != "c" {
		t.Fatalf("nested view = %v, want [c]", got)
	}
}

func TestMainOnlyNames(t *testing.T) {
	r := newTestRegistry(t, "shell")
	if err := r.RegisterMainOnly(&stubTool{name: "sessions_admin"}); err != nil {
		t.Fatal(err)
	}

	names := r.MainOnlyNames()
	if len(names) != 1 || names[0] != "sessions_admin" {
		t.Fatalf("MainOnlyNames = %v, want [sessions_admin]", names)
	}

	// The canonical subagent view: main-only names plus the spawn tool.
	view := r.Subset(append(r.MainOnlyNames(), "spawn_subagent")...)
	if _, ok := view.Get("sessions_admin"); ok {
		t.Error("main-only tool visible in subagent view")
	}
}

func TestRegisterOnViewRejected(t *testing.T) {
	r := newTestRegistry(t, "shell")
	view := r.Subset("shell")
	if err := view.Register(&stubTool{name: "other"}); err == nil {
		t.Fatal("registering on a subset view must fail")
	}
}

func TestExecuteUnknownToolIsErrorResult(t *testing.T) {
	r := newTestRegistry(t, "shell")

	res := r.Execute(context.Background(), "nope", nil)
	if !res.IsError {
		t.Fatal("unknown tool must yield an error result")
	}
	if !strings.Contains(res.ForLLM, "unknown tool") {
		t.Errorf("error result should name the problem, got %q", res.ForLLM)
	}

	// Hidden tools behave exactly like unknown ones.
	view := r.Subset("shell")
	if res := view.Execute(context.Background(), "shell", nil); !res.IsError {
		t.Error("hidden tool must yield an error result")
	}
}

func TestExecuteRuns(t *testing.T) {
	r := newTestRegistry(t, "shell")
	res := r.Execute(context.Background(), "shell", map[string]interface{}{})
	if res.IsError || res.ForLLM != "shell ran" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
