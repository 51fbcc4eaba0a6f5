package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Name != "deepseek" || cfg.Provider.DefaultModel != "deepseek-chat" {
		t.Errorf("provider defaults wrong: %+v", cfg.Provider)
	}
	if cfg.Agent.MaxToolIterations != 300 || cfg.Agent.MaxMessages != 1000 {
		t.Errorf("agent defaults wrong: %+v", cfg.Agent)
	}
	if cfg.Subagents.MaxConcurrent != 10 {
		t.Errorf("subagent defaults wrong: %+v", cfg.Subagents)
	}
	if cfg.Bus.Capacity != 64 {
		t.Errorf("bus default wrong: %+v", cfg.Bus)
	}
}

func TestLoadFileWithComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		// model routing
		"provider": {
			"name": "openai",
			"model": "gpt-4o-mini",
		},
		"agent": {
			"compress_threshold": 0.7,
		},
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.Name != "openai" || cfg.Provider.DefaultModel != "gpt-4o-mini" {
		t.Errorf("file values not applied: %+v", cfg.Provider)
	}
	if cfg.Agent.CompressThreshold != 0.7 {
		t.Errorf("compress threshold = %v", cfg.Agent.CompressThreshold)
	}
	// Unset fields keep their defaults.
	if cfg.Agent.MaxMessages != 1000 {
		t.Errorf("unset field lost its default: %d", cfg.Agent.MaxMessages)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"provider": {"model": "from-file"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DEVAGENT_MODEL", "from-env")
	t.Setenv("DEVAGENT_API_KEY", "sk-test")
	t.Setenv("DEVAGENT_MAX_SUBAGENTS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider.DefaultModel != "from-env" {
		t.Errorf("model = %q, env must win", cfg.Provider.DefaultModel)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Subagents.MaxConcurrent != 3 {
		t.Errorf("max subagents = %d, want 3", cfg.Subagents.MaxConcurrent)
	}
}

func TestAPIKeyNeverSerialized(t *testing.T) {
	t.Setenv("DEVAGENT_API_KEY", "sk-secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("sk-secret")) {
		t.Error("api key leaked into serialized config")
	}
}

func TestBadFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json at all"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config must fail loudly, not fall back to defaults")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	if got := ExpandHome("~/.devagent/config.json"); got != filepath.Join(home, ".devagent/config.json") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/absolute/path"); got != "/absolute/path" {
		t.Errorf("absolute paths must pass through, got %q", got)
	}
}
