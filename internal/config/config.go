// Package config holds the runtime configuration: provider credentials,
// agent models and budgets, subagent/cron/bus settings. Secrets are never
// persisted in the config file; they come from the environment only.
package config

import (
	"os"
	"time"
)

// Config is the root configuration.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Agent     AgentConfig     `json:"agent"`
	Subagents SubagentsConfig `json:"subagents,omitempty"`
	Cron      CronConfig      `json:"cron,omitempty"`
	Bus       BusConfig       `json:"bus,omitempty"`
	Sessions  SessionsConfig  `json:"sessions,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// ProviderConfig selects the LLM backend. APIKey is env-only
// (DEVAGENT_API_KEY), never read from or written to the file.
type ProviderConfig struct {
	Name         string `json:"name"`     // "openai", "deepseek", or any compatible
	APIBase      string `json:"api_base"` // empty = provider default
	DefaultModel string `json:"model"`
	APIKey       string `json:"-"`
}

// AgentConfig sets models and loop budgets for the planner/coder team.
type AgentConfig struct {
	PlannerModel      string  `json:"planner_model,omitempty"` // empty = provider default
	CoderModel        string  `json:"coder_model,omitempty"`
	Workspace         string  `json:"workspace"`
	RestrictWorkspace bool    `json:"restrict_to_workspace"`
	MaxMessages       int     `json:"max_messages"`
	MaxToolIterations int     `json:"max_tool_iterations"`
	CompressThreshold float64 `json:"compress_threshold"`
	KeepRecent        int     `json:"keep_recent"`
	EmergencyKeep     int     `json:"emergency_keep"`
	Stream            bool    `json:"stream"`
}

// SubagentsConfig bounds background tasks.
type SubagentsConfig struct {
	MaxConcurrent  int    `json:"max_concurrent"`
	MaxIterations  int    `json:"max_iterations"`
	ShutdownSec    int    `json:"shutdown_sec"`
	EventsDB       string `json:"events_db,omitempty"` // sqlite path, empty = in-memory only
}

// CronConfig configures the scheduler.
type CronConfig struct {
	Enabled   bool   `json:"enabled"`
	StateFile string `json:"state_file"`
}

// BusConfig sizes the system-message queue.
type BusConfig struct {
	Capacity int `json:"capacity"`
}

// SessionsConfig locates persisted transcripts.
type SessionsConfig struct {
	Storage string `json:"storage"`
}

// TelemetryConfig enables OTLP trace export. Off by default.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint,omitempty"` // host:port of the OTLP HTTP collector
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// ShutdownTimeout returns the subagent wind-down budget.
func (s SubagentsConfig) ShutdownTimeout() time.Duration {
	if s.ShutdownSec <= 0 {
		return 2 * time.Second
	}
	return time.Duration(s.ShutdownSec) * time.Second
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
