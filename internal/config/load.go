package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:         "deepseek",
			APIBase:      "https://api.deepseek.com/v1",
			DefaultModel: "deepseek-chat",
		},
		Agent: AgentConfig{
			Workspace:         "~/.devagent/workspace",
			RestrictWorkspace: true,
			MaxMessages:       1000,
			MaxToolIterations: 300,
			CompressThreshold: 0.80,
			KeepRecent:        20,
			EmergencyKeep:     30,
			Stream:            true,
		},
		Subagents: SubagentsConfig{
			MaxConcurrent: 10,
			MaxIterations: 15,
			ShutdownSec:   2,
		},
		Cron: CronConfig{
			Enabled:   true,
			StateFile: "~/.devagent/cron.json",
		},
		Bus: BusConfig{
			Capacity: 64,
		},
		Sessions: SessionsConfig{
			Storage: "~/.devagent/sessions",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "devagent",
		},
	}
}

// Load reads config from a JSON file (JSON5 accepted, comments allowed),
// then overlays env vars. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ExpandHome(path))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars; they take precedence over the file.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("DEVAGENT_API_KEY", &c.Provider.APIKey)
	if c.Provider.APIKey == "" {
		// Fall back to the provider's conventional variable.
		envStr("DEEPSEEK_API_KEY", &c.Provider.APIKey)
		envStr("OPENAI_API_KEY", &c.Provider.APIKey)
	}

	envStr("DEVAGENT_PROVIDER", &c.Provider.Name)
	envStr("DEVAGENT_API_BASE", &c.Provider.APIBase)
	envStr("DEVAGENT_MODEL", &c.Provider.DefaultModel)
	envStr("DEVAGENT_WORKSPACE", &c.Agent.Workspace)
	envStr("DEVAGENT_SESSIONS_STORAGE", &c.Sessions.Storage)
	envStr("DEVAGENT_CRON_STATE", &c.Cron.StateFile)

	envStr("DEVAGENT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("DEVAGENT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("DEVAGENT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("DEVAGENT_MAX_SUBAGENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Subagents.MaxConcurrent = n
		}
	}
}
