package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nextlevelbuilder/devagent/internal/agent"
	"github.com/nextlevelbuilder/devagent/internal/bus"
	"github.com/nextlevelbuilder/devagent/internal/config"
	"github.com/nextlevelbuilder/devagent/internal/cron"
	"github.com/nextlevelbuilder/devagent/internal/pool"
	"github.com/nextlevelbuilder/devagent/internal/providers"
	"github.com/nextlevelbuilder/devagent/internal/sessions"
	"github.com/nextlevelbuilder/devagent/internal/store"
	"github.com/nextlevelbuilder/devagent/internal/subagent"
	"github.com/nextlevelbuilder/devagent/internal/telemetry"
	"github.com/nextlevelbuilder/devagent/internal/tools"
	"github.com/nextlevelbuilder/devagent/internal/ui"
)

// app holds the assembled runtime for the interactive commands.
type app struct {
	cfg      *config.Config
	client   *agent.AccountingClient
	registry *tools.Registry
	msgBus   *bus.MessageBus
	workers  *pool.Pool
	sessions *sessions.Manager
	manager  *subagent.Manager
	cronSvc  *cron.Service
	events   *store.EventStore

	teleShutdown func(context.Context) error
}

// buildApp loads config and wires every subsystem together.
func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.Provider.APIKey == "" {
		return nil, fmt.Errorf("no API key configured; set DEVAGENT_API_KEY")
	}

	teleShutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without it", "error", err)
		teleShutdown = func(context.Context) error { return nil }
	}

	provider := providers.NewOpenAIProvider(
		cfg.Provider.Name, cfg.Provider.APIKey, cfg.Provider.APIBase, cfg.Provider.DefaultModel)
	client := agent.NewAccountingClient(provider, cfg.Agent.CompressThreshold, cfg.Agent.KeepRecent)

	workspace := config.ExpandHome(cfg.Agent.Workspace)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	registry := tools.NewRegistry()
	for _, t := range []tools.Tool{
		tools.NewShellTool(workspace, cfg.Agent.RestrictWorkspace),
		tools.NewReadFileTool(workspace, cfg.Agent.RestrictWorkspace),
		tools.NewWriteFileTool(workspace, cfg.Agent.RestrictWorkspace),
		tools.NewListDirTool(workspace, cfg.Agent.RestrictWorkspace),
	} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	msgBus := bus.NewMessageBus(cfg.Bus.Capacity)
	workers := pool.New(2, 64)
	sessionStore := sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage))

	var events *store.EventStore
	sink := subagent.EventSink(nil)
	if cfg.Subagents.EventsDB != "" {
		path := config.ExpandHome(cfg.Subagents.EventsDB)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			events, err = store.OpenEventStore(path)
			if err != nil {
				slog.Warn("failed to open subagent event store", "path", path, "error", err)
			} else {
				sink = subagent.CombineSinks(subagent.NewEventLog(0), events)
			}
		}
	}

	manager := subagent.NewManager(subagent.Config{
		MaxConcurrent:        cfg.Subagents.MaxConcurrent,
		DefaultMaxIterations: cfg.Subagents.MaxIterations,
		ShutdownTimeout:      cfg.Subagents.ShutdownTimeout(),
	}, msgBus, registry, subagentRunner(client, cfg), sink)

	if err := registry.RegisterMainOnly(subagent.NewSpawnTool(manager, "main")); err != nil {
		return nil, err
	}

	var cronSvc *cron.Service
	if cfg.Cron.Enabled {
		cronSvc = cron.NewService(
			config.ExpandHome(cfg.Cron.StateFile),
			cronFireHandler(ctx, manager),
		)
	}

	return &app{
		cfg:          cfg,
		client:       client,
		registry:     registry,
		msgBus:       msgBus,
		workers:      workers,
		sessions:     sessionStore,
		manager:      manager,
		cronSvc:      cronSvc,
		events:       events,
		teleShutdown: teleShutdown,
	}, nil
}

// subagentRunner builds the headless driver each background task runs in.
func subagentRunner(client *agent.AccountingClient, cfg *config.Config) subagent.Runner {
	return func(ctx context.Context, task string, registry *tools.Registry, maxIterations int) (string, error) {
		team := agent.NewTeam(agent.TeamConfig{
			Client:            client,
			PlannerModel:      cfg.Agent.PlannerModel,
			CoderModel:        cfg.Agent.CoderModel,
			Registry:          registry,
			CoderPrompt:       agent.SubagentPrompt(),
			MaxToolIterations: maxIterations,
		})
		driver := agent.NewDriver(agent.DriverConfig{
			Team:     team,
			Headless: true,
		})
		return driver.RunTask(ctx, task)
	}
}

// cronFireHandler spawns a subagent for each fired job. The job's outcome
// reaches the user through the regular bus injection path.
func cronFireHandler(ctx context.Context, manager *subagent.Manager) cron.FireHandler {
	return func(job cron.Job) error {
		label := "cron:" + truncateLabel(job.Name, 30)
		_, err := manager.Spawn(ctx, job.Task, label, "cron", 0)
		return err
	}
}

func truncateLabel(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// close tears the app down in reverse dependency order.
func (a *app) close(ctx context.Context) {
	if a.cronSvc != nil {
		a.cronSvc.Stop()
	}
	a.manager.CancelAll()
	a.workers.Close()
	if a.events != nil {
		a.events.Close()
	}
	if a.teleShutdown != nil {
		if err := a.teleShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}
}

// consoleUI builds the interactive terminal sink.
func consoleUI() (ui.UI, func(), error) {
	c, err := ui.NewConsole()
	if err != nil {
		return nil, nil, err
	}
	return c, func() { c.Close() }, nil
}
