package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devagent/internal/agent"
	"github.com/nextlevelbuilder/devagent/internal/providers"
	"github.com/nextlevelbuilder/devagent/internal/ui"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive coding session",
		Run: func(cmd *cobra.Command, args []string) {
			runChat()
		},
	}
}

func runChat() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer a.close(context.Background())

	console, closeUI, err := consoleUI()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer closeUI()

	team := agent.NewTeam(agent.TeamConfig{
		Client:            a.client,
		PlannerModel:      a.cfg.Agent.PlannerModel,
		CoderModel:        a.cfg.Agent.CoderModel,
		Registry:          a.registry,
		MaxMessages:       a.cfg.Agent.MaxMessages,
		MaxToolIterations: a.cfg.Agent.MaxToolIterations,
		Stream:            a.cfg.Agent.Stream,
	})

	sessionKey := "chat:" + time.Now().Format("20060102-150405")
	a.sessions.GetOrCreate(sessionKey)
	a.sessions.SetMetadata(sessionKey, a.client.DefaultModel(), a.client.Name())

	driver := agent.NewDriver(agent.DriverConfig{
		Team: team,
		UI:   console,
		Bus:  a.msgBus,
		Pool: a.workers,
		Saver: func(msgs []providers.Message) {
			a.sessions.SetMessages(sessionKey, msgs)
			if err := a.sessions.Save(sessionKey); err != nil {
				slog.Warn("session save failed", "key", sessionKey, "error", err)
			}
		},
		EmergencyKeep: a.cfg.Agent.EmergencyKeep,
	})
	driver.StartDetector(ctx)

	if a.cronSvc != nil {
		if err := a.cronSvc.Start(ctx); err != nil {
			console.PrintWarning("cron service failed to start: " + err.Error())
		}
	}

	console.PrintInfo(fmt.Sprintf("devagent %s — model %s, workspace %s",
		Version, a.client.DefaultModel(), a.cfg.Agent.Workspace))
	console.PrintInfo("Type your request, /subagents for background tasks, /exit to quit.")

	for {
		input, err := console.GetUserInput("> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			console.PrintError("input error: " + err.Error())
			break
		}
		if ctx.Err() != nil {
			break
		}

		input = strings.TrimSpace(input)
		switch {
		case input == "":
			continue
		case input == "/exit" || input == "/quit":
			cancel()
		case input == "/subagents":
			printSubagents(console, a)
			continue
		case input == "/jobs":
			printJobs(console, a)
			continue
		default:
			if err := driver.RunTurn(ctx, input); err != nil && ctx.Err() == nil {
				console.PrintError(err.Error())
			}
			continue
		}
		break
	}

	cancel()
	driver.WaitDetector()
	console.PrintInfo("bye")
}

func printSubagents(console ui.UI, a *app) {
	infos := a.manager.ListAll()
	if len(infos) == 0 {
		console.PrintInfo("no background tasks this session")
		return
	}
	for _, info := range infos {
		line := fmt.Sprintf("%s  %-9s  %s", info.ID, info.State, info.Label)
		if info.Error != "" {
			line += "  (" + info.Error + ")"
		}
		console.PrintInfo(line)
	}
}

func printJobs(console ui.UI, a *app) {
	if a.cronSvc == nil {
		console.PrintInfo("cron is disabled")
		return
	}
	jobs := a.cronSvc.List(false)
	if len(jobs) == 0 {
		console.PrintInfo("no scheduled jobs")
		return
	}
	for _, j := range jobs {
		state := "disabled"
		if j.Enabled {
			state = "enabled"
		}
		next := "-"
		if j.State.NextRunAtMs != nil {
			next = time.UnixMilli(*j.State.NextRunAtMs).Local().Format(time.RFC3339)
		}
		console.PrintInfo(fmt.Sprintf("%s  %-8s  %-20s  %s  next=%s",
			j.ID, state, j.Name, j.Schedule.String(), next))
	}
}
