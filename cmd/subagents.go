package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devagent/internal/config"
	"github.com/nextlevelbuilder/devagent/internal/store"
)

func subagentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subagents",
		Short: "Inspect background task history",
	}
	cmd.AddCommand(subagentsEventsCmd())
	cmd.AddCommand(subagentsStatusCmd())
	return cmd
}

func openEventStore() (*store.EventStore, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.Subagents.EventsDB == "" {
		return nil, fmt.Errorf("no event database configured; set subagents.events_db in the config")
	}
	return store.OpenEventStore(config.ExpandHome(cfg.Subagents.EventsDB))
}

func subagentsEventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent subagent lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openEventStore()
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.Recent(limit)
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Println("no events")
				return nil
			}
			for _, ev := range events {
				payload := ev.Payload
				if len(payload) > 60 {
					payload = payload[:60] + "..."
				}
				fmt.Printf("%s  %s  %-10s  parent=%-6s  %s\n",
					ev.Timestamp.Local().Format(time.RFC3339),
					ev.SubagentID, ev.Type, ev.ParentID, payload)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max events to show")
	return cmd
}

func subagentsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the event history of one subagent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openEventStore()
			if err != nil {
				return err
			}
			defer s.Close()

			events, err := s.ByID(args[0])
			if err != nil {
				return err
			}
			if len(events) == 0 {
				return fmt.Errorf("no events for subagent %s", args[0])
			}
			for _, ev := range events {
				fmt.Printf("%s  %-10s  %s\n",
					ev.Timestamp.Local().Format(time.RFC3339), ev.Type, ev.Payload)
			}
			return nil
		},
	}
}
