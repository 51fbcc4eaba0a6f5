package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devagent/internal/config"
	"github.com/nextlevelbuilder/devagent/internal/sessions"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved conversation transcripts",
	}
	cmd.AddCommand(sessionsListCmd())
	cmd.AddCommand(sessionsDeleteCmd())
	return cmd
}

func openSessions() (*sessions.Manager, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	return sessions.NewManager(config.ExpandHome(cfg.Sessions.Storage)), nil
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openSessions()
			if err != nil {
				return err
			}
			keys := m.List()
			if len(keys) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, key := range keys {
				s := m.GetOrCreate(key)
				fmt.Printf("%-30s  messages=%-4d  updated=%s\n",
					key, len(s.Messages), s.Updated.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func sessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openSessions()
			if err != nil {
				return err
			}
			m.Delete(args[0])
			fmt.Println("ok")
			return nil
		},
	}
}
