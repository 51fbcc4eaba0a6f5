package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/devagent/internal/config"
	"github.com/nextlevelbuilder/devagent/internal/cron"
)

func cronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cron",
		Short: "Manage scheduled background jobs",
	}
	cmd.AddCommand(cronAddCmd())
	cmd.AddCommand(cronListCmd())
	cmd.AddCommand(cronEnableCmd(true))
	cmd.AddCommand(cronEnableCmd(false))
	cmd.AddCommand(cronRemoveCmd())
	cmd.AddCommand(cronRunCmd())
	return cmd
}

// openJobFile builds a service over the persisted job list without starting
// the scheduling loop. Mutations persist immediately.
func openJobFile(handler cron.FireHandler) (*cron.Service, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	svc := cron.NewService(config.ExpandHome(cfg.Cron.StateFile), handler)
	if err := svc.Load(); err != nil {
		return nil, err
	}
	return svc, nil
}

func cronAddCmd() *cobra.Command {
	var (
		name     string
		at       string
		every    time.Duration
		expr     string
		tz       string
		priority string
		keep     bool
	)
	cmd := &cobra.Command{
		Use:   "add [task...]",
		Short: "Add a scheduled job (exactly one of --at, --every, --cron)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := strings.Join(args, " ")

			var schedule cron.Schedule
			var err error
			switch {
			case at != "":
				t, perr := time.Parse(time.RFC3339, at)
				if perr != nil {
					return fmt.Errorf("invalid --at (want RFC3339): %w", perr)
				}
				schedule, err = cron.At(t.UnixMilli())
			case every > 0:
				schedule, err = cron.Every(every.Milliseconds())
			case expr != "":
				schedule, err = cron.Cron(expr, tz)
			default:
				return fmt.Errorf("one of --at, --every, --cron is required")
			}
			if err != nil {
				return err
			}

			svc, err := openJobFile(nil)
			if err != nil {
				return err
			}
			if name == "" {
				name = truncateLabel(task, 40)
			}
			deleteAfterRun := schedule.Kind == cron.KindAt && !keep
			id, err := svc.Add(name, schedule, task, priority, deleteAfterRun)
			if err != nil {
				return err
			}
			fmt.Printf("added job %s (%s)\n", id, schedule.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "job name (default: task prefix)")
	cmd.Flags().StringVar(&at, "at", "", "fire once at an RFC3339 timestamp")
	cmd.Flags().DurationVar(&every, "every", 0, "fire repeatedly at this interval")
	cmd.Flags().StringVar(&expr, "cron", "", "fire on a cron expression")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone for --cron (default UTC)")
	cmd.Flags().StringVar(&priority, "priority", "normal", "job priority: low, normal, high")
	cmd.Flags().BoolVar(&keep, "keep", false, "keep a one-shot job listed after it fires")
	return cmd
}

func cronListCmd() *cobra.Command {
	var enabledOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openJobFile(nil)
			if err != nil {
				return err
			}
			jobs := svc.List(enabledOnly)
			if len(jobs) == 0 {
				fmt.Println("no jobs")
				return nil
			}
			for _, j := range jobs {
				state := "off"
				if j.Enabled {
					state = "on"
				}
				next := "-"
				if j.State.NextRunAtMs != nil {
					next = time.UnixMilli(*j.State.NextRunAtMs).Local().Format(time.RFC3339)
				}
				fmt.Printf("%s  %-3s  %-24s  %-24s  runs=%d  last=%s  next=%s\n",
					j.ID, state, j.Name, j.Schedule.String(),
					j.State.RunCount, j.State.LastStatus, next)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&enabledOnly, "enabled", false, "only enabled jobs")
	return cmd
}

func cronEnableCmd(on bool) *cobra.Command {
	use, short := "enable <id>", "Enable a job"
	if !on {
		use, short = "disable <id>", "Disable a job"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openJobFile(nil)
			if err != nil {
				return err
			}
			if !svc.Enable(args[0], on) {
				return fmt.Errorf("no such job: %s", args[0])
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func cronRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openJobFile(nil)
			if err != nil {
				return err
			}
			if !svc.Remove(args[0]) {
				return fmt.Errorf("no such job: %s", args[0])
			}
			fmt.Println("ok")
			return nil
		},
	}
}

func cronRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <id>",
		Short: "Run a job immediately, outside its schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one job id")
			}
			ctx := context.Background()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			// Run the task synchronously through a headless agent so the
			// result prints here instead of going to a bus nobody reads.
			runner := subagentRunner(a.client, a.cfg)
			svc := cron.NewService(
				config.ExpandHome(a.cfg.Cron.StateFile),
				func(job cron.Job) error {
					out, err := runner(ctx, job.Task,
						a.registry.Subset(a.registry.MainOnlyNames()...),
						a.cfg.Subagents.MaxIterations)
					if err != nil {
						return err
					}
					fmt.Println(out)
					return nil
				})
			if err := svc.Load(); err != nil {
				return err
			}
			if !svc.RunNow(args[0]) {
				return fmt.Errorf("no such job: %s", args[0])
			}
			return nil
		},
	}
}
