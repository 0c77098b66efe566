package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"daka/internal/core"
)

func newGateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Inspect and clear lock and daily record state",
	}
	cmd.AddCommand(newGateStatusCommand(ctx))
	cmd.AddCommand(newGateClearCommand(ctx))
	return cmd
}

func newGateStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show today's completion and lock state per task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			gate, err := ctx.openGate(cfg)
			if err != nil {
				return err
			}

			tasks := core.TasksFromSchedule(cfg.Schedule)
			rows := make([][]string, 0, len(tasks))
			for _, task := range tasks {
				st := gate.Status(task.Name)
				lock := "-"
				switch {
				case st.Held:
					lock = "held"
				case st.LockFile:
					lock = "stale"
				}
				pid := ""
				if st.PID > 0 {
					pid = strconv.Itoa(st.PID)
				}
				rows = append(rows, []string{task.Name, task.At(), yesNo(st.RanToday), lock, pid})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date: %s  Lock dir: %s\n", gate.Today(), cfg.LockDir)
			fmt.Fprint(out, renderTable(
				[]string{"Task", "At", "Done today", "Lock", "PID"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newGateClearCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "clear <task>",
		Short: "Remove a task's lock file",
		Long: "Remove a task's lock file left behind by a crashed run. A lock still held\n" +
			"by a running process is only removed with --force.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := args[0]
			if _, err := core.FindTask(core.TasksFromSchedule(cfg.Schedule), name); err != nil {
				return withExitCode(exitConfig, fmt.Errorf("%w: %s", err, name))
			}
			gate, err := ctx.openGate(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := gate.Status(name)
			if !st.LockFile {
				fmt.Fprintf(out, "No lock file for %s\n", name)
				return nil
			}
			if st.Held && !force {
				return fmt.Errorf("%s is locked by a running process (PID %d); use --force to remove it anyway", name, st.PID)
			}
			gate.ReleaseLock(name)
			fmt.Fprintf(out, "Cleared lock for %s\n", name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Remove the lock even if it is held")
	return cmd
}
