package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"daka/internal/core"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report [username] [password]",
		Short: "Submit today's daily report once",
		Long: "Submit today's daily report once, through the same lock and daily record as the scheduler.\n" +
			"Credentials come from config.json, then CHECKIN_USERNAME/CHECKIN_PASSWORD, then the arguments.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, ctx, core.TaskDailyReport, args)
		},
	}
}

func newCheckinCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "checkin morning|evening [username] [password]",
		Short:     "Check in once",
		Args:      cobra.RangeArgs(1, 3),
		ValidArgs: []string{core.VariantMorning, core.VariantEvening},
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			switch args[0] {
			case core.VariantMorning:
				name = core.TaskMorningCheckin
			case core.VariantEvening:
				name = core.TaskEveningCheckin
			default:
				return withExitCode(exitConfig, fmt.Errorf("unknown check-in %q: use morning or evening", args[0]))
			}
			return runOnce(cmd, ctx, name, args[1:])
		},
	}
}

// runOnce executes one task in the foreground. A flow failure is reported
// after its notification went out and maps to a non-zero exit.
func runOnce(cmd *cobra.Command, cc *commandContext, name string, args []string) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	cfg.ApplyArgs(args)
	if err := requireRunnable(cfg); err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(runCtx, cc, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := core.FindTask(a.tasks, name)
	if err != nil {
		return withExitCode(exitConfig, err)
	}
	a.logger.Info("starting one-shot run", "task", task.Name, "user", cfg.Credentials.Username)

	run, err := a.executor.Execute(runCtx, task, core.TriggerManual, time.Now())
	if err != nil {
		return withExitCode(exitFailure, fmt.Errorf("%s failed: %w", task.Title, err))
	}
	out := cmd.OutOrStdout()
	if run.Status == core.RunStatusSkipped {
		fmt.Fprintf(out, "%s skipped: %s\n", task.Name, *run.Error)
		return nil
	}
	fmt.Fprintf(out, "%s %s\n", task.Name, run.Status)
	return nil
}
