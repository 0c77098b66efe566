package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"daka/internal/core"
	"daka/internal/store"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [task]",
		Short: "Show recent run history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			task := ""
			if len(args) == 1 {
				task = args[0]
				if _, err := core.FindTask(core.TasksFromSchedule(cfg.Schedule), task); err != nil {
					return withExitCode(exitConfig, fmt.Errorf("%w: %s", err, task))
				}
			}
			return ctx.withStore(cmd.Context(), func(st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), task, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Started", "Task", "Trigger", "Status", "Took", "Detail"},
					buildRunRows(runs, cfg.Location),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func buildRunRows(runs []*core.Run, loc *time.Location) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		started := run.CreatedAt
		if run.StartedAt != nil {
			started = *run.StartedAt
		}
		took := ""
		if run.StartedAt != nil && run.EndedAt != nil {
			took = run.EndedAt.Sub(*run.StartedAt).Round(time.Second).String()
		}
		detail := ""
		if run.Error != nil {
			detail = truncate(*run.Error, 60)
		}
		rows = append(rows, []string{
			started.In(loc).Format("2006-01-02 15:04:05"),
			run.Task,
			string(run.Trigger),
			string(run.Status),
			took,
			detail,
		})
	}
	return rows
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes-3]) + "..."
}
