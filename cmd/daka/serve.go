package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"daka/internal/api"
	"daka/internal/core"
	dakamcp "daka/internal/mcp"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [username] [password]",
		Short: "Run the check-in and daily report scheduler",
		Long: "Run the scheduler until interrupted. With --mode http, mcp or both the task\n" +
			"and run history are also exposed over HTTP and/or MCP stdio.",
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cfg.ApplyArgs(args)
			if err := requireRunnable(cfg); err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(sigCtx, ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			logger := a.logger

			sched, err := core.NewScheduler(a.executor, a.tasks, logger, cfg.Location)
			if err != nil {
				return withExitCode(exitConfig, err)
			}

			logger.Info("scheduler starting",
				"user", cfg.Credentials.Username,
				"timezone", cfg.Timezone,
				"lock_dir", cfg.LockDir,
				"mode", cfg.Server.Mode,
			)
			if cfg.Schedule.RunOnStartup {
				sched.RunStartup(sigCtx)
				if sigCtx.Err() != nil {
					return nil
				}
			}
			sched.Start(sigCtx)

			serveErr := make(chan error, 2)
			var httpServer *api.Server
			if cfg.Server.Mode == "http" || cfg.Server.Mode == "both" {
				httpServer = api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, a.store, sched, a.gate, logger, cfg.Location)
				go func() {
					logger.Info("http api listening", "addr", cfg.Server.Addr)
					if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						serveErr <- fmt.Errorf("http server: %w", err)
					}
				}()
			}
			if cfg.Server.Mode == "mcp" || cfg.Server.Mode == "both" {
				mcpServer := dakamcp.NewMCPServer(a.store, sched, a.gate, logger, cfg.Location)
				go func() {
					if err := mcpServer.Run(); err != nil {
						serveErr <- fmt.Errorf("mcp server: %w", err)
					}
				}()
			}

			var runErr error
			select {
			case <-sigCtx.Done():
				logger.Info("received signal, shutting down")
			case runErr = <-serveErr:
				logger.Error("server error", "err", runErr)
			}

			if httpServer != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					logger.Error("server shutdown", "err", err)
				}
			}
			// In-flight jobs are abandoned; their lock files are released on
			// the next run or by `daka gate clear`.
			sched.Stop()
			logger.Info("shutdown complete")
			return runErr
		},
	}

	cmd.Flags().StringVar(&ctx.overrides.Mode, "mode", "", "Also serve the API: http, mcp or both")
	cmd.Flags().StringVar(&ctx.overrides.Addr, "addr", "", "HTTP listen address")
	return cmd
}
