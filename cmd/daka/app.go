package main

import (
	"context"
	"fmt"
	"log/slog"

	"daka/internal/browser"
	"daka/internal/config"
	"daka/internal/core"
	"daka/internal/notify"
	"daka/internal/ocr"
	"daka/internal/store"
)

// app is the wired set of components needed to execute tasks.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	gate     *core.Gate
	executor *core.Executor
	tasks    []core.Task
}

// requireRunnable checks everything a flow needs before any file or network
// access happens.
func requireRunnable(cfg *config.Config) error {
	if err := cfg.Credentials.Validate(); err != nil {
		return withExitCode(exitConfig, err)
	}
	if err := cfg.RequireCaptcha(); err != nil {
		return withExitCode(exitConfig, err)
	}
	return nil
}

func newApp(ctx context.Context, cc *commandContext, cfg *config.Config) (*app, error) {
	logger := cc.logger()

	solver, err := ocr.NewSolver(cfg.Captcha.OCRURL, cfg.Captcha.Timeout)
	if err != nil {
		return nil, withExitCode(exitConfig, err)
	}
	notifier, err := notify.FromConfig(cfg.Notification)
	if err != nil {
		return nil, withExitCode(exitConfig, err)
	}
	if _, ok := notifier.(*notify.NoOpNotifier); ok {
		logger.Info("no notification channel configured")
	}

	gate, err := cc.openGate(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.StateDir, cfg.RunKeep)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}

	runner := browser.NewRunner(cfg.Browser, solver, cfg.Location, logger)
	executor := core.NewExecutor(gate, runner, st, notifier, cfg.Credentials, logger, cfg.Location)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		gate:     gate,
		executor: executor,
		tasks:    core.TasksFromSchedule(cfg.Schedule),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close run history", "err", err)
	}
}
