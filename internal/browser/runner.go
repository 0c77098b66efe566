package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"daka/internal/config"
	"daka/internal/core"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Runner launches a fresh browser per task and drives it through login and
// the task's flow.
type Runner struct {
	cfg      config.BrowserConfig
	solver   CaptchaSolver
	location *time.Location
	logger   *slog.Logger
}

// NewRunner creates a runner.
func NewRunner(cfg config.BrowserConfig, solver CaptchaSolver, location *time.Location, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		solver:   solver,
		location: location,
		logger:   logger,
	}
}

// Run implements core.Flow.
func (r *Runner) Run(ctx context.Context, task core.Task, creds config.Credentials) (core.Outcome, error) {
	logger := r.logger.With("task", task.Name)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp", "msg", fmt.Sprintf(format, args...))
		}),
	)
	defer cancelBrowser()

	// Starts the browser.
	if err := chromedp.Run(browserCtx); err != nil {
		return "", fmt.Errorf("start browser: %w", err)
	}
	logger.Info("browser started", "headless", r.cfg.Headless)
	defer logger.Info("browser closed")

	driver := NewDriver(newChromedpPage(browserCtx), r.solver, Options{
		LoginURL:   r.cfg.LoginURL,
		AIAttempts: r.cfg.AIAttempts,
		AIPolls:    r.cfg.AIPolls,
		Location:   r.location,
		Timings:    DefaultTimings(),
	}, logger)

	if err := driver.Login(ctx, creds); err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	switch task.Kind {
	case core.TaskKindReport:
		return driver.SubmitReport(ctx)
	case core.TaskKindCheckin:
		return driver.Checkin(ctx, task.Variant)
	default:
		return "", fmt.Errorf("unsupported task kind %q", task.Kind)
	}
}

func (r *Runner) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", r.cfg.Headless),
		chromedp.WindowSize(1280, 720),
		chromedp.UserAgent(userAgent),
		chromedp.NoSandbox,
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if r.cfg.ContainerEnv {
		opts = append(opts, chromedp.Flag("disable-dev-shm-usage", true))
	}
	return opts
}
