package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"daka/internal/config"
)

// DefaultLoginURL is the site's login page.
const DefaultLoginURL = "https://qd.dxssxdk.com/lanhu_yonghudenglu"

// CaptchaSolver turns a captcha image into its characters.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// Timings are the fixed pauses and wait bounds used by the flows. The zero
// value disables every pause, which tests rely on.
type Timings struct {
	// Settle follows clicks that open dialogs or switch tabs.
	Settle time.Duration
	// PageLoad follows navigation, reloads and the report button.
	PageLoad time.Duration
	// LoginResult is the wait after submitting the login form.
	LoginResult time.Duration
	// RetryBackoff paces login attempts.
	RetryBackoff time.Duration
	// Poll is the interval between AI generation checks.
	Poll time.Duration

	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// DefaultTimings match the pacing the site tolerates.
func DefaultTimings() Timings {
	return Timings{
		Settle:       2 * time.Second,
		PageLoad:     3 * time.Second,
		LoginResult:  3 * time.Second,
		RetryBackoff: 2 * time.Second,
		Poll:         time.Second,
		Short:        3 * time.Second,
		Medium:       5 * time.Second,
		Long:         10 * time.Second,
	}
}

// Options configure a Driver.
type Options struct {
	LoginURL   string
	AIAttempts int
	AIPolls    int
	Location   *time.Location
	Timings    Timings
	Now        func() time.Time
}

// Driver runs the site flows on a Page.
type Driver struct {
	page    Page
	solver  CaptchaSolver
	logger  *slog.Logger
	opts    Options
	limiter *rate.Limiter
}

// NewDriver creates a driver. Missing options fall back to defaults, except
// Timings whose zero value is meaningful.
func NewDriver(page Page, solver CaptchaSolver, opts Options, logger *slog.Logger) *Driver {
	if opts.LoginURL == "" {
		opts.LoginURL = DefaultLoginURL
	}
	if opts.AIAttempts <= 0 {
		opts.AIAttempts = 3
	}
	if opts.AIPolls <= 0 {
		opts.AIPolls = 60
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	limit := rate.Inf
	if opts.Timings.RetryBackoff > 0 {
		limit = rate.Every(opts.Timings.RetryBackoff)
	}
	return &Driver{
		page:    page,
		solver:  solver,
		logger:  logger,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Login signs in, retrying until the page leaves the login URL. Every
// failure, including failing to open the login page, is followed by
// RetryBackoff; only context cancellation ends it early.
func (d *Driver) Login(ctx context.Context, creds config.Credentials) error {
	loaded := false
	for attempt := 1; ; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		d.logger.Info("login attempt", "attempt", attempt)
		ok, err := d.loginOnce(ctx, creds, &loaded)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if ok {
			return nil
		}
		if err != nil {
			d.logger.Warn("login attempt failed", "attempt", attempt, "err", err)
		} else {
			d.logger.Warn("still on login page, retrying", "attempt", attempt)
		}
		if err := d.pause(ctx, d.opts.Timings.RetryBackoff); err != nil {
			return err
		}
	}
}

// loginOnce opens the login page if it is not loaded yet, then makes one
// attempt.
func (d *Driver) loginOnce(ctx context.Context, creds config.Credentials, loaded *bool) (bool, error) {
	if !*loaded {
		d.logger.Info("opening login page", "url", d.opts.LoginURL)
		if err := d.page.Navigate(ctx, d.opts.LoginURL); err != nil {
			return false, fmt.Errorf("open login page: %w", err)
		}
		*loaded = true
		if err := d.pause(ctx, d.opts.Timings.Settle); err != nil {
			return false, err
		}
	}
	return d.loginAttempt(ctx, creds)
}

func (d *Driver) loginAttempt(ctx context.Context, creds config.Credentials) (bool, error) {
	t := d.opts.Timings
	if err := d.page.WaitVisible(ctx, usernameInput, t.Long); err != nil {
		return false, err
	}
	if err := d.page.Fill(ctx, usernameInput, creds.Username); err != nil {
		return false, fmt.Errorf("fill username: %w", err)
	}
	if err := d.page.Fill(ctx, passwordInput, creds.Password); err != nil {
		return false, fmt.Errorf("fill password: %w", err)
	}

	answer, err := d.solveCaptcha(ctx)
	if err != nil || answer == "" {
		d.logger.Warn("captcha not recognised, reloading", "err", err)
		if err := d.page.Reload(ctx); err != nil {
			return false, fmt.Errorf("reload login page: %w", err)
		}
		return false, d.pause(ctx, t.Settle)
	}
	if err := d.page.Fill(ctx, captchaInput, answer); err != nil {
		return false, fmt.Errorf("fill captcha: %w", err)
	}

	if btn, err := First(ctx, d.page, loginButtons, 0); err == nil {
		if err := d.page.Click(ctx, btn); err != nil {
			return false, fmt.Errorf("click login: %w", err)
		}
	} else if err := d.page.PressEnter(ctx, captchaInput); err != nil {
		return false, fmt.Errorf("submit login: %w", err)
	}
	if err := d.pause(ctx, t.LoginResult); err != nil {
		return false, err
	}
	d.clickIfVisible(ctx, noticeDialog, t.Medium)

	current, err := d.page.URL(ctx)
	if err != nil {
		return false, fmt.Errorf("read url: %w", err)
	}
	if current != d.opts.LoginURL {
		d.logger.Info("logged in", "url", current)
		return true, nil
	}
	return false, nil
}

func (d *Driver) solveCaptcha(ctx context.Context) (string, error) {
	if err := d.page.WaitVisible(ctx, captchaImage, d.opts.Timings.Medium); err != nil {
		return "", err
	}
	src, ok, err := d.page.Attribute(ctx, captchaImage, "src")
	if err != nil {
		return "", fmt.Errorf("read captcha src: %w", err)
	}
	if !ok || src == "" {
		return "", errors.New("captcha image has no src")
	}
	image, err := decodeDataURL(src)
	if err != nil {
		return "", err
	}
	answer, err := d.solver.Solve(ctx, image)
	if err != nil {
		return "", fmt.Errorf("solve captcha: %w", err)
	}
	answer = strings.TrimSpace(answer)
	d.logger.Info("captcha recognised", "answer", answer)
	return answer, nil
}

// decodeDataURL extracts the payload of a base64 data: URL.
func decodeDataURL(src string) ([]byte, error) {
	head, payload, found := strings.Cut(src, ",")
	if !found || !strings.HasPrefix(head, "data:") || !strings.HasSuffix(head, ";base64") {
		return nil, fmt.Errorf("captcha src is not a base64 data url")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode captcha: %w", err)
	}
	return data, nil
}

// clickIfVisible clicks loc when it appears within timeout. Absence is fine.
func (d *Driver) clickIfVisible(ctx context.Context, loc Locator, timeout time.Duration) bool {
	if err := d.page.WaitVisible(ctx, loc, timeout); err != nil {
		d.logger.Debug("optional element absent", "element", loc.Desc)
		return false
	}
	if err := d.page.Click(ctx, loc); err != nil {
		d.logger.Warn("click failed", "element", loc.Desc, "err", err)
		return false
	}
	d.logger.Debug("clicked", "element", loc.Desc)
	return true
}

// clickFirstVisible clicks the first candidate that appears. Absence is fine.
func (d *Driver) clickFirstVisible(ctx context.Context, cands Candidates, timeout time.Duration) bool {
	loc, err := First(ctx, d.page, cands, timeout)
	if err != nil {
		d.logger.Debug("optional element absent", "element", cands[0].Desc)
		return false
	}
	if err := d.page.Click(ctx, loc); err != nil {
		d.logger.Warn("click failed", "element", loc.Desc, "err", err)
		return false
	}
	return true
}

func (d *Driver) pause(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Driver) today() string {
	return d.opts.Now().In(d.opts.Location).Format("2006-01-02")
}
