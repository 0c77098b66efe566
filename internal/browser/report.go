package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"daka/internal/core"
)

// ErrGenerationFailed is returned when every AI generation attempt failed.
var ErrGenerationFailed = errors.New("AI report generation failed")

// MinReportLength is the rune count above which a filled report textarea
// counts as generated even without a completion toast.
const MinReportLength = 20

// SubmitReport fills and submits today's report. It must run after Login.
func (d *Driver) SubmitReport(ctx context.Context) (core.Outcome, error) {
	t := d.opts.Timings
	if err := d.openAccountList(ctx); err != nil {
		return "", err
	}

	btn, err := First(ctx, d.page, generateReportButtons, t.Short)
	if err != nil {
		return "", fmt.Errorf("find generate report button: %w", err)
	}
	d.logger.Info("found generate report button", "element", btn.Desc)
	if err := d.page.Click(ctx, btn); err != nil {
		return "", fmt.Errorf("click generate report: %w", err)
	}
	if err := d.pause(ctx, t.PageLoad); err != nil {
		return "", err
	}

	if d.CheckTodayReportSubmitted(ctx) {
		d.logger.Info("today's report already submitted")
		return core.OutcomeAlreadyDone, nil
	}

	if d.clickIfVisible(ctx, confirmDialog, t.Short) {
		if err := d.pause(ctx, t.Settle); err != nil {
			return "", err
		}
	}
	if d.clickIfVisible(ctx, generateTab, t.Medium) {
		if err := d.pause(ctx, t.Settle); err != nil {
			return "", err
		}
	}

	if err := d.generate(ctx); err != nil {
		return "", err
	}

	if err := d.page.WaitVisible(ctx, submitButton, t.Long); err != nil {
		return "", fmt.Errorf("find submit button: %w", err)
	}
	if err := d.page.Click(ctx, submitButton); err != nil {
		return "", fmt.Errorf("click submit: %w", err)
	}
	if err := d.pause(ctx, t.PageLoad); err != nil {
		return "", err
	}
	if err := d.page.WaitVisible(ctx, submitDone, t.Medium); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		d.logger.Warn("no submit confirmation seen, assuming submitted")
		return core.OutcomeSubmitted, nil
	}
	d.logger.Info("report submitted")
	return core.OutcomeSubmitted, nil
}

// CheckTodayReportSubmitted opens the recent records tab and compares the
// newest report date with today. Any failure reads as "not submitted".
func (d *Driver) CheckTodayReportSubmitted(ctx context.Context) bool {
	t := d.opts.Timings
	if !d.clickIfVisible(ctx, recentTab, t.Long) {
		d.logger.Warn("recent records tab not found")
		return false
	}
	if d.pause(ctx, t.Settle) != nil {
		return false
	}
	if d.clickIfVisible(ctx, refreshButton, t.Medium) {
		if d.pause(ctx, t.Settle) != nil {
			return false
		}
	}
	if err := d.page.WaitVisible(ctx, reportDate, t.Medium); err != nil {
		d.logger.Info("no report records found")
		return false
	}
	latest, err := d.page.Text(ctx, reportDate)
	if err != nil {
		d.logger.Warn("read report date", "err", err)
		return false
	}
	today := d.today()
	latest = strings.TrimSpace(latest)
	d.logger.Info("latest report", "date", latest, "today", today)
	return latest == today
}

// generate runs AI generation up to AIAttempts times.
func (d *Driver) generate(ctx context.Context) error {
	for attempt := 1; attempt <= d.opts.AIAttempts; attempt++ {
		err := d.generateOnce(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("AI generation attempt failed", "attempt", attempt, "err", err)
		if err := d.pause(ctx, d.opts.Timings.Settle); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrGenerationFailed, d.opts.AIAttempts)
}

var (
	errGenerationToast   = errors.New("site reported generation failure")
	errGenerationTimeout = errors.New("no generation result")
)

func (d *Driver) generateOnce(ctx context.Context) error {
	t := d.opts.Timings
	if err := d.page.WaitVisible(ctx, aiButton, t.Long); err != nil {
		return fmt.Errorf("find AI button: %w", err)
	}
	if err := d.page.Click(ctx, aiButton); err != nil {
		return fmt.Errorf("click AI button: %w", err)
	}
	if err := d.page.WaitVisible(ctx, aiGenerating, t.Medium); err == nil {
		d.logger.Info("AI generating")
	}

	for i := 0; i < d.opts.AIPolls; i++ {
		if ok, _ := d.page.Visible(ctx, aiDone); ok {
			d.logger.Info("AI generation complete")
			return d.pause(ctx, t.Settle)
		}
		if ok, _ := d.page.Visible(ctx, aiFailed); ok {
			return errGenerationToast
		}
		if err := d.pause(ctx, t.Poll); err != nil {
			return err
		}
	}

	content, err := d.page.Value(ctx, reportTextarea)
	if err == nil && utf8.RuneCountInString(strings.TrimSpace(content)) >= MinReportLength {
		d.logger.Info("no completion toast but report content present", "runes", utf8.RuneCountInString(strings.TrimSpace(content)))
		return nil
	}
	return errGenerationTimeout
}

// openAccountList navigates to the account list and expands the account.
// Both steps tolerate a missing element.
func (d *Driver) openAccountList(ctx context.Context) error {
	t := d.opts.Timings
	if err := d.pause(ctx, t.PageLoad); err != nil {
		return err
	}
	if d.clickIfVisible(ctx, accountNav, t.Long) {
		if err := d.pause(ctx, t.PageLoad); err != nil {
			return err
		}
	} else {
		d.logger.Warn("account list nav not found")
	}
	if d.clickFirstVisible(ctx, expandButtons, t.Medium) {
		if err := d.pause(ctx, t.Settle); err != nil {
			return err
		}
	} else {
		d.logger.Warn("expand button not found, continuing")
	}
	return nil
}
