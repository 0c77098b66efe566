package browser

import (
	"context"
	"fmt"

	"daka/internal/core"
)

// Checkin performs the morning or evening check-in. It must run after Login.
func (d *Driver) Checkin(ctx context.Context, variant string) (core.Outcome, error) {
	t := d.opts.Timings
	if err := d.openAccountList(ctx); err != nil {
		return "", err
	}

	for _, marker := range checkedInMarkers(variant) {
		if ok, _ := d.page.Visible(ctx, marker); ok {
			d.logger.Info("already checked in", "variant", variant, "marker", marker.Desc)
			return core.OutcomeAlreadyDone, nil
		}
	}

	btn, err := First(ctx, d.page, checkinButtons(variant), t.Short)
	if err != nil {
		return "", fmt.Errorf("find check-in button: %w", err)
	}
	if err := d.page.Click(ctx, btn); err != nil {
		return "", fmt.Errorf("click check-in: %w", err)
	}
	if err := d.pause(ctx, t.Settle); err != nil {
		return "", err
	}
	if d.clickIfVisible(ctx, confirmDialog, t.Short) {
		if err := d.pause(ctx, t.Settle); err != nil {
			return "", err
		}
	}

	if err := d.page.WaitVisible(ctx, checkinDone, t.Medium); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		d.logger.Warn("no check-in confirmation seen, assuming done", "variant", variant)
		return core.OutcomeSubmitted, nil
	}
	d.logger.Info("checked in", "variant", variant)
	return core.OutcomeSubmitted, nil
}
