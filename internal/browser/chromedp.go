package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const (
	navigationTimeout = 30 * time.Second
	actionTimeout     = 10 * time.Second
)

// chromedpPage implements Page on a chromedp browser context. Calls run on
// the browser context; the caller's context is only checked for
// cancellation, since the browser context already derives from it.
type chromedpPage struct {
	ctx context.Context
}

func newChromedpPage(browserCtx context.Context) *chromedpPage {
	return &chromedpPage{ctx: browserCtx}
}

func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func queryOption(loc Locator) chromedp.QueryOption {
	if loc.By == ByXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, navigationTimeout, chromedp.Navigate(url))
}

func (p *chromedpPage) Reload(ctx context.Context) error {
	return p.run(ctx, navigationTimeout, chromedp.Reload())
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, actionTimeout, chromedp.Location(&url))
	return url, err
}

func (p *chromedpPage) WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error {
	if timeout <= 0 {
		ok, err := p.Visible(ctx, loc)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", loc.Desc, ErrElementNotFound)
		}
		return nil
	}
	err := p.run(ctx, timeout, chromedp.WaitVisible(loc.Query, queryOption(loc)))
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%s: %w", loc.Desc, ErrElementNotFound)
	}
	return err
}

func (p *chromedpPage) Visible(ctx context.Context, loc Locator) (bool, error) {
	query, err := json.Marshal(loc.Query)
	if err != nil {
		return false, err
	}
	find := fmt.Sprintf("document.querySelector(%s)", query)
	if loc.By == ByXPath {
		find = fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", query)
	}
	script := fmt.Sprintf(`(() => {
		const el = %s;
		return !!(el && (el.offsetWidth || el.offsetHeight || el.getClientRects().length));
	})()`, find)

	var visible bool
	if err := p.run(ctx, actionTimeout, chromedp.Evaluate(script, &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

func (p *chromedpPage) Click(ctx context.Context, loc Locator) error {
	return p.run(ctx, actionTimeout, chromedp.Click(loc.Query, queryOption(loc), chromedp.NodeVisible))
}

func (p *chromedpPage) Fill(ctx context.Context, loc Locator, value string) error {
	return p.run(ctx, actionTimeout,
		chromedp.Clear(loc.Query, queryOption(loc)),
		chromedp.SendKeys(loc.Query, value, queryOption(loc)),
	)
}

func (p *chromedpPage) PressEnter(ctx context.Context, loc Locator) error {
	return p.run(ctx, actionTimeout, chromedp.SendKeys(loc.Query, kb.Enter, queryOption(loc)))
}

func (p *chromedpPage) Text(ctx context.Context, loc Locator) (string, error) {
	var text string
	err := p.run(ctx, actionTimeout, chromedp.Text(loc.Query, &text, queryOption(loc), chromedp.NodeVisible))
	return text, err
}

func (p *chromedpPage) Attribute(ctx context.Context, loc Locator, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := p.run(ctx, actionTimeout, chromedp.AttributeValue(loc.Query, name, &value, &ok, queryOption(loc)))
	return value, ok, err
}

func (p *chromedpPage) Value(ctx context.Context, loc Locator) (string, error) {
	var value string
	err := p.run(ctx, actionTimeout, chromedp.Value(loc.Query, &value, queryOption(loc)))
	return value, err
}
