// Package browser drives the check-in site: login with captcha, the daily
// report form and attendance check-in.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrElementNotFound is returned when a locator matches nothing visible in time.
var ErrElementNotFound = errors.New("element not found")

// By selects how a locator query is interpreted.
type By int

const (
	ByCSS By = iota
	ByXPath
)

// Locator names one way of finding an element.
type Locator struct {
	Desc  string
	Query string
	By    By
}

func (l Locator) String() string {
	return fmt.Sprintf("%s (%s)", l.Desc, l.Query)
}

// CSS builds a CSS-selector locator.
func CSS(desc, query string) Locator {
	return Locator{Desc: desc, Query: query, By: ByCSS}
}

// XPath builds an XPath locator.
func XPath(desc, query string) Locator {
	return Locator{Desc: desc, Query: query, By: ByXPath}
}

// Candidates are alternative locators for the same element, tried in order.
type Candidates []Locator

// Page is the subset of browser operations the flows need. Every method
// takes the caller's context; element methods act on the first match.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	// WaitVisible blocks until loc is visible or timeout passes, in which
	// case it returns ErrElementNotFound.
	WaitVisible(ctx context.Context, loc Locator, timeout time.Duration) error
	// Visible checks once without waiting.
	Visible(ctx context.Context, loc Locator) (bool, error)
	Click(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	PressEnter(ctx context.Context, loc Locator) error
	Text(ctx context.Context, loc Locator) (string, error)
	Attribute(ctx context.Context, loc Locator, name string) (string, bool, error)
	Value(ctx context.Context, loc Locator) (string, error)
}

// First returns the first candidate that becomes visible within timeout.
// Candidates are tried one after another, each with the full timeout.
func First(ctx context.Context, page Page, cands Candidates, timeout time.Duration) (Locator, error) {
	for _, loc := range cands {
		if err := ctx.Err(); err != nil {
			return Locator{}, err
		}
		if err := page.WaitVisible(ctx, loc, timeout); err == nil {
			return loc, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return Locator{}, err
	}
	if len(cands) == 0 {
		return Locator{}, ErrElementNotFound
	}
	return Locator{}, fmt.Errorf("%s: %w", cands[0].Desc, ErrElementNotFound)
}
