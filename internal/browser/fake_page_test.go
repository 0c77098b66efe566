package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakePage is a scripted Page keyed by locator query.
type fakePage struct {
	mu sync.Mutex

	url          string
	navigateErrs int
	visible      map[string]bool
	texts        map[string]string
	attrs        map[string]string
	values       map[string]string
	onClick      map[string]func(*fakePage)
	onEnter      func(*fakePage)

	clicks    []string
	clickedAt []time.Time
	fills     map[string]string
	enters    int
	reloads   int
	navigated []string
}

func newFakePage() *fakePage {
	return &fakePage{
		visible: map[string]bool{},
		texts:   map[string]string{},
		attrs:   map[string]string{},
		values:  map[string]string{},
		onClick: map[string]func(*fakePage){},
		fills:   map[string]string{},
	}
}

func (f *fakePage) show(locs ...Locator) {
	for _, l := range locs {
		f.visible[l.Query] = true
	}
}

func (f *fakePage) hide(locs ...Locator) {
	for _, l := range locs {
		delete(f.visible, l.Query)
	}
}

func (f *fakePage) clickCount(loc Locator) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.clicks {
		if q == loc.Query {
			n++
		}
	}
	return n
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	if f.navigateErrs > 0 {
		f.navigateErrs--
		return errors.New("net::ERR_CONNECTION_RESET")
	}
	f.url = url
	return nil
}

func (f *fakePage) Reload(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakePage) URL(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakePage) WaitVisible(ctx context.Context, loc Locator, _ time.Duration) error {
	ok, err := f.Visible(ctx, loc)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", loc.Desc, ErrElementNotFound)
	}
	return nil
}

func (f *fakePage) Visible(ctx context.Context, loc Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible[loc.Query], nil
}

func (f *fakePage) Click(_ context.Context, loc Locator) error {
	f.mu.Lock()
	if !f.visible[loc.Query] {
		f.mu.Unlock()
		return fmt.Errorf("click %s: %w", loc.Desc, ErrElementNotFound)
	}
	f.clicks = append(f.clicks, loc.Query)
	f.clickedAt = append(f.clickedAt, time.Now())
	hook := f.onClick[loc.Query]
	f.mu.Unlock()
	if hook != nil {
		f.mu.Lock()
		hook(f)
		f.mu.Unlock()
	}
	return nil
}

func (f *fakePage) Fill(_ context.Context, loc Locator, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fills[loc.Query] = value
	return nil
}

func (f *fakePage) PressEnter(context.Context, Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enters++
	if f.onEnter != nil {
		f.onEnter(f)
	}
	return nil
}

func (f *fakePage) Text(_ context.Context, loc Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[loc.Query], nil
}

func (f *fakePage) Attribute(_ context.Context, loc Locator, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.attrs[loc.Query+"@"+name]
	return v, ok, nil
}

func (f *fakePage) Value(_ context.Context, loc Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[loc.Query], nil
}

type scriptedSolver struct {
	answers []string
	calls   int
}

func (s *scriptedSolver) Solve(context.Context, []byte) (string, error) {
	s.calls++
	if len(s.answers) == 0 {
		return "", nil
	}
	answer := s.answers[0]
	if len(s.answers) > 1 {
		s.answers = s.answers[1:]
	}
	return answer, nil
}
