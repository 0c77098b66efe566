package notify

import (
	"context"
	"errors"
	"fmt"

	"daka/internal/config"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// MultiNotifier fans a message out to every channel.
type MultiNotifier struct {
	notifiers []Notifier
}

func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send delivers to all channels and joins their errors; one failing channel
// does not stop the others.
func (m *MultiNotifier) Send(ctx context.Context, title, body string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Send(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len reports the number of channels.
func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}

// NoOpNotifier does nothing.
type NoOpNotifier struct{}

func (n *NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}

// FromConfig builds a notifier for every configured channel. With nothing
// configured it returns a NoOpNotifier.
func FromConfig(cfg config.NotificationConfig) (Notifier, error) {
	var channels []Notifier
	if cfg.WxPusher.Enabled() {
		wx, err := NewWxPusherNotifier("", cfg.WxPusher.AppToken, cfg.WxPusher.UID)
		if err != nil {
			return nil, fmt.Errorf("wxpusher: %w", err)
		}
		channels = append(channels, wx)
	}
	if cfg.Bark.URL != "" {
		bark, err := NewBarkNotifier(cfg.Bark.URL)
		if err != nil {
			return nil, fmt.Errorf("bark: %w", err)
		}
		channels = append(channels, bark)
	}
	if len(channels) == 0 {
		return &NoOpNotifier{}, nil
	}
	return NewMultiNotifier(channels...), nil
}
