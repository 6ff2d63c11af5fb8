// Package notify formats and delivers stock alerts to outbound channels.
package notify

import (
	"context"
	"errors"
)

// Alert is one outbound notification, ready for formatting by a channel.
type Alert struct {
	Title       string
	Description string
	URL         string
	Image       string
	Source      string
}

// Notifier delivers an alert to one channel.
type Notifier interface {
	Send(ctx context.Context, a Alert) error
}

// Multi fans an alert out to several channels. Every channel is attempted;
// errors are joined.
type Multi []Notifier

// Send delivers the alert to all configured channels.
func (m Multi) Send(ctx context.Context, a Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
