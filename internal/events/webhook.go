package events

import (
	"context"
)

// Notifier is satisfied by notify.Service
type Notifier interface {
	Send(ctx context.Context, payload any) ([]byte, error)
}

type Webhook struct {
	n Notifier
}

func NewWebhook(n Notifier) *Webhook {
	return &Webhook{n: n}
}

func (w *Webhook) Publish(ctx context.Context, e Event) error {
	_, err := w.n.Send(ctx, e)
	return err
}
