package notify

import (
	"context"
)

// Notifier delivers a reminder notification to the user.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// NoOpNotifier swallows notifications. Used when no delivery backend is
// configured so reminder tasks still complete.
type NoOpNotifier struct{}

func (n *NoOpNotifier) Send(ctx context.Context, title, body string) error {
	return nil
}
