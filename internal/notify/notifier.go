// Package notify delivers trigger events to users. Delivery is
// fire-and-forget: failures are logged and counted, never returned.
package notify

import (
	"context"

	"github.com/mohamedkhairy/stock-watchlist/internal/models"
)

// Notification is a user-visible message derived from a TriggerEvent
type Notification struct {
	OwnerID string              `json:"owner_id"`
	Title   string              `json:"title"`
	Body    string              `json:"body"`
	Event   models.TriggerEvent `json:"event"`
}

// Notifier delivers notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier
type Func func(ctx context.Context, n Notification)

func (f Func) Notify(ctx context.Context, n Notification) {
	f(ctx, n)
}

// Multi fans a notification out to every member. Nil members are skipped.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) {
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		notifier.Notify(ctx, n)
	}
}
