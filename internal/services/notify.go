package services

import (
	"context"
	"log/slog"

	"saldo/internal/amqp"
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev *amqp.LedgerEvent) error
}

// Invalidator drops derived data cached for an account.
type Invalidator interface {
	InvalidateAccount(accountID int64)
}

// Notifier runs the after-commit side effects of a ledger mutation. Both
// hooks are optional and neither can fail the mutation, which is already
// committed when they run.
type Notifier struct {
	publisher    EventPublisher
	invalidators []Invalidator
}

func NewNotifier(publisher EventPublisher, invalidators ...Invalidator) *Notifier {
	return &Notifier{publisher: publisher, invalidators: invalidators}
}

// Committed invalidates caches and publishes ev. A nil Notifier is a no-op.
func (n *Notifier) Committed(ctx context.Context, ev *amqp.LedgerEvent) {
	if n == nil {
		return
	}
	for _, inv := range n.invalidators {
		inv.InvalidateAccount(ev.AccountID)
	}

	if n.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping ledger event", "action", ev.Action)
		return
	}
	if err := n.publisher.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"account_id", ev.AccountID,
			"action", ev.Action,
			"error", err)
	}
}
