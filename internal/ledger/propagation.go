// Package ledger keeps an account's running balance consistent when a signed
// amount lands on a given day.
//
// Every day that carries at least one transaction has a ledger entry holding
// the cumulative balance at the end of that day. Applying a delta on day d
// changes the entry at d and, with one set-based update, every entry after d.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

// BalanceStore is the subset of storage.Tx the propagator needs.
type BalanceStore interface {
	GetEntry(ctx context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error)
	GetNearestEntryBefore(ctx context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error)
	SaveEntry(ctx context.Context, e *core.LedgerEntry) error
	BulkShift(ctx context.Context, accountID int64, after core.Date, delta decimal.Decimal) error
	CountEntryTransactions(ctx context.Context, entryID int64) (int64, error)
	DeleteEntry(ctx context.Context, id int64) error
	DeleteAllEntries(ctx context.Context, accountID int64) error
}

// Propagator has no state; the store it operates on is passed per call so it
// always runs inside the caller's transaction.
type Propagator struct{}

func NewPropagator() *Propagator {
	return &Propagator{}
}

// Increase adds value on date and on every later day.
func (p *Propagator) Increase(ctx context.Context, s BalanceStore, accountID int64, date core.Date, value decimal.Decimal) (*core.LedgerEntry, error) {
	return p.Apply(ctx, s, accountID, date, value)
}

// Decrease subtracts value on date and on every later day.
func (p *Propagator) Decrease(ctx context.Context, s BalanceStore, accountID int64, date core.Date, value decimal.Decimal) (*core.LedgerEntry, error) {
	return p.Apply(ctx, s, accountID, date, value.Neg())
}

// Apply adds a signed delta to the entry at date, creating the entry from the
// nearest earlier balance when the day has none, then shifts every later entry
// by the same delta. It returns the entry at date.
func (p *Propagator) Apply(ctx context.Context, s BalanceStore, accountID int64, date core.Date, delta decimal.Decimal) (*core.LedgerEntry, error) {
	entry, err := s.GetEntry(ctx, accountID, date)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		seed, err := p.balanceBefore(ctx, s, accountID, date)
		if err != nil {
			return nil, err
		}
		entry = &core.LedgerEntry{AccountID: accountID, Date: date, Balance: seed}
	}

	entry.Balance = entry.Balance.Add(delta)
	if err := s.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}

	if !delta.IsZero() {
		if err := s.BulkShift(ctx, accountID, date, delta); err != nil {
			return nil, err
		}
	}

	slog.DebugContext(ctx, "Ledger delta propagated",
		"account_id", accountID,
		"date", date.String(),
		"delta", delta.String(),
		"balance", entry.Balance.String())

	return entry, nil
}

func (p *Propagator) balanceBefore(ctx context.Context, s BalanceStore, accountID int64, date core.Date) (decimal.Decimal, error) {
	prev, err := s.GetNearestEntryBefore(ctx, accountID, date)
	if err != nil {
		return decimal.Zero, err
	}
	if prev == nil {
		return decimal.Zero, nil
	}
	return prev.Balance, nil
}

// CleanupAfterDeletion removes the entry at date once no transaction is
// attached to it. The entry's balance already reflects the removal, and later
// entries do not depend on it, so no further propagation is needed.
func (p *Propagator) CleanupAfterDeletion(ctx context.Context, s BalanceStore, accountID int64, date core.Date) error {
	entry, err := s.GetEntry(ctx, accountID, date)
	if err != nil || entry == nil {
		return err
	}

	n, err := s.CountEntryTransactions(ctx, entry.ID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	if err := s.DeleteEntry(ctx, entry.ID); err != nil {
		return fmt.Errorf("cleanup ledger entry %s: %w", date, err)
	}
	slog.DebugContext(ctx, "Empty ledger entry removed", "account_id", accountID, "date", date.String())
	return nil
}

// DeleteAllForAccount removes the whole ledger of an account.
func (p *Propagator) DeleteAllForAccount(ctx context.Context, s BalanceStore, accountID int64) error {
	return s.DeleteAllEntries(ctx, accountID)
}
