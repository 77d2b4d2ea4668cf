package services

import (
	"context"
	"fmt"
	"log/slog"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/storage"
)

// AccountService holds operations spanning a whole account.
type AccountService struct {
	store      storage.Store
	propagator *ledger.Propagator
	notifier   *Notifier
}

func NewAccountService(store storage.Store, propagator *ledger.Propagator, notifier *Notifier) *AccountService {
	return &AccountService{store: store, propagator: propagator, notifier: notifier}
}

// Purge deletes every transaction, ledger entry, category and history record
// of the account.
func (s *AccountService) Purge(ctx context.Context, accountID int64) error {
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.DeleteAllTransactions(ctx, accountID); err != nil {
			return err
		}
		if err := s.propagator.DeleteAllForAccount(ctx, tx, accountID); err != nil {
			return err
		}
		if err := tx.DeleteAllCategories(ctx, accountID); err != nil {
			return err
		}
		return tx.DeleteHistory(ctx, accountID)
	})
	if err != nil {
		return fmt.Errorf("purge account %d: %w", accountID, err)
	}

	slog.InfoContext(ctx, "Account purged", "account_id", accountID)
	s.notifier.Committed(ctx, amqp.NewLedgerEvent(accountID, amqp.EventPurge))
	return nil
}

// History returns the newest audit records of the account.
func (s *AccountService) History(ctx context.Context, accountID int64, limit int) ([]core.AuditRecord, error) {
	var out []core.AuditRecord
	err := s.store.Read(ctx, func(tx storage.Tx) error {
		list, err := tx.ListHistory(ctx, accountID, limit)
		out = list
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("history of account %d: %w", accountID, err)
	}
	return out, nil
}

// Ledger returns the account's ledger entries in range, oldest first.
func (s *AccountService) Ledger(ctx context.Context, accountID int64, r storage.DateRange) ([]core.LedgerEntry, error) {
	var out []core.LedgerEntry
	err := s.store.Read(ctx, func(tx storage.Tx) error {
		list, err := tx.ListEntries(ctx, accountID, r)
		out = list
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ledger of account %d: %w", accountID, err)
	}
	return out, nil
}
