package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/storage"
)

// TransactionService coordinates the lifecycle of one kind of transaction.
// Every mutation validates, propagates the signed delta through the ledger,
// persists the row and appends a history record inside a single store
// transaction.
type TransactionService struct {
	kind       core.Kind
	store      storage.Store
	propagator *ledger.Propagator
	notifier   *Notifier
	now        func() time.Time
}

func NewTransactionService(kind core.Kind, store storage.Store, propagator *ledger.Propagator, notifier *Notifier) *TransactionService {
	return &TransactionService{
		kind:       kind,
		store:      store,
		propagator: propagator,
		notifier:   notifier,
		now:        time.Now,
	}
}

func (s *TransactionService) Kind() core.Kind { return s.kind }

func (s *TransactionService) today() core.Date {
	return core.DateOf(s.now())
}

// Create records a new transaction and moves the running balance from its
// date onwards.
func (s *TransactionService) Create(ctx context.Context, accountID int64, d core.Draft) (*core.Transaction, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var created core.Transaction
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		cat, err := s.category(ctx, tx, accountID, d.CategoryID)
		if err != nil {
			return err
		}

		entry, err := s.propagator.Apply(ctx, tx, accountID, d.Date, s.kind.Signed(d.Value))
		if err != nil {
			return fmt.Errorf("propagate %s: %w", s.kind, err)
		}

		created = core.Transaction{
			AccountID:     accountID,
			Kind:          s.kind,
			CategoryID:    cat.ID,
			CategoryName:  cat.Name,
			LedgerEntryID: entry.ID,
			Date:          d.Date,
			Value:         d.Value,
			Description:   d.Description,
			Planned:       d.Planned,
		}
		created.RefreshOverdue(s.today())

		if err := tx.InsertTransaction(ctx, &created); err != nil {
			return err
		}

		after := created.Snapshot()
		return s.audit(ctx, tx, accountID, core.AuditCreate, nil, &after)
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", s.kind, err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"account_id", accountID,
		"kind", s.kind,
		"id", created.ID,
		"date", created.Date.String(),
		"value", created.Value.String())

	s.committed(ctx, accountID, core.AuditCreate, created.ID, created.Date)
	return &created, nil
}

// Update replaces the editable fields of a transaction. A date change moves
// the old value out of the old day and the new value into the new day; a
// value change on the same day propagates only the difference.
func (s *TransactionService) Update(ctx context.Context, accountID, id int64, d core.Draft) (*core.Transaction, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	var updated core.Transaction
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetTransaction(ctx, id, accountID, s.kind)
		if err != nil {
			return err
		}
		before := cur.Snapshot()

		cat, err := s.category(ctx, tx, accountID, d.CategoryID)
		if err != nil {
			return err
		}

		updated = *cur
		updated.CategoryID = cat.ID
		updated.CategoryName = cat.Name
		updated.Date = d.Date
		updated.Value = d.Value
		updated.Description = d.Description
		updated.Planned = d.Planned

		moved := !before.Date.Equal(d.Date)
		switch {
		case moved:
			if _, err := s.propagator.Apply(ctx, tx, accountID, before.Date, s.kind.Signed(before.Value).Neg()); err != nil {
				return fmt.Errorf("propagate removal: %w", err)
			}
			entry, err := s.propagator.Apply(ctx, tx, accountID, d.Date, s.kind.Signed(d.Value))
			if err != nil {
				return fmt.Errorf("propagate insertion: %w", err)
			}
			updated.LedgerEntryID = entry.ID
		case !before.Value.Equal(d.Value):
			if _, err := s.propagator.Apply(ctx, tx, accountID, d.Date, s.kind.Signed(d.Value.Sub(before.Value))); err != nil {
				return fmt.Errorf("propagate difference: %w", err)
			}
		}

		updated.RefreshOverdue(s.today())
		if err := tx.UpdateTransaction(ctx, &updated); err != nil {
			return err
		}

		if moved {
			if err := s.propagator.CleanupAfterDeletion(ctx, tx, accountID, before.Date); err != nil {
				return err
			}
		}

		after := updated.Snapshot()
		return s.audit(ctx, tx, accountID, core.AuditUpdate, &before, &after)
	})
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", s.kind, id, err)
	}

	slog.InfoContext(ctx, "Transaction updated",
		"account_id", accountID,
		"kind", s.kind,
		"id", id,
		"date", updated.Date.String(),
		"value", updated.Value.String())

	s.committed(ctx, accountID, core.AuditUpdate, id, updated.Date)
	return &updated, nil
}

// Delete removes a transaction, takes its value out of the running balance
// and drops the day's ledger entry if nothing else is attached to it.
func (s *TransactionService) Delete(ctx context.Context, accountID, id int64) error {
	var removed core.Snapshot
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		cur, err := tx.GetTransaction(ctx, id, accountID, s.kind)
		if err != nil {
			return err
		}
		removed = cur.Snapshot()

		if _, err := s.propagator.Apply(ctx, tx, accountID, cur.Date, cur.SignedValue().Neg()); err != nil {
			return fmt.Errorf("propagate removal: %w", err)
		}
		if err := tx.DeleteTransaction(ctx, id, accountID); err != nil {
			return err
		}
		if err := s.propagator.CleanupAfterDeletion(ctx, tx, accountID, cur.Date); err != nil {
			return err
		}
		return s.audit(ctx, tx, accountID, core.AuditDelete, &removed, nil)
	})
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", s.kind, id, err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"account_id", accountID,
		"kind", s.kind,
		"id", id,
		"date", removed.Date.String())

	s.committed(ctx, accountID, core.AuditDelete, id, removed.Date)
	return nil
}

// Get returns one transaction with its overdue flag refreshed.
func (s *TransactionService) Get(ctx context.Context, accountID, id int64) (*core.Transaction, error) {
	var out *core.Transaction
	err := s.store.Read(ctx, func(tx storage.Tx) error {
		tr, err := tx.GetTransaction(ctx, id, accountID, s.kind)
		if err != nil {
			return err
		}
		tr.RefreshOverdue(s.today())
		out = tr
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", s.kind, id, err)
	}
	return out, nil
}

// List returns the account's transactions of this kind in [from, to]; zero
// bounds are open.
func (s *TransactionService) List(ctx context.Context, accountID int64, from, to core.Date) ([]core.Transaction, error) {
	var out []core.Transaction
	err := s.store.Read(ctx, func(tx storage.Tx) error {
		list, err := tx.ListTransactions(ctx, accountID, storage.TransactionFilter{
			Kind:  s.kind,
			Range: storage.DateRange{From: from, To: to},
		})
		out = list
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.kind, err)
	}

	ref := s.today()
	for i := range out {
		out[i].RefreshOverdue(ref)
	}
	return out, nil
}

// category resolves a category that must belong to the account and match the
// service's kind.
func (s *TransactionService) category(ctx context.Context, tx storage.Tx, accountID, id int64) (*core.Category, error) {
	cat, err := tx.FindCategory(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	if cat.Kind != s.kind {
		return nil, fmt.Errorf("%s category %d: %w", s.kind, id, core.ErrNotFound)
	}
	return cat, nil
}

func (s *TransactionService) audit(ctx context.Context, tx storage.Tx, accountID int64, action core.AuditAction, before, after *core.Snapshot) error {
	err := tx.AppendHistory(ctx, &core.AuditRecord{
		AccountID: accountID,
		Action:    action,
		Kind:      s.kind,
		Before:    before,
		After:     after,
		Timestamp: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func (s *TransactionService) committed(ctx context.Context, accountID int64, action core.AuditAction, id int64, date core.Date) {
	ev := amqp.NewLedgerEvent(accountID, string(action))
	ev.Kind = s.kind
	ev.TransactionID = id
	ev.Date = date.String()
	s.notifier.Committed(ctx, ev)
}
