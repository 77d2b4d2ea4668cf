package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

// Store runs units of work against the persisted ledger. Every mutation of the
// ledger happens inside InTx: if fn returns an error nothing it wrote is kept.
type Store interface {
	InTx(ctx context.Context, fn func(Tx) error) error
	// Read runs fn against a read-only view.
	Read(ctx context.Context, fn func(Tx) error) error
	Close() error
}

// Tx is the persistence contract of the ledger engine. Lookups of optional
// rows (GetEntry, GetNearestEntryBefore) return nil without error when absent;
// lookups by id return an error wrapping core.ErrNotFound.
type Tx interface {
	EntryStore
	CategoryStore
	TransactionStore
	HistoryStore
}

// EntryStore is the balance store: one cumulative balance per account and day.
type EntryStore interface {
	GetEntry(ctx context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error)
	GetNearestEntryBefore(ctx context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error)
	// SaveEntry inserts the entry when its ID is zero (setting the ID) and
	// updates its balance otherwise.
	SaveEntry(ctx context.Context, e *core.LedgerEntry) error
	// BulkShift adds delta to the balance of every entry dated after the given
	// day, as a single set-based update.
	BulkShift(ctx context.Context, accountID int64, after core.Date, delta decimal.Decimal) error
	CountEntryTransactions(ctx context.Context, entryID int64) (int64, error)
	DeleteEntry(ctx context.Context, id int64) error
	DeleteAllEntries(ctx context.Context, accountID int64) error
	// ListEntries returns the account's entries ordered by date.
	ListEntries(ctx context.Context, accountID int64, r DateRange) ([]core.LedgerEntry, error)
}

type CategoryStore interface {
	CategoryExists(ctx context.Context, accountID int64, kind core.Kind, name string, caseInsensitive bool) (bool, error)
	FindCategory(ctx context.Context, id, accountID int64) (*core.Category, error)
	ListCategories(ctx context.Context, accountID int64, kind core.Kind) ([]core.Category, error)
	SaveCategory(ctx context.Context, c *core.Category) error
	DeleteCategory(ctx context.Context, id, accountID int64) error
	DeleteAllCategories(ctx context.Context, accountID int64) error
}

type TransactionStore interface {
	GetTransaction(ctx context.Context, id, accountID int64, kind core.Kind) (*core.Transaction, error)
	InsertTransaction(ctx context.Context, t *core.Transaction) error
	// InsertTransactions stores the batch and assigns the IDs in place.
	InsertTransactions(ctx context.Context, ts []core.Transaction) error
	UpdateTransaction(ctx context.Context, t *core.Transaction) error
	DeleteTransaction(ctx context.Context, id, accountID int64) error
	DeleteAllTransactions(ctx context.Context, accountID int64) error
	ExistsByCategory(ctx context.Context, categoryID int64) (bool, error)
	// MarkOverdue sets the sticky overdue flag on every planned transaction
	// dated on or before ref and returns the accounts that changed.
	MarkOverdue(ctx context.Context, ref core.Date) ([]int64, error)
	// ListTransactions returns matching transactions ordered by date then id,
	// with CategoryName filled in.
	ListTransactions(ctx context.Context, accountID int64, f TransactionFilter) ([]core.Transaction, error)
}

type HistoryStore interface {
	AppendHistory(ctx context.Context, r *core.AuditRecord) error
	ListHistory(ctx context.Context, accountID int64, limit int) ([]core.AuditRecord, error)
	DeleteHistory(ctx context.Context, accountID int64) error
}

// DateRange bounds are inclusive; a zero bound is open.
type DateRange struct {
	From core.Date
	To   core.Date
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d core.Date) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

// TransactionFilter narrows ListTransactions. Empty fields do not filter;
// present fields are combined with AND.
type TransactionFilter struct {
	Kind        core.Kind
	Range       DateRange
	EntryIDs    []int64
	CategoryIDs []int64
	// Text matches description or category name, case-insensitively.
	Text string
}
