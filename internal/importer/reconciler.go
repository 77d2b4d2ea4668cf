// Package importer folds a whole spreadsheet of incomes and expenses into an
// account's ledger in one store transaction.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/services"
	"saldo/internal/storage"
)

// Result summarises one import.
type Result struct {
	Incomes           int  `json:"incomes"`
	Expenses          int  `json:"expenses"`
	Skipped           int  `json:"skipped"`
	CategoriesCreated int  `json:"categories_created"`
	EntriesWritten    int  `json:"entries_written"`
	Fresh             bool `json:"fresh"`
}

type Reconciler struct {
	store    storage.Store
	notifier *services.Notifier
	now      func() time.Time
}

func NewReconciler(store storage.Store, notifier *services.Notifier) *Reconciler {
	return &Reconciler{store: store, notifier: notifier, now: time.Now}
}

// placed is a draft that survived deduplication, bound to its ledger day.
type placed struct {
	kind  core.Kind
	draft core.ImportDraft
	slot  *slot
}

// Import applies batch to the account. An account without ledger entries is
// imported fresh and may take an opening balance; an existing account keeps
// its ledger and only gains the drafts it does not already hold. Any store
// failure aborts the whole batch.
func (r *Reconciler) Import(ctx context.Context, accountID int64, batch core.ImportBatch) (*Result, error) {
	if err := validateBatch(batch); err != nil {
		return nil, err
	}

	res := &Result{}
	err := r.store.InTx(ctx, func(tx storage.Tx) error {
		*res = Result{}
		entries, err := tx.ListEntries(ctx, accountID, storage.DateRange{})
		if err != nil {
			return err
		}
		res.Fresh = len(entries) == 0
		b := newBook(accountID, entries)

		var existing signatures
		if res.Fresh {
			if d := openingDate(batch); batch.PreviousBalance != nil && !d.IsZero() {
				b.seed(d, *batch.PreviousBalance)
			}
		} else {
			if batch.PreviousBalance != nil {
				slog.InfoContext(ctx, "Ignoring previous balance for account with a ledger",
					"account_id", accountID,
					"previous_balance", batch.PreviousBalance.String())
			}
			if existing, err = loadSignatures(ctx, tx, accountID); err != nil {
				return err
			}
		}

		drafts := fold(b, batch, existing, res)
		if res.EntriesWritten, err = persistEntries(ctx, tx, b); err != nil {
			return err
		}

		ids, created, err := reconcileCategories(ctx, tx, accountID, batch, drafts)
		if err != nil {
			return err
		}
		res.CategoriesCreated = created

		return r.insert(ctx, tx, accountID, drafts, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("import into account %d: %w", accountID, err)
	}

	slog.InfoContext(ctx, "Import completed",
		"account_id", accountID,
		"fresh", res.Fresh,
		"incomes", res.Incomes,
		"expenses", res.Expenses,
		"skipped", res.Skipped,
		"categories_created", res.CategoriesCreated,
		"entries_written", res.EntriesWritten)

	r.notifier.Committed(ctx, amqp.NewLedgerEvent(accountID, amqp.EventImport))
	return res, nil
}

// fold runs incomes then expenses, each ascending by date, through the book.
func fold(b *book, batch core.ImportBatch, existing signatures, res *Result) []placed {
	var out []placed
	for _, kind := range []core.Kind{core.Income, core.Expense} {
		drafts := append([]core.ImportDraft(nil), batch.Drafts(kind)...)
		sort.SliceStable(drafts, func(i, j int) bool { return drafts[i].Date.Before(drafts[j].Date) })

		for _, d := range drafts {
			d = normalizeDraft(d)
			if existing.consume(kind, d) {
				res.Skipped++
				continue
			}
			s := b.apply(d.Date, kind.Signed(d.Value))
			out = append(out, placed{kind: kind, draft: d, slot: s})
			if kind == core.Income {
				res.Incomes++
			} else {
				res.Expenses++
			}
		}
	}
	return out
}

func persistEntries(ctx context.Context, tx storage.Tx, b *book) (int, error) {
	written := 0
	for _, s := range b.pending() {
		if err := tx.SaveEntry(ctx, &s.entry); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

type categoryKey struct {
	kind core.Kind
	name string
}

// reconcileCategories maps every declared or referenced category name to an
// id, matching existing categories by exact name and creating the rest.
func reconcileCategories(ctx context.Context, tx storage.Tx, accountID int64, batch core.ImportBatch, drafts []placed) (map[categoryKey]int64, int, error) {
	ids := map[categoryKey]int64{}
	created := 0

	for _, kind := range []core.Kind{core.Income, core.Expense} {
		current, err := tx.ListCategories(ctx, accountID, kind)
		if err != nil {
			return nil, 0, err
		}
		for _, c := range current {
			ids[categoryKey{kind, c.Name}] = c.ID
		}

		names := append([]string(nil), batch.Categories(kind)...)
		for _, p := range drafts {
			if p.kind == kind {
				names = append(names, p.draft.CategoryName)
			}
		}

		for _, name := range names {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := ids[categoryKey{kind, name}]; ok {
				continue
			}
			c := core.Category{AccountID: accountID, Kind: kind, Name: name}
			if err := tx.SaveCategory(ctx, &c); err != nil {
				return nil, 0, err
			}
			ids[categoryKey{kind, name}] = c.ID
			created++
		}
	}
	return ids, created, nil
}

func (r *Reconciler) insert(ctx context.Context, tx storage.Tx, accountID int64, drafts []placed, ids map[categoryKey]int64) error {
	if len(drafts) == 0 {
		return nil
	}

	today := core.DateOf(r.now())
	rows := make([]core.Transaction, len(drafts))
	for i, p := range drafts {
		rows[i] = core.Transaction{
			AccountID:     accountID,
			Kind:          p.kind,
			CategoryID:    ids[categoryKey{p.kind, p.draft.CategoryName}],
			CategoryName:  p.draft.CategoryName,
			LedgerEntryID: p.slot.entry.ID,
			Date:          p.draft.Date,
			Value:         p.draft.Value,
			Description:   p.draft.Description,
			Planned:       p.draft.Planned,
		}
		rows[i].RefreshOverdue(today)
	}

	if err := tx.InsertTransactions(ctx, rows); err != nil {
		return err
	}

	stamp := r.now().UTC()
	for i := range rows {
		after := rows[i].Snapshot()
		err := tx.AppendHistory(ctx, &core.AuditRecord{
			AccountID: accountID,
			Action:    core.AuditCreate,
			Kind:      rows[i].Kind,
			After:     &after,
			Timestamp: stamp,
		})
		if err != nil {
			return fmt.Errorf("record history: %w", err)
		}
	}
	return nil
}

// openingDate is where the previous balance sits: its own date when given,
// otherwise the day before the earliest draft.
func openingDate(batch core.ImportBatch) core.Date {
	if !batch.PreviousBalanceDate.IsZero() {
		return batch.PreviousBalanceDate
	}
	var first core.Date
	for _, kind := range []core.Kind{core.Income, core.Expense} {
		for _, d := range batch.Drafts(kind) {
			if first.IsZero() || d.Date.Before(first) {
				first = d.Date
			}
		}
	}
	if first.IsZero() {
		return first
	}
	return core.DateOf(first.AddDate(0, 0, -1))
}

func normalizeDraft(d core.ImportDraft) core.ImportDraft {
	d.CategoryName = strings.TrimSpace(d.CategoryName)
	d.Description = strings.TrimSpace(d.Description)
	d.Value = d.Value.Round(2)
	return d
}

func validateBatch(batch core.ImportBatch) error {
	for _, kind := range []core.Kind{core.Income, core.Expense} {
		for i, d := range batch.Drafts(kind) {
			if err := validateDraft(d); err != nil {
				return fmt.Errorf("%s row %d: %w", kind, i+1, err)
			}
		}
	}
	return nil
}

func validateDraft(d core.ImportDraft) error {
	if err := d.Date.Validate(); err != nil {
		return err
	}
	if !d.Value.Round(2).IsPositive() {
		return core.ErrInvalidAmount
	}
	if strings.TrimSpace(d.CategoryName) == "" {
		return core.ErrEmptyCategory
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.Description)) > 255 {
		return core.ErrDescriptionLong
	}
	return nil
}
