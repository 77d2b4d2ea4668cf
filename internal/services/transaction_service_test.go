package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/ledger"
	"saldo/internal/storage"
	"saldo/internal/storage/memory"
)

const acc = int64(1)

// stores returns a fresh instance of every Store implementation.
func stores(t *testing.T) map[string]storage.Store {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return map[string]storage.Store{
		"memory": memory.New(),
		"sqlite": repo,
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store storage.Store)) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) { fn(t, store) })
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev *amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

type recordingInvalidator struct {
	accounts []int64
}

func (r *recordingInvalidator) InvalidateAccount(accountID int64) {
	r.accounts = append(r.accounts, accountID)
}

type fixture struct {
	store      storage.Store
	incomes    *TransactionService
	expenses   *TransactionService
	categories *CategoryService
	accounts   *AccountService
	events     *recordingPublisher
	inv        *recordingInvalidator
	salary     core.Category
	food       core.Category
}

func newFixture(t *testing.T, store storage.Store) *fixture {
	t.Helper()
	f := &fixture{
		store:  store,
		events: &recordingPublisher{},
		inv:    &recordingInvalidator{},
	}
	n := NewNotifier(f.events, f.inv)
	p := ledger.NewPropagator()
	clock := func() time.Time { return time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC) }

	f.incomes = NewTransactionService(core.Income, store, p, n)
	f.expenses = NewTransactionService(core.Expense, store, p, n)
	f.incomes.now = clock
	f.expenses.now = clock
	f.categories = NewCategoryService(store, n)
	f.accounts = NewAccountService(store, p, n)

	ctx := context.Background()
	salary, err := f.categories.Create(ctx, acc, core.Income, "Salary")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	food, err := f.categories.Create(ctx, acc, core.Expense, "Food")
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	f.salary, f.food = *salary, *food
	return f
}

func (f *fixture) ledgerOf(t *testing.T) map[string]string {
	t.Helper()
	entries, err := f.accounts.Ledger(context.Background(), acc, storage.DateRange{})
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	out := map[string]string{}
	for _, e := range entries {
		out[e.Date.String()] = e.Balance.StringFixed(2)
	}
	return out
}

func assertLedger(t *testing.T, got, want map[string]string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("ledger = %v, want %v", got, want)
	}
	for d, b := range want {
		if got[d] != b {
			t.Fatalf("ledger = %v, want %v", got, want)
		}
	}
}

func draft(cat core.Category, y, m, d int, value string) core.Draft {
	return core.Draft{
		CategoryID: cat.ID,
		Date:       core.NewDate(y, m, d),
		Value:      decimal.RequireFromString(value),
	}
}

func TestTransactionLifecycleScenario(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		f := newFixture(t, store)

		income, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 10, "100"))
		if err != nil {
			t.Fatalf("create income: %v", err)
		}
		assertLedger(t, f.ledgerOf(t), map[string]string{"2024-01-10": "100.00"})

		expense, err := f.expenses.Create(ctx, acc, draft(f.food, 2024, 1, 5, "30"))
		if err != nil {
			t.Fatalf("create expense: %v", err)
		}
		assertLedger(t, f.ledgerOf(t), map[string]string{"2024-01-05": "-30.00", "2024-01-10": "70.00"})

		updated, err := f.incomes.Update(ctx, acc, income.ID, draft(f.salary, 2024, 1, 10, "150"))
		if err != nil {
			t.Fatalf("update income: %v", err)
		}
		if updated.LedgerEntryID != income.LedgerEntryID {
			t.Errorf("same-day update must keep entry %d, got %d", income.LedgerEntryID, updated.LedgerEntryID)
		}
		assertLedger(t, f.ledgerOf(t), map[string]string{"2024-01-05": "-30.00", "2024-01-10": "120.00"})

		if err := f.expenses.Delete(ctx, acc, expense.ID); err != nil {
			t.Fatalf("delete expense: %v", err)
		}
		assertLedger(t, f.ledgerOf(t), map[string]string{"2024-01-10": "150.00"})

		history, err := f.accounts.History(ctx, acc, 10)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		wantActions := []core.AuditAction{core.AuditDelete, core.AuditUpdate, core.AuditCreate, core.AuditCreate}
		if len(history) != len(wantActions) {
			t.Fatalf("history has %d records, want %d", len(history), len(wantActions))
		}
		for i, a := range wantActions {
			if history[i].Action != a {
				t.Errorf("history[%d].Action = %s, want %s", i, history[i].Action, a)
			}
		}
		upd := history[1]
		if upd.Before == nil || upd.After == nil || !upd.Before.Value.Equal(decimal.NewFromInt(100)) || !upd.After.Value.Equal(decimal.NewFromInt(150)) {
			t.Errorf("update record should hold 100 before and 150 after, got %+v", upd)
		}
		if history[0].After != nil || history[0].Before == nil || history[0].Before.ID != expense.ID {
			t.Errorf("delete record should hold only the removed snapshot, got %+v", history[0])
		}
	})
}

func TestUpdateMovingDateCleansOldEntry(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		f := newFixture(t, store)

		tr, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 3, "50"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.expenses.Create(ctx, acc, draft(f.food, 2024, 1, 20, "10")); err != nil {
			t.Fatal(err)
		}
		assertLedger(t, f.ledgerOf(t), map[string]string{"2024-01-03": "50.00", "2024-01-20": "40.00"})

		moved, err := f.incomes.Update(ctx, acc, tr.ID, draft(f.salary, 2024, 1, 15, "80"))
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if moved.LedgerEntryID == tr.LedgerEntryID {
			t.Error("moved transaction must be attached to the new day's entry")
		}
		assertLedger(t, f.ledgerOf(t), map[string]string{"2024-01-15": "80.00", "2024-01-20": "70.00"})
	})
}

func TestUpdateMovingOntoSharedDay(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		f := newFixture(t, store)

		a, _ := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 2, 1, "10"))
		b, _ := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 2, 1, "20"))
		if a == nil || b == nil {
			t.Fatal("setup failed")
		}

		if _, err := f.incomes.Update(ctx, acc, a.ID, draft(f.salary, 2024, 2, 2, "10")); err != nil {
			t.Fatal(err)
		}
		// 02-01 still carries b, so it survives.
		assertLedger(t, f.ledgerOf(t), map[string]string{"2024-02-01": "20.00", "2024-02-02": "30.00"})
	})
}

func TestUpdateWithoutDateOrValueChange(t *testing.T) {
	forEachStore(t, func(t *testing.T, store storage.Store) {
		ctx := context.Background()
		f := newFixture(t, store)

		dining, err := f.categories.Create(ctx, acc, core.Expense, "Dining")
		if err != nil {
			t.Fatal(err)
		}
		tr, err := f.expenses.Create(ctx, acc, draft(f.food, 2024, 1, 10, "25"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 20, "100")); err != nil {
			t.Fatal(err)
		}
		before, err := f.accounts.Ledger(ctx, acc, storage.DateRange{})
		if err != nil {
			t.Fatal(err)
		}

		d := draft(*dining, 2024, 1, 10, "25.00")
		d.Description = "Dinner out"
		updated, err := f.expenses.Update(ctx, acc, tr.ID, d)
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		if updated.LedgerEntryID != tr.LedgerEntryID {
			t.Errorf("entry changed from %d to %d", tr.LedgerEntryID, updated.LedgerEntryID)
		}

		after, err := f.accounts.Ledger(ctx, acc, storage.DateRange{})
		if err != nil {
			t.Fatal(err)
		}
		if len(after) != len(before) {
			t.Fatalf("ledger = %+v, want %+v", after, before)
		}
		for i := range before {
			if after[i].ID != before[i].ID || !after[i].Balance.Equal(before[i].Balance) {
				t.Errorf("entry %d = %+v, want %+v", i, after[i], before[i])
			}
		}

		got, err := f.expenses.Get(ctx, acc, tr.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Description != "Dinner out" || got.CategoryID != dining.ID || got.CategoryName != "Dining" {
			t.Errorf("stored transaction = %+v", got)
		}
	})
}

func TestNotFoundLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	if _, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 10, "100")); err != nil {
		t.Fatal(err)
	}
	before := f.ledgerOf(t)
	eventsBefore := len(f.events.events)

	tests := []struct {
		name string
		call func() error
	}{
		{"update unknown id", func() error {
			_, err := f.incomes.Update(ctx, acc, 999, draft(f.salary, 2024, 1, 1, "5"))
			return err
		}},
		{"delete unknown id", func() error { return f.incomes.Delete(ctx, acc, 999) }},
		{"create with unknown category", func() error {
			_, err := f.incomes.Create(ctx, acc, core.Draft{CategoryID: 999, Date: core.NewDate(2024, 1, 1), Value: decimal.NewFromInt(5)})
			return err
		}},
		{"create with category of other kind", func() error {
			_, err := f.incomes.Create(ctx, acc, draft(f.food, 2024, 1, 1, "5"))
			return err
		}},
		{"create in another account", func() error {
			_, err := f.incomes.Create(ctx, 2, draft(f.salary, 2024, 1, 1, "5"))
			return err
		}},
		{"delete income through expense service", func() error {
			list, _ := f.incomes.List(ctx, acc, core.Date{}, core.Date{})
			return f.expenses.Delete(ctx, acc, list[0].ID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, core.ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			assertLedger(t, f.ledgerOf(t), before)
		})
	}
	if len(f.events.events) != eventsBefore {
		t.Errorf("failed operations must not publish events")
	}
}

func TestCreateRejectsInvalidDraft(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	tests := []struct {
		name  string
		draft core.Draft
	}{
		{"zero value", draft(f.salary, 2024, 1, 1, "0")},
		{"negative value", draft(f.salary, 2024, 1, 1, "-3")},
		{"zero date", core.Draft{CategoryID: f.salary.ID, Value: decimal.NewFromInt(1)}},
		{"no category", core.Draft{Date: core.NewDate(2024, 1, 1), Value: decimal.NewFromInt(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.incomes.Create(ctx, acc, tt.draft); !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
	if got := f.ledgerOf(t); len(got) != 0 {
		t.Fatalf("ledger should be empty, got %v", got)
	}
}

type failingHistory struct {
	storage.Tx
}

func (failingHistory) AppendHistory(context.Context, *core.AuditRecord) error {
	return errors.New("history unavailable")
}

type auditFailStore struct {
	*memory.Store
}

func (s auditFailStore) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return s.Store.InTx(ctx, func(tx storage.Tx) error { return fn(failingHistory{tx}) })
}

func TestAuditFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	base := memory.New()
	f := newFixture(t, base)

	if _, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 10, "100")); err != nil {
		t.Fatal(err)
	}
	before := f.ledgerOf(t)

	broken := NewTransactionService(core.Income, auditFailStore{base}, ledger.NewPropagator(), nil)
	if _, err := broken.Create(ctx, acc, draft(f.salary, 2024, 1, 5, "40")); err == nil {
		t.Fatal("expected the history failure to surface")
	}
	assertLedger(t, f.ledgerOf(t), before)

	list, err := f.incomes.List(ctx, acc, core.Date{}, core.Date{})
	if err != nil || len(list) != 1 {
		t.Fatalf("rolled back create must not leave a transaction, got %d (%v)", len(list), err)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	f.events.err = errors.New("broker down")

	tr, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 10, "100"))
	if err != nil {
		t.Fatalf("create should succeed when publishing fails: %v", err)
	}

	last := f.events.events[len(f.events.events)-1]
	if last.Action != string(core.AuditCreate) || last.TransactionID != tr.ID || last.Kind != core.Income || last.Date != "2024-01-10" {
		t.Errorf("unexpected event %+v", last)
	}
	if f.inv.accounts[len(f.inv.accounts)-1] != acc {
		t.Errorf("cache of account %d should be invalidated", acc)
	}
}

func TestOverdueIsSticky(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	past := draft(f.food, 2024, 1, 2, "10")
	past.Planned = true
	future := draft(f.food, 2024, 3, 2, "10")
	future.Planned = true

	p, err := f.expenses.Create(ctx, acc, past)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Overdue {
		t.Error("planned expense dated before today should be overdue")
	}
	fu, err := f.expenses.Create(ctx, acc, future)
	if err != nil {
		t.Fatal(err)
	}
	if fu.Overdue {
		t.Error("planned expense in the future should not be overdue yet")
	}

	// Moving the overdue expense into the future keeps the flag.
	moved := past
	moved.Date = core.NewDate(2024, 6, 1)
	got, err := f.expenses.Update(ctx, acc, p.ID, moved)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Overdue {
		t.Error("overdue flag must never be reset")
	}

	f.expenses.now = func() time.Time { return time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC) }
	reread, err := f.expenses.Get(ctx, acc, fu.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reread.Overdue {
		t.Error("planned expense should become overdue once its date passes")
	}
}
