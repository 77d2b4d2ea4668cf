package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"saldo/internal/core"
	"saldo/internal/storage"
	"saldo/internal/storage/memory"
)

func TestCategoryService_Create(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	tests := []struct {
		name    string
		kind    core.Kind
		input   string
		wantErr error
	}{
		{"new name", core.Income, "Bonus", nil},
		{"trimmed", core.Income, "  Gifts  ", nil},
		{"same name other kind", core.Expense, "Salary", nil},
		{"case-insensitive duplicate", core.Income, "salary", core.ErrValidation},
		{"empty", core.Income, "   ", core.ErrValidation},
		{"too long", core.Income, strings.Repeat("x", 101), core.ErrValidation},
		{"bad kind", core.Kind("transfer"), "Any", core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := f.categories.Create(ctx, acc, tt.kind, tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cat.Name != strings.TrimSpace(tt.input) || cat.ID == 0 {
				t.Errorf("unexpected category %+v", cat)
			}
		})
	}
}

func TestCategoryService_Rename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())
	other, err := f.categories.Create(ctx, acc, core.Income, "Bonus")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.categories.Rename(ctx, acc, core.Income, f.salary.ID, "SALARY"); err != nil {
		t.Errorf("changing only the case should be allowed: %v", err)
	}
	if _, err := f.categories.Rename(ctx, acc, core.Income, other.ID, "salary"); !errors.Is(err, core.ErrValidation) {
		t.Errorf("renaming onto an existing name should fail, got %v", err)
	}
	if _, err := f.categories.Rename(ctx, acc, core.Expense, f.salary.ID, "Food2"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("renaming with the wrong kind should be not found, got %v", err)
	}

	list, err := f.categories.List(ctx, acc, core.Income)
	if err != nil {
		t.Fatal(err)
	}
	names := []string{}
	for _, c := range list {
		names = append(names, c.Name)
	}
	if strings.Join(names, ",") != "Bonus,SALARY" {
		t.Errorf("categories = %v", names)
	}
}

func TestCategoryService_DeleteInUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	tr, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 1, "10"))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.categories.Delete(ctx, acc, core.Income, f.salary.ID); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := f.incomes.Delete(ctx, acc, tr.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.categories.Delete(ctx, acc, core.Income, f.salary.ID); err != nil {
		t.Fatalf("unused category should be deletable: %v", err)
	}
	if err := f.categories.Delete(ctx, acc, core.Income, f.salary.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestAccountService_Purge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, memory.New())

	if _, err := f.incomes.Create(ctx, acc, draft(f.salary, 2024, 1, 1, "10")); err != nil {
		t.Fatal(err)
	}
	otherCat, err := f.categories.Create(ctx, 2, core.Income, "Salary")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.incomes.Create(ctx, 2, draft(*otherCat, 2024, 1, 1, "5")); err != nil {
		t.Fatal(err)
	}

	if err := f.accounts.Purge(ctx, acc); err != nil {
		t.Fatalf("purge: %v", err)
	}

	err = f.store.Read(ctx, func(tx storage.Tx) error {
		for _, k := range []core.Kind{core.Income, core.Expense} {
			if cats, _ := tx.ListCategories(ctx, acc, k); len(cats) != 0 {
				t.Errorf("%s categories left: %v", k, cats)
			}
		}
		if trs, _ := tx.ListTransactions(ctx, acc, storage.TransactionFilter{}); len(trs) != 0 {
			t.Errorf("transactions left: %v", trs)
		}
		if h, _ := tx.ListHistory(ctx, acc, 0); len(h) != 0 {
			t.Errorf("history left: %v", h)
		}
		if trs, _ := tx.ListTransactions(ctx, 2, storage.TransactionFilter{}); len(trs) != 1 {
			t.Errorf("other account must be untouched, got %v", trs)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := f.ledgerOf(t); len(got) != 0 {
		t.Errorf("ledger left: %v", got)
	}

	last := f.events.events[len(f.events.events)-1]
	if last.Action != "purge" || last.AccountID != acc {
		t.Errorf("unexpected event %+v", last)
	}
}
