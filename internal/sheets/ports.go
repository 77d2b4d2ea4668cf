package sheets

import (
	"context"

	"saldo/internal/core"
)

// Tab names shared by every spreadsheet source and the exporter.
const (
	SheetIncomes           = "Incomes"
	SheetExpenses          = "Expenses"
	SheetBalance           = "Balance"
	SheetIncomeCategories  = "Income categories"
	SheetExpenseCategories = "Expense categories"
	SheetLedger            = "Ledger"
)

// Ports for inbound spreadsheet adapters.
type (
	// BatchReader yields everything a spreadsheet holds for one import.
	BatchReader interface {
		ReadBatch(ctx context.Context) (core.ImportBatch, error)
	}
)

// Tabs holds the raw cell matrices of a spreadsheet's tabs. Missing tabs
// are nil.
type Tabs struct {
	Incomes           [][]string
	Expenses          [][]string
	Balance           [][]string
	IncomeCategories  [][]string
	ExpenseCategories [][]string
}

// OptionalTabs lists the tabs a spreadsheet may omit.
var OptionalTabs = []string{SheetBalance, SheetIncomeCategories, SheetExpenseCategories}

// Set stores the rows of the named tab; unknown names are ignored.
func (t *Tabs) Set(name string, rows [][]string) {
	switch name {
	case SheetIncomes:
		t.Incomes = rows
	case SheetExpenses:
		t.Expenses = rows
	case SheetBalance:
		t.Balance = rows
	case SheetIncomeCategories:
		t.IncomeCategories = rows
	case SheetExpenseCategories:
		t.ExpenseCategories = rows
	}
}
