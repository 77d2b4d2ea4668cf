package core

import "github.com/shopspring/decimal"

type (
	// ImportDraft is one parsed spreadsheet row. Categories are referenced by
	// name because the rows may introduce new ones.
	ImportDraft struct {
		Date         Date
		CategoryName string
		Value        decimal.Decimal
		Planned      bool
		Description  string
	}

	// ImportBatch is everything a spreadsheet import yields for one account.
	ImportBatch struct {
		Incomes           []ImportDraft
		Expenses          []ImportDraft
		IncomeCategories  []string
		ExpenseCategories []string

		// Optional opening balance, only honoured for accounts without a ledger.
		PreviousBalance     *decimal.Decimal
		PreviousBalanceDate Date
	}
)

// Drafts returns the drafts of the given kind.
func (b ImportBatch) Drafts(k Kind) []ImportDraft {
	if k == Expense {
		return b.Expenses
	}
	return b.Incomes
}

// Categories returns the declared category names of the given kind.
func (b ImportBatch) Categories(k Kind) []string {
	if k == Expense {
		return b.ExpenseCategories
	}
	return b.IncomeCategories
}

// Size is the number of drafts in the batch.
func (b ImportBatch) Size() int {
	return len(b.Incomes) + len(b.Expenses)
}
