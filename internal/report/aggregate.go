// Package report derives category-grouped views of an account's ledger,
// one row per day, month or year.
package report

import (
	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

// EntryView is a ledger entry with the transactions attached to it.
type EntryView struct {
	ID       int64
	Date     core.Date
	Balance  decimal.Decimal
	Incomes  []core.Transaction
	Expenses []core.Transaction
}

// Row is one report line. Balance, EntryID and Date come from the latest day
// folded into the row.
type Row struct {
	Key         string                        `json:"key"`
	EntryID     int64                         `json:"entry_id"`
	Date        core.Date                     `json:"date"`
	Balance     decimal.Decimal               `json:"balance"`
	IncomesSum  decimal.Decimal               `json:"incomes_sum"`
	ExpensesSum decimal.Decimal               `json:"expenses_sum"`
	Incomes     map[string][]core.Transaction `json:"incomes"`
	Expenses    map[string][]core.Transaction `json:"expenses"`
	Overdue     bool                          `json:"overdue"`
}

// Aggregate groups days by period. Input is expected in ascending date
// order; rows come out in the order their key is first seen.
func Aggregate(days []EntryView, period core.Period, ref core.Date) []Row {
	rows := make([]Row, 0, len(days))
	index := map[string]int{}

	for _, d := range days {
		day := dayRow(d, period, ref)
		if period == core.PeriodDay {
			rows = append(rows, day)
			continue
		}

		i, ok := index[day.Key]
		if !ok {
			index[day.Key] = len(rows)
			rows = append(rows, day)
			continue
		}
		rows[i].merge(day)
	}
	return rows
}

func dayRow(d EntryView, period core.Period, ref core.Date) Row {
	r := Row{
		Key:         period.Key(d.Date),
		EntryID:     d.ID,
		Date:        d.Date,
		Balance:     d.Balance,
		IncomesSum:  decimal.Zero,
		ExpensesSum: decimal.Zero,
		Incomes:     map[string][]core.Transaction{},
		Expenses:    map[string][]core.Transaction{},
	}
	for _, t := range d.Incomes {
		r.IncomesSum = r.IncomesSum.Add(t.Value)
		r.Incomes[t.CategoryName] = append(r.Incomes[t.CategoryName], t)
		r.Overdue = r.Overdue || isOverdue(t, ref)
	}
	for _, t := range d.Expenses {
		r.ExpensesSum = r.ExpensesSum.Add(t.Value)
		r.Expenses[t.CategoryName] = append(r.Expenses[t.CategoryName], t)
		r.Overdue = r.Overdue || isOverdue(t, ref)
	}
	return r
}

func isOverdue(t core.Transaction, ref core.Date) bool {
	return t.Overdue || (t.Planned && !t.Date.After(ref))
}

// merge folds a later-encountered day into r. On equal dates the later day
// wins.
func (r *Row) merge(day Row) {
	if !day.Date.Before(r.Date) {
		r.EntryID = day.EntryID
		r.Date = day.Date
		r.Balance = day.Balance
	}
	r.IncomesSum = r.IncomesSum.Add(day.IncomesSum)
	r.ExpensesSum = r.ExpensesSum.Add(day.ExpensesSum)
	for name, list := range day.Incomes {
		r.Incomes[name] = append(r.Incomes[name], list...)
	}
	for name, list := range day.Expenses {
		r.Expenses[name] = append(r.Expenses[name], list...)
	}
	r.Overdue = r.Overdue || day.Overdue
}
