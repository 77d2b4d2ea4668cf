package report

import (
	"testing"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

func tx(id int64, kind core.Kind, y, m, d int, category, value string) core.Transaction {
	return core.Transaction{
		ID:           id,
		Kind:         kind,
		Date:         core.NewDate(y, m, d),
		CategoryName: category,
		Value:        decimal.RequireFromString(value),
	}
}

func day(id int64, y, m, d int, balance string, trs ...core.Transaction) EntryView {
	v := EntryView{ID: id, Date: core.NewDate(y, m, d), Balance: decimal.RequireFromString(balance)}
	for _, t := range trs {
		if t.Kind == core.Income {
			v.Incomes = append(v.Incomes, t)
		} else {
			v.Expenses = append(v.Expenses, t)
		}
	}
	return v
}

func sampleDays() []EntryView {
	return []EntryView{
		day(1, 2024, 1, 5, "-30", tx(10, core.Expense, 2024, 1, 5, "Food", "30")),
		day(2, 2024, 1, 10, "70",
			tx(11, core.Income, 2024, 1, 10, "Salary", "100"),
			tx(12, core.Expense, 2024, 1, 10, "Food", "0.50"),
			tx(13, core.Expense, 2024, 1, 10, "Rent", "-0"),
		),
		day(3, 2024, 2, 1, "60", tx(14, core.Expense, 2024, 2, 1, "Food", "10")),
		day(4, 2025, 3, 1, "160", tx(15, core.Income, 2025, 3, 1, "Salary", "100")),
	}
}

func TestAggregateEmpty(t *testing.T) {
	for _, p := range []core.Period{core.PeriodDay, core.PeriodMonth, core.PeriodYear} {
		if rows := Aggregate(nil, p, core.NewDate(2024, 1, 1)); len(rows) != 0 {
			t.Errorf("%s: expected no rows, got %d", p, len(rows))
		}
	}
}

func TestAggregateByDay(t *testing.T) {
	rows := Aggregate(sampleDays(), core.PeriodDay, core.NewDate(2024, 1, 1))
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	r := rows[1]
	if r.Key != "2024-01-10" || r.EntryID != 2 || !r.Balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("unexpected row header %+v", r)
	}
	if !r.IncomesSum.Equal(decimal.NewFromInt(100)) || !r.ExpensesSum.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("sums = %s / %s", r.IncomesSum, r.ExpensesSum)
	}
	if len(r.Incomes["Salary"]) != 1 || len(r.Expenses["Food"]) != 1 || len(r.Expenses["Rent"]) != 1 {
		t.Errorf("category breakdown = %v / %v", r.Incomes, r.Expenses)
	}
}

func TestAggregateByMonth(t *testing.T) {
	rows := Aggregate(sampleDays(), core.PeriodMonth, core.NewDate(2024, 1, 1))

	keys := []string{}
	for _, r := range rows {
		keys = append(keys, r.Key)
	}
	if len(keys) != 3 || keys[0] != "2024-01" || keys[1] != "2024-02" || keys[2] != "2025-03" {
		t.Fatalf("keys = %v", keys)
	}

	jan := rows[0]
	if jan.EntryID != 2 || jan.Date.String() != "2024-01-10" || !jan.Balance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("month row should carry the latest day, got %+v", jan)
	}
	if !jan.ExpensesSum.Equal(decimal.RequireFromString("30.5")) {
		t.Errorf("expenses sum = %s, want 30.5", jan.ExpensesSum)
	}
	food := jan.Expenses["Food"]
	if len(food) != 2 || food[0].ID != 10 || food[1].ID != 12 {
		t.Errorf("category lists must concatenate in order, got %v", food)
	}
}

func TestAggregateByYear(t *testing.T) {
	rows := Aggregate(sampleDays(), core.PeriodYear, core.NewDate(2024, 1, 1))
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	y := rows[0]
	if y.Key != "2024" || y.EntryID != 3 || !y.Balance.Equal(decimal.NewFromInt(60)) {
		t.Errorf("unexpected year row %+v", y)
	}
	if !y.IncomesSum.Equal(decimal.NewFromInt(100)) || !y.ExpensesSum.Equal(decimal.RequireFromString("40.5")) {
		t.Errorf("sums = %s / %s", y.IncomesSum, y.ExpensesSum)
	}
	if len(y.Expenses["Food"]) != 3 {
		t.Errorf("expected 3 food expenses, got %d", len(y.Expenses["Food"]))
	}
}

func TestAggregateTieBreakLaterWins(t *testing.T) {
	days := []EntryView{
		day(1, 2024, 5, 3, "10"),
		day(2, 2024, 5, 3, "20"),
		day(3, 2024, 5, 1, "5"),
	}
	rows := Aggregate(days, core.PeriodMonth, core.NewDate(2024, 1, 1))
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].EntryID != 2 || !rows[0].Balance.Equal(decimal.NewFromInt(20)) {
		t.Errorf("equal dates: the later encountered day wins, got %+v", rows[0])
	}
}

func TestAggregateOverdue(t *testing.T) {
	planned := tx(1, core.Expense, 2024, 1, 10, "Rent", "500")
	planned.Planned = true
	sticky := tx(2, core.Expense, 2024, 3, 1, "Rent", "500")
	sticky.Planned = true
	sticky.Overdue = true

	days := []EntryView{
		day(1, 2024, 1, 5, "0", tx(3, core.Income, 2024, 1, 5, "Salary", "1")),
		day(2, 2024, 1, 10, "0", planned),
		day(3, 2024, 3, 1, "0", sticky),
	}

	ref := core.NewDate(2024, 1, 10)
	byDay := Aggregate(days, core.PeriodDay, ref)
	if byDay[0].Overdue || !byDay[1].Overdue || !byDay[2].Overdue {
		t.Errorf("day overdue flags = %v %v %v", byDay[0].Overdue, byDay[1].Overdue, byDay[2].Overdue)
	}

	byMonth := Aggregate(days, core.PeriodMonth, core.NewDate(2024, 1, 9))
	if byMonth[0].Overdue {
		t.Error("planned transaction dated after the reference is not overdue yet")
	}
	if !byMonth[1].Overdue {
		t.Error("stored overdue flag must be honoured")
	}

	byYear := Aggregate(days, core.PeriodYear, ref)
	if !byYear[0].Overdue {
		t.Error("rolled-up rows are overdue when any day is")
	}
}
