package sheets

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

var dateLayouts = []string{"2006-01-02", "02/01/2006", "2006/01/02", "2/1/2006"}

// ParseDate accepts ISO dates and day-first slash dates.
func ParseDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("%w: %q", core.ErrInvalidDate, s)
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "x", "si", "sì":
		return true
	}
	return false
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func indexOf(headers []string, name string) int {
	for i, h := range headers {
		if normalizeHeader(h) == name {
			return i
		}
	}
	return -1
}

func safeGet(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ParseDrafts reads a transaction tab. The first non-blank row is the header
// and must name the Date, Category and Value columns; Planned and
// Description are optional. Blank rows are skipped.
func ParseDrafts(rows [][]string) ([]core.ImportDraft, error) {
	start := 0
	for start < len(rows) && blank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, nil
	}

	headers := rows[start]
	var (
		colDate        = indexOf(headers, "date")
		colCategory    = indexOf(headers, "category")
		colValue       = indexOf(headers, "value")
		colPlanned     = indexOf(headers, "planned")
		colDescription = indexOf(headers, "description")
	)
	if colDate == -1 || colCategory == -1 || colValue == -1 {
		missing := make([]string, 0, 3)
		if colDate == -1 {
			missing = append(missing, "Date")
		}
		if colCategory == -1 {
			missing = append(missing, "Category")
		}
		if colValue == -1 {
			missing = append(missing, "Value")
		}
		return nil, fmt.Errorf("%w: unexpected header: missing %s; got headers=%v",
			core.ErrValidation, strings.Join(missing, ","), headers)
	}

	var out []core.ImportDraft
	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if blank(row) {
			continue
		}
		line := i + 1

		date, err := ParseDate(safeGet(row, colDate))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		value, err := core.ParseAmount(safeGet(row, colValue))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		category := safeGet(row, colCategory)
		if category == "" {
			return nil, fmt.Errorf("row %d: %w", line, core.ErrEmptyCategory)
		}

		out = append(out, core.ImportDraft{
			Date:         date,
			CategoryName: category,
			Value:        value,
			Planned:      parseBool(safeGet(row, colPlanned)),
			Description:  safeGet(row, colDescription),
		})
	}
	return out, nil
}

// ParseOpening reads the optional balance tab: label/value rows where
// "Previous balance" holds the amount and "Date" its day. The amount may be
// negative or zero. Returns a nil amount when the tab carries none.
func ParseOpening(rows [][]string) (*decimal.Decimal, core.Date, error) {
	var (
		amount *decimal.Decimal
		date   core.Date
	)
	for i, row := range rows {
		label := normalizeHeader(safeGet(row, 0))
		value := safeGet(row, 1)
		if value == "" {
			continue
		}
		switch label {
		case "previous balance", "opening balance":
			d, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
			if err != nil {
				return nil, core.Date{}, fmt.Errorf("row %d: %w: %q", i+1, core.ErrInvalidAmount, value)
			}
			d = d.Round(2)
			amount = &d
		case "date":
			d, err := ParseDate(value)
			if err != nil {
				return nil, core.Date{}, fmt.Errorf("row %d: %w", i+1, err)
			}
			date = d
		}
	}
	return amount, date, nil
}

// ParseNames reads the first column of a category tab, skipping an optional
// "Name"/"Category" header, blanks and repeats.
func ParseNames(rows [][]string) []string {
	var out []string
	seen := map[string]bool{}
	for i, row := range rows {
		name := safeGet(row, 0)
		if name == "" || seen[name] {
			continue
		}
		if i == 0 {
			if h := normalizeHeader(name); h == "name" || h == "category" {
				continue
			}
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// ParseBatch turns raw tabs into an import batch.
func ParseBatch(t Tabs) (core.ImportBatch, error) {
	incomes, err := ParseDrafts(t.Incomes)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("%s: %w", SheetIncomes, err)
	}
	expenses, err := ParseDrafts(t.Expenses)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("%s: %w", SheetExpenses, err)
	}
	prev, prevDate, err := ParseOpening(t.Balance)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("%s: %w", SheetBalance, err)
	}

	return core.ImportBatch{
		Incomes:             incomes,
		Expenses:            expenses,
		IncomeCategories:    ParseNames(t.IncomeCategories),
		ExpenseCategories:   ParseNames(t.ExpenseCategories),
		PreviousBalance:     prev,
		PreviousBalanceDate: prevDate,
	}, nil
}
