package sheets

import (
	"errors"
	"testing"

	"saldo/internal/core"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-01-31", "2024-01-31", false},
		{"31/01/2024", "2024-01-31", false},
		{"5/3/2024", "2024-03-05", false},
		{"2024/02/29", "2024-02-29", false},
		{" 2024-01-01 ", "2024-01-01", false},
		{"2024-02-30", "", true},
		{"Jan 5", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidDate) {
					t.Fatalf("expected ErrInvalidDate, got %v", err)
				}
				return
			}
			if err != nil || got.String() != tt.want {
				t.Fatalf("ParseDate(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseDrafts(t *testing.T) {
	rows := [][]string{
		{},
		{"description", " DATE ", "Category", "Value", "Planned"},
		{"rent", "2024-01-01", "Home", "650,00", "yes"},
		{"", "", "", ""},
		{"", "02/01/2024", " Food ", "12.345"},
	}
	drafts, err := ParseDrafts(rows)
	if err != nil {
		t.Fatalf("ParseDrafts: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}

	first := drafts[0]
	if first.Date.String() != "2024-01-01" || first.CategoryName != "Home" || first.Value.StringFixed(2) != "650.00" || !first.Planned || first.Description != "rent" {
		t.Errorf("unexpected first draft %+v", first)
	}
	second := drafts[1]
	if second.Date.String() != "2024-01-02" || second.CategoryName != "Food" || second.Value.StringFixed(2) != "12.35" || second.Planned {
		t.Errorf("unexpected second draft %+v", second)
	}
}

func TestParseDraftsErrors(t *testing.T) {
	header := []string{"Date", "Category", "Value"}
	tests := []struct {
		name string
		rows [][]string
	}{
		{"missing column", [][]string{{"Date", "Value"}, {"2024-01-01", "1"}}},
		{"bad date", [][]string{header, {"yesterday", "Food", "1"}}},
		{"bad value", [][]string{header, {"2024-01-01", "Food", "abc"}}},
		{"negative value", [][]string{header, {"2024-01-01", "Food", "-5"}}},
		{"no category", [][]string{header, {"2024-01-01", "", "5"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDrafts(tt.rows); !errors.Is(err, core.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestParseDraftsEmpty(t *testing.T) {
	drafts, err := ParseDrafts(nil)
	if err != nil || drafts != nil {
		t.Fatalf("empty tab should give no drafts, got %v %v", drafts, err)
	}
	drafts, err = ParseDrafts([][]string{{"Date", "Category", "Value"}})
	if err != nil || len(drafts) != 0 {
		t.Fatalf("header-only tab should give no drafts, got %v %v", drafts, err)
	}
}

func TestParseOpening(t *testing.T) {
	amount, date, err := ParseOpening([][]string{
		{"Previous balance", "-120,5"},
		{"Date", "31/12/2023"},
		{"Notes", "ignored"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if amount == nil || amount.StringFixed(2) != "-120.50" || date.String() != "2023-12-31" {
		t.Fatalf("got %v %s", amount, date)
	}

	amount, _, err = ParseOpening(nil)
	if err != nil || amount != nil {
		t.Fatalf("missing tab should give no amount, got %v %v", amount, err)
	}

	if _, _, err := ParseOpening([][]string{{"Previous balance", "lots"}}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestParseNames(t *testing.T) {
	got := ParseNames([][]string{{"Name"}, {"Food"}, {""}, {"Rent"}, {"Food"}})
	if len(got) != 2 || got[0] != "Food" || got[1] != "Rent" {
		t.Fatalf("ParseNames = %v", got)
	}
}

func TestParseBatch(t *testing.T) {
	batch, err := ParseBatch(Tabs{
		Incomes:          [][]string{{"Date", "Category", "Value"}, {"2024-01-10", "Salary", "100"}},
		Balance:          [][]string{{"Previous balance", "50"}},
		IncomeCategories: [][]string{{"Salary"}, {"Bonus"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Incomes) != 1 || len(batch.Expenses) != 0 || len(batch.IncomeCategories) != 2 {
		t.Errorf("unexpected batch %+v", batch)
	}
	if batch.PreviousBalance == nil || !batch.PreviousBalanceDate.IsZero() {
		t.Errorf("opening balance without date, got %v %s", batch.PreviousBalance, batch.PreviousBalanceDate)
	}

	_, err = ParseBatch(Tabs{Expenses: [][]string{{"Date", "Category", "Value"}, {"x", "Food", "1"}}})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
