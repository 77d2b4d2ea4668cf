// Package xlsx reads import batches from and writes ledger exports to Excel
// workbooks.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"saldo/internal/core"
	"saldo/internal/report"
	"saldo/internal/sheets"
)

// Reader parses a workbook with Incomes and Expenses tabs plus the optional
// Balance and category tabs.
type Reader struct {
	open func() (*excelize.File, error)
	name string
}

var _ sheets.BatchReader = (*Reader)(nil)

func NewFileReader(path string) *Reader {
	return &Reader{
		open: func() (*excelize.File, error) { return excelize.OpenFile(path) },
		name: path,
	}
}

func NewReader(r io.Reader) *Reader {
	return &Reader{
		open: func() (*excelize.File, error) { return excelize.OpenReader(r) },
		name: "upload",
	}
}

func (r *Reader) ReadBatch(ctx context.Context) (core.ImportBatch, error) {
	f, err := r.open()
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("%w: open workbook: %v", core.ErrValidation, err)
	}
	defer f.Close()

	var tabs sheets.Tabs
	for _, name := range []string{sheets.SheetIncomes, sheets.SheetExpenses} {
		rows, err := readTab(f, name)
		if err != nil {
			return core.ImportBatch{}, err
		}
		tabs.Set(name, rows)
	}
	if tabs.Incomes == nil && tabs.Expenses == nil {
		return core.ImportBatch{}, fmt.Errorf("%w: workbook has neither %s nor %s tab",
			core.ErrValidation, sheets.SheetIncomes, sheets.SheetExpenses)
	}
	for _, name := range sheets.OptionalTabs {
		rows, err := readTab(f, name)
		if err != nil {
			return core.ImportBatch{}, err
		}
		tabs.Set(name, rows)
	}

	batch, err := sheets.ParseBatch(tabs)
	if err != nil {
		return core.ImportBatch{}, err
	}

	slog.InfoContext(ctx, "Workbook parsed",
		"source", r.name,
		"incomes", len(batch.Incomes),
		"expenses", len(batch.Expenses))
	return batch, nil
}

// readTab returns nil for a missing tab.
func readTab(f *excelize.File, name string) ([][]string, error) {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return nil, fmt.Errorf("look up tab %s: %w", name, err)
	}
	if idx == -1 {
		return nil, nil
	}
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read tab %s: %w", name, err)
	}
	return rows, nil
}

var transactionHeader = []interface{}{"Date", "Category", "Value", "Planned", "Description"}

// Export is what a workbook export contains.
type Export struct {
	Incomes  []core.Transaction
	Expenses []core.Transaction
	Rows     []report.Row
}

// Write renders e as a workbook whose transaction tabs can be imported back.
func Write(w io.Writer, e Export) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := writeTransactions(f, sheets.SheetIncomes, e.Incomes); err != nil {
		return err
	}
	if err := writeTransactions(f, sheets.SheetExpenses, e.Expenses); err != nil {
		return err
	}
	if err := writeLedger(f, e.Rows); err != nil {
		return err
	}

	// NewFile starts with a default tab we do not use.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default tab: %w", err)
	}
	if idx, err := f.GetSheetIndex(sheets.SheetLedger); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTransactions(f *excelize.File, name string, list []core.Transaction) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create tab %s: %w", name, err)
	}
	if err := f.SetSheetRow(name, "A1", &transactionHeader); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}

	for i, t := range list {
		planned := ""
		if t.Planned {
			planned = "yes"
		}
		row := []interface{}{t.Date.String(), t.CategoryName, t.Value.StringFixed(2), planned, t.Description}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, i+2, err)
		}
	}

	f.SetColWidth(name, "A", "A", 12)
	f.SetColWidth(name, "B", "B", 20)
	f.SetColWidth(name, "C", "C", 12)
	f.SetColWidth(name, "E", "E", 40)
	return nil
}

func writeLedger(f *excelize.File, rows []report.Row) error {
	name := sheets.SheetLedger
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("create tab %s: %w", name, err)
	}
	header := []interface{}{"Period", "Date", "Incomes", "Expenses", "Balance", "Overdue"}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}

	for i, r := range rows {
		overdue := ""
		if r.Overdue {
			overdue = "yes"
		}
		row := []interface{}{
			r.Key,
			r.Date.String(),
			r.IncomesSum.InexactFloat64(),
			r.ExpensesSum.InexactFloat64(),
			r.Balance.InexactFloat64(),
			overdue,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", name, i+2, err)
		}
	}

	f.SetColWidth(name, "A", "B", 12)
	f.SetColWidth(name, "C", "E", 14)
	return nil
}
