package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

const entryColumns = `id, account_id, date, balance_cents`

func scanEntry(row interface{ Scan(...any) error }) (core.LedgerEntry, error) {
	var (
		e       core.LedgerEntry
		date    string
		balance int64
	)
	if err := row.Scan(&e.ID, &e.AccountID, &date, &balance); err != nil {
		return core.LedgerEntry{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.LedgerEntry{}, fmt.Errorf("ledger entry %d: %w", e.ID, err)
	}
	e.Date = d
	e.Balance = core.FromCents(balance)
	return e, nil
}

func (t *sqliteTx) queryEntry(ctx context.Context, query string, args ...any) (*core.LedgerEntry, error) {
	e, err := scanEntry(t.tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *sqliteTx) GetEntry(ctx context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error) {
	e, err := t.queryEntry(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = ? AND date = ?`,
		accountID, date.String())
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %s: %w", date, err)
	}
	return e, nil
}

func (t *sqliteTx) GetNearestEntryBefore(ctx context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error) {
	e, err := t.queryEntry(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE account_id = ? AND date < ?
		 ORDER BY date DESC LIMIT 1`,
		accountID, date.String())
	if err != nil {
		return nil, fmt.Errorf("get ledger entry before %s: %w", date, err)
	}
	return e, nil
}

func (t *sqliteTx) SaveEntry(ctx context.Context, e *core.LedgerEntry) error {
	if e.ID == 0 {
		res, err := t.tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (account_id, date, balance_cents) VALUES (?, ?, ?)`,
			e.AccountID, e.Date.String(), core.ToCents(e.Balance))
		if err != nil {
			return fmt.Errorf("insert ledger entry %s: %w", e.Date, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("ledger entry id: %w", err)
		}
		e.ID = id
		return nil
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE ledger_entries SET balance_cents = ? WHERE id = ?`,
		core.ToCents(e.Balance), e.ID)
	if err != nil {
		return fmt.Errorf("update ledger entry %d: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ledger entry %d: %w", e.ID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) BulkShift(ctx context.Context, accountID int64, after core.Date, delta decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE ledger_entries SET balance_cents = balance_cents + ?
		 WHERE account_id = ? AND date > ?`,
		core.ToCents(delta), accountID, after.String())
	if err != nil {
		return fmt.Errorf("shift ledger after %s: %w", after, err)
	}
	return nil
}

func (t *sqliteTx) CountEntryTransactions(ctx context.Context, entryID int64) (int64, error) {
	var n int64
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE ledger_entry_id = ?`, entryID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count transactions of entry %d: %w", entryID, err)
	}
	return n, nil
}

func (t *sqliteTx) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete ledger entry %d: %w", id, err)
	}
	return nil
}

func (t *sqliteTx) DeleteAllEntries(ctx context.Context, accountID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete ledger of account %d: %w", accountID, err)
	}
	return nil
}

func (t *sqliteTx) ListEntries(ctx context.Context, accountID int64, r DateRange) ([]core.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE account_id = ?`
	args := []any{accountID}
	if !r.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, r.From.String())
	}
	if !r.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, r.To.String())
	}
	query += ` ORDER BY date`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var out []core.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
