package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"saldo/internal/core"
)

const transactionSelect = `SELECT t.id, t.account_id, t.kind, t.category_id, c.name, t.ledger_entry_id,
       t.date, t.value_cents, t.description, t.planned, t.overdue
FROM transactions t
JOIN categories c ON c.id = t.category_id`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		tr      core.Transaction
		kind    string
		date    string
		cents   int64
		planned int64
		overdue int64
	)
	err := row.Scan(&tr.ID, &tr.AccountID, &kind, &tr.CategoryID, &tr.CategoryName, &tr.LedgerEntryID,
		&date, &cents, &tr.Description, &planned, &overdue)
	if err != nil {
		return core.Transaction{}, err
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", tr.ID, err)
	}
	tr.Kind = core.Kind(kind)
	tr.Date = d
	tr.Value = core.FromCents(cents)
	tr.Planned = planned != 0
	tr.Overdue = overdue != 0
	return tr, nil
}

func (t *sqliteTx) GetTransaction(ctx context.Context, id, accountID int64, kind core.Kind) (*core.Transaction, error) {
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx,
		transactionSelect+` WHERE t.id = ? AND t.account_id = ? AND t.kind = ?`,
		id, accountID, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", kind, id, err)
	}
	return &tr, nil
}

const insertTransaction = `INSERT INTO transactions
    (account_id, kind, category_id, ledger_entry_id, date, value_cents, description, planned, overdue)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

func transactionArgs(tr *core.Transaction) []any {
	return []any{
		tr.AccountID, string(tr.Kind), tr.CategoryID, tr.LedgerEntryID, tr.Date.String(),
		core.ToCents(tr.Value), tr.Description, boolToInt(tr.Planned), boolToInt(tr.Overdue),
	}
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tr *core.Transaction) error {
	res, err := t.tx.ExecContext(ctx, insertTransaction, transactionArgs(tr)...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", tr.Kind, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("%s id: %w", tr.Kind, err)
	}
	tr.ID = id
	return nil
}

func (t *sqliteTx) InsertTransactions(ctx context.Context, ts []core.Transaction) error {
	if len(ts) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, insertTransaction)
	if err != nil {
		return fmt.Errorf("prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for i := range ts {
		res, err := stmt.ExecContext(ctx, transactionArgs(&ts[i])...)
		if err != nil {
			return fmt.Errorf("batch insert %s on %s: %w", ts[i].Kind, ts[i].Date, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%s id: %w", ts[i].Kind, err)
		}
		ts[i].ID = id
	}
	return nil
}

func (t *sqliteTx) UpdateTransaction(ctx context.Context, tr *core.Transaction) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE transactions
		 SET category_id = ?, ledger_entry_id = ?, date = ?, value_cents = ?,
		     description = ?, planned = ?, overdue = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND account_id = ?`,
		tr.CategoryID, tr.LedgerEntryID, tr.Date.String(), core.ToCents(tr.Value),
		tr.Description, boolToInt(tr.Planned), boolToInt(tr.Overdue), tr.ID, tr.AccountID)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", tr.Kind, tr.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", tr.Kind, tr.ID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, id, accountID int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteAllTransactions(ctx context.Context, accountID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete transactions of account %d: %w", accountID, err)
	}
	return nil
}

func (t *sqliteTx) ExistsByCategory(ctx context.Context, categoryID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE category_id = ?)`, categoryID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check transactions of category %d: %w", categoryID, err)
	}
	return exists, nil
}

func (t *sqliteTx) MarkOverdue(ctx context.Context, ref core.Date) ([]int64, error) {
	const pending = `FROM transactions WHERE planned = 1 AND overdue = 0 AND date <= ?`

	rows, err := t.tx.QueryContext(ctx, `SELECT DISTINCT account_id `+pending+` ORDER BY account_id`, ref.String())
	if err != nil {
		return nil, fmt.Errorf("find overdue: %w", err)
	}
	var accounts []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan overdue account: %w", err)
		}
		accounts = append(accounts, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find overdue: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}

	if _, err := t.tx.ExecContext(ctx,
		`UPDATE transactions SET overdue = 1, updated_at = CURRENT_TIMESTAMP
		 WHERE planned = 1 AND overdue = 0 AND date <= ?`, ref.String()); err != nil {
		return nil, fmt.Errorf("mark overdue: %w", err)
	}
	return accounts, nil
}

func (t *sqliteTx) ListTransactions(ctx context.Context, accountID int64, f TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"t.account_id = ?"}
		args  = []any{accountID}
	)
	if f.Kind != "" {
		where = append(where, "t.kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Range.From.IsZero() {
		where = append(where, "t.date >= ?")
		args = append(args, f.Range.From.String())
	}
	if !f.Range.To.IsZero() {
		where = append(where, "t.date <= ?")
		args = append(args, f.Range.To.String())
	}
	if len(f.EntryIDs) > 0 {
		clause, inArgs := inClause(f.EntryIDs)
		where = append(where, "t.ledger_entry_id IN "+clause)
		args = append(args, inArgs...)
	}
	if len(f.CategoryIDs) > 0 {
		clause, inArgs := inClause(f.CategoryIDs)
		where = append(where, "t.category_id IN "+clause)
		args = append(args, inArgs...)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		folded := FoldCase(text)
		where = append(where, `(instr(fold(t.description), ?) > 0 OR instr(fold(c.name), ?) > 0)`)
		args = append(args, folded, folded)
	}

	query := transactionSelect + ` WHERE ` + strings.Join(where, " AND ") + ` ORDER BY t.date, t.id`
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}
