package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"saldo/internal/core"
)

func (t *sqliteTx) CategoryExists(ctx context.Context, accountID int64, kind core.Kind, name string, caseInsensitive bool) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM categories WHERE account_id = ? AND kind = ? AND name = ?)`
	if caseInsensitive {
		query = `SELECT EXISTS (SELECT 1 FROM categories WHERE account_id = ? AND kind = ? AND fold(name) = ?)`
		name = FoldCase(name)
	}
	var exists bool
	if err := t.tx.QueryRowContext(ctx, query, accountID, string(kind), name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check category %q: %w", name, err)
	}
	return exists, nil
}

func (t *sqliteTx) FindCategory(ctx context.Context, id, accountID int64) (*core.Category, error) {
	var (
		c    core.Category
		kind string
	)
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, account_id, kind, name FROM categories WHERE id = ? AND account_id = ?`,
		id, accountID).Scan(&c.ID, &c.AccountID, &kind, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find category %d: %w", id, err)
	}
	c.Kind = core.Kind(kind)
	return &c, nil
}

func (t *sqliteTx) ListCategories(ctx context.Context, accountID int64, kind core.Kind) ([]core.Category, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, account_id, kind, name FROM categories
		 WHERE account_id = ? AND kind = ? ORDER BY name, id`,
		accountID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s categories: %w", kind, err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c core.Category
			k string
		)
		if err := rows.Scan(&c.ID, &c.AccountID, &k, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Kind = core.Kind(k)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *sqliteTx) SaveCategory(ctx context.Context, c *core.Category) error {
	if c.ID == 0 {
		res, err := t.tx.ExecContext(ctx,
			`INSERT INTO categories (account_id, kind, name) VALUES (?, ?, ?)`,
			c.AccountID, string(c.Kind), c.Name)
		if err != nil {
			return fmt.Errorf("insert category %q: %w", c.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("category id: %w", err)
		}
		c.ID = id
		return nil
	}

	res, err := t.tx.ExecContext(ctx,
		`UPDATE categories SET name = ? WHERE id = ? AND account_id = ?`,
		c.Name, c.ID, c.AccountID)
	if err != nil {
		return fmt.Errorf("update category %d: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", c.ID, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteCategory(ctx context.Context, id, accountID int64) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND account_id = ?`, id, accountID)
	if err != nil {
		return fmt.Errorf("delete category %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) DeleteAllCategories(ctx context.Context, accountID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM categories WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete categories of account %d: %w", accountID, err)
	}
	return nil
}
