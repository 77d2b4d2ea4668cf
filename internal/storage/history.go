package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"saldo/internal/core"
)

func marshalSnapshot(s *core.Snapshot) (sql.NullString, error) {
	if s == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalSnapshot(ns sql.NullString) (*core.Snapshot, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var s core.Snapshot
	if err := json.Unmarshal([]byte(ns.String), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *sqliteTx) AppendHistory(ctx context.Context, r *core.AuditRecord) error {
	before, err := marshalSnapshot(r.Before)
	if err != nil {
		return fmt.Errorf("encode history before: %w", err)
	}
	after, err := marshalSnapshot(r.After)
	if err != nil {
		return fmt.Errorf("encode history after: %w", err)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO history (account_id, action, kind, before_json, after_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.AccountID, string(r.Action), string(r.Kind), before, after, r.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("history id: %w", err)
	}
	r.ID = id
	return nil
}

// ListHistory returns the newest records first.
func (t *sqliteTx) ListHistory(ctx context.Context, accountID int64, limit int) ([]core.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, account_id, action, kind, before_json, after_json, created_at
		 FROM history WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []core.AuditRecord
	for rows.Next() {
		var (
			r             core.AuditRecord
			action, kind  string
			before, after sql.NullString
			created       string
		)
		if err := rows.Scan(&r.ID, &r.AccountID, &action, &kind, &before, &after, &created); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Action = core.AuditAction(action)
		r.Kind = core.Kind(kind)
		if r.Before, err = unmarshalSnapshot(before); err != nil {
			return nil, fmt.Errorf("decode history %d: %w", r.ID, err)
		}
		if r.After, err = unmarshalSnapshot(after); err != nil {
			return nil, fmt.Errorf("decode history %d: %w", r.ID, err)
		}
		if r.Timestamp, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode history %d timestamp: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqliteTx) DeleteHistory(ctx context.Context, accountID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM history WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("delete history of account %d: %w", accountID, err)
	}
	return nil
}
