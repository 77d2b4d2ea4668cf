package importer

import (
	"context"
	"fmt"

	"saldo/internal/core"
	"saldo/internal/storage"
)

// signatures counts the account's stored transactions by content, so a
// re-imported row can consume its stored twin instead of being added again.
type signatures map[string]int

func signature(kind core.Kind, date core.Date, cents int64, category, description string, planned bool) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%t", kind, date, cents, category, description, planned)
}

func loadSignatures(ctx context.Context, tx storage.Tx, accountID int64) (signatures, error) {
	list, err := tx.ListTransactions(ctx, accountID, storage.TransactionFilter{})
	if err != nil {
		return nil, err
	}
	s := make(signatures, len(list))
	for _, t := range list {
		s[signature(t.Kind, t.Date, core.ToCents(t.Value), t.CategoryName, t.Description, t.Planned)]++
	}
	return s, nil
}

// consume reports whether d matches a stored transaction not yet matched by
// an earlier row.
func (s signatures) consume(kind core.Kind, d core.ImportDraft) bool {
	k := signature(kind, d.Date, core.ToCents(d.Value), d.CategoryName, d.Description, d.Planned)
	if s[k] == 0 {
		return false
	}
	s[k]--
	return true
}
