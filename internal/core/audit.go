package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"
)

type (
	AuditAction string

	// Snapshot is an immutable copy of a transaction taken before or after a
	// mutation, used only for history diffs.
	Snapshot struct {
		ID            int64           `json:"id"`
		CategoryID    int64           `json:"category_id"`
		CategoryName  string          `json:"category_name,omitempty"`
		LedgerEntryID int64           `json:"ledger_entry_id"`
		Date          Date            `json:"date"`
		Value         decimal.Decimal `json:"value"`
		Description   string          `json:"description"`
		Planned       bool            `json:"planned"`
	}

	AuditRecord struct {
		ID        int64       `json:"id"`
		AccountID int64       `json:"account_id"`
		Action    AuditAction `json:"action"`
		Kind      Kind        `json:"kind"`
		Before    *Snapshot   `json:"before,omitempty"`
		After     *Snapshot   `json:"after,omitempty"`
		Timestamp time.Time   `json:"timestamp"`
	}
)

// Snapshot copies the transaction's fields. Decimal values are immutable, so
// the copy is safe to keep while the original is mutated.
func (t Transaction) Snapshot() Snapshot {
	return Snapshot{
		ID:            t.ID,
		CategoryID:    t.CategoryID,
		CategoryName:  t.CategoryName,
		LedgerEntryID: t.LedgerEntryID,
		Date:          t.Date,
		Value:         t.Value,
		Description:   t.Description,
		Planned:       t.Planned,
	}
}
