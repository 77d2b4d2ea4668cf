package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"saldo/internal/core"
)

// Ledger event actions beyond the per-transaction audit actions.
const (
	EventImport   = "import"
	EventPurge    = "purge"
	EventCategory = "category"
	EventOverdue  = "overdue"
)

// MaxImportAttempts bounds how often a failing import job is delivered.
const MaxImportAttempts = 5

// Import job sources.
const (
	SourceXLSX   = "xlsx"
	SourceGoogle = "google"
)

// LedgerEvent tells downstream consumers that an account's ledger changed.
// It carries identifiers only; consumers read current state from the store.
type LedgerEvent struct {
	ID            string    `json:"id"`
	AccountID     int64     `json:"account_id"`
	Action        string    `json:"action"`
	Kind          core.Kind `json:"kind,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Date          string    `json:"date,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLedgerEvent(accountID int64, action string) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ImportJob asks the worker to import a spreadsheet into an account. Path
// points to an uploaded xlsx file; SpreadsheetID names a Google spreadsheet.
type ImportJob struct {
	ID            string    `json:"id"`
	AccountID     int64     `json:"account_id"`
	Source        string    `json:"source"`
	Path          string    `json:"path,omitempty"`
	SpreadsheetID string    `json:"spreadsheet_id,omitempty"`
	Attempts      int       `json:"attempts,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewXLSXImportJob(accountID int64, path string) *ImportJob {
	return &ImportJob{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Source:    SourceXLSX,
		Path:      path,
		Timestamp: time.Now(),
	}
}

func NewGoogleImportJob(accountID int64, spreadsheetID string) *ImportJob {
	return &ImportJob{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		Source:        SourceGoogle,
		SpreadsheetID: spreadsheetID,
		Timestamp:     time.Now(),
	}
}

func (m *ImportJob) Validate() error {
	if m.AccountID <= 0 {
		return fmt.Errorf("import job %s: missing account id", m.ID)
	}
	switch m.Source {
	case SourceXLSX:
		if m.Path == "" {
			return fmt.Errorf("import job %s: missing file path", m.ID)
		}
	case SourceGoogle:
		if m.SpreadsheetID == "" {
			return fmt.Errorf("import job %s: missing spreadsheet id", m.ID)
		}
	default:
		return fmt.Errorf("import job %s: unknown source %q", m.ID, m.Source)
	}
	return nil
}

func (m *ImportJob) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportJobFromJSON(data []byte) (*ImportJob, error) {
	var msg ImportJob
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
