package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

const dateLayout = "2006-01-02"

type (
	// Kind selects the sign convention of a transaction: incomes raise the
	// running balance, expenses lower it.
	Kind string

	Date struct {
		time.Time
	}

	Category struct {
		ID        int64  `json:"id"`
		AccountID int64  `json:"account_id"`
		Kind      Kind   `json:"kind"`
		Name      string `json:"name"`
	}

	// Draft carries the user-editable fields of a transaction.
	Draft struct {
		CategoryID  int64           `json:"category_id"`
		Date        Date            `json:"date"`
		Value       decimal.Decimal `json:"value"`
		Description string          `json:"description"`
		Planned     bool            `json:"planned"`
	}

	Transaction struct {
		ID            int64           `json:"id"`
		AccountID     int64           `json:"account_id"`
		Kind          Kind            `json:"kind"`
		CategoryID    int64           `json:"category_id"`
		CategoryName  string          `json:"category_name"`
		LedgerEntryID int64           `json:"ledger_entry_id"`
		Date          Date            `json:"date"`
		Value         decimal.Decimal `json:"value"`
		Description   string          `json:"description"`
		Planned       bool            `json:"planned"`
		Overdue       bool            `json:"overdue"`
	}

	// LedgerEntry is the cumulative balance of an account at the end of a day.
	LedgerEntry struct {
		ID        int64           `json:"id"`
		AccountID int64           `json:"account_id"`
		Date      Date            `json:"date"`
		Balance   decimal.Decimal `json:"balance"`
	}
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")

	ErrInvalidDate     = fmt.Errorf("%w: invalid date", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidKind     = fmt.Errorf("%w: invalid transaction kind", ErrValidation)
	ErrEmptyCategory   = fmt.Errorf("%w: empty category", ErrValidation)
	ErrDescriptionLong = fmt.Errorf("%w: description too long (max 255 characters)", ErrValidation)
)

// Sign returns +1 for incomes and -1 for expenses.
func (k Kind) Sign() int64 {
	if k == Expense {
		return -1
	}
	return 1
}

// Signed applies the kind's sign to a positive value.
func (k Kind) Signed(v decimal.Decimal) decimal.Decimal {
	if k == Expense {
		return v.Neg()
	}
	return v
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind accepts the singular and plural spelling used by the API routes.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "incomes":
		return Income, nil
	case "expense", "expenses":
		return Expense, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Draft) Validate() error {
	if err := d.Date.Validate(); err != nil {
		return err
	}
	if !d.Value.IsPositive() {
		return ErrInvalidAmount
	}
	if d.CategoryID <= 0 {
		return ErrEmptyCategory
	}
	if len(d.Description) > 255 {
		return ErrDescriptionLong
	}
	return nil
}

// Normalize rounds the value to cents and trims the description.
func (d Draft) Normalize() Draft {
	d.Value = d.Value.Round(2)
	d.Description = strings.TrimSpace(d.Description)
	return d
}

// RefreshOverdue marks a planned transaction overdue once its date is on or
// before ref. The flag is sticky: it is never reset to false.
func (t *Transaction) RefreshOverdue(ref Date) {
	if t.Planned && !t.Date.After(ref) {
		t.Overdue = true
	}
}

// SignedValue is the transaction's contribution to the running balance.
func (t Transaction) SignedValue() decimal.Decimal {
	return t.Kind.Signed(t.Value)
}
