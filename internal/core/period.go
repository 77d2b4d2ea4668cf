package core

import (
	"fmt"
	"strings"
)

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// Period is the grouping granularity of ledger report rows.
type Period string

var periodLayouts = map[Period]string{
	PeriodDay:   "2006-01-02",
	PeriodMonth: "2006-01",
	PeriodYear:  "2006",
}

// ParsePeriod defaults to day grouping for an empty string.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PeriodDay, nil
	}
	if _, ok := periodLayouts[p]; !ok {
		return "", fmt.Errorf("%w: unknown period %q", ErrValidation, s)
	}
	return p, nil
}

// Key formats d with the period's pattern; dates sharing a key belong to the
// same report row.
func (p Period) Key(d Date) string {
	layout, ok := periodLayouts[p]
	if !ok {
		layout = periodLayouts[PeriodDay]
	}
	return d.Format(layout)
}
