package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"saldo/internal/cache"
	"saldo/internal/core"
	"saldo/internal/storage"
)

// Query selects the ledger view of an account. Zero dates are open bounds.
// CategoryIDs and Text narrow the transactions shown; when both are set a
// transaction must match both.
type Query struct {
	Period      core.Period
	From        core.Date
	To          core.Date
	CategoryIDs []int64
	Text        string
}

func (q Query) filtered() bool {
	return len(q.CategoryIDs) > 0 || strings.TrimSpace(q.Text) != ""
}

func (q Query) normalize() (Query, error) {
	p, err := core.ParsePeriod(string(q.Period))
	if err != nil {
		return q, err
	}
	q.Period = p
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fmt.Errorf("%w: range ends before it starts", core.ErrValidation)
	}
	q.Text = strings.ToLower(strings.TrimSpace(q.Text))
	ids := append([]int64(nil), q.CategoryIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	q.CategoryIDs = ids
	return q, nil
}

func accountPrefix(accountID int64) string {
	return strconv.FormatInt(accountID, 10) + ":"
}

func (q Query) cacheKey(accountID int64, today core.Date) string {
	ids := make([]string, len(q.CategoryIDs))
	for i, id := range q.CategoryIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return accountPrefix(accountID) + strings.Join([]string{
		string(q.Period), q.From.String(), q.To.String(), strings.Join(ids, ","), q.Text, today.String(),
	}, "|")
}

// Service assembles ledger views and caches them per account.
type Service struct {
	store storage.Store
	cache cache.Cache[[]Row]
	now   func() time.Time
}

// NewService builds a view service; views is optional.
func NewService(store storage.Store, views cache.Cache[[]Row]) *Service {
	return &Service{store: store, cache: views, now: time.Now}
}

// InvalidateAccount drops every cached view of the account.
func (s *Service) InvalidateAccount(accountID int64) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeletePrefix(accountPrefix(accountID)); n > 0 {
		slog.Debug("Report views invalidated", "account_id", accountID, "count", n)
	}
}

// View returns the report rows of the account for q.
func (s *Service) View(ctx context.Context, accountID int64, q Query) ([]Row, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	today := core.DateOf(s.now())

	key := q.cacheKey(accountID, today)
	if s.cache != nil {
		if rows, ok := s.cache.Get(key); ok {
			return rows, nil
		}
	}

	days, err := s.Days(ctx, accountID, q)
	if err != nil {
		return nil, err
	}
	rows := Aggregate(days, q.Period, today)

	if s.cache != nil {
		s.cache.Set(key, rows)
	}
	return rows, nil
}

// Days loads the candidate entries of the range and splices the matching
// transactions onto them. Entries without a match are kept with empty lists
// so the balance line stays continuous.
func (s *Service) Days(ctx context.Context, accountID int64, q Query) ([]EntryView, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, err
	}
	r := storage.DateRange{From: q.From, To: q.To}

	var days []EntryView
	err = s.store.Read(ctx, func(tx storage.Tx) error {
		entries, err := tx.ListEntries(ctx, accountID, r)
		if err != nil || len(entries) == 0 {
			return err
		}

		filter := storage.TransactionFilter{Range: r}
		if q.filtered() {
			filter.CategoryIDs = q.CategoryIDs
			filter.Text = q.Text
		}
		list, err := tx.ListTransactions(ctx, accountID, filter)
		if err != nil {
			return err
		}

		byEntry := make(map[int64][]core.Transaction, len(entries))
		for _, t := range list {
			byEntry[t.LedgerEntryID] = append(byEntry[t.LedgerEntryID], t)
		}

		days = make([]EntryView, len(entries))
		for i, e := range entries {
			days[i] = EntryView{ID: e.ID, Date: e.Date, Balance: e.Balance}
			for _, t := range byEntry[e.ID] {
				if t.Kind == core.Income {
					days[i].Incomes = append(days[i].Incomes, t)
				} else {
					days[i].Expenses = append(days[i].Expenses, t)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ledger view of account %d: %w", accountID, err)
	}
	return days, nil
}
