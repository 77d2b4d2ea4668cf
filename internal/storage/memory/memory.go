// Package memory is an in-process Store for tests and small single-user
// setups. Each InTx and Read works on a full copy of the state, O(N) per
// call; the copy replaces the shared state only when fn succeeds, so a failed
// unit of work leaves nothing behind. Use the sqlite backend for real data.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
	"saldo/internal/storage"
)

type Store struct {
	mu    sync.Mutex
	state *state
}

var _ storage.Store = (*Store)(nil)

type state struct {
	seq          int64
	entries      map[int64]core.LedgerEntry
	categories   map[int64]core.Category
	transactions map[int64]core.Transaction
	history      []core.AuditRecord
}

func New() *Store {
	return &Store{state: &state{
		entries:      map[int64]core.LedgerEntry{},
		categories:   map[int64]core.Category{},
		transactions: map[int64]core.Transaction{},
	}}
}

func (s *state) clone() *state {
	c := &state{
		seq:          s.seq,
		entries:      make(map[int64]core.LedgerEntry, len(s.entries)),
		categories:   make(map[int64]core.Category, len(s.categories)),
		transactions: make(map[int64]core.Transaction, len(s.transactions)),
		history:      append([]core.AuditRecord(nil), s.history...),
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	return c
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

// InTx implements storage.Store.
func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Read implements storage.Store.
func (s *Store) Read(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&tx{st: s.state.clone()})
}

func (s *Store) Close() error { return nil }

type tx struct {
	st *state
}

var _ storage.Tx = (*tx)(nil)

func (t *tx) GetEntry(_ context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error) {
	for _, e := range t.st.entries {
		if e.AccountID == accountID && e.Date.Equal(date) {
			e := e
			return &e, nil
		}
	}
	return nil, nil
}

func (t *tx) GetNearestEntryBefore(_ context.Context, accountID int64, date core.Date) (*core.LedgerEntry, error) {
	var best *core.LedgerEntry
	for _, e := range t.st.entries {
		if e.AccountID != accountID || !e.Date.Before(date) {
			continue
		}
		if best == nil || e.Date.After(best.Date) {
			e := e
			best = &e
		}
	}
	return best, nil
}

func (t *tx) SaveEntry(_ context.Context, e *core.LedgerEntry) error {
	if e.ID == 0 {
		for _, other := range t.st.entries {
			if other.AccountID == e.AccountID && other.Date.Equal(e.Date) {
				return fmt.Errorf("insert ledger entry %s: %w: duplicate date", e.Date, core.ErrConflict)
			}
		}
		e.ID = t.st.nextID()
		t.st.entries[e.ID] = *e
		return nil
	}
	cur, ok := t.st.entries[e.ID]
	if !ok {
		return fmt.Errorf("ledger entry %d: %w", e.ID, core.ErrNotFound)
	}
	cur.Balance = e.Balance
	t.st.entries[e.ID] = cur
	return nil
}

func (t *tx) BulkShift(_ context.Context, accountID int64, after core.Date, delta decimal.Decimal) error {
	for id, e := range t.st.entries {
		if e.AccountID == accountID && e.Date.After(after) {
			e.Balance = e.Balance.Add(delta)
			t.st.entries[id] = e
		}
	}
	return nil
}

func (t *tx) CountEntryTransactions(_ context.Context, entryID int64) (int64, error) {
	var n int64
	for _, tr := range t.st.transactions {
		if tr.LedgerEntryID == entryID {
			n++
		}
	}
	return n, nil
}

func (t *tx) DeleteEntry(_ context.Context, id int64) error {
	delete(t.st.entries, id)
	return nil
}

func (t *tx) DeleteAllEntries(_ context.Context, accountID int64) error {
	for id, e := range t.st.entries {
		if e.AccountID == accountID {
			delete(t.st.entries, id)
		}
	}
	return nil
}

func (t *tx) ListEntries(_ context.Context, accountID int64, r storage.DateRange) ([]core.LedgerEntry, error) {
	var out []core.LedgerEntry
	for _, e := range t.st.entries {
		if e.AccountID == accountID && r.Contains(e.Date) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *tx) CategoryExists(_ context.Context, accountID int64, kind core.Kind, name string, caseInsensitive bool) (bool, error) {
	for _, c := range t.st.categories {
		if c.AccountID != accountID || c.Kind != kind {
			continue
		}
		if c.Name == name || (caseInsensitive && storage.FoldCase(c.Name) == storage.FoldCase(name)) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) FindCategory(_ context.Context, id, accountID int64) (*core.Category, error) {
	c, ok := t.st.categories[id]
	if !ok || c.AccountID != accountID {
		return nil, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return &c, nil
}

func (t *tx) ListCategories(_ context.Context, accountID int64, kind core.Kind) ([]core.Category, error) {
	var out []core.Category
	for _, c := range t.st.categories {
		if c.AccountID == accountID && c.Kind == kind {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) SaveCategory(_ context.Context, c *core.Category) error {
	for _, other := range t.st.categories {
		if other.ID != c.ID && other.AccountID == c.AccountID && other.Kind == c.Kind && other.Name == c.Name {
			return fmt.Errorf("save category %q: %w: duplicate name", c.Name, core.ErrConflict)
		}
	}
	if c.ID == 0 {
		c.ID = t.st.nextID()
		t.st.categories[c.ID] = *c
		return nil
	}
	cur, ok := t.st.categories[c.ID]
	if !ok || cur.AccountID != c.AccountID {
		return fmt.Errorf("category %d: %w", c.ID, core.ErrNotFound)
	}
	cur.Name = c.Name
	t.st.categories[c.ID] = cur
	return nil
}

func (t *tx) DeleteCategory(_ context.Context, id, accountID int64) error {
	c, ok := t.st.categories[id]
	if !ok || c.AccountID != accountID {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	delete(t.st.categories, id)
	return nil
}

func (t *tx) DeleteAllCategories(_ context.Context, accountID int64) error {
	for id, c := range t.st.categories {
		if c.AccountID == accountID {
			delete(t.st.categories, id)
		}
	}
	return nil
}

// withCategory fills the joined category name, like the SQL store does.
func (t *tx) withCategory(tr core.Transaction) core.Transaction {
	tr.CategoryName = t.st.categories[tr.CategoryID].Name
	return tr
}

func (t *tx) checkReferences(tr *core.Transaction) error {
	if _, ok := t.st.categories[tr.CategoryID]; !ok {
		return fmt.Errorf("category %d: %w", tr.CategoryID, core.ErrNotFound)
	}
	if _, ok := t.st.entries[tr.LedgerEntryID]; !ok {
		return fmt.Errorf("ledger entry %d: %w", tr.LedgerEntryID, core.ErrNotFound)
	}
	return nil
}

func (t *tx) GetTransaction(_ context.Context, id, accountID int64, kind core.Kind) (*core.Transaction, error) {
	tr, ok := t.st.transactions[id]
	if !ok || tr.AccountID != accountID || tr.Kind != kind {
		return nil, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	tr = t.withCategory(tr)
	return &tr, nil
}

func (t *tx) InsertTransaction(_ context.Context, tr *core.Transaction) error {
	if err := t.checkReferences(tr); err != nil {
		return fmt.Errorf("insert %s: %w", tr.Kind, err)
	}
	tr.ID = t.st.nextID()
	t.st.transactions[tr.ID] = *tr
	return nil
}

func (t *tx) InsertTransactions(ctx context.Context, ts []core.Transaction) error {
	for i := range ts {
		if err := t.InsertTransaction(ctx, &ts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) UpdateTransaction(_ context.Context, tr *core.Transaction) error {
	cur, ok := t.st.transactions[tr.ID]
	if !ok || cur.AccountID != tr.AccountID {
		return fmt.Errorf("%s %d: %w", tr.Kind, tr.ID, core.ErrNotFound)
	}
	if err := t.checkReferences(tr); err != nil {
		return fmt.Errorf("update %s %d: %w", tr.Kind, tr.ID, err)
	}
	t.st.transactions[tr.ID] = *tr
	return nil
}

func (t *tx) DeleteTransaction(_ context.Context, id, accountID int64) error {
	tr, ok := t.st.transactions[id]
	if !ok || tr.AccountID != accountID {
		return fmt.Errorf("transaction %d: %w", id, core.ErrNotFound)
	}
	delete(t.st.transactions, id)
	return nil
}

func (t *tx) DeleteAllTransactions(_ context.Context, accountID int64) error {
	for id, tr := range t.st.transactions {
		if tr.AccountID == accountID {
			delete(t.st.transactions, id)
		}
	}
	return nil
}

func (t *tx) ExistsByCategory(_ context.Context, categoryID int64) (bool, error) {
	for _, tr := range t.st.transactions {
		if tr.CategoryID == categoryID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) MarkOverdue(_ context.Context, ref core.Date) ([]int64, error) {
	seen := map[int64]bool{}
	var accounts []int64
	for id, tr := range t.st.transactions {
		if !tr.Planned || tr.Overdue || tr.Date.After(ref) {
			continue
		}
		tr.Overdue = true
		t.st.transactions[id] = tr
		if !seen[tr.AccountID] {
			seen[tr.AccountID] = true
			accounts = append(accounts, tr.AccountID)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })
	return accounts, nil
}

func (t *tx) ListTransactions(_ context.Context, accountID int64, f storage.TransactionFilter) ([]core.Transaction, error) {
	entryIDs := toSet(f.EntryIDs)
	categoryIDs := toSet(f.CategoryIDs)
	text := storage.FoldCase(strings.TrimSpace(f.Text))

	var out []core.Transaction
	for _, tr := range t.st.transactions {
		if tr.AccountID != accountID || !f.Range.Contains(tr.Date) {
			continue
		}
		if f.Kind != "" && tr.Kind != f.Kind {
			continue
		}
		if entryIDs != nil && !entryIDs[tr.LedgerEntryID] {
			continue
		}
		if categoryIDs != nil && !categoryIDs[tr.CategoryID] {
			continue
		}
		tr = t.withCategory(tr)
		if text != "" &&
			!strings.Contains(storage.FoldCase(tr.Description), text) &&
			!strings.Contains(storage.FoldCase(tr.CategoryName), text) {
			continue
		}
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func toSet(ids []int64) map[int64]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (t *tx) AppendHistory(_ context.Context, r *core.AuditRecord) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	r.ID = t.st.nextID()
	t.st.history = append(t.st.history, *r)
	return nil
}

func (t *tx) ListHistory(_ context.Context, accountID int64, limit int) ([]core.AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []core.AuditRecord
	for i := len(t.st.history) - 1; i >= 0 && len(out) < limit; i-- {
		if t.st.history[i].AccountID == accountID {
			out = append(out, t.st.history[i])
		}
	}
	return out, nil
}

func (t *tx) DeleteHistory(_ context.Context, accountID int64) error {
	kept := t.st.history[:0]
	for _, r := range t.st.history {
		if r.AccountID != accountID {
			kept = append(kept, r)
		}
	}
	t.st.history = kept
	return nil
}
