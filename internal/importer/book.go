package importer

import (
	"sort"

	"github.com/shopspring/decimal"

	"saldo/internal/core"
)

// slot is the in-memory state of one ledger day during an import.
type slot struct {
	entry core.LedgerEntry
	dirty bool
	// hasTx is set once a draft lands on the day; an opening-balance seed
	// alone never reaches the store.
	hasTx bool
}

// book is a private date-ordered copy of an account's ledger. Keys are
// YYYY-MM-DD strings, so lexical order is date order.
type book struct {
	accountID int64
	keys      []string
	slots     map[string]*slot
}

func newBook(accountID int64, entries []core.LedgerEntry) *book {
	b := &book{accountID: accountID, slots: make(map[string]*slot, len(entries))}
	for _, e := range entries {
		k := e.Date.String()
		b.slots[k] = &slot{entry: e}
		b.keys = append(b.keys, k)
	}
	sort.Strings(b.keys)
	return b
}

// seed places a transient opening balance on date.
func (b *book) seed(date core.Date, balance decimal.Decimal) {
	s := b.slotAt(date)
	s.entry.Balance = balance
}

// slotAt returns the day's slot, creating it from the nearest earlier
// in-memory balance (0 if none).
func (b *book) slotAt(date core.Date) *slot {
	k := date.String()
	if s, ok := b.slots[k]; ok {
		return s
	}

	i := sort.SearchStrings(b.keys, k)
	balance := decimal.Zero
	if i > 0 {
		balance = b.slots[b.keys[i-1]].entry.Balance
	}

	s := &slot{entry: core.LedgerEntry{AccountID: b.accountID, Date: date, Balance: balance}}
	b.slots[k] = s
	b.keys = append(b.keys, "")
	copy(b.keys[i+1:], b.keys[i:])
	b.keys[i] = k
	return s
}

// apply adds delta to the day of date and to every later day, and returns
// the day's slot.
func (b *book) apply(date core.Date, delta decimal.Decimal) *slot {
	s := b.slotAt(date)
	s.entry.Balance = s.entry.Balance.Add(delta)
	s.dirty = true
	s.hasTx = true

	k := date.String()
	for i := sort.SearchStrings(b.keys, k) + 1; i < len(b.keys); i++ {
		later := b.slots[b.keys[i]]
		later.entry.Balance = later.entry.Balance.Add(delta)
		later.dirty = true
	}
	return s
}

// pending lists, in date order, the slots that must be written: changed
// days that are already stored or now carry a transaction.
func (b *book) pending() []*slot {
	var out []*slot
	for _, k := range b.keys {
		s := b.slots[k]
		if s.dirty && (s.hasTx || s.entry.ID != 0) {
			out = append(out, s)
		}
	}
	return out
}
