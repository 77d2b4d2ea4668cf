package http

import (
	"bytes"
	"fmt"
	"net/http"

	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/sheets/xlsx"
	"saldo/internal/storage"
)

const contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleLedger serves the aggregated balance rows of an account.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	q, err := ParseLedgerQuery(r.URL.Query())
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}

	rows, err := s.svc.Reports.View(r.Context(), accountID, q)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(orEmpty(rows)).Write(w)
}

// handleEntries serves the raw ledger days without their transactions.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	from, to, err := ParseDateRange(r.URL.Query())
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}

	entries, err := s.svc.Accounts.Ledger(r.Context(), accountID, storage.DateRange{From: from, To: to})
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(orEmpty(entries)).Write(w)
}

// handleHistory serves the newest audit records first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	limit, err := ParseLimit(r.URL.Query(), 50, 500)
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}

	records, err := s.svc.Accounts.History(r.Context(), accountID, limit)
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(orEmpty(records)).Write(w)
}

// handleExport renders every transaction plus the requested ledger view as
// a workbook the import endpoint accepts back.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, err := pathID(r, "accountID")
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	q, err := ParseLedgerQuery(r.URL.Query())
	if err != nil {
		fail(w, r, log.OpExport, err)
		return
	}

	var e xlsx.Export
	if e.Incomes, err = s.svc.Incomes.List(ctx, accountID, core.Date{}, core.Date{}); err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	if e.Expenses, err = s.svc.Expenses.List(ctx, accountID, core.Date{}, core.Date{}); err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	if e.Rows, err = s.svc.Reports.View(ctx, accountID, q); err != nil {
		fail(w, r, log.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := xlsx.Write(&buf, e); err != nil {
		fail(w, r, log.OpExport, err)
		return
	}
	NewResponse().
		Body(buf.Bytes(), contentTypeXLSX).
		Attachment(fmt.Sprintf("ledger-%d.xlsx", accountID)).
		Write(w)
}

// handlePurge removes every entry, transaction, category and audit record
// of the account.
func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		fail(w, r, log.OpPurge, err)
		return
	}

	if err := s.svc.Accounts.Purge(r.Context(), accountID); err != nil {
		fail(w, r, log.OpPurge, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
