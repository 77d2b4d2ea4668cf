package http

import (
	"net/http"

	"saldo/internal/log"
	"saldo/internal/services"
)

// transactionHandlers serve one kind; the service fixes the sign.
type transactionHandlers struct {
	svc *services.TransactionService
}

func (h transactionHandlers) list(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.svc.List(r.Context(), accountID, from, to)
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(orEmpty(list)).Write(w)
}

func (h transactionHandlers) create(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	draft, err := ParseDraft(NewRequestBodyParser(r))
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}

	t, err := h.svc.Create(r.Context(), accountID, draft)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(t).Write(w)
}

func (h transactionHandlers) get(w http.ResponseWriter, r *http.Request) {
	accountID, id, err := accountAndID(r)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}

	t, err := h.svc.Get(r.Context(), accountID, id)
	if err != nil {
		fail(w, r, log.OpRead, err)
		return
	}
	NewResponse().JSON(t).Write(w)
}

func (h transactionHandlers) update(w http.ResponseWriter, r *http.Request) {
	accountID, id, err := accountAndID(r)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	draft, err := ParseDraft(NewRequestBodyParser(r))
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}

	t, err := h.svc.Update(r.Context(), accountID, id, draft)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(t).Write(w)
}

func (h transactionHandlers) delete(w http.ResponseWriter, r *http.Request) {
	accountID, id, err := accountAndID(r)
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}

	if err := h.svc.Delete(r.Context(), accountID, id); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func accountAndID(r *http.Request) (int64, int64, error) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		return 0, 0, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	return accountID, id, nil
}
