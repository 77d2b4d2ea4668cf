package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"saldo/internal/core"
	"saldo/internal/log"
)

func accountAndKind(r *http.Request) (int64, core.Kind, error) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		return 0, "", err
	}
	kind, err := core.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return 0, "", err
	}
	return accountID, kind, nil
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	accountID, kind, err := accountAndKind(r)
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}

	list, err := s.svc.Categories.List(r.Context(), accountID, kind)
	if err != nil {
		fail(w, r, log.OpList, err)
		return
	}
	NewResponse().JSON(orEmpty(list)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	accountID, kind, err := accountAndKind(r)
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}

	c, err := s.svc.Categories.Create(r.Context(), accountID, kind, p.Get("name"))
	if err != nil {
		fail(w, r, log.OpCreate, err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(c).Write(w)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	accountID, kind, err := accountAndKind(r)
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}

	c, err := s.svc.Categories.Rename(r.Context(), accountID, kind, id, p.Get("name"))
	if err != nil {
		fail(w, r, log.OpUpdate, err)
		return
	}
	NewResponse().JSON(c).Write(w)
}

// handleDeleteCategory refuses categories still referenced by transactions.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	accountID, kind, err := accountAndKind(r)
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}

	if err := s.svc.Categories.Delete(r.Context(), accountID, kind, id); err != nil {
		fail(w, r, log.OpDelete, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
