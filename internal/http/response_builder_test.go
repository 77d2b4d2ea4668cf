package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"saldo/internal/core"
)

func TestResponseBuilderJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().Status(http.StatusCreated).Header("X-Test", "1").JSON(map[string]int{"id": 4}).Write(rec)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != contentTypeJSON {
		t.Errorf("content type = %q", ct)
	}
	if rec.Header().Get("X-Test") != "1" {
		t.Error("custom header missing")
	}
	if body := strings.TrimSpace(rec.Body.String()); body != `{"id":4}` {
		t.Errorf("body = %s", body)
	}
}

func TestResponseBuilderAttachment(t *testing.T) {
	rec := httptest.NewRecorder()
	NewResponse().Body([]byte("data"), "text/plain").Attachment("a.txt").Write(rec)

	if rec.Header().Get("Content-Disposition") != `attachment; filename="a.txt"` {
		t.Errorf("disposition = %q", rec.Header().Get("Content-Disposition"))
	}
	if rec.Header().Get("Content-Length") != "4" || rec.Body.String() != "data" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		err  error
		want int
		msg  string
	}{
		{fmt.Errorf("get income 4: %w", core.ErrNotFound), http.StatusNotFound, "get income 4: not found"},
		{core.ErrInvalidDate, http.StatusUnprocessableEntity, "validation failed: invalid date"},
		{fmt.Errorf("%w: in use", core.ErrConflict), http.StatusConflict, "conflict: in use"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		FromError(tt.err).Write(rec)
		if rec.Code != tt.want {
			t.Errorf("%v: status = %d, want %d", tt.err, rec.Code, tt.want)
		}
		if !strings.Contains(rec.Body.String(), `"error":"`+tt.msg+`"`) {
			t.Errorf("%v: body = %s", tt.err, rec.Body.String())
		}
	}
}
