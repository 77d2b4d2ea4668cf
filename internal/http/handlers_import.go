package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/log"
	"saldo/internal/sheets"
	"saldo/internal/sheets/xlsx"
)

const maxUploadBytes = 10 << 20

// importSource is either an uploaded workbook or a Google spreadsheet id.
type importSource struct {
	file          multipart.File
	spreadsheetID string
}

func readImportSource(w http.ResponseWriter, r *http.Request) (importSource, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return importSource{}, fmt.Errorf("%w: malformed upload: %v", core.ErrValidation, err)
		}
		if id := strings.TrimSpace(r.FormValue("spreadsheet_id")); id != "" {
			return importSource{spreadsheetID: id}, nil
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return importSource{}, fmt.Errorf("%w: missing file", core.ErrValidation)
		}
		return importSource{file: file}, nil
	}

	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return importSource{}, err
	}
	if id := p.Get("spreadsheet_id"); id != "" {
		return importSource{spreadsheetID: id}, nil
	}
	return importSource{}, fmt.Errorf("%w: expected a file or a spreadsheet_id", core.ErrValidation)
}

// handleImport reconciles a spreadsheet into the account. With a queue the
// work is handed to the worker and 202 is returned; otherwise it runs inline.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID, err := pathID(r, "accountID")
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}
	src, err := readImportSource(w, r)
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}
	if src.file != nil {
		defer src.file.Close()
	}
	if src.spreadsheetID != "" && s.svc.Google == nil {
		fail(w, r, log.OpImport, fmt.Errorf("%w: spreadsheet imports are not configured", core.ErrValidation))
		return
	}

	if s.svc.Queue != nil {
		s.enqueueImport(w, r, accountID, src)
		return
	}

	var reader sheets.BatchReader
	if src.file != nil {
		reader = xlsx.NewReader(src.file)
	} else {
		reader = s.svc.Google(src.spreadsheetID)
	}
	batch, err := reader.ReadBatch(ctx)
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}

	res, err := s.svc.Importer.Import(ctx, accountID, batch)
	if err != nil {
		fail(w, r, log.OpImport, err)
		return
	}
	NewResponse().JSON(res).Write(w)
}

func (s *Server) enqueueImport(w http.ResponseWriter, r *http.Request, accountID int64, src importSource) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	var job *amqp.ImportJob
	path := ""
	if src.file != nil {
		var err error
		if path, err = s.saveUpload(src.file); err != nil {
			fail(w, r, log.OpImport, err)
			return
		}
		job = amqp.NewXLSXImportJob(accountID, path)
	} else {
		job = amqp.NewGoogleImportJob(accountID, src.spreadsheetID)
	}

	if err := s.svc.Queue.PublishImportJob(ctx, job); err != nil {
		if path != "" {
			_ = os.Remove(path)
		}
		logger.ErrorContext(ctx, "Failed to queue import",
			log.NewFields().WithOperation(log.OpImport).WithAccount(accountID).
				WithError(err, log.ErrorTypeInternal).ToSlice()...)
		ErrorResponse(http.StatusServiceUnavailable, "import queue unavailable").Write(w)
		return
	}

	logger.InfoContext(ctx, "Import queued",
		append(log.NewFields().WithOperation(log.OpImport).WithAccount(accountID).ToSlice(),
			log.FieldJobID, job.ID, "source", job.Source)...)
	NewResponse().Status(http.StatusAccepted).
		JSON(map[string]string{"job_id": job.ID, "status": "queued"}).
		Write(w)
}

// saveUpload copies the upload into the import directory under a fresh name.
func (s *Server) saveUpload(file io.Reader) (string, error) {
	if s.svc.ImportDir == "" {
		return "", errors.New("import directory not configured")
	}
	if err := os.MkdirAll(s.svc.ImportDir, 0o750); err != nil {
		return "", fmt.Errorf("create import directory: %w", err)
	}

	path := filepath.Join(s.svc.ImportDir, uuid.NewString()+".xlsx")
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("store upload: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("store upload: %w", err)
	}
	return path, nil
}
