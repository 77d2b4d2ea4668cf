package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/importer"
	"saldo/internal/sheets"
	"saldo/internal/sheets/xlsx"
)

// Importer applies a parsed batch to an account.
type Importer interface {
	Import(ctx context.Context, accountID int64, batch core.ImportBatch) (*importer.Result, error)
}

// SpreadsheetOpener returns a reader for a Google spreadsheet.
type SpreadsheetOpener func(spreadsheetID string) sheets.BatchReader

// ImportWorker handles import jobs taken from the queue.
type ImportWorker struct {
	importer  Importer
	google    SpreadsheetOpener
	importDir string
}

// NewImportWorker builds a worker. Uploaded files are only read from, and
// removed from, importDir. google may be nil when Sheets access is not
// configured; Google jobs are then dropped.
func NewImportWorker(imp Importer, google SpreadsheetOpener, importDir string) *ImportWorker {
	return &ImportWorker{importer: imp, google: google, importDir: importDir}
}

// HandleImportJob reads the job's spreadsheet and imports it. Jobs that can
// never succeed (bad data, missing file, no Sheets access) are logged and
// acknowledged; other failures are returned so the job is redelivered. An
// uploaded file is removed once the job is settled.
func (w *ImportWorker) HandleImportJob(ctx context.Context, job *amqp.ImportJob) error {
	start := time.Now()
	slog.InfoContext(ctx, "Processing import job",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"source", job.Source)

	if err := job.Validate(); err != nil {
		slog.ErrorContext(ctx, "Dropping invalid import job", "job_id", job.ID, "error", err)
		return nil
	}

	reader, err := w.reader(job)
	if err != nil {
		slog.ErrorContext(ctx, "Dropping import job", "job_id", job.ID, "error", err)
		return nil
	}

	res, err := w.run(ctx, job, reader)
	if err != nil {
		if permanent(err) {
			slog.ErrorContext(ctx, "Import job rejected",
				"job_id", job.ID,
				"account_id", job.AccountID,
				"error", err)
			w.cleanup(ctx, job)
			return nil
		}
		return fmt.Errorf("import job %s: %w", job.ID, err)
	}

	w.cleanup(ctx, job)
	slog.InfoContext(ctx, "Import job completed",
		"job_id", job.ID,
		"account_id", job.AccountID,
		"incomes", res.Incomes,
		"expenses", res.Expenses,
		"skipped", res.Skipped,
		"categories_created", res.CategoriesCreated,
		"duration", time.Since(start))
	return nil
}

func (w *ImportWorker) reader(job *amqp.ImportJob) (sheets.BatchReader, error) {
	switch job.Source {
	case amqp.SourceXLSX:
		if err := w.checkPath(job.Path); err != nil {
			return nil, err
		}
		return xlsx.NewFileReader(job.Path), nil
	case amqp.SourceGoogle:
		if w.google == nil {
			return nil, errors.New("google sheets access is not configured")
		}
		return w.google(job.SpreadsheetID), nil
	}
	return nil, fmt.Errorf("unknown source %q", job.Source)
}

// checkPath rejects upload paths that do not resolve inside the import
// directory.
func (w *ImportWorker) checkPath(path string) error {
	if w.importDir == "" {
		return errors.New("import directory is not configured")
	}
	dir, err := filepath.Abs(w.importDir)
	if err != nil {
		return fmt.Errorf("resolve import directory: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", path, err)
	}
	rel, err := filepath.Rel(dir, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q is outside the import directory", path)
	}
	return nil
}

func (w *ImportWorker) run(ctx context.Context, job *amqp.ImportJob, reader sheets.BatchReader) (*importer.Result, error) {
	batch, err := reader.ReadBatch(ctx)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	res, err := w.importer.Import(ctx, job.AccountID, batch)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}
	return res, nil
}

func (w *ImportWorker) cleanup(ctx context.Context, job *amqp.ImportJob) {
	if job.Source != amqp.SourceXLSX {
		return
	}
	if err := os.Remove(job.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.WarnContext(ctx, "Failed to remove uploaded file", "path", job.Path, "error", err)
	}
}

func permanent(err error) bool {
	return errors.Is(err, core.ErrValidation) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, os.ErrNotExist)
}
