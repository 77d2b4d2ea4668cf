package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"saldo/internal/core"
	"saldo/internal/sheets"
)

// maxConcurrentRanges bounds parallel Values.Get calls per import.
const maxConcurrentRanges = 4

// api is the slice of the Sheets API the reader needs.
type api interface {
	TabTitles(ctx context.Context, spreadsheetID string) ([]string, error)
	Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
}

// Reader reads an import batch from a Google spreadsheet.
type Reader struct {
	api           api
	spreadsheetID string
}

var _ sheets.BatchReader = (*Reader)(nil)

func NewReader(svc *gsheet.Service, spreadsheetID string) *Reader {
	return &Reader{api: serviceAPI{svc: svc}, spreadsheetID: spreadsheetID}
}

func (r *Reader) ReadBatch(ctx context.Context) (core.ImportBatch, error) {
	if strings.TrimSpace(r.spreadsheetID) == "" {
		return core.ImportBatch{}, fmt.Errorf("%w: missing spreadsheet id", core.ErrValidation)
	}

	titles, err := r.api.TabTitles(ctx, r.spreadsheetID)
	if err != nil {
		return core.ImportBatch{}, fmt.Errorf("read spreadsheet %s: %w", r.spreadsheetID, err)
	}
	present := make(map[string]bool, len(titles))
	for _, t := range titles {
		present[t] = true
	}
	if !present[sheets.SheetIncomes] && !present[sheets.SheetExpenses] {
		return core.ImportBatch{}, fmt.Errorf("%w: spreadsheet has neither %s nor %s tab",
			core.ErrValidation, sheets.SheetIncomes, sheets.SheetExpenses)
	}

	var wanted []string
	for _, name := range append([]string{sheets.SheetIncomes, sheets.SheetExpenses}, sheets.OptionalTabs...) {
		if present[name] {
			wanted = append(wanted, name)
		}
	}

	// Each goroutine owns one slot.
	results := make([][][]string, len(wanted))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentRanges)
	for i, name := range wanted {
		i, name := i, name
		g.Go(func() error {
			values, err := r.api.Values(gctx, r.spreadsheetID, tabRange(name))
			if err != nil {
				return fmt.Errorf("read tab %s: %w", name, err)
			}
			results[i] = toRows(values)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return core.ImportBatch{}, err
	}

	var tabs sheets.Tabs
	for i, name := range wanted {
		rows := results[i]
		if rows == nil {
			rows = [][]string{}
		}
		tabs.Set(name, rows)
	}

	batch, err := sheets.ParseBatch(tabs)
	if err != nil {
		return core.ImportBatch{}, err
	}

	slog.InfoContext(ctx, "Spreadsheet parsed",
		"spreadsheet_id", r.spreadsheetID,
		"tabs", len(wanted),
		"incomes", len(batch.Incomes),
		"expenses", len(batch.Expenses))
	return batch, nil
}

// tabRange addresses a whole tab in A1 notation.
func tabRange(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toRows(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = toStrings(row)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

type serviceAPI struct {
	svc *gsheet.Service
}

func (s serviceAPI) TabTitles(ctx context.Context, spreadsheetID string) ([]string, error) {
	ss, err := s.svc.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			titles = append(titles, sh.Properties.Title)
		}
	}
	return titles, nil
}

func (s serviceAPI) Values(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Credentials selects the service account used to reach the Sheets API.
// Inline JSON wins over the file path.
type Credentials struct {
	JSON string
	File string
}

// NewService builds a read-only Sheets service from service account
// credentials, falling back to GOOGLE_APPLICATION_CREDENTIALS.
func NewService(ctx context.Context, creds Credentials) (*gsheet.Service, error) {
	credentialsJSON, err := creds.load(ctx)
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created")
	return service, nil
}

func (c Credentials) load(ctx context.Context) ([]byte, error) {
	inline := strings.TrimSpace(c.JSON)
	file := strings.TrimSpace(c.File)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.DebugContext(ctx, "Using inline service account credentials")
		return []byte(inline), nil
	case file != "":
		slog.DebugContext(ctx, "Reading service account credentials", "path", file)
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}
