package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/importer"
	"saldo/internal/log"
	"saldo/internal/middleware/ratelimit"
	"saldo/internal/middleware/security"
	"saldo/internal/middleware/trace"
	"saldo/internal/report"
	"saldo/internal/services"
	"saldo/internal/sheets"
)

// Importer applies a parsed spreadsheet batch to an account.
type Importer interface {
	Import(ctx context.Context, accountID int64, batch core.ImportBatch) (*importer.Result, error)
}

// ImportQueue hands import jobs to the worker.
type ImportQueue interface {
	PublishImportJob(ctx context.Context, job *amqp.ImportJob) error
}

// SpreadsheetOpener returns a reader for a Google spreadsheet.
type SpreadsheetOpener func(spreadsheetID string) sheets.BatchReader

// Services are the application services behind the API.
type Services struct {
	Incomes    *services.TransactionService
	Expenses   *services.TransactionService
	Categories *services.CategoryService
	Accounts   *services.AccountService
	Reports    *report.Service
	Importer   Importer

	// Queue is optional; without it imports run inside the request.
	Queue ImportQueue
	// ImportDir holds uploads waiting for the worker.
	ImportDir string
	// Google is optional; without it spreadsheet imports are rejected.
	Google SpreadsheetOpener
}

// Options tune the server's middleware.
type Options struct {
	Logger *log.Logger
	// ImportLimit throttles imports per client; zero values use defaults.
	ImportLimit ratelimit.Config
	// TrustedProxies are extra CIDRs allowed to set forwarding headers.
	TrustedProxies []string
}

type Server struct {
	http.Server
	svc      Services
	limiter  *ratelimit.Limiter
	clientIP *security.ClientIP
	trace    *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer wires the router. The caller owns svc's dependencies; Shutdown
// stops the server's own background work.
func NewServer(addr string, svc Services, opts Options) (*Server, error) {
	clientIP, err := security.NewClientIP(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}

	s := &Server{
		svc:      svc,
		limiter:  ratelimit.NewLimiter(opts.ImportLimit),
		clientIP: clientIP,
		trace:    trace.NewMiddleware(clientIP.Extract),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(logger *log.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(log.Middleware(logger.WithComponent(log.ComponentHTTP)))
	r.Use(s.trace.Middleware)
	r.Use(log.RequestIDMiddleware(trace.GetRequestID))
	r.Use(security.Headers(security.DefaultHeadersConfig()))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", handleHealth)

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Delete("/", s.handlePurge)

		r.Route("/incomes", s.transactionRoutes(s.svc.Incomes))
		r.Route("/expenses", s.transactionRoutes(s.svc.Expenses))

		r.Get("/categories/{kind}", s.handleListCategories)
		r.Post("/categories/{kind}", s.handleCreateCategory)
		r.Put("/categories/{kind}/{id}", s.handleRenameCategory)
		r.Delete("/categories/{kind}/{id}", s.handleDeleteCategory)

		r.Get("/ledger", s.handleLedger)
		r.Get("/entries", s.handleEntries)
		r.Get("/history", s.handleHistory)
		r.Get("/export", s.handleExport)

		r.With(s.limiter.Middleware(s.clientIP.Extract, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "too many imports, try again later").Write(w)
		})).Post("/import", s.handleImport)
	})

	return r
}

func (s *Server) transactionRoutes(svc *services.TransactionService) func(chi.Router) {
	h := transactionHandlers{svc: svc}
	return func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	}
}

// Shutdown stops the limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

// fail logs err when it is not a client error and writes its response.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.NewFields().WithOperation(op).WithError(err, log.ErrorTypeInternal).ToSlice()...)
	}
	FromError(err).Write(w)
}

// orEmpty keeps empty lists encoding as [] rather than null.
func orEmpty[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
