package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"saldo/internal/amqp"
	"saldo/internal/core"
	"saldo/internal/storage"
)

// OverdueSweeperConfig holds configuration for the overdue sweeper
type OverdueSweeperConfig struct {
	// Interval is how often planned transactions are checked (default: 1h)
	Interval time.Duration
}

func DefaultOverdueSweeperConfig() OverdueSweeperConfig {
	return OverdueSweeperConfig{Interval: time.Hour}
}

// OverdueSweeper periodically persists the overdue flag of planned
// transactions whose date has passed, so the flag stays set even if the
// transaction is later moved into the future.
type OverdueSweeper struct {
	store    storage.Store
	notifier *Notifier
	config   OverdueSweeperConfig
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewOverdueSweeper(store storage.Store, notifier *Notifier, config OverdueSweeperConfig) *OverdueSweeper {
	if config.Interval <= 0 {
		config.Interval = DefaultOverdueSweeperConfig().Interval
	}
	return &OverdueSweeper{
		store:    store,
		notifier: notifier,
		config:   config,
		now:      time.Now,
	}
}

// Start begins the sweep loop. Returns an error if already running.
func (s *OverdueSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("overdue sweeper is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	go s.runLoop(ctx)

	slog.InfoContext(ctx, "Overdue sweeper started", "interval", s.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
// Only the first call after Start signals the loop.
func (s *OverdueSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		slog.InfoContext(ctx, "Overdue sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Overdue sweeper stop timed out")
		return ctx.Err()
	}
}

func (s *OverdueSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *OverdueSweeper) runLoop(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.sweep(ctx)

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *OverdueSweeper) sweep(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "Overdue sweep failed", "error", err)
	}
}

// RunOnce marks every planned transaction dated on or before today as
// overdue and returns the accounts that changed.
func (s *OverdueSweeper) RunOnce(ctx context.Context) ([]int64, error) {
	ref := core.DateOf(s.now())

	var accounts []int64
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		changed, err := tx.MarkOverdue(ctx, ref)
		accounts = changed
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sweep overdue: %w", err)
	}

	if len(accounts) > 0 {
		slog.InfoContext(ctx, "Planned transactions became overdue",
			"reference", ref.String(),
			"accounts", len(accounts))
	}
	for _, id := range accounts {
		s.notifier.Committed(ctx, amqp.NewLedgerEvent(id, amqp.EventOverdue))
	}
	return accounts, nil
}
