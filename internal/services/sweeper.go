package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper closes abandoned checkouts on a cron schedule.
type Sweeper struct {
	cron       *cron.Cron
	payments   PaymentService
	storage    StorageService
	staleAfter time.Duration
	now        clock
}

func NewSweeper(payments PaymentService, storage StorageService, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		cron:       cron.New(),
		payments:   payments,
		storage:    storage,
		staleAfter: staleAfter,
		now:        systemClock,
	}
}

func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("sweeper started", "schedule", schedule, "stale_after", s.staleAfter)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("sweeper stopped")
}

func (s *Sweeper) Sweep(ctx context.Context) {
	abandoned, err := s.payments.AbandonStale(ctx, s.now().Add(-s.staleAfter))
	if err != nil {
		slog.Error("stale payment sweep failed", "error", err)
	}
	cancelled, err := s.storage.CancelOverdue(ctx)
	if err != nil {
		slog.Error("overdue storage sweep failed", "error", err)
	}
	slog.Debug("sweep finished", "abandoned_payments", abandoned, "cancelled_storage", cancelled)
}
