package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

type SweeperConfig struct {
	Interval        time.Duration
	MinAge          time.Duration
	ReconcileMinAge time.Duration
	BatchSize       int
}

type SweepResult struct {
	Resettled  int `json:"resettled"`
	Skipped    int `json:"skipped"`
	Reconciled int `json:"reconciled"`
	Errors     int `json:"errors"`
}

// Sweeper picks up what callbacks alone leave behind: approved payments that
// were never relocated (no payee pocket at the time, queue full, shutdown)
// and payments whose callback never arrived.
type Sweeper struct {
	repo       RepositoryAPI
	settlement *Settlement
	gateway    processor.Gateway
	config     SweeperConfig
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweeper(repo RepositoryAPI, settlement *Settlement, gateway processor.Gateway, config SweeperConfig, logger *slog.Logger) *Sweeper {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	return &Sweeper{
		repo:       repo,
		settlement: settlement,
		gateway:    gateway,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
}

// Run sweeps every Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("settlement sweeper started", "interval", s.config.Interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("settlement sweeper stopped")
			return
		case <-ticker.C:
			result, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("settlement sweep failed", "error", err)
				continue
			}
			if result.Resettled+result.Reconciled+result.Errors > 0 {
				s.logger.Info("settlement sweep finished",
					"resettled", result.Resettled,
					"skipped", result.Skipped,
					"reconciled", result.Reconciled,
					"errors", result.Errors)
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (*SweepResult, error) {
	now := s.now().UTC()
	result := &SweepResult{}

	stuck, err := s.repo.ListStuckApproved(ctx, now.Add(-s.config.MinAge), s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stuck transactions: %w", err)
	}
	for _, tx := range stuck {
		outcome, err := s.settlement.Resettle(ctx, tx)
		if err != nil {
			result.Errors++
			s.logger.Error("failed to resettle transaction", "error", err, "transaction_id", tx.ID)
			continue
		}
		switch outcome {
		case OutcomeCompleted, OutcomeScheduled:
			result.Resettled++
		case OutcomeSkipped:
			result.Skipped++
		}
	}

	unconfirmed, err := s.repo.ListUnconfirmed(ctx, now.Add(-s.config.ReconcileMinAge), s.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list unconfirmed transactions: %w", err)
	}
	for _, tx := range unconfirmed {
		status, err := s.gateway.OrderStatus(ctx, *tx.ExternalID)
		if err != nil {
			result.Errors++
			s.logger.Warn("order status unavailable", "error", err, "transaction_id", tx.ID, "order_id", *tx.ExternalID)
			continue
		}
		if !status.Approved {
			// unpaid orders stay pending; the payer may still complete them
			continue
		}

		n := &processor.Notification{
			Reference:  tx.IdempotencyKey,
			OrderID:    status.ID,
			State:      status.State,
			OrderState: status.OrderState,
		}
		if err := s.settlement.Apply(ctx, tx, n); err != nil {
			result.Errors++
			s.logger.Error("failed to apply reconciled order status", "error", err, "transaction_id", tx.ID)
			continue
		}
		s.logger.Info("missed callback reconciled from order status", "transaction_id", tx.ID, "order_id", status.ID)
		result.Reconciled++
	}

	return result, nil
}
