package payee

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payee"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, id int64) (*payee.Payee, error)
	RefreshBalance(ctx context.Context, id int64) (*BalanceView, error)
}

type Service struct {
	repo    Repository
	gateway processor.Gateway
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, gateway processor.Gateway, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*payee.Payee, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get payee by id: %w", err)
	}
	return p, nil
}

// RefreshBalance asks the processor for the pocket balance and caches it.
// If the processor is unreachable the cached value is returned marked stale.
func (s *Service) RefreshBalance(ctx context.Context, id int64) (*BalanceView, error) {
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Pocket() == "" {
		return nil, errors.ErrPocketNotAssigned
	}

	balance, err := s.gateway.Balance(ctx, p.Pocket())
	if err != nil {
		if p.PocketBalanceKop == nil {
			return nil, fmt.Errorf("balance for payee %d: %w", id, err)
		}
		s.logger.Warn("processor balance unavailable, serving cached value",
			"payee_id", id,
			"sd_ref", p.Pocket(),
			"error", err)
		return &BalanceView{
			PayeeID:     id,
			SdRef:       p.Pocket(),
			BalanceKop:  *p.PocketBalanceKop,
			RefreshedAt: p.BalanceRefreshedAt,
			Stale:       true,
		}, nil
	}

	now := s.now()
	if err := s.repo.UpdatePocketBalance(ctx, id, balance, now); err != nil {
		s.logger.Error("failed to cache pocket balance", "payee_id", id, "error", err)
	}

	return &BalanceView{
		PayeeID:     id,
		SdRef:       p.Pocket(),
		BalanceKop:  balance,
		RefreshedAt: &now,
	}, nil
}
