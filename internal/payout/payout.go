// Package payout issues transfers from a payee pocket to a bank card.
package payout

import (
	"context"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payee"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

// Fields are the optional columns written together with a status change.
type Fields struct {
	ExternalID      *string
	Method          *string
	RejectionReason *string
	CompletedAt     *time.Time
}

type RepositoryAPI interface {
	Create(ctx context.Context, p *payout.PayoutRequest) error
	GetByID(ctx context.Context, id int64) (*payout.PayoutRequest, error)
	// Transition moves the payout to `to` only while its status is one of
	// `from`. It reports whether this call made the change.
	Transition(ctx context.Context, id int64, from []string, to string, fields Fields) (bool, error)
}

type ServiceAPI interface {
	Create(ctx context.Context, dto CreatePayoutDTO) (*payout.PayoutRequest, error)
	GetByID(ctx context.Context, id int64) (*payout.PayoutRequest, error)
	SendToCard(ctx context.Context, id int64, dto CardPayoutDTO) (*payout.PayoutRequest, error)
	StartPagePayout(ctx context.Context, id int64) (*PagePayoutResponse, error)
	SendSBP(ctx context.Context, id int64, dto SBPPayoutDTO) (*payout.PayoutRequest, error)
	ApplyCallback(ctx context.Context, payoutID int64, n *processor.Notification) error
}

type PayeeLookup interface {
	GetByID(ctx context.Context, id int64) (*payee.Payee, error)
}
