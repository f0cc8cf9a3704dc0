package payment

import (
	"context"
	"time"

	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payee"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/worker"
)

// StatusCondition guards a status write. The update applies only while the
// row still has Status and, when set, no relocation claim and no approval.
type StatusCondition struct {
	Status     string
	Unclaimed  bool
	Unapproved bool
}

type StatusUpdate struct {
	Status         string
	FailureReason  *string
	ProcessorState *string
}

// RepositoryAPI is the transaction store. Every write that decides who owns a
// transaction is a conditional update reporting whether a row changed.
type RepositoryAPI interface {
	Create(ctx context.Context, tx *transaction.Transaction) error
	GetByID(ctx context.Context, id int64) (*transaction.Transaction, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error)

	SetExternalID(ctx context.Context, id int64, externalID string) (bool, error)
	MarkApproved(ctx context.Context, id int64, processorState string, at time.Time) (bool, error)
	MarkFeeRelocated(ctx context.Context, id int64, at time.Time) (bool, error)
	UpdateStatusIf(ctx context.Context, id int64, cond StatusCondition, update StatusUpdate) (bool, error)

	ClaimRelocation(ctx context.Context, id int64, at time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, id int64, startedAt time.Time) (bool, error)
	ReopenForReplay(ctx context.Context, id int64, staleBefore, at time.Time) (bool, error)

	ListStuckApproved(ctx context.Context, approvedBefore time.Time, limit int) ([]*transaction.Transaction, error)
	ListUnconfirmed(ctx context.Context, createdBefore time.Time, limit int) ([]*transaction.Transaction, error)
}

type ServiceAPI interface {
	CreatePayment(ctx context.Context, dto CreatePaymentDTO) (*CreatePaymentResponse, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error)
}

type PayeeLookup interface {
	GetByID(ctx context.Context, id int64) (*payee.Payee, error)
}

// PayoutCallbackHandler receives callbacks whose reference is a payout id.
type PayoutCallbackHandler interface {
	ApplyCallback(ctx context.Context, payoutID int64, n *processor.Notification) error
}

type JobSubmitter interface {
	Submit(job worker.Job) error
}

// claimTime is the relocation claim stamp. Stored values must compare equal
// after a database round trip, so it is kept at microsecond precision.
func claimTime(now time.Time) time.Time {
	return now.UTC().Truncate(time.Microsecond)
}
