package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	paymentpkg "github.com/frahmantamala/pocket-settlement/internal/payment"
)

const maxFailureReasonLength = 255

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{
		db: db,
	}
}

var _ paymentpkg.RepositoryAPI = (*TransactionRepository)(nil)

func (r *TransactionRepository) Create(ctx context.Context, t *transaction.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := r.db.WithContext(ctx).First(&t, id).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	var t transaction.Transaction
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&t).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TransactionRepository) SetExternalID(ctx context.Context, id int64, externalID string) (bool, error) {
	res := r.model(ctx).
		Where("id = ? AND external_id IS NULL", id).
		Update("external_id", externalID)
	return res.RowsAffected == 1, res.Error
}

func (r *TransactionRepository) MarkApproved(ctx context.Context, id int64, processorState string, at time.Time) (bool, error) {
	res := r.model(ctx).
		Where("id = ? AND status = ? AND approved_at IS NULL", id, transaction.StatusPending).
		Updates(map[string]interface{}{
			"approved_at":     at,
			"processor_state": processorState,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *TransactionRepository) MarkFeeRelocated(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.model(ctx).
		Where("id = ? AND fee_relocated_at IS NULL", id).
		Update("fee_relocated_at", at)
	return res.RowsAffected == 1, res.Error
}

func (r *TransactionRepository) UpdateStatusIf(ctx context.Context, id int64, cond paymentpkg.StatusCondition, update paymentpkg.StatusUpdate) (bool, error) {
	q := r.model(ctx).Where("id = ? AND status = ?", id, cond.Status)
	if cond.Unclaimed {
		q = q.Where("relocate_started_at IS NULL")
	}
	if cond.Unapproved {
		q = q.Where("approved_at IS NULL")
	}

	updates := map[string]interface{}{"status": update.Status}
	if update.FailureReason != nil {
		updates["failure_reason"] = truncate(*update.FailureReason, maxFailureReasonLength)
	}
	if update.ProcessorState != nil {
		updates["processor_state"] = *update.ProcessorState
	}

	res := q.Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// ClaimRelocation is the single conditional write that makes relocation
// exclusive: only one caller can move relocate_started_at off NULL.
func (r *TransactionRepository) ClaimRelocation(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.model(ctx).
		Where("id = ? AND status = ? AND relocate_started_at IS NULL", id, transaction.StatusPending).
		Update("relocate_started_at", at)
	return res.RowsAffected == 1, res.Error
}

func (r *TransactionRepository) ReleaseClaim(ctx context.Context, id int64, startedAt time.Time) (bool, error) {
	res := r.model(ctx).
		Where("id = ? AND status = ? AND relocate_started_at = ?", id, transaction.StatusPending, startedAt).
		Update("relocate_started_at", nil)
	return res.RowsAffected == 1, res.Error
}

// ReopenForReplay claims an approved transaction whose relocation failed or
// whose claim is older than staleBefore, putting it back to PENDING.
func (r *TransactionRepository) ReopenForReplay(ctx context.Context, id int64, staleBefore, at time.Time) (bool, error) {
	res := r.model(ctx).
		Where("id = ? AND approved_at IS NOT NULL", id).
		Where("status = ? OR (status = ? AND (relocate_started_at IS NULL OR relocate_started_at < ?))",
			transaction.StatusFailed, transaction.StatusPending, staleBefore).
		Updates(map[string]interface{}{
			"status":              transaction.StatusPending,
			"relocate_started_at": at,
			"failure_reason":      nil,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *TransactionRepository) ListStuckApproved(ctx context.Context, approvedBefore time.Time, limit int) ([]*transaction.Transaction, error) {
	var out []*transaction.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND approved_at IS NOT NULL AND approved_at < ? AND relocate_started_at IS NULL",
			transaction.StatusPending, approvedBefore).
		Order("approved_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *TransactionRepository) ListUnconfirmed(ctx context.Context, createdBefore time.Time, limit int) ([]*transaction.Transaction, error) {
	var out []*transaction.Transaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND approved_at IS NULL AND external_id IS NOT NULL AND created_at < ?",
			transaction.StatusPending, createdBefore).
		Order("created_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *TransactionRepository) model(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&transaction.Transaction{})
}

func notFound(err error) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrTransactionNotFound
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
