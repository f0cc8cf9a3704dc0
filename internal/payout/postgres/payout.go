package postgres

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payout"
	payoutpkg "github.com/frahmantamala/pocket-settlement/internal/payout"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

var _ payoutpkg.RepositoryAPI = (*PayoutRepository)(nil)

func (r *PayoutRepository) Create(ctx context.Context, p *payout.PayoutRequest) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PayoutRepository) GetByID(ctx context.Context, id int64) (*payout.PayoutRequest, error) {
	var p payout.PayoutRequest
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepository) Transition(ctx context.Context, id int64, from []string, to string, fields payoutpkg.Fields) (bool, error) {
	updates := map[string]interface{}{"status": to}
	if fields.ExternalID != nil {
		updates["external_id"] = *fields.ExternalID
	}
	if fields.Method != nil {
		updates["method"] = *fields.Method
	}
	if fields.RejectionReason != nil {
		updates["rejection_reason"] = payout.TruncateReason(*fields.RejectionReason)
	}
	if fields.CompletedAt != nil {
		updates["completed_at"] = *fields.CompletedAt
	}

	res := r.db.WithContext(ctx).
		Model(&payout.PayoutRequest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
