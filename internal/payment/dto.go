package payment

import (
	"time"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/common/validation"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
)

type CreatePaymentDTO struct {
	IdempotencyKey string `json:"idempotency_key"`
	AmountKop      int64  `json:"amount_kop"`
	PaymentMethod  string `json:"payment_method"`
	LinkID         string `json:"link_id"`
	RecipientID    int64  `json:"recipient_id"`
	Description    string `json:"description,omitempty"`
}

func (d *CreatePaymentDTO) Validate() error {
	v := validation.NewValidator()

	v.Field("idempotency_key", d.IdempotencyKey).Required().MaxLength(128)
	v.Field("amount_kop", d.AmountKop).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	v.Field("payment_method", d.PaymentMethod).Required().
		OneOf([]string{transaction.MethodCard, transaction.MethodSBP}, errors.ErrCodeInvalidPaymentMethod)
	v.Field("recipient_id", d.RecipientID).Required().MinInt(1, errors.ErrCodeValidationFailed)
	v.Field("description", d.Description).MaxLength(255)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type PaymentView struct {
	ID             int64      `json:"id"`
	IdempotencyKey string     `json:"idempotency_key"`
	AmountKop      int64      `json:"amount_kop"`
	FeeKop         *int64     `json:"fee_kop,omitempty"`
	PaymentMethod  string     `json:"payment_method"`
	LinkID         string     `json:"link_id,omitempty"`
	RecipientID    int64      `json:"recipient_id"`
	ExternalID     *string    `json:"external_id,omitempty"`
	Status         string     `json:"status"`
	FailureReason  *string    `json:"failure_reason,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type CreatePaymentResponse struct {
	Payment     PaymentView `json:"payment"`
	RedirectURL string      `json:"redirect_url,omitempty"`
	SBPLink     string      `json:"sbp_link,omitempty"`
}

func ToView(tx *transaction.Transaction) PaymentView {
	return PaymentView{
		ID:             tx.ID,
		IdempotencyKey: tx.IdempotencyKey,
		AmountKop:      tx.AmountKop,
		FeeKop:         tx.FeeKop,
		PaymentMethod:  tx.PaymentMethod,
		LinkID:         tx.LinkID,
		RecipientID:    tx.RecipientID,
		ExternalID:     tx.ExternalID,
		Status:         tx.Status,
		FailureReason:  tx.FailureReason,
		ApprovedAt:     tx.ApprovedAt,
		CreatedAt:      tx.CreatedAt,
		UpdatedAt:      tx.UpdatedAt,
	}
}
