package payout

import (
	"time"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/common/validation"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payout"
)

type CreatePayoutDTO struct {
	PayeeID   int64 `json:"payee_id"`
	AmountKop int64 `json:"amount_kop"`
}

func (d *CreatePayoutDTO) Validate() error {
	v := validation.NewValidator()
	v.Field("payee_id", d.PayeeID).Required().MinInt(1, errors.ErrCodeValidationFailed)
	v.Field("amount_kop", d.AmountKop).Required().MinInt(1, errors.ErrCodeInvalidAmount)

	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type CardPayoutDTO struct {
	Pan         string `json:"pan"`
	Description string `json:"description,omitempty"`
}

func (d *CardPayoutDTO) Validate() error {
	if appErr := validation.ValidatePan(d.Pan); appErr != nil {
		return appErr
	}
	return nil
}

type SBPPayoutDTO struct {
	Phone  string `json:"phone"`
	BankID string `json:"bank_id"`
}

func (d *SBPPayoutDTO) Validate() error {
	if appErr := validation.ValidatePhone(d.Phone); appErr != nil {
		return appErr
	}
	v := validation.NewValidator()
	v.Field("bank_id", d.BankID).Required().MaxLength(64)
	if appErr := v.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type PayoutView struct {
	ID              int64      `json:"id"`
	PayeeID         int64      `json:"payee_id"`
	AmountKop       int64      `json:"amount_kop"`
	FeeKop          *int64     `json:"fee_kop,omitempty"`
	Status          string     `json:"status"`
	Method          *string    `json:"method,omitempty"`
	ExternalID      *string    `json:"external_id,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type PagePayoutResponse struct {
	Payout      PayoutView `json:"payout"`
	RedirectURL string     `json:"redirect_url"`
}

func ToView(p *payout.PayoutRequest) PayoutView {
	return PayoutView{
		ID:              p.ID,
		PayeeID:         p.UserID,
		AmountKop:       p.AmountKop,
		FeeKop:          p.FeeKop,
		Status:          p.Status,
		Method:          p.Method,
		ExternalID:      p.ExternalID,
		RejectionReason: p.RejectionReason,
		CompletedAt:     p.CompletedAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}
