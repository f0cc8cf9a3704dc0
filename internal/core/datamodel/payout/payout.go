package payout

import "time"

const (
	StatusCreated    = "CREATED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusRejected   = "REJECTED"
)

const (
	MethodCard = "card"
	MethodPage = "page"
	MethodSBP  = "sbp"
)

const MaxRejectionReasonLength = 255

type PayoutRequest struct {
	ID              int64      `gorm:"primaryKey"`
	UserID          int64      `gorm:"column:user_id;not null;index"`
	AmountKop       int64      `gorm:"column:amount_kop;not null"`
	FeeKop          *int64     `gorm:"column:fee_kop"`
	Status          string     `gorm:"column:status;not null"`
	RejectionReason *string    `gorm:"column:rejection_reason"`
	ExternalID      *string    `gorm:"column:external_id"`
	Method          *string    `gorm:"column:method"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (PayoutRequest) TableName() string {
	return "payout_requests"
}

func (p *PayoutRequest) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusRejected
}

func (p *PayoutRequest) Fee() int64 {
	if p.FeeKop == nil {
		return 0
	}
	return *p.FeeKop
}

// TruncateReason cuts s to the rejection_reason column width in runes.
func TruncateReason(s string) string {
	r := []rune(s)
	if len(r) <= MaxRejectionReasonLength {
		return s
	}
	return string(r[:MaxRejectionReasonLength])
}
