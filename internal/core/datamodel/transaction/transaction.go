package transaction

import "time"

const (
	StatusPending = "PENDING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

const (
	MethodCard = "card"
	MethodSBP  = "sbp"
)

type Transaction struct {
	ID                int64      `gorm:"primaryKey"`
	IdempotencyKey    string     `gorm:"column:idempotency_key;not null;uniqueIndex"`
	AmountKop         int64      `gorm:"column:amount_kop;not null"`
	FeeKop            *int64     `gorm:"column:fee_kop"`
	PaymentMethod     string     `gorm:"column:payment_method;not null"`
	LinkID            string     `gorm:"column:link_id"`
	RecipientID       int64      `gorm:"column:recipient_id;not null;index"`
	ExternalID        *string    `gorm:"column:external_id"`
	OrderSdRef        *string    `gorm:"column:order_sd_ref"`
	Status            string     `gorm:"column:status;not null"`
	RelocateStartedAt *time.Time `gorm:"column:relocate_started_at"`
	ApprovedAt        *time.Time `gorm:"column:approved_at"`
	FeeRelocatedAt    *time.Time `gorm:"column:fee_relocated_at"`
	FailureReason     *string    `gorm:"column:failure_reason"`
	ProcessorState    *string    `gorm:"column:processor_state"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) IsTerminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

func (t *Transaction) Fee() int64 {
	if t.FeeKop == nil {
		return 0
	}
	return *t.FeeKop
}

func (t *Transaction) TemporaryPocket() string {
	if t.OrderSdRef == nil {
		return ""
	}
	return *t.OrderSdRef
}
