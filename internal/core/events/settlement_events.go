package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeBalanceChanged    = "balance.changed"
	EventTypeTransactionFailed = "transaction.failed"
	EventTypePayoutCompleted   = "payout.completed"
	EventTypePayoutRejected    = "payout.rejected"
)

const (
	BalanceReasonPayment    = "payment"
	BalanceReasonRelocation = "relocation"
	BalanceReasonPayout     = "payout"
)

type BalanceChangedEvent struct {
	BaseEvent
	PayeeID   int64  `json:"payee_id"`
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
	AmountKop int64  `json:"amount_kop"`
}

func NewBalanceChangedEvent(payeeID int64, reason, reference string, amountKop int64) *BalanceChangedEvent {
	return &BalanceChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeBalanceChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payee_id":   payeeID,
				"reason":     reason,
				"reference":  reference,
				"amount_kop": amountKop,
			},
		},
		PayeeID:   payeeID,
		Reason:    reason,
		Reference: reference,
		AmountKop: amountKop,
	}
}

type TransactionFailedEvent struct {
	BaseEvent
	TransactionID int64  `json:"transaction_id"`
	PayeeID       int64  `json:"payee_id"`
	Reason        string `json:"reason"`
}

func NewTransactionFailedEvent(transactionID, payeeID int64, reason string) *TransactionFailedEvent {
	return &TransactionFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeTransactionFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"payee_id":       payeeID,
				"reason":         reason,
			},
		},
		TransactionID: transactionID,
		PayeeID:       payeeID,
		Reason:        reason,
	}
}

type PayoutEvent struct {
	BaseEvent
	PayoutID  int64  `json:"payout_id"`
	PayeeID   int64  `json:"payee_id"`
	AmountKop int64  `json:"amount_kop"`
	Reason    string `json:"reason,omitempty"`
}

func NewPayoutCompletedEvent(payoutID, payeeID, amountKop int64) *PayoutEvent {
	return newPayoutEvent(EventTypePayoutCompleted, payoutID, payeeID, amountKop, "")
}

func NewPayoutRejectedEvent(payoutID, payeeID, amountKop int64, reason string) *PayoutEvent {
	return newPayoutEvent(EventTypePayoutRejected, payoutID, payeeID, amountKop, reason)
}

func newPayoutEvent(eventType string, payoutID, payeeID, amountKop int64, reason string) *PayoutEvent {
	return &PayoutEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      eventType,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payout_id":  payoutID,
				"payee_id":   payeeID,
				"amount_kop": amountKop,
				"reason":     reason,
			},
		},
		PayoutID:  payoutID,
		PayeeID:   payeeID,
		AmountKop: amountKop,
		Reason:    reason,
	}
}
