package processor

import (
	"errors"
	"strings"

	"github.com/frahmantamala/pocket-settlement/internal/signer"
)

var ErrInvalidSignature = errors.New("processor: notification signature mismatch")

// Notification is an inbound processor callback after signature checks.
type Notification struct {
	Reference   string
	OperationID string
	OrderID     string
	State       string
	OrderState  string
	Code        string
	Description string
	Message     string
}

// ParseNotification verifies the signature over every tag value in document
// order, excluding the signature tag, and returns the typed callback.
func ParseNotification(body []byte, secret string) (*Notification, error) {
	doc := ParseDocument(body)

	signature, ok := doc.Get("signature")
	if !ok || !signer.Verify(doc.ValuesExcept("signature"), secret, signature) {
		return nil, ErrInvalidSignature
	}

	return &Notification{
		Reference:   doc.Value("reference"),
		OperationID: doc.Value("id"),
		OrderID:     doc.Value("order_id"),
		State:       doc.State(),
		OrderState:  doc.OrderState(),
		Code:        doc.Value("code"),
		Description: doc.Value("description"),
		Message:     doc.Value("message"),
	}, nil
}

func (n *Notification) Approved() bool {
	return n.State == StateApproved || n.OrderState == OrderStateCompleted
}

// StateLabel is the processor state recorded on the local record.
func (n *Notification) StateLabel() string {
	switch {
	case n.State != "" && n.OrderState != "":
		return n.State + "/" + n.OrderState
	case n.State != "":
		return n.State
	default:
		return n.OrderState
	}
}

// FailureReason joins whatever the processor said about a failed operation.
func (n *Notification) FailureReason() string {
	var parts []string
	if n.Code != "" {
		parts = append(parts, "code "+n.Code)
	}
	if n.Description != "" {
		parts = append(parts, n.Description)
	}
	if n.Message != "" && n.Message != n.Description {
		parts = append(parts, n.Message)
	}
	if len(parts) == 0 {
		if label := n.StateLabel(); label != "" {
			return "processor state " + label
		}
		return "processor reported failure"
	}
	return strings.Join(parts, ": ")
}
