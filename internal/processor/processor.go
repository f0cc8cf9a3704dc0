// Package processor talks to the external payment processor that holds the
// payee pockets (sd_ref sub-accounts).
package processor

import "context"

// Gateway is every remote operation the settlement engine needs. The real
// HTTP client and the in-memory stub both implement it; one is chosen at
// process start.
type Gateway interface {
	Register(ctx context.Context, req RegisterRequest) (*Order, error)
	PayInURL(req PayInRequest) string
	PayInSBP(ctx context.Context, req PayInRequest) (*SBPPayment, error)
	OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)
	Relocate(ctx context.Context, req RelocateRequest) (*OperationResult, error)
	PayOutCard(ctx context.Context, req CardPayOutRequest) (*OperationResult, error)
	PayOutPageURL(orderID, sdRef string) string
	Balance(ctx context.Context, sdRef string) (int64, error)
	SBPPayOutCheck(ctx context.Context, req SBPPayOutRequest) (string, error)
	SBPPayOut(ctx context.Context, checkID string) (*OperationResult, error)
}

type RegisterRequest struct {
	Amount      int64
	Reference   string
	Description string
	Fee         int64
	SuccessURL  string
	FailURL     string
	NotifyURL   string
	SdRef       string
}

type Order struct {
	ID string
}

type PayInRequest struct {
	OrderID string
	Amount  int64
	SdRef   string
}

type SBPPayment struct {
	OrderID string
	Link    string
}

type OrderStatus struct {
	ID         string
	Reference  string
	State      string
	OrderState string
	Approved   bool
}

type RelocateRequest struct {
	OrderID   string
	FromSdRef string
	ToSdRef   string
}

type CardPayOutRequest struct {
	SdRef       string
	Pan         string
	Amount      int64
	Description string
	Fee         int64
}

type SBPPayOutRequest struct {
	SdRef  string
	Amount int64
	Phone  string
	BankID string
}

type OperationResult struct {
	ID         string
	State      string
	OrderState string
}
