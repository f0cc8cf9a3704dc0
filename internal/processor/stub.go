package processor

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

const stubBaseURL = "https://stub.processor.local"

type StubOrder struct {
	ID          string
	Amount      int64
	Fee         int64
	Reference   string
	Description string
	SdRef       string
	State       string
	OrderState  string
}

type Relocation struct {
	OrderID string
	From    string
	To      string
	Amount  int64
}

// Stub is an in-memory processor for local runs and tests. Pocket balances
// may go negative; it does not model settlement timing.
type Stub struct {
	mu sync.Mutex

	nextID   int64
	orders   map[string]*StubOrder
	balances map[string]int64
	checks   map[string]SBPPayOutRequest

	relocations      []Relocation
	relocateFailures []error
	registerFailures []error
	registerCalls    int
	logger           *slog.Logger
}

func NewStub(logger *slog.Logger) *Stub {
	return &Stub{
		nextID:   1,
		orders:   make(map[string]*StubOrder),
		balances: make(map[string]int64),
		checks:   make(map[string]SBPPayOutRequest),
		logger:   logger,
	}
}

// SetNextOrderID makes the next Register return id.
func (s *Stub) SetNextOrderID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = id
}

// FailNextRelocations queues errors returned by the following Relocate calls.
func (s *Stub) FailNextRelocations(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relocateFailures = append(s.relocateFailures, errs...)
}

func (s *Stub) FailNextRegister(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerFailures = append(s.registerFailures, errs...)
}

func (s *Stub) Credit(sdRef string, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[sdRef] += amount
}

func (s *Stub) SetOrderState(orderID, state, orderState string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.State = state
		o.OrderState = orderState
	}
}

func (s *Stub) Relocations() []Relocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Relocation, len(s.relocations))
	copy(out, s.relocations)
	return out
}

func (s *Stub) RegisterCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerCalls
}

func (s *Stub) Order(id string) (StubOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return StubOrder{}, false
	}
	return *o, true
}

func (s *Stub) BalanceOf(sdRef string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[sdRef]
}

func (s *Stub) allocateID() string {
	id := strconv.FormatInt(s.nextID, 10)
	s.nextID++
	return id
}

func (s *Stub) Register(ctx context.Context, req RegisterRequest) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "register", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.registerCalls++
	if len(s.registerFailures) > 0 {
		err := s.registerFailures[0]
		s.registerFailures = s.registerFailures[1:]
		return nil, err
	}

	if req.Amount <= 0 {
		return nil, &Rejection{Code: "133", Description: "invalid amount"}
	}

	id := s.allocateID()
	s.orders[id] = &StubOrder{
		ID:          id,
		Amount:      req.Amount,
		Fee:         req.Fee,
		Reference:   req.Reference,
		Description: req.Description,
		SdRef:       req.SdRef,
		State:       "REGISTERED",
	}

	s.logger.Debug("stub processor: order registered", "order_id", id, "reference", req.Reference, "amount", req.Amount)
	return &Order{ID: id}, nil
}

func (s *Stub) PayInURL(req PayInRequest) string {
	q := url.Values{}
	q.Set("id", req.OrderID)
	q.Set("sd_ref", req.SdRef)
	return stubBaseURL + "/" + pathPayIn + "?" + q.Encode()
}

func (s *Stub) PayInSBP(ctx context.Context, req PayInRequest) (*SBPPayment, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "pay_in_sbp", Err: err}
	}
	return &SBPPayment{OrderID: req.OrderID, Link: "https://qr.nspk.ru/stub-" + req.OrderID}, nil
}

func (s *Stub) OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, &Rejection{Code: "3", Description: "order not found"}
	}
	state := strings.ToUpper(o.State)
	orderState := strings.ToUpper(o.OrderState)
	return &OrderStatus{
		ID:         o.ID,
		Reference:  o.Reference,
		State:      state,
		OrderState: orderState,
		Approved:   state == StateApproved || orderState == OrderStateCompleted,
	}, nil
}

func (s *Stub) Relocate(ctx context.Context, req RelocateRequest) (*OperationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "relocate", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.relocateFailures) > 0 {
		err := s.relocateFailures[0]
		s.relocateFailures = s.relocateFailures[1:]
		s.logger.Debug("stub processor: injected relocation failure", "order_id", req.OrderID, "error", err)
		return nil, err
	}

	o, ok := s.orders[req.OrderID]
	if !ok {
		return nil, &Rejection{Code: "3", Description: "order not found"}
	}
	if o.OrderState == OrderStateCompleted {
		return nil, &Rejection{Code: "130", Description: "order already used"}
	}

	s.balances[req.FromSdRef] -= o.Amount
	s.balances[req.ToSdRef] += o.Amount
	o.State = StateApproved
	o.OrderState = OrderStateCompleted
	s.relocations = append(s.relocations, Relocation{
		OrderID: req.OrderID,
		From:    req.FromSdRef,
		To:      req.ToSdRef,
		Amount:  o.Amount,
	})

	return &OperationResult{ID: req.OrderID, State: StateApproved, OrderState: OrderStateCompleted}, nil
}

func (s *Stub) PayOutCard(ctx context.Context, req CardPayOutRequest) (*OperationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "pay_out_card", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[req.SdRef] < req.Amount+req.Fee {
		return nil, &Rejection{Code: "151", Description: "insufficient funds on pocket"}
	}
	s.balances[req.SdRef] -= req.Amount + req.Fee
	return &OperationResult{ID: s.allocateID(), State: StateApproved, OrderState: OrderStateCompleted}, nil
}

func (s *Stub) PayOutPageURL(orderID, sdRef string) string {
	q := url.Values{}
	q.Set("id", orderID)
	q.Set("sd_ref", sdRef)
	return stubBaseURL + "/" + pathPayOutPage + "?" + q.Encode()
}

func (s *Stub) Balance(ctx context.Context, sdRef string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &TransportError{Op: "balance", Err: err}
	}
	return s.BalanceOf(sdRef), nil
}

func (s *Stub) SBPPayOutCheck(ctx context.Context, req SBPPayOutRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &TransportError{Op: "sbp_pay_out_check", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.balances[req.SdRef] < req.Amount {
		return "", &Rejection{Code: "151", Description: "insufficient funds on pocket"}
	}
	id := fmt.Sprintf("chk-%s", s.allocateID())
	s.checks[id] = req
	return id, nil
}

func (s *Stub) SBPPayOut(ctx context.Context, checkID string) (*OperationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "sbp_pay_out", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.checks[checkID]
	if !ok {
		return nil, &Rejection{Code: "3", Description: "check not found"}
	}
	delete(s.checks, checkID)
	s.balances[req.SdRef] -= req.Amount
	return &OperationResult{ID: checkID, State: StateApproved}, nil
}
