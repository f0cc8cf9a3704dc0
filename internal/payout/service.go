package payout

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/fee"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

type Service struct {
	repo      RepositoryAPI
	payees    PayeeLookup
	gateway   processor.Gateway
	fees      *fee.Calculator
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, payees PayeeLookup, gateway processor.Gateway, fees *fee.Calculator, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		payees:    payees,
		gateway:   gateway,
		fees:      fees,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func strPtr(s string) *string { return &s }

func (s *Service) Create(ctx context.Context, dto CreatePayoutDTO) (*payout.PayoutRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.payees.GetByID(ctx, dto.PayeeID); err != nil {
		return nil, err
	}

	p := &payout.PayoutRequest{
		UserID:    dto.PayeeID,
		AmountKop: dto.AmountKop,
		Status:    payout.StatusCreated,
	}
	if f := s.fees.Fee(dto.AmountKop, fee.OutCard); f > 0 {
		p.FeeKop = &f
	}

	if err := s.repo.Create(ctx, p); err != nil {
		s.logger.Error("failed to create payout request", "error", err, "payee_id", dto.PayeeID)
		return nil, fmt.Errorf("failed to create payout request: %w", err)
	}

	s.logger.Info("payout request created",
		"payout_id", p.ID,
		"payee_id", p.UserID,
		"amount_kop", p.AmountKop,
		"fee_kop", p.Fee())
	return p, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*payout.PayoutRequest, error) {
	return s.repo.GetByID(ctx, id)
}

// pocketFor loads a CREATED payout and the pocket it is paid from.
func (s *Service) pocketFor(ctx context.Context, id int64) (*payout.PayoutRequest, string, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if p.Status != payout.StatusCreated {
		return nil, "", errors.ErrInvalidPayoutStatus
	}
	recipient, err := s.payees.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, "", err
	}
	if recipient.Pocket() == "" {
		return nil, "", errors.ErrPocketNotAssigned
	}
	return p, recipient.Pocket(), nil
}

// claim moves a payout into PROCESSING so only one send runs for it.
func (s *Service) claim(ctx context.Context, p *payout.PayoutRequest, method string) error {
	ok, err := s.repo.Transition(ctx, p.ID, []string{payout.StatusCreated}, payout.StatusProcessing,
		Fields{Method: strPtr(method)})
	if err != nil {
		return fmt.Errorf("failed to start payout: %w", err)
	}
	if !ok {
		return errors.ErrInvalidPayoutStatus
	}
	p.Status = payout.StatusProcessing
	p.Method = strPtr(method)
	return nil
}

// SendToCard pays out synchronously. A processor rejection returns the payout
// to CREATED so it can be sent again; an unknown outcome leaves it PROCESSING
// until a callback or an operator resolves it.
func (s *Service) SendToCard(ctx context.Context, id int64, dto CardPayoutDTO) (*payout.PayoutRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	p, pocket, err := s.pocketFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.claim(ctx, p, payout.MethodCard); err != nil {
		return nil, err
	}

	description := dto.Description
	if description == "" {
		description = fmt.Sprintf("Payout %d", p.ID)
	}
	result, err := s.gateway.PayOutCard(ctx, processor.CardPayOutRequest{
		SdRef:       pocket,
		Pan:         dto.Pan,
		Amount:      p.AmountKop,
		Description: description,
		Fee:         p.Fee(),
	})
	if err != nil {
		return nil, s.sendFailed(ctx, p, pocket, err)
	}
	return s.complete(ctx, p, result.ID)
}

// SendSBP pays out to a phone number through the fast payment system: a
// pre-check reserves the transfer, then it is executed.
func (s *Service) SendSBP(ctx context.Context, id int64, dto SBPPayoutDTO) (*payout.PayoutRequest, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}
	p, pocket, err := s.pocketFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.claim(ctx, p, payout.MethodSBP); err != nil {
		return nil, err
	}

	checkID, err := s.gateway.SBPPayOutCheck(ctx, processor.SBPPayOutRequest{
		SdRef:  pocket,
		Amount: p.AmountKop,
		Phone:  dto.Phone,
		BankID: dto.BankID,
	})
	if err != nil {
		return nil, s.sendFailed(ctx, p, pocket, err)
	}

	result, err := s.gateway.SBPPayOut(ctx, checkID)
	if err != nil {
		return nil, s.sendFailed(ctx, p, pocket, err)
	}
	return s.complete(ctx, p, result.ID)
}

func (s *Service) sendFailed(ctx context.Context, p *payout.PayoutRequest, pocket string, err error) error {
	var rej *processor.Rejection
	if !stderrors.As(err, &rej) {
		s.logger.Error("payout outcome unknown, left processing",
			"error", err,
			"payout_id", p.ID,
			"sd_ref", pocket)
		return err
	}

	s.logger.Warn("processor rejected payout",
		"payout_id", p.ID,
		"sd_ref", pocket,
		"error_code", rej.Code,
		"description", rej.Description)

	reason := payout.TruncateReason(rej.Description)
	if _, trErr := s.repo.Transition(ctx, p.ID, []string{payout.StatusProcessing}, payout.StatusCreated,
		Fields{RejectionReason: &reason}); trErr != nil {
		s.logger.Error("failed to reset rejected payout", "error", trErr, "payout_id", p.ID)
	}
	return err
}

func (s *Service) complete(ctx context.Context, p *payout.PayoutRequest, operationID string) (*payout.PayoutRequest, error) {
	at := s.now().UTC()
	fields := Fields{CompletedAt: &at}
	if operationID != "" {
		fields.ExternalID = &operationID
	}
	ok, err := s.repo.Transition(ctx, p.ID, []string{payout.StatusProcessing}, payout.StatusCompleted, fields)
	if err != nil {
		s.logger.Error("payout sent but not recorded", "error", err, "payout_id", p.ID, "operation_id", operationID)
		return nil, fmt.Errorf("failed to complete payout: %w", err)
	}
	if ok {
		s.logger.Info("payout completed", "payout_id", p.ID, "payee_id", p.UserID, "amount_kop", p.AmountKop)
		s.notifyCompleted(ctx, p)
	}
	return s.repo.GetByID(ctx, p.ID)
}

// StartPagePayout registers a payout order and returns the processor page
// where the payee enters a card. Completion arrives by callback, keyed by the
// payout id. Asking again for a payout already on the page flow returns the
// same page.
func (s *Service) StartPagePayout(ctx context.Context, id int64) (*PagePayoutResponse, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == payout.StatusProcessing && p.Method != nil && *p.Method == payout.MethodPage && p.ExternalID != nil {
		recipient, err := s.payees.GetByID(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
		return &PagePayoutResponse{Payout: ToView(p), RedirectURL: s.gateway.PayOutPageURL(*p.ExternalID, recipient.Pocket())}, nil
	}

	p, pocket, err := s.pocketFor(ctx, id)
	if err != nil {
		return nil, err
	}

	order, err := s.gateway.Register(ctx, processor.RegisterRequest{
		Amount:      p.AmountKop,
		Reference:   strconv.FormatInt(p.ID, 10),
		Description: fmt.Sprintf("Payout %d", p.ID),
		Fee:         p.Fee(),
		SdRef:       pocket,
	})
	if err != nil {
		var rej *processor.Rejection
		if stderrors.As(err, &rej) {
			s.logger.Warn("processor rejected payout order",
				"payout_id", p.ID,
				"sd_ref", pocket,
				"error_code", rej.Code,
				"description", rej.Description)
		} else {
			s.logger.Error("failed to register payout order", "error", err, "payout_id", p.ID)
		}
		return nil, err
	}

	ok, err := s.repo.Transition(ctx, p.ID, []string{payout.StatusCreated}, payout.StatusProcessing,
		Fields{ExternalID: &order.ID, Method: strPtr(payout.MethodPage)})
	if err != nil {
		return nil, fmt.Errorf("failed to start page payout: %w", err)
	}
	if !ok {
		return nil, errors.ErrInvalidPayoutStatus
	}
	p.Status = payout.StatusProcessing
	p.ExternalID = &order.ID
	p.Method = strPtr(payout.MethodPage)

	s.logger.Info("payout page issued", "payout_id", p.ID, "order_id", order.ID, "sd_ref", pocket)
	return &PagePayoutResponse{Payout: ToView(p), RedirectURL: s.gateway.PayOutPageURL(order.ID, pocket)}, nil
}

// ApplyCallback settles a payout from a processor callback. Terminal payouts
// ignore further callbacks.
func (s *Service) ApplyCallback(ctx context.Context, payoutID int64, n *processor.Notification) error {
	p, err := s.repo.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}
	log := s.logger.With("payout_id", p.ID, "processor_state", n.StateLabel())

	if p.IsTerminal() {
		log.Info("callback for terminal payout ignored", "status", p.Status)
		return nil
	}

	open := []string{payout.StatusCreated, payout.StatusProcessing}
	fields := Fields{}
	if n.OperationID != "" && p.ExternalID == nil {
		fields.ExternalID = &n.OperationID
	}

	if n.Approved() {
		at := s.now().UTC()
		fields.CompletedAt = &at
		ok, err := s.repo.Transition(ctx, p.ID, open, payout.StatusCompleted, fields)
		if err != nil {
			return fmt.Errorf("failed to complete payout: %w", err)
		}
		if ok {
			log.Info("payout completed by callback")
			s.notifyCompleted(ctx, p)
		}
		return nil
	}

	reason := n.FailureReason()
	if reason == "" {
		reason = "declined by processor: " + n.StateLabel()
	}
	reason = payout.TruncateReason(reason)
	fields.RejectionReason = &reason
	ok, err := s.repo.Transition(ctx, p.ID, open, payout.StatusRejected, fields)
	if err != nil {
		return fmt.Errorf("failed to reject payout: %w", err)
	}
	if ok {
		log.Warn("payout rejected by processor", "reason", reason)
		s.publisher.Publish(ctx, events.NewPayoutRejectedEvent(p.ID, p.UserID, p.AmountKop, reason))
	}
	return nil
}

func (s *Service) notifyCompleted(ctx context.Context, p *payout.PayoutRequest) {
	s.publisher.Publish(ctx, events.NewPayoutCompletedEvent(p.ID, p.UserID, p.AmountKop))
	s.publisher.Publish(ctx, events.NewBalanceChangedEvent(p.UserID, events.BalanceReasonPayout, strconv.FormatInt(p.ID, 10), -p.AmountKop))
}
