package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/fee"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

type ServiceConfig struct {
	// UseOrderPocket routes every payment through its own temporary pocket
	// which is relocated to the payee after approval.
	UseOrderPocket bool
}

// PaymentService registers incoming payments with the processor.
type PaymentService struct {
	repo      RepositoryAPI
	payees    PayeeLookup
	gateway   processor.Gateway
	fees      *fee.Calculator
	publisher events.Publisher
	config    ServiceConfig
	logger    *slog.Logger
	newPocket func() string
}

func NewPaymentService(repo RepositoryAPI, payees PayeeLookup, gateway processor.Gateway, fees *fee.Calculator, publisher events.Publisher, config ServiceConfig, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		repo:      repo,
		payees:    payees,
		gateway:   gateway,
		fees:      fees,
		publisher: publisher,
		config:    config,
		logger:    logger,
		newPocket: func() string { return "tmp-" + uuid.New().String() },
	}
}

// CreatePayment is safe to retry with the same idempotency key: a known key
// resumes the existing transaction instead of creating a second one.
func (s *PaymentService) CreatePayment(ctx context.Context, dto CreatePaymentDTO) (*CreatePaymentResponse, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByIdempotencyKey(ctx, dto.IdempotencyKey)
	switch {
	case err == nil:
		s.logger.Info("idempotent payment request, resuming existing transaction",
			"transaction_id", existing.ID,
			"idempotency_key", dto.IdempotencyKey,
			"status", existing.Status)
		return s.resume(ctx, existing, dto.Description)
	case !stderrors.Is(err, errors.ErrTransactionNotFound):
		return nil, err
	}

	recipient, err := s.payees.GetByID(ctx, dto.RecipientID)
	if err != nil {
		return nil, err
	}

	tx := &transaction.Transaction{
		IdempotencyKey: dto.IdempotencyKey,
		AmountKop:      dto.AmountKop,
		PaymentMethod:  dto.PaymentMethod,
		LinkID:         dto.LinkID,
		RecipientID:    dto.RecipientID,
		Status:         transaction.StatusPending,
	}
	dir, err := fee.ForPayment(dto.PaymentMethod)
	if err != nil {
		return nil, errors.NewValidationFieldError("payment_method", err.Error(), errors.ErrCodeInvalidPaymentMethod)
	}
	if f := s.fees.Fee(dto.AmountKop, dir); f > 0 {
		tx.FeeKop = &f
	}
	if s.config.UseOrderPocket {
		pocket := s.newPocket()
		tx.OrderSdRef = &pocket
	} else if recipient.Pocket() == "" {
		return nil, errors.ErrPocketNotAssigned
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		// a concurrent request with the same key won the insert
		if dup, getErr := s.repo.GetByIdempotencyKey(ctx, dto.IdempotencyKey); getErr == nil {
			return s.resume(ctx, dup, dto.Description)
		}
		s.logger.Error("failed to create transaction", "error", err, "idempotency_key", dto.IdempotencyKey)
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.logger.Info("transaction created",
		"transaction_id", tx.ID,
		"idempotency_key", tx.IdempotencyKey,
		"amount_kop", tx.AmountKop,
		"fee_kop", tx.Fee(),
		"payment_method", tx.PaymentMethod,
		"order_sd_ref", tx.TemporaryPocket())

	return s.register(ctx, tx, dto.Description)
}

func (s *PaymentService) GetByID(ctx context.Context, id int64) (*transaction.Transaction, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *PaymentService) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	return s.repo.GetByIdempotencyKey(ctx, key)
}

func (s *PaymentService) resume(ctx context.Context, tx *transaction.Transaction, description string) (*CreatePaymentResponse, error) {
	if tx.IsTerminal() {
		return &CreatePaymentResponse{Payment: ToView(tx)}, nil
	}
	if tx.ExternalID == nil {
		return s.register(ctx, tx, description)
	}
	return s.link(ctx, tx)
}

func (s *PaymentService) register(ctx context.Context, tx *transaction.Transaction, description string) (*CreatePaymentResponse, error) {
	pocket, err := s.payInPocket(ctx, tx)
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = fmt.Sprintf("Payment %s", tx.IdempotencyKey)
	}

	req := processor.RegisterRequest{
		Amount:      tx.AmountKop,
		Reference:   tx.IdempotencyKey,
		Description: description,
		SdRef:       pocket,
	}
	// SBP commission is split out of the amount after approval instead
	if tx.PaymentMethod == transaction.MethodCard {
		req.Fee = tx.Fee()
	}

	order, err := s.gateway.Register(ctx, req)
	if err != nil {
		var rej *processor.Rejection
		if stderrors.As(err, &rej) {
			s.failRegistration(ctx, tx, rej)
			return nil, err
		}
		s.logger.Error("processor registration failed, transaction left pending",
			"error", err,
			"transaction_id", tx.ID,
			"idempotency_key", tx.IdempotencyKey)
		return nil, err
	}

	if _, err := s.repo.SetExternalID(ctx, tx.ID, order.ID); err != nil {
		s.logger.Error("failed to store processor order id", "error", err, "transaction_id", tx.ID, "order_id", order.ID)
		return nil, fmt.Errorf("failed to store processor order id: %w", err)
	}
	tx.ExternalID = &order.ID

	return s.link(ctx, tx)
}

func (s *PaymentService) failRegistration(ctx context.Context, tx *transaction.Transaction, rej *processor.Rejection) {
	reason := rej.Description
	updated, err := s.repo.UpdateStatusIf(ctx, tx.ID,
		StatusCondition{Status: transaction.StatusPending, Unclaimed: true},
		StatusUpdate{Status: transaction.StatusFailed, FailureReason: &reason})
	if err != nil {
		s.logger.Error("failed to mark transaction failed after rejection", "error", err, "transaction_id", tx.ID)
		return
	}

	s.logger.Warn("processor rejected registration",
		"transaction_id", tx.ID,
		"idempotency_key", tx.IdempotencyKey,
		"error_code", rej.Code,
		"description", rej.Description)

	if updated {
		s.publisher.Publish(ctx, events.NewTransactionFailedEvent(tx.ID, tx.RecipientID, reason))
	}
}

func (s *PaymentService) link(ctx context.Context, tx *transaction.Transaction) (*CreatePaymentResponse, error) {
	pocket, err := s.payInPocket(ctx, tx)
	if err != nil {
		return nil, err
	}

	resp := &CreatePaymentResponse{Payment: ToView(tx)}
	req := processor.PayInRequest{OrderID: *tx.ExternalID, Amount: tx.AmountKop, SdRef: pocket}

	switch tx.PaymentMethod {
	case transaction.MethodSBP:
		sbp, err := s.gateway.PayInSBP(ctx, req)
		if err != nil {
			s.logger.Error("failed to start SBP payment", "error", err, "transaction_id", tx.ID, "order_id", req.OrderID)
			return nil, err
		}
		resp.SBPLink = sbp.Link
	default:
		resp.RedirectURL = s.gateway.PayInURL(req)
	}

	return resp, nil
}

// payInPocket is where the payer's money lands: the order's temporary pocket
// or, without one, the payee pocket directly.
func (s *PaymentService) payInPocket(ctx context.Context, tx *transaction.Transaction) (string, error) {
	if pocket := tx.TemporaryPocket(); pocket != "" {
		return pocket, nil
	}
	recipient, err := s.payees.GetByID(ctx, tx.RecipientID)
	if err != nil {
		return "", err
	}
	if recipient.Pocket() == "" {
		return "", errors.ErrPocketNotAssigned
	}
	return recipient.Pocket(), nil
}
