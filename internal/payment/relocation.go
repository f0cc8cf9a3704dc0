package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

type RelocatorConfig struct {
	PlatformSdRef string
	// BusyErrorCode is the processor code for "order not yet in the right
	// state"; only this rejection is retried.
	BusyErrorCode string
	Delay         time.Duration
	RetryDelay    time.Duration
}

// Relocator moves an approved payment from its order pocket to the payee
// pocket, splitting the SBP commission to the platform pocket first. Callers
// must hold the relocation claim on the transaction.
type Relocator struct {
	repo      RepositoryAPI
	payees    PayeeLookup
	gateway   processor.Gateway
	publisher events.Publisher
	config    RelocatorConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewRelocator(repo RepositoryAPI, payees PayeeLookup, gateway processor.Gateway, publisher events.Publisher, config RelocatorConfig, logger *slog.Logger) *Relocator {
	return &Relocator{
		repo:      repo,
		payees:    payees,
		gateway:   gateway,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

type transferPlan struct {
	FeeKop   int64
	PayeeKop int64
}

// planTransfers splits an SBP payment into the platform commission and the
// payee share. Card commission is collected on top by the processor, so card
// payments move in full.
func planTransfers(tx *transaction.Transaction, platformSdRef string) transferPlan {
	var feeKop int64
	if tx.PaymentMethod == transaction.MethodSBP && platformSdRef != "" && tx.Fee() > 0 {
		feeKop = min(tx.Fee(), tx.AmountKop)
	}
	return transferPlan{FeeKop: feeKop, PayeeKop: tx.AmountKop - feeKop}
}

// Run waits for the processor to settle the payment, then relocates.
func (r *Relocator) Run(ctx context.Context, txID int64) error {
	return r.run(ctx, txID, r.config.Delay)
}

// RunNow relocates without the settle delay; used for operator replays of
// payments that settled long ago.
func (r *Relocator) RunNow(ctx context.Context, txID int64) error {
	return r.run(ctx, txID, 0)
}

func (r *Relocator) run(ctx context.Context, txID int64, delay time.Duration) error {
	tx, err := r.repo.GetByID(ctx, txID)
	if err != nil {
		return err
	}
	log := r.logger.With("transaction_id", tx.ID, "idempotency_key", tx.IdempotencyKey)

	if tx.Status != transaction.StatusPending || tx.RelocateStartedAt == nil {
		log.Warn("relocation not owned, nothing to do", "status", tx.Status)
		return nil
	}
	claim := *tx.RelocateStartedAt

	recipient, err := r.payees.GetByID(ctx, tx.RecipientID)
	if err != nil {
		r.release(tx.ID, claim)
		return err
	}
	pocket := recipient.Pocket()
	if pocket == "" {
		log.Warn("relocation skipped", "reason", "payee has no pocket", "recipient_id", tx.RecipientID)
		r.release(tx.ID, claim)
		return nil
	}

	if err := errors.Sleep(ctx, delay); err != nil {
		log.Warn("relocation interrupted before start, claim released", "error", err)
		r.release(tx.ID, claim)
		return err
	}

	plan := planTransfers(tx, r.config.PlatformSdRef)
	feeSplit := tx.FeeRelocatedAt != nil
	if plan.FeeKop > 0 && !feeSplit {
		err := r.transfer(ctx, tx, "fee", r.config.PlatformSdRef, plan.FeeKop)
		switch {
		case err == nil:
			feeSplit = true
			log.Info("platform fee relocated", "to_sd_ref", r.config.PlatformSdRef, "amount_kop", plan.FeeKop)
			r.recordFeeSplit(ctx, log, tx, plan.FeeKop)
		case ctx.Err() != nil:
			r.release(tx.ID, claim)
			return ctx.Err()
		default:
			log.Warn("platform fee relocation failed, payee receives the full amount",
				"error", err,
				"to_sd_ref", r.config.PlatformSdRef,
				"error_code", rejectionCode(err))
		}
	}

	payeeKop := tx.AmountKop
	if feeSplit {
		payeeKop -= plan.FeeKop
	}
	if payeeKop < 1 {
		log.Info("fee consumed the whole amount, nothing left for the payee")
		return r.complete(ctx, tx, 0)
	}

	if err := r.transfer(ctx, tx, "payee", pocket, payeeKop); err != nil {
		if ctx.Err() != nil {
			log.Warn("relocation interrupted, claim released", "error", err)
			r.release(tx.ID, claim)
			return ctx.Err()
		}
		return r.fail(ctx, tx, pocket, err)
	}

	log.Info("funds relocated to payee", "to_sd_ref", pocket, "amount_kop", payeeKop)
	return r.complete(ctx, tx, payeeKop)
}

// recordFeeSplit persists that the commission left the order pocket, retrying
// the write once. A lost mark would let a replay split the fee again.
func (r *Relocator) recordFeeSplit(ctx context.Context, log *slog.Logger, tx *transaction.Transaction, feeKop int64) {
	mark := func() error {
		_, err := r.repo.MarkFeeRelocated(ctx, tx.ID, r.now().UTC())
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.config.RetryDelay), 1), ctx)
	if err := backoff.Retry(mark, policy); err != nil {
		var orderID string
		if tx.ExternalID != nil {
			orderID = *tx.ExternalID
		}
		log.Error("platform fee moved but not recorded, do not replay this transaction",
			"error", err,
			"reference", fmt.Sprintf("reloc-%d-fee", tx.ID),
			"order_id", orderID,
			"to_sd_ref", r.config.PlatformSdRef,
			"fee_kop", feeKop)
	}
}

// transfer registers a fresh order for amount and relocates it from the
// transaction's order pocket. The processor refuses to relocate by the
// original payment order.
func (r *Relocator) transfer(ctx context.Context, tx *transaction.Transaction, leg, to string, amount int64) error {
	order, err := r.gateway.Register(ctx, processor.RegisterRequest{
		Amount:      amount,
		Reference:   fmt.Sprintf("reloc-%d-%s", tx.ID, leg),
		Description: fmt.Sprintf("Relocation of %s (%s)", tx.IdempotencyKey, leg),
	})
	if err != nil {
		return fmt.Errorf("register %s transfer: %w", leg, err)
	}

	req := processor.RelocateRequest{OrderID: order.ID, FromSdRef: tx.TemporaryPocket(), ToSdRef: to}
	attempt := func() error {
		_, err := r.gateway.Relocate(ctx, req)
		if err == nil {
			return nil
		}
		if processor.IsCode(err, r.config.BusyErrorCode) {
			r.logger.Warn("processor busy, relocation will be retried",
				"transaction_id", tx.ID,
				"order_id", order.ID,
				"retry_in", r.config.RetryDelay)
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.config.RetryDelay), 1), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return fmt.Errorf("relocate %s transfer (order %s): %w", leg, order.ID, err)
	}
	return nil
}

func (r *Relocator) complete(ctx context.Context, tx *transaction.Transaction, payeeKop int64) error {
	updated, err := r.repo.UpdateStatusIf(ctx, tx.ID,
		StatusCondition{Status: transaction.StatusPending},
		StatusUpdate{Status: transaction.StatusSuccess})
	if err != nil {
		return fmt.Errorf("failed to complete transaction: %w", err)
	}
	if updated && payeeKop > 0 {
		r.publisher.Publish(ctx, events.NewBalanceChangedEvent(tx.RecipientID, events.BalanceReasonRelocation, tx.IdempotencyKey, payeeKop))
	}
	return nil
}

func (r *Relocator) fail(ctx context.Context, tx *transaction.Transaction, pocket string, cause error) error {
	reason := cause.Error()
	var rej *processor.Rejection
	if stderrors.As(cause, &rej) {
		reason = fmt.Sprintf("relocation rejected: %s", rej.Description)
	}
	reason = truncate(reason, 255)

	// logged in full so an operator can replay by transaction id
	r.logger.Error("relocation failed",
		"transaction_id", tx.ID,
		"idempotency_key", tx.IdempotencyKey,
		"from_sd_ref", tx.TemporaryPocket(),
		"sd_ref", pocket,
		"amount_kop", tx.AmountKop,
		"error_code", rejectionCode(cause),
		"error", cause)

	updated, err := r.repo.UpdateStatusIf(ctx, tx.ID,
		StatusCondition{Status: transaction.StatusPending},
		StatusUpdate{Status: transaction.StatusFailed, FailureReason: &reason})
	if err != nil {
		return fmt.Errorf("failed to mark relocation failed: %w", err)
	}
	if updated {
		r.publisher.Publish(ctx, events.NewTransactionFailedEvent(tx.ID, tx.RecipientID, reason))
	}
	return cause
}

// release hands the transaction back to the sweeper. It runs on its own
// context because the job's context may already be cancelled.
func (r *Relocator) release(txID int64, startedAt time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.repo.ReleaseClaim(ctx, txID, startedAt); err != nil {
		r.logger.Error("failed to release relocation claim", "error", err, "transaction_id", txID)
	}
}

func rejectionCode(err error) string {
	var rej *processor.Rejection
	if stderrors.As(err, &rej) {
		return rej.Code
	}
	if stderrors.Is(err, processor.ErrTimeout) {
		return "timeout"
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
