package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/worker"
)

type SettlementConfig struct {
	PlatformSdRef string
	// StaleClaimAge is how old a relocation claim must be before an operator
	// replay may take it over.
	StaleClaimAge time.Duration
}

// Settlement applies processor callbacks to transactions and decides when
// funds must be relocated from the order pocket to the payee.
type Settlement struct {
	repo      RepositoryAPI
	payees    PayeeLookup
	payouts   PayoutCallbackHandler
	relocator *Relocator
	jobs      JobSubmitter
	publisher events.Publisher
	config    SettlementConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewSettlement(repo RepositoryAPI, payees PayeeLookup, relocator *Relocator, jobs JobSubmitter, publisher events.Publisher, config SettlementConfig, logger *slog.Logger) *Settlement {
	return &Settlement{
		repo:      repo,
		payees:    payees,
		relocator: relocator,
		jobs:      jobs,
		publisher: publisher,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// SetPayoutHandler routes callbacks that reference a payout request.
func (s *Settlement) SetPayoutHandler(h PayoutCallbackHandler) {
	s.payouts = h
}

// HandleNotification resolves the callback reference against transaction
// idempotency keys first, then payout request ids.
func (s *Settlement) HandleNotification(ctx context.Context, n *processor.Notification) error {
	if n.Reference == "" {
		return fmt.Errorf("callback without reference: %w", errors.ErrTransactionNotFound)
	}

	tx, err := s.repo.GetByIdempotencyKey(ctx, n.Reference)
	if err == nil {
		return s.Apply(ctx, tx, n)
	}
	if !stderrors.Is(err, errors.ErrTransactionNotFound) {
		return err
	}

	payoutID, parseErr := strconv.ParseInt(n.Reference, 10, 64)
	if parseErr != nil || s.payouts == nil {
		return fmt.Errorf("reference %q: %w", n.Reference, errors.ErrTransactionNotFound)
	}
	return s.payouts.ApplyCallback(ctx, payoutID, n)
}

// Apply moves a transaction through its state machine. Terminal transactions
// ignore further callbacks.
func (s *Settlement) Apply(ctx context.Context, tx *transaction.Transaction, n *processor.Notification) error {
	log := s.logger.With("transaction_id", tx.ID, "idempotency_key", tx.IdempotencyKey)

	if tx.IsTerminal() {
		log.Info("callback for terminal transaction ignored", "status", tx.Status, "processor_state", n.StateLabel())
		return nil
	}

	if n.OperationID != "" && tx.ExternalID == nil {
		if _, err := s.repo.SetExternalID(ctx, tx.ID, n.OperationID); err != nil {
			return fmt.Errorf("failed to store operation id: %w", err)
		}
		tx.ExternalID = &n.OperationID
	}

	state := n.StateLabel()

	if !n.Approved() {
		reason := n.FailureReason()
		updated, err := s.repo.UpdateStatusIf(ctx, tx.ID,
			StatusCondition{Status: transaction.StatusPending, Unclaimed: true, Unapproved: true},
			StatusUpdate{Status: transaction.StatusFailed, FailureReason: &reason, ProcessorState: &state})
		if err != nil {
			return fmt.Errorf("failed to mark transaction failed: %w", err)
		}
		if !updated {
			log.Info("declined callback did not change transaction", "processor_state", state)
			return nil
		}
		log.Warn("payment declined by processor", "processor_state", state, "reason", reason)
		s.publisher.Publish(ctx, events.NewTransactionFailedEvent(tx.ID, tx.RecipientID, reason))
		return nil
	}

	at := s.now().UTC()
	approved, err := s.repo.MarkApproved(ctx, tx.ID, state, at)
	if err != nil {
		return fmt.Errorf("failed to mark transaction approved: %w", err)
	}
	if approved {
		tx.ApprovedAt = &at
		log.Info("payment approved by processor", "processor_state", state)
	}

	_, err = s.settle(ctx, tx)
	return err
}

// Outcome is what a settle pass did with a transaction.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeSkipped
	OutcomeCompleted
	OutcomeScheduled
)

type action int

const (
	actionComplete action = iota
	actionSkip
	actionRelocate
)

type decision struct {
	action action
	reason string
	pocket string
}

// decide works out what an approved, still pending transaction needs.
func (s *Settlement) decide(ctx context.Context, tx *transaction.Transaction) (decision, error) {
	temp := tx.TemporaryPocket()
	if temp == "" {
		return decision{action: actionComplete, reason: "paid into payee pocket"}, nil
	}

	recipient, err := s.payees.GetByID(ctx, tx.RecipientID)
	if err != nil {
		if stderrors.Is(err, errors.ErrPayeeNotFound) {
			return decision{action: actionSkip, reason: "payee not found"}, nil
		}
		return decision{}, err
	}

	pocket := recipient.Pocket()
	switch {
	case pocket == "":
		return decision{action: actionSkip, reason: "payee has no pocket"}, nil
	case pocket == temp:
		return decision{action: actionComplete, reason: "order pocket is the payee pocket", pocket: pocket}, nil
	}

	plan := planTransfers(tx, s.config.PlatformSdRef)
	if plan.PayeeKop < 1 && plan.FeeKop < 1 {
		return decision{action: actionComplete, reason: "nothing to relocate", pocket: pocket}, nil
	}
	return decision{action: actionRelocate, pocket: pocket}, nil
}

func (s *Settlement) settle(ctx context.Context, tx *transaction.Transaction) (Outcome, error) {
	log := s.logger.With("transaction_id", tx.ID, "idempotency_key", tx.IdempotencyKey)

	d, err := s.decide(ctx, tx)
	if err != nil {
		return OutcomeUnchanged, err
	}

	switch d.action {
	case actionSkip:
		log.Warn("relocation skipped", "reason", d.reason, "recipient_id", tx.RecipientID)
		return OutcomeSkipped, nil

	case actionComplete:
		updated, err := s.repo.UpdateStatusIf(ctx, tx.ID,
			StatusCondition{Status: transaction.StatusPending, Unclaimed: true},
			StatusUpdate{Status: transaction.StatusSuccess})
		if err != nil {
			return OutcomeUnchanged, fmt.Errorf("failed to complete transaction: %w", err)
		}
		if !updated {
			return OutcomeUnchanged, nil
		}
		log.Info("transaction completed without relocation", "reason", d.reason)
		s.publisher.Publish(ctx, events.NewBalanceChangedEvent(tx.RecipientID, events.BalanceReasonPayment, tx.IdempotencyKey, tx.AmountKop))
		return OutcomeCompleted, nil
	}

	startedAt := claimTime(s.now())
	claimed, err := s.repo.ClaimRelocation(ctx, tx.ID, startedAt)
	if err != nil {
		return OutcomeUnchanged, fmt.Errorf("failed to claim relocation: %w", err)
	}
	if !claimed {
		log.Info("relocation already started")
		return OutcomeUnchanged, nil
	}

	log.Info("relocation scheduled", "from_sd_ref", tx.TemporaryPocket(), "to_sd_ref", d.pocket)

	job := worker.Job{
		Name: fmt.Sprintf("relocate-%d", tx.ID),
		Run: func(jobCtx context.Context) {
			if err := s.relocator.Run(jobCtx, tx.ID); err != nil {
				s.logger.Error("relocation job finished with error", "error", err, "transaction_id", tx.ID)
			}
		},
		OnDrop: func() { s.relocator.release(tx.ID, startedAt) },
	}
	if err := s.jobs.Submit(job); err != nil {
		log.Error("could not schedule relocation, claim released for the sweeper", "error", err)
		s.relocator.release(tx.ID, startedAt)
		return OutcomeSkipped, nil
	}
	return OutcomeScheduled, nil
}

// Resettle re-runs the relocation decision for an approved transaction that
// is still pending, e.g. after its payee was assigned a pocket.
func (s *Settlement) Resettle(ctx context.Context, tx *transaction.Transaction) (Outcome, error) {
	if tx.IsTerminal() || tx.ApprovedAt == nil || tx.RelocateStartedAt != nil {
		return OutcomeUnchanged, nil
	}
	return s.settle(ctx, tx)
}

// Replay reopens a failed or abandoned relocation and runs it immediately,
// without the settle delay.
func (s *Settlement) Replay(ctx context.Context, txID int64) error {
	tx, err := s.repo.GetByID(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status == transaction.StatusSuccess || tx.ApprovedAt == nil {
		return errors.ErrReplayNotAllowed
	}

	if tx.Status == transaction.StatusPending && tx.RelocateStartedAt == nil {
		d, err := s.decide(ctx, tx)
		if err != nil {
			return err
		}
		if d.action != actionRelocate {
			_, err := s.settle(ctx, tx)
			return err
		}
	}

	now := s.now()
	startedAt := claimTime(now)
	reopened, err := s.repo.ReopenForReplay(ctx, tx.ID, now.UTC().Add(-s.config.StaleClaimAge), startedAt)
	if err != nil {
		return fmt.Errorf("failed to reopen transaction: %w", err)
	}
	if !reopened {
		return errors.ErrReplayNotAllowed
	}

	s.logger.Info("relocation replay started", "transaction_id", tx.ID, "previous_status", tx.Status)
	return s.relocator.RunNow(ctx, tx.ID)
}
