package payment_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/payment"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/worker"
)

var _ = Describe("Sweeper", func() {
	var (
		ctx     context.Context
		repo    *memoryRepository
		payees  *payeeDirectory
		stub    *processor.Stub
		pool    *worker.Pool
		sweeper *payment.Sweeper
	)

	hourAgo := func() *time.Time {
		t := time.Now().UTC().Add(-time.Hour)
		return &t
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		repo = newMemoryRepository()
		payees = newPayeeDirectory()
		payees.add(8, "")
		stub = processor.NewStub(logger)
		pool = worker.NewPool(worker.Config{MaxWorkers: 2, JobQueueSize: 8}, logger)
		publisher := &recordingPublisher{}

		relocator := payment.NewRelocator(repo, payees, stub, publisher, payment.RelocatorConfig{
			PlatformSdRef: platformPocket,
			BusyErrorCode: "109",
			Delay:         time.Millisecond,
			RetryDelay:    time.Millisecond,
		}, logger)
		settlement := payment.NewSettlement(repo, payees, relocator, pool, publisher,
			payment.SettlementConfig{PlatformSdRef: platformPocket, StaleClaimAge: 15 * time.Minute}, logger)
		sweeper = payment.NewSweeper(repo, settlement, stub, payment.SweeperConfig{
			Interval:        time.Minute,
			MinAge:          time.Minute,
			ReconcileMinAge: time.Minute,
			BatchSize:       10,
		}, logger)
	})

	AfterEach(func() {
		Expect(pool.Shutdown(context.Background())).To(Succeed())
	})

	Describe("SweepOnce", func() {
		It("should relocate an approved payment once its payee gets a pocket", func() {
			// Given
			tx := repo.seed(&transaction.Transaction{
				IdempotencyKey: "idem-late",
				AmountKop:      5000,
				PaymentMethod:  transaction.MethodCard,
				RecipientID:    8,
				ExternalID:     strPtr("42"),
				OrderSdRef:     strPtr(orderPocket),
				Status:         transaction.StatusPending,
				ApprovedAt:     hourAgo(),
			})

			// When
			result, err := sweeper.SweepOnce(ctx)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Skipped).To(Equal(1))
			Expect(result.Resettled).To(BeZero())
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
			Expect(repo.Claims()).To(BeZero())

			// When the pocket is assigned out of band
			payees.add(8, "payee-8")
			result, err = sweeper.SweepOnce(ctx)

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Resettled).To(Equal(1))
			Eventually(func() string { return repo.status(tx.ID) }).Should(Equal(transaction.StatusSuccess))
			Expect(stub.Relocations()).To(HaveLen(1))
			Expect(stub.Relocations()[0].To).To(Equal("payee-8"))
		})

		It("should leave recently approved payments to the callback path", func() {
			payees.add(8, "payee-8")
			now := time.Now().UTC()
			tx := repo.seed(&transaction.Transaction{
				IdempotencyKey: "idem-fresh",
				AmountKop:      5000,
				PaymentMethod:  transaction.MethodCard,
				RecipientID:    8,
				OrderSdRef:     strPtr(orderPocket),
				Status:         transaction.StatusPending,
				ApprovedAt:     &now,
			})

			result, err := sweeper.SweepOnce(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Resettled).To(BeZero())
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
		})

		It("should reconcile a missed callback from the order status", func() {
			payees.add(8, "payee-8")
			order, err := stub.Register(ctx, processor.RegisterRequest{Amount: 5000, Reference: "idem-missed", SdRef: "payee-8"})
			Expect(err).ToNot(HaveOccurred())
			stub.SetOrderState(order.ID, processor.StateApproved, processor.OrderStateCompleted)
			tx := repo.seed(&transaction.Transaction{
				IdempotencyKey: "idem-missed",
				AmountKop:      5000,
				PaymentMethod:  transaction.MethodCard,
				RecipientID:    8,
				ExternalID:     &order.ID,
				Status:         transaction.StatusPending,
				CreatedAt:      *hourAgo(),
			})

			result, err := sweeper.SweepOnce(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reconciled).To(Equal(1))
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusSuccess))
		})

		It("should keep an unpaid order pending", func() {
			order, err := stub.Register(ctx, processor.RegisterRequest{Amount: 5000, Reference: "idem-unpaid", SdRef: orderPocket})
			Expect(err).ToNot(HaveOccurred())
			tx := repo.seed(&transaction.Transaction{
				IdempotencyKey: "idem-unpaid",
				AmountKop:      5000,
				PaymentMethod:  transaction.MethodCard,
				RecipientID:    8,
				ExternalID:     &order.ID,
				OrderSdRef:     strPtr(orderPocket),
				Status:         transaction.StatusPending,
				CreatedAt:      *hourAgo(),
			})

			result, err := sweeper.SweepOnce(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Reconciled).To(BeZero())
			Expect(result.Errors).To(BeZero())
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
		})

		It("should count an order the processor does not know as an error", func() {
			tx := repo.seed(&transaction.Transaction{
				IdempotencyKey: "idem-lost",
				AmountKop:      5000,
				PaymentMethod:  transaction.MethodCard,
				RecipientID:    8,
				ExternalID:     strPtr("999"),
				Status:         transaction.StatusPending,
				CreatedAt:      *hourAgo(),
			})

			result, err := sweeper.SweepOnce(ctx)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Errors).To(Equal(1))
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
		})
	})
})
