package payment_test

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/fee"
	"github.com/frahmantamala/pocket-settlement/internal/payment"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

var _ = Describe("PaymentService", func() {
	var (
		ctx       context.Context
		logger    *slog.Logger
		repo      *memoryRepository
		payees    *payeeDirectory
		stub      *processor.Stub
		publisher *recordingPublisher
		service   *payment.PaymentService
	)

	newService := func(useOrderPocket bool) *payment.PaymentService {
		return payment.NewPaymentService(repo, payees, stub, fee.NewCalculator(fee.DefaultRates()), publisher,
			payment.ServiceConfig{UseOrderPocket: useOrderPocket}, logger)
	}

	cardPayment := func(key string) payment.CreatePaymentDTO {
		return payment.CreatePaymentDTO{
			IdempotencyKey: key,
			AmountKop:      10000,
			PaymentMethod:  transaction.MethodCard,
			LinkID:         "link-1",
			RecipientID:    7,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		repo = newMemoryRepository()
		payees = newPayeeDirectory()
		payees.add(7, payeePocket)
		payees.add(8, "")
		stub = processor.NewStub(logger)
		publisher = &recordingPublisher{}
		service = newService(true)
	})

	Describe("CreatePayment", func() {
		Context("with a card payment", func() {
			It("should register an order on a temporary pocket with the card fee on top", func() {
				// Given
				stub.SetNextOrderID(42)

				// When
				resp, err := service.CreatePayment(ctx, cardPayment("idem-1"))

				// Then
				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Payment.Status).To(Equal(transaction.StatusPending))
				Expect(*resp.Payment.ExternalID).To(Equal("42"))
				Expect(*resp.Payment.FeeKop).To(Equal(int64(300)))
				Expect(resp.RedirectURL).To(ContainSubstring("id=42"))

				order, ok := stub.Order("42")
				Expect(ok).To(BeTrue())
				Expect(order.Amount).To(Equal(int64(10000)))
				Expect(order.Fee).To(Equal(int64(300)))
				Expect(order.Reference).To(Equal("idem-1"))
				Expect(order.SdRef).To(HavePrefix("tmp-"))

				stored, _ := repo.GetByIdempotencyKey(ctx, "idem-1")
				Expect(stored.TemporaryPocket()).To(Equal(order.SdRef))
			})
		})

		Context("with an SBP payment", func() {
			It("should record the fee without charging it on top and return the SBP link", func() {
				dto := cardPayment("idem-sbp")
				dto.PaymentMethod = transaction.MethodSBP

				resp, err := service.CreatePayment(ctx, dto)

				Expect(err).ToNot(HaveOccurred())
				Expect(*resp.Payment.FeeKop).To(Equal(int64(250)))
				Expect(resp.SBPLink).ToNot(BeEmpty())
				Expect(resp.RedirectURL).To(BeEmpty())
				order, _ := stub.Order(*resp.Payment.ExternalID)
				Expect(order.Fee).To(BeZero())
			})
		})

		Context("when the same idempotency key is used twice", func() {
			It("should return the existing transaction without registering again", func() {
				first, err := service.CreatePayment(ctx, cardPayment("idem-1"))
				Expect(err).ToNot(HaveOccurred())

				second, err := service.CreatePayment(ctx, cardPayment("idem-1"))

				Expect(err).ToNot(HaveOccurred())
				Expect(second.Payment.ID).To(Equal(first.Payment.ID))
				Expect(second.RedirectURL).To(Equal(first.RedirectURL))
				Expect(stub.RegisterCalls()).To(Equal(1))
			})

			It("should return a terminal transaction as-is", func() {
				tx := repo.seed(&transaction.Transaction{
					IdempotencyKey: "idem-done",
					AmountKop:      10000,
					PaymentMethod:  transaction.MethodCard,
					RecipientID:    7,
					ExternalID:     strPtr("42"),
					Status:         transaction.StatusSuccess,
				})

				resp, err := service.CreatePayment(ctx, cardPayment("idem-done"))

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Payment.ID).To(Equal(tx.ID))
				Expect(resp.Payment.Status).To(Equal(transaction.StatusSuccess))
				Expect(resp.RedirectURL).To(BeEmpty())
				Expect(stub.RegisterCalls()).To(BeZero())
			})
		})

		Context("when the processor rejects the registration", func() {
			It("should fail the transaction and return the processor description", func() {
				stub.FailNextRegister(&processor.Rejection{Code: "133", Description: "Invalid amount"})

				_, err := service.CreatePayment(ctx, cardPayment("idem-1"))

				var rej *processor.Rejection
				Expect(stderrors.As(err, &rej)).To(BeTrue())
				Expect(rej.Description).To(Equal("Invalid amount"))

				stored, _ := repo.GetByIdempotencyKey(ctx, "idem-1")
				Expect(stored.Status).To(Equal(transaction.StatusFailed))
				Expect(*stored.FailureReason).To(Equal("Invalid amount"))
				Expect(publisher.OfType(events.EventTypeTransactionFailed)).To(HaveLen(1))
			})
		})

		Context("when the processor is unreachable", func() {
			It("should leave the transaction pending and register it on retry", func() {
				stub.FailNextRegister(&processor.TransportError{Op: "register", Err: context.DeadlineExceeded, Timeout: true})

				_, err := service.CreatePayment(ctx, cardPayment("idem-1"))
				Expect(err).To(MatchError(processor.ErrTimeout))
				stored, _ := repo.GetByIdempotencyKey(ctx, "idem-1")
				Expect(stored.Status).To(Equal(transaction.StatusPending))
				Expect(stored.ExternalID).To(BeNil())

				resp, err := service.CreatePayment(ctx, cardPayment("idem-1"))

				Expect(err).ToNot(HaveOccurred())
				Expect(resp.Payment.ID).To(Equal(stored.ID))
				Expect(resp.Payment.ExternalID).ToNot(BeNil())
				Expect(stub.RegisterCalls()).To(Equal(2))
			})
		})

		Context("without temporary order pockets", func() {
			BeforeEach(func() {
				service = newService(false)
			})

			It("should pay straight into the payee pocket", func() {
				resp, err := service.CreatePayment(ctx, cardPayment("idem-1"))

				Expect(err).ToNot(HaveOccurred())
				order, _ := stub.Order(*resp.Payment.ExternalID)
				Expect(order.SdRef).To(Equal(payeePocket))
				stored, _ := repo.GetByIdempotencyKey(ctx, "idem-1")
				Expect(stored.OrderSdRef).To(BeNil())
			})

			It("should refuse a payee without a pocket", func() {
				dto := cardPayment("idem-1")
				dto.RecipientID = 8

				_, err := service.CreatePayment(ctx, dto)

				Expect(err).To(Equal(errors.ErrPocketNotAssigned))
			})
		})

		Context("with invalid input", func() {
			It("should reject a zero amount", func() {
				dto := cardPayment("idem-1")
				dto.AmountKop = 0

				_, err := service.CreatePayment(ctx, dto)

				appErr, ok := errors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
			})

			It("should reject an unknown payment method", func() {
				dto := cardPayment("idem-1")
				dto.PaymentMethod = "cash"

				_, err := service.CreatePayment(ctx, dto)

				appErr, ok := errors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
			})

			It("should reject an unknown payee", func() {
				dto := cardPayment("idem-1")
				dto.RecipientID = 99

				_, err := service.CreatePayment(ctx, dto)

				Expect(err).To(MatchError(errors.ErrPayeeNotFound))
			})
		})
	})
})
