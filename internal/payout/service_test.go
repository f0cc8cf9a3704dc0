package payout_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payout"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/fee"
	"github.com/frahmantamala/pocket-settlement/internal/payment"
	paymentstore "github.com/frahmantamala/pocket-settlement/internal/payment/postgres"
	payoutpkg "github.com/frahmantamala/pocket-settlement/internal/payout"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/signer"
	"github.com/frahmantamala/pocket-settlement/internal/transport"
	"github.com/frahmantamala/pocket-settlement/internal/worker"
)

const payeePocket = "payee-7"

// transactionStore is an empty payment store, so every callback reference
// falls through to the payout handler.
func transactionStore() *paymentstore.TransactionRepository {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	Expect(err).ToNot(HaveOccurred())
	sqlDB, err := db.DB()
	Expect(err).ToNot(HaveOccurred())
	sqlDB.SetMaxOpenConns(1)
	Expect(db.AutoMigrate(&transaction.Transaction{})).To(Succeed())
	return paymentstore.NewTransactionRepository(db)
}

type noJobs struct{}

func (noJobs) Submit(job worker.Job) error { return worker.ErrQueueFull }

func signedCallback(secret string, tags ...string) []byte {
	var b strings.Builder
	var values []string
	b.WriteString("<operation>")
	for i := 0; i+1 < len(tags); i += 2 {
		fmt.Fprintf(&b, "<%s>%s</%s>", tags[i], tags[i+1], tags[i])
		values = append(values, tags[i+1])
	}
	fmt.Fprintf(&b, "<signature>%s</signature></operation>", signer.Sign(values, secret))
	return []byte(b.String())
}

var _ = Describe("Payout Service", func() {
	var (
		ctx       context.Context
		logger    *slog.Logger
		repo      *memoryRepository
		stub      *processor.Stub
		publisher *recordingPublisher
		payees    payeeDirectory
		service   *payoutpkg.Service
	)

	createPayout := func(amount int64) *payout.PayoutRequest {
		p, err := service.Create(ctx, payoutpkg.CreatePayoutDTO{PayeeID: 7, AmountKop: amount})
		Expect(err).ToNot(HaveOccurred())
		return p
	}

	BeforeEach(func() {
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		repo = newMemoryRepository()
		stub = processor.NewStub(logger)
		publisher = &recordingPublisher{}
		payees = payeeDirectory{7: newPayee(7, payeePocket), 8: newPayee(8, "")}
		service = payoutpkg.NewService(repo, payees, stub, fee.NewCalculator(fee.DefaultRates()), publisher, logger)
	})

	Describe("Create", func() {
		It("should create a payout with the out-card fee", func() {
			p := createPayout(5000)

			Expect(p.Status).To(Equal(payout.StatusCreated))
			Expect(*p.FeeKop).To(Equal(int64(100)))
		})

		It("should reject an unknown payee", func() {
			_, err := service.Create(ctx, payoutpkg.CreatePayoutDTO{PayeeID: 99, AmountKop: 5000})

			Expect(err).To(Equal(errors.ErrPayeeNotFound))
		})

		It("should reject a zero amount", func() {
			_, err := service.Create(ctx, payoutpkg.CreatePayoutDTO{PayeeID: 7})

			appErr, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.Type).To(Equal(errors.ErrorTypeValidation))
		})
	})

	Describe("SendToCard", func() {
		It("should complete the payout inline when the processor approves", func() {
			// Given
			stub.Credit(payeePocket, 10000)
			p := createPayout(5000)

			// When
			sent, err := service.SendToCard(ctx, p.ID, payoutpkg.CardPayoutDTO{Pan: "4111111111111111"})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(sent.Status).To(Equal(payout.StatusCompleted))
			Expect(*sent.Method).To(Equal(payout.MethodCard))
			Expect(sent.CompletedAt).ToNot(BeNil())
			Expect(stub.BalanceOf(payeePocket)).To(Equal(int64(4900)))
			Expect(publisher.OfType(events.EventTypePayoutCompleted)).To(HaveLen(1))
			Expect(publisher.OfType(events.EventTypeBalanceChanged)).To(HaveLen(1))
		})

		It("should return the payout to CREATED and surface a rejection", func() {
			p := createPayout(5000)

			_, err := service.SendToCard(ctx, p.ID, payoutpkg.CardPayoutDTO{Pan: "4111111111111111"})

			var rej *processor.Rejection
			Expect(stderrors.As(err, &rej)).To(BeTrue())
			Expect(rej.Description).To(Equal("insufficient funds on pocket"))
			got, _ := repo.GetByID(ctx, p.ID)
			Expect(got.Status).To(Equal(payout.StatusCreated))
			Expect(*got.RejectionReason).To(Equal("insufficient funds on pocket"))
		})

		It("should leave the payout PROCESSING when the outcome is unknown", func() {
			stub.Credit(payeePocket, 10000)
			p := createPayout(5000)
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := service.SendToCard(cancelled, p.ID, payoutpkg.CardPayoutDTO{Pan: "4111111111111111"})

			var transportErr *processor.TransportError
			Expect(stderrors.As(err, &transportErr)).To(BeTrue())
			Expect(repo.status(p.ID)).To(Equal(payout.StatusProcessing))
		})

		It("should refuse a payout that is not CREATED", func() {
			stub.Credit(payeePocket, 10000)
			p := createPayout(5000)
			_, err := service.SendToCard(ctx, p.ID, payoutpkg.CardPayoutDTO{Pan: "4111111111111111"})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.SendToCard(ctx, p.ID, payoutpkg.CardPayoutDTO{Pan: "4111111111111111"})

			Expect(err).To(Equal(errors.ErrInvalidPayoutStatus))
		})

		It("should reject a malformed card number", func() {
			p := createPayout(5000)

			_, err := service.SendToCard(ctx, p.ID, payoutpkg.CardPayoutDTO{Pan: "4111-1111"})

			_, ok := errors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(repo.status(p.ID)).To(Equal(payout.StatusCreated))
		})
	})

	Describe("SendSBP", func() {
		It("should check then execute the transfer", func() {
			stub.Credit(payeePocket, 10000)
			p := createPayout(5000)

			sent, err := service.SendSBP(ctx, p.ID, payoutpkg.SBPPayoutDTO{Phone: "79001234567", BankID: "100000000111"})

			Expect(err).ToNot(HaveOccurred())
			Expect(sent.Status).To(Equal(payout.StatusCompleted))
			Expect(*sent.Method).To(Equal(payout.MethodSBP))
			Expect(stub.BalanceOf(payeePocket)).To(Equal(int64(5000)))
		})

		It("should return the payout to CREATED when the pre-check is rejected", func() {
			p := createPayout(5000)

			_, err := service.SendSBP(ctx, p.ID, payoutpkg.SBPPayoutDTO{Phone: "79001234567", BankID: "100000000111"})

			Expect(processor.IsCode(err, "151")).To(BeTrue())
			Expect(repo.status(p.ID)).To(Equal(payout.StatusCreated))
		})
	})

	Describe("page payout flow", func() {
		It("should complete on the callback and ignore a duplicate", func() {
			// Given a payout on the hosted page
			stub.SetNextOrderID(500)
			p := createPayout(5000)
			resp, err := service.StartPagePayout(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Payout.Status).To(Equal(payout.StatusProcessing))
			Expect(resp.RedirectURL).To(ContainSubstring("id=500"))
			Expect(resp.RedirectURL).To(ContainSubstring("sd_ref=" + payeePocket))

			order, ok := stub.Order("500")
			Expect(ok).To(BeTrue())
			Expect(order.Reference).To(Equal(fmt.Sprint(p.ID)))
			Expect(order.Fee).To(Equal(int64(100)))

			// When the processor calls back twice through the shared webhook
			settlement := payment.NewSettlement(transactionStore(), payees, nil, noJobs{}, publisher, payment.SettlementConfig{}, logger)
			settlement.SetPayoutHandler(service)
			webhook := payment.NewWebhookHandler(transport.NewBaseHandler(logger), settlement, "secret", logger)
			body := signedCallback("secret", "order_id", "500", "order_state", "COMPLETED", "reference", fmt.Sprint(p.ID), "id", "9001")

			for i := 0; i < 2; i++ {
				recorder := httptest.NewRecorder()
				webhook.HandleCallback(recorder, httptest.NewRequest(http.MethodPost, "/api/v1/payment/callback", bytes.NewReader(body)))
				Expect(recorder.Code).To(Equal(http.StatusOK))
			}

			// Then
			got, _ := repo.GetByID(ctx, p.ID)
			Expect(got.Status).To(Equal(payout.StatusCompleted))
			Expect(*got.ExternalID).To(Equal("500"))
			Expect(publisher.OfType(events.EventTypePayoutCompleted)).To(HaveLen(1))
		})

		It("should hand back the same page when asked again", func() {
			p := createPayout(5000)
			first, err := service.StartPagePayout(ctx, p.ID)
			Expect(err).ToNot(HaveOccurred())

			second, err := service.StartPagePayout(ctx, p.ID)

			Expect(err).ToNot(HaveOccurred())
			Expect(second.RedirectURL).To(Equal(first.RedirectURL))
			Expect(stub.RegisterCalls()).To(Equal(1))
		})

		It("should refuse a payee without a pocket", func() {
			p, err := service.Create(ctx, payoutpkg.CreatePayoutDTO{PayeeID: 8, AmountKop: 5000})
			Expect(err).ToNot(HaveOccurred())

			_, err = service.StartPagePayout(ctx, p.ID)

			Expect(err).To(Equal(errors.ErrPocketNotAssigned))
		})
	})

	Describe("ApplyCallback", func() {
		It("should reject with a truncated reason from the processor tags", func() {
			p := createPayout(5000)
			n := &processor.Notification{
				Reference:   fmt.Sprint(p.ID),
				State:       "REJECTED",
				Code:        "05",
				Description: strings.Repeat("x", 400),
			}

			Expect(service.ApplyCallback(ctx, p.ID, n)).To(Succeed())

			got, _ := repo.GetByID(ctx, p.ID)
			Expect(got.Status).To(Equal(payout.StatusRejected))
			Expect(*got.RejectionReason).To(HavePrefix("code 05"))
			Expect([]rune(*got.RejectionReason)).To(HaveLen(payout.MaxRejectionReasonLength))
			Expect(publisher.OfType(events.EventTypePayoutRejected)).To(HaveLen(1))
		})

		It("should ignore callbacks for a terminal payout", func() {
			p := createPayout(5000)
			approved := &processor.Notification{Reference: fmt.Sprint(p.ID), State: processor.StateApproved}
			Expect(service.ApplyCallback(ctx, p.ID, approved)).To(Succeed())

			declined := &processor.Notification{Reference: fmt.Sprint(p.ID), State: "REJECTED"}
			Expect(service.ApplyCallback(ctx, p.ID, declined)).To(Succeed())

			Expect(repo.status(p.ID)).To(Equal(payout.StatusCompleted))
			Expect(publisher.OfType(events.EventTypePayoutRejected)).To(BeEmpty())
		})

		It("should return ErrPayoutNotFound for an unknown id", func() {
			err := service.ApplyCallback(ctx, 404, &processor.Notification{State: processor.StateApproved})

			Expect(err).To(Equal(errors.ErrPayoutNotFound))
		})
	})
})
