package payment_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	"github.com/frahmantamala/pocket-settlement/internal/core/events"
	"github.com/frahmantamala/pocket-settlement/internal/payment"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/transport"
)

const callbackSecret = "callback-secret"

var _ = Describe("WebhookHandler", func() {
	var (
		logger    *slog.Logger
		repo      *memoryRepository
		payees    *payeeDirectory
		publisher *recordingPublisher
		handler   *payment.WebhookHandler
		tx        *transaction.Transaction
	)

	post := func(body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/callback", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/xml")
		recorder := httptest.NewRecorder()
		handler.HandleCallback(recorder, req)
		return recorder
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		repo = newMemoryRepository()
		payees = newPayeeDirectory()
		payees.add(7, payeePocket)
		publisher = &recordingPublisher{}

		stub := processor.NewStub(logger)
		relocator := payment.NewRelocator(repo, payees, stub, publisher,
			payment.RelocatorConfig{PlatformSdRef: platformPocket, BusyErrorCode: "109"}, logger)
		settlement := payment.NewSettlement(repo, payees, relocator, fullQueue{}, publisher,
			payment.SettlementConfig{PlatformSdRef: platformPocket}, logger)
		handler = payment.NewWebhookHandler(transport.NewBaseHandler(logger), settlement, callbackSecret, logger)

		// paid straight into the payee pocket, so approval completes it inline
		tx = repo.seed(&transaction.Transaction{
			IdempotencyKey: "idem-hook",
			AmountKop:      10000,
			PaymentMethod:  transaction.MethodCard,
			RecipientID:    7,
			ExternalID:     strPtr("42"),
			Status:         transaction.StatusPending,
		})
	})

	Context("with a valid signature", func() {
		It("should apply the callback and answer OK", func() {
			// Given
			body := callbackBody(callbackSecret,
				"order_id", "42", "state", "APPROVED", "reference", "idem-hook", "id", "901")

			// When
			recorder := post(body)

			// Then
			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(recorder.Body.String()).To(Equal("OK"))
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusSuccess))
			Expect(publisher.OfType(events.EventTypeBalanceChanged)).To(HaveLen(1))
		})

		It("should answer OK for a duplicate delivery without a second event", func() {
			body := callbackBody(callbackSecret, "reference", "idem-hook", "order_state", "COMPLETED")

			Expect(post(body).Code).To(Equal(http.StatusOK))
			Expect(post(body).Code).To(Equal(http.StatusOK))

			Expect(publisher.OfType(events.EventTypeBalanceChanged)).To(HaveLen(1))
		})

		It("should answer OK for an unknown reference", func() {
			body := callbackBody(callbackSecret, "reference", "no-such-key", "state", "APPROVED")

			recorder := post(body)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
		})
	})

	Context("with a bad signature", func() {
		It("should reject a tampered body without touching the transaction", func() {
			body := callbackBody(callbackSecret, "reference", "idem-hook", "state", "REJECTED")
			tampered := []byte(strings.Replace(string(body), "REJECTED", "APPROVED", 1))

			recorder := post(tampered)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(recorder.Body.String()).To(Equal("BAD REQUEST"))
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
			Expect(publisher.OfType(events.EventTypeBalanceChanged)).To(BeEmpty())
		})

		It("should reject a body signed with another secret", func() {
			recorder := post(callbackBody("other-secret", "reference", "idem-hook", "state", "APPROVED"))

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
		})

		It("should reject a body without a signature", func() {
			body := []byte(`<?xml version="1.0"?><operation><reference>idem-hook</reference><state>APPROVED</state></operation>`)

			recorder := post(body)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
			Expect(repo.status(tx.ID)).To(Equal(transaction.StatusPending))
		})
	})

	Context("when processing fails after the signature check", func() {
		It("should still answer OK", func() {
			failing := payment.NewWebhookHandler(transport.NewBaseHandler(logger), failingSettlement{}, callbackSecret, logger)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/callback",
				bytes.NewReader(callbackBody(callbackSecret, "reference", "idem-hook", "state", "APPROVED")))
			recorder := httptest.NewRecorder()

			failing.HandleCallback(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
		})
	})
})

type failingSettlement struct{}

func (failingSettlement) HandleNotification(ctx context.Context, n *processor.Notification) error {
	return context.DeadlineExceeded
}
