package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/transaction"
	paymentpkg "github.com/frahmantamala/pocket-settlement/internal/payment"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

type mockPaymentService struct {
	createErr   error
	getErr      error
	received    paymentpkg.CreatePaymentDTO
	transaction *transaction.Transaction
}

func (m *mockPaymentService) CreatePayment(ctx context.Context, dto paymentpkg.CreatePaymentDTO) (*paymentpkg.CreatePaymentResponse, error) {
	m.received = dto
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &paymentpkg.CreatePaymentResponse{
		Payment:     paymentpkg.ToView(m.transaction),
		RedirectURL: "https://processor.example/pay?id=42",
	}, nil
}

func (m *mockPaymentService) GetByIdempotencyKey(ctx context.Context, key string) (*transaction.Transaction, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.transaction, nil
}

var _ = ginkgo.Describe("PaymentHandler", func() {
	var (
		service  *mockPaymentService
		router   chi.Router
		recorder *httptest.ResponseRecorder
	)

	ginkgo.BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = &mockPaymentService{transaction: &transaction.Transaction{
			ID:             1,
			IdempotencyKey: "idem-1",
			AmountKop:      10000,
			PaymentMethod:  transaction.MethodCard,
			RecipientID:    7,
			ExternalID:     strPtr("42"),
			Status:         transaction.StatusPending,
		}}
		handler := paymentpkg.NewHandler(service, logger)

		router = chi.NewRouter()
		router.Post("/api/v1/payments", handler.CreatePayment)
		router.Get("/api/v1/payments/{idempotency_key}", handler.GetPayment)
		recorder = httptest.NewRecorder()
	})

	createBody := func(fields map[string]interface{}) []byte {
		body, _ := json.Marshal(fields)
		return body
	}

	ginkgo.Context("CreatePayment", func() {
		ginkgo.It("should return 201 with the redirect url", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(createBody(map[string]interface{}{
				"idempotency_key": "idem-1",
				"amount_kop":      10000,
				"payment_method":  "card",
				"recipient_id":    7,
			})))

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
			var resp paymentpkg.CreatePaymentResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.RedirectURL).To(gomega.ContainSubstring("id=42"))
			gomega.Expect(resp.Payment.Status).To(gomega.Equal(transaction.StatusPending))
		})

		ginkgo.It("should take the idempotency key from the header when the body has none", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(createBody(map[string]interface{}{
				"amount_kop":     10000,
				"payment_method": "card",
				"recipient_id":   7,
			})))
			req.Header.Set("Idempotency-Key", "from-header")

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
			gomega.Expect(service.received.IdempotencyKey).To(gomega.Equal("from-header"))
		})

		ginkgo.It("should return bad request for invalid JSON", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader([]byte("not json")))

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should surface a processor rejection as 422 with its description", func() {
			service.createErr = &processor.Rejection{Code: "133", Description: "Invalid amount"}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(createBody(map[string]interface{}{
				"idempotency_key": "idem-1",
				"amount_kop":      10000,
				"payment_method":  "card",
				"recipient_id":    7,
			})))

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnprocessableEntity))
			gomega.Expect(recorder.Body.String()).To(gomega.ContainSubstring("Invalid amount"))
		})

		ginkgo.It("should return 502 when the processor is unreachable", func() {
			service.createErr = &processor.TransportError{Op: "register", Err: context.DeadlineExceeded, Timeout: true}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(createBody(map[string]interface{}{
				"idempotency_key": "idem-1",
				"amount_kop":      10000,
				"payment_method":  "card",
				"recipient_id":    7,
			})))

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadGateway))
		})

		ginkgo.It("should return 404 for an unknown payee", func() {
			service.createErr = internal.ErrPayeeNotFound
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", bytes.NewReader(createBody(map[string]interface{}{
				"idempotency_key": "idem-1",
				"amount_kop":      10000,
				"payment_method":  "card",
				"recipient_id":    99,
			})))

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})

	ginkgo.Context("GetPayment", func() {
		ginkgo.It("should return the transaction view", func() {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/idem-1", nil)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var view paymentpkg.PaymentView
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &view)).To(gomega.Succeed())
			gomega.Expect(view.IdempotencyKey).To(gomega.Equal("idem-1"))
			gomega.Expect(*view.ExternalID).To(gomega.Equal("42"))
		})

		ginkgo.It("should return 404 for an unknown key", func() {
			service.getErr = internal.ErrTransactionNotFound
			req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/missing", nil)

			router.ServeHTTP(recorder, req)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})
})
