package payout_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/core/datamodel/payout"
	payoutpkg "github.com/frahmantamala/pocket-settlement/internal/payout"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
)

type mockPayoutService struct {
	err     error
	payout  *payout.PayoutRequest
	lastPan string
}

func (m *mockPayoutService) Create(ctx context.Context, dto payoutpkg.CreatePayoutDTO) (*payout.PayoutRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.payout, nil
}

func (m *mockPayoutService) GetByID(ctx context.Context, id int64) (*payout.PayoutRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.payout, nil
}

func (m *mockPayoutService) SendToCard(ctx context.Context, id int64, dto payoutpkg.CardPayoutDTO) (*payout.PayoutRequest, error) {
	m.lastPan = dto.Pan
	if m.err != nil {
		return nil, m.err
	}
	return m.payout, nil
}

func (m *mockPayoutService) StartPagePayout(ctx context.Context, id int64) (*payoutpkg.PagePayoutResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &payoutpkg.PagePayoutResponse{Payout: payoutpkg.ToView(m.payout), RedirectURL: "https://processor.example/page?id=500"}, nil
}

func (m *mockPayoutService) SendSBP(ctx context.Context, id int64, dto payoutpkg.SBPPayoutDTO) (*payout.PayoutRequest, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.payout, nil
}

func (m *mockPayoutService) ApplyCallback(ctx context.Context, payoutID int64, n *processor.Notification) error {
	return m.err
}

var _ = ginkgo.Describe("PayoutHandler", func() {
	var (
		service  *mockPayoutService
		router   chi.Router
		recorder *httptest.ResponseRecorder
	)

	ginkgo.BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service = &mockPayoutService{payout: &payout.PayoutRequest{ID: 3, UserID: 7, AmountKop: 5000, Status: payout.StatusCreated}}
		handler := payoutpkg.NewHandler(service, logger)

		router = chi.NewRouter()
		router.Route("/api/v1/payouts", func(r chi.Router) {
			r.Post("/", handler.CreatePayout)
			r.Get("/{id}", handler.GetPayout)
			r.Post("/{id}/card", handler.SendToCard)
			r.Post("/{id}/page", handler.StartPagePayout)
			r.Post("/{id}/sbp", handler.SendSBP)
		})
		recorder = httptest.NewRecorder()
	})

	ginkgo.It("should create a payout", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts/", bytes.NewBufferString(`{"payee_id":7,"amount_kop":5000}`))

		router.ServeHTTP(recorder, req)

		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
		gomega.Expect(recorder.Body.String()).To(gomega.ContainSubstring(`"status":"CREATED"`))
	})

	ginkgo.It("should pass the card number through", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts/3/card", bytes.NewBufferString(`{"pan":"4111111111111111"}`))

		router.ServeHTTP(recorder, req)

		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(service.lastPan).To(gomega.Equal("4111111111111111"))
	})

	ginkgo.It("should return the hosted page url", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts/3/page", nil)

		router.ServeHTTP(recorder, req)

		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(recorder.Body.String()).To(gomega.ContainSubstring("redirect_url"))
	})

	ginkgo.It("should reject a non-numeric id", func() {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/abc", nil)

		router.ServeHTTP(recorder, req)

		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
	})

	ginkgo.It("should return 409 when the payout cannot be sent", func() {
		service.err = internal.ErrInvalidPayoutStatus
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts/3/sbp", bytes.NewBufferString(`{"phone":"79001234567","bank_id":"1"}`))

		router.ServeHTTP(recorder, req)

		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
	})

	ginkgo.It("should surface the processor description on rejection", func() {
		service.err = &processor.Rejection{Code: "151", Description: "insufficient funds on pocket"}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts/3/card", bytes.NewBufferString(`{"pan":"4111111111111111"}`))

		router.ServeHTTP(recorder, req)

		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnprocessableEntity))
		gomega.Expect(recorder.Body.String()).To(gomega.ContainSubstring("insufficient funds on pocket"))
	})

	ginkgo.It("should return 404 for an unknown payout", func() {
		service.err = internal.ErrPayoutNotFound
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payouts/9", nil)

		router.ServeHTTP(recorder, req)

		gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
	})
})
