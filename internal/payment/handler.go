package payment

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	PaymentService ServiceAPI
}

func NewHandler(paymentService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    transport.BaseHandler{Logger: logger},
		PaymentService: paymentService,
	}
}

// CreatePayment handles POST /api/v1/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var dto CreatePaymentDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.Logger.Error("CreatePayment: failed to parse request body")
		h.HandleError(w, appErr)
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" && dto.IdempotencyKey == "" {
		dto.IdempotencyKey = key
	}

	resp, err := h.PaymentService.CreatePayment(r.Context(), dto)
	if err != nil {
		h.Logger.Error("CreatePayment: service error", "error", err, "idempotency_key", dto.IdempotencyKey)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("CreatePayment: payment initiated",
		"transaction_id", resp.Payment.ID,
		"idempotency_key", resp.Payment.IdempotencyKey,
		"status", resp.Payment.Status)

	h.WriteJSON(w, http.StatusCreated, resp)
}

// GetPayment handles GET /api/v1/payments/{idempotency_key}
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "idempotency_key")
	if key == "" {
		h.HandleError(w, errors.NewValidationFieldError("idempotency_key", "idempotency_key is required", errors.ErrCodeValidationFailed))
		return
	}

	tx, err := h.PaymentService.GetByIdempotencyKey(r.Context(), key)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(tx))
}
