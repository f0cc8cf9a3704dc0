package payout

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/pocket-settlement/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.BaseHandler{Logger: logger},
		Service:     service,
	}
}

// CreatePayout handles POST /api/v1/payouts
func (h *Handler) CreatePayout(w http.ResponseWriter, r *http.Request) {
	var dto CreatePayoutDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.Service.Create(r.Context(), dto)
	if err != nil {
		h.Logger.Error("CreatePayout: service error", "error", err, "payee_id", dto.PayeeID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToView(p))
}

// GetPayout handles GET /api/v1/payouts/{id}
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(p))
}

// SendToCard handles POST /api/v1/payouts/{id}/card
func (h *Handler) SendToCard(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	var dto CardPayoutDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.Service.SendToCard(r.Context(), id, dto)
	if err != nil {
		h.Logger.Error("SendToCard: service error", "error", err, "payout_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(p))
}

// StartPagePayout handles POST /api/v1/payouts/{id}/page
func (h *Handler) StartPagePayout(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	resp, err := h.Service.StartPagePayout(r.Context(), id)
	if err != nil {
		h.Logger.Error("StartPagePayout: service error", "error", err, "payout_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// SendSBP handles POST /api/v1/payouts/{id}/sbp
func (h *Handler) SendSBP(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}
	var dto SBPPayoutDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	p, err := h.Service.SendSBP(r.Context(), id, dto)
	if err != nil {
		h.Logger.Error("SendSBP: service error", "error", err, "payout_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(p))
}
