package payee

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

// GetBalance handles GET /api/v1/payees/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	payeeID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.HandleError(w, appErr)
		return
	}

	view, err := h.Service.RefreshBalance(r.Context(), payeeID)
	if err != nil {
		h.Logger.Error("GetBalance: service error", "error", err, "payee_id", payeeID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}
