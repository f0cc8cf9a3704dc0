package payment

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"

	errors "github.com/frahmantamala/pocket-settlement/internal"
	"github.com/frahmantamala/pocket-settlement/internal/processor"
	"github.com/frahmantamala/pocket-settlement/internal/transport"
)

const maxCallbackBytes = 64 << 10

type NotificationHandler interface {
	HandleNotification(ctx context.Context, n *processor.Notification) error
}

// WebhookHandler receives processor callbacks for both payments and payouts.
type WebhookHandler struct {
	*transport.BaseHandler
	settlement NotificationHandler
	secret     string
	logger     *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, settlement NotificationHandler, secret string, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		settlement:  settlement,
		secret:      secret,
		logger:      logger,
	}
}

// HandleCallback handles POST /api/v1/payment/callback. Once the signature
// checks out the processor always gets 200, so it stops redelivering.
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
	if err != nil {
		h.logger.Error("failed to read processor callback", "error", err)
		h.writeText(w, http.StatusBadRequest, "BAD REQUEST")
		return
	}

	n, err := processor.ParseNotification(body, h.secret)
	if err != nil {
		h.logger.Warn("processor callback rejected", "reason", "signature mismatch", "remote_addr", r.RemoteAddr)
		h.writeText(w, http.StatusBadRequest, "BAD REQUEST")
		return
	}

	h.logger.Info("received processor callback",
		"reference", n.Reference,
		"operation_id", n.OperationID,
		"processor_state", n.StateLabel())

	if err := h.settlement.HandleNotification(r.Context(), n); err != nil {
		if stderrors.Is(err, errors.ErrTransactionNotFound) || stderrors.Is(err, errors.ErrPayoutNotFound) {
			h.logger.Warn("processor callback for unknown reference", "reference", n.Reference)
		} else {
			h.logger.Error("failed to process processor callback", "error", err, "reference", n.Reference)
		}
	}

	h.writeText(w, http.StatusOK, "OK")
}

func (h *WebhookHandler) writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		h.logger.Error("failed to write callback response", "error", err)
	}
}
