package payment

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	apperrors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/gateway"
	"github.com/frahmantamala/loan-intake/internal/transport"
)

// WebhookHandler is the inbound surface for provider callbacks. The response
// contract matters more than usual here: anything other than a 2xx makes the
// provider retry, so only structurally unusable payloads get a client error.
type WebhookHandler struct {
	*transport.BaseHandler
	orchestrator *Orchestrator
	reconciler   *Reconciler
	logger       *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, orchestrator *Orchestrator, reconciler *Reconciler, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:  baseHandler,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		logger:       logger,
	}
}

type webhookAck struct {
	Status string `json:"status"`
}

// HandleWebhook serves POST (and, for gateways that deliver IPNs as
// redirect-style requests, GET) /payments/webhook/{gateway}.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	gatewayID := chi.URLParam(r, "gateway")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "gateway", gatewayID, "error", err)
		h.WriteError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	// IPNs delivered as GET carry everything in the query string.
	if len(payload) == 0 && r.URL.RawQuery != "" {
		payload = []byte(r.URL.RawQuery)
	}

	h.logger.Info("received payment webhook",
		"gateway", gatewayID,
		"payload_bytes", len(payload))

	result, err := h.orchestrator.HandleWebhook(payload, r.Header, gatewayID)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrInvalidSignature):
			// Forged or unsigned where a signature is required: log it,
			// change nothing, and acknowledge so the provider does not
			// hammer us with retries of a payload we will never trust.
			h.logger.Warn("webhook signature rejected",
				"gateway", gatewayID)
			h.WriteJSON(w, http.StatusOK, webhookAck{Status: "success"})
		case errors.Is(err, gateway.ErrMalformedPayload):
			h.logger.Error("malformed webhook payload",
				"gateway", gatewayID,
				"error", err)
			h.WriteError(w, http.StatusBadRequest, "malformed payload")
		case errors.Is(err, apperrors.ErrUnknownGateway):
			h.logger.Error("webhook for unknown gateway", "gateway", gatewayID)
			h.WriteError(w, http.StatusNotFound, "unknown gateway")
		default:
			h.logger.Error("webhook parsing failed",
				"gateway", gatewayID,
				"error", err)
			h.WriteError(w, http.StatusBadRequest, "unprocessable payload")
		}
		return
	}

	// Bound reconciliation so a hung verification call cannot hold the
	// provider's delivery open past its own retry timeout.
	ctx, cancel := apperrors.WithTimeout(r.Context(), h.orchestrator.verifyTimeout)
	defer cancel()
	h.reconciler.Reconcile(ctx, gatewayID, result)

	h.WriteJSON(w, http.StatusOK, webhookAck{Status: "success"})
}
