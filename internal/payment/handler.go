package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/auth"
	"github.com/frahmantamala/loan-intake/internal/transport"
)

type Handler struct {
	transport.BaseHandler
	PaymentService ServiceAPI
	Logger         *slog.Logger
}

func NewHandler(paymentService ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler:    *transport.NewBaseHandler(logger),
		PaymentService: paymentService,
		Logger:         logger,
	}
}

// ListGateways handles GET /api/v1/payments/gateways
func (h *Handler) ListGateways(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"gateways": h.PaymentService.AvailableGateways(),
	})
}

// InitializePayment handles POST /api/v1/payments/initialize
func (h *Handler) InitializePayment(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.Logger.Error("InitializePayment: user not found in context")
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var dto InitializePaymentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("InitializePayment: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	resp, err := h.PaymentService.InitializePayment(r.Context(), dto)
	if err != nil {
		h.Logger.Error("InitializePayment: service error",
			"error", err,
			"application_id", dto.ApplicationID,
			"gateway", dto.Gateway,
			"user_id", user.ID)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("InitializePayment: payment initialized",
		"application_id", dto.ApplicationID,
		"gateway", dto.Gateway,
		"reference", resp.Reference,
		"user_id", user.ID)

	h.WriteJSON(w, http.StatusOK, resp)
}

// LatestForApplication handles GET /api/v1/applications/{id}/payments/latest
func (h *Handler) LatestForApplication(w http.ResponseWriter, r *http.Request) {
	applicationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid application ID", errors.ErrCodeValidationFailed))
		return
	}

	view, err := h.PaymentService.LatestForApplication(applicationID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}

// VerifyPayment handles GET /api/v1/payments/verify/{reference}
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		h.HandleError(w, errors.NewValidationError("reference is required", errors.ErrCodeInvalidReference))
		return
	}

	resp, err := h.PaymentService.VerifyPayment(r.Context(), reference)
	if err != nil {
		h.Logger.Error("VerifyPayment: service error",
			"error", err,
			"reference", reference,
			"user_id", errors.UserIDFromContext(r.Context()))
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}
