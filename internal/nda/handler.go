package nda

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
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: *transport.NewBaseHandler(logger),
		Service:     service,
		Logger:      logger,
	}
}

// SignNDA handles POST /api/v1/applications/{id}/nda
func (h *Handler) SignNDA(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	applicationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid application ID", errors.ErrCodeValidationFailed))
		return
	}

	var dto SignNDADTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("SignNDA: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	signature, err := h.Service.Sign(r.Context(), applicationID, user.ID, dto, clientIP(r), r.UserAgent())
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToView(signature))
}

// GetNDA handles GET /api/v1/applications/{id}/nda
func (h *Handler) GetNDA(w http.ResponseWriter, r *http.Request) {
	applicationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid application ID", errors.ErrCodeValidationFailed))
		return
	}

	signature, err := h.Service.GetSignature(applicationID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(signature))
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}
