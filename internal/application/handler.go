package application

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

// CreateApplication handles POST /api/v1/applications
func (h *Handler) CreateApplication(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	var dto CreateApplicationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.Logger.Error("CreateApplication: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	app, err := h.Service.CreateApplication(user.ID, dto)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, ToView(app))
}

// GetApplication handles GET /api/v1/applications/{id}
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	id, err := h.applicationID(r)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid application ID", errors.ErrCodeValidationFailed))
		return
	}

	app, err := h.Service.GetApplication(id, user.ID, user.Permissions)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(app))
}

// GetMyApplications handles GET /api/v1/applications
func (h *Handler) GetMyApplications(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	apps, err := h.Service.GetUserApplications(user.ID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"applications": ToViews(apps)})
}

// ListAllApplications handles GET /api/v1/admin/applications
func (h *Handler) ListAllApplications(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	apps, err := h.Service.GetAllApplications(limit, offset, user.Permissions)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"applications": ToViews(apps)})
}

// StartReview handles PATCH /api/v1/admin/applications/{id}/review
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.Service.StartReview)
}

// Approve handles PATCH /api/v1/admin/applications/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.Service.Approve)
}

// Reject handles PATCH /api/v1/admin/applications/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, h.Service.Reject)
}

func (h *Handler) adminTransition(w http.ResponseWriter, r *http.Request, transition func(int64, int64, []string) error) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	id, err := h.applicationID(r)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid application ID", errors.ErrCodeValidationFailed))
		return
	}

	if err := transition(id, user.ID, user.Permissions); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"status": "updated", "application_id": id})
}

// RefreshStatus handles POST /api/v1/applications/{id}/refresh-status
func (h *Handler) RefreshStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok || user == nil {
		h.HandleError(w, errors.NewUnauthorizedError("authentication required", errors.ErrCodeInvalidToken))
		return
	}

	id, err := h.applicationID(r)
	if err != nil {
		h.HandleError(w, errors.NewValidationError("invalid application ID", errors.ErrCodeValidationFailed))
		return
	}

	app, err := h.Service.RefreshStatus(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ToView(app))
}

func (h *Handler) applicationID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return defaultVal
}
