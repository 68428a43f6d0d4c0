package application

import (
	"context"
	"log/slog"

	errors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/core/datamodel/application"
)

// Service handles application intake and the admin review flow. Admin
// transitions are explicit state changes that the automatic status deriver
// treats as a barrier; they never pass through derivation.
type Service struct {
	repo    RepositoryAPI
	deriver *StatusDeriver
	logger  *slog.Logger
}

func NewService(repo RepositoryAPI, deriver *StatusDeriver, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		deriver: deriver,
		logger:  logger,
	}
}

func (s *Service) CreateApplication(userID int64, dto CreateApplicationDTO) (*application.Application, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("application validation failed", "error", err, "user_id", userID)
		return nil, err
	}

	app := &application.Application{
		UserID:          userID,
		Status:          application.StatusDraft,
		AmountRequested: dto.AmountRequested,
		Currency:        dto.Currency,
		Industry:        dto.Industry,
		ApplicationData: dto.ApplicationData,
	}

	if err := s.repo.Create(app); err != nil {
		s.logger.Error("failed to create application", "error", err, "user_id", userID)
		return nil, errors.NewInternalError("failed to create application", err)
	}

	s.logger.Info("application created",
		"application_id", app.ID,
		"user_id", userID,
		"amount_requested", dto.AmountRequested,
		"currency", dto.Currency)

	return app, nil
}

func (s *Service) GetApplication(id, userID int64, userPermissions []string) (*application.Application, error) {
	app, err := s.repo.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get application", "error", err, "application_id", id)
		return nil, errors.ErrApplicationNotFound
	}

	if app.UserID != userID && !hasAnyPermission(userPermissions, PermissionReviewApplications, PermissionAdmin) {
		s.logger.Warn("unauthorized access to application",
			"application_id", id,
			"user_id", userID,
			"owner_id", app.UserID)
		return nil, errors.ErrUnauthorizedAccess
	}

	return app, nil
}

func (s *Service) GetUserApplications(userID int64) ([]*application.Application, error) {
	apps, err := s.repo.GetByUserID(userID)
	if err != nil {
		s.logger.Error("failed to get user applications", "error", err, "user_id", userID)
		return nil, err
	}
	return apps, nil
}

func (s *Service) GetAllApplications(limit, offset int, userPermissions []string) ([]*application.Application, error) {
	if !hasAnyPermission(userPermissions, PermissionReviewApplications, PermissionAdmin) {
		s.logger.Warn("list applications denied: insufficient permissions", "permissions", userPermissions)
		return nil, errors.ErrUnauthorizedAccess
	}

	apps, err := s.repo.GetAll(limit, offset)
	if err != nil {
		s.logger.Error("failed to list applications", "error", err)
		return nil, err
	}
	return apps, nil
}

// StartReview moves a submitted application into review.
func (s *Service) StartReview(applicationID, adminID int64, userPermissions []string) error {
	return s.adminTransition(applicationID, adminID, userPermissions,
		PermissionReviewApplications,
		[]string{application.StatusSubmitted},
		application.StatusUnderReview)
}

// Approve finishes review positively.
func (s *Service) Approve(applicationID, adminID int64, userPermissions []string) error {
	return s.adminTransition(applicationID, adminID, userPermissions,
		PermissionApproveApplications,
		[]string{application.StatusSubmitted, application.StatusUnderReview},
		application.StatusApproved)
}

// Reject finishes review negatively.
func (s *Service) Reject(applicationID, adminID int64, userPermissions []string) error {
	return s.adminTransition(applicationID, adminID, userPermissions,
		PermissionRejectApplications,
		[]string{application.StatusSubmitted, application.StatusUnderReview},
		application.StatusRejected)
}

func (s *Service) adminTransition(applicationID, adminID int64, userPermissions []string, requiredPermission string, fromStatuses []string, toStatus string) error {
	if !hasAnyPermission(userPermissions, requiredPermission, PermissionAdmin) {
		s.logger.Warn("admin transition denied: insufficient permissions",
			"application_id", applicationID,
			"admin_id", adminID,
			"required_permission", requiredPermission,
			"permissions", userPermissions)
		return errors.ErrUnauthorizedAccess
	}

	app, err := s.repo.GetByID(applicationID)
	if err != nil {
		s.logger.Error("application not found for admin transition", "error", err, "application_id", applicationID)
		return errors.ErrApplicationNotFound
	}

	allowed := false
	for _, from := range fromStatuses {
		if app.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		s.logger.Warn("admin transition rejected: invalid current status",
			"application_id", applicationID,
			"current_status", app.Status,
			"target_status", toStatus)
		return errors.ErrInvalidApplicationStatus
	}

	if err := s.repo.UpdateStatus(applicationID, toStatus, adminID); err != nil {
		s.logger.Error("failed to persist admin transition",
			"error", err,
			"application_id", applicationID,
			"target_status", toStatus)
		return errors.NewInternalError("failed to update application status", err)
	}

	s.logger.Info("application status changed by admin",
		"application_id", applicationID,
		"admin_id", adminID,
		"old_status", app.Status,
		"new_status", toStatus)

	return nil
}

// RefreshStatus is the manual derivation trigger: it re-derives from stored
// facts. Useful when a webhook was lost and an operator wants the
// application to catch up without waiting for the sweep.
func (s *Service) RefreshStatus(ctx context.Context, applicationID int64) (*application.Application, error) {
	if err := s.deriver.DeriveStatus(ctx, applicationID); err != nil {
		s.logger.Error("manual status refresh failed", "error", err, "application_id", applicationID)
	}

	app, err := s.repo.GetByID(applicationID)
	if err != nil {
		return nil, errors.ErrApplicationNotFound
	}
	return app, nil
}

func hasAnyPermission(userPermissions []string, required ...string) bool {
	for _, userPerm := range userPermissions {
		for _, req := range required {
			if userPerm == req {
				return true
			}
		}
	}
	return false
}
