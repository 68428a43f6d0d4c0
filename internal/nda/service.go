package nda

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/core/common/validation"
	"github.com/frahmantamala/loan-intake/internal/core/datamodel/application"
	ndamodel "github.com/frahmantamala/loan-intake/internal/core/datamodel/nda"
	"github.com/frahmantamala/loan-intake/internal/core/events"
)

// ApplicationsAPI is the slice of the application repository the NDA flow
// needs for ownership checks.
type ApplicationsAPI interface {
	GetByID(id int64) (*application.Application, error)
}

type Service struct {
	repo     RepositoryAPI
	apps     ApplicationsAPI
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, apps ApplicationsAPI, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		apps:     apps,
		eventBus: eventBus,
		logger:   logger,
	}
}

func (dto SignNDADTO) Validate() error {
	validator := validation.NewValidator()
	validator.Field("signature_data", dto.SignatureData).Required().MinLength(2).MaxLength(10000)
	if err := validator.Validate(); err != nil {
		return err
	}
	return nil
}

// Sign records an NDA signature for the application. The first signature wins;
// a second attempt returns ErrNDAAlreadySigned and leaves the stored signature
// untouched.
func (s *Service) Sign(ctx context.Context, applicationID, userID int64, dto SignNDADTO, ipAddress, userAgent string) (*ndamodel.NDASignature, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	app, err := s.apps.GetByID(applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrApplicationNotFound
		}
		s.logger.Error("Sign: failed to load application", "error", err, "application_id", applicationID)
		return nil, apperrors.NewInternalError("failed to load application", err)
	}

	if app.UserID != userID {
		return nil, apperrors.ErrUnauthorizedAccess
	}

	signed, err := s.repo.ExistsForApplication(applicationID)
	if err != nil {
		s.logger.Error("Sign: failed to check existing signature", "error", err, "application_id", applicationID)
		return nil, apperrors.NewInternalError("failed to check existing signature", err)
	}
	if signed {
		return nil, apperrors.ErrNDAAlreadySigned
	}

	signature := &ndamodel.NDASignature{
		ApplicationID: applicationID,
		SignatureData: dto.SignatureData,
		SignedAt:      time.Now(),
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
	}

	if err := s.repo.Create(signature); err != nil {
		// concurrent signer hit the unique index first
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.ErrNDAAlreadySigned
		}
		s.logger.Error("Sign: failed to store signature", "error", err, "application_id", applicationID)
		return nil, apperrors.NewInternalError("failed to store signature", err)
	}

	s.logger.Info("NDA signed",
		"application_id", applicationID,
		"signature_id", signature.ID)

	if s.eventBus != nil {
		event := events.NewNDASignedEvent(signature.ID, applicationID)
		if err := s.eventBus.Publish(ctx, event); err != nil {
			s.logger.Error("Sign: failed to publish nda.signed event", "error", err, "application_id", applicationID)
		}
	}

	return signature, nil
}

// GetSignature returns the signature for an application, if any.
func (s *Service) GetSignature(applicationID int64) (*ndamodel.NDASignature, error) {
	signature, err := s.repo.GetByApplicationID(applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("no signature for application", apperrors.ErrCodeNDANotFound)
		}
		return nil, apperrors.NewInternalError("failed to load signature", err)
	}
	return signature, nil
}
