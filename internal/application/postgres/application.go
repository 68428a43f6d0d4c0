package postgres

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/loan-intake/internal/core/datamodel/application"
)

type ApplicationRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewApplicationRepository(db *gorm.DB, logger *slog.Logger) *ApplicationRepository {
	return &ApplicationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ApplicationRepository) Create(app *application.Application) error {
	if err := r.db.Create(app).Error; err != nil {
		r.logger.Error("failed to create application", "error", err, "user_id", app.UserID)
		return err
	}
	return nil
}

func (r *ApplicationRepository) GetByID(id int64) (*application.Application, error) {
	var app application.Application
	if err := r.db.First(&app, id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *ApplicationRepository) GetByUserID(userID int64) ([]*application.Application, error) {
	var apps []*application.Application
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

func (r *ApplicationRepository) GetAll(limit, offset int) ([]*application.Application, error) {
	var apps []*application.Application
	err := r.db.Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&apps).Error
	if err != nil {
		return nil, err
	}
	return apps, nil
}

// UpdateStatusIfDraft transitions the application out of draft only when it is
// still in draft, so admin decisions are never overwritten by a late derivation.
func (r *ApplicationRepository) UpdateStatusIfDraft(id int64, status string) (bool, error) {
	result := r.db.Model(&application.Application{}).
		Where("id = ? AND status = ?", id, application.StatusDraft).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		r.logger.Error("failed to update application status", "error", result.Error, "application_id", id)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ApplicationRepository) UpdateStatus(id int64, status string, reviewedBy int64) error {
	now := time.Now()
	result := r.db.Model(&application.Application{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"reviewed_by": reviewedBy,
			"reviewed_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		r.logger.Error("failed to update application status", "error", result.Error, "application_id", id)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ApplicationRepository) Touch(id int64) error {
	return r.db.Model(&application.Application{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}
