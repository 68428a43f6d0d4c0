package application

import (
	"encoding/json"
	"time"

	errors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/core/common/validation"
	"github.com/frahmantamala/loan-intake/internal/core/datamodel/application"
)

type CreateApplicationDTO struct {
	AmountRequested int64           `json:"amount_requested"`
	Currency        string          `json:"currency"`
	Industry        string          `json:"industry"`
	ApplicationData json.RawMessage `json:"application_data,omitempty"`
}

func (d *CreateApplicationDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("amount_requested", d.AmountRequested).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("currency", d.Currency).Required().MinLength(3).MaxLength(3)
	validator.Field("industry", d.Industry).Required().MaxLength(100)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ApplicationView struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"user_id"`
	Status          string          `json:"status"`
	AmountRequested int64           `json:"amount_requested"`
	Currency        string          `json:"currency"`
	Industry        string          `json:"industry"`
	ApplicationData json.RawMessage `json:"application_data,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func ToView(a *application.Application) *ApplicationView {
	if a == nil {
		return nil
	}
	return &ApplicationView{
		ID:              a.ID,
		UserID:          a.UserID,
		Status:          a.Status,
		AmountRequested: a.AmountRequested,
		Currency:        a.Currency,
		Industry:        a.Industry,
		ApplicationData: a.ApplicationData,
		ReviewedAt:      a.ReviewedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func ToViews(apps []*application.Application) []*ApplicationView {
	views := make([]*ApplicationView, 0, len(apps))
	for _, a := range apps {
		views = append(views, ToView(a))
	}
	return views
}
