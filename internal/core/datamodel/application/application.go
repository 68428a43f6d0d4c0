package application

import (
	"encoding/json"
	"time"
)

const (
	StatusDraft       = "draft"
	StatusSubmitted   = "submitted"
	StatusUnderReview = "under_review"
	StatusApproved    = "approved"
	StatusRejected    = "rejected"
)

// Application is a loan application. Status leaves draft automatically only
// when both the application fee is paid and the NDA is signed; every later
// transition is an explicit admin action.
type Application struct {
	ID              int64           `gorm:"primaryKey"`
	UserID          int64           `gorm:"column:user_id;not null;index"`
	Status          string          `gorm:"column:status;default:draft"`
	AmountRequested int64           `gorm:"column:amount_requested"`
	Currency        string          `gorm:"column:currency"`
	Industry        string          `gorm:"column:industry"`
	ApplicationData json.RawMessage `gorm:"column:application_data;type:jsonb"`
	ReviewedBy      *int64          `gorm:"column:reviewed_by"`
	ReviewedAt      *time.Time      `gorm:"column:reviewed_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;default:now()"`
}

func (Application) TableName() string {
	return "applications"
}

// IsDraft reports whether automatic status derivation may still touch the
// application. Any other status is an admin-owned barrier.
func (a *Application) IsDraft() bool {
	return a.Status == StatusDraft
}

func ValidStatus(status string) bool {
	switch status {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}
