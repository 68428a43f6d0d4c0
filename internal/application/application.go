package application

import (
	"github.com/frahmantamala/loan-intake/internal/core/datamodel/application"
)

// Permissions checked for admin operations on applications.
const (
	PermissionReviewApplications  = "review_applications"
	PermissionApproveApplications = "approve_applications"
	PermissionRejectApplications  = "reject_applications"
	PermissionAdmin               = "admin"
)

// RepositoryAPI is the persistence surface for applications. The automatic
// draft-to-submitted transition is a conditional write so that concurrent
// derivations and admin actions cannot race each other into a bad state.
type RepositoryAPI interface {
	Create(app *application.Application) error
	GetByID(id int64) (*application.Application, error)
	GetByUserID(userID int64) ([]*application.Application, error)
	GetAll(limit, offset int) ([]*application.Application, error)
	UpdateStatusIfDraft(id int64, status string) (bool, error)
	UpdateStatus(id int64, status string, reviewedBy int64) error
	Touch(id int64) error
}

// PaymentFactsAPI and NDAFactsAPI are the stored facts the status deriver
// recomputes from. Re-derivation from facts, not caller-supplied deltas, is
// what makes redundant and concurrent invocations safe.
type PaymentFactsAPI interface {
	HasCompletedForApplication(applicationID int64) (bool, error)
}

type NDAFactsAPI interface {
	ExistsForApplication(applicationID int64) (bool, error)
}
