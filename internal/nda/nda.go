// Package nda records signed non-disclosure agreements against loan
// applications. A signature is first-write-wins per application and feeds the
// application status derivation alongside payment completion.
package nda

import (
	"time"

	"github.com/frahmantamala/loan-intake/internal/core/datamodel/nda"
)

type RepositoryAPI interface {
	Create(signature *nda.NDASignature) error
	GetByApplicationID(applicationID int64) (*nda.NDASignature, error)
	ExistsForApplication(applicationID int64) (bool, error)
}

type SignNDADTO struct {
	SignatureData string `json:"signature_data"`
}

type SignatureView struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application_id"`
	SignedAt      time.Time `json:"signed_at"`
}

func ToView(s *nda.NDASignature) SignatureView {
	return SignatureView{
		ID:            s.ID,
		ApplicationID: s.ApplicationID,
		SignedAt:      s.SignedAt,
	}
}
