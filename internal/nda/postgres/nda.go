package postgres

import (
	"gorm.io/gorm"

	ndamodel "github.com/frahmantamala/loan-intake/internal/core/datamodel/nda"
)

type NDARepository struct {
	db *gorm.DB
}

func NewNDARepository(db *gorm.DB) *NDARepository {
	return &NDARepository{db: db}
}

func (r *NDARepository) Create(signature *ndamodel.NDASignature) error {
	return r.db.Create(signature).Error
}

func (r *NDARepository) GetByApplicationID(applicationID int64) (*ndamodel.NDASignature, error) {
	var signature ndamodel.NDASignature
	err := r.db.Where("application_id = ?", applicationID).First(&signature).Error
	if err != nil {
		return nil, err
	}
	return &signature, nil
}

func (r *NDARepository) ExistsForApplication(applicationID int64) (bool, error) {
	var count int64
	err := r.db.Model(&ndamodel.NDASignature{}).
		Where("application_id = ?", applicationID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
