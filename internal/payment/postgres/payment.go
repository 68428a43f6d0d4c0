package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/loan-intake/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/loan-intake/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(p *payment.PaymentRecord) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id int64) (*payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByTransactionID(gatewayName, transactionID string) (*payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	err := r.db.Where("payment_gateway = ? AND gateway_transaction_id = ?", gatewayName, transactionID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByGatewayReference(gatewayName, reference string) (*payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	err := r.db.Where("payment_gateway = ? AND gateway_reference = ?", gatewayName, reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReference(reference string) (*payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	err := r.db.Where("gateway_transaction_id = ?", reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByApplicationID(applicationID int64) ([]*payment.PaymentRecord, error) {
	var records []*payment.PaymentRecord
	err := r.db.Where("application_id = ?", applicationID).Order("created_at DESC").Find(&records).Error
	return records, err
}

func (r *PaymentRepository) GetLatestByApplicationID(applicationID int64) (*payment.PaymentRecord, error) {
	var p payment.PaymentRecord
	err := r.db.Where("application_id = ?", applicationID).Order("created_at DESC").First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateStatusIfPending is the conditional write that keeps webhook replay
// and reordering safe: the row only changes while it is still pending, so
// the first terminal delivery wins and every later one is a no-op. Returns
// whether this call performed the transition.
func (r *PaymentRepository) UpdateStatusIfPending(id int64, status string, gatewayResponse json.RawMessage, paidAt *time.Time) (bool, error) {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}

	if gatewayResponse != nil {
		updates["gateway_response"] = gatewayResponse
	}

	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}

	result := r.db.Model(&payment.PaymentRecord{}).
		Where("id = ? AND status = ?", id, payment.StatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// HasCompletedForApplication is the payment-side fact consumed by the
// application status deriver.
func (r *PaymentRepository) HasCompletedForApplication(applicationID int64) (bool, error) {
	var count int64
	err := r.db.Model(&payment.PaymentRecord{}).
		Where("application_id = ? AND status = ?", applicationID, payment.StatusCompleted).
		Count(&count).Error
	return count > 0, err
}

func (r *PaymentRepository) ListPendingOlderThan(age time.Duration, limit int) ([]*payment.PaymentRecord, error) {
	cutoff := time.Now().Add(-age)
	var records []*payment.PaymentRecord
	err := r.db.Where("status = ? AND created_at < ?", payment.StatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}
