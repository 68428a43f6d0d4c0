package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/frahmantamala/loan-intake/internal/core/datamodel/payment"
	"github.com/frahmantamala/loan-intake/internal/gateway"
)

// RepositoryAPI is the persistence surface for payment records. Status
// updates are conditional writes: they only apply while the record is still
// pending, which is what makes webhook replay and reordering safe without
// in-process locks.
type RepositoryAPI interface {
	Create(p *payment.PaymentRecord) error
	GetByID(id int64) (*payment.PaymentRecord, error)
	GetByTransactionID(gatewayName, transactionID string) (*payment.PaymentRecord, error)
	GetByGatewayReference(gatewayName, reference string) (*payment.PaymentRecord, error)
	GetByReference(reference string) (*payment.PaymentRecord, error)
	GetByApplicationID(applicationID int64) ([]*payment.PaymentRecord, error)
	GetLatestByApplicationID(applicationID int64) (*payment.PaymentRecord, error)
	UpdateStatusIfPending(id int64, status string, gatewayResponse json.RawMessage, paidAt *time.Time) (bool, error)
	ListPendingOlderThan(age time.Duration, limit int) ([]*payment.PaymentRecord, error)
	HasCompletedForApplication(applicationID int64) (bool, error)
}

// ServiceAPI is what HTTP handlers see.
type ServiceAPI interface {
	AvailableGateways() []string
	InitializePayment(ctx context.Context, dto InitializePaymentDTO) (*InitializePaymentResponse, error)
	VerifyPayment(ctx context.Context, reference string) (*VerifyPaymentResponse, error)
	LatestForApplication(applicationID int64) (*PaymentView, error)
}

// NewPaymentReference builds the merchant reference for an application fee
// attempt: APP-{applicationID}-{unix millis}. The owning application id can
// be recovered from the reference alone, which matters for gateways whose
// callbacks carry nothing but this string.
func NewPaymentReference(applicationID int64, now time.Time) string {
	return fmt.Sprintf("APP-%d-%d", applicationID, now.UnixMilli())
}

// ApplicationIDFromReference recovers the owning application id from a
// payment reference. The format is APP-{applicationID}-{timestamp}; the
// second dash-separated segment is the id.
func ApplicationIDFromReference(reference string) (int64, error) {
	parts := strings.Split(reference, "-")
	if len(parts) < 2 {
		return 0, fmt.Errorf("reference %q does not match APP-{id}-{timestamp}", reference)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("reference %q has non-numeric application id: %w", reference, err)
	}
	return id, nil
}

// canonicalStatus narrows a gateway status to the persisted vocabulary.
func canonicalStatus(s gateway.Status) string {
	switch s {
	case gateway.StatusCompleted:
		return payment.StatusCompleted
	case gateway.StatusFailed:
		return payment.StatusFailed
	case gateway.StatusCancelled:
		return payment.StatusCancelled
	default:
		return payment.StatusPending
	}
}
