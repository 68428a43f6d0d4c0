package payment

import (
	"encoding/json"
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// PaymentRecord is one payment attempt against an application fee. A record
// is created before the payer is redirected to the gateway and only ever
// moves forward: pending -> completed/failed/cancelled.
type PaymentRecord struct {
	ID                   int64           `gorm:"primaryKey"`
	ApplicationID        int64           `gorm:"column:application_id;not null;index"`
	PaymentGateway       string          `gorm:"column:payment_gateway;not null;uniqueIndex:idx_gateway_txn"`
	GatewayTransactionID string          `gorm:"column:gateway_transaction_id;not null;uniqueIndex:idx_gateway_txn"`
	GatewayReference     *string         `gorm:"column:gateway_reference;index"`
	Amount               int64           `gorm:"column:amount;not null"`
	Currency             string          `gorm:"column:currency;not null"`
	Status               string          `gorm:"column:status;default:pending"`
	GatewayResponse      json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	PaidAt               *time.Time      `gorm:"column:paid_at"`
	CreatedAt            time.Time       `gorm:"column:created_at;default:now()"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;default:now()"`
}

func (PaymentRecord) TableName() string {
	return "payment_records"
}

// IsTerminal reports whether the record has left the pending state.
// Terminal statuses are never overwritten by later webhook deliveries.
func (p *PaymentRecord) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed || p.Status == StatusCancelled
}

func (p *PaymentRecord) IsCompleted() bool {
	return p.Status == StatusCompleted
}
