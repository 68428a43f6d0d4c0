package payment

import (
	"time"

	errors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/core/common/validation"
	"github.com/frahmantamala/loan-intake/internal/core/datamodel/payment"
)

type InitializePaymentDTO struct {
	ApplicationID int64                  `json:"application_id"`
	Gateway       string                 `json:"gateway"`
	Amount        int64                  `json:"amount"`
	Currency      string                 `json:"currency"`
	Description   string                 `json:"description"`
	CustomerEmail string                 `json:"customer_email"`
	CustomerName  string                 `json:"customer_name"`
	CallbackURL   string                 `json:"callback_url"`
	CancelURL     string                 `json:"cancel_url,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

func (d *InitializePaymentDTO) Validate() error {
	validator := validation.NewValidator()

	validator.Field("application_id", d.ApplicationID).Required()
	validator.Field("gateway", d.Gateway).Required()
	validator.Field("amount", d.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("currency", d.Currency).Required().MinLength(3).MaxLength(3)
	validator.Field("customer_email", d.CustomerEmail).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type InitializePaymentResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id"`
	Reference     string `json:"reference"`
	PaymentURL    string `json:"payment_url"`
	Gateway       string `json:"gateway"`
}

type VerifyPaymentResponse struct {
	Success       bool       `json:"success"`
	Status        string     `json:"status"`
	TransactionID string     `json:"transaction_id"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type PaymentView struct {
	ID             int64      `json:"id"`
	ApplicationID  int64      `json:"application_id"`
	PaymentGateway string     `json:"payment_gateway"`
	TransactionID  string     `json:"transaction_id"`
	Amount         int64      `json:"amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func ToView(p *payment.PaymentRecord) *PaymentView {
	if p == nil {
		return nil
	}
	return &PaymentView{
		ID:             p.ID,
		ApplicationID:  p.ApplicationID,
		PaymentGateway: p.PaymentGateway,
		TransactionID:  p.GatewayTransactionID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		Status:         p.Status,
		PaidAt:         p.PaidAt,
		CreatedAt:      p.CreatedAt,
	}
}
