package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentCompleted     = "payment.completed"
	EventTypePaymentFailed        = "payment.failed"
	EventTypeNDASigned            = "nda.signed"
	EventTypeApplicationSubmitted = "application.submitted"
)

type PaymentCompletedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	ApplicationID int64  `json:"application_id"`
	Gateway       string `json:"gateway"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

func NewPaymentCompletedEvent(paymentID, applicationID int64, gateway, transactionID string, amount int64, currency string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentCompleted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"application_id": applicationID,
				"gateway":        gateway,
				"transaction_id": transactionID,
				"amount":         amount,
				"currency":       currency,
			},
		},
		PaymentID:     paymentID,
		ApplicationID: applicationID,
		Gateway:       gateway,
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      currency,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	ApplicationID int64  `json:"application_id"`
	Gateway       string `json:"gateway"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

func NewPaymentFailedEvent(paymentID, applicationID int64, gateway, transactionID, status string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"application_id": applicationID,
				"gateway":        gateway,
				"transaction_id": transactionID,
				"status":         status,
			},
		},
		PaymentID:     paymentID,
		ApplicationID: applicationID,
		Gateway:       gateway,
		TransactionID: transactionID,
		Status:        status,
	}
}

type NDASignedEvent struct {
	BaseEvent
	SignatureID   int64 `json:"signature_id"`
	ApplicationID int64 `json:"application_id"`
}

func NewNDASignedEvent(signatureID, applicationID int64) *NDASignedEvent {
	return &NDASignedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeNDASigned,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"signature_id":   signatureID,
				"application_id": applicationID,
			},
		},
		SignatureID:   signatureID,
		ApplicationID: applicationID,
	}
}

type ApplicationSubmittedEvent struct {
	BaseEvent
	ApplicationID int64 `json:"application_id"`
	UserID        int64 `json:"user_id"`
}

func NewApplicationSubmittedEvent(applicationID, userID int64) *ApplicationSubmittedEvent {
	return &ApplicationSubmittedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeApplicationSubmitted,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"application_id": applicationID,
				"user_id":        userID,
			},
		},
		ApplicationID: applicationID,
		UserID:        userID,
	}
}
