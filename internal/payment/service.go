package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/core/datamodel/payment"
	"github.com/frahmantamala/loan-intake/internal/gateway"
)

// Service wraps the Orchestrator with persistence: it creates the pending
// PaymentRecord before the payer is redirected and applies verify results
// through the same forward-only transition the Reconciler uses.
type Service struct {
	repo         RepositoryAPI
	orchestrator *Orchestrator
	reconciler   *Reconciler
	logger       *slog.Logger
}

func NewService(repo RepositoryAPI, orchestrator *Orchestrator, reconciler *Reconciler, logger *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		orchestrator: orchestrator,
		reconciler:   reconciler,
		logger:       logger,
	}
}

func (s *Service) AvailableGateways() []string {
	return s.orchestrator.AvailableGateways()
}

// InitializePayment creates a pending PaymentRecord and asks the gateway for
// a redirect target. The record exists before the payer leaves our site so
// that the webhook always has something to correlate against.
func (s *Service) InitializePayment(ctx context.Context, dto InitializePaymentDTO) (*InitializePaymentResponse, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("payment initialization validation failed", "error", err)
		return nil, err
	}

	reference := NewPaymentReference(dto.ApplicationID, time.Now())

	result, err := s.orchestrator.InitializePayment(ctx, gateway.InitializeParams{
		Amount:        dto.Amount,
		Currency:      dto.Currency,
		Description:   dto.Description,
		Reference:     reference,
		CustomerEmail: dto.CustomerEmail,
		CustomerName:  dto.CustomerName,
		CallbackURL:   dto.CallbackURL,
		CancelURL:     dto.CancelURL,
		Metadata:      dto.Metadata,
	}, dto.Gateway)
	if err != nil {
		return nil, err
	}

	record := &payment.PaymentRecord{
		ApplicationID:        dto.ApplicationID,
		PaymentGateway:       dto.Gateway,
		GatewayTransactionID: result.TransactionID,
		Amount:               dto.Amount,
		Currency:             dto.Currency,
		Status:               payment.StatusPending,
	}
	if result.GatewayReference != "" {
		ref := result.GatewayReference
		record.GatewayReference = &ref
	}

	if err := s.repo.Create(record); err != nil {
		s.logger.Error("failed to create payment record",
			"error", err,
			"application_id", dto.ApplicationID,
			"reference", reference)
		return nil, errors.NewInternalError("failed to create payment record", err)
	}

	s.logger.Info("payment initialized",
		"payment_id", record.ID,
		"application_id", dto.ApplicationID,
		"gateway", dto.Gateway,
		"reference", reference,
		"amount", dto.Amount,
		"currency", dto.Currency)

	return &InitializePaymentResponse{
		Success:       true,
		TransactionID: result.TransactionID,
		Reference:     result.Reference,
		PaymentURL:    result.PaymentURL,
		Gateway:       dto.Gateway,
	}, nil
}

// VerifyPayment checks the authoritative gateway-side status of a payment
// and applies it to the stored record. Gateways that correlate callbacks by
// their own tracking id are verified by that id, everything else by our
// merchant reference.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*VerifyPaymentResponse, error) {
	record, err := s.repo.GetByReference(reference)
	if err != nil {
		s.logger.Error("payment record not found for verify", "reference", reference, "error", err)
		return nil, errors.ErrPaymentNotFound
	}

	verifyKey := record.GatewayTransactionID
	if record.GatewayReference != nil && *record.GatewayReference != "" {
		verifyKey = *record.GatewayReference
	}

	status := s.orchestrator.VerifyPayment(ctx, verifyKey, record.PaymentGateway)

	if applyErr := s.reconciler.applyStatus(record, status.Status, status.Raw, status.PaidAt); applyErr != nil {
		// Surface the verify result anyway; the record will catch up on
		// the next webhook or sweep.
		s.logger.Error("failed to persist verified payment status",
			"payment_id", record.ID,
			"reference", reference,
			"status", status.Status,
			"error", applyErr)
	}

	persisted, err := s.repo.GetByID(record.ID)
	if err != nil {
		persisted = record
	}

	return &VerifyPaymentResponse{
		Success:       true,
		Status:        persisted.Status,
		TransactionID: persisted.GatewayTransactionID,
		Amount:        persisted.Amount,
		Currency:      persisted.Currency,
		PaidAt:        persisted.PaidAt,
	}, nil
}

func (s *Service) LatestForApplication(applicationID int64) (*PaymentView, error) {
	record, err := s.repo.GetLatestByApplicationID(applicationID)
	if err != nil {
		return nil, errors.ErrPaymentNotFound
	}
	return ToView(record), nil
}

// ReverifyPending drives the reconciliation sweep: every pending record
// older than age is re-verified against its gateway and settled if the
// provider reports a terminal status. Used by the background worker to close
// the at-least-once gap left by webhook deliveries that failed to persist.
func (s *Service) ReverifyPending(ctx context.Context, age time.Duration, limit int) (int, error) {
	records, err := s.repo.ListPendingOlderThan(age, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}

	settled := 0
	for _, record := range records {
		verifyKey := record.GatewayTransactionID
		if record.GatewayReference != nil && *record.GatewayReference != "" {
			verifyKey = *record.GatewayReference
		}

		status := s.orchestrator.VerifyPayment(ctx, verifyKey, record.PaymentGateway)
		if status.Status == gateway.StatusPending {
			continue
		}

		if err := s.reconciler.applyStatus(record, status.Status, status.Raw, status.PaidAt); err != nil {
			s.logger.Error("reconciliation sweep failed to persist status",
				"payment_id", record.ID,
				"status", status.Status,
				"error", err)
			continue
		}
		settled++
	}

	return settled, nil
}
