package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/frahmantamala/loan-intake/internal/core/datamodel/payment"
	"github.com/frahmantamala/loan-intake/internal/core/events"
	"github.com/frahmantamala/loan-intake/internal/gateway"
)

// Reconciler applies parsed webhook results to stored payment records. It is
// safe under concurrent and duplicated deliveries for the same transaction:
// the only mutation is a conditional pending-to-terminal write, so replaying
// a webhook or receiving a stale pending after a completed is a no-op.
type Reconciler struct {
	repo         RepositoryAPI
	orchestrator *Orchestrator
	eventBus     *events.EventBus
	logger       *slog.Logger
}

func NewReconciler(repo RepositoryAPI, orchestrator *Orchestrator, eventBus *events.EventBus, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:         repo,
		orchestrator: orchestrator,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// Reconcile decides what a webhook result means for persisted state and
// applies it. It never returns an error for local persistence problems;
// those are logged for the reconciliation sweep, because the provider must
// not be told to retry forever over a database hiccup.
func (r *Reconciler) Reconcile(ctx context.Context, gatewayID string, result *gateway.WebhookResult) {
	if !result.ShouldUpdateDatabase {
		r.logger.Info("webhook acknowledged without persistence",
			"gateway", gatewayID,
			"transaction_id", result.TransactionID,
			"status", result.Status)
		return
	}

	status := result.Status
	raw := result.RawPayload
	var paidAt *time.Time

	// Callbacks without authenticity proof (Pesapal IPN) only tell us that
	// something changed. The status that gets persisted comes from a
	// server-side verify call, never from the unauthenticated payload.
	if result.RequiresVerification {
		verifyKey := result.GatewayReference
		if verifyKey == "" {
			verifyKey = result.TransactionID
		}
		verified := r.orchestrator.VerifyPayment(ctx, verifyKey, gatewayID)
		if verified.Status == gateway.StatusPending {
			r.logger.Info("webhook verification still pending, nothing to persist",
				"gateway", gatewayID,
				"transaction_id", result.TransactionID,
				"gateway_reference", result.GatewayReference)
			return
		}
		status = verified.Status
		paidAt = verified.PaidAt
		if verified.TransactionID != "" && result.TransactionID == "" {
			result.TransactionID = verified.TransactionID
		}
		if len(verified.Raw) > 0 {
			raw = verified.Raw
		}
	}

	record := r.locate(gatewayID, result)
	if record == nil {
		appID, parseErr := ApplicationIDFromReference(result.TransactionID)
		r.logger.Error("webhook for unknown payment record, queued for manual reconciliation",
			"gateway", gatewayID,
			"transaction_id", result.TransactionID,
			"gateway_reference", result.GatewayReference,
			"recovered_application_id", appID,
			"reference_parse_error", parseErr)
		return
	}

	if err := r.applyStatus(record, status, raw, paidAt); err != nil {
		r.logger.Error("failed to persist webhook status, queued for manual reconciliation",
			"payment_id", record.ID,
			"gateway", gatewayID,
			"transaction_id", record.GatewayTransactionID,
			"status", status,
			"error", err)
	}
}

// locate finds the payment record for a callback, matching by the
// provider's transaction id first and falling back to the secondary
// gateway reference for providers whose callback uses a different
// correlation key than the one stored at initialization time.
func (r *Reconciler) locate(gatewayID string, result *gateway.WebhookResult) *payment.PaymentRecord {
	if result.TransactionID != "" {
		if record, err := r.repo.GetByTransactionID(gatewayID, result.TransactionID); err == nil {
			return record
		}
	}
	if result.GatewayReference != "" {
		if record, err := r.repo.GetByGatewayReference(gatewayID, result.GatewayReference); err == nil {
			return record
		}
	}
	return nil
}

// applyStatus moves a record forward along pending -> terminal, exactly
// once. Terminal records are never downgraded; replaying the same terminal
// status is a no-op. A successful pending-to-completed transition publishes
// the payment.completed event that triggers application status derivation.
func (r *Reconciler) applyStatus(record *payment.PaymentRecord, status gateway.Status, raw json.RawMessage, paidAt *time.Time) error {
	newStatus := canonicalStatus(status)

	if newStatus == payment.StatusPending {
		r.logger.Info("payment still pending, no transition",
			"payment_id", record.ID,
			"transaction_id", record.GatewayTransactionID)
		return nil
	}

	if record.IsTerminal() {
		if record.Status != newStatus {
			r.logger.Warn("ignoring webhook that would change a settled payment",
				"payment_id", record.ID,
				"transaction_id", record.GatewayTransactionID,
				"current_status", record.Status,
				"webhook_status", newStatus)
		}
		return nil
	}

	if newStatus == payment.StatusCompleted && paidAt == nil {
		now := time.Now()
		paidAt = &now
	}

	updated, err := r.repo.UpdateStatusIfPending(record.ID, newStatus, raw, paidAt)
	if err != nil {
		return err
	}
	if !updated {
		// A concurrent delivery won the conditional write. The record is
		// already settled; nothing further to do.
		r.logger.Info("payment already settled by a concurrent delivery",
			"payment_id", record.ID,
			"transaction_id", record.GatewayTransactionID,
			"status", newStatus)
		return nil
	}

	r.logger.Info("payment status transitioned",
		"payment_id", record.ID,
		"application_id", record.ApplicationID,
		"transaction_id", record.GatewayTransactionID,
		"old_status", record.Status,
		"new_status", newStatus)

	record.Status = newStatus
	record.PaidAt = paidAt

	switch newStatus {
	case payment.StatusCompleted:
		event := events.NewPaymentCompletedEvent(
			record.ID,
			record.ApplicationID,
			record.PaymentGateway,
			record.GatewayTransactionID,
			record.Amount,
			record.Currency,
		)
		r.eventBus.Publish(context.Background(), event)
	case payment.StatusFailed, payment.StatusCancelled:
		event := events.NewPaymentFailedEvent(
			record.ID,
			record.ApplicationID,
			record.PaymentGateway,
			record.GatewayTransactionID,
			newStatus,
		)
		r.eventBus.Publish(context.Background(), event)
	}

	return nil
}
