package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/loan-intake/internal/core/events"
)

// EventHandler reacts to payment and NDA facts landing by re-deriving the
// owning application's status. All trigger points funnel through the same
// StatusDeriver so the transition logic exists exactly once.
type EventHandler struct {
	deriver *StatusDeriver
	logger  *slog.Logger
}

func NewEventHandler(deriver *StatusDeriver, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		deriver: deriver,
		logger:  logger,
	}
}

func (h *EventHandler) HandlePaymentCompleted(ctx context.Context, event events.Event) error {
	paymentEvent, ok := event.(*events.PaymentCompletedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment completed handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentCompletedEvent, got %T", event)
	}

	h.logger.Info("handling payment completed event for status derivation",
		"application_id", paymentEvent.ApplicationID,
		"payment_id", paymentEvent.PaymentID,
		"event_id", paymentEvent.EventID())

	if err := h.deriver.DeriveStatus(ctx, paymentEvent.ApplicationID); err != nil {
		// Derivation failures never propagate back into the payment flow;
		// the next trigger or a manual refresh re-derives from facts.
		h.logger.Error("status derivation after payment failed",
			"error", err,
			"application_id", paymentEvent.ApplicationID,
			"event_id", paymentEvent.EventID())
	}

	return nil
}

func (h *EventHandler) HandleNDASigned(ctx context.Context, event events.Event) error {
	ndaEvent, ok := event.(*events.NDASignedEvent)
	if !ok {
		h.logger.Error("invalid event type for NDA signed handler", "event_type", event.EventType())
		return fmt.Errorf("expected NDASignedEvent, got %T", event)
	}

	h.logger.Info("handling NDA signed event for status derivation",
		"application_id", ndaEvent.ApplicationID,
		"signature_id", ndaEvent.SignatureID,
		"event_id", ndaEvent.EventID())

	if err := h.deriver.DeriveStatus(ctx, ndaEvent.ApplicationID); err != nil {
		h.logger.Error("status derivation after NDA signing failed",
			"error", err,
			"application_id", ndaEvent.ApplicationID,
			"event_id", ndaEvent.EventID())
	}

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentCompleted, h.HandlePaymentCompleted)
	eventBus.Subscribe(events.EventTypeNDASigned, h.HandleNDASigned)

	h.logger.Info("application event handlers registered",
		"handlers", []string{events.EventTypePaymentCompleted, events.EventTypeNDASigned})
}
