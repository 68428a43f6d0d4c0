package payment

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	errors "github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/gateway"
)

// Orchestrator dispatches payment operations to the configured gateway
// adapters. It never persists anything itself; persistence stays with the
// Service and Reconciler so the orchestrator can be exercised with fakes.
type Orchestrator struct {
	registry      *gateway.Registry
	verifyTimeout time.Duration
	logger        *slog.Logger
}

func NewOrchestrator(registry *gateway.Registry, verifyTimeout time.Duration, logger *slog.Logger) *Orchestrator {
	if verifyTimeout <= 0 {
		verifyTimeout = 15 * time.Second
	}
	return &Orchestrator{
		registry:      registry,
		verifyTimeout: verifyTimeout,
		logger:        logger,
	}
}

// AvailableGateways lists the registered gateway identifiers.
func (o *Orchestrator) AvailableGateways() []string {
	return o.registry.Names()
}

// InitializePayment delegates to the named adapter. Unknown gateway ids fail
// synchronously; everything the adapter reports comes back as-is.
func (o *Orchestrator) InitializePayment(ctx context.Context, params gateway.InitializeParams, gatewayID string) (*gateway.InitResult, error) {
	adapter, ok := o.registry.Get(gatewayID)
	if !ok {
		return nil, errors.ErrUnknownGateway
	}

	result, err := adapter.Initialize(ctx, params)
	if err != nil {
		o.logger.Error("payment initialization failed",
			"gateway", gatewayID,
			"reference", params.Reference,
			"error", err)
		return nil, errors.NewExternalError("payment initialization failed", err)
	}
	return result, nil
}

// VerifyPayment asks the adapter for the authoritative status of a payment.
// Verification must never crash the calling request handler: any adapter
// failure, timeout, or panic degrades to a pending result plus a warning.
func (o *Orchestrator) VerifyPayment(ctx context.Context, reference, gatewayID string) *gateway.PaymentStatus {
	pending := &gateway.PaymentStatus{
		TransactionID: reference,
		Reference:     reference,
		Status:        gateway.StatusPending,
	}

	adapter, ok := o.registry.Get(gatewayID)
	if !ok {
		o.logger.Warn("verify requested for unknown gateway",
			"gateway", gatewayID,
			"reference", reference)
		return pending
	}

	// Bound the outbound call separately from the inbound handler's own
	// deadline so a hung provider cannot hold a webhook response open.
	ctx, cancel := context.WithTimeout(ctx, o.verifyTimeout)
	defer cancel()

	var result *gateway.PaymentStatus
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("gateway adapter panicked during verify",
					"gateway", gatewayID,
					"reference", reference,
					"panic", r)
				result, err = nil, nil
			}
		}()
		result, err = adapter.Verify(ctx, reference)
	}()

	if err != nil {
		o.logger.Warn("payment verification failed, treating as pending",
			"gateway", gatewayID,
			"reference", reference,
			"error", err)
		return pending
	}
	if result == nil {
		return pending
	}
	return result
}

// HandleWebhook parses and authenticates an inbound provider callback. It
// does not persist; the Reconciler decides what the parsed result means for
// stored state.
func (o *Orchestrator) HandleWebhook(payload []byte, header http.Header, gatewayID string) (*gateway.WebhookResult, error) {
	adapter, ok := o.registry.Get(gatewayID)
	if !ok {
		return nil, errors.ErrUnknownGateway
	}
	return adapter.ParseWebhook(payload, header)
}
