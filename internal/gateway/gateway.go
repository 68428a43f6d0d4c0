package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the gateway-agnostic payment status vocabulary. Every adapter
// maps its provider's wire values into this set; anything unrecognized maps
// to StatusPending, never to StatusCompleted.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrInvalidSignature means the webhook payload failed authenticity
	// checks. The caller must not mutate state but should still acknowledge
	// the delivery.
	ErrInvalidSignature = errors.New("webhook signature verification failed")

	// ErrMalformedPayload means the payload is structurally unusable (no
	// correlation id at all). The caller should reject with a client error
	// so the provider's retry/backoff behaves correctly.
	ErrMalformedPayload = errors.New("webhook payload is malformed")
)

// InitializeParams is the canonical payment initialization request shared by
// all adapters. Amount is in minor units of Currency.
type InitializeParams struct {
	Amount        int64
	Currency      string
	Description   string
	Reference     string
	CustomerEmail string
	CustomerName  string
	CallbackURL   string
	CancelURL     string
	Metadata      map[string]interface{}
}

func (p *InitializeParams) Validate() error {
	if p.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if p.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	if p.Reference == "" {
		return fmt.Errorf("reference is required")
	}
	if p.CustomerEmail == "" {
		return fmt.Errorf("customer email is required")
	}
	return nil
}

// InitResult is a successful initialization: the payer should be redirected
// to PaymentURL.
type InitResult struct {
	TransactionID    string
	Reference        string
	GatewayReference string
	PaymentURL       string
}

// PaymentStatus is the canonical result of a verify call.
type PaymentStatus struct {
	TransactionID    string
	Reference        string
	GatewayReference string
	Status           Status
	Amount           int64
	Currency         string
	PaidAt           *time.Time
	Raw              json.RawMessage
}

// WebhookResult is the canonical shape of a parsed provider callback.
type WebhookResult struct {
	// TransactionID is the provider's primary correlation key. For some
	// providers this is our own reference echoed back.
	TransactionID string

	// GatewayReference is a secondary correlation key for providers whose
	// callback uses a different id than the one stored at init time.
	GatewayReference string

	Status Status

	// ShouldUpdateDatabase is false for informational callbacks (pending
	// pings, unrecognized event types) that must be acknowledged but not
	// persisted.
	ShouldUpdateDatabase bool

	// RequiresVerification is set by adapters whose callbacks carry no
	// authenticity proof. The reconciler must confirm the status with a
	// Verify call before trusting it.
	RequiresVerification bool

	// RawPayload is the provider payload verbatim, stored for audit.
	RawPayload json.RawMessage
}

// Adapter is one payment provider. Implementations never panic across this
// boundary; all failures come back as errors.
type Adapter interface {
	Name() string
	Initialize(ctx context.Context, params InitializeParams) (*InitResult, error)
	Verify(ctx context.Context, reference string) (*PaymentStatus, error)
	ParseWebhook(payload []byte, header http.Header) (*WebhookResult, error)
}

// Registry holds the configured adapters keyed by gateway identifier.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
