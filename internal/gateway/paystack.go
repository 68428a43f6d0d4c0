package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const GatewayPaystack = "paystack"

// paystackSignatureHeader carries a hex HMAC-SHA512 of the raw request body
// keyed with the account's secret key.
const paystackSignatureHeader = "x-paystack-signature"

type PaystackConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// PaystackAdapter integrates the Paystack card/transfer gateway. Paystack
// echoes our own reference back on every call, so the merchant reference is
// also the transaction correlation key.
type PaystackAdapter struct {
	client        *http.Client
	baseURL       string
	secretKey     string
	webhookSecret string
	logger        *slog.Logger
}

func NewPaystackAdapter(cfg PaystackConfig, logger *slog.Logger) *PaystackAdapter {
	secret := cfg.WebhookSecret
	if secret == "" {
		// Paystack signs webhooks with the API secret key unless a
		// dedicated webhook secret is configured.
		secret = cfg.SecretKey
	}
	return &PaystackAdapter{
		client:        newHTTPClient(cfg.Timeout),
		baseURL:       cfg.BaseURL,
		secretKey:     cfg.SecretKey,
		webhookSecret: secret,
		logger:        logger,
	}
}

func (a *PaystackAdapter) Name() string {
	return GatewayPaystack
}

type paystackInitRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (a *PaystackAdapter) Initialize(ctx context.Context, params InitializeParams) (*InitResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("paystack initialize: %w", err)
	}

	metadata := map[string]interface{}{
		"customer_name": params.CustomerName,
		"description":   params.Description,
	}
	for k, v := range params.Metadata {
		metadata[k] = v
	}
	if params.CancelURL != "" {
		metadata["cancel_action"] = params.CancelURL
	}

	body, err := json.Marshal(paystackInitRequest{
		Email:       params.CustomerEmail,
		Amount:      params.Amount,
		Currency:    params.Currency,
		Reference:   params.Reference,
		CallbackURL: params.CallbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("paystack initialize: marshal request: %w", err)
	}

	var resp paystackInitResponse
	if err := a.call(ctx, http.MethodPost, "/transaction/initialize", body, &resp); err != nil {
		return nil, fmt.Errorf("paystack initialize: %w", err)
	}

	if !resp.Status {
		a.logger.Error("paystack rejected initialization",
			"reference", params.Reference,
			"message", resp.Message)
		return nil, fmt.Errorf("paystack initialize: provider rejected request: %s", resp.Message)
	}

	return &InitResult{
		TransactionID: resp.Data.Reference,
		Reference:     resp.Data.Reference,
		PaymentURL:    resp.Data.AuthorizationURL,
	}, nil
}

type paystackVerifyResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		ID        int64      `json:"id"`
		Status    string     `json:"status"`
		Reference string     `json:"reference"`
		Amount    int64      `json:"amount"`
		Currency  string     `json:"currency"`
		PaidAt    *time.Time `json:"paid_at"`
	} `json:"data"`
}

func (a *PaystackAdapter) Verify(ctx context.Context, reference string) (*PaymentStatus, error) {
	path := "/transaction/verify/" + url.PathEscape(reference)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("paystack verify: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paystack verify: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("paystack verify: read response: %w", err)
	}

	// A reference the provider has not settled yet comes back 404. That is
	// a pending payment, not an error.
	if httpResp.StatusCode == http.StatusNotFound {
		a.logger.Info("paystack verify: reference not found yet, treating as pending",
			"reference", reference)
		return &PaymentStatus{
			TransactionID: reference,
			Reference:     reference,
			Status:        StatusPending,
			Raw:           respBody,
		}, nil
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paystack verify: HTTP %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp paystackVerifyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("paystack verify: unmarshal response: %w", err)
	}

	return &PaymentStatus{
		TransactionID: resp.Data.Reference,
		Reference:     resp.Data.Reference,
		Status:        mapPaystackStatus(resp.Data.Status),
		Amount:        resp.Data.Amount,
		Currency:      resp.Data.Currency,
		PaidAt:        resp.Data.PaidAt,
		Raw:           respBody,
	}, nil
}

type paystackWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64      `json:"id"`
		Status    string     `json:"status"`
		Reference string     `json:"reference"`
		Amount    int64      `json:"amount"`
		Currency  string     `json:"currency"`
		PaidAt    *time.Time `json:"paid_at"`
	} `json:"data"`
}

func (a *PaystackAdapter) ParseWebhook(payload []byte, header http.Header) (*WebhookResult, error) {
	signature := header.Get(paystackSignatureHeader)
	if !a.validSignature(payload, signature) {
		a.logger.Warn("paystack webhook rejected: bad signature",
			"signature_present", signature != "")
		return nil, ErrInvalidSignature
	}

	var body paystackWebhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if body.Data.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", ErrMalformedPayload)
	}

	status := mapPaystackStatus(body.Data.Status)
	if body.Event == "charge.success" {
		status = StatusCompleted
	}

	return &WebhookResult{
		TransactionID: body.Data.Reference,
		Status:        status,
		// Pending pings carry no new fact worth persisting; terminal
		// statuses do.
		ShouldUpdateDatabase: status != StatusPending,
		RawPayload:           payload,
	}, nil
}

func (a *PaystackAdapter) validSignature(payload []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(a.webhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (a *PaystackAdapter) call(ctx context.Context, method, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// mapPaystackStatus maps Paystack's status vocabulary onto the canonical
// enum. Unrecognized values map to pending, never to completed.
func mapPaystackStatus(status string) Status {
	switch status {
	case "success":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "abandoned", "cancelled", "reversed":
		return StatusCancelled
	default:
		return StatusPending
	}
}
