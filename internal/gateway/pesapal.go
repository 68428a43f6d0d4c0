package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const GatewayPesapal = "pesapal"

type PesapalConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	IPNID          string
	Timeout        time.Duration
}

// PesapalAdapter integrates the Pesapal order API. Pesapal assigns its own
// OrderTrackingId at submission time and uses it, not our merchant
// reference, as the correlation key in IPN callbacks. Its IPN also carries
// no signature, so parsed webhooks are flagged RequiresVerification and the
// authoritative status comes from GetTransactionStatus.
type PesapalAdapter struct {
	client         *http.Client
	baseURL        string
	consumerKey    string
	consumerSecret string
	ipnID          string
	logger         *slog.Logger

	mu          sync.Mutex
	bearerToken string
	tokenExpiry time.Time
}

func NewPesapalAdapter(cfg PesapalConfig, logger *slog.Logger) *PesapalAdapter {
	return &PesapalAdapter{
		client:         newHTTPClient(cfg.Timeout),
		baseURL:        cfg.BaseURL,
		consumerKey:    cfg.ConsumerKey,
		consumerSecret: cfg.ConsumerSecret,
		ipnID:          cfg.IPNID,
		logger:         logger,
	}
}

func (a *PesapalAdapter) Name() string {
	return GatewayPesapal
}

type pesapalAuthResponse struct {
	Token      string `json:"token"`
	ExpiryDate string `json:"expiryDate"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// token returns a cached bearer token, requesting a fresh one when the
// cached token is within a minute of expiring.
func (a *PesapalAdapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bearerToken != "" && time.Until(a.tokenExpiry) > time.Minute {
		return a.bearerToken, nil
	}

	body, err := json.Marshal(map[string]string{
		"consumer_key":    a.consumerKey,
		"consumer_secret": a.consumerSecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/Auth/RequestToken", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read auth response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth request: HTTP %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp pesapalAuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("unmarshal auth response: %w", err)
	}
	if resp.Token == "" {
		return "", fmt.Errorf("auth request rejected: %s", resp.Message)
	}

	a.bearerToken = resp.Token
	if expiry, err := time.Parse(time.RFC3339, resp.ExpiryDate); err == nil {
		a.tokenExpiry = expiry
	} else {
		// Pesapal tokens last 5 minutes; fall back to that when the
		// expiry date does not parse.
		a.tokenExpiry = time.Now().Add(5 * time.Minute)
	}

	return a.bearerToken, nil
}

type pesapalOrderRequest struct {
	ID              string                `json:"id"`
	Currency        string                `json:"currency"`
	Amount          float64               `json:"amount"`
	Description     string                `json:"description"`
	CallbackURL     string                `json:"callback_url"`
	CancellationURL string                `json:"cancellation_url,omitempty"`
	NotificationID  string                `json:"notification_id"`
	BillingAddress  pesapalBillingAddress `json:"billing_address"`
}

type pesapalBillingAddress struct {
	EmailAddress string `json:"email_address"`
	FirstName    string `json:"first_name,omitempty"`
}

type pesapalOrderResponse struct {
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
	Status            string `json:"status"`
	Error             *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *PesapalAdapter) Initialize(ctx context.Context, params InitializeParams) (*InitResult, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("pesapal initialize: %w", err)
	}

	bearer, err := a.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("pesapal initialize: %w", err)
	}

	body, err := json.Marshal(pesapalOrderRequest{
		ID:              params.Reference,
		Currency:        params.Currency,
		Amount:          float64(params.Amount) / 100,
		Description:     params.Description,
		CallbackURL:     params.CallbackURL,
		CancellationURL: params.CancelURL,
		NotificationID:  a.ipnID,
		BillingAddress: pesapalBillingAddress{
			EmailAddress: params.CustomerEmail,
			FirstName:    params.CustomerName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pesapal initialize: marshal request: %w", err)
	}

	var resp pesapalOrderResponse
	if err := a.call(ctx, bearer, http.MethodPost, "/api/Transactions/SubmitOrderRequest", body, &resp); err != nil {
		return nil, fmt.Errorf("pesapal initialize: %w", err)
	}

	if resp.Error != nil {
		a.logger.Error("pesapal rejected order",
			"reference", params.Reference,
			"code", resp.Error.Code,
			"message", resp.Error.Message)
		return nil, fmt.Errorf("pesapal initialize: provider rejected request: %s", resp.Error.Message)
	}
	if resp.RedirectURL == "" {
		return nil, fmt.Errorf("pesapal initialize: provider returned no redirect url")
	}

	return &InitResult{
		TransactionID:    params.Reference,
		Reference:        params.Reference,
		GatewayReference: resp.OrderTrackingID,
		PaymentURL:       resp.RedirectURL,
	}, nil
}

type pesapalStatusResponse struct {
	PaymentMethod            string  `json:"payment_method"`
	Amount                   float64 `json:"amount"`
	CreatedDate              string  `json:"created_date"`
	ConfirmationCode         string  `json:"confirmation_code"`
	PaymentStatusDescription string  `json:"payment_status_description"`
	Currency                 string  `json:"currency"`
	MerchantReference        string  `json:"merchant_reference"`
	StatusCode               int     `json:"status_code"`
	Message                  string  `json:"message"`
}

// Verify looks up a transaction by its Pesapal OrderTrackingId (the
// gateway-side reference, not our merchant reference).
func (a *PesapalAdapter) Verify(ctx context.Context, trackingID string) (*PaymentStatus, error) {
	bearer, err := a.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("pesapal verify: %w", err)
	}

	path := "/api/Transactions/GetTransactionStatus?orderTrackingId=" + url.QueryEscape(trackingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("pesapal verify: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	httpResp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pesapal verify: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("pesapal verify: read response: %w", err)
	}

	// An unknown tracking id is a payment the provider has not settled
	// yet; report pending rather than failing the caller.
	if httpResp.StatusCode == http.StatusNotFound {
		a.logger.Info("pesapal verify: tracking id not found yet, treating as pending",
			"tracking_id", trackingID)
		return &PaymentStatus{
			GatewayReference: trackingID,
			Status:           StatusPending,
			Raw:              respBody,
		}, nil
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pesapal verify: HTTP %d: %s", httpResp.StatusCode, string(respBody))
	}

	var resp pesapalStatusResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("pesapal verify: unmarshal response: %w", err)
	}

	var paidAt *time.Time
	if t, err := time.Parse(time.RFC3339, resp.CreatedDate); err == nil {
		paidAt = &t
	}

	return &PaymentStatus{
		TransactionID:    resp.MerchantReference,
		Reference:        resp.MerchantReference,
		GatewayReference: trackingID,
		Status:           mapPesapalStatus(resp.PaymentStatusDescription),
		Amount:           int64(resp.Amount * 100),
		Currency:         resp.Currency,
		PaidAt:           paidAt,
		Raw:              respBody,
	}, nil
}

type pesapalIPNPayload struct {
	OrderTrackingID        string `json:"OrderTrackingId"`
	OrderMerchantReference string `json:"OrderMerchantReference"`
	OrderNotificationType  string `json:"OrderNotificationType"`
}

// ParseWebhook handles Pesapal's IPN, which may arrive as a JSON POST or as
// GET/POST query parameters. The IPN carries no authenticity proof and no
// status, only the notification that something changed; the result is
// therefore flagged RequiresVerification so the reconciler confirms the
// status server-side before writing anything.
func (a *PesapalAdapter) ParseWebhook(payload []byte, header http.Header) (*WebhookResult, error) {
	var ipn pesapalIPNPayload

	if err := json.Unmarshal(payload, &ipn); err != nil || ipn.OrderTrackingID == "" {
		// Form-encoded or query-parameter delivery.
		values, parseErr := url.ParseQuery(string(payload))
		if parseErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, parseErr)
		}
		ipn.OrderTrackingID = values.Get("OrderTrackingId")
		ipn.OrderMerchantReference = values.Get("OrderMerchantReference")
		ipn.OrderNotificationType = values.Get("OrderNotificationType")
	}

	if ipn.OrderTrackingID == "" && ipn.OrderMerchantReference == "" {
		return nil, fmt.Errorf("%w: missing OrderTrackingId and OrderMerchantReference", ErrMalformedPayload)
	}

	if ipn.OrderNotificationType != "" && ipn.OrderNotificationType != "IPNCHANGE" {
		a.logger.Info("pesapal webhook: ignoring notification type",
			"type", ipn.OrderNotificationType,
			"tracking_id", ipn.OrderTrackingID)
		return &WebhookResult{
			TransactionID:        ipn.OrderMerchantReference,
			GatewayReference:     ipn.OrderTrackingID,
			Status:               StatusPending,
			ShouldUpdateDatabase: false,
			RawPayload:           payload,
		}, nil
	}

	return &WebhookResult{
		TransactionID:        ipn.OrderMerchantReference,
		GatewayReference:     ipn.OrderTrackingID,
		Status:               StatusPending,
		ShouldUpdateDatabase: true,
		RequiresVerification: true,
		RawPayload:           payload,
	}, nil
}

func (a *PesapalAdapter) call(ctx context.Context, bearer, method, path string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

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

// mapPesapalStatus maps Pesapal's status descriptions onto the canonical
// enum. Unrecognized values map to pending, never to completed.
func mapPesapalStatus(status string) Status {
	switch status {
	case "COMPLETED", "Completed":
		return StatusCompleted
	case "FAILED", "Failed", "INVALID", "Invalid":
		return StatusFailed
	case "REVERSED", "Reversed":
		return StatusCancelled
	default:
		return StatusPending
	}
}
