package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestGateway(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Gateway Module Suite")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paystackSign(secret string, payload []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

var _ = ginkgo.Describe("Registry", func() {
	ginkgo.It("should return registered adapters by name", func() {
		registry := NewRegistry()
		registry.Register(NewPaystackAdapter(PaystackConfig{SecretKey: "sk"}, testLogger()))

		adapter, ok := registry.Get(GatewayPaystack)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(adapter.Name()).To(gomega.Equal(GatewayPaystack))

		_, ok = registry.Get("stripe")
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("should list adapter names sorted", func() {
		registry := NewRegistry()
		registry.Register(NewPesapalAdapter(PesapalConfig{}, testLogger()))
		registry.Register(NewPaystackAdapter(PaystackConfig{SecretKey: "sk"}, testLogger()))

		gomega.Expect(registry.Names()).To(gomega.Equal([]string{GatewayPaystack, GatewayPesapal}))
	})
})

var _ = ginkgo.Describe("PaystackAdapter", func() {
	var adapter *PaystackAdapter

	ginkgo.BeforeEach(func() {
		adapter = NewPaystackAdapter(PaystackConfig{
			SecretKey: "sk_test_secret",
		}, testLogger())
	})

	ginkgo.Describe("ParseWebhook", func() {
		var payload []byte

		ginkgo.BeforeEach(func() {
			payload = []byte(`{"event":"charge.success","data":{"id":101,"status":"success","reference":"APP-7-1700000000000","amount":50000,"currency":"KES"}}`)
		})

		ginkgo.Context("with a valid signature", func() {
			ginkgo.It("should return a completed result to persist", func() {
				// Given
				header := http.Header{}
				header.Set("x-paystack-signature", paystackSign("sk_test_secret", payload))

				// When
				result, err := adapter.ParseWebhook(payload, header)

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(result.TransactionID).To(gomega.Equal("APP-7-1700000000000"))
				gomega.Expect(result.Status).To(gomega.Equal(StatusCompleted))
				gomega.Expect(result.ShouldUpdateDatabase).To(gomega.BeTrue())
				gomega.Expect(result.RequiresVerification).To(gomega.BeFalse())
			})

			ginkgo.It("should prefer a dedicated webhook secret when configured", func() {
				// Given
				adapter = NewPaystackAdapter(PaystackConfig{
					SecretKey:     "sk_test_secret",
					WebhookSecret: "whsec_other",
				}, testLogger())
				header := http.Header{}
				header.Set("x-paystack-signature", paystackSign("whsec_other", payload))

				// When
				_, err := adapter.ParseWebhook(payload, header)

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			})

			ginkgo.It("should not persist pending event pings", func() {
				// Given
				pending := []byte(`{"event":"charge.pending","data":{"status":"pending","reference":"APP-7-1700000000000"}}`)
				header := http.Header{}
				header.Set("x-paystack-signature", paystackSign("sk_test_secret", pending))

				// When
				result, err := adapter.ParseWebhook(pending, header)

				// Then
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(result.Status).To(gomega.Equal(StatusPending))
				gomega.Expect(result.ShouldUpdateDatabase).To(gomega.BeFalse())
			})
		})

		ginkgo.Context("with a bad signature", func() {
			ginkgo.It("should reject a tampered payload", func() {
				// Given
				header := http.Header{}
				header.Set("x-paystack-signature", paystackSign("sk_test_secret", payload))
				tampered := append([]byte{}, payload...)
				tampered[len(tampered)-2] = '0'

				// When
				_, err := adapter.ParseWebhook(tampered, header)

				// Then
				gomega.Expect(err).To(gomega.MatchError(ErrInvalidSignature))
			})

			ginkgo.It("should reject a missing signature header", func() {
				// When
				_, err := adapter.ParseWebhook(payload, http.Header{})

				// Then
				gomega.Expect(err).To(gomega.MatchError(ErrInvalidSignature))
			})
		})

		ginkgo.Context("with a malformed payload", func() {
			ginkgo.It("should reject non-JSON bodies", func() {
				// Given
				garbage := []byte("not json at all")
				header := http.Header{}
				header.Set("x-paystack-signature", paystackSign("sk_test_secret", garbage))

				// When
				_, err := adapter.ParseWebhook(garbage, header)

				// Then
				gomega.Expect(errors.Is(err, ErrMalformedPayload)).To(gomega.BeTrue())
			})

			ginkgo.It("should reject bodies without a reference", func() {
				// Given
				noRef := []byte(`{"event":"charge.success","data":{"status":"success"}}`)
				header := http.Header{}
				header.Set("x-paystack-signature", paystackSign("sk_test_secret", noRef))

				// When
				_, err := adapter.ParseWebhook(noRef, header)

				// Then
				gomega.Expect(errors.Is(err, ErrMalformedPayload)).To(gomega.BeTrue())
			})
		})
	})

	ginkgo.Describe("status mapping", func() {
		ginkgo.It("should map provider statuses fail-closed", func() {
			gomega.Expect(mapPaystackStatus("success")).To(gomega.Equal(StatusCompleted))
			gomega.Expect(mapPaystackStatus("failed")).To(gomega.Equal(StatusFailed))
			gomega.Expect(mapPaystackStatus("abandoned")).To(gomega.Equal(StatusCancelled))
			gomega.Expect(mapPaystackStatus("reversed")).To(gomega.Equal(StatusCancelled))
			// Anything unrecognized stays pending, never completed.
			gomega.Expect(mapPaystackStatus("ongoing")).To(gomega.Equal(StatusPending))
			gomega.Expect(mapPaystackStatus("")).To(gomega.Equal(StatusPending))
		})
	})

	ginkgo.Describe("Initialize", func() {
		ginkgo.It("should post the transaction and return the authorization URL", func() {
			// Given
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gomega.Expect(r.URL.Path).To(gomega.Equal("/transaction/initialize"))
				gomega.Expect(r.Header.Get("Authorization")).To(gomega.Equal("Bearer sk_test_secret"))

				var body map[string]interface{}
				gomega.Expect(json.NewDecoder(r.Body).Decode(&body)).To(gomega.Succeed())
				gomega.Expect(body["reference"]).To(gomega.Equal("APP-7-1700000000000"))

				json.NewEncoder(w).Encode(map[string]interface{}{
					"status": true,
					"data": map[string]interface{}{
						"authorization_url": "https://checkout.paystack.com/abc",
						"reference":         "APP-7-1700000000000",
					},
				})
			}))
			defer server.Close()
			adapter = NewPaystackAdapter(PaystackConfig{BaseURL: server.URL, SecretKey: "sk_test_secret"}, testLogger())

			// When
			result, err := adapter.Initialize(context.Background(), InitializeParams{
				Amount:        50000,
				Currency:      "KES",
				Reference:     "APP-7-1700000000000",
				CustomerEmail: "applicant@example.com",
			})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.PaymentURL).To(gomega.Equal("https://checkout.paystack.com/abc"))
			gomega.Expect(result.TransactionID).To(gomega.Equal("APP-7-1700000000000"))
		})

		ginkgo.It("should surface provider rejections", func() {
			// Given
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status":  false,
					"message": "Invalid key",
				})
			}))
			defer server.Close()
			adapter = NewPaystackAdapter(PaystackConfig{BaseURL: server.URL, SecretKey: "bad"}, testLogger())

			// When
			_, err := adapter.Initialize(context.Background(), InitializeParams{
				Amount:        50000,
				Currency:      "KES",
				Reference:     "APP-7-1700000000000",
				CustomerEmail: "applicant@example.com",
			})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("Invalid key"))
		})

		ginkgo.It("should reject invalid params before calling the provider", func() {
			// When
			_, err := adapter.Initialize(context.Background(), InitializeParams{
				Amount:   -1,
				Currency: "KES",
			})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("Verify", func() {
		ginkgo.It("should map the settled status from the provider", func() {
			// Given
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gomega.Expect(r.URL.Path).To(gomega.Equal("/transaction/verify/APP-7-1700000000000"))
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status": true,
					"data": map[string]interface{}{
						"status":    "success",
						"reference": "APP-7-1700000000000",
						"amount":    50000,
						"currency":  "KES",
					},
				})
			}))
			defer server.Close()
			adapter = NewPaystackAdapter(PaystackConfig{BaseURL: server.URL, SecretKey: "sk"}, testLogger())

			// When
			status, err := adapter.Verify(context.Background(), "APP-7-1700000000000")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(status.Status).To(gomega.Equal(StatusCompleted))
			gomega.Expect(status.Amount).To(gomega.Equal(int64(50000)))
		})

		ginkgo.It("should treat an unknown reference as pending", func() {
			// Given
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				json.NewEncoder(w).Encode(map[string]interface{}{"status": false, "message": "Transaction reference not found"})
			}))
			defer server.Close()
			adapter = NewPaystackAdapter(PaystackConfig{BaseURL: server.URL, SecretKey: "sk"}, testLogger())

			// When
			status, err := adapter.Verify(context.Background(), "APP-9-1")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(status.Status).To(gomega.Equal(StatusPending))
		})
	})
})

var _ = ginkgo.Describe("PesapalAdapter", func() {
	var adapter *PesapalAdapter

	ginkgo.BeforeEach(func() {
		adapter = NewPesapalAdapter(PesapalConfig{}, testLogger())
	})

	ginkgo.Describe("ParseWebhook", func() {
		ginkgo.It("should flag JSON IPNs for server-side verification", func() {
			// Given
			payload := []byte(`{"OrderTrackingId":"d0fa69d6","OrderMerchantReference":"APP-7-1700000000000","OrderNotificationType":"IPNCHANGE"}`)

			// When
			result, err := adapter.ParseWebhook(payload, http.Header{})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.GatewayReference).To(gomega.Equal("d0fa69d6"))
			gomega.Expect(result.TransactionID).To(gomega.Equal("APP-7-1700000000000"))
			gomega.Expect(result.RequiresVerification).To(gomega.BeTrue())
			gomega.Expect(result.ShouldUpdateDatabase).To(gomega.BeTrue())
			// The IPN itself carries no status worth trusting.
			gomega.Expect(result.Status).To(gomega.Equal(StatusPending))
		})

		ginkgo.It("should parse query-parameter deliveries", func() {
			// Given
			payload := []byte("OrderTrackingId=d0fa69d6&OrderMerchantReference=APP-7-1700000000000&OrderNotificationType=IPNCHANGE")

			// When
			result, err := adapter.ParseWebhook(payload, http.Header{})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.GatewayReference).To(gomega.Equal("d0fa69d6"))
			gomega.Expect(result.RequiresVerification).To(gomega.BeTrue())
		})

		ginkgo.It("should acknowledge but not persist other notification types", func() {
			// Given
			payload := []byte(`{"OrderTrackingId":"d0fa69d6","OrderMerchantReference":"APP-7-1700000000000","OrderNotificationType":"RECURRING"}`)

			// When
			result, err := adapter.ParseWebhook(payload, http.Header{})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.ShouldUpdateDatabase).To(gomega.BeFalse())
		})

		ginkgo.It("should reject payloads without any correlation id", func() {
			// When
			_, err := adapter.ParseWebhook([]byte(`{}`), http.Header{})

			// Then
			gomega.Expect(errors.Is(err, ErrMalformedPayload)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("Verify", func() {
		ginkgo.It("should authenticate and map the transaction status", func() {
			// Given
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/api/Auth/RequestToken":
					json.NewEncoder(w).Encode(map[string]string{"token": "bearer-token"})
				case "/api/Transactions/GetTransactionStatus":
					gomega.Expect(r.Header.Get("Authorization")).To(gomega.Equal("Bearer bearer-token"))
					gomega.Expect(r.URL.Query().Get("orderTrackingId")).To(gomega.Equal("d0fa69d6"))
					json.NewEncoder(w).Encode(map[string]interface{}{
						"payment_status_description": "Completed",
						"amount":                     500.0,
						"currency":                   "KES",
						"merchant_reference":         "APP-7-1700000000000",
					})
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer server.Close()
			adapter = NewPesapalAdapter(PesapalConfig{BaseURL: server.URL, ConsumerKey: "ck", ConsumerSecret: "cs"}, testLogger())

			// When
			status, err := adapter.Verify(context.Background(), "d0fa69d6")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(status.Status).To(gomega.Equal(StatusCompleted))
			gomega.Expect(status.Reference).To(gomega.Equal("APP-7-1700000000000"))
			gomega.Expect(status.GatewayReference).To(gomega.Equal("d0fa69d6"))
			gomega.Expect(status.Amount).To(gomega.Equal(int64(50000)))
		})

		ginkgo.It("should reuse the cached bearer token across calls", func() {
			// Given
			authCalls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/api/Auth/RequestToken":
					authCalls++
					json.NewEncoder(w).Encode(map[string]string{
						"token":      "bearer-token",
						"expiryDate": "2099-01-01T00:00:00Z",
					})
				case "/api/Transactions/GetTransactionStatus":
					json.NewEncoder(w).Encode(map[string]interface{}{"payment_status_description": "Pending"})
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer server.Close()
			adapter = NewPesapalAdapter(PesapalConfig{BaseURL: server.URL, ConsumerKey: "ck", ConsumerSecret: "cs"}, testLogger())

			// When
			_, err := adapter.Verify(context.Background(), "a")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = adapter.Verify(context.Background(), "b")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(authCalls).To(gomega.Equal(1))
		})
	})

	ginkgo.Describe("Initialize", func() {
		ginkgo.It("should submit the order and return the tracking id", func() {
			// Given
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/api/Auth/RequestToken":
					json.NewEncoder(w).Encode(map[string]string{"token": "bearer-token"})
				case "/api/Transactions/SubmitOrderRequest":
					var body map[string]interface{}
					gomega.Expect(json.NewDecoder(r.Body).Decode(&body)).To(gomega.Succeed())
					// Amount goes over the wire in major units.
					gomega.Expect(body["amount"]).To(gomega.Equal(500.0))
					json.NewEncoder(w).Encode(map[string]interface{}{
						"order_tracking_id":  "d0fa69d6",
						"merchant_reference": "APP-7-1700000000000",
						"redirect_url":       "https://pay.pesapal.com/iframe/xyz",
					})
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
			defer server.Close()
			adapter = NewPesapalAdapter(PesapalConfig{BaseURL: server.URL, ConsumerKey: "ck", ConsumerSecret: "cs", IPNID: "ipn-1"}, testLogger())

			// When
			result, err := adapter.Initialize(context.Background(), InitializeParams{
				Amount:        50000,
				Currency:      "KES",
				Reference:     "APP-7-1700000000000",
				CustomerEmail: "applicant@example.com",
			})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.GatewayReference).To(gomega.Equal("d0fa69d6"))
			gomega.Expect(result.PaymentURL).To(gomega.Equal("https://pay.pesapal.com/iframe/xyz"))
		})
	})

	ginkgo.Describe("status mapping", func() {
		ginkgo.It("should map provider statuses fail-closed", func() {
			gomega.Expect(mapPesapalStatus("COMPLETED")).To(gomega.Equal(StatusCompleted))
			gomega.Expect(mapPesapalStatus("Completed")).To(gomega.Equal(StatusCompleted))
			gomega.Expect(mapPesapalStatus("FAILED")).To(gomega.Equal(StatusFailed))
			gomega.Expect(mapPesapalStatus("INVALID")).To(gomega.Equal(StatusFailed))
			gomega.Expect(mapPesapalStatus("REVERSED")).To(gomega.Equal(StatusCancelled))
			gomega.Expect(mapPesapalStatus("PENDING")).To(gomega.Equal(StatusPending))
			gomega.Expect(mapPesapalStatus("something new")).To(gomega.Equal(StatusPending))
		})
	})
})
