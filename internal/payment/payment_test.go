package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	apperrors "github.com/frahmantamala/loan-intake/internal"
	paymentmodel "github.com/frahmantamala/loan-intake/internal/core/datamodel/payment"
	"github.com/frahmantamala/loan-intake/internal/core/events"
	"github.com/frahmantamala/loan-intake/internal/gateway"
	"github.com/frahmantamala/loan-intake/internal/transport"
)

func TestPayment(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Payment Module Suite")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Mock payment repository backed by an in-memory map. UpdateStatusIfPending
// mirrors the conditional write semantics of the real repository.
type mockPaymentRepository struct {
	mu      sync.Mutex
	records map[int64]*paymentmodel.PaymentRecord
	nextID  int64
	failOn  map[string]error
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{
		records: make(map[int64]*paymentmodel.PaymentRecord),
		nextID:  1,
		failOn:  make(map[string]error),
	}
}

func (m *mockPaymentRepository) Create(p *paymentmodel.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["Create"]; err != nil {
		return err
	}
	p.ID = m.nextID
	m.nextID++
	if p.Status == "" {
		p.Status = paymentmodel.StatusPending
	}
	p.CreatedAt = time.Now()
	copied := *p
	m.records[p.ID] = &copied
	return nil
}

func (m *mockPaymentRepository) GetByID(id int64) (*paymentmodel.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[id]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, errors.New("record not found")
}

func (m *mockPaymentRepository) GetByTransactionID(gatewayName, transactionID string) (*paymentmodel.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.PaymentGateway == gatewayName && record.GatewayTransactionID == transactionID {
			copied := *record
			return &copied, nil
		}
	}
	return nil, errors.New("record not found")
}

func (m *mockPaymentRepository) GetByGatewayReference(gatewayName, reference string) (*paymentmodel.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.PaymentGateway == gatewayName && record.GatewayReference != nil && *record.GatewayReference == reference {
			copied := *record
			return &copied, nil
		}
	}
	return nil, errors.New("record not found")
}

func (m *mockPaymentRepository) GetByReference(reference string) (*paymentmodel.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.GatewayTransactionID == reference {
			copied := *record
			return &copied, nil
		}
	}
	return nil, errors.New("record not found")
}

func (m *mockPaymentRepository) GetByApplicationID(applicationID int64) ([]*paymentmodel.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*paymentmodel.PaymentRecord
	for _, record := range m.records {
		if record.ApplicationID == applicationID {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockPaymentRepository) GetLatestByApplicationID(applicationID int64) (*paymentmodel.PaymentRecord, error) {
	records, _ := m.GetByApplicationID(applicationID)
	if len(records) == 0 {
		return nil, errors.New("record not found")
	}
	return records[len(records)-1], nil
}

func (m *mockPaymentRepository) UpdateStatusIfPending(id int64, status string, gatewayResponse json.RawMessage, paidAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn["UpdateStatusIfPending"]; err != nil {
		return false, err
	}
	record, ok := m.records[id]
	if !ok {
		return false, errors.New("record not found")
	}
	if record.Status != paymentmodel.StatusPending {
		return false, nil
	}
	record.Status = status
	record.GatewayResponse = gatewayResponse
	record.PaidAt = paidAt
	record.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockPaymentRepository) ListPendingOlderThan(age time.Duration, limit int) ([]*paymentmodel.PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-age)
	var out []*paymentmodel.PaymentRecord
	for _, record := range m.records {
		if record.Status == paymentmodel.StatusPending && record.CreatedAt.Before(cutoff) {
			copied := *record
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockPaymentRepository) HasCompletedForApplication(applicationID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.records {
		if record.ApplicationID == applicationID && record.Status == paymentmodel.StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPaymentRepository) statusOf(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Status
}

// Fake gateway adapter with injectable behavior.
type fakeAdapter struct {
	name        string
	initFn      func(ctx context.Context, params gateway.InitializeParams) (*gateway.InitResult, error)
	verifyFn    func(ctx context.Context, reference string) (*gateway.PaymentStatus, error)
	parseFn     func(payload []byte, header http.Header) (*gateway.WebhookResult, error)
	verifyCalls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Initialize(ctx context.Context, params gateway.InitializeParams) (*gateway.InitResult, error) {
	return f.initFn(ctx, params)
}

func (f *fakeAdapter) Verify(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
	f.verifyCalls++
	return f.verifyFn(ctx, reference)
}

func (f *fakeAdapter) ParseWebhook(payload []byte, header http.Header) (*gateway.WebhookResult, error) {
	return f.parseFn(payload, header)
}

func completedVerify(reference string) *gateway.PaymentStatus {
	paidAt := time.Now()
	return &gateway.PaymentStatus{
		TransactionID: reference,
		Reference:     reference,
		Status:        gateway.StatusCompleted,
		PaidAt:        &paidAt,
		Raw:           json.RawMessage(`{"verified":true}`),
	}
}

var _ = ginkgo.Describe("Payment references", func() {
	ginkgo.It("should recover the application id from a reference", func() {
		reference := NewPaymentReference(42, time.Now())

		id, err := ApplicationIDFromReference(reference)

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(id).To(gomega.Equal(int64(42)))
	})

	ginkgo.It("should reject references without an id segment", func() {
		_, err := ApplicationIDFromReference("garbage")

		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	ginkgo.It("should reject references with a non-numeric id", func() {
		_, err := ApplicationIDFromReference("APP-abc-123")

		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("Orchestrator", func() {
	var (
		registry     *gateway.Registry
		orchestrator *Orchestrator
		adapter      *fakeAdapter
	)

	ginkgo.BeforeEach(func() {
		registry = gateway.NewRegistry()
		adapter = &fakeAdapter{name: "paystack"}
		registry.Register(adapter)
		orchestrator = NewOrchestrator(registry, time.Second, testLogger())
	})

	ginkgo.Describe("InitializePayment", func() {
		ginkgo.It("should fail synchronously for an unknown gateway", func() {
			_, err := orchestrator.InitializePayment(context.Background(), gateway.InitializeParams{}, "stripe")

			gomega.Expect(err).To(gomega.MatchError(apperrors.ErrUnknownGateway))
		})

		ginkgo.It("should wrap adapter failures as external errors", func() {
			// Given
			adapter.initFn = func(ctx context.Context, params gateway.InitializeParams) (*gateway.InitResult, error) {
				return nil, errors.New("provider down")
			}

			// When
			_, err := orchestrator.InitializePayment(context.Background(), gateway.InitializeParams{Reference: "APP-1-1"}, "paystack")

			// Then
			var appErr *apperrors.AppError
			gomega.Expect(errors.As(err, &appErr)).To(gomega.BeTrue())
			gomega.Expect(appErr.StatusCode).To(gomega.Equal(http.StatusBadGateway))
		})
	})

	ginkgo.Describe("VerifyPayment", func() {
		ginkgo.It("should degrade to pending for an unknown gateway", func() {
			status := orchestrator.VerifyPayment(context.Background(), "APP-1-1", "stripe")

			gomega.Expect(status.Status).To(gomega.Equal(gateway.StatusPending))
		})

		ginkgo.It("should degrade to pending when the adapter fails", func() {
			// Given
			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				return nil, errors.New("timeout")
			}

			// When
			status := orchestrator.VerifyPayment(context.Background(), "APP-1-1", "paystack")

			// Then
			gomega.Expect(status.Status).To(gomega.Equal(gateway.StatusPending))
		})

		ginkgo.It("should survive a panicking adapter", func() {
			// Given
			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				panic("adapter bug")
			}

			// When
			status := orchestrator.VerifyPayment(context.Background(), "APP-1-1", "paystack")

			// Then
			gomega.Expect(status.Status).To(gomega.Equal(gateway.StatusPending))
		})

		ginkgo.It("should return the adapter result when verification succeeds", func() {
			// Given
			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				return completedVerify(reference), nil
			}

			// When
			status := orchestrator.VerifyPayment(context.Background(), "APP-1-1", "paystack")

			// Then
			gomega.Expect(status.Status).To(gomega.Equal(gateway.StatusCompleted))
		})
	})
})

var _ = ginkgo.Describe("Reconciler", func() {
	var (
		repo         *mockPaymentRepository
		registry     *gateway.Registry
		orchestrator *Orchestrator
		bus          *events.EventBus
		reconciler   *Reconciler
		adapter      *fakeAdapter
		record       *paymentmodel.PaymentRecord
	)

	ginkgo.BeforeEach(func() {
		repo = newMockPaymentRepository()
		registry = gateway.NewRegistry()
		adapter = &fakeAdapter{name: "paystack"}
		registry.Register(adapter)
		orchestrator = NewOrchestrator(registry, time.Second, testLogger())
		bus = events.NewEventBus(testLogger())
		reconciler = NewReconciler(repo, orchestrator, bus, testLogger())

		record = &paymentmodel.PaymentRecord{
			ApplicationID:        7,
			PaymentGateway:       "paystack",
			GatewayTransactionID: "APP-7-1700000000000",
			Amount:               50000,
			Currency:             "KES",
			Status:               paymentmodel.StatusPending,
		}
		gomega.Expect(repo.Create(record)).To(gomega.Succeed())
	})

	ginkgo.It("should settle a pending record from a completed webhook", func() {
		// Given
		completed := make(chan events.Event, 1)
		bus.Subscribe(events.EventTypePaymentCompleted, func(ctx context.Context, event events.Event) error {
			completed <- event
			return nil
		})

		// When
		reconciler.Reconcile(context.Background(), "paystack", &gateway.WebhookResult{
			TransactionID:        "APP-7-1700000000000",
			Status:               gateway.StatusCompleted,
			ShouldUpdateDatabase: true,
			RawPayload:           json.RawMessage(`{"event":"charge.success"}`),
		})

		// Then
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))
		gomega.Eventually(completed).Should(gomega.Receive())
	})

	ginkgo.It("should ignore a replayed delivery for a settled record", func() {
		// Given
		result := &gateway.WebhookResult{
			TransactionID:        "APP-7-1700000000000",
			Status:               gateway.StatusCompleted,
			ShouldUpdateDatabase: true,
		}
		reconciler.Reconcile(context.Background(), "paystack", result)
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))

		// When the provider retries the same delivery
		reconciler.Reconcile(context.Background(), "paystack", result)

		// Then
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))
	})

	ginkgo.It("should never downgrade a settled record", func() {
		// Given a completed record
		reconciler.Reconcile(context.Background(), "paystack", &gateway.WebhookResult{
			TransactionID:        "APP-7-1700000000000",
			Status:               gateway.StatusCompleted,
			ShouldUpdateDatabase: true,
		})

		// When a stale failed delivery arrives late
		reconciler.Reconcile(context.Background(), "paystack", &gateway.WebhookResult{
			TransactionID:        "APP-7-1700000000000",
			Status:               gateway.StatusFailed,
			ShouldUpdateDatabase: true,
		})

		// Then
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))
	})

	ginkgo.It("should not persist informational callbacks", func() {
		// When
		reconciler.Reconcile(context.Background(), "paystack", &gateway.WebhookResult{
			TransactionID:        "APP-7-1700000000000",
			Status:               gateway.StatusPending,
			ShouldUpdateDatabase: false,
		})

		// Then
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusPending))
	})

	ginkgo.It("should acknowledge a callback for an unknown record without error", func() {
		// When
		reconciler.Reconcile(context.Background(), "paystack", &gateway.WebhookResult{
			TransactionID:        "APP-999-1700000000000",
			Status:               gateway.StatusCompleted,
			ShouldUpdateDatabase: true,
		})

		// Then nothing changed
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusPending))
	})

	ginkgo.Context("with gateway-side correlation keys", func() {
		var trackingID string

		ginkgo.BeforeEach(func() {
			trackingID = "d0fa69d6"
			pesapal := &fakeAdapter{name: "pesapal"}
			registry.Register(pesapal)
			adapter = pesapal

			ref := trackingID
			record = &paymentmodel.PaymentRecord{
				ApplicationID:        8,
				PaymentGateway:       "pesapal",
				GatewayTransactionID: "APP-8-1700000000000",
				GatewayReference:     &ref,
				Amount:               30000,
				Currency:             "KES",
				Status:               paymentmodel.StatusPending,
			}
			gomega.Expect(repo.Create(record)).To(gomega.Succeed())
		})

		ginkgo.It("should locate the record by the secondary gateway reference", func() {
			// Given a callback keyed only by the provider's tracking id
			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				gomega.Expect(reference).To(gomega.Equal(trackingID))
				return completedVerify("APP-8-1700000000000"), nil
			}

			// When
			reconciler.Reconcile(context.Background(), "pesapal", &gateway.WebhookResult{
				GatewayReference:     trackingID,
				Status:               gateway.StatusPending,
				ShouldUpdateDatabase: true,
				RequiresVerification: true,
			})

			// Then the unauthenticated IPN was confirmed server-side and persisted
			gomega.Expect(adapter.verifyCalls).To(gomega.Equal(1))
			gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))
		})

		ginkgo.It("should persist nothing when re-verification still reports pending", func() {
			// Given
			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				return &gateway.PaymentStatus{GatewayReference: reference, Status: gateway.StatusPending}, nil
			}

			// When
			reconciler.Reconcile(context.Background(), "pesapal", &gateway.WebhookResult{
				GatewayReference:     trackingID,
				Status:               gateway.StatusPending,
				ShouldUpdateDatabase: true,
				RequiresVerification: true,
			})

			// Then
			gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusPending))
		})
	})

	ginkgo.It("should publish a failed event for failed transitions", func() {
		// Given
		failed := make(chan events.Event, 1)
		bus.Subscribe(events.EventTypePaymentFailed, func(ctx context.Context, event events.Event) error {
			failed <- event
			return nil
		})

		// When
		reconciler.Reconcile(context.Background(), "paystack", &gateway.WebhookResult{
			TransactionID:        "APP-7-1700000000000",
			Status:               gateway.StatusFailed,
			ShouldUpdateDatabase: true,
		})

		// Then
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusFailed))
		gomega.Eventually(failed).Should(gomega.Receive())
	})
})

var _ = ginkgo.Describe("PaymentService", func() {
	var (
		repo         *mockPaymentRepository
		registry     *gateway.Registry
		orchestrator *Orchestrator
		bus          *events.EventBus
		reconciler   *Reconciler
		service      *Service
		adapter      *fakeAdapter
	)

	ginkgo.BeforeEach(func() {
		repo = newMockPaymentRepository()
		registry = gateway.NewRegistry()
		adapter = &fakeAdapter{name: "paystack"}
		registry.Register(adapter)
		orchestrator = NewOrchestrator(registry, time.Second, testLogger())
		bus = events.NewEventBus(testLogger())
		reconciler = NewReconciler(repo, orchestrator, bus, testLogger())
		service = NewService(repo, orchestrator, reconciler, testLogger())
	})

	ginkgo.Describe("InitializePayment", func() {
		ginkgo.It("should create a pending record before the payer is redirected", func() {
			// Given
			adapter.initFn = func(ctx context.Context, params gateway.InitializeParams) (*gateway.InitResult, error) {
				return &gateway.InitResult{
					TransactionID: params.Reference,
					Reference:     params.Reference,
					PaymentURL:    "https://checkout.example/xyz",
				}, nil
			}

			// When
			resp, err := service.InitializePayment(context.Background(), InitializePaymentDTO{
				ApplicationID: 7,
				Gateway:       "paystack",
				Amount:        50000,
				Currency:      "KES",
				CustomerEmail: "applicant@example.com",
			})

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(resp.PaymentURL).To(gomega.Equal("https://checkout.example/xyz"))

			record, err := repo.GetLatestByApplicationID(7)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(record.Status).To(gomega.Equal(paymentmodel.StatusPending))
			gomega.Expect(record.GatewayTransactionID).To(gomega.Equal(resp.Reference))

			appID, err := ApplicationIDFromReference(record.GatewayTransactionID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(appID).To(gomega.Equal(int64(7)))
		})

		ginkgo.It("should reject validation failures before touching the gateway", func() {
			// When
			_, err := service.InitializePayment(context.Background(), InitializePaymentDTO{
				ApplicationID: 7,
				Gateway:       "paystack",
				Amount:        0,
				Currency:      "KES",
				CustomerEmail: "applicant@example.com",
			})

			// Then
			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject unknown gateways", func() {
			// When
			_, err := service.InitializePayment(context.Background(), InitializePaymentDTO{
				ApplicationID: 7,
				Gateway:       "stripe",
				Amount:        50000,
				Currency:      "KES",
				CustomerEmail: "applicant@example.com",
			})

			// Then
			gomega.Expect(err).To(gomega.MatchError(apperrors.ErrUnknownGateway))
		})
	})

	ginkgo.Describe("VerifyPayment", func() {
		ginkgo.It("should settle the stored record from the gateway-side status", func() {
			// Given a pending record
			record := &paymentmodel.PaymentRecord{
				ApplicationID:        7,
				PaymentGateway:       "paystack",
				GatewayTransactionID: "APP-7-1700000000000",
				Amount:               50000,
				Currency:             "KES",
				Status:               paymentmodel.StatusPending,
			}
			gomega.Expect(repo.Create(record)).To(gomega.Succeed())
			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				return completedVerify(reference), nil
			}

			// When
			resp, err := service.VerifyPayment(context.Background(), "APP-7-1700000000000")

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(resp.Status).To(gomega.Equal(paymentmodel.StatusCompleted))
			gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))
		})

		ginkgo.It("should return not found for an unknown reference", func() {
			_, err := service.VerifyPayment(context.Background(), "APP-404-1")

			gomega.Expect(err).To(gomega.MatchError(apperrors.ErrPaymentNotFound))
		})
	})

	ginkgo.Describe("ReverifyPending", func() {
		ginkgo.It("should settle stale pending records and skip fresh ones", func() {
			// Given one stale and one fresh pending record
			stale := &paymentmodel.PaymentRecord{
				ApplicationID:        7,
				PaymentGateway:       "paystack",
				GatewayTransactionID: "APP-7-1",
				Amount:               50000,
				Currency:             "KES",
				Status:               paymentmodel.StatusPending,
			}
			gomega.Expect(repo.Create(stale)).To(gomega.Succeed())
			repo.records[stale.ID].CreatedAt = time.Now().Add(-time.Hour)

			fresh := &paymentmodel.PaymentRecord{
				ApplicationID:        8,
				PaymentGateway:       "paystack",
				GatewayTransactionID: "APP-8-1",
				Amount:               30000,
				Currency:             "KES",
				Status:               paymentmodel.StatusPending,
			}
			gomega.Expect(repo.Create(fresh)).To(gomega.Succeed())

			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				return completedVerify(reference), nil
			}

			// When
			settled, err := service.ReverifyPending(context.Background(), 5*time.Minute, 100)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(settled).To(gomega.Equal(1))
			gomega.Expect(repo.statusOf(stale.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))
			gomega.Expect(repo.statusOf(fresh.ID)).To(gomega.Equal(paymentmodel.StatusPending))
		})

		ginkgo.It("should leave records pending when the gateway still reports pending", func() {
			// Given
			stale := &paymentmodel.PaymentRecord{
				ApplicationID:        7,
				PaymentGateway:       "paystack",
				GatewayTransactionID: "APP-7-1",
				Amount:               50000,
				Currency:             "KES",
				Status:               paymentmodel.StatusPending,
			}
			gomega.Expect(repo.Create(stale)).To(gomega.Succeed())
			repo.records[stale.ID].CreatedAt = time.Now().Add(-time.Hour)

			adapter.verifyFn = func(ctx context.Context, reference string) (*gateway.PaymentStatus, error) {
				return &gateway.PaymentStatus{Reference: reference, Status: gateway.StatusPending}, nil
			}

			// When
			settled, err := service.ReverifyPending(context.Background(), 5*time.Minute, 100)

			// Then
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(settled).To(gomega.Equal(0))
			gomega.Expect(repo.statusOf(stale.ID)).To(gomega.Equal(paymentmodel.StatusPending))
		})
	})
})

var _ = ginkgo.Describe("WebhookHandler", func() {
	var (
		repo       *mockPaymentRepository
		handler    *WebhookHandler
		adapter    *fakeAdapter
		record     *paymentmodel.PaymentRecord
		router     *chi.Mux
		reconciler *Reconciler
	)

	ginkgo.BeforeEach(func() {
		repo = newMockPaymentRepository()
		registry := gateway.NewRegistry()
		adapter = &fakeAdapter{name: "paystack"}
		registry.Register(adapter)
		orchestrator := NewOrchestrator(registry, time.Second, testLogger())
		bus := events.NewEventBus(testLogger())
		reconciler = NewReconciler(repo, orchestrator, bus, testLogger())
		handler = NewWebhookHandler(transport.NewBaseHandler(testLogger()), orchestrator, reconciler, testLogger())

		router = chi.NewRouter()
		router.Post("/payments/webhook/{gateway}", handler.HandleWebhook)
		router.Get("/payments/webhook/{gateway}", handler.HandleWebhook)

		record = &paymentmodel.PaymentRecord{
			ApplicationID:        7,
			PaymentGateway:       "paystack",
			GatewayTransactionID: "APP-7-1700000000000",
			Amount:               50000,
			Currency:             "KES",
			Status:               paymentmodel.StatusPending,
		}
		gomega.Expect(repo.Create(record)).To(gomega.Succeed())
	})

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	ginkgo.It("should acknowledge and persist a verified delivery", func() {
		// Given
		adapter.parseFn = func(payload []byte, header http.Header) (*gateway.WebhookResult, error) {
			return &gateway.WebhookResult{
				TransactionID:        "APP-7-1700000000000",
				Status:               gateway.StatusCompleted,
				ShouldUpdateDatabase: true,
			}, nil
		}

		// When
		rec := post("/payments/webhook/paystack", `{"event":"charge.success"}`)

		// Then
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusCompleted))
	})

	ginkgo.It("should acknowledge forged deliveries without mutating anything", func() {
		// Given
		adapter.parseFn = func(payload []byte, header http.Header) (*gateway.WebhookResult, error) {
			return nil, gateway.ErrInvalidSignature
		}

		// When
		rec := post("/payments/webhook/paystack", `{"event":"charge.success"}`)

		// Then a 2xx so the provider stops retrying a payload we will never trust
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(repo.statusOf(record.ID)).To(gomega.Equal(paymentmodel.StatusPending))
	})

	ginkgo.It("should reject structurally malformed payloads with a client error", func() {
		// Given
		adapter.parseFn = func(payload []byte, header http.Header) (*gateway.WebhookResult, error) {
			return nil, fmt.Errorf("%w: no correlation id", gateway.ErrMalformedPayload)
		}

		// When
		rec := post("/payments/webhook/paystack", "garbage")

		// Then
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
	})

	ginkgo.It("should return not found for an unregistered gateway", func() {
		rec := post("/payments/webhook/stripe", `{}`)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
	})

	ginkgo.It("should feed query parameters to the adapter for GET deliveries", func() {
		// Given
		var captured []byte
		adapter.parseFn = func(payload []byte, header http.Header) (*gateway.WebhookResult, error) {
			captured = payload
			return &gateway.WebhookResult{
				TransactionID:        "APP-7-1700000000000",
				Status:               gateway.StatusPending,
				ShouldUpdateDatabase: false,
			}, nil
		}

		// When
		req := httptest.NewRequest(http.MethodGet, "/payments/webhook/paystack?OrderTrackingId=abc&OrderNotificationType=IPNCHANGE", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		// Then
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(string(captured)).To(gomega.ContainSubstring("OrderTrackingId=abc"))
	})
})
