package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/jmoiron/sqlx"

	"github.com/frahmantamala/loan-intake/internal/application"
	"github.com/frahmantamala/loan-intake/internal/auth"
	"github.com/frahmantamala/loan-intake/internal/nda"
	"github.com/frahmantamala/loan-intake/internal/payment"
	"github.com/frahmantamala/loan-intake/internal/transport/middleware"
	"github.com/frahmantamala/loan-intake/internal/transport/swagger"
	"github.com/frahmantamala/loan-intake/internal/user"
)

func RegisterAllRoutes(
	router *chi.Mux,
	db *sqlx.DB,
	authHandler *auth.Handler,
	authService *auth.Service,
	userHandler *user.Handler,
	applicationHandler *application.Handler,
	ndaHandler *nda.Handler,
	paymentHandler *payment.Handler,
	webhookHandler *payment.WebhookHandler,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db.DB)

	rbac := authService.RBACAuthorization()
	abac := &auth.ABACPolicy{}

	// Apply global middleware
	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		// Gateway callbacks are unauthenticated; each adapter authenticates
		// the payload itself. Pesapal delivers IPNs as GET, Paystack as POST.
		if webhookHandler != nil {
			r.Post("/payments/webhook/{gateway}", webhookHandler.HandleWebhook)
			r.Get("/payments/webhook/{gateway}", webhookHandler.HandleWebhook)
		}

		// Auth routes
		if authHandler != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", authHandler.Login)
				sr.Post("/refresh", authHandler.RefreshToken)
				sr.Post("/logout", authHandler.Logout)
			})
		}

		if authHandler != nil {
			// Protected routes that require authentication
			r.Group(func(pr chi.Router) {
				pr.Use(authHandler.AuthMiddleware)

				// Current user
				if userHandler != nil {
					pr.Get("/users/me", userHandler.GetCurrentUser)
				}

				// Application routes
				if applicationHandler != nil {
					pr.Route("/applications", func(ar chi.Router) {
						ar.With(middleware.RequirePermissions("create_applications", "admin")).
							Post("/", applicationHandler.CreateApplication)
						ar.Get("/", applicationHandler.GetMyApplications)

						// Owner-or-reviewer access to a single application.
						// The service re-checks, the middleware fails fast.
						canView := auth.RequireCanViewApplication(db, abac)
						ar.With(canView).Get("/{id}", applicationHandler.GetApplication)
						ar.With(canView).Post("/{id}/refresh-status", applicationHandler.RefreshStatus)

						if ndaHandler != nil {
							ar.Post("/{id}/nda", ndaHandler.SignNDA)
							ar.With(canView).Get("/{id}/nda", ndaHandler.GetNDA)
						}

						if paymentHandler != nil {
							ar.With(canView).Get("/{id}/payments/latest", paymentHandler.LatestForApplication)
						}
					})

					// Reviewer routes with permission protection
					pr.Route("/admin/applications", func(ar chi.Router) {
						ar.Group(func(mr chi.Router) {
							mr.Use(rbac.RequireReviewer())
							mr.Get("/", applicationHandler.ListAllApplications)
						})

						ar.Group(func(mr chi.Router) {
							mr.Use(rbac.RequireReviewApplication())
							mr.Patch("/{id}/review", applicationHandler.StartReview)
						})

						ar.Group(func(mr chi.Router) {
							mr.Use(rbac.RequireApproveApplication())
							mr.Patch("/{id}/approve", applicationHandler.Approve)
						})

						ar.Group(func(mr chi.Router) {
							mr.Use(rbac.RequireRejectApplication())
							mr.Patch("/{id}/reject", applicationHandler.Reject)
						})
					})
				}

				// Payment routes
				if paymentHandler != nil {
					pr.Route("/payments", func(pmr chi.Router) {
						pmr.Get("/gateways", paymentHandler.ListGateways)
						pmr.Post("/initialize", paymentHandler.InitializePayment)
						pmr.Get("/verify/{reference}", paymentHandler.VerifyPayment)
					})
				}
			})
		}
	})
}
