package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/frahmantamala/loan-intake/internal"
	"github.com/frahmantamala/loan-intake/internal/application"
	applicationpg "github.com/frahmantamala/loan-intake/internal/application/postgres"
	"github.com/frahmantamala/loan-intake/internal/auth"
	authpg "github.com/frahmantamala/loan-intake/internal/auth/postgres"
	"github.com/frahmantamala/loan-intake/internal/core/events"
	"github.com/frahmantamala/loan-intake/internal/gateway"
	"github.com/frahmantamala/loan-intake/internal/nda"
	ndapg "github.com/frahmantamala/loan-intake/internal/nda/postgres"
	"github.com/frahmantamala/loan-intake/internal/payment"
	paymentpg "github.com/frahmantamala/loan-intake/internal/payment/postgres"
	"github.com/frahmantamala/loan-intake/internal/transport"
	"github.com/frahmantamala/loan-intake/internal/transport/rest"
	"github.com/frahmantamala/loan-intake/internal/user"
	userpg "github.com/frahmantamala/loan-intake/internal/user/postgres"
	"github.com/frahmantamala/loan-intake/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config *internal.Config
	DB     *sqlx.DB
	GormDB *gorm.DB
	Router *chi.Mux
	Logger *slog.Logger

	EventBus *events.EventBus

	AuthHandler        *auth.Handler
	AuthService        *auth.Service
	UserHandler        *user.Handler
	ApplicationHandler *application.Handler
	NDAHandler         *nda.Handler
	PaymentHandler     *payment.Handler
	WebhookHandler     *payment.WebhookHandler
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	slog.Info("Starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:         addr,
		Handler:      deps.Router,
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
		IdleTimeout:  deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			slog.Error("Database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Server stopped")
}

func setupRoutes(deps *Dependencies) {
	rest.RegisterAllRoutes(
		deps.Router,
		deps.DB,
		deps.AuthHandler,
		deps.AuthService,
		deps.UserHandler,
		deps.ApplicationHandler,
		deps.NDAHandler,
		deps.PaymentHandler,
		deps.WebhookHandler,
		deps.Logger,
	)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := initGormDB(db)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize gorm: %w", err)
	}

	appLogger := logger.LoggerWrapper()
	if appLogger == nil {
		appLogger = slog.Default()
	}

	eventBus := events.NewEventBus(appLogger)

	// Gateway adapters. Only configured gateways get registered; the
	// orchestrator answers for everything else with an unknown-gateway error.
	registry := gateway.NewRegistry()
	if config.Payment.Paystack.SecretKey != "" {
		registry.Register(gateway.NewPaystackAdapter(gateway.PaystackConfig{
			BaseURL:       config.Payment.Paystack.BaseURL,
			SecretKey:     config.Payment.Paystack.SecretKey,
			WebhookSecret: config.Payment.Paystack.WebhookSecret,
			Timeout:       config.Payment.RequestTimeout,
		}, appLogger))
	}
	if config.Payment.Pesapal.ConsumerKey != "" {
		registry.Register(gateway.NewPesapalAdapter(gateway.PesapalConfig{
			BaseURL:        config.Payment.Pesapal.BaseURL,
			ConsumerKey:    config.Payment.Pesapal.ConsumerKey,
			ConsumerSecret: config.Payment.Pesapal.ConsumerSecret,
			IPNID:          config.Payment.Pesapal.IPNID,
			Timeout:        config.Payment.RequestTimeout,
		}, appLogger))
	}

	// Payment pipeline
	paymentRepo := paymentpg.NewPaymentRepository(gormDB)
	orchestrator := payment.NewOrchestrator(registry, config.Payment.RequestTimeout, appLogger)
	reconciler := payment.NewReconciler(paymentRepo, orchestrator, eventBus, appLogger)
	paymentService := payment.NewService(paymentRepo, orchestrator, reconciler, appLogger)
	paymentHandler := payment.NewHandler(paymentService, appLogger)
	webhookHandler := payment.NewWebhookHandler(transport.NewBaseHandler(appLogger), orchestrator, reconciler, appLogger)

	// Application state derivation
	applicationRepo := applicationpg.NewApplicationRepository(gormDB, appLogger)
	ndaRepo := ndapg.NewNDARepository(gormDB)
	deriver := application.NewStatusDeriver(applicationRepo, paymentRepo, ndaRepo, eventBus, appLogger)
	applicationService := application.NewService(applicationRepo, deriver, appLogger)
	applicationHandler := application.NewHandler(applicationService, appLogger)

	ndaService := nda.NewService(ndaRepo, applicationRepo, eventBus, appLogger)
	ndaHandler := nda.NewHandler(ndaService, appLogger)

	// Payment and NDA facts drive application status through the event bus.
	application.NewEventHandler(deriver, appLogger).RegisterEventHandlers(eventBus)

	// Auth
	tokenGen := auth.NewJWTTokenGenerator(config.Security.SessionSecret, config.Security.SessionSecret+".refresh")
	tokenGen.AccessTokenTTL = config.Security.AccessTokenDuration
	tokenGen.RefreshTokenTTL = config.Security.RefreshTokenDuration
	authService := auth.NewService(authpg.NewRepository(gormDB), tokenGen)
	authHandler := auth.NewHandler(authService)

	userService := user.NewService(userpg.NewUserRepository(db))
	userHandler := user.NewHandler(userService)

	return &Dependencies{
		Config:             config,
		Logger:             appLogger,
		DB:                 db,
		GormDB:             gormDB,
		Router:             chi.NewRouter(),
		EventBus:           eventBus,
		AuthHandler:        authHandler,
		AuthService:        authService,
		UserHandler:        userHandler,
		ApplicationHandler: applicationHandler,
		NDAHandler:         ndaHandler,
		PaymentHandler:     paymentHandler,
		WebhookHandler:     webhookHandler,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

// initGormDB layers gorm over the already open pgx connection pool so both
// database handles share the same pool limits.
func initGormDB(db *sqlx.DB) (*gorm.DB, error) {
	return gorm.Open(gormpostgres.New(gormpostgres.Config{
		Conn: db.DB,
	}), &gorm.Config{
		TranslateError: true,
	})
}
