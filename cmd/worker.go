package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/loan-intake/internal/core/events"
	"github.com/frahmantamala/loan-intake/internal/gateway"
	"github.com/frahmantamala/loan-intake/internal/payment"
	paymentpg "github.com/frahmantamala/loan-intake/internal/payment/postgres"
	"github.com/frahmantamala/loan-intake/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start and manage background workers like the payment reconciliation sweeper.`,
}

// Reconciliation worker command
var reconcileWorkerCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Start the payment reconciliation sweeper",
	Long: `Periodically re-verifies pending payments against their gateway.
Closes the gap left by webhook deliveries that were lost or failed to persist.`,
	Run: func(cmd *cobra.Command, args []string) {
		startReconcileWorker()
	},
}

// Event Bus worker command
var eventWorkerCmd = &cobra.Command{
	Use:   "events",
	Short: "Start event bus worker",
	Long:  `Start the event bus `,
	Run: func(cmd *cobra.Command, args []string) {
		startEventWorker()
	},
}

var (
	sweepInterval time.Duration
	sweepMinAge   time.Duration
	sweepLimit    int
)

func startReconcileWorker() {
	config, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	gormDB, err := initGormDB(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize gorm: %v\n", err)
		os.Exit(1)
	}

	registry := gateway.NewRegistry()
	if config.Payment.Paystack.SecretKey != "" {
		registry.Register(gateway.NewPaystackAdapter(gateway.PaystackConfig{
			BaseURL:       config.Payment.Paystack.BaseURL,
			SecretKey:     config.Payment.Paystack.SecretKey,
			WebhookSecret: config.Payment.Paystack.WebhookSecret,
			Timeout:       config.Payment.RequestTimeout,
		}, log))
	}
	if config.Payment.Pesapal.ConsumerKey != "" {
		registry.Register(gateway.NewPesapalAdapter(gateway.PesapalConfig{
			BaseURL:        config.Payment.Pesapal.BaseURL,
			ConsumerKey:    config.Payment.Pesapal.ConsumerKey,
			ConsumerSecret: config.Payment.Pesapal.ConsumerSecret,
			IPNID:          config.Payment.Pesapal.IPNID,
			Timeout:        config.Payment.RequestTimeout,
		}, log))
	}

	eventBus := events.NewEventBus(log)
	repo := paymentpg.NewPaymentRepository(gormDB)
	orchestrator := payment.NewOrchestrator(registry, config.Payment.RequestTimeout, log)
	reconciler := payment.NewReconciler(repo, orchestrator, eventBus, log)
	paymentService := payment.NewService(repo, orchestrator, reconciler, log)

	log.Info("starting reconciliation sweeper",
		"interval", sweepInterval,
		"min_age", sweepMinAge,
		"batch_limit", sweepLimit,
		"gateways", registry.Names())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), sweepInterval)
			settled, err := paymentService.ReverifyPending(ctx, sweepMinAge, sweepLimit)
			cancel()
			if err != nil {
				log.Error("reconciliation sweep failed", "error", err)
				continue
			}
			if settled > 0 {
				log.Info("reconciliation sweep settled payments", "count", settled)
			}
		case sig := <-sigChan:
			log.Info("received signal, shutting down reconciliation sweeper", "signal", sig)
			return
		}
	}
}

func startEventWorker() {
	_, err := loadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.LoggerWrapper()

	eventBus := events.NewEventBus(log)

	eventBus.Subscribe("test.event", func(ctx context.Context, event events.Event) error {
		log.Info("received test event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	log.Info("event bus worker started. Waiting for events...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Info("event bus is running. Press Ctrl+C to stop.")

	sig := <-sigChan
	log.Info("received signal, shutting down event bus", "signal", sig)
	log.Info("event bus shutdown complete")
}

func init() {
	reconcileWorkerCmd.Flags().DurationVar(&sweepInterval, "interval", time.Minute, "How often to run a sweep")
	reconcileWorkerCmd.Flags().DurationVar(&sweepMinAge, "min-age", 5*time.Minute, "Only re-verify payments pending at least this long")
	reconcileWorkerCmd.Flags().IntVar(&sweepLimit, "limit", 100, "Maximum payments per sweep")

	workerCmd.AddCommand(reconcileWorkerCmd)
	workerCmd.AddCommand(eventWorkerCmd)

	rootCmd.AddCommand(workerCmd)
}
