package application

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/loan-intake/internal/core/datamodel/application"
	"github.com/frahmantamala/loan-intake/internal/core/events"
)

// StatusDeriver recomputes an application's lifecycle status from currently
// stored facts. The only automatic transition is draft -> submitted, taken
// when a completed payment and an NDA signature both exist. Every other
// status is admin-owned and acts as a barrier the deriver never crosses.
type StatusDeriver struct {
	apps     RepositoryAPI
	payments PaymentFactsAPI
	ndas     NDAFactsAPI
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewStatusDeriver(apps RepositoryAPI, payments PaymentFactsAPI, ndas NDAFactsAPI, eventBus *events.EventBus, logger *slog.Logger) *StatusDeriver {
	return &StatusDeriver{
		apps:     apps,
		payments: payments,
		ndas:     ndas,
		eventBus: eventBus,
		logger:   logger,
	}
}

// DeriveStatus is safe to call redundantly and concurrently for the same
// application. It bumps updated_at on every invocation, whether or not the
// status changes, so "last touched" stays meaningful for monitoring.
func (d *StatusDeriver) DeriveStatus(ctx context.Context, applicationID int64) error {
	app, err := d.apps.GetByID(applicationID)
	if err != nil {
		d.logger.Error("status derivation: application not found",
			"application_id", applicationID,
			"error", err)
		return err
	}

	if !app.IsDraft() {
		d.logger.Info("status derivation: application past draft, leaving untouched",
			"application_id", applicationID,
			"status", app.Status)
		return d.apps.Touch(applicationID)
	}

	paid, err := d.payments.HasCompletedForApplication(applicationID)
	if err != nil {
		d.logger.Error("status derivation: failed to check payment fact",
			"application_id", applicationID,
			"error", err)
		return err
	}

	signed, err := d.ndas.ExistsForApplication(applicationID)
	if err != nil {
		d.logger.Error("status derivation: failed to check NDA fact",
			"application_id", applicationID,
			"error", err)
		return err
	}

	if !paid || !signed {
		d.logger.Info("status derivation: conditions not yet met",
			"application_id", applicationID,
			"payment_completed", paid,
			"nda_signed", signed)
		return d.apps.Touch(applicationID)
	}

	transitioned, err := d.apps.UpdateStatusIfDraft(applicationID, application.StatusSubmitted)
	if err != nil {
		d.logger.Error("status derivation: failed to persist transition",
			"application_id", applicationID,
			"error", err)
		return err
	}
	if !transitioned {
		// Someone else (a concurrent derivation or an admin) already moved
		// the application off draft. The facts stand; nothing to redo.
		d.logger.Info("status derivation: application already moved off draft",
			"application_id", applicationID)
		return nil
	}

	d.logger.Info("application submitted",
		"application_id", applicationID,
		"user_id", app.UserID)

	d.eventBus.Publish(ctx, events.NewApplicationSubmittedEvent(applicationID, app.UserID))

	return nil
}
