package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/validator"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// sweepBatchLimit bounds how many stale rows one sweep pass will touch per
// owner; anything beyond it is picked up by the next pass.
const sweepBatchLimit = 500

// SweepPending walks every owner and reports outbound messages stuck in sent
// past the age threshold. With AutoUpdate the stale rows are synthetically
// advanced to delivered through the same guarded transition the webhook path
// uses, so a late callback racing the sweep can never double-apply.
func (s *GatewayService) SweepPending(ctx context.Context, input model.SweepInput) ([]model.OwnerSweepReport, error) {
	if input.HoursThreshold == 0 {
		input.HoursThreshold = s.reconcileCfg.Reconcile.HoursThreshold
	}
	if err := validator.Validate(input); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}

	// The config flag makes auto-update the default; a request can only opt in,
	// never opt out of an operator-enabled auto-update.
	autoUpdate := input.AutoUpdate || s.reconcileCfg.Reconcile.AutoUpdate

	cutoff := utils.Now().Add(-time.Duration(input.HoursThreshold) * time.Hour)
	log := logger.FromContext(ctx).With(
		zap.Time("cutoff", cutoff),
		zap.Bool("auto_update", autoUpdate),
	)

	credentials, err := s.credentialRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners for sweep: %w", err)
	}

	reports := make([]model.OwnerSweepReport, 0, len(credentials))
	for _, cred := range credentials {
		reports = append(reports, s.sweepOwner(ctx, cred, cutoff, autoUpdate))
	}

	log.Info("Reconciliation sweep finished", zap.Int("owners", len(reports)))
	return reports, nil
}

// sweepOwner runs one owner's sweep pass. Errors stay inside the report so one
// broken owner cannot abort the sweep for everyone else.
func (s *GatewayService) sweepOwner(ctx context.Context, cred model.Credential, cutoff time.Time, autoUpdate bool) model.OwnerSweepReport {
	report := model.OwnerSweepReport{OwnerID: cred.OwnerID}
	ownerCtx := tenant.WithOwnerID(ctx, cred.OwnerID)
	log := logger.FromContext(ctx).With(zap.String("owner_id", cred.OwnerID))

	count, err := s.messageRepo.CountStaleSent(ownerCtx, cutoff)
	if err != nil {
		log.Error("Failed to count stale messages", zap.Error(err))
		report.Error = err.Error()
		return report
	}
	report.PendingCount = int(count)
	observer.AddSweepStaleFound(cred.OwnerID, report.PendingCount)

	if !cred.Usable() {
		// Still reported so the dashboard shows the backlog, but nothing is
		// touched for an owner that cannot send.
		report.Skipped = true
		observer.IncSweepOwnerSkipped(cred.OwnerID)
		return report
	}

	if !autoUpdate || count == 0 {
		return report
	}

	stale, err := s.messageRepo.FindStaleSent(ownerCtx, cutoff, sweepBatchLimit)
	if err != nil {
		log.Error("Failed to fetch stale messages for auto-update", zap.Error(err))
		report.Error = err.Error()
		return report
	}

	for _, msg := range stale {
		if msg.ProviderMessageID == nil {
			continue
		}
		applied, err := s.messageRepo.AdvanceStatus(ownerCtx, model.StatusUpdate{
			ProviderMessageID: *msg.ProviderMessageID,
			Target:            model.StatusDelivered,
			Synthetic:         true,
		})
		if err != nil {
			log.Error("Failed to auto-update stale message",
				zap.String("provider_message_id", *msg.ProviderMessageID),
				zap.Error(err))
			report.Error = err.Error()
			continue
		}
		if applied {
			report.AutoUpdated++
		}
	}

	if report.AutoUpdated > 0 {
		observer.AddSweepAutoUpdated(cred.OwnerID, report.AutoUpdated)
		s.publisher.Publish(ownerCtx, model.LedgerEvent{
			Event:     model.EventMessageSweep,
			OwnerID:   cred.OwnerID,
			Status:    string(model.StatusDelivered),
			Synthetic: true,
		})
		log.Info("Sweep auto-updated stale messages", zap.Int("auto_updated", report.AutoUpdated))
	}
	return report
}
