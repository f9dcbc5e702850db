package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// VerifyWebhook answers the provider's subscription handshake. The token is
// matched against every tenant's verify token, trimmed and case-insensitive;
// the endpoint is shared so any tenant's token validates the subscription.
func (s *GatewayService) VerifyWebhook(ctx context.Context, mode, token, challenge string) (string, bool) {
	if mode != "subscribe" {
		return "", false
	}
	supplied := strings.TrimSpace(token)
	if supplied == "" {
		return "", false
	}

	credentials, err := s.credentialRepo.ListAll(ctx)
	if err != nil {
		logger.FromContext(ctx).Error("Failed to list credentials for webhook verification", zap.Error(err))
		return "", false
	}

	for _, cred := range credentials {
		if cred.VerifyToken == "" {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(cred.VerifyToken), supplied) {
			return challenge, true
		}
	}
	return "", false
}

// ProcessWebhook applies one provider callback to the ledger. Entries are
// isolated from each other: a malformed or unresolvable entry is recorded in
// the report and processing continues. The HTTP boundary always acks
// regardless of what this returns.
func (s *GatewayService) ProcessWebhook(ctx context.Context, payload model.WebhookPayload) *model.IngestReport {
	report := &model.IngestReport{}
	log := logger.FromContext(ctx)

	if len(payload.Entry) == 0 {
		report.EntryErrors = append(report.EntryErrors,
			fmt.Sprintf("%s: payload carries no entries", model.ErrCodeInvalidWebhookStructure))
		log.Warn("Webhook payload carries no entries", zap.String("object", payload.Object))
		return report
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			if value.Metadata.PhoneNumberID == "" {
				report.EntryErrors = append(report.EntryErrors,
					fmt.Sprintf("entry %s: missing metadata.phone_number_id", entry.ID))
				report.StatusesDropped += len(value.Statuses)
				continue
			}

			cred, err := s.credentialRepo.FindByPhoneNumberID(ctx, value.Metadata.PhoneNumberID)
			if err != nil {
				if errors.Is(err, apperrors.ErrNotFound) {
					report.EntryErrors = append(report.EntryErrors,
						fmt.Sprintf("entry %s: no owner for phone_number_id %s", entry.ID, value.Metadata.PhoneNumberID))
				} else {
					report.EntryErrors = append(report.EntryErrors,
						fmt.Sprintf("entry %s: owner lookup failed: %v", entry.ID, err))
				}
				report.StatusesDropped += len(value.Statuses)
				continue
			}

			ownerCtx := tenant.WithOwnerID(ctx, cred.OwnerID)

			for _, status := range value.Statuses {
				s.applyStatusEvent(ownerCtx, cred.OwnerID, status, report)
			}
			for _, inbound := range value.Messages {
				s.storeInboundMessage(ownerCtx, cred.OwnerID, inbound, value.Contacts, report)
			}
		}
	}

	log.Info("Webhook callback processed",
		zap.Int("statuses_applied", report.StatusesApplied),
		zap.Int("statuses_ignored", report.StatusesIgnored),
		zap.Int("statuses_dropped", report.StatusesDropped),
		zap.Int("inbound_stored", report.InboundStored),
		zap.Int("inbound_duplicates", report.InboundDuplicates),
		zap.Int("entry_errors", len(report.EntryErrors)),
	)
	return report
}

// applyStatusEvent maps one statuses[] item onto a guarded ledger transition.
func (s *GatewayService) applyStatusEvent(ctx context.Context, ownerID string, event model.StatusEvent, report *model.IngestReport) {
	log := logger.FromContext(ctx).With(
		zap.String("owner_id", ownerID),
		zap.String("provider_message_id", event.ID),
		zap.String("provider_status", event.Status),
	)

	target, ok := model.ParseProviderStatus(event.Status)
	if !ok {
		log.Debug("Dropping untracked provider status")
		report.StatusesDropped++
		observer.IncWebhookEvent(ownerID, "status", "dropped")
		return
	}

	update := model.StatusUpdate{
		ProviderMessageID: event.ID,
		Target:            target,
		EventTime:         event.EventTime(),
	}
	if target == model.StatusFailed && len(event.Errors) > 0 {
		update.ErrorCode = strconv.Itoa(event.Errors[0].Code)
		update.ErrorMessage = event.Errors[0].Title
		if event.Errors[0].Message != "" {
			update.ErrorMessage = event.Errors[0].Message
		}
	}

	applied, err := s.messageRepo.AdvanceStatus(ctx, update)
	if err != nil {
		log.Error("Failed to apply status transition", zap.Error(err))
		report.EntryErrors = append(report.EntryErrors,
			fmt.Sprintf("status %s -> %s: %v", event.ID, event.Status, err))
		observer.IncWebhookEvent(ownerID, "status", "error")
		return
	}

	if applied {
		report.StatusesApplied++
		observer.IncWebhookEvent(ownerID, "status", "applied")
		s.publisher.Publish(ctx, model.LedgerEvent{
			Event:             model.EventMessageStatus,
			OwnerID:           ownerID,
			ProviderMessageID: event.ID,
			Status:            string(target),
			OccurredAt:        event.EventTime(),
		})
		return
	}

	// No-op: either the row is already at or past the target (duplicate or
	// out-of-order callback) or no ledger row carries this provider id.
	if _, err := s.messageRepo.FindByProviderMessageID(ctx, event.ID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Debug("Dropping status for unknown provider message id")
			report.StatusesDropped++
			observer.IncWebhookEvent(ownerID, "status", "dropped")
			return
		}
		report.EntryErrors = append(report.EntryErrors,
			fmt.Sprintf("status %s lookup failed: %v", event.ID, err))
		observer.IncWebhookEvent(ownerID, "status", "error")
		return
	}
	report.StatusesIgnored++
	observer.IncWebhookEvent(ownerID, "status", "ignored")
}

// storeInboundMessage persists one messages[] item as a received ledger row.
// The unique index on (owner_id, provider_message_id) makes redelivery safe.
func (s *GatewayService) storeInboundMessage(ctx context.Context, ownerID string, inbound model.InboundMessage, contacts []model.WebhookContact, report *model.IngestReport) {
	log := logger.FromContext(ctx).With(
		zap.String("owner_id", ownerID),
		zap.String("provider_message_id", inbound.ID),
	)

	if inbound.ID == "" || inbound.From == "" {
		report.EntryErrors = append(report.EntryErrors, "inbound message missing id or sender")
		observer.IncWebhookEvent(ownerID, "inbound", "error")
		return
	}

	phoneNumber := utils.NormalizePhone(inbound.From)
	providerID := inbound.ID

	message := model.Message{
		ID:                uuid.New().String(),
		OwnerID:           ownerID,
		Direction:         model.MessageDirectionReceived,
		ProviderMessageID: &providerID,
		PhoneNumber:       phoneNumber,
		ConversationID:    model.ConversationID(ownerID, phoneNumber),
		Status:            model.StatusDelivered,
		WhatsappTimestamp: parseTimestamp(inbound.Timestamp),
		CreatedAt:         utils.Now(),
	}

	switch inbound.Type {
	case "text":
		message.MessageType = model.TypeText
		if inbound.Text != nil {
			message.Content = inbound.Text.Body
		}
	case "image", "video", "audio", "document":
		message.MessageType = model.MessageType(inbound.Type)
		if media := inboundMedia(inbound); media != nil {
			message.MediaID = media.ID
			message.MimeType = media.MimeType
			message.Content = media.Caption
		}
	case "location":
		message.MessageType = model.TypeLocation
		if inbound.Location != nil {
			message.Metadata = datatypes.JSON(utils.MustMarshalJSON(inbound.Location))
		}
	default:
		// Unrecognized payload types still get a ledger row so the
		// conversation view shows that something arrived.
		message.MessageType = model.MessageType(inbound.Type)
	}

	if name := contactName(contacts, inbound.From); name != "" {
		meta := map[string]string{"profile_name": name}
		if message.Metadata == nil {
			message.Metadata = datatypes.JSON(utils.MustMarshalJSON(meta))
		}
	}

	if err := s.messageRepo.Save(ctx, message); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			log.Debug("Skipping redelivered inbound message")
			report.InboundDuplicates++
			observer.IncWebhookEvent(ownerID, "inbound", "duplicate")
			return
		}
		log.Error("Failed to store inbound message", zap.Error(err))
		report.EntryErrors = append(report.EntryErrors,
			fmt.Sprintf("inbound %s: %v", inbound.ID, err))
		observer.IncWebhookEvent(ownerID, "inbound", "error")
		return
	}

	report.InboundStored++
	observer.IncWebhookEvent(ownerID, "inbound", "stored")
	s.publisher.Publish(ctx, model.LedgerEvent{
		Event:             model.EventMessageReceived,
		OwnerID:           ownerID,
		MessageID:         message.ID,
		ProviderMessageID: providerID,
		ConversationID:    message.ConversationID,
	})
}

func inboundMedia(m model.InboundMessage) *model.InboundMedia {
	switch m.Type {
	case "image":
		return m.Image
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	case "document":
		return m.Document
	}
	return nil
}

func contactName(contacts []model.WebhookContact, waID string) string {
	for _, c := range contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}

func parseTimestamp(s string) int64 {
	unix, err := strconv.ParseInt(s, 10, 64)
	if err != nil || unix < 0 {
		return 0
	}
	return unix
}
