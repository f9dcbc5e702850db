package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/validator"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// SendMessage runs the outbound pipeline: resolve credentials, validate, call
// the provider, record the outcome in the ledger. Request-level rejections
// (bad payload, bad phone, missing credentials) return a failed result without
// writing a ledger row; provider-level failures are recorded as failed rows so
// the dashboard sees every attempt that reached the wire.
func (s *GatewayService) SendMessage(ctx context.Context, input model.SendInput) (*model.SendResult, error) {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}
	log := logger.FromContext(ctx).With(zap.String("owner_id", ownerID))
	start := time.Now()

	creds, err := s.credentialRepo.FindByOwnerID(ctx, ownerID)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if creds == nil || !creds.Usable() {
		observer.IncSendAttempt(ownerID, string(input.Type), "rejected_credentials")
		return &model.SendResult{
			Success:   false,
			ErrorCode: model.ErrCodeMissingCredentials,
			Error:     "owner has no usable WhatsApp credentials configured",
		}, nil
	}

	phoneNumber := utils.NormalizePhone(input.To)
	if !utils.IsValidPhone(phoneNumber) {
		observer.IncSendAttempt(ownerID, string(input.Type), "rejected_phone")
		return &model.SendResult{
			Success:   false,
			ErrorCode: model.ErrCodeInvalidPhoneFormat,
			Error:     fmt.Sprintf("destination %q is not a valid international number", input.To),
		}, nil
	}

	if err := validator.Validate(input); err != nil {
		observer.IncSendAttempt(ownerID, string(input.Type), "rejected_payload")
		return &model.SendResult{
			Success:   false,
			ErrorCode: model.ErrCodeInvalidPayload,
			Error:     err.Error(),
		}, nil
	}
	if err := validateVariant(input); err != nil {
		observer.IncSendAttempt(ownerID, string(input.Type), "rejected_payload")
		return &model.SendResult{
			Success:   false,
			ErrorCode: model.ErrCodeInvalidPayload,
			Error:     err.Error(),
		}, nil
	}

	outcome := s.providerClient.Send(ctx, *creds, phoneNumber, input)

	message := model.Message{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		Direction:      model.MessageDirectionSent,
		PhoneNumber:    phoneNumber,
		ConversationID: model.ConversationID(ownerID, phoneNumber),
		MessageType:    input.Type,
		Content:        input.Message,
		MediaURL:       input.MediaURL,
		TemplateName:   input.TemplateName,
		CreatedAt:      utils.Now(),
	}
	if len(input.TemplateParams) > 0 {
		message.TemplateParams = datatypes.JSON(utils.MustMarshalJSON(input.TemplateParams))
	}

	if outcome.OK {
		now := utils.Now()
		message.ProviderMessageID = &outcome.ProviderMessageID
		message.Status = model.StatusSent
		message.SentAt = &now

		if err := s.messageRepo.Save(ctx, message); err != nil {
			// The provider already accepted the message; surface the ledger
			// failure rather than pretending the send did not happen.
			log.Error("Send succeeded but ledger write failed",
				zap.String("provider_message_id", outcome.ProviderMessageID),
				zap.Error(err))
			return nil, err
		}

		observer.IncSendAttempt(ownerID, string(input.Type), "sent")
		observer.ObserveSendDuration(ownerID, string(input.Type), time.Since(start))
		s.publisher.Publish(ctx, model.LedgerEvent{
			Event:             model.EventMessageSent,
			OwnerID:           ownerID,
			MessageID:         message.ID,
			ProviderMessageID: outcome.ProviderMessageID,
			ConversationID:    message.ConversationID,
			Status:            string(model.StatusSent),
		})

		result := &model.SendResult{
			Success:           true,
			MessageID:         message.ID,
			ProviderMessageID: outcome.ProviderMessageID,
		}
		if outcome.NoEngagement {
			result.Warning = model.WarningNoEngagement
		}
		return result, nil
	}

	// Provider-level failure: record a failed ledger row.
	now := utils.Now()
	message.Status = model.StatusFailed
	message.FailedAt = &now
	message.ErrorMessage = fmt.Sprintf("[%s] %s", outcome.ErrorCode, outcome.ErrorMessage)

	if err := s.messageRepo.Save(ctx, message); err != nil {
		log.Error("Failed to record failed send in ledger", zap.Error(err))
		return nil, err
	}

	observer.IncSendAttempt(ownerID, string(input.Type), "failed")
	observer.ObserveSendDuration(ownerID, string(input.Type), time.Since(start))
	s.publisher.Publish(ctx, model.LedgerEvent{
		Event:          model.EventMessageFailed,
		OwnerID:        ownerID,
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		Status:         string(model.StatusFailed),
	})

	return &model.SendResult{
		Success:   false,
		MessageID: message.ID,
		ErrorCode: outcome.ErrorCode,
		Error:     outcome.ErrorMessage,
	}, nil
}

// validateVariant enforces the per-type payload requirements the struct tags
// cannot express.
func validateVariant(input model.SendInput) error {
	switch input.Type {
	case model.TypeText:
		if input.Message == "" {
			return errors.New("text messages require a non-empty message body")
		}
	case model.TypeImage, model.TypeVideo, model.TypeAudio, model.TypeDocument:
		if input.MediaURL == "" {
			return fmt.Errorf("%s messages require media_url", input.Type)
		}
	case model.TypeTemplate:
		if input.TemplateName == "" {
			return errors.New("template messages require template_name")
		}
	}
	return nil
}

// GetConversation returns one conversation's messages for the context owner,
// ordered by creation time.
func (s *GatewayService) GetConversation(ctx context.Context, phoneNumber string, limit int, offset int) ([]model.Message, error) {
	normalized := utils.NormalizePhone(phoneNumber)
	if !utils.IsValidPhone(normalized) {
		return nil, fmt.Errorf("%w: phone %q is not a valid international number", apperrors.ErrValidation, phoneNumber)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.messageRepo.FindConversation(ctx, normalized, limit, offset)
}
