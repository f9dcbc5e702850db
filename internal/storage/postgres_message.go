package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// SaveMessage inserts one ledger row. The unique index on
// (owner_id, provider_message_id) turns redelivered inbound messages into
// ErrDuplicate, which callers treat as an idempotent skip.
func (r *PostgresRepo) SaveMessage(ctx context.Context, message model.Message) error {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}
	if ownerID != message.OwnerID {
		return fmt.Errorf("%w: message OwnerID %s does not match context owner %s", apperrors.ErrBadRequest, message.OwnerID, ownerID)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Create(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveMessage Commit", operation)
	observer.ObserveDbOperationDuration("insert", "message", ownerID, time.Since(startTime), commitErr)

	if commitErr != nil {
		if !errors.Is(commitErr, apperrors.ErrDuplicate) {
			logger.FromContext(ctx).Error("Failed to save message after retries", zap.String("id", message.ID), zap.Error(commitErr))
		}
		return commitErr // Already wrapped
	}

	return nil
}

// FindMessageByMessageID finds a message by its internal id.
func (r *PostgresRepo) FindMessageByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", messageID, ownerID).First(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByMessageID", operation)
	observer.ObserveDbOperationDuration("find", "message", ownerID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find message by id after retries",
			zap.String("id", messageID),
			zap.String("owner_id", ownerID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &message, nil
}

// FindMessageByProviderMessageID finds a message by the provider-assigned id.
func (r *PostgresRepo) FindMessageByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var message model.Message
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("provider_message_id = ? AND owner_id = ?", providerMessageID, ownerID).
			First(&message)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindMessageByProviderMessageID", operation)
	observer.ObserveDbOperationDuration("find", "message", ownerID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find message by provider message id after retries",
			zap.String("provider_message_id", providerMessageID),
			zap.String("owner_id", ownerID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &message, nil
}

// AdvanceMessageStatus applies one guarded lifecycle transition as a single
// conditional UPDATE. The WHERE clause carries the whole state machine:
// concurrent, duplicate, or out-of-order updates simply match zero rows.
// Returns true when the transition was applied.
func (r *PostgresRepo) AdvanceMessageStatus(ctx context.Context, update model.StatusUpdate) (bool, error) {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	eventTime := update.EventTime
	if eventTime.IsZero() {
		eventTime = utils.Now()
	}

	var applied bool
	operation := func() error {
		tx := r.db.WithContext(ctx).Model(&model.Message{}).
			Where("owner_id = ? AND provider_message_id = ?", ownerID, update.ProviderMessageID)

		switch update.Target {
		case model.StatusSent:
			// Only reachable from pending (retry bookkeeping path).
			tx = tx.Where("status = ? AND failed_at IS NULL", model.StatusPending).
				Updates(map[string]interface{}{
					"status":    model.StatusSent,
					"sent_at":   eventTime,
					"synthetic": update.Synthetic,
				})

		case model.StatusDelivered:
			tx = tx.Where("status = ? AND delivered_at IS NULL AND failed_at IS NULL", model.StatusSent).
				Updates(map[string]interface{}{
					"status":       model.StatusDelivered,
					"delivered_at": eventTime,
					"synthetic":    update.Synthetic,
				})

		case model.StatusRead:
			// read may arrive before delivered; backfill delivered_at so the
			// ledger never shows a read message without a delivery time.
			tx = tx.Where("status IN ? AND failed_at IS NULL", []model.MessageStatus{model.StatusSent, model.StatusDelivered}).
				Updates(map[string]interface{}{
					"status":       model.StatusRead,
					"read_at":      eventTime,
					"delivered_at": gorm.Expr("COALESCE(delivered_at, ?)", eventTime),
					"synthetic":    update.Synthetic,
				})

		case model.StatusFailed:
			errMsg := update.ErrorMessage
			if update.ErrorCode != "" {
				errMsg = fmt.Sprintf("[%s] %s", update.ErrorCode, update.ErrorMessage)
			}
			tx = tx.Where("status IN ? AND delivered_at IS NULL AND failed_at IS NULL", []model.MessageStatus{model.StatusPending, model.StatusSent}).
				Updates(map[string]interface{}{
					"status":        model.StatusFailed,
					"failed_at":     eventTime,
					"error_message": errMsg,
				})

		default:
			return fmt.Errorf("%w: unsupported status transition target %q", apperrors.ErrBadRequest, update.Target)
		}

		if tx.Error != nil {
			return checkConstraintViolation(tx.Error)
		}
		applied = tx.RowsAffected > 0
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "AdvanceMessageStatus Commit", operation)
	observer.ObserveDbOperationDuration("advance_status", "message", ownerID, time.Since(startTime), commitErr)

	if commitErr != nil {
		loggerCtx.Error("Failed to advance message status after retries",
			zap.String("provider_message_id", update.ProviderMessageID),
			zap.String("target", string(update.Target)),
			zap.Error(commitErr))
		return false, commitErr // Already wrapped
	}

	if !applied {
		loggerCtx.Debug("Status transition matched no rows, treating as no-op",
			zap.String("provider_message_id", update.ProviderMessageID),
			zap.String("target", string(update.Target)))
	}
	return applied, nil
}

// FindConversationMessages returns one conversation's messages in the order
// they were created.
func (r *PostgresRepo) FindConversationMessages(ctx context.Context, phoneNumber string, limit int, offset int) ([]model.Message, error) {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	conversationID := model.ConversationID(ownerID, phoneNumber)

	var messages []model.Message
	operation := func() error {
		query := r.db.WithContext(ctx).
			Where("owner_id = ? AND conversation_id = ?", ownerID, conversationID).
			Order("created_at ASC").
			Limit(limit).
			Offset(offset).
			Find(&messages)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindConversationMessages", operation)
	observer.ObserveDbOperationDuration("find_conversation", "message", ownerID, time.Since(startTime), err)

	if err != nil {
		loggerCtx.Error("Failed to find conversation messages after retries",
			zap.String("conversation_id", conversationID),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return nil, err // Already wrapped
	}
	return messages, nil
}

// staleSentScope is the shared predicate for the reconciliation sweep: outbound
// rows still in sent with no delivery or failure evidence, older than cutoff.
func (r *PostgresRepo) staleSentScope(ctx context.Context, ownerID string, cutoff time.Time) *gorm.DB {
	return r.db.WithContext(ctx).Model(&model.Message{}).
		Where("owner_id = ? AND direction = ? AND status = ?", ownerID, model.MessageDirectionSent, model.StatusSent).
		Where("delivered_at IS NULL AND failed_at IS NULL").
		Where("created_at < ?", cutoff)
}

// FindStaleSentMessages returns outbound messages stuck in sent past the cutoff.
func (r *PostgresRepo) FindStaleSentMessages(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error) {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}
	loggerCtx := logger.FromContext(ctx)

	var messages []model.Message
	operation := func() error {
		query := r.staleSentScope(ctx, ownerID, cutoff).
			Order("created_at ASC").
			Limit(limit).
			Find(&messages)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "FindStaleSentMessages", operation)
	observer.ObserveDbOperationDuration("find_stale", "message", ownerID, time.Since(startTime), err)

	if err != nil {
		loggerCtx.Error("Failed to find stale sent messages after retries",
			zap.Time("cutoff", cutoff),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return nil, err // Already wrapped
	}
	return messages, nil
}

// CountStaleSentMessages counts outbound messages stuck in sent past the cutoff.
func (r *PostgresRepo) CountStaleSentMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	ownerID, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to get owner ID: %w", apperrors.ErrUnauthorized, err)
	}

	var count int64
	operation := func() error {
		query := r.staleSentScope(ctx, ownerID, cutoff).Count(&count)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err = retryableOperation(ctx, readPolicy, "CountStaleSentMessages", operation)
	observer.ObserveDbOperationDuration("count_stale", "message", ownerID, time.Since(startTime), err)

	if err != nil {
		logger.FromContext(ctx).Error("Failed to count stale sent messages after retries",
			zap.Time("cutoff", cutoff),
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return 0, err // Already wrapped
	}
	return count, nil
}
