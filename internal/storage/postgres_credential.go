package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/observer"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/utils"
)

// FindCredentialByOwnerID finds one owner's credential set.
func (r *PostgresRepo) FindCredentialByOwnerID(ctx context.Context, ownerID string) (*model.Credential, error) {
	loggerCtx := logger.FromContext(ctx)

	var credential model.Credential
	operation := func() error {
		result := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&credential)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindCredentialByOwnerID", operation)
	observer.ObserveDbOperationDuration("find", "credential", ownerID, time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find credential by owner id after retries",
			zap.String("owner_id", ownerID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &credential, nil
}

// FindCredentialByPhoneNumberID resolves the owner of an incoming webhook by
// the provider's phone number id. Cross-tenant by necessity.
func (r *PostgresRepo) FindCredentialByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Credential, error) {
	loggerCtx := logger.FromContext(ctx)

	var credential model.Credential
	operation := func() error {
		result := r.db.WithContext(ctx).Where("phone_number_id = ?", phoneNumberID).First(&credential)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindCredentialByPhoneNumberID", operation)
	observer.ObserveDbOperationDuration("find_by_phone_number_id", "credential", "", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		loggerCtx.Error("Failed to find credential by phone number id after retries",
			zap.String("phone_number_id", phoneNumberID),
			zap.Error(findErr))
		return nil, findErr // Already wrapped
	}

	return &credential, nil
}

// ListAllCredentials returns every owner's credential set. Used by webhook
// verification and the reconciliation sweep.
func (r *PostgresRepo) ListAllCredentials(ctx context.Context) ([]model.Credential, error) {
	loggerCtx := logger.FromContext(ctx)

	var credentials []model.Credential
	operation := func() error {
		query := r.db.WithContext(ctx).Order("owner_id ASC").Find(&credentials)
		if query.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, query.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	err := retryableOperation(ctx, readPolicy, "ListAllCredentials", operation)
	observer.ObserveDbOperationDuration("list", "credential", "", time.Since(startTime), err)

	if err != nil {
		loggerCtx.Error("Failed to list credentials after retries", zap.Error(err))
		return nil, err // Already wrapped
	}
	return credentials, nil
}

// UpsertCredential inserts or replaces one owner's credential set.
func (r *PostgresRepo) UpsertCredential(ctx context.Context, credential model.Credential) error {
	if credential.OwnerID == "" {
		return fmt.Errorf("%w: credential owner_id is required", apperrors.ErrBadRequest)
	}
	credential.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"api_url", "access_token", "phone_number_id", "verify_token", "updated_at",
			}),
		}).Create(&credential)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertCredential Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "credential", credential.OwnerID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert credential after retries",
			zap.String("owner_id", credential.OwnerID),
			zap.Error(commitErr))
		return commitErr // Already wrapped
	}

	return nil
}
