package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
)

// MessageRepoAdapter adapts the PostgresRepo to the MessageRepo interface
type MessageRepoAdapter struct {
	postgres *PostgresRepo
}

// NewMessageRepoAdapter creates a new message repository adapter
func NewMessageRepoAdapter(postgres *PostgresRepo) MessageRepo {
	return &MessageRepoAdapter{postgres: postgres}
}

// Save saves a message
func (a *MessageRepoAdapter) Save(ctx context.Context, message model.Message) error {
	return a.postgres.SaveMessage(ctx, message)
}

// FindByMessageID finds a message by internal id
func (a *MessageRepoAdapter) FindByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	return a.postgres.FindMessageByMessageID(ctx, messageID)
}

// FindByProviderMessageID finds a message by the provider-assigned id
func (a *MessageRepoAdapter) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	return a.postgres.FindMessageByProviderMessageID(ctx, providerMessageID)
}

// AdvanceStatus applies one guarded lifecycle transition
func (a *MessageRepoAdapter) AdvanceStatus(ctx context.Context, update model.StatusUpdate) (bool, error) {
	return a.postgres.AdvanceMessageStatus(ctx, update)
}

// FindConversation returns one conversation's messages in creation order
func (a *MessageRepoAdapter) FindConversation(ctx context.Context, phoneNumber string, limit int, offset int) ([]model.Message, error) {
	return a.postgres.FindConversationMessages(ctx, phoneNumber, limit, offset)
}

// FindStaleSent returns outbound messages stuck in sent past the cutoff
func (a *MessageRepoAdapter) FindStaleSent(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error) {
	return a.postgres.FindStaleSentMessages(ctx, cutoff, limit)
}

// CountStaleSent counts outbound messages stuck in sent past the cutoff
func (a *MessageRepoAdapter) CountStaleSent(ctx context.Context, cutoff time.Time) (int64, error) {
	return a.postgres.CountStaleSentMessages(ctx, cutoff)
}

func (a *MessageRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// CredentialRepoAdapter adapts the PostgresRepo to the CredentialRepo interface
type CredentialRepoAdapter struct {
	postgres *PostgresRepo
}

// NewCredentialRepoAdapter creates a new credential repository adapter
func NewCredentialRepoAdapter(postgres *PostgresRepo) CredentialRepo {
	return &CredentialRepoAdapter{postgres: postgres}
}

// FindByOwnerID finds one owner's credential set
func (a *CredentialRepoAdapter) FindByOwnerID(ctx context.Context, ownerID string) (*model.Credential, error) {
	return a.postgres.FindCredentialByOwnerID(ctx, ownerID)
}

// FindByPhoneNumberID resolves the owner of a webhook callback
func (a *CredentialRepoAdapter) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Credential, error) {
	return a.postgres.FindCredentialByPhoneNumberID(ctx, phoneNumberID)
}

// ListAll returns every owner's credential set
func (a *CredentialRepoAdapter) ListAll(ctx context.Context) ([]model.Credential, error) {
	return a.postgres.ListAllCredentials(ctx)
}

// Upsert inserts or replaces one owner's credential set
func (a *CredentialRepoAdapter) Upsert(ctx context.Context, credential model.Credential) error {
	return a.postgres.UpsertCredential(ctx, credential)
}

func (a *CredentialRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// Ensure adapters implement the interfaces
var _ MessageRepo = (*MessageRepoAdapter)(nil)
var _ CredentialRepo = (*CredentialRepoAdapter)(nil)
