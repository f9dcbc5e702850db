package storage

import (
	"context"
	"time"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
)

// MessageRepo defines ledger storage operations. All operations except those
// documented otherwise are scoped to the owner carried in the context.
type MessageRepo interface {
	Save(ctx context.Context, message model.Message) error
	FindByMessageID(ctx context.Context, messageID string) (*model.Message, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error)

	// AdvanceStatus applies one guarded lifecycle transition. Returns false
	// when the row was not in a state the transition is valid from (or does
	// not exist), which callers treat as an idempotent no-op.
	AdvanceStatus(ctx context.Context, update model.StatusUpdate) (bool, error)

	FindConversation(ctx context.Context, phoneNumber string, limit int, offset int) ([]model.Message, error)
	FindStaleSent(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error)
	CountStaleSent(ctx context.Context, cutoff time.Time) (int64, error)

	Close(ctx context.Context) error
}

// CredentialRepo defines credential storage operations. Lookups by phone number
// id and the full listing are cross-tenant: webhook callbacks arrive before any
// owner is known.
type CredentialRepo interface {
	FindByOwnerID(ctx context.Context, ownerID string) (*model.Credential, error)
	FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Credential, error)
	ListAll(ctx context.Context) ([]model.Credential, error)
	Upsert(ctx context.Context, credential model.Credential) error
	Close(ctx context.Context) error
}
