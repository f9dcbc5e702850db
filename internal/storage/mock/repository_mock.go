package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
)

// --- MessageRepo Mock ---

// MessageRepoMock mocks the MessageRepo interface
type MessageRepoMock struct {
	mock.Mock
}

// Save mocks the Save method
func (m *MessageRepoMock) Save(ctx context.Context, message model.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

// FindByMessageID mocks the FindByMessageID method
func (m *MessageRepoMock) FindByMessageID(ctx context.Context, messageID string) (*model.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// FindByProviderMessageID mocks the FindByProviderMessageID method
func (m *MessageRepoMock) FindByProviderMessageID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	args := m.Called(ctx, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

// AdvanceStatus mocks the AdvanceStatus method
func (m *MessageRepoMock) AdvanceStatus(ctx context.Context, update model.StatusUpdate) (bool, error) {
	args := m.Called(ctx, update)
	return args.Bool(0), args.Error(1)
}

// FindConversation mocks the FindConversation method
func (m *MessageRepoMock) FindConversation(ctx context.Context, phoneNumber string, limit int, offset int) ([]model.Message, error) {
	args := m.Called(ctx, phoneNumber, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

// FindStaleSent mocks the FindStaleSent method
func (m *MessageRepoMock) FindStaleSent(ctx context.Context, cutoff time.Time, limit int) ([]model.Message, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

// CountStaleSent mocks the CountStaleSent method
func (m *MessageRepoMock) CountStaleSent(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// Close mocks the Close method
func (m *MessageRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- CredentialRepo Mock ---

// CredentialRepoMock mocks the CredentialRepo interface
type CredentialRepoMock struct {
	mock.Mock
}

// FindByOwnerID mocks the FindByOwnerID method
func (m *CredentialRepoMock) FindByOwnerID(ctx context.Context, ownerID string) (*model.Credential, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

// FindByPhoneNumberID mocks the FindByPhoneNumberID method
func (m *CredentialRepoMock) FindByPhoneNumberID(ctx context.Context, phoneNumberID string) (*model.Credential, error) {
	args := m.Called(ctx, phoneNumberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

// ListAll mocks the ListAll method
func (m *CredentialRepoMock) ListAll(ctx context.Context) ([]model.Credential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Credential), args.Error(1)
}

// Upsert mocks the Upsert method
func (m *CredentialRepoMock) Upsert(ctx context.Context, credential model.Credential) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

// Close mocks the Close method
func (m *CredentialRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
