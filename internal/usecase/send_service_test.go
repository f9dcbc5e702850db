package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/config"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/provider"
	storagemock "gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/storage/mock"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/tenant"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/pkg/logger"
)

const testOwnerID = "tenant-one"

// providerClientMock stubs the provider client for pipeline tests.
type providerClientMock struct {
	mock.Mock
}

func (m *providerClientMock) Send(ctx context.Context, creds model.Credential, to string, input model.SendInput) *provider.Outcome {
	args := m.Called(ctx, creds, to, input)
	return args.Get(0).(*provider.Outcome)
}

// capturingPublisher records published ledger events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []model.LedgerEvent
}

func (p *capturingPublisher) Publish(ctx context.Context, event model.LedgerEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) Stop() {}

func (p *capturingPublisher) Events() []model.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.LedgerEvent, len(p.events))
	copy(out, p.events)
	return out
}

type serviceFixture struct {
	service        *GatewayService
	messageRepo    *storagemock.MessageRepoMock
	credentialRepo *storagemock.CredentialRepoMock
	providerClient *providerClientMock
	publisher      *capturingPublisher
}

func newServiceFixture(t *testing.T, cfg config.Config) *serviceFixture {
	logger.Log = zaptest.NewLogger(t).Named("test")
	f := &serviceFixture{
		messageRepo:    new(storagemock.MessageRepoMock),
		credentialRepo: new(storagemock.CredentialRepoMock),
		providerClient: new(providerClientMock),
		publisher:      &capturingPublisher{},
	}
	f.service = NewGatewayService(f.messageRepo, f.credentialRepo, f.providerClient, f.publisher, cfg)
	return f
}

func ownerContext() context.Context {
	return tenant.WithOwnerID(context.Background(), testOwnerID)
}

func usableCredential() *model.Credential {
	return &model.Credential{
		OwnerID:       testOwnerID,
		APIURL:        "https://graph.facebook.com/v20.0",
		AccessToken:   "token-1",
		PhoneNumberID: "1234567890",
		VerifyToken:   "verify-1",
	}
}

func textInput() model.SendInput {
	return model.SendInput{
		To:      "+62 812-3456-789",
		Type:    model.TypeText,
		Message: "hello",
	}
}

func TestSendMessage_MissingTenant(t *testing.T) {
	f := newServiceFixture(t, config.Config{})

	_, err := f.service.SendMessage(context.Background(), textInput())
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

func TestSendMessage_RejectsInvalidPayload(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)

	// location is not a sendable type.
	result, err := f.service.SendMessage(ownerContext(), model.SendInput{
		To:   "628123456789",
		Type: model.TypeLocation,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrCodeInvalidPayload, result.ErrorCode)

	// Request-level rejection: nothing reaches the ledger or the provider.
	f.messageRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	f.providerClient.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_RejectsTextWithoutBody(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)

	input := textInput()
	input.Message = ""
	result, err := f.service.SendMessage(ownerContext(), input)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrCodeInvalidPayload, result.ErrorCode)
}

func TestSendMessage_RejectsMediaWithoutURL(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)

	result, err := f.service.SendMessage(ownerContext(), model.SendInput{
		To:   "628123456789",
		Type: model.TypeImage,
	})
	require.NoError(t, err)
	assert.Equal(t, model.ErrCodeInvalidPayload, result.ErrorCode)
}

func TestSendMessage_RejectsInvalidPhone(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)

	input := textInput()
	input.To = "12345"
	result, err := f.service.SendMessage(ownerContext(), input)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrCodeInvalidPhoneFormat, result.ErrorCode)
	f.providerClient.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_RejectsWithoutCredentials(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(nil, apperrors.ErrNotFound)

	result, err := f.service.SendMessage(ownerContext(), textInput())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, model.ErrCodeMissingCredentials, result.ErrorCode)
	f.messageRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestSendMessage_RejectsUnusableCredentials(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	creds := usableCredential()
	creds.AccessToken = ""
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(creds, nil)

	result, err := f.service.SendMessage(ownerContext(), textInput())
	require.NoError(t, err)
	assert.Equal(t, model.ErrCodeMissingCredentials, result.ErrorCode)
	f.providerClient.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendMessage_Success(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)
	f.providerClient.On("Send", mock.Anything, mock.Anything, "628123456789", mock.Anything).
		Return(&provider.Outcome{OK: true, ProviderMessageID: "wamid.ok1"})

	var saved model.Message
	f.messageRepo.On("Save", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		saved = m
		return m.Direction == model.MessageDirectionSent && m.Status == model.StatusSent
	})).Return(nil)

	result, err := f.service.SendMessage(ownerContext(), textInput())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "wamid.ok1", result.ProviderMessageID)
	assert.Empty(t, result.Warning)
	assert.NotEmpty(t, result.MessageID)

	assert.Equal(t, testOwnerID, saved.OwnerID)
	assert.Equal(t, "628123456789", saved.PhoneNumber)
	assert.Equal(t, model.ConversationID(testOwnerID, "628123456789"), saved.ConversationID)
	require.NotNil(t, saved.ProviderMessageID)
	assert.Equal(t, "wamid.ok1", *saved.ProviderMessageID)
	assert.NotNil(t, saved.SentAt)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventMessageSent, events[0].Event)
	assert.Equal(t, testOwnerID, events[0].OwnerID)
}

func TestSendMessage_SuccessWithNoEngagementWarning(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)
	f.providerClient.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&provider.Outcome{OK: true, ProviderMessageID: "wamid.win1", NoEngagement: true})
	f.messageRepo.On("Save", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.SendMessage(ownerContext(), textInput())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, model.WarningNoEngagement, result.Warning)
}

func TestSendMessage_ProviderFailureRecordsFailedRow(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)
	f.providerClient.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&provider.Outcome{OK: false, ErrorCode: "131009", ErrorMessage: "Invalid parameter"})

	var saved model.Message
	f.messageRepo.On("Save", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		saved = m
		return m.Status == model.StatusFailed
	})).Return(nil)

	result, err := f.service.SendMessage(ownerContext(), textInput())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "131009", result.ErrorCode)
	assert.NotEmpty(t, result.MessageID)

	assert.Nil(t, saved.ProviderMessageID)
	assert.NotNil(t, saved.FailedAt)
	assert.Equal(t, "[131009] Invalid parameter", saved.ErrorMessage)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventMessageFailed, events[0].Event)
}

func TestSendMessage_LedgerWriteFailureSurfaces(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByOwnerID", mock.Anything, testOwnerID).Return(usableCredential(), nil)
	f.providerClient.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&provider.Outcome{OK: true, ProviderMessageID: "wamid.ok1"})
	f.messageRepo.On("Save", mock.Anything, mock.Anything).Return(apperrors.ErrDatabase)

	result, err := f.service.SendMessage(ownerContext(), textInput())
	assert.ErrorIs(t, err, apperrors.ErrDatabase)
	assert.Nil(t, result)
	assert.Empty(t, f.publisher.Events())
}

func TestGetConversation_RejectsInvalidPhone(t *testing.T) {
	f := newServiceFixture(t, config.Config{})

	_, err := f.service.GetConversation(ownerContext(), "not-a-number", 50, 0)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	f.messageRepo.AssertNotCalled(t, "FindConversation", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetConversation_ClampsPaging(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.messageRepo.On("FindConversation", mock.Anything, "628123456789", 50, 0).
		Return([]model.Message{{ID: "msg-1"}}, nil)

	messages, err := f.service.GetConversation(ownerContext(), "+62 812-3456-789", 0, -3)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	f.messageRepo.AssertExpectations(t)
}

func TestGetConversation_PassesExplicitPaging(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.messageRepo.On("FindConversation", mock.Anything, "628123456789", 20, 40).
		Return([]model.Message{}, nil)

	_, err := f.service.GetConversation(ownerContext(), "628123456789", 20, 40)
	require.NoError(t, err)
	f.messageRepo.AssertExpectations(t)
}
