package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/apperrors"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/config"
	"gitlab.com/timkado/api/daisi-wa-cloud-gateway/internal/model"
)

func webhookPayload(phoneNumberID string, value model.WebhookValue) model.WebhookPayload {
	value.Metadata.PhoneNumberID = phoneNumberID
	return model.WebhookPayload{
		Object: "whatsapp_business_account",
		Entry: []model.WebhookEntry{
			{
				ID:      "entry-1",
				Changes: []model.WebhookChange{{Field: "messages", Value: value}},
			},
		},
	}
}

func TestVerifyWebhook(t *testing.T) {
	testCases := []struct {
		name     string
		mode     string
		token    string
		expected bool
	}{
		{"valid token", "subscribe", "verify-1", true},
		{"case-insensitive match", "subscribe", "VERIFY-1", true},
		{"surrounding whitespace", "subscribe", "  verify-1  ", true},
		{"wrong mode", "unsubscribe", "verify-1", false},
		{"empty token", "subscribe", "", false},
		{"unknown token", "subscribe", "someone-else", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newServiceFixture(t, config.Config{})
			f.credentialRepo.On("ListAll", mock.Anything).
				Return([]model.Credential{*usableCredential(), {OwnerID: "tenant-no-token"}}, nil)

			echo, ok := f.service.VerifyWebhook(ownerContext(), tc.mode, tc.token, "challenge-42")
			assert.Equal(t, tc.expected, ok)
			if tc.expected {
				assert.Equal(t, "challenge-42", echo)
			} else {
				assert.Empty(t, echo)
			}
		})
	}
}

func TestVerifyWebhook_ListFailure(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("ListAll", mock.Anything).Return(nil, apperrors.ErrDatabase)

	_, ok := f.service.VerifyWebhook(ownerContext(), "subscribe", "verify-1", "challenge-42")
	assert.False(t, ok)
}

func TestProcessWebhook_EmptyPayload(t *testing.T) {
	f := newServiceFixture(t, config.Config{})

	report := f.service.ProcessWebhook(ownerContext(), model.WebhookPayload{Object: "whatsapp_business_account"})

	require.Len(t, report.EntryErrors, 1)
	assert.Contains(t, report.EntryErrors[0], model.ErrCodeInvalidWebhookStructure)
	f.credentialRepo.AssertNotCalled(t, "FindByPhoneNumberID", mock.Anything, mock.Anything)
}

func TestProcessWebhook_MissingPhoneNumberID(t *testing.T) {
	f := newServiceFixture(t, config.Config{})

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("", model.WebhookValue{
		Statuses: []model.StatusEvent{{ID: "wamid.abc", Status: "delivered"}},
	}))

	assert.Equal(t, 1, report.StatusesDropped)
	assert.Len(t, report.EntryErrors, 1)
	f.credentialRepo.AssertNotCalled(t, "FindByPhoneNumberID", mock.Anything, mock.Anything)
}

func TestProcessWebhook_UnknownPhoneNumberID(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "999").Return(nil, apperrors.ErrNotFound)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("999", model.WebhookValue{
		Statuses: []model.StatusEvent{{ID: "wamid.abc", Status: "delivered"}},
	}))

	assert.Equal(t, 1, report.StatusesDropped)
	assert.Len(t, report.EntryErrors, 1)
	f.messageRepo.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything)
}

func TestProcessWebhook_StatusApplied(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)
	f.messageRepo.On("AdvanceStatus", mock.Anything, mock.MatchedBy(func(u model.StatusUpdate) bool {
		return u.ProviderMessageID == "wamid.abc" && u.Target == model.StatusDelivered && !u.Synthetic
	})).Return(true, nil)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Statuses: []model.StatusEvent{{ID: "wamid.abc", Status: "delivered", Timestamp: "1718000000"}},
	}))

	assert.Equal(t, 1, report.StatusesApplied)
	assert.Zero(t, report.StatusesIgnored)
	assert.Zero(t, report.StatusesDropped)

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventMessageStatus, events[0].Event)
	assert.Equal(t, "delivered", events[0].Status)
}

func TestProcessWebhook_FailedStatusCarriesErrorDetail(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)
	f.messageRepo.On("AdvanceStatus", mock.Anything, mock.MatchedBy(func(u model.StatusUpdate) bool {
		return u.Target == model.StatusFailed && u.ErrorCode == "131026" && u.ErrorMessage == "Receiver is incapable of receiving this message"
	})).Return(true, nil)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Statuses: []model.StatusEvent{{
			ID:     "wamid.fail",
			Status: "failed",
			Errors: []model.StatusEventFailure{{
				Code:    131026,
				Title:   "Message undeliverable",
				Message: "Receiver is incapable of receiving this message",
			}},
		}},
	}))

	assert.Equal(t, 1, report.StatusesApplied)
	f.messageRepo.AssertExpectations(t)
}

func TestProcessWebhook_DuplicateStatusIgnored(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)
	f.messageRepo.On("AdvanceStatus", mock.Anything, mock.Anything).Return(false, nil)
	// The row exists; the no-op was an out-of-order or duplicate callback.
	f.messageRepo.On("FindByProviderMessageID", mock.Anything, "wamid.abc").
		Return(&model.Message{ID: "msg-1", Status: model.StatusRead}, nil)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Statuses: []model.StatusEvent{{ID: "wamid.abc", Status: "delivered"}},
	}))

	assert.Equal(t, 1, report.StatusesIgnored)
	assert.Zero(t, report.StatusesApplied)
	assert.Zero(t, report.StatusesDropped)
	assert.Empty(t, f.publisher.Events())
}

func TestProcessWebhook_StatusForUnknownMessageDropped(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)
	f.messageRepo.On("AdvanceStatus", mock.Anything, mock.Anything).Return(false, nil)
	f.messageRepo.On("FindByProviderMessageID", mock.Anything, "wamid.ghost").
		Return(nil, apperrors.ErrNotFound)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Statuses: []model.StatusEvent{{ID: "wamid.ghost", Status: "read"}},
	}))

	assert.Equal(t, 1, report.StatusesDropped)
	assert.Zero(t, report.StatusesIgnored)
}

func TestProcessWebhook_UntrackedStatusDropped(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Statuses: []model.StatusEvent{{ID: "wamid.abc", Status: "warmup"}},
	}))

	assert.Equal(t, 1, report.StatusesDropped)
	f.messageRepo.AssertNotCalled(t, "AdvanceStatus", mock.Anything, mock.Anything)
}

func TestProcessWebhook_InboundTextStored(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)

	var saved model.Message
	f.messageRepo.On("Save", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		saved = m
		return m.Direction == model.MessageDirectionReceived
	})).Return(nil)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Contacts: []model.WebhookContact{func() model.WebhookContact {
			c := model.WebhookContact{WaID: "628123456789"}
			c.Profile.Name = "Budi"
			return c
		}()},
		Messages: []model.InboundMessage{{
			From:      "628123456789",
			ID:        "wamid.in1",
			Type:      "text",
			Timestamp: "1718000000",
			Text:      &model.InboundText{Body: "halo"},
		}},
	}))

	assert.Equal(t, 1, report.InboundStored)
	assert.Equal(t, testOwnerID, saved.OwnerID)
	assert.Equal(t, model.TypeText, saved.MessageType)
	assert.Equal(t, "halo", saved.Content)
	assert.Equal(t, model.StatusDelivered, saved.Status)
	assert.Equal(t, int64(1718000000), saved.WhatsappTimestamp)
	require.NotNil(t, saved.ProviderMessageID)
	assert.Equal(t, "wamid.in1", *saved.ProviderMessageID)
	assert.Contains(t, string(saved.Metadata), "Budi")

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventMessageReceived, events[0].Event)
}

func TestProcessWebhook_InboundMediaStored(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)

	var saved model.Message
	f.messageRepo.On("Save", mock.Anything, mock.MatchedBy(func(m model.Message) bool {
		saved = m
		return true
	})).Return(nil)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Messages: []model.InboundMessage{{
			From: "628123456789",
			ID:   "wamid.in2",
			Type: "image",
			Image: &model.InboundMedia{
				ID:       "media-1",
				MimeType: "image/jpeg",
				Caption:  "lunch",
			},
		}},
	}))

	assert.Equal(t, 1, report.InboundStored)
	assert.Equal(t, model.TypeImage, saved.MessageType)
	assert.Equal(t, "media-1", saved.MediaID)
	assert.Equal(t, "image/jpeg", saved.MimeType)
	assert.Equal(t, "lunch", saved.Content)
}

func TestProcessWebhook_InboundDuplicateSkipped(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)
	f.messageRepo.On("Save", mock.Anything, mock.Anything).Return(apperrors.ErrDuplicate)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Messages: []model.InboundMessage{{
			From: "628123456789",
			ID:   "wamid.in1",
			Type: "text",
			Text: &model.InboundText{Body: "halo"},
		}},
	}))

	assert.Equal(t, 1, report.InboundDuplicates)
	assert.Zero(t, report.InboundStored)
	assert.Empty(t, report.EntryErrors)
	assert.Empty(t, f.publisher.Events())
}

func TestProcessWebhook_InboundMissingIDRecorded(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)

	report := f.service.ProcessWebhook(ownerContext(), webhookPayload("1234567890", model.WebhookValue{
		Messages: []model.InboundMessage{{Type: "text"}},
	}))

	assert.Zero(t, report.InboundStored)
	assert.Len(t, report.EntryErrors, 1)
	f.messageRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestProcessWebhook_MixedEntryIsolation(t *testing.T) {
	f := newServiceFixture(t, config.Config{})
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "999").Return(nil, apperrors.ErrNotFound)
	f.credentialRepo.On("FindByPhoneNumberID", mock.Anything, "1234567890").Return(usableCredential(), nil)
	f.messageRepo.On("AdvanceStatus", mock.Anything, mock.Anything).Return(true, nil)

	good := model.WebhookValue{Statuses: []model.StatusEvent{{ID: "wamid.ok", Status: "sent"}}}
	good.Metadata.PhoneNumberID = "1234567890"
	bad := model.WebhookValue{Statuses: []model.StatusEvent{{ID: "wamid.lost", Status: "sent"}}}
	bad.Metadata.PhoneNumberID = "999"

	report := f.service.ProcessWebhook(ownerContext(), model.WebhookPayload{
		Entry: []model.WebhookEntry{
			{ID: "entry-bad", Changes: []model.WebhookChange{{Value: bad}}},
			{ID: "entry-good", Changes: []model.WebhookChange{{Value: good}}},
		},
	})

	assert.Equal(t, 1, report.StatusesApplied)
	assert.Equal(t, 1, report.StatusesDropped)
	assert.Len(t, report.EntryErrors, 1)
}
