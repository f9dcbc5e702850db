package model

import (
	"strconv"
	"time"
)

// --- Send pipeline error codes --- //

const (
	ErrCodeMissingCredentials      = "MISSING_CREDENTIALS"
	ErrCodeInvalidPhoneFormat      = "INVALID_PHONE_FORMAT"
	ErrCodeInvalidPayload          = "INVALID_PAYLOAD"
	ErrCodeTransportError          = "TRANSPORT_ERROR"
	ErrCodeNoMessageID             = "NO_MESSAGE_ID"
	ErrCodeInvalidWebhookStructure = "INVALID_WEBHOOK_STRUCTURE"
)

// WarningNoEngagement is attached to successful sends when the provider has no
// prior-24h context for the recipient; delivery may be blocked by the
// messaging-window policy. The send itself still succeeded.
const WarningNoEngagement = "recipient has no recent conversation with this number; delivery may be blocked by the 24-hour messaging window"

// --- Outbound send --- //

// SendInput is the request for one outbound message. Exactly one payload
// variant applies, selected by Type.
type SendInput struct {
	To             string      `json:"to" validate:"required"`
	Type           MessageType `json:"type" validate:"required,oneof=text image video audio document template"`
	Message        string      `json:"message,omitempty" validate:"omitempty,max=4096"`
	MediaURL       string      `json:"media_url,omitempty" validate:"omitempty,url"`
	Caption        string      `json:"caption,omitempty" validate:"omitempty,max=1024"`
	TemplateName   string      `json:"template_name,omitempty" validate:"omitempty"`
	LanguageCode   string      `json:"language_code,omitempty" validate:"omitempty"`
	TemplateParams []string    `json:"template_parameters,omitempty" validate:"omitempty"`
}

// SendResult is returned to the caller of the send pipeline. ErrorCode
// distinguishes request-level rejections (no ledger row written) from
// provider-level failures (recorded as a failed ledger row).
type SendResult struct {
	Success           bool   `json:"success"`
	MessageID         string `json:"message_id,omitempty"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	Warning           string `json:"warning,omitempty"`
	ErrorCode         string `json:"error_code,omitempty"`
	Error             string `json:"error,omitempty"`
}

// --- Provider webhook callback shapes --- //

// WebhookPayload is the provider's standard callback envelope
// (entry[].changes[].value.{messages[],statuses[]}).
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue carries both payload shapes; either array may be present in a
// single callback.
type WebhookValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Metadata         WebhookMetadata  `json:"metadata"`
	Contacts         []WebhookContact `json:"contacts,omitempty"`
	Messages         []InboundMessage `json:"messages,omitempty"`
	Statuses         []StatusEvent    `json:"statuses,omitempty"`
}

type WebhookMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type WebhookContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

// StatusEvent is one entry of the statuses[] array.
type StatusEvent struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	Timestamp   string               `json:"timestamp"`
	RecipientID string               `json:"recipient_id"`
	Errors      []StatusEventFailure `json:"errors,omitempty"`
}

type StatusEventFailure struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// EventTime parses the provider-supplied unix-seconds timestamp. Falls back to
// zero time for absent or malformed values.
func (s StatusEvent) EventTime() time.Time {
	return parseUnixString(s.Timestamp)
}

// InboundMessage is one entry of the messages[] array.
type InboundMessage struct {
	From      string          `json:"from"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Text      *InboundText    `json:"text,omitempty"`
	Image     *InboundMedia   `json:"image,omitempty"`
	Video     *InboundMedia   `json:"video,omitempty"`
	Audio     *InboundMedia   `json:"audio,omitempty"`
	Document  *InboundMedia   `json:"document,omitempty"`
	Location  *InboundLatLong `json:"location,omitempty"`
}

type InboundText struct {
	Body string `json:"body"`
}

type InboundMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
}

type InboundLatLong struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// EventTime parses the provider-supplied unix-seconds timestamp.
func (m InboundMessage) EventTime() time.Time {
	return parseUnixString(m.Timestamp)
}

func parseUnixString(s string) time.Time {
	unix, err := strconv.ParseInt(s, 10, 64)
	if err != nil || unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0).UTC()
}

// --- Webhook ingestion report --- //

// IngestReport summarizes what one callback did to the ledger. It is returned
// to the component caller only; the provider-facing endpoint always acks.
type IngestReport struct {
	StatusesApplied   int      `json:"statuses_applied"`
	StatusesIgnored   int      `json:"statuses_ignored"`   // duplicate or out-of-order, CAS no-op
	StatusesDropped   int      `json:"statuses_dropped"`   // no matching ledger row or owner
	InboundStored     int      `json:"inbound_stored"`
	InboundDuplicates int      `json:"inbound_duplicates"` // same provider message id redelivered
	EntryErrors       []string `json:"entry_errors,omitempty"`
}

// --- Reconciliation sweep --- //

// SweepInput parameterizes one reconciliation pass.
type SweepInput struct {
	HoursThreshold int  `json:"hours_threshold" validate:"gte=1,lte=720"`
	AutoUpdate     bool `json:"auto_update"`
}

// OwnerSweepReport is the per-owner outcome of a reconciliation pass.
type OwnerSweepReport struct {
	OwnerID      string `json:"owner_id"`
	PendingCount int    `json:"pending_count"`
	AutoUpdated  int    `json:"auto_updated,omitempty"`
	Skipped      bool   `json:"skipped,omitempty"` // owner has no usable credentials
	Error        string `json:"error,omitempty"`
}

// --- Ledger lifecycle events (published to JetStream) --- //

const (
	EventMessageSent     = "message.sent"
	EventMessageFailed   = "message.failed"
	EventMessageReceived = "message.received"
	EventMessageStatus   = "message.status"
	EventMessageSweep    = "message.sweep"
)

// LedgerEvent is the JSON body published after each ledger mutation for
// downstream consumers.
type LedgerEvent struct {
	Event             string    `json:"event"`
	OwnerID           string    `json:"owner_id"`
	MessageID         string    `json:"message_id"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	Status            string    `json:"status,omitempty"`
	Synthetic         bool      `json:"synthetic,omitempty"`
	OccurredAt        time.Time `json:"occurred_at"`
}
