package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	MessageDirectionSent     = "sent"
	MessageDirectionReceived = "received"
)

// MessageStatus is the lifecycle state of a ledger row.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// StatusRank orders the forward path of the lifecycle
// (pending < sent < delivered < read). failed is a side branch and has no
// forward rank; transitions into it are guarded explicitly.
func StatusRank(s MessageStatus) int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// ParseProviderStatus maps a provider callback status string to a ledger status.
// Returns false for statuses the ledger does not track.
func ParseProviderStatus(s string) (MessageStatus, bool) {
	switch s {
	case "sent":
		return StatusSent, true
	case "delivered":
		return StatusDelivered, true
	case "read":
		return StatusRead, true
	case "failed":
		return StatusFailed, true
	default:
		return "", false
	}
}

// MessageType is the closed set of payload variants.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeDocument MessageType = "document"
	TypeTemplate MessageType = "template"
	TypeLocation MessageType = "location"
)

// IsMediaType reports whether t is one of the sendable media variants.
func IsMediaType(t MessageType) bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeDocument:
		return true
	}
	return false
}

// Message is a single ledger row, inbound or outbound.
// provider_message_id is the join key for status-update reconciliation; it is
// unique per owner when present but may be absent (send failed before the
// provider assigned one).
type Message struct {
	ID                string         `json:"id" gorm:"column:id;primaryKey"`
	OwnerID           string         `json:"owner_id" gorm:"column:owner_id;index"`
	Direction         string         `json:"direction" gorm:"column:direction"`
	ProviderMessageID *string        `json:"provider_message_id,omitempty" gorm:"column:provider_message_id;index"`
	PhoneNumber       string         `json:"phone_number" gorm:"column:phone_number;index"`
	ConversationID    string         `json:"conversation_id" gorm:"column:conversation_id;index"`
	MessageType       MessageType    `json:"message_type" gorm:"column:message_type"`
	Content           string         `json:"content,omitempty" gorm:"column:content"`
	MediaURL          string         `json:"media_url,omitempty" gorm:"column:media_url"`
	MediaID           string         `json:"media_id,omitempty" gorm:"column:media_id"`
	MimeType          string         `json:"mime_type,omitempty" gorm:"column:mime_type"`
	TemplateName      string         `json:"template_name,omitempty" gorm:"column:template_name"`
	TemplateParams    datatypes.JSON `json:"template_params,omitempty" gorm:"type:jsonb;column:template_params"`
	Metadata          datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb;column:metadata"`
	Status            MessageStatus  `json:"status" gorm:"column:status;index"`
	ErrorMessage      string         `json:"error_message,omitempty" gorm:"column:error_message"`
	RetryCount        int            `json:"retry_count" gorm:"column:retry_count;default:0"`
	Synthetic         bool           `json:"synthetic" gorm:"column:synthetic;default:false"`
	WhatsappTimestamp int64          `json:"whatsapp_timestamp,omitempty" gorm:"column:whatsapp_timestamp"`
	CreatedAt         time.Time      `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	SentAt            *time.Time     `json:"sent_at,omitempty" gorm:"column:sent_at"`
	DeliveredAt       *time.Time     `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	ReadAt            *time.Time     `json:"read_at,omitempty" gorm:"column:read_at"`
	FailedAt          *time.Time     `json:"failed_at,omitempty" gorm:"column:failed_at"`
}

// TableName specifies the table name for GORM.
func (Message) TableName() string {
	return "messages"
}

// StatusUpdate describes one requested lifecycle transition, keyed by the
// provider message id. EventTime is the provider-reported time; zero means
// "use now". Synthetic marks transitions not backed by a provider callback.
type StatusUpdate struct {
	ProviderMessageID string
	Target            MessageStatus
	EventTime         time.Time
	ErrorCode         string
	ErrorMessage      string
	Synthetic         bool
}

// ConversationID derives the stable thread key for an owner/counterparty pair.
// Messages are grouped into conversations purely by this derived value.
func ConversationID(ownerID, phoneNumber string) string {
	return ownerID + ":" + phoneNumber
}

// CreateTimeFromTimestamp creates a time.Time from a Unix timestamp
func CreateTimeFromTimestamp(timestamp int64) time.Time {
	if timestamp > 0 {
		return time.Unix(timestamp, 0).UTC()
	}
	return time.Time{}
}
