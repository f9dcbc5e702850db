package model

import "time"

// Credential holds one owner's WhatsApp Business configuration. The core only
// reads this table; writing credentials is a collaborator concern (settings UI).
type Credential struct {
	OwnerID       string    `json:"owner_id" gorm:"column:owner_id;primaryKey"`
	APIURL        string    `json:"api_url" gorm:"column:api_url"`
	AccessToken   string    `json:"-" gorm:"column:access_token"`
	PhoneNumberID string    `json:"phone_number_id" gorm:"column:phone_number_id;index"`
	VerifyToken   string    `json:"-" gorm:"column:verify_token"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Credential) TableName() string {
	return "credentials"
}

// Usable reports whether the credential set is complete enough to call the
// provider. Owners without usable credentials are skipped by the sweep and
// rejected by the send pipeline.
func (c Credential) Usable() bool {
	return c.APIURL != "" && c.AccessToken != "" && c.PhoneNumberID != ""
}
