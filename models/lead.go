package models

import (
	"time"

	"gorm.io/datatypes"
)

// Capture channels recorded in lead metadata
const (
	CapturedViaLeadCapture = "dm_automation"
	CapturedViaPreSend     = "pre_dm_email_request"
)

// CapturedLead is a contact collected from an end user by a guided flow.
// Rows are immutable apart from the Notified and Exported flags.
type CapturedLead struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`
	UserID             uint   `gorm:"not null;index" json:"user_id"`
	InstagramAccountID *uint  `gorm:"index" json:"instagram_account_id"`
	AutomationRuleID   uint   `gorm:"not null;index:idx_lead_rule_sender" json:"automation_rule_id"`
	SenderID           string `gorm:"size:64;index:idx_lead_rule_sender" json:"sender_id"`

	Email        string            `gorm:"index" json:"email,omitempty"`
	Phone        string            `json:"phone,omitempty"`
	Name         string            `json:"name,omitempty"`
	CustomFields datatypes.JSONMap `json:"custom_fields,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`

	CapturedAt time.Time `gorm:"not null;index" json:"captured_at"`
	Notified   bool      `gorm:"default:false;index" json:"notified"`
	Exported   bool      `gorm:"default:false" json:"exported"`
}
