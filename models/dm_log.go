package models

import "time"

// Delivery channels recorded on a DMLog
const (
	ChannelDM           = "dm"
	ChannelPrivateReply = "private_reply"
)

// DMLog is one outbound message that Instagram accepted
type DMLog struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`
	UserID             uint   `gorm:"not null;index" json:"user_id"`
	InstagramAccountID uint   `gorm:"not null;index:idx_dm_log_account_sent" json:"instagram_account_id"`
	AutomationRuleID   uint   `gorm:"not null;index" json:"automation_rule_id"`
	RecipientIGSID     string `gorm:"column:recipient_igsid;size:64;not null" json:"recipient_igsid"`
	RecipientUsername  string `json:"recipient_username,omitempty"`
	Action             string `gorm:"size:32" json:"action"`
	Channel            string `gorm:"size:16;not null" json:"channel"`
	Message            string `gorm:"type:text" json:"message"`

	SentAt time.Time `gorm:"not null;index:idx_dm_log_account_sent" json:"sent_at"`
}
