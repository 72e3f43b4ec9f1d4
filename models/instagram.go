package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InstagramAccount is a connected professional account that receives webhooks
type InstagramAccount struct {
	gorm.Model
	UserID   uint   `gorm:"not null;index" json:"user_id"`
	Username string `gorm:"not null" json:"username"`

	// Routing ids. Either may be missing until backfilled from a webhook.
	IGSID  *string `gorm:"column:igsid;index" json:"igsid,omitempty"`
	PageID *string `gorm:"index" json:"page_id,omitempty"`

	EncryptedPageToken string `gorm:"type:text" json:"-"`
	IsActive           bool   `gorm:"default:true;index" json:"is_active"`

	AutomationRules []AutomationRule `gorm:"foreignKey:InstagramAccountID" json:"automation_rules,omitempty"`
}

// OwnsID reports whether id is one of the account's own platform ids
func (a *InstagramAccount) OwnsID(id string) bool {
	if id == "" {
		return false
	}
	if a.IGSID != nil && *a.IGSID == id {
		return true
	}
	return a.PageID != nil && *a.PageID == id
}

// PlatformID returns the id used for usage accounting, preferring the IGSID
func (a *InstagramAccount) PlatformID() string {
	if a.IGSID != nil && *a.IGSID != "" {
		return *a.IGSID
	}
	if a.PageID != nil && *a.PageID != "" {
		return *a.PageID
	}
	return a.Username
}

// InstagramAudience is one end user seen by one connected account
type InstagramAudience struct {
	ID                 uint   `gorm:"primaryKey" json:"id"`
	InstagramAccountID uint   `gorm:"not null;uniqueIndex:idx_audience_account_sender" json:"instagram_account_id"`
	SenderID           string `gorm:"not null;size:64;uniqueIndex:idx_audience_account_sender" json:"sender_id"`
	UserID             uint   `gorm:"not null;index" json:"user_id"`
	Username           string `json:"username"`

	Email       string `json:"email"`
	Phone       string `json:"phone"`
	IsFollowing bool   `gorm:"default:false" json:"is_following"`

	FirstInteractionAt time.Time  `json:"first_interaction_at"`
	LastInteractionAt  time.Time  `json:"last_interaction_at"`
	EmailCapturedAt    *time.Time `json:"email_captured_at,omitempty"`
	PhoneCapturedAt    *time.Time `json:"phone_captured_at,omitempty"`
	FollowConfirmedAt  *time.Time `json:"follow_confirmed_at,omitempty"`

	ExtraMetadata datatypes.JSONMap `json:"extra_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsVIP is true only when email, phone and a confirmed follow are all present
func (a *InstagramAudience) IsVIP() bool {
	return a != nil && a.Email != "" && a.Phone != "" && a.IsFollowing
}

// InstagramGlobalTracker counts billable usage per owner and platform account.
// The platform id is kept as a string so counts survive disconnect and reconnect.
type InstagramGlobalTracker struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;uniqueIndex:idx_tracker_owner_ig" json:"user_id"`
	InstagramID       string    `gorm:"not null;size:64;uniqueIndex:idx_tracker_owner_ig" json:"instagram_id"`
	DMsSentCount      int       `gorm:"column:dms_sent_count;not null;default:0" json:"dms_sent_count"`
	RulesCreatedCount int       `gorm:"not null;default:0" json:"rules_created_count"`
	LastResetDate     time.Time `gorm:"not null" json:"last_reset_date"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
