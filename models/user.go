package models

import (
	"gorm.io/gorm"
)

// User represents an account owner that connects Instagram accounts and configures automations
type User struct {
	gorm.Model

	// Authentication fields
	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	TokenVersion int    `gorm:"default:0" json:"-"`

	// Profile information
	Name     *string `json:"name,omitempty"`
	Timezone string  `gorm:"default:'UTC'" json:"timezone"`

	// Account status
	IsActive bool `gorm:"default:true" json:"is_active"`
	IsAdmin  bool `gorm:"default:false" json:"is_admin"`

	// Plan information
	PlanTier PlanTier `gorm:"type:varchar(20);default:'free'" json:"plan_tier"`

	// Lead notification preference
	NotifyOnLead bool `gorm:"default:true" json:"notify_on_lead"`

	// Relations
	InstagramAccounts []InstagramAccount `gorm:"foreignKey:UserID" json:"instagram_accounts,omitempty"`
	AutomationRules   []AutomationRule   `gorm:"foreignKey:UserID" json:"automation_rules,omitempty"`
}

// Tier returns the user's plan tier, treating unknown values as free
func (u *User) Tier() PlanTier {
	if u == nil || !u.PlanTier.Valid() {
		return PlanFree
	}
	return u.PlanTier
}
