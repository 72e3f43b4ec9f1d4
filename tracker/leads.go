package tracker

import (
	"context"
	"time"

	"instaflow/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// NewLead is the input for a captured contact
type NewLead struct {
	OwnerID      uint
	AccountID    *uint
	RuleID       uint
	SenderID     string
	Email        string
	Phone        string
	Name         string
	CustomFields map[string]interface{}
	Channel      string
}

// LeadStore persists captured leads
type LeadStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLeadStore(db *gorm.DB) *LeadStore {
	return &LeadStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (l *LeadStore) build(in NewLead) *models.CapturedLead {
	now := l.now()
	lead := &models.CapturedLead{
		UserID:             in.OwnerID,
		InstagramAccountID: in.AccountID,
		AutomationRuleID:   in.RuleID,
		SenderID:           in.SenderID,
		Email:              in.Email,
		Phone:              in.Phone,
		Name:               in.Name,
		Metadata: datatypes.JSONMap{
			"sender_id":    in.SenderID,
			"captured_via": in.Channel,
			"timestamp":    now.Format(time.RFC3339),
		},
		CapturedAt: now,
	}
	if len(in.CustomFields) > 0 {
		lead.CustomFields = datatypes.JSONMap(in.CustomFields)
	}
	return lead
}

// Save inserts a lead unconditionally
func (l *LeadStore) Save(ctx context.Context, in NewLead) (*models.CapturedLead, error) {
	lead := l.build(in)
	if err := l.db.WithContext(ctx).Create(lead).Error; err != nil {
		return nil, persistErr("save lead", err)
	}
	return lead, nil
}

// SaveOnce inserts a lead unless this sender already has one for the rule with the same field set.
// It reports whether a new row was written.
func (l *LeadStore) SaveOnce(ctx context.Context, in NewLead) (*models.CapturedLead, bool, error) {
	q := l.db.WithContext(ctx).
		Where("automation_rule_id = ? AND sender_id = ?", in.RuleID, in.SenderID)
	if in.Email != "" {
		q = q.Where("email <> ''")
	}
	if in.Phone != "" {
		q = q.Where("phone <> ''")
	}

	var existing models.CapturedLead
	err := q.First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !isNotFound(err) {
		return nil, false, persistErr("check lead", err)
	}

	lead, err := l.Save(ctx, in)
	if err != nil {
		return nil, false, err
	}
	return lead, true, nil
}
