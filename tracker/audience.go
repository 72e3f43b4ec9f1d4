package tracker

import (
	"context"
	"time"

	"instaflow/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Observation identifies one end user talking to one connected account
type Observation struct {
	OwnerID   uint
	AccountID uint
	SenderID  string
	Username  string
}

// AudienceTracker keeps what is known about each end user so converted users can skip flows
type AudienceTracker struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAudienceTracker(db *gorm.DB) *AudienceTracker {
	return &AudienceTracker{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Observe records an interaction, creating the audience row on first contact.
// Later calls bump the last interaction time and fill in a missing username.
func (a *AudienceTracker) Observe(ctx context.Context, obs Observation) (*models.InstagramAudience, error) {
	db := a.db.WithContext(ctx)
	now := a.now()

	rec := models.InstagramAudience{
		InstagramAccountID: obs.AccountID,
		SenderID:           obs.SenderID,
		UserID:             obs.OwnerID,
		Username:           obs.Username,
		FirstInteractionAt: now,
		LastInteractionAt:  now,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return nil, persistErr("create audience", res.Error)
	}
	if res.RowsAffected == 1 {
		return &rec, nil
	}

	existing, err := a.load(ctx, obs.AccountID, obs.SenderID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"last_interaction_at": now}
	if existing.Username == "" && obs.Username != "" {
		updates["username"] = obs.Username
		existing.Username = obs.Username
	}
	if err := db.Model(existing).Updates(updates).Error; err != nil {
		return nil, persistErr("touch audience", err)
	}
	existing.LastInteractionAt = now
	return existing, nil
}

func (a *AudienceTracker) load(ctx context.Context, accountID uint, senderID string) (*models.InstagramAudience, error) {
	var rec models.InstagramAudience
	err := a.db.WithContext(ctx).
		Where("instagram_account_id = ? AND sender_id = ?", accountID, senderID).
		First(&rec).Error
	if err != nil {
		return nil, persistErr("load audience", err)
	}
	return &rec, nil
}

// Status returns the audience row with contact fields backfilled from earlier leads
func (a *AudienceTracker) Status(ctx context.Context, obs Observation) (*models.InstagramAudience, error) {
	rec, err := a.load(ctx, obs.AccountID, obs.SenderID)
	if err != nil {
		if isNotFound(err) {
			return &models.InstagramAudience{InstagramAccountID: obs.AccountID, SenderID: obs.SenderID}, nil
		}
		return nil, err
	}
	if rec.Email != "" && rec.Phone != "" {
		return rec, nil
	}

	var leads []models.CapturedLead
	err = a.db.WithContext(ctx).
		Where("instagram_account_id = ? AND sender_id = ?", obs.AccountID, obs.SenderID).
		Order("captured_at DESC").
		Find(&leads).Error
	if err != nil {
		return nil, persistErr("load audience leads", err)
	}

	updates := map[string]interface{}{}
	for _, l := range leads {
		if rec.Email == "" && l.Email != "" {
			rec.Email = l.Email
			updates["email"] = l.Email
			updates["email_captured_at"] = l.CapturedAt
		}
		if rec.Phone == "" && l.Phone != "" {
			rec.Phone = l.Phone
			updates["phone"] = l.Phone
			updates["phone_captured_at"] = l.CapturedAt
		}
	}
	if len(updates) > 0 {
		if err := a.db.WithContext(ctx).Model(rec).Updates(updates).Error; err != nil {
			return nil, persistErr("backfill audience", err)
		}
	}
	return rec, nil
}

// IsVIP reports whether the sender has given email, phone and a follow
func (a *AudienceTracker) IsVIP(ctx context.Context, obs Observation) (bool, error) {
	rec, err := a.Status(ctx, obs)
	if err != nil {
		return false, err
	}
	return rec.IsVIP(), nil
}

func (a *AudienceTracker) record(ctx context.Context, obs Observation, updates map[string]interface{}) error {
	res := a.db.WithContext(ctx).Model(&models.InstagramAudience{}).
		Where("instagram_account_id = ? AND sender_id = ?", obs.AccountID, obs.SenderID).
		Updates(updates)
	if res.Error != nil {
		return persistErr("update audience", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	if _, err := a.Observe(ctx, obs); err != nil {
		return err
	}
	res = a.db.WithContext(ctx).Model(&models.InstagramAudience{}).
		Where("instagram_account_id = ? AND sender_id = ?", obs.AccountID, obs.SenderID).
		Updates(updates)
	return persistErr("update audience", res.Error)
}

func (a *AudienceTracker) RecordEmail(ctx context.Context, obs Observation, email string) error {
	return a.record(ctx, obs, map[string]interface{}{"email": email, "email_captured_at": a.now()})
}

func (a *AudienceTracker) RecordPhone(ctx context.Context, obs Observation, phone string) error {
	return a.record(ctx, obs, map[string]interface{}{"phone": phone, "phone_captured_at": a.now()})
}

func (a *AudienceTracker) RecordFollowing(ctx context.Context, obs Observation) error {
	return a.record(ctx, obs, map[string]interface{}{"is_following": true, "follow_confirmed_at": a.now()})
}
