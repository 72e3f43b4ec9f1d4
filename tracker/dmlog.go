package tracker

import (
	"context"
	"time"

	"instaflow/models"

	"gorm.io/gorm"
)

// SentDM describes one accepted outbound message
type SentDM struct {
	OwnerID           uint
	AccountID         uint
	RuleID            uint
	RecipientID       string
	RecipientUsername string
	Action            string
	Channel           string
	Message           string
}

// DMLogStore keeps an append-only record of delivered messages for analytics
type DMLogStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDMLogStore(db *gorm.DB) *DMLogStore {
	return &DMLogStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *DMLogStore) Record(ctx context.Context, dm SentDM) error {
	row := &models.DMLog{
		UserID:             dm.OwnerID,
		InstagramAccountID: dm.AccountID,
		AutomationRuleID:   dm.RuleID,
		RecipientIGSID:     dm.RecipientID,
		RecipientUsername:  dm.RecipientUsername,
		Action:             dm.Action,
		Channel:            dm.Channel,
		Message:            dm.Message,
		SentAt:             s.now(),
	}
	return persistErr("record dm log", s.db.WithContext(ctx).Create(row).Error)
}

// DMCounts summarises delivered messages for a set of accounts
type DMCounts struct {
	Today int64 `json:"dms_sent_today"`
	Total int64 `json:"total_dms_sent"`
}

// Counts returns messages sent from accounts, total and since UTC midnight
func (s *DMLogStore) Counts(ctx context.Context, accountIDs []uint) (DMCounts, error) {
	var c DMCounts
	if len(accountIDs) == 0 {
		return c, nil
	}
	now := s.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	base := s.db.WithContext(ctx).Model(&models.DMLog{}).Where("instagram_account_id IN ?", accountIDs)
	if err := base.Session(&gorm.Session{}).Count(&c.Total).Error; err != nil {
		return c, persistErr("count dm log", err)
	}
	if err := base.Session(&gorm.Session{}).Where("sent_at >= ?", midnight).Count(&c.Today).Error; err != nil {
		return c, persistErr("count dm log", err)
	}
	return c, nil
}
