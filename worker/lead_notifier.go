package worker

import (
	"context"
	"time"

	"instaflow/models"
	"instaflow/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LeadMailer delivers one digest of new leads to an owner
type LeadMailer interface {
	SendLeadNotification(to string, leads []models.CapturedLead) error
}

// LeadNotifier emails owners the leads their automations captured since the last run
type LeadNotifier struct {
	DB        *gorm.DB
	Mailer    LeadMailer
	Interval  time.Duration
	BatchSize int
	Logger    *logrus.Entry
}

func NewLeadNotifier(db *gorm.DB, mailer LeadMailer, interval time.Duration, logger *logrus.Entry) *LeadNotifier {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LeadNotifier{
		DB:        db,
		Mailer:    mailer,
		Interval:  interval,
		BatchSize: 500,
		Logger:    logger,
	}
}

func (ln *LeadNotifier) Start(ctx context.Context) {
	ln.Logger.Info("Lead notifier started")

	ticker := time.NewTicker(ln.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ln.Logger.Info("Lead notifier shutting down...")
			return
		case <-ticker.C:
			if _, err := ln.RunOnce(ctx); err != nil {
				utils.LogError("LeadNotifyFailed", err, nil)
			}
		}
	}
}

// RunOnce sends one digest per owner and returns how many leads were handled.
// Leads of owners who opted out are marked notified without an email.
// A failed delivery leaves that owner's leads pending for the next run and
// excludes the owner from the rest of this run, so later batches still go out.
func (ln *LeadNotifier) RunOnce(ctx context.Context) (int, error) {
	failed := make(map[uint]struct{})
	handled := 0
	for {
		n, err := ln.runBatch(ctx, failed)
		if n > 0 {
			handled += n
		}
		if err != nil || n < 0 {
			return handled, err
		}
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
	}
}

// runBatch processes one page of pending leads. It returns -1 when nothing is left.
func (ln *LeadNotifier) runBatch(ctx context.Context, failed map[uint]struct{}) (int, error) {
	query := ln.DB.WithContext(ctx).Where("notified = ?", false)
	if len(failed) > 0 {
		skip := make([]uint, 0, len(failed))
		for id := range failed {
			skip = append(skip, id)
		}
		query = query.Where("user_id NOT IN ?", skip)
	}

	var pending []models.CapturedLead
	if err := query.Order("captured_at, id").Limit(ln.BatchSize).Find(&pending).Error; err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return -1, nil
	}

	byOwner := make(map[uint][]models.CapturedLead)
	var ownerIDs []uint
	for _, lead := range pending {
		if _, ok := byOwner[lead.UserID]; !ok {
			ownerIDs = append(ownerIDs, lead.UserID)
		}
		byOwner[lead.UserID] = append(byOwner[lead.UserID], lead)
	}

	var owners []models.User
	if err := ln.DB.WithContext(ctx).Where("id IN ?", ownerIDs).Find(&owners).Error; err != nil {
		return 0, err
	}
	ownerByID := make(map[uint]models.User, len(owners))
	for _, o := range owners {
		ownerByID[o.ID] = o
	}

	handled := 0
	for _, id := range ownerIDs {
		leads := byOwner[id]
		owner, ok := ownerByID[id]

		if ok && owner.IsActive && owner.NotifyOnLead && ln.Mailer != nil {
			if err := ln.Mailer.SendLeadNotification(owner.Email, leads); err != nil {
				utils.LogError("LeadNotificationEmailFailed", err, map[string]interface{}{
					"user_id": id,
					"leads":   len(leads),
				})
				failed[id] = struct{}{}
				continue
			}
		}

		ids := make([]uint, len(leads))
		for i, l := range leads {
			ids[i] = l.ID
		}
		if err := ln.DB.WithContext(ctx).Model(&models.CapturedLead{}).
			Where("id IN ?", ids).Update("notified", true).Error; err != nil {
			return handled, err
		}
		handled += len(leads)
		ln.Logger.WithFields(logrus.Fields{"user_id": id, "leads": len(leads)}).Debug("leads notified")
	}
	return handled, nil
}
