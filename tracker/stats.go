package tracker

import (
	"context"
	"fmt"
	"time"

	"instaflow/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatKind names one per-rule counter
type StatKind string

const (
	StatTriggered      StatKind = "triggered"
	StatDMSent         StatKind = "dm_sent"
	StatCommentReplied StatKind = "comment_replied"
	StatLeadCaptured   StatKind = "lead_captured"
	StatFollowClick    StatKind = "follow_click"
)

type statColumns struct {
	counter   string
	timestamp string
}

var statColumnMap = map[StatKind]statColumns{
	StatTriggered:      {"total_triggers", "last_triggered_at"},
	StatDMSent:         {"total_dms_sent", "last_dm_sent_at"},
	StatCommentReplied: {"total_comment_replies", ""},
	StatLeadCaptured:   {"total_leads_captured", "last_lead_captured_at"},
	StatFollowClick:    {"total_follow_clicks", ""},
}

// RuleStats maintains automation_rule_stats counters
type RuleStats struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRuleStats(db *gorm.DB) *RuleStats {
	return &RuleStats{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *RuleStats) ensure(ctx context.Context, ruleID uint) error {
	row := models.AutomationRuleStats{AutomationRuleID: ruleID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	return persistErr("create rule stats", err)
}

// Increment bumps one counter for a rule
func (s *RuleStats) Increment(ctx context.Context, ruleID uint, kind StatKind) error {
	cols, ok := statColumnMap[kind]
	if !ok {
		return fmt.Errorf("unknown stat kind %q", kind)
	}
	if err := s.ensure(ctx, ruleID); err != nil {
		return err
	}

	updates := map[string]interface{}{
		cols.counter: gorm.Expr(cols.counter+" + ?", 1),
		"updated_at": s.now(),
	}
	if cols.timestamp != "" {
		updates[cols.timestamp] = s.now()
	}

	err := s.db.WithContext(ctx).Model(&models.AutomationRuleStats{}).
		Where("automation_rule_id = ?", ruleID).
		UpdateColumns(updates).Error
	return persistErr("increment rule stats", err)
}

// Get returns a rule's counters, zero-valued when nothing has been recorded
func (s *RuleStats) Get(ctx context.Context, ruleID uint) (models.AutomationRuleStats, error) {
	var row models.AutomationRuleStats
	err := s.db.WithContext(ctx).Where("automation_rule_id = ?", ruleID).First(&row).Error
	if isNotFound(err) {
		return models.AutomationRuleStats{AutomationRuleID: ruleID}, nil
	}
	if err != nil {
		return row, persistErr("load rule stats", err)
	}
	return row, nil
}
