package tracker

import (
	"context"
	"fmt"
	"time"

	"instaflow/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResetCycle is how long paid-tier counters accumulate before they reset
const ResetCycle = 30 * 24 * time.Hour

// LimitKind selects which usage counter a check applies to
type LimitKind string

const (
	LimitDMs   LimitKind = "dms"
	LimitRules LimitKind = "rules"
)

// LimitResult is the outcome of a quota check. A denied result is not an error.
type LimitResult struct {
	Allowed bool       `json:"allowed"`
	Reason  string     `json:"reason,omitempty"`
	Kind    LimitKind  `json:"kind"`
	Used    int        `json:"used"`
	Limit   int        `json:"limit"`
	ResetAt *time.Time `json:"reset_at,omitempty"`
}

// LimitsFunc returns the quota for a tier
type LimitsFunc func(models.PlanTier) models.PlanLimits

// UsageTracker enforces per (owner, Instagram account) quotas.
// Checks and increments are separate calls; two concurrent sends may both pass a check
// before either increments, which can overshoot a quota slightly.
type UsageTracker struct {
	db     *gorm.DB
	limits LimitsFunc
	now    func() time.Time
}

func NewUsageTracker(db *gorm.DB, limits LimitsFunc) *UsageTracker {
	if limits == nil {
		defaults := models.DefaultPlanLimits()
		limits = func(t models.PlanTier) models.PlanLimits { return defaults[t] }
	}
	return &UsageTracker{db: db, limits: limits, now: func() time.Time { return time.Now().UTC() }}
}

// NeedsReset reports whether counters last reset at last should be zeroed at now.
// Free tier counters are lifetime caps and never reset.
func NeedsReset(now, last time.Time, tier models.PlanTier) bool {
	if !tier.IsPaid() {
		return false
	}
	return now.Sub(last) >= ResetCycle
}

// GetOrCreate loads the tracker row, creating it on first use
func (u *UsageTracker) GetOrCreate(ctx context.Context, ownerID uint, igID string) (*models.InstagramGlobalTracker, error) {
	db := u.db.WithContext(ctx)

	t := models.InstagramGlobalTracker{
		UserID:        ownerID,
		InstagramID:   igID,
		LastResetDate: u.now(),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&t).Error; err != nil {
		return nil, persistErr("create usage tracker", err)
	}

	var existing models.InstagramGlobalTracker
	if err := db.Where("user_id = ? AND instagram_id = ?", ownerID, igID).First(&existing).Error; err != nil {
		return nil, persistErr("load usage tracker", err)
	}
	return &existing, nil
}

// CheckAndReset zeroes both counters when a paid cycle has elapsed.
// The update is conditional on the stored reset date still being due so concurrent readers reset once.
func (u *UsageTracker) CheckAndReset(ctx context.Context, t *models.InstagramGlobalTracker, tier models.PlanTier) (bool, error) {
	now := u.now()
	if !NeedsReset(now, t.LastResetDate, tier) {
		return false, nil
	}

	res := u.db.WithContext(ctx).Model(&models.InstagramGlobalTracker{}).
		Where("id = ? AND last_reset_date <= ?", t.ID, now.Add(-ResetCycle)).
		Updates(map[string]interface{}{
			"dms_sent_count":      0,
			"rules_created_count": 0,
			"last_reset_date":     now,
		})
	if res.Error != nil {
		return false, persistErr("reset usage tracker", res.Error)
	}

	if res.RowsAffected == 0 {
		// another request reset first
		if err := u.db.WithContext(ctx).First(t, t.ID).Error; err != nil {
			return false, persistErr("reload usage tracker", err)
		}
		return true, nil
	}

	t.DMsSentCount = 0
	t.RulesCreatedCount = 0
	t.LastResetDate = now
	return true, nil
}

// CheckLimit reports whether one more DM or rule is allowed. It never increments.
func (u *UsageTracker) CheckLimit(ctx context.Context, ownerID uint, igID string, tier models.PlanTier, kind LimitKind) (LimitResult, error) {
	t, err := u.GetOrCreate(ctx, ownerID, igID)
	if err != nil {
		return LimitResult{}, err
	}
	if _, err := u.CheckAndReset(ctx, t, tier); err != nil {
		return LimitResult{}, err
	}
	return Evaluate(t, tier, u.limits(tier), kind), nil
}

// Evaluate applies a tier's limits to a loaded tracker
func Evaluate(t *models.InstagramGlobalTracker, tier models.PlanTier, limits models.PlanLimits, kind LimitKind) LimitResult {
	res := LimitResult{Kind: kind}
	switch kind {
	case LimitDMs:
		res.Used, res.Limit = t.DMsSentCount, limits.MaxDMs
	case LimitRules:
		res.Used, res.Limit = t.RulesCreatedCount, limits.MaxRules
	default:
		res.Reason = fmt.Sprintf("unknown limit kind %q", kind)
		return res
	}

	if tier.IsPaid() {
		resetAt := t.LastResetDate.Add(ResetCycle)
		res.ResetAt = &resetAt
	}

	if res.Limit == models.Unlimited || res.Used < res.Limit {
		res.Allowed = true
		return res
	}

	period := "lifetime"
	if tier.IsPaid() {
		period = "monthly"
	}
	switch kind {
	case LimitDMs:
		res.Reason = fmt.Sprintf("DM limit reached. This Instagram account has sent %d DMs (%s limit: %d). Upgrade to Pro to send more DMs.", res.Used, period, res.Limit)
	case LimitRules:
		res.Reason = fmt.Sprintf("Automation rule limit reached. This Instagram account has created %d rules (%s limit: %d). Upgrade to Pro to create more rules.", res.Used, period, res.Limit)
	}
	return res
}

// Increment adds one to a counter after a successful send or rule creation
func (u *UsageTracker) Increment(ctx context.Context, ownerID uint, igID string, kind LimitKind) error {
	column := "dms_sent_count"
	if kind == LimitRules {
		column = "rules_created_count"
	} else if kind != LimitDMs {
		return fmt.Errorf("unknown limit kind %q", kind)
	}

	inc := func() (int64, error) {
		res := u.db.WithContext(ctx).Model(&models.InstagramGlobalTracker{}).
			Where("user_id = ? AND instagram_id = ?", ownerID, igID).
			UpdateColumn(column, gorm.Expr(column+" + ?", 1))
		return res.RowsAffected, res.Error
	}

	n, err := inc()
	if err != nil {
		return persistErr("increment usage", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := u.GetOrCreate(ctx, ownerID, igID); err != nil {
		return err
	}
	if _, err := inc(); err != nil {
		return persistErr("increment usage", err)
	}
	return nil
}

// UsageSummary is the usage API view of one account
type UsageSummary struct {
	InstagramID   string      `json:"instagram_id"`
	Tier          string      `json:"tier"`
	DMs           LimitResult `json:"dms"`
	Rules         LimitResult `json:"rules"`
	LastResetDate time.Time   `json:"last_reset_date"`
}

// Summary returns both counters after applying any pending reset
func (u *UsageTracker) Summary(ctx context.Context, ownerID uint, igID string, tier models.PlanTier) (UsageSummary, error) {
	t, err := u.GetOrCreate(ctx, ownerID, igID)
	if err != nil {
		return UsageSummary{}, err
	}
	if _, err := u.CheckAndReset(ctx, t, tier); err != nil {
		return UsageSummary{}, err
	}
	limits := u.limits(tier)
	return UsageSummary{
		InstagramID:   igID,
		Tier:          string(tier),
		DMs:           Evaluate(t, tier, limits, LimitDMs),
		Rules:         Evaluate(t, tier, limits, LimitRules),
		LastResetDate: t.LastResetDate,
	}, nil
}
