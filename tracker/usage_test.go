package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"instaflow/models"
	"instaflow/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNeedsReset(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		tier    models.PlanTier
		want    bool
	}{
		{"free never resets", 400 * 24 * time.Hour, models.PlanFree, false},
		{"paid before cycle", 29 * 24 * time.Hour, models.PlanBasic, false},
		{"paid just short of cycle", ResetCycle - time.Second, models.PlanPro, false},
		{"paid at cycle", ResetCycle, models.PlanPro, true},
		{"paid well past cycle", 90 * 24 * time.Hour, models.PlanEnterprise, true},
		{"unknown tier behaves as free", 90 * 24 * time.Hour, models.PlanTier("gold"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsReset(epoch.Add(tt.elapsed), epoch, tt.tier))
		})
	}
}

func newTestUsageTracker(t *testing.T, now *time.Time) *UsageTracker {
	u := NewUsageTracker(testutil.NewDB(t), nil)
	u.now = func() time.Time { return *now }
	return u
}

func setCounts(t *testing.T, u *UsageTracker, ownerID uint, igID string, dms, rules int) {
	t.Helper()
	require.NoError(t, u.db.Model(&models.InstagramGlobalTracker{}).
		Where("user_id = ? AND instagram_id = ?", ownerID, igID).
		Updates(map[string]interface{}{"dms_sent_count": dms, "rules_created_count": rules}).Error)
}

func TestUsageTracker_GetOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := epoch
	u := newTestUsageTracker(t, &now)

	first, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	second, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.LastResetDate.Equal(epoch))

	other, err := u.GetOrCreate(ctx, 2, "1784")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "trackers are per owner and account")
}

func TestUsageTracker_FreeTierIsLifetime(t *testing.T) {
	ctx := context.Background()
	now := epoch
	u := newTestUsageTracker(t, &now)

	res, err := u.CheckLimit(ctx, 1, "1784", models.PlanFree, LimitDMs)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 50, res.Limit)
	assert.Nil(t, res.ResetAt)

	setCounts(t, u, 1, "1784", 50, 0)
	res, err = u.CheckLimit(ctx, 1, "1784", models.PlanFree, LimitDMs)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "DM limit reached. This Instagram account has sent 50 DMs (lifetime limit: 50). Upgrade to Pro to send more DMs.", res.Reason)

	now = epoch.Add(365 * 24 * time.Hour)
	res, err = u.CheckLimit(ctx, 1, "1784", models.PlanFree, LimitDMs)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "free tier never resets")
	assert.Equal(t, 50, res.Used)
}

func TestUsageTracker_PaidTierResetsAfterCycle(t *testing.T) {
	ctx := context.Background()
	now := epoch
	u := newTestUsageTracker(t, &now)

	_, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	setCounts(t, u, 1, "1784", 500, 10)

	res, err := u.CheckLimit(ctx, 1, "1784", models.PlanBasic, LimitDMs)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "monthly limit: 500")

	res, err = u.CheckLimit(ctx, 1, "1784", models.PlanBasic, LimitRules)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Reason, "Automation rule limit reached")

	now = epoch.Add(29 * 24 * time.Hour)
	res, err = u.CheckLimit(ctx, 1, "1784", models.PlanBasic, LimitDMs)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	now = epoch.Add(ResetCycle)
	res, err = u.CheckLimit(ctx, 1, "1784", models.PlanBasic, LimitDMs)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 0, res.Used)
	require.NotNil(t, res.ResetAt)
	assert.True(t, res.ResetAt.Equal(now.Add(ResetCycle)))

	row, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	assert.Equal(t, 0, row.DMsSentCount)
	assert.Equal(t, 0, row.RulesCreatedCount)
	assert.True(t, row.LastResetDate.Equal(now))
}

func TestUsageTracker_ConcurrentResetHappensOnce(t *testing.T) {
	ctx := context.Background()
	now := epoch
	u := newTestUsageTracker(t, &now)

	_, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	setCounts(t, u, 1, "1784", 10, 1)

	stale1, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	stale2, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)

	now = epoch.Add(ResetCycle + time.Hour)
	reset, err := u.CheckAndReset(ctx, stale1, models.PlanPro)
	require.NoError(t, err)
	assert.True(t, reset)

	require.NoError(t, u.Increment(ctx, 1, "1784", LimitDMs))

	now = now.Add(time.Minute)
	_, err = u.CheckAndReset(ctx, stale2, models.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, 1, stale2.DMsSentCount, "second reader reloads instead of wiping the new count")
}

func TestUsageTracker_Unlimited(t *testing.T) {
	ctx := context.Background()
	u := NewUsageTracker(testutil.NewDB(t), func(models.PlanTier) models.PlanLimits {
		return models.PlanLimits{MaxDMs: models.Unlimited, MaxRules: models.Unlimited}
	})

	_, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	setCounts(t, u, 1, "1784", 1_000_000, 1_000)

	res, err := u.CheckLimit(ctx, 1, "1784", models.PlanEnterprise, LimitDMs)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, models.Unlimited, res.Limit)
}

func TestUsageTracker_IncrementIsExplicit(t *testing.T) {
	ctx := context.Background()
	now := epoch
	u := newTestUsageTracker(t, &now)

	for i := 0; i < 3; i++ {
		_, err := u.CheckLimit(ctx, 1, "1784", models.PlanFree, LimitDMs)
		require.NoError(t, err)
	}
	row, err := u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	assert.Equal(t, 0, row.DMsSentCount, "checks never increment")

	require.NoError(t, u.Increment(ctx, 1, "1784", LimitDMs))
	require.NoError(t, u.Increment(ctx, 1, "1784", LimitDMs))
	require.NoError(t, u.Increment(ctx, 1, "1784", LimitRules))

	row, err = u.GetOrCreate(ctx, 1, "1784")
	require.NoError(t, err)
	assert.Equal(t, 2, row.DMsSentCount)
	assert.Equal(t, 1, row.RulesCreatedCount)

	require.NoError(t, u.Increment(ctx, 9, "new-account", LimitDMs), "missing row is created")
	row, err = u.GetOrCreate(ctx, 9, "new-account")
	require.NoError(t, err)
	assert.Equal(t, 1, row.DMsSentCount)

	assert.Error(t, u.Increment(ctx, 1, "1784", LimitKind("likes")))
}

func TestUsageTracker_Summary(t *testing.T) {
	ctx := context.Background()
	now := epoch
	u := newTestUsageTracker(t, &now)
	require.NoError(t, u.Increment(ctx, 1, "1784", LimitRules))

	sum, err := u.Summary(ctx, 1, "1784", models.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, "free", sum.Tier)
	assert.Equal(t, 1, sum.Rules.Used)
	assert.Equal(t, 3, sum.Rules.Limit)
	assert.True(t, sum.DMs.Allowed)
}

func TestUsageTracker_PersistenceOutage(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	mock.ExpectQuery(".*").WillReturnError(errors.New("connection refused"))
	mock.ExpectExec(".*").WillReturnError(errors.New("connection refused"))

	u := NewUsageTracker(db, nil)
	_, err := u.CheckLimit(context.Background(), 1, "1784", models.PlanFree, LimitDMs)
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))

	var pErr *PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "create usage tracker", pErr.Op)
}
