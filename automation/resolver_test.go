package automation

import (
	"context"
	"errors"
	"testing"

	"instaflow/models"
	"instaflow/testutil"
	"instaflow/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_RankedStrategies(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)

	_, legacy := testutil.SeedAccount(t, db, models.PlanFree, "", "")
	_, noRoute := testutil.SeedAccount(t, db, models.PlanFree, "", "")
	_, routed := testutil.SeedAccount(t, db, models.PlanFree, testIGSID, testPageID)

	r := NewResolver(db)

	account, strategy, err := r.Resolve(ctx, Event{Kind: KindMessage, RoutingID: testIGSID})
	require.NoError(t, err)
	assert.Equal(t, routed.ID, account.ID)
	assert.Equal(t, "routing_id", strategy)

	account, strategy, err = r.Resolve(ctx, Event{Kind: KindComment, RoutingID: testPageID})
	require.NoError(t, err)
	assert.Equal(t, routed.ID, account.ID, "page id also routes")
	assert.Equal(t, "routing_id", strategy)

	rule := &models.AutomationRule{UserID: noRoute.UserID, InstagramAccountID: &noRoute.ID, Name: "comments", TriggerType: models.TriggerPostComment, ActionType: models.ActionSendDM, IsActive: true}
	require.NoError(t, db.Create(rule).Error)

	account, strategy, err = r.Resolve(ctx, Event{Kind: KindComment, RoutingID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, noRoute.ID, account.ID)
	assert.Equal(t, "active_rule_for_trigger", strategy)

	account, strategy, err = r.Resolve(ctx, Event{Kind: KindLiveComment, RoutingID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, legacy.ID, account.ID, "no live rule anywhere, oldest active account wins")
	assert.Equal(t, "first_active", strategy)

	require.NoError(t, db.Delete(rule).Error)
	account, strategy, err = r.Resolve(ctx, Event{Kind: KindComment, RoutingID: "unknown"})
	require.NoError(t, err)
	assert.Equal(t, "first_active", strategy, "soft-deleted rules do not count")
	assert.Equal(t, legacy.ID, account.ID)
}

func TestResolver_NotFound(t *testing.T) {
	db := testutil.NewDB(t)
	_, account := testutil.SeedAccount(t, db, models.PlanFree, testIGSID, "")
	require.NoError(t, db.Model(account).Update("is_active", false).Error)

	_, _, err := NewResolver(db).Resolve(context.Background(), Event{Kind: KindMessage, RoutingID: testIGSID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolver_CustomStrategies(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SeedAccount(t, db, models.PlanFree, "", "")

	_, _, err := NewResolver(db, ByRoutingID).Resolve(context.Background(), Event{Kind: KindMessage, RoutingID: testIGSID})
	assert.ErrorIs(t, err, ErrNotFound, "loose fallbacks are opt-in")
}

func TestResolver_PersistenceError(t *testing.T) {
	db, mock := testutil.NewMockDB(t)
	mock.ExpectQuery(".*").WillReturnError(errors.New("connection refused"))

	_, _, err := NewResolver(db).Resolve(context.Background(), Event{Kind: KindMessage, RoutingID: testIGSID})
	require.Error(t, err)
	var pErr *tracker.PersistenceError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, "resolve account (routing_id)", pErr.Op)
}
