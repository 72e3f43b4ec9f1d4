package controller

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"instaflow/models"
	"instaflow/testutil"
	"instaflow/tracker"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "0123456789abcdef0123456789abcdef"

func TestAccounts_CreateEncryptsTokenAndEnforcesPlan(t *testing.T) {
	db := testutil.NewDB(t)
	user := &models.User{Email: "owner@shop.io", PasswordHash: "x", PlanTier: models.PlanFree, IsActive: true}
	require.NoError(t, db.Create(user).Error)

	ac := NewAccountController(db, testEncryptionKey, func(models.PlanTier) models.PlanLimits { return models.DefaultPlanLimits()[models.PlanFree] }, testLogger())
	app := fiber.New()
	app.Post("/accounts", asUser(user), ac.CreateAccount)
	app.Put("/accounts/:id", asUser(user), ac.UpdateAccount)

	resp, raw := call(t, app, http.MethodPost, "/accounts", map[string]interface{}{
		"username":   "@shop",
		"igsid":      "17841400000000001",
		"page_token": "EAAG-page-token",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	assert.NotContains(t, string(raw), "EAAG-page-token")

	var account models.InstagramAccount
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&account).Error)
	assert.Equal(t, "shop", account.Username)
	assert.Nil(t, account.PageID)
	plain, err := utils.DecryptToken(testEncryptionKey, account.EncryptedPageToken)
	require.NoError(t, err)
	assert.Equal(t, "EAAG-page-token", plain)

	resp, _ = call(t, app, http.MethodPost, "/accounts", map[string]interface{}{
		"username": "second", "page_id": "104000000000001", "page_token": "t",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "free plan allows one account")

	resp, raw = call(t, app, http.MethodPut, fmt.Sprintf("/accounts/%d", account.ID), map[string]interface{}{"is_active": false})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	require.NoError(t, db.First(&account, account.ID).Error)
	assert.False(t, account.IsActive)
}

func TestAccounts_CreateNeedsARoutingID(t *testing.T) {
	db := testutil.NewDB(t)
	user, _ := testutil.SeedAccount(t, db, models.PlanPro, "", "")
	ac := NewAccountController(db, testEncryptionKey, nil, testLogger())
	app := fiber.New()
	app.Post("/accounts", asUser(user), ac.CreateAccount)

	resp, _ := call(t, app, http.MethodPost, "/accounts", map[string]interface{}{"username": "shop", "page_token": "t"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = call(t, app, http.MethodPost, "/accounts", map[string]interface{}{"username": "shop", "igsid": "not-a-number", "page_token": "t"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUsage_ReportsCountersPerAccount(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	user, account := testutil.SeedAccount(t, db, models.PlanFree, "17841400000000001", "")
	usage := tracker.NewUsageTracker(db, nil)
	require.NoError(t, usage.Increment(ctx, user.ID, account.PlatformID(), tracker.LimitDMs))
	require.NoError(t, usage.Increment(ctx, user.ID, account.PlatformID(), tracker.LimitDMs))

	uc := NewUsageController(db, usage, testLogger())
	app := fiber.New()
	app.Get("/usage", asUser(user), uc.GetUsage)

	resp, raw := call(t, app, http.MethodGet, "/usage", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := decode(t, raw)["data"].(map[string]interface{})
	assert.Equal(t, "free", data["plan_tier"])
	accounts := data["accounts"].([]interface{})
	require.Len(t, accounts, 1)

	summary := accounts[0].(map[string]interface{})["usage"].(map[string]interface{})
	dms := summary["dms"].(map[string]interface{})
	assert.Equal(t, float64(2), dms["used"])
	assert.Equal(t, float64(50), dms["limit"])
	assert.Equal(t, true, dms["allowed"])
	assert.Nil(t, dms["reset_at"], "free tier never resets")
}
