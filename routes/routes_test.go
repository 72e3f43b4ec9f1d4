package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"instaflow/automation"
	"instaflow/config"
	"instaflow/testutil"
	"instaflow/tracker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopHandler struct{}

func (noopHandler) Handle(context.Context, automation.Event) (automation.Outcome, error) {
	return automation.Outcome{}, nil
}

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	db := testutil.NewDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.Config{JWTSecret: "routes-secret", APIRateLimit: 100}
	cfg.Instagram.VerifyToken = "verify-me"

	app := fiber.New()
	SetupRoutes(app, Deps{
		DB:     db,
		Config: cfg,
		Events: noopHandler{},
		Usage:  tracker.NewUsageTracker(db, nil),
		Stats:  tracker.NewRuleStats(db),
		Log:    log,
	})
	return app
}

func status(t *testing.T, app *fiber.App, method, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, path, nil), -1)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestRoutes_PublicAndProtected(t *testing.T) {
	app := testApp(t)

	assert.Equal(t, http.StatusOK, status(t, app, http.MethodGet, "/health"))
	assert.Equal(t, http.StatusNotFound, status(t, app, http.MethodGet, "/nope"))

	for _, path := range []string{"/api/v1/automations", "/api/v1/leads", "/api/v1/usage", "/api/v1/dashboard", "/api/v1/leads/stats", "/api/v1/accounts", "/auth/me"} {
		assert.Equal(t, http.StatusUnauthorized, status(t, app, http.MethodGet, path), path)
	}
}

func TestRoutes_WebhookVerification(t *testing.T) {
	app := testApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet,
		"/webhooks/instagram?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1158201444", string(body))

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/webhooks/instagram",
		strings.NewReader(`{"object":"instagram","entry":[]}`)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "unsigned deliveries pass when no app secret is set")
}
