package controller

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"instaflow/automation"
	"instaflow/flow"
	"instaflow/instagram"
	"instaflow/models"
	"instaflow/store"
	"instaflow/testutil"
	"instaflow/tracker"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	events []automation.Event
	err    error
}

func (r *recordingHandler) Handle(_ context.Context, ev automation.Event) (automation.Outcome, error) {
	r.events = append(r.events, ev)
	return automation.Outcome{TraceID: "trace", EventID: ev.ID}, r.err
}

func webhookApp(handler EventHandler) *fiber.App {
	wc := NewWebhookController(handler, "s3cret-token", testLogger())
	app := fiber.New()
	app.Get("/webhooks/instagram", wc.Verify)
	app.Post("/webhooks/instagram", wc.Receive)
	return app
}

const dmDelivery = `{
  "object": "instagram",
  "entry": [{
    "id": "17841400000000001",
    "time": 1700000000,
    "messaging": [{
      "sender": {"id": "555"},
      "recipient": {"id": "17841400000000001"},
      "timestamp": 1700000000,
      "message": {"mid": "m_abc", "text": "send me the guide"}
    }]
  }]
}`

func TestWebhook_VerifyReturnsChallenge(t *testing.T) {
	app := webhookApp(&recordingHandler{})

	resp, body := call(t, app, http.MethodGet, "/webhooks/instagram?hub.mode=subscribe&hub.verify_token=s3cret-token&hub.challenge=1158201444", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1158201444", string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestWebhook_VerifyRejectsBadToken(t *testing.T) {
	app := webhookApp(&recordingHandler{})

	resp, _ := call(t, app, http.MethodGet, "/webhooks/instagram?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = call(t, app, http.MethodGet, "/webhooks/instagram?hub.mode=unsubscribe&hub.verify_token=s3cret-token&hub.challenge=1", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhook_VerifyRejectsWhenNoTokenConfigured(t *testing.T) {
	wc := NewWebhookController(&recordingHandler{}, "", testLogger())
	app := fiber.New()
	app.Get("/webhooks/instagram", wc.Verify)

	resp, _ := call(t, app, http.MethodGet, "/webhooks/instagram?hub.mode=subscribe&hub.verify_token=&hub.challenge=1", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWebhook_ReceiveDispatchesEvents(t *testing.T) {
	handler := &recordingHandler{}
	app := webhookApp(handler)

	resp, body := call(t, app, http.MethodPost, "/webhooks/instagram", dmDelivery)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", decode(t, body)["status"])

	require.Len(t, handler.events, 1)
	ev := handler.events[0]
	assert.Equal(t, "m_abc", ev.ID)
	assert.Equal(t, automation.KindMessage, ev.Kind)
	assert.Equal(t, "555", ev.SenderID)
	assert.Equal(t, "17841400000000001", ev.RoutingID)
}

func TestWebhook_ReceiveReportsDegradedButAcknowledges(t *testing.T) {
	handler := &recordingHandler{err: &tracker.PersistenceError{Op: "load rules", Err: errors.New("connection refused")}}
	app := webhookApp(handler)

	resp, body := call(t, app, http.MethodPost, "/webhooks/instagram", dmDelivery)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "degraded", decode(t, body)["status"])
}

func TestWebhook_ReceiveAcknowledgesGarbage(t *testing.T) {
	handler := &recordingHandler{}
	app := webhookApp(handler)

	resp, body := call(t, app, http.MethodPost, "/webhooks/instagram", "{not json")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "error", decode(t, body)["status"])
	assert.Empty(t, handler.events)
}

func TestWebhook_ReceiveIgnoresOtherObjects(t *testing.T) {
	handler := &recordingHandler{}
	app := webhookApp(handler)

	resp, body := call(t, app, http.MethodPost, "/webhooks/instagram", `{"object":"page","entry":[{"id":"1","messaging":[{"sender":{"id":"2"},"message":{"mid":"m","text":"hi"}}]}]}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", decode(t, body)["status"])
	assert.Empty(t, handler.events)
}

func TestWebhook_EndToEndKeywordReply(t *testing.T) {
	db := testutil.NewDB(t)
	user, account := testutil.SeedAccount(t, db, models.PlanFree, "17841400000000001", "")
	require.NoError(t, db.Create(&models.AutomationRule{
		UserID:             user.ID,
		InstagramAccountID: &account.ID,
		Name:               "guide",
		TriggerType:        models.TriggerKeyword,
		ActionType:         models.ActionSendDM,
		Config:             models.RuleConfig{Keyword: "guide", MessageTemplate: "Here you go: https://shop.io/guide"},
		IsActive:           true,
	}).Error)

	messenger := &instagram.FakeMessenger{}
	leads := tracker.NewLeadStore(db)
	dispatcher := automation.NewDispatcher(automation.Config{
		DB:          db,
		Dedup:       store.NewMemoryDeduplicator(100),
		Audience:    tracker.NewAudienceTracker(db),
		Usage:       tracker.NewUsageTracker(db, nil),
		Stats:       tracker.NewRuleStats(db),
		PreSend:     flow.NewPreSend(store.NewMemoryStateStore[flow.PreSendState](time.Hour), leads),
		LeadCapture: flow.NewLeadCapture(store.NewMemoryStateStore[flow.LeadState](time.Hour), leads),
		Messenger:   messenger,
	})
	app := webhookApp(dispatcher)

	for i := 0; i < 2; i++ {
		resp, body := call(t, app, http.MethodPost, "/webhooks/instagram", dmDelivery)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "success", decode(t, body)["status"])
	}

	sent := messenger.Messages()
	require.Len(t, sent, 1, "redelivery is deduplicated")
	assert.Equal(t, "555", sent[0].Message.RecipientID)
	assert.Equal(t, "Here you go: https://shop.io/guide", sent[0].Message.Text)
}
