package controller

import (
	"context"
	"errors"

	"instaflow/automation"
	"instaflow/instagram"
	"instaflow/tracker"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// EventHandler processes one normalized inbound event
type EventHandler interface {
	Handle(ctx context.Context, ev automation.Event) (automation.Outcome, error)
}

type WebhookController struct {
	Handler     EventHandler
	VerifyToken string
	Logger      *logrus.Entry
}

func NewWebhookController(handler EventHandler, verifyToken string, logger *logrus.Entry) *WebhookController {
	return &WebhookController{
		Handler:     handler,
		VerifyToken: verifyToken,
		Logger:      logger,
	}
}

// Verify answers Meta's subscription handshake with the raw challenge
func (wc *WebhookController) Verify(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || wc.VerifyToken == "" || token != wc.VerifyToken {
		wc.Logger.WithField("mode", mode).Warn("webhook verification rejected")
		return c.Status(fiber.StatusForbidden).SendString("Invalid verify token")
	}

	wc.Logger.Info("webhook verification succeeded")
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(challenge)
}

// Receive handles a webhook delivery. Meta retries anything but 200, so every
// outcome is acknowledged and problems are reported in the body.
func (wc *WebhookController) Receive(c *fiber.Ctx) error {
	payload, err := instagram.ParsePayload(c.Body())
	if err != nil {
		utils.LogError("WebhookDecodeFailed", err, map[string]interface{}{"bytes": len(c.Body())})
		return c.JSON(fiber.Map{"status": "error", "message": "invalid payload"})
	}

	if payload.Object != "" && payload.Object != "instagram" {
		wc.Logger.WithField("object", payload.Object).Debug("ignoring non-instagram webhook")
		return c.JSON(fiber.Map{"status": "success"})
	}

	degraded := false
	for _, ev := range automation.EventsFromWebhook(payload) {
		out, err := wc.Handler.Handle(c.UserContext(), ev)
		if err == nil {
			continue
		}
		degraded = true
		fields := map[string]interface{}{"event_id": ev.ID, "trace_id": out.TraceID}
		if errors.As(err, new(*tracker.PersistenceError)) {
			utils.LogError("WebhookPersistenceOutage", err, fields)
		} else {
			utils.LogError("WebhookEventFailed", err, fields)
		}
	}

	if degraded {
		return c.JSON(fiber.Map{"status": "degraded"})
	}
	return c.JSON(fiber.Map{"status": "success"})
}
