package middleware

import (
	"instaflow/instagram"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
)

// WebhookSignature rejects deliveries whose X-Hub-Signature-256 does not match the
// app secret. An empty secret disables the check.
func WebhookSignature(appSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if appSecret == "" {
			return c.Next()
		}
		if !instagram.VerifySignature(appSecret, c.Body(), c.Get(instagram.SignatureHeader)) {
			utils.LogEvent("WebhookSignatureRejected", map[string]interface{}{
				"ip":    c.IP(),
				"bytes": len(c.Body()),
			})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"status": "error",
				"error":  "invalid signature",
			})
		}
		return c.Next()
	}
}
