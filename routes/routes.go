package routes

import (
	"instaflow/config"
	controller "instaflow/controllers"
	"instaflow/middleware"
	"instaflow/tracker"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const accessLogFormat = "[${time}] ${status} - ${latency} ${method} ${path}\n"

// Deps are the collaborators the route table hands to controllers
type Deps struct {
	DB     *gorm.DB
	Redis  *redis.Client
	Config config.Config
	Events controller.EventHandler
	Usage  *tracker.UsageTracker
	Stats  *tracker.RuleStats
	DMLog  *tracker.DMLogStore
	Flows  []controller.FlowResetter
	Log    *logrus.Logger
}

func (d Deps) logger(component string) *logrus.Entry {
	l := d.Log
	if l == nil {
		l = logrus.StandardLogger()
	}
	return l.WithField("component", component)
}

// SetupWebhookRoutes mounts the public Meta webhook endpoints
func SetupWebhookRoutes(app *fiber.App, d Deps) {
	webhookController := controller.NewWebhookController(d.Events, d.Config.Instagram.VerifyToken, d.logger("webhook"))

	hooks := app.Group("/webhooks", logger.New(logger.Config{Format: accessLogFormat}))
	hooks.Get("/instagram", webhookController.Verify)
	hooks.Post("/instagram", middleware.WebhookSignature(d.Config.Instagram.AppSecret), webhookController.Receive)

	d.logger("routes").Info("Webhook routes initialized successfully")
}

// SetupAuthRoutes mounts registration and login. Logout and profile need a token.
func SetupAuthRoutes(app *fiber.App, d Deps) {
	authController := controller.NewAuthController(d.DB, d.Config.JWTSecret, 0, d.Config.Environment == "production", d.logger("auth"))

	auth := app.Group("/auth", logger.New(logger.Config{Format: accessLogFormat}))
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)

	protectedAuth := auth.Group("", middleware.Protected(d.DB, d.Config.JWTSecret))
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Post("/change-password", authController.ChangePassword)
	protectedAuth.Get("/me", authController.GetCurrentUser)

	d.logger("routes").Info("Authentication routes initialized successfully")
}

// SetupAPIRoutes mounts the owner-facing API behind JWT auth and rate limiting
func SetupAPIRoutes(app *fiber.App, d Deps) {
	automationController := controller.NewAutomationController(d.DB, d.Usage, d.Stats, d.logger("automation"), d.Flows...)
	accountController := controller.NewAccountController(d.DB, d.Config.EncryptionKey, d.Config.Limits, d.logger("account"))
	leadController := controller.NewLeadController(d.DB, d.logger("lead"))
	usageController := controller.NewUsageController(d.DB, d.Usage, d.logger("usage"))
	dmlog := d.DMLog
	if dmlog == nil {
		dmlog = tracker.NewDMLogStore(d.DB)
	}
	dashboardController := controller.NewDashboardController(d.DB, dmlog, d.logger("dashboard"))

	api := app.Group("/api/v1",
		logger.New(logger.Config{Format: accessLogFormat}),
		middleware.Protected(d.DB, d.Config.JWTSecret),
		middleware.APIRateLimiter(d.Config.APIRateLimit, d.Redis),
	)

	accounts := api.Group("/accounts")
	accounts.Post("/", accountController.CreateAccount)
	accounts.Get("/", accountController.ListAccounts)
	accounts.Put("/:id", accountController.UpdateAccount)

	automations := api.Group("/automations")
	automations.Post("/", automationController.CreateRule)
	automations.Get("/", automationController.ListRules)
	automations.Get("/:id", automationController.GetRule)
	automations.Put("/:id", automationController.UpdateRule)
	automations.Delete("/:id", automationController.DeleteRule)
	automations.Get("/:id/stats", automationController.GetRuleStats)

	leads := api.Group("/leads")
	leads.Get("/", leadController.GetLeads)
	leads.Get("/export", leadController.ExportLeads)
	leads.Get("/stats", leadController.GetLeadStats)
	leads.Get("/:id", leadController.GetLead)
	leads.Delete("/:id", leadController.DeleteLead)

	api.Get("/usage", usageController.GetUsage)
	api.Get("/dashboard", dashboardController.GetDashboard)

	d.logger("routes").Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	SetupWebhookRoutes(app, d)
	SetupAuthRoutes(app, d)
	SetupAPIRoutes(app, d)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
