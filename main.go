package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"instaflow/automation"
	"instaflow/config"
	controller "instaflow/controllers"
	"instaflow/flow"
	"instaflow/instagram"
	"instaflow/middleware"
	"instaflow/routes"
	"instaflow/store"
	"instaflow/tracker"
	"instaflow/utils"
	"instaflow/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.AppConfig
	if cfg.Environment != "production" {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := utils.InitSentry(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Warnf("Sentry disabled: %v", err)
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := config.MigrateDB(config.DB); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := config.ConnectRedis(ctx); err != nil {
		logger.Fatalf("Failed to connect to redis: %v", err)
	}

	// Ephemeral conversation stores
	ttl := cfg.Flow.StateTTL
	var (
		dedup     store.Deduplicator
		presendSt store.StateStore[flow.PreSendState]
		leadSt    store.StateStore[flow.LeadState]
		sweepers  []worker.Sweeper
	)
	if cfg.Flow.StateBackend == "redis" {
		dedup = store.NewRedisDeduplicator(config.Redis, "instaflow:seen:", cfg.Flow.DedupTTL)
		presendSt = store.NewRedisStateStore[flow.PreSendState](config.Redis, "instaflow:presend:", ttl)
		leadSt = store.NewRedisStateStore[flow.LeadState](config.Redis, "instaflow:lead:", ttl)
	} else {
		memPresend := store.NewMemoryStateStore[flow.PreSendState](ttl)
		memLead := store.NewMemoryStateStore[flow.LeadState](ttl)
		dedup = store.NewMemoryDeduplicator(cfg.Flow.DedupCapacity)
		presendSt, leadSt = memPresend, memLead
		sweepers = append(sweepers, memPresend, memLead)
	}

	// Persistent trackers
	usage := tracker.NewUsageTracker(config.DB, cfg.Limits)
	stats := tracker.NewRuleStats(config.DB)
	dmlog := tracker.NewDMLogStore(config.DB)
	leads := tracker.NewLeadStore(config.DB)
	presend := flow.NewPreSend(presendSt, leads)
	leadCapture := flow.NewLeadCapture(leadSt, leads)

	dispatcher := automation.NewDispatcher(automation.Config{
		DB:          config.DB,
		Dedup:       dedup,
		Audience:    tracker.NewAudienceTracker(config.DB),
		Usage:       usage,
		Stats:       stats,
		DMLog:       dmlog,
		PreSend:     presend,
		LeadCapture: leadCapture,
		Messenger:   instagram.NewGraphClient(cfg.Instagram, cfg.EncryptionKey),
	})

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "instaflow",
		ErrorHandler: errorHandler,
	})
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   middleware.DefaultCORSConfig().AllowedMethods,
		AllowedHeaders:   middleware.DefaultCORSConfig().AllowedHeaders,
		ExposedHeaders:   middleware.DefaultCORSConfig().ExposedHeaders,
		MaxAge:           3600,
	}))

	routes.SetupRoutes(app, routes.Deps{
		DB:     config.DB,
		Redis:  config.Redis,
		Config: cfg,
		Events: dispatcher,
		Usage:  usage,
		Stats:  stats,
		DMLog:  dmlog,
		Flows:  []controller.FlowResetter{presend, leadCapture},
		Log:    logger,
	})

	// Background workers
	if cfg.SMTP.Enabled() {
		mailer := &utils.SMTPMailer{
			Host:      cfg.SMTP.Host,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
			FromName:  cfg.SMTP.FromName,
		}
		go worker.NewLeadNotifier(config.DB, mailer, cfg.LeadNotifyInterval, logger.WithField("component", "lead_notifier")).Start(ctx)
	} else {
		logger.Info("SMTP not configured, lead notifications disabled")
	}
	go worker.NewStateJanitor(0, logger.WithField("component", "state_janitor"), sweepers...).Start(ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	// Start server
	logger.Infof("🚀 Server starting on port %s", cfg.ServerPort)
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if code >= fiber.StatusInternalServerError {
		utils.LogError("UnhandledRequestError", err, map[string]interface{}{"path": c.Path(), "method": c.Method()})
	}
	return utils.ErrorResponse(c, code, utils.FirstNonEmpty(err.Error(), "Internal Server Error"), nil)
}
