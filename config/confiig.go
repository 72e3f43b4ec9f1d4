package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"instaflow/models"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type InstagramConfig struct {
	VerifyToken string        `json:"-"`
	AppSecret   string        `json:"-"`
	GraphAPIURL string        `json:"graph_api_url"`
	APIVersion  string        `json:"api_version"`
	SendTimeout time.Duration `json:"send_timeout"`
}

// FlowConfig controls the ephemeral conversation stores
type FlowConfig struct {
	// StateBackend is "memory" or "redis"
	StateBackend  string        `json:"state_backend"`
	StateTTL      time.Duration `json:"state_ttl"`
	DedupCapacity int           `json:"dedup_capacity"`
	DedupTTL      time.Duration `json:"dedup_ttl"`
}

type SMTPConfig struct {
	Host      string `json:"smtp_host"`
	Port      int    `json:"smtp_port"`
	Username  string `json:"smtp_username"`
	Password  string `json:"-"`
	FromEmail string `json:"from_email"`
	FromName  string `json:"from_name"`
}

func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.FromEmail != ""
}

type Config struct {
	Environment        string                                `json:"environment"`
	EncryptionKey      string                                `json:"-"`
	JWTSecret          string                                `json:"-"`
	ServerPort         string                                `json:"server_port"`
	DBDriver           string                                `json:"db_driver"`
	DBHost             string                                `json:"db_host"`
	DBPort             string                                `json:"db_port"`
	DBUser             string                                `json:"db_user"`
	DBPassword         string                                `json:"-"`
	DBName             string                                `json:"db_name"`
	DBSSLMode          string                                `json:"db_ssl_mode"`
	DBMaxIdleConns     int                                   `json:"db_max_idle_conns"`
	DBMaxOpenConns     int                                   `json:"db_max_open_conns"`
	SQLitePath         string                                `json:"sqlite_path"`
	SentryDSN          string                                `json:"-"`
	APIRateLimit       int                                   `json:"api_rate_limit"`
	CORSAllowedOrigins []string                              `json:"cors_allowed_origins"`
	Redis              RedisConfig                           `json:"redis"`
	Instagram          InstagramConfig                       `json:"instagram"`
	Flow               FlowConfig                            `json:"flow"`
	SMTP               SMTPConfig                            `json:"smtp"`
	PlanLimitsFile     string                                `json:"plan_limits_file"`
	PlanLimits         map[models.PlanTier]models.PlanLimits `json:"plan_limits"`
	LeadNotifyInterval time.Duration                         `json:"lead_notify_interval"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBDriver:       getEnv("DB_DRIVER", "postgres"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "instaflow"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
		SQLitePath:     getEnv("SQLITE_PATH", "instaflow.db"),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		APIRateLimit:   getEnvAsInt("API_RATE_LIMIT", 120),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Instagram: InstagramConfig{
			VerifyToken: getEnv("INSTAGRAM_VERIFY_TOKEN", ""),
			AppSecret:   getEnv("INSTAGRAM_APP_SECRET", ""),
			GraphAPIURL: getEnv("INSTAGRAM_GRAPH_API_URL", "https://graph.facebook.com"),
			APIVersion:  getEnv("INSTAGRAM_API_VERSION", "v19.0"),
			SendTimeout: getEnvAsDuration("IG_SEND_TIMEOUT", 10*time.Second),
		},
		Flow: FlowConfig{
			StateBackend:  getEnv("FLOW_STATE_BACKEND", "memory"),
			StateTTL:      getEnvAsDuration("FLOW_STATE_TTL", 72*time.Hour),
			DedupCapacity: getEnvAsInt("DEDUP_CAPACITY", 1000),
			DedupTTL:      getEnvAsDuration("DEDUP_TTL", 10*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", ""),
			Port:      getEnvAsInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			FromEmail: getEnv("SMTP_FROM_EMAIL", ""),
			FromName:  getEnv("SMTP_FROM_NAME", "Instaflow"),
		},
		PlanLimitsFile:     getEnv("PLAN_LIMITS_FILE", ""),
		LeadNotifyInterval: getEnvAsDuration("LEAD_NOTIFY_INTERVAL", time.Minute),
		CORSAllowedOrigins: strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ","),
	}

	if AppConfig.JWTSecret == "" {
		AppConfig.JWTSecret = AppConfig.EncryptionKey
	}

	if err := AppConfig.Validate(); err != nil {
		return err
	}

	limits, err := LoadPlanLimits(AppConfig.PlanLimitsFile)
	if err != nil {
		return err
	}
	AppConfig.PlanLimits = limits

	logConfig()
	return nil
}

// Validate checks required settings
func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres":
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch len(c.EncryptionKey) {
	case 16, 24, 32:
	default:
		return fmt.Errorf("ENCRYPTION_KEY must be 16, 24 or 32 bytes")
	}
	switch c.Flow.StateBackend {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("FLOW_STATE_BACKEND=redis requires REDIS_ENABLED=true")
		}
	default:
		return fmt.Errorf("unsupported FLOW_STATE_BACKEND %q", c.Flow.StateBackend)
	}
	if c.Environment == "production" {
		if c.Instagram.VerifyToken == "" {
			return fmt.Errorf("INSTAGRAM_VERIFY_TOKEN is required in production")
		}
		if c.Instagram.AppSecret == "" {
			return fmt.Errorf("INSTAGRAM_APP_SECRET is required in production")
		}
	}
	return nil
}

// Limits returns the quota for a tier, falling back to free
func (c Config) Limits(tier models.PlanTier) models.PlanLimits {
	limits := c.PlanLimits
	if limits == nil {
		limits = models.DefaultPlanLimits()
	}
	if l, ok := limits[tier]; ok {
		return l
	}
	return limits[models.PlanFree]
}

func ConnectDB() error {
	logrus.Info("Attempting to connect to database...")

	dialector, err := openDialector(AppConfig)
	if err != nil {
		return err
	}

	gormCfg := &gorm.Config{}
	if AppConfig.Environment == "production" {
		gormCfg.Logger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	DB, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	if AppConfig.DBDriver == "postgres" {
		sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
		sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
		sqlDB.SetConnMaxIdleTime(30 * time.Minute)
	} else {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logrus.Info("✅ Successfully connected to the database")
	logrus.Info("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logrus.Info("✅ Database migration completed")
	return nil
}

func openDialector(c Config) (gorm.Dialector, error) {
	switch c.DBDriver {
	case "sqlite":
		logrus.WithField("path", c.SQLitePath).Info("Using sqlite database")
		return sqlite.Open(c.SQLitePath), nil
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.DBHost,
			c.DBPort,
			c.DBUser,
			c.DBPassword,
			c.DBName,
			c.DBSSLMode,
		)
		logrus.WithField("dsn", maskPassword(dsn)).Info("Using postgres database")
		return postgres.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
}

// MigrateDB creates or updates every table
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(models.AllModels()...)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return d
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment":   AppConfig.Environment,
		"server_port":   AppConfig.ServerPort,
		"db_driver":     AppConfig.DBDriver,
		"database":      fmt.Sprintf("%s@%s:%s/%s", AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName),
		"redis":         AppConfig.Redis.Enabled,
		"state_backend": AppConfig.Flow.StateBackend,
		"graph_api":     AppConfig.Instagram.GraphAPIURL + "/" + AppConfig.Instagram.APIVersion,
		"sentry":        AppConfig.SentryDSN != "",
		"smtp":          AppConfig.SMTP.Enabled(),
	}).Info("🔧 Loaded configuration")
}
