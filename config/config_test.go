package config

import (
	"os"
	"path/filepath"
	"testing"

	"instaflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		DBDriver:      "sqlite",
		EncryptionKey: "0123456789abcdef0123456789abcdef",
		Flow:          FlowConfig{StateBackend: "memory"},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	c := validConfig()
	c.DBDriver = "postgres"
	assert.EqualError(t, c.Validate(), "DB_PASSWORD is required")

	c = validConfig()
	c.EncryptionKey = "short"
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Flow.StateBackend = "redis"
	assert.Error(t, c.Validate())
	c.Redis.Enabled = true
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.Environment = "production"
	assert.Error(t, c.Validate())
	c.Instagram.VerifyToken = "verify"
	c.Instagram.AppSecret = "secret"
	assert.NoError(t, c.Validate())
}

func TestLoadPlanLimits_Defaults(t *testing.T) {
	limits, err := LoadPlanLimits("")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultPlanLimits(), limits)
}

func TestLoadPlanLimits_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limits.yaml")
	content := `
tiers:
  free:
    max_accounts: 1
    max_dms: 25
    max_rules: 2
  enterprise:
    max_accounts: -1
    max_dms: -1
    max_rules: -1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	limits, err := LoadPlanLimits(path)
	require.NoError(t, err)
	assert.Equal(t, 25, limits[models.PlanFree].MaxDMs)
	assert.Equal(t, models.Unlimited, limits[models.PlanEnterprise].MaxDMs)
	assert.Equal(t, 500, limits[models.PlanBasic].MaxDMs, "untouched tier keeps default")
}

func TestLoadPlanLimits_Invalid(t *testing.T) {
	_, err := parsePlanLimits([]byte("tiers:\n  gold:\n    max_dms: 1\n"), models.DefaultPlanLimits())
	assert.Error(t, err)

	_, err = parsePlanLimits([]byte("tiers:\n  free:\n    max_dms: -5\n"), models.DefaultPlanLimits())
	assert.Error(t, err)

	_, err = LoadPlanLimits(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigLimits_FallsBackToFree(t *testing.T) {
	c := Config{}
	assert.Equal(t, 50, c.Limits(models.PlanFree).MaxDMs)
	assert.Equal(t, 50, c.Limits(models.PlanTier("gold")).MaxDMs)
	assert.Equal(t, 5000, c.Limits(models.PlanPro).MaxDMs)
}

func TestMaskPassword(t *testing.T) {
	assert.Equal(t, "host=db password=***** dbname=x", maskPassword("host=db password=hunter2 dbname=x"))
	assert.Equal(t, "host=db password=*****", maskPassword("host=db password=hunter2"))
	assert.Equal(t, "host=db", maskPassword("host=db"))
}
