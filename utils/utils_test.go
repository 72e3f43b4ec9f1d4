package utils

import (
	"testing"
	"time"

	"instaflow/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestPickMessage(t *testing.T) {
	assert.Equal(t, "fallback", PickMessage(nil, "fallback"))
	assert.Equal(t, "fallback", PickMessage([]string{" ", ""}, "fallback"))
	assert.Equal(t, "only", PickMessage([]string{"", "only"}, "fallback"))

	variations := []string{"a", "b", "c"}
	for i := 0; i < 20; i++ {
		assert.Contains(t, variations, PickMessage(variations, "fallback"))
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", FirstNonEmpty("", "  ", "b", "c"))
	assert.Equal(t, "", FirstNonEmpty())
}

func TestTokenEncryptionRoundTrip(t *testing.T) {
	sealed, err := EncryptToken(testKey, "EAAG-page-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "EAAG")

	plain, err := DecryptToken(testKey, sealed)
	require.NoError(t, err)
	assert.Equal(t, "EAAG-page-token", plain)

	_, err = DecryptToken("fedcba9876543210fedcba9876543210", sealed)
	assert.Error(t, err, "wrong key must fail authentication")

	empty, err := EncryptToken(testKey, "")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestJWTRoundTrip(t *testing.T) {
	user := &models.User{TokenVersion: 3}
	user.ID = 42

	token, err := GenerateAccessToken(user, testKey, time.Minute)
	require.NoError(t, err)

	claims, err := ParseJWTToken(token, testKey)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, 3, claims.TokenVersion)

	_, err = ParseJWTToken(token, "another-secret")
	assert.Error(t, err)

	expired, err := GenerateAccessToken(user, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWTToken(expired, testKey)
	assert.Error(t, err)
}

func TestRenderLeadEmail(t *testing.T) {
	leads := []models.CapturedLead{
		{AutomationRuleID: 7, Email: "jordan.price@gmail.com", CapturedAt: time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)},
		{AutomationRuleID: 7, Phone: "14155550132", CapturedAt: time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)},
	}
	body, err := RenderEmail("new_leads", struct {
		Leads []models.CapturedLead
		Year  int
	}{Leads: leads, Year: 2026})
	require.NoError(t, err)
	assert.Contains(t, body, "2 new leads")
	assert.Contains(t, body, "jordan.price@gmail.com")
	assert.Contains(t, body, "Mar 4 10:30")

	_, err = RenderEmail("missing", nil)
	assert.Error(t, err)
}
