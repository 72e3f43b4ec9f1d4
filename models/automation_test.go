package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTriggerType(t *testing.T) {
	for _, tt := range TriggerTypes {
		got, err := ParseTriggerType(string(tt))
		require.NoError(t, err)
		assert.Equal(t, tt, got)
	}

	got, err := ParseTriggerType("  Keyword ")
	require.NoError(t, err)
	assert.Equal(t, TriggerKeyword, got)

	_, err = ParseTriggerType("keywrod")
	assert.Error(t, err)
}

func TestRuleConfig_KeywordList(t *testing.T) {
	cfg := RuleConfig{Keyword: " price ", Keywords: []string{"", "menu", "  "}}
	assert.Equal(t, []string{"price", "menu"}, cfg.KeywordList())
	assert.Empty(t, RuleConfig{}.KeywordList())
}

func TestRuleConfig_UsesLeadCapture(t *testing.T) {
	cfg := RuleConfig{IsLeadCapture: true}
	assert.False(t, cfg.UsesLeadCapture(), "no ask step")

	cfg.LeadCaptureFlow = []LeadFlowStep{{Type: StepAsk, FieldType: FieldEmail, Text: "email?"}}
	assert.True(t, cfg.UsesLeadCapture())

	cfg.IsLeadCapture = false
	assert.False(t, cfg.UsesLeadCapture())
}

func TestAudience_IsVIP(t *testing.T) {
	full := InstagramAudience{Email: "jordan.price@gmail.com", Phone: "14155550132", IsFollowing: true}
	assert.True(t, full.IsVIP())

	noEmail := full
	noEmail.Email = ""
	assert.False(t, noEmail.IsVIP())

	noPhone := full
	noPhone.Phone = ""
	assert.False(t, noPhone.IsVIP())

	notFollowing := full
	notFollowing.IsFollowing = false
	assert.False(t, notFollowing.IsVIP())

	var nilAudience *InstagramAudience
	assert.False(t, nilAudience.IsVIP())
}

func TestInstagramAccount_OwnsID(t *testing.T) {
	igsid, page := "1784", "1099"
	acc := InstagramAccount{IGSID: &igsid, PageID: &page}
	assert.True(t, acc.OwnsID("1784"))
	assert.True(t, acc.OwnsID("1099"))
	assert.False(t, acc.OwnsID("555"))
	assert.False(t, acc.OwnsID(""))
	assert.Equal(t, "1784", acc.PlatformID())

	bare := InstagramAccount{Username: "shop"}
	assert.Equal(t, "shop", bare.PlatformID())
}

func TestPlanTier(t *testing.T) {
	assert.False(t, PlanFree.IsPaid())
	assert.True(t, PlanPro.IsPaid())
	assert.Equal(t, PlanFree, (&User{PlanTier: "gold"}).Tier())

	_, err := ParsePlanTier("gold")
	assert.Error(t, err)
	limits := DefaultPlanLimits()
	assert.Equal(t, 50, limits[PlanFree].MaxDMs)
	assert.Equal(t, 3, limits[PlanFree].MaxRules)
}

func TestLeadFlowStep_ValueType(t *testing.T) {
	assert.Equal(t, FieldPhone, LeadFlowStep{FieldType: FieldPhone, Validation: "email"}.ValueType())
	assert.Equal(t, FieldEmail, LeadFlowStep{Validation: "email"}.ValueType())
	assert.Equal(t, FieldPhone, LeadFlowStep{Validation: " Phone "}.ValueType())
	assert.Equal(t, FieldText, LeadFlowStep{Validation: "zipcode"}.ValueType())
	assert.Equal(t, FieldText, LeadFlowStep{}.ValueType())
}
