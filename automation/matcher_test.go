package automation

import (
	"testing"

	"instaflow/models"

	"github.com/stretchr/testify/assert"
)

func TestMatches_Keyword(t *testing.T) {
	rule := &models.AutomationRule{ID: 1, TriggerType: models.TriggerKeyword, IsActive: true, Config: models.RuleConfig{Keyword: "price"}}

	tests := []struct {
		text string
		want bool
	}{
		{"What's the Price??", true},
		{"PRICE", true},
		{"pricing page", false},
		{"no match here", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(rule, Event{Kind: KindMessage, Text: tt.text}))
		})
	}
}

func TestMatches_KeywordRuleWithoutKeywordNeverMatches(t *testing.T) {
	rule := &models.AutomationRule{TriggerType: models.TriggerKeyword, IsActive: true, Config: models.RuleConfig{Keywords: []string{" ", ""}}}
	assert.False(t, Matches(rule, Event{Kind: KindMessage, Text: "anything"}))
	assert.False(t, Matches(rule, Event{Kind: KindComment, Text: ""}))
}

func TestMatches_TriggerCategories(t *testing.T) {
	newMessage := &models.AutomationRule{TriggerType: models.TriggerNewMessage, IsActive: true}
	postComment := &models.AutomationRule{TriggerType: models.TriggerPostComment, IsActive: true}
	liveComment := &models.AutomationRule{TriggerType: models.TriggerLiveComment, IsActive: true}
	keyword := &models.AutomationRule{TriggerType: models.TriggerKeyword, IsActive: true, Config: models.RuleConfig{Keywords: []string{"guide"}}}

	dm := Event{Kind: KindMessage, Text: "the guide"}
	comment := Event{Kind: KindComment, Text: "the guide"}
	live := Event{Kind: KindLiveComment, Text: "the guide"}
	postback := Event{Kind: KindPostback, Text: "the guide"}

	assert.True(t, Matches(newMessage, dm))
	assert.False(t, Matches(newMessage, comment))
	assert.True(t, Matches(postComment, comment))
	assert.False(t, Matches(postComment, live))
	assert.True(t, Matches(liveComment, live))
	assert.True(t, Matches(keyword, dm))
	assert.True(t, Matches(keyword, comment))
	assert.True(t, Matches(keyword, live))
	assert.False(t, Matches(keyword, postback), "postbacks only continue flows")
}

func TestMatches_InactiveAndMediaScope(t *testing.T) {
	media := "media_1"
	rule := &models.AutomationRule{TriggerType: models.TriggerPostComment, IsActive: true, MediaID: &media}

	assert.True(t, Matches(rule, Event{Kind: KindComment, MediaID: "media_1"}))
	assert.False(t, Matches(rule, Event{Kind: KindComment, MediaID: "media_2"}))

	cfgScoped := &models.AutomationRule{TriggerType: models.TriggerPostComment, IsActive: true, Config: models.RuleConfig{MediaID: "media_3"}}
	assert.False(t, Matches(cfgScoped, Event{Kind: KindComment, MediaID: "media_1"}))

	filtered := &models.AutomationRule{TriggerType: models.TriggerPostComment, IsActive: true, Config: models.RuleConfig{Keyword: "link"}}
	assert.True(t, Matches(filtered, Event{Kind: KindComment, Text: "LINK please"}))
	assert.False(t, Matches(filtered, Event{Kind: KindComment, Text: "nice"}))

	rule.IsActive = false
	assert.False(t, Matches(rule, Event{Kind: KindComment, MediaID: "media_1"}))
	assert.False(t, Matches(nil, Event{Kind: KindComment}))
}

func TestMatchRules_ReturnsEveryMatch(t *testing.T) {
	rules := []models.AutomationRule{
		{ID: 1, TriggerType: models.TriggerKeyword, IsActive: true, Config: models.RuleConfig{Keyword: "price"}},
		{ID: 2, TriggerType: models.TriggerNewMessage, IsActive: true},
		{ID: 3, TriggerType: models.TriggerKeyword, IsActive: true, Config: models.RuleConfig{Keyword: "shipping"}},
		{ID: 4, TriggerType: models.TriggerKeyword, IsActive: true, Config: models.RuleConfig{Keywords: []string{"cost", "PRICE"}}},
	}
	matched := MatchRules(rules, Event{Kind: KindMessage, Text: "what's the price"})

	var ids []uint
	for _, r := range matched {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []uint{1, 2, 4}, ids)
}
