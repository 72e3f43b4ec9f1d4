package automation

import (
	"strings"

	"instaflow/models"
)

// MatchKeyword reports whether text contains any of the keywords, ignoring case
func MatchKeyword(keywords []string, text string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Matches reports whether a rule fires for an event
func Matches(rule *models.AutomationRule, ev Event) bool {
	if rule == nil || !rule.IsActive {
		return false
	}

	allowed := false
	for _, t := range ev.Triggers() {
		if rule.TriggerType == t {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	if media := rule.ScopedMediaID(); media != "" && ev.IsComment() && media != ev.MediaID {
		return false
	}

	keywords := rule.Config.KeywordList()
	switch rule.TriggerType {
	case models.TriggerKeyword:
		return len(keywords) > 0 && MatchKeyword(keywords, ev.Text)
	case models.TriggerPostComment, models.TriggerLiveComment:
		// keywords optionally narrow comment rules
		return len(keywords) == 0 || MatchKeyword(keywords, ev.Text)
	case models.TriggerNewMessage:
		return true
	}
	return false
}

// MatchRules returns every rule that fires for the event, in input order.
// Matches are independent; there is no first-match-wins.
func MatchRules(rules []models.AutomationRule, ev Event) []*models.AutomationRule {
	var matched []*models.AutomationRule
	for i := range rules {
		if Matches(&rules[i], ev) {
			matched = append(matched, &rules[i])
		}
	}
	return matched
}
