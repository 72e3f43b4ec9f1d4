package utils

import (
	"fmt"
	"unicode/utf8"

	"instaflow/models"
)

// Instagram platform limits applied to rule configuration
const (
	MaxDMChars        = 1000
	MaxKeywords       = 50
	MaxKeywordLength  = 100
	MaxButtonTextChar = 20
)

// ValidateRuleConfig returns human-readable problems with a rule's configuration.
// An empty result means the rule can be saved.
func ValidateRuleConfig(trigger models.TriggerType, cfg models.RuleConfig) []string {
	var problems []string

	checkLen := func(label, value string, max int) {
		if n := utf8.RuneCountInString(value); n > max {
			problems = append(problems, fmt.Sprintf("%s: %d characters (max %d)", label, n, max))
		}
	}

	if len(cfg.Keywords) > MaxKeywords {
		problems = append(problems, fmt.Sprintf("Trigger keywords: %d keywords (max %d)", len(cfg.Keywords), MaxKeywords))
	}
	for i, kw := range cfg.Keywords {
		checkLen(fmt.Sprintf("Trigger keyword #%d", i+1), kw, MaxKeywordLength)
	}
	checkLen("Trigger keyword", cfg.Keyword, MaxKeywordLength)
	if trigger == models.TriggerKeyword && len(cfg.KeywordList()) == 0 {
		problems = append(problems, "Keyword rules need at least one keyword")
	}

	checkLen("Primary DM message", cfg.MessageTemplate, MaxDMChars)
	for i, m := range cfg.MessageVariations {
		checkLen(fmt.Sprintf("DM message variation #%d", i+1), m, MaxDMChars)
	}
	checkLen("Ask to follow message", cfg.AskToFollowMessage, MaxDMChars)
	checkLen("Ask for email message", cfg.AskForEmailMessage, MaxDMChars)
	checkLen("Email retry message", cfg.EmailRetryMessage, MaxDMChars)
	checkLen("Follow button text", cfg.FollowButtonText, MaxButtonTextChar)

	if cfg.IsLeadCapture {
		ask, ok := cfg.Step(models.StepAsk)
		switch {
		case !ok:
			problems = append(problems, "Lead capture flow needs an ask step")
		case !ask.FieldType.Valid():
			problems = append(problems, fmt.Sprintf("Lead capture field type %q is not supported", ask.FieldType))
		case ask.Text == "":
			problems = append(problems, "Lead capture ask step needs a prompt")
		}
		for i, s := range cfg.LeadCaptureFlow {
			switch s.Type {
			case models.StepAsk, models.StepSave, models.StepSend:
			default:
				problems = append(problems, fmt.Sprintf("Lead capture step #%d has unknown type %q", i+1, s.Type))
			}
			checkLen(fmt.Sprintf("Lead capture step #%d text", i+1), s.Text, MaxDMChars)
			checkLen(fmt.Sprintf("Lead capture step #%d message", i+1), s.Message, MaxDMChars)
			for j, m := range s.MessageVariations {
				checkLen(fmt.Sprintf("Lead capture step #%d variation #%d", i+1, j+1), m, MaxDMChars)
			}
		}
	} else if cfg.MessageTemplate == "" && len(cfg.MessageVariations) == 0 {
		problems = append(problems, "Primary DM message is required")
	}

	return problems
}
