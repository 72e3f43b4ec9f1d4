package models

// AllModels returns every persisted model in migration order
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&InstagramAccount{},
		&AutomationRule{},
		&AutomationRuleStats{},
		&CapturedLead{},
		&InstagramAudience{},
		&InstagramGlobalTracker{},
		&DMLog{},
	}
}
