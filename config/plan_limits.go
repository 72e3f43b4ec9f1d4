package config

import (
	"fmt"
	"os"

	"instaflow/models"

	"gopkg.in/yaml.v3"
)

type planLimitsFile struct {
	Tiers map[string]models.PlanLimits `yaml:"tiers"`
}

// LoadPlanLimits returns the default tier quotas, overridden by the YAML file at path when set.
// Tiers missing from the file keep their defaults.
func LoadPlanLimits(path string) (map[models.PlanTier]models.PlanLimits, error) {
	limits := models.DefaultPlanLimits()
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan limits file: %w", err)
	}
	return parsePlanLimits(data, limits)
}

func parsePlanLimits(data []byte, limits map[models.PlanTier]models.PlanLimits) (map[models.PlanTier]models.PlanLimits, error) {
	var f planLimitsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plan limits: %w", err)
	}

	for name, l := range f.Tiers {
		tier, err := models.ParsePlanTier(name)
		if err != nil {
			return nil, err
		}
		for field, v := range map[string]int{"max_accounts": l.MaxAccounts, "max_dms": l.MaxDMs, "max_rules": l.MaxRules} {
			if v < models.Unlimited {
				return nil, fmt.Errorf("tier %s: %s must be -1 or greater", name, field)
			}
		}
		limits[tier] = l
	}
	return limits, nil
}
