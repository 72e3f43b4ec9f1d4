package models

import "fmt"

// PlanTier is the subscription tier of an account owner
type PlanTier string

const (
	PlanFree       PlanTier = "free"
	PlanBasic      PlanTier = "basic"
	PlanPro        PlanTier = "pro"
	PlanEnterprise PlanTier = "enterprise"
)

// Unlimited marks a limit that is never enforced
const Unlimited = -1

func (t PlanTier) Valid() bool {
	switch t {
	case PlanFree, PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

// IsPaid reports whether usage counters reset on a rolling cycle.
// Free tier counters are lifetime caps.
func (t PlanTier) IsPaid() bool {
	switch t {
	case PlanBasic, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

func ParsePlanTier(s string) (PlanTier, error) {
	t := PlanTier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown plan tier %q", s)
	}
	return t, nil
}

// PlanLimits holds the quota of one tier. A value of Unlimited disables the check.
type PlanLimits struct {
	MaxAccounts int `json:"max_accounts" yaml:"max_accounts"`
	MaxDMs      int `json:"max_dms" yaml:"max_dms"`
	MaxRules    int `json:"max_rules" yaml:"max_rules"`
}

// DefaultPlanLimits are used when no override file is configured
func DefaultPlanLimits() map[PlanTier]PlanLimits {
	return map[PlanTier]PlanLimits{
		PlanFree:       {MaxAccounts: 1, MaxDMs: 50, MaxRules: 3},
		PlanBasic:      {MaxAccounts: 3, MaxDMs: 500, MaxRules: 10},
		PlanPro:        {MaxAccounts: 10, MaxDMs: 5000, MaxRules: 50},
		PlanEnterprise: {MaxAccounts: 50, MaxDMs: 10000, MaxRules: 100},
	}
}
