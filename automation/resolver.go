package automation

import (
	"context"
	"errors"
	"fmt"

	"instaflow/models"
	"instaflow/tracker"

	"gorm.io/gorm"
)

// Strategy is one way of finding the account an event was delivered to.
// Find returns (nil, nil) when it has no candidate.
type Strategy struct {
	Name string
	Find func(ctx context.Context, db *gorm.DB, ev Event) (*models.InstagramAccount, error)
}

// ByRoutingID matches the event's routing id against the account's IGSID or page id
var ByRoutingID = Strategy{
	Name: "routing_id",
	Find: func(ctx context.Context, db *gorm.DB, ev Event) (*models.InstagramAccount, error) {
		if ev.RoutingID == "" {
			return nil, nil
		}
		return first(db.WithContext(ctx).
			Where("is_active = ? AND (igsid = ? OR page_id = ?)", true, ev.RoutingID, ev.RoutingID))
	},
}

// ByActiveRuleForTrigger picks the first active account that has an active rule for the event's triggers.
// It is a guess for accounts whose routing ids were never stored.
var ByActiveRuleForTrigger = Strategy{
	Name: "active_rule_for_trigger",
	Find: func(ctx context.Context, db *gorm.DB, ev Event) (*models.InstagramAccount, error) {
		triggers := ev.Triggers()
		if len(triggers) == 0 {
			return nil, nil
		}
		return first(db.WithContext(ctx).
			Where("instagram_accounts.is_active = ?", true).
			Where("EXISTS (SELECT 1 FROM automation_rules r WHERE r.instagram_account_id = instagram_accounts.id AND r.is_active = ? AND r.deleted_at IS NULL AND r.trigger_type IN ?)", true, triggers))
	},
}

// FirstActive picks the oldest active account
var FirstActive = Strategy{
	Name: "first_active",
	Find: func(ctx context.Context, db *gorm.DB, ev Event) (*models.InstagramAccount, error) {
		return first(db.WithContext(ctx).Where("is_active = ?", true))
	},
}

// DefaultStrategies is ordered from exact to loosest
var DefaultStrategies = []Strategy{ByRoutingID, ByActiveRuleForTrigger, FirstActive}

func first(q *gorm.DB) (*models.InstagramAccount, error) {
	var account models.InstagramAccount
	err := q.Order("instagram_accounts.id").First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Resolver tries each strategy in rank order
type Resolver struct {
	db         *gorm.DB
	strategies []Strategy
}

func NewResolver(db *gorm.DB, strategies ...Strategy) *Resolver {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &Resolver{db: db, strategies: strategies}
}

// Resolve returns the account and the name of the strategy that found it
func (r *Resolver) Resolve(ctx context.Context, ev Event) (*models.InstagramAccount, string, error) {
	for _, s := range r.strategies {
		account, err := s.Find(ctx, r.db, ev)
		if err != nil {
			return nil, "", &tracker.PersistenceError{Op: "resolve account (" + s.Name + ")", Err: err}
		}
		if account != nil {
			return account, s.Name, nil
		}
	}
	return nil, "", fmt.Errorf("account for routing id %q: %w", ev.RoutingID, ErrNotFound)
}
