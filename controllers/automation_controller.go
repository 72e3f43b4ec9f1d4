package controller

import (
	"context"
	"errors"
	"reflect"
	"strings"

	"instaflow/models"
	"instaflow/tracker"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// FlowResetter drops in-flight conversation state for a rule
type FlowResetter interface {
	ResetRule(ctx context.Context, ruleID uint) error
}

type AutomationController struct {
	DB     *gorm.DB
	Usage  *tracker.UsageTracker
	Stats  *tracker.RuleStats
	Flows  []FlowResetter
	Logger *logrus.Entry
}

func NewAutomationController(db *gorm.DB, usage *tracker.UsageTracker, stats *tracker.RuleStats, logger *logrus.Entry, flows ...FlowResetter) *AutomationController {
	return &AutomationController{
		DB:     db,
		Usage:  usage,
		Stats:  stats,
		Flows:  flows,
		Logger: logger,
	}
}

type ruleInput struct {
	InstagramAccountID uint              `json:"instagram_account_id" validate:"required"`
	Name               string            `json:"name" validate:"required,min=1,max=100"`
	TriggerType        string            `json:"trigger_type" validate:"required,trigger_type"`
	ActionType         string            `json:"action_type" validate:"action_type"`
	Config             models.RuleConfig `json:"config"`
	MediaID            *string           `json:"media_id"`
	IsActive           *bool             `json:"is_active"`
}

type ruleUpdateInput struct {
	Name        *string            `json:"name" validate:"omitempty,min=1,max=100"`
	TriggerType *string            `json:"trigger_type" validate:"omitempty,trigger_type"`
	Config      *models.RuleConfig `json:"config"`
	MediaID     *string            `json:"media_id"`
	IsActive    *bool              `json:"is_active"`
}

func (ac *AutomationController) findAccount(c *fiber.Ctx, userID, accountID uint) (*models.InstagramAccount, error) {
	var account models.InstagramAccount
	err := ac.DB.WithContext(c.UserContext()).
		Where("id = ? AND user_id = ?", accountID, userID).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (ac *AutomationController) findRule(c *fiber.Ctx, userID uint) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	err := ac.DB.WithContext(c.UserContext()).
		Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), userID).
		First(&rule).Error
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (ac *AutomationController) resetFlows(ctx context.Context, ruleID uint) {
	for _, f := range ac.Flows {
		if err := f.ResetRule(ctx, ruleID); err != nil {
			utils.LogError("FlowResetFailed", err, map[string]interface{}{"rule_id": ruleID})
		}
	}
}

func rejectConfig(c *fiber.Ctx, problems []string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   "Rule configuration exceeds Instagram limits",
		"details": problems,
	})
}

// CreateRule validates and stores a rule, charging it against the account's rule quota
func (ac *AutomationController) CreateRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input ruleInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	trigger, err := models.ParseTriggerType(input.TriggerType)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid trigger type", err)
	}
	action := models.ActionSendDM
	if input.ActionType != "" {
		if action, err = models.ParseActionType(input.ActionType); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid action type", err)
		}
	}
	if problems := utils.ValidateRuleConfig(trigger, input.Config); len(problems) > 0 {
		return rejectConfig(c, problems)
	}

	account, err := ac.findAccount(c, user.ID, input.InstagramAccountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Instagram account not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load Instagram account", err)
	}

	ctx := c.UserContext()
	limit, err := ac.Usage.CheckLimit(ctx, user.ID, account.PlatformID(), user.Tier(), tracker.LimitRules)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check rule quota", err)
	}
	if !limit.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   limit.Reason,
			"limit":   limit,
		})
	}

	rule := models.AutomationRule{
		UserID:             user.ID,
		InstagramAccountID: &account.ID,
		Name:               strings.TrimSpace(input.Name),
		TriggerType:        trigger,
		ActionType:         action,
		Config:             input.Config,
		MediaID:            input.MediaID,
		IsActive:           true,
	}
	if err := ac.DB.WithContext(ctx).Create(&rule).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create rule", err)
	}
	// default:true swallows an explicit false on insert
	if input.IsActive != nil && !*input.IsActive {
		if err := ac.DB.WithContext(ctx).Model(&rule).Update("is_active", false).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create rule", err)
		}
	}

	if err := ac.Usage.Increment(ctx, user.ID, account.PlatformID(), tracker.LimitRules); err != nil {
		utils.LogError("RuleQuotaIncrementFailed", err, map[string]interface{}{"rule_id": rule.ID})
	}

	ac.Logger.WithFields(logrus.Fields{"rule_id": rule.ID, "user_id": user.ID}).Info("automation rule created")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(rule))
}

// ListRules returns the caller's rules, optionally for one account
func (ac *AutomationController) ListRules(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := ac.DB.WithContext(c.UserContext()).Where("user_id = ?", user.ID)
	if accountID := c.Query("account_id"); accountID != "" {
		query = query.Where("instagram_account_id = ?", utils.ParseUint(accountID))
	}
	if trigger := c.Query("trigger_type"); trigger != "" {
		t, err := models.ParseTriggerType(trigger)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid trigger type", err)
		}
		query = query.Where("trigger_type = ?", t)
	}

	var rules []models.AutomationRule
	if err := query.Order("id").Find(&rules).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rules", err)
	}
	return c.JSON(utils.SuccessResponse(rules))
}

func (ac *AutomationController) GetRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	rule, err := ac.findRule(c, user.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Rule not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rule", err)
	}
	return c.JSON(utils.SuccessResponse(rule))
}

// UpdateRule applies a partial update. Changing what a rule sends or when it fires
// restarts every conversation in flight for it.
func (ac *AutomationController) UpdateRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	rule, err := ac.findRule(c, user.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Rule not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rule", err)
	}

	var input ruleUpdateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{}
	reset := false

	trigger := rule.TriggerType
	if input.TriggerType != nil {
		if trigger, err = models.ParseTriggerType(*input.TriggerType); err != nil {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid trigger type", err)
		}
		if trigger != rule.TriggerType {
			updates["trigger_type"] = trigger
			reset = true
		}
	}
	cfg := rule.Config
	if input.Config != nil {
		cfg = *input.Config
		if !reflect.DeepEqual(cfg, rule.Config) {
			reset = true
		}
	}
	if input.TriggerType != nil || input.Config != nil {
		if problems := utils.ValidateRuleConfig(trigger, cfg); len(problems) > 0 {
			return rejectConfig(c, problems)
		}
	}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.MediaID != nil {
		if *input.MediaID == "" {
			updates["media_id"] = nil
		} else {
			updates["media_id"] = *input.MediaID
		}
		reset = reset || *input.MediaID != rule.ScopedMediaID()
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	ctx := c.UserContext()
	err = ac.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.Config != nil {
			// serializer columns go through Select+Updates so the JSON is re-encoded
			rule.Config = cfg
			if err := tx.Model(rule).Select("config").Updates(rule).Error; err != nil {
				return err
			}
		}
		if len(updates) > 0 {
			return tx.Model(rule).Updates(updates).Error
		}
		return nil
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update rule", err)
	}

	if reset {
		ac.resetFlows(ctx, rule.ID)
	}

	if err := ac.DB.WithContext(ctx).First(rule, rule.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload rule", err)
	}
	return c.JSON(utils.SuccessResponse(rule))
}

// DeleteRule soft-deletes a rule. The rule quota is not refunded.
func (ac *AutomationController) DeleteRule(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	rule, err := ac.findRule(c, user.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Rule not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rule", err)
	}

	if err := ac.DB.WithContext(c.UserContext()).Delete(rule).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete rule", err)
	}
	ac.resetFlows(c.UserContext(), rule.ID)

	return c.JSON(utils.SuccessResponse(fiber.Map{"id": rule.ID, "deleted": true}))
}

// GetRuleStats returns the counters for one rule
func (ac *AutomationController) GetRuleStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	rule, err := ac.findRule(c, user.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Rule not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rule", err)
	}

	stats, err := ac.Stats.Get(c.UserContext(), rule.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch rule stats", err)
	}
	return c.JSON(utils.SuccessResponse(stats))
}
