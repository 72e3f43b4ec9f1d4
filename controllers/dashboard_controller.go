package controller

import (
	"instaflow/models"
	"instaflow/tracker"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type DashboardController struct {
	DB     *gorm.DB
	DMLog  *tracker.DMLogStore
	Logger *logrus.Entry
}

func NewDashboardController(db *gorm.DB, dmlog *tracker.DMLogStore, logger *logrus.Entry) *DashboardController {
	return &DashboardController{
		DB:     db,
		DMLog:  dmlog,
		Logger: logger,
	}
}

// ruleTotals sums automation_rule_stats over every rule the owner ever created
type ruleTotals struct {
	Triggers       int64 `json:"total_triggers"`
	CommentReplies int64 `json:"total_comment_replies"`
	LeadsCaptured  int64 `json:"total_leads_captured"`
	FollowClicks   int64 `json:"total_follow_clicks"`
}

// GetDashboard returns the owner's headline numbers
func (dc *DashboardController) GetDashboard(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	db := dc.DB.WithContext(c.UserContext())

	var accountIDs []uint
	if err := db.Model(&models.InstagramAccount{}).Where("user_id = ?", user.ID).Pluck("id", &accountIDs).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch accounts", err)
	}

	var activeRules int64
	if err := db.Model(&models.AutomationRule{}).
		Where("user_id = ? AND is_active = ?", user.ID, true).
		Count(&activeRules).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count rules", err)
	}

	dms, err := dc.DMLog.Counts(c.UserContext(), accountIDs)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count messages", err)
	}

	var totals ruleTotals
	ownRules := db.Unscoped().Model(&models.AutomationRule{}).Select("id").Where("user_id = ?", user.ID)
	if err := db.Model(&models.AutomationRuleStats{}).
		Select("COALESCE(SUM(total_triggers), 0) AS triggers, "+
			"COALESCE(SUM(total_comment_replies), 0) AS comment_replies, "+
			"COALESCE(SUM(total_leads_captured), 0) AS leads_captured, "+
			"COALESCE(SUM(total_follow_clicks), 0) AS follow_clicks").
		Where("automation_rule_id IN (?)", ownRules).
		Scan(&totals).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load rule stats", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"user": fiber.Map{
			"id":         user.ID,
			"email":      user.Email,
			"plan_tier":  user.Tier(),
			"created_at": user.CreatedAt,
		},
		"stats": fiber.Map{
			"accounts_count":     len(accountIDs),
			"active_rules_count": activeRules,
			"dms_sent_today":     dms.Today,
			"total_dms_sent":     dms.Total,
			"rules":              totals,
		},
	}))
}
