package controller

import (
	"instaflow/models"
	"instaflow/tracker"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type UsageController struct {
	DB     *gorm.DB
	Usage  *tracker.UsageTracker
	Logger *logrus.Entry
}

func NewUsageController(db *gorm.DB, usage *tracker.UsageTracker, logger *logrus.Entry) *UsageController {
	return &UsageController{
		DB:     db,
		Usage:  usage,
		Logger: logger,
	}
}

// GetUsage reports DM and rule counters for each of the caller's connected accounts.
// Reading applies any pending monthly reset.
func (uc *UsageController) GetUsage(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query := uc.DB.WithContext(c.UserContext()).Where("user_id = ?", user.ID)
	if accountID := c.Query("account_id"); accountID != "" {
		query = query.Where("id = ?", utils.ParseUint(accountID))
	}

	var accounts []models.InstagramAccount
	if err := query.Order("id").Find(&accounts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch accounts", err)
	}

	summaries := make([]fiber.Map, 0, len(accounts))
	for _, account := range accounts {
		s, err := uc.Usage.Summary(c.UserContext(), user.ID, account.PlatformID(), user.Tier())
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load usage", err)
		}
		summaries = append(summaries, fiber.Map{
			"instagram_account_id": account.ID,
			"username":             account.Username,
			"usage":                s,
		})
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"plan_tier": user.Tier(),
		"accounts":  summaries,
	}))
}
