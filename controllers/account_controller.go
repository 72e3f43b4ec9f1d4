package controller

import (
	"errors"
	"strings"

	"instaflow/models"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AccountController registers Instagram accounts whose page tokens were obtained elsewhere
type AccountController struct {
	DB            *gorm.DB
	EncryptionKey string
	Limits        func(models.PlanTier) models.PlanLimits
	Logger        *logrus.Entry
}

func NewAccountController(db *gorm.DB, encryptionKey string, limits func(models.PlanTier) models.PlanLimits, logger *logrus.Entry) *AccountController {
	return &AccountController{
		DB:            db,
		EncryptionKey: encryptionKey,
		Limits:        limits,
		Logger:        logger,
	}
}

type accountInput struct {
	Username  string `json:"username" validate:"required,max=64"`
	IGSID     string `json:"igsid" validate:"omitempty,numeric,max=64"`
	PageID    string `json:"page_id" validate:"omitempty,numeric,max=64"`
	PageToken string `json:"page_token" validate:"required"`
}

type accountUpdateInput struct {
	Username  *string `json:"username" validate:"omitempty,max=64"`
	PageToken *string `json:"page_token"`
	IsActive  *bool   `json:"is_active"`
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// CreateAccount stores an account with its page token encrypted at rest
func (ac *AccountController) CreateAccount(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input accountInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if input.IGSID == "" && input.PageID == "" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "igsid or page_id is required", nil)
	}

	ctx := c.UserContext()
	if ac.Limits != nil {
		limit := ac.Limits(user.Tier()).MaxAccounts
		var count int64
		if err := ac.DB.WithContext(ctx).Model(&models.InstagramAccount{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count accounts", err)
		}
		if limit != models.Unlimited && count >= int64(limit) {
			return utils.ErrorResponse(c, fiber.StatusForbidden, "Instagram account limit reached for your plan", nil)
		}
	}

	token, err := utils.EncryptToken(ac.EncryptionKey, input.PageToken)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to secure page token", err)
	}

	account := models.InstagramAccount{
		UserID:             user.ID,
		Username:           strings.TrimPrefix(strings.TrimSpace(input.Username), "@"),
		IGSID:              optional(input.IGSID),
		PageID:             optional(input.PageID),
		EncryptedPageToken: token,
		IsActive:           true,
	}
	if err := ac.DB.WithContext(ctx).Create(&account).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create account", err)
	}

	ac.Logger.WithFields(logrus.Fields{"account_id": account.ID, "user_id": user.ID}).Info("instagram account connected")
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(account))
}

func (ac *AccountController) ListAccounts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var accounts []models.InstagramAccount
	if err := ac.DB.WithContext(c.UserContext()).Where("user_id = ?", user.ID).Order("id").Find(&accounts).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch accounts", err)
	}
	return c.JSON(utils.SuccessResponse(accounts))
}

// UpdateAccount renames, re-keys, or pauses an account. A paused account is
// skipped by account resolution, so none of its rules fire.
func (ac *AccountController) UpdateAccount(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var account models.InstagramAccount
	err := ac.DB.WithContext(c.UserContext()).
		Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Instagram account not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch account", err)
	}

	var input accountUpdateInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	updates := map[string]interface{}{}
	if input.Username != nil {
		updates["username"] = strings.TrimPrefix(strings.TrimSpace(*input.Username), "@")
	}
	if input.PageToken != nil {
		token, err := utils.EncryptToken(ac.EncryptionKey, *input.PageToken)
		if err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to secure page token", err)
		}
		updates["encrypted_page_token"] = token
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) > 0 {
		if err := ac.DB.WithContext(c.UserContext()).Model(&account).Updates(updates).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update account", err)
		}
	}

	if err := ac.DB.WithContext(c.UserContext()).First(&account, account.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload account", err)
	}
	return c.JSON(utils.SuccessResponse(account))
}
