package controller

import (
	"strings"
	"time"

	"instaflow/models"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

// AuthController issues the access tokens that Protected() checks
type AuthController struct {
	DB       *gorm.DB
	Secret   string
	TokenTTL time.Duration
	Secure   bool
	Logger   *logrus.Entry
}

func NewAuthController(db *gorm.DB, secret string, ttl time.Duration, secure bool, logger *logrus.Entry) *AuthController {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthController{
		DB:       db,
		Secret:   secret,
		TokenTTL: ttl,
		Secure:   secure,
		Logger:   logger,
	}
}

func (ac *AuthController) issue(c *fiber.Ctx, status int, user *models.User) error {
	token, err := utils.GenerateAccessToken(user, ac.Secret, ac.TokenTTL)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate token", err)
	}
	expires := time.Now().Add(ac.TokenTTL)

	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   ac.Secure,
		SameSite: "Lax",
	})
	return c.Status(status).JSON(AuthResponse{
		AccessToken: token,
		ExpiresAt:   expires.UTC(),
		User:        user,
	})
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.User
	if err := ac.DB.WithContext(c.UserContext()).Where("email = ?", email).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Email already registered", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to hash password", err)
	}

	user := models.User{
		Email:        email,
		PasswordHash: string(hashed),
		IsActive:     true,
		PlanTier:     models.PlanFree,
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		user.Name = &name
	}
	if err := ac.DB.WithContext(c.UserContext()).Create(&user).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create user", err)
	}

	ac.Logger.WithField("user_id", user.ID).Info("owner registered")
	return ac.issue(c, fiber.StatusCreated, &user)
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var user models.User
	err := ac.DB.WithContext(c.UserContext()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&user).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password", nil)
	}
	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
	}

	return ac.issue(c, fiber.StatusOK, &user)
}

// Logout revokes every token issued to the caller
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	err := ac.DB.WithContext(c.UserContext()).Model(user).
		UpdateColumn("token_version", gorm.Expr("token_version + ?", 1)).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to log out", err)
	}
	c.ClearCookie("access_token")
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Logged out"}))
}

func (ac *AuthController) ChangePassword(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var req ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Current password is incorrect", nil)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to hash password", err)
	}
	err = ac.DB.WithContext(c.UserContext()).Model(user).Updates(map[string]interface{}{
		"password_hash": string(hashed),
		"token_version": gorm.Expr("token_version + ?", 1),
	}).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update password", err)
	}

	if err := ac.DB.WithContext(c.UserContext()).First(user, user.ID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload user", err)
	}
	return ac.issue(c, fiber.StatusOK, user)
}

func (ac *AuthController) GetCurrentUser(c *fiber.Ctx) error {
	return c.JSON(utils.SuccessResponse(c.Locals("user").(*models.User)))
}
