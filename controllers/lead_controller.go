package controller

import (
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"instaflow/models"
	"instaflow/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type LeadController struct {
	DB     *gorm.DB
	Logger *logrus.Entry
}

func NewLeadController(db *gorm.DB, logger *logrus.Entry) *LeadController {
	return &LeadController{
		DB:     db,
		Logger: logger,
	}
}

// leadQuery scopes captured leads to the caller and applies the shared filters
func (lc *LeadController) leadQuery(c *fiber.Ctx, userID uint) (*gorm.DB, error) {
	query := lc.DB.WithContext(c.UserContext()).Model(&models.CapturedLead{}).Where("user_id = ?", userID)

	if accountID := c.Query("account_id"); accountID != "" {
		id, err := strconv.ParseUint(accountID, 10, 32)
		if err != nil {
			return nil, err
		}
		query = query.Where("instagram_account_id = ?", uint(id))
	}
	if ruleID := c.Query("rule_id"); ruleID != "" {
		id, err := strconv.ParseUint(ruleID, 10, 32)
		if err != nil {
			return nil, err
		}
		query = query.Where("automation_rule_id = ?", uint(id))
	}
	if email := c.Query("email"); email != "" {
		query = query.Where("email LIKE ?", "%"+email+"%")
	}
	if c.Query("exported") == "false" {
		query = query.Where("exported = ?", false)
	}
	return query, nil
}

// GetLeads returns paginated captured leads, newest first
func (lc *LeadController) GetLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := (page - 1) * limit

	query, err := lc.leadQuery(c, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", err)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count leads", err)
	}

	var leads []models.CapturedLead
	if err := query.Order("captured_at DESC, id DESC").Offset(offset).Limit(limit).Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  leads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetLeadStats counts the caller's leads under the same filters as GetLeads
func (lc *LeadController) GetLeadStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query, err := lc.leadQuery(c, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", err)
	}

	var stats struct {
		TotalLeads          int64 `json:"total_leads"`
		TotalWithEmail      int64 `json:"total_with_email"`
		TotalWithPhone      int64 `json:"total_with_phone"`
		PendingNotification int64 `json:"pending_notification"`
		NotExported         int64 `json:"not_exported"`
	}
	counts := []struct {
		dst  *int64
		cond []interface{}
	}{
		{&stats.TotalLeads, nil},
		{&stats.TotalWithEmail, []interface{}{"email <> ?", ""}},
		{&stats.TotalWithPhone, []interface{}{"phone <> ?", ""}},
		{&stats.PendingNotification, []interface{}{"notified = ?", false}},
		{&stats.NotExported, []interface{}{"exported = ?", false}},
	}
	for _, cnt := range counts {
		q := query.Session(&gorm.Session{})
		if cnt.cond != nil {
			q = q.Where(cnt.cond[0], cnt.cond[1:]...)
		}
		if err := q.Count(cnt.dst).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count leads", err)
		}
	}

	return c.JSON(utils.SuccessResponse(stats))
}

// GetLead returns a single lead by ID
func (lc *LeadController) GetLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var lead models.CapturedLead
	err := lc.DB.WithContext(c.UserContext()).
		Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).
		First(&lead).Error
	if err == gorm.ErrRecordNotFound {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch lead", err)
	}
	return c.JSON(utils.SuccessResponse(lead))
}

func (lc *LeadController) DeleteLead(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	res := lc.DB.WithContext(c.UserContext()).
		Where("id = ? AND user_id = ?", utils.ParseUint(c.Params("id")), user.ID).
		Delete(&models.CapturedLead{})
	if res.Error != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to delete lead", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Lead not found", nil)
	}
	return c.JSON(utils.SuccessResponse(fiber.Map{"deleted": true}))
}

var leadCSVHeader = []string{
	"id", "captured_at", "email", "phone", "name",
	"instagram_account_id", "automation_rule_id", "sender_id", "captured_via", "custom_fields",
}

func leadRecord(lead models.CapturedLead) []string {
	accountID := ""
	if lead.InstagramAccountID != nil {
		accountID = strconv.FormatUint(uint64(*lead.InstagramAccountID), 10)
	}
	channel, _ := lead.Metadata["captured_via"].(string)
	custom := ""
	if len(lead.CustomFields) > 0 {
		if b, err := json.Marshal(lead.CustomFields); err == nil {
			custom = string(b)
		}
	}
	return []string{
		strconv.FormatUint(uint64(lead.ID), 10),
		lead.CapturedAt.UTC().Format(time.RFC3339),
		lead.Email,
		lead.Phone,
		lead.Name,
		accountID,
		strconv.FormatUint(uint64(lead.AutomationRuleID), 10),
		lead.SenderID,
		channel,
		custom,
	}
}

// ExportLeads streams matching leads as CSV and marks them exported
func (lc *LeadController) ExportLeads(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	query, err := lc.leadQuery(c, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid filter", err)
	}

	var leads []models.CapturedLead
	if err := query.Order("captured_at, id").Find(&leads).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leads", err)
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", "attachment; filename=instagram_leads_"+time.Now().Format("20060102")+".csv")

	writer := csv.NewWriter(c)
	if err := writer.Write(leadCSVHeader); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
	}

	ids := make([]uint, 0, len(leads))
	for _, lead := range leads {
		if err := writer.Write(leadRecord(lead)); err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
		}
		ids = append(ids, lead.ID)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate CSV", err)
	}

	if len(ids) > 0 {
		if err := lc.DB.WithContext(c.UserContext()).Model(&models.CapturedLead{}).
			Where("id IN ?", ids).Update("exported", true).Error; err != nil {
			utils.LogError("LeadExportMarkFailed", err, map[string]interface{}{"user_id": user.ID, "count": len(ids)})
		}
	}

	lc.Logger.WithFields(logrus.Fields{"user_id": user.ID, "count": len(ids)}).Info("leads exported")
	return nil
}
